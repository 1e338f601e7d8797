package web

import (
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"math"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/justestif/go-fitness-pattern-finder/internal/db"
	"github.com/justestif/go-fitness-pattern-finder/internal/routines"
	"github.com/justestif/go-fitness-pattern-finder/internal/strava"
)

// Templates manages HTML template rendering.
type Templates struct {
	templates map[string]*template.Template
	partials  map[string]*template.Template
	funcs     template.FuncMap
}

// NewTemplates creates a new template manager by loading templates from the given filesystem.
func NewTemplates(templatesFS fs.FS) (*Templates, error) {
	t := &Templates{
		templates: make(map[string]*template.Template),
		partials:  make(map[string]*template.Template),
		funcs:     defaultFuncs(),
	}

	if err := t.load(templatesFS); err != nil {
		return nil, err
	}

	return t, nil
}

// Render renders a page template with the given data.
func (t *Templates) Render(w io.Writer, page string, data any) error {
	tmpl, ok := t.templates[page]
	if !ok {
		return fmt.Errorf("template %q not found", page)
	}

	// Execute the "base" template which includes the page content
	return tmpl.ExecuteTemplate(w, "base", data)
}

// RenderPartial renders a partial template (without base layout) with the
// given data, for HTMX fragments.
func (t *Templates) RenderPartial(w io.Writer, partial string, data any) error {
	tmpl, ok := t.partials[partial]
	if !ok {
		return fmt.Errorf("partial %q not found", partial)
	}
	return tmpl.Execute(w, data)
}

// load parses every page together with the layouts and partials, and
// every partial on its own.
func (t *Templates) load(templatesFS fs.FS) error {
	layouts, err := fs.Glob(templatesFS, "layouts/*.html")
	if err != nil {
		return fmt.Errorf("finding layouts: %w", err)
	}
	partials, err := fs.Glob(templatesFS, "partials/*.html")
	if err != nil {
		return fmt.Errorf("finding partials: %w", err)
	}
	pages, err := fs.Glob(templatesFS, "pages/*.html")
	if err != nil {
		return fmt.Errorf("finding pages: %w", err)
	}
	if len(layouts) == 0 || len(pages) == 0 {
		return fmt.Errorf("no layouts or pages found")
	}

	for _, page := range pages {
		name := templateName(page)
		tmpl, err := t.parse(templatesFS, name, slices.Concat([]string{page}, layouts, partials)...)
		if err != nil {
			return fmt.Errorf("parsing template %s: %w", name, err)
		}
		t.templates[name] = tmpl
	}

	for _, partial := range partials {
		name := templateName(partial)
		tmpl, err := t.parse(templatesFS, name, partial)
		if err != nil {
			return fmt.Errorf("parsing partial %s: %w", name, err)
		}
		t.partials[name] = tmpl
	}
	return nil
}

func (t *Templates) parse(templatesFS fs.FS, name string, files ...string) (*template.Template, error) {
	return template.New(name).Funcs(t.funcs).ParseFS(templatesFS, files...)
}

// templateName is the file name without directory or extension.
func templateName(file string) string {
	return strings.TrimSuffix(path.Base(file), ".html")
}

// defaultFuncs returns the default template functions.
func defaultFuncs() template.FuncMap {
	return template.FuncMap{
		// formatDate formats a time as "Jan 2, 2006"
		"formatDate": func(t time.Time) string {
			return t.Format("Jan 2, 2006")
		},

		// formatDateRange formats a date range as "Jan 2 - Feb 3, 2006"
		"formatDateRange": func(start, end time.Time) string {
			if start.Year() == end.Year() && start.Month() == end.Month() {
				return fmt.Sprintf("%s - %s", start.Format("Jan 2"), end.Format("2, 2006"))
			}
			if start.Year() == end.Year() {
				return fmt.Sprintf("%s - %s", start.Format("Jan 2"), end.Format("Jan 2, 2006"))
			}
			return fmt.Sprintf("%s - %s", start.Format("Jan 2, 2006"), end.Format("Jan 2, 2006"))
		},

		// hours formats a number of hours with one decimal.
		"hours": func(h float64) string {
			return fmt.Sprintf("%.1f h", h)
		},

		// progress is the share of the weekly target reached, capped at 100.
		"progress": func(done, target float64) int {
			if target <= 0 {
				return 0
			}
			return int(min(done/target, 1) * 100)
		},

		// km formats meters as kilometers.
		"km": func(m float64) string {
			return fmt.Sprintf("%.1f km", m/1000)
		},

		// duration formats seconds as "1h05m" or "42m".
		"duration": formatDuration,

		// add adds two integers (for 1-based indexing in loops)
		"add": func(a, b int) int {
			return a + b
		},
	}
}

// PageData contains common data passed to all page templates.
type PageData struct {
	Title       string
	User        *UserData
	Flash       *FlashMessage
	CurrentPath string
}

// UserData contains authenticated user information.
type UserData struct {
	ID   string
	Name string
}

// FlashMessage represents a temporary notification message.
type FlashMessage struct {
	Type    string // "success", "error", "warning", "info"
	Message string
}

// HomePageData contains data for the home page template.
type HomePageData struct {
	PageData
	Authenticated bool
}

// DashboardPageData contains data for the dashboard template.
type DashboardPageData struct {
	PageData
	WeeklyHours      float64
	RecommendedHours float64
	LastSync         *time.Time
	Routines         RoutinesData
	Durations        RoutinesData
	Kinds            []KindData
	Summary          string
}

// ActivitiesPageData contains data for the activities list.
type ActivitiesPageData struct {
	PageData
	Activities []ActivityData
}

// ActivityData is one row of the activities list.
type ActivityData struct {
	ID         int64
	Name       string
	Type       string
	Start      time.Time
	Distance   float64 // meters
	MovingTime int     // seconds
	SpeedKmh   float64
	Manual     bool
}

// ProfilePageData contains data for the Strava profile page.
type ProfilePageData struct {
	PageData
	Athlete AthleteData
}

// AthleteData is the athlete as Strava reports it.
type AthleteData struct {
	ID       int64
	Name     string
	Username string
	Location string
	Sex      string
	Weight   float64 // kilograms
	Avatar   string
}

// SettingsPageData contains data for the settings page.
type SettingsPageData struct {
	PageData
	AthleteID        string
	RecommendedHours float64
	LastSync         *time.Time
	Scope            string
	MemberSince      time.Time
}

// RoutinesResponse is the body of GET /api/routines.
type RoutinesResponse struct {
	Times     RoutinesData `json:"times"`
	Durations RoutinesData `json:"durations"`
	Kinds     []KindData   `json:"kinds"`
}

// KindData summarizes one group of similar activities.
type KindData struct {
	Types          []string `json:"types"`
	Activities     int      `json:"activities"`
	MeanDistanceKm float64  `json:"mean_distance_km"`
	MeanMovingTime int      `json:"mean_moving_time"` // seconds
}

// RoutinesData is the routine list shown on the dashboard and served by
// the JSON API.
type RoutinesData struct {
	Found    bool          `json:"found"`
	Period   int           `json:"period"`
	Cycle    string        `json:"cycle,omitempty"`
	Routines []RoutineData `json:"routines"`
}

// RoutineData contains data for a single routine slot.
type RoutineData struct {
	Slot       int       `json:"slot"`
	Day        string    `json:"day"`
	CycleDay   int       `json:"cycle_day"`
	Time       string    `json:"time"`
	MeanValue  float64   `json:"mean_value"`
	FirstSeen  time.Time `json:"first_seen"`
	LastSeen   time.Time `json:"last_seen"`
	Activities int       `json:"activities"`
}

func toRoutinesData(r *routines.DetectResult) RoutinesData {
	data := RoutinesData{
		Found:    r.Found(),
		Period:   r.Period,
		Routines: make([]RoutineData, len(r.Routines)),
	}
	if r.Found() {
		data.Cycle = routines.Cycle(r.Period)
	}
	for i, rt := range r.Routines {
		data.Routines[i] = RoutineData{
			Slot:       rt.Slot,
			Day:        routines.Day(rt),
			CycleDay:   rt.CycleDay,
			Time:       routines.Value(r.Mode, rt.MeanValue),
			MeanValue:  rt.MeanValue,
			FirstSeen:  rt.FirstSeen,
			LastSeen:   rt.LastSeen,
			Activities: len(rt.ActivityIDs),
		}
	}
	return data
}

func toKindsData(groups [][]db.Activity) []KindData {
	kinds := make([]KindData, 0, len(groups))
	for _, g := range groups {
		if len(g) == 0 {
			continue
		}
		kind := KindData{Activities: len(g)}
		var meters float64
		var seconds int
		for _, a := range g {
			if !slices.Contains(kind.Types, a.Type) {
				kind.Types = append(kind.Types, a.Type)
			}
			meters += a.Distance
			seconds += a.MovingTime
		}
		kind.MeanDistanceKm = math.Round(meters/float64(len(g))/100) / 10
		kind.MeanMovingTime = seconds / len(g)
		kinds = append(kinds, kind)
	}
	return kinds
}

func toActivityData(a db.Activity) ActivityData {
	return ActivityData{
		ID:         a.ID,
		Name:       a.Name,
		Type:       a.Type,
		Start:      a.StartDateLocal,
		Distance:   a.Distance,
		MovingTime: a.MovingTime,
		SpeedKmh:   math.Round(a.AverageSpeed*36) / 10,
		Manual:     a.Manual,
	}
}

func toAthleteData(a *strava.Athlete) AthleteData {
	var location []string
	for _, part := range []string{a.City, a.Country} {
		if part != "" {
			location = append(location, part)
		}
	}
	return AthleteData{
		ID:       a.ID,
		Name:     a.DisplayName(),
		Username: a.Username,
		Location: strings.Join(location, ", "),
		Sex:      a.Sex,
		Weight:   a.Weight,
		Avatar:   a.Profile,
	}
}

func formatDuration(seconds int) string {
	d := time.Duration(seconds) * time.Second
	if d >= time.Hour {
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	}
	return fmt.Sprintf("%dm", int(d.Minutes()))
}
