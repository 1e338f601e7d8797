package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/justestif/go-fitness-pattern-finder/internal/clustering"
	"github.com/justestif/go-fitness-pattern-finder/internal/db"
	"github.com/justestif/go-fitness-pattern-finder/internal/patterns"
	"github.com/justestif/go-fitness-pattern-finder/internal/routines"
)

const maxSamples = 3

// printer writes results for a terminal.
type printer struct {
	w       io.Writer
	header  *color.Color
	muted   *color.Color
	outlier *color.Color
	groups  []*color.Color
}

func newPrinter(w io.Writer, noColor bool) *printer {
	p := &printer{
		w:       w,
		header:  color.New(color.FgCyan, color.Bold),
		muted:   color.New(color.FgHiBlack),
		outlier: color.New(color.FgHiBlack),
		groups: []*color.Color{
			color.New(color.FgGreen),
			color.New(color.FgYellow),
			color.New(color.FgBlue),
			color.New(color.FgMagenta),
			color.New(color.FgRed),
		},
	}
	if noColor {
		for _, c := range append([]*color.Color{p.header, p.muted, p.outlier}, p.groups...) {
			c.DisableColor()
		}
	}
	return p
}

func (p *printer) groupColor(i int) *color.Color {
	return p.groups[i%len(p.groups)]
}

// times prints time-of-day routines and an hour histogram of their starts.
func (p *printer) times(r patterns.Result[time.Time], total int) {
	if !p.summary(r.Found(), r.Period, len(r.Groups), total) {
		return
	}

	for i, g := range r.Groups {
		mean, _ := meanOf(g, func(t time.Time) float64 {
			return float64(t.Hour()) + float64(t.Minute())/60
		})
		c := p.groupColor(i)
		c.Fprintf(p.w, "\nRoutine %d: %s %s (%d %s)\n",
			i+1, day(r.Period, g[0]), routines.Value(db.ModeTimeOfDay, mean), len(g), plural(len(g), "activity", "activities"))
		for _, t := range g[:min(maxSamples, len(g))] {
			fmt.Fprintf(p.w, "  • %s\n", t.Format("Mon 2006-01-02 15:04"))
		}
		if rest := len(g) - maxSamples; rest > 0 {
			p.muted.Fprintf(p.w, "  ... and %d more\n", rest)
		}
	}

	fmt.Fprintln(p.w)
	p.histogram(r.Groups)
}

// durations prints duration routines.
func (p *printer) durations(r patterns.Result[patterns.TimedLength], total int) {
	if !p.summary(r.Found(), r.Period, len(r.Groups), total) {
		return
	}

	for i, g := range r.Groups {
		mean, _ := meanOf(g, func(tl patterns.TimedLength) float64 { return tl.Seconds })
		c := p.groupColor(i)
		c.Fprintf(p.w, "\nRoutine %d: %s, %s (%d %s)\n",
			i+1, day(r.Period, g[0].At), routines.Value(db.ModeDuration, mean),
			len(g), plural(len(g), "activity", "activities"))
		for _, tl := range g[:min(maxSamples, len(g))] {
			fmt.Fprintf(p.w, "  • %s for %s\n", tl.At.Format("Mon 2006-01-02 15:04"),
				time.Duration(tl.Seconds*float64(time.Second)).Round(time.Second))
		}
		if rest := len(g) - maxSamples; rest > 0 {
			p.muted.Fprintf(p.w, "  ... and %d more\n", rest)
		}
	}
}

// summary prints the header line and reports whether there are groups to
// list.
func (p *printer) summary(found bool, period, groups, total int) bool {
	if !found || groups == 0 {
		p.header.Fprintf(p.w, "No routine found from %d %s\n", total, plural(total, "activity", "activities"))
		return false
	}
	p.header.Fprintf(p.w, "Found %d %s repeating %s from %d %s\n",
		groups, plural(groups, "routine", "routines"),
		routines.Cycle(period),
		total, plural(total, "activity", "activities"))
	return true
}

// histogram draws one row per hour of day with a bar per routine.
func (p *printer) histogram(groups [][]time.Time) {
	counts := make([][]int, 24)
	for h := range counts {
		counts[h] = make([]int, len(groups))
	}
	for i, g := range groups {
		for _, t := range g {
			counts[t.Hour()][i]++
		}
	}

	for h := range 24 {
		line := fmt.Sprintf("%02d:00 ", h)
		empty := true
		for i, n := range counts[h] {
			if n > 0 {
				line += p.groupColor(i).Sprint(strings.Repeat("█", n))
				empty = false
			}
		}
		if empty {
			line = p.muted.Sprint(line)
		}
		fmt.Fprintln(p.w, line)
	}
}

func meanOf[T any](items []T, value func(T) float64) (float64, error) {
	points := make([]clustering.Point, len(items))
	for i, it := range items {
		points[i] = clustering.Point{value(it)}
	}
	c, err := clustering.Center(points)
	if err != nil {
		return 0, err
	}
	return c[0], nil
}

func day(period int, t time.Time) string {
	switch period {
	case 1:
		return "Daily"
	case 7:
		return t.Weekday().String() + "s"
	default:
		return fmt.Sprintf("Day %d of every %d", t.YearDay()%period+1, period)
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
