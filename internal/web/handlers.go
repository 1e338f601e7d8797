package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/justestif/go-fitness-pattern-finder/internal/auth"
	"github.com/justestif/go-fitness-pattern-finder/internal/db"
	"github.com/justestif/go-fitness-pattern-finder/internal/routines"
	"github.com/justestif/go-fitness-pattern-finder/internal/strava"
	activitysync "github.com/justestif/go-fitness-pattern-finder/internal/sync"
)

const (
	stateCookieName = "oauth_state"
	maxWeeklyHours  = 7 * 24
	activityKinds   = 3
)

// UserStore persists signed-in athletes.
type UserStore interface {
	Get(ctx context.Context, id string) (*db.User, error)
	Upsert(ctx context.Context, user *db.User) error
	UpdateRecommendedHours(ctx context.Context, id string, hours float64) error
	Delete(ctx context.Context, id string) error
}

// Syncer imports a user's activities.
type Syncer interface {
	SyncActivities(ctx context.Context, source activitysync.ActivitySource, userID string, force bool) (*activitysync.SyncResult, error)
}

// ActivityStore lists a user's imported activities.
type ActivityStore interface {
	ListForUser(ctx context.Context, userID string) ([]db.Activity, error)
}

// RoutineService detects and serves a user's routines.
type RoutineService interface {
	Get(ctx context.Context, userID string) (*routines.DetectResult, error)
	GetDurations(ctx context.Context, userID string) (*routines.DetectResult, error)
	DetectAndPersist(ctx context.Context, userID string) (*routines.DetectResult, error)
	DetectDurations(ctx context.Context, userID string) (*routines.DetectResult, error)
	ActivityKinds(ctx context.Context, userID string, k int) ([][]db.Activity, error)
	WeeklyHours(ctx context.Context, userID string, now time.Time) (float64, error)
	Invalidate(userID string)
}

// Handlers contains HTTP handlers for the web application.
type Handlers struct {
	oauth      *oauth2.Config
	sessions   SessionManager
	templates  *Templates
	users      UserStore
	activities ActivityStore
	syncer     Syncer
	routines   RoutineService
	stravaOpts []strava.Option
	log        logrus.FieldLogger
	now        func() time.Time
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(oauth *oauth2.Config, sessions SessionManager, templates *Templates, users UserStore, activities ActivityStore, syncer Syncer, rs RoutineService, log logrus.FieldLogger, stravaOpts ...strava.Option) *Handlers {
	return &Handlers{
		oauth:      oauth,
		sessions:   sessions,
		templates:  templates,
		users:      users,
		activities: activities,
		syncer:     syncer,
		routines:   rs,
		stravaOpts: stravaOpts,
		log:        log,
		now:        time.Now,
	}
}

// Home handles the home page (GET /).
func (h *Handlers) Home(w http.ResponseWriter, r *http.Request) {
	session := sessionFromRequest(r, h.sessions)

	data := HomePageData{
		PageData: PageData{
			Title:       "Fitness Pattern Finder",
			CurrentPath: r.URL.Path,
		},
		Authenticated: session != nil,
	}
	if session != nil {
		data.User = &UserData{
			ID:   session.UserID,
			Name: session.UserName,
		}
	}

	h.render(w, "home", data)
}

// Login initiates the Strava OAuth flow (GET /auth/login).
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	state, err := auth.GenerateState()
	if err != nil {
		http.Error(w, "Failed to generate state", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   300, // 5 minutes
	})

	http.Redirect(w, r, auth.AuthCodeURL(h.oauth, state), http.StatusTemporaryRedirect)
}

// Callback handles the OAuth callback from Strava (GET /callback). The first
// sync runs right away so the dashboard has data.
func (h *Handlers) Callback(w http.ResponseWriter, r *http.Request) {
	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil {
		http.Error(w, "Missing state cookie", http.StatusBadRequest)
		return
	}

	q := r.URL.Query()
	if q.Get("state") != stateCookie.Value {
		http.Error(w, "State mismatch", http.StatusBadRequest)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})

	if errMsg := q.Get("error"); errMsg != "" {
		http.Error(w, fmt.Sprintf("Strava auth error: %s", errMsg), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	token, err := h.oauth.Exchange(ctx, q.Get("code"))
	if err != nil {
		h.log.WithError(err).Warn("token exchange failed")
		http.Error(w, "Failed to get token", http.StatusInternalServerError)
		return
	}

	client := strava.NewClient(h.oauth.Client(ctx, token), h.stravaOpts...)
	athlete, err := client.Athlete(ctx)
	if err != nil {
		h.log.WithError(err).Warn("fetching athlete failed")
		http.Error(w, "Failed to get athlete info", http.StatusInternalServerError)
		return
	}

	userID := strconv.FormatInt(athlete.ID, 10)
	if err := h.users.Upsert(ctx, &db.User{ID: userID, DisplayName: athlete.DisplayName()}); err != nil {
		h.log.WithError(err).Error("saving user failed")
		http.Error(w, "Failed to save user", http.StatusInternalServerError)
		return
	}

	session, err := h.sessions.Create(ctx, token, userID, athlete.DisplayName(), q.Get("scope"))
	if err != nil {
		http.Error(w, "Failed to create session", http.StatusInternalServerError)
		return
	}
	writeSessionCookie(w, session)

	if err := h.syncAndDetect(ctx, client, userID, true); err != nil {
		h.log.WithError(err).WithField("user_id", userID).Warn("initial sync failed")
	}

	http.Redirect(w, r, "/dashboard", http.StatusTemporaryRedirect)
}

// Logout clears the session and redirects to home (POST /auth/logout).
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if session := sessionFromRequest(r, h.sessions); session != nil {
		h.sessions.Delete(r.Context(), session.ID)
	}

	expireSessionCookie(w)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Disconnect revokes Strava access and deletes the user's data
// (POST /auth/disconnect).
func (h *Handlers) Disconnect(w http.ResponseWriter, r *http.Request) {
	session := sessionFromRequest(r, h.sessions)
	if session == nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	ctx := r.Context()
	client, _ := h.client(ctx, session)
	if err := client.Deauthorize(ctx); err != nil {
		h.log.WithError(err).WithField("user_id", session.UserID).Warn("deauthorize failed")
	}
	if err := h.users.Delete(ctx, session.UserID); err != nil && !errors.Is(err, db.ErrNotFound) {
		h.log.WithError(err).WithField("user_id", session.UserID).Error("deleting user failed")
		http.Error(w, "Failed to delete user", http.StatusInternalServerError)
		return
	}
	h.routines.Invalidate(session.UserID)
	h.sessions.Delete(ctx, session.ID)
	expireSessionCookie(w)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Dashboard shows weekly hours and detected routines (GET /dashboard).
func (h *Handlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	session := sessionFromRequest(r, h.sessions)
	if session == nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	ctx := r.Context()
	data, err := h.dashboardData(ctx, session)
	if err != nil {
		h.log.WithError(err).WithField("user_id", session.UserID).Error("loading dashboard failed")
		http.Error(w, "Failed to load dashboard", http.StatusInternalServerError)
		return
	}
	data.CurrentPath = r.URL.Path
	data.Flash = flashFor(r.URL.Query().Get("flash"))

	h.render(w, "dashboard", data)
}

// RoutinesPartial renders the routine list fragment (GET /dashboard/routines).
func (h *Handlers) RoutinesPartial(w http.ResponseWriter, r *http.Request) {
	session := sessionFromRequest(r, h.sessions)
	if session == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	result, err := h.routines.Get(r.Context(), session.UserID)
	if err != nil {
		http.Error(w, "Failed to load routines", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.templates.RenderPartial(w, "routines", toRoutinesData(result)); err != nil {
		http.Error(w, "Failed to render template", http.StatusInternalServerError)
	}
}

// Sync imports recent activities and re-detects routines (POST /sync).
func (h *Handlers) Sync(w http.ResponseWriter, r *http.Request) {
	session := sessionFromRequest(r, h.sessions)
	if session == nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	ctx := r.Context()
	client, ts := h.client(ctx, session)
	err := h.syncAndDetect(ctx, client, session.UserID, false)
	h.refreshToken(ctx, session, ts)

	flash := "synced"
	switch {
	case errors.Is(err, activitysync.ErrSyncTooRecent):
		flash = "too_recent"
	case err != nil:
		h.log.WithError(err).WithField("user_id", session.UserID).Error("sync failed")
		flash = "sync_failed"
	}
	http.Redirect(w, r, "/dashboard?flash="+flash, http.StatusSeeOther)
}

// SetTarget stores the weekly training target (POST /settings/target).
func (h *Handlers) SetTarget(w http.ResponseWriter, r *http.Request) {
	session := sessionFromRequest(r, h.sessions)
	if session == nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	hours, err := strconv.ParseFloat(r.FormValue("hours"), 64)
	if err != nil || hours < 0 || hours > maxWeeklyHours {
		http.Error(w, "Invalid weekly target", http.StatusBadRequest)
		return
	}
	if err := h.users.UpdateRecommendedHours(r.Context(), session.UserID, hours); err != nil {
		h.log.WithError(err).WithField("user_id", session.UserID).Error("saving weekly target failed")
		http.Error(w, "Failed to save weekly target", http.StatusInternalServerError)
		return
	}
	next := "/dashboard"
	if r.FormValue("next") == "/settings" {
		next = "/settings"
	}
	http.Redirect(w, r, next+"?flash=target_saved", http.StatusSeeOther)
}

// APIRoutines returns the user's routines and activity kinds as JSON
// (GET /api/routines).
func (h *Handlers) APIRoutines(w http.ResponseWriter, r *http.Request) {
	session := sessionFromRequest(r, h.sessions)
	if session == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not signed in"})
		return
	}

	ctx := r.Context()
	times, err := h.routines.Get(ctx, session.UserID)
	if err != nil {
		h.log.WithError(err).WithField("user_id", session.UserID).Error("loading routines failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load routines"})
		return
	}
	durations, err := h.routines.GetDurations(ctx, session.UserID)
	if err != nil {
		h.log.WithError(err).WithField("user_id", session.UserID).Error("loading duration routines failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load routines"})
		return
	}
	kinds, err := h.routines.ActivityKinds(ctx, session.UserID, activityKinds)
	if err != nil {
		h.log.WithError(err).WithField("user_id", session.UserID).Error("grouping activity kinds failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load activity kinds"})
		return
	}

	writeJSON(w, http.StatusOK, RoutinesResponse{
		Times:     toRoutinesData(times),
		Durations: toRoutinesData(durations),
		Kinds:     toKindsData(kinds),
	})
}

// Activities lists the stored activities, newest first (GET /activities).
func (h *Handlers) Activities(w http.ResponseWriter, r *http.Request) {
	session := sessionFromRequest(r, h.sessions)
	if session == nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	activities, err := h.activities.ListForUser(r.Context(), session.UserID)
	if err != nil {
		h.log.WithError(err).WithField("user_id", session.UserID).Error("loading activities failed")
		http.Error(w, "Failed to load activities", http.StatusInternalServerError)
		return
	}

	data := ActivitiesPageData{
		PageData:   h.pageData(r, session, "Activities"),
		Activities: make([]ActivityData, len(activities)),
	}
	for i, a := range activities {
		data.Activities[len(activities)-1-i] = toActivityData(a)
	}
	h.render(w, "activities", data)
}

// Profile shows the athlete's Strava profile (GET /profile).
func (h *Handlers) Profile(w http.ResponseWriter, r *http.Request) {
	session := sessionFromRequest(r, h.sessions)
	if session == nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	ctx := r.Context()
	client, ts := h.client(ctx, session)
	athlete, err := client.Athlete(ctx)
	h.refreshToken(ctx, session, ts)
	if err != nil {
		h.log.WithError(err).WithField("user_id", session.UserID).Warn("fetching athlete failed")
		http.Error(w, "Failed to load Strava profile", http.StatusBadGateway)
		return
	}

	h.render(w, "profile", ProfilePageData{
		PageData: h.pageData(r, session, "Profile"),
		Athlete:  toAthleteData(athlete),
	})
}

// Settings shows the account and the weekly target form (GET /settings).
func (h *Handlers) Settings(w http.ResponseWriter, r *http.Request) {
	session := sessionFromRequest(r, h.sessions)
	if session == nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	user, err := h.users.Get(r.Context(), session.UserID)
	if err != nil {
		h.log.WithError(err).WithField("user_id", session.UserID).Error("loading user failed")
		http.Error(w, "Failed to load settings", http.StatusInternalServerError)
		return
	}

	h.render(w, "settings", SettingsPageData{
		PageData:         h.pageData(r, session, "Settings"),
		AthleteID:        user.ID,
		RecommendedHours: user.RecommendedHours,
		LastSync:         user.LastSyncAt,
		Scope:            session.Scope,
		MemberSince:      user.CreatedAt,
	})
}

func (h *Handlers) pageData(r *http.Request, session *Session, title string) PageData {
	return PageData{
		Title:       title,
		User:        &UserData{ID: session.UserID, Name: session.UserName},
		Flash:       flashFor(r.URL.Query().Get("flash")),
		CurrentPath: r.URL.Path,
	}
}

func (h *Handlers) dashboardData(ctx context.Context, session *Session) (DashboardPageData, error) {
	data := DashboardPageData{
		PageData: PageData{
			Title: "Dashboard",
			User:  &UserData{ID: session.UserID, Name: session.UserName},
		},
	}

	user, err := h.users.Get(ctx, session.UserID)
	if err != nil {
		return data, fmt.Errorf("getting user: %w", err)
	}
	data.RecommendedHours = user.RecommendedHours
	data.LastSync = user.LastSyncAt

	data.WeeklyHours, err = h.routines.WeeklyHours(ctx, session.UserID, h.now())
	if err != nil {
		return data, err
	}

	result, err := h.routines.Get(ctx, session.UserID)
	if err != nil {
		return data, err
	}
	data.Routines = toRoutinesData(result)
	data.Summary = routines.FormatSummary(result)

	durations, err := h.routines.GetDurations(ctx, session.UserID)
	if err != nil {
		return data, err
	}
	data.Durations = toRoutinesData(durations)

	kinds, err := h.routines.ActivityKinds(ctx, session.UserID, activityKinds)
	if err != nil {
		return data, fmt.Errorf("grouping activity kinds: %w", err)
	}
	data.Kinds = toKindsData(kinds)
	return data, nil
}

func (h *Handlers) syncAndDetect(ctx context.Context, client *strava.Client, userID string, force bool) error {
	if _, err := h.syncer.SyncActivities(ctx, client, userID, force); err != nil {
		return err
	}
	h.routines.Invalidate(userID)
	if _, err := h.routines.DetectAndPersist(ctx, userID); err != nil {
		return fmt.Errorf("detecting routines: %w", err)
	}
	if _, err := h.routines.DetectDurations(ctx, userID); err != nil {
		return fmt.Errorf("detecting routine durations: %w", err)
	}
	return nil
}

// client builds a Strava client on the session token. The returned token
// source reports refreshed tokens.
func (h *Handlers) client(ctx context.Context, session *Session) (*strava.Client, oauth2.TokenSource) {
	ts := h.oauth.TokenSource(ctx, session.Token)
	return strava.NewClient(oauth2.NewClient(ctx, ts), h.stravaOpts...), ts
}

// refreshToken stores a token the client refreshed during the request.
func (h *Handlers) refreshToken(ctx context.Context, session *Session, ts oauth2.TokenSource) {
	token, err := ts.Token()
	if err != nil || token.AccessToken == session.Token.AccessToken {
		return
	}
	h.sessions.UpdateToken(ctx, session.ID, token)
}

func (h *Handlers) render(w http.ResponseWriter, page string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.templates.Render(w, page, data); err != nil {
		h.log.WithError(err).WithField("page", page).Error("rendering template failed")
		http.Error(w, "Failed to render template", http.StatusInternalServerError)
	}
}

func flashFor(code string) *FlashMessage {
	switch code {
	case "synced":
		return &FlashMessage{Type: "success", Message: "Activities synced."}
	case "target_saved":
		return &FlashMessage{Type: "success", Message: "Weekly target saved."}
	case "too_recent":
		return &FlashMessage{Type: "warning", Message: "You synced recently. Try again in a few minutes."}
	case "sync_failed":
		return &FlashMessage{Type: "error", Message: "Sync failed. Please try again."}
	default:
		return nil
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
