package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justestif/go-fitness-pattern-finder/internal/db"
	activitysync "github.com/justestif/go-fitness-pattern-finder/internal/sync"
)

func cookieNamed(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestHome(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Connect with Strava")

	rec = env.do(httptest.NewRequest(http.MethodGet, "/", nil), env.signIn(t))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Go to your dashboard")
	assert.Contains(t, rec.Body.String(), "Ada Lovelace")
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/auth/login", nil))
	require.Equal(t, http.StatusTemporaryRedirect, rec.Code)

	state := cookieNamed(rec, stateCookieName)
	require.NotNil(t, state)
	assert.NotEmpty(t, state.Value)

	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/oauth/authorize", loc.Path)
	assert.Equal(t, state.Value, loc.Query().Get("state"))
	assert.Equal(t, "auto", loc.Query().Get("approval_prompt"))
	assert.Equal(t, "client", loc.Query().Get("client_id"))
}

func TestCallback(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/callback?state=abc&code=xyz&scope=read,activity:read_all", nil)
	rec := env.do(req, &http.Cookie{Name: stateCookieName, Value: "abc"})

	require.Equal(t, http.StatusTemporaryRedirect, rec.Code, rec.Body.String())
	assert.Equal(t, "/dashboard", rec.Header().Get("Location"))

	sessionCookie := cookieNamed(rec, sessionCookieName)
	require.NotNil(t, sessionCookie)
	session := env.sessions.Get(context.Background(), sessionCookie.Value)
	require.NotNil(t, session)
	assert.Equal(t, "42", session.UserID)
	assert.Equal(t, "Ada Lovelace", session.UserName)
	assert.Equal(t, "read,activity:read_all", session.Scope)
	assert.Equal(t, "access", session.Token.AccessToken)

	user, err := env.users.Get(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", user.DisplayName)

	assert.Equal(t, []syncCall{{userID: "42", force: true}}, env.syncer.calls)
	assert.Equal(t, []string{"42"}, env.routines.detected)
	assert.Equal(t, []string{"42"}, env.routines.detectedDurations)
}

func TestCallback_Rejected(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		cookie *http.Cookie
	}{
		{name: "missing state cookie", query: "state=abc&code=xyz"},
		{name: "state mismatch", query: "state=abc&code=xyz", cookie: &http.Cookie{Name: stateCookieName, Value: "other"}},
		{name: "access denied", query: "state=abc&error=access_denied", cookie: &http.Cookie{Name: stateCookieName, Value: "abc"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			req := httptest.NewRequest(http.MethodGet, "/callback?"+tt.query, nil)
			var rec *httptest.ResponseRecorder
			if tt.cookie != nil {
				rec = env.do(req, tt.cookie)
			} else {
				rec = env.do(req)
			}
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, env.syncer.calls)
		})
	}
}

func TestDashboard(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	rec = env.do(httptest.NewRequest(http.MethodGet, "/dashboard?flash=synced", nil), env.signIn(t))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "2.5 h")
	assert.Contains(t, body, "of 5.0 h")
	assert.Contains(t, body, "You train every week.")
	assert.Contains(t, body, "Monday")
	assert.Contains(t, body, "around 06:30")
	assert.Contains(t, body, "Activities synced.")
	assert.Contains(t, body, "Found 1 routine every week from 12 activities")

	assert.Contains(t, body, "How long you train")
	assert.Contains(t, body, "about 45m0s")

	assert.Contains(t, body, "Kinds of activity")
	assert.Contains(t, body, "2 activities, about 6.0 km in 30m")
	assert.Contains(t, body, "1 activities, about 40.0 km in 1h30m")
}

func TestDashboard_NoKinds(t *testing.T) {
	env := newTestEnv(t)
	env.routines.kinds = [][]db.Activity{}

	rec := env.do(httptest.NewRequest(http.MethodGet, "/dashboard", nil), env.signIn(t))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Sync some activities to see what kinds of training you do.")
}

func TestDashboard_Error(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.signIn(t)
	env.routines.err = fmt.Errorf("boom")

	rec := env.do(httptest.NewRequest(http.MethodGet, "/dashboard", nil), cookie)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRoutinesPartial(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/dashboard/routines", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/dashboard/routines", nil), env.signIn(t))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "You train every week.")
	assert.NotContains(t, rec.Body.String(), "<html")
}

func TestSync(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		wantLocation string
		wantDetect   bool
	}{
		{name: "synced", wantLocation: "/dashboard?flash=synced", wantDetect: true},
		{name: "too recent", err: fmt.Errorf("%w: later", activitysync.ErrSyncTooRecent), wantLocation: "/dashboard?flash=too_recent"},
		{name: "failed", err: fmt.Errorf("boom"), wantLocation: "/dashboard?flash=sync_failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.syncer.err = tt.err

			rec := env.do(httptest.NewRequest(http.MethodPost, "/sync", nil), env.signIn(t))
			assert.Equal(t, http.StatusSeeOther, rec.Code)
			assert.Equal(t, tt.wantLocation, rec.Header().Get("Location"))
			assert.Equal(t, []syncCall{{userID: "42", force: false}}, env.syncer.calls)
			if tt.wantDetect {
				assert.Equal(t, []string{"42"}, env.routines.invalidated)
				assert.Equal(t, []string{"42"}, env.routines.detected)
				assert.Equal(t, []string{"42"}, env.routines.detectedDurations)
			} else {
				assert.Empty(t, env.routines.detected)
				assert.Empty(t, env.routines.detectedDurations)
			}
		})
	}
}

func TestSetTarget(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.signIn(t)

	post := func(form url.Values) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/settings/target", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return env.do(req, cookie)
	}

	rec := post(url.Values{"hours": {"7.5"}})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/dashboard?flash=target_saved", rec.Header().Get("Location"))
	assert.Equal(t, 7.5, env.users.users["42"].RecommendedHours)

	for _, bad := range []string{"", "abc", "-1", "500"} {
		assert.Equal(t, http.StatusBadRequest, post(url.Values{"hours": {bad}}).Code, "hours %q", bad)
	}
	assert.Equal(t, 7.5, env.users.users["42"].RecommendedHours)

	tests := []struct {
		next string
		want string
	}{
		{next: "/settings", want: "/settings?flash=target_saved"},
		{next: "https://evil.example", want: "/dashboard?flash=target_saved"},
		{next: "//evil.example", want: "/dashboard?flash=target_saved"},
	}
	for _, tt := range tests {
		rec := post(url.Values{"hours": {"4"}, "next": {tt.next}})
		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, tt.want, rec.Header().Get("Location"), "next %q", tt.next)
	}
}

func TestAPIRoutines(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/routines", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/routines", nil), env.signIn(t))
	require.Equal(t, http.StatusOK, rec.Code)

	var got RoutinesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.True(t, got.Times.Found)
	assert.Equal(t, 7, got.Times.Period)
	assert.Equal(t, "every week", got.Times.Cycle)
	require.Len(t, got.Times.Routines, 1)
	assert.Equal(t, "Monday", got.Times.Routines[0].Day)
	assert.Equal(t, "around 06:30", got.Times.Routines[0].Time)
	assert.Equal(t, 10, got.Times.Routines[0].Activities)

	assert.True(t, got.Durations.Found)
	require.Len(t, got.Durations.Routines, 1)
	assert.Equal(t, "about 45m0s", got.Durations.Routines[0].Time)
	assert.Equal(t, 2700.0, got.Durations.Routines[0].MeanValue)

	assert.Equal(t, []KindData{
		{Types: []string{"Run"}, Activities: 2, MeanDistanceKm: 6, MeanMovingTime: 1800},
		{Types: []string{"Ride"}, Activities: 1, MeanDistanceKm: 40, MeanMovingTime: 5400},
	}, got.Kinds)
}

func TestAPIRoutines_Error(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.signIn(t)
	env.routines.err = fmt.Errorf("boom")

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/routines", nil), cookie)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "failed to load routines")
}

func TestActivities(t *testing.T) {
	env := newTestEnv(t)
	start := time.Date(2024, time.March, 4, 6, 30, 0, 0, time.UTC)
	env.activities.activities = []db.Activity{
		{ID: 1, Name: "Morning Run", Type: "Run", Distance: 10000, MovingTime: 3000, AverageSpeed: 3.333, StartDateLocal: start},
		{ID: 2, Name: "Treadmill", Type: "Run", Distance: 5000, MovingTime: 1500, Manual: true, StartDateLocal: start.AddDate(0, 0, 2)},
	}

	rec := env.do(httptest.NewRequest(http.MethodGet, "/activities", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	rec = env.do(httptest.NewRequest(http.MethodGet, "/activities", nil), env.signIn(t))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Mar 4, 2024 06:30")
	assert.Contains(t, body, "10.0 km")
	assert.Contains(t, body, "50m")
	assert.Contains(t, body, "12.0 km/h")
	assert.Contains(t, body, "(manual)")
	assert.Less(t, strings.Index(body, "Treadmill"), strings.Index(body, "Morning Run"), "newest first")
}

func TestActivities_Empty(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/activities", nil), env.signIn(t))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "No activities imported yet.")
}

func TestActivities_Error(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.signIn(t)
	env.activities.err = fmt.Errorf("boom")

	rec := env.do(httptest.NewRequest(http.MethodGet, "/activities", nil), cookie)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestProfile(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/profile", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/profile", nil), env.signIn(t))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Ada Lovelace")
	assert.Contains(t, body, "London, United Kingdom")
	assert.Contains(t, body, "58.5 kg")
	assert.Contains(t, body, "https://www.strava.com/athletes/42")
}

func TestProfile_StravaError(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.signIn(t)
	session := env.sessions.Get(context.Background(), cookie.Value)
	require.NotNil(t, session)
	session.Token.AccessToken = "revoked"
	session.Token.RefreshToken = ""

	rec := env.do(httptest.NewRequest(http.MethodGet, "/profile", nil), cookie)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestSettings(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/settings", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)

	cookie := env.signIn(t)
	synced := time.Date(2024, time.March, 5, 9, 0, 0, 0, time.UTC)
	env.users.users["42"].LastSyncAt = &synced
	env.users.users["42"].CreatedAt = time.Date(2023, time.January, 2, 0, 0, 0, 0, time.UTC)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/settings?flash=target_saved", nil), cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Ada Lovelace")
	assert.Contains(t, body, "read,activity:read_all")
	assert.Contains(t, body, "Jan 2, 2023")
	assert.Contains(t, body, "Mar 5, 2024")
	assert.Contains(t, body, `value="5"`)
	assert.Contains(t, body, `name="next" value="/settings"`)
	assert.Contains(t, body, "Weekly target saved.")
}

func TestSettings_UserGone(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.signIn(t)
	delete(env.users.users, "42")

	rec := env.do(httptest.NewRequest(http.MethodGet, "/settings", nil), cookie)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.signIn(t)

	rec := env.do(httptest.NewRequest(http.MethodPost, "/auth/logout", nil), cookie)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Nil(t, env.sessions.Get(context.Background(), cookie.Value))

	cleared := cookieNamed(rec, sessionCookieName)
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)
	assert.Negative(t, cleared.MaxAge)
}

func TestDisconnect(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.signIn(t)

	rec := env.do(httptest.NewRequest(http.MethodPost, "/auth/disconnect", nil), cookie)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Nil(t, env.sessions.Get(context.Background(), cookie.Value))
	assert.NotContains(t, env.users.users, "42")
	assert.Equal(t, []string{"42"}, env.routines.invalidated)
}

func TestStaticAndRequestLog(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/static/style.css", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "--accent")

	rec = env.do(httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	entry := env.hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "request", entry.Message)
	assert.Equal(t, http.StatusOK, entry.Data["status"])
	assert.Equal(t, "/", entry.Data["path"])
}

func TestNewServer_MissingDependencies(t *testing.T) {
	_, err := NewServer(ServerConfig{})
	require.Error(t, err)
}
