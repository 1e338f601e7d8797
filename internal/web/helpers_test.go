package web

import (
	"context"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/justestif/go-fitness-pattern-finder/internal/db"
	"github.com/justestif/go-fitness-pattern-finder/internal/routines"
	"github.com/justestif/go-fitness-pattern-finder/internal/strava"
	activitysync "github.com/justestif/go-fitness-pattern-finder/internal/sync"
	assets "github.com/justestif/go-fitness-pattern-finder/web"
)

type fakeUsers struct {
	mu    sync.Mutex
	users map[string]*db.User
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{users: make(map[string]*db.User)}
}

func (f *fakeUsers) Get(_ context.Context, id string) (*db.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) Upsert(_ context.Context, user *db.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.users[user.ID]; ok {
		existing.DisplayName = user.DisplayName
		return nil
	}
	f.users[user.ID] = user
	return nil
}

func (f *fakeUsers) UpdateRecommendedHours(_ context.Context, id string, hours float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return db.ErrNotFound
	}
	u.RecommendedHours = hours
	return nil
}

func (f *fakeUsers) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[id]; !ok {
		return db.ErrNotFound
	}
	delete(f.users, id)
	return nil
}

type syncCall struct {
	userID string
	force  bool
}

type fakeSyncer struct {
	calls []syncCall
	err   error
}

func (f *fakeSyncer) SyncActivities(_ context.Context, _ activitysync.ActivitySource, userID string, force bool) (*activitysync.SyncResult, error) {
	f.calls = append(f.calls, syncCall{userID: userID, force: force})
	if f.err != nil {
		return nil, f.err
	}
	return &activitysync.SyncResult{}, nil
}

type fakeActivities struct {
	activities []db.Activity
	err        error
}

func (f *fakeActivities) ListForUser(_ context.Context, _ string) ([]db.Activity, error) {
	return f.activities, f.err
}

type fakeRoutines struct {
	result            *routines.DetectResult
	durations         *routines.DetectResult
	kinds             [][]db.Activity
	weekly            float64
	detected          []string
	detectedDurations []string
	invalidated       []string
	err               error
}

func (f *fakeRoutines) Get(_ context.Context, _ string) (*routines.DetectResult, error) {
	return f.result, f.err
}

func (f *fakeRoutines) GetDurations(_ context.Context, _ string) (*routines.DetectResult, error) {
	return f.durations, f.err
}

func (f *fakeRoutines) DetectAndPersist(_ context.Context, userID string) (*routines.DetectResult, error) {
	f.detected = append(f.detected, userID)
	return f.result, f.err
}

func (f *fakeRoutines) DetectDurations(_ context.Context, userID string) (*routines.DetectResult, error) {
	f.detectedDurations = append(f.detectedDurations, userID)
	return f.durations, f.err
}

func (f *fakeRoutines) ActivityKinds(_ context.Context, _ string, _ int) ([][]db.Activity, error) {
	return f.kinds, f.err
}

func (f *fakeRoutines) WeeklyHours(_ context.Context, _ string, _ time.Time) (float64, error) {
	return f.weekly, f.err
}

func (f *fakeRoutines) Invalidate(userID string) {
	f.invalidated = append(f.invalidated, userID)
}

// mondayResult is one weekly routine on Mondays at 06:30.
func mondayResult() *routines.DetectResult {
	first := time.Date(2021, time.January, 4, 6, 30, 0, 0, time.UTC)
	return &routines.DetectResult{
		Mode:            db.ModeTimeOfDay,
		Period:          7,
		TotalActivities: 12,
		OutlierCount:    2,
		Routines: []db.Routine{{
			PeriodDays:  7,
			CycleDay:    4,
			MeanValue:   6.5,
			FirstSeen:   first,
			LastSeen:    first.AddDate(0, 0, 63),
			ActivityIDs: []int64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
		}},
	}
}

// mondayDurations is one weekly routine of about 45 minutes.
func mondayDurations() *routines.DetectResult {
	r := mondayResult()
	r.Mode = db.ModeDuration
	r.Routines[0].MeanValue = 2700
	return r
}

// twoKinds is a pair of runs and a ride.
func twoKinds() [][]db.Activity {
	return [][]db.Activity{
		{
			{ID: 1, Type: "Run", Distance: 5000, MovingTime: 1500},
			{ID: 2, Type: "Run", Distance: 7000, MovingTime: 2100},
		},
		{
			{ID: 3, Type: "Ride", Distance: 40000, MovingTime: 5400},
		},
	}
}

type testEnv struct {
	server     *Server
	sessions   *MemorySessionStore
	users      *fakeUsers
	activities *fakeActivities
	syncer     *fakeSyncer
	routines   *fakeRoutines
	hook       *logtest.Hook
	strava     *httptest.Server
}

// newTestEnv wires a server to fakes and to a stand-in for Strava's OAuth
// and API endpoints.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /oauth/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"access","refresh_token":"refresh","token_type":"Bearer","expires_in":21600}`))
	})
	mux.HandleFunc("POST /oauth/deauthorize", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"access"}`))
	})
	mux.HandleFunc("GET /api/v3/athlete", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer access" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": 42, "firstname": "Ada", "lastname": "Lovelace", "city": "London", "country": "United Kingdom", "sex": "F", "weight": 58.5}`))
	})
	stravaServer := httptest.NewServer(mux)
	t.Cleanup(stravaServer.Close)

	templates, err := fs.Sub(assets.TemplatesFS, "templates")
	require.NoError(t, err)
	static, err := fs.Sub(assets.StaticFS, "static")
	require.NoError(t, err)

	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	env := &testEnv{
		sessions:   NewMemorySessionStore(),
		users:      newFakeUsers(),
		activities: &fakeActivities{},
		syncer:     &fakeSyncer{},
		routines:   &fakeRoutines{result: mondayResult(), durations: mondayDurations(), kinds: twoKinds(), weekly: 2.5},
		hook:       hook,
		strava:     stravaServer,
	}
	env.server, err = NewServer(ServerConfig{
		OAuth: &oauth2.Config{
			ClientID:     "client",
			ClientSecret: "secret",
			RedirectURL:  "http://127.0.0.1:8080/callback",
			Endpoint: oauth2.Endpoint{
				AuthURL:   stravaServer.URL + "/oauth/authorize",
				TokenURL:  stravaServer.URL + "/oauth/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
			Scopes: []string{"read,activity:read_all"},
		},
		TemplatesFS: templates,
		StaticFS:    static,
		Sessions:    env.sessions,
		Users:       env.users,
		Activities:  env.activities,
		Syncer:      env.syncer,
		Routines:    env.routines,
		StravaOptions: []strava.Option{
			strava.WithAPIURL(stravaServer.URL + "/api/v3"),
			strava.WithOAuthURL(stravaServer.URL + "/oauth"),
			strava.WithRetry(1, time.Millisecond),
		},
		Logger: logger,
	})
	require.NoError(t, err)
	return env
}

// signIn creates a user and a session for them.
func (e *testEnv) signIn(t *testing.T) *http.Cookie {
	t.Helper()
	e.users.users["42"] = &db.User{ID: "42", DisplayName: "Ada Lovelace", RecommendedHours: 5}
	session, err := e.sessions.Create(context.Background(), &oauth2.Token{
		AccessToken:  "access",
		RefreshToken: "refresh",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(time.Hour),
	}, "42", "Ada Lovelace", "read,activity:read_all")
	require.NoError(t, err)
	return &http.Cookie{Name: sessionCookieName, Value: session.ID}
}

func (e *testEnv) do(req *http.Request, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}
