package routines

import (
	"context"
	"errors"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justestif/go-fitness-pattern-finder/internal/db"
	"github.com/justestif/go-fitness-pattern-finder/internal/patterns"
)

type fakeStore struct {
	activities []db.Activity
	routines   map[string][]db.Routine
	listCalls  int
	err        error
}

func newFakeStore(activities []db.Activity) *fakeStore {
	return &fakeStore{activities: activities, routines: make(map[string][]db.Routine)}
}

func (f *fakeStore) ListActivities(_ context.Context, _ string) ([]db.Activity, error) {
	return f.activities, f.err
}

func (f *fakeStore) ListActivitiesBetween(_ context.Context, _ string, from, to time.Time) ([]db.Activity, error) {
	var out []db.Activity
	for _, a := range f.activities {
		if !a.StartDateLocal.Before(from) && a.StartDateLocal.Before(to) {
			out = append(out, a)
		}
	}
	return out, f.err
}

func (f *fakeStore) ReplaceRoutines(_ context.Context, _ string, mode string, routines []db.Routine) error {
	if f.err != nil {
		return f.err
	}
	f.routines[mode] = routines
	return nil
}

func (f *fakeStore) ListRoutines(_ context.Context, _ string, mode string) ([]db.Routine, error) {
	f.listCalls++
	return f.routines[mode], f.err
}

func newTestService(t *testing.T, st store) *Service {
	t.Helper()
	logger, _ := logtest.NewNullLogger()
	finder, err := patterns.New(patterns.DefaultConfig(), patterns.WithLogger(logger))
	require.NoError(t, err)
	return newService(st, finder, WithLogger(logger))
}

// mondayRuns returns 30 half-hour runs at 06:30 on consecutive Mondays and
// five long rides in the afternoon or evening on other days.
func mondayRuns() []db.Activity {
	start := time.Date(2021, time.January, 4, 6, 30, 0, 0, time.UTC)
	var out []db.Activity
	for w := 0; w < 30; w++ {
		out = append(out, db.Activity{
			ID:             int64(100 + w),
			Name:           "Morning Run",
			Type:           "Run",
			Distance:       5000,
			MovingTime:     1800,
			StartDateLocal: start.AddDate(0, 0, 7*w),
		})
	}
	offsets := []struct{ day, hour int }{{10, 15}, {45, 18}, {80, 20}, {120, 14}, {170, 21}}
	for i, o := range offsets {
		out = append(out, db.Activity{
			ID:             int64(200 + i),
			Name:           "Long Ride",
			Type:           "Ride",
			Distance:       60000,
			MovingTime:     10800 + 1200*i,
			StartDateLocal: time.Date(2021, time.January, 4+o.day, o.hour, 0, 0, 0, time.UTC),
		})
	}
	return out
}

func TestService_DetectAndPersist(t *testing.T) {
	st := newFakeStore(mondayRuns())
	s := newTestService(t, st)

	got, err := s.DetectAndPersist(context.Background(), "u1")
	require.NoError(t, err)

	assert.True(t, got.Found())
	assert.Equal(t, db.ModeTimeOfDay, got.Mode)
	assert.Equal(t, 7, got.Period)
	assert.Equal(t, 35, got.TotalActivities)
	assert.Equal(t, 5, got.OutlierCount)
	require.Len(t, got.Routines, 1)

	rt := got.Routines[0]
	assert.Equal(t, 0, rt.Slot)
	assert.Equal(t, 4, rt.CycleDay)
	assert.InDelta(t, 6.5, rt.MeanValue, 1e-9)
	assert.Len(t, rt.ActivityIDs, 30)
	assert.Equal(t, int64(100), rt.ActivityIDs[0])
	assert.True(t, time.Date(2021, time.January, 4, 6, 30, 0, 0, time.UTC).Equal(rt.FirstSeen))
	assert.True(t, time.Date(2021, time.July, 26, 6, 30, 0, 0, time.UTC).Equal(rt.LastSeen))

	assert.Len(t, st.routines[db.ModeTimeOfDay], 1)

	// Served from the cache.
	cached, err := s.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Same(t, got, cached)
	assert.Zero(t, st.listCalls)
}

func TestService_DetectDurations(t *testing.T) {
	st := newFakeStore(mondayRuns())
	s := newTestService(t, st)

	got, err := s.DetectDurations(context.Background(), "u1")
	require.NoError(t, err)

	assert.Equal(t, db.ModeDuration, got.Mode)
	assert.Equal(t, 7, got.Period)
	require.Len(t, got.Routines, 1)
	assert.InDelta(t, 1800, got.Routines[0].MeanValue, 1e-9)
	assert.Len(t, got.Routines[0].ActivityIDs, 30)
	assert.Len(t, st.routines[db.ModeDuration], 1)
}

func TestService_Detect_SubSecondStarts(t *testing.T) {
	activities := mondayRuns()
	for i := range activities {
		activities[i].StartDateLocal = activities[i].StartDateLocal.Add(time.Duration(i+1) * 123 * time.Millisecond)
	}
	s := newTestService(t, newFakeStore(activities))

	got, err := s.DetectAndPersist(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, got.Routines, 1)
	assert.Len(t, got.Routines[0].ActivityIDs, 30)
	assert.Equal(t, 5, got.OutlierCount)

	durations, err := s.DetectDurations(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, durations.Routines, 1)
	assert.Len(t, durations.Routines[0].ActivityIDs, 30)
}

func TestService_DetectAndPersist_NoActivities(t *testing.T) {
	st := newFakeStore(nil)
	s := newTestService(t, st)

	got, err := s.DetectAndPersist(context.Background(), "u1")
	require.NoError(t, err)
	assert.False(t, got.Found())
	assert.Empty(t, got.Routines)
	assert.Zero(t, got.TotalActivities)
}

func TestService_Get_LoadsStoredRoutines(t *testing.T) {
	st := newFakeStore(nil)
	st.routines[db.ModeTimeOfDay] = []db.Routine{
		{PeriodDays: 7, Slot: 0, ActivityIDs: []int64{1, 2, 3}},
		{PeriodDays: 7, Slot: 1, ActivityIDs: []int64{4, 5}},
	}
	s := newTestService(t, st)

	got, err := s.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 7, got.Period)
	assert.Equal(t, 5, got.TotalActivities)
	assert.Len(t, got.Routines, 2)

	_, err = s.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, st.listCalls)

	s.Invalidate("u1")
	_, err = s.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, st.listCalls)
}

func TestService_WeeklyHours(t *testing.T) {
	now := time.Date(2024, time.May, 10, 12, 0, 0, 0, time.UTC)
	st := newFakeStore([]db.Activity{
		{ID: 1, MovingTime: 3600, StartDateLocal: now.AddDate(0, 0, -1)},
		{ID: 2, MovingTime: 1800, StartDateLocal: now.AddDate(0, 0, -6)},
		{ID: 3, MovingTime: 1234, StartDateLocal: now.Add(-time.Hour)},
		{ID: 4, MovingTime: 7200, StartDateLocal: now.AddDate(0, 0, -8)},
	})
	s := newTestService(t, st)

	got, err := s.WeeklyHours(context.Background(), "u1", now)
	require.NoError(t, err)
	assert.Equal(t, 1.84, got)
}

func TestService_ActivityKinds(t *testing.T) {
	start := time.Date(2024, time.March, 1, 7, 0, 0, 0, time.UTC)
	var activities []db.Activity
	for i := 0; i < 10; i++ {
		a := db.Activity{ID: int64(i), StartDateLocal: start.AddDate(0, 0, i)}
		if i%2 == 0 {
			a.Type, a.Distance, a.MovingTime = "Run", 5000, 1800
		} else {
			a.Type, a.Distance, a.MovingTime = "Ride", 40000, 5400
		}
		activities = append(activities, a)
	}
	s := newTestService(t, newFakeStore(activities))

	kinds, err := s.ActivityKinds(context.Background(), "u1", 2)
	require.NoError(t, err)
	require.Len(t, kinds, 2)
	for _, kind := range kinds {
		require.Len(t, kind, 5)
		for _, a := range kind {
			assert.Equal(t, kind[0].Type, a.Type)
		}
	}
	assert.Equal(t, "Run", kinds[0][0].Type)

	empty, err := newTestService(t, newFakeStore(nil)).ActivityKinds(context.Background(), "u1", 2)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestService_StoreErrors(t *testing.T) {
	boom := errors.New("boom")
	st := newFakeStore(mondayRuns())
	st.err = boom
	s := newTestService(t, st)

	_, err := s.DetectAndPersist(context.Background(), "u1")
	require.ErrorIs(t, err, boom)
	_, err = s.DetectDurations(context.Background(), "u1")
	require.ErrorIs(t, err, boom)
	_, err = s.WeeklyHours(context.Background(), "u1", time.Now())
	require.ErrorIs(t, err, boom)
	_, err = s.Get(context.Background(), "u1")
	require.ErrorIs(t, err, boom)
}
