// Package routines detects and persists a user's usual activity slots.
package routines

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/maypok86/otter/v2"
	"github.com/sirupsen/logrus"

	"github.com/justestif/go-fitness-pattern-finder/internal/clustering"
	"github.com/justestif/go-fitness-pattern-finder/internal/db"
	"github.com/justestif/go-fitness-pattern-finder/internal/patterns"
	"github.com/justestif/go-fitness-pattern-finder/internal/tabular"
	"github.com/justestif/go-fitness-pattern-finder/internal/timenorm"
)

const (
	// DefaultCacheTTL is how long a detection result is served from memory.
	DefaultCacheTTL = 30 * time.Minute

	cacheSize = 10_000
)

// store is the persistence the service needs.
type store interface {
	ListActivities(ctx context.Context, userID string) ([]db.Activity, error)
	ListActivitiesBetween(ctx context.Context, userID string, from, to time.Time) ([]db.Activity, error)
	ReplaceRoutines(ctx context.Context, userID, mode string, routines []db.Routine) error
	ListRoutines(ctx context.Context, userID, mode string) ([]db.Routine, error)
}

type dbStore struct {
	db *db.DB
}

func (s dbStore) ListActivities(ctx context.Context, userID string) ([]db.Activity, error) {
	return s.db.Activities().ListForUser(ctx, userID)
}

func (s dbStore) ListActivitiesBetween(ctx context.Context, userID string, from, to time.Time) ([]db.Activity, error) {
	return s.db.Activities().ListBetween(ctx, userID, from, to)
}

func (s dbStore) ReplaceRoutines(ctx context.Context, userID, mode string, routines []db.Routine) error {
	return s.db.Routines().ReplaceForUser(ctx, userID, mode, routines)
}

func (s dbStore) ListRoutines(ctx context.Context, userID, mode string) ([]db.Routine, error) {
	return s.db.Routines().ListForUser(ctx, userID, mode)
}

// Service handles routine detection and persistence.
type Service struct {
	store  store
	finder *patterns.Finder
	cache  *otter.Cache[string, *DetectResult]
	loc    *time.Location // Where days and hours are read, as in finder
	log    logrus.FieldLogger
}

// Option configures a Service.
type Option func(*serviceOptions)

type serviceOptions struct {
	ttl time.Duration
	log logrus.FieldLogger
}

// WithCacheTTL sets how long detection results stay cached.
func WithCacheTTL(d time.Duration) Option {
	return func(o *serviceOptions) {
		if d > 0 {
			o.ttl = d
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *serviceOptions) {
		if l != nil {
			o.log = l
		}
	}
}

// New creates a routine service that detects with finder.
func New(database *db.DB, finder *patterns.Finder, opts ...Option) *Service {
	return newService(dbStore{db: database}, finder, opts...)
}

func newService(st store, finder *patterns.Finder, opts ...Option) *Service {
	o := serviceOptions{
		ttl: DefaultCacheTTL,
		log: logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	loc := finder.Config().Location
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		store:  st,
		finder: finder,
		cache: otter.Must(&otter.Options[string, *DetectResult]{
			MaximumSize:      cacheSize,
			ExpiryCalculator: otter.ExpiryWriting[string, *DetectResult](o.ttl),
		}),
		loc: loc,
		log: o.log,
	}
}

// DetectResult contains the outcome of routine detection.
type DetectResult struct {
	Mode            string       // db.ModeTimeOfDay or db.ModeDuration
	Period          int          // Detected cycle in days, 0 when none
	Routines        []db.Routine // One per usual slot, in slot order
	OutlierCount    int          // Activities that fit no slot
	TotalActivities int
}

// Found reports whether a cycle was detected.
func (r *DetectResult) Found() bool {
	return r.Period > 0
}

// DetectAndPersist finds the user's usual activity times and saves them,
// replacing earlier time-of-day routines.
func (s *Service) DetectAndPersist(ctx context.Context, userID string) (*DetectResult, error) {
	activities, err := s.store.ListActivities(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading activities: %w", err)
	}

	starts := make([]time.Time, len(activities))
	for i, a := range activities {
		starts[i] = a.StartDateLocal
	}
	found, err := s.finder.ClusterTimestamps(ctx, timenorm.FromTimes(starts))
	if err != nil {
		return nil, fmt.Errorf("detecting routines: %w", err)
	}

	// Detected times are whole seconds, so match on seconds.
	groups := regroup(activities, found.Groups, func(a db.Activity) int64 {
		return a.StartDateLocal.Unix()
	}, func(t time.Time) int64 {
		return t.Unix()
	})
	return s.persist(ctx, userID, db.ModeTimeOfDay, found.Period, activities, groups, func(a db.Activity) float64 {
		return hourOfDay(a.StartDateLocal.In(s.loc))
	})
}

// DetectDurations finds the user's usual activity lengths and saves them,
// replacing earlier duration routines.
func (s *Service) DetectDurations(ctx context.Context, userID string) (*DetectResult, error) {
	activities, err := s.store.ListActivities(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading activities: %w", err)
	}

	starts := make([]time.Time, len(activities))
	moving := make([]time.Duration, len(activities))
	for i, a := range activities {
		starts[i] = a.StartDateLocal
		moving[i] = time.Duration(a.MovingTime) * time.Second
	}
	found, err := s.finder.ClusterTimeLengths(ctx, timenorm.FromTimes(starts), timenorm.FromDurations(moving))
	if err != nil {
		return nil, fmt.Errorf("detecting routine durations: %w", err)
	}

	type key struct {
		at      int64
		seconds int
	}
	groups := regroup(activities, found.Groups, func(a db.Activity) key {
		return key{a.StartDateLocal.Unix(), a.MovingTime}
	}, func(tl patterns.TimedLength) key {
		return key{tl.At.Unix(), int(tl.Seconds)}
	})
	return s.persist(ctx, userID, db.ModeDuration, found.Period, activities, groups, func(a db.Activity) float64 {
		return float64(a.MovingTime)
	})
}

// Get returns the user's time-of-day routines, from the cache when
// possible.
func (s *Service) Get(ctx context.Context, userID string) (*DetectResult, error) {
	return s.get(ctx, userID, db.ModeTimeOfDay)
}

// GetDurations returns the user's duration routines, from the cache when
// possible.
func (s *Service) GetDurations(ctx context.Context, userID string) (*DetectResult, error) {
	return s.get(ctx, userID, db.ModeDuration)
}

// Invalidate drops cached results for the user, as after a sync.
func (s *Service) Invalidate(userID string) {
	s.cache.Invalidate(cacheKey(userID, db.ModeTimeOfDay))
	s.cache.Invalidate(cacheKey(userID, db.ModeDuration))
}

// WeeklyHours returns the moving time of the seven days before now, in
// hours rounded to two decimals.
func (s *Service) WeeklyHours(ctx context.Context, userID string, now time.Time) (float64, error) {
	activities, err := s.store.ListActivitiesBetween(ctx, userID, now.AddDate(0, 0, -7), now)
	if err != nil {
		return 0, fmt.Errorf("loading weekly activities: %w", err)
	}
	var seconds int
	for _, a := range activities {
		seconds += a.MovingTime
	}
	return math.Round(float64(seconds)/3600*100) / 100, nil
}

// ActivityKinds partitions the user's activities into at most k kinds by
// sport type, distance and moving time.
func (s *Service) ActivityKinds(ctx context.Context, userID string, k int) ([][]db.Activity, error) {
	activities, err := s.store.ListActivities(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading activities: %w", err)
	}
	if len(activities) == 0 {
		return [][]db.Activity{}, nil
	}

	rows := make([]map[string]any, len(activities))
	for i, a := range activities {
		rows[i] = map[string]any{
			"type":        a.Type,
			"distance":    a.Distance,
			"moving_time": a.MovingTime,
		}
	}
	table, err := tabular.EncodeMaps(rows)
	if err != nil {
		return nil, fmt.Errorf("encoding activities: %w", err)
	}

	result, err := clustering.KMeans(table.Normalized().Points(), k)
	if err != nil {
		return nil, fmt.Errorf("partitioning activities: %w", err)
	}
	return clustering.GroupResult(activities, result)
}

func (s *Service) get(ctx context.Context, userID, mode string) (*DetectResult, error) {
	key := cacheKey(userID, mode)
	if r, ok := s.cache.GetIfPresent(key); ok {
		return r, nil
	}

	stored, err := s.store.ListRoutines(ctx, userID, mode)
	if err != nil {
		return nil, fmt.Errorf("getting user routines: %w", err)
	}
	r := &DetectResult{Mode: mode, Routines: stored}
	for _, rt := range stored {
		r.Period = rt.PeriodDays
		r.TotalActivities += len(rt.ActivityIDs)
	}
	s.cache.Set(key, r)
	return r, nil
}

// persist turns activity groups into routines, stores and caches them.
func (s *Service) persist(ctx context.Context, userID, mode string, period int, activities []db.Activity, groups [][]db.Activity, value func(db.Activity) float64) (*DetectResult, error) {
	routines := make([]db.Routine, 0, len(groups))
	grouped := 0
	for _, g := range groups {
		if len(g) == 0 {
			continue
		}
		slot := len(routines)
		rt, err := toRoutine(g, slot, period, s.loc, value)
		if err != nil {
			return nil, fmt.Errorf("building routine %d: %w", slot, err)
		}
		routines = append(routines, rt)
		grouped += len(g)
	}

	if err := s.store.ReplaceRoutines(ctx, userID, mode, routines); err != nil {
		return nil, fmt.Errorf("saving routines: %w", err)
	}

	result := &DetectResult{
		Mode:            mode,
		Period:          period,
		Routines:        routines,
		OutlierCount:    len(activities) - grouped,
		TotalActivities: len(activities),
	}
	s.cache.Set(cacheKey(userID, mode), result)

	s.log.WithFields(logrus.Fields{
		"user_id":  userID,
		"mode":     mode,
		"period":   period,
		"routines": len(routines),
	}).Info("routines detected")
	return result, nil
}

// toRoutine summarizes one group of activities.
func toRoutine(group []db.Activity, slot, period int, loc *time.Location, value func(db.Activity) float64) (db.Routine, error) {
	points := make([]clustering.Point, len(group))
	ids := make([]int64, len(group))
	first, last := group[0].StartDateLocal, group[0].StartDateLocal
	for i, a := range group {
		points[i] = clustering.Point{value(a)}
		ids[i] = a.ID
		if a.StartDateLocal.Before(first) {
			first = a.StartDateLocal
		}
		if a.StartDateLocal.After(last) {
			last = a.StartDateLocal
		}
	}
	center, err := clustering.Center(points)
	if err != nil {
		return db.Routine{}, err
	}
	return db.Routine{
		PeriodDays:  period,
		Slot:        slot,
		CycleDay:    group[0].StartDateLocal.In(loc).YearDay() % period,
		MeanValue:   center[0],
		FirstSeen:   first,
		LastSeen:    last,
		ActivityIDs: ids,
	}, nil
}

// regroup maps groups of detected items back to the activities they came
// from. Activities with equal keys are handed out in input order.
func regroup[T any, K comparable](activities []db.Activity, groups [][]T, activityKey func(db.Activity) K, itemKey func(T) K) [][]db.Activity {
	byKey := make(map[K][]db.Activity)
	for _, a := range activities {
		k := activityKey(a)
		byKey[k] = append(byKey[k], a)
	}

	out := make([][]db.Activity, 0, len(groups))
	for _, g := range groups {
		matched := make([]db.Activity, 0, len(g))
		for _, item := range g {
			k := itemKey(item)
			if queue := byKey[k]; len(queue) > 0 {
				matched = append(matched, queue[0])
				byKey[k] = queue[1:]
			}
		}
		out = append(out, matched)
	}
	return out
}

func cacheKey(userID, mode string) string {
	return userID + ":" + mode
}

func hourOfDay(t time.Time) float64 {
	return float64(t.Hour()) + float64(t.Minute())/60
}
