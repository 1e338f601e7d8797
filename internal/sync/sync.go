// Package sync imports Strava activity history into PostgreSQL.
package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/justestif/go-fitness-pattern-finder/internal/db"
	"github.com/justestif/go-fitness-pattern-finder/internal/strava"
)

// Common errors.
var (
	// ErrSyncTooRecent is returned when sync is attempted within the cooldown period.
	ErrSyncTooRecent = errors.New("sync attempted too recently")
)

// DefaultSyncCooldown is the default time between allowed syncs.
const DefaultSyncCooldown = 15 * time.Minute

// ActivitySource lists activities in a time range. *strava.Client implements it.
type ActivitySource interface {
	Activities(ctx context.Context, after, before time.Time) ([]strava.Activity, error)
}

// store is the persistence the service needs.
type store interface {
	GetUser(ctx context.Context, userID string) (*db.User, error)
	ReplaceActivities(ctx context.Context, userID string, activities []db.Activity) error
	UpdateLastSync(ctx context.Context, userID string, at time.Time) error
}

// dbStore adapts *db.DB to store.
type dbStore struct {
	db *db.DB
}

func (s dbStore) GetUser(ctx context.Context, userID string) (*db.User, error) {
	return s.db.Users().Get(ctx, userID)
}

func (s dbStore) ReplaceActivities(ctx context.Context, userID string, activities []db.Activity) error {
	return s.db.Activities().ReplaceForUser(ctx, userID, activities)
}

func (s dbStore) UpdateLastSync(ctx context.Context, userID string, at time.Time) error {
	return s.db.Users().UpdateLastSync(ctx, userID, at)
}

// Service handles syncing activities from Strava to the database.
type Service struct {
	store        store
	syncCooldown time.Duration
	window       time.Duration
	now          func() time.Time
	log          logrus.FieldLogger
}

// Option configures a Service.
type Option func(*Service)

// WithSyncCooldown sets the minimum time between syncs.
func WithSyncCooldown(d time.Duration) Option {
	return func(s *Service) {
		s.syncCooldown = d
	}
}

// WithWindow sets how far back activities are imported.
func WithWindow(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.window = d
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// New creates a new sync service.
func New(database *db.DB, opts ...Option) *Service {
	return newService(dbStore{db: database}, opts...)
}

func newService(st store, opts ...Option) *Service {
	s := &Service{
		store:        st,
		syncCooldown: DefaultSyncCooldown,
		window:       strava.DefaultWindow,
		now:          time.Now,
		log:          logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SyncResult contains the result of a sync operation.
type SyncResult struct {
	ActivitiesCount int
	From            time.Time
	SyncedAt        time.Time
}

// CanSync checks if enough time has passed since the last sync.
// It also returns when the next sync will be allowed.
func (s *Service) CanSync(ctx context.Context, userID string) (bool, time.Time, error) {
	user, err := s.store.GetUser(ctx, userID)
	if errors.Is(err, db.ErrNotFound) {
		return true, time.Time{}, nil
	}
	if err != nil {
		return false, time.Time{}, fmt.Errorf("getting user: %w", err)
	}

	if user.LastSyncAt == nil {
		return true, time.Time{}, nil
	}

	next := user.LastSyncAt.Add(s.syncCooldown)
	if s.now().Before(next) {
		return false, next, nil
	}
	return true, time.Time{}, nil
}

// SyncActivities imports the user's activities of the sync window and
// replaces the stored ones. Returns ErrSyncTooRecent within the cooldown
// unless force is set, as it is for the first sync after login.
func (s *Service) SyncActivities(ctx context.Context, source ActivitySource, userID string, force bool) (*SyncResult, error) {
	if !force {
		canSync, next, err := s.CanSync(ctx, userID)
		if err != nil {
			return nil, err
		}
		if !canSync {
			return nil, fmt.Errorf("%w: next sync available at %s", ErrSyncTooRecent, next.Format(time.RFC3339))
		}
	}

	now := s.now()
	from := now.Add(-s.window)
	fetched, err := source.Activities(ctx, from, now)
	if err != nil {
		return nil, fmt.Errorf("fetching activities: %w", err)
	}

	activities := make([]db.Activity, len(fetched))
	for i, a := range fetched {
		activities[i] = toDBActivity(a, userID)
	}

	if err := s.store.ReplaceActivities(ctx, userID, activities); err != nil {
		return nil, fmt.Errorf("storing activities: %w", err)
	}
	if err := s.store.UpdateLastSync(ctx, userID, now); err != nil {
		return nil, fmt.Errorf("updating last sync: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"user_id":    userID,
		"activities": len(activities),
		"from":       from.Format(time.DateOnly),
	}).Info("activities synced")

	return &SyncResult{
		ActivitiesCount: len(activities),
		From:            from,
		SyncedAt:        now,
	}, nil
}

// toDBActivity keeps Strava's local start time, whose wall clock is what
// routines are detected on.
func toDBActivity(a strava.Activity, userID string) db.Activity {
	return db.Activity{
		ID:             a.ID,
		UserID:         userID,
		Name:           a.Name,
		Type:           a.Type,
		Distance:       a.Distance,
		MovingTime:     a.MovingTime,
		ElapsedTime:    a.ElapsedTime,
		StartDateLocal: a.StartDateLocal,
		Manual:         a.Manual,
		AverageSpeed:   a.AverageSpeed,
	}
}
