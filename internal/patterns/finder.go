package patterns

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/justestif/go-fitness-pattern-finder/internal/clustering"
	"github.com/justestif/go-fitness-pattern-finder/internal/timenorm"
)

// Finder runs period searches over timestamp collections.
type Finder struct {
	cfg Config
	log logrus.FieldLogger
}

// Option configures a Finder.
type Option func(*Finder)

// WithLogger sets the logger used at call boundaries.
func WithLogger(l logrus.FieldLogger) Option {
	return func(f *Finder) {
		if l != nil {
			f.log = l
		}
	}
}

// New creates a Finder. The configuration is validated once here.
func New(cfg Config, opts ...Option) (*Finder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	f := &Finder{
		cfg: cfg,
		log: logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Config returns the configuration the Finder was built with.
func (f *Finder) Config() Config {
	return f.cfg
}

// ClusterTimestamps finds the activity cycle of the given timestamps and
// groups them into usual time slots, using the hour of day as the folded
// value. Nested timestamp sequences are flattened depth-first.
func (f *Finder) ClusterTimestamps(ctx context.Context, items []timenorm.Timestamp) (Result[time.Time], error) {
	times, err := timenorm.Times(items, f.cfg.location())
	if err != nil {
		return Result[time.Time]{}, fmt.Errorf("normalizing timestamps: %w", err)
	}

	samples := make([]Sample, len(times))
	for i, t := range times {
		samples[i] = Sample{At: t, Secondary: hourOfDay(t)}
	}

	log := f.log.WithFields(logrus.Fields{"mode": "timestamps", "samples": len(samples)})
	return cluster(ctx, f, log, samples, times)
}

// ClusterTimeLengths finds the activity cycle using the duration of each
// activity as the folded value. Timestamps and durations are paired by
// position and must have the same length.
func (f *Finder) ClusterTimeLengths(ctx context.Context, items []timenorm.Timestamp, durations []timenorm.Elapsed) (Result[TimedLength], error) {
	if len(items) != len(durations) {
		return Result[TimedLength]{}, fmt.Errorf("%w: %d timestamps but %d durations", ErrValidation, len(items), len(durations))
	}

	times, err := timenorm.Times(items, f.cfg.location())
	if err != nil {
		return Result[TimedLength]{}, fmt.Errorf("normalizing timestamps: %w", err)
	}
	seconds, err := timenorm.Durations(durations)
	if err != nil {
		return Result[TimedLength]{}, fmt.Errorf("normalizing durations: %w", err)
	}
	if len(times) != len(seconds) {
		return Result[TimedLength]{}, fmt.Errorf("%w: %d flattened timestamps but %d durations", ErrValidation, len(times), len(seconds))
	}

	unit := f.cfg.DurationUnit.Seconds()
	samples := make([]Sample, len(times))
	pairs := make([]TimedLength, len(times))
	for i := range times {
		samples[i] = Sample{At: times[i], Secondary: seconds[i] / unit}
		pairs[i] = TimedLength{At: times[i], Seconds: seconds[i]}
	}

	log := f.log.WithFields(logrus.Fields{"mode": "time_lengths", "samples": len(samples)})
	return cluster(ctx, f, log, samples, pairs)
}

// cluster runs the search over samples and groups the matching items.
// items[i] corresponds to samples[i].
func cluster[T any](ctx context.Context, f *Finder, log logrus.FieldLogger, samples []Sample, items []T) (Result[T], error) {
	if len(samples) == 0 {
		log.Debug("no samples to search")
		return noPattern[T](), nil
	}
	log.Debug("input validated")

	if f.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.cfg.Timeout)
		defer cancel()
	}

	outcome, err := SearchPeriod(ctx, samples, f.cfg.search())
	if err == nil && !outcome.Exhausted {
		return group(log, outcome, items)
	}
	if err != nil && !errors.Is(err, ErrSpanTooShort) {
		return Result[T]{}, fmt.Errorf("searching full history: %w", err)
	}

	// Retry over the most recent samples only.
	keep := recent(samples, f.cfg.RecentWindow)
	recentSamples := make([]Sample, len(keep))
	recentItems := make([]T, len(keep))
	for i, idx := range keep {
		recentSamples[i] = samples[idx]
		recentItems[i] = items[idx]
	}
	sc, ok := f.cfg.recentSearch(recentSamples)
	if !ok {
		log.Info("no pattern found")
		return noPattern[T](), nil
	}
	log.WithFields(logrus.Fields{
		"kept":       len(keep),
		"max_period": sc.MaxPeriod,
	}).Info("fallback engaged")

	outcome, err = SearchPeriod(ctx, recentSamples, sc)
	switch {
	case errors.Is(err, ErrSpanTooShort), err == nil && outcome.Exhausted:
		log.Info("no pattern found")
		return noPattern[T](), nil
	case err != nil:
		return Result[T]{}, fmt.Errorf("searching recent history: %w", err)
	}
	return group(log, outcome, recentItems)
}

func group[T any](log logrus.FieldLogger, outcome SearchOutcome, items []T) (Result[T], error) {
	groups, err := clustering.Group(items, outcome.Labels)
	if err != nil {
		return Result[T]{}, fmt.Errorf("grouping items: %w", err)
	}
	log.WithFields(logrus.Fields{
		"period":   outcome.Period,
		"groups":   len(groups),
		"outliers": clustering.Result{Labels: outcome.Labels}.Outliers(),
	}).Info("period found")
	return Result[T]{Period: outcome.Period, Groups: groups}, nil
}

// recent returns the indexes of samples no older than window before the
// latest sample.
func recent(samples []Sample, window time.Duration) []int {
	latest := samples[0].At
	for _, s := range samples[1:] {
		if s.At.After(latest) {
			latest = s.At
		}
	}
	var keep []int
	for i, s := range samples {
		if latest.Sub(s.At) <= window {
			keep = append(keep, i)
		}
	}
	return keep
}

func hourOfDay(t time.Time) float64 {
	return float64(t.Hour()) + float64(t.Minute())/60
}
