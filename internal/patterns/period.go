package patterns

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/justestif/go-fitness-pattern-finder/internal/clustering"
)

// Sample is one observation to fold: when it happened and the value plotted
// against its position in the cycle.
type Sample struct {
	At        time.Time
	Secondary float64
}

// SearchConfig holds the parameters of one period search.
type SearchConfig struct {
	MaxPeriod   int     // Largest candidate period in days
	MinFraction float64 // Share of folded cycles a cluster must cover
	MaxDist     float64 // Neighbourhood radius in folded space
	Workers     int     // Concurrent candidates, 0 for GOMAXPROCS, 1 for sequential

	// MinPointsFloor raises the density threshold of every candidate to at
	// least this value. 0 keeps the computed threshold.
	MinPointsFloor int
}

// Validate checks the configuration.
func (c SearchConfig) Validate() error {
	if c.MaxPeriod < 1 {
		return fmt.Errorf("%w: max period must be at least 1, got %d", ErrValidation, c.MaxPeriod)
	}
	if c.MinFraction <= 0 || c.MinFraction > 1 {
		return fmt.Errorf("%w: min fraction must be in (0, 1], got %v", ErrValidation, c.MinFraction)
	}
	if c.MaxDist <= 0 {
		return fmt.Errorf("%w: max distance must be positive, got %v", ErrValidation, c.MaxDist)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must not be negative, got %d", ErrValidation, c.Workers)
	}
	if c.MinPointsFloor < 0 {
		return fmt.Errorf("%w: min points floor must not be negative, got %d", ErrValidation, c.MinPointsFloor)
	}
	return nil
}

// SearchOutcome is the result of a period search. Exhausted is set when no
// candidate period produced a cluster; Period and Labels are then empty.
type SearchOutcome struct {
	Period    int
	Labels    []clustering.Label
	Exhausted bool
}

// Err returns ErrSearchExhausted for an exhausted search and nil otherwise.
func (o SearchOutcome) Err() error {
	if o.Exhausted {
		return ErrSearchExhausted
	}
	return nil
}

// SpanDays returns the whole days between the earliest and latest sample.
func SpanDays(samples []Sample) int {
	if len(samples) == 0 {
		return 0
	}
	earliest, latest := samples[0].At, samples[0].At
	for _, s := range samples[1:] {
		if s.At.Before(earliest) {
			earliest = s.At
		}
		if s.At.After(latest) {
			latest = s.At
		}
	}
	return int(latest.Sub(earliest) / (24 * time.Hour))
}

// MinPoints returns the density threshold for period p: half of the number
// of cycles of length p that fit in spanDays, at the default fraction.
func MinPoints(spanDays, p int, fraction float64) int {
	return int(math.Floor(float64(spanDays) / float64(p) * fraction))
}

// Fold maps samples onto (day-of-year mod p, secondary).
func Fold(samples []Sample, p int) []clustering.Point {
	points := make([]clustering.Point, len(samples))
	for i, s := range samples {
		points[i] = clustering.Point{float64(s.At.YearDay() % p), s.Secondary}
	}
	return points
}

// SearchPeriod returns the smallest period in 1..cfg.MaxPeriod whose folded
// samples contain at least one density cluster, together with the labels of
// that clustering. Candidates are evaluated concurrently but the result is
// always the smallest successful period.
//
// The observed span must cover cfg.MaxPeriod days; otherwise the error wraps
// both ErrValidation and ErrSpanTooShort.
func SearchPeriod(ctx context.Context, samples []Sample, cfg SearchConfig) (SearchOutcome, error) {
	if err := cfg.Validate(); err != nil {
		return SearchOutcome{}, err
	}
	span := SpanDays(samples)
	if span < cfg.MaxPeriod {
		return SearchOutcome{}, fmt.Errorf("%w: %w: span of %d days is shorter than max period %d",
			ErrValidation, ErrSpanTooShort, span, cfg.MaxPeriod)
	}

	workers := cfg.Workers
	if workers == 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	workers = min(workers, cfg.MaxPeriod)

	if workers == 1 {
		return searchSequential(ctx, samples, span, cfg)
	}
	return searchParallel(ctx, samples, span, cfg, workers)
}

func searchSequential(ctx context.Context, samples []Sample, span int, cfg SearchConfig) (SearchOutcome, error) {
	for p := 1; p <= cfg.MaxPeriod; p++ {
		if err := ctx.Err(); err != nil {
			return SearchOutcome{}, err
		}
		labels, ok, err := evaluate(samples, p, span, cfg)
		if err != nil {
			return SearchOutcome{}, err
		}
		if ok {
			return SearchOutcome{Period: p, Labels: labels}, nil
		}
	}
	return SearchOutcome{Exhausted: true}, nil
}

func searchParallel(ctx context.Context, samples []Sample, span int, cfg SearchConfig, workers int) (SearchOutcome, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	var mu sync.Mutex
	best := cfg.MaxPeriod + 1
	var bestLabels []clustering.Label

	// beaten reports whether a smaller period has already succeeded.
	beaten := func(p int) bool {
		mu.Lock()
		defer mu.Unlock()
		return p > best
	}

	for p := 1; p <= cfg.MaxPeriod; p++ {
		if gctx.Err() != nil || beaten(p) {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if beaten(p) {
				return nil
			}
			labels, ok, err := evaluate(samples, p, span, cfg)
			if err != nil || !ok {
				return err
			}
			mu.Lock()
			if p < best {
				best = p
				bestLabels = labels
			}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return SearchOutcome{}, err
	}
	if err := ctx.Err(); err != nil {
		return SearchOutcome{}, err
	}
	if best > cfg.MaxPeriod {
		return SearchOutcome{Exhausted: true}, nil
	}
	return SearchOutcome{Period: best, Labels: bestLabels}, nil
}

// evaluate clusters the samples folded at period p. ok is true when at least
// one cluster was found.
func evaluate(samples []Sample, p, span int, cfg SearchConfig) (labels []clustering.Label, ok bool, err error) {
	minPoints := max(MinPoints(span, p, cfg.MinFraction), cfg.MinPointsFloor)
	if minPoints < 1 {
		return nil, false, nil
	}

	result, err := clustering.DBSCAN(Fold(samples, p), clustering.DensityConfig{
		MaxDist:   cfg.MaxDist,
		MinPoints: minPoints,
	})
	if err != nil {
		return nil, false, fmt.Errorf("clustering period %d: %w", p, err)
	}
	if result.NumClusters() == 0 {
		return nil, false, nil
	}
	return result.Labels, true, nil
}
