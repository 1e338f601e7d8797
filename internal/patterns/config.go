package patterns

import (
	"fmt"
	"runtime"
	"time"
)

// DefaultMaxPeriod is the largest cycle length, in days, tried by default.
const DefaultMaxPeriod = 30

// Config holds pattern search parameters.
type Config struct {
	MaxPeriod    int            // Largest candidate period in days (default: 30)
	MinFraction  float64        // Share of folded cycles a slot must appear in (default: 0.5)
	MaxDist      float64        // Neighbourhood radius in folded space (default: 0.5)
	RecentWindow time.Duration  // History kept when the full search fails (default: 48h)
	Workers      int            // Candidate periods evaluated at once, 0 for GOMAXPROCS
	Timeout      time.Duration  // Deadline for one call, 0 for none
	Location     *time.Location // Zone for day-of-year and hour of day (default: UTC)
	DurationUnit time.Duration  // Unit of the duration feature (default: 1s)
}

// DefaultConfig returns the recommended default configuration.
func DefaultConfig() Config {
	return Config{
		MaxPeriod:    DefaultMaxPeriod,
		MinFraction:  0.5,
		MaxDist:      0.5,
		RecentWindow: 48 * time.Hour,
		Workers:      runtime.GOMAXPROCS(0),
		Location:     time.UTC,
		DurationUnit: time.Second,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if err := c.search().Validate(); err != nil {
		return err
	}
	if c.RecentWindow < 0 {
		return fmt.Errorf("%w: recent window must not be negative, got %s", ErrValidation, c.RecentWindow)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("%w: timeout must not be negative, got %s", ErrValidation, c.Timeout)
	}
	if c.DurationUnit <= 0 {
		return fmt.Errorf("%w: duration unit must be positive, got %s", ErrValidation, c.DurationUnit)
	}
	return nil
}

// search returns the parameters for a full-history search.
func (c Config) search() SearchConfig {
	return SearchConfig{
		MaxPeriod:   c.MaxPeriod,
		MinFraction: c.MinFraction,
		MaxDist:     c.MaxDist,
		Workers:     c.Workers,
	}
}

// recentSearch returns the parameters for the fallback search over the
// retained samples. The period is capped by the whole days of RecentWindow
// and of the samples' own span, and every candidate needs at least one point.
// ok is false when the window is shorter than a day.
func (c Config) recentSearch(samples []Sample) (sc SearchConfig, ok bool) {
	sc = c.search()
	days := int(c.RecentWindow / (24 * time.Hour))
	if days < 1 {
		return sc, false
	}
	sc.MaxPeriod = min(sc.MaxPeriod, days, max(1, SpanDays(samples)))
	sc.MinPointsFloor = 1
	return sc, true
}

func (c Config) location() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}
