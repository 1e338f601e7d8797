// Package patterns detects repeating cycles in activity timestamps.
//
// A candidate period P folds every timestamp onto (day-of-year mod P, value),
// where value is the hour of day or a paired duration. The smallest P whose
// folded points form a density cluster is the detected cycle, and the
// clusters it produces are the usual activity slots.
package patterns

import (
	"errors"
	"time"
)

var (
	// ErrValidation is returned for inputs or parameters the search cannot use.
	ErrValidation = errors.New("validation failed")

	// ErrSpanTooShort is returned, together with ErrValidation, when the
	// observed history is shorter than the largest candidate period.
	ErrSpanTooShort = errors.New("period exceeds observed span")

	// ErrSearchExhausted reports that no candidate period produced a cluster.
	ErrSearchExhausted = errors.New("no period produced a cluster")
)

// Result is the outcome of a pattern search. Period is 0 and Groups is
// empty when no pattern was found.
type Result[T any] struct {
	Period int
	Groups [][]T
}

// Found reports whether a period was detected.
func (r Result[T]) Found() bool {
	return r.Period > 0
}

// TimedLength pairs an activity start with how long it lasted.
type TimedLength struct {
	At      time.Time
	Seconds float64
}

func noPattern[T any]() Result[T] {
	return Result[T]{Groups: [][]T{}}
}
