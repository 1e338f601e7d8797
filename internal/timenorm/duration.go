package timenorm

import (
	"fmt"
	"math"
	"time"
)

// Elapsed is one of the recognised duration shapes:
// Seconds, Span or an ElapsedSeq of them.
type Elapsed interface {
	elapsed()
}

// Seconds is a duration in seconds.
type Seconds float64

// Span is an elapsed-time value.
type Span time.Duration

// ElapsedSeq is an ordered, possibly nested, sequence of durations.
type ElapsedSeq []Elapsed

func (Seconds) elapsed()    {}
func (Span) elapsed()       {}
func (ElapsedSeq) elapsed() {}

// FromDurations wraps plain durations as elapsed values.
func FromDurations(ds []time.Duration) []Elapsed {
	out := make([]Elapsed, len(ds))
	for i, d := range ds {
		out[i] = Span(d)
	}
	return out
}

// NormalizeDuration converts e to seconds. Negative and non-finite values
// are rejected.
func NormalizeDuration(e Elapsed) (Node[float64], error) {
	switch v := e.(type) {
	case Seconds:
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
			return Node[float64]{}, fmt.Errorf("%w: seconds %v", ErrUnsupportedRepresentation, f)
		}
		return Leaf(f), nil

	case Span:
		if v < 0 {
			return Node[float64]{}, fmt.Errorf("%w: negative span %s", ErrUnsupportedRepresentation, time.Duration(v))
		}
		return Leaf(time.Duration(v).Seconds()), nil

	case ElapsedSeq:
		children := make([]Node[float64], len(v))
		for i, item := range v {
			n, err := NormalizeDuration(item)
			if err != nil {
				return Node[float64]{}, seqError(i, err)
			}
			children[i] = n
		}
		return Seq(children...), nil

	default:
		return Node[float64]{}, unsupported(e)
	}
}

// Durations normalizes items and flattens nested sequences depth-first.
func Durations(items []Elapsed) ([]float64, error) {
	n, err := NormalizeDuration(ElapsedSeq(items))
	if err != nil {
		return nil, err
	}
	return n.Flatten(), nil
}
