// Package timenorm converts the time and duration shapes accepted by the
// pattern finder into canonical values: time.Time for points in time and
// non-negative seconds for durations.
package timenorm

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnsupportedRepresentation is returned for any value that is not one of
// the recognised timestamp or duration shapes.
var ErrUnsupportedRepresentation = errors.New("unsupported time representation")

// Node is a normalized value that keeps the nesting of its input.
// A leaf carries Value; a sequence carries Children (possibly none).
type Node[T any] struct {
	Value    T
	Children []Node[T]
	seq      bool
}

// Leaf returns a node holding a single value.
func Leaf[T any](v T) Node[T] {
	return Node[T]{Value: v}
}

// Seq returns a sequence node.
func Seq[T any](children ...Node[T]) Node[T] {
	return Node[T]{Children: children, seq: true}
}

// IsSeq reports whether the node came from a sequence.
func (n Node[T]) IsSeq() bool {
	return n.seq
}

// Flatten returns every leaf value in depth-first order.
func (n Node[T]) Flatten() []T {
	if !n.seq {
		return []T{n.Value}
	}
	var out []T
	for _, c := range n.Children {
		out = append(out, c.Flatten()...)
	}
	return out
}

func unsupported(v any) error {
	return fmt.Errorf("%w: %T", ErrUnsupportedRepresentation, v)
}

// seqError prefixes an element error with its position in the sequence.
func seqError(i int, err error) error {
	return fmt.Errorf("item %d: %w", i, err)
}

// location defaults a nil location to UTC.
func location(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}
