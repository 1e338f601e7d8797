package timenorm

import (
	"fmt"
	"math"
	"time"
)

// Timestamp is one of the recognised point-in-time shapes:
// EpochSeconds, Calendar, Instant, RFC3339 or a TimestampSeq of them.
type Timestamp interface {
	timestamp()
}

// EpochSeconds is seconds since the Unix epoch.
type EpochSeconds float64

// Calendar is a broken-down wall clock time interpreted in the
// normalizer's location.
type Calendar struct {
	Year   int
	Month  time.Month
	Day    int
	Hour   int
	Minute int
	Second int
}

// Instant wraps an already-parsed time.Time.
type Instant struct {
	time.Time
}

// RFC3339 is a textual timestamp such as "2021-07-25T06:30:36Z".
type RFC3339 string

// TimestampSeq is an ordered, possibly nested, sequence of timestamps.
type TimestampSeq []Timestamp

func (EpochSeconds) timestamp() {}
func (Calendar) timestamp()     {}
func (Instant) timestamp()      {}
func (RFC3339) timestamp()      {}
func (TimestampSeq) timestamp() {}

// FromTimes wraps plain times as timestamps.
func FromTimes(times []time.Time) []Timestamp {
	out := make([]Timestamp, len(times))
	for i, t := range times {
		out[i] = Instant{t}
	}
	return out
}

// NormalizeTime converts ts to time.Time values in loc (UTC when nil),
// truncated to whole seconds. Sequences are converted recursively and keep
// their shape.
func NormalizeTime(ts Timestamp, loc *time.Location) (Node[time.Time], error) {
	loc = location(loc)

	switch v := ts.(type) {
	case EpochSeconds:
		f := float64(v)
		// float64(math.MaxInt64) rounds up to 2^63, which int64 cannot hold.
		if math.IsNaN(f) || f < math.MinInt64 || f >= math.MaxInt64 {
			return Node[time.Time]{}, fmt.Errorf("%w: epoch seconds %v", ErrUnsupportedRepresentation, f)
		}
		return Leaf(time.Unix(int64(f), 0).In(loc)), nil

	case Calendar:
		if !v.valid() {
			return Node[time.Time]{}, fmt.Errorf("%w: calendar %+v out of range", ErrUnsupportedRepresentation, v)
		}
		return Leaf(time.Date(v.Year, v.Month, v.Day, v.Hour, v.Minute, v.Second, 0, loc)), nil

	case Instant:
		return Leaf(v.In(loc).Truncate(time.Second)), nil

	case RFC3339:
		t, err := time.Parse(time.RFC3339, string(v))
		if err != nil {
			return Node[time.Time]{}, fmt.Errorf("%w: %v", ErrUnsupportedRepresentation, err)
		}
		return Leaf(t.In(loc).Truncate(time.Second)), nil

	case TimestampSeq:
		children := make([]Node[time.Time], len(v))
		for i, item := range v {
			n, err := NormalizeTime(item, loc)
			if err != nil {
				return Node[time.Time]{}, seqError(i, err)
			}
			children[i] = n
		}
		return Seq(children...), nil

	default:
		return Node[time.Time]{}, unsupported(ts)
	}
}

// Times normalizes items and flattens nested sequences depth-first.
func Times(items []Timestamp, loc *time.Location) ([]time.Time, error) {
	n, err := NormalizeTime(TimestampSeq(items), loc)
	if err != nil {
		return nil, err
	}
	return n.Flatten(), nil
}

func (c Calendar) valid() bool {
	return c.Month >= time.January && c.Month <= time.December &&
		c.Day >= 1 && c.Day <= 31 &&
		c.Hour >= 0 && c.Hour <= 23 &&
		c.Minute >= 0 && c.Minute <= 59 &&
		c.Second >= 0 && c.Second <= 60
}
