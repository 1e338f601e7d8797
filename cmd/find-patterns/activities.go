package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/justestif/go-fitness-pattern-finder/internal/timenorm"
)

// activity is one entry of the input file. Start is an RFC 3339 string or
// Unix seconds; moving_time is in seconds.
type activity struct {
	Start      time.Time
	MovingTime time.Duration
}

type activityList []activity

type activityJSON struct {
	Start      json.RawMessage `json:"start"`
	MovingTime float64         `json:"moving_time"`
}

func readActivities(r io.Reader) (activityList, error) {
	var raw []activityJSON
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding activities: %w", err)
	}

	out := make(activityList, len(raw))
	for i, a := range raw {
		ts, err := parseStart(a.Start)
		if err != nil {
			return nil, fmt.Errorf("activity %d: %w", i, err)
		}
		start, err := timenorm.NormalizeTime(ts, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("activity %d: %w", i, err)
		}
		if a.MovingTime < 0 {
			return nil, fmt.Errorf("activity %d: negative moving_time %v", i, a.MovingTime)
		}
		out[i] = activity{
			Start:      start.Value,
			MovingTime: time.Duration(a.MovingTime * float64(time.Second)),
		}
	}
	return out, nil
}

func parseStart(raw json.RawMessage) (timenorm.Timestamp, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, fmt.Errorf("missing start")
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("parsing start: %w", err)
		}
		return timenorm.RFC3339(s), nil
	}
	var secs float64
	if err := json.Unmarshal(raw, &secs); err != nil {
		return nil, fmt.Errorf("parsing start: %w", err)
	}
	return timenorm.EpochSeconds(secs), nil
}

func (l activityList) timestamps() []timenorm.Timestamp {
	out := make([]timenorm.Timestamp, len(l))
	for i, a := range l {
		out[i] = timenorm.Instant{Time: a.Start}
	}
	return out
}

func (l activityList) durations() []timenorm.Elapsed {
	out := make([]timenorm.Elapsed, len(l))
	for i, a := range l {
		out[i] = timenorm.Span(a.MovingTime)
	}
	return out
}
