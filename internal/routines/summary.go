package routines

import (
	"fmt"
	"strings"
	"time"

	"github.com/justestif/go-fitness-pattern-finder/internal/db"
)

const dateFormat = "2006-01-02"

// FormatSummary returns a human-readable summary of detected routines.
// Shows the cycle, then each slot with its day, typical value and date
// range. Outliers are summarized by count only.
func FormatSummary(r *DetectResult) string {
	var sb strings.Builder

	if !r.Found() || len(r.Routines) == 0 {
		sb.WriteString(fmt.Sprintf("No routine found from %d %s", r.TotalActivities, plural(r.TotalActivities, "activity", "activities")))
		if r.OutlierCount > 0 {
			sb.WriteString(fmt.Sprintf(" (%d outliers skipped)", r.OutlierCount))
		}
		sb.WriteString("\n")
		return sb.String()
	}

	sb.WriteString(fmt.Sprintf("Found %d %s %s from %d %s",
		len(r.Routines), plural(len(r.Routines), "routine", "routines"),
		Cycle(r.Period),
		r.TotalActivities, plural(r.TotalActivities, "activity", "activities")))
	if r.OutlierCount > 0 {
		sb.WriteString(fmt.Sprintf(" (%d outliers skipped)", r.OutlierCount))
	}
	sb.WriteString("\n")

	for i, rt := range r.Routines {
		sb.WriteString("\n")
		sb.WriteString(formatRoutine(i+1, r.Mode, rt))
	}
	return sb.String()
}

// formatRoutine formats a single routine slot.
func formatRoutine(num int, mode string, rt db.Routine) string {
	n := len(rt.ActivityIDs)
	return fmt.Sprintf("Routine %d: %s, %s (%d %s, %s to %s)\n",
		num,
		Day(rt),
		Value(mode, rt.MeanValue),
		n, plural(n, "activity", "activities"),
		rt.FirstSeen.Format(dateFormat),
		rt.LastSeen.Format(dateFormat))
}

// Cycle describes a period in days.
func Cycle(period int) string {
	switch period {
	case 1:
		return "every day"
	case 7:
		return "every week"
	default:
		return fmt.Sprintf("every %d days", period)
	}
}

// Day names the day of the cycle a routine falls on: the weekday for
// weekly cycles, the cycle day otherwise.
func Day(rt db.Routine) string {
	switch rt.PeriodDays {
	case 1:
		return "daily"
	case 7:
		return rt.FirstSeen.Weekday().String()
	default:
		return fmt.Sprintf("day %d of %d", rt.CycleDay+1, rt.PeriodDays)
	}
}

// Value formats a routine's mean: a clock time for time-of-day routines,
// a duration otherwise.
func Value(mode string, mean float64) string {
	if mode == db.ModeDuration {
		return "about " + (time.Duration(mean) * time.Second).Round(time.Minute).String()
	}
	minutes := int(mean*60 + 0.5)
	return fmt.Sprintf("around %02d:%02d", minutes/60%24, minutes%60)
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
