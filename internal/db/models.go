package db

import (
	"time"

	"github.com/google/uuid"
)

// User is a Strava athlete who signed in.
type User struct {
	ID               string // Strava athlete ID
	DisplayName      string
	RecommendedHours float64 // Weekly training target, 0 when unset
	CreatedAt        time.Time
	UpdatedAt        time.Time
	LastSyncAt       *time.Time // nullable
}

// Session represents an authenticated web session.
type Session struct {
	ID           string
	UserID       string
	AccessToken  string
	RefreshToken string
	TokenExpiry  time.Time
	Scope        string // Scopes the athlete granted
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

// Activity is an imported Strava activity.
type Activity struct {
	ID             int64 // Strava activity ID
	UserID         string
	Name           string
	Type           string
	Distance       float64 // meters
	MovingTime     int     // seconds
	ElapsedTime    int     // seconds
	StartDateLocal time.Time
	Manual         bool
	AverageSpeed   float64 // meters per second
	CreatedAt      time.Time
}

// Routine modes.
const (
	ModeTimeOfDay = "time_of_day"
	ModeDuration  = "duration"
)

// Routine is one usual activity slot found by pattern detection.
type Routine struct {
	ID         uuid.UUID
	UserID     string
	Mode       string  // ModeTimeOfDay or ModeDuration
	PeriodDays int     // Detected cycle length
	Slot       int     // Position among the user's slots, in detection order
	CycleDay   int     // Day of the cycle the slot falls on
	MeanValue  float64 // Mean hour of day, or mean duration in seconds
	FirstSeen  time.Time
	LastSeen   time.Time
	CreatedAt  time.Time

	ActivityIDs []int64 // Not a column; filled on create and by ListForUser
}
