package strava

import "time"

// Athlete is the authenticated Strava user.
type Athlete struct {
	ID        int64   `json:"id"`
	Username  string  `json:"username"`
	FirstName string  `json:"firstname"`
	LastName  string  `json:"lastname"`
	City      string  `json:"city"`
	Country   string  `json:"country"`
	Sex       string  `json:"sex"`     // "M", "F" or empty
	Weight    float64 `json:"weight"`  // kilograms, 0 when not shared
	Profile   string  `json:"profile"` // avatar URL
}

// DisplayName returns the athlete's full name, or the username if unset.
func (a Athlete) DisplayName() string {
	switch {
	case a.FirstName != "" && a.LastName != "":
		return a.FirstName + " " + a.LastName
	case a.FirstName != "":
		return a.FirstName
	default:
		return a.Username
	}
}

// Activity is a summary activity from /athlete/activities.
type Activity struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	Type           string    `json:"type"`
	SportType      string    `json:"sport_type"`
	Distance       float64   `json:"distance"`     // meters
	MovingTime     int       `json:"moving_time"`  // seconds
	ElapsedTime    int       `json:"elapsed_time"` // seconds
	StartDate      time.Time `json:"start_date"`
	StartDateLocal time.Time `json:"start_date_local"`
	Manual         bool      `json:"manual"`
	AverageSpeed   float64   `json:"average_speed"` // meters per second
}

// Moving returns the moving time as a duration.
func (a Activity) Moving() time.Duration {
	return time.Duration(a.MovingTime) * time.Second
}

// apiError is the error body Strava returns for failed requests.
type apiError struct {
	Message string `json:"message"`
	Errors  []struct {
		Resource string `json:"resource"`
		Field    string `json:"field"`
		Code     string `json:"code"`
	} `json:"errors"`
}
