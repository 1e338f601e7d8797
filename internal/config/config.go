// Package config loads application settings from the environment and an
// optional TOML file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/justestif/go-fitness-pattern-finder/internal/auth"
	"github.com/justestif/go-fitness-pattern-finder/internal/logging"
	"github.com/justestif/go-fitness-pattern-finder/internal/patterns"
)

// ErrMissingCredentials is returned when the Strava app credentials are not set.
var ErrMissingCredentials = auth.ErrMissingCredentials

// Defaults for unset environment variables.
const (
	DefaultAddr    = ":8080"
	DefaultBaseURL = "http://127.0.0.1:8080"
	DefaultEnv     = "development"
)

// Config holds everything the web application needs at startup.
type Config struct {
	ClientID     string
	ClientSecret string
	DatabaseURL  string // Required by the web server
	Addr         string
	BaseURL      string
	Env          string
	Settings     *Settings
}

// Settings are the tunables read from the TOML file for one environment.
type Settings struct {
	LogLevel    string           `toml:"log_level"`
	LogFile     string           `toml:"log_file"`
	LogToStdout bool             `toml:"log_to_stdout"`
	LogJSON     bool             `toml:"log_json"`
	SyncWindow  time.Duration    `toml:"sync_window"`
	Patterns    PatternsSettings `toml:"patterns"`
}

// PatternsSettings overrides pattern search defaults. Zero values keep the
// default.
type PatternsSettings struct {
	MaxPeriod    int           `toml:"max_period"`
	MinFraction  float64       `toml:"min_fraction"`
	MaxDist      float64       `toml:"max_dist"`
	RecentWindow time.Duration `toml:"recent_window"`
	Workers      int           `toml:"workers"`
	Timeout      time.Duration `toml:"timeout"`
	Location     string        `toml:"location"`
	DurationUnit time.Duration `toml:"duration_unit"`
}

// File is the layout of the TOML file: one table per environment.
type File struct {
	Development *Settings
	Production  *Settings
}

// Get returns the settings for env.
func (f *File) Get(env string) (*Settings, error) {
	var s *Settings
	switch strings.ToLower(env) {
	case "dev", "development":
		s = f.Development
	case "prod", "production":
		s = f.Production
	default:
		return nil, fmt.Errorf("unknown env: %s", env)
	}
	if s == nil {
		return &Settings{}, nil
	}
	return s, nil
}

// Load reads the web application configuration. The TOML file named by
// APP_CONFIG is optional; APP_ENV selects its table.
func Load() (*Config, error) {
	cfg := &Config{
		ClientID:     os.Getenv("STRAVA_CLIENT_ID"),
		ClientSecret: os.Getenv("STRAVA_CLIENT_SECRET"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		Addr:         getenv("APP_ADDR", DefaultAddr),
		BaseURL:      strings.TrimSuffix(getenv("APP_BASE_URL", DefaultBaseURL), "/"),
		Env:          getenv("APP_ENV", DefaultEnv),
	}
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, ErrMissingCredentials
	}

	settings, err := LoadSettings(os.Getenv("APP_CONFIG"), cfg.Env)
	if err != nil {
		return nil, err
	}
	cfg.Settings = settings
	return cfg, nil
}

// RedirectURL is the OAuth callback registered with Strava.
func (c *Config) RedirectURL() string {
	return c.BaseURL + "/callback"
}

// LoadSettings decodes the settings for env from path. An empty path gives
// empty settings.
func LoadSettings(path, env string) (*Settings, error) {
	if path == "" {
		return &Settings{}, nil
	}
	var f File
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, fmt.Errorf("decoding config file %s: %w", path, err)
	}
	s, err := f.Get(env)
	if err != nil {
		return nil, fmt.Errorf("selecting config env: %w", err)
	}
	return s, nil
}

// Logging returns the logger setup parameters.
func (s *Settings) Logging() logging.Params {
	return logging.Params{
		Level:    s.LogLevel,
		File:     s.LogFile,
		ToStdout: s.LogToStdout,
		JSON:     s.LogJSON,
	}
}

// PatternsConfig applies the overrides to patterns.DefaultConfig and
// validates the result.
func (s *Settings) PatternsConfig() (patterns.Config, error) {
	cfg := patterns.DefaultConfig()
	p := s.Patterns

	if p.MaxPeriod != 0 {
		cfg.MaxPeriod = p.MaxPeriod
	}
	if p.MinFraction != 0 {
		cfg.MinFraction = p.MinFraction
	}
	if p.MaxDist != 0 {
		cfg.MaxDist = p.MaxDist
	}
	if p.RecentWindow != 0 {
		cfg.RecentWindow = p.RecentWindow
	}
	if p.Workers != 0 {
		cfg.Workers = p.Workers
	}
	if p.Timeout != 0 {
		cfg.Timeout = p.Timeout
	}
	if p.DurationUnit != 0 {
		cfg.DurationUnit = p.DurationUnit
	}
	if p.Location != "" {
		loc, err := time.LoadLocation(p.Location)
		if err != nil {
			return patterns.Config{}, fmt.Errorf("loading location %q: %w", p.Location, err)
		}
		cfg.Location = loc
	}

	if err := cfg.Validate(); err != nil {
		return patterns.Config{}, fmt.Errorf("validating patterns config: %w", err)
	}
	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
