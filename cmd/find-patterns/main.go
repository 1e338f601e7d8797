// Command find-patterns detects training routines in an activity history,
// read from a JSON file or fetched from Strava.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/justestif/go-fitness-pattern-finder/internal/auth"
	"github.com/justestif/go-fitness-pattern-finder/internal/config"
	"github.com/justestif/go-fitness-pattern-finder/internal/logging"
	"github.com/justestif/go-fitness-pattern-finder/internal/patterns"
	"github.com/justestif/go-fitness-pattern-finder/internal/strava"
)

const (
	modeTimes     = "times"
	modeDurations = "durations"
)

var (
	file       = flag.String("file", "", "JSON file of activities: [{\"start\": ..., \"moving_time\": ...}]")
	useStrava  = flag.Bool("strava", false, "Fetch activities from Strava instead of a file")
	days       = flag.Int("days", 90, "Days of Strava history to fetch")
	mode       = flag.String("mode", modeTimes, "Value folded with the day: times (hour of day) or durations")
	configPath = flag.String("config", os.Getenv("APP_CONFIG"), "TOML config file")
	env        = flag.String("env", config.DefaultEnv, "Config file environment")
	logout     = flag.Bool("logout", false, "Remove the cached Strava token and exit")
	verbose    = flag.Bool("verbose", false, "Enable verbose logging")
	noColor    = flag.Bool("no-color", false, "Disable coloured output")
)

func main() {
	flag.Parse()
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	settings, err := config.LoadSettings(*configPath, *env)
	if err != nil {
		return err
	}
	params := settings.Logging()
	if params.Level == "" {
		params.Level = "warn"
	}
	if *verbose {
		params.Level = "debug"
	}
	logger := logging.Setup(params)
	if params.File == "" {
		logger.SetOutput(os.Stderr)
	}

	if *logout {
		return runLogout()
	}
	if *mode != modeTimes && *mode != modeDurations {
		return fmt.Errorf("unknown mode %q: want %s or %s", *mode, modeTimes, modeDurations)
	}

	cfg, err := settings.PatternsConfig()
	if err != nil {
		return err
	}
	finder, err := patterns.New(cfg, patterns.WithLogger(logger))
	if err != nil {
		return err
	}

	ctx := context.Background()
	activities, err := loadActivities(ctx, logger)
	if err != nil {
		return err
	}

	p := newPrinter(os.Stdout, *noColor)
	if *mode == modeDurations {
		result, err := finder.ClusterTimeLengths(ctx, activities.timestamps(), activities.durations())
		if err != nil {
			return fmt.Errorf("finding duration routines: %w", err)
		}
		p.durations(result, len(activities))
		return nil
	}

	result, err := finder.ClusterTimestamps(ctx, activities.timestamps())
	if err != nil {
		return fmt.Errorf("finding time routines: %w", err)
	}
	p.times(result, len(activities))
	return nil
}

func loadActivities(ctx context.Context, log logrus.FieldLogger) (activityList, error) {
	switch {
	case *useStrava && *file != "":
		return nil, errors.New("use either -file or -strava, not both")
	case *file != "":
		f, err := os.Open(*file)
		if err != nil {
			return nil, fmt.Errorf("opening activities file: %w", err)
		}
		defer f.Close()
		return readActivities(f)
	case *useStrava:
		if *days < 1 {
			return nil, fmt.Errorf("days must be at least 1, got %d", *days)
		}
		return fetchActivities(ctx, log, time.Duration(*days)*24*time.Hour)
	default:
		return nil, errors.New("no input: pass -file or -strava")
	}
}

func fetchActivities(ctx context.Context, log logrus.FieldLogger, window time.Duration) (activityList, error) {
	authenticator, err := auth.New()
	if err != nil {
		return nil, err
	}
	client, err := authenticator.Authenticate(ctx)
	if err != nil {
		return nil, fmt.Errorf("authenticating with Strava: %w", err)
	}

	var fetched []strava.Activity
	if window == strava.DefaultWindow {
		fetched, err = client.RecentActivities(ctx)
	} else {
		now := time.Now()
		fetched, err = client.Activities(ctx, now.Add(-window), now)
	}
	if err != nil {
		return nil, err
	}
	log.WithField("activities", len(fetched)).Info("fetched Strava activities")
	return fromStrava(fetched), nil
}

func runLogout() error {
	authenticator, err := auth.New()
	if err != nil {
		return err
	}
	if err := authenticator.Logout(); err != nil {
		return fmt.Errorf("removing cached token: %w", err)
	}
	fmt.Println("Logged out.")
	return nil
}

func fromStrava(activities []strava.Activity) activityList {
	out := make(activityList, len(activities))
	for i, a := range activities {
		out[i] = activity{Start: a.StartDateLocal, MovingTime: a.Moving()}
	}
	return out
}
