// Command fitness-pattern-finder runs the Fitness Pattern Finder web application.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/justestif/go-fitness-pattern-finder/internal/auth"
	"github.com/justestif/go-fitness-pattern-finder/internal/config"
	"github.com/justestif/go-fitness-pattern-finder/internal/db"
	"github.com/justestif/go-fitness-pattern-finder/internal/logging"
	"github.com/justestif/go-fitness-pattern-finder/internal/patterns"
	"github.com/justestif/go-fitness-pattern-finder/internal/routines"
	"github.com/justestif/go-fitness-pattern-finder/internal/strava"
	activitysync "github.com/justestif/go-fitness-pattern-finder/internal/sync"
	"github.com/justestif/go-fitness-pattern-finder/internal/web"
	webfs "github.com/justestif/go-fitness-pattern-finder/web"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return errors.New("please set DATABASE_URL")
	}

	logger := logging.Setup(cfg.Settings.Logging())
	log := logger.WithField("env", cfg.Env)

	patternsCfg, err := cfg.Settings.PatternsConfig()
	if err != nil {
		return err
	}
	finder, err := patterns.New(patternsCfg, patterns.WithLogger(logger))
	if err != nil {
		return err
	}

	ctx := context.Background()
	database, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer database.Close()

	if err := database.Migrate(ctx); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}

	templates, err := fs.Sub(webfs.TemplatesFS, "templates")
	if err != nil {
		return fmt.Errorf("creating templates filesystem: %w", err)
	}
	static, err := fs.Sub(webfs.StaticFS, "static")
	if err != nil {
		return fmt.Errorf("creating static filesystem: %w", err)
	}

	server, err := web.NewServer(web.ServerConfig{
		Addr:        cfg.Addr,
		OAuth:       auth.NewStravaConfig(cfg.ClientID, cfg.ClientSecret, cfg.RedirectURL()),
		TemplatesFS: templates,
		StaticFS:    static,
		Sessions:    web.NewDBSessionStore(database, log),
		Users:       database.Users(),
		Activities:  database.Activities(),
		Syncer: activitysync.New(database,
			activitysync.WithWindow(cfg.Settings.SyncWindow),
			activitysync.WithLogger(log),
		),
		Routines:      routines.New(database, finder, routines.WithLogger(log)),
		StravaOptions: []strava.Option{strava.WithLogger(log)},
		Logger:        log,
	})
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	log.WithField("base_url", cfg.BaseURL).Info("configuration loaded")
	return server.Run(ctx)
}
