package web

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/justestif/go-fitness-pattern-finder/internal/strava"
)

// DefaultCleanupInterval is how often expired sessions are removed.
const DefaultCleanupInterval = time.Hour

// ServerConfig holds server configuration.
type ServerConfig struct {
	Addr        string
	OAuth       *oauth2.Config
	TemplatesFS fs.FS
	StaticFS    fs.FS

	Sessions   SessionManager // Defaults to an in-memory store
	Users      UserStore
	Activities ActivityStore
	Syncer     Syncer
	Routines   RoutineService

	StravaOptions   []strava.Option
	CleanupInterval time.Duration
	Logger          logrus.FieldLogger
}

// Server is the HTTP server for the web application.
type Server struct {
	router   chi.Router
	server   *http.Server
	sessions SessionManager
	handlers *Handlers
	cleanup  time.Duration
	log      logrus.FieldLogger
}

// NewServer creates a new web server.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.OAuth == nil || cfg.Users == nil || cfg.Activities == nil || cfg.Syncer == nil || cfg.Routines == nil {
		return nil, errors.New("server config: oauth, users, activities, syncer and routines are required")
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	sessions := cfg.Sessions
	if sessions == nil {
		sessions = NewMemorySessionStore()
	}
	cleanup := cfg.CleanupInterval
	if cleanup <= 0 {
		cleanup = DefaultCleanupInterval
	}

	templates, err := NewTemplates(cfg.TemplatesFS)
	if err != nil {
		return nil, fmt.Errorf("loading templates: %w", err)
	}

	router := chi.NewRouter()
	s := &Server{
		router:   router,
		sessions: sessions,
		handlers: NewHandlers(cfg.OAuth, sessions, templates, cfg.Users, cfg.Activities, cfg.Syncer, cfg.Routines, log, cfg.StravaOptions...),
		cleanup:  cleanup,
		log:      log,
	}

	s.setupMiddleware()
	s.setupRoutes(cfg.StaticFS)

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // first sync pages through Strava
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Handler returns the HTTP handler with all routes.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger(s.log))
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
}

func (s *Server) setupRoutes(staticFS fs.FS) {
	if staticFS != nil {
		fileServer := http.FileServer(http.FS(staticFS))
		s.router.Handle("/static/*", http.StripPrefix("/static/", fileServer))
	}

	s.router.Get("/", s.handlers.Home)

	s.router.Get("/auth/login", s.handlers.Login)
	s.router.Get("/callback", s.handlers.Callback)
	s.router.Post("/auth/logout", s.handlers.Logout)
	s.router.Post("/auth/disconnect", s.handlers.Disconnect)

	s.router.Get("/dashboard", s.handlers.Dashboard)
	s.router.Get("/dashboard/routines", s.handlers.RoutinesPartial)
	s.router.Post("/sync", s.handlers.Sync)
	s.router.Get("/activities", s.handlers.Activities)
	s.router.Get("/profile", s.handlers.Profile)
	s.router.Get("/settings", s.handlers.Settings)
	s.router.Post("/settings/target", s.handlers.SetTarget)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/routines", s.handlers.APIRoutines)
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.log.WithField("addr", s.server.Addr).Info("starting server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Run starts the server and handles graceful shutdown on interrupt signals
// or when ctx is done. Expired sessions are removed while it runs.
func (s *Server) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go s.cleanupSessions(ctx)

	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.log.Info("shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	s.log.Info("server stopped")
	return nil
}

// cleanupSessions deletes expired sessions every cleanup interval until ctx
// is done.
func (s *Server) cleanupSessions(ctx context.Context) {
	ticker := time.NewTicker(s.cleanup)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.sessions.DeleteExpired(ctx)
			if err != nil {
				s.log.WithError(err).Warn("deleting expired sessions failed")
				continue
			}
			if n > 0 {
				s.log.WithField("sessions", n).Debug("expired sessions deleted")
			}
		}
	}
}
