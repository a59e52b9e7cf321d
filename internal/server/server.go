// Package server is the composition root: it opens the store, builds the
// services and handlers, mounts the routes, and runs the HTTP server with a
// graceful shutdown.
//
// Wiring at a glance:
//
//	config → Store (sqlite | postgres | firestore | memory)
//	       → LedgerService, ProfileService, AuthService
//	       → reminder.Scheduler (observes the ledger and settings)
//	       → handlers → chi router
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/hydrate/internal/auth"
	"github.com/sakif/hydrate/internal/bg"
	"github.com/sakif/hydrate/internal/config"
	"github.com/sakif/hydrate/internal/handler"
	"github.com/sakif/hydrate/internal/middleware"
	"github.com/sakif/hydrate/internal/reminder"
	"github.com/sakif/hydrate/internal/repository"
	firestoreRepo "github.com/sakif/hydrate/internal/repository/firestore"
	"github.com/sakif/hydrate/internal/repository/memory"
	postgresRepo "github.com/sakif/hydrate/internal/repository/postgres"
	sqliteRepo "github.com/sakif/hydrate/internal/repository/sqlite"
	"github.com/sakif/hydrate/internal/service"
)

// reaperSpec is the cron schedule of the idle reminder session sweep.
const reaperSpec = "@every 1m"

// Server owns the store, the background runner and the scheduler, and closes
// them in that reverse order on shutdown.
type Server struct {
	router *chi.Mux
	config config.Config
	logger *slog.Logger

	store     repository.Store
	runner    *bg.Async
	scheduler *reminder.Scheduler
}

// New opens the configured store and wires everything on top of it.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", cfg.DBDriver, err)
	}

	s, err := NewWithStore(cfg, store, logger)
	if err != nil {
		store.Close()
		return nil, err
	}
	return s, nil
}

// NewWithStore wires the server on an already opened store. Tests use it with
// memory.Store.
func NewWithStore(cfg config.Config, store repository.Store, logger *slog.Logger) (*Server, error) {
	s := &Server{
		router:    chi.NewRouter(),
		config:    cfg,
		logger:    logger,
		store:     store,
		runner:    &bg.Async{},
		scheduler: reminder.NewScheduler(store, logger.With(slog.String("component", "reminder"))),
	}

	if err := s.scheduler.StartReaper(reaperSpec, cfg.ReminderSessionTTL); err != nil {
		return nil, fmt.Errorf("starting reminder reaper: %w", err)
	}
	if err := s.setupRoutes(); err != nil {
		s.scheduler.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

func openStore(ctx context.Context, cfg config.Config) (repository.Store, error) {
	switch cfg.DBDriver {
	case config.DriverSQLite:
		if dir := filepath.Dir(cfg.DBPath); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating database directory %s: %w", dir, err)
			}
		}
		return sqliteRepo.New(cfg.DBPath)
	case config.DriverPostgres:
		return postgresRepo.New(ctx, cfg.DatabaseURL)
	case config.DriverFirestore:
		return firestoreRepo.New(ctx, cfg.FirestoreProject)
	case config.DriverMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown driver %q", cfg.DBDriver)
	}
}

// Handler exposes the router, e.g. for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes mounts middleware and routes.
//
//	GET   /healthz
//	POST  /auth/signup | /auth/signin | /auth/logout
//	GET   /auth/github/login | /auth/github/callback   (when configured)
//	GET   /api/me
//	GET   /api/profile          PATCH /api/profile
//	POST  /api/logs             GET   /api/logs        GET /api/logs/latest
//	GET   /api/history
//	GET   /api/reminders/stream POST  /api/reminders/{id}/heartbeat
//
// Middleware order: request id, real IP, logging, then panic recovery.
func (s *Server) setupRoutes() error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	tokens, err := auth.NewTokenService(s.config.JWTSecret, s.config.JWTTTL)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}

	var github handler.OAuthProvider
	if s.config.GitHubEnabled() {
		github = auth.NewGitHubProvider(s.config.GitHubClientID, s.config.GitHubClientSecret, s.config.GitHubCallbackURL)
	} else {
		s.logger.Info("GitHub sign-in disabled (GITHUB_CLIENT_ID / GITHUB_CLIENT_SECRET not set)")
	}

	locator := handler.Locator{Default: s.config.Location()}

	ledger := service.NewLedgerService(s.store, s.scheduler, s.logger)
	profiles := service.NewProfileService(s.store, s.runner, s.scheduler, s.logger, s.config.BackgroundTimeout)
	authSvc := service.NewAuthService(s.store, tokens, auth.NewPasswordService(), profiles, s.logger)

	authHandler := handler.NewAuthHandler(authSvc, github, locator, s.config.CookieSecure, s.logger)
	profileHandler := handler.NewProfileHandler(profiles, locator, s.logger)
	logHandler := handler.NewLogHandler(ledger, locator, s.logger)
	reminderHandler := handler.NewReminderHandler(s.scheduler, profiles, locator, handler.DefaultKeepAlive, s.logger)

	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	s.router.Route("/auth", func(r chi.Router) {
		r.Post("/signup", authHandler.HandleSignUp)
		r.Post("/signin", authHandler.HandleSignIn)
		r.Post("/logout", authHandler.HandleLogout)
		if github != nil {
			r.Get("/github/login", authHandler.HandleGitHubLogin)
			r.Get("/github/callback", authHandler.HandleGitHubCallback)
		}
	})

	s.router.Route("/api", func(r chi.Router) {
		r.Use(auth.RequireAuth(tokens))

		r.Get("/me", authHandler.HandleMe)

		r.Get("/profile", profileHandler.HandleGet)
		r.Patch("/profile", profileHandler.HandleUpdate)

		r.Post("/logs", logHandler.HandleCreate)
		r.Get("/logs", logHandler.HandleList)
		r.Get("/logs/latest", logHandler.HandleLatest)
		r.Get("/history", logHandler.HandleHistory)

		r.Get("/reminders/stream", reminderHandler.HandleStream)
		r.Post("/reminders/{id}/heartbeat", reminderHandler.HandleHeartbeat)
	})

	return nil
}

// Start serves until SIGINT/SIGTERM and then shuts down:
//  1. close reminder sessions, which ends open streams
//  2. stop accepting connections and drain requests (30s)
//  3. wait for background profile writes
//  4. close the store
func (s *Server) Start() error {
	defer s.Close()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second, // the reminder stream clears its own deadline
		IdleTimeout:       60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("driver", s.config.DBDriver),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		// Streams block Shutdown until they return, so end them first.
		s.scheduler.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}
	return nil
}

// Close releases everything the server owns.
func (s *Server) Close() error {
	s.scheduler.Close()
	s.runner.Wait()
	return s.store.Close()
}
