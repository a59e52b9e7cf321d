// Package main is the entry point for the hydrate server.
//
// The main package stays minimal. Its job is to:
//  1. read configuration (environment, optionally seeded from .env)
//  2. build the logger
//  3. hand both to internal/server and block until shutdown
//
// All actual logic lives in imported packages (internal/server,
// internal/service, internal/handler, ...).
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/sakif/hydrate/internal/config"
	"github.com/sakif/hydrate/internal/server"
)

func main() {
	// === 1. READ CONFIGURATION ===
	// JWT_SECRET is required; everything else has a default. See config.Config
	// for the full list of variables.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// === 2. SET UP LOGGING ===
	// LOG_FORMAT=json switches to one JSON object per line for log shippers.
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	// === 3. CREATE AND START THE SERVER ===
	srv, err := server.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start() blocks until the server is shut down (via Ctrl+C or SIGTERM)
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
