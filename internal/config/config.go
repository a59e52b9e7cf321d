// Package config loads server settings from the environment, optionally
// seeded from a .env file in the working directory.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Store drivers.
const (
	DriverSQLite    = "sqlite"
	DriverPostgres  = "postgres"
	DriverFirestore = "firestore"
	DriverMemory    = "memory"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	Port int `envconfig:"PORT" default:"8080"`

	DBDriver         string `envconfig:"DB_DRIVER" default:"sqlite"` // sqlite|postgres|firestore|memory
	DBPath           string `envconfig:"DB_PATH" default:"data/hydrate.db"`
	DatabaseURL      string `envconfig:"DATABASE_URL"`
	FirestoreProject string `envconfig:"FIRESTORE_PROJECT"`

	JWTSecret string        `envconfig:"JWT_SECRET" required:"true"`
	JWTTTL    time.Duration `envconfig:"JWT_TTL" default:"24h"`

	GitHubClientID     string `envconfig:"GITHUB_CLIENT_ID"`
	GitHubClientSecret string `envconfig:"GITHUB_CLIENT_SECRET"`
	GitHubCallbackURL  string `envconfig:"GITHUB_CALLBACK_URL"`

	DefaultTZ string `envconfig:"DEFAULT_TZ" default:"UTC"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`  // debug|info|warn|error
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"` // text|json

	ReminderSessionTTL time.Duration `envconfig:"REMINDER_SESSION_TTL" default:"2m"`
	BackgroundTimeout  time.Duration `envconfig:"BACKGROUND_TIMEOUT" default:"5s"`
	CookieSecure       bool          `envconfig:"COOKIE_SECURE" default:"false"`
}

// Load reads .env (when present) and then the environment. Real environment
// variables win over .env entries.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("config: reading .env: %w", err)
	}
	return FromEnv()
}

// FromEnv reads the environment only.
func FromEnv() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	if cfg.GitHubCallbackURL == "" {
		cfg.GitHubCallbackURL = fmt.Sprintf("http://localhost:%d/auth/github/callback", cfg.Port)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks values envconfig cannot express.
func (c Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d out of range", c.Port))
	}
	switch c.DBDriver {
	case DriverSQLite:
		if c.DBPath == "" {
			errs = append(errs, errors.New("DB_PATH is required for sqlite"))
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for postgres"))
		}
	case DriverFirestore:
		if c.FirestoreProject == "" {
			errs = append(errs, errors.New("FIRESTORE_PROJECT is required for firestore"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown DB_DRIVER %q", c.DBDriver))
	}
	if len(c.JWTSecret) < 16 {
		errs = append(errs, errors.New("JWT_SECRET must be at least 16 characters"))
	}
	if _, err := time.LoadLocation(c.DefaultTZ); err != nil {
		errs = append(errs, fmt.Errorf("DEFAULT_TZ: %w", err))
	}
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	if f := strings.ToLower(c.LogFormat); f != "text" && f != "json" {
		errs = append(errs, fmt.Errorf("unknown LOG_FORMAT %q", c.LogFormat))
	}
	if c.ReminderSessionTTL <= 0 {
		errs = append(errs, errors.New("REMINDER_SESSION_TTL must be positive"))
	}
	if c.BackgroundTimeout <= 0 {
		errs = append(errs, errors.New("BACKGROUND_TIMEOUT must be positive"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Location is DEFAULT_TZ, used when a request names no timezone.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.DefaultTZ)
	if err != nil {
		return time.UTC
	}
	return loc
}

// GitHubEnabled reports whether the GitHub sign-in routes should be mounted.
func (c Config) GitHubEnabled() bool {
	return c.GitHubClientID != "" && c.GitHubClientSecret != ""
}

// SlogLevel parses LOG_LEVEL.
func (c Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("unknown LOG_LEVEL %q", c.LogLevel)
	}
	return level, nil
}

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func (c Config) NewLogger() *slog.Logger {
	level, err := c.SlogLevel()
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
