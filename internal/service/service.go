// Package service holds the business rules of the tracker.
//
// The layers are the same as everywhere else in the repo:
//
//	Handler (HTTP)  → parses requests, writes responses
//	Service         → validates, enforces rules, orchestrates
//	Repository      → reads/writes the document store
//
// Services take plain values and a context and return domain errors from
// apperror, so the same code backs the JSON API and any other caller.
package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/sakif/hydrate/internal/apperror"
)

// LogObserver is told after a water log commits. The reminder scheduler
// implements it to re-arm the timers of the user's open sessions.
type LogObserver interface {
	LogRecorded(userID string)
}

// SettingsObserver is told after the reminder settings of a user change.
type SettingsObserver interface {
	SettingsChanged(userID string, enabled bool, hours float64)
}

type nopObserver struct{}

func (nopObserver) LogRecorded(string)                   {}
func (nopObserver) SettingsChanged(string, bool, float64) {}

// logStoreError logs err with the attributes of a permission failure when it
// is one. It returns true for permission errors so callers can pass them through
// unchanged.
func logStoreError(ctx context.Context, logger *slog.Logger, msg, userID string, err error) bool {
	var perr *apperror.PermissionError
	if errors.As(err, &perr) {
		logger.ErrorContext(ctx, msg,
			slog.String("userID", userID),
			slog.String("path", perr.Path),
			slog.String("op", string(perr.Op)),
			slog.String("error", err.Error()),
		)
		return true
	}
	logger.ErrorContext(ctx, msg,
		slog.String("userID", userID),
		slog.String("error", err.Error()),
	)
	return false
}
