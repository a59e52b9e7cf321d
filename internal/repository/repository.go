// Package repository declares the storage contracts the services depend on.
//
// The application treats its store as a document store with hierarchical paths:
//
//	users/{uid}                   → model.UserProfile
//	users/{uid}/waterLogs/{id}    → model.WaterLog (append-only)
//
// Four backends implement these interfaces: repository/sqlite (default),
// repository/postgres, repository/firestore and repository/memory. Services only
// ever see the interfaces, so swapping backends is a config change.
package repository

import (
	"context"
	"time"

	"github.com/sakif/hydrate/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

// Page limits shared by every backend's ListLogs.
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Normalize clamps the options to the supported range.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = DefaultListLimit
	}
	if o.Limit > MaxListLimit {
		o.Limit = MaxListLimit
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}

// Mutation is what one atomic step wants committed.
//
// Profile, when non-nil, replaces the stored profile document. Log, when non-nil,
// is appended as a new water log; the store fills in its ID and Timestamp.
// Both writes commit together or not at all.
type Mutation struct {
	Profile *model.UserProfile
	Log     *model.WaterLog
}

// AtomicFunc computes a Mutation from the current profile.
// current is nil when the user has no profile yet.
//
// The function may run more than once when the store retries a conflicting
// transaction, so it must not have side effects beyond its return value.
type AtomicFunc func(current *model.UserProfile) (Mutation, error)

// Atomic is the read-modify-write primitive the ledger is built on.
//
// RunAtomic reads the profile stored under userID, calls fn, and commits the
// returned Mutation in one transaction. Concurrent calls for the same user are
// serialized, either by a lock or by retrying on conflict, so every attempt sees
// the latest committed profile. An error returned by fn aborts without retrying.
type Atomic interface {
	RunAtomic(ctx context.Context, userID string, fn AtomicFunc) error
}

// ProfileRepository stores one UserProfile document per user.
type ProfileRepository interface {
	// GetProfile returns apperror.ErrNotFound when the user has no profile.
	GetProfile(ctx context.Context, userID string) (*model.UserProfile, error)
	// CreateProfile returns apperror.ErrConflict when a profile already exists.
	CreateProfile(ctx context.Context, profile *model.UserProfile) error
	// UpdateProfile applies a partial update. Returns apperror.ErrNotFound when
	// there is nothing to update.
	UpdateProfile(ctx context.Context, userID string, patch ProfilePatch) error
}

// LogRepository reads the append-only water log. Writes only happen through Atomic.
type LogRepository interface {
	// LatestLog returns the most recent entry by timestamp, or apperror.ErrNotFound.
	LatestLog(ctx context.Context, userID string) (*model.WaterLog, error)
	// ListLogs returns entries newest first.
	ListLogs(ctx context.Context, userID string, opts ListOptions) ([]model.WaterLog, error)
	// LogsSince returns every entry with Timestamp >= since, oldest first.
	LogsSince(ctx context.Context, userID string, since time.Time) ([]model.WaterLog, error)
}

// UserRepository stores identity records for the auth layer.
type UserRepository interface {
	// CreateUser inserts a new email/password user. Returns apperror.ErrConflict
	// when the email is taken.
	CreateUser(ctx context.Context, user *model.User) error
	// Upsert inserts or refreshes a user keyed by GitHubID.
	Upsert(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
}

// Store is everything a backend provides. The server owns one and closes it on shutdown.
type Store interface {
	ProfileRepository
	LogRepository
	UserRepository
	Atomic
	Close() error
}
