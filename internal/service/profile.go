package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/hydrate/internal/apperror"
	"github.com/sakif/hydrate/internal/bg"
	"github.com/sakif/hydrate/internal/model"
	"github.com/sakif/hydrate/internal/repository"
)

// Settings limits.
const (
	MaxDailyGoal     = 20000 // ml
	MaxReminderHours = 24.0

	// MaxLogAmount caps a single drink.
	MaxLogAmount = 5000 // ml
)

// DefaultBackgroundTimeout bounds each fire-and-forget profile write.
const DefaultBackgroundTimeout = 5 * time.Second

// ProfileStore is the part of the store the profile service touches.
type ProfileStore interface {
	repository.ProfileRepository
	repository.Atomic
}

// SettingsPatch is a partial settings update. Nil fields are left untouched.
type SettingsPatch struct {
	DailyGoal        *int         `json:"dailyGoal,omitempty"`
	Units            *model.Units `json:"units,omitempty"`
	RemindersEnabled *bool        `json:"remindersEnabled,omitempty"`
	ReminderHours    *float64     `json:"reminderHours,omitempty"`
}

// ProfileService serves the profile read path and settings updates.
type ProfileService struct {
	store    ProfileStore
	runner   bg.Runner
	observer SettingsObserver
	logger   *slog.Logger
	timeout  time.Duration
	now      func() time.Time
}

// NewProfileService wires the service. runner executes the non-blocking writes
// of the read path; observer may be nil.
func NewProfileService(store ProfileStore, runner bg.Runner, observer SettingsObserver, logger *slog.Logger, timeout time.Duration) *ProfileService {
	if observer == nil {
		observer = nopObserver{}
	}
	if timeout <= 0 {
		timeout = DefaultBackgroundTimeout
	}
	return &ProfileService{
		store:    store,
		runner:   runner,
		observer: observer,
		logger:   logger,
		timeout:  timeout,
		now:      time.Now,
	}
}

// WithClock replaces the clock used to decide "today".
func (s *ProfileService) WithClock(now func() time.Time) *ProfileService {
	s.now = now
	return s
}

// GetProfile returns the profile as the caller should see it today in loc.
//
// A missing profile is created with defaults and a stale one is rolled forward
// to today with a zero total. Both writes are handed to the background runner
// and the caller gets the resulting values without waiting. The rollover only
// applies while the stored day is still stale, so a log committed in between
// is never reset. The ledger re-reads inside its own transaction either way.
func (s *ProfileService) GetProfile(ctx context.Context, userID string, loc *time.Location) (*model.UserProfile, error) {
	if userID == "" {
		return nil, apperror.Unauthorized("sign in to view your profile")
	}
	today := model.DayString(s.now(), loc)

	p, err := s.store.GetProfile(ctx, userID)
	if errors.Is(err, apperror.ErrNotFound) {
		fresh := model.NewProfile(userID, today)
		stored := *fresh
		s.background("create profile", userID, func(ctx context.Context) error {
			err := s.store.CreateProfile(ctx, &stored)
			if errors.Is(err, apperror.ErrConflict) {
				return nil
			}
			return err
		})
		return fresh, nil
	}
	if err != nil {
		if logStoreError(ctx, s.logger, "reading profile failed", userID, err) {
			return nil, err
		}
		return nil, fmt.Errorf("service/profile: reading profile: %w", err)
	}

	if p.RollForward(today) {
		s.background("roll over day", userID, func(ctx context.Context) error {
			return s.store.RunAtomic(ctx, userID, func(current *model.UserProfile) (repository.Mutation, error) {
				if current == nil || current.LastLogDate == today {
					return repository.Mutation{}, nil
				}
				next := *current
				repository.RolloverPatch(today).Apply(&next)
				return repository.Mutation{Profile: &next}, nil
			})
		})
	}
	return p, nil
}

// EnsureProfile creates the default profile for a new account, carrying its
// email. An existing profile is left alone.
func (s *ProfileService) EnsureProfile(ctx context.Context, userID, email string, loc *time.Location) error {
	p := model.NewProfile(userID, model.DayString(s.now(), loc))
	p.Email = email
	err := s.store.CreateProfile(ctx, p)
	if err == nil || errors.Is(err, apperror.ErrConflict) {
		return nil
	}
	logStoreError(ctx, s.logger, "creating profile failed", userID, err)
	return fmt.Errorf("service/profile: creating profile: %w", err)
}

// UpdateSettings validates and applies a partial settings update and returns
// the stored profile. A user without a profile gets one with the defaults
// and the patch applied.
func (s *ProfileService) UpdateSettings(ctx context.Context, userID string, patch SettingsPatch, loc *time.Location) (*model.UserProfile, error) {
	if userID == "" {
		return nil, apperror.Unauthorized("sign in to change settings")
	}
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	update := patch.toProfilePatch()
	if update.Empty() {
		return nil, apperror.ValidationFailed("", "no settings to update")
	}

	err := s.store.UpdateProfile(ctx, userID, update)
	if errors.Is(err, apperror.ErrNotFound) {
		p := model.NewProfile(userID, model.DayString(s.now(), loc))
		update.Apply(p)
		err = s.store.CreateProfile(ctx, p)
		if errors.Is(err, apperror.ErrConflict) {
			// Created by a concurrent read; patch that one instead.
			err = s.store.UpdateProfile(ctx, userID, update)
		}
	}
	if err != nil {
		if logStoreError(ctx, s.logger, "updating settings failed", userID, err) {
			return nil, err
		}
		return nil, fmt.Errorf("service/profile: updating settings: %w", err)
	}

	p, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/profile: reading updated profile: %w", err)
	}

	s.logger.InfoContext(ctx, "settings updated",
		slog.String("userID", userID),
		slog.String("fields", update.String()),
	)

	if patch.RemindersEnabled != nil || patch.ReminderHours != nil {
		s.observer.SettingsChanged(userID, p.RemindersEnabled, p.ReminderHours)
	}
	return p, nil
}

// Validate checks every set field.
func (p SettingsPatch) Validate() error {
	if p.DailyGoal != nil && (*p.DailyGoal <= 0 || *p.DailyGoal > MaxDailyGoal) {
		return apperror.ValidationFailed("dailyGoal",
			fmt.Sprintf("daily goal must be between 1 and %d ml", MaxDailyGoal))
	}
	if p.Units != nil && !p.Units.Valid() {
		return apperror.ValidationFailed("units", "units must be ml or oz")
	}
	if p.ReminderHours != nil && (*p.ReminderHours <= 0 || *p.ReminderHours > MaxReminderHours) {
		return apperror.ValidationFailed("reminderHours",
			fmt.Sprintf("reminder interval must be more than 0 and at most %g hours", MaxReminderHours))
	}
	return nil
}

func (p SettingsPatch) toProfilePatch() repository.ProfilePatch {
	return repository.ProfilePatch{
		DailyGoal:        p.DailyGoal,
		Units:            p.Units,
		RemindersEnabled: p.RemindersEnabled,
		ReminderHours:    p.ReminderHours,
	}
}

// background runs fn on the runner with its own timeout. Failures are logged
// and never reach the request that triggered them.
func (s *ProfileService) background(action, userID string, fn func(ctx context.Context) error) {
	s.runner.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			logStoreError(ctx, s.logger, "background profile write failed: "+action, userID, err)
			return
		}
		s.logger.Debug("background profile write done",
			slog.String("action", action),
			slog.String("userID", userID),
		)
	})
}
