package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/sakif/hydrate/internal/apperror"
	"github.com/sakif/hydrate/internal/model"
	"github.com/sakif/hydrate/internal/repository"
)

// History window limits, in days.
const (
	DefaultHistoryDays = 7
	MaxHistoryDays     = 31
)

// LedgerStore is the part of the store the ledger touches.
type LedgerStore interface {
	repository.Atomic
	repository.LogRepository
}

// LedgerService owns the daily intake ledger: the running total on the profile
// plus the append-only water log behind it.
type LedgerService struct {
	store    LedgerStore
	observer LogObserver
	logger   *slog.Logger
	now      func() time.Time
}

// NewLedgerService wires the ledger. observer may be nil.
func NewLedgerService(store LedgerStore, observer LogObserver, logger *slog.Logger) *LedgerService {
	if observer == nil {
		observer = nopObserver{}
	}
	return &LedgerService{
		store:    store,
		observer: observer,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock replaces the clock used to decide "today". Tests use it to cross midnight.
func (s *LedgerService) WithClock(now func() time.Time) *LedgerService {
	s.now = now
	return s
}

// LogWater adds amountMl to the caller's total for today and appends a log entry,
// both in one atomic step. loc is the caller's timezone; it decides which
// calendar day the amount belongs to.
//
// The returned profile is what was committed. A stale total from an earlier day
// is never carried over: the baseline is re-read inside the transaction.
//
// Errors: validation for amountMl outside 1..MaxLogAmount or a total that would
// not fit in an int, *apperror.PermissionError when the store
// refuses access, and apperror.ErrTransaction for any other commit failure.
func (s *LedgerService) LogWater(ctx context.Context, userID string, amountMl int, loc *time.Location) (*model.UserProfile, error) {
	if userID == "" {
		return nil, apperror.Unauthorized("sign in to log water")
	}
	if amountMl <= 0 {
		return nil, apperror.ValidationFailed("amount", "amount must be a positive number")
	}
	if amountMl > MaxLogAmount {
		return nil, apperror.ValidationFailed("amount",
			fmt.Sprintf("a single log can be at most %d ml", MaxLogAmount))
	}

	today := model.DayString(s.now(), loc)

	var committed model.UserProfile
	err := s.store.RunAtomic(ctx, userID, func(current *model.UserProfile) (repository.Mutation, error) {
		var next model.UserProfile
		if current == nil {
			next = *model.NewProfile(userID, today)
		} else {
			next = *current
		}
		base := next.IntakeOn(today)
		if base > math.MaxInt-amountMl {
			return repository.Mutation{}, apperror.ValidationFailed("amount", "today's total is too large to add to")
		}
		next.TodayIntake = base + amountMl
		next.LastLogDate = today

		committed = next
		return repository.Mutation{
			Profile: &next,
			Log:     &model.WaterLog{Amount: amountMl},
		}, nil
	})
	if err != nil {
		if errors.Is(err, apperror.ErrValidation) {
			return nil, err
		}
		if logStoreError(ctx, s.logger, "logging water failed", userID, err) {
			return nil, err
		}
		return nil, apperror.TransactionFailed(err)
	}

	s.logger.InfoContext(ctx, "water logged",
		slog.String("userID", userID),
		slog.Int("amount", amountMl),
		slog.Int("todayIntake", committed.TodayIntake),
		slog.String("day", today),
	)

	s.observer.LogRecorded(userID)
	return &committed, nil
}

// ListLogs returns the user's log entries newest first.
func (s *LedgerService) ListLogs(ctx context.Context, userID string, limit, offset int) ([]model.WaterLog, error) {
	opts := repository.ListOptions{Limit: limit, Offset: offset}.Normalize()

	logs, err := s.store.ListLogs(ctx, userID, opts)
	if err != nil {
		if logStoreError(ctx, s.logger, "listing water logs failed", userID, err) {
			return nil, err
		}
		return nil, fmt.Errorf("service/ledger: listing logs: %w", err)
	}
	return logs, nil
}

// LatestLog returns the most recent entry, or apperror.ErrNotFound when the
// user has never logged.
func (s *LedgerService) LatestLog(ctx context.Context, userID string) (*model.WaterLog, error) {
	l, err := s.store.LatestLog(ctx, userID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		if logStoreError(ctx, s.logger, "reading latest water log failed", userID, err) {
			return nil, err
		}
		return nil, fmt.Errorf("service/ledger: reading latest log: %w", err)
	}
	return l, nil
}

// History sums the log per calendar day in loc for the last days days,
// today included. Days without entries are reported as 0; the result is
// oldest first. days <= 0 means DefaultHistoryDays, and anything above
// MaxHistoryDays is clamped.
func (s *LedgerService) History(ctx context.Context, userID string, days int, loc *time.Location) ([]model.DailyTotal, error) {
	if days <= 0 {
		days = DefaultHistoryDays
	}
	if days > MaxHistoryDays {
		days = MaxHistoryDays
	}
	if loc == nil {
		loc = time.UTC
	}

	y, m, d := s.now().In(loc).Date()
	first := d - (days - 1)
	since := time.Date(y, m, first, 0, 0, 0, 0, loc)

	logs, err := s.store.LogsSince(ctx, userID, since)
	if err != nil {
		if logStoreError(ctx, s.logger, "reading water history failed", userID, err) {
			return nil, err
		}
		return nil, fmt.Errorf("service/ledger: reading history: %w", err)
	}

	sums := make(map[string]int, days)
	for _, l := range logs {
		sums[model.DayString(l.Timestamp, loc)] += l.Amount
	}

	totals := make([]model.DailyTotal, 0, days)
	for i := 0; i < days; i++ {
		day := time.Date(y, m, first+i, 0, 0, 0, 0, loc).Format(model.DateLayout)
		totals = append(totals, model.DailyTotal{Date: day, Total: sums[day]})
	}
	return totals, nil
}
