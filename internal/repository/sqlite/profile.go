package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/xid"

	"github.com/sakif/hydrate/internal/apperror"
	"github.com/sakif/hydrate/internal/model"
	"github.com/sakif/hydrate/internal/repository"
)

const profileColumns = `user_id, email, daily_goal, units, reminders_enabled,
	reminder_hours, today_intake, last_log_date`

func getProfile(ctx context.Context, q queryer, userID string) (*model.UserProfile, error) {
	var (
		p       model.UserProfile
		units   string
		enabled int
	)
	err := q.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE user_id = ?`,
		userID,
	).Scan(
		&p.ID,
		&p.Email,
		&p.DailyGoal,
		&units,
		&enabled,
		&p.ReminderHours,
		&p.TodayIntake,
		&p.LastLogDate,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("profile", userID)
		}
		return nil, classify(err, repository.ProfilePath(userID), apperror.OpRead, "getting profile "+userID)
	}
	p.Units = model.Units(units)
	p.RemindersEnabled = enabled != 0
	return &p, nil
}

// GetProfile returns the profile document for userID.
func (db *DB) GetProfile(ctx context.Context, userID string) (*model.UserProfile, error) {
	return getProfile(ctx, db.conn, userID)
}

// CreateProfile inserts a new profile. A second create for the same user is a conflict.
func (db *DB) CreateProfile(ctx context.Context, p *model.UserProfile) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO profiles (`+profileColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID,
		p.Email,
		p.DailyGoal,
		string(p.Units),
		boolInt(p.RemindersEnabled),
		p.ReminderHours,
		p.TodayIntake,
		p.LastLogDate,
	)
	if err != nil {
		if isUnique(err) {
			return apperror.Conflict("profile", p.ID)
		}
		return classify(err, repository.ProfilePath(p.ID), apperror.OpWrite, "creating profile")
	}
	return nil
}

// UpdateProfile writes only the fields set in patch.
//
// Column names come from repository.Field's fixed list; values are always bound.
func (db *DB) UpdateProfile(ctx context.Context, userID string, patch repository.ProfilePatch) error {
	fields := patch.Fields()
	if len(fields) == 0 {
		return nil
	}

	sets := make([]string, len(fields))
	args := make([]any, 0, len(fields)+1)
	for i, f := range fields {
		sets[i] = f.Column + " = ?"
		v := f.Value
		if b, ok := v.(bool); ok {
			v = boolInt(b)
		}
		args = append(args, v)
	}
	args = append(args, userID)

	result, err := db.conn.ExecContext(ctx,
		`UPDATE profiles SET `+strings.Join(sets, ", ")+` WHERE user_id = ?`,
		args...,
	)
	if err != nil {
		return classify(err, repository.ProfilePath(userID), apperror.OpWrite, "updating profile "+userID)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("profile", userID)
	}
	return nil
}

// RunAtomic reads the profile, lets fn decide, and commits the profile write and
// the new log entry in one BEGIN IMMEDIATE transaction.
//
// Every statement inside goes through tx. With a single pooled connection,
// touching db.conn here would block forever waiting on ourselves.
func (db *DB) RunAtomic(ctx context.Context, userID string, fn repository.AtomicFunc) error {
	return repository.Retry(ctx, repository.MaxAtomicAttempts, isBusy, func() error {
		return db.runAtomicOnce(ctx, userID, fn)
	})
}

func (db *DB) runAtomicOnce(ctx context.Context, userID string, fn repository.AtomicFunc) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return classify(err, repository.ProfilePath(userID), apperror.OpWrite, "beginning transaction")
	}
	defer tx.Rollback() // no-op after Commit

	current, err := getProfile(ctx, tx, userID)
	if err != nil {
		if !errors.Is(err, apperror.ErrNotFound) {
			return err
		}
		current = nil
	}

	m, err := fn(current)
	if err != nil {
		return err
	}

	if m.Profile != nil {
		m.Profile.ID = userID
		if err := upsertProfile(ctx, tx, m.Profile); err != nil {
			return err
		}
	}

	if m.Log != nil {
		m.Log.ID = xid.New().String()
		m.Log.UserID = userID
		m.Log.Timestamp = db.now().UTC()
		_, err := tx.ExecContext(ctx,
			`INSERT INTO water_logs (id, user_id, amount, ts) VALUES (?, ?, ?, ?)`,
			m.Log.ID,
			m.Log.UserID,
			m.Log.Amount,
			m.Log.Timestamp.UnixNano(),
		)
		if err != nil {
			return classify(err, repository.LogPath(userID, m.Log.ID), apperror.OpWrite, "inserting water log")
		}
	}

	if err := tx.Commit(); err != nil {
		return classify(err, repository.ProfilePath(userID), apperror.OpWrite, "committing transaction")
	}
	return nil
}

func upsertProfile(ctx context.Context, q queryer, p *model.UserProfile) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO profiles (`+profileColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
			email = excluded.email,
			daily_goal = excluded.daily_goal,
			units = excluded.units,
			reminders_enabled = excluded.reminders_enabled,
			reminder_hours = excluded.reminder_hours,
			today_intake = excluded.today_intake,
			last_log_date = excluded.last_log_date`,
		p.ID,
		p.Email,
		p.DailyGoal,
		string(p.Units),
		boolInt(p.RemindersEnabled),
		p.ReminderHours,
		p.TodayIntake,
		p.LastLogDate,
	)
	if err != nil {
		return classify(err, repository.ProfilePath(p.ID), apperror.OpWrite, "writing profile "+p.ID)
	}
	return nil
}
