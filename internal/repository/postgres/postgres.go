// Package postgres implements the repository interfaces on PostgreSQL via lib/pq.
//
// RunAtomic locks the profile row with SELECT ... FOR UPDATE at READ COMMITTED,
// so a waiting transaction re-reads the row its predecessor committed. Two
// first-ever logs for the same user both see "no row" and both INSERT; the loser
// gets a unique violation and is retried from the top, where it finds the row.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/rs/xid"

	"github.com/sakif/hydrate/internal/apperror"
	"github.com/sakif/hydrate/internal/model"
	"github.com/sakif/hydrate/internal/repository"
)

var _ repository.Store = (*DB)(nil)

type DB struct {
	conn *sql.DB
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New connects to dsn (a postgres:// URL or key=value string) and migrates.
func New(ctx context.Context, dsn string) (*DB, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: opening database: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("postgres: pinging database: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("postgres: running migrations: %w", err)
	}
	return db, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate(ctx context.Context) error {
	_, err := db.conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			email         TEXT UNIQUE,
			password_hash TEXT NOT NULL DEFAULT '',
			github_id     BIGINT UNIQUE,
			login         TEXT NOT NULL DEFAULT '',
			created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
		);

		CREATE TABLE IF NOT EXISTS profiles (
			user_id           TEXT PRIMARY KEY,
			email             TEXT NOT NULL DEFAULT '',
			daily_goal        INTEGER NOT NULL,
			units             TEXT NOT NULL,
			reminders_enabled BOOLEAN NOT NULL DEFAULT false,
			reminder_hours    DOUBLE PRECISION NOT NULL,
			today_intake      INTEGER NOT NULL DEFAULT 0,
			last_log_date     TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS water_logs (
			id      TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			amount  INTEGER NOT NULL CHECK (amount > 0),
			ts      TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp()
		);
		CREATE INDEX IF NOT EXISTS idx_water_logs_user_ts ON water_logs(user_id, ts DESC);
	`)
	if err != nil {
		return fmt.Errorf("creating tables: %w", err)
	}
	return nil
}

func pqCode(err error) pq.ErrorCode {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code
	}
	return ""
}

// isRetryable matches serialization_failure, deadlock_detected and the
// unique_violation raised when two transactions create the same profile.
func isRetryable(err error) bool {
	switch pqCode(err) {
	case "40001", "40P01", "23505":
		return true
	}
	return false
}

func isUnique(err error) bool {
	return pqCode(err) == "23505"
}

// classify maps insufficient_privilege (42501) to a PermissionError.
func classify(err error, path string, op apperror.Op, action string) error {
	if pqCode(err) == "42501" {
		return apperror.Permission(path, op, err)
	}
	return fmt.Errorf("postgres: %s: %w", action, err)
}

const profileColumns = `user_id, email, daily_goal, units, reminders_enabled,
	reminder_hours, today_intake, last_log_date`

func getProfile(ctx context.Context, q queryer, userID string, forUpdate bool) (*model.UserProfile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE user_id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var (
		p     model.UserProfile
		units string
	)
	err := q.QueryRowContext(ctx, query, userID).Scan(
		&p.ID,
		&p.Email,
		&p.DailyGoal,
		&units,
		&p.RemindersEnabled,
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
	return &p, nil
}

func (db *DB) GetProfile(ctx context.Context, userID string) (*model.UserProfile, error) {
	return getProfile(ctx, db.conn, userID, false)
}

func (db *DB) CreateProfile(ctx context.Context, p *model.UserProfile) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO profiles (`+profileColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.Email, p.DailyGoal, string(p.Units), p.RemindersEnabled,
		p.ReminderHours, p.TodayIntake, p.LastLogDate,
	)
	if err != nil {
		if isUnique(err) {
			return apperror.Conflict("profile", p.ID)
		}
		return classify(err, repository.ProfilePath(p.ID), apperror.OpWrite, "creating profile")
	}
	return nil
}

func (db *DB) UpdateProfile(ctx context.Context, userID string, patch repository.ProfilePatch) error {
	fields := patch.Fields()
	if len(fields) == 0 {
		return nil
	}

	sets := make([]string, len(fields))
	args := make([]any, 0, len(fields)+1)
	for i, f := range fields {
		sets[i] = f.Column + " = $" + strconv.Itoa(i+1)
		args = append(args, f.Value)
	}
	args = append(args, userID)

	result, err := db.conn.ExecContext(ctx,
		`UPDATE profiles SET `+strings.Join(sets, ", ")+` WHERE user_id = $`+strconv.Itoa(len(args)),
		args...,
	)
	if err != nil {
		return classify(err, repository.ProfilePath(userID), apperror.OpWrite, "updating profile "+userID)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("profile", userID)
	}
	return nil
}

func (db *DB) RunAtomic(ctx context.Context, userID string, fn repository.AtomicFunc) error {
	return repository.Retry(ctx, repository.MaxAtomicAttempts, isRetryable, func() error {
		return db.runAtomicOnce(ctx, userID, fn)
	})
}

func (db *DB) runAtomicOnce(ctx context.Context, userID string, fn repository.AtomicFunc) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return classify(err, repository.ProfilePath(userID), apperror.OpWrite, "beginning transaction")
	}
	defer tx.Rollback()

	current, err := getProfile(ctx, tx, userID, true)
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

	if p := m.Profile; p != nil {
		p.ID = userID
		query := `UPDATE profiles SET email = $2, daily_goal = $3, units = $4,
			reminders_enabled = $5, reminder_hours = $6, today_intake = $7, last_log_date = $8
			WHERE user_id = $1`
		if current == nil {
			query = `INSERT INTO profiles (` + profileColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
		}
		_, err := tx.ExecContext(ctx, query,
			p.ID, p.Email, p.DailyGoal, string(p.Units), p.RemindersEnabled,
			p.ReminderHours, p.TodayIntake, p.LastLogDate,
		)
		if err != nil {
			if isUnique(err) {
				return err
			}
			return classify(err, repository.ProfilePath(userID), apperror.OpWrite, "writing profile")
		}
	}

	if l := m.Log; l != nil {
		l.ID = xid.New().String()
		l.UserID = userID
		err := tx.QueryRowContext(ctx,
			`INSERT INTO water_logs (id, user_id, amount) VALUES ($1, $2, $3) RETURNING ts`,
			l.ID, l.UserID, l.Amount,
		).Scan(&l.Timestamp)
		if err != nil {
			return classify(err, repository.LogPath(userID, l.ID), apperror.OpWrite, "inserting water log")
		}
		l.Timestamp = l.Timestamp.UTC()
	}

	if err := tx.Commit(); err != nil {
		return classify(err, repository.ProfilePath(userID), apperror.OpWrite, "committing transaction")
	}
	return nil
}

func (db *DB) LatestLog(ctx context.Context, userID string) (*model.WaterLog, error) {
	var l model.WaterLog
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, user_id, amount, ts FROM water_logs
		 WHERE user_id = $1 ORDER BY ts DESC, id DESC LIMIT 1`,
		userID,
	).Scan(&l.ID, &l.UserID, &l.Amount, &l.Timestamp)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("water log", userID)
		}
		return nil, classify(err, repository.LogPath(userID, ""), apperror.OpRead, "getting latest log")
	}
	l.Timestamp = l.Timestamp.UTC()
	return &l, nil
}

func (db *DB) ListLogs(ctx context.Context, userID string, opts repository.ListOptions) ([]model.WaterLog, error) {
	opts = opts.Normalize()
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, user_id, amount, ts FROM water_logs
		 WHERE user_id = $1 ORDER BY ts DESC, id DESC LIMIT $2 OFFSET $3`,
		userID, opts.Limit, opts.Offset,
	)
	if err != nil {
		return nil, classify(err, repository.LogPath(userID, ""), apperror.OpRead, "listing logs")
	}
	return scanLogs(rows, opts.Limit)
}

func (db *DB) LogsSince(ctx context.Context, userID string, since time.Time) ([]model.WaterLog, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, user_id, amount, ts FROM water_logs
		 WHERE user_id = $1 AND ts >= $2 ORDER BY ts ASC, id ASC`,
		userID, since,
	)
	if err != nil {
		return nil, classify(err, repository.LogPath(userID, ""), apperror.OpRead, "listing logs since")
	}
	return scanLogs(rows, 0)
}

func scanLogs(rows *sql.Rows, capacity int) ([]model.WaterLog, error) {
	defer rows.Close()
	logs := make([]model.WaterLog, 0, capacity)
	for rows.Next() {
		var l model.WaterLog
		if err := rows.Scan(&l.ID, &l.UserID, &l.Amount, &l.Timestamp); err != nil {
			return nil, fmt.Errorf("postgres: scanning water log row: %w", err)
		}
		l.Timestamp = l.Timestamp.UTC()
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterating water logs: %w", err)
	}
	return logs, nil
}

const userColumns = `id, email, password_hash, github_id, login, created_at, updated_at`

func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	user.ID = xid.New().String()
	err := db.conn.QueryRowContext(ctx,
		`INSERT INTO users (id, email, password_hash, github_id, login)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at, updated_at`,
		user.ID, nullString(user.Email), user.PasswordHash, nullInt64(user.GitHubID), user.Login,
	).Scan(&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if isUnique(err) {
			return apperror.Conflict("user", user.Email)
		}
		return fmt.Errorf("postgres: inserting user %s: %w", user.Email, err)
	}
	return nil
}

// Upsert keys on github_id; RETURNING gives back the surviving row's id.
func (db *DB) Upsert(ctx context.Context, user *model.User) error {
	err := db.conn.QueryRowContext(ctx,
		`INSERT INTO users (id, email, password_hash, github_id, login)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (github_id) DO UPDATE SET
			login = EXCLUDED.login,
			email = COALESCE(EXCLUDED.email, users.email),
			updated_at = now()
		 RETURNING id, created_at, updated_at`,
		xid.New().String(), nullString(user.Email), user.PasswordHash, user.GitHubID, user.Login,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if isUnique(err) {
			return apperror.Conflict("user", user.Email)
		}
		return fmt.Errorf("postgres: upserting user (githubID=%d): %w", user.GitHubID, err)
	}
	return nil
}

func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return db.getUser(ctx, "id", id)
}

func (db *DB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return db.getUser(ctx, "email", email)
}

func (db *DB) getUser(ctx context.Context, column, value string) (*model.User, error) {
	var (
		u        model.User
		email    sql.NullString
		githubID sql.NullInt64
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+column+` = $1`,
		value,
	).Scan(&u.ID, &email, &u.PasswordHash, &githubID, &u.Login, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", value)
		}
		return nil, fmt.Errorf("postgres: getting user by %s: %w", column, err)
	}
	u.Email = email.String
	u.GitHubID = githubID.Int64
	return &u, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt64(n int64) sql.NullInt64 {
	return sql.NullInt64{Int64: n, Valid: n != 0}
}
