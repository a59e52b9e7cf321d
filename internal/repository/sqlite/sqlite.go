// Package sqlite implements the repository interfaces on an embedded SQLite file.
//
// It is the default backend: no server to run, and ":memory:" gives every test a
// fresh database. modernc.org/sqlite is a pure Go translation of SQLite, so the
// binary still cross-compiles without CGo.
//
// CONCURRENCY MODEL:
// The pool is capped at one connection and every transaction starts with
// BEGIN IMMEDIATE (the _txlock DSN option). Inside this process that makes
// transactions strictly serial; across processes SQLite's write lock plus
// busy_timeout does the same job, and SQLITE_BUSY that still slips through is
// retried by RunAtomic.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/hydrate/internal/apperror"
	"github.com/sakif/hydrate/internal/repository"
)

var _ repository.Store = (*DB)(nil)

// DB wraps the sql.DB pool and provides every repository method.
type DB struct {
	conn *sql.DB
	now  func() time.Time
}

// queryer is the subset of *sql.DB and *sql.Tx the read helpers need, so the same
// scan code runs inside and outside a transaction.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New opens (or creates) the database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/hydrate.db"  → file-based database
//   - ":memory:"         → in-memory database, lost on Close
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// One connection: an in-memory database is per-connection, and a single
	// writer keeps BEGIN IMMEDIATE from ever contending with ourselves.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	db := &DB{conn: conn, now: time.Now}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_txlock=immediate&_pragma=busy_timeout(5000)"
}

// Close closes the connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the schema. CREATE ... IF NOT EXISTS keeps it idempotent.
//
// Timestamps on water_logs are unix nanoseconds so ordering and range queries
// are plain integer comparisons.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			email         TEXT UNIQUE,
			password_hash TEXT NOT NULL DEFAULT '',
			github_id     INTEGER UNIQUE,
			login         TEXT NOT NULL DEFAULT '',
			created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS profiles (
			user_id           TEXT PRIMARY KEY,
			email             TEXT NOT NULL DEFAULT '',
			daily_goal        INTEGER NOT NULL,
			units             TEXT NOT NULL,
			reminders_enabled INTEGER NOT NULL DEFAULT 0,
			reminder_hours    REAL NOT NULL,
			today_intake      INTEGER NOT NULL DEFAULT 0,
			last_log_date     TEXT NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("creating profiles table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS water_logs (
			id      TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			amount  INTEGER NOT NULL CHECK (amount > 0),
			ts      INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_water_logs_user_ts ON water_logs(user_id, ts DESC);
	`)
	if err != nil {
		return fmt.Errorf("creating water_logs table: %w", err)
	}

	return nil
}

// sqliteCode returns the primary result code of a driver error, or -1.
func sqliteCode(err error) int {
	var se *msqlite.Error
	if errors.As(err, &se) {
		return se.Code() & 0xff
	}
	return -1
}

// isBusy reports whether err is a lock conflict worth retrying.
func isBusy(err error) bool {
	switch sqliteCode(err) {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return false
}

// isUnique reports a UNIQUE or PRIMARY KEY violation (extended result codes).
func isUnique(err error) bool {
	var se *msqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}

// classify turns access-control failures into *apperror.PermissionError and
// wraps everything else with the action that failed.
func classify(err error, path string, op apperror.Op, action string) error {
	switch sqliteCode(err) {
	case sqlite3.SQLITE_PERM, sqlite3.SQLITE_READONLY, sqlite3.SQLITE_AUTH:
		return apperror.Permission(path, op, err)
	}
	return fmt.Errorf("sqlite: %s: %w", action, err)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt64(n int64) sql.NullInt64 {
	return sql.NullInt64{Int64: n, Valid: n != 0}
}
