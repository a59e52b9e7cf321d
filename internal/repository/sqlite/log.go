package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/hydrate/internal/apperror"
	"github.com/sakif/hydrate/internal/model"
	"github.com/sakif/hydrate/internal/repository"
)

// LatestLog returns the user's most recent water log.
// Ties on ts are broken by id, which xid makes time-ordered as well.
func (db *DB) LatestLog(ctx context.Context, userID string) (*model.WaterLog, error) {
	var (
		l  model.WaterLog
		ts int64
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, user_id, amount, ts FROM water_logs
		 WHERE user_id = ?
		 ORDER BY ts DESC, id DESC
		 LIMIT 1`,
		userID,
	).Scan(&l.ID, &l.UserID, &l.Amount, &ts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("water log", userID)
		}
		return nil, classify(err, repository.LogPath(userID, ""), apperror.OpRead, "getting latest log")
	}
	l.Timestamp = time.Unix(0, ts).UTC()
	return &l, nil
}

// ListLogs returns one page of the user's logs, newest first.
func (db *DB) ListLogs(ctx context.Context, userID string, opts repository.ListOptions) ([]model.WaterLog, error) {
	opts = opts.Normalize()

	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, user_id, amount, ts FROM water_logs
		 WHERE user_id = ?
		 ORDER BY ts DESC, id DESC
		 LIMIT ? OFFSET ?`,
		userID,
		opts.Limit,
		opts.Offset,
	)
	if err != nil {
		return nil, classify(err, repository.LogPath(userID, ""), apperror.OpRead, "listing logs")
	}
	return scanLogs(rows, opts.Limit)
}

// LogsSince returns every log at or after since, oldest first.
func (db *DB) LogsSince(ctx context.Context, userID string, since time.Time) ([]model.WaterLog, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, user_id, amount, ts FROM water_logs
		 WHERE user_id = ? AND ts >= ?
		 ORDER BY ts ASC, id ASC`,
		userID,
		since.UnixNano(),
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
		var (
			l  model.WaterLog
			ts int64
		)
		if err := rows.Scan(&l.ID, &l.UserID, &l.Amount, &ts); err != nil {
			return nil, fmt.Errorf("sqlite: scanning water log row: %w", err)
		}
		l.Timestamp = time.Unix(0, ts).UTC()
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating water logs: %w", err)
	}
	return logs, nil
}
