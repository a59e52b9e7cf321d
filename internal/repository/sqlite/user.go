package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/xid"

	"github.com/sakif/hydrate/internal/apperror"
	"github.com/sakif/hydrate/internal/model"
)

const userColumns = `id, email, password_hash, github_id, login, created_at, updated_at`

// CreateUser inserts an email/password user and fills in ID and timestamps.
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	now := db.now().UTC()
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		nullString(user.Email),
		user.PasswordHash,
		nullInt64(user.GitHubID),
		user.Login,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUnique(err) {
			return apperror.Conflict("user", user.Email)
		}
		return fmt.Errorf("sqlite: inserting user %s: %w", user.Email, err)
	}
	return nil
}

// Upsert inserts or updates a user keyed by GitHub ID.
//
// An existing row keeps its internal ID, so the user's profile stays attached
// across logins. Login and email are refreshed in case they changed on GitHub.
func (db *DB) Upsert(ctx context.Context, user *model.User) error {
	var existingID string
	err := db.conn.QueryRowContext(ctx,
		`SELECT id FROM users WHERE github_id = ?`, user.GitHubID,
	).Scan(&existingID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("sqlite: looking up user by github_id %d: %w", user.GitHubID, err)
	}

	now := db.now().UTC()
	if existingID != "" {
		user.ID = existingID
		user.UpdatedAt = now
		_, err = db.conn.ExecContext(ctx,
			`UPDATE users SET login = ?, email = COALESCE(?, email), updated_at = ?
			 WHERE id = ?`,
			user.Login,
			nullString(user.Email),
			user.UpdatedAt,
			user.ID,
		)
		if err != nil {
			if isUnique(err) {
				return apperror.Conflict("user", user.Email)
			}
			return fmt.Errorf("sqlite: updating user %s: %w", user.ID, err)
		}
		return nil
	}

	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now
	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		nullString(user.Email),
		user.PasswordHash,
		user.GitHubID,
		user.Login,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUnique(err) {
			return apperror.Conflict("user", user.Email)
		}
		return fmt.Errorf("sqlite: inserting user (githubID=%d): %w", user.GitHubID, err)
	}
	return nil
}

// GetUserByID retrieves a user by internal ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return db.getUser(ctx, "id", id)
}

// GetUserByEmail retrieves a user by (lower-cased) email.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return db.getUser(ctx, "email", email)
}

// getUser is shared by the lookups. column is one of two literals above.
func (db *DB) getUser(ctx context.Context, column, value string) (*model.User, error) {
	var (
		u        model.User
		email    sql.NullString
		githubID sql.NullInt64
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+column+` = ?`,
		value,
	).Scan(
		&u.ID,
		&email,
		&u.PasswordHash,
		&githubID,
		&u.Login,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", value)
		}
		return nil, fmt.Errorf("sqlite: getting user by %s: %w", column, err)
	}
	u.Email = email.String
	u.GitHubID = githubID.Int64
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return &u, nil
}
