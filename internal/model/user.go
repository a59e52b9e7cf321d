package model

import "time"

// User is an identity record owned by the auth layer.
//
// Two sign-in paths create users: email + password (PasswordHash set) and
// GitHub OAuth (GitHubID set). A user may have either or both. The ID is our own
// xid and is also the key of the user's UserProfile document.
//
// Email is stored lower-cased. It can be empty for GitHub accounts that hide
// their address, so the storage layers write it as NULL in that case to keep the
// UNIQUE constraint satisfied.
type User struct {
	ID           string    `json:"id"        db:"id"        firestore:"-"`
	Email        string    `json:"email"     db:"email"     firestore:"email"`
	PasswordHash string    `json:"-"         db:"password_hash" firestore:"passwordHash"`
	GitHubID     int64     `json:"githubId"  db:"github_id" firestore:"githubId"`
	Login        string    `json:"login"     db:"login"     firestore:"login"` // GitHub username, or the email local part
	CreatedAt    time.Time `json:"createdAt" db:"created_at" firestore:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at" firestore:"updatedAt"`
}

// HasPassword reports whether the user can sign in with email + password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}
