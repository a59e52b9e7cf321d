package firestore

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/rs/xid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/sakif/hydrate/internal/apperror"
	"github.com/sakif/hydrate/internal/model"
)

func (db *DB) accounts() *firestore.CollectionRef {
	return db.client.Collection(accountsCollection)
}

// findAccount returns the first account where field == value, or nil.
// With tx set the query joins the transaction's read set.
func (db *DB) findAccount(ctx context.Context, tx *firestore.Transaction, field string, value any) (*model.User, error) {
	q := db.accounts().Where(field, "==", value).Limit(1)

	var iter *firestore.DocumentIterator
	if tx != nil {
		iter = tx.Documents(q)
	} else {
		iter = q.Documents(ctx)
	}
	defer iter.Stop()

	snap, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeUser(snap)
}

func decodeUser(snap *firestore.DocumentSnapshot) (*model.User, error) {
	var u model.User
	if err := snap.DataTo(&u); err != nil {
		return nil, fmt.Errorf("firestore: decoding account %s: %w", snap.Ref.ID, err)
	}
	u.ID = snap.Ref.ID
	return &u, nil
}

// CreateUser enforces email uniqueness inside a transaction, since Firestore
// has no unique indexes.
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	err := db.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		existing, err := db.findAccount(ctx, tx, "email", user.Email)
		if err != nil {
			return err
		}
		if existing != nil {
			return apperror.Conflict("user", user.Email)
		}

		now := db.now().UTC()
		user.ID = xid.New().String()
		user.CreatedAt = now
		user.UpdatedAt = now
		return tx.Create(db.accounts().Doc(user.ID), user)
	})
	if err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return err
		}
		return fmt.Errorf("firestore: creating account %s: %w", user.Email, err)
	}
	return nil
}

// Upsert keys on githubId. An existing account keeps its document ID.
func (db *DB) Upsert(ctx context.Context, user *model.User) error {
	err := db.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		existing, err := db.findAccount(ctx, tx, "githubId", user.GitHubID)
		if err != nil {
			return err
		}

		now := db.now().UTC()
		if existing != nil {
			existing.Login = user.Login
			if user.Email != "" {
				existing.Email = user.Email
			}
			existing.UpdatedAt = now
			*user = *existing
			return tx.Set(db.accounts().Doc(existing.ID), existing)
		}

		user.ID = xid.New().String()
		user.CreatedAt = now
		user.UpdatedAt = now
		return tx.Create(db.accounts().Doc(user.ID), user)
	})
	if err != nil {
		return fmt.Errorf("firestore: upserting account (githubID=%d): %w", user.GitHubID, err)
	}
	return nil
}

func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	snap, err := db.accounts().Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("firestore: getting account %s: %w", id, err)
	}
	return decodeUser(snap)
}

func (db *DB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := db.findAccount(ctx, nil, "email", email)
	if err != nil {
		return nil, fmt.Errorf("firestore: finding account by email: %w", err)
	}
	if u == nil {
		return nil, apperror.NotFound("user", email)
	}
	return u, nil
}
