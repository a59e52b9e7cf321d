// Package firestore implements the repository interfaces on Cloud Firestore.
//
// Layout matches the document paths used everywhere else:
//
//	users/{uid}                  profile document
//	users/{uid}/waterLogs/{id}   one document per log entry
//	accounts/{id}                identity records for the auth layer
//
// RunAtomic is a Firestore transaction; the client retries contended
// transactions itself, up to repository.MaxAtomicAttempts.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/rs/xid"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/sakif/hydrate/internal/apperror"
	"github.com/sakif/hydrate/internal/model"
	"github.com/sakif/hydrate/internal/repository"
)

var _ repository.Store = (*DB)(nil)

const (
	usersCollection    = "users"
	logsCollection     = "waterLogs"
	accountsCollection = "accounts"
)

type DB struct {
	client *firestore.Client
	now    func() time.Time
}

// New connects to projectID. With FIRESTORE_EMULATOR_HOST set the client talks
// to the local emulator instead of production.
func New(ctx context.Context, projectID string, opts ...option.ClientOption) (*DB, error) {
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("firestore: creating client: %w", err)
	}
	return &DB{client: client, now: time.Now}, nil
}

func (db *DB) Close() error {
	return db.client.Close()
}

func (db *DB) profileRef(userID string) *firestore.DocumentRef {
	return db.client.Collection(usersCollection).Doc(userID)
}

func (db *DB) logsRef(userID string) *firestore.CollectionRef {
	return db.profileRef(userID).Collection(logsCollection)
}

// classify maps gRPC status codes onto the apperror taxonomy.
func classify(err error, path string, op apperror.Op, action string) error {
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated:
		return apperror.Permission(path, op, err)
	}
	return fmt.Errorf("firestore: %s: %w", action, err)
}

func (db *DB) GetProfile(ctx context.Context, userID string) (*model.UserProfile, error) {
	snap, err := db.profileRef(userID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, apperror.NotFound("profile", userID)
		}
		return nil, classify(err, repository.ProfilePath(userID), apperror.OpRead, "getting profile "+userID)
	}
	return decodeProfile(snap)
}

func decodeProfile(snap *firestore.DocumentSnapshot) (*model.UserProfile, error) {
	var p model.UserProfile
	if err := snap.DataTo(&p); err != nil {
		return nil, fmt.Errorf("firestore: decoding profile %s: %w", snap.Ref.ID, err)
	}
	p.ID = snap.Ref.ID
	return &p, nil
}

func (db *DB) CreateProfile(ctx context.Context, p *model.UserProfile) error {
	_, err := db.profileRef(p.ID).Create(ctx, p)
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return apperror.Conflict("profile", p.ID)
		}
		return classify(err, repository.ProfilePath(p.ID), apperror.OpWrite, "creating profile")
	}
	return nil
}

// UpdateProfile uses DocumentRef.Update, which fails with NotFound instead of
// creating the document.
func (db *DB) UpdateProfile(ctx context.Context, userID string, patch repository.ProfilePatch) error {
	fields := patch.Fields()
	if len(fields) == 0 {
		return nil
	}
	updates := make([]firestore.Update, len(fields))
	for i, f := range fields {
		updates[i] = firestore.Update{Path: f.Doc, Value: f.Value}
	}

	_, err := db.profileRef(userID).Update(ctx, updates)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return apperror.NotFound("profile", userID)
		}
		return classify(err, repository.ProfilePath(userID), apperror.OpWrite, "updating profile "+userID)
	}
	return nil
}

func (db *DB) RunAtomic(ctx context.Context, userID string, fn repository.AtomicFunc) error {
	ref := db.profileRef(userID)

	err := db.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		var current *model.UserProfile
		snap, err := tx.Get(ref)
		switch {
		case err == nil:
			if current, err = decodeProfile(snap); err != nil {
				return err
			}
		case status.Code(err) == codes.NotFound:
		default:
			return classify(err, repository.ProfilePath(userID), apperror.OpRead, "reading profile in transaction")
		}

		m, err := fn(current)
		if err != nil {
			return err
		}

		if m.Profile != nil {
			m.Profile.ID = userID
			if err := tx.Set(ref, m.Profile); err != nil {
				return classify(err, repository.ProfilePath(userID), apperror.OpWrite, "writing profile")
			}
		}
		if m.Log != nil {
			m.Log.ID = xid.New().String()
			m.Log.UserID = userID
			m.Log.Timestamp = time.Time{}
			if err := tx.Create(db.logsRef(userID).Doc(m.Log.ID), m.Log); err != nil {
				return classify(err, repository.LogPath(userID, m.Log.ID), apperror.OpWrite, "creating water log")
			}
		}
		return nil
	}, firestore.MaxAttempts(repository.MaxAtomicAttempts))
	if err != nil {
		var perr *apperror.PermissionError
		if errors.As(err, &perr) {
			return perr
		}
		// Commit-time rejections come back from RunTransaction unclassified.
		return classify(err, repository.ProfilePath(userID), apperror.OpWrite, "running transaction")
	}
	return nil
}

func (db *DB) LatestLog(ctx context.Context, userID string) (*model.WaterLog, error) {
	iter := db.logsRef(userID).
		OrderBy("timestamp", firestore.Desc).
		Limit(1).
		Documents(ctx)
	logs, err := collectLogs(iter, 1)
	if err != nil {
		return nil, classify(err, repository.LogPath(userID, ""), apperror.OpRead, "getting latest log")
	}
	if len(logs) == 0 {
		return nil, apperror.NotFound("water log", userID)
	}
	return &logs[0], nil
}

func (db *DB) ListLogs(ctx context.Context, userID string, opts repository.ListOptions) ([]model.WaterLog, error) {
	opts = opts.Normalize()
	iter := db.logsRef(userID).
		OrderBy("timestamp", firestore.Desc).
		Offset(opts.Offset).
		Limit(opts.Limit).
		Documents(ctx)
	logs, err := collectLogs(iter, opts.Limit)
	if err != nil {
		return nil, classify(err, repository.LogPath(userID, ""), apperror.OpRead, "listing logs")
	}
	return logs, nil
}

func (db *DB) LogsSince(ctx context.Context, userID string, since time.Time) ([]model.WaterLog, error) {
	iter := db.logsRef(userID).
		Where("timestamp", ">=", since).
		OrderBy("timestamp", firestore.Asc).
		Documents(ctx)
	logs, err := collectLogs(iter, 0)
	if err != nil {
		return nil, classify(err, repository.LogPath(userID, ""), apperror.OpRead, "listing logs since")
	}
	return logs, nil
}

func collectLogs(iter *firestore.DocumentIterator, capacity int) ([]model.WaterLog, error) {
	defer iter.Stop()
	logs := make([]model.WaterLog, 0, capacity)
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		var l model.WaterLog
		if err := snap.DataTo(&l); err != nil {
			return nil, fmt.Errorf("decoding water log %s: %w", snap.Ref.ID, err)
		}
		l.ID = snap.Ref.ID
		l.Timestamp = l.Timestamp.UTC()
		logs = append(logs, l)
	}
	return logs, nil
}
