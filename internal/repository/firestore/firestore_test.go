package firestore

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/rs/xid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/sakif/hydrate/internal/apperror"
	"github.com/sakif/hydrate/internal/model"
	"github.com/sakif/hydrate/internal/repository"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		permission bool
	}{
		{"permission denied", status.Error(codes.PermissionDenied, "rules"), true},
		{"unauthenticated", status.Error(codes.Unauthenticated, "no token"), true},
		{"unavailable", status.Error(codes.Unavailable, "down"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify(tt.err, "users/u1", apperror.OpWrite, "writing")

			var perr *apperror.PermissionError
			assert.Equal(t, tt.permission, errors.As(err, &perr))
			assert.Equal(t, tt.permission, errors.Is(err, apperror.ErrPermission))
			if tt.permission {
				assert.Equal(t, "users/u1", perr.Path)
			}
		})
	}
}

// newEmulatorDB connects to the Firestore emulator, or skips the test.
//
//	gcloud emulators firestore start --host-port=localhost:8081
//	FIRESTORE_EMULATOR_HOST=localhost:8081 go test ./internal/repository/firestore/
func newEmulatorDB(t *testing.T) *DB {
	t.Helper()
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	db, err := New(context.Background(), "hydrate-test")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestEmulator_RunAtomicAndLogs(t *testing.T) {
	db := newEmulatorDB(t)
	ctx := context.Background()
	uid := "u-" + xid.New().String()

	for _, amount := range []int{500, 750} {
		err := db.RunAtomic(ctx, uid, func(current *model.UserProfile) (repository.Mutation, error) {
			next := model.NewProfile(uid, "2024-05-01")
			if current != nil {
				c := *current
				next = &c
			}
			next.TodayIntake += amount
			return repository.Mutation{Profile: next, Log: &model.WaterLog{Amount: amount}}, nil
		})
		require.NoError(t, err)
	}

	p, err := db.GetProfile(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, 1250, p.TodayIntake)

	latest, err := db.LatestLog(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, 750, latest.Amount)

	assert.ErrorIs(t, db.CreateProfile(ctx, model.NewProfile(uid, "2024-05-01")), apperror.ErrConflict)
}

func TestEmulator_LogTimestampIsServerTime(t *testing.T) {
	db := newEmulatorDB(t)
	ctx := context.Background()
	uid := "u-" + xid.New().String()

	// A skewed app clock must not leak into the log.
	db.now = func() time.Time { return time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC) }

	before := time.Now()
	err := db.RunAtomic(ctx, uid, func(*model.UserProfile) (repository.Mutation, error) {
		return repository.Mutation{Log: &model.WaterLog{Amount: 200, Timestamp: before.Add(-48 * time.Hour)}}, nil
	})
	require.NoError(t, err)

	latest, err := db.LatestLog(ctx, uid)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), latest.Timestamp, time.Minute)
}

func TestEmulator_AccountsEmailUnique(t *testing.T) {
	db := newEmulatorDB(t)
	ctx := context.Background()
	email := xid.New().String() + "@example.com"

	require.NoError(t, db.CreateUser(ctx, &model.User{Email: email, PasswordHash: "h"}))
	assert.ErrorIs(t, db.CreateUser(ctx, &model.User{Email: email}), apperror.ErrConflict)

	u, err := db.GetUserByEmail(ctx, email)
	require.NoError(t, err)
	assert.Equal(t, email, u.Email)
}
