package repository

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// MaxAtomicAttempts bounds how often a SQL backend re-runs a conflicting
// transaction before giving up. Firestore applies its own limit.
const MaxAtomicAttempts = 5

// Retry runs fn until it succeeds, returns an error retryable rejects, or
// attempts are used up. Attempts are spaced by a jittered exponential backoff
// starting at 10ms, and Retry stops early with ctx.Err() when ctx is done.
// A rejected error is returned as fn produced it.
func Retry(ctx context.Context, attempts int, retryable func(error) bool, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = 200 * time.Millisecond
	b.MaxElapsedTime = 0

	op := func() error {
		err := fn()
		if err != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx))
}
