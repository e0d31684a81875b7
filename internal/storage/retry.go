package storage

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"time"
)

// isRetriable returns true for sqlite errors that indicate a transient lock
// contention the caller should retry against, rather than a structural failure.
func isRetriable(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}

// WithRetry executes fn, retrying up to maxRetries times when the store
// reports a busy/locked condition. Retries use jittered exponential backoff
// starting at baseDelay. This is the same shape as the busy-timeout retry
// the single sqlite connection already performs internally; it exists for
// callers that hold a transaction across multiple statements and want an
// outer retry boundary around the whole unit of work.
func WithRetry(ctx context.Context, maxRetries int, baseDelay time.Duration, fn func() error) error {
	var err error
	for attempt := range maxRetries + 1 {
		err = fn()
		if err == nil || !isRetriable(err) {
			return err
		}
		if attempt == maxRetries {
			break
		}
		jitter := time.Duration(rand.Int64N(int64(baseDelay))) //nolint:gosec // jitter doesn't need crypto-strength randomness
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(baseDelay + jitter):
		}
		baseDelay *= 2
	}
	return err
}
