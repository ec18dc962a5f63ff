// Package retry provides a small bounded retry helper for write paths that
// can lose an optimistic-concurrency race. The same discipline is used
// elsewhere in the system for sequence-number allocation: retry a fixed
// number of times with a short delay, then fail loudly.
package retry

import (
	"context"
	"fmt"
	"time"
)

const (
	// DefaultAttempts bounds how many times an operation is tried in total.
	DefaultAttempts = 3

	// DefaultDelay is the pause between attempts.
	DefaultDelay = 20 * time.Millisecond
)

// Do runs fn up to attempts times, sleeping delay between tries, retrying
// only while retryable reports true for the returned error. The last error is
// returned wrapped when all attempts are exhausted. Non-positive attempts or
// delay fall back to the defaults.
func Do(ctx context.Context, attempts int, delay time.Duration, retryable func(error) bool, fn func() error) error {
	if attempts <= 0 {
		attempts = DefaultAttempts
	}

	if delay <= 0 {
		delay = DefaultDelay
	}

	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if !retryable(lastErr) {
			return lastErr
		}

		if attempt == attempts {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()

			return ctx.Err()
		}
	}

	return fmt.Errorf("retry: %d attempts exhausted: %w", attempts, lastErr)
}
