// Package retry provides a bounded retry helper for transient store/queue
// errors, mirroring the teacher's retries.Retry helper used throughout
// store/session.go and store/file.go.
package retry

import (
	"context"
	"time"
)

// IsRetriable classifies whether an error is worth retrying.
type IsRetriable func(err error) bool

// Do calls fn up to attempts times, sleeping baseDelay*2^n between attempts
// (capped) while isRetriable(err) holds and the context is not done. The
// first non-retriable error, or the last error after attempts exhausted, is
// returned.
func Do(ctx context.Context, attempts int, baseDelay time.Duration, fn func() error, isRetriable IsRetriable) error {
	var err error

	for attempt := 0; attempt < attempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if isRetriable != nil && !isRetriable(err) {
			return err
		}
		if attempt == attempts-1 {
			break
		}

		delay := baseDelay << attempt
		const cap = 5 * time.Second
		if delay > cap {
			delay = cap
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return err
}

// Default attempt/backoff policies, grounded on the teacher's
// retries.DefaultAttempts / retries.HealthAttempts split.
const (
	DefaultAttempts  = 3
	DefaultBaseDelay = 50 * time.Millisecond
	HealthAttempts   = 2
	HealthBaseDelay  = 100 * time.Millisecond
)

// Always treats every error as retriable; callers wire a more selective
// predicate (e.g. AWS transient-error detection) where one is available.
func Always(error) bool { return true }
