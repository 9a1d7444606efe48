// Package retry provides a bounded, fixed-delay retry helper for fallible
// operations. It is intentionally simpler than the fetch pipeline's own
// backoff machinery: retries here wrap a whole unit of work, not a single
// page load.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Options configure a retry loop.
type Options struct {
	// Attempts is the total invocation ceiling, first try included.
	Attempts int
	// Delay is the fixed pause between attempts.
	Delay time.Duration
}

// ExhaustedError reports that every attempt failed. Last carries the final
// failure and is reachable through errors.Unwrap.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all %d attempts failed: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// Do runs fn until it succeeds or the attempt ceiling is hit. The parent
// context is checked between attempts; its cancellation is returned
// directly and is never wrapped as exhaustion.
func Do(ctx context.Context, opts Options, fn func() error) error {
	_, err := DoValue(ctx, opts, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// DoValue is Do for operations that return a value alongside the error.
func DoValue[T any](ctx context.Context, opts Options, fn func() (T, error)) (T, error) {
	var zero T
	attempts := opts.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	var last error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		v, err := fn()
		if err == nil {
			return v, nil
		}
		last = err
		if attempt < attempts {
			if err := wait(ctx, opts.Delay); err != nil {
				return zero, err
			}
		}
	}
	return zero, &ExhaustedError{Attempts: attempts, Last: last}
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
