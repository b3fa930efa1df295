package ocr

import (
	"context"
	"errors"
	"time"

	"github.com/avast/retry-go/v4"
)

const (
	// maxAttempts bounds backend calls per page.
	maxAttempts = 3
	// baseRetryDelay is the first backoff interval; retry-go doubles it
	// on each subsequent attempt (1s, 2s).
	baseRetryDelay = time.Second
)

// withRetry runs fn up to maxAttempts times with exponential backoff and
// wraps the last error in a *ProcessingError. Configuration errors abort
// immediately without consuming retries. onRetry runs before each re-attempt
// so backends can discard cached client state and reconnect fresh.
func withRetry(ctx context.Context, backend string, delay time.Duration, fn func() (string, error), onRetry func(attempt uint, err error)) (string, error) {
	if delay <= 0 {
		delay = baseRetryDelay
	}

	attempts := 0
	text, err := retry.DoWithData(
		func() (string, error) {
			attempts++
			out, err := fn()
			if errors.Is(err, ErrNotConfigured) {
				return "", retry.Unrecoverable(err)
			}
			return out, err
		},
		retry.Attempts(maxAttempts),
		retry.Context(ctx),
		retry.Delay(delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			if onRetry != nil {
				onRetry(n, err)
			}
		}),
	)
	if err != nil {
		return "", &ProcessingError{Backend: backend, Attempts: attempts, Err: err}
	}
	return text, nil
}
