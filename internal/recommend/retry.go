package recommend

import (
	"context"
	"errors"
	"time"

	"github.com/wonny/marketlens/backend/pkg/httputil"
)

// RetryConfig bounds producer retries
type RetryConfig struct {
	Attempts  int
	BaseDelay time.Duration
}

// DefaultRetry is 3 attempts starting at 500ms, doubling
var DefaultRetry = RetryConfig{Attempts: 3, BaseDelay: 500 * time.Millisecond}

// retry runs fn until it succeeds, returns a permanent error or runs out of attempts
func retry(ctx context.Context, cfg RetryConfig, onRetry func(attempt int, delay time.Duration, err error), fn func() error) error {
	attempts := cfg.Attempts
	if attempts < 1 {
		attempts = 1
	}
	delay := cfg.BaseDelay

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == attempts || !retryable(err) {
			return err
		}
		if onRetry != nil {
			onRetry(attempt, delay, err)
		}

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		delay *= 2
	}
	return err
}

// retryable rejects cancellation and 4xx answers; a bad request stays bad
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *httputil.StatusError
	if errors.As(err, &se) {
		return httputil.IsRetryableError(se.StatusCode)
	}
	return true
}
