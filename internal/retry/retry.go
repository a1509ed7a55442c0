// Package retry wraps remote calls with a small, classified retry loop.
package retry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/vthunder/steward/internal/logging"
)

// Config configures retry behavior
type Config struct {
	MaxAttempts int           // total attempts including the first (default 2)
	BaseDelay   time.Duration // delay before attempt n+1 is BaseDelay*n (default 500ms)
	// OnRetry is called before each backoff sleep
	OnRetry func(op string, attempt int, err error)
}

// DefaultConfig returns the engine defaults
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 2,
		BaseDelay:   500 * time.Millisecond,
	}
}

// StatusError is an HTTP failure from a remote service
type StatusError struct {
	Service string
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: HTTP %d", e.Service, e.Code)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Service, e.Code, e.Message)
}

// IsNotFound reports whether err is an HTTP 404 or 410
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && (se.Code == http.StatusNotFound || se.Code == http.StatusGone)
}

// IsConflict reports whether err is an HTTP 409
func IsConflict(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusConflict
}

var retryablePattern = regexp.MustCompile(`(?i)\b(429|5\d\d)\b|too many requests|rate limit|service unavailable|bad gateway|gateway timeout`)

// IsRetryable reports whether err is a rate limit or a server-side failure.
// Typed status errors are classified by code; anything else falls back to
// matching the message.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	return retryablePattern.MatchString(err.Error())
}

// Do runs fn until it succeeds, fails with a non-retryable error, or
// MaxAttempts is reached. The wait before attempt n+1 is BaseDelay*n and
// ends early when ctx is cancelled.
func Do[T any](ctx context.Context, cfg Config, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("%s: %w", op, err)
		}

		result, err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				logging.Info("retry", "%s succeeded on attempt %d", op, attempt)
			}
			return result, nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return zero, err
		}
		if attempt == cfg.MaxAttempts {
			logging.Warn("retry", "%s: giving up after %d attempts: %v", op, attempt, err)
			break
		}

		delay := cfg.BaseDelay * time.Duration(attempt)
		logging.Debug("retry", "%s attempt %d failed (%v), waiting %s", op, attempt, err, delay)
		if cfg.OnRetry != nil {
			cfg.OnRetry(op, attempt, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return zero, fmt.Errorf("%s: cancelled during backoff: %w", op, ctx.Err())
		}
	}

	return zero, fmt.Errorf("%s: retries exhausted: %w", op, lastErr)
}

// Run is Do for calls without a result
func Run(ctx context.Context, cfg Config, op string, fn func(ctx context.Context) error) error {
	_, err := Do(ctx, cfg, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
