package queue

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"strings"
	"time"
)

// permanentError marks an error that must not be retried.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so that RetryManager stops after the current attempt.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// retryAfter is implemented by errors that know how long the remote side
// wants us to wait (e.g. HTTP 429 with retry_after).
type retryAfter interface {
	RetryAfter() time.Duration
}

// retriable is implemented by errors that classify themselves.
type retriable interface {
	Retriable() bool
}

// RetryManager runs an operation with bounded attempts and exponential backoff.
type RetryManager struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	jitter      bool
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewRetryManager creates a new RetryManager
func NewRetryManager(maxAttempts int, baseDelay time.Duration) *RetryManager {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &RetryManager{
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		maxDelay:    baseDelay * 16, // Maximum 16x base delay
		jitter:      true,
		sleep:       sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Do calls op until it succeeds, returns a non-retryable error, or the
// attempts run out. It returns the number of attempts made and the last error.
// Cancelling ctx interrupts the backoff wait, never a running attempt.
func (r *RetryManager) Do(ctx context.Context, op func(ctx context.Context, attempt int) error) (int, error) {
	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		lastErr = op(ctx, attempt)
		if lastErr == nil {
			return attempt, nil
		}
		if ctx.Err() != nil || !r.IsRetryable(lastErr) || attempt == r.maxAttempts {
			return attempt, lastErr
		}

		delay := r.Backoff(attempt)
		var ra retryAfter
		if errors.As(lastErr, &ra) && ra.RetryAfter() > delay {
			delay = ra.RetryAfter()
		}

		if err := r.sleep(ctx, delay); err != nil {
			return attempt, errors.Join(lastErr, err)
		}
	}
	return r.maxAttempts, lastErr
}

// IsRetryable determines if an error is retryable
func (r *RetryManager) IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if IsPermanent(err) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var classified retriable
	if errors.As(err, &classified) {
		return classified.Retriable()
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	nonRetryableErrors := []string{
		"invalid",
		"not found",
		"permission denied",
		"validation failed",
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range nonRetryableErrors {
		if strings.Contains(errStr, pattern) {
			return false
		}
	}

	return true
}

// Backoff returns the wait after the given failed attempt (1-based):
// base * 2^(attempt-1), ±25% jitter, capped at the maximum delay.
func (r *RetryManager) Backoff(attempt int) time.Duration {
	if attempt <= 1 {
		attempt = 1
	}

	backoff := r.baseDelay
	for i := 1; i < attempt && backoff < r.maxDelay; i++ {
		backoff *= 2
	}

	if r.jitter && backoff >= 4 {
		quarter := int64(backoff / 4)
		backoff += time.Duration(rand.Int63n(2*quarter+1) - quarter)
	}

	if backoff > r.maxDelay {
		backoff = r.maxDelay
	}
	return backoff
}

func (r *RetryManager) MaxAttempts() int {
	return r.maxAttempts
}

func (r *RetryManager) SetMaxAttempts(maxAttempts int) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	r.maxAttempts = maxAttempts
}

// SetBaseDelay sets the base delay for retries
func (r *RetryManager) SetBaseDelay(baseDelay time.Duration) {
	r.baseDelay = baseDelay
	r.maxDelay = baseDelay * 16
}

func (r *RetryManager) SetJitter(enabled bool) {
	r.jitter = enabled
}

// SetSleep replaces the backoff wait, tests use it to record delays.
func (r *RetryManager) SetSleep(sleep func(ctx context.Context, d time.Duration) error) {
	r.sleep = sleep
}
