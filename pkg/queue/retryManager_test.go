package queue

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedSleep struct {
	delays []time.Duration
}

func (r *recordedSleep) sleep(ctx context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return ctx.Err()
}

func newTestRetryManager(attempts int, base time.Duration) (*RetryManager, *recordedSleep) {
	rec := &recordedSleep{}
	rm := NewRetryManager(attempts, base)
	rm.SetJitter(false)
	rm.SetSleep(rec.sleep)
	return rm, rec
}

var errTransient = errors.New("telegram API error: 502 Bad Gateway")

func TestDoSucceedsOnThirdAttempt(t *testing.T) {
	rm, rec := newTestRetryManager(3, time.Second)

	calls := 0
	attempts, err := rm.Do(context.Background(), func(ctx context.Context, attempt int) error {
		calls++
		assert.Equal(t, calls, attempt)
		if attempt < 3 {
			return errTransient
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, rec.delays)
}

func TestDoExhaustsAttempts(t *testing.T) {
	rm, rec := newTestRetryManager(4, 100*time.Millisecond)

	calls := 0
	attempts, err := rm.Do(context.Background(), func(ctx context.Context, attempt int) error {
		calls++
		return fmt.Errorf("attempt %d: %w", attempt, errTransient)
	})

	assert.ErrorIs(t, err, errTransient)
	assert.Contains(t, err.Error(), "attempt 4")
	assert.Equal(t, 4, attempts)
	assert.Equal(t, 4, calls)
	assert.Equal(t, []time.Duration{
		100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond,
	}, rec.delays)
}

func TestDoStopsOnPermanentError(t *testing.T) {
	rm, rec := newTestRetryManager(3, time.Second)

	fatal := errors.New("chat_id is empty")
	attempts, err := rm.Do(context.Background(), func(ctx context.Context, attempt int) error {
		return Permanent(fatal)
	})

	assert.ErrorIs(t, err, fatal)
	assert.True(t, IsPermanent(err))
	assert.Equal(t, 1, attempts)
	assert.Empty(t, rec.delays)
}

type throttled struct{ wait time.Duration }

func (e *throttled) Error() string             { return "too many requests" }
func (e *throttled) RetryAfter() time.Duration { return e.wait }

func TestDoHonoursRetryAfter(t *testing.T) {
	rm, rec := newTestRetryManager(2, time.Second)

	_, err := rm.Do(context.Background(), func(ctx context.Context, attempt int) error {
		if attempt == 1 {
			return &throttled{wait: 5 * time.Second}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []time.Duration{5 * time.Second}, rec.delays)
}

func TestDoCancelledDuringBackoff(t *testing.T) {
	rm := NewRetryManager(5, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	done := make(chan struct{})
	var (
		attempts int
		err      error
	)
	go func() {
		defer close(done)
		attempts, err = rm.Do(ctx, func(ctx context.Context, attempt int) error {
			calls++
			return errTransient
		})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Do did not return after cancellation")
	}
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, errTransient)
	assert.ErrorIs(t, err, context.Canceled)
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestIsRetryable(t *testing.T) {
	rm := NewRetryManager(3, time.Second)

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"server error", errTransient, true},
		{"network timeout", fmt.Errorf("post: %w", timeoutErr{}), true},
		{"deadline", context.DeadlineExceeded, true},
		{"cancelled", context.Canceled, false},
		{"permanent", Permanent(errTransient), false},
		{"validation", errors.New("validation failed: empty text"), false},
		{"not found", errors.New("Bad Request: chat not found"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, rm.IsRetryable(tt.err))
		})
	}
}

func TestBackoff(t *testing.T) {
	rm := NewRetryManager(10, time.Second)
	rm.SetJitter(false)

	assert.Equal(t, time.Second, rm.Backoff(1))
	assert.Equal(t, 2*time.Second, rm.Backoff(2))
	assert.Equal(t, 8*time.Second, rm.Backoff(4))
	assert.Equal(t, 16*time.Second, rm.Backoff(5))
	assert.Equal(t, 16*time.Second, rm.Backoff(9), "capped at 16x base")

	rm.SetJitter(true)
	for i := 0; i < 200; i++ {
		d := rm.Backoff(3)
		assert.GreaterOrEqual(t, d, 3*time.Second)
		assert.LessOrEqual(t, d, 5*time.Second)
	}
}

func TestPermanentNil(t *testing.T) {
	assert.NoError(t, Permanent(nil))
	assert.False(t, IsPermanent(errTransient))
}
