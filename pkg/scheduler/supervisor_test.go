package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fireLog struct {
	mu    sync.Mutex
	fires map[string][]time.Time
}

func (l *fireLog) add(name string, at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fires == nil {
		l.fires = make(map[string][]time.Time)
	}
	l.fires[name] = append(l.fires[name], at)
}

func (l *fireLog) get(name string) []time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]time.Time(nil), l.fires[name]...)
}

func TestNewSupervisorRejectsBadJobs(t *testing.T) {
	noop := func(context.Context, time.Time) {}

	_, err := NewSupervisor(time.Second, nil)
	assert.Error(t, err)

	_, err = NewSupervisor(time.Second, []Job{{Name: "daily", Rule: Rule{Hour: 9}, Run: noop}})
	assert.ErrorIs(t, err, ErrInvalidRule)

	_, err = NewSupervisor(time.Second, []Job{
		{Name: "daily", Rule: Daily(9, 0, time.UTC), Run: noop},
		{Name: "daily", Rule: Daily(10, 0, time.UTC), Run: noop},
	})
	assert.Error(t, err)
}

// manualTime holds armed timers until Advance moves the clock past their
// deadlines, so several clocks can share one notion of now.
type manualTime struct {
	mu      sync.Mutex
	now     time.Time
	pending []*manualTimer
}

type manualTimer struct {
	deadline time.Time
	ch       chan time.Time
}

func newManualTime(start time.Time) *manualTime {
	return &manualTime{now: start}
}

func (m *manualTime) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *manualTime) Timer(d time.Duration) (<-chan time.Time, func() bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := &manualTimer{deadline: m.now.Add(d), ch: make(chan time.Time, 1)}
	m.pending = append(m.pending, t)

	stop := func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, p := range m.pending {
			if p == t {
				m.pending = append(m.pending[:i], m.pending[i+1:]...)
				return true
			}
		}
		return false
	}
	return t.ch, stop
}

// Pending counts armed timers that have not fired or been stopped.
func (m *manualTime) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

func (m *manualTime) Advance(to time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.now = to
	kept := m.pending[:0]
	for _, t := range m.pending {
		if t.deadline.After(to) {
			kept = append(kept, t)
			continue
		}
		t.ch <- t.deadline
	}
	m.pending = kept
}

func (m *manualTime) options() []ClockOption {
	return []ClockOption{WithNow(m.Now), WithTimer(m.Timer)}
}

func TestSupervisorIsolatesFailingJob(t *testing.T) {
	berlin := mustLoad(t, "Europe/Berlin")
	// Monday 08:00, both the daily and the weekly rule are due at 09:00
	start := time.Date(2025, 6, 2, 8, 0, 0, 0, berlin)
	due := time.Date(2025, 6, 2, 9, 0, 0, 0, berlin)
	mt := newManualTime(start)

	var log fireLog
	release := make(chan struct{})

	jobs := []Job{
		{
			Name: "daily",
			Rule: Daily(9, 0, berlin),
			Run: func(ctx context.Context, at time.Time) {
				log.add("daily", at)
				<-release
				panic("transport exploded")
			},
		},
		{
			Name: "weekly",
			Rule: Weekly(time.Monday, 9, 0, berlin),
			Run: func(ctx context.Context, at time.Time) {
				log.add("weekly", at)
			},
		},
	}

	sup, err := NewSupervisor(time.Second, jobs, mt.options()...)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- sup.Run(ctx) }()

	// both clocks are waiting for 09:00
	require.Eventually(t, func() bool { return mt.Pending() == 2 }, 2*time.Second, 5*time.Millisecond)
	mt.Advance(due)

	// weekly completes and re-arms for next Monday while daily is still blocked
	require.Eventually(t, func() bool { return len(log.get("weekly")) == 1 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return len(log.get("daily")) == 1 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return mt.Pending() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, due.Equal(log.get("weekly")[0]))
	assert.True(t, due.Equal(log.get("daily")[0]))

	// the daily panic is recovered and its clock re-arms for tomorrow
	close(release)
	require.Eventually(t, func() bool { return mt.Pending() == 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not stop")
	}

	// the panic did not replay or duplicate anything
	assert.Len(t, log.get("daily"), 1)
	assert.Len(t, log.get("weekly"), 1)
	assert.Equal(t, 0, mt.Pending())
}

func TestSupervisorWaitsForInFlightRun(t *testing.T) {
	start := time.Date(2025, 6, 2, 8, 59, 0, 0, time.UTC)
	ft := newFakeTime(start)
	ft.horizon = start.Add(time.Hour)

	started := make(chan struct{})
	finished := make(chan error, 1)
	jobs := []Job{{
		Name: "daily",
		Rule: Daily(9, 0, time.UTC),
		Run: func(ctx context.Context, at time.Time) {
			close(started)
			time.Sleep(50 * time.Millisecond)
			finished <- ctx.Err()
		},
	}}

	sup, err := NewSupervisor(time.Second, jobs, ft.options()...)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- sup.Run(ctx) }()

	<-started
	cancel()

	require.NoError(t, <-errCh)
	select {
	case runErr := <-finished:
		assert.NoError(t, runErr, "run context must survive the shutdown signal")
	default:
		t.Fatal("Run returned before the in-flight run finished")
	}
}

func TestSupervisorShutdownTimeout(t *testing.T) {
	start := time.Date(2025, 6, 2, 8, 59, 0, 0, time.UTC)
	ft := newFakeTime(start)
	ft.horizon = start.Add(time.Hour)

	started := make(chan struct{})
	cancelled := make(chan struct{})
	jobs := []Job{{
		Name: "daily",
		Rule: Daily(9, 0, time.UTC),
		Run: func(ctx context.Context, at time.Time) {
			close(started)
			<-ctx.Done()
			close(cancelled)
		},
	}}

	sup, err := NewSupervisor(50*time.Millisecond, jobs, ft.options()...)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- sup.Run(ctx) }()

	<-started
	begin := time.Now()
	cancel()

	assert.ErrorIs(t, <-errCh, ErrShutdownTimeout)
	assert.Less(t, time.Since(begin), time.Second)

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("in-flight run was not cancelled after the timeout")
	}
}

func TestSupervisorNextFires(t *testing.T) {
	noop := func(context.Context, time.Time) {}
	sup, err := NewSupervisor(time.Second, []Job{
		{Name: "daily", Rule: Daily(9, 0, time.UTC), Run: noop},
		{Name: "weekly", Rule: Weekly(time.Monday, 9, 0, time.UTC), Run: noop},
	})
	require.NoError(t, err)

	// Tuesday
	next := sup.NextFires(time.Date(2025, 6, 3, 10, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2025, 6, 4, 9, 0, 0, 0, time.UTC), next["daily"])
	assert.Equal(t, time.Date(2025, 6, 9, 9, 0, 0, 0, time.UTC), next["weekly"])
}
