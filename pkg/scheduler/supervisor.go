package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var ErrShutdownTimeout = errors.New("scheduler shutdown timed out with runs in flight")

// RunFunc handles one fire. Its context outlives the shutdown signal and is
// only cancelled once the shutdown timeout elapses.
type RunFunc func(ctx context.Context, scheduledAt time.Time)

type Job struct {
	Name string
	Rule Rule
	Run  RunFunc
}

// Supervisor owns one Clock per job and runs them concurrently.
type Supervisor struct {
	jobs            []Job
	shutdownTimeout time.Duration
	clockOpts       []ClockOption
}

func NewSupervisor(shutdownTimeout time.Duration, jobs []Job, opts ...ClockOption) (*Supervisor, error) {
	if len(jobs) == 0 {
		return nil, errors.New("scheduler: no jobs")
	}

	seen := make(map[string]bool, len(jobs))
	for _, job := range jobs {
		if err := job.Rule.Validate(); err != nil {
			return nil, fmt.Errorf("job %s: %w", job.Name, err)
		}
		if job.Run == nil {
			return nil, fmt.Errorf("job %s: no run function", job.Name)
		}
		if seen[job.Name] {
			return nil, fmt.Errorf("job %s: duplicate name", job.Name)
		}
		seen[job.Name] = true
	}

	return &Supervisor{
		jobs:            jobs,
		shutdownTimeout: shutdownTimeout,
		clockOpts:       opts,
	}, nil
}

// NextFires reports the upcoming fire of every job after now.
func (s *Supervisor) NextFires(now time.Time) map[string]time.Time {
	next := make(map[string]time.Time, len(s.jobs))
	for _, job := range s.jobs {
		next[job.Name] = job.Rule.NextFireAfter(now)
	}
	return next
}

// Run blocks until ctx is cancelled, then waits for in-flight runs for at
// most the shutdown timeout. Runs still going after that see their context
// cancelled and Run returns ErrShutdownTimeout.
func (s *Supervisor) Run(ctx context.Context) error {
	runCtx, cancelRuns := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelRuns()

	var wg sync.WaitGroup
	for _, job := range s.jobs {
		clock := NewClock(job.Name, job.Rule, s.clockOpts...)
		logrus.WithFields(logrus.Fields{
			"schedule": job.Name,
			"rule":     job.Rule.String(),
			"next_run": clock.Peek(),
		}).Info("Schedule started")

		wg.Add(1)
		go func(job Job, clock *Clock) {
			defer wg.Done()
			s.loop(ctx, runCtx, job, clock)
		}(job, clock)
	}

	<-ctx.Done()
	logrus.Info("Scheduler stopping")

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(s.shutdownTimeout)
	defer timer.Stop()

	select {
	case <-done:
		logrus.Info("Scheduler stopped")
		return nil
	case <-timer.C:
		cancelRuns()
		logrus.WithField("timeout", s.shutdownTimeout).Error("Scheduler shutdown timed out, cancelling in-flight runs")
		return ErrShutdownTimeout
	}
}

func (s *Supervisor) loop(ctx, runCtx context.Context, job Job, clock *Clock) {
	for {
		at, err := clock.Next(ctx)
		if err != nil {
			logrus.WithField("schedule", job.Name).Info("Schedule stopped")
			return
		}
		s.fire(runCtx, job, at)
	}
}

func (s *Supervisor) fire(ctx context.Context, job Job, at time.Time) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithFields(logrus.Fields{
				"schedule":     job.Name,
				"scheduled_at": at,
				"panic":        r,
				"stack":        string(debug.Stack()),
			}).Error("Scheduled run panicked")
		}
	}()

	logrus.WithFields(logrus.Fields{
		"schedule":     job.Name,
		"scheduled_at": at,
	}).Info("Schedule fired")
	job.Run(ctx, at)
}
