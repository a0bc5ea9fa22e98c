package scheduler

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// TimerFunc arms a single timer. The returned stop function releases it.
type TimerFunc func(d time.Duration) (<-chan time.Time, func() bool)

func realTimer(d time.Duration) (<-chan time.Time, func() bool) {
	t := time.NewTimer(d)
	return t.C, t.Stop
}

type ClockOption func(*Clock)

func WithNow(now func() time.Time) ClockOption {
	return func(c *Clock) { c.now = now }
}

func WithTimer(timer TimerFunc) ClockOption {
	return func(c *Clock) { c.newTimer = timer }
}

// Clock turns a Rule into a sequence of fires. It is owned by one goroutine.
type Clock struct {
	name     string
	rule     Rule
	now      func() time.Time
	newTimer TimerFunc
	last     time.Time
}

func NewClock(name string, rule Rule, opts ...ClockOption) *Clock {
	c := &Clock{
		name:     name,
		rule:     rule,
		now:      time.Now,
		newTimer: realTimer,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Last is the most recent fire, zero before the first one.
func (c *Clock) Last() time.Time {
	return c.last
}

// Peek reports the next fire without waiting.
func (c *Clock) Peek() time.Time {
	return c.rule.NextFireAfter(c.reference())
}

func (c *Clock) reference() time.Time {
	now := c.now()
	if now.Before(c.last) {
		return c.last
	}
	return now
}

// Next suspends until the next occurrence and returns its scheduled instant.
// Occurrences that passed while the caller was busy are skipped, not replayed.
func (c *Clock) Next(ctx context.Context) (time.Time, error) {
	ref := c.reference()
	next := c.rule.NextFireAfter(ref)

	if !c.last.IsZero() {
		if skipped := c.countBetween(c.last, ref); skipped > 0 {
			logrus.WithFields(logrus.Fields{
				"schedule": c.name,
				"skipped":  skipped,
				"last":     c.last,
			}).Warn("Schedule occurrences skipped while previous run was in progress")
		}
	}

	for {
		wait := next.Sub(c.now())
		if wait <= 0 {
			break
		}

		ch, stop := c.newTimer(wait)
		select {
		case <-ctx.Done():
			stop()
			return time.Time{}, ctx.Err()
		case <-ch:
		}
	}

	c.last = next
	return next, nil
}

func (c *Clock) countBetween(from, to time.Time) int {
	n := 0
	for at := c.rule.NextFireAfter(from); !at.After(to); at = c.rule.NextFireAfter(at) {
		n++
	}
	return n
}
