package waits

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Clock is the time source a wait polls against. Production code uses RealClock;
// tests and fixtures use a SteppingClock so polling is deterministic.
type Clock interface {
	Now() time.Time
	// NewTimer returns the timer the retry loop sleeps on between attempts.
	NewTimer() backoff.Timer
	// Sleep pauses for d or until ctx is done.
	Sleep(ctx context.Context, d time.Duration) error
}

// RealClock returns the wall clock.
func RealClock() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) NewTimer() backoff.Timer { return &realTimer{} }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type realTimer struct {
	timer *time.Timer
}

func (t *realTimer) C() <-chan time.Time {
	return t.timer.C
}

func (t *realTimer) Start(d time.Duration) {
	if t.timer == nil {
		t.timer = time.NewTimer(d)
		return
	}
	t.timer.Reset(d)
}

func (t *realTimer) Stop() {
	if t.timer != nil {
		t.timer.Stop()
	}
}

// SteppingClock is a manual clock. Its timers fire immediately after moving
// virtual time forward by the requested duration, so a wait with a 30s budget
// finishes instantly while still observing every intermediate tick.
type SteppingClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewSteppingClock returns a clock that starts at start.
func NewSteppingClock(start time.Time) *SteppingClock {
	return &SteppingClock{now: start}
}

func (c *SteppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves virtual time forward by d.
func (c *SteppingClock) Advance(d time.Duration) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *SteppingClock) NewTimer() backoff.Timer {
	return &steppingTimer{clock: c, ch: make(chan time.Time, 1)}
}

func (c *SteppingClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.Advance(d)
	return nil
}

type steppingTimer struct {
	clock *SteppingClock
	ch    chan time.Time
}

func (t *steppingTimer) Start(d time.Duration) {
	t.clock.Advance(d)
	select {
	case t.ch <- t.clock.Now():
	default:
	}
}

func (t *steppingTimer) Stop() {}

func (t *steppingTimer) C() <-chan time.Time { return t.ch }
