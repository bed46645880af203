// Package testutils provides deterministic helpers for engine tests.
package testutils

import (
	"sort"
	"sync"
	"time"

	"github.com/orbitel/journey/pkg/ports"
)

// ManualClock implements ports.Clock with explicit time control. Deferred
// tasks fire synchronously from Advance, which keeps timer-driven behavior
// (handoff timeouts, automated step delays) deterministic under test.
type ManualClock struct {
	mu     sync.Mutex
	now    time.Time
	nextID int
	timers map[int]*manualTimer
}

type manualTimer struct {
	clock   *ManualClock
	id      int
	fireAt  time.Time
	fn      func()
	stopped bool
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped {
		return false
	}
	t.stopped = true
	delete(t.clock.timers, t.id)
	return true
}

// NewManualClock creates a clock frozen at the given time.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{
		now:    start,
		timers: make(map[int]*manualTimer),
	}
}

// Now returns the current manual time.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AfterFunc schedules fn to run when the clock advances past d.
func (c *ManualClock) AfterFunc(d time.Duration, fn func()) ports.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := &manualTimer{
		clock:  c,
		id:     c.nextID,
		fireAt: c.now.Add(d),
		fn:     fn,
	}
	c.timers[c.nextID] = t
	c.nextID++
	return t
}

// Advance moves the clock forward and fires due timers in firing order.
// Callbacks run without the clock lock held, so they may schedule new timers;
// newly due timers also fire before Advance returns.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()

	for {
		t := c.popDue()
		if t == nil {
			return
		}
		t.fn()
	}
}

func (c *ManualClock) popDue() *manualTimer {
	c.mu.Lock()
	defer c.mu.Unlock()

	var due []*manualTimer
	for _, t := range c.timers {
		if !t.fireAt.After(c.now) {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].fireAt.Equal(due[j].fireAt) {
			return due[i].id < due[j].id
		}
		return due[i].fireAt.Before(due[j].fireAt)
	})

	t := due[0]
	t.stopped = true
	delete(c.timers, t.id)
	return t
}
