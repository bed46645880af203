package ports

import "time"

// Timer is a cancellable deferred task handle.
type Timer interface {
	// Stop cancels the timer. It reports whether the call prevented the
	// task from firing.
	Stop() bool
}

// Clock abstracts wall-clock access and deferred-task scheduling so that
// timeout and auto-advance behavior is deterministic under test.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
}

// SystemClock is the real-time Clock used in production.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) AfterFunc(d time.Duration, fn func()) Timer {
	return systemTimer{time.AfterFunc(d, fn)}
}

type systemTimer struct {
	t *time.Timer
}

func (s systemTimer) Stop() bool { return s.t.Stop() }
