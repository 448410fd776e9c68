// Package clock abstracts time lookups so cache staleness and scheduling
// logic can be tested deterministically. Production code uses RealClock.
package clock

import "time"

// Clock supplies the current time and deferred callbacks.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
	// AfterFunc calls f in its own goroutine once d has elapsed and returns
	// a Timer that can cancel the call.
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a pending AfterFunc callback.
type Timer interface {
	// Stop cancels the callback. It returns false if the timer already fired
	// or was already stopped.
	Stop() bool
}

// RealClock delegates to the time package.
type RealClock struct{}

// NewRealClock returns a Clock backed by the time package.
func NewRealClock() *RealClock { return &RealClock{} }

func (c *RealClock) Now() time.Time { return time.Now() }

func (c *RealClock) AfterFunc(d time.Duration, f func()) Timer {
	return &realTimer{t: time.AfterFunc(d, f)}
}

type realTimer struct {
	t *time.Timer
}

func (t *realTimer) Stop() bool { return t.t.Stop() }
