// Package clock abstracts wall time and one-shot timers so the coordination
// core can be driven deterministically in tests.
//
// Every suspension point in the core is a timer callback: the quiet timer,
// the next-frame callback, the per-step expand timers, the persistence
// debounce and the slow-update grace period. All of them go through a Clock.
package clock

import "time"

// Timer is a pending callback that can be cancelled.
type Timer interface {
	// Stop prevents the callback from firing. It returns false if the
	// callback already fired or the timer was already stopped.
	Stop() bool
}

// Clock provides the current time and schedules callbacks.
type Clock interface {
	Now() time.Time
	// AfterFunc runs fn on its own goroutine once d has elapsed.
	AfterFunc(d time.Duration, fn func()) Timer
}

// Real is the wall clock backed by the time package.
type Real struct{}

// Now returns time.Now().
func (Real) Now() time.Time { return time.Now() }

// AfterFunc wraps time.AfterFunc.
func (Real) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// Or returns c, or Real when c is nil.
func Or(c Clock) Clock {
	if c == nil {
		return Real{}
	}
	return c
}
