// Package debounce coalesces bursts of calls into a single trailing call.
package debounce

import (
	"sync"
	"time"

	"github.com/vanderheijden86/composer/pkg/clock"
)

// DefaultDuration is the quiet period used when none is configured.
const DefaultDuration = 500 * time.Millisecond

// Debouncer runs the most recently triggered function once no Trigger has
// happened for the configured duration. Only one timer is live at a time.
type Debouncer struct {
	mu       sync.Mutex
	clock    clock.Clock
	duration time.Duration
	timer    clock.Timer
	pending  func()
	gen      uint64
}

// New creates a Debouncer on the wall clock.
func New(d time.Duration) *Debouncer {
	return NewWithClock(d, nil)
}

// NewWithClock creates a Debouncer driven by c.
func NewWithClock(d time.Duration, c clock.Clock) *Debouncer {
	if d <= 0 {
		d = DefaultDuration
	}
	return &Debouncer{clock: clock.Or(c), duration: d}
}

// Duration returns the quiet period.
func (d *Debouncer) Duration() time.Duration { return d.duration }

// Trigger replaces the pending function with fn and restarts the timer.
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.pending = fn
	d.timer = d.clock.AfterFunc(d.duration, func() { d.fire(gen) })
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	// A Trigger or Cancel after this timer was armed supersedes it.
	if gen != d.gen || d.pending == nil {
		d.mu.Unlock()
		return
	}
	fn := d.pending
	d.pending = nil
	d.timer = nil
	d.mu.Unlock()
	fn()
}

// Flush runs the pending function now, if any, and cancels the timer.
func (d *Debouncer) Flush() bool {
	d.mu.Lock()
	fn := d.pending
	d.cancelLocked()
	d.mu.Unlock()
	if fn == nil {
		return false
	}
	fn()
	return true
}

// Cancel drops the pending function without running it.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelLocked()
}

func (d *Debouncer) cancelLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending = nil
	d.gen++
}

// Pending reports whether a call is waiting for the quiet period to end.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending != nil
}
