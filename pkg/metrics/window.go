package metrics

import (
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"
)

// DefaultWindowSize is the number of samples a Window keeps.
const DefaultWindowSize = 10

// Window is a fixed-size rolling window of durations. It only feeds
// diagnostics; nothing in the core branches on its values.
type Window struct {
	mu      sync.Mutex
	size    int
	samples []float64 // milliseconds, oldest first
	last    time.Duration
}

// NewWindow returns a Window holding up to size samples.
func NewWindow(size int) *Window {
	if size <= 0 {
		size = DefaultWindowSize
	}
	return &Window{size: size, samples: make([]float64, 0, size)}
}

// Add records a sample, dropping the oldest once the window is full.
func (w *Window) Add(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.samples) == w.size {
		copy(w.samples, w.samples[1:])
		w.samples = w.samples[:w.size-1]
	}
	w.samples = append(w.samples, float64(d)/float64(time.Millisecond))
	w.last = d
}

// Len returns the number of samples held.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.samples)
}

// Last returns the most recent sample.
func (w *Window) Last() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}

// Average returns the mean of the held samples, or 0 when empty.
func (w *Window) Average() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.samples) == 0 {
		return 0
	}
	mean := stat.Mean(w.samples, nil)
	return time.Duration(mean * float64(time.Millisecond))
}

// Reset drops every sample.
func (w *Window) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.samples = w.samples[:0]
	w.last = 0
}
