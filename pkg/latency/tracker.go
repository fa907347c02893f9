// Package latency classifies per-entity updates as loading, slow or settled
// so a renderer can paint a spinner or a "slow" badge.
package latency

import (
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vanderheijden86/composer/pkg/clock"
	"github.com/vanderheijden86/composer/pkg/debug"
)

// Defaults for Config fields left at zero.
const (
	DefaultSlowThreshold = 100 * time.Millisecond
	DefaultGrace         = time.Second
)

// Status is what a renderer needs for one entity. At most one field is
// true.
type Status struct {
	IsLoading    bool
	IsSlowUpdate bool
}

// Config tunes a Tracker.
type Config struct {
	// SlowThreshold is the duration an update must exceed to be slow.
	SlowThreshold time.Duration
	// Grace is how long a slow badge stays up after the update completes.
	Grace time.Duration
	// OnSettled runs when a slow badge expires. It is called without the
	// tracker's lock held.
	OnSettled func(entityID string)

	Clock  clock.Clock
	Logger logrus.FieldLogger
}

type entry struct {
	started time.Time
	loading bool
	slow    bool
	timer   clock.Timer
	gen     uint64
}

// Tracker records update start and end per entity.
type Tracker struct {
	cfg Config
	log logrus.FieldLogger

	mu      sync.Mutex
	entries map[string]*entry
	gen     uint64
}

// NewTracker returns an empty Tracker.
func NewTracker(cfg Config) *Tracker {
	if cfg.SlowThreshold <= 0 {
		cfg.SlowThreshold = DefaultSlowThreshold
	}
	if cfg.Grace <= 0 {
		cfg.Grace = DefaultGrace
	}
	cfg.Clock = clock.Or(cfg.Clock)
	log := cfg.Logger
	if log == nil {
		log = debug.NewLogger("latency")
	}
	return &Tracker{cfg: cfg, log: log, entries: make(map[string]*entry)}
}

// Begin marks entityID as loading. A slow badge from an earlier update is
// dropped.
func (t *Tracker) Begin(entityID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[entityID]; ok && e.timer != nil {
		e.timer.Stop()
	}
	t.gen++
	t.entries[entityID] = &entry{started: t.cfg.Clock.Now(), loading: true, gen: t.gen}
}

// End marks entityID's update complete and returns its duration. Ending an
// entity that is not loading returns 0 and changes nothing.
func (t *Tracker) End(entityID string) time.Duration {
	t.mu.Lock()
	e, ok := t.entries[entityID]
	if !ok || !e.loading {
		t.mu.Unlock()
		return 0
	}
	d := t.cfg.Clock.Now().Sub(e.started)
	if d <= t.cfg.SlowThreshold {
		delete(t.entries, entityID)
		t.mu.Unlock()
		return d
	}
	e.loading = false
	e.slow = true
	gen := e.gen
	e.timer = t.cfg.Clock.AfterFunc(t.cfg.Grace, func() { t.settle(entityID, gen) })
	t.mu.Unlock()

	t.log.WithFields(logrus.Fields{
		"entity":      entityID,
		"duration_ms": float64(d.Microseconds()) / 1000.0,
	}).Debug("slow update")
	return d
}

// Track runs fn between Begin and End.
func (t *Tracker) Track(entityID string, fn func()) time.Duration {
	t.Begin(entityID)
	defer func() {
		if r := recover(); r != nil {
			t.End(entityID)
			panic(r)
		}
	}()
	fn()
	return t.End(entityID)
}

func (t *Tracker) settle(entityID string, gen uint64) {
	t.mu.Lock()
	e, ok := t.entries[entityID]
	if !ok || e.gen != gen || !e.slow {
		t.mu.Unlock()
		return
	}
	delete(t.entries, entityID)
	fn := t.cfg.OnSettled
	t.mu.Unlock()
	if fn != nil {
		fn(entityID)
	}
}

// Status returns the current classification of entityID.
func (t *Tracker) Status(entityID string) Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[entityID]
	if !ok {
		return Status{}
	}
	return Status{IsLoading: e.loading, IsSlowUpdate: e.slow}
}

// Active returns the ids that are loading or showing a slow badge, sorted.
func (t *Tracker) Active() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.entries))
	for id := range t.entries {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Close cancels every grace timer and forgets all entries.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, e := range t.entries {
		if e.timer != nil {
			e.timer.Stop()
		}
		delete(t.entries, id)
	}
}
