// Package changequeue batches per-entity field changes and decides when to
// hand them to a consumer.
//
// Delivery is triggered in one of three ways:
//
//   - quiet period: every Queue call restarts one shared timer; when it
//     fires the whole queue is flushed.
//   - batch escalation: when BatchThreshold changes arrive inside one
//     BatchWindow, a flush is requested on the next frame instead of waiting
//     out the quiet period.
//   - size cap: once MaxBatchSize changes are pending, Queue flushes
//     synchronously before returning.
//
// Within a flush, entities are delivered in the order they first entered
// the queue and each entity's changes arrive in queue order.
package changequeue

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/vanderheijden86/composer/pkg/clock"
	"github.com/vanderheijden86/composer/pkg/debug"
	"github.com/vanderheijden86/composer/pkg/metrics"
	"github.com/vanderheijden86/composer/pkg/model"
)

// Defaults for Config fields left at zero.
const (
	DefaultDebounce       = 500 * time.Millisecond
	DefaultBatchThreshold = 3
	DefaultBatchWindow    = time.Second
	DefaultMaxBatchSize   = 50
	DefaultFrameInterval  = 16 * time.Millisecond
)

// Consumer receives one entity's full ordered change list per flush.
type Consumer func(entityID string, changes []model.ChangeEvent)

// Config tunes a Scheduler.
type Config struct {
	Debounce time.Duration
	// BatchThreshold <= 0 turns escalation off, leaving only the quiet
	// timer and the size cap.
	BatchThreshold int
	BatchWindow    time.Duration
	MaxBatchSize   int
	// FrameInterval is how long a next-frame request waits when no
	// FrameFunc is supplied.
	FrameInterval time.Duration
}

// DefaultConfig returns the stock tuning.
func DefaultConfig() Config {
	return Config{
		Debounce:       DefaultDebounce,
		BatchThreshold: DefaultBatchThreshold,
		BatchWindow:    DefaultBatchWindow,
		MaxBatchSize:   DefaultMaxBatchSize,
		FrameInterval:  DefaultFrameInterval,
	}
}

func (c *Config) applyDefaults() {
	if c.Debounce <= 0 {
		c.Debounce = DefaultDebounce
	}
	if c.BatchWindow <= 0 {
		c.BatchWindow = DefaultBatchWindow
	}
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = DefaultMaxBatchSize
	}
	if c.FrameInterval <= 0 {
		c.FrameInterval = DefaultFrameInterval
	}
}

// FrameFunc schedules fn for the next display refresh and returns a handle
// that cancels it.
type FrameFunc func(fn func()) clock.Timer

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock drives the scheduler from c instead of the wall clock.
func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) { s.clock = clock.Or(c) }
}

// WithFrameFunc replaces the default frame timer, for renderers that have
// their own refresh signal.
func WithFrameFunc(f FrameFunc) Option {
	return func(s *Scheduler) { s.frame = f }
}

// WithLogger sets the diagnostic logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Scheduler) { s.log = l }
}

// Trigger says what caused a flush.
type Trigger int

const (
	TriggerManual Trigger = iota
	TriggerQuiet
	TriggerFrame
	TriggerCap
)

func (t Trigger) String() string {
	switch t {
	case TriggerQuiet:
		return "quiet"
	case TriggerFrame:
		return "frame"
	case TriggerCap:
		return "cap"
	default:
		return "manual"
	}
}

// Stats summarizes scheduler activity. Durations come from the rolling
// PerformanceSample window and are diagnostic only.
type Stats struct {
	Flushes         int
	Escalations     int
	CapFlushes      int
	Delivered       int
	Discarded       int
	LastTrigger     Trigger
	LastDuration    time.Duration
	AverageDuration time.Duration
}

// Scheduler is the change queue. It is safe for concurrent use. The
// consumer is called without internal locks held, so it may queue further
// changes; batches detached while a delivery is running are delivered
// right after it, in detach order. Flush is synchronous unless another
// goroutine is mid-delivery, in which case that goroutine delivers.
type Scheduler struct {
	cfg      Config
	consumer Consumer
	clock    clock.Clock
	frame    FrameFunc
	log      logrus.FieldLogger

	mu      sync.Mutex
	pending *orderedmap.OrderedMap[string, []model.ChangeEvent]
	total   int

	quiet      clock.Timer
	frameTimer clock.Timer
	gen        uint64 // bumped whenever armed timers become stale
	quietSeq   uint64 // bumped on every quiet-timer reset

	batchCount int
	batchStart time.Time

	outbox   []batch // detached batches awaiting delivery, oldest first
	draining bool

	samples *metrics.Window
	stats   Stats
	closed  bool
}

// New creates a Scheduler delivering to consumer.
func New(cfg Config, consumer Consumer, opts ...Option) *Scheduler {
	cfg.applyDefaults()
	s := &Scheduler{
		cfg:      cfg,
		consumer: consumer,
		clock:    clock.Real{},
		pending:  orderedmap.New[string, []model.ChangeEvent](),
		samples:  metrics.NewWindow(metrics.DefaultWindowSize),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = debug.NewLogger("changequeue")
	}
	if s.frame == nil {
		interval := s.cfg.FrameInterval
		c := s.clock
		s.frame = func(fn func()) clock.Timer { return c.AfterFunc(interval, fn) }
	}
	return s
}

// Config returns the effective configuration.
func (s *Scheduler) Config() Config { return s.cfg }

// Queue appends change to entityID's pending list and re-arms the timers.
func (s *Scheduler) Queue(entityID string, change model.ChangeEvent) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.log.WithField("entity", entityID).Debug("queue closed, change dropped")
		return
	}

	list, _ := s.pending.Get(entityID)
	s.pending.Set(entityID, append(list, change))
	s.total++

	if s.total >= s.cfg.MaxBatchSize {
		drain := s.enqueueLocked(s.detachLocked(TriggerCap))
		s.mu.Unlock()
		if drain {
			s.drain()
		}
		return
	}

	s.resetQuietLocked()
	s.countBatchLocked()
	s.mu.Unlock()
}

func (s *Scheduler) resetQuietLocked() {
	if s.quiet != nil {
		s.quiet.Stop()
	}
	s.quietSeq++
	gen, seq := s.gen, s.quietSeq
	s.quiet = s.clock.AfterFunc(s.cfg.Debounce, func() {
		s.mu.Lock()
		stale := seq != s.quietSeq
		s.mu.Unlock()
		if !stale {
			s.timerFlush(gen, TriggerQuiet)
		}
	})
}

func (s *Scheduler) countBatchLocked() {
	if s.cfg.BatchThreshold <= 0 {
		return
	}
	now := s.clock.Now()
	if s.batchCount == 0 || now.Sub(s.batchStart) > s.cfg.BatchWindow {
		s.batchCount = 0
		s.batchStart = now
	}
	s.batchCount++
	if s.batchCount >= s.cfg.BatchThreshold && s.frameTimer == nil {
		gen := s.gen
		s.frameTimer = s.frame(func() { s.timerFlush(gen, TriggerFrame) })
		s.stats.Escalations++
	}
}

func (s *Scheduler) timerFlush(gen uint64, trigger Trigger) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	drain := s.enqueueLocked(s.detachLocked(trigger))
	s.mu.Unlock()
	if drain {
		s.drain()
	}
}

type batch struct {
	trigger Trigger
	entries *orderedmap.OrderedMap[string, []model.ChangeEvent]
	count   int
}

// detachLocked swaps out the pending queue and cancels every timer.
func (s *Scheduler) detachLocked(trigger Trigger) batch {
	s.stopTimersLocked()
	b := batch{trigger: trigger, entries: s.pending, count: s.total}
	s.pending = orderedmap.New[string, []model.ChangeEvent]()
	s.total = 0
	s.batchCount = 0
	return b
}

func (s *Scheduler) stopTimersLocked() {
	if s.quiet != nil {
		s.quiet.Stop()
		s.quiet = nil
	}
	if s.frameTimer != nil {
		s.frameTimer.Stop()
		s.frameTimer = nil
	}
	s.gen++
}

// enqueueLocked hands b to the outbox. It returns true when the caller must
// drain it; false when the batch is empty or another call is already
// draining (it will pick b up in order).
func (s *Scheduler) enqueueLocked(b batch) bool {
	if b.count == 0 {
		return false
	}
	s.outbox = append(s.outbox, b)
	if s.draining {
		return false
	}
	s.draining = true
	return true
}

func (s *Scheduler) drain() {
	defer func() {
		if r := recover(); r != nil {
			s.mu.Lock()
			s.draining = false
			s.mu.Unlock()
			panic(r)
		}
	}()
	for {
		s.mu.Lock()
		if len(s.outbox) == 0 {
			s.draining = false
			s.mu.Unlock()
			return
		}
		b := s.outbox[0]
		s.outbox = s.outbox[1:]
		s.mu.Unlock()
		s.deliver(b)
	}
}

func (s *Scheduler) deliver(b batch) {
	start := time.Now()
	for pair := b.entries.Oldest(); pair != nil; pair = pair.Next() {
		if s.consumer != nil {
			s.consumer(pair.Key, pair.Value)
		}
	}
	elapsed := time.Since(start)
	metrics.ChangeFlush.Record(elapsed)
	s.samples.Add(elapsed)

	s.mu.Lock()
	s.stats.Flushes++
	s.stats.Delivered += b.count
	s.stats.LastTrigger = b.trigger
	if b.trigger == TriggerCap {
		s.stats.CapFlushes++
	}
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{
		"trigger":     b.trigger.String(),
		"entities":    b.entries.Len(),
		"changes":     b.count,
		"duration_ms": float64(elapsed.Microseconds()) / 1000.0,
	}).Debug("flushed changes")
}

// Flush cancels pending timers and delivers everything queued so far.
// It is a no-op on an empty queue.
func (s *Scheduler) Flush() {
	s.mu.Lock()
	if s.total == 0 {
		s.stopTimersLocked()
		s.mu.Unlock()
		return
	}
	drain := s.enqueueLocked(s.detachLocked(TriggerManual))
	s.mu.Unlock()
	if drain {
		s.drain()
	}
}

// Clear cancels pending timers and discards everything queued so far.
func (s *Scheduler) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.detachLocked(TriggerManual)
	s.stats.Discarded += b.count
	if b.count > 0 {
		s.log.WithField("changes", b.count).Debug("discarded pending changes")
	}
}

// Pending returns the number of entities and changes waiting for delivery.
func (s *Scheduler) Pending() (entities, changes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending.Len(), s.total
}

// PendingFor returns a copy of the changes waiting for entityID.
func (s *Scheduler) PendingFor(entityID string) []model.ChangeEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	list, ok := s.pending.Get(entityID)
	if !ok {
		return nil
	}
	out := make([]model.ChangeEvent, len(list))
	copy(out, list)
	return out
}

// Stats returns activity counters and the flush-duration moving average.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	st := s.stats
	s.mu.Unlock()
	st.LastDuration = s.samples.Last()
	st.AverageDuration = s.samples.Average()
	return st
}

// Close cancels every timer and rejects further changes. Anything still
// queued stays queued; call Flush first to deliver it.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimersLocked()
	s.closed = true
}
