// Package coordinator keeps the hierarchy view state in step with a
// mutating entity tree. It owns the change queue, the expanded set, the
// auto-expand sequencer, the latency tracker and the preference store,
// and reports every view-affecting transition through a Listener.
package coordinator

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vanderheijden86/composer/pkg/changequeue"
	"github.com/vanderheijden86/composer/pkg/clock"
	"github.com/vanderheijden86/composer/pkg/config"
	"github.com/vanderheijden86/composer/pkg/debounce"
	"github.com/vanderheijden86/composer/pkg/debug"
	"github.com/vanderheijden86/composer/pkg/expansion"
	"github.com/vanderheijden86/composer/pkg/indicator"
	"github.com/vanderheijden86/composer/pkg/latency"
	"github.com/vanderheijden86/composer/pkg/model"
	"github.com/vanderheijden86/composer/pkg/prefs"
)

// Config tunes every component the coordinator owns.
type Config struct {
	Scheduler       changequeue.Config
	StepDelay       time.Duration
	MaxExpanded     int
	PersistDebounce time.Duration
	SlowThreshold   time.Duration
	SlowGrace       time.Duration
	MaxIndicators   int
	DisplayWidth    int
}

// DefaultConfig returns the stock tuning.
func DefaultConfig() Config {
	return ConfigFrom(config.DefaultConfig())
}

// ConfigFrom maps the file/env configuration onto a Config.
func ConfigFrom(c config.Config) Config {
	return Config{
		Scheduler: changequeue.Config{
			Debounce:       c.Scheduler.Debounce.Std(),
			BatchThreshold: c.Scheduler.BatchThreshold,
			BatchWindow:    c.Scheduler.BatchWindow.Std(),
			MaxBatchSize:   c.Scheduler.MaxBatchSize,
			FrameInterval:  c.Scheduler.FrameInterval.Std(),
		},
		StepDelay:       c.Expansion.StepDelay.Std(),
		MaxExpanded:     c.Expansion.MaxExpanded,
		PersistDebounce: c.Preferences.PersistDebounce.Std(),
		SlowThreshold:   c.Latency.SlowThreshold.Std(),
		SlowGrace:       c.Latency.Grace.Std(),
		MaxIndicators:   c.Indicators.MaxIndicators,
		DisplayWidth:    c.Indicators.DisplayWidth,
	}
}

// EventKind identifies a view transition.
type EventKind int

const (
	EventTreeChanged EventKind = iota
	EventDelivered
	EventExpanded
	EventCollapsed
	EventRevealed
	EventEditing
	EventSettled
	EventRestored
)

func (k EventKind) String() string {
	switch k {
	case EventTreeChanged:
		return "tree-changed"
	case EventDelivered:
		return "delivered"
	case EventExpanded:
		return "expanded"
	case EventCollapsed:
		return "collapsed"
	case EventRevealed:
		return "revealed"
	case EventEditing:
		return "editing"
	case EventSettled:
		return "settled"
	case EventRestored:
		return "restored"
	}
	return "unknown"
}

// Event describes one transition. Only the fields relevant to Kind are set.
type Event struct {
	Kind     EventKind
	EntityID string
	IDs      []string
	Changes  []model.ChangeEvent
	Duration time.Duration
}

// Listener receives events. It is called without coordinator locks held
// and may call back into the coordinator.
type Listener func(Event)

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock drives every timer from c.
func WithClock(c clock.Clock) Option {
	return func(co *Coordinator) { co.clock = clock.Or(c) }
}

// WithLogger sets the diagnostic logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(co *Coordinator) { co.log = l }
}

// WithPrefs persists the expanded set through s.
func WithPrefs(s *prefs.Store) Option {
	return func(co *Coordinator) { co.prefs = s }
}

// WithConsumer receives every flushed delivery after it has been applied
// to the coordinator's entity snapshot.
func WithConsumer(fn changequeue.Consumer) Option {
	return func(co *Coordinator) { co.consumer = fn }
}

// WithListener receives view transitions.
func WithListener(fn Listener) Option {
	return func(co *Coordinator) { co.listener = fn }
}

// WithFrameFunc replaces the scheduler's next-frame timer.
func WithFrameFunc(f changequeue.FrameFunc) Option {
	return func(co *Coordinator) { co.frame = f }
}

// Coordinator is safe for concurrent use.
type Coordinator struct {
	cfg      Config
	clock    clock.Clock
	log      logrus.FieldLogger
	prefs    *prefs.Store
	consumer changequeue.Consumer
	listener Listener
	frame    changequeue.FrameFunc

	queue      *changequeue.Scheduler
	expanded   *expansion.Set
	sequencer  *expansion.Sequencer
	indicators *indicator.Engine
	latency    *latency.Tracker
	persist    *debounce.Debouncer

	mu        sync.RWMutex
	hierarchy *model.Hierarchy
	entities  map[string]model.Entity
	editing   string
	restored  bool
	settings  prefs.Settings
}

// New wires a Coordinator. It starts with an empty tree; call SetTree.
func New(cfg Config, opts ...Option) *Coordinator {
	c := &Coordinator{
		cfg:       cfg,
		clock:     clock.Real{},
		hierarchy: model.BuildHierarchy(nil),
		entities:  map[string]model.Entity{},
		settings:  prefs.DefaultSettings(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = debug.NewLogger("coordinator")
	}
	if c.prefs != nil {
		c.settings = c.prefs.Load().Settings
	}

	qopts := []changequeue.Option{changequeue.WithClock(c.clock), changequeue.WithLogger(c.log)}
	if c.frame != nil {
		qopts = append(qopts, changequeue.WithFrameFunc(c.frame))
	}
	c.queue = changequeue.New(cfg.Scheduler, c.deliver, qopts...)

	c.expanded = expansion.NewSet(cfg.MaxExpanded)
	c.expanded.OnEvict(func(ids []string) {
		c.log.WithField("ids", ids).Debug("evicted from expanded set")
		c.emit(Event{Kind: EventCollapsed, IDs: ids})
	})
	c.sequencer = expansion.NewSequencer(expansion.SequencerConfig{
		StepDelay:  cfg.StepDelay,
		IsExpanded: c.expanded.Has,
		Expand:     func(id string) { c.expand([]string{id}) },
		OnComplete: func(path []string, target string) {
			c.emit(Event{Kind: EventRevealed, EntityID: target, IDs: path})
		},
		Clock:  c.clock,
		Logger: c.log,
	})
	c.indicators = indicator.NewEngine(
		indicator.WithMaxIndicators(cfg.MaxIndicators),
		indicator.WithDisplayWidth(cfg.DisplayWidth),
	)
	c.latency = latency.NewTracker(latency.Config{
		SlowThreshold: cfg.SlowThreshold,
		Grace:         cfg.SlowGrace,
		OnSettled:     func(id string) { c.emit(Event{Kind: EventSettled, EntityID: id}) },
		Clock:         c.clock,
		Logger:        c.log,
	})
	c.persist = debounce.NewWithClock(cfg.PersistDebounce, c.clock)
	return c
}

func (c *Coordinator) emit(ev Event) {
	if c.listener != nil {
		c.listener(ev)
	}
}

// SetTree replaces the entity snapshot and rebuilds the hierarchy. The
// first tree a coordinator sees restores the persisted expanded set.
func (c *Coordinator) SetTree(entities []model.Entity) {
	h := model.BuildHierarchy(entities)
	index := model.IndexEntities(entities)

	c.mu.Lock()
	c.hierarchy = h
	c.entities = index
	first := !c.restored
	c.restored = true
	c.mu.Unlock()

	c.emit(Event{Kind: EventTreeChanged, IDs: h.Roots})
	if first {
		c.restore(h)
	}
}

func (c *Coordinator) restore(h *model.Hierarchy) {
	if c.prefs == nil {
		return
	}
	ids, ok := c.prefs.Restore(h.Len())
	if !ok {
		return
	}
	keep := present(h, ids)
	c.expanded.Replace(keep)
	c.log.WithField("ids", len(keep)).Debug("restored expanded set")
	c.emit(Event{Kind: EventRestored, IDs: keep})
}

// present returns the ids that name a node in h, in order.
func present(h *model.Hierarchy, ids []string) []string {
	keep := ids[:0:0]
	for _, id := range ids {
		if h.Has(id) {
			keep = append(keep, id)
		}
	}
	return keep
}

// QueueChange hands a committed field edit to the change queue.
func (c *Coordinator) QueueChange(change model.ChangeEvent) {
	if change.Timestamp.IsZero() {
		change.Timestamp = c.clock.Now()
	}
	c.queue.Queue(change.EntityID, change)
}

// Flush delivers every pending change now.
func (c *Coordinator) Flush() { c.queue.Flush() }

// ClearPending discards every pending change.
func (c *Coordinator) ClearPending() { c.queue.Clear() }

// Pending returns the queued entity and change counts.
func (c *Coordinator) Pending() (entities, changes int) { return c.queue.Pending() }

// Stats returns change-queue activity.
func (c *Coordinator) Stats() changequeue.Stats { return c.queue.Stats() }

func (c *Coordinator) deliver(entityID string, changes []model.ChangeEvent) {
	d := c.latency.Track(entityID, func() {
		c.mu.Lock()
		if e, ok := c.entities[entityID]; ok {
			for _, ch := range changes {
				e = e.Apply(ch)
			}
			c.entities[entityID] = e
		}
		c.mu.Unlock()

		if c.consumer != nil {
			c.consumer(entityID, changes)
		}
	})
	c.emit(Event{Kind: EventDelivered, EntityID: entityID, Changes: changes, Duration: d})
}

// SetEditing makes id the active edit target, or clears it when id is
// empty. With auto-expand on, the target's ancestors are revealed in
// stages.
func (c *Coordinator) SetEditing(id string) {
	c.mu.Lock()
	if c.editing == id {
		c.mu.Unlock()
		return
	}
	c.editing = id
	nodes := c.hierarchy.Nodes
	auto := c.settings.AutoExpandOnEdit
	c.mu.Unlock()

	c.emit(Event{Kind: EventEditing, EntityID: id})
	if id == "" {
		c.sequencer.Stop()
		return
	}
	if auto {
		c.sequencer.Start(id, expansion.Path(id, nodes))
	}
}

// Reveal expands id's ancestors in stages regardless of the auto-expand
// setting. EventRevealed reports completion.
func (c *Coordinator) Reveal(id string) bool {
	return c.sequencer.Start(id, expansion.Path(id, c.Hierarchy().Nodes))
}

// Editing returns the active edit target.
func (c *Coordinator) Editing() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.editing
}

// Expand opens id.
func (c *Coordinator) Expand(id string) {
	c.expand([]string{id})
}

// ExpandPath opens every ancestor of id at once.
func (c *Coordinator) ExpandPath(id string) []string {
	path := expansion.Path(id, c.Hierarchy().Nodes)
	c.expand(path)
	return path
}

func (c *Coordinator) expand(ids []string) {
	var added []string
	for _, id := range ids {
		if c.expanded.Add(id) {
			added = append(added, id)
		}
	}
	if len(added) == 0 {
		return
	}
	c.emit(Event{Kind: EventExpanded, IDs: added})
	c.schedulePersist()
}

// Collapse closes id.
func (c *Coordinator) Collapse(id string) {
	if !c.expanded.Remove(id) {
		return
	}
	c.emit(Event{Kind: EventCollapsed, IDs: []string{id}})
	c.schedulePersist()
}

// Toggle flips id and returns its new state.
func (c *Coordinator) Toggle(id string) bool {
	if c.expanded.Has(id) {
		c.Collapse(id)
		return false
	}
	c.Expand(id)
	return c.expanded.Has(id)
}

// CollapseAll closes every node.
func (c *Coordinator) CollapseAll() {
	ids := c.expanded.IDs()
	if c.expanded.Clear() == 0 {
		return
	}
	c.sequencer.Stop()
	c.emit(Event{Kind: EventCollapsed, IDs: ids})
	c.schedulePersist()
}

// IsExpanded reports whether id is open.
func (c *Coordinator) IsExpanded(id string) bool { return c.expanded.Has(id) }

// Expanded returns the open ids, oldest first.
func (c *Coordinator) Expanded() []string { return c.expanded.IDs() }

// Revealing reports whether a staged reveal is in flight.
func (c *Coordinator) Revealing() bool { return c.sequencer.Active() }

func (c *Coordinator) schedulePersist() {
	if c.prefs == nil {
		return
	}
	c.persist.Trigger(c.savePrefs)
}

func (c *Coordinator) savePrefs() {
	if !c.Settings().RememberExpansion {
		return
	}
	size := c.Hierarchy().Len()
	if !c.prefs.Save(prefs.WithExpanded(c.expanded.IDs()), prefs.WithHierarchySize(size)) {
		c.log.Warn("view preferences not saved")
	}
}

// Hierarchy returns the current view forest. Callers must not mutate it.
func (c *Coordinator) Hierarchy() *model.Hierarchy {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hierarchy
}

// Entity returns the current snapshot of id.
func (c *Coordinator) Entity(id string) (model.Entity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entities[id]
	return e, ok
}

// Entities returns every entity in hierarchy display order, including
// collapsed ones.
func (c *Coordinator) Entities() []model.Entity {
	h := c.Hierarchy()
	nodes := h.Visible(func(string) bool { return true })
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.Entity, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, c.entities[n.ID])
	}
	return out
}

// Visible returns copies of the displayed nodes with IsExpanded and
// IsEditing filled in.
func (c *Coordinator) Visible() []model.HierarchyNode {
	h := c.Hierarchy()
	editing := c.Editing()
	nodes := h.Visible(c.expanded.Has)
	out := make([]model.HierarchyNode, len(nodes))
	for i, n := range nodes {
		out[i] = *n
		out[i].IsExpanded = c.expanded.Has(n.ID)
		out[i].IsEditing = n.ID == editing
	}
	return out
}

// Indicators ranks the badges of id's current snapshot.
func (c *Coordinator) Indicators(id string) indicator.Analysis {
	e, ok := c.Entity(id)
	if !ok {
		return indicator.Analysis{}
	}
	return c.indicators.Analyze(e)
}

// Status returns id's latency classification.
func (c *Coordinator) Status(id string) latency.Status { return c.latency.Status(id) }

// Settings returns the preference settings in effect.
func (c *Coordinator) Settings() prefs.Settings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settings
}

// SetAutoExpand turns staged reveal on edit on or off and persists it.
func (c *Coordinator) SetAutoExpand(on bool) {
	c.mu.Lock()
	c.settings.AutoExpandOnEdit = on
	c.mu.Unlock()
	if !on {
		c.sequencer.Stop()
	}
	if c.prefs != nil {
		c.prefs.Save(prefs.WithSettings(func(s *prefs.Settings) { s.AutoExpandOnEdit = on }))
	}
}

// SaveSnapshot stores the expanded set under name.
func (c *Coordinator) SaveSnapshot(name string) bool {
	if c.prefs == nil {
		return false
	}
	return c.prefs.SaveSnapshot(name, c.expanded.IDs())
}

// RestoreSnapshot replaces the expanded set with the snapshot stored under
// name.
func (c *Coordinator) RestoreSnapshot(name string) bool {
	if c.prefs == nil {
		return false
	}
	ids, ok := c.prefs.LoadSnapshot(name)
	if !ok {
		return false
	}
	c.sequencer.Stop()
	c.expanded.Replace(present(c.Hierarchy(), ids))
	c.emit(Event{Kind: EventRestored, IDs: c.expanded.IDs()})
	c.schedulePersist()
	return true
}

// Snapshots lists the stored snapshots.
func (c *Coordinator) Snapshots() []prefs.Snapshot {
	if c.prefs == nil {
		return nil
	}
	return c.prefs.ListSnapshots()
}

// Close cancels every timer, delivers pending changes and writes any
// pending preferences.
func (c *Coordinator) Close() {
	c.sequencer.Stop()
	c.queue.Flush()
	c.queue.Close()
	c.persist.Flush()
	c.latency.Close()
}
