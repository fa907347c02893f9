// Package prefs persists view preferences (the expanded set and related
// settings) and named expansion snapshots.
//
// Storage problems never reach the caller: Save reports false, Load falls
// back to defaults, and the cause is logged.
package prefs

import (
	"errors"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"

	"github.com/vanderheijden86/composer/pkg/clock"
	"github.com/vanderheijden86/composer/pkg/debug"
	"github.com/vanderheijden86/composer/pkg/metrics"
)

// Version is the record layout written by this package. Records with a
// different version are discarded on load.
const Version = 1

// Defaults for StoreConfig fields left at zero.
const (
	DefaultNamespace     = "default"
	DefaultMaxAge        = 30 * 24 * time.Hour
	DefaultMaxDrift      = 0.5
	DefaultSnapshotLimit = 50
	DefaultMaxRemembered = 100
)

const keyPrefix = "composer-view-prefs:"

// Settings are the user-facing knobs stored with the preferences.
type Settings struct {
	RememberExpansion bool `json:"rememberExpansion"`
	AutoExpandOnEdit  bool `json:"autoExpandOnEdit"`
	MaxRemembered     int  `json:"maxRemembered"`
}

// DefaultSettings returns the settings used when nothing is stored.
func DefaultSettings() Settings {
	return Settings{RememberExpansion: true, AutoExpandOnEdit: true, MaxRemembered: DefaultMaxRemembered}
}

// ViewPreferences is the single record kept per namespace.
type ViewPreferences struct {
	ExpandedItems []string  `json:"expandedItems"`
	LastSaved     time.Time `json:"lastSaved"`
	Version       int       `json:"version"`
	// HierarchySize is the node count when the record was saved.
	HierarchySize int      `json:"hierarchySize,omitempty"`
	Settings      Settings `json:"settings"`
}

// Defaults returns empty preferences with default settings.
func Defaults() ViewPreferences {
	return ViewPreferences{ExpandedItems: []string{}, Version: Version, Settings: DefaultSettings()}
}

// Snapshot is a named expansion set.
type Snapshot struct {
	Name          string    `json:"name"`
	ExpandedItems []string  `json:"expandedItems"`
	Timestamp     time.Time `json:"timestamp"`
}

// StoreConfig tunes a Store.
type StoreConfig struct {
	Namespace string
	// MaxAge discards records saved longer ago than this.
	MaxAge time.Duration
	// MaxDrift is the relative hierarchy-size change beyond which a stored
	// expansion set is not restored.
	MaxDrift      float64
	SnapshotLimit int

	Clock  clock.Clock
	Logger logrus.FieldLogger
}

// Store reads and writes preferences through a Backend. It is safe for
// concurrent use.
type Store struct {
	backend Backend
	cfg     StoreConfig
	log     logrus.FieldLogger

	mu     sync.Mutex
	cached *ViewPreferences
}

// NewStore returns a Store over backend.
func NewStore(backend Backend, cfg StoreConfig) *Store {
	cfg.Namespace = strings.TrimSpace(cfg.Namespace)
	if cfg.Namespace == "" {
		cfg.Namespace = DefaultNamespace
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	if cfg.MaxDrift <= 0 {
		cfg.MaxDrift = DefaultMaxDrift
	}
	if cfg.SnapshotLimit <= 0 {
		cfg.SnapshotLimit = DefaultSnapshotLimit
	}
	cfg.Clock = clock.Or(cfg.Clock)
	log := cfg.Logger
	if log == nil {
		log = debug.NewLogger("prefs")
	}
	log = log.WithField("namespace", cfg.Namespace)
	return &Store{backend: backend, cfg: cfg, log: log}
}

// Key returns the storage key of the main record.
func (s *Store) Key() string { return keyPrefix + s.cfg.Namespace }

func (s *Store) snapshotPrefix() string { return s.Key() + ":snapshot:" }

func (s *Store) snapshotKey(name string) string { return s.snapshotPrefix() + name }

// Update is a partial change applied by Save.
type Update func(*ViewPreferences)

// WithExpanded replaces the expanded ids.
func WithExpanded(ids []string) Update {
	return func(p *ViewPreferences) { p.ExpandedItems = append([]string(nil), ids...) }
}

// WithHierarchySize records the current node count for the drift check.
func WithHierarchySize(n int) Update {
	return func(p *ViewPreferences) { p.HierarchySize = n }
}

// WithSettings edits the stored settings in place.
func WithSettings(fn func(*Settings)) Update {
	return func(p *ViewPreferences) { fn(&p.Settings) }
}

// Save merges updates onto the last loaded preferences and writes the
// result. It reports false if the record could not be written.
func (s *Store) Save(updates ...Update) bool {
	defer metrics.Timer(metrics.PrefsSave)()

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.loadLocked()
	next.ExpandedItems = append([]string(nil), next.ExpandedItems...)
	for _, u := range updates {
		u(&next)
	}
	if next.Settings.MaxRemembered <= 0 {
		next.Settings.MaxRemembered = DefaultMaxRemembered
	}
	next.ExpandedItems = clean(next.ExpandedItems, next.Settings.MaxRemembered)
	next.LastSaved = s.cfg.Clock.Now()
	next.Version = Version

	data, err := json.Marshal(next)
	if err != nil {
		s.log.WithError(err).Warn("encoding view preferences")
		return false
	}
	if err := s.backend.Put(s.Key(), data); err != nil {
		s.log.WithError(err).WithField("key", s.Key()).Warn("saving view preferences")
		return false
	}
	s.cached = &next
	return true
}

// Load returns the stored preferences, or Defaults when the record is
// missing, unreadable, from another version or older than MaxAge.
func (s *Store) Load() ViewPreferences {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.loadLocked()
	p.ExpandedItems = append([]string{}, p.ExpandedItems...)
	return p
}

func (s *Store) loadLocked() ViewPreferences {
	if s.cached != nil {
		return *s.cached
	}
	defer metrics.Timer(metrics.PrefsLoad)()

	p := s.read()
	s.cached = &p
	return p
}

func (s *Store) read() ViewPreferences {
	log := s.log.WithField("key", s.Key())
	data, err := s.backend.Get(s.Key())
	if errors.Is(err, ErrNotFound) {
		return Defaults()
	}
	if err != nil {
		log.WithError(err).Warn("reading view preferences, using defaults")
		return Defaults()
	}

	// Decoding over the defaults keeps settings that the stored record
	// predates.
	p := Defaults()
	if err := json.Unmarshal(data, &p); err != nil {
		log.WithError(err).Warn("corrupt view preferences, using defaults")
		return Defaults()
	}
	if p.Version != Version {
		log.WithField("version", p.Version).Warn("view preferences from another version, discarding")
		return Defaults()
	}
	if age := s.cfg.Clock.Now().Sub(p.LastSaved); age > s.cfg.MaxAge {
		log.WithField("age", age.Round(time.Second).String()).Warn("view preferences expired, discarding")
		return Defaults()
	}
	if p.ExpandedItems == nil {
		p.ExpandedItems = []string{}
	}
	return p
}

// Restore returns the expanded ids to apply to a hierarchy of
// currentSize nodes. It reports false when expansion is not remembered,
// nothing is stored, or the hierarchy size drifted more than MaxDrift
// from the size recorded at save time.
func (s *Store) Restore(currentSize int) ([]string, bool) {
	p := s.Load()
	if !p.Settings.RememberExpansion || len(p.ExpandedItems) == 0 {
		return nil, false
	}
	if drift, ok := Drift(p.HierarchySize, currentSize); ok && drift > s.cfg.MaxDrift {
		s.log.WithFields(logrus.Fields{
			"saved_size":   p.HierarchySize,
			"current_size": currentSize,
			"drift":        drift,
		}).Warn("hierarchy changed too much, not restoring expansion")
		return nil, false
	}
	return p.ExpandedItems, true
}

// Drift returns |current-saved|/saved. ok is false when saved is unknown.
func Drift(saved, current int) (float64, bool) {
	if saved <= 0 {
		return 0, false
	}
	return math.Abs(float64(current-saved)) / float64(saved), true
}

// Reset deletes the main record and forgets the cached copy.
func (s *Store) Reset() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.backend.Delete(s.Key()); err != nil {
		s.log.WithError(err).Warn("resetting view preferences")
		return false
	}
	s.cached = nil
	return true
}

// SaveSnapshot stores ids under name, keeping at most SnapshotLimit of
// the most recent ones.
func (s *Store) SaveSnapshot(name string, ids []string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	snap := Snapshot{Name: name, ExpandedItems: clean(ids, s.cfg.SnapshotLimit), Timestamp: s.cfg.Clock.Now()}
	data, err := json.Marshal(snap)
	if err != nil {
		s.log.WithError(err).Warn("encoding snapshot")
		return false
	}
	if err := s.backend.Put(s.snapshotKey(name), data); err != nil {
		s.log.WithError(err).WithField("snapshot", name).Warn("saving snapshot")
		return false
	}
	return true
}

// LoadSnapshot returns the ids stored under name. It reports false for a
// missing, unreadable or expired snapshot.
func (s *Store) LoadSnapshot(name string) ([]string, bool) {
	snap, ok := s.readSnapshot(s.snapshotKey(strings.TrimSpace(name)))
	if !ok {
		return nil, false
	}
	return snap.ExpandedItems, true
}

func (s *Store) readSnapshot(key string) (Snapshot, bool) {
	log := s.log.WithField("key", key)
	data, err := s.backend.Get(key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			log.WithError(err).Warn("reading snapshot")
		}
		return Snapshot{}, false
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		log.WithError(err).Warn("corrupt snapshot")
		return Snapshot{}, false
	}
	if age := s.cfg.Clock.Now().Sub(snap.Timestamp); age > s.cfg.MaxAge {
		log.WithField("age", age.Round(time.Second).String()).Warn("snapshot expired")
		return Snapshot{}, false
	}
	return snap, true
}

// ListSnapshots returns every valid snapshot, sorted by name.
func (s *Store) ListSnapshots() []Snapshot {
	keys, err := s.backend.Keys(s.snapshotPrefix())
	if err != nil {
		s.log.WithError(err).Warn("listing snapshots")
		return nil
	}
	out := make([]Snapshot, 0, len(keys))
	for _, k := range keys {
		if snap, ok := s.readSnapshot(k); ok {
			out = append(out, snap)
		}
	}
	return out
}

// DeleteSnapshot removes the snapshot stored under name.
func (s *Store) DeleteSnapshot(name string) bool {
	if err := s.backend.Delete(s.snapshotKey(strings.TrimSpace(name))); err != nil {
		s.log.WithError(err).WithField("snapshot", name).Warn("deleting snapshot")
		return false
	}
	return true
}

// Close closes the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// clean drops empty and duplicate ids and keeps the last limit of them.
func clean(ids []string, limit int) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}
