package expansion

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vanderheijden86/composer/pkg/clock"
	"github.com/vanderheijden86/composer/pkg/debug"
)

// DefaultStepDelay is the pause between two staged expansions.
const DefaultStepDelay = 50 * time.Millisecond

// SequencerConfig wires a Sequencer to the expansion state it drives.
type SequencerConfig struct {
	StepDelay time.Duration
	// IsExpanded reports whether an ancestor is already open; such ids are
	// skipped without consuming a step.
	IsExpanded func(id string) bool
	// Expand opens one ancestor.
	Expand func(id string)
	// OnComplete runs once every step of a sequence has fired.
	OnComplete func(path []string, target string)

	Clock  clock.Clock
	Logger logrus.FieldLogger
}

// Sequencer expands the ancestors of a target one at a time so the reveal
// reads as a staged animation. At most one sequence is in flight; its
// per-step timers are keyed by ancestor id.
type Sequencer struct {
	cfg SequencerConfig
	log logrus.FieldLogger

	mu        sync.Mutex
	target    string
	path      []string
	active    bool
	timers    map[string]clock.Timer
	remaining int
	gen       uint64
}

// NewSequencer returns an idle Sequencer.
func NewSequencer(cfg SequencerConfig) *Sequencer {
	if cfg.StepDelay <= 0 {
		cfg.StepDelay = DefaultStepDelay
	}
	cfg.Clock = clock.Or(cfg.Clock)
	if cfg.IsExpanded == nil {
		cfg.IsExpanded = func(string) bool { return false }
	}
	log := cfg.Logger
	if log == nil {
		log = debug.NewLogger("expansion")
	}
	return &Sequencer{cfg: cfg, log: log, timers: make(map[string]clock.Timer)}
}

// Start begins revealing target along path. Re-starting the target that is
// already in flight is a no-op and returns false. Any other in-flight
// sequence is cancelled first.
//
// The first unexpanded ancestor opens immediately, the next one StepDelay
// later, and so on. When nothing needs expanding, OnComplete runs before
// Start returns.
func (s *Sequencer) Start(target string, path []string) bool {
	var steps []string
	queued := make(map[string]bool, len(path))
	for _, id := range path {
		if id != "" && !queued[id] && !s.cfg.IsExpanded(id) {
			queued[id] = true
			steps = append(steps, id)
		}
	}

	s.mu.Lock()
	if s.active && s.target == target {
		s.mu.Unlock()
		return false
	}
	s.cancelLocked()
	s.target = target
	s.path = append([]string(nil), path...)

	if len(steps) == 0 {
		s.active = false
		s.mu.Unlock()
		s.complete(path, target)
		return true
	}

	s.active = true
	s.remaining = len(steps)
	gen := s.gen
	for i, id := range steps {
		id := id
		s.timers[id] = s.cfg.Clock.AfterFunc(time.Duration(i)*s.cfg.StepDelay, func() { s.step(gen, id) })
	}
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{
		"target": target,
		"path":   len(path),
		"steps":  len(steps),
	}).Debug("auto-expand started")
	return true
}

func (s *Sequencer) step(gen uint64, id string) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	delete(s.timers, id)
	s.remaining--
	done := s.remaining == 0
	path, target := s.path, s.target
	if done {
		s.active = false
	}
	s.mu.Unlock()

	if s.cfg.Expand != nil {
		s.cfg.Expand(id)
	}
	if done {
		s.complete(path, target)
	}
}

func (s *Sequencer) complete(path []string, target string) {
	s.log.WithField("target", target).Debug("auto-expand complete")
	if s.cfg.OnComplete != nil {
		s.cfg.OnComplete(path, target)
	}
}

// Stop cancels the in-flight sequence, if any.
func (s *Sequencer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked()
	s.active = false
	s.target = ""
	s.path = nil
}

func (s *Sequencer) cancelLocked() {
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	s.remaining = 0
	s.gen++
}

// Active reports whether a sequence is in flight.
func (s *Sequencer) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Target returns the id of the last started sequence, or "" after Stop.
func (s *Sequencer) Target() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target
}

// PendingSteps returns how many per-step timers are still armed.
func (s *Sequencer) PendingSteps() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}
