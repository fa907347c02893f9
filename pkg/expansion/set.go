package expansion

import (
	"sync"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// DefaultMaxExpanded bounds a Set when no limit is given.
const DefaultMaxExpanded = 100

// Set is the bounded set of expanded node ids. Once it holds more than its
// limit, the oldest-inserted ids are evicted first. Re-adding an id that
// is already present does not refresh its age.
type Set struct {
	mu      sync.Mutex
	max     int
	ids     *orderedmap.OrderedMap[string, struct{}]
	onEvict func(evicted []string)
}

// NewSet returns an empty Set holding at most max ids.
func NewSet(max int) *Set {
	if max <= 0 {
		max = DefaultMaxExpanded
	}
	return &Set{max: max, ids: orderedmap.New[string, struct{}]()}
}

// OnEvict registers fn to receive ids dropped by the size bound. It is
// called without the set's lock held.
func (s *Set) OnEvict(fn func(evicted []string)) {
	s.mu.Lock()
	s.onEvict = fn
	s.mu.Unlock()
}

// Max returns the size bound.
func (s *Set) Max() int { return s.max }

// Add inserts id and reports whether it was newly added.
func (s *Set) Add(id string) bool {
	if id == "" {
		return false
	}
	s.mu.Lock()
	_, present := s.ids.Set(id, struct{}{})
	evicted, fn := s.trimLocked(), s.onEvict
	s.mu.Unlock()
	s.notify(fn, evicted)
	return !present
}

// AddAll inserts ids in order and returns how many were new.
func (s *Set) AddAll(ids []string) int {
	s.mu.Lock()
	added := 0
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, present := s.ids.Set(id, struct{}{}); !present {
			added++
		}
	}
	evicted, fn := s.trimLocked(), s.onEvict
	s.mu.Unlock()
	s.notify(fn, evicted)
	return added
}

// Remove deletes id and reports whether it was present.
func (s *Set) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, present := s.ids.Delete(id)
	return present
}

// Toggle flips id and returns its new state.
func (s *Set) Toggle(id string) bool {
	s.mu.Lock()
	if _, present := s.ids.Delete(id); present {
		s.mu.Unlock()
		return false
	}
	s.mu.Unlock()
	return s.Add(id)
}

// Has reports whether id is expanded.
func (s *Set) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids.Get(id)
	return ok
}

// Len returns the number of expanded ids.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ids.Len()
}

// IDs returns the expanded ids, oldest first.
func (s *Set) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, s.ids.Len())
	for pair := s.ids.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Key)
	}
	return out
}

// Clear empties the set and returns how many ids were removed.
func (s *Set) Clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.ids.Len()
	s.ids = orderedmap.New[string, struct{}]()
	return n
}

// Replace swaps the contents for ids, in order. If ids exceeds the bound,
// the last max of them are kept.
func (s *Set) Replace(ids []string) {
	s.mu.Lock()
	s.ids = orderedmap.New[string, struct{}]()
	for _, id := range ids {
		if id != "" {
			s.ids.Set(id, struct{}{})
		}
	}
	evicted, fn := s.trimLocked(), s.onEvict
	s.mu.Unlock()
	s.notify(fn, evicted)
}

func (s *Set) trimLocked() []string {
	var evicted []string
	for s.ids.Len() > s.max {
		oldest := s.ids.Oldest()
		evicted = append(evicted, oldest.Key)
		s.ids.Delete(oldest.Key)
	}
	return evicted
}

func (s *Set) notify(fn func([]string), evicted []string) {
	if fn != nil && len(evicted) > 0 {
		fn(evicted)
	}
}
