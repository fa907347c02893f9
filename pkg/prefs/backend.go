package prefs

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	// ErrNotFound is returned by Backend.Get for a missing key.
	ErrNotFound = errors.New("prefs: key not found")
	// ErrQuotaExceeded is returned by Backend.Put when the value does not fit.
	ErrQuotaExceeded = errors.New("prefs: storage quota exceeded")
)

// Backend is a durable key/value store for serialized preference records.
type Backend interface {
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
	Delete(key string) error
	// Keys returns every stored key with the given prefix, sorted.
	Keys(prefix string) ([]string, error)
	Close() error
}

// Backend kinds accepted by Open.
const (
	KindMemory = "memory"
	KindFile   = "file"
	KindSQLite = "sqlite"
	KindBolt   = "bolt"
)

// Open returns the backend of the given kind rooted at path.
func Open(kind, path string) (Backend, error) {
	var (
		b   Backend
		err error
	)
	switch strings.ToLower(kind) {
	case KindMemory, "":
		return NewMemoryBackend(0), nil
	case KindFile:
		b, err = NewFileBackend(path)
	case KindSQLite:
		b, err = OpenSQLite(path)
	case KindBolt:
		b, err = OpenBolt(path)
	default:
		return nil, fmt.Errorf("unknown preferences backend %q", kind)
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// MemoryBackend keeps records in process memory, optionally bounded by a
// total byte quota.
type MemoryBackend struct {
	mu    sync.Mutex
	quota int
	used  int
	data  map[string][]byte
}

// NewMemoryBackend returns an empty MemoryBackend. quota <= 0 means
// unbounded.
func NewMemoryBackend(quota int) *MemoryBackend {
	return &MemoryBackend{quota: quota, data: make(map[string][]byte)}
}

func (m *MemoryBackend) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *MemoryBackend) Put(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	used := m.used - len(m.data[key]) + len(value)
	if m.quota > 0 && used > m.quota {
		return fmt.Errorf("put %s (%d bytes): %w", key, len(value), ErrQuotaExceeded)
	}
	m.data[key] = append([]byte(nil), value...)
	m.used = used
	return nil
}

func (m *MemoryBackend) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.used -= len(m.data[key])
	delete(m.data, key)
	return nil
}

func (m *MemoryBackend) Keys(prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryBackend) Close() error { return nil }

// Used returns the number of bytes stored.
func (m *MemoryBackend) Used() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.used
}
