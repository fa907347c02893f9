package watcher

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vanderheijden86/composer/pkg/debug"
)

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func start(t *testing.T, path string, opts ...WatcherOption) *Watcher {
	t.Helper()
	opts = append([]WatcherOption{WithLogger(debug.Discard())}, opts...)
	w, err := NewWatcher(path, opts...)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(w.Stop)
	return w
}

func TestWatcher_DetectsFileChange(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "page.json")
	writeFile(t, tmpFile, `{"entities":[]}`)

	var changes atomic.Int32
	w := start(t, tmpFile,
		WithDebounceDuration(50*time.Millisecond),
		WithOnChange(func() { changes.Add(1) }),
	)
	if w.IsPolling() {
		t.Skip("fsnotify unavailable on this filesystem")
	}

	writeFile(t, tmpFile, `{"entities":[{"id":"a"}]}`)
	if !waitFor(t, 2*time.Second, func() bool { return changes.Load() > 0 }) {
		t.Error("expected change to be detected")
	}
}

func TestWatcher_IgnoresSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	tmpFile := filepath.Join(dir, "page.json")
	writeFile(t, tmpFile, "{}")

	var changes atomic.Int32
	w := start(t, tmpFile,
		WithDebounceDuration(20*time.Millisecond),
		WithOnChange(func() { changes.Add(1) }),
	)
	if w.IsPolling() {
		t.Skip("fsnotify unavailable on this filesystem")
	}

	writeFile(t, filepath.Join(dir, "other.json"), "{}")
	time.Sleep(200 * time.Millisecond)
	if n := changes.Load(); n != 0 {
		t.Errorf("expected no change for a sibling file, got %d", n)
	}
}

func TestWatcher_PollingFallback(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "page.yaml")
	writeFile(t, tmpFile, "entities: []")

	var changes atomic.Int32
	w := start(t, tmpFile,
		WithDebounceDuration(50*time.Millisecond),
		WithPollInterval(50*time.Millisecond),
		WithForcePoll(true),
		WithOnChange(func() { changes.Add(1) }),
	)
	if !w.IsPolling() {
		t.Error("expected watcher to be in polling mode")
	}

	// Different length so the change is visible even with coarse mtimes.
	writeFile(t, tmpFile, "entities:\n  - id: a\n")
	if !waitFor(t, 2*time.Second, func() bool { return changes.Load() > 0 }) {
		t.Error("expected change to be detected via polling")
	}
}

func TestWatcher_DirectoryPolling(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.json"), "{}")

	var changes atomic.Int32
	start(t, dir,
		WithDebounceDuration(20*time.Millisecond),
		WithPollInterval(50*time.Millisecond),
		WithForcePoll(true),
		WithFilter(func(name string) bool { return strings.HasSuffix(name, ".json") }),
		WithOnChange(func() { changes.Add(1) }),
	)

	writeFile(t, filepath.Join(dir, "notes.txt"), "ignored")
	writeFile(t, filepath.Join(dir, ".hidden.json"), "ignored")
	time.Sleep(200 * time.Millisecond)
	if n := changes.Load(); n != 0 {
		t.Fatalf("filtered files triggered %d changes", n)
	}

	writeFile(t, filepath.Join(dir, "b.json"), "{}")
	if !waitFor(t, 2*time.Second, func() bool { return changes.Load() > 0 }) {
		t.Error("expected a new document to be detected")
	}
}

func TestWatcher_ChangedChannel(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "page.json")
	writeFile(t, tmpFile, "{}")

	w := start(t, tmpFile,
		WithDebounceDuration(20*time.Millisecond),
		WithPollInterval(50*time.Millisecond),
		WithForcePoll(true),
	)
	writeFile(t, tmpFile, `{"entities":[]}`)

	select {
	case <-w.Changed():
	case <-time.After(2 * time.Second):
		t.Error("expected a signal on the Changed channel")
	}
}

func TestWatcher_FileRemoved(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "page.json")
	writeFile(t, tmpFile, "{}")

	var (
		errMu    sync.Mutex
		gotError error
	)
	start(t, tmpFile,
		WithPollInterval(50*time.Millisecond),
		WithForcePoll(true),
		WithOnError(func(err error) {
			errMu.Lock()
			gotError = err
			errMu.Unlock()
		}),
	)

	if err := os.Remove(tmpFile); err != nil {
		t.Fatal(err)
	}
	ok := waitFor(t, 2*time.Second, func() bool {
		errMu.Lock()
		defer errMu.Unlock()
		return errors.Is(gotError, ErrFileRemoved)
	})
	if !ok {
		t.Errorf("expected ErrFileRemoved, got %v", gotError)
	}
}

func TestWatcher_StartStop(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "page.json")
	writeFile(t, tmpFile, "{}")

	w, err := NewWatcher(tmpFile, WithLogger(debug.Discard()), WithForcePoll(true))
	if err != nil {
		t.Fatal(err)
	}
	if w.IsStarted() {
		t.Error("watcher should not be started before Start")
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("expected ErrAlreadyStarted, got %v", err)
	}
	w.Stop()
	w.Stop()
	if w.IsStarted() {
		t.Error("watcher should be stopped")
	}
	if err := w.Start(); err != nil {
		t.Errorf("restart failed: %v", err)
	}
	w.Stop()
}

func TestWatcher_MissingFileIsFine(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "later.json")

	var changes atomic.Int32
	start(t, tmpFile,
		WithDebounceDuration(20*time.Millisecond),
		WithPollInterval(50*time.Millisecond),
		WithForcePoll(true),
		WithOnChange(func() { changes.Add(1) }),
	)
	writeFile(t, tmpFile, "{}")
	if !waitFor(t, 2*time.Second, func() bool { return changes.Load() > 0 }) {
		t.Error("expected creation to count as a change")
	}
}

func TestWatcher_PathAndPollInterval(t *testing.T) {
	w, err := NewWatcher("relative.json", WithPollInterval(0))
	if err != nil {
		t.Fatal(err)
	}
	if !filepath.IsAbs(w.Path()) {
		t.Errorf("expected absolute path, got %s", w.Path())
	}
	if w.PollInterval() != DefaultPollInterval {
		t.Errorf("expected default poll interval, got %v", w.PollInterval())
	}
}
