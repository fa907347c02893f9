// Package watcher reports when an entity document, or a directory of
// them, changes on disk so the hierarchy can be rebuilt.
package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/vanderheijden86/composer/pkg/debounce"
	"github.com/vanderheijden86/composer/pkg/debug"
)

// Defaults for Watcher options.
const (
	DefaultPollInterval     = 2 * time.Second
	DefaultDebounceDuration = 200 * time.Millisecond
)

// Common errors.
var (
	ErrFileRemoved    = errors.New("watched file was removed")
	ErrPermission     = errors.New("permission denied")
	ErrAlreadyStarted = errors.New("watcher already started")
)

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounceDuration sets the debounce duration.
func WithDebounceDuration(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounceDuration = d
	}
}

// WithPollInterval sets the polling interval for fallback mode.
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.pollInterval = d
	}
}

// WithOnChange sets the callback invoked when the document changes.
func WithOnChange(fn func()) WatcherOption {
	return func(w *Watcher) {
		w.onChange = fn
	}
}

// WithOnError sets the callback invoked on errors.
func WithOnError(fn func(error)) WatcherOption {
	return func(w *Watcher) {
		w.onError = fn
	}
}

// WithForcePoll forces polling mode even if fsnotify is available.
func WithForcePoll(force bool) WatcherOption {
	return func(w *Watcher) {
		w.forcePoll = force
	}
}

// WithFilter limits a directory watch to file names accepted by fn.
// Hidden files are always ignored.
func WithFilter(fn func(name string) bool) WatcherOption {
	return func(w *Watcher) {
		w.filter = fn
	}
}

// WithLogger sets the diagnostic logger.
func WithLogger(l logrus.FieldLogger) WatcherOption {
	return func(w *Watcher) {
		w.log = l
	}
}

// Watcher monitors a file or a directory of files using fsnotify with a
// polling fallback.
type Watcher struct {
	path             string
	isDir            bool
	debounceDuration time.Duration
	pollInterval     time.Duration
	onChange         func()
	onError          func(error)
	filter           func(string) bool
	forcePoll        bool
	log              logrus.FieldLogger

	fsWatcher   *fsnotify.Watcher
	debouncer   *debounce.Debouncer
	useFallback bool
	last        signature

	ctx      context.Context
	cancel   context.CancelFunc
	started  bool
	mu       sync.RWMutex
	changeCh chan struct{}
}

// NewWatcher creates a watcher for path, which may be a file or a
// directory.
func NewWatcher(path string, opts ...WatcherOption) (*Watcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		path:             absPath,
		debounceDuration: DefaultDebounceDuration,
		pollInterval:     DefaultPollInterval,
		onChange:         func() {},
		onError:          func(error) {},
		filter:           func(string) bool { return true },
		changeCh:         make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.pollInterval <= 0 {
		w.pollInterval = DefaultPollInterval
	}
	if w.log == nil {
		w.log = debug.NewLogger("watcher")
	}
	w.log = w.log.WithField("path", absPath)
	w.debouncer = debounce.New(w.debounceDuration)

	return w, nil
}

// Start begins watching.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return ErrAlreadyStarted
	}

	info, err := os.Stat(w.path)
	switch {
	case err == nil:
		w.isDir = info.IsDir()
	case os.IsPermission(err):
		return ErrPermission
	}
	// A missing file is fine; it may be created later.
	w.last = w.scan()

	w.ctx, w.cancel = context.WithCancel(context.Background())
	w.useFallback = w.forcePoll

	if !w.useFallback {
		fsw, err := fsnotify.NewWatcher()
		if err != nil {
			w.log.WithError(err).Warn("fsnotify unavailable, polling")
			w.useFallback = true
		} else {
			// Watch the directory (more reliable for atomic writes)
			dir := w.path
			if !w.isDir {
				dir = filepath.Dir(w.path)
			}
			if err := fsw.Add(dir); err != nil {
				fsw.Close()
				w.log.WithError(err).Warn("cannot watch directory, polling")
				w.useFallback = true
			} else {
				w.fsWatcher = fsw
				go w.watchFsnotify(fsw)
			}
		}
	}
	if w.useFallback {
		go w.watchPolling()
	}

	w.started = true
	w.log.WithField("polling", w.useFallback).Debug("watching")
	return nil
}

// Stop stops watching. The Changed channel stays open.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.started {
		return
	}
	if w.cancel != nil {
		w.cancel()
	}
	if w.fsWatcher != nil {
		w.fsWatcher.Close()
		w.fsWatcher = nil
	}
	w.debouncer.Cancel()
	w.started = false
}

// IsPolling returns true if the watcher is using polling mode.
func (w *Watcher) IsPolling() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.useFallback
}

// IsStarted returns true if the watcher is running.
func (w *Watcher) IsStarted() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.started
}

// Changed returns a channel that receives when the document changes.
func (w *Watcher) Changed() <-chan struct{} {
	return w.changeCh
}

// Path returns the watched path.
func (w *Watcher) Path() string {
	return w.path
}

// PollInterval returns the polling interval used when polling mode is active.
func (w *Watcher) PollInterval() time.Duration {
	return w.pollInterval
}

func (w *Watcher) relevant(name string) bool {
	base := filepath.Base(name)
	if w.isDir {
		return !strings.HasPrefix(base, ".") && w.filter(base)
	}
	return base == filepath.Base(w.path)
}

func (w *Watcher) watchFsnotify(fsw *fsnotify.Watcher) {
	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if !w.relevant(event.Name) {
				continue
			}
			switch {
			case event.Op&fsnotify.Remove != 0 && !w.isDir:
				w.onError(ErrFileRemoved)
			case event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0:
				w.debouncer.Trigger(w.notifyChange)
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.onError(err)
		}
	}
}

// signature is the stat-level fingerprint compared between polls.
type signature struct {
	exists bool
	mtime  time.Time
	size   int64
	files  int
}

func (s signature) equal(o signature) bool {
	return s.exists == o.exists && s.mtime.Equal(o.mtime) && s.size == o.size && s.files == o.files
}

func (w *Watcher) scan() signature {
	info, err := os.Stat(w.path)
	if err != nil {
		return signature{}
	}
	if !info.IsDir() {
		return signature{exists: true, mtime: info.ModTime(), size: info.Size(), files: 1}
	}
	sig := signature{exists: true}
	entries, err := os.ReadDir(w.path)
	if err != nil {
		return sig
	}
	for _, e := range entries {
		if e.IsDir() || !w.relevant(e.Name()) {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		sig.files++
		sig.size += fi.Size()
		if fi.ModTime().After(sig.mtime) {
			sig.mtime = fi.ModTime()
		}
	}
	return sig
}

func (w *Watcher) watchPolling() {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return

		case <-ticker.C:
			if _, err := os.Stat(w.path); err != nil {
				w.mu.RLock()
				hadFile := w.last.exists
				w.mu.RUnlock()
				switch {
				case os.IsNotExist(err) && hadFile:
					w.mu.Lock()
					w.last = signature{}
					w.mu.Unlock()
					w.onError(ErrFileRemoved)
				case os.IsPermission(err):
					w.onError(ErrPermission)
				case !os.IsNotExist(err):
					w.onError(err)
				}
				continue
			}

			sig := w.scan()
			w.mu.Lock()
			changed := !sig.equal(w.last)
			w.last = sig
			w.mu.Unlock()

			if changed {
				w.debouncer.Trigger(w.notifyChange)
			}
		}
	}
}

// notifyChange invokes the onChange callback and signals the change channel.
func (w *Watcher) notifyChange() {
	w.mu.RLock()
	started := w.started
	w.mu.RUnlock()
	if !started {
		return
	}

	w.onChange()

	select {
	case w.changeCh <- struct{}{}:
	default:
	}
}
