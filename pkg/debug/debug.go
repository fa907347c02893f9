// Package debug provides the diagnostic loggers used across composer.
//
// Every component gets its own *logrus.Entry tagged with a component field:
//
//	log := debug.NewLogger("changequeue")
//	log.WithField("entities", n).Debug("flush")
//
// Verbosity is controlled by environment variables:
//
//	COMPOSER_LOG_LEVEL=debug   # panic, fatal, error, warn (default), info, debug, trace
//	COMPOSER_DEBUG=1           # shorthand for COMPOSER_LOG_LEVEL=debug
//	COMPOSER_LOG_JSON=1        # JSON lines instead of text
//	COMPOSER_LOG_FILE=path     # append to a file (use this while the TUI owns the terminal)
package debug

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	mu      sync.Mutex
	base    *logrus.Logger
	loggers = make(map[string]*logrus.Entry)
	logFile *os.File
)

func root() *logrus.Logger {
	if base != nil {
		return base
	}
	base = logrus.New()
	base.SetOutput(os.Stderr)
	base.SetLevel(levelFromEnv())
	if envBool("COMPOSER_LOG_JSON") {
		base.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		base.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "15:04:05.000",
		})
	}
	if path := strings.TrimSpace(os.Getenv("COMPOSER_LOG_FILE")); path != "" {
		if f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644); err == nil {
			logFile = f
			base.SetOutput(f)
		} else {
			base.WithError(err).WithField("path", path).Warn("cannot open log file, using stderr")
		}
	}
	return base
}

func levelFromEnv() logrus.Level {
	if envBool("COMPOSER_DEBUG") {
		return logrus.DebugLevel
	}
	raw := strings.TrimSpace(os.Getenv("COMPOSER_LOG_LEVEL"))
	if raw == "" {
		return logrus.WarnLevel
	}
	level, err := logrus.ParseLevel(raw)
	if err != nil {
		return logrus.WarnLevel
	}
	return level
}

// NewLogger returns the shared logger for a component, creating it on
// first use.
func NewLogger(component string) *logrus.Entry {
	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[component]; ok {
		return l
	}
	l := root().WithField("component", component)
	loggers[component] = l
	return l
}

// Discard returns a logger that drops everything. Tests pass it to
// components that would otherwise write to stderr.
func Discard() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

// Enabled reports whether debug-level output is on.
func Enabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return root().IsLevelEnabled(logrus.DebugLevel)
}

// SetLevel changes the level of every component logger.
func SetLevel(level logrus.Level) {
	mu.Lock()
	defer mu.Unlock()
	root().SetLevel(level)
}

// SetOutput redirects every component logger.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	root().SetOutput(w)
}

// LogTiming writes a timing line for name at debug level.
func LogTiming(component, name string, d time.Duration) {
	NewLogger(component).WithFields(logrus.Fields{
		"op":          name,
		"duration_ms": float64(d.Microseconds()) / 1000.0,
	}).Debug("timing")
}

// LogEnterExit logs entry and exit of a function with timing.
//
//	defer debug.LogEnterExit("prefs", "Load")()
func LogEnterExit(component, name string) func() {
	l := NewLogger(component)
	if !l.Logger.IsLevelEnabled(logrus.TraceLevel) {
		return func() {}
	}
	l.Tracef("-> %s", name)
	start := time.Now()
	return func() {
		l.Tracef("<- %s (%v)", name, time.Since(start))
	}
}

// Close releases the log file opened through COMPOSER_LOG_FILE.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	if base != nil {
		base.SetOutput(os.Stderr)
	}
	return err
}

func envBool(name string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(name))) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}
