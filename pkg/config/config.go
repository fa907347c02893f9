// Package config handles loading and saving composer configuration.
//
// Configuration follows the XDG Base Directory specification:
//   - Config:  ~/.config/composer/config.yaml (or config.toml)
//   - State:   ~/.local/state/composer/ (view preferences, snapshots)
//
// Every tunable can also be overridden from the environment, see the env
// tags below (COMPOSER_DEBOUNCE=250ms, COMPOSER_MAX_BATCH=20, ...).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/invopop/jsonschema"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// SchedulerConfig tunes the change queue.
type SchedulerConfig struct {
	Debounce       Duration `yaml:"debounce,omitempty" toml:"debounce,omitempty" json:"debounce,omitempty" env:"COMPOSER_DEBOUNCE"`
	BatchThreshold int      `yaml:"batch_threshold,omitempty" toml:"batch_threshold,omitempty" json:"batch_threshold,omitempty" env:"COMPOSER_BATCH_THRESHOLD"`
	BatchWindow    Duration `yaml:"batch_window,omitempty" toml:"batch_window,omitempty" json:"batch_window,omitempty" env:"COMPOSER_BATCH_WINDOW"`
	MaxBatchSize   int      `yaml:"max_batch_size,omitempty" toml:"max_batch_size,omitempty" json:"max_batch_size,omitempty" env:"COMPOSER_MAX_BATCH"`
	FrameInterval  Duration `yaml:"frame_interval,omitempty" toml:"frame_interval,omitempty" json:"frame_interval,omitempty" env:"COMPOSER_FRAME_INTERVAL"`
}

// ExpansionConfig tunes the expanded set and the auto-expand sequencer.
type ExpansionConfig struct {
	StepDelay   Duration `yaml:"step_delay,omitempty" toml:"step_delay,omitempty" json:"step_delay,omitempty" env:"COMPOSER_STEP_DELAY"`
	MaxExpanded int      `yaml:"max_expanded,omitempty" toml:"max_expanded,omitempty" json:"max_expanded,omitempty" env:"COMPOSER_MAX_EXPANDED"`
}

// IndicatorConfig tunes the indicator engine.
type IndicatorConfig struct {
	MaxIndicators int `yaml:"max_indicators,omitempty" toml:"max_indicators,omitempty" json:"max_indicators,omitempty" env:"COMPOSER_MAX_INDICATORS"`
	DisplayWidth  int `yaml:"display_width,omitempty" toml:"display_width,omitempty" json:"display_width,omitempty" env:"COMPOSER_INDICATOR_WIDTH"`
}

// PreferencesConfig selects and tunes the view-preference store.
type PreferencesConfig struct {
	Backend         string   `yaml:"backend,omitempty" toml:"backend,omitempty" json:"backend,omitempty" jsonschema:"enum=memory,enum=file,enum=sqlite,enum=bolt" env:"COMPOSER_PREFS_BACKEND"`
	Path            string   `yaml:"path,omitempty" toml:"path,omitempty" json:"path,omitempty" env:"COMPOSER_PREFS_PATH"`
	Namespace       string   `yaml:"namespace,omitempty" toml:"namespace,omitempty" json:"namespace,omitempty" env:"COMPOSER_PREFS_NAMESPACE"`
	MaxAge          Duration `yaml:"max_age,omitempty" toml:"max_age,omitempty" json:"max_age,omitempty" env:"COMPOSER_PREFS_MAX_AGE"`
	PersistDebounce Duration `yaml:"persist_debounce,omitempty" toml:"persist_debounce,omitempty" json:"persist_debounce,omitempty" env:"COMPOSER_PERSIST_DEBOUNCE"`
	MaxDrift        float64  `yaml:"max_drift,omitempty" toml:"max_drift,omitempty" json:"max_drift,omitempty" env:"COMPOSER_PREFS_MAX_DRIFT"`
	SnapshotLimit   int      `yaml:"snapshot_limit,omitempty" toml:"snapshot_limit,omitempty" json:"snapshot_limit,omitempty" env:"COMPOSER_SNAPSHOT_LIMIT"`
}

// LatencyConfig tunes the spinner / slow-update badge.
type LatencyConfig struct {
	SlowThreshold Duration `yaml:"slow_threshold,omitempty" toml:"slow_threshold,omitempty" json:"slow_threshold,omitempty" env:"COMPOSER_SLOW_THRESHOLD"`
	Grace         Duration `yaml:"grace,omitempty" toml:"grace,omitempty" json:"grace,omitempty" env:"COMPOSER_SLOW_GRACE"`
}

// UIConfig holds terminal viewer settings.
type UIConfig struct {
	WatchDocument  bool     `yaml:"watch_document,omitempty" toml:"watch_document,omitempty" json:"watch_document,omitempty" env:"COMPOSER_WATCH"`
	ForcePoll      bool     `yaml:"force_poll,omitempty" toml:"force_poll,omitempty" json:"force_poll,omitempty" env:"COMPOSER_FORCE_POLL"`
	PollInterval   Duration `yaml:"poll_interval,omitempty" toml:"poll_interval,omitempty" json:"poll_interval,omitempty" env:"COMPOSER_POLL_INTERVAL"`
	ShowIndicators bool     `yaml:"show_indicators,omitempty" toml:"show_indicators,omitempty" json:"show_indicators,omitempty"`
}

// Config is the top-level configuration.
type Config struct {
	Scheduler   SchedulerConfig   `yaml:"scheduler,omitempty" toml:"scheduler,omitempty" json:"scheduler,omitempty"`
	Expansion   ExpansionConfig   `yaml:"expansion,omitempty" toml:"expansion,omitempty" json:"expansion,omitempty"`
	Indicators  IndicatorConfig   `yaml:"indicators,omitempty" toml:"indicators,omitempty" json:"indicators,omitempty"`
	Preferences PreferencesConfig `yaml:"preferences,omitempty" toml:"preferences,omitempty" json:"preferences,omitempty"`
	Latency     LatencyConfig     `yaml:"latency,omitempty" toml:"latency,omitempty" json:"latency,omitempty"`
	UI          UIConfig          `yaml:"ui,omitempty" toml:"ui,omitempty" json:"ui,omitempty"`
}

// Backend names accepted by PreferencesConfig.Backend.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendBolt   = "bolt"
)

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Scheduler: SchedulerConfig{
			Debounce:       Duration(500 * time.Millisecond),
			BatchThreshold: 3,
			BatchWindow:    Duration(time.Second),
			MaxBatchSize:   50,
			FrameInterval:  Duration(16 * time.Millisecond),
		},
		Expansion: ExpansionConfig{
			StepDelay:   Duration(50 * time.Millisecond),
			MaxExpanded: 100,
		},
		Indicators: IndicatorConfig{
			MaxIndicators: 5,
			DisplayWidth:  25,
		},
		Preferences: PreferencesConfig{
			Backend:         BackendFile,
			Namespace:       "default",
			MaxAge:          Duration(30 * 24 * time.Hour),
			PersistDebounce: Duration(500 * time.Millisecond),
			MaxDrift:        0.5,
			SnapshotLimit:   50,
		},
		Latency: LatencyConfig{
			SlowThreshold: Duration(100 * time.Millisecond),
			Grace:         Duration(time.Second),
		},
		UI: UIConfig{
			WatchDocument:  true,
			PollInterval:   Duration(2 * time.Second),
			ShowIndicators: true,
		},
	}
}

// Validate replaces out-of-range values with defaults and normalizes names.
func (c *Config) Validate() {
	d := DefaultConfig()
	fixDuration(&c.Scheduler.Debounce, d.Scheduler.Debounce)
	fixDuration(&c.Scheduler.BatchWindow, d.Scheduler.BatchWindow)
	fixDuration(&c.Scheduler.FrameInterval, d.Scheduler.FrameInterval)
	if c.Scheduler.MaxBatchSize <= 0 {
		c.Scheduler.MaxBatchSize = d.Scheduler.MaxBatchSize
	}
	// BatchThreshold <= 0 is meaningful: escalation is off.
	fixDuration(&c.Expansion.StepDelay, d.Expansion.StepDelay)
	if c.Expansion.MaxExpanded <= 0 {
		c.Expansion.MaxExpanded = d.Expansion.MaxExpanded
	}
	if c.Indicators.MaxIndicators <= 0 {
		c.Indicators.MaxIndicators = d.Indicators.MaxIndicators
	}
	if c.Indicators.DisplayWidth <= 3 {
		c.Indicators.DisplayWidth = d.Indicators.DisplayWidth
	}
	c.Preferences.Backend = strings.ToLower(strings.TrimSpace(c.Preferences.Backend))
	switch c.Preferences.Backend {
	case BackendMemory, BackendFile, BackendSQLite, BackendBolt:
	default:
		c.Preferences.Backend = d.Preferences.Backend
	}
	if strings.TrimSpace(c.Preferences.Namespace) == "" {
		c.Preferences.Namespace = d.Preferences.Namespace
	}
	fixDuration(&c.Preferences.MaxAge, d.Preferences.MaxAge)
	fixDuration(&c.Preferences.PersistDebounce, d.Preferences.PersistDebounce)
	if c.Preferences.MaxDrift <= 0 {
		c.Preferences.MaxDrift = d.Preferences.MaxDrift
	}
	if c.Preferences.SnapshotLimit <= 0 {
		c.Preferences.SnapshotLimit = d.Preferences.SnapshotLimit
	}
	fixDuration(&c.Latency.SlowThreshold, d.Latency.SlowThreshold)
	fixDuration(&c.Latency.Grace, d.Latency.Grace)
	fixDuration(&c.UI.PollInterval, d.UI.PollInterval)
}

func fixDuration(v *Duration, def Duration) {
	if *v <= 0 {
		*v = def
	}
}

// ConfigDir returns the XDG config directory for composer.
func ConfigDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "composer")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "composer")
}

// StateDir returns the XDG state directory for composer.
func StateDir() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "composer")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".local", "state", "composer")
}

// ConfigPath returns the config file to read: config.toml when it exists,
// config.yaml otherwise.
func ConfigPath() string {
	dir := ConfigDir()
	if dir == "" {
		return ""
	}
	if toml := filepath.Join(dir, "config.toml"); fileExists(toml) {
		return toml
	}
	return filepath.Join(dir, "config.yaml")
}

// PrefsPath returns where the configured backend keeps its data: the
// explicit path if set, otherwise a backend-specific name in StateDir.
func (c Config) PrefsPath() string {
	if c.Preferences.Path != "" {
		return expandHome(c.Preferences.Path)
	}
	dir := StateDir()
	if dir == "" {
		return ""
	}
	switch c.Preferences.Backend {
	case BackendSQLite:
		return filepath.Join(dir, "view-state.sqlite")
	case BackendBolt:
		return filepath.Join(dir, "view-state.bolt")
	default:
		return filepath.Join(dir, "view-state")
	}
}

// Load reads the config from the XDG config directory and applies the
// environment. Returns DefaultConfig if the file doesn't exist.
func Load() (Config, error) {
	path := ConfigPath()
	if path == "" {
		cfg := DefaultConfig()
		err := ApplyEnv(&cfg)
		return cfg, err
	}
	cfg, err := LoadFrom(path)
	if err != nil {
		return cfg, err
	}
	if err := ApplyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadFrom reads config from a specific path. The format follows the file
// extension (.toml, otherwise YAML). Returns DefaultConfig if the file
// doesn't exist.
func LoadFrom(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if isTOML(path) {
		err = toml.Unmarshal(data, &cfg)
	} else {
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}

	cfg.Validate()
	return cfg, nil
}

// ApplyEnv overlays COMPOSER_* environment variables onto cfg.
func ApplyEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parsing environment: %w", err)
	}
	cfg.Validate()
	return nil
}

// Save writes the config to the XDG config directory.
func Save(cfg Config) error {
	path := ConfigPath()
	if path == "" {
		return fmt.Errorf("cannot determine config directory")
	}
	return SaveTo(cfg, path)
}

// SaveTo writes the config to a specific path, as TOML or YAML by extension.
func SaveTo(cfg Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if isTOML(path) {
		data, err = toml.Marshal(cfg)
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Schema returns the JSON Schema describing Config.
func Schema() *jsonschema.Schema {
	r := &jsonschema.Reflector{
		FieldNameTag:              "yaml",
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	s := r.Reflect(&Config{})
	s.Title = "composer configuration"
	return s
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
