package main

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vanderheijden86/composer/internal/datasource"
	"github.com/vanderheijden86/composer/pkg/config"
	"github.com/vanderheijden86/composer/pkg/coordinator"
	"github.com/vanderheijden86/composer/pkg/debug"
	"github.com/vanderheijden86/composer/pkg/model"
	"github.com/vanderheijden86/composer/pkg/prefs"
	"github.com/vanderheijden86/composer/pkg/version"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	out    io.Writer
	errOut io.Writer
	log    *logrus.Entry

	configPath string
	backend    string
	namespace  string

	cfg config.Config
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	a := &app{out: out, errOut: errOut, log: debug.NewLogger("cli")}

	root := &cobra.Command{
		Use:           "composer",
		Short:         "Inspect and browse component hierarchies",
		Long:          "composer loads entity documents (JSON, YAML or SQLite) and shows them as an\nexpandable tree with style indicators, live reload and remembered expansion.",
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.loadConfig()
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	f := root.PersistentFlags()
	f.StringVar(&a.configPath, "config", "", "config file (default: XDG config dir)")
	f.StringVar(&a.backend, "prefs-backend", "", "preference backend: memory, file, sqlite or bolt")
	f.StringVar(&a.namespace, "namespace", "", "preference namespace")

	root.AddCommand(
		newViewCmd(a),
		newTreeCmd(a),
		newPathCmd(a),
		newIndicatorsCmd(a),
		newDiffCmd(a),
		newConvertCmd(a),
		newPrefsCmd(a),
		newConfigCmd(a),
	)
	return root
}

func (a *app) loadConfig() error {
	var (
		cfg config.Config
		err error
	)
	if a.configPath != "" {
		cfg, err = config.LoadFrom(a.configPath)
		if err == nil {
			err = config.ApplyEnv(&cfg)
		}
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	if a.backend != "" {
		cfg.Preferences.Backend = a.backend
	}
	if a.namespace != "" {
		cfg.Preferences.Namespace = a.namespace
	}
	cfg.Validate()
	a.cfg = cfg
	return nil
}

// openStore opens the configured preference backend.
func (a *app) openStore() (*prefs.Store, error) {
	p := a.cfg.Preferences
	b, err := prefs.Open(p.Backend, a.cfg.PrefsPath())
	if err != nil {
		return nil, fmt.Errorf("opening %s preferences: %w", p.Backend, err)
	}
	return prefs.NewStore(b, prefs.StoreConfig{
		Namespace:     p.Namespace,
		MaxAge:        p.MaxAge.Std(),
		MaxDrift:      p.MaxDrift,
		SnapshotLimit: p.SnapshotLimit,
	}), nil
}

func (a *app) load(ctx context.Context, path string) ([]model.Entity, error) {
	entities, err := datasource.LoadPath(ctx, path)
	if err != nil {
		return nil, err
	}
	a.log.WithField("path", path).WithField("entities", len(entities)).Debug("document loaded")
	return entities, nil
}

// session is a coordinator over one loaded document, optionally backed by
// the preference store.
type session struct {
	*coordinator.Coordinator
	store *prefs.Store
}

func (a *app) newSession(entities []model.Entity, withPrefs bool, opts ...coordinator.Option) (*session, error) {
	s := &session{}
	if withPrefs {
		store, err := a.openStore()
		if err != nil {
			return nil, err
		}
		s.store = store
		opts = append(opts, coordinator.WithPrefs(store))
	}
	s.Coordinator = coordinator.New(coordinator.ConfigFrom(a.cfg), opts...)
	s.SetTree(entities)
	return s, nil
}

// Close flushes the coordinator, then closes the store it writes to.
func (s *session) Close() {
	s.Coordinator.Close()
	if s.store != nil {
		_ = s.store.Close()
	}
}
