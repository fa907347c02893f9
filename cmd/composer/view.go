package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/vanderheijden86/composer/internal/datasource"
	"github.com/vanderheijden86/composer/pkg/coordinator"
	"github.com/vanderheijden86/composer/pkg/metrics"
	"github.com/vanderheijden86/composer/pkg/model"
	"github.com/vanderheijden86/composer/pkg/ui"
	"github.com/vanderheijden86/composer/pkg/watcher"
)

// errNoTerminal is returned by view when stdout is not a terminal.
var errNoTerminal = errors.New("view needs an interactive terminal; try 'composer tree'")

// isTerminal is swapped out in tests.
var isTerminal = func() bool { return term.IsTerminal(int(os.Stdout.Fd())) }

func newViewCmd(a *app) *cobra.Command {
	var (
		noWatch     bool
		showMetrics bool
		mdStyle     string
	)
	cmd := &cobra.Command{
		Use:   "view <document|directory>",
		Short: "Browse the hierarchy interactively",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !isTerminal() {
				return errNoTerminal
			}
			err := a.runView(cmd.Context(), args[0], !noWatch && a.cfg.UI.WatchDocument, mdStyle)
			if showMetrics {
				printMetrics(a)
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "do not reload when the document changes")
	cmd.Flags().BoolVar(&showMetrics, "metrics", false, "print timing metrics as JSON on exit")
	cmd.Flags().StringVar(&mdStyle, "markdown-style", "auto", "glamour style for the detail pane (auto, dark, light, notty)")
	return cmd
}

func (a *app) runView(ctx context.Context, path string, watch bool, mdStyle string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	entities, err := a.load(ctx, path)
	if err != nil {
		return err
	}

	bridge := ui.NewBridge(256)
	s, err := a.newSession(entities, true, coordinator.WithListener(bridge.Listener()))
	if err != nil {
		return err
	}
	defer s.Close()

	opts := ui.Options{
		Bridge:         bridge,
		Title:          "composer · " + filepath.Base(path),
		ShowIndicators: a.cfg.UI.ShowIndicators,
		MarkdownStyle:  mdStyle,
		Reload: func(ctx context.Context) ([]model.Entity, error) {
			return datasource.LoadPath(ctx, path)
		},
	}

	if watch {
		w, err := watcher.NewWatcher(path,
			watcher.WithForcePoll(a.cfg.UI.ForcePoll),
			watcher.WithPollInterval(a.cfg.UI.PollInterval.Std()),
			watcher.WithFilter(func(name string) bool {
				_, ok := datasource.TypeOf(name)
				return ok
			}),
			watcher.WithOnError(func(err error) {
				a.log.WithError(err).Warn("watching document")
			}),
		)
		if err != nil {
			return err
		}
		if err := w.Start(); err != nil {
			a.log.WithError(err).Warn("live reload disabled")
		} else {
			defer w.Stop()
			opts.Changed = w.Changed()
		}
	}

	return runTUIProgram(ui.NewModel(s.Coordinator, opts))
}

func runTUIProgram(m ui.Model) error {
	p := tea.NewProgram(
		m,
		tea.WithAltScreen(),
		tea.WithoutSignalHandler(),
	)

	runDone := make(chan struct{})
	defer close(runDone)

	// Graceful shutdown on SIGINT/SIGTERM.
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-runDone:
			return
		case <-sigCh:
		}

		p.Quit()

		select {
		case <-runDone:
			return
		case <-sigCh:
		case <-time.After(5 * time.Second):
		}

		p.Kill()
	}()

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) || errors.Is(err, tea.ErrInterrupted) {
		return nil
	}
	return err
}

func printMetrics(a *app) {
	data, err := json.MarshalIndent(metrics.AllTimingStats(), "", "  ")
	if err != nil {
		return
	}
	fmt.Fprintln(a.errOut, string(data))
}
