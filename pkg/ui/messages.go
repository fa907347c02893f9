package ui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vanderheijden86/composer/pkg/coordinator"
	"github.com/vanderheijden86/composer/pkg/model"
)

// EventMsg carries one coordinator event into the program loop.
type EventMsg coordinator.Event

// FileChangedMsg reports that the watched document changed on disk.
type FileChangedMsg struct{}

// ReloadMsg carries a freshly loaded entity list.
type ReloadMsg struct {
	Entities []model.Entity
	Err      error
}

type statusClearMsg struct{ seq int }

// Bridge forwards coordinator events to the program. Sends never block.
// When the buffer is full most events are dropped, which only skips a
// repaint because the view reads state from the coordinator. Reveal
// completions are handed to a goroutine instead so the selection still
// lands on the target.
type Bridge struct {
	ch chan coordinator.Event
}

// NewBridge returns a Bridge buffering up to size events.
func NewBridge(size int) *Bridge {
	if size <= 0 {
		size = 64
	}
	return &Bridge{ch: make(chan coordinator.Event, size)}
}

// Listener is passed to coordinator.WithListener.
func (b *Bridge) Listener() coordinator.Listener {
	return func(ev coordinator.Event) {
		select {
		case b.ch <- ev:
		default:
			if ev.Kind == coordinator.EventRevealed {
				go func() { b.ch <- ev }()
			}
		}
	}
}

// Wait returns a command that delivers the next event.
func (b *Bridge) Wait() tea.Cmd {
	return func() tea.Msg {
		return EventMsg(<-b.ch)
	}
}

// Reloader reloads the entity document.
type Reloader func(ctx context.Context) ([]model.Entity, error)

func waitForChange(ch <-chan struct{}) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		<-ch
		return FileChangedMsg{}
	}
}

func reload(fn Reloader) tea.Cmd {
	return func() tea.Msg {
		entities, err := fn(context.Background())
		return ReloadMsg{Entities: entities, Err: err}
	}
}
