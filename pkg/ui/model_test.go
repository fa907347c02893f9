package ui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vanderheijden86/composer/pkg/clock"
	"github.com/vanderheijden86/composer/pkg/coordinator"
	"github.com/vanderheijden86/composer/pkg/debug"
	"github.com/vanderheijden86/composer/pkg/indicator"
	"github.com/vanderheijden86/composer/pkg/model"
	"github.com/vanderheijden86/composer/pkg/testutil"
)

func newTestModel(t *testing.T) (Model, *coordinator.Coordinator, *clock.Fake) {
	t.Helper()
	fc := clock.NewFake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	bridge := NewBridge(16)
	c := coordinator.New(coordinator.DefaultConfig(),
		coordinator.WithClock(fc),
		coordinator.WithLogger(debug.Discard()),
		coordinator.WithListener(bridge.Listener()),
	)
	t.Cleanup(c.Close)
	c.SetTree(testutil.Sample())
	m := NewModel(c, Options{Bridge: bridge, ShowIndicators: true, MarkdownStyle: "notty"})
	return m, c, fc
}

func press(t *testing.T, m Model, keys ...string) Model {
	t.Helper()
	for _, k := range keys {
		var msg tea.KeyMsg
		switch k {
		case "enter":
			msg = tea.KeyMsg{Type: tea.KeyEnter}
		case "right":
			msg = tea.KeyMsg{Type: tea.KeyRight}
		case "left":
			msg = tea.KeyMsg{Type: tea.KeyLeft}
		default:
			msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
		}
		next, _ := m.Update(msg)
		m = next.(Model)
	}
	return m
}

func rowIDs(m Model) []string {
	out := make([]string, 0, len(m.Rows()))
	for _, n := range m.Rows() {
		out = append(out, n.ID)
	}
	return out
}

func TestNavigationAndExpansion(t *testing.T) {
	m, c, _ := newTestModel(t)
	if got := rowIDs(m); len(got) != 1 || got[0] != "root" {
		t.Fatalf("expected only root visible, got %v", got)
	}

	m = press(t, m, "right", "j", "enter")
	if got := strings.Join(rowIDs(m), ","); got != "root,section,card,title" {
		t.Fatalf("unexpected rows %s", got)
	}
	if m.Selected() != "section" {
		t.Errorf("expected section selected, got %s", m.Selected())
	}

	m = press(t, m, "j", "l", "j")
	if m.Selected() != "button" {
		t.Errorf("expected button selected, got %s", m.Selected())
	}

	// h on a leaf moves to its parent.
	m = press(t, m, "left")
	if m.Selected() != "card" {
		t.Errorf("expected card selected, got %s", m.Selected())
	}

	m = press(t, m, "E")
	if len(c.Expanded()) != 0 {
		t.Errorf("expected everything collapsed, got %v", c.Expanded())
	}
	if m.Selected() != "root" {
		t.Errorf("selection should fall back to a visible row, got %s", m.Selected())
	}
}

func TestCopyPath(t *testing.T) {
	var copied string
	orig := clipboardWrite
	clipboardWrite = func(s string) error { copied = s; return nil }
	t.Cleanup(func() { clipboardWrite = orig })

	m, c, _ := newTestModel(t)
	c.ExpandPath("button")
	m.refresh()
	m = press(t, m, "j", "j", "j", "y")
	if copied != "root / section / card / button" {
		t.Errorf("unexpected clipboard text %q", copied)
	}
	if !strings.Contains(m.Status(), "copied") {
		t.Errorf("unexpected status %q", m.Status())
	}

	clipboardWrite = func(string) error { return errors.New("no display") }
	m = press(t, m, "y")
	if !strings.Contains(m.Status(), "no display") {
		t.Errorf("expected clipboard error in status, got %q", m.Status())
	}
}

func TestRevealEventMovesSelection(t *testing.T) {
	m, c, fc := newTestModel(t)
	m.focusID = "button"
	c.Reveal("button")
	fc.Advance(100 * time.Millisecond)

	next, cmd := m.Update(EventMsg(coordinator.Event{Kind: coordinator.EventRevealed, EntityID: "button"}))
	m = next.(Model)
	if m.Selected() != "button" {
		t.Errorf("expected button selected after reveal, got %s", m.Selected())
	}
	if cmd == nil {
		t.Error("expected the model to keep listening for events")
	}
}

func TestFinishedRevealSelectsTargetOnRefresh(t *testing.T) {
	m, c, fc := newTestModel(t)
	m.focusID = "button"
	c.Reveal("button")
	fc.Advance(time.Second)
	if c.Revealing() {
		t.Fatal("reveal should have finished")
	}

	// Any later event settles the target even if the completion was lost.
	next, _ := m.Update(EventMsg(coordinator.Event{Kind: coordinator.EventExpanded, IDs: []string{"card"}}))
	m = next.(Model)
	if m.Selected() != "button" {
		t.Errorf("expected button selected, got %s", m.Selected())
	}
	if m.focusID != "" {
		t.Errorf("focus should be cleared, got %q", m.focusID)
	}
}

func TestBridgeKeepsRevealWhenFull(t *testing.T) {
	b := NewBridge(1)
	send := b.Listener()
	send(coordinator.Event{Kind: coordinator.EventExpanded})
	send(coordinator.Event{Kind: coordinator.EventCollapsed})
	send(coordinator.Event{Kind: coordinator.EventRevealed, EntityID: "button"})

	if ev := <-b.ch; ev.Kind != coordinator.EventExpanded {
		t.Fatalf("expected the buffered event first, got %v", ev.Kind)
	}
	select {
	case ev := <-b.ch:
		if ev.Kind != coordinator.EventRevealed || ev.EntityID != "button" {
			t.Errorf("expected the reveal completion, got %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("reveal completion was dropped")
	}
	select {
	case ev := <-b.ch:
		t.Errorf("unexpected extra event %+v", ev)
	default:
	}
}

func TestReloadRebuildsTree(t *testing.T) {
	m, c, _ := newTestModel(t)
	entities := append(testutil.Sample(), model.Entity{ID: "footer", ParentID: "root", Kind: model.KindContainer})

	next, _ := m.Update(ReloadMsg{Entities: entities})
	m = next.(Model)
	if !c.Hierarchy().Has("footer") {
		t.Fatal("expected footer in the rebuilt hierarchy")
	}
	if !strings.Contains(m.Status(), "1 added (footer)") {
		t.Errorf("unexpected status %q", m.Status())
	}

	next, _ = m.Update(ReloadMsg{Err: errors.New("boom")})
	if !strings.Contains(next.(Model).Status(), "boom") {
		t.Error("expected reload error in status")
	}
}

func TestViewShowsTreeAndBadges(t *testing.T) {
	m, c, _ := newTestModel(t)
	c.ExpandPath("button")
	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 20})
	m = next.(Model)

	view := m.View()
	for _, want := range []string{"composer", "Home", "Hero", "button", "bg-blue-500", "└── "} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestAutoExpandToggle(t *testing.T) {
	m, c, _ := newTestModel(t)
	m = press(t, m, "a")
	if c.Settings().AutoExpandOnEdit {
		t.Error("expected auto-expand to be off")
	}
	if !strings.Contains(m.Status(), "false") {
		t.Errorf("unexpected status %q", m.Status())
	}
}

func TestStatusClears(t *testing.T) {
	m, _, _ := newTestModel(t)
	cmd := m.setStatus("hello")
	if cmd == nil {
		t.Fatal("expected a clear command")
	}
	next, _ := m.Update(statusClearMsg{seq: m.statusSeq - 1})
	if next.(Model).Status() != "hello" {
		t.Error("stale clear must not wipe a newer status")
	}
	next, _ = m.Update(statusClearMsg{seq: m.statusSeq})
	if next.(Model).Status() != "" {
		t.Error("expected status to clear")
	}
}

func TestEditFormChange(t *testing.T) {
	e := testutil.Find(testutil.Sample(), "button")
	st := &formState{}
	newEditForm(st, *e)

	if st.field != "content" || st.value != "Click me" {
		t.Fatalf("unexpected initial form state %q=%q", st.field, st.value)
	}
	if _, ok := st.change(e.Kind); ok {
		t.Error("unchanged value must not produce a change")
	}

	st.value = "Go"
	ch, ok := st.change(e.Kind)
	if !ok || ch.EntityID != "button" || ch.Field != "content" || ch.OldValue != "Click me" || ch.NewValue != "Go" {
		t.Errorf("unexpected change %+v", ch)
	}

	st.value = ""
	ch, _ = st.change(e.Kind)
	if ch.NewValue != nil {
		t.Errorf("clearing a prop should send nil, got %v", ch.NewValue)
	}

	st.field, st.value = "src", "/img/a.png"
	ch, ok = st.change(e.Kind)
	if !ok || ch.OldValue != nil {
		t.Errorf("a new prop has no old value, got %+v", ch)
	}
}

func TestDetailMarkdown(t *testing.T) {
	e := testutil.Find(testutil.Sample(), "button")
	a := indicator.NewEngine().Analyze(*e)
	md := detailMarkdown(*e, []string{"root", "section", "card"}, a)
	for _, want := range []string{"# button", "Path: root / section / card / button", "| color | bg-blue-500 | background: ", "- **content**: Click me"} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}
}

func TestTreePrefixAndBadges(t *testing.T) {
	h := model.BuildHierarchy(testutil.Sample())
	theme := TestTheme()

	card, _ := h.Node("card")
	title, _ := h.Node("title")
	button, _ := h.Node("button")
	if p := buildTreePrefix(theme, h, card); !strings.Contains(p, "├── ") {
		t.Errorf("card has a sibling below, got %q", p)
	}
	if p := buildTreePrefix(theme, h, title); !strings.Contains(p, "└── ") {
		t.Errorf("title is the last child, got %q", p)
	}
	if p := buildTreePrefix(theme, h, button); !strings.Contains(p, "│   └── ") {
		t.Errorf("button should draw its parent's continuation line, got %q", p)
	}

	badges := renderBadges(theme, indicator.Analysis{Unresolved: []string{"bg-nope-500"}})
	if len(badges) != 1 || !strings.Contains(badges[0], "?") {
		t.Errorf("expected a fallback badge, got %v", badges)
	}
	if contrastText("#FFFFFF") == contrastText("#000000") {
		t.Error("expected different text colors for light and dark backgrounds")
	}
}
