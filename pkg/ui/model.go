// Package ui is the terminal consumer of the hierarchy view state: it
// paints the tree with expand markers, the editing highlight, indicator
// badges and per-entity update status, and turns key presses into
// coordinator calls.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/vanderheijden86/composer/internal/datasource"
	"github.com/vanderheijden86/composer/pkg/coordinator"
	"github.com/vanderheijden86/composer/pkg/expansion"
	"github.com/vanderheijden86/composer/pkg/model"
)

// clipboardWrite is swapped out in tests.
var clipboardWrite = clipboard.WriteAll

const (
	defaultWidth  = 100
	defaultHeight = 30
	statusTTL     = 3 * time.Second
)

// Options wires a Model to its surroundings.
type Options struct {
	// Bridge must be the one whose Listener the coordinator was built with.
	Bridge *Bridge
	// Changed fires when the document changes on disk; Reload re-reads it.
	Changed <-chan struct{}
	Reload  Reloader

	Title          string
	ShowIndicators bool
	// MarkdownStyle is a glamour standard style name, or "auto".
	MarkdownStyle string
}

// Model is the bubbletea model of the hierarchy view.
type Model struct {
	coord *coordinator.Coordinator
	opts  Options
	theme Theme
	keys  KeyMap

	help    help.Model
	spinner spinner.Model
	detail  viewport.Model
	md      *glamour.TermRenderer

	width, height int
	rows          []model.HierarchyNode
	cursor        int
	offset        int
	selectedID    string
	// focusID is selected once a staged reveal of it completes.
	focusID string

	showDetail bool
	form       *huh.Form
	formState  *formState

	status    string
	statusSeq int
}

// NewModel returns a Model over c.
func NewModel(c *coordinator.Coordinator, opts Options) Model {
	if opts.Title == "" {
		opts.Title = "composer"
	}
	theme := DefaultTheme(lipgloss.DefaultRenderer())
	sp := spinner.New(spinner.WithSpinner(spinner.Dot))
	sp.Style = theme.InfoText

	m := Model{
		coord:      c,
		opts:       opts,
		theme:      theme,
		keys:       DefaultKeyMap(),
		help:       help.New(),
		spinner:    sp,
		detail:     viewport.New(defaultWidth/2, defaultHeight-3),
		width:      defaultWidth,
		height:     defaultHeight,
		showDetail: true,
		formState:  &formState{},
	}
	m.md = newMarkdownRenderer(opts.MarkdownStyle, m.detail.Width-2)
	m.refresh()
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForChange(m.opts.Changed), m.waitEvent())
}

// Selected returns the id under the cursor.
func (m Model) Selected() string { return m.selectedID }

// Rows returns the visible nodes as last painted.
func (m Model) Rows() []model.HierarchyNode { return m.rows }

// Status returns the transient status line.
func (m Model) Status() string { return m.status }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	// huh needs every message type, not just keys, while a form is open.
	var formCmd tea.Cmd
	if m.form != nil {
		if k, ok := msg.(tea.KeyMsg); ok && k.String() == "esc" {
			m.closeForm()
			return m, nil
		}
		form, cmd := m.form.Update(msg)
		if f, ok := form.(*huh.Form); ok {
			m.form = f
		}
		switch m.form.State {
		case huh.StateCompleted:
			return m, tea.Batch(cmd, m.submitForm())
		case huh.StateAborted:
			m.closeForm()
			return m, cmd
		}
		if _, ok := msg.(tea.KeyMsg); ok {
			return m, cmd
		}
		// Events and ticks keep flowing under the form.
		formCmd = cmd
	}
	next, cmd := m.dispatch(msg)
	return next, tea.Batch(formCmd, cmd)
}

func (m Model) dispatch(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case EventMsg:
		m.handleEvent(coordinator.Event(msg))
		return m, m.waitEvent()

	case FileChangedMsg:
		if m.opts.Reload == nil {
			return m, waitForChange(m.opts.Changed)
		}
		return m, tea.Batch(reload(m.opts.Reload), waitForChange(m.opts.Changed))

	case ReloadMsg:
		if msg.Err != nil {
			return m, m.setStatus("reload failed: " + msg.Err.Error())
		}
		diff := datasource.Diff(m.coord.Entities(), msg.Entities)
		m.coord.SetTree(msg.Entities)
		m.refresh()
		return m, m.setStatus("reloaded: " + diff.Summary())

	case statusClearMsg:
		if msg.seq == m.statusSeq {
			m.status = ""
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) waitEvent() tea.Cmd {
	if m.opts.Bridge == nil {
		return nil
	}
	return m.opts.Bridge.Wait()
}

func (m *Model) handleEvent(ev coordinator.Event) {
	if ev.Kind == coordinator.EventRevealed && ev.EntityID == m.focusID {
		m.selectedID = ev.EntityID
		m.focusID = ""
	}
	m.refresh()
}

func (m Model) handleKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		m.layout()
	case key.Matches(msg, m.keys.Up):
		m.move(-1)
	case key.Matches(msg, m.keys.Down):
		m.move(1)
	case key.Matches(msg, m.keys.Expand):
		if m.selectedID != "" {
			m.coord.Expand(m.selectedID)
		}
	case key.Matches(msg, m.keys.Collapse):
		m.collapseOrParent()
	case key.Matches(msg, m.keys.Toggle):
		if m.selectedID != "" {
			m.coord.Toggle(m.selectedID)
		}
	case key.Matches(msg, m.keys.CollapseAll):
		m.coord.CollapseAll()
	case key.Matches(msg, m.keys.AutoExpand):
		on := !m.coord.Settings().AutoExpandOnEdit
		m.coord.SetAutoExpand(on)
		m.refresh()
		return m, m.setStatus(fmt.Sprintf("auto-expand on edit: %v", on))
	case key.Matches(msg, m.keys.Detail):
		m.showDetail = !m.showDetail
		m.layout()
	case key.Matches(msg, m.keys.CopyPath):
		return m, m.copyPath()
	case key.Matches(msg, m.keys.Edit):
		e, ok := m.coord.Entity(m.selectedID)
		if !ok {
			return m, nil
		}
		m.coord.SetEditing(e.ID)
		return m, m.openForm(newEditForm(m.formState, e))
	case key.Matches(msg, m.keys.GoTo):
		return m, m.openForm(newGoToForm(m.formState, m.coord.Hierarchy().Has))
	case key.Matches(msg, m.keys.Save):
		return m, m.openForm(newSaveSnapshotForm(m.formState))
	case key.Matches(msg, m.keys.Restore):
		snaps := m.coord.Snapshots()
		if len(snaps) == 0 {
			return m, m.setStatus("no snapshots")
		}
		return m, m.openForm(newRestoreSnapshotForm(m.formState, snaps))
	default:
		return m, nil
	}
	m.refresh()
	return m, nil
}

func (m *Model) move(delta int) {
	if len(m.rows) == 0 {
		return
	}
	m.cursor = max(0, min(len(m.rows)-1, m.cursor+delta))
	m.selectedID = m.rows[m.cursor].ID
}

func (m *Model) collapseOrParent() {
	if m.cursor >= len(m.rows) {
		return
	}
	n := m.rows[m.cursor]
	if n.IsExpanded {
		m.coord.Collapse(n.ID)
		return
	}
	if n.ParentID != "" {
		m.selectedID = n.ParentID
	}
}

func (m *Model) copyPath() tea.Cmd {
	if m.selectedID == "" {
		return nil
	}
	path := append(expansion.Path(m.selectedID, m.coord.Hierarchy().Nodes), m.selectedID)
	text := strings.Join(path, " / ")
	if err := clipboardWrite(text); err != nil {
		return m.setStatus("clipboard unavailable: " + err.Error())
	}
	return m.setStatus("copied " + text)
}

func (m *Model) openForm(f *huh.Form) tea.Cmd {
	m.form = f.WithWidth(max(20, m.width/2))
	return m.form.Init()
}

func (m *Model) closeForm() {
	if m.formState.kind == formEdit {
		m.coord.SetEditing("")
	}
	m.form = nil
	m.formState.kind = formNone
	m.refresh()
}

func (m *Model) submitForm() tea.Cmd {
	st := m.formState
	var status string
	switch st.kind {
	case formEdit:
		e, _ := m.coord.Entity(st.entityID)
		if ch, ok := st.change(e.Kind); ok {
			m.coord.QueueChange(ch)
			status = "queued " + ch.String()
		} else {
			status = "no change"
		}
	case formGoTo:
		id := strings.TrimSpace(st.name)
		m.focusID = id
		if m.opts.Bridge == nil {
			// Nothing will report completion; open the path at once.
			m.coord.ExpandPath(id)
			m.selectedID = id
			m.focusID = ""
		} else {
			m.coord.Reveal(id)
		}
		status = "revealing " + id
	case formSaveSnapshot:
		name := strings.TrimSpace(st.name)
		if m.coord.SaveSnapshot(name) {
			status = "saved snapshot " + name
		} else {
			status = "snapshot not saved"
		}
	case formRestoreSnapshot:
		if m.coord.RestoreSnapshot(st.name) {
			status = "restored snapshot " + st.name
		} else {
			status = "snapshot unavailable"
		}
	}
	m.closeForm()
	return m.setStatus(status)
}

func (m *Model) setStatus(s string) tea.Cmd {
	m.status = s
	m.statusSeq++
	seq := m.statusSeq
	return tea.Tick(statusTTL, func(time.Time) tea.Msg { return statusClearMsg{seq: seq} })
}

// refresh re-reads the visible rows and keeps the selection on the same id
// when it is still shown. A go-to target whose reveal has finished is
// selected here too.
func (m *Model) refresh() {
	m.rows = m.coord.Visible()
	if m.focusID != "" && !m.coord.Revealing() {
		for _, n := range m.rows {
			if n.ID == m.focusID {
				m.selectedID = n.ID
				break
			}
		}
		m.focusID = ""
	}
	m.cursor = min(m.cursor, max(0, len(m.rows)-1))
	for i, n := range m.rows {
		if n.ID == m.selectedID {
			m.cursor = i
			break
		}
	}
	if len(m.rows) > 0 {
		m.selectedID = m.rows[m.cursor].ID
	} else {
		m.selectedID = ""
	}
	m.scroll()
	m.updateDetail()
}

func (m *Model) bodyHeight() int {
	helpLines := 1
	if m.help.ShowAll {
		helpLines = 4
	}
	return max(1, m.height-2-helpLines)
}

func (m *Model) treeWidth() int {
	if !m.showDetail || m.width < 60 {
		return m.width
	}
	return m.width * 3 / 5
}

func (m *Model) layout() {
	m.help.Width = m.width
	m.detail.Width = max(10, m.width-m.treeWidth()-1)
	m.detail.Height = m.bodyHeight()
	m.md = newMarkdownRenderer(m.opts.MarkdownStyle, m.detail.Width-2)
	m.scroll()
	m.updateDetail()
}

func (m *Model) scroll() {
	h := m.bodyHeight()
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+h {
		m.offset = m.cursor - h + 1
	}
	m.offset = max(0, min(m.offset, max(0, len(m.rows)-h)))
}

func (m *Model) updateDetail() {
	if !m.showDetail {
		return
	}
	e, ok := m.coord.Entity(m.selectedID)
	if !ok {
		m.detail.SetContent("No entity selected")
		return
	}
	path := expansion.Path(e.ID, m.coord.Hierarchy().Nodes)
	m.detail.SetContent(renderMarkdown(m.md, detailMarkdown(e, path, m.coord.Indicators(e.ID))))
	m.detail.GotoTop()
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")

	if m.form != nil {
		b.WriteString(lipgloss.NewStyle().Height(m.bodyHeight()).Render(m.form.View()))
	} else {
		tree := m.renderTree()
		if m.showDetail && m.treeWidth() < m.width {
			pane := m.theme.Renderer.NewStyle().
				Border(lipgloss.NormalBorder(), false, false, false, true).
				BorderForeground(m.theme.Border).
				Render(m.detail.View())
			tree = lipgloss.JoinHorizontal(lipgloss.Top, tree, pane)
		}
		b.WriteString(tree)
	}
	b.WriteString("\n")
	b.WriteString(m.theme.Status.Render(m.status))
	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m Model) renderHeader() string {
	entities, changes := m.coord.Pending()
	auto := "off"
	if m.coord.Settings().AutoExpandOnEdit {
		auto = "on"
	}
	info := fmt.Sprintf("%d nodes · %d expanded · %d pending (%d entities) · auto-expand %s",
		m.coord.Hierarchy().Len(), len(m.coord.Expanded()), changes, entities, auto)
	if m.coord.Revealing() {
		info += " · " + m.spinner.View()
	}
	return m.theme.Header.Render(m.opts.Title) + " " + m.theme.MutedText.Render(info)
}

func (m Model) renderTree() string {
	width := m.treeWidth()
	h := m.bodyHeight()
	if len(m.rows) == 0 {
		return m.theme.Renderer.NewStyle().Width(width).Height(h).Render(m.theme.MutedText.Render("No entities"))
	}

	hier := m.coord.Hierarchy()
	end := min(len(m.rows), m.offset+h)
	lines := make([]string, 0, h)
	for i := m.offset; i < end; i++ {
		n := m.rows[i]
		e, _ := m.coord.Entity(n.ID)
		d := rowData{
			node:      n,
			label:     e.Label(),
			status:    m.coord.Status(n.ID),
			selected:  i == m.cursor,
			spinner:   m.spinner.View(),
			badges:    m.opts.ShowIndicators,
			hierarchy: hier,
		}
		if d.badges {
			d.analysis = m.coord.Indicators(n.ID)
		}
		lines = append(lines, renderRow(m.theme, d, width))
	}
	for len(lines) < h {
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}
