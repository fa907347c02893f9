package ui

import "github.com/charmbracelet/bubbles/key"

// KeyMap lists every binding the hierarchy view handles.
type KeyMap struct {
	Up          key.Binding
	Down        key.Binding
	Collapse    key.Binding
	Expand      key.Binding
	Toggle      key.Binding
	CollapseAll key.Binding
	Edit        key.Binding
	GoTo        key.Binding
	Save        key.Binding
	Restore     key.Binding
	CopyPath    key.Binding
	AutoExpand  key.Binding
	Detail      key.Binding
	Help        key.Binding
	Quit        key.Binding
}

// DefaultKeyMap returns the stock bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up:          key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:        key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Collapse:    key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←/h", "collapse")),
		Expand:      key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→/l", "expand")),
		Toggle:      key.NewBinding(key.WithKeys("enter", " "), key.WithHelp("enter", "toggle")),
		CollapseAll: key.NewBinding(key.WithKeys("E"), key.WithHelp("E", "collapse all")),
		Edit:        key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "edit")),
		GoTo:        key.NewBinding(key.WithKeys("g"), key.WithHelp("g", "go to id")),
		Save:        key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "save snapshot")),
		Restore:     key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "restore snapshot")),
		CopyPath:    key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "copy path")),
		AutoExpand:  key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "auto-expand")),
		Detail:      key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "details")),
		Help:        key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:        key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Toggle, k.Edit, k.GoTo, k.CopyPath, k.Help, k.Quit}
}

func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Collapse, k.Expand},
		{k.Toggle, k.CollapseAll, k.AutoExpand, k.Detail},
		{k.Edit, k.GoTo, k.Save, k.Restore},
		{k.CopyPath, k.Help, k.Quit},
	}
}
