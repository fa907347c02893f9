package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/mattn/go-runewidth"

	"github.com/vanderheijden86/composer/pkg/indicator"
	"github.com/vanderheijden86/composer/pkg/latency"
	"github.com/vanderheijden86/composer/pkg/model"
)

// rowData is everything renderRow needs for one visible node.
type rowData struct {
	node      model.HierarchyNode
	label     string
	analysis  indicator.Analysis
	status    latency.Status
	selected  bool
	spinner   string
	badges    bool
	hierarchy *model.Hierarchy
}

func renderRow(t Theme, d rowData, width int) string {
	r := t.Renderer
	if width <= 0 {
		width = 80
	}
	// Reduce width by 1 to prevent terminal wrapping on the exact edge
	width--

	var left strings.Builder

	prefix := buildTreePrefix(t, d.hierarchy, &d.node)
	left.WriteString(prefix)

	left.WriteString(r.NewStyle().Foreground(t.Secondary).Render(expandIndicator(&d.node)))
	left.WriteString(" ")

	icon, iconColor := t.KindIcon(string(d.node.Kind))
	left.WriteString(r.NewStyle().Foreground(iconColor).Render(icon))
	left.WriteString(" ")

	var right []string
	switch {
	case d.status.IsLoading:
		right = append(right, t.InfoText.Render(d.spinner))
	case d.status.IsSlowUpdate:
		right = append(right, t.SlowBadge.Render("slow"))
	}
	if d.badges {
		right = append(right, renderBadges(t, d.analysis)...)
	}
	rightSide := strings.Join(right, " ")

	labelWidth := width - lipgloss.Width(left.String()) - lipgloss.Width(rightSide) - 1
	if labelWidth < 5 {
		labelWidth = 5
	}
	label := runewidth.Truncate(d.label, labelWidth, "…")

	labelStyle := r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#333333", Dark: "#E8E8E8"})
	switch {
	case d.node.IsEditing:
		labelStyle = t.Editing
	case d.selected:
		labelStyle = labelStyle.Foreground(t.Primary).Bold(true)
	}
	left.WriteString(labelStyle.Render(label))

	padding := width - lipgloss.Width(left.String()) - lipgloss.Width(rightSide)
	if padding < 1 {
		padding = 1
	}
	row := left.String() + strings.Repeat(" ", padding) + rightSide

	rowStyle := r.NewStyle().Width(width).MaxWidth(width)
	if d.selected {
		rowStyle = rowStyle.Inherit(t.Selected)
	}
	return rowStyle.Render(row)
}

// renderBadges draws one badge per indicator, color badges tinted with the
// resolved color.
func renderBadges(t Theme, a indicator.Analysis) []string {
	out := make([]string, 0, len(a.Indicators)+1)
	for _, ind := range a.Indicators {
		style := t.Badge
		if ind.Type == indicator.TypeColor && ind.Hex != "" {
			style = style.Background(ThemeBg(ind.Hex)).Foreground(ThemeFg(contrastText(ind.Hex)))
		}
		out = append(out, style.Render(ind.DisplayValue))
	}
	if a.NeedsFallback() {
		out = append(out, t.Fallback.Render("?"))
	}
	return out
}

// contrastText picks black or white text for a badge background.
func contrastText(hex string) string {
	c, err := colorful.Hex(hex)
	if err != nil {
		return "#F8F8F2"
	}
	if l, _, _ := c.Lab(); l > 0.6 {
		return "#1A1A1A"
	}
	return "#F8F8F2"
}

// buildTreePrefix builds the indentation and branch characters for a node.
func buildTreePrefix(t Theme, h *model.Hierarchy, node *model.HierarchyNode) string {
	if node.Depth == 0 || h == nil {
		return ""
	}

	ancestors := ancestorsOf(h, node)
	var parts []string
	// Skip the root level; roots have no connector column.
	for i := 1; i < len(ancestors); i++ {
		if hasSiblingsBelow(h, ancestors[i]) {
			parts = append(parts, "│   ")
		} else {
			parts = append(parts, "    ")
		}
	}
	if hasSiblingsBelow(h, node) {
		parts = append(parts, "├── ")
	} else {
		parts = append(parts, "└── ")
	}
	return t.Renderer.NewStyle().Foreground(t.Muted).Render(strings.Join(parts, ""))
}

// ancestorsOf returns node's ancestors from the root down, excluding node.
func ancestorsOf(h *model.Hierarchy, node *model.HierarchyNode) []*model.HierarchyNode {
	var out []*model.HierarchyNode
	seen := map[string]bool{node.ID: true}
	for id := node.ParentID; id != "" && !seen[id]; {
		seen[id] = true
		n, ok := h.Node(id)
		if !ok {
			break
		}
		out = append(out, n)
		id = n.ParentID
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func hasSiblingsBelow(h *model.Hierarchy, node *model.HierarchyNode) bool {
	siblings := h.Roots
	if node.ParentID != "" {
		parent, ok := h.Node(node.ParentID)
		if !ok {
			return false
		}
		siblings = parent.ChildIDs
	}
	for i, id := range siblings {
		if id == node.ID {
			return i < len(siblings)-1
		}
	}
	return false
}

func expandIndicator(node *model.HierarchyNode) string {
	if !node.HasChildren() {
		return "•"
	}
	if node.IsExpanded {
		return "▾"
	}
	return "▸"
}
