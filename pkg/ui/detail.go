package ui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/vanderheijden86/composer/pkg/indicator"
	"github.com/vanderheijden86/composer/pkg/model"
)

// detailMarkdown summarizes one entity for the detail pane.
func detailMarkdown(e model.Entity, path []string, a indicator.Analysis) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", e.Label())
	fmt.Fprintf(&sb, "`%s` · **%s**", e.ID, e.Kind)
	if e.Type != "" {
		fmt.Fprintf(&sb, " · %s", e.Type)
	}
	sb.WriteString("\n\n")

	if len(path) > 0 {
		fmt.Fprintf(&sb, "Path: %s / %s\n\n", strings.Join(path, " / "), e.ID)
	}

	if len(a.Indicators) > 0 || a.NeedsFallback() {
		sb.WriteString("## Indicators\n\n| Type | Value | Detail |\n|---|---|---|\n")
		for _, ind := range a.Indicators {
			fmt.Fprintf(&sb, "| %s | %s | %s |\n", ind.Type, escapeCell(ind.DisplayValue), escapeCell(ind.Tooltip))
		}
		if a.NeedsFallback() {
			fmt.Fprintf(&sb, "| color | ? | %s |\n", escapeCell(strings.Join(a.Unresolved, " ")))
		}
		if a.Truncated > 0 {
			fmt.Fprintf(&sb, "\n_%d more not shown_\n", a.Truncated)
		}
		sb.WriteString("\n")
	}

	if len(e.Style) > 0 {
		fmt.Fprintf(&sb, "## Style\n\n`%s`\n\n", strings.Join(e.Style, " "))
	}

	if len(e.Props) > 0 {
		sb.WriteString("## Props\n\n")
		keys := make([]string, 0, len(e.Props))
		for k := range e.Props {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&sb, "- **%s**: %s\n", k, e.Props[k])
		}
	}
	return sb.String()
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

func newMarkdownRenderer(style string, width int) *glamour.TermRenderer {
	opt := glamour.WithAutoStyle()
	if style != "" && style != "auto" {
		opt = glamour.WithStandardStyle(style)
	}
	r, err := glamour.NewTermRenderer(opt, glamour.WithWordWrap(width))
	if err != nil {
		return nil
	}
	return r
}

func renderMarkdown(r *glamour.TermRenderer, md string) string {
	if r == nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return strings.TrimRight(out, "\n ")
}
