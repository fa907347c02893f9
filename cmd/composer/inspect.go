package main

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/vanderheijden86/composer/internal/datasource"
	"github.com/vanderheijden86/composer/pkg/expansion"
	"github.com/vanderheijden86/composer/pkg/indicator"
	"github.com/vanderheijden86/composer/pkg/model"
)

func newTreeCmd(a *app) *cobra.Command {
	var (
		all        bool
		indicators bool
	)
	cmd := &cobra.Command{
		Use:   "tree <document|directory>",
		Short: "Print the hierarchy with the remembered expansion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entities, err := a.load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			s, err := a.newSession(entities, !all)
			if err != nil {
				return err
			}
			defer s.Close()

			rows := s.Visible()
			if all {
				h := s.Hierarchy()
				rows = rows[:0]
				for _, n := range h.Visible(func(string) bool { return true }) {
					n := *n
					n.IsExpanded = n.HasChildren()
					rows = append(rows, n)
				}
			}
			label := func(id string) string {
				e, _ := s.Entity(id)
				return e.Label()
			}
			for _, line := range treeLines(s.Hierarchy(), rows, label) {
				fmt.Fprint(a.out, line.text)
				if indicators {
					if vals := indicatorValues(s.Indicators(line.id)); vals != "" {
						fmt.Fprint(a.out, "  ", vals)
					}
				}
				fmt.Fprintln(a.out)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "expand every node")
	cmd.Flags().BoolVarP(&indicators, "indicators", "i", false, "append indicator values")
	return cmd
}

type treeLine struct {
	id   string
	text string
}

// treeLines draws rows (in display order) with box-drawing connectors.
func treeLines(h *model.Hierarchy, rows []model.HierarchyNode, label func(id string) string) []treeLine {
	out := make([]treeLine, 0, len(rows))
	// open[d] is true while the ancestor at depth d still has siblings below.
	var open []bool
	for _, n := range rows {
		last := isLastChild(h, n)
		var b strings.Builder
		if n.Depth > 0 {
			for d := 1; d < n.Depth && d < len(open); d++ {
				if open[d] {
					b.WriteString("│   ")
				} else {
					b.WriteString("    ")
				}
			}
			if last {
				b.WriteString("└── ")
			} else {
				b.WriteString("├── ")
			}
		}
		for len(open) <= n.Depth {
			open = append(open, false)
		}
		open[n.Depth] = !last

		marker := "•"
		if n.HasChildren() {
			marker = "▸"
			if n.IsExpanded {
				marker = "▾"
			}
		}
		text := n.ID
		if l := label(n.ID); l != "" && l != n.ID {
			text = fmt.Sprintf("%s (%s)", n.ID, l)
		}
		fmt.Fprintf(&b, "%s %s [%s]", marker, text, n.Kind)
		out = append(out, treeLine{id: n.ID, text: b.String()})
	}
	return out
}

func isLastChild(h *model.Hierarchy, n model.HierarchyNode) bool {
	if n.ParentID == "" {
		return true
	}
	parent, ok := h.Node(n.ParentID)
	if !ok || len(parent.ChildIDs) == 0 {
		return true
	}
	return parent.ChildIDs[len(parent.ChildIDs)-1] == n.ID
}

func indicatorValues(a indicator.Analysis) string {
	vals := make([]string, 0, len(a.Indicators)+1)
	for _, ind := range a.Indicators {
		vals = append(vals, ind.DisplayValue)
	}
	if a.NeedsFallback() {
		vals = append(vals, "?")
	}
	return strings.Join(vals, " ")
}

func newPathCmd(a *app) *cobra.Command {
	var expand bool
	cmd := &cobra.Command{
		Use:   "path <document|directory> <id>",
		Short: "Print the ancestor path of an entity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			entities, err := a.load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			id := args[1]
			h := model.BuildHierarchy(entities)
			if !h.Has(id) {
				return fmt.Errorf("entity %q not found", id)
			}
			path := expansion.Path(id, h.Nodes)
			fmt.Fprintln(a.out, strings.Join(append(path, id), " / "))

			if !expand {
				return nil
			}
			s, err := a.newSession(entities, true)
			if err != nil {
				return err
			}
			s.ExpandPath(id)
			s.Close()
			fmt.Fprintf(a.out, "expanded %d ancestors\n", len(path))
			return nil
		},
	}
	cmd.Flags().BoolVar(&expand, "expand", false, "remember the path as expanded for the next view")
	return cmd
}

func newIndicatorsCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "indicators <document|directory> <id>",
		Short: "Show the style indicators computed for an entity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			entities, err := a.load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			var ent *model.Entity
			for i := range entities {
				if entities[i].ID == args[1] {
					ent = &entities[i]
					break
				}
			}
			if ent == nil {
				return fmt.Errorf("entity %q not found", args[1])
			}

			engine := indicator.NewEngine(
				indicator.WithMaxIndicators(a.cfg.Indicators.MaxIndicators),
				indicator.WithDisplayWidth(a.cfg.Indicators.DisplayWidth),
			)
			an := engine.Analyze(*ent)
			if asJSON {
				data, err := json.MarshalIndent(an, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(a.out, string(data))
				return nil
			}
			if len(an.Indicators) == 0 && !an.NeedsFallback() {
				fmt.Fprintln(a.out, "no indicators")
				return nil
			}
			for _, ind := range an.Indicators {
				fmt.Fprintf(a.out, "%-8s %-24s %s\n", ind.Type, ind.DisplayValue, ind.Tooltip)
			}
			if an.NeedsFallback() {
				fmt.Fprintf(a.out, "%-8s %-24s %s\n", "color", "?", "unresolved: "+strings.Join(an.Unresolved, " "))
			}
			if an.Truncated > 0 {
				fmt.Fprintf(a.out, "(%d more)\n", an.Truncated)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the analysis as JSON")
	return cmd
}

func newDiffCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "diff <old> <new>",
		Short: "Compare two documents",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			before, err := a.load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			after, err := a.load(cmd.Context(), args[1])
			if err != nil {
				return err
			}
			d := datasource.Diff(before, after)
			fmt.Fprintln(a.out, d.Summary())
			if d.HasChanges() {
				for _, part := range []struct {
					sign string
					ids  []string
				}{{"+", d.Added}, {"-", d.Removed}, {">", d.Moved}, {"~", d.Changed}} {
					for _, id := range part.ids {
						fmt.Fprintf(a.out, "%s %s\n", part.sign, id)
					}
				}
			}
			return nil
		},
	}
}

func newConvertCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "convert <source> <destination>",
		Short: "Rewrite a document as JSON, YAML or SQLite",
		Long:  "Rewrite a document or directory into a single document. The output format\nfollows the destination extension (.json, .yaml, .sqlite).",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			entities, err := a.load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := datasource.Save(cmd.Context(), args[1], entities); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "wrote %d entities to %s\n", len(entities), args[1])
			return nil
		},
	}
}
