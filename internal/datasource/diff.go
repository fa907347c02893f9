package datasource

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/vanderheijden86/composer/pkg/model"
)

// TreeDiff summarizes what changed between two loads of a document.
type TreeDiff struct {
	Added   []string
	Removed []string
	// Moved holds entities whose parent changed.
	Moved []string
	// Changed holds entities whose name, type, style or props changed.
	Changed []string
	CountA  int
	CountB  int
}

// HasChanges reports whether the two entity lists differ.
func (d TreeDiff) HasChanges() bool {
	return len(d.Added) > 0 || len(d.Removed) > 0 || len(d.Moved) > 0 || len(d.Changed) > 0
}

// Structural reports whether the hierarchy shape differs.
func (d TreeDiff) Structural() bool {
	return len(d.Added) > 0 || len(d.Removed) > 0 || len(d.Moved) > 0
}

// Summary returns a human-readable summary of the differences
func (d TreeDiff) Summary() string {
	if !d.HasChanges() {
		return fmt.Sprintf("no changes (%d entities)", d.CountA)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d -> %d entities", d.CountA, d.CountB)
	for _, part := range []struct {
		label string
		ids   []string
	}{
		{"added", d.Added},
		{"removed", d.Removed},
		{"moved", d.Moved},
		{"changed", d.Changed},
	} {
		if len(part.ids) == 0 {
			continue
		}
		fmt.Fprintf(&b, "; %d %s", len(part.ids), part.label)
		if len(part.ids) <= 5 {
			fmt.Fprintf(&b, " (%s)", strings.Join(part.ids, ", "))
		}
	}
	return b.String()
}

// Diff compares two entity lists by id. Every id list is sorted.
func Diff(a, b []model.Entity) TreeDiff {
	d := TreeDiff{CountA: len(a), CountB: len(b)}
	before := model.IndexEntities(a)
	after := model.IndexEntities(b)

	for id, old := range before {
		cur, ok := after[id]
		if !ok {
			d.Removed = append(d.Removed, id)
			continue
		}
		if old.ParentID != cur.ParentID {
			d.Moved = append(d.Moved, id)
		}
		if !sameContent(old, cur) {
			d.Changed = append(d.Changed, id)
		}
	}
	for id := range after {
		if _, ok := before[id]; !ok {
			d.Added = append(d.Added, id)
		}
	}
	for _, ids := range [][]string{d.Added, d.Removed, d.Moved, d.Changed} {
		sort.Strings(ids)
	}
	return d
}

func sameContent(a, b model.Entity) bool {
	if a.Kind != b.Kind || a.Name != b.Name || a.Type != b.Type || !slices.Equal(a.Style, b.Style) {
		return false
	}
	if len(a.Props) != len(b.Props) {
		return false
	}
	for k, v := range a.Props {
		if w, ok := b.Props[k]; !ok || w != v {
			return false
		}
	}
	return true
}
