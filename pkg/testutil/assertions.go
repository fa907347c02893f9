package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/vanderheijden86/composer/pkg/model"
)

// AssertNoDuplicateIDs verifies all entity IDs are unique.
func AssertNoDuplicateIDs(t testing.TB, entities []model.Entity) {
	t.Helper()
	seen := make(map[string]bool)
	for _, e := range entities {
		if seen[e.ID] {
			t.Errorf("duplicate entity ID: %s", e.ID)
		}
		seen[e.ID] = true
	}
}

// AssertAllValid verifies all entities pass validation.
func AssertAllValid(t testing.TB, entities []model.Entity) {
	t.Helper()
	for i, e := range entities {
		if err := e.Validate(); err != nil {
			t.Errorf("entity %d (%s) invalid: %v", i, e.ID, err)
		}
	}
}

// AssertConsistent verifies that every node's id appears in its parent's
// ChildIDs exactly once and that depth is one more than the parent's.
func AssertConsistent(t testing.TB, h *model.Hierarchy) {
	t.Helper()
	for id, n := range h.Nodes {
		if n.ParentID == "" {
			if n.Depth != 0 {
				t.Errorf("root %s has depth %d", id, n.Depth)
			}
			continue
		}
		p, ok := h.Nodes[n.ParentID]
		if !ok {
			t.Errorf("%s: parent %s missing", id, n.ParentID)
			continue
		}
		count := 0
		for _, c := range p.ChildIDs {
			if c == id {
				count++
			}
		}
		if count != 1 {
			t.Errorf("%s listed %d times under %s", id, count, n.ParentID)
		}
	}
}

// WriteDocument writes entities to path as an entity document, in YAML
// when the extension says so and JSON otherwise.
func WriteDocument(t testing.TB, path string, entities []model.Entity) string {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create directory: %v", err)
	}
	doc := struct {
		Entities []model.Entity `json:"entities" yaml:"entities"`
	}{entities}

	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(doc)
	default:
		data, err = json.MarshalIndent(doc, "", "  ")
	}
	if err != nil {
		t.Fatalf("failed to encode document: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("failed to write document: %v", err)
	}
	return path
}
