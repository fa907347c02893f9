package testutil

import (
	"path/filepath"
	"reflect"
	"testing"

	"pgregory.net/rapid"

	"github.com/vanderheijden86/composer/pkg/model"
)

func TestChain(t *testing.T) {
	entities := NewDefault().Chain(4)
	if len(entities) != 4 {
		t.Fatalf("expected 4 entities, got %d", len(entities))
	}
	AssertNoDuplicateIDs(t, entities)
	AssertAllValid(t, entities)

	h := model.BuildHierarchy(entities)
	AssertConsistent(t, h)
	if d := h.Nodes["e3"].Depth; d != 3 {
		t.Errorf("expected leaf depth 3, got %d", d)
	}
	if entities[0].Kind != model.KindPage || entities[3].Kind != model.KindComponent {
		t.Errorf("unexpected kinds: %s ... %s", entities[0].Kind, entities[3].Kind)
	}
}

func TestTree(t *testing.T) {
	entities := NewDefault().Tree(2, 3)
	// 1 + 3 + 9
	if len(entities) != 13 {
		t.Fatalf("expected 13 entities, got %d", len(entities))
	}
	h := model.BuildHierarchy(entities)
	AssertConsistent(t, h)
	if len(h.Roots) != 1 || len(h.Nodes["e0"].ChildIDs) != 3 {
		t.Errorf("unexpected shape: roots=%v children=%v", h.Roots, h.Nodes["e0"].ChildIDs)
	}
}

func TestCycleHasNoRoots(t *testing.T) {
	h := model.BuildHierarchy(NewDefault().Cycle(3))
	if len(h.Roots) != 0 {
		t.Errorf("expected no roots in a ring, got %v", h.Roots)
	}
	if h.Len() != 3 {
		t.Errorf("expected ring members kept, got %d", h.Len())
	}
}

func TestRandomDeterminism(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WithStyle = true
	a := New(cfg).Random(50, 0.1)
	b := New(cfg).Random(50, 0.1)
	if !reflect.DeepEqual(a, b) {
		t.Error("same seed produced different forests")
	}
	AssertConsistent(t, model.BuildHierarchy(a))
}

func TestSampleShape(t *testing.T) {
	h := model.BuildHierarchy(Sample())
	AssertConsistent(t, h)
	if h.Nodes["button"].Depth != 3 {
		t.Errorf("expected button at depth 3, got %d", h.Nodes["button"].Depth)
	}
	if Find(Sample(), "title") == nil || Find(Sample(), "nope") != nil {
		t.Error("Find returned the wrong result")
	}
}

func TestWriteDocument(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"page.json", "page.yaml"} {
		path := WriteDocument(t, filepath.Join(dir, name), Sample())
		if path == "" {
			t.Fatalf("%s: empty path", name)
		}
	}
}

func TestForestGenIsWellFormed(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		entities := ForestGen(30).Draw(rt, "forest")
		h := model.BuildHierarchy(entities)
		if h.Len() != len(entities) {
			rt.Fatalf("expected %d nodes, got %d", len(entities), h.Len())
		}
		reachable := len(h.Visible(func(string) bool { return true }))
		if reachable != len(entities) {
			rt.Fatalf("expected every node reachable from a root, got %d of %d", reachable, len(entities))
		}
	})
}
