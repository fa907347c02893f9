package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"

	"github.com/vanderheijden86/composer/pkg/indicator"
	"github.com/vanderheijden86/composer/pkg/model"
	"github.com/vanderheijden86/composer/pkg/prefs"
	"github.com/vanderheijden86/composer/pkg/testutil"
)

// isolate points config and state at fresh temp dirs.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_STATE_HOME", filepath.Join(dir, "state"))
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, args...)
	if err != nil {
		t.Fatalf("composer %s: %v", strings.Join(args, " "), err)
	}
	return out
}

func sampleDoc(t *testing.T, dir string) string {
	t.Helper()
	return testutil.WriteDocument(t, filepath.Join(dir, "page.json"), testutil.Sample())
}

func TestPathCommand(t *testing.T) {
	doc := sampleDoc(t, isolate(t))

	out := mustRun(t, "path", doc, "button")
	if strings.TrimSpace(out) != "root / section / card / button" {
		t.Errorf("unexpected path output %q", out)
	}

	if _, err := run(t, "path", doc, "nope"); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("expected not found error, got %v", err)
	}
}

func TestPathExpandIsRestoredByTree(t *testing.T) {
	doc := sampleDoc(t, isolate(t))

	out := mustRun(t, "path", "--expand", doc, "button")
	if !strings.Contains(out, "expanded 3 ancestors") {
		t.Errorf("unexpected output %q", out)
	}

	var p prefs.ViewPreferences
	if err := json.Unmarshal([]byte(mustRun(t, "prefs", "show", "--json")), &p); err != nil {
		t.Fatalf("decoding prefs: %v", err)
	}
	if strings.Join(p.ExpandedItems, ",") != "root,section,card" {
		t.Errorf("unexpected stored expansion %v", p.ExpandedItems)
	}
	if p.HierarchySize != 5 {
		t.Errorf("expected hierarchy size 5, got %d", p.HierarchySize)
	}

	tree := mustRun(t, "tree", doc)
	if !strings.Contains(tree, "    │   └── • button [component]") {
		t.Errorf("restored tree should show button:\n%s", tree)
	}

	// Another namespace has its own state.
	tree = mustRun(t, "--namespace", "other", "tree", doc)
	if strings.TrimSpace(tree) != "▸ root (Home) [page]" {
		t.Errorf("expected a collapsed tree, got:\n%s", tree)
	}
}

func TestTreeAll(t *testing.T) {
	doc := sampleDoc(t, isolate(t))

	out := mustRun(t, "tree", "--all", "--indicators", doc)
	want := []string{
		"▾ root (Home) [page]",
		"└── ▾ section (Hero) [container]",
		"    ├── ▾ card [container]",
		"    │   └── • button [component]",
		"    └── • title (heading) [component]",
	}
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != len(want) {
		t.Fatalf("expected %d lines, got:\n%s", len(want), out)
	}
	for i, w := range want {
		if !strings.HasPrefix(lines[i], w) {
			t.Errorf("line %d = %q, want prefix %q", i, lines[i], w)
		}
	}
	if !strings.Contains(lines[3], "bg-blue-500") {
		t.Errorf("expected indicators on the button line, got %q", lines[3])
	}
}

func TestIndicatorsCommand(t *testing.T) {
	doc := sampleDoc(t, isolate(t))

	out := mustRun(t, "indicators", doc, "button")
	if !strings.Contains(out, "color") || !strings.Contains(out, "bg-blue-500") {
		t.Errorf("unexpected indicators output:\n%s", out)
	}

	var a indicator.Analysis
	if err := json.Unmarshal([]byte(mustRun(t, "indicators", "--json", doc, "button")), &a); err != nil {
		t.Fatalf("decoding analysis: %v", err)
	}
	if len(a.Indicators) == 0 || a.Indicators[0].Type != indicator.TypeColor {
		t.Errorf("expected a color indicator first, got %+v", a.Indicators)
	}

	out = mustRun(t, "indicators", doc, "root")
	if strings.TrimSpace(out) != "no indicators" {
		t.Errorf("unexpected output for root %q", out)
	}
}

func TestDiffAndConvert(t *testing.T) {
	dir := isolate(t)
	doc := sampleDoc(t, dir)

	db := filepath.Join(dir, "page.sqlite")
	out := mustRun(t, "convert", doc, db)
	if !strings.Contains(out, "wrote 5 entities") {
		t.Errorf("unexpected convert output %q", out)
	}
	if got := mustRun(t, "path", db, "title"); strings.TrimSpace(got) != "root / section / title" {
		t.Errorf("converted document gives path %q", got)
	}

	changed := append(testutil.Sample(), model.Entity{ID: "footer", ParentID: "root", Kind: model.KindContainer})
	next := testutil.WriteDocument(t, filepath.Join(dir, "next.yaml"), changed)
	out = mustRun(t, "diff", db, next)
	if !strings.Contains(out, "5 -> 6 entities; 1 added (footer)") || !strings.Contains(out, "+ footer") {
		t.Errorf("unexpected diff output:\n%s", out)
	}

	if _, err := run(t, "convert", doc, filepath.Join(dir, "page.txt")); err == nil {
		t.Error("expected an error for an unknown output type")
	}
}

func TestPrefsCommands(t *testing.T) {
	isolate(t)

	out := mustRun(t, "prefs", "set", "--auto-expand=false")
	if !strings.Contains(out, "auto-expand=false") {
		t.Errorf("unexpected output %q", out)
	}
	if out := mustRun(t, "prefs", "show"); !strings.Contains(out, "auto-expand:    false") {
		t.Errorf("setting not persisted:\n%s", out)
	}

	if out := mustRun(t, "prefs", "snapshots"); strings.TrimSpace(out) != "no snapshots" {
		t.Errorf("unexpected snapshots output %q", out)
	}
	if _, err := run(t, "prefs", "delete-snapshot", "missing"); err == nil {
		t.Error("expected an error deleting a missing snapshot")
	}

	mustRun(t, "prefs", "reset")
	if out := mustRun(t, "prefs", "show"); !strings.Contains(out, "auto-expand:    true") {
		t.Errorf("reset should restore defaults:\n%s", out)
	}
}

func TestPrefsBackends(t *testing.T) {
	for _, backend := range []string{"file", "sqlite", "bolt"} {
		t.Run(backend, func(t *testing.T) {
			doc := sampleDoc(t, isolate(t))
			mustRun(t, "--prefs-backend", backend, "path", "--expand", doc, "title")
			out := mustRun(t, "--prefs-backend", backend, "prefs", "show")
			if !strings.Contains(out, "expanded (2):  root, section") {
				t.Errorf("unexpected prefs for %s:\n%s", backend, out)
			}
		})
	}
}

func TestConfigCommands(t *testing.T) {
	dir := isolate(t)
	t.Setenv("COMPOSER_MAX_BATCH", "20")

	path := filepath.Join(dir, "composer.toml")
	if err := os.WriteFile(path, []byte("[scheduler]\ndebounce = \"250ms\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	out := mustRun(t, "--config", path, "config", "show")
	if !strings.Contains(out, "debounce: 250ms") || !strings.Contains(out, "max_batch_size: 20") {
		t.Errorf("file and environment not applied:\n%s", out)
	}

	out = mustRun(t, "config", "show", "--format", "toml")
	if !strings.Contains(out, "[scheduler]") {
		t.Errorf("unexpected toml output:\n%s", out)
	}

	var schema map[string]any
	if err := json.Unmarshal([]byte(mustRun(t, "config", "schema")), &schema); err != nil {
		t.Fatalf("schema is not JSON: %v", err)
	}
	if props, ok := schema["properties"].(map[string]any); !ok || props["scheduler"] == nil {
		t.Errorf("schema missing scheduler section: %v", schema["properties"])
	}

	mustRun(t, "config", "init")
	if _, err := run(t, "config", "init"); err == nil {
		t.Error("second init should refuse to overwrite")
	}
	mustRun(t, "config", "init", "--force")
}

func TestViewNeedsTerminal(t *testing.T) {
	doc := sampleDoc(t, isolate(t))
	orig := isTerminal
	isTerminal = func() bool { return false }
	t.Cleanup(func() { isTerminal = orig })

	_, err := run(t, "view", doc)
	if !errors.Is(err, errNoTerminal) {
		t.Errorf("expected errNoTerminal, got %v", err)
	}
}
