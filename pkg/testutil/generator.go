// Package testutil provides fixture generators for entity forests.
// All generators produce deterministic output for reproducible tests.
package testutil

import (
	"fmt"
	"math/rand"

	"pgregory.net/rapid"

	"github.com/vanderheijden86/composer/pkg/model"
)

// GeneratorConfig controls forest generation.
type GeneratorConfig struct {
	Seed      int64  // Random seed for determinism (0 = 42)
	IDPrefix  string // Prefix for entity IDs (default: "e")
	WithStyle bool   // Attach random style tokens and content props
}

// DefaultConfig returns a config suitable for most tests.
func DefaultConfig() GeneratorConfig {
	return GeneratorConfig{Seed: 42, IDPrefix: "e"}
}

// Generator creates entity fixtures with various shapes.
type Generator struct {
	cfg GeneratorConfig
	rng *rand.Rand
}

// New creates a Generator with the given config.
func New(cfg GeneratorConfig) *Generator {
	if cfg.Seed == 0 {
		cfg.Seed = 42
	}
	if cfg.IDPrefix == "" {
		cfg.IDPrefix = "e"
	}
	return &Generator{cfg: cfg, rng: rand.New(rand.NewSource(cfg.Seed))}
}

// NewDefault creates a Generator with default config.
func NewDefault() *Generator {
	return New(DefaultConfig())
}

func (g *Generator) id(i int) string {
	return fmt.Sprintf("%s%d", g.cfg.IDPrefix, i)
}

// kindAt picks the kind for a node at depth: pages at the top, components
// at the leaves, containers in between.
func kindAt(depth int, leaf bool) model.EntityKind {
	switch {
	case depth == 0:
		return model.KindPage
	case leaf:
		return model.KindComponent
	default:
		return model.KindContainer
	}
}

// Chain creates a single path e0 <- e1 <- ... <- e{size-1}; the last
// entity sits at depth size-1.
func (g *Generator) Chain(size int) []model.Entity {
	out := make([]model.Entity, 0, size)
	for i := 0; i < size; i++ {
		e := model.Entity{ID: g.id(i), Kind: kindAt(i, i == size-1)}
		if i > 0 {
			e.ParentID = g.id(i - 1)
		}
		out = append(out, g.decorate(e))
	}
	return out
}

// Tree creates a complete tree with the given depth and breadth, in
// breadth-first order.
func (g *Generator) Tree(depth, breadth int) []model.Entity {
	out := []model.Entity{g.decorate(model.Entity{ID: g.id(0), Kind: model.KindPage})}
	level := []string{g.id(0)}
	next := 1
	for d := 1; d <= depth; d++ {
		var nextLevel []string
		for _, parent := range level {
			for b := 0; b < breadth; b++ {
				id := g.id(next)
				next++
				out = append(out, g.decorate(model.Entity{ID: id, ParentID: parent, Kind: kindAt(d, d == depth)}))
				nextLevel = append(nextLevel, id)
			}
		}
		level = nextLevel
	}
	return out
}

// Cycle creates size entities whose parent links form a ring.
func (g *Generator) Cycle(size int) []model.Entity {
	out := make([]model.Entity, size)
	for i := 0; i < size; i++ {
		out[i] = model.Entity{ID: g.id(i), ParentID: g.id((i + size - 1) % size), Kind: model.KindContainer}
	}
	return out
}

// Random creates a forest of size entities where each entity's parent is
// chosen uniformly among the ones before it, or none with probability
// rootChance.
func (g *Generator) Random(size int, rootChance float64) []model.Entity {
	out := make([]model.Entity, 0, size)
	depth := make([]int, size)
	for i := 0; i < size; i++ {
		e := model.Entity{ID: g.id(i)}
		if i > 0 && g.rng.Float64() >= rootChance {
			p := g.rng.Intn(i)
			e.ParentID = g.id(p)
			depth[i] = depth[p] + 1
		}
		e.Kind = kindAt(depth[i], false)
		out = append(out, g.decorate(e))
	}
	return out
}

var (
	sampleStyles = []string{
		"bg-blue-500", "bg-red-200", "text-gray-900", "border-green-400",
		"p-4", "px-2", "m-1", "gap-6", "w-32", "h-10", "text-lg", "rounded",
		"bg-mauve-300",
	}
	sampleText = []string{"Click me", "Welcome", "Sign up", "", "Pricing"}
)

func (g *Generator) decorate(e model.Entity) model.Entity {
	if !g.cfg.WithStyle {
		return e
	}
	n := g.rng.Intn(4)
	for i := 0; i < n; i++ {
		e.Style = append(e.Style, sampleStyles[g.rng.Intn(len(sampleStyles))])
	}
	if txt := sampleText[g.rng.Intn(len(sampleText))]; txt != "" {
		e.Props = map[string]string{"text": txt}
	}
	return e
}

// Sample returns the small page used throughout the tests:
//
//	root (page)
//	└── section (container)
//	    ├── card (container)
//	    │   └── button (component)
//	    └── title (component)
func Sample() []model.Entity {
	return []model.Entity{
		{ID: "root", Kind: model.KindPage, Name: "Home"},
		{ID: "section", ParentID: "root", Kind: model.KindContainer, Name: "Hero"},
		{ID: "card", ParentID: "section", Kind: model.KindContainer, Style: []string{"bg-white", "p-6"}},
		{
			ID: "button", ParentID: "card", Kind: model.KindComponent, Type: "button",
			Style: []string{"bg-blue-500", "p-4", "text-lg"},
			Props: map[string]string{"content": "Click me"},
		},
		{
			ID: "title", ParentID: "section", Kind: model.KindComponent, Type: "heading",
			Style: []string{"text-gray-900"},
			Props: map[string]string{"text": "Welcome"},
		},
	}
}

// Empty returns an empty entity list.
func Empty() []model.Entity {
	return []model.Entity{}
}

// ForestGen is a rapid generator of well-formed forests with up to maxSize
// entities. Parents always precede their children.
func ForestGen(maxSize int) *rapid.Generator[[]model.Entity] {
	return rapid.Custom(func(t *rapid.T) []model.Entity {
		size := rapid.IntRange(1, maxSize).Draw(t, "size")
		out := make([]model.Entity, 0, size)
		depth := make([]int, size)
		for i := 0; i < size; i++ {
			e := model.Entity{ID: fmt.Sprintf("n%d", i)}
			if i > 0 {
				if p := rapid.IntRange(-1, i-1).Draw(t, "parent"); p >= 0 {
					e.ParentID = out[p].ID
					depth[i] = depth[p] + 1
				}
			}
			e.Kind = kindAt(depth[i], false)
			out = append(out, e)
		}
		return out
	})
}

// IDs returns the entity ids in order.
func IDs(entities []model.Entity) []string {
	out := make([]string, len(entities))
	for i, e := range entities {
		out[i] = e.ID
	}
	return out
}

// Find returns the entity with id, or nil.
func Find(entities []model.Entity, id string) *model.Entity {
	for i := range entities {
		if entities[i].ID == id {
			return &entities[i]
		}
	}
	return nil
}
