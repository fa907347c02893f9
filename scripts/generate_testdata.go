//go:build ignore

// generate_testdata.go creates entity documents for benchmarking and manual
// testing of the viewer.
// Usage: go run scripts/generate_testdata.go
//
// Creates:
//
//	testdata/benchmark/small.json     (100 entities)
//	testdata/benchmark/medium.yaml    (1000 entities)
//	testdata/benchmark/large.sqlite   (5000 entities)
//	testdata/benchmark/huge.sqlite    (20000 entities)
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vanderheijden86/composer/internal/datasource"
	"github.com/vanderheijden86/composer/pkg/model"
	"github.com/vanderheijden86/composer/pkg/testutil"
)

type datasetSpec struct {
	name string
	size int
	ext  string
}

var datasets = []datasetSpec{
	{"small", 100, ".json"},
	{"medium", 1000, ".yaml"},
	{"large", 5000, ".sqlite"},
	{"huge", 20000, ".sqlite"},
}

var pageNames = []string{"Home", "Pricing", "About", "Blog", "Contact", "Docs"}

func main() {
	outputDir := "testdata/benchmark"
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create output directory: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	for _, ds := range datasets {
		fmt.Printf("Generating %s dataset (%d entities)...\n", ds.name, ds.size)

		gen := testutil.New(testutil.GeneratorConfig{
			Seed:      int64(ds.size), // Reproducible per-size
			IDPrefix:  ds.name[:1],
			WithStyle: true,
		})
		entities := gen.Random(ds.size, rootChance(ds.size))
		nameRoots(entities)

		outputPath := filepath.Join(outputDir, ds.name+ds.ext)
		if err := datasource.Save(ctx, outputPath, entities); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write %s: %v\n", outputPath, err)
			os.Exit(1)
		}

		h := model.BuildHierarchy(entities)
		fmt.Printf("  Written %s (%d roots)\n", outputPath, len(h.Roots))
	}

	fmt.Println("\nDone! Test datasets created in", outputDir)
}

// rootChance keeps the page count roughly constant as size grows.
func rootChance(size int) float64 {
	switch {
	case size <= 100:
		return 0.05
	case size <= 1000:
		return 0.01
	default:
		return 0.002
	}
}

func nameRoots(entities []model.Entity) {
	n := 0
	for i := range entities {
		if entities[i].ParentID != "" {
			continue
		}
		entities[i].Name = fmt.Sprintf("%s %d", pageNames[n%len(pageNames)], n)
		n++
	}
}
