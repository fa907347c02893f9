package datasource

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/vanderheijden86/composer/pkg/debug"
	"github.com/vanderheijden86/composer/pkg/metrics"
	"github.com/vanderheijden86/composer/pkg/model"
)

var log = debug.NewLogger("datasource")

// maxConcurrentLoads bounds LoadDir's parallel reads.
const maxConcurrentLoads = 8

// Document is the file layout of JSON and YAML sources.
type Document struct {
	Entities []model.Entity `json:"entities" yaml:"entities"`
}

// Load reads every entity from the document at path. Entities without an
// id are dropped; all other structural problems are left to the hierarchy
// builder.
func Load(path string) ([]model.Entity, error) {
	src, err := DetectSource(path)
	if err != nil {
		return nil, err
	}
	return loadSource(src)
}

// LoadPath loads a single document, or every document in a directory.
func LoadPath(ctx context.Context, path string) ([]model.Entity, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat document: %w", err)
	}
	if info.IsDir() {
		return LoadDir(ctx, path)
	}
	return Load(path)
}

// LoadDir loads every document in dir concurrently and concatenates the
// results in file-name order. When an id appears in more than one file the
// first file wins.
func LoadDir(ctx context.Context, dir string) ([]model.Entity, error) {
	sources, err := DiscoverSources(dir)
	if err != nil {
		return nil, err
	}

	results := make([][]model.Entity, len(sources))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentLoads)
	for i, src := range sources {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			entities, err := loadSource(src)
			if err != nil {
				return fmt.Errorf("%s: %w", src.Path, err)
			}
			results[i] = entities
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]string)
	var out []model.Entity
	for i, entities := range results {
		for _, e := range entities {
			if first, dup := seen[e.ID]; dup {
				log.WithFields(logrus.Fields{
					"id":    e.ID,
					"file":  sources[i].Path,
					"first": first,
				}).Warn("duplicate entity id, keeping first")
				continue
			}
			seen[e.ID] = sources[i].Path
			out = append(out, e)
		}
	}
	return out, nil
}

func loadSource(src DataSource) ([]model.Entity, error) {
	defer metrics.Timer(metrics.DocumentLoad)()

	var (
		entities []model.Entity
		err      error
	)
	switch src.Type {
	case SourceTypeSQLite:
		entities, err = loadSQLite(src)
	case SourceTypeJSON, SourceTypeYAML:
		entities, err = loadFile(src)
	default:
		return nil, fmt.Errorf("%s: %w", src.Path, ErrUnsupported)
	}
	if err != nil {
		return nil, err
	}

	kept := entities[:0]
	for _, e := range entities {
		if e.ID == "" {
			log.WithField("file", src.Path).Warn("skipping entity without id")
			continue
		}
		kept = append(kept, e)
	}
	log.WithFields(logrus.Fields{
		"file":     src.Path,
		"type":     src.Type,
		"entities": len(kept),
	}).Debug("document loaded")
	return kept, nil
}

func loadFile(src DataSource) ([]model.Entity, error) {
	data, err := os.ReadFile(src.Path)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var doc Document
	if src.Type == SourceTypeYAML {
		err = yaml.Unmarshal(data, &doc)
	} else {
		err = json.Unmarshal(data, &doc)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s document %s: %w", src.Type, src.Path, err)
	}
	return doc.Entities, nil
}

func validateAll(entities []model.Entity) error {
	var errs []error
	seen := make(map[string]bool, len(entities))
	for _, e := range entities {
		if err := e.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		if seen[e.ID] {
			errs = append(errs, fmt.Errorf("entity %s: duplicate id", e.ID))
		}
		seen[e.ID] = true
	}
	return errors.Join(errs...)
}
