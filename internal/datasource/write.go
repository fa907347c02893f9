package datasource

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/vanderheijden86/composer/pkg/model"
)

// Save writes entities to path in the format its extension names.
// JSON and YAML are written to a temp file and renamed into place.
func Save(ctx context.Context, path string, entities []model.Entity) error {
	typ, ok := TypeOf(path)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupported, filepath.Ext(path))
	}
	if typ == SourceTypeSQLite {
		return WriteSQLite(ctx, path, entities)
	}

	doc := Document{Entities: entities}
	var (
		data []byte
		err  error
	)
	if typ == SourceTypeYAML {
		data, err = yaml.Marshal(doc)
	} else {
		data, err = json.MarshalIndent(doc, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("encoding %s: %w", typ, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".composer-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}
