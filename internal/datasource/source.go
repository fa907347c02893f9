// Package datasource finds, validates and reads entity documents. A
// document is a JSON or YAML file holding {"entities": [...]} or a SQLite
// database with an entities table.
package datasource

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// SourceType identifies the encoding of a document.
type SourceType string

const (
	SourceTypeJSON   SourceType = "json"
	SourceTypeYAML   SourceType = "yaml"
	SourceTypeSQLite SourceType = "sqlite"
)

// ErrUnsupported is returned for a path whose extension names no known
// document type.
var ErrUnsupported = errors.New("unsupported document type")

// DataSource describes one entity document on disk.
type DataSource struct {
	Type    SourceType `json:"type"`
	Path    string     `json:"path"`
	ModTime time.Time  `json:"mod_time"`
	Size    int64      `json:"size"`
	// Valid is set by ValidateSource.
	Valid           bool   `json:"valid"`
	ValidationError string `json:"validation_error,omitempty"`
	EntityCount     int    `json:"entity_count"`
}

// String returns a human-readable description of the source
func (s DataSource) String() string {
	status := "valid"
	if !s.Valid {
		status = fmt.Sprintf("invalid: %s", s.ValidationError)
	}
	return fmt.Sprintf("%s (%s, mod=%s, entities=%d, %s)",
		s.Path, s.Type, s.ModTime.Format(time.RFC3339), s.EntityCount, status)
}

// TypeOf maps a file extension to its SourceType.
func TypeOf(path string) (SourceType, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return SourceTypeJSON, true
	case ".yaml", ".yml":
		return SourceTypeYAML, true
	case ".sqlite", ".sqlite3", ".db":
		return SourceTypeSQLite, true
	}
	return "", false
}

// DetectSource stats path and classifies it by extension.
func DetectSource(path string) (DataSource, error) {
	typ, ok := TypeOf(path)
	if !ok {
		return DataSource{}, fmt.Errorf("%s: %w", path, ErrUnsupported)
	}
	info, err := os.Stat(path)
	if err != nil {
		return DataSource{}, fmt.Errorf("stat document: %w", err)
	}
	if info.IsDir() {
		return DataSource{}, fmt.Errorf("%s is a directory", path)
	}
	return DataSource{Type: typ, Path: path, ModTime: info.ModTime(), Size: info.Size()}, nil
}

// DiscoverSources lists every document directly inside dir, sorted by file
// name. Hidden files, backups and unknown extensions are skipped.
func DiscoverSources(dir string) ([]DataSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read document directory: %w", err)
	}

	var sources []DataSource
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, ".") ||
			strings.HasSuffix(name, "~") ||
			strings.Contains(name, ".backup") ||
			strings.Contains(name, ".orig") {
			continue
		}
		typ, ok := TypeOf(name)
		if !ok {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		sources = append(sources, DataSource{
			Type:    typ,
			Path:    filepath.Join(dir, name),
			ModTime: info.ModTime(),
			Size:    info.Size(),
		})
	}
	sort.Slice(sources, func(i, j int) bool {
		return filepath.Base(sources[i].Path) < filepath.Base(sources[j].Path)
	})
	return sources, nil
}

// ValidateSource loads the document and checks every entity, recording
// the outcome on s.
func ValidateSource(s *DataSource) error {
	entities, err := loadSource(*s)
	if err == nil {
		err = validateAll(entities)
	}
	if err != nil {
		s.Valid = false
		s.ValidationError = err.Error()
		return err
	}
	s.Valid = true
	s.ValidationError = ""
	s.EntityCount = len(entities)
	return nil
}
