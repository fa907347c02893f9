package datasource

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	_ "modernc.org/sqlite"

	"github.com/vanderheijden86/composer/pkg/model"
)

// EntitiesSchema is the table layout read from SQLite documents. style is
// a JSON array or a space-separated token list; props is a JSON object.
const EntitiesSchema = `
CREATE TABLE IF NOT EXISTS entities (
	id        TEXT PRIMARY KEY,
	parent_id TEXT,
	kind      TEXT NOT NULL DEFAULT '',
	name      TEXT,
	type      TEXT,
	style     TEXT,
	props     TEXT,
	position  INTEGER NOT NULL DEFAULT 0
)`

// SQLiteReader provides read access to an entity database.
type SQLiteReader struct {
	db   *sql.DB
	path string
}

// NewSQLiteReader opens a SQLite document for reading
func NewSQLiteReader(source DataSource) (*SQLiteReader, error) {
	if source.Type != SourceTypeSQLite {
		return nil, fmt.Errorf("source is not SQLite: %s", source.Type)
	}
	dsn := fmt.Sprintf("file:%s?mode=ro&_pragma=busy_timeout(5000)", source.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("cannot open database: %w", err)
	}
	return &SQLiteReader{db: db, path: source.Path}, nil
}

// Close closes the database connection
func (r *SQLiteReader) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// LoadEntities reads every row in position order; ties keep rowid order.
func (r *SQLiteReader) LoadEntities(ctx context.Context) ([]model.Entity, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, parent_id, kind, name, type, style, props
		FROM entities
		ORDER BY position, rowid`)
	if err != nil {
		return nil, fmt.Errorf("query entities in %s: %w", r.path, err)
	}
	defer rows.Close()

	var entities []model.Entity
	for rows.Next() {
		var (
			e                                      model.Entity
			kind                                   string
			parentID, name, typ, style, propsJSON sql.NullString
		)
		if err := rows.Scan(&e.ID, &parentID, &kind, &name, &typ, &style, &propsJSON); err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		e.Kind = model.EntityKind(kind)
		e.ParentID = parentID.String
		e.Name = name.String
		e.Type = typ.String
		e.Style = parseStyle(style.String)
		if propsJSON.Valid && propsJSON.String != "" {
			if err := json.Unmarshal([]byte(propsJSON.String), &e.Props); err != nil {
				return nil, fmt.Errorf("entity %s: parse props: %w", e.ID, err)
			}
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}

func parseStyle(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if strings.HasPrefix(s, "[") {
		var tokens []string
		if err := json.Unmarshal([]byte(s), &tokens); err == nil {
			return tokens
		}
	}
	return strings.Fields(s)
}

func loadSQLite(src DataSource) ([]model.Entity, error) {
	r, err := NewSQLiteReader(src)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return r.LoadEntities(context.Background())
}

// WriteSQLite replaces the entities table of the database at path,
// creating it if needed.
func WriteSQLite(ctx context.Context, path string, entities []model.Entity) error {
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, EntitiesSchema); err != nil {
		return fmt.Errorf("create entities table: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM entities`); err != nil {
		return fmt.Errorf("clear entities: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO entities (id, parent_id, kind, name, type, style, props, position)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, e := range entities {
		var props any
		if len(e.Props) > 0 {
			b, err := json.Marshal(e.Props)
			if err != nil {
				return fmt.Errorf("entity %s: encode props: %w", e.ID, err)
			}
			props = string(b)
		}
		if _, err := stmt.ExecContext(ctx, e.ID, nullable(e.ParentID), string(e.Kind),
			nullable(e.Name), nullable(e.Type), nullable(strings.Join(e.Style, " ")), props, i); err != nil {
			return fmt.Errorf("insert entity %s: %w", e.ID, err)
		}
	}
	return tx.Commit()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
