// Package manifeststore persists tool manifests in SQLite.
//
// Manifests are stored as their JSON documents and re-checked (envelope and meta-schema)
// on the way in and on the way out, so a row can never produce a manifest that
// toolspec.ParseManifest would reject.
package manifeststore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/skosovsky/toolspec"
)

// ErrNotFound is returned when no manifest has the requested name.
var ErrNotFound = errors.New("manifest not found")

const schema = `
CREATE TABLE IF NOT EXISTS manifests (
	name       TEXT PRIMARY KEY,
	version    TEXT NOT NULL DEFAULT '',
	document   TEXT NOT NULL,
	updated_at INTEGER NOT NULL
)`

// Store is a manifest table in a SQLite database. It is safe for concurrent use.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the SQLite database at dsn, for example "tools.db"
// or ":memory:".
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open manifest store: %w", err)
	}
	// One connection: an in-memory database exists per connection, and SQLite serializes writers anyway.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create manifest table: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put checks m as ParseManifest would, compiles its schemas, and inserts or replaces the manifest with the same name.
func (s *Store) Put(ctx context.Context, m *toolspec.Manifest) error {
	if m == nil {
		return errors.New("manifest must not be nil")
	}
	doc, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode %q: %w", m.Name, err)
	}
	// Check the stored form, so Get can always parse what Put accepted.
	parsed, err := toolspec.ParseManifest(doc)
	if err != nil {
		return fmt.Errorf("put %q: %w", m.Name, err)
	}
	if _, err := parsed.Compile(); err != nil {
		return fmt.Errorf("put %q: %w", m.Name, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO manifests (name, version, document, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET version = excluded.version, document = excluded.document, updated_at = excluded.updated_at`,
		m.Name, m.Version, string(doc), s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("put %q: %w", m.Name, err)
	}
	return nil
}

// PutJSON parses a manifest document and stores it.
func (s *Store) PutJSON(ctx context.Context, data []byte, opts ...toolspec.ManifestOption) (*toolspec.Manifest, error) {
	m, err := toolspec.ParseManifest(data, opts...)
	if err != nil {
		return nil, err
	}
	if err := s.Put(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Get returns the manifest named name, or ErrNotFound.
func (s *Store) Get(ctx context.Context, name string) (*toolspec.Manifest, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT document FROM manifests WHERE name = ?`, name).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", name, err)
	}
	m, err := toolspec.ParseManifest([]byte(doc))
	if err != nil {
		return nil, fmt.Errorf("stored manifest %q: %w", name, err)
	}
	return m, nil
}

// Entry is a manifest with its storage metadata.
type Entry struct {
	Manifest  *toolspec.Manifest
	UpdatedAt time.Time
}

// List returns every stored manifest ordered by name.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, document, updated_at FROM manifests ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list manifests: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			name, doc string
			updated   int64
		)
		if err := rows.Scan(&name, &doc, &updated); err != nil {
			return nil, fmt.Errorf("list manifests: %w", err)
		}
		m, err := toolspec.ParseManifest([]byte(doc))
		if err != nil {
			return nil, fmt.Errorf("stored manifest %q: %w", name, err)
		}
		out = append(out, Entry{Manifest: m, UpdatedAt: time.UnixMilli(updated)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list manifests: %w", err)
	}
	return out, nil
}

// Delete removes the manifest named name, or returns ErrNotFound.
func (s *Store) Delete(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM manifests WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete %q: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete %q: %w", name, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return nil
}

// Handlers resolves the handler for a stored manifest by name.
type Handlers func(name string) (func(ctx context.Context, argsJSON []byte) ([]byte, error), bool)

// LoadInto registers every stored manifest that handlers can serve with reg and returns
// the names of the manifests it skipped. opts apply to every tool.
func (s *Store) LoadInto(ctx context.Context, reg *toolspec.Registry, handlers Handlers, opts ...toolspec.ToolOption) ([]string, error) {
	entries, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	var skipped []string
	for _, e := range entries {
		fn, ok := handlers(e.Manifest.Name)
		if !ok {
			skipped = append(skipped, e.Manifest.Name)
			continue
		}
		if err := reg.RegisterManifest(e.Manifest, fn, opts...); err != nil {
			return skipped, err
		}
	}
	return skipped, nil
}
