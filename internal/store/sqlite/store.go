// Package sqlite provides a single-file grant store backed by SQLite via sqlx.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	// Register the sqlite3 driver.
	_ "github.com/mattn/go-sqlite3"

	"github.com/JakeFAU/grant-discovery/internal/grant"
	"github.com/JakeFAU/grant-discovery/internal/store"
)

// Config selects the database file and table.
type Config struct {
	Path  string
	Table string
}

// Store persists grants as JSON documents keyed on grant_id.
type Store struct {
	db    *sqlx.DB
	table string
}

// Open opens (creating if needed) the database at cfg.Path.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("store.sqlite.path is required")
	}
	db, err := sqlx.Open("sqlite3", cfg.Path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	return NewWithDB(db, cfg.Table)
}

// NewWithDB wraps an existing handle (primarily for testing).
func NewWithDB(db *sqlx.DB, table string) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	name, err := store.TableName(table)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, table: name}, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	return nil
}

// Migrate creates the grants table if missing.
func (s *Store) Migrate(ctx context.Context) error {
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	grant_id     TEXT PRIMARY KEY,
	source       TEXT NOT NULL,
	url          TEXT NOT NULL,
	title        TEXT NOT NULL,
	status       TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	document     BLOB NOT NULL,
	created_at   TIMESTAMP NOT NULL,
	updated_at   TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS %[1]s_source_idx ON %[1]s (source);`, s.table)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("migrate %s: %w", s.table, err)
	}
	return nil
}

// FindURLs returns the URLs of every stored grant for source.
func (s *Store) FindURLs(ctx context.Context, source string) (map[string]struct{}, error) {
	return s.column(ctx, "url", source)
}

// FindIDs returns the grant IDs stored for source.
func (s *Store) FindIDs(ctx context.Context, source string) (map[string]struct{}, error) {
	return s.column(ctx, "grant_id", source)
}

func (s *Store) column(ctx context.Context, column, source string) (map[string]struct{}, error) {
	var values []string
	query := fmt.Sprintf("SELECT %s FROM %s WHERE source = ?", column, s.table)
	if err := s.db.SelectContext(ctx, &values, query, source); err != nil {
		return nil, fmt.Errorf("query %s: %w", column, err)
	}
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		out[v] = struct{}{}
	}
	return out, nil
}

// Upsert reads the previous content hash and writes rec in one transaction.
// created_at is never touched on conflict.
func (s *Store) Upsert(ctx context.Context, rec grant.StoredGrant) (grant.UpsertResult, error) {
	row, err := store.Encode(rec)
	if err != nil {
		return grant.UpsertResult{}, err
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return grant.UpsertResult{}, fmt.Errorf("begin upsert: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var previous string
	err = tx.GetContext(ctx, &previous,
		fmt.Sprintf("SELECT content_hash FROM %s WHERE grant_id = ?", s.table), row.GrantID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return grant.UpsertResult{}, fmt.Errorf("read previous hash for %s: %w", row.GrantID, err)
	}

	query := fmt.Sprintf(`
INSERT INTO %s (grant_id, source, url, title, status, content_hash, document, created_at, updated_at)
VALUES (:grant_id, :source, :url, :title, :status, :content_hash, :document, :created_at, :updated_at)
ON CONFLICT (grant_id) DO UPDATE SET
	source = excluded.source,
	url = excluded.url,
	title = excluded.title,
	status = excluded.status,
	content_hash = excluded.content_hash,
	document = excluded.document,
	updated_at = excluded.updated_at`, s.table)
	if _, err := tx.NamedExecContext(ctx, query, row); err != nil {
		return grant.UpsertResult{}, fmt.Errorf("upsert grant %s: %w", row.GrantID, err)
	}
	if err := tx.Commit(); err != nil {
		return grant.UpsertResult{}, fmt.Errorf("commit upsert: %w", err)
	}
	return store.Result(previous, row.ContentHash), nil
}

// List returns the grants stored for source ordered by grant_id.
func (s *Store) List(ctx context.Context, source string) ([]grant.StoredGrant, error) {
	var rows []store.Row
	query := fmt.Sprintf(`
SELECT grant_id, source, url, title, status, content_hash, document, created_at, updated_at
FROM %s
WHERE source = ?
ORDER BY grant_id`, s.table)
	if err := s.db.SelectContext(ctx, &rows, query, source); err != nil {
		return nil, fmt.Errorf("query grants: %w", err)
	}
	out := make([]grant.StoredGrant, 0, len(rows))
	for _, r := range rows {
		rec, err := store.Decode(r)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}
