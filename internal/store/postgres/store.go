// Package postgres provides a Postgres-backed grant store.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/grant-discovery/internal/grant"
	"github.com/JakeFAU/grant-discovery/internal/store"
)

// Config controls the Postgres connection pool used for grant rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// Store persists grants as JSONB documents keyed on grant_id.
type Store struct {
	pool  pool
	table string
}

// New connects to Postgres using cfg.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.postgres.dsn is required")
	}
	table, err := store.TableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: p, table: table}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool, table string) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := store.TableName(table)
	if err != nil {
		return nil, err
	}
	return &Store{pool: p, table: name}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Migrate creates the grants table and its source index if missing.
func (s *Store) Migrate(ctx context.Context) error {
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	grant_id     TEXT PRIMARY KEY,
	source       TEXT NOT NULL,
	url          TEXT NOT NULL,
	title        TEXT NOT NULL,
	status       TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	document     JSONB NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS %[1]s_source_idx ON %[1]s (source);`, s.table)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
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
	query := fmt.Sprintf("SELECT %s FROM %s WHERE source = $1", column, s.table)
	rows, err := s.pool.Query(ctx, query, source)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", column, err)
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan %s: %w", column, err)
		}
		out[v] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", column, err)
	}
	return out, nil
}

// Upsert writes rec in a single statement. On conflict every column except
// created_at is replaced; the previous content hash is returned so callers can
// tell inserts, changes and no-ops apart.
func (s *Store) Upsert(ctx context.Context, rec grant.StoredGrant) (grant.UpsertResult, error) {
	row, err := store.Encode(rec)
	if err != nil {
		return grant.UpsertResult{}, err
	}
	query := fmt.Sprintf(`
WITH prev AS (
	SELECT content_hash FROM %[1]s WHERE grant_id = $1
)
INSERT INTO %[1]s (
	grant_id,
	source,
	url,
	title,
	status,
	content_hash,
	document,
	created_at,
	updated_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9
)
ON CONFLICT (grant_id) DO UPDATE SET
	source = EXCLUDED.source,
	url = EXCLUDED.url,
	title = EXCLUDED.title,
	status = EXCLUDED.status,
	content_hash = EXCLUDED.content_hash,
	document = EXCLUDED.document,
	updated_at = EXCLUDED.updated_at
RETURNING COALESCE((SELECT content_hash FROM prev), '')`, s.table)

	var previous string
	err = s.pool.QueryRow(ctx, query,
		row.GrantID,
		row.Source,
		row.URL,
		row.Title,
		row.Status,
		row.ContentHash,
		row.Document,
		row.CreatedAt,
		row.UpdatedAt,
	).Scan(&previous)
	if err != nil {
		return grant.UpsertResult{}, fmt.Errorf("upsert grant %s: %w", row.GrantID, err)
	}
	return store.Result(previous, row.ContentHash), nil
}

// List returns the grants stored for source ordered by grant_id.
func (s *Store) List(ctx context.Context, source string) ([]grant.StoredGrant, error) {
	query := fmt.Sprintf(`
SELECT grant_id, content_hash, document, created_at, updated_at
FROM %s
WHERE source = $1
ORDER BY grant_id`, s.table)
	rows, err := s.pool.Query(ctx, query, source)
	if err != nil {
		return nil, fmt.Errorf("query grants: %w", err)
	}
	defer rows.Close()

	out := []grant.StoredGrant{}
	for rows.Next() {
		var r store.Row
		if err := rows.Scan(&r.GrantID, &r.ContentHash, &r.Document, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan grant: %w", err)
		}
		rec, err := store.Decode(r)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate grants: %w", err)
	}
	return out, nil
}
