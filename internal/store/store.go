// Package store holds helpers shared by the grant store implementations.
// Implementations live in subpackages; this package must not import database
// drivers or concrete clients.
package store

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/JakeFAU/grant-discovery/internal/grant"
)

// DefaultTable is the table grants are stored in.
const DefaultTable = "grants"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// TableName returns table, or DefaultTable when empty, after checking it is a
// plain SQL identifier.
func TableName(table string) (string, error) {
	if table == "" {
		table = DefaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Row is the column set shared by the SQL stores.
type Row struct {
	GrantID     string    `db:"grant_id"`
	Source      string    `db:"source"`
	URL         string    `db:"url"`
	Title       string    `db:"title"`
	Status      string    `db:"status"`
	ContentHash string    `db:"content_hash"`
	Document    []byte    `db:"document"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// Encode flattens a stored grant into a Row.
func Encode(rec grant.StoredGrant) (Row, error) {
	if rec.Grant.GrantID == "" {
		return Row{}, fmt.Errorf("grant id is required")
	}
	doc, err := json.Marshal(rec.Grant)
	if err != nil {
		return Row{}, fmt.Errorf("marshal grant %s: %w", rec.Grant.GrantID, err)
	}
	return Row{
		GrantID:     rec.Grant.GrantID,
		Source:      rec.Grant.Source,
		URL:         rec.Grant.URL,
		Title:       rec.Grant.Title,
		Status:      string(rec.Grant.Status),
		ContentHash: rec.ContentHash,
		Document:    doc,
		CreatedAt:   rec.CreatedAt.UTC(),
		UpdatedAt:   rec.UpdatedAt.UTC(),
	}, nil
}

// Decode rebuilds a stored grant from a Row.
func Decode(r Row) (grant.StoredGrant, error) {
	var g grant.NormalizedGrant
	if err := json.Unmarshal(r.Document, &g); err != nil {
		return grant.StoredGrant{}, fmt.Errorf("unmarshal grant %s: %w", r.GrantID, err)
	}
	return grant.StoredGrant{
		Grant:       g,
		ContentHash: r.ContentHash,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}, nil
}

// Result derives an UpsertResult from the content hash stored before the
// write. An empty previous hash means the row did not exist.
func Result(previousHash, newHash string) grant.UpsertResult {
	if previousHash == "" {
		return grant.UpsertResult{Inserted: true, Changed: true}
	}
	return grant.UpsertResult{Changed: previousHash != newHash}
}
