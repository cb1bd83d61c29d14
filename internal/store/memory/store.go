// Package memory provides an in-process grant store for development and dry runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/JakeFAU/grant-discovery/internal/grant"
)

// Store keeps grants in a map keyed on grant_id.
type Store struct {
	mu     sync.RWMutex
	grants map[string]grant.StoredGrant
}

// New creates an empty Store.
func New() *Store {
	return &Store{grants: make(map[string]grant.StoredGrant)}
}

// FindURLs returns the URLs of every stored grant for source.
func (s *Store) FindURLs(_ context.Context, source string) (map[string]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]struct{})
	for _, rec := range s.grants {
		if rec.Grant.Source == source {
			out[rec.Grant.URL] = struct{}{}
		}
	}
	return out, nil
}

// FindIDs returns the grant IDs stored for source.
func (s *Store) FindIDs(_ context.Context, source string) (map[string]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]struct{})
	for id, rec := range s.grants {
		if rec.Grant.Source == source {
			out[id] = struct{}{}
		}
	}
	return out, nil
}

// Upsert inserts or replaces a grant. CreatedAt survives updates.
func (s *Store) Upsert(_ context.Context, rec grant.StoredGrant) (grant.UpsertResult, error) {
	id := rec.Grant.GrantID
	if id == "" {
		return grant.UpsertResult{}, fmt.Errorf("grant id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.grants[id]
	if !ok {
		s.grants[id] = rec
		return grant.UpsertResult{Inserted: true, Changed: true}, nil
	}
	rec.CreatedAt = prev.CreatedAt
	s.grants[id] = rec
	return grant.UpsertResult{Changed: prev.ContentHash != rec.ContentHash}, nil
}

// List returns the grants stored for source ordered by grant_id.
func (s *Store) List(_ context.Context, source string) ([]grant.StoredGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []grant.StoredGrant{}
	for _, rec := range s.grants {
		if rec.Grant.Source == source {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Grant.GrantID < out[j].Grant.GrantID })
	return out, nil
}
