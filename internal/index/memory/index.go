// Package memory keeps grant vectors in process memory.
package memory

import (
	"context"
	"fmt"
	"maps"
	"sync"
)

// Entry is one stored vector with its metadata.
type Entry struct {
	Vector   []float32
	Metadata map[string]any
}

// Index is an in-memory VectorIndex.
type Index struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// New creates an empty Index.
func New() *Index {
	return &Index{entries: make(map[string]Entry)}
}

// Upsert stores or replaces the vector for id.
func (x *Index) Upsert(_ context.Context, id string, vector []float32, metadata map[string]any) error {
	if id == "" {
		return fmt.Errorf("id is required")
	}
	if len(vector) == 0 {
		return fmt.Errorf("vector for %s is empty", id)
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	x.entries[id] = Entry{
		Vector:   append([]float32(nil), vector...),
		Metadata: maps.Clone(metadata),
	}
	return nil
}

// Get returns the entry stored for id.
func (x *Index) Get(id string) (Entry, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	e, ok := x.entries[id]
	return e, ok
}

// Len reports how many vectors are stored.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries)
}
