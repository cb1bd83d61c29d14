package grant

import (
	"context"
	"io"
	"time"
)

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Store persists normalized grants keyed on grant_id.
type Store interface {
	FindURLs(ctx context.Context, source string) (map[string]struct{}, error)
	FindIDs(ctx context.Context, source string) (map[string]struct{}, error)
	Upsert(ctx context.Context, record StoredGrant) (UpsertResult, error)
	List(ctx context.Context, source string) ([]StoredGrant, error)
}

// VectorIndex stores embeddings with searchable metadata.
type VectorIndex interface {
	Upsert(ctx context.Context, id string, vector []float32, metadata map[string]any) error
}

// Embedder turns text into an embedding vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Publisher announces discovery events.
type Publisher interface {
	Publish(ctx context.Context, event DiscoveryEvent) (string, error)
}

// BlobStore writes run artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
	GetObject(ctx context.Context, path string) (io.ReadCloser, error)
}

// Hasher computes content digests for change detection.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
