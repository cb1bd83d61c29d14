// Package elasticsearch stores grant embeddings as dense_vector documents.
package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	es "github.com/elastic/go-elasticsearch/v8"
)

// Config selects the cluster and index.
type Config struct {
	Addresses  []string
	Username   string
	Password   string
	APIKey     string
	Index      string
	Dimensions int
	// Similarity is the dense_vector similarity, cosine by default.
	Similarity string
}

// Index upserts vectors into one Elasticsearch index.
type Index struct {
	client *es.Client
	cfg    Config
}

// New builds a client from cfg.
func New(cfg Config) (*Index, error) {
	if len(cfg.Addresses) == 0 {
		return nil, fmt.Errorf("index.elasticsearch.addresses is required")
	}
	client, err := es.NewClient(es.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		APIKey:    cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}
	return NewWithClient(client, cfg)
}

// NewWithClient wraps an existing client.
func NewWithClient(client *es.Client, cfg Config) (*Index, error) {
	if client == nil {
		return nil, fmt.Errorf("elasticsearch client is required")
	}
	if cfg.Index == "" {
		cfg.Index = "grants"
	}
	if cfg.Similarity == "" {
		cfg.Similarity = "cosine"
	}
	return &Index{client: client, cfg: cfg}, nil
}

// Mapping returns the index mapping: a dense_vector field plus keyword and
// date metadata.
func (x *Index) Mapping() map[string]any {
	vector := map[string]any{
		"type":       "dense_vector",
		"index":      true,
		"similarity": x.cfg.Similarity,
	}
	if x.cfg.Dimensions > 0 {
		vector["dims"] = x.cfg.Dimensions
	}
	return map[string]any{
		"mappings": map[string]any{
			"properties": map[string]any{
				"vector":    vector,
				"source":    map[string]any{"type": "keyword"},
				"status":    map[string]any{"type": "keyword"},
				"programme": map[string]any{"type": "keyword"},
				"title":     map[string]any{"type": "text"},
				"url":       map[string]any{"type": "keyword"},
				"opens_at":  map[string]any{"type": "date"},
				"closes_at": map[string]any{"type": "date"},
				"is_active": map[string]any{"type": "boolean"},
			},
		},
	}
}

// EnsureIndex creates the index with Mapping when it does not exist.
func (x *Index) EnsureIndex(ctx context.Context) error {
	res, err := x.client.Indices.Exists([]string{x.cfg.Index}, x.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check index %s: %w", x.cfg.Index, err)
	}
	_ = res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("check index %s: %s", x.cfg.Index, res.String())
	}

	body, err := json.Marshal(x.Mapping())
	if err != nil {
		return fmt.Errorf("marshal mapping: %w", err)
	}
	res, err = x.client.Indices.Create(
		x.cfg.Index,
		x.client.Indices.Create.WithContext(ctx),
		x.client.Indices.Create.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return fmt.Errorf("create index %s: %w", x.cfg.Index, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("create index %s: %s", x.cfg.Index, res.String())
	}
	return nil
}

// Upsert indexes the vector and metadata under id, replacing any existing document.
func (x *Index) Upsert(ctx context.Context, id string, vector []float32, metadata map[string]any) error {
	if id == "" {
		return fmt.Errorf("id is required")
	}
	doc := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		doc[k] = v
	}
	doc["vector"] = vector

	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document %s: %w", id, err)
	}
	res, err := x.client.Index(
		x.cfg.Index,
		bytes.NewReader(body),
		x.client.Index.WithContext(ctx),
		x.client.Index.WithDocumentID(id),
	)
	if err != nil {
		return fmt.Errorf("index document %s: %w", id, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("index document %s: %s", id, res.String())
	}
	return nil
}
