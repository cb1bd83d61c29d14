package elasticsearch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type recorded struct {
	method string
	path   string
	body   map[string]any
}

func newTestIndex(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*Index, *[]recorded) {
	t.Helper()
	var (
		mu   sync.Mutex
		reqs []recorded
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recorded{method: r.Method, path: r.URL.Path}
		if data, _ := io.ReadAll(r.Body); len(data) > 0 {
			_ = json.Unmarshal(data, &rec.body)
		}
		mu.Lock()
		reqs = append(reqs, rec)
		mu.Unlock()
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	x, err := New(Config{Addresses: []string{srv.URL}, Index: "grants", Dimensions: 3})
	require.NoError(t, err)
	return x, &reqs
}

func TestNewRequiresAddresses(t *testing.T) {
	t.Parallel()

	_, err := New(Config{})
	require.Error(t, err)
	_, err = NewWithClient(nil, Config{})
	require.Error(t, err)
}

func TestUpsertIndexesDocument(t *testing.T) {
	t.Parallel()

	x, reqs := newTestIndex(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"result":"created"}`))
	})

	err := x.Upsert(context.Background(), "eureka_call-a", []float32{0.5, 0.25, 1}, map[string]any{
		"status":    "open",
		"is_active": true,
	})
	require.NoError(t, err)
	require.Len(t, *reqs, 1)

	got := (*reqs)[0]
	require.Equal(t, http.MethodPut, got.method)
	require.Equal(t, "/grants/_doc/eureka_call-a", got.path)
	require.Equal(t, "open", got.body["status"])
	require.Equal(t, true, got.body["is_active"])
	require.Equal(t, []any{0.5, 0.25, 1.0}, got.body["vector"])
}

func TestUpsertSurfacesErrorResponses(t *testing.T) {
	t.Parallel()

	x, _ := newTestIndex(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"type":"mapper_parsing_exception"}}`))
	})

	err := x.Upsert(context.Background(), "eureka_call-a", []float32{1}, nil)
	require.ErrorContains(t, err, "index document eureka_call-a")
	require.Error(t, x.Upsert(context.Background(), "", []float32{1}, nil))
}

func TestEnsureIndexCreatesWhenMissing(t *testing.T) {
	t.Parallel()

	x, reqs := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"acknowledged":true}`))
	})

	require.NoError(t, x.EnsureIndex(context.Background()))
	require.Len(t, *reqs, 2)
	create := (*reqs)[1]
	require.Equal(t, http.MethodPut, create.method)
	require.Equal(t, "/grants", create.path)

	props := create.body["mappings"].(map[string]any)["properties"].(map[string]any)
	vector := props["vector"].(map[string]any)
	require.Equal(t, "dense_vector", vector["type"])
	require.Equal(t, 3.0, vector["dims"])
	require.Equal(t, "cosine", vector["similarity"])
}

func TestEnsureIndexSkipsExisting(t *testing.T) {
	t.Parallel()

	x, reqs := newTestIndex(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, x.EnsureIndex(context.Background()))
	require.Len(t, *reqs, 1)
}
