package discovery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/grant-discovery/internal/grant"
	"github.com/JakeFAU/grant-discovery/internal/hash/sha256"
	"github.com/JakeFAU/grant-discovery/internal/normalize"
)

const base = "https://www.eurekanetwork.org/programmes-and-calls"

var testNow = time.Date(2025, time.February, 1, 9, 0, 0, 0, time.UTC)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type seqIDs struct{ n int }

func (s *seqIDs) NewID() (string, error) {
	s.n++
	return fmt.Sprintf("run-%d", s.n), nil
}

type fakeCrawler struct {
	candidates []grant.CandidateURL
	err        error
	filters    []grant.StatusFilter
}

func (f *fakeCrawler) DiscoverAll(_ context.Context, filters []grant.StatusFilter) ([]grant.CandidateURL, error) {
	f.filters = filters
	return f.candidates, f.err
}

type fakeFetcher struct {
	pages map[string]grant.FetchResponse
	fail  map[string]error
}

func (f *fakeFetcher) Fetch(_ context.Context, req grant.FetchRequest) (grant.FetchResponse, error) {
	if err, ok := f.fail[req.URL]; ok {
		return grant.FetchResponse{}, &grant.FetchError{URL: req.URL, Err: err}
	}
	resp, ok := f.pages[req.URL]
	if !ok {
		return grant.FetchResponse{URL: req.URL, StatusCode: 404}, nil
	}
	return resp, nil
}

type fakeStore struct {
	mu      sync.Mutex
	urls    map[string]struct{}
	findErr error
	failIDs map[string]bool
	upserts []grant.StoredGrant
}

func (s *fakeStore) FindURLs(context.Context, string) (map[string]struct{}, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	out := make(map[string]struct{}, len(s.urls))
	for u := range s.urls {
		out[u] = struct{}{}
	}
	return out, nil
}

func (s *fakeStore) FindIDs(context.Context, string) (map[string]struct{}, error) {
	return map[string]struct{}{}, nil
}

func (s *fakeStore) Upsert(_ context.Context, rec grant.StoredGrant) (grant.UpsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failIDs[rec.Grant.GrantID] {
		return grant.UpsertResult{}, errors.New("disk full")
	}
	s.upserts = append(s.upserts, rec)
	return grant.UpsertResult{Inserted: true, Changed: true}, nil
}

func (s *fakeStore) List(context.Context, string) ([]grant.StoredGrant, error) {
	return s.upserts, nil
}

type fakeEmbedder struct {
	texts []string
	fail  string
}

func (e *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if e.fail != "" && strings.Contains(text, e.fail) {
		return nil, errors.New("rate limited")
	}
	e.texts = append(e.texts, text)
	return []float32{0.1, 0.2, 0.3}, nil
}

type fakeIndex struct {
	ids      []string
	metadata []map[string]any
	failID   string
}

func (x *fakeIndex) Upsert(_ context.Context, id string, _ []float32, md map[string]any) error {
	if id == x.failID {
		return errors.New("index unavailable")
	}
	x.ids = append(x.ids, id)
	x.metadata = append(x.metadata, md)
	return nil
}

type fakePublisher struct {
	events []grant.DiscoveryEvent
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, ev grant.DiscoveryEvent) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	p.events = append(p.events, ev)
	return "msg", nil
}

type fakeBlobs struct {
	objects map[string][]byte
}

func (b *fakeBlobs) PutObject(_ context.Context, path, _ string, data io.Reader) (string, error) {
	raw, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	if b.objects == nil {
		b.objects = map[string][]byte{}
	}
	b.objects[path] = raw
	return "mem://" + path, nil
}

func (b *fakeBlobs) GetObject(_ context.Context, path string) (io.ReadCloser, error) {
	raw, ok := b.objects[path]
	if !ok {
		return nil, grant.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func detailPage(title, about string) grant.FetchResponse {
	html := fmt.Sprintf(`<html><body><main>
<h1>%s</h1>
<h2>About the call</h2><p>%s</p>
<h2>Eligibility</h2><p>Open to SMEs and universities in Sweden.</p>
<h2>Key dates</h2><p>Submission deadline: 15 March 2025</p>
</main></body></html>`, title, about)
	return grant.FetchResponse{StatusCode: 200, Body: []byte(html)}
}

type harness struct {
	crawler   *fakeCrawler
	fetcher   *fakeFetcher
	store     *fakeStore
	embedder  *fakeEmbedder
	index     *fakeIndex
	publisher *fakePublisher
	blobs     *fakeBlobs
	ctrl      *Controller
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		crawler: &fakeCrawler{candidates: []grant.CandidateURL{
			{URL: base + "/eurostars/call-a", StatusFilter: grant.FilterOpen},
			{URL: base + "/eurostars/call-b", StatusFilter: grant.FilterOpen},
			{URL: base + "/investment-readiness/investor-c", StatusFilter: grant.FilterUpcoming},
		}},
		fetcher: &fakeFetcher{pages: map[string]grant.FetchResponse{
			base + "/eurostars/call-a":                detailPage("Call A", "Call A supports AI projects in health care."),
			base + "/eurostars/call-b":                detailPage("Call B", "Call B supports clean energy research projects."),
			base + "/investment-readiness/investor-c": detailPage("Investor C", "Investor readiness coaching for SMEs."),
		}},
		store:     &fakeStore{urls: map[string]struct{}{base + "/eurostars/call-a": {}}},
		embedder:  &fakeEmbedder{},
		index:     &fakeIndex{},
		publisher: &fakePublisher{},
		blobs:     &fakeBlobs{},
	}
	clock := fixedClock{now: testNow}
	ctrl, err := New(Config{Source: "eureka"}, Deps{
		Crawler:    h.crawler,
		Fetcher:    h.fetcher,
		Normalizer: normalize.New(normalize.Config{Source: "eureka", SourceTag: "eureka_network"}, clock, nil),
		Store:      h.store,
		Embedder:   h.embedder,
		Index:      h.index,
		Publisher:  h.publisher,
		Blobs:      h.blobs,
		Hasher:     sha256.New(),
		Clock:      clock,
		IDs:        &seqIDs{},
	}, nil)
	require.NoError(t, err)
	h.ctrl = ctrl
	return h
}

func TestNewRequiresCoreDeps(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, Deps{}, nil)
	require.Error(t, err)
	_, err = New(Config{Source: "eureka"}, Deps{}, nil)
	require.Error(t, err)
}

func TestSyncIngestsOnlyNewGrants(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	summary, err := h.ctrl.Sync(context.Background(), Options{AutoIngest: true})
	require.NoError(t, err)

	require.Equal(t, []grant.StatusFilter{grant.FilterOpen, grant.FilterUpcoming}, h.crawler.filters)
	assert.Equal(t, "run-1", summary.RunID)
	assert.Equal(t, "active", summary.Scope)
	assert.Equal(t, 3, summary.Found)
	assert.Equal(t, 2, summary.New)
	assert.Equal(t, 2, summary.Ingested)
	assert.Equal(t, 0, summary.Failed)
	require.Len(t, summary.NewGrants, 2)
	assert.Equal(t, "eureka_call-b", summary.NewGrants[0].GrantID)
	assert.Equal(t, "Eurostars", summary.NewGrants[0].Programme)
	assert.Equal(t, "eureka_investor-c", summary.NewGrants[1].GrantID)

	require.Equal(t, []string{"eureka_call-b", "eureka_investor-c"}, h.index.ids)
	require.Len(t, h.store.upserts, 2)
	require.NotEmpty(t, h.store.upserts[0].ContentHash)
	require.Equal(t, testNow, h.store.upserts[0].CreatedAt)
	require.Len(t, h.publisher.events, 2)
	require.Equal(t, grant.EventGrantDiscovered, h.publisher.events[0].Type)
	require.Equal(t, "run-1", h.publisher.events[0].RunID)

	require.Contains(t, h.blobs.objects, "snapshots/eureka/normalized_active.json")
	require.Contains(t, h.blobs.objects, "discovery/summary_run-1.json")
	require.Contains(t, h.blobs.objects, "discovery/latest.json")
	require.Len(t, summary.Artifacts, 3)

	snapshot, err := normalize.ReadSnapshot(bytes.NewReader(h.blobs.objects["snapshots/eureka/normalized_active.json"]))
	require.NoError(t, err)
	require.Len(t, snapshot, 3)

	latest, err := h.ctrl.Latest(context.Background())
	require.NoError(t, err)
	require.Equal(t, "run-1", latest.RunID)
	require.Equal(t, 2, latest.New)
}

func TestSyncNarrowRunsKeepFullSnapshot(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	full := []byte(`[{"id":"eureka_call-z"}]`)
	h.blobs.objects = map[string][]byte{"snapshots/eureka/normalized.json": full}

	_, err := h.ctrl.Sync(context.Background(), Options{Scope: "all", Limit: 1})
	require.NoError(t, err)
	_, err = h.ctrl.Sync(context.Background(), Options{Scope: "open"})
	require.NoError(t, err)

	require.Equal(t, full, h.blobs.objects["snapshots/eureka/normalized.json"])
	require.Contains(t, h.blobs.objects, "snapshots/eureka/normalized_limit1.json")
	require.Contains(t, h.blobs.objects, "snapshots/eureka/normalized_open.json")

	limited, err := normalize.ReadSnapshot(bytes.NewReader(h.blobs.objects["snapshots/eureka/normalized_limit1.json"]))
	require.NoError(t, err)
	require.Len(t, limited, 1)

	_, err = h.ctrl.Sync(context.Background(), Options{Scope: "ALL"})
	require.NoError(t, err)
	snapshot, err := normalize.ReadSnapshot(bytes.NewReader(h.blobs.objects["snapshots/eureka/normalized.json"]))
	require.NoError(t, err)
	require.Len(t, snapshot, 3)
}

func TestSnapshotPathFor(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	require.Equal(t, "snapshots/eureka/normalized.json", h.ctrl.SnapshotPath())
	require.Equal(t, "snapshots/eureka/normalized_active.json", h.ctrl.SnapshotPathFor("", 0))
	require.Equal(t, "snapshots/eureka/normalized_upcoming_limit5.json", h.ctrl.SnapshotPathFor("upcoming", 5))
}

func TestSyncDryRunWritesNothing(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	summary, err := h.ctrl.Sync(context.Background(), Options{AutoIngest: true, DryRun: true, Scope: "all"})
	require.NoError(t, err)
	require.Equal(t, 2, summary.New)
	require.Equal(t, 0, summary.Ingested)
	require.Empty(t, h.store.upserts)
	require.Empty(t, h.blobs.objects)
	require.Empty(t, summary.Artifacts)

	_, err = h.ctrl.Latest(context.Background())
	require.ErrorIs(t, err, grant.ErrNotFound)
}

func TestSyncIsolatesFetchFailures(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.fetcher.fail = map[string]error{base + "/eurostars/call-b": errors.New("connection reset")}
	delete(h.fetcher.pages, base+"/investment-readiness/investor-c")

	summary, err := h.ctrl.Sync(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Found)
	assert.Equal(t, 0, summary.New)
	assert.Equal(t, 2, summary.Failed)
	for _, f := range summary.Failures {
		assert.Equal(t, grant.StageFetch, f.Stage)
	}
	assert.Contains(t, summary.Failures[1].Error, "status 404")
}

func TestSyncStoreFailureIsFatal(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.store.findErr = errors.New("connection refused")
	_, err := h.ctrl.Sync(context.Background(), Options{})
	require.ErrorContains(t, err, "load stored urls")
	require.Nil(t, h.crawler.filters)
}

func TestSyncAppliesLimit(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	summary, err := h.ctrl.Sync(context.Background(), Options{Limit: 2})
	require.NoError(t, err)
	require.Equal(t, 3, summary.Found)
	require.Equal(t, 1, summary.New)
}

func TestSyncRejectsBadScope(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	_, err := h.ctrl.Sync(context.Background(), Options{Scope: "everything"})
	require.Error(t, err)
}

func TestSyncIngestFailuresContinue(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.store.urls = map[string]struct{}{}
	h.embedder.fail = "Call A"
	h.index.failID = "eureka_investor-c"
	h.publisher.err = errors.New("topic deleted")

	summary, err := h.ctrl.Sync(context.Background(), Options{AutoIngest: true})
	require.NoError(t, err)
	require.Equal(t, 3, summary.New)
	require.Equal(t, 1, summary.Ingested)
	require.Equal(t, 2, summary.Failed)
	require.Equal(t, grant.StageEmbed, summary.Failures[0].Stage)
	require.Equal(t, "eureka_call-a", summary.Failures[0].GrantID)
	require.Equal(t, grant.StageIndex, summary.Failures[1].Stage)
	require.Empty(t, h.publisher.events)
}

func TestSyncRequiresIngestDeps(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.ctrl.deps.Embedder = nil
	_, err := h.ctrl.Sync(context.Background(), Options{AutoIngest: true})
	require.ErrorIs(t, err, ErrIngestUnavailable)

	_, err = h.ctrl.Sync(context.Background(), Options{AutoIngest: true, DryRun: true})
	require.NoError(t, err)
}

func TestIngestSubsets(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	records, failures, _, err := h.ctrl.Scrape(context.Background(), "all", 0)
	require.NoError(t, err)
	require.Empty(t, failures)
	require.Len(t, records, 3)

	result, err := h.ctrl.Ingest(context.Background(), records, SubsetSupplemental)
	require.NoError(t, err)
	require.Equal(t, 1, result.Ingested)
	require.Equal(t, []string{"eureka_investor-c"}, h.index.ids)

	result, err = h.ctrl.Ingest(context.Background(), records, SubsetPrimary)
	require.NoError(t, err)
	require.Equal(t, 2, result.Ingested)
}

func TestParseSubset(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]Subset{"": SubsetAll, "ALL": SubsetAll, "primary": SubsetPrimary, "supplemental": SubsetSupplemental} {
		got, err := ParseSubset(in)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	_, err := ParseSubset("both")
	require.Error(t, err)
}

func TestSnapshotRecordsRoundTrip(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	records, _, _, err := h.ctrl.Scrape(context.Background(), "active", 0)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, normalize.WriteSnapshot(&buf, Snapshot(records)))
	snapshot, err := normalize.ReadSnapshot(&buf)
	require.NoError(t, err)

	back, err := h.ctrl.Records(snapshot)
	require.NoError(t, err)
	require.Len(t, back, len(records))
	for i := range records {
		require.Equal(t, records[i].Grant, back[i].Grant)
	}
}

func TestEmbeddingText(t *testing.T) {
	t.Parallel()

	var funding grant.TextMap
	for i := 0; i < 7; i++ {
		funding.Set(fmt.Sprintf("country-%d", i), strings.Repeat("f", 500))
	}
	rec := Record{
		Capture: grant.RawCapture{Sections: grant.PageSections{
			Description: "Shared description text.",
			About:       "Shared description text.",
			Eligibility: strings.Repeat("e", 800),
			Funding:     funding,
		}},
		Grant: grant.NormalizedGrant{
			Title:          "Call X",
			Status:         grant.StatusOpen,
			Programme:      grant.Programme{Name: "Eurostars", Funder: "Eureka Network"},
			IsSupplemental: true,
			Scope:          grant.Scope{Themes: []string{"Health", "Energy"}},
		},
	}
	text := EmbeddingText(rec)

	require.True(t, strings.HasPrefix(text, "Title: Call X\nProgramme: Eurostars\nSource: Eureka Network\nType: Investment Readiness (Supplemental)\nStatus: open"))
	require.NotContains(t, text, "About:")
	require.Contains(t, text, "\nEligibility:\n"+strings.Repeat("e", 750)+"\n")
	require.Equal(t, 5, strings.Count(text, "  country-"))
	require.Contains(t, text, "  country-0: "+strings.Repeat("f", 400)+"\n")
	require.True(t, strings.HasSuffix(text, "Sectors: Health, Energy"))
}

func TestIndexMetadata(t *testing.T) {
	t.Parallel()

	closes := time.Date(2025, time.March, 15, 0, 0, 0, 0, time.UTC)
	md := IndexMetadata(grant.NormalizedGrant{
		Source: "eureka",
		Title:  strings.Repeat("t", 600),
		Status: grant.StatusForthcoming,
		URL:    base + "/x",
		Dates:  grant.Dates{ClosesAt: &closes},
	})
	require.Len(t, md["title"], 500)
	require.Equal(t, true, md["is_active"])
	require.Equal(t, "2025-03-15T00:00:00Z", md["closes_at"])
	require.NotContains(t, md, "programme")
	require.NotContains(t, md, "opens_at")
}

func TestContentHashIgnoresNormalizedAt(t *testing.T) {
	t.Parallel()

	g := grant.NormalizedGrant{GrantID: "eureka_x", Title: "X"}
	g.Processing.NormalizedAt = testNow
	first, err := ContentHash(sha256.New(), g)
	require.NoError(t, err)

	g.Processing.NormalizedAt = testNow.Add(time.Hour)
	second, err := ContentHash(sha256.New(), g)
	require.NoError(t, err)
	require.Equal(t, first, second)

	g.Title = "Y"
	third, err := ContentHash(sha256.New(), g)
	require.NoError(t, err)
	require.NotEqual(t, first, third)
}
