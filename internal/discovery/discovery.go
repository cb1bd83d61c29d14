// Package discovery keeps the grant store in sync with the opportunities
// currently listed on the source site.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/grant-discovery/internal/extract"
	"github.com/JakeFAU/grant-discovery/internal/grant"
	"github.com/JakeFAU/grant-discovery/internal/metrics"
	"github.com/JakeFAU/grant-discovery/internal/normalize"
)

// ErrIngestUnavailable is returned when ingestion is requested without an
// embedder, index or store.
var ErrIngestUnavailable = errors.New("ingest requires an embedder, a vector index and a store")

// Discoverer enumerates candidate URLs for a set of listing filters.
type Discoverer interface {
	DiscoverAll(ctx context.Context, filters []grant.StatusFilter) ([]grant.CandidateURL, error)
}

// Options select what one Sync run does.
type Options struct {
	Scope      string `json:"scope"`
	AutoIngest bool   `json:"auto_ingest"`
	DryRun     bool   `json:"dry_run"`
	Limit      int    `json:"limit"`
}

// Record pairs a capture with the grant normalized from it.
type Record struct {
	Capture grant.RawCapture
	Grant   grant.NormalizedGrant
}

// Config names the source and where run artifacts are written.
type Config struct {
	Source         string
	SnapshotPrefix string
	SummaryPrefix  string
}

// Deps are the collaborators a Controller drives. Embedder, Index, Publisher
// and Blobs may be nil when the corresponding step is not used.
type Deps struct {
	Crawler    Discoverer
	Fetcher    grant.Fetcher
	Normalizer *normalize.Normalizer
	Store      grant.Store
	Embedder   grant.Embedder
	Index      grant.VectorIndex
	Publisher  grant.Publisher
	Blobs      grant.BlobStore
	Hasher     grant.Hasher
	Clock      grant.Clock
	IDs        grant.IDGenerator
}

// Controller runs discovery and ingestion.
type Controller struct {
	cfg    Config
	deps   Deps
	logger *zap.Logger
}

// New constructs a Controller.
func New(cfg Config, deps Deps, logger *zap.Logger) (*Controller, error) {
	if cfg.Source == "" {
		return nil, fmt.Errorf("discovery: source is required")
	}
	if deps.Crawler == nil || deps.Fetcher == nil || deps.Normalizer == nil {
		return nil, fmt.Errorf("discovery: crawler, fetcher and normalizer are required")
	}
	if deps.Clock == nil || deps.IDs == nil || deps.Hasher == nil {
		return nil, fmt.Errorf("discovery: clock, id generator and hasher are required")
	}
	if cfg.SnapshotPrefix == "" {
		cfg.SnapshotPrefix = "snapshots"
	}
	if cfg.SummaryPrefix == "" {
		cfg.SummaryPrefix = "discovery"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{cfg: cfg, deps: deps, logger: logger}, nil
}

// Scrape crawls scope, then fetches, extracts and normalizes every candidate in
// order. Per-URL failures are returned alongside the records that succeeded;
// the error is reserved for an invalid scope or cancellation.
func (c *Controller) Scrape(ctx context.Context, scope string, limit int) ([]Record, []grant.Failure, int, error) {
	filters, err := grant.ParseScope(scope)
	if err != nil {
		return nil, nil, 0, err
	}
	candidates, err := c.deps.Crawler.DiscoverAll(ctx, filters)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("discover candidates: %w", err)
	}
	found := len(candidates)
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	c.logger.Info("candidates discovered",
		zap.String("scope", scope),
		zap.Int("found", found),
		zap.Int("processing", len(candidates)),
	)

	var (
		records  []Record
		failures []grant.Failure
	)
	for _, cand := range candidates {
		if err := ctx.Err(); err != nil {
			return records, failures, found, err
		}
		rec, stage, err := c.process(ctx, cand)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return records, failures, found, ctxErr
			}
			c.logger.Warn("candidate failed",
				zap.String("url", cand.URL),
				zap.String("stage", string(stage)),
				zap.Error(err),
			)
			metrics.ObserveFailure(string(stage))
			failures = append(failures, grant.Failure{URL: cand.URL, Stage: stage, Error: err.Error()})
			continue
		}
		records = append(records, rec)
	}
	return records, failures, found, nil
}

func (c *Controller) process(ctx context.Context, cand grant.CandidateURL) (Record, grant.Stage, error) {
	resp, err := c.deps.Fetcher.Fetch(ctx, grant.FetchRequest{URL: cand.URL})
	if err != nil {
		return Record{}, grant.StageFetch, err
	}
	metrics.ObserveFetch(cand.URL, resp.StatusCode, len(resp.Body))
	if resp.StatusCode >= 400 {
		return Record{}, grant.StageFetch, &grant.FetchError{
			URL:        cand.URL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status"),
		}
	}
	capture, err := extract.Capture(cand.URL, string(cand.StatusFilter), resp.Body, c.deps.Clock.Now())
	if err != nil {
		return Record{}, grant.StageExtract, err
	}
	return Record{Capture: capture, Grant: c.deps.Normalizer.Normalize(capture)}, "", nil
}

// Sync runs one discovery pass: load the stored URLs, crawl, diff, optionally
// ingest the new grants and write the run artifacts.
func (c *Controller) Sync(ctx context.Context, opts Options) (grant.SyncSummary, error) {
	start := c.deps.Clock.Now()
	if opts.Scope == "" {
		opts.Scope = "active"
	}
	ingest := opts.AutoIngest && !opts.DryRun
	if c.deps.Store == nil || (ingest && (c.deps.Embedder == nil || c.deps.Index == nil)) {
		return grant.SyncSummary{}, ErrIngestUnavailable
	}
	runID, err := c.deps.IDs.NewID()
	if err != nil {
		return grant.SyncSummary{}, fmt.Errorf("run id: %w", err)
	}
	summary := grant.SyncSummary{
		RunID:      runID,
		Source:     c.cfg.Source,
		StartedAt:  start,
		Scope:      opts.Scope,
		DryRun:     opts.DryRun,
		AutoIngest: opts.AutoIngest,
		NewGrants:  []grant.GrantRef{},
		Failures:   []grant.Failure{},
	}
	logger := c.logger.With(zap.String("run_id", runID), zap.String("source", c.cfg.Source))

	existing, err := c.deps.Store.FindURLs(ctx, c.cfg.Source)
	if err != nil {
		c.finish(start, "error")
		return summary, fmt.Errorf("load stored urls: %w", err)
	}
	if len(existing) == 0 {
		logger.Warn("store has no grants for source, every candidate counts as new")
	}

	records, failures, found, err := c.Scrape(ctx, opts.Scope, opts.Limit)
	summary.Found = found
	summary.Failures = append(summary.Failures, failures...)
	if err != nil {
		c.finish(start, "error")
		return summary, err
	}

	fresh := NewRecords(records, existing)
	summary.New = len(fresh)
	for _, rec := range fresh {
		summary.NewGrants = append(summary.NewGrants, Ref(rec.Grant))
	}
	metrics.ObserveNew(c.cfg.Source, len(fresh))
	logger.Info("diffed against store", zap.Int("found", found), zap.Int("new", len(fresh)))

	if ingest {
		result := c.ingest(ctx, runID, fresh)
		summary.Ingested = result.Ingested
		summary.Failures = append(summary.Failures, result.Failures...)
	}
	summary.Failed = len(summary.Failures)
	summary.FinishedAt = c.deps.Clock.Now()

	if !opts.DryRun {
		summary.Artifacts = c.writeArtifacts(ctx, opts, records, summary)
	}

	outcome := "success"
	if summary.Failed > 0 {
		outcome = "partial"
	}
	c.finish(start, outcome)
	logger.Info("sync finished",
		zap.Int("found", summary.Found),
		zap.Int("new", summary.New),
		zap.Int("ingested", summary.Ingested),
		zap.Int("failed", summary.Failed),
	)
	return summary, nil
}

func (c *Controller) finish(start time.Time, outcome string) {
	metrics.ObserveRun(c.cfg.Source, outcome, c.deps.Clock.Now().Sub(start))
}

// NewRecords returns the records whose URL is not in existing, in order.
func NewRecords(records []Record, existing map[string]struct{}) []Record {
	var out []Record
	for _, rec := range records {
		if _, ok := existing[rec.Capture.URL]; ok {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// Ref returns the short form of g used in summaries.
func Ref(g grant.NormalizedGrant) grant.GrantRef {
	return grant.GrantRef{
		GrantID:   g.GrantID,
		Title:     g.Title,
		URL:       g.URL,
		Status:    g.Status,
		Programme: g.Programme.Name,
	}
}
