package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/grant-discovery/internal/derive"
	"github.com/JakeFAU/grant-discovery/internal/grant"
	"github.com/JakeFAU/grant-discovery/internal/metrics"
)

// Subset selects which snapshot records are ingested.
type Subset string

// Snapshot subsets.
const (
	SubsetAll          Subset = "all"
	SubsetPrimary      Subset = "primary"
	SubsetSupplemental Subset = "supplemental"
)

// ParseSubset validates a subset name. Empty means all.
func ParseSubset(s string) (Subset, error) {
	switch Subset(strings.ToLower(strings.TrimSpace(s))) {
	case "", SubsetAll:
		return SubsetAll, nil
	case SubsetPrimary:
		return SubsetPrimary, nil
	case SubsetSupplemental:
		return SubsetSupplemental, nil
	default:
		return "", fmt.Errorf("unknown subset %q (want all, primary or supplemental)", s)
	}
}

// Select returns the records belonging to subset.
func (s Subset) Select(records []Record) []Record {
	if s == SubsetAll || s == "" {
		return records
	}
	var out []Record
	for _, rec := range records {
		if rec.Grant.IsSupplemental == (s == SubsetSupplemental) {
			out = append(out, rec)
		}
	}
	return out
}

// IngestResult counts the outcome of an ingestion batch.
type IngestResult struct {
	Ingested int             `json:"ingested"`
	Failed   int             `json:"failed"`
	Failures []grant.Failure `json:"failures"`
}

// Ingest pushes the selected records through embed, store, index and publish.
// Each record is isolated: a failure is recorded and the batch continues.
func (c *Controller) Ingest(ctx context.Context, records []Record, subset Subset) (IngestResult, error) {
	if c.deps.Store == nil || c.deps.Embedder == nil || c.deps.Index == nil {
		return IngestResult{}, ErrIngestUnavailable
	}
	runID, err := c.deps.IDs.NewID()
	if err != nil {
		return IngestResult{}, fmt.Errorf("run id: %w", err)
	}
	selected := subset.Select(records)
	c.logger.Info("ingesting snapshot records",
		zap.String("subset", string(subset)),
		zap.Int("selected", len(selected)),
		zap.Int("total", len(records)),
	)
	result := c.ingest(ctx, runID, selected)
	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

func (c *Controller) ingest(ctx context.Context, runID string, records []Record) IngestResult {
	result := IngestResult{Failures: []grant.Failure{}}
	for _, rec := range records {
		if ctx.Err() != nil {
			break
		}
		if err := c.ingestOne(ctx, runID, rec); err != nil {
			stage := grant.StageStore
			var ie *grant.IngestError
			if errors.As(err, &ie) {
				stage = ie.Stage
			}
			c.logger.Warn("ingest failed",
				zap.String("grant_id", rec.Grant.GrantID),
				zap.String("stage", string(stage)),
				zap.Error(err),
			)
			metrics.ObserveFailure(string(stage))
			result.Failed++
			result.Failures = append(result.Failures, grant.Failure{
				URL:     rec.Grant.URL,
				GrantID: rec.Grant.GrantID,
				Stage:   stage,
				Error:   err.Error(),
			})
			continue
		}
		result.Ingested++
		metrics.ObserveIngest(c.cfg.Source)
	}
	return result
}

func (c *Controller) ingestOne(ctx context.Context, runID string, rec Record) error {
	g := rec.Grant
	vector, err := c.deps.Embedder.Embed(ctx, EmbeddingText(rec))
	if err != nil {
		return &grant.IngestError{Stage: grant.StageEmbed, GrantID: g.GrantID, Err: err}
	}
	hash, err := ContentHash(c.deps.Hasher, g)
	if err != nil {
		return &grant.IngestError{Stage: grant.StageStore, GrantID: g.GrantID, Err: err}
	}
	now := c.deps.Clock.Now()
	res, err := c.deps.Store.Upsert(ctx, grant.StoredGrant{
		Grant:       g,
		ContentHash: hash,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return &grant.IngestError{Stage: grant.StageStore, GrantID: g.GrantID, Err: err}
	}
	if err := c.deps.Index.Upsert(ctx, g.GrantID, vector, IndexMetadata(g)); err != nil {
		return &grant.IngestError{Stage: grant.StageIndex, GrantID: g.GrantID, Err: err}
	}
	c.logger.Debug("grant ingested",
		zap.String("grant_id", g.GrantID),
		zap.Bool("inserted", res.Inserted),
		zap.Bool("changed", res.Changed),
	)
	c.publish(ctx, runID, g, now)
	return nil
}

func (c *Controller) publish(ctx context.Context, runID string, g grant.NormalizedGrant, now time.Time) {
	if c.deps.Publisher == nil {
		return
	}
	msgID, err := c.deps.Publisher.Publish(ctx, grant.DiscoveryEvent{
		Type:         grant.EventGrantDiscovered,
		RunID:        runID,
		GrantID:      g.GrantID,
		Source:       g.Source,
		Title:        g.Title,
		URL:          g.URL,
		Status:       g.Status,
		Programme:    g.Programme.Name,
		ClosesAt:     g.Dates.ClosesAt,
		DiscoveredAt: now,
	})
	if err != nil {
		c.logger.Warn("publish failed", zap.String("grant_id", g.GrantID), zap.Error(err))
		metrics.ObserveFailure(string(grant.StagePublish))
		return
	}
	c.logger.Debug("grant published", zap.String("grant_id", g.GrantID), zap.String("message_id", msgID))
}

// ContentHash digests g with its normalization timestamp blanked, so
// re-normalizing unchanged content gives the same hash.
func ContentHash(h grant.Hasher, g grant.NormalizedGrant) (string, error) {
	g.Processing.NormalizedAt = time.Time{}
	data, err := json.Marshal(g)
	if err != nil {
		return "", fmt.Errorf("marshal grant: %w", err)
	}
	sum, err := h.Hash(data)
	if err != nil {
		return "", fmt.Errorf("hash grant: %w", err)
	}
	return sum, nil
}

// IndexMetadata is the searchable metadata stored next to a grant's vector.
func IndexMetadata(g grant.NormalizedGrant) map[string]any {
	md := map[string]any{
		"source":    g.Source,
		"title":     derive.Truncate(g.Title, 500),
		"status":    string(g.Status),
		"url":       g.URL,
		"is_active": g.IsActive(),
	}
	if g.Programme.Name != "" {
		md["programme"] = derive.Truncate(g.Programme.Name, 100)
	}
	if g.Dates.OpensAt != nil {
		md["opens_at"] = g.Dates.OpensAt.Format(time.RFC3339)
	}
	if g.Dates.ClosesAt != nil {
		md["closes_at"] = g.Dates.ClosesAt.Format(time.RFC3339)
	}
	return md
}
