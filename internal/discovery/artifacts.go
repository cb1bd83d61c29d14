package discovery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/grant-discovery/internal/derive"
	"github.com/JakeFAU/grant-discovery/internal/grant"
	"github.com/JakeFAU/grant-discovery/internal/normalize"
)

const jsonContentType = "application/json"

// EmbeddingText renders the parts of a record worth embedding, each section
// truncated so that no single one dominates the vector.
func EmbeddingText(rec Record) string {
	g, s := rec.Grant, rec.Capture.Sections
	var parts []string
	add := func(format string, args ...any) {
		parts = append(parts, fmt.Sprintf(format, args...))
	}

	if g.Title != "" {
		add("Title: %s", g.Title)
	}
	if g.Programme.Name != "" {
		add("Programme: %s", g.Programme.Name)
	}
	if g.Programme.Funder != "" {
		add("Source: %s", g.Programme.Funder)
	}
	if g.IsSupplemental {
		add("Type: Investment Readiness (Supplemental)")
	} else {
		add("Type: R&D Grant")
	}
	if g.Status != "" {
		add("Status: %s", g.Status)
	}
	if g.Dates.OpensAt != nil {
		add("Opens: %s", g.Dates.OpensAt.Format(time.RFC3339))
	}
	if g.Dates.ClosesAt != nil {
		add("Deadline: %s", g.Dates.ClosesAt.Format(time.RFC3339))
	}

	description := derive.Truncate(s.Description, 1000)
	if description != "" {
		add("\nDescription:\n%s", description)
	}
	if about := derive.Truncate(s.About, 900); about != "" && !strings.Contains(s.Description, about) {
		add("\nAbout:\n%s", about)
	}
	if s.Eligibility != "" {
		add("\nEligibility:\n%s", derive.Truncate(s.Eligibility, 750))
	}
	if len(s.Funding) > 0 {
		add("\nFunding:")
		for i, e := range s.Funding {
			if i == 5 {
				break
			}
			add("  %s: %s", e.Key, derive.Truncate(e.Text, 400))
		}
	}
	if s.KeyDates != "" {
		add("\nKey Dates:\n%s", derive.Truncate(s.KeyDates, 450))
	}
	if s.HowToApply != "" {
		add("\nHow to Apply:\n%s", derive.Truncate(s.HowToApply, 550))
	}
	if len(s.CountryInfo) > 0 {
		add("\nCountry Information:")
		for i, e := range s.CountryInfo {
			if i == 3 {
				break
			}
			add("  %s: %s", e.Key, derive.Truncate(e.Text, 300))
		}
	}
	if len(g.Scope.Themes) > 0 {
		add("\nSectors: %s", strings.Join(g.Scope.Themes, ", "))
	}
	return strings.Join(parts, "\n")
}

// SnapshotPath is where the full snapshot of a source is written.
func (c *Controller) SnapshotPath() string {
	return c.SnapshotPathFor("all", 0)
}

// SnapshotPathFor names the snapshot of a run. Only an unlimited crawl of every
// status writes the full snapshot; narrower runs get their own file.
func (c *Controller) SnapshotPathFor(scope string, limit int) string {
	scope = strings.ToLower(strings.TrimSpace(scope))
	if scope == "" {
		scope = "active"
	}
	name := "normalized"
	if scope != "all" {
		name += "_" + scope
	}
	if limit > 0 {
		name += fmt.Sprintf("_limit%d", limit)
	}
	return path.Join(c.cfg.SnapshotPrefix, c.cfg.Source, name+".json")
}

func (c *Controller) latestPath() string {
	return path.Join(c.cfg.SummaryPrefix, "latest.json")
}

// Snapshot converts records into snapshot form.
func Snapshot(records []Record) []normalize.SnapshotRecord {
	out := make([]normalize.SnapshotRecord, 0, len(records))
	for _, rec := range records {
		out = append(out, normalize.SnapshotFromCapture(rec.Capture, rec.Grant))
	}
	return out
}

// Records rebuilds records from a snapshot, re-normalizing every capture.
func (c *Controller) Records(snapshot []normalize.SnapshotRecord) ([]Record, error) {
	out := make([]Record, 0, len(snapshot))
	for _, sr := range snapshot {
		capture, err := sr.Capture()
		if err != nil {
			return nil, fmt.Errorf("snapshot record %s: %w", sr.ID, err)
		}
		out = append(out, Record{Capture: capture, Grant: c.deps.Normalizer.Normalize(capture)})
	}
	return out, nil
}

// writeArtifacts stores the snapshot, the run summary and the latest pointer.
// Failures are logged; the grants themselves are already persisted.
func (c *Controller) writeArtifacts(ctx context.Context, opts Options, records []Record, summary grant.SyncSummary) []string {
	if c.deps.Blobs == nil {
		return nil
	}
	var uris []string

	var buf bytes.Buffer
	if err := normalize.WriteSnapshot(&buf, Snapshot(records)); err != nil {
		c.logger.Warn("encode snapshot failed", zap.Error(err))
	} else if uri, err := c.deps.Blobs.PutObject(ctx, c.SnapshotPathFor(opts.Scope, opts.Limit), jsonContentType, &buf); err != nil {
		c.logger.Warn("write snapshot failed", zap.Error(err))
	} else {
		uris = append(uris, uri)
	}

	summary.Artifacts = uris
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		c.logger.Warn("encode summary failed", zap.Error(err))
		return uris
	}
	summaryPath := path.Join(c.cfg.SummaryPrefix, fmt.Sprintf("summary_%s.json", summary.RunID))
	for _, p := range []string{summaryPath, c.latestPath()} {
		uri, err := c.deps.Blobs.PutObject(ctx, p, jsonContentType, bytes.NewReader(data))
		if err != nil {
			c.logger.Warn("write summary failed", zap.String("path", p), zap.Error(err))
			continue
		}
		uris = append(uris, uri)
	}
	return uris
}

// Latest returns the summary of the most recent run that wrote artifacts.
func (c *Controller) Latest(ctx context.Context) (grant.SyncSummary, error) {
	if c.deps.Blobs == nil {
		return grant.SyncSummary{}, grant.ErrNotFound
	}
	rc, err := c.deps.Blobs.GetObject(ctx, c.latestPath())
	if err != nil {
		if errors.Is(err, grant.ErrNotFound) {
			return grant.SyncSummary{}, grant.ErrNotFound
		}
		return grant.SyncSummary{}, fmt.Errorf("read latest summary: %w", err)
	}
	defer func() {
		_ = rc.Close()
	}()
	var summary grant.SyncSummary
	if err := json.NewDecoder(rc).Decode(&summary); err != nil {
		return grant.SyncSummary{}, fmt.Errorf("decode latest summary: %w", err)
	}
	return summary, nil
}
