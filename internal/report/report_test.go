package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/grant-discovery/internal/discovery"
	"github.com/JakeFAU/grant-discovery/internal/grant"
)

func TestSyncRendersCountsAndLists(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 1, 1, 2, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	Sync(&buf, grant.SyncSummary{
		RunID:      "run-1",
		Scope:      "active",
		StartedAt:  start,
		FinishedAt: start.Add(1500 * time.Millisecond),
		Found:      3,
		New:        1,
		Ingested:   1,
		NewGrants:  []grant.GrantRef{{GrantID: "eureka_call-a", Title: "Call A", Status: grant.StatusOpen}},
		Failures:   []grant.Failure{{URL: "https://x/b", Stage: grant.StageFetch, Error: "status 404"}},
		Artifacts:  []string{"mem://discovery/latest.json"},
	})

	out := buf.String()
	assert.Contains(t, out, "Discovery run run-1")
	assert.Contains(t, out, "1.5s")
	assert.Contains(t, out, "eureka_call-a")
	assert.Contains(t, out, "status 404")
	assert.Contains(t, out, "artifact: mem://discovery/latest.json")
}

func TestEmptyListsPrintNothing(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	Grants(&buf, nil)
	Failures(&buf, nil)
	require.Empty(t, buf.String())
}

func TestIngestAndStatuses(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	Ingest(&buf, discovery.SubsetPrimary, 4, discovery.IngestResult{Ingested: 3, Failed: 1})
	assert.Contains(t, buf.String(), "primary")

	buf.Reset()
	Statuses(&buf, []discovery.Record{
		{Grant: grant.NormalizedGrant{Status: grant.StatusOpen}},
		{Grant: grant.NormalizedGrant{Status: grant.StatusOpen, IsSupplemental: true}},
		{Grant: grant.NormalizedGrant{Status: grant.StatusClosed}},
	})
	out := buf.String()
	assert.Contains(t, out, "Scraped 3 grants")
	assert.Contains(t, out, "supplemental")
}
