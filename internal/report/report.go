// Package report prints run results as terminal tables.
package report

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/JakeFAU/grant-discovery/internal/discovery"
	"github.com/JakeFAU/grant-discovery/internal/grant"
)

func newTable(w io.Writer, title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	if title != "" {
		t.SetTitle(title)
	}
	return t
}

// Sync renders the counts of a discovery run followed by the new grants and
// any failures.
func Sync(w io.Writer, s grant.SyncSummary) {
	t := newTable(w, "Discovery run "+s.RunID)
	t.AppendHeader(table.Row{"Scope", "Found", "New", "Ingested", "Failed", "Dry Run", "Duration"})
	t.AppendRow(table.Row{
		s.Scope, s.Found, s.New, s.Ingested, s.Failed, s.DryRun,
		s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond).String(),
	})
	t.Render()

	Grants(w, s.NewGrants)
	Failures(w, s.Failures)
	for _, uri := range s.Artifacts {
		_, _ = fmt.Fprintf(w, "artifact: %s\n", uri)
	}
}

// Ingest renders the outcome of a snapshot ingestion.
func Ingest(w io.Writer, subset discovery.Subset, selected int, res discovery.IngestResult) {
	t := newTable(w, "Ingestion")
	t.AppendHeader(table.Row{"Subset", "Selected", "Ingested", "Failed"})
	t.AppendRow(table.Row{string(subset), selected, res.Ingested, res.Failed})
	t.Render()
	Failures(w, res.Failures)
}

// Grants lists grant references. Nothing is printed for an empty list.
func Grants(w io.Writer, refs []grant.GrantRef) {
	if len(refs) == 0 {
		return
	}
	t := newTable(w, "New grants")
	t.AppendHeader(table.Row{"Grant ID", "Title", "Status", "Programme"})
	for _, r := range refs {
		t.AppendRow(table.Row{r.GrantID, r.Title, string(r.Status), r.Programme})
	}
	t.Render()
}

// Failures lists per-grant failures. Nothing is printed for an empty list.
func Failures(w io.Writer, failures []grant.Failure) {
	if len(failures) == 0 {
		return
	}
	t := newTable(w, "Failures")
	t.AppendHeader(table.Row{"Stage", "URL", "Error"})
	for _, f := range failures {
		t.AppendRow(table.Row{string(f.Stage), f.URL, f.Error})
	}
	t.Render()
}

// Statuses renders a per-status and primary/supplemental breakdown of records.
func Statuses(w io.Writer, records []discovery.Record) {
	counts := map[grant.Status]int{}
	supplemental := 0
	for _, rec := range records {
		counts[rec.Grant.Status]++
		if rec.Grant.IsSupplemental {
			supplemental++
		}
	}
	statuses := make([]string, 0, len(counts))
	for s := range counts {
		statuses = append(statuses, string(s))
	}
	sort.Strings(statuses)

	t := newTable(w, fmt.Sprintf("Scraped %d grants", len(records)))
	t.AppendHeader(table.Row{"Status", "Count"})
	for _, s := range statuses {
		t.AppendRow(table.Row{s, counts[grant.Status(s)]})
	}
	t.AppendSeparator()
	t.AppendRow(table.Row{"primary", len(records) - supplemental})
	t.AppendRow(table.Row{"supplemental", supplemental})
	t.Render()
}
