package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/grant-discovery/internal/discovery"
	"github.com/JakeFAU/grant-discovery/internal/report"
)

func newScrapeCmd(rt *runtime) *cobra.Command {
	var (
		scope  string
		limit  int
		output string
	)
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Crawl and extract every listed opportunity into a snapshot file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := rt.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			records, failures, found, err := a.Controller.Scrape(cmd.Context(), scope, limit)
			if err != nil {
				return fmt.Errorf("scrape: %w", err)
			}
			where, err := writeSnapshot(cmd.Context(), a, output, a.Controller.SnapshotPathFor(scope, limit), discovery.Snapshot(records))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			report.Statuses(out, records)
			report.Failures(out, failures)
			_, _ = fmt.Fprintf(out, "found %d candidates, wrote %d records to %s\n", found, len(records), where)
			return nil
		},
	}
	cmd.Flags().StringVar(&scope, "status", "all", "status scope: open, closed, upcoming, active or all")
	cmd.Flags().IntVar(&limit, "limit", 0, "process at most N candidates (0 = no limit)")
	cmd.Flags().StringVar(&output, "output", "", "snapshot file (default: the configured artifact store)")
	return cmd
}
