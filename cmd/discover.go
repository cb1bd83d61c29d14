package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/grant-discovery/internal/discovery"
	"github.com/JakeFAU/grant-discovery/internal/report"
)

func newDiscoverCmd(rt *runtime) *cobra.Command {
	var opts discovery.Options
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Find opportunities not yet in the store and optionally ingest them",
		Long: `Crawls the listing for the selected status scope, compares the result with
the stored grants and reports the new ones. With --ingest the new grants are
embedded, stored, indexed and announced.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := rt.open(cmd.Context(), opts.AutoIngest && !opts.DryRun)
			if err != nil {
				return err
			}
			summary, err := a.Controller.Sync(cmd.Context(), opts)
			if err != nil {
				return fmt.Errorf("discover: %w", err)
			}
			report.Sync(cmd.OutOrStdout(), summary)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.Scope, "status", "active", "status scope: open, closed, upcoming, active or all")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "report new grants without ingesting or writing artifacts")
	cmd.Flags().BoolVar(&opts.AutoIngest, "ingest", false, "ingest newly discovered grants")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "process at most N candidates (0 = no limit)")
	return cmd
}
