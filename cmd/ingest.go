package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/grant-discovery/internal/discovery"
	"github.com/JakeFAU/grant-discovery/internal/report"
)

func newIngestCmd(rt *runtime) *cobra.Command {
	var (
		input  string
		subset string
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Normalize a snapshot and ingest the selected records",
		RunE: func(cmd *cobra.Command, _ []string) error {
			sub, err := discovery.ParseSubset(subset)
			if err != nil {
				return err
			}
			a, err := rt.open(cmd.Context(), !dryRun)
			if err != nil {
				return err
			}
			snapshot, err := readSnapshot(cmd.Context(), a, input)
			if err != nil {
				return err
			}
			records, err := a.Controller.Records(snapshot)
			if err != nil {
				return err
			}
			selected := sub.Select(records)
			out := cmd.OutOrStdout()
			if dryRun {
				report.Statuses(out, selected)
				return nil
			}
			res, err := a.Controller.Ingest(cmd.Context(), records, sub)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			report.Ingest(out, sub, len(selected), res)
			return nil
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "snapshot file (default: the configured artifact store)")
	cmd.Flags().StringVar(&subset, "subset", "all", "records to ingest: all, primary or supplemental")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show the selection without ingesting")
	return cmd
}
