package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/grant-discovery/internal/export/xlsx"
)

func newExportCmd(rt *runtime) *cobra.Command {
	var (
		input     string
		output    string
		fromStore bool
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write grants from a snapshot or the store to an .xlsx workbook",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := rt.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			var rows []xlsx.Row
			if fromStore {
				stored, err := a.Store.List(cmd.Context(), rt.cfg.Source.Name)
				if err != nil {
					return fmt.Errorf("list grants: %w", err)
				}
				for _, sg := range stored {
					rows = append(rows, xlsx.FromGrant(sg.Grant))
				}
			} else {
				snapshot, err := readSnapshot(cmd.Context(), a, input)
				if err != nil {
					return err
				}
				for _, rec := range snapshot {
					rows = append(rows, xlsx.FromSnapshot(rec))
				}
			}

			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("create %s: %w", output, err)
			}
			if err := xlsx.Write(f, rows); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("close %s: %w", output, err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "exported %d grants to %s\n", len(rows), output)
			return nil
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "snapshot file (default: the configured artifact store)")
	cmd.Flags().StringVar(&output, "output", "grants.xlsx", "workbook to write")
	cmd.Flags().BoolVar(&fromStore, "from-store", false, "export stored grants instead of a snapshot")
	return cmd
}
