package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRekeyCommand(ctx *commandContext) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "rekey",
		Short: "Re-derive review queue keys from their stored rows",
		Long: "Recompute the identity key of every queued entry from the library row it\n" +
			"was queued with, so entries written under older key rules line up with the cache.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := ctx.ensureConfig(); err != nil {
				return err
			}
			if !dryRun {
				if err := ctx.snapshot(cmd.Context(), "rekey"); err != nil {
					return err
				}
			}
			changes, err := ctx.reviewService(nil, nil).Rekey(cmd.Context(), dryRun)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(changes) == 0 {
				fmt.Fprintln(out, "All queue keys are current.")
				return nil
			}
			rows := make([][]string, 0, len(changes))
			for _, c := range changes {
				rows = append(rows, []string{c.ID, c.Old, c.New})
			}
			fmt.Fprintln(out, renderTable([]string{"Entry", "Old key", "New key"}, rows, nil))
			if dryRun {
				fmt.Fprintf(out, "%d keys would change (dry run).\n", len(changes))
			} else {
				fmt.Fprintf(out, "%d keys changed.\n", len(changes))
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "Report changes without writing the queue")
	return cmd
}
