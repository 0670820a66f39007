package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/sydlexius/stationsync/internal/library"
	"github.com/sydlexius/stationsync/internal/review"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "queue",
		Short: "List keys waiting for review",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := ctx.ensureConfig(); err != nil {
				return err
			}
			pending, err := ctx.reviewService(nil, nil).Pending(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				return writeJSON(out, pending)
			}
			if len(pending) == 0 {
				fmt.Fprintln(out, "Review queue is empty.")
				return nil
			}
			fmt.Fprintln(out, renderQueueTable(pending))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the queue as JSON")
	cmd.AddCommand(newQueuePruneCommand(ctx))
	return cmd
}

func newQueuePruneCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Drop queue entries whose key is already resolved",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := ctx.ensureConfig(); err != nil {
				return err
			}
			if err := ctx.snapshot(cmd.Context(), "queue prune"); err != nil {
				return err
			}
			removed, err := ctx.reviewService(nil, nil).Prune(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d resolved queue entries.\n", removed)
			return nil
		},
	}
}

func renderQueueTable(pending []review.Pending) string {
	rows := make([][]string, 0, len(pending))
	for _, p := range pending {
		rec := library.RecordFromMap(p.Record)
		queued := "-"
		if !p.QueuedAt.IsZero() {
			queued = p.QueuedAt.Local().Format(time.DateTime)
		}
		rows = append(rows, []string{
			p.Key,
			rec.Artist,
			rec.Title,
			strconv.Itoa(len(p.Candidates)),
			strconv.Itoa(p.Entries),
			queued,
		})
	}
	return renderTable(
		[]string{"Key", "Artist", "Title", "Candidates", "Entries", "Queued"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	)
}
