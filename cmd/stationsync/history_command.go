package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/sydlexius/stationsync/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect and maintain the run and decision audit log",
	}
	cmd.AddCommand(newHistoryRunsCommand(ctx))
	cmd.AddCommand(newHistoryDecisionsCommand(ctx))
	cmd.AddCommand(newHistoryPruneCommand(ctx))
	cmd.AddCommand(newHistoryOptimizeCommand(ctx))
	return cmd
}

func requireHistory(ctx *commandContext) (*history.Service, error) {
	if _, err := ctx.ensureConfig(); err != nil {
		return nil, err
	}
	hist, err := ctx.history()
	if err != nil {
		return nil, err
	}
	if hist == nil {
		return nil, errHistoryDisabled
	}
	return hist, nil
}

func newHistoryRunsCommand(ctx *commandContext) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent reconciliation runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			hist, err := requireHistory(ctx)
			if err != nil {
				return err
			}
			runs, err := hist.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, runs)
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded.")
				return nil
			}
			rows := make([][]string, 0, len(runs))
			for _, r := range runs {
				rows = append(rows, []string{
					r.StartedAt.Local().Format(time.DateTime),
					r.Source,
					strconv.Itoa(r.Total),
					strconv.Itoa(r.Auto),
					strconv.Itoa(r.Queued),
					strconv.Itoa(r.Failed),
					r.Duration().Round(time.Millisecond).String(),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Started", "Source", "Total", "Auto", "Queued", "Failed", "Took"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight},
			))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "l", history.DefaultListLimit, "Maximum runs to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print runs as JSON")
	return cmd
}

func newHistoryDecisionsCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "decisions [key]",
		Short: "List review decisions, optionally for one key",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hist, err := requireHistory(ctx)
			if err != nil {
				return err
			}
			var key string
			if len(args) == 1 {
				key = args[0]
			}
			decisions, err := hist.ListDecisions(cmd.Context(), key)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, decisions)
			}
			if len(decisions) == 0 {
				fmt.Fprintln(out, "No decisions recorded.")
				return nil
			}
			rows := make([][]string, 0, len(decisions))
			for _, d := range decisions {
				track := "-"
				if d.TrackID != 0 {
					track = strconv.FormatInt(d.TrackID, 10)
				}
				rows = append(rows, []string{
					d.DecidedAt.Local().Format(time.DateTime),
					d.Key,
					d.Status,
					track,
					d.Reviewer,
				})
			}
			fmt.Fprintln(out, renderTable([]string{"Decided", "Key", "Status", "Track", "Reviewer"}, rows, nil))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print decisions as JSON")
	return cmd
}

func newHistoryPruneCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete runs and decisions older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := ctx.ensureConfig(); err != nil {
				return err
			}
			svc, _, err := ctx.maintenance()
			if err != nil {
				return err
			}
			if olderThan <= 0 {
				olderThan = ctx.config.Database.HistoryRetention
			}
			if olderThan <= 0 {
				return fmt.Errorf("no retention window; pass --older-than or set database.history_retention")
			}
			res, err := svc.PruneBefore(cmd.Context(), time.Now().UTC().Add(-olderThan))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d runs and %d decisions older than %s.\n",
				res.Runs, res.Decisions, res.Cutoff.Local().Format(time.DateTime))
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Age cutoff (defaults to database.history_retention)")
	return cmd
}

func newHistoryOptimizeCommand(ctx *commandContext) *cobra.Command {
	var vacuum bool
	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Optimize (and optionally vacuum) the history database",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := ctx.ensureConfig(); err != nil {
				return err
			}
			svc, _, err := ctx.maintenance()
			if err != nil {
				return err
			}
			if err := svc.Optimize(cmd.Context()); err != nil {
				return err
			}
			if vacuum {
				if err := svc.Vacuum(cmd.Context()); err != nil {
					return err
				}
			}
			st, err := svc.Status(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderPairs([][2]string{
				{"Database size", humanize.Bytes(uint64(st.DBFileSize))},   //nolint:gosec // G115: file sizes are non-negative
				{"WAL size", humanize.Bytes(uint64(st.WALFileSize))},       //nolint:gosec // G115: file sizes are non-negative
				{"Pages", humanize.Comma(st.PageCount)},
				{"Free pages", humanize.Comma(st.FreePages)},
				{"Vacuumed", yesNo(vacuum)},
			}))
			return nil
		},
	}
	cmd.Flags().BoolVar(&vacuum, "vacuum", false, "Rebuild the database file after optimizing")
	return cmd
}
