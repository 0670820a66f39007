package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/sydlexius/stationsync/internal/reconcile"
)

func newReconcileCommand(ctx *commandContext) *cobra.Command {
	var workers int
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "reconcile [library-file]",
		Short: "Resolve every library row against the catalog",
		Long: "Resolve every row of a station library spreadsheet (.csv or .xlsx).\n" +
			"Rows with exactly one catalog match are cached; the rest are queued for review.\n" +
			"Keys already in the cache are skipped.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := cfg.Reconcile.LibraryPath
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				return fmt.Errorf("no library file given and reconcile.library_path is empty")
			}

			hist, err := ctx.history()
			if err != nil {
				return err
			}
			bus, drain := ctx.events()
			defer drain()

			result, err := ctx.engine(hist, bus, workers).RunFile(cmd.Context(), path)
			if result != nil {
				out := cmd.OutOrStdout()
				if jsonOut {
					if werr := writeJSON(out, result); werr != nil {
						return werr
					}
				} else {
					fmt.Fprintln(out, renderRunSummary(result))
				}
			}
			return err
		},
	}

	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "Concurrent resolutions (default reconcile.max_workers)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the run summary as JSON")
	return cmd
}

func renderRunSummary(r *reconcile.RunResult) string {
	duration := "-"
	if r.FinishedAt != nil {
		duration = r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
	}
	pairs := [][2]string{
		{"Run", r.ID},
		{"Source", r.Source},
		{"Status", r.Status},
		{"Records", strconv.Itoa(r.Total)},
		{"Skipped (cached)", strconv.Itoa(r.Skipped)},
		{"Matched", strconv.Itoa(r.Auto)},
		{"Queued", strconv.Itoa(r.Queued)},
		{"Queued again", strconv.Itoa(r.Requeued)},
		{"Failed", strconv.Itoa(r.Failed)},
		{"Cache changed", yesNo(r.Changed)},
		{"Duration", duration},
	}
	if r.Error != "" {
		pairs = append(pairs, [2]string{"Error", r.Error})
	}
	return renderPairs(pairs)
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
