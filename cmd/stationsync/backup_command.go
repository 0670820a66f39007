package main

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/sydlexius/stationsync/internal/backup"
)

var errBackupsDisabled = errors.New("backups are disabled; set store.backup_dir")

func newBackupCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Snapshot the cache, queue and history database",
		Long: "Write timestamped copies of the cache and queue documents (and the history\n" +
			"database when enabled) into store.backup_dir, then prune old snapshots.",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := requireBackups(ctx)
			if err != nil {
				return err
			}
			created, err := svc.Backup(cmd.Context())
			if err != nil {
				return err
			}
			removed, err := svc.Prune()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(created) == 0 {
				fmt.Fprintln(out, "Nothing to back up yet.")
			} else {
				fmt.Fprintln(out, renderBackupTable(created))
			}
			if len(removed) > 0 {
				fmt.Fprintf(out, "Pruned %d old snapshots.\n", len(removed))
			}
			return nil
		},
	}
	cmd.AddCommand(newBackupListCommand(ctx))
	cmd.AddCommand(newBackupRestoreCommand(ctx))
	return cmd
}

func newBackupListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List snapshots, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := requireBackups(ctx)
			if err != nil {
				return err
			}
			backups, err := svc.ListBackups()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				if backups == nil {
					backups = []backup.BackupInfo{}
				}
				return writeJSON(out, backups)
			}
			if len(backups) == 0 {
				fmt.Fprintf(out, "No snapshots in %s.\n", svc.Dir())
				return nil
			}
			fmt.Fprintln(out, renderBackupTable(backups))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print snapshots as JSON")
	return cmd
}

func newBackupRestoreCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <snapshot>",
		Short: "Copy a cache or queue snapshot back over its document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := requireBackups(ctx)
			if err != nil {
				return err
			}
			doc, err := svc.Restore(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Restored %s from %s.\n", doc.Path, args[0])
			return nil
		},
	}
}

func requireBackups(ctx *commandContext) (*backup.Service, error) {
	if _, err := ctx.ensureConfig(); err != nil {
		return nil, err
	}
	svc, err := ctx.backups()
	if err != nil {
		return nil, err
	}
	if svc == nil {
		return nil, errBackupsDisabled
	}
	return svc, nil
}

func renderBackupTable(backups []backup.BackupInfo) string {
	rows := make([][]string, 0, len(backups))
	for _, b := range backups {
		rows = append(rows, []string{
			b.Filename,
			b.Document,
			humanize.Bytes(uint64(b.Size)), //nolint:gosec // G115: file sizes are non-negative
			humanize.Time(b.CreatedAt),
		})
	}
	return renderTable(
		[]string{"Snapshot", "Document", "Size", "Created"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
	)
}
