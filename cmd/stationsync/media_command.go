package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/sydlexius/stationsync/internal/media"
)

// stdinIsTerminal is swapped in tests.
var stdinIsTerminal = isTerminalStdin

func isTerminalStdin() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

func newMediaCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "media",
		Short: "Download artwork and previews",
	}
	cmd.AddCommand(newMediaIngestCommand(ctx))
	cmd.AddCommand(newMediaSyncCommand(ctx))
	cmd.AddCommand(newMediaFetchCommand(ctx))
	return cmd
}

func newMediaFetchCommand(ctx *commandContext) *cobra.Command {
	var dest, filename string

	cmd := &cobra.Command{
		Use:   "fetch <url>",
		Short: "Download one URL into the media directory",
		Long: "Download a single file, such as a jingle or a replacement preview, into the\n" +
			"media directory. The resolution cache is not touched.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if dest == "" {
				dest = cfg.Media.Dir
			}

			d := media.NewDownloader(dest, cfg.Media.ArtworkSize, ctx.logger())
			path, size, err := d.FetchURL(cmd.Context(), args[0], filename)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (%s)\n", path, humanize.Bytes(uint64(size)))
			return nil
		},
	}
	cmd.Flags().StringVar(&dest, "dest", "", "Destination directory (default media.dir)")
	cmd.Flags().StringVar(&filename, "filename", "", "File name to save as (default: last segment of the URL path)")
	return cmd
}

func newMediaIngestCommand(ctx *commandContext) *cobra.Command {
	var dest string
	var yes bool

	cmd := &cobra.Command{
		Use:   "ingest <search-results.json>",
		Short: "Download assets for the results of a saved catalog search",
		Long: "Read a catalog search response ({\"results\": [...]}) and download the artwork\n" +
			"and preview of each result, asking before each artist/album unless --yes is set.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if dest == "" {
				dest = cfg.Media.Dir
			}

			var confirm media.ConfirmFunc
			if !yes {
				if !stdinIsTerminal() {
					return fmt.Errorf("stdin is not a terminal; pass --yes to download every result")
				}
				confirm = promptConfirm(bufio.NewReader(cmd.InOrStdin()), cmd.ErrOrStderr())
			}

			d := media.NewDownloader(dest, cfg.Media.ArtworkSize, ctx.logger())
			sum, err := d.IngestFile(cmd.Context(), args[0], confirm)
			if sum != nil {
				fmt.Fprintln(cmd.OutOrStdout(), renderMediaSummary(sum))
			}
			return err
		},
	}
	cmd.Flags().StringVar(&dest, "dest", "", "Destination directory (default media.dir)")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Download every result without asking")
	return cmd
}

// promptConfirm asks on w and reads the answer from r. Anything but "y"
// declines.
func promptConfirm(r *bufio.Reader, w io.Writer) media.ConfirmFunc {
	return func(artist, album string) bool {
		fmt.Fprintf(w, "Download media for %s - %s? [y/N]: ", artist, album)
		line, err := r.ReadString('\n')
		if err != nil && line == "" {
			return false
		}
		return strings.ToLower(strings.TrimSpace(line)) == "y"
	}
}

func newMediaSyncCommand(ctx *commandContext) *cobra.Command {
	var manifestPath string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Download assets for every resolved cache entry",
		Long: "Download the artwork and preview of every auto or approved cache entry and\n" +
			"write a manifest of the local files. The manifest feeds the notify command.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if manifestPath == "" {
				manifestPath = filepath.Join(cfg.Media.Dir, "manifest.json")
			}

			cacheStore, _ := ctx.stores()
			cache, err := cacheStore.Load()
			if err != nil {
				return err
			}

			d := media.NewDownloader(cfg.Media.Dir, cfg.Media.ArtworkSize, ctx.logger())
			manifest, sum, syncErr := d.SyncCache(cmd.Context(), cache)
			if err := media.WriteManifest(manifestPath, manifest); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderMediaSummary(sum))
			fmt.Fprintf(out, "Manifest written to %s\n", manifestPath)
			return syncErr
		},
	}
	cmd.Flags().StringVar(&manifestPath, "manifest", "", "Manifest path (default <media.dir>/manifest.json)")
	return cmd
}

func renderMediaSummary(s *media.Summary) string {
	return renderPairs([][2]string{
		{"Tracks", strconv.Itoa(s.Tracks)},
		{"Declined", strconv.Itoa(s.Declined)},
		{"Downloaded", strconv.Itoa(s.Fetched)},
		{"Already present", strconv.Itoa(s.Kept)},
		{"Failed", strconv.Itoa(s.Failed)},
	})
}
