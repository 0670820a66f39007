package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/wneessen/go-mail"

	"github.com/sydlexius/stationsync/internal/notify"
)

func newNotifyCommand(ctx *commandContext) *cobra.Command {
	var printOnly bool

	cmd := &cobra.Command{
		Use:   "notify <tracks.json>",
		Short: "Mail a report of tracks missing artwork or preview",
		Long: "Read a track list (such as the manifest written by `media sync`) and mail the\n" +
			"titles missing artwork or a preview to notify.to through notify.smtp.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			tracks, err := notify.LoadTracks(args[0])
			if err != nil {
				return err
			}

			logger := ctx.logger()
			mailer := notify.NewMailer(notify.Options{
				Host:     cfg.Notify.SMTP.Host,
				Port:     cfg.Notify.SMTP.Port,
				Username: cfg.Notify.SMTP.Username,
				Password: cfg.Notify.SMTP.Password,
				From:     cfg.Notify.From,
				To:       cfg.Notify.To,
			}, logger)

			var sender notify.Sender = mailer
			if printOnly {
				sender = printSender{mailer}
			}

			bus, drain := ctx.events()
			defer drain()

			n := notify.NewNotifier(sender, logger)
			n.SetEventBus(bus)
			report, err := n.Notify(cmd.Context(), tracks)
			if err != nil {
				return err
			}
			if printOnly {
				rendered, err := report.Render()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), rendered)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Report sent to %d recipients (%d missing artwork, %d missing preview).\n",
				len(cfg.Notify.To), len(report.MissingArtwork), len(report.MissingPreview))
			return nil
		},
	}
	cmd.Flags().BoolVar(&printOnly, "print", false, "Print the message instead of sending it")
	return cmd
}

// printSender keeps the mailer's addresses for the header but delivers
// nothing; the command prints the message instead.
type printSender struct {
	*notify.Mailer
}

func (printSender) Send(context.Context, *mail.Msg) error { return nil }
