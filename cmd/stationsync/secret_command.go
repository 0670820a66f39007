package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sydlexius/stationsync/internal/config"
	"github.com/sydlexius/stationsync/internal/encryption"
)

func newSealSecretCommand(ctx *commandContext) *cobra.Command {
	var generateKey bool

	cmd := &cobra.Command{
		Use:   "seal-secret",
		Short: "Encrypt a value for notify.smtp.password or a webhook url",
		Long: "Read a secret (prompting on a terminal, or one line from stdin) and print\n" +
			"an enc: value sealed with SS_SECRET_KEY. --generate-key prints a new key instead.",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if generateKey {
				key, err := encryption.GenerateKey()
				if err != nil {
					return err
				}
				fmt.Fprintln(out, key)
				return nil
			}

			if ctx.envFlag != nil {
				if err := config.LoadEnvFile(strings.TrimSpace(*ctx.envFlag)); err != nil {
					return err
				}
			}
			sealer, err := encryption.NewSealer(os.Getenv("SS_SECRET_KEY"))
			if errors.Is(err, encryption.ErrNoKey) {
				return errors.New("SS_SECRET_KEY is not set; create one with --generate-key")
			}
			if err != nil {
				return err
			}

			secret, err := readPassword(cmd.InOrStdin(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			sealed, err := sealer.Seal(secret)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, sealed)
			return nil
		},
	}
	cmd.Flags().BoolVar(&generateKey, "generate-key", false, "Print a new random SS_SECRET_KEY and exit")
	return cmd
}
