package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sydlexius/stationsync/internal/version"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print the build version",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		Args:        cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "stationsync %s (%s)\n", version.Version, version.Commit)
		},
	}
}
