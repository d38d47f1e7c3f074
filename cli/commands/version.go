package commands

import (
	"fmt"

	"github.com/satishbabariya/exprsql/cli/internal/ui"
	"github.com/satishbabariya/exprsql/cli/internal/version"
	"github.com/spf13/cobra"
)

func newVersionCommand() *cobra.Command {
	var latest string

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.Get()
			fmt.Fprintln(cmd.OutOrStdout(), info.FullString())
			if latest == "" {
				return nil
			}
			older, err := info.Older(latest)
			if err != nil {
				return err
			}
			if older {
				ui.PrintWarning("version %s is available", latest)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&latest, "latest", "", "warn when this release is newer than the CLI")
	return cmd
}
