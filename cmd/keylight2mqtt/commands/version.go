package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newVersionCommand creates the version command
func newVersionCommand(info BuildInfo) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "keylight2mqtt:\n")
			fmt.Fprintf(out, "  Version:    %s\n", info.Version)
			fmt.Fprintf(out, "  Commit:     %s\n", info.Commit)
			fmt.Fprintf(out, "  Build Date: %s\n", info.BuildDate)
		},
	}
}
