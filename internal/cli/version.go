package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentmesh/agentmesh/internal/version"
)

// NewVersionCmd prints the build version.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Full())
		},
	}
}
