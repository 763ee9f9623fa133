package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/giantswarm/suidriver/internal/driver"
)

// newVersionCmd creates the Cobra command for displaying the application version.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of suidriver",
		Long:  `Print the version of suidriver and the component id it registers with hosts.`,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "suidriver version %s\n", GetVersion())
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", driver.ComponentName, driver.ComponentID)
		},
	}
}
