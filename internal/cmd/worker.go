package cmd

import (
	"github.com/spf13/cobra"

	"github.com/jpequegn/testflow/internal/runner"
)

// workerCmd is the entry point for spawned worker processes. The dispatcher
// re-executes its own binary with this command; it is not meant to be run by
// hand.
var workerCmd = &cobra.Command{
	Use:           "worker",
	Short:         "Run as a test worker process (internal)",
	Hidden:        true,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runner.Main()
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
