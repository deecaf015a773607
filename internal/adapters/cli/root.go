// Package cli is the command surface: the interactive parent shell and the
// hidden worker entry point the supervisor re-executes for background jobs.
package cli

import (
	"github.com/spf13/cobra"
)

var configPath string

// NewRootCmd builds the command tree
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "polisbot",
		Short: "Autonomous browser-game automation agent",
		Long: `polisbot logs into the game lobby, keeps a rate-limited game session
alive, and runs automation modules as detached background workers that
survive the interactive shell.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShell(cmd.Context())
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "config file path")

	root.AddCommand(newShellCmd())
	root.AddCommand(newWorkerCmd())
	return root
}

func newShellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Start the interactive shell (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShell(cmd.Context())
		},
	}
}
