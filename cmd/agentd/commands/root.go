// Package commands implements the agentd command line.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/agentd/cmd/agentd/commands/config"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// NewRootCmd builds the command tree. Each call returns fresh commands and
// flag state.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "agentd",
		Short: "agentd - agent process supervisor",
		Long: `agentd runs an agent conductor: it binds the configured inbound transports,
persists received messages to the wallet and shuts everything down in order
when SIGINT or SIGTERM is received.

Use "agentd [command] --help" for more information about a command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("config", "", "config file (default: $XDG_CONFIG_HOME/agentd/config.yaml)")

	root.AddCommand(newStartCmd())
	root.AddCommand(newVersionCmd())
	root.AddCommand(newCompletionCmd())
	root.AddCommand(config.NewCmd())

	// Hide the default completion command (we provide our own)
	root.CompletionOptions.DisableDefaultCmd = true

	// Usage errors exit with status 2, like invalid configuration.
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &ArgsParseError{Err: err}
	})
	wrapArgs(root)
	return root
}

// wrapArgs makes the positional argument validators of cmd and its
// subcommands return *ArgsParseError.
func wrapArgs(cmd *cobra.Command) {
	if validate := cmd.Args; validate != nil {
		cmd.Args = func(c *cobra.Command, args []string) error {
			if err := validate(c, args); err != nil {
				return &ArgsParseError{Err: err}
			}
			return nil
		}
	}
	for _, sub := range cmd.Commands() {
		wrapArgs(sub)
	}
}

// Execute runs the command line with os.Args.
func Execute() error {
	return NewRootCmd().Execute()
}

func configFile(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("config")
	return path
}
