package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/agentd/internal/cli/prompt"
	"github.com/marmos91/agentd/pkg/config"
)

// confirmOverwrite asks before replacing an existing file. Tests replace it.
var confirmOverwrite = func(path string) (bool, error) {
	return prompt.Confirm(fmt.Sprintf("Overwrite %s", path), false)
}

func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		Long: `Write a configuration file with default values.

Without --config the file is written to $XDG_CONFIG_HOME/agentd/config.yaml.
An existing file is only replaced after confirmation or with --force.

Examples:
  agentd config init
  agentd config init --config ./agentd.yaml --force`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath(cmd)
			if path == "" {
				path = config.GetDefaultConfigPath()
			}

			if _, err := os.Stat(path); err == nil && !force {
				ok, err := confirmOverwrite(path)
				if errors.Is(err, prompt.ErrAborted) {
					return nil
				}
				if err != nil {
					return err
				}
				if !ok {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Keeping existing configuration")
					return nil
				}
			}

			if err := config.InitConfigToPath(path, true); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "Configuration file created at: %s\n", path)
			_, _ = fmt.Fprintln(out, "\nNext steps:")
			_, _ = fmt.Fprintln(out, "  1. Edit the configuration file to customize your agent")
			_, _ = fmt.Fprintf(out, "  2. Start the agent with: agentd start --config %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file without asking")
	return cmd
}
