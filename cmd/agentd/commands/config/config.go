// Package config implements the configuration management subcommands.
package config

import (
	"github.com/spf13/cobra"
)

// NewCmd builds the config command and its subcommands.
func NewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long: `Manage agentd configuration files.

Subcommands:
  init      Write a default configuration file
  validate  Validate a configuration file
  show      Display the effective configuration
  schema    Generate JSON schema for IDE/validation`,
	}

	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newValidateCmd())
	cmd.AddCommand(newShowCmd())
	cmd.AddCommand(newSchemaCmd())
	return cmd
}

func configPath(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("config")
	return path
}
