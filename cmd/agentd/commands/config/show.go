package config

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/agentd/internal/cli/output"
	"github.com/marmos91/agentd/pkg/config"
)

func newShowCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Display the effective configuration",
		Long: `Display the configuration after defaults and AGENTD_* environment
overrides have been applied.

Examples:
  agentd config show
  agentd config show --output json
  AGENTD_LOGGING_LEVEL=DEBUG agentd config show`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := output.ParseFormat(format)
			if err != nil {
				return err
			}

			cfg, err := config.Load(configPath(cmd))
			if err != nil {
				return err
			}

			// The table view only lists transports; the full document is YAML.
			if f == output.FormatTable {
				f = output.FormatYAML
			}
			return output.Print(cmd.OutOrStdout(), f, cfg)
		},
	}

	cmd.Flags().StringVarP(&format, "output", "o", "yaml", "Output format: yaml, json")
	return cmd
}
