package config

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marmos91/agentd/internal/cli/output"
	"github.com/marmos91/agentd/pkg/config"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration file",
		Long: `Validate the agentd configuration file.

Checks for syntax errors, missing required fields, and invalid values, then
prints a summary of the agent that would be started.

Examples:
  agentd config validate
  agentd config validate --config /etc/agentd/config.yaml`,
		Args: cobra.NoArgs,
		RunE: runValidate,
	}
}

func runValidate(cmd *cobra.Command, args []string) error {
	path := configPath(cmd)

	cfg, err := config.MustLoad(path)
	if err != nil {
		return err
	}
	if path == "" {
		path = config.GetDefaultConfigPath()
	}

	var warnings []string
	if len(cfg.Agent.InboundTransports) == 0 {
		warnings = append(warnings, "No inbound transports: 'agentd start' needs --inbound-transport")
	}
	if len(cfg.Agent.OutboundTransports) == 0 {
		warnings = append(warnings, "No outbound transports: 'agentd start' needs --outbound-transport")
	}
	if cfg.Agent.Wallet.Test {
		warnings = append(warnings, "Test wallet enabled: records are lost on exit")
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configuration file: %s\n", path)
	_, _ = fmt.Fprintln(out, "Validation: OK")

	if len(warnings) > 0 {
		_, _ = fmt.Fprintln(out, "\nWarnings:")
		for _, w := range warnings {
			_, _ = fmt.Fprintf(out, "  - %s\n", w)
		}
	}

	_, _ = fmt.Fprintln(out, "\nConfiguration summary:")
	if err := output.KeyValues(out, summary(cfg)); err != nil {
		return err
	}

	if len(cfg.Agent.InboundTransports) > 0 {
		_, _ = fmt.Fprintln(out, "\nInbound transports:")
		return output.PrintTable(out, transportTable(cfg.Agent.InboundTransports))
	}
	return nil
}

func summary(cfg *config.Config) [][2]string {
	wallet := cfg.Agent.Wallet.Type
	if cfg.Agent.Wallet.Test {
		wallet = "memory (test)"
	} else if cfg.Agent.Wallet.Path != "" {
		wallet += " (" + cfg.Agent.Wallet.Path + ")"
	}

	return [][2]string{
		{"Label", cfg.Agent.Label},
		{"Outbound", strings.Join(cfg.Agent.OutboundTransports, ", ")},
		{"Endpoints", strings.Join(cfg.Agent.Endpoints, ", ")},
		{"Ledger", fmt.Sprintf("%t", !cfg.Agent.NoLedger)},
		{"Wallet", wallet},
		{"Max message size", cfg.Agent.MaxMessageSize.String()},
		{"Shutdown timeout", cfg.ShutdownTimeout.String()},
		{"Log level", cfg.Logging.Level},
	}
}

func transportTable(transports []config.TransportConfig) *output.Table {
	table := output.NewTable("Type", "Host", "Port")
	for _, t := range transports {
		table.AddRow(t.Type, t.Host, fmt.Sprint(t.Port))
	}
	return table
}
