package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/marmos91/agentd/internal/bytesize"
	"github.com/marmos91/agentd/internal/telemetry"
)

const (
	// DefaultShutdownTimeout bounds shutdown when nothing else is configured.
	DefaultShutdownTimeout = 30 * time.Second

	// DefaultMaxMessageSize bounds inbound messages when nothing is configured.
	DefaultMaxMessageSize = bytesize.MiB

	DefaultOTLPEndpoint      = "localhost:4317"
	DefaultPyroscopeEndpoint = "http://localhost:4040"
	DefaultMetricsPort       = 9090
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyShutdownTimeoutDefaults(cfg)
	applyMetricsDefaults(&cfg.Metrics)
	applyAgentDefaults(&cfg.Agent)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)
	if cfg.Level == "WARNING" {
		cfg.Level = "WARN"
	}

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultOTLPEndpoint
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}

	if cfg.Profiling.Endpoint == "" {
		cfg.Profiling.Endpoint = DefaultPyroscopeEndpoint
	}
	if len(cfg.Profiling.ProfileTypes) == 0 {
		cfg.Profiling.ProfileTypes = append([]string(nil), telemetry.DefaultProfileTypes...)
	}
}

func applyShutdownTimeoutDefaults(cfg *Config) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
}

// applyMetricsDefaults only picks a port when metrics are enabled.
func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = DefaultMetricsPort
	}
}

func applyAgentDefaults(cfg *AgentConfig) {
	for i := range cfg.OutboundTransports {
		cfg.OutboundTransports[i] = strings.ToLower(cfg.OutboundTransports[i])
	}
	for i := range cfg.InboundTransports {
		cfg.InboundTransports[i].Type = strings.ToLower(cfg.InboundTransports[i].Type)
	}

	if cfg.MaxMessageSize == 0 {
		cfg.MaxMessageSize = DefaultMaxMessageSize
	}

	if cfg.Wallet.Type == "" {
		cfg.Wallet.Type = "badger"
	}
	if cfg.Wallet.Type == "badger" && cfg.Wallet.Path == "" {
		cfg.Wallet.Path = defaultWalletPath()
	}
}

func defaultWalletPath() string {
	return filepath.Join(getDataDir(), "wallet")
}

// GetDefaultConfig returns a Config struct with all default values applied.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Agent: AgentConfig{
			Label: "agentd",
			InboundTransports: []TransportConfig{
				{Type: TransportHTTP, Host: "0.0.0.0", Port: 8020},
			},
			OutboundTransports: []string{"http"},
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
