package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/agentd/internal/logger"
	"github.com/marmos91/agentd/pkg/conductor"
	"github.com/marmos91/agentd/pkg/config"
	"github.com/marmos91/agentd/pkg/lifecycle"
	"github.com/marmos91/agentd/pkg/metrics"
	"github.com/marmos91/agentd/pkg/metrics/prometheus"
)

// runOrchestrator hands control to the orchestrator. Tests replace it.
var runOrchestrator = func(o *lifecycle.Orchestrator, startup, shutdown lifecycle.Op) error {
	return o.Run(startup, shutdown)
}

type startOptions struct {
	inbound         []string
	outbound        []string
	endpoints       []string
	noLedger        bool
	walletTest      bool
	walletPath      string
	shutdownTimeout time.Duration
	logLevel        string
}

func newStartCmd() *cobra.Command {
	return newStartCommand(&startOptions{})
}

func newStartCommand(opts *startOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the agent",
		Long: `Start the agent in the foreground.

Flags override the configuration file, which overrides AGENTD_* environment
variables. The agent runs until SIGINT or SIGTERM is received, then stops the
conductor, cancels outstanding work and exits.

Examples:
  # Start with one HTTP inbound transport
  agentd start -i http:0.0.0.0:8020 -o http --wallet-test

  # Several inbound transports and a public endpoint
  agentd start -i http:0.0.0.0:8020 -i ws:0.0.0.0:8021 -o http -o ws \
    -e https://agent.example.com

  # Start from a configuration file with a debug log level
  AGENTD_LOGGING_LEVEL=DEBUG agentd start --config /etc/agentd/config.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringArrayVarP(&opts.inbound, "inbound-transport", "i", nil, "Inbound transport as type:host:port (repeatable)")
	f.StringArrayVarP(&opts.outbound, "outbound-transport", "o", nil, "Outbound transport type: http, https, ws, wss (repeatable)")
	f.StringArrayVarP(&opts.endpoints, "endpoint", "e", nil, "Public endpoint URL of the agent (repeatable)")
	f.BoolVar(&opts.noLedger, "no-ledger", false, "Run without a ledger")
	f.BoolVar(&opts.walletTest, "wallet-test", false, "Use an in-memory wallet")
	f.StringVar(&opts.walletPath, "wallet-path", "", "Directory of the persistent wallet")
	f.DurationVar(&opts.shutdownTimeout, "shutdown-timeout", config.DefaultShutdownTimeout, "Force exit when shutdown takes longer than this")
	f.StringVar(&opts.logLevel, "log-level", "", "Log level: DEBUG, INFO, WARN, ERROR")

	return cmd
}

// loadStartConfig merges the configuration file, environment and flags.
func loadStartConfig(cmd *cobra.Command, opts *startOptions) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path := configFile(cmd); path != "" {
		cfg, err = config.MustLoad(path)
	} else {
		cfg, err = config.Load("")
	}
	if err != nil {
		return nil, err
	}

	f := cmd.Flags()
	if f.Changed("inbound-transport") {
		cfg.Agent.InboundTransports = nil
		for _, spec := range opts.inbound {
			t, err := config.ParseTransport(spec)
			if err != nil {
				return nil, &ArgsParseError{Err: err}
			}
			cfg.Agent.InboundTransports = append(cfg.Agent.InboundTransports, t)
		}
	}
	if f.Changed("outbound-transport") {
		cfg.Agent.OutboundTransports = opts.outbound
	}
	if f.Changed("endpoint") {
		cfg.Agent.Endpoints = opts.endpoints
	}
	if f.Changed("no-ledger") {
		cfg.Agent.NoLedger = opts.noLedger
	}
	if f.Changed("wallet-test") {
		cfg.Agent.Wallet.Test = opts.walletTest
	}
	if f.Changed("wallet-path") {
		cfg.Agent.Wallet.Path = opts.walletPath
	}
	if f.Changed("shutdown-timeout") {
		cfg.ShutdownTimeout = opts.shutdownTimeout
	}
	if f.Changed("log-level") {
		cfg.Logging.Level = opts.logLevel
	}

	config.ApplyDefaults(cfg)
	if err := config.Validate(cfg); err != nil {
		return nil, &ArgsParseError{Err: err}
	}

	if len(cfg.Agent.InboundTransports) == 0 {
		return nil, &ArgsParseError{Err: errors.New("at least one inbound transport is required (--inbound-transport)")}
	}
	if len(cfg.Agent.OutboundTransports) == 0 {
		return nil, &ArgsParseError{Err: errors.New("at least one outbound transport is required (--outbound-transport)")}
	}
	return cfg, nil
}

func runStart(cmd *cobra.Command, opts *startOptions) error {
	cfg, err := loadStartConfig(cmd, opts)
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	shutdownTelemetry, err := initTelemetry(ctx, cfg)
	if err != nil {
		return err
	}
	defer shutdownTelemetry()

	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		reg := metrics.InitRegistry()
		metricsServer = metrics.NewServer(metrics.ServerConfig{Port: cfg.Metrics.Port}, reg)
		logger.Info("Metrics enabled", "port", cfg.Metrics.Port)
	} else {
		logger.Info("Metrics collection disabled")
	}

	loop := lifecycle.NewLoop()
	cond := conductor.New(cfg.Agent, loop,
		conductor.WithMetrics(prometheus.NewConductorMetrics()),
		conductor.WithWalletMetrics(prometheus.NewWalletMetrics()),
	)

	if err := cond.Setup(ctx); err != nil {
		return &StartupError{Err: err}
	}

	orch := lifecycle.New(loop,
		lifecycle.WithShutdownTimeout(cfg.ShutdownTimeout),
		lifecycle.WithMetrics(prometheus.NewLifecycleMetrics()),
	)
	logger.Info("Starting agent",
		logger.KeyRunID, orch.RunID(),
		"label", cfg.Agent.Label,
		"config", configSource(configFile(cmd)),
		logger.KeyTimeout, cfg.ShutdownTimeout.String())

	watchPath := watchedConfig(configFile(cmd))

	startup := func(ctx context.Context) error {
		if metricsServer != nil {
			if err := metricsServer.Listen(); err != nil {
				return err
			}
			if _, err := loop.Go(ctx, "metrics", metricsServer.Serve); err != nil {
				return fmt.Errorf("start metrics server: %w", err)
			}
		}

		if watchPath != "" {
			_, err := loop.Go(ctx, "config-watch", func(ctx context.Context) error {
				return config.Watch(ctx, watchPath, reloadLogging)
			})
			if err != nil {
				return fmt.Errorf("start config watcher: %w", err)
			}
		}

		return cond.Start(ctx)
	}

	if err := runOrchestrator(orch, startup, cond.Stop); err != nil {
		// Setup opened the wallet; the orchestrator never ran Stop.
		_ = cond.Stop(context.Background())
		return err
	}

	logger.Info("Agent stopped", logger.KeyRunID, orch.RunID())
	return nil
}

// reloadLogging applies the logging section of a changed configuration.
func reloadLogging(cfg *config.Config) {
	if err := InitLogger(cfg); err != nil {
		logger.Warn("Failed to apply logging configuration", logger.Err(err))
	}
}
