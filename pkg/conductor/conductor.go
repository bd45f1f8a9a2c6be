// Package conductor is the agent application: it owns the wallet and the
// inbound and outbound transports, and is started and stopped by the
// lifecycle orchestrator.
package conductor

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/marmos91/agentd/internal/logger"
	"github.com/marmos91/agentd/internal/telemetry"
	"github.com/marmos91/agentd/pkg/config"
	"github.com/marmos91/agentd/pkg/lifecycle"
	"github.com/marmos91/agentd/pkg/wallet"
)

var (
	// ErrAlreadySetUp is returned by a second call to Setup.
	ErrAlreadySetUp = errors.New("conductor: already set up")

	// ErrNotSetUp is returned by Start before a successful Setup.
	ErrNotSetUp = errors.New("conductor: not set up")

	// ErrStopped is returned by Start after Stop.
	ErrStopped = errors.New("conductor: stopped")
)

// DispatcherTaskName names the task persisting inbound messages.
const DispatcherTaskName = "dispatcher"

// stopTimeout bounds each phase of Stop.
const stopTimeout = 10 * time.Second

// Spawner starts named tasks. *lifecycle.Loop implements it.
type Spawner interface {
	Go(ctx context.Context, name string, fn lifecycle.TaskFunc) (*lifecycle.Task, error)
}

// Option configures a Conductor.
type Option func(*Conductor)

// WithMetrics sets the traffic metrics. nil is ignored.
func WithMetrics(m Metrics) Option {
	return func(c *Conductor) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithWalletMetrics instruments the wallet opened by Setup.
func WithWalletMetrics(m wallet.Metrics) Option {
	return func(c *Conductor) {
		c.walletMetrics = m
	}
}

// Conductor wires the wallet and transports together.
type Conductor struct {
	cfg           config.AgentConfig
	spawner       Spawner
	metrics       Metrics
	walletMetrics wallet.Metrics

	mu         sync.Mutex
	setUp      bool
	started    bool
	stopped    bool
	wallet     wallet.Wallet
	outbound   []string
	inbound    []InboundTransport
	dispatch   *dispatcher
	dispatcher *lifecycle.Task
	servers    []*lifecycle.Task
}

// New creates a conductor for cfg. Tasks are started on spawner.
func New(cfg config.AgentConfig, spawner Spawner, opts ...Option) *Conductor {
	c := &Conductor{
		cfg:     cfg,
		spawner: spawner,
		metrics: nopMetrics{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Conductor) walletConfig() wallet.Config {
	if c.cfg.Wallet.Test {
		return wallet.Config{Type: wallet.TypeMemory}
	}
	wc := wallet.Config{Type: c.cfg.Wallet.Type, Path: c.cfg.Wallet.Path}
	if wc.Type == "" {
		wc.Type = wallet.TypeBadger
	}
	return wc
}

// Setup opens the wallet and builds the transports. Nothing is bound until
// Start. On failure everything opened so far is released.
func (c *Conductor) Setup(ctx context.Context) (err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.setUp {
		return ErrAlreadySetUp
	}

	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanSetup)
	defer span.End()
	defer func() {
		if err != nil {
			telemetry.RecordError(ctx, err)
		}
	}()

	if len(c.cfg.InboundTransports) == 0 {
		return errors.New("no inbound transports configured")
	}

	outbound := make([]string, 0, len(c.cfg.OutboundTransports))
	for _, kind := range c.cfg.OutboundTransports {
		if !config.ValidOutboundTransport(kind) {
			return fmt.Errorf("unsupported outbound transport type %q", kind)
		}
		kind = strings.ToLower(kind)
		if !slices.Contains(outbound, kind) {
			outbound = append(outbound, kind)
		}
	}
	if len(outbound) == 0 {
		return errors.New("no outbound transports configured")
	}

	wc := c.walletConfig()
	w, err := wallet.Open(wc, c.walletMetrics)
	if err != nil {
		return fmt.Errorf("open wallet: %w", err)
	}
	defer func() {
		if err != nil {
			_ = w.Close()
		}
	}()

	d := newDispatcher(w, wc.Type, c.metrics)
	info := healthInfo{Label: c.cfg.Label, Endpoints: c.cfg.Endpoints, NoLedger: c.cfg.NoLedger}

	inbound := make([]InboundTransport, 0, len(c.cfg.InboundTransports))
	for _, tc := range c.cfg.InboundTransports {
		t, err := newInbound(tc, d.deliver, info, int64(c.cfg.MaxMessageSize), c.metrics)
		if err != nil {
			for _, built := range inbound {
				_ = built.Shutdown(ctx)
			}
			return err
		}
		inbound = append(inbound, t)
	}

	if c.cfg.NoLedger {
		logger.InfoCtx(ctx, "Ledger disabled")
	}
	logger.InfoCtx(ctx, "Conductor set up",
		logger.KeyWallet, wc.Type,
		"inbound", len(inbound),
		"outbound", strings.Join(outbound, ","))

	c.wallet = w
	c.outbound = outbound
	c.inbound = inbound
	c.dispatch = d
	c.setUp = true
	return nil
}

// Start binds every inbound transport and starts serving. A bind failure
// releases the listeners already bound and is returned.
func (c *Conductor) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.stopped:
		return ErrStopped
	case !c.setUp:
		return ErrNotSetUp
	case c.started:
		return nil
	}

	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanStart)
	defer span.End()

	for i, t := range c.inbound {
		if err := t.Listen(); err != nil {
			telemetry.RecordError(ctx, err)
			for _, bound := range c.inbound[:i] {
				_ = bound.Shutdown(ctx)
			}
			return err
		}
	}
	c.started = true

	task, err := c.spawner.Go(ctx, DispatcherTaskName, c.dispatch.run)
	if err != nil {
		return fmt.Errorf("start dispatcher: %w", err)
	}
	c.dispatcher = task

	for _, t := range c.inbound {
		task, err := c.spawner.Go(ctx, "transport:"+t.Kind(), t.Serve)
		if err != nil {
			return fmt.Errorf("start %s transport: %w", t.Kind(), err)
		}
		c.servers = append(c.servers, task)
		logger.InfoCtx(ctx, "Inbound transport started", logger.KeyTransport, t.Kind(), logger.KeyAddress, t.Addr())
	}

	for _, e := range c.cfg.Endpoints {
		logger.InfoCtx(ctx, "Agent endpoint", logger.KeyEndpoint, e)
	}
	return nil
}

// Stop shuts the transports down, flushes the dispatcher and closes the
// wallet. It is safe to call whether or not Start ran or succeeded.
func (c *Conductor) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return nil
	}
	c.stopped = true
	if !c.setUp {
		return nil
	}

	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanStop)
	defer span.End()

	var errs []error
	stopCtx, cancel := context.WithTimeout(ctx, stopTimeout)
	defer cancel()

	// Transports that never bound still own a base context.
	for _, t := range c.inbound {
		if err := t.Shutdown(stopCtx); err != nil {
			errs = append(errs, err)
		}
	}
	for _, task := range c.servers {
		if err := task.Wait(stopCtx); err != nil && !errors.Is(err, context.Canceled) {
			errs = append(errs, fmt.Errorf("%s: %w", task.Name(), err))
		}
	}

	close(c.dispatch.stopping)
	if c.dispatcher != nil {
		c.dispatcher.Cancel()
		if err := c.dispatcher.Wait(stopCtx); err != nil && !errors.Is(err, context.Canceled) {
			errs = append(errs, fmt.Errorf("%s: %w", DispatcherTaskName, err))
		}
	}

	if err := c.wallet.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close wallet: %w", err))
	}

	err := errors.Join(errs...)
	if err != nil {
		telemetry.RecordError(ctx, err)
	}
	logger.InfoCtx(ctx, "Conductor stopped")
	return err
}

// Wallet returns the wallet opened by Setup, or nil.
func (c *Conductor) Wallet() wallet.Wallet {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wallet
}

// Addrs returns the bound inbound addresses keyed by transport type.
func (c *Conductor) Addrs() map[string][]string {
	c.mu.Lock()
	defer c.mu.Unlock()

	addrs := make(map[string][]string, len(c.inbound))
	for _, t := range c.inbound {
		if a := t.Addr(); a != "" {
			addrs[t.Kind()] = append(addrs[t.Kind()], a)
		}
	}
	return addrs
}

// OutboundTransports returns the outbound transport types accepted by Setup.
func (c *Conductor) OutboundTransports() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.outbound)
}
