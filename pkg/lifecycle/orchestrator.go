package lifecycle

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/marmos91/agentd/internal/logger"
	"github.com/marmos91/agentd/internal/telemetry"
)

// Op is a lifecycle callback: the application's startup or shutdown routine.
type Op func(ctx context.Context) error

// Task names used by the orchestrator.
const (
	StartupTaskName  = "startup"
	ShutdownTaskName = "shutdown"
)

// Orchestrator drives a single run of a Loop between a startup op and a
// shutdown op.
type Orchestrator struct {
	loop            *Loop
	signals         []os.Signal
	notifier        Notifier
	shutdownTimeout time.Duration
	exit            func(int)
	metrics         Metrics
	runID           string

	ran          atomic.Bool
	shutdownOnce sync.Once
}

// New creates an Orchestrator for loop.
func New(loop *Loop, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		loop:     loop,
		signals:  DefaultSignals(),
		notifier: osNotifier{},
		exit:     os.Exit,
		metrics:  nopMetrics{},
		runID:    uuid.NewString(),
	}
	for _, opt := range opts {
		opt(o)
	}
	loop.metrics = o.metrics
	return o
}

// RunID returns the identifier of the run.
func (o *Orchestrator) RunID() string { return o.runID }

// Run schedules startup, runs the loop until the first termination signal
// has been handled, and returns once the loop has stopped and every task
// has returned.
//
// Failures of startup and shutdown are logged, never returned. Run returns
// ErrAlreadyRun when called twice and ErrLoopRunning (or ErrLoopStopped)
// when the loop cannot be run.
func (o *Orchestrator) Run(startup, shutdown Op) error {
	if !o.ran.CompareAndSwap(false, true) {
		return ErrAlreadyRun
	}
	if err := o.loop.claim(); err != nil {
		return err
	}

	lc := logger.NewLogContext(o.runID).WithComponent("lifecycle")
	ctx := logger.WithContext(context.Background(), lc)

	sigCh := make(chan os.Signal, 1)
	o.notifier.Notify(sigCh, o.signals...)

	var fwd sync.WaitGroup
	fwd.Add(1)
	go func() {
		defer fwd.Done()
		o.forward(ctx, sigCh, shutdown)
	}()

	if _, err := o.loop.Go(ctx, StartupTaskName, o.startupDriver(startup)); err != nil {
		// Only possible if the loop was closed before it ever ran.
		logger.ErrorCtx(ctx, "Failed to schedule startup", logger.Err(err))
	}

	logger.DebugCtx(ctx, "Loop running", "signals", len(o.signals))
	o.loop.serve()

	// The handler may never have fired if the loop was stopped directly.
	o.shutdownOnce.Do(func() { o.notifier.Stop(sigCh) })
	fwd.Wait()

	logger.DebugCtx(ctx, "Loop stopped")
	return nil
}

// forward relays signals onto the loop goroutine until the loop stops.
func (o *Orchestrator) forward(ctx context.Context, sigCh chan os.Signal, shutdown Op) {
	stopped := o.loop.Stopped()
	for {
		select {
		case sig := <-sigCh:
			if !o.loop.Call(func() { o.handleSignal(ctx, sig, sigCh, shutdown) }) {
				return
			}
		case <-stopped:
			return
		}
	}
}

// handleSignal runs on the loop goroutine. It schedules the shutdown driver
// on the first delivery and ignores the rest.
func (o *Orchestrator) handleSignal(ctx context.Context, sig os.Signal, sigCh chan os.Signal, shutdown Op) {
	fired := false
	o.shutdownOnce.Do(func() {
		fired = true
		o.notifier.Stop(sigCh)

		logger.InfoCtx(ctx, "Received signal, shutting down", logger.KeySignal, sig.String())
		start := time.Now()
		if _, err := o.loop.Go(ctx, ShutdownTaskName, func(ctx context.Context) error {
			return o.shutdownDriver(ctx, shutdown, sig, start)
		}); err != nil {
			logger.ErrorCtx(ctx, "Failed to schedule shutdown, stopping loop", logger.Err(err))
			o.loop.Stop()
		}
	})
	if !fired {
		logger.DebugCtx(ctx, "Ignoring repeated signal", logger.KeySignal, sig.String())
	}
}

func (o *Orchestrator) startupDriver(startup Op) TaskFunc {
	return func(ctx context.Context) error {
		self := CurrentTask(ctx)
		ctx, span := telemetry.StartTaskSpan(ctx, telemetry.SpanStartup, self.Name(), self.ID(), telemetry.RunID(o.runID))
		defer span.End()

		err := safeCall(ctx, TaskFunc(startup))
		switch {
		case err == nil:
			logger.DebugCtx(ctx, "Startup complete")
			return nil
		case ctx.Err() != nil && errors.Is(err, context.Canceled):
			logger.InfoCtx(ctx, "Startup cancelled by shutdown")
			return err
		default:
			logger.ErrorCtx(ctx, "Startup failed", logger.Err(err))
			telemetry.RecordError(ctx, err)
			o.metrics.StartupFailed()
			return nil
		}
	}
}

func (o *Orchestrator) shutdownDriver(ctx context.Context, shutdown Op, sig os.Signal, start time.Time) error {
	self := CurrentTask(ctx)
	ctx, span := telemetry.StartTaskSpan(ctx, telemetry.SpanShutdown, self.Name(), self.ID(),
		telemetry.RunID(o.runID), telemetry.Signal(sig.String()))
	defer span.End()

	if o.shutdownTimeout > 0 {
		timer := time.AfterFunc(o.shutdownTimeout, func() {
			logger.ErrorCtx(ctx, "Shutdown deadline exceeded, forcing exit", logger.KeyTimeout, o.shutdownTimeout.String())
			o.exit(1)
		})
		defer timer.Stop()
	}

	opCtx, opSpan := telemetry.StartSpan(ctx, telemetry.SpanShutdownOp)
	if err := safeCall(opCtx, TaskFunc(shutdown)); err != nil {
		logger.ErrorCtx(ctx, "Shutdown failed", logger.Err(err))
		telemetry.RecordError(opCtx, err)
		o.metrics.ShutdownFailed()
	}
	opSpan.End()

	pending := o.loop.closeAndSnapshot(self)
	cancelled := o.drain(ctx, pending)

	o.metrics.TasksCancelled(cancelled)
	o.metrics.ShutdownDuration(time.Since(start))
	logger.InfoCtx(ctx, "Shutdown complete",
		logger.KeyPending, len(pending),
		logger.KeyCancelled, cancelled,
		logger.KeyDurationMs, logger.Duration(start))

	o.loop.Stop()
	return nil
}

// drain cancels every task and waits for all of them. It returns how many
// ended with context.Canceled. Other outcomes are logged at debug level.
func (o *Orchestrator) drain(ctx context.Context, tasks []*Task) int {
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanDrain)
	defer span.End()

	for _, t := range tasks {
		t.Cancel()
	}

	cancelled := 0
	for _, t := range tasks {
		<-t.Done()
		switch err := t.Err(); {
		case err == nil:
		case errors.Is(err, context.Canceled):
			cancelled++
		default:
			logger.DebugCtx(ctx, "Task ended with error during drain",
				"drained_task", t.Name(), "drained_task_id", t.ID(), logger.Err(err))
		}
	}

	telemetry.SetAttributes(ctx, telemetry.Pending(len(tasks)), telemetry.Cancelled(cancelled))
	return cancelled
}
