package lifecycle

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOrchestrator(opts ...Option) (*Orchestrator, *Loop, *fakeNotifier, *fakeMetrics) {
	loop := NewLoop()
	n := newFakeNotifier()
	m := newFakeMetrics()
	base := []Option{WithNotifier(n), WithMetrics(m), WithShutdownTimeout(0)}
	return New(loop, append(base, opts...)...), loop, n, m
}

// ============================================================================
// End-to-end scenarios
// ============================================================================

func TestRunCleanLifecycle(t *testing.T) {
	o, loop, n, _ := newTestOrchestrator()

	var startups, shutdowns atomic.Int32
	started := make(chan struct{})

	done := runAsync(o,
		func(ctx context.Context) error {
			startups.Add(1)
			close(started)
			return nil
		},
		func(ctx context.Context) error {
			shutdowns.Add(1)
			return nil
		})

	waitClosed(t, started, "startup")
	n.send(t, syscall.SIGTERM)

	require.NoError(t, waitRun(t, done))
	assert.Equal(t, int32(1), startups.Load())
	assert.Equal(t, int32(1), shutdowns.Load())
	assert.Empty(t, loop.Tasks())

	notifies, stops := n.counts()
	assert.Equal(t, 1, notifies)
	assert.Equal(t, 1, stops)
}

func TestRunStartupFailureIsLoggedOnceAndSwallowed(t *testing.T) {
	logs := captureLogs(t, "INFO")
	o, _, n, m := newTestOrchestrator()

	var shutdowns atomic.Int32
	failed := make(chan struct{})

	done := runAsync(o,
		func(ctx context.Context) error {
			defer close(failed)
			return errors.New("missing key: endpoint")
		},
		func(ctx context.Context) error {
			shutdowns.Add(1)
			return nil
		})

	waitClosed(t, failed, "startup")
	n.send(t, syscall.SIGINT)

	require.NoError(t, waitRun(t, done))
	assert.Equal(t, 1, logs.count("Startup failed"))
	assert.Contains(t, logs.String(), `[ERROR] [lifecycle] Startup failed`)
	assert.Contains(t, logs.String(), `error="missing key: endpoint"`)
	assert.Equal(t, int32(1), shutdowns.Load())
	assert.Equal(t, 1, m.startupFailed)
	assert.Equal(t, []string{OutcomeOK}, m.outcomes(StartupTaskName))
}

func TestRunCancelsOutstandingTasksAfterShutdownOp(t *testing.T) {
	o, loop, n, m := newTestOrchestrator()

	var workers []*Task
	var workersMu sync.Mutex
	spawned := make(chan struct{})
	var cancelledDuringShutdown atomic.Bool

	done := runAsync(o,
		func(ctx context.Context) error {
			for _, name := range []string{"worker-1", "worker-2"} {
				w, err := loop.Go(ctx, name, func(ctx context.Context) error {
					<-ctx.Done()
					return ctx.Err()
				})
				if err != nil {
					return err
				}
				workersMu.Lock()
				workers = append(workers, w)
				workersMu.Unlock()
			}
			close(spawned)
			return nil
		},
		func(ctx context.Context) error {
			workersMu.Lock()
			defer workersMu.Unlock()
			for _, w := range workers {
				select {
				case <-w.Done():
					cancelledDuringShutdown.Store(true)
				default:
				}
			}
			return nil
		})

	waitClosed(t, spawned, "workers")
	n.send(t, syscall.SIGTERM)
	require.NoError(t, waitRun(t, done))

	assert.False(t, cancelledDuringShutdown.Load(), "workers must outlive the shutdown op")
	require.Len(t, workers, 2)
	for _, w := range workers {
		select {
		case <-w.Done():
		default:
			t.Fatalf("task %s still running after Run returned", w.Name())
		}
		assert.ErrorIs(t, w.Err(), context.Canceled)
	}
	assert.Equal(t, []int{2}, m.cancelled)
	assert.Equal(t, 1, m.durations)
}

func TestRunSignalDuringStartupCancelsIt(t *testing.T) {
	logs := captureLogs(t, "INFO")
	o, _, n, m := newTestOrchestrator()

	entered := make(chan struct{})
	done := runAsync(o,
		func(ctx context.Context) error {
			close(entered)
			<-ctx.Done()
			return ctx.Err()
		},
		func(ctx context.Context) error { return nil })

	waitClosed(t, entered, "startup")
	n.send(t, syscall.SIGTERM)
	require.NoError(t, waitRun(t, done))

	assert.Contains(t, logs.String(), "Startup cancelled by shutdown")
	assert.NotContains(t, logs.String(), "Startup failed")
	assert.Equal(t, []string{OutcomeCancelled}, m.outcomes(StartupTaskName))
	assert.Equal(t, []int{1}, m.cancelled)
}

// eagerNotifier delivers sig as soon as it is registered, before the loop
// goroutine has started serving callbacks.
type eagerNotifier struct {
	sig   os.Signal
	stops atomic.Int32
}

func (e *eagerNotifier) Notify(c chan<- os.Signal, _ ...os.Signal) { c <- e.sig }
func (e *eagerNotifier) Stop(chan<- os.Signal)                     { e.stops.Add(1) }

func TestRunSignalBeforeLoopServes(t *testing.T) {
	n := &eagerNotifier{sig: syscall.SIGTERM}
	m := newFakeMetrics()
	o := New(NewLoop(), WithNotifier(n), WithMetrics(m), WithShutdownTimeout(0))

	var shutdowns atomic.Int32
	done := runAsync(o,
		func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
		func(ctx context.Context) error {
			shutdowns.Add(1)
			return nil
		})

	require.NoError(t, waitRun(t, done))
	assert.Equal(t, int32(1), shutdowns.Load())
	assert.Equal(t, int32(1), n.stops.Load())
	assert.Equal(t, []string{OutcomeCancelled}, m.outcomes(StartupTaskName))
	assert.Equal(t, []int{1}, m.cancelled)
}

// ============================================================================
// Shutdown guarantees
// ============================================================================

func TestRunShutdownRunsOnceUnderRepeatedSignals(t *testing.T) {
	o, _, n, m := newTestOrchestrator()

	var shutdowns atomic.Int32
	inShutdown := make(chan struct{})
	release := make(chan struct{})

	done := runAsync(o,
		func(ctx context.Context) error { return nil },
		func(ctx context.Context) error {
			if shutdowns.Add(1) == 1 {
				close(inShutdown)
			}
			<-release
			return nil
		})

	n.send(t, syscall.SIGINT)
	waitClosed(t, inShutdown, "shutdown")
	n.send(t, syscall.SIGTERM)
	n.send(t, syscall.SIGINT)
	close(release)

	require.NoError(t, waitRun(t, done))
	assert.Equal(t, int32(1), shutdowns.Load())
	assert.Equal(t, []string{OutcomeOK}, m.outcomes(ShutdownTaskName))
}

func TestRunExcludesShutdownDriverFromDrain(t *testing.T) {
	o, loop, n, m := newTestOrchestrator()

	var driver *Task
	spawned := make(chan struct{})

	done := runAsync(o,
		func(ctx context.Context) error {
			_, err := loop.Go(ctx, "worker", func(ctx context.Context) error {
				<-ctx.Done()
				return ctx.Err()
			})
			close(spawned)
			return err
		},
		func(ctx context.Context) error {
			driver = CurrentTask(ctx)
			return nil
		})

	waitClosed(t, spawned, "worker")
	n.send(t, syscall.SIGTERM)
	require.NoError(t, waitRun(t, done))

	require.NotNil(t, driver)
	assert.Equal(t, ShutdownTaskName, driver.Name())
	assert.NoError(t, driver.Err())
	assert.Equal(t, []int{1}, m.cancelled, "only the worker is cancelled")
	assert.Equal(t, []string{OutcomeCancelled}, m.outcomes("worker"))
	assert.Equal(t, []string{OutcomeOK}, m.outcomes(ShutdownTaskName))
}

func TestRunShutdownFailureIsLoggedAndSwallowed(t *testing.T) {
	logs := captureLogs(t, "INFO")
	o, loop, n, m := newTestOrchestrator()

	var worker *Task
	spawned := make(chan struct{})

	done := runAsync(o,
		func(ctx context.Context) error {
			var err error
			worker, err = loop.Go(ctx, "worker", func(ctx context.Context) error {
				<-ctx.Done()
				return ctx.Err()
			})
			close(spawned)
			return err
		},
		func(ctx context.Context) error {
			return errors.New("wallet close failed")
		})

	waitClosed(t, spawned, "worker")
	n.send(t, syscall.SIGTERM)

	require.NoError(t, waitRun(t, done))
	assert.Equal(t, 1, logs.count("Shutdown failed"))
	assert.Equal(t, 1, m.shutdownFailed)
	assert.ErrorIs(t, worker.Err(), context.Canceled)
}

func TestRunShutdownDeadlineCallsExit(t *testing.T) {
	logs := captureLogs(t, "INFO")

	release := make(chan struct{})
	var code atomic.Int32
	code.Store(-1)
	var exitOnce sync.Once

	o, loop, n, _ := newTestOrchestrator(
		WithShutdownTimeout(50*time.Millisecond),
		WithExitFunc(func(c int) {
			code.Store(int32(c))
			exitOnce.Do(func() { close(release) })
		}),
	)

	spawned := make(chan struct{})
	done := runAsync(o,
		func(ctx context.Context) error {
			_, err := loop.Go(ctx, "stubborn", func(ctx context.Context) error {
				<-release
				return nil
			})
			close(spawned)
			return err
		},
		func(ctx context.Context) error { return nil })

	waitClosed(t, spawned, "stubborn task")
	n.send(t, syscall.SIGTERM)

	require.NoError(t, waitRun(t, done))
	assert.Equal(t, int32(1), code.Load())
	assert.Contains(t, logs.String(), "Shutdown deadline exceeded")
}

func TestRunShutdownWithinDeadlineDoesNotExit(t *testing.T) {
	var exited atomic.Bool
	o, _, n, _ := newTestOrchestrator(
		WithShutdownTimeout(time.Second),
		WithExitFunc(func(int) { exited.Store(true) }),
	)

	done := runAsync(o,
		func(ctx context.Context) error { return nil },
		func(ctx context.Context) error { return nil })

	n.send(t, syscall.SIGTERM)
	require.NoError(t, waitRun(t, done))

	time.Sleep(20 * time.Millisecond)
	assert.False(t, exited.Load())
}

func TestRunLoopRejectsTasksAfterSnapshot(t *testing.T) {
	o, loop, n, _ := newTestOrchestrator()

	lateErr := make(chan error, 1)
	spawned := make(chan struct{})

	done := runAsync(o,
		func(ctx context.Context) error {
			_, err := loop.Go(ctx, "spawner", func(ctx context.Context) error {
				<-ctx.Done()
				_, err := loop.Go(ctx, "late", func(context.Context) error { return nil })
				lateErr <- err
				return ctx.Err()
			})
			close(spawned)
			return err
		},
		func(ctx context.Context) error { return nil })

	waitClosed(t, spawned, "spawner")
	n.send(t, syscall.SIGTERM)
	require.NoError(t, waitRun(t, done))

	assert.ErrorIs(t, <-lateErr, ErrLoopClosed)
}

// ============================================================================
// Startup ordering and robustness
// ============================================================================

func TestRunSchedulesStartupBeforeRunning(t *testing.T) {
	o, loop, n, _ := newTestOrchestrator()

	release := make(chan struct{})
	done := runAsync(o,
		func(ctx context.Context) error {
			<-release
			return nil
		},
		func(ctx context.Context) error { return nil })

	waitClosed(t, loop.Running(), "loop running")

	var names []string
	for _, task := range loop.Tasks() {
		names = append(names, task.Name())
	}
	assert.Equal(t, []string{StartupTaskName}, names)

	close(release)
	n.send(t, syscall.SIGTERM)
	require.NoError(t, waitRun(t, done))
}

func TestRunRecoversStartupPanic(t *testing.T) {
	logs := captureLogs(t, "INFO")
	o, _, n, m := newTestOrchestrator()

	done := runAsync(o,
		func(ctx context.Context) error { panic("kaboom") },
		func(ctx context.Context) error { return nil })

	n.send(t, syscall.SIGTERM)
	require.NoError(t, waitRun(t, done))

	assert.Equal(t, 1, logs.count("Startup failed"))
	assert.Contains(t, logs.String(), "kaboom")
	assert.Equal(t, 1, m.startupFailed)
}

func TestRunRecoversShutdownPanic(t *testing.T) {
	logs := captureLogs(t, "INFO")
	o, _, n, _ := newTestOrchestrator()

	done := runAsync(o,
		func(ctx context.Context) error { return nil },
		func(ctx context.Context) error { panic("shutdown kaboom") })

	n.send(t, syscall.SIGTERM)
	require.NoError(t, waitRun(t, done))
	assert.Equal(t, 1, logs.count("Shutdown failed"))
}

func TestRunTwiceReturnsErrAlreadyRun(t *testing.T) {
	o, _, n, _ := newTestOrchestrator()
	noop := func(context.Context) error { return nil }

	done := runAsync(o, noop, noop)
	n.send(t, syscall.SIGTERM)
	require.NoError(t, waitRun(t, done))

	assert.ErrorIs(t, o.Run(noop, noop), ErrAlreadyRun)
}

func TestRunOnRunningLoop(t *testing.T) {
	loop := NewLoop()
	loopDone := make(chan error, 1)
	go func() { loopDone <- loop.Run() }()
	waitClosed(t, loop.Running(), "loop running")

	o := New(loop, WithNotifier(newFakeNotifier()))
	noop := func(context.Context) error { return nil }
	assert.ErrorIs(t, o.Run(noop, noop), ErrLoopRunning)

	loop.Stop()
	require.NoError(t, <-loopDone)

	o2 := New(loop, WithNotifier(newFakeNotifier()))
	assert.ErrorIs(t, o2.Run(noop, noop), ErrLoopStopped)
}

func TestRunReturnsWhenLoopStoppedDirectly(t *testing.T) {
	o, loop, n, _ := newTestOrchestrator()

	var shutdowns atomic.Int32
	done := runAsync(o,
		func(ctx context.Context) error {
			loop.Stop()
			return nil
		},
		func(ctx context.Context) error {
			shutdowns.Add(1)
			return nil
		})

	require.NoError(t, waitRun(t, done))
	assert.Zero(t, shutdowns.Load())

	_, stops := n.counts()
	assert.Equal(t, 1, stops)
}

// ============================================================================
// Options
// ============================================================================

func TestOptions(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		o := New(NewLoop())
		assert.ElementsMatch(t, DefaultSignals(), o.signals)
		assert.Zero(t, o.shutdownTimeout)
		assert.NotNil(t, o.exit)
		assert.IsType(t, nopMetrics{}, o.metrics)
		assert.IsType(t, osNotifier{}, o.notifier)
		assert.NotEmpty(t, o.RunID())
	})

	t.Run("Overrides", func(t *testing.T) {
		n := newFakeNotifier()
		o := New(NewLoop(),
			WithSignals(syscall.SIGHUP),
			WithNotifier(n),
			WithShutdownTimeout(time.Second),
			WithRunID("run-7"),
		)
		assert.Equal(t, []os.Signal{syscall.SIGHUP}, o.signals)
		assert.Same(t, n, o.notifier)
		assert.Equal(t, time.Second, o.shutdownTimeout)
		assert.Equal(t, "run-7", o.RunID())
	})

	t.Run("InvalidValuesIgnored", func(t *testing.T) {
		o := New(NewLoop(),
			WithSignals(),
			WithNotifier(nil),
			WithShutdownTimeout(-time.Second),
			WithExitFunc(nil),
			WithMetrics(nil),
			WithRunID(""),
		)
		assert.ElementsMatch(t, DefaultSignals(), o.signals)
		assert.IsType(t, osNotifier{}, o.notifier)
		assert.Zero(t, o.shutdownTimeout)
		assert.NotNil(t, o.exit)
		assert.IsType(t, nopMetrics{}, o.metrics)
		assert.NotEmpty(t, o.RunID())
	})

	t.Run("NotifierReceivesConfiguredSignals", func(t *testing.T) {
		o, _, n, _ := newTestOrchestrator(WithSignals(syscall.SIGHUP))
		noop := func(context.Context) error { return nil }
		done := runAsync(o, noop, noop)

		n.send(t, syscall.SIGHUP)
		require.NoError(t, waitRun(t, done))

		n.mu.Lock()
		defer n.mu.Unlock()
		assert.Equal(t, []os.Signal{syscall.SIGHUP}, n.sigs)
	})
}
