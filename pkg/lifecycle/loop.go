package lifecycle

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/marmos91/agentd/internal/logger"
)

const (
	stateIdle int32 = iota
	stateRunning
	stateStopped
)

// Loop is the scheduling context that owns every task of the process.
//
// Admission follows the WaitGroup contract: Go holds admit shared while it
// calls wg.Add, and closing the loop takes admit exclusively, so wg.Add is
// never called concurrently with wg.Wait.
//
// A Loop runs once. It cannot be restarted after it has stopped.
type Loop struct {
	admit  sync.RWMutex
	closed atomic.Bool
	wg     sync.WaitGroup

	mu      sync.Mutex
	tasks   map[string]*Task
	queue   []func()
	stopped bool

	wake     chan struct{}
	running  chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
	state    atomic.Int32

	metrics Metrics
}

// NewLoop creates an idle loop.
func NewLoop() *Loop {
	return &Loop{
		tasks:   make(map[string]*Task),
		wake:    make(chan struct{}, 1),
		running: make(chan struct{}),
		stopCh:  make(chan struct{}),
		metrics: nopMetrics{},
	}
}

// Go starts fn as a task named name.
//
// The task context carries the values of ctx but not its cancellation: a
// task is cancelled only through Task.Cancel or by the loop when it stops.
// Go returns ErrLoopClosed once the loop no longer admits tasks.
func (l *Loop) Go(ctx context.Context, name string, fn TaskFunc) (*Task, error) {
	if l.closed.Load() {
		return nil, ErrLoopClosed
	}

	l.admit.RLock()
	defer l.admit.RUnlock()

	// Re-check under the lock: the loop may have closed in between.
	if l.closed.Load() {
		return nil, ErrLoopClosed
	}

	if ctx == nil {
		ctx = context.Background()
	}

	t := &Task{
		id:   uuid.NewString(),
		name: name,
		done: make(chan struct{}),
	}

	tctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	t.cancel = cancel
	tctx = context.WithValue(tctx, taskKey{}, t)
	tctx = logger.WithContext(tctx, logger.FromContext(ctx).WithTask(name, t.id))

	l.wg.Add(1)
	l.mu.Lock()
	l.tasks[t.id] = t
	l.mu.Unlock()

	l.metrics.TaskStarted(name)
	go l.runTask(tctx, t, fn)

	return t, nil
}

func (l *Loop) runTask(ctx context.Context, t *Task, fn TaskFunc) {
	var err error
	defer func() {
		l.mu.Lock()
		delete(l.tasks, t.id)
		l.mu.Unlock()

		t.cancel()
		t.finish(err)
		l.metrics.TaskFinished(t.name, outcomeOf(err))
		l.wg.Done()
	}()

	err = safeCall(ctx, fn)
}

// safeCall runs fn, converting a panic into an ErrTaskPanicked error.
func safeCall(ctx context.Context, fn TaskFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrTaskPanicked, r)
			logger.DebugCtx(ctx, "Recovered panic", logger.Err(err), "stack", string(debug.Stack()))
		}
	}()
	return fn(ctx)
}

// Tasks returns the live tasks in no particular order.
func (l *Loop) Tasks() []*Task {
	return l.collect(nil)
}

func (l *Loop) collect(exclude *Task) []*Task {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]*Task, 0, len(l.tasks))
	for _, t := range l.tasks {
		if t != exclude {
			out = append(out, t)
		}
	}
	return out
}

// closeAndSnapshot closes the loop to new tasks and returns every live task
// except exclude. Every task admitted before the call is in the result
// unless it has already returned.
func (l *Loop) closeAndSnapshot(exclude *Task) []*Task {
	l.close()
	return l.collect(exclude)
}

// close stops admission and waits for in-flight Go calls to register.
func (l *Loop) close() {
	l.closed.Store(true)
	l.admit.Lock()
	//nolint:staticcheck // empty critical section is the barrier
	l.admit.Unlock()
}

// Call schedules fn to run on the loop goroutine and returns immediately.
// It reports false if the loop has stopped. Callbacks still queued when the
// loop stops are discarded. fn must not block.
func (l *Loop) Call(fn func()) bool {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Stop asks the loop to stop. It is safe to call more than once and from
// any goroutine, including tasks.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		l.mu.Lock()
		l.stopped = true
		l.mu.Unlock()
		close(l.stopCh)
	})
}

// Running is closed once the loop goroutine has started processing.
func (l *Loop) Running() <-chan struct{} { return l.running }

// Stopped is closed once Stop has been called.
func (l *Loop) Stopped() <-chan struct{} { return l.stopCh }

// Run runs the loop on the calling goroutine until Stop is called. Before
// returning it closes admission, cancels the tasks that are still live and
// waits for every task to return.
func (l *Loop) Run() error {
	if err := l.claim(); err != nil {
		return err
	}
	l.serve()
	return nil
}

func (l *Loop) claim() error {
	if l.state.CompareAndSwap(stateIdle, stateRunning) {
		return nil
	}
	if l.state.Load() == stateRunning {
		return ErrLoopRunning
	}
	return ErrLoopStopped
}

func (l *Loop) serve() {
	close(l.running)

	for {
		select {
		case <-l.wake:
			l.runCallbacks()
		case <-l.stopCh:
			l.drainAll()
			l.state.Store(stateStopped)
			return
		}
	}
}

func (l *Loop) runCallbacks() {
	l.mu.Lock()
	queue := l.queue
	l.queue = nil
	l.mu.Unlock()

	for _, fn := range queue {
		l.invoke(fn)
	}
}

func (l *Loop) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Loop callback panicked", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
		}
	}()
	fn()
}

func (l *Loop) drainAll() {
	l.close()
	for _, t := range l.Tasks() {
		t.Cancel()
	}
	l.wg.Wait()
}
