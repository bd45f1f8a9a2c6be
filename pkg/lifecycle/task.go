package lifecycle

import (
	"context"
	"sync"
)

// TaskFunc is the body of a task. It must return once ctx is cancelled.
type TaskFunc func(ctx context.Context) error

// Task is a goroutine tracked by a Loop.
type Task struct {
	id     string
	name   string
	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

type taskKey struct{}

// CurrentTask returns the task whose context ctx derives from, or nil.
func CurrentTask(ctx context.Context) *Task {
	if ctx == nil {
		return nil
	}
	t, _ := ctx.Value(taskKey{}).(*Task)
	return t
}

// ID returns the task's unique identifier.
func (t *Task) ID() string { return t.id }

// Name returns the name the task was started with.
func (t *Task) Name() string { return t.name }

// Done is closed when the task function has returned.
func (t *Task) Done() <-chan struct{} { return t.done }

// Cancel cancels the task's context. It does not wait for the task.
func (t *Task) Cancel() { t.cancel() }

// Err returns the error the task returned. It is nil until Done is closed.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Wait blocks until the task is done or ctx is cancelled, and returns the
// task's error or ctx's error.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Task) finish(err error) {
	t.mu.Lock()
	t.err = err
	t.mu.Unlock()
	close(t.done)
}
