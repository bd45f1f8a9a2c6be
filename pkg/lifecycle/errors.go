package lifecycle

import "errors"

var (
	// ErrAlreadyRun is returned by Orchestrator.Run on a second call.
	// A run cannot be restarted.
	ErrAlreadyRun = errors.New("lifecycle: orchestrator already run")

	// ErrLoopRunning is returned when Run is called on a loop that is
	// already running.
	ErrLoopRunning = errors.New("lifecycle: loop already running")

	// ErrLoopStopped is returned when Run is called on a loop that has
	// already completed a run.
	ErrLoopStopped = errors.New("lifecycle: loop already stopped")

	// ErrLoopClosed is returned by Loop.Go once the loop no longer admits
	// tasks, i.e. after the shutdown snapshot or after the loop stopped.
	ErrLoopClosed = errors.New("lifecycle: loop closed to new tasks")

	// ErrTaskPanicked wraps the value recovered from a panicking task.
	ErrTaskPanicked = errors.New("lifecycle: task panicked")
)
