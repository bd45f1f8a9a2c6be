package lifecycle

import (
	"context"
	"errors"
	"time"
)

// Task outcomes reported to Metrics.TaskFinished.
const (
	OutcomeOK        = "ok"
	OutcomeError     = "error"
	OutcomeCancelled = "cancelled"
	OutcomePanic     = "panic"
)

// Metrics receives lifecycle observations. Pass nil to WithMetrics (or omit
// the option) to disable collection.
type Metrics interface {
	// TaskStarted is called when the loop admits a task.
	TaskStarted(name string)

	// TaskFinished is called when a task returns, with one of the Outcome
	// constants.
	TaskFinished(name, outcome string)

	// StartupFailed is called when the startup op fails.
	StartupFailed()

	// ShutdownFailed is called when the shutdown op fails.
	ShutdownFailed()

	// TasksCancelled records how many outstanding tasks ended cancelled
	// during the drain.
	TasksCancelled(n int)

	// ShutdownDuration records the time from signal to loop stop.
	ShutdownDuration(d time.Duration)
}

type nopMetrics struct{}

func (nopMetrics) TaskStarted(string)             {}
func (nopMetrics) TaskFinished(string, string)    {}
func (nopMetrics) StartupFailed()                 {}
func (nopMetrics) ShutdownFailed()                {}
func (nopMetrics) TasksCancelled(int)             {}
func (nopMetrics) ShutdownDuration(time.Duration) {}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ErrTaskPanicked):
		return OutcomePanic
	case errors.Is(err, context.Canceled):
		return OutcomeCancelled
	default:
		return OutcomeError
	}
}
