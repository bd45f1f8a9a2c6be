package lifecycle

import (
	"os"
	"time"
)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSignals sets the termination signals. An empty list keeps the default
// (SIGINT and SIGTERM).
func WithSignals(sig ...os.Signal) Option {
	return func(o *Orchestrator) {
		if len(sig) > 0 {
			o.signals = sig
		}
	}
}

// WithNotifier replaces the os/signal backed notifier.
func WithNotifier(n Notifier) Option {
	return func(o *Orchestrator) {
		if n != nil {
			o.notifier = n
		}
	}
}

// WithShutdownTimeout bounds the shutdown op plus the drain. When the
// deadline passes the exit function is called with status 1. Zero disables
// the deadline.
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d >= 0 {
			o.shutdownTimeout = d
		}
	}
}

// WithExitFunc replaces os.Exit as the escalation used when the shutdown
// deadline passes.
func WithExitFunc(exit func(code int)) Option {
	return func(o *Orchestrator) {
		if exit != nil {
			o.exit = exit
		}
	}
}

// WithMetrics sets the metrics sink. nil disables collection.
func WithMetrics(m Metrics) Option {
	return func(o *Orchestrator) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithRunID sets the run identifier attached to every log record and span
// of the run. A random UUID is used otherwise.
func WithRunID(id string) Option {
	return func(o *Orchestrator) {
		if id != "" {
			o.runID = id
		}
	}
}
