package logger

import "log/slog"

// Standard field keys. Use these instead of ad-hoc strings so that log
// queries work across components.
const (
	KeyTraceID = "trace_id"
	KeySpanID  = "span_id"

	// Lifecycle
	KeyRunID     = "run_id"
	KeyTask      = "task"
	KeyTaskID    = "task_id"
	KeyOutcome   = "outcome"
	KeySignal    = "signal"
	KeyPending   = "pending"
	KeyCancelled = "cancelled"
	KeyTimeout   = "timeout"

	// Application
	KeyComponent = "component"
	KeyTransport = "transport"
	KeyAddress   = "address"
	KeyEndpoint  = "endpoint"
	KeyWallet    = "wallet"
	KeyMessageID = "message_id"
	KeyBytes     = "bytes"

	KeyDurationMs = "duration_ms"
	KeyError      = "error"
)

// Err returns an error attribute; a nil error yields an empty attribute
// that handlers drop.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Task returns the task name attribute.
func Task(name string) slog.Attr {
	return slog.String(KeyTask, name)
}

// TaskID returns the task ID attribute.
func TaskID(id string) slog.Attr {
	return slog.String(KeyTaskID, id)
}

// Transport returns the transport attribute.
func Transport(kind string) slog.Attr {
	return slog.String(KeyTransport, kind)
}

// Address returns the network address attribute.
func Address(addr string) slog.Attr {
	return slog.String(KeyAddress, addr)
}

// DurationMs returns a duration attribute in milliseconds.
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}
