package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/marmos91/agentd/internal/logger"
)

// Attribute keys for lifecycle and application spans.
const (
	AttrLabel     = "agentd.label"
	AttrRunID     = "agentd.run_id"
	AttrTaskName  = "agentd.task.name"
	AttrTaskID    = "agentd.task.id"
	AttrSignal    = "agentd.signal"
	AttrPending   = "agentd.shutdown.pending"
	AttrCancelled = "agentd.shutdown.cancelled"
	AttrTransport = "agentd.transport"
	AttrAddress   = "net.address"
	AttrMessageID = "agentd.message.id"
	AttrWallet    = "agentd.wallet.type"
)

// Span names.
const (
	SpanStartup      = "lifecycle.startup"
	SpanShutdown     = "lifecycle.shutdown"
	SpanShutdownOp   = "lifecycle.shutdown.op"
	SpanDrain        = "lifecycle.drain"
	SpanSetup        = "conductor.setup"
	SpanStart        = "conductor.start"
	SpanStop         = "conductor.stop"
	SpanInbound      = "transport.inbound"
	SpanWalletWrite  = "wallet.put"
	SpanWalletDelete = "wallet.delete"
)

// RunID returns an attribute for the orchestration run ID.
func RunID(id string) attribute.KeyValue {
	return attribute.String(AttrRunID, id)
}

// TaskName returns an attribute for a loop task name.
func TaskName(name string) attribute.KeyValue {
	return attribute.String(AttrTaskName, name)
}

// TaskID returns an attribute for a loop task ID.
func TaskID(id string) attribute.KeyValue {
	return attribute.String(AttrTaskID, id)
}

// Signal returns an attribute for the signal that triggered shutdown.
func Signal(name string) attribute.KeyValue {
	return attribute.String(AttrSignal, name)
}

// Pending returns an attribute for the size of the outstanding task set.
func Pending(n int) attribute.KeyValue {
	return attribute.Int(AttrPending, n)
}

// Cancelled returns an attribute for the number of tasks that ended cancelled.
func Cancelled(n int) attribute.KeyValue {
	return attribute.Int(AttrCancelled, n)
}

// Transport returns an attribute for a transport kind (http, ws, ...).
func Transport(kind string) attribute.KeyValue {
	return attribute.String(AttrTransport, kind)
}

// Address returns an attribute for a network address.
func Address(addr string) attribute.KeyValue {
	return attribute.String(AttrAddress, addr)
}

// MessageID returns an attribute for an inbound message ID.
func MessageID(id string) attribute.KeyValue {
	return attribute.String(AttrMessageID, id)
}

// Wallet returns an attribute for the wallet backend.
func Wallet(kind string) attribute.KeyValue {
	return attribute.String(AttrWallet, kind)
}

// StartTaskSpan starts a span for a loop task. When ctx carries a
// logger.LogContext, the returned context carries a copy tagged with the
// new trace and span IDs so task logs can be joined with traces.
func StartTaskSpan(ctx context.Context, spanName, taskName, taskID string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append([]attribute.KeyValue{TaskName(taskName), TaskID(taskID)}, attrs...)
	ctx, span := StartSpan(ctx, spanName, trace.WithAttributes(attrs...))
	if lc := logger.FromContext(ctx); lc != nil && span.SpanContext().IsValid() {
		ctx = logger.WithContext(ctx, lc.WithTrace(TraceID(ctx), SpanID(ctx)))
	}
	return ctx, span
}

// StartTransportSpan starts a server span for an inbound transport request.
func StartTransportSpan(ctx context.Context, kind, addr string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append([]attribute.KeyValue{Transport(kind), Address(addr)}, attrs...)
	return StartSpan(ctx, SpanInbound, trace.WithSpanKind(trace.SpanKindServer), trace.WithAttributes(attrs...))
}
