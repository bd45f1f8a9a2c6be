package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/marmos91/agentd/internal/logger"
)

// recordSpans installs an in-memory span recorder and restores the no-op
// tracer on cleanup.
func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	UseTracerProvider(tp)
	t.Cleanup(func() {
		setTracer(nil, false)
		_ = tp.Shutdown(context.Background())
	})
	return rec
}

func attrMap(kvs []attribute.KeyValue) map[string]attribute.Value {
	m := make(map[string]attribute.Value, len(kvs))
	for _, kv := range kvs {
		m[string(kv.Key)] = kv.Value
	}
	return m
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.False(t, cfg.Enabled)
	assert.Equal(t, Service{Name: "agentd", Version: "dev"}, cfg.Service)
	assert.Equal(t, "localhost:4317", cfg.Endpoint)
	assert.True(t, cfg.Insecure)
	assert.Equal(t, 1.0, cfg.SampleRate)
}

func TestInitDisabled(t *testing.T) {
	ctx := context.Background()

	shutdown, err := Init(ctx, DefaultConfig())
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	assert.NoError(t, shutdown(ctx))
	assert.False(t, IsEnabled())
}

func TestSamplerFor(t *testing.T) {
	assert.Contains(t, samplerFor(1.0).Description(), "AlwaysOnSampler")
	assert.Contains(t, samplerFor(1.5).Description(), "AlwaysOnSampler")
	assert.Contains(t, samplerFor(0).Description(), "AlwaysOffSampler")
	assert.Contains(t, samplerFor(0.25).Description(), "TraceIDRatioBased")
}

func TestTracerReturnsNoOp(t *testing.T) {
	setTracer(nil, false)

	tr := Tracer()
	require.NotNil(t, tr)

	_, span := tr.Start(context.Background(), "noop")
	assert.False(t, span.SpanContext().IsValid())
	span.End()
}

func TestNoOpHelpersDoNotPanic(t *testing.T) {
	setTracer(nil, false)
	ctx := context.Background()

	require.NotPanics(t, func() {
		newCtx, span := StartSpan(ctx, "test.operation")
		require.NotNil(t, newCtx)
		RecordError(newCtx, errors.New("boom"))
		RecordError(newCtx, nil)
		SetAttributes(newCtx, TaskName("x"))
		span.End()
	})
	assert.Empty(t, TraceID(ctx))
	assert.Empty(t, SpanID(ctx))
}

func TestServiceAttributes(t *testing.T) {
	attrs := attrMap(serviceAttributes(Service{Name: "agentd", Version: "1.0"}))
	assert.Equal(t, "agentd", attrs["service.name"].AsString())
	assert.NotContains(t, attrs, AttrLabel)

	attrs = attrMap(serviceAttributes(Service{Name: "agentd", Label: "alice"}))
	assert.Equal(t, "alice", attrs[AttrLabel].AsString())
}

func TestStartTaskSpan(t *testing.T) {
	rec := recordSpans(t)
	assert.True(t, IsEnabled())

	ctx, span := StartTaskSpan(context.Background(), SpanShutdown, "shutdown", "id-1", Signal("SIGTERM"))
	assert.NotEmpty(t, TraceID(ctx))
	assert.NotEmpty(t, SpanID(ctx))
	SetAttributes(ctx, Pending(3), Cancelled(2))
	RecordError(ctx, errors.New("drain failed"))
	span.End()

	ended := rec.Ended()
	require.Len(t, ended, 1)
	s := ended[0]
	assert.Equal(t, SpanShutdown, s.Name())
	assert.Equal(t, codes.Error, s.Status().Code)

	attrs := attrMap(s.Attributes())
	assert.Equal(t, "shutdown", attrs[AttrTaskName].AsString())
	assert.Equal(t, "id-1", attrs[AttrTaskID].AsString())
	assert.Equal(t, "SIGTERM", attrs[AttrSignal].AsString())
	assert.Equal(t, int64(3), attrs[AttrPending].AsInt64())
	assert.Equal(t, int64(2), attrs[AttrCancelled].AsInt64())
	require.Len(t, s.Events(), 1)
	assert.Equal(t, "exception", s.Events()[0].Name)
}

func TestStartTaskSpanTagsLogContext(t *testing.T) {
	_ = recordSpans(t)

	base := logger.WithContext(context.Background(), logger.NewLogContext("run-1"))
	ctx, span := StartTaskSpan(base, SpanStartup, "startup", "id-2")
	defer span.End()

	lc := logger.FromContext(ctx)
	require.NotNil(t, lc)
	assert.Equal(t, "run-1", lc.RunID)
	assert.Equal(t, TraceID(ctx), lc.TraceID)
	assert.Equal(t, SpanID(ctx), lc.SpanID)
	assert.Empty(t, logger.FromContext(base).TraceID)
}

func TestStartTransportSpan(t *testing.T) {
	rec := recordSpans(t)

	parent, root := StartSpan(context.Background(), SpanStart)
	ctx, span := StartTransportSpan(parent, "http", "127.0.0.1:8020", MessageID("m-1"))
	SetAttributes(ctx, Wallet("memory"))
	span.End()
	root.End()

	ended := rec.Ended()
	require.Len(t, ended, 2)
	s := ended[0]
	assert.Equal(t, SpanInbound, s.Name())
	assert.Equal(t, trace.SpanKindServer, s.SpanKind())
	assert.Equal(t, ended[1].SpanContext().SpanID(), s.Parent().SpanID())

	attrs := attrMap(s.Attributes())
	assert.Equal(t, "http", attrs[AttrTransport].AsString())
	assert.Equal(t, "127.0.0.1:8020", attrs[AttrAddress].AsString())
	assert.Equal(t, "m-1", attrs[AttrMessageID].AsString())
	assert.Equal(t, "memory", attrs[AttrWallet].AsString())
}

func TestParseProfileType(t *testing.T) {
	for _, name := range []string{"cpu", "alloc_objects", "alloc_space", "inuse_objects", "inuse_space",
		"goroutines", "mutex_count", "mutex_duration", "block_count", "block_duration"} {
		_, err := parseProfileType(name)
		assert.NoError(t, err, name)
	}

	_, err := parseProfileType("heap")
	assert.Error(t, err)
}

func TestInitProfilingDisabled(t *testing.T) {
	shutdown, err := InitProfiling(ProfilingConfig{Enabled: false})
	require.NoError(t, err)
	assert.NoError(t, shutdown())
	assert.False(t, IsProfilingEnabled())
}

func TestInitProfilingRejectsUnknownType(t *testing.T) {
	_, err := InitProfiling(ProfilingConfig{Enabled: true, ProfileTypes: []string{"nope"}})
	assert.Error(t, err)
	assert.False(t, IsProfilingEnabled())
}
