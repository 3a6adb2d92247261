package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	UseProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	t.Cleanup(func() {
		_, _ = Init(context.Background(), Config{})
	})
	return rec
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "fileboxd", cfg.ServiceName)
	assert.Equal(t, "localhost:4317", cfg.Endpoint)
	assert.Equal(t, 1.0, cfg.SampleRate)
}

func TestInitDisabled(t *testing.T) {
	ctx := context.Background()
	shutdown, err := Init(ctx, Config{})
	require.NoError(t, err)
	assert.NoError(t, shutdown(ctx))
	assert.False(t, IsEnabled())

	// Helpers are safe against the no-op tracer.
	ctx, span := StartCommandSpan(ctx, "ls", "")
	AddEvent(ctx, "noop")
	RecordError(ctx, errors.New("ignored"))
	assert.Empty(t, TraceID(ctx))
	span.End()
}

func TestSampleRateClamped(t *testing.T) {
	assert.Equal(t, 0.0, sampleRate(-1))
	assert.Equal(t, 0.5, sampleRate(0.5))
	assert.Equal(t, 1.0, sampleRate(3))
}

func TestCommandSpanIsChildOfSession(t *testing.T) {
	rec := recordSpans(t)
	assert.True(t, IsEnabled())

	ctx, session := StartSessionSpan(context.Background(), "sess-1", "127.0.0.1:5000")
	cmdCtx, cmd := StartCommandSpan(ctx, "download", "a.txt")
	SetAttributes(cmdCtx, Path("/a.txt"), Bytes(12), Outcome("ok"))
	assert.NotEmpty(t, TraceID(cmdCtx))
	cmd.End()
	session.End()

	spans := rec.Ended()
	require.Len(t, spans, 2)
	child, root := spans[0], spans[1]

	assert.Equal(t, "filebox.download", child.Name())
	assert.Equal(t, SpanSession, root.Name())
	assert.Equal(t, root.SpanContext().SpanID(), child.Parent().SpanID())

	attrs := map[string]any{}
	for _, kv := range child.Attributes() {
		attrs[string(kv.Key)] = kv.Value.AsInterface()
	}
	assert.Equal(t, "download", attrs[AttrCommand])
	assert.Equal(t, "a.txt", attrs[AttrArgument])
	assert.Equal(t, "/a.txt", attrs[AttrPath])
	assert.Equal(t, int64(12), attrs[AttrBytes])
}

func TestRecordErrorMarksSpan(t *testing.T) {
	rec := recordSpans(t)

	ctx, span := StartCommandSpan(context.Background(), "cd", "missing")
	RecordError(ctx, errors.New("no such file or directory"))
	RecordError(ctx, nil)
	span.End()

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Len(t, spans[0].Events(), 1)
}

func TestParseProfileTypes(t *testing.T) {
	types, err := ParseProfileTypes(DefaultProfileTypes)
	require.NoError(t, err)
	assert.Len(t, types, len(DefaultProfileTypes))

	_, err = ParseProfileTypes([]string{"cpu", "heap"})
	assert.ErrorContains(t, err, "heap")
}

func TestInitProfilingDisabled(t *testing.T) {
	stop, err := InitProfiling(ProfilingConfig{})
	require.NoError(t, err)
	assert.False(t, IsProfilingEnabled())
	assert.NoError(t, stop())
}
