package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys for filebox spans.
const (
	AttrClientAddr = "client.address"
	AttrSessionID  = "session.id"
	AttrUsername   = "user.name"
	AttrCommand    = "filebox.command"
	AttrArgument   = "filebox.argument"
	AttrOutcome    = "filebox.outcome"
	AttrPath       = "fs.path"
	AttrBytes      = "fs.bytes"
	AttrEntries    = "filebox.entries"
)

// Span names.
const (
	SpanSession = "filebox.session"
	SpanAuth    = "filebox.auth"
	// Command spans are named "filebox.<verb>".
	spanCommandPrefix = "filebox."
)

// StartSessionSpan starts the root span of one connection.
func StartSessionSpan(ctx context.Context, sessionID, clientAddr string) (context.Context, trace.Span) {
	return StartSpan(ctx, SpanSession,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String(AttrSessionID, sessionID),
			attribute.String(AttrClientAddr, clientAddr),
		),
	)
}

// StartCommandSpan starts a child span for one command.
func StartCommandSpan(ctx context.Context, verb, argument string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{attribute.String(AttrCommand, verb)}
	if argument != "" {
		attrs = append(attrs, attribute.String(AttrArgument, argument))
	}
	return StartSpan(ctx, spanCommandPrefix+verb, trace.WithAttributes(attrs...))
}

// Outcome returns the command outcome attribute.
func Outcome(o string) attribute.KeyValue { return attribute.String(AttrOutcome, o) }

// Path returns a virtual path attribute.
func Path(p string) attribute.KeyValue { return attribute.String(AttrPath, p) }

// Bytes returns a transferred byte count attribute.
func Bytes(n int64) attribute.KeyValue { return attribute.Int64(AttrBytes, n) }

// Entries returns an entry count attribute.
func Entries(n int) attribute.KeyValue { return attribute.Int(AttrEntries, n) }

// Username returns the authenticated user attribute.
func Username(name string) attribute.KeyValue { return attribute.String(AttrUsername, name) }
