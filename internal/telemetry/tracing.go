// Package telemetry wraps OpenTelemetry span handling for pqchat services.
//
// Spans go to the globally registered provider. With no SDK installed they
// are no-ops, so services trace unconditionally.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "pqchat"

// SpanEnder finishes a span, recording err when non-nil.
type SpanEnder func(err error)

// StartSpan starts an internal span named name.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, SpanEnder) {
	opts := []trace.SpanStartOption{trace.WithSpanKind(trace.SpanKindInternal)}
	if len(attrs) > 0 {
		opts = append(opts, trace.WithAttributes(attrs...))
	}
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, name, opts...)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}
}

// Peer tags a span with the remote user id.
func Peer(id string) attribute.KeyValue { return attribute.String("pqchat.peer", id) }

// Conversation tags a span with the conversation id.
func Conversation(id string) attribute.KeyValue {
	return attribute.String("pqchat.conversation", id)
}
