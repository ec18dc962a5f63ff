package otelhelper

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SetError marks the span failed, recording err together with any routing
// attributes not already on the span.
func SetError(span trace.Span, err error, attrs ...attribute.KeyValue) {
	span.RecordError(err, trace.WithAttributes(attrs...))
	span.SetStatus(codes.Error, err.Error())
}

// SetOutcome annotates the span with the traversal a successful routing call
// resolved to and the aggregate status it left the document in.
func SetOutcome(span trace.Span, instanceID, status string) {
	span.SetAttributes(
		attribute.String(InstanceIDKey, instanceID),
		attribute.String(StatusKey, status),
	)
}
