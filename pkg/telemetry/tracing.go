// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StartSpan creates a new span from the context using the global tracer.
//
// Description:
//
//	Convenience wrapper that uses otel.Tracer() to create spans without
//	explicitly managing tracer instances. Uses consistent naming conventions.
//
// Inputs:
//
//	ctx - Parent context. May contain existing span context.
//	tracerName - Tracer name (typically package path, e.g., "promptedit.planner").
//	spanName - Span name (typically "package.Type.Method" or operation name).
//	opts - Optional span start options (attributes, links, etc.).
//
// Outputs:
//
//	context.Context - Context with the new span attached.
//	trace.Span - The created span. Caller must call span.End().
//
// Example:
//
//	func (p *Planner) Apply(ctx context.Context, id string) (*ApplyReport, error) {
//	    ctx, span := telemetry.StartSpan(ctx, "promptedit.planner", "Planner.Apply",
//	        trace.WithAttributes(attribute.String("session_id", id)),
//	    )
//	    defer span.End()
//	    // ... perform apply
//	}
//
// Thread Safety: Safe for concurrent use.
func StartSpan(ctx context.Context, tracerName, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, spanName, opts...)
}

// SpanFromContext returns the current span from the context.
//
// Description:
//
//	Convenience wrapper around trace.SpanFromContext.
//	Returns a no-op span if no span is present in the context.
//
// Inputs:
//
//	ctx - Context potentially containing a span.
//
// Outputs:
//
//	trace.Span - The current span, or a no-op span if none exists.
//
// Thread Safety: Safe for concurrent use.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// RecordError records an error on the current span with proper status.
//
// Description:
//
//	Records the error as a span event and sets the span status to Error.
//	If the span or error is nil, this is a no-op.
//
// Inputs:
//
//	span - The span to record the error on. May be nil.
//	err - The error to record. May be nil.
//	attrs - Optional additional attributes to record with the error.
//
// Example:
//
//	report, err := planner.Validate(ctx, id, types)
//	if err != nil {
//	    telemetry.RecordError(span, err, attribute.String("stage", "validate"))
//	    return err
//	}
//
// Thread Safety: Safe for concurrent use.
func RecordError(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if span == nil || err == nil {
		return
	}

	opts := make([]trace.EventOption, 0, 1)
	if len(attrs) > 0 {
		opts = append(opts, trace.WithAttributes(attrs...))
	}
	span.RecordError(err, opts...)

	span.SetStatus(codes.Error, err.Error())
}

// SetSpanOK marks the span as successful.
//
// Description:
//
//	Sets the span status to OK. Use this when an operation completes
//	successfully and you want to explicitly mark the span.
//
// Inputs:
//
//	span - The span to mark as OK. May be nil.
//
// Thread Safety: Safe for concurrent use.
func SetSpanOK(span trace.Span) {
	if span == nil {
		return
	}
	span.SetStatus(codes.Ok, "")
}

// AddSpanEvent adds an event to the span with optional attributes.
//
// Description:
//
//	Records a timestamped event on the span. Events are useful for
//	marking significant points in a span's lifecycle.
//
// Inputs:
//
//	span - The span to add the event to. May be nil.
//	name - Event name describing what happened.
//	attrs - Optional attributes to include with the event.
//
// Example:
//
//	telemetry.AddSpanEvent(span, "plan_parsed", attribute.Int("edit_count", len(edits)))
//
// Thread Safety: Safe for concurrent use.
func AddSpanEvent(span trace.Span, name string, attrs ...attribute.KeyValue) {
	if span == nil {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// SetSpanAttributes sets attributes on the span.
//
// Description:
//
//	Adds or updates attributes on the span. Safe to call with nil span.
//
// Inputs:
//
//	span - The span to set attributes on. May be nil.
//	attrs - Attributes to set.
//
// Example:
//
//	telemetry.SetSpanAttributes(span,
//	    attribute.Int("file_count", len(files)),
//	    attribute.String("provider", providerName),
//	)
//
// Thread Safety: Safe for concurrent use.
func SetSpanAttributes(span trace.Span, attrs ...attribute.KeyValue) {
	if span == nil {
		return
	}
	span.SetAttributes(attrs...)
}

// TraceID returns the trace ID from the context as a string.
//
// Description:
//
//	Extracts the trace ID from the span context. Returns empty string
//	if no valid span context is present.
//
// Inputs:
//
//	ctx - Context potentially containing a span.
//
// Outputs:
//
//	string - Hex-encoded trace ID, or empty string if unavailable.
//
// Example:
//
//	traceID := telemetry.TraceID(ctx)
//	logger.Info("operation complete", slog.String("trace_id", traceID))
//
// Thread Safety: Safe for concurrent use.
func TraceID(ctx context.Context) string {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return ""
	}
	return spanCtx.TraceID().String()
}

// SpanID returns the span ID from the context as a string.
//
// Description:
//
//	Extracts the span ID from the span context. Returns empty string
//	if no valid span context is present.
//
// Inputs:
//
//	ctx - Context potentially containing a span.
//
// Outputs:
//
//	string - Hex-encoded span ID, or empty string if unavailable.
//
// Thread Safety: Safe for concurrent use.
func SpanID(ctx context.Context) string {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return ""
	}
	return spanCtx.SpanID().String()
}

// LoggerWithTrace returns a logger with trace context fields.
//
// Description:
//
//	Extracts trace_id and span_id from the context and adds them
//	to the logger for correlation with distributed traces. Returns
//	the logger unchanged when no valid span context is present.
//
// Inputs:
//
//	ctx - Context that may contain trace information. May be nil.
//	logger - Base logger to extend. Nil falls back to slog.Default().
//
// Outputs:
//
//	*slog.Logger - Logger with trace_id and span_id if available.
//
// Thread Safety: Safe for concurrent use.
func LoggerWithTrace(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	if ctx == nil {
		return logger
	}
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return logger
	}
	return logger.With(
		slog.String("trace_id", spanCtx.TraceID().String()),
		slog.String("span_id", spanCtx.SpanID().String()),
	)
}

// LoggerWithSession returns a trace-correlated logger scoped to a session.
//
// Description:
//
//	Combines LoggerWithTrace with a session_id attribute. Used by
//	handlers that operate on a single edit session.
//
// Inputs:
//
//	ctx - Context that may contain trace information.
//	logger - Base logger to extend. Nil falls back to slog.Default().
//	sessionID - Session identifier to attach.
//
// Outputs:
//
//	*slog.Logger - Logger with trace fields and session_id.
//
// Thread Safety: Safe for concurrent use.
func LoggerWithSession(ctx context.Context, logger *slog.Logger, sessionID string) *slog.Logger {
	return LoggerWithTrace(ctx, logger).With(slog.String("session_id", sessionID))
}
