// Package correlate propagates request and correlation identifiers through a
// call tree via context.Context, so every event emitted during one logical
// request can be grouped without threading IDs through function signatures.
package correlate

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey int

const (
	requestIDKey contextKey = iota
	correlationIDKey
	spanIDKey
)

// IDs carries the identifiers attached to one call tree.
type IDs struct {
	RequestID     string
	CorrelationID string
	SpanID        string
}

// Begin allocates a fresh request ID for a top-level call. An existing
// correlation ID on the context is kept so related calls group together;
// otherwise a new one is minted.
func Begin(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, requestIDKey, uuid.NewString())
	if correlationID(ctx) == "" {
		ctx = context.WithValue(ctx, correlationIDKey, uuid.NewString())
	}
	return ctx
}

// WithCorrelationID pins the correlation ID, for callers that span multiple
// related requests.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// Branch tags a fan-out branch with its own span ID while inheriting the
// parent's request and correlation IDs.
func Branch(ctx context.Context) context.Context {
	return context.WithValue(ctx, spanIDKey, uuid.NewString())
}

// FromContext reads the identifiers at any point in the call tree. Missing
// values are empty strings.
func FromContext(ctx context.Context) IDs {
	return IDs{
		RequestID:     requestID(ctx),
		CorrelationID: correlationID(ctx),
		SpanID:        spanID(ctx),
	}
}

// Fields attaches the identifiers present on the context to a zerolog event
// chain.
func Fields(ctx context.Context, e *zerolog.Event) *zerolog.Event {
	ids := FromContext(ctx)
	if ids.RequestID != "" {
		e = e.Str("request_id", ids.RequestID)
	}
	if ids.CorrelationID != "" {
		e = e.Str("correlation_id", ids.CorrelationID)
	}
	if ids.SpanID != "" {
		e = e.Str("span_id", ids.SpanID)
	}
	return e
}

// Logger returns a sub-logger carrying the context's identifiers on every
// event.
func Logger(ctx context.Context, log zerolog.Logger) zerolog.Logger {
	ids := FromContext(ctx)
	lc := log.With()
	if ids.RequestID != "" {
		lc = lc.Str("request_id", ids.RequestID)
	}
	if ids.CorrelationID != "" {
		lc = lc.Str("correlation_id", ids.CorrelationID)
	}
	if ids.SpanID != "" {
		lc = lc.Str("span_id", ids.SpanID)
	}
	return lc.Logger()
}

func requestID(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}

func correlationID(ctx context.Context) string {
	v, _ := ctx.Value(correlationIDKey).(string)
	return v
}

func spanID(ctx context.Context) string {
	v, _ := ctx.Value(spanIDKey).(string)
	return v
}
