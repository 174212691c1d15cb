package common

import (
	"context"

	"github.com/google/uuid"
)

// Context keys for storing values in context
type contextKey string

const (
	ContextKeyTraceID contextKey = "trace_id"
	ContextKeyActorID contextKey = "actor_id"
)

// WithTraceID tags the context with the dispatcher's trace id.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, ContextKeyTraceID, traceID)
}

func TraceIDFromContext(ctx context.Context) string {
	if traceID, ok := ctx.Value(ContextKeyTraceID).(string); ok {
		return traceID
	}
	return ""
}

// WithActorID records the user acting on behalf of the request.
func WithActorID(ctx context.Context, actor uuid.UUID) context.Context {
	return context.WithValue(ctx, ContextKeyActorID, actor)
}

// ActorIDFromContext returns the acting user, or nil for automated work.
func ActorIDFromContext(ctx context.Context) *uuid.UUID {
	if actor, ok := ctx.Value(ContextKeyActorID).(uuid.UUID); ok && actor != uuid.Nil {
		return &actor
	}
	return nil
}
