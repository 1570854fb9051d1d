package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type ctxKey string

const eventIDKey ctxKey = "event_id"

// NewEventID returns a fresh identifier for one inbound event.
func NewEventID() string {
	return uuid.NewString()
}

// ContextWithEventID stores the provided event ID in the context.
func ContextWithEventID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, eventIDKey, id)
}

// EventIDFromContext extracts the event ID from context if present.
func EventIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(eventIDKey).(string); ok {
		return v
	}
	return ""
}

// WithContext enriches the supplied logger with the event ID from ctx.
func WithContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	id := EventIDFromContext(ctx)
	if id == "" {
		return logger
	}
	return logger.With().Str("event_id", id).Logger()
}
