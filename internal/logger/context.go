package logger

import "context"

// contextKey is a private type to prevent collisions with other context keys.
type contextKey struct{}

// executionIDKey is the context key for the lifecycle execution id.
var executionIDKey = contextKey{}

// WithExecutionID returns a new context carrying the platform's lifecycle
// execution id, so detached tasks can correlate their logs with the
// webhook delivery that spawned them.
func WithExecutionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, executionIDKey, id)
}

// ExecutionID extracts the lifecycle execution id from the context.
// Returns an empty string if none is set.
func ExecutionID(ctx context.Context) string {
	id, _ := ctx.Value(executionIDKey).(string)
	return id
}
