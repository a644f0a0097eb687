package provider

import "context"

type attemptContextKey struct{}

// AttemptContext carries the project/task a SendMessage call belongs to, so
// an AuditedClient can attribute the attempt without widening the Client
// interface every caller has to implement.
type AttemptContext struct {
	ProjectID string
	TaskID    string
}

// WithAttemptContext attaches project/task identity to ctx for the
// duration of one Worker step.
func WithAttemptContext(ctx context.Context, projectID, taskID string) context.Context {
	return context.WithValue(ctx, attemptContextKey{}, AttemptContext{ProjectID: projectID, TaskID: taskID})
}

// AttemptContextFrom reads back the identity attached by WithAttemptContext.
func AttemptContextFrom(ctx context.Context) (AttemptContext, bool) {
	v, ok := ctx.Value(attemptContextKey{}).(AttemptContext)
	return v, ok
}
