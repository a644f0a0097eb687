package provider

import (
	"context"
	"time"

	"github.com/harrison/kobold/internal/providerhealth"
)

// sender is the narrow seam AuditedClient wraps: Client itself, or anything
// shaped like it (kept unexported so *Client satisfies it structurally).
type sender interface {
	SendMessage(ctx context.Context, providerName string, conversation []Message, tools []ToolDefinition, systemPrompt string) (Response, error)
}

// AuditedClient wraps a Client with the provider health audit trail
// (SPEC_FULL §4 domain-stack wiring): every SendMessage call is recorded to
// internal/providerhealth regardless of outcome, for operator-facing
// inspection; the retry path does not read it back.
type AuditedClient struct {
	Inner  sender
	Health *providerhealth.Store
}

// SendMessage delegates to Inner and records the attempt. A nil Health
// store makes this a pure passthrough.
func (c *AuditedClient) SendMessage(ctx context.Context, providerName string, conversation []Message, tools []ToolDefinition, systemPrompt string) (Response, error) {
	start := time.Now()
	resp, err := c.Inner.SendMessage(ctx, providerName, conversation, tools, systemPrompt)
	if c.Health == nil {
		return resp, err
	}

	attempt := &providerhealth.Attempt{
		Provider:          providerName,
		Success:           err == nil,
		HTTPStatus:        resp.HTTPStatus,
		RetryAfterSeconds: resp.RetryAfterSeconds,
		DurationMS:        time.Since(start).Milliseconds(),
	}
	if err != nil {
		attempt.ErrorMessage = err.Error()
	}
	if attemptCtx, ok := AttemptContextFrom(ctx); ok {
		attempt.ProjectID = attemptCtx.ProjectID
		attempt.TaskID = attemptCtx.TaskID
	}
	_ = c.Health.RecordAttempt(ctx, attempt)

	return resp, err
}
