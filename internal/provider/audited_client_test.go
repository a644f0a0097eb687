package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/kobold/internal/providerhealth"
)

type fakeSender struct {
	resp Response
	err  error
}

func (f *fakeSender) SendMessage(ctx context.Context, providerName string, conversation []Message, tools []ToolDefinition, systemPrompt string) (Response, error) {
	return f.resp, f.err
}

func TestAuditedClientRecordsSuccessfulAttempt(t *testing.T) {
	health, err := providerhealth.NewStore(":memory:")
	require.NoError(t, err)
	defer health.Close()

	c := &AuditedClient{Inner: &fakeSender{resp: Response{StopReason: StopEndTurn}}, Health: health}
	ctx := WithAttemptContext(context.Background(), "proj-1", "task-1")

	_, err = c.SendMessage(ctx, "anthropic", nil, nil, "")
	require.NoError(t, err)

	attempts, err := health.ExecutionsForTask(context.Background(), "proj-1", "task-1")
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.True(t, attempts[0].Success)
	assert.Equal(t, "anthropic", attempts[0].Provider)
}

func TestAuditedClientRecordsFailedAttemptWithErrorMessage(t *testing.T) {
	health, err := providerhealth.NewStore(":memory:")
	require.NoError(t, err)
	defer health.Close()

	c := &AuditedClient{Inner: &fakeSender{err: errors.New("boom")}, Health: health}
	ctx := WithAttemptContext(context.Background(), "proj-1", "task-1")

	_, _ = c.SendMessage(ctx, "anthropic", nil, nil, "")

	attempts, err := health.ExecutionsForTask(context.Background(), "proj-1", "task-1")
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.False(t, attempts[0].Success)
	assert.Equal(t, "boom", attempts[0].ErrorMessage)
}

func TestAuditedClientWithNilHealthIsPassthrough(t *testing.T) {
	c := &AuditedClient{Inner: &fakeSender{resp: Response{StopReason: StopEndTurn}}}

	resp, err := c.SendMessage(context.Background(), "anthropic", nil, nil, "")

	require.NoError(t, err)
	assert.Equal(t, StopEndTurn, resp.StopReason)
}
