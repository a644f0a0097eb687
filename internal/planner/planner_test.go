package planner

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/kobold/internal/provider"
)

type fakeClient struct {
	resp provider.Response
	err  error
}

func (f *fakeClient) SendMessage(ctx context.Context, providerName string, conversation []provider.Message, tools []provider.ToolDefinition, systemPrompt string) (provider.Response, error) {
	return f.resp, f.err
}

func TestPlanExtractsStepsFromToolCall(t *testing.T) {
	client := &fakeClient{
		resp: provider.Response{
			StopReason: provider.StopToolUse,
			Content: []provider.ContentBlock{
				{
					ToolUseName: createPlanToolName,
					ToolUseInput: map[string]any{
						"steps": []any{
							map[string]any{
								"title":         "Add handler",
								"description":   "Add the HTTP handler",
								"filesToCreate": []any{"handler.go"},
							},
							map[string]any{
								"title":         "Wire route",
								"description":   "Register the route",
								"filesToModify": []any{"router.go"},
							},
						},
					},
				},
			},
		},
	}
	p := New(client, "anthropic")

	plan, err := p.Plan(context.Background(), "proj", "t1", Request{TaskDescription: "add an endpoint"})
	require.NoError(t, err)
	require.Len(t, plan.Steps, 2)
	assert.Equal(t, "Add handler", plan.Steps[0].Title)
	assert.Equal(t, []string{"handler.go"}, plan.Steps[0].FilesToCreate)
	assert.Equal(t, 1, plan.Steps[1].Index)
}

func TestPlanFallsBackOnEmptyToolCall(t *testing.T) {
	client := &fakeClient{resp: provider.Response{StopReason: provider.StopEndTurn}}
	p := New(client, "anthropic")

	plan, err := p.Plan(context.Background(), "proj", "t1", Request{TaskDescription: "do the thing"})
	require.NoError(t, err)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, "do the thing", plan.Steps[0].Description)
}

func TestPlanReturnsUnavailableErrorOnCircuitBreakerOpenRatherThanFallback(t *testing.T) {
	client := &fakeClient{resp: provider.Response{
		StopReason: provider.StopNotConfigured,
		Err:        fmt.Errorf("provider %q: %w", "anthropic", provider.ErrCircuitOpen),
	}}
	p := New(client, "anthropic")

	plan, err := p.Plan(context.Background(), "proj", "t1", Request{TaskDescription: "do the thing"})
	require.Error(t, err)
	assert.Nil(t, plan)
	assert.True(t, provider.IsUnavailable(err))
}

func TestPlanReturnsUnavailableErrorOnProviderNotConfigured(t *testing.T) {
	client := &fakeClient{err: fmt.Errorf("provider %q: %w", "anthropic", provider.ErrProviderNotConfigured)}
	p := New(client, "anthropic")

	plan, err := p.Plan(context.Background(), "proj", "t1", Request{TaskDescription: "do the thing"})
	require.Error(t, err)
	assert.Nil(t, plan)
	assert.True(t, provider.IsUnavailable(err))
}

func TestPlanRejectsStepMissingTitle(t *testing.T) {
	client := &fakeClient{
		resp: provider.Response{
			StopReason: provider.StopToolUse,
			Content: []provider.ContentBlock{
				{
					ToolUseName: createPlanToolName,
					ToolUseInput: map[string]any{
						"steps": []any{
							map[string]any{"description": "missing a title"},
						},
					},
				},
			},
		},
	}
	p := New(client, "anthropic")

	_, err := p.Plan(context.Background(), "proj", "t1", Request{TaskDescription: "add an endpoint"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPlanInvalid))
}

func TestBuildSystemPromptMentionsClaimedFiles(t *testing.T) {
	prompt := buildSystemPrompt(Request{FilesClaimedByOthers: []string{"shared.go"}})
	assert.Contains(t, prompt, "shared.go")
	assert.Contains(t, prompt, "modify-candidates")
}
