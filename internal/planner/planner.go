package planner

import (
	"context"
	"fmt"

	"github.com/harrison/kobold/internal/models"
	"github.com/harrison/kobold/internal/provider"
)

// Client is the narrow seam onto the Provider Client the planner needs.
type Client interface {
	SendMessage(ctx context.Context, providerName string, conversation []provider.Message, tools []provider.ToolDefinition, systemPrompt string) (provider.Response, error)
}

// Planner generates Plans for tasks via a single model call per spec §4.4.
type Planner struct {
	Client       Client
	ProviderName string
}

// New returns a Planner dispatching through client using providerName.
func New(client Client, providerName string) *Planner {
	return &Planner{Client: client, ProviderName: providerName}
}

// Plan produces an ordered Plan for req, falling back to a single step
// naming the task description when the model returns no usable tool call.
func (p *Planner) Plan(ctx context.Context, projectID, taskID string, req Request) (*models.Plan, error) {
	tool := createPlanTool()
	toolDef := provider.ToolDefinition{
		Name:        tool["name"].(string),
		Description: tool["description"].(string),
		InputSchema: tool["input_schema"].(map[string]any),
	}

	conversation := []provider.Message{
		{Role: provider.RoleUser, Content: []provider.ContentBlock{{Text: buildUserPrompt(req)}}},
	}

	resp, err := p.Client.SendMessage(ctx, p.ProviderName, conversation, []provider.ToolDefinition{toolDef}, buildSystemPrompt(req))
	if err != nil {
		return nil, fmt.Errorf("planner model call: %w", err)
	}
	if resp.StopReason == provider.StopNotConfigured {
		if resp.Err != nil {
			return nil, fmt.Errorf("planner model call: %w", resp.Err)
		}
		return nil, fmt.Errorf("planner model call: provider %q not configured", p.ProviderName)
	}

	steps := extractSteps(resp)
	if len(steps) == 0 {
		steps = []models.PlanStep{{Index: 0, Title: "Implement task", Description: req.TaskDescription}}
	} else {
		for _, step := range steps {
			if step.Title == "" || step.Description == "" {
				return nil, fmt.Errorf("task %s: %w", taskID, ErrPlanInvalid)
			}
		}
	}
	for i := range steps {
		steps[i].Index = i
	}

	return &models.Plan{
		ProjectID:        projectID,
		TaskID:           taskID,
		TaskDescription:  req.TaskDescription,
		Status:           models.PlanReady,
		Steps:            steps,
		CurrentStepIndex: 0,
	}, nil
}

func extractSteps(resp provider.Response) []models.PlanStep {
	for _, block := range resp.Content {
		if block.ToolUseName != createPlanToolName {
			continue
		}
		rawSteps, ok := block.ToolUseInput["steps"].([]any)
		if !ok {
			continue
		}
		out := make([]models.PlanStep, 0, len(rawSteps))
		for _, raw := range rawSteps {
			m, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			out = append(out, models.PlanStep{
				Title:          stringField(m, "title"),
				Description:    stringField(m, "description"),
				FilesToCreate:  stringSliceField(m, "filesToCreate"),
				FilesToModify:  stringSliceField(m, "filesToModify"),
			})
		}
		return out
	}
	return nil
}

func stringField(m map[string]any, key string) string {
	v, _ := m[key].(string)
	return v
}

func stringSliceField(m map[string]any, key string) []string {
	raw, ok := m[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
