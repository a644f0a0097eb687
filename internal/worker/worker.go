// Package worker implements the Worker (Kobold) of spec §4.3: the
// single-threaded conversation loop that drives one task's model calls and
// tool dispatch, advancing a plan one step per iteration budget or, absent
// a plan, running a single bounded loop directly against the task
// description.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/harrison/kobold/internal/models"
	"github.com/harrison/kobold/internal/provider"
)

// DefaultIterationsPerStep is the per-step model-call budget of spec §4.3
// step 2.
const DefaultIterationsPerStep = 10

// Client is the narrow seam onto the Provider Client the worker needs.
type Client interface {
	SendMessage(ctx context.Context, providerName string, conversation []provider.Message, tools []provider.ToolDefinition, systemPrompt string) (provider.Response, error)
}

// ToolDispatcher executes one tool call and returns its string result,
// never a Go error (spec §4.3).
type ToolDispatcher interface {
	Dispatch(ctx context.Context, name string, input map[string]any) string
}

// Runner drives a Worker's conversation against one task's workspace.
// A Runner has no per-task state of its own; all mutable state lives on
// the models.Worker and models.Plan passed to Run/RunPlain, so one Runner
// can be reused across tasks.
type Runner struct {
	Client               Client
	ProviderName         string
	Tools                ToolDispatcher
	ToolDefs             []provider.ToolDefinition
	IterationsPerStep    int
	SystemPromptPreamble string

	// Now is overridable so watchdog-adjacent tests can control time
	// without sleeping.
	Now func() time.Time
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Runner) iterBudget() int {
	if r.IterationsPerStep > 0 {
		return r.IterationsPerStep
	}
	return DefaultIterationsPerStep
}

// RunPlan drives plan from its CurrentStepIndex to completion or until a
// step exhausts its iteration budget, mutating worker and plan in place
// per spec §4.3's plan-driven loop. It never forces a back-transition: a
// worker already Failed or Done is returned to untouched.
func (r *Runner) RunPlan(ctx context.Context, worker *models.Worker, plan *models.Plan) error {
	if worker.Status == models.WorkerFailed || worker.Status == models.WorkerDone {
		return nil
	}
	worker.Status = models.WorkerWorking
	if worker.StartedAt.IsZero() {
		worker.StartedAt = r.now()
	}

	for plan.CurrentStepIndex < len(plan.Steps) {
		step := plan.Steps[plan.CurrentStepIndex]

		completed, err := r.runStep(ctx, worker, plan, step)
		if err != nil {
			if provider.IsUnavailable(err) {
				plan.AppendLog(r.now(), fmt.Sprintf("step %d deferred: %v", step.Index, err))
				return err
			}
			worker.Status = models.WorkerFailed
			worker.ErrorMessage = err.Error()
			plan.Status = models.PlanFailed
			plan.AppendLog(r.now(), fmt.Sprintf("step %d failed: %v", step.Index, err))
			return err
		}
		if !completed {
			// Exhausted iteration budget with steps remaining: leave the
			// plan InProgress so the next tick can resume (spec §4.3 step 5,
			// invariant P3).
			plan.Status = models.PlanInProgress
			return nil
		}

		plan.MarkStepComplete(step.Index)
		plan.AppendLog(r.now(), fmt.Sprintf("step %d completed", step.Index))
	}

	plan.Status = models.PlanCompleted
	worker.Status = models.WorkerDone
	return nil
}

// runStep drives the model for up to the per-step iteration budget,
// dispatching every tool_use block it emits and feeding results back as
// tool_result messages. It returns completed=true once the model emits
// end_turn with no pending tool calls.
func (r *Runner) runStep(ctx context.Context, worker *models.Worker, plan *models.Plan, step models.PlanStep) (bool, error) {
	conversation := []provider.Message{
		{Role: provider.RoleUser, Content: []provider.ContentBlock{{Text: buildStepPrompt(step)}}},
	}
	systemPrompt := buildSystemPrompt(r.SystemPromptPreamble, plan.TaskDescription)

	for iter := 0; iter < r.iterBudget(); iter++ {
		resp, err := r.Client.SendMessage(ctx, r.ProviderName, conversation, r.ToolDefs, systemPrompt)
		if err != nil {
			return false, fmt.Errorf("model call: %w", err)
		}
		worker.LastModelAt = r.now()
		if resp.StopReason == provider.StopNotConfigured {
			if resp.Err != nil {
				return false, resp.Err
			}
			return false, provider.ErrProviderNotConfigured
		}
		if resp.StopReason == provider.StopError {
			if resp.Err != nil {
				return false, resp.Err
			}
			return false, fmt.Errorf("provider returned stop_reason=error")
		}

		conversation = append(conversation, provider.Message{Role: provider.RoleAssistant, Content: resp.Content})

		toolCalls := toolUseBlocks(resp.Content)
		if len(toolCalls) == 0 {
			step.IterationsUsed = iter + 1
			plan.Steps[plan.CurrentStepIndex].IterationsUsed = step.IterationsUsed
			return true, nil
		}

		var results []provider.ContentBlock
		for _, call := range toolCalls {
			result := r.Tools.Dispatch(ctx, call.ToolUseName, call.ToolUseInput)
			results = append(results, provider.ContentBlock{
				ToolResultFor: call.ToolUseID,
				ToolResultOK:  true,
				Text:          result,
			})
		}
		conversation = append(conversation, provider.Message{Role: provider.RoleUser, Content: results})
	}

	plan.Steps[plan.CurrentStepIndex].IterationsUsed += r.iterBudget()
	return false, nil
}

func toolUseBlocks(content []provider.ContentBlock) []provider.ContentBlock {
	var out []provider.ContentBlock
	for _, block := range content {
		if block.IsToolUse() {
			out = append(out, block)
		}
	}
	return out
}

// buildStepPrompt renders the step prompt of spec §4.3 step 1: index,
// title, description, file lists, and the completion criterion.
func buildStepPrompt(step models.PlanStep) string {
	prompt := fmt.Sprintf("Step %d: %s\n\n%s\n", step.Index, step.Title, step.Description)
	if len(step.FilesToCreate) > 0 {
		prompt += fmt.Sprintf("\nFiles to create: %v\n", step.FilesToCreate)
	}
	if len(step.FilesToModify) > 0 {
		prompt += fmt.Sprintf("\nFiles to modify: %v\n", step.FilesToModify)
	}
	prompt += "\nThis step is complete once those files exist and compile logically per the description above. Signal completion by replying with no further tool calls."
	return prompt
}

func buildSystemPrompt(preamble, taskDescription string) string {
	base := "You are a worker executing one step of an implementation plan for the task: " + taskDescription + ". Use the available tools to make the required changes, then stop calling tools once the step is satisfied."
	if preamble == "" {
		return base
	}
	return preamble + "\n\n" + base
}

// RunPlain drives a single bounded loop directly against taskDescription
// with no plan (spec §4.3 "plain" mode), for tasks too small to warrant
// planning overhead. It ends Done on end_turn and Failed on a provider error
// or exhausted iterations; when the provider is unavailable (breaker open or
// not configured) it returns that error with the worker still Working.
func (r *Runner) RunPlain(ctx context.Context, worker *models.Worker, taskDescription string) error {
	if worker.Status == models.WorkerFailed || worker.Status == models.WorkerDone {
		return nil
	}
	worker.Status = models.WorkerWorking
	if worker.StartedAt.IsZero() {
		worker.StartedAt = r.now()
	}

	conversation := []provider.Message{
		{Role: provider.RoleUser, Content: []provider.ContentBlock{{Text: taskDescription}}},
	}
	systemPrompt := buildSystemPrompt(r.SystemPromptPreamble, taskDescription)

	for iter := 0; iter < r.iterBudget(); iter++ {
		resp, err := r.Client.SendMessage(ctx, r.ProviderName, conversation, r.ToolDefs, systemPrompt)
		if err != nil {
			if provider.IsUnavailable(err) {
				return err
			}
			worker.Status = models.WorkerFailed
			worker.ErrorMessage = err.Error()
			return fmt.Errorf("model call: %w", err)
		}
		worker.LastModelAt = r.now()
		if resp.StopReason == provider.StopNotConfigured {
			if resp.Err != nil {
				return resp.Err
			}
			return provider.ErrProviderNotConfigured
		}
		if resp.StopReason == provider.StopError {
			worker.Status = models.WorkerFailed
			if resp.Err != nil {
				worker.ErrorMessage = resp.Err.Error()
				return resp.Err
			}
			worker.ErrorMessage = "provider returned stop_reason=error"
			return fmt.Errorf(worker.ErrorMessage)
		}

		conversation = append(conversation, provider.Message{Role: provider.RoleAssistant, Content: resp.Content})

		toolCalls := toolUseBlocks(resp.Content)
		if len(toolCalls) == 0 {
			worker.Status = models.WorkerDone
			return nil
		}

		var results []provider.ContentBlock
		for _, call := range toolCalls {
			result := r.Tools.Dispatch(ctx, call.ToolUseName, call.ToolUseInput)
			results = append(results, provider.ContentBlock{ToolResultFor: call.ToolUseID, ToolResultOK: true, Text: result})
		}
		conversation = append(conversation, provider.Message{Role: provider.RoleUser, Content: results})
	}

	// Exhausted iterations with no plan to resume from: the task cannot
	// preserve partial progress the way a plan step can, so it fails.
	worker.Status = models.WorkerFailed
	worker.ErrorMessage = "exhausted iteration budget with no plan to resume from"
	return fmt.Errorf("worker: %s", worker.ErrorMessage)
}
