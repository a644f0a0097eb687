package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// messagesClient is the subset of *sdk.MessageService the adapter needs,
// narrowed so tests can substitute a fake without a live API key.
type messagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// AnthropicAdapter implements Adapter over the Anthropic Claude Messages
// API (grounded on goadesign-goa-ai's features/model/anthropic package).
type AnthropicAdapter struct {
	msg       messagesClient
	model     string
	maxTokens int
}

// NewAnthropicAdapter builds an adapter from an API key and model
// identifier (e.g. "claude-sonnet-4-5-20250929").
func NewAnthropicAdapter(apiKey, model string, maxTokens int) *AnthropicAdapter {
	client := sdk.NewClient(option.WithAPIKey(apiKey))
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &AnthropicAdapter{msg: &client.Messages, model: model, maxTokens: maxTokens}
}

func (a *AnthropicAdapter) Name() string { return "anthropic" }

func (a *AnthropicAdapter) Send(ctx context.Context, conversation []Message, tools []ToolDefinition, systemPrompt string) (Response, error) {
	params, err := a.prepareRequest(conversation, tools, systemPrompt)
	if err != nil {
		return Response{StopReason: StopError, Err: err}, err
	}

	msg, err := a.msg.New(ctx, *params)
	if err != nil {
		status, retryAfter := anthropicErrorDetails(err)
		resp := Response{StopReason: StopError, Err: err, HTTPStatus: status, RetryAfterSeconds: retryAfter}
		return resp, err
	}
	return translateAnthropicMessage(msg), nil
}

func (a *AnthropicAdapter) prepareRequest(conversation []Message, tools []ToolDefinition, systemPrompt string) (*sdk.MessageNewParams, error) {
	if len(conversation) == 0 {
		return nil, errors.New("anthropic: conversation must not be empty")
	}
	msgs, err := encodeAnthropicMessages(conversation)
	if err != nil {
		return nil, err
	}
	params := sdk.MessageNewParams{
		Model:     sdk.Model(a.model),
		MaxTokens: int64(a.maxTokens),
		Messages:  msgs,
	}
	if systemPrompt != "" {
		params.System = []sdk.TextBlockParam{{Text: systemPrompt}}
	}
	if len(tools) > 0 {
		encoded, err := encodeAnthropicTools(tools)
		if err != nil {
			return nil, err
		}
		params.Tools = encoded
	}
	return &params, nil
}

func encodeAnthropicMessages(conversation []Message) ([]sdk.MessageParam, error) {
	out := make([]sdk.MessageParam, 0, len(conversation))
	for _, m := range conversation {
		blocks := make([]sdk.ContentBlockParamUnion, 0, len(m.Content))
		for _, c := range m.Content {
			switch {
			case c.ToolResultFor != "":
				blocks = append(blocks, sdk.NewToolResultBlock(c.ToolResultFor, c.Text, !c.ToolResultOK))
			case c.IsToolUse():
				blocks = append(blocks, sdk.NewToolUseBlock(c.ToolUseID, c.ToolUseInput, c.ToolUseName))
			case c.Text != "":
				blocks = append(blocks, sdk.NewTextBlock(c.Text))
			}
		}
		if len(blocks) == 0 {
			continue
		}
		switch m.Role {
		case RoleUser:
			out = append(out, sdk.NewUserMessage(blocks...))
		case RoleAssistant:
			out = append(out, sdk.NewAssistantMessage(blocks...))
		default:
			return nil, fmt.Errorf("anthropic: system messages must use the systemPrompt argument, not Role %q", m.Role)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("anthropic: at least one user/assistant message is required")
	}
	return out, nil
}

func encodeAnthropicTools(tools []ToolDefinition) ([]sdk.ToolUnionParam, error) {
	out := make([]sdk.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		schema, err := anthropicSchema(t.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("anthropic: tool %q schema: %w", t.Name, err)
		}
		u := sdk.ToolUnionParamOfTool(schema, t.Name)
		if u.OfTool != nil {
			u.OfTool.Description = sdk.String(t.Description)
		}
		out = append(out, u)
	}
	return out, nil
}

func anthropicSchema(schema map[string]any) (sdk.ToolInputSchemaParam, error) {
	if schema == nil {
		return sdk.ToolInputSchemaParam{}, nil
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return sdk.ToolInputSchemaParam{}, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return sdk.ToolInputSchemaParam{}, err
	}
	return sdk.ToolInputSchemaParam{ExtraFields: m}, nil
}

func translateAnthropicMessage(msg *sdk.Message) Response {
	resp := Response{StopReason: mapAnthropicStopReason(string(msg.StopReason))}
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			if block.Text != "" {
				resp.Content = append(resp.Content, ContentBlock{Text: block.Text})
			}
		case "tool_use":
			resp.Content = append(resp.Content, ContentBlock{
				ToolUseID:    block.ID,
				ToolUseName:  block.Name,
				ToolUseInput: block.Input,
			})
		}
	}
	return resp
}

func mapAnthropicStopReason(reason string) StopReason {
	switch reason {
	case "tool_use":
		return StopToolUse
	case "end_turn", "stop_sequence", "max_tokens":
		return StopEndTurn
	default:
		return StopEndTurn
	}
}

// anthropicErrorDetails extracts an HTTP status and Retry-After delay from
// an SDK error, when the SDK surfaces one (spec §4.2 retry contract).
func anthropicErrorDetails(err error) (status int, retryAfterSeconds float64) {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		status = apiErr.StatusCode
		if d, ok := ParseRetryAfter(apiErr.Response.Header.Get("Retry-After")); ok {
			retryAfterSeconds = d.Seconds()
		}
	}
	return status, retryAfterSeconds
}
