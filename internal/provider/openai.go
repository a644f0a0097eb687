package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// chatCompletionsClient is the subset of openai.Client used by the adapter.
type chatCompletionsClient interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// OpenAIAdapter implements Adapter over the OpenAI Chat Completions API
// (declared alongside anthropic-sdk-go and aws-sdk-go-v2/bedrockruntime in
// goadesign-goa-ai's go.mod as the third leg of its multi-provider stack).
type OpenAIAdapter struct {
	chat  chatCompletionsClient
	model string
}

// NewOpenAIAdapter builds an adapter from an API key and model identifier.
func NewOpenAIAdapter(apiKey, model string) *OpenAIAdapter {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIAdapter{chat: client.Chat.Completions, model: model}
}

func (a *OpenAIAdapter) Name() string { return "openai" }

func (a *OpenAIAdapter) Send(ctx context.Context, conversation []Message, tools []ToolDefinition, systemPrompt string) (Response, error) {
	params, err := a.prepareRequest(conversation, tools, systemPrompt)
	if err != nil {
		return Response{StopReason: StopError, Err: err}, err
	}

	completion, err := a.chat.New(ctx, *params)
	if err != nil {
		status, retryAfter := openaiErrorDetails(err)
		return Response{StopReason: StopError, Err: err, HTTPStatus: status, RetryAfterSeconds: retryAfter}, err
	}
	return translateOpenAICompletion(completion), nil
}

func (a *OpenAIAdapter) prepareRequest(conversation []Message, tools []ToolDefinition, systemPrompt string) (*openai.ChatCompletionNewParams, error) {
	if len(conversation) == 0 {
		return nil, errors.New("openai: conversation must not be empty")
	}
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(conversation)+1)
	if systemPrompt != "" {
		messages = append(messages, openai.SystemMessage(systemPrompt))
	}
	for _, m := range conversation {
		encoded, err := encodeOpenAIMessage(m)
		if err != nil {
			return nil, err
		}
		if encoded != nil {
			messages = append(messages, *encoded)
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    a.model,
		Messages: messages,
	}
	if len(tools) > 0 {
		params.Tools = encodeOpenAITools(tools)
	}
	return &params, nil
}

func encodeOpenAIMessage(m Message) (*openai.ChatCompletionMessageParamUnion, error) {
	var text string
	for _, c := range m.Content {
		if c.Text != "" {
			text += c.Text
		}
	}
	switch m.Role {
	case RoleUser:
		msg := openai.UserMessage(text)
		return &msg, nil
	case RoleAssistant:
		msg := openai.AssistantMessage(text)
		return &msg, nil
	case RoleSystem:
		msg := openai.SystemMessage(text)
		return &msg, nil
	default:
		return nil, fmt.Errorf("openai: unsupported role %q", m.Role)
	}
}

func encodeOpenAITools(tools []ToolDefinition) []openai.ChatCompletionToolParam {
	out := make([]openai.ChatCompletionToolParam, 0, len(tools))
	for _, t := range tools {
		out = append(out, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        t.Name,
				Description: openai.String(t.Description),
				Parameters:  openai.FunctionParameters(t.InputSchema),
			},
		})
	}
	return out
}

func translateOpenAICompletion(resp *openai.ChatCompletion) Response {
	if len(resp.Choices) == 0 {
		return Response{StopReason: StopEndTurn}
	}
	choice := resp.Choices[0]
	out := Response{StopReason: mapOpenAIFinishReason(choice.FinishReason)}
	if choice.Message.Content != "" {
		out.Content = append(out.Content, ContentBlock{Text: choice.Message.Content})
	}
	for _, call := range choice.Message.ToolCalls {
		var args map[string]any
		if call.Function.Arguments != "" {
			_ = json.Unmarshal([]byte(call.Function.Arguments), &args)
		}
		out.Content = append(out.Content, ContentBlock{
			ToolUseID:    call.ID,
			ToolUseName:  call.Function.Name,
			ToolUseInput: args,
		})
	}
	return out
}

func mapOpenAIFinishReason(reason string) StopReason {
	switch reason {
	case "tool_calls":
		return StopToolUse
	case "stop", "length":
		return StopEndTurn
	default:
		return StopEndTurn
	}
}

func openaiErrorDetails(err error) (status int, retryAfterSeconds float64) {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		status = apiErr.StatusCode
		if d, ok := ParseRetryAfter(apiErr.Response.Header.Get("Retry-After")); ok {
			retryAfterSeconds = d.Seconds()
		}
	}
	return status, retryAfterSeconds
}
