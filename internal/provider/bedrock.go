package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

// runtimeClient is the subset of *bedrockruntime.Client the adapter needs
// (grounded on goadesign-goa-ai's features/model/bedrock package).
type runtimeClient interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockAdapter implements Adapter over the AWS Bedrock Converse API.
type BedrockAdapter struct {
	runtime runtimeClient
	modelID string
}

// NewBedrockAdapter builds an adapter from a configured Bedrock runtime
// client and model identifier (e.g. an inference profile ARN).
func NewBedrockAdapter(runtime *bedrockruntime.Client, modelID string) *BedrockAdapter {
	return &BedrockAdapter{runtime: runtime, modelID: modelID}
}

func (a *BedrockAdapter) Name() string { return "bedrock" }

func (a *BedrockAdapter) Send(ctx context.Context, conversation []Message, tools []ToolDefinition, systemPrompt string) (Response, error) {
	input, err := a.prepareRequest(conversation, tools, systemPrompt)
	if err != nil {
		return Response{StopReason: StopError, Err: err}, err
	}

	out, err := a.runtime.Converse(ctx, input)
	if err != nil {
		status, retryAfter := bedrockErrorDetails(err)
		return Response{StopReason: StopError, Err: err, HTTPStatus: status, RetryAfterSeconds: retryAfter}, err
	}
	return translateConverseOutput(out), nil
}

func (a *BedrockAdapter) prepareRequest(conversation []Message, tools []ToolDefinition, systemPrompt string) (*bedrockruntime.ConverseInput, error) {
	messages, err := encodeBedrockMessages(conversation)
	if err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return nil, errors.New("bedrock: at least one user/assistant message is required")
	}

	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(a.modelID),
		Messages: messages,
	}
	if systemPrompt != "" {
		input.System = []brtypes.SystemContentBlock{
			&brtypes.SystemContentBlockMemberText{Value: systemPrompt},
		}
	}
	if len(tools) > 0 {
		config, err := encodeBedrockTools(tools)
		if err != nil {
			return nil, err
		}
		input.ToolConfig = config
	}
	return input, nil
}

func encodeBedrockMessages(conversation []Message) ([]brtypes.Message, error) {
	out := make([]brtypes.Message, 0, len(conversation))
	for _, m := range conversation {
		blocks := make([]brtypes.ContentBlock, 0, len(m.Content))
		for _, c := range m.Content {
			switch {
			case c.ToolResultFor != "":
				status := brtypes.ToolResultStatusSuccess
				if !c.ToolResultOK {
					status = brtypes.ToolResultStatusError
				}
				blocks = append(blocks, &brtypes.ContentBlockMemberToolResult{
					Value: brtypes.ToolResultBlock{
						ToolUseId: aws.String(c.ToolResultFor),
						Status:    status,
						Content: []brtypes.ToolResultContentBlock{
							&brtypes.ToolResultContentBlockMemberText{Value: c.Text},
						},
					},
				})
			case c.IsToolUse():
				blocks = append(blocks, &brtypes.ContentBlockMemberToolUse{
					Value: brtypes.ToolUseBlock{
						ToolUseId: aws.String(c.ToolUseID),
						Name:      aws.String(c.ToolUseName),
						Input:     document.NewLazyDocument(c.ToolUseInput),
					},
				})
			case c.Text != "":
				blocks = append(blocks, &brtypes.ContentBlockMemberText{Value: c.Text})
			}
		}
		if len(blocks) == 0 {
			continue
		}
		var role brtypes.ConversationRole
		switch m.Role {
		case RoleUser:
			role = brtypes.ConversationRoleUser
		case RoleAssistant:
			role = brtypes.ConversationRoleAssistant
		default:
			return nil, fmt.Errorf("bedrock: unsupported message role %q", m.Role)
		}
		out = append(out, brtypes.Message{Role: role, Content: blocks})
	}
	return out, nil
}

func encodeBedrockTools(tools []ToolDefinition) (*brtypes.ToolConfiguration, error) {
	specs := make([]brtypes.Tool, 0, len(tools))
	for _, t := range tools {
		raw, err := json.Marshal(t.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("bedrock: tool %q schema: %w", t.Name, err)
		}
		var schema map[string]any
		if err := json.Unmarshal(raw, &schema); err != nil {
			return nil, fmt.Errorf("bedrock: tool %q schema: %w", t.Name, err)
		}
		specs = append(specs, &brtypes.ToolMemberToolSpec{
			Value: brtypes.ToolSpecification{
				Name:        aws.String(t.Name),
				Description: aws.String(t.Description),
				InputSchema: &brtypes.ToolInputSchemaMemberJson{
					Value: document.NewLazyDocument(schema),
				},
			},
		})
	}
	return &brtypes.ToolConfiguration{Tools: specs}, nil
}

func translateConverseOutput(out *bedrockruntime.ConverseOutput) Response {
	resp := Response{StopReason: mapBedrockStopReason(out.StopReason)}
	member, ok := out.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return resp
	}
	for _, block := range member.Value.Content {
		switch v := block.(type) {
		case *brtypes.ContentBlockMemberText:
			if v.Value != "" {
				resp.Content = append(resp.Content, ContentBlock{Text: v.Value})
			}
		case *brtypes.ContentBlockMemberToolUse:
			var input map[string]any
			if v.Value.Input != nil {
				_ = v.Value.Input.UnmarshalSmithyDocument(&input)
			}
			resp.Content = append(resp.Content, ContentBlock{
				ToolUseID:    aws.ToString(v.Value.ToolUseId),
				ToolUseName:  aws.ToString(v.Value.Name),
				ToolUseInput: input,
			})
		}
	}
	return resp
}

func mapBedrockStopReason(reason brtypes.StopReason) StopReason {
	switch reason {
	case brtypes.StopReasonToolUse:
		return StopToolUse
	case brtypes.StopReasonEndTurn, brtypes.StopReasonMaxTokens, brtypes.StopReasonStopSequence:
		return StopEndTurn
	default:
		return StopEndTurn
	}
}

func bedrockErrorDetails(err error) (status int, retryAfterSeconds float64) {
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		status = respErr.HTTPStatusCode()
		if d, ok := ParseRetryAfter(respErr.Response.Header.Get("Retry-After")); ok {
			retryAfterSeconds = d.Seconds()
		}
	}
	return status, retryAfterSeconds
}
