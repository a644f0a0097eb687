// Package provider is the Provider Client of spec §4.2: a unified
// chat/tool-call contract over several model backends, with retry,
// per-provider rate limiting and a circuit breaker feeding the Worker.
// No adapter may leak a provider-specific shape above this package.
package provider

import "context"

// Role is a conversation message's speaker.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ContentBlock is the content-block union of spec §9: a text block, a
// tool_use block, or (with ToolResultFor set) a tool_result whose body is
// in Text. Text and the ToolUse fields are not both populated.
type ContentBlock struct {
	Text string

	ToolUseID    string
	ToolUseName  string
	ToolUseInput map[string]any

	// ToolResultFor carries the id of the tool_use this block answers, used
	// when a ContentBlock represents a tool_result fed back to the model.
	ToolResultFor string
	ToolResultOK  bool
}

// IsToolUse reports whether this block is a tool invocation request.
func (c ContentBlock) IsToolUse() bool {
	return c.ToolUseName != ""
}

// Message is one turn of the conversation the Worker maintains.
type Message struct {
	Role    Role
	Content []ContentBlock
}

// ToolDefinition describes one tool-capability the model may invoke, in
// the shape every adapter must translate to its own provider's schema.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// StopReason is the unified terminal state of a single model turn.
type StopReason string

const (
	StopEndTurn      StopReason = "end_turn"
	StopToolUse      StopReason = "tool_use"
	StopError        StopReason = "error"
	StopNotConfigured StopReason = "not_configured"
)

// Response is the unified reply shape every adapter must produce
// regardless of backend (spec §4.2 "Response shape contract").
type Response struct {
	StopReason StopReason
	Content    []ContentBlock
	Err        error

	// RetryAfterSeconds is non-zero when the backend returned an explicit
	// Retry-After and the retry loop should honour it verbatim.
	RetryAfterSeconds float64

	// HTTPStatus is 0 for non-HTTP failures (e.g. context cancellation).
	HTTPStatus int
}

// Adapter is the narrow, provider-specific seam. Client wraps an Adapter
// with retry, rate limiting and circuit breaking; adapters never implement
// those concerns themselves.
type Adapter interface {
	Name() string
	Send(ctx context.Context, conversation []Message, tools []ToolDefinition, systemPrompt string) (Response, error)
}

// StreamHandle is returned by SendMessageStreaming; Worker reads Next()
// until it returns ok=false, then inspects Err/Final.
type StreamHandle interface {
	Next() (ContentBlock, bool)
	Err() error
	Final() Response
}
