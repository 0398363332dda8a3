// Package llm speaks the Anthropic Messages API: request building, tool
// declaration, multi-turn conversations carrying tool results, and
// credential management. The wire format stays inside this package;
// callers work with the neutral Message/ToolCall/ChatResponse types.
package llm

import (
	"context"
	"log/slog"
)

// LevelTrace is below Debug, used for wire-level payload logging. It
// matches config.LevelTrace; redeclared here so the wire code does not
// depend on the config package.
const LevelTrace = slog.Level(-8)

// Message roles. Tool results travel as role "tool" internally and are
// converted to the provider's tool_result form on the wire.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// StopReasonToolUse is the stop reason signalling the model wants tools
// executed before it can continue.
const StopReasonToolUse = "tool_use"

// Message is one turn in a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`

	// ToolCalls carries the tool invocations an assistant turn
	// requested, in request order.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID links a role "tool" message back to the invocation it
	// answers.
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// ToolCall is a single tool invocation requested by the model.
type ToolCall struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

// Tool declares one catalog entry for the model.
type Tool struct {
	Name        string
	Description string
	InputSchema any
}

// Request is one model invocation.
type Request struct {
	Model     string
	MaxTokens int
	System    string
	Tools     []Tool
	Messages  []Message
}

// ChatResponse is the model's reply to a Request.
type ChatResponse struct {
	Model        string
	StopReason   string
	Message      Message
	InputTokens  int
	OutputTokens int
}

// WantsTools reports whether the model stopped to have tools executed.
func (r *ChatResponse) WantsTools() bool {
	return r.StopReason == StopReasonToolUse && len(r.Message.ToolCalls) > 0
}

// Client is the surface the orchestrator depends on; tests substitute
// a scripted implementation.
type Client interface {
	Chat(ctx context.Context, req Request) (*ChatResponse, error)
}
