// Package llm defines the language-model collaborator interface used for
// per-contribution analysis and executive summaries.
package llm

import (
	"context"
	"encoding/json"
)

// Role constants for Message.Role.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// StopReason describes why the model stopped generating.
const (
	StopReasonEndTurn   = "end_turn"
	StopReasonToolUse   = "tool_use"
	StopReasonMaxTokens = "max_tokens"
)

// ToolUse represents a tool call produced by the model.
type ToolUse struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// Message is a single turn in the conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ToolSchema describes a tool's interface for the model.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"` // JSON Schema object
}

// CompletionRequest is the input to a provider's Complete() call.
type CompletionRequest struct {
	Messages     []Message
	SystemPrompt string
	Tools        []ToolSchema
	// ForceTool names the tool the model must call. Structured output is
	// obtained by forcing a single tool whose input schema is the result shape.
	ForceTool   string
	MaxTokens   int
	Temperature float64
	Model       string // override provider default if set
}

// CompletionResponse is returned by Complete().
type CompletionResponse struct {
	Text         string
	StopReason   string
	ToolUse      *ToolUse // populated when StopReason == StopReasonToolUse
	InputTokens  int
	OutputTokens int
}

// Provider is the language model backend.
type Provider interface {
	// Complete sends a completion request and waits for the full response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// ModelID returns the current model identifier string.
	ModelID() string
}

// UserMessage creates a single user turn.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// StructuredOutput returns the forced tool's input, or nil when the model
// answered in text instead.
func (r *CompletionResponse) StructuredOutput(tool string) json.RawMessage {
	if r == nil || r.ToolUse == nil || r.ToolUse.Name != tool {
		return nil
	}
	return r.ToolUse.Input
}
