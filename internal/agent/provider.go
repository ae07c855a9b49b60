package agent

import (
	"context"
	"encoding/json"
)

// ToolDefinition describes one tool offered to the model. InputSchema is a
// JSON Schema object.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// ChatRequest is the provider-independent request shape. Providers translate
// it into their own wire format.
type ChatRequest struct {
	Model          string
	Messages       []Message
	System         string
	Tools          []ToolDefinition
	MaxTokens      int
	Temperature    *float64
	ThinkingBudget int
}

// Provider streams one chat completion. StreamChat issues the HTTP request
// synchronously: connection and status failures surface as the returned
// error so the caller's retry policy sees them. Body parsing happens in a
// goroutine feeding the channel; the channel is closed when the stream ends
// or after an EventError.
type Provider interface {
	Name() string
	StreamChat(ctx context.Context, req ChatRequest) (<-chan Event, error)
}

// ToolResult is the outcome of one tool execution.
type ToolResult struct {
	Content string
	IsError bool
}

// ToolExecutor runs tool calls on behalf of the turn loop.
type ToolExecutor interface {
	Definitions() []ToolDefinition
	Execute(ctx context.Context, name string, input json.RawMessage) (ToolResult, error)
}
