package interfaces

import "context"

// ToolDefinition describes a tool to the model.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Reply is the terminal outcome of one model call: plain text, a batch of
// tool calls, or both.
type Reply struct {
	Content   string
	ToolCalls []ToolCall
}

// Provider is the model port. Chat blocks until the model produces a
// terminal reply for the given conversation.
type Provider interface {
	Chat(ctx context.Context, messages []Message, tools []ToolDefinition) (*Reply, error)
}

// StreamingProvider is implemented by providers that can deliver text
// incrementally. onDelta receives each fragment as it arrives; the returned
// Reply still carries the complete content.
type StreamingProvider interface {
	Provider
	ChatStream(ctx context.Context, messages []Message, tools []ToolDefinition, onDelta func(string)) (*Reply, error)
}
