package tools

import (
	"context"
	"fmt"
	"sync"

	"github.com/kestrel-agent/kestrel/internal/interfaces"
)

// Registry is a name-keyed collection of tools exposed to the model.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]interfaces.Tool
	order []string
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]interfaces.Tool)}
}

// Register adds a tool. A duplicate name is a wiring bug and fails
// immediately rather than silently replacing the first registration.
func (r *Registry) Register(tool interfaces.Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := tool.Name()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %q already registered", name)
	}
	r.tools[name] = tool
	r.order = append(r.order, name)
	return nil
}

// Definitions lists every tool's schema in registration order.
func (r *Registry) Definitions() []interfaces.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]interfaces.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		defs = append(defs, interfaces.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return defs
}

// Execute dispatches one tool call. Unknown names and tool failures are
// reported inside the result, never as an error: one bad call must not
// abort the turn, and the model needs the failure text to react.
func (r *Registry) Execute(ctx context.Context, call interfaces.ToolCall) interfaces.ToolResult {
	r.mu.RLock()
	tool, ok := r.tools[call.Name]
	r.mu.RUnlock()
	if !ok {
		return interfaces.ToolResult{
			ToolCallID: call.ID,
			Content:    fmt.Sprintf("unknown tool: %s", call.Name),
			IsError:    true,
		}
	}
	content, err := tool.Execute(ctx, call.Arguments)
	if err != nil {
		return interfaces.ToolResult{ToolCallID: call.ID, Content: err.Error(), IsError: true}
	}
	return interfaces.ToolResult{ToolCallID: call.ID, Content: content}
}
