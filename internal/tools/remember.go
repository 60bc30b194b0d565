package tools

import (
	"context"
	"fmt"

	"github.com/kestrel-agent/kestrel/internal/store"
)

// RememberTool lets the model rewrite the global memory document. The
// document is wholly model-owned: every write replaces it in full.
type RememberTool struct {
	store *store.Store
}

func NewRememberTool(s *store.Store) *RememberTool {
	return &RememberTool{store: s}
}

func (t *RememberTool) Name() string {
	return "remember"
}

func (t *RememberTool) Description() string {
	return "Replace the long-term memory document. Write the complete new document every time; previous content is discarded."
}

func (t *RememberTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"content": map[string]any{
				"type":        "string",
				"description": "The full text of the new memory document.",
			},
		},
		"required": []string{"content"},
	}
}

func (t *RememberTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	content, ok := args["content"].(string)
	if !ok {
		return "", fmt.Errorf("remember: content must be a string")
	}
	if err := t.store.SaveMemory(content); err != nil {
		return "", fmt.Errorf("remember: %w", err)
	}
	return "memory updated", nil
}
