package interfaces

import "context"

// Tool is a capability the model may invoke. Execute reports failure
// through the returned error and must not panic.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any
	Execute(ctx context.Context, args map[string]any) (string, error)
}
