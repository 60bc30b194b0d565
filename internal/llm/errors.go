package llm

import "errors"

// Classification sentinels for model-call failures. Adapters wrap transport
// and status errors with these so callers can branch with errors.Is without
// knowing the provider.
var (
	ErrAuth         = errors.New("model authentication failed")
	ErrRateLimited  = errors.New("model rate limited")
	ErrConnectivity = errors.New("model unreachable")
)
