package agent

import (
	"errors"

	"github.com/kestrel-agent/kestrel/internal/llm"
)

// userSafeError maps a model-call failure onto a short line safe to show in
// the channel. Raw provider errors stay in the logs.
func userSafeError(err error) string {
	switch {
	case errors.Is(err, llm.ErrAuth):
		return "I can't reach the model: authentication failed. Check the configured API key."
	case errors.Is(err, llm.ErrRateLimited):
		return "The model is rate limiting us. Give it a moment and try again."
	case errors.Is(err, llm.ErrConnectivity):
		return "I couldn't reach the model service. Check the connection and try again."
	default:
		return "The model call failed unexpectedly. Please try again."
	}
}
