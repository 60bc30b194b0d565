package llm

import (
	"context"
	"strings"
	"sync"

	"github.com/kestrel-agent/kestrel/internal/interfaces"
)

// Dummy is a scripted provider for tests and offline use. Each Chat call
// pops the next scripted reply; once the script runs out it echoes the last
// user message. Err, when set, fails every call.
type Dummy struct {
	mu     sync.Mutex
	Script []interfaces.Reply
	Err    error

	// Calls records the message list of every invocation.
	Calls [][]interfaces.Message
}

var _ interfaces.StreamingProvider = (*Dummy)(nil)

func (d *Dummy) Chat(ctx context.Context, messages []interfaces.Message, tools []interfaces.ToolDefinition) (*interfaces.Reply, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	recorded := make([]interfaces.Message, len(messages))
	copy(recorded, messages)
	d.Calls = append(d.Calls, recorded)

	if d.Err != nil {
		return nil, d.Err
	}
	if len(d.Script) > 0 {
		reply := d.Script[0]
		d.Script = d.Script[1:]
		return &reply, nil
	}
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == interfaces.RoleUser {
			return &interfaces.Reply{Content: "echo: " + messages[i].Content}, nil
		}
	}
	return &interfaces.Reply{Content: "ok"}, nil
}

// ChatStream delivers the scripted reply in word-sized fragments.
func (d *Dummy) ChatStream(ctx context.Context, messages []interfaces.Message, tools []interfaces.ToolDefinition, onDelta func(string)) (*interfaces.Reply, error) {
	reply, err := d.Chat(ctx, messages, tools)
	if err != nil {
		return nil, err
	}
	if onDelta != nil && reply.Content != "" {
		words := strings.SplitAfter(reply.Content, " ")
		for _, w := range words {
			onDelta(w)
		}
	}
	return reply, nil
}
