package interfaces

import "context"

// Inbound is one message received from a channel.
type Inbound struct {
	Channel  string
	SenderID string
	Content  string
	Metadata map[string]string
}

// SessionKey returns the session this message belongs to.
func (m Inbound) SessionKey() string {
	return SessionKey(m.Channel, m.SenderID)
}

// Channel is a message transport adapter.
type Channel interface {
	Name() string

	// Streaming reports whether the channel wants text fragments forwarded
	// as they arrive rather than one buffered reply per turn.
	Streaming() bool

	Send(ctx context.Context, senderID, text string) error

	// Typing toggles a typing indicator. Channels without one return nil.
	Typing(ctx context.Context, senderID string, on bool) error

	// Run blocks, delivering received messages to handle until ctx is
	// cancelled. Turns within a session are delivered sequentially.
	Run(ctx context.Context, handle func(context.Context, Inbound)) error
}
