package agent

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/kestrel-agent/kestrel/internal/interfaces"
)

// streamForwarder relays model text fragments to a channel, coalescing
// bursts so chatty providers don't turn into one send per token.
type streamForwarder struct {
	ch       interfaces.Channel
	senderID string
	limiter  *rate.Limiter
	log      *slog.Logger

	mu      sync.Mutex
	pending strings.Builder
}

func newStreamForwarder(ch interfaces.Channel, senderID string, log *slog.Logger) *streamForwarder {
	return &streamForwarder{
		ch:       ch,
		senderID: senderID,
		limiter:  rate.NewLimiter(rate.Every(200*time.Millisecond), 1),
		log:      log,
	}
}

// Delta buffers a fragment and forwards the accumulated text when the rate
// limiter allows. Buffered text is never dropped; Flush drains the rest.
func (f *streamForwarder) Delta(ctx context.Context, text string) {
	f.mu.Lock()
	f.pending.WriteString(text)
	f.mu.Unlock()
	if f.limiter.Allow() {
		f.Flush(ctx)
	}
}

// Flush sends whatever is buffered.
func (f *streamForwarder) Flush(ctx context.Context) {
	f.mu.Lock()
	text := f.pending.String()
	f.pending.Reset()
	f.mu.Unlock()
	if text == "" {
		return
	}
	if err := f.ch.Send(ctx, f.senderID, text); err != nil {
		f.log.Warn("stream send failed", "channel", f.ch.Name(), "error", err)
	}
}
