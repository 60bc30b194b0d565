package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kestrel-agent/kestrel/internal/interfaces"
	"github.com/kestrel-agent/kestrel/internal/memory"
	"github.com/kestrel-agent/kestrel/internal/tools"
)

// DefaultSystemPrompt is used when the configuration does not set one.
const DefaultSystemPrompt = "You are Kestrel, a personal automation agent. Be concise and direct. Use tools when they help, and keep durable notes with the remember tool."

const defaultMaxRounds = 10

// maxRoundsReply is the fixed fallback when the model keeps requesting
// tools past the round cap.
const maxRoundsReply = "Maximum tool rounds exceeded. Stopping here; try narrowing the request."

// Loop drives one inbound message through the model/tool cycle: build
// context, call the model, execute any tool calls, repeat up to the round
// cap, then deliver and persist.
type Loop struct {
	provider     interfaces.Provider
	memory       *memory.Manager
	tools        *tools.Registry
	systemPrompt string
	maxRounds    int
	log          *slog.Logger
}

// New builds a loop. systemPrompt and maxRounds fall back to defaults when
// zero.
func New(provider interfaces.Provider, mem *memory.Manager, reg *tools.Registry, systemPrompt string, maxRounds int, log *slog.Logger) *Loop {
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	if maxRounds <= 0 {
		maxRounds = defaultMaxRounds
	}
	if log == nil {
		log = slog.Default()
	}
	return &Loop{
		provider:     provider,
		memory:       mem,
		tools:        reg,
		systemPrompt: systemPrompt,
		maxRounds:    maxRounds,
		log:          log,
	}
}

// HandleInbound processes one message from a channel: the reply is
// delivered through the channel and the exchange is persisted. Model-call
// failures deliver a short safe line and persist nothing.
func (l *Loop) HandleInbound(ctx context.Context, ch interfaces.Channel, in interfaces.Inbound) {
	l.run(ctx, ch, in)
}

// HandleJob runs a scheduled job's message through the loop under the job's
// channel session. Model failures come back as the error so the scheduler
// records the run as failed rather than as a reply.
func (l *Loop) HandleJob(ctx context.Context, ch interfaces.Channel, job interfaces.Job) (string, error) {
	return l.run(ctx, ch, interfaces.Inbound{
		Channel:  job.Channel,
		SenderID: "cron:" + job.ID,
		Content:  job.Message,
	})
}

// run drives one turn to completion and returns the final reply text. A
// failed turn returns the underlying error after its user-safe line has
// been delivered, and leaves no trace in history so a retry starts clean.
func (l *Loop) run(ctx context.Context, ch interfaces.Channel, in interfaces.Inbound) (string, error) {
	session := in.SessionKey()
	start := time.Now()
	l.log.Debug("turn started", "session", session, "channel", in.Channel)

	typingCtx, stopTyping := context.WithCancel(ctx)
	go l.keepTyping(typingCtx, ch, in.SenderID)
	defer stopTyping()

	msgs, err := l.memory.BuildContext(ctx, session, l.systemPrompt, in.Content)
	if err != nil {
		l.log.Error("build context failed", "session", session, "error", err)
		l.send(ctx, ch, in.SenderID, "Something went wrong preparing the conversation. Please try again.")
		return "", fmt.Errorf("build context: %w", err)
	}

	final, streamed, err := l.converse(ctx, ch, in, msgs)
	if err != nil {
		return "", err
	}
	if !streamed && final != "" {
		l.send(ctx, ch, in.SenderID, final)
	}

	now := time.Now()
	userMsg := interfaces.Message{
		Role:      interfaces.RoleUser,
		Content:   in.Content,
		Timestamp: now,
		Channel:   in.Channel,
		SenderID:  in.SenderID,
	}
	replyMsg := interfaces.Message{
		Role:      interfaces.RoleAssistant,
		Content:   final,
		Timestamp: now,
		Channel:   in.Channel,
	}
	if err := l.memory.PersistExchange(session, userMsg, replyMsg); err != nil {
		l.log.Error("persist exchange failed", "session", session, "error", err)
	}
	l.log.Debug("turn finished", "session", session, "duration", time.Since(start))
	return final, nil
}

// converse runs the round-capped model/tool cycle. streamed reports whether
// the final text already reached the channel as fragments. A model-call
// error comes back after its safe line has been delivered.
func (l *Loop) converse(ctx context.Context, ch interfaces.Channel, in interfaces.Inbound, msgs []interfaces.Message) (final string, streamed bool, err error) {
	defs := l.tools.Definitions()

	for round := 1; round <= l.maxRounds; round++ {
		reply, viaStream, err := l.chat(ctx, ch, in, msgs, defs)
		if err != nil {
			l.log.Error("model call failed",
				"session", in.SessionKey(), "round", round, "error", err)
			l.send(ctx, ch, in.SenderID, userSafeError(err))
			return "", false, err
		}
		if len(reply.ToolCalls) == 0 {
			return reply.Content, viaStream, nil
		}

		// Tool round. Calls and results live only in the in-flight context;
		// durable history gets the exchange once at the end of the turn.
		msgs = append(msgs, interfaces.Message{
			Role:      interfaces.RoleAssistant,
			Content:   reply.Content,
			ToolCalls: reply.ToolCalls,
			Timestamp: time.Now(),
		})
		for _, call := range reply.ToolCalls {
			l.log.Debug("executing tool", "tool", call.Name, "round", round)
			res := l.tools.Execute(ctx, call)
			if res.IsError {
				l.log.Warn("tool failed", "tool", call.Name, "error", res.Content)
			}
			msgs = append(msgs, interfaces.Message{
				Role:       interfaces.RoleTool,
				Content:    res.Content,
				ToolCallID: res.ToolCallID,
				Timestamp:  time.Now(),
			})
		}
	}

	l.log.Warn("round cap reached", "session", in.SessionKey(), "rounds", l.maxRounds)
	return maxRoundsReply, false, nil
}

// chat performs one model call, streaming fragments to the channel when
// both sides support it.
func (l *Loop) chat(ctx context.Context, ch interfaces.Channel, in interfaces.Inbound, msgs []interfaces.Message, defs []interfaces.ToolDefinition) (*interfaces.Reply, bool, error) {
	if ch.Streaming() {
		if sp, ok := l.provider.(interfaces.StreamingProvider); ok {
			fwd := newStreamForwarder(ch, in.SenderID, l.log)
			reply, err := sp.ChatStream(ctx, msgs, defs, func(delta string) {
				fwd.Delta(ctx, delta)
			})
			fwd.Flush(ctx)
			if err != nil {
				return nil, false, err
			}
			return reply, reply.Content != "", nil
		}
	}
	reply, err := l.provider.Chat(ctx, msgs, defs)
	return reply, false, err
}

// keepTyping refreshes the channel's typing indicator until the turn ends.
func (l *Loop) keepTyping(ctx context.Context, ch interfaces.Channel, senderID string) {
	if err := ch.Typing(ctx, senderID, true); err != nil {
		return
	}
	ticker := time.NewTicker(8 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			ch.Typing(context.WithoutCancel(ctx), senderID, false)
			return
		case <-ticker.C:
			ch.Typing(ctx, senderID, true)
		}
	}
}

func (l *Loop) send(ctx context.Context, ch interfaces.Channel, senderID, text string) {
	if err := ch.Send(ctx, senderID, text); err != nil {
		l.log.Warn("channel send failed", "channel", ch.Name(), "error", err)
	}
}
