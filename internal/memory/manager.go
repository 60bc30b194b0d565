package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kestrel-agent/kestrel/internal/interfaces"
	"github.com/kestrel-agent/kestrel/internal/store"
)

// Config controls when and how history is consolidated.
type Config struct {
	// Threshold is the unconsolidated message count that triggers
	// consolidation.
	Threshold int
	// KeepRecentRatio is the fraction of Threshold kept verbatim and never
	// summarized.
	KeepRecentRatio float64
	// SummaryWordBudget caps the rolling summary; oldest paragraphs are
	// dropped beyond it.
	SummaryWordBudget int
}

func (c Config) withDefaults() Config {
	if c.Threshold <= 0 {
		c.Threshold = 100
	}
	if c.KeepRecentRatio <= 0 || c.KeepRecentRatio >= 1 {
		c.KeepRecentRatio = 0.2
	}
	if c.SummaryWordBudget <= 0 {
		c.SummaryWordBudget = 2000
	}
	return c
}

// Manager assembles model context from durable state and compresses old
// history into a rolling per-session summary.
type Manager struct {
	store    *store.Store
	provider interfaces.Provider
	skills   interfaces.SkillSet
	cfg      Config
	log      *slog.Logger
}

// NewManager builds a manager. skills may be nil.
func NewManager(st *store.Store, provider interfaces.Provider, skills interfaces.SkillSet, cfg Config, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		store:    st,
		provider: provider,
		skills:   skills,
		cfg:      cfg.withDefaults(),
		log:      log,
	}
}

func (m *Manager) keepRecent() int {
	k := int(float64(m.cfg.Threshold) * m.cfg.KeepRecentRatio)
	if k < 1 {
		k = 1
	}
	return k
}

// BuildContext assembles the message list for one model call: a composed
// system message, the unconsolidated history window, and the incoming user
// message. When the window has outgrown the threshold it is consolidated
// first.
func (m *Manager) BuildContext(ctx context.Context, session, systemPrompt, userMessage string) ([]interfaces.Message, error) {
	var (
		memoryDoc string
		summary   string
		cursor    int
		total     int
	)
	var g errgroup.Group
	g.Go(func() error {
		var err error
		memoryDoc, err = m.store.LoadMemory()
		return err
	})
	g.Go(func() error {
		var err error
		summary, err = m.store.LoadSummary(session)
		return err
	})
	g.Go(func() error {
		var err error
		cursor, err = m.store.LoadCursor(session)
		return err
	})
	g.Go(func() error {
		var err error
		total, err = m.store.CountHistory(session)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load context: %w", err)
	}

	if cursor > total {
		// A truncated or restored log can leave a stale cursor behind.
		// Clamp rather than fail the turn.
		m.log.Warn("cursor beyond history length, clamping",
			"session", session, "cursor", cursor, "history", total)
		cursor = total
	}

	// Only the unconsolidated span is decoded; per-turn work tracks the
	// window size, not the total log.
	window, err := m.store.LoadRecentHistory(session, total-cursor)
	if err != nil {
		return nil, fmt.Errorf("load history window: %w", err)
	}
	if len(window) > m.cfg.Threshold {
		window = m.Consolidate(ctx, session, window, cursor, total)
		s, err := m.store.LoadSummary(session)
		if err != nil {
			return nil, fmt.Errorf("reload summary: %w", err)
		}
		summary = s
	}

	system := m.composeSystem(systemPrompt, memoryDoc, summary, len(window))

	msgs := make([]interfaces.Message, 0, len(window)+2)
	msgs = append(msgs, interfaces.Message{
		Role:      interfaces.RoleSystem,
		Content:   system,
		Timestamp: time.Now(),
	})
	msgs = append(msgs, labelSenders(window)...)
	msgs = append(msgs, interfaces.Message{
		Role:      interfaces.RoleUser,
		Content:   userMessage,
		Timestamp: time.Now(),
	})
	return msgs, nil
}

// composeSystem merges the base prompt with skills, long-term memory, the
// session summary, and a persistence warning when consolidation is near.
func (m *Manager) composeSystem(base, memoryDoc, summary string, window int) string {
	var b strings.Builder
	b.WriteString(base)

	if m.skills != nil {
		for _, body := range m.skills.AlwaysOn() {
			b.WriteString("\n\n")
			b.WriteString(strings.TrimSpace(body))
		}
		if sums := m.skills.Summaries(); len(sums) > 0 {
			b.WriteString("\n\n## Available skills\n")
			for _, line := range sums {
				b.WriteString("- ")
				b.WriteString(line)
				b.WriteString("\n")
			}
		}
	}

	if strings.TrimSpace(memoryDoc) != "" {
		b.WriteString("\n\n## Long-term memory\n\n")
		b.WriteString(strings.TrimSpace(memoryDoc))
	}
	if strings.TrimSpace(summary) != "" {
		b.WriteString("\n\n## Earlier in this session\n\n")
		b.WriteString(strings.TrimSpace(summary))
	}

	// Two user/assistant exchanges of headroom left before consolidation.
	if m.cfg.Threshold-window <= 4 {
		b.WriteString("\n\nOlder history will be compressed soon. Save anything important to long-term memory now.")
	}
	return b.String()
}

// labelSenders prefixes user turns with their origin when a session mixes
// messages from more than one sender.
func labelSenders(window []interfaces.Message) []interfaces.Message {
	senders := make(map[string]struct{})
	for _, msg := range window {
		if msg.Role == interfaces.RoleUser && msg.SenderID != "" {
			senders[interfaces.SessionKey(msg.Channel, msg.SenderID)] = struct{}{}
		}
	}
	if len(senders) < 2 {
		return window
	}
	out := make([]interfaces.Message, len(window))
	copy(out, window)
	for i := range out {
		if out[i].Role == interfaces.RoleUser && out[i].SenderID != "" {
			out[i].Content = fmt.Sprintf("[%s:%s] %s", out[i].Channel, out[i].SenderID, out[i].Content)
		}
	}
	return out
}

// Consolidate summarizes the older part of the unconsolidated window,
// appends the result to the session summary, and advances the cursor.
// window holds the records after the cursor; cursor and total are absolute
// record indices into the session log, and the cursor advances to
// total-keepRecent. The summary is written before the cursor so a crash
// between the two writes re-summarizes the same range instead of losing it.
// On any failure nothing is written and the same range is retried on the
// next qualifying turn. The returned slice is the effective in-context
// history either way.
func (m *Manager) Consolidate(ctx context.Context, session string, window []interfaces.Message, cursor, total int) []interfaces.Message {
	keep := m.keepRecent()
	tailStart := total - keep
	split := len(window) - keep
	if tailStart <= cursor || split <= 0 {
		return window
	}
	tail := window[split:]

	transcript, turns := renderTranscript(window[:split])
	if transcript == "" {
		return tail
	}

	sentences := turns / 10
	if sentences < 5 {
		sentences = 5
	}
	prompt := fmt.Sprintf(
		"Condense the following conversation into at most %d sentences. Keep decisions, facts, names, and open tasks. Reply with the summary only.\n\n%s",
		sentences, transcript)

	reply, err := m.provider.Chat(ctx, []interfaces.Message{{
		Role:      interfaces.RoleUser,
		Content:   prompt,
		Timestamp: time.Now(),
	}}, nil)
	if err != nil {
		m.log.Warn("consolidation skipped, model call failed",
			"session", session, "error", err)
		return tail
	}
	fresh := strings.TrimSpace(reply.Content)
	if fresh == "" {
		m.log.Warn("consolidation skipped, empty summary", "session", session)
		return tail
	}

	prior, err := m.store.LoadSummary(session)
	if err != nil {
		m.log.Warn("consolidation skipped, summary unreadable",
			"session", session, "error", err)
		return tail
	}
	combined := fresh
	if strings.TrimSpace(prior) != "" {
		combined = strings.TrimSpace(prior) + "\n\n" + fresh
	}
	combined = trimToWordBudget(combined, m.cfg.SummaryWordBudget)

	if err := m.store.SaveSummary(session, combined); err != nil {
		m.log.Warn("consolidation skipped, summary write failed",
			"session", session, "error", err)
		return tail
	}
	if err := m.store.SaveCursor(session, tailStart); err != nil {
		// The summary is durable; a stale cursor only means the range is
		// summarized again next turn.
		m.log.Warn("cursor write failed after summary",
			"session", session, "error", err)
		return tail
	}

	m.log.Info("consolidated session history",
		"session", session, "summarized", tailStart-cursor, "kept", keep)
	return tail
}

// renderTranscript flattens user and assistant turns into plain text for the
// summarization prompt. Tool traffic is noise at this zoom level.
func renderTranscript(msgs []interfaces.Message) (string, int) {
	var b strings.Builder
	turns := 0
	for _, msg := range msgs {
		if msg.Role != interfaces.RoleUser && msg.Role != interfaces.RoleAssistant {
			continue
		}
		if strings.TrimSpace(msg.Content) == "" {
			continue
		}
		b.WriteString(msg.Role)
		b.WriteString(": ")
		b.WriteString(msg.Content)
		b.WriteString("\n")
		turns++
	}
	return strings.TrimSpace(b.String()), turns
}

// trimToWordBudget drops the oldest paragraphs until the text fits budget
// words. The newest paragraph always survives.
func trimToWordBudget(text string, budget int) string {
	if len(strings.Fields(text)) <= budget {
		return text
	}
	paras := strings.Split(text, "\n\n")
	for len(paras) > 1 && len(strings.Fields(strings.Join(paras, "\n\n"))) > budget {
		paras = paras[1:]
	}
	return strings.Join(paras, "\n\n")
}

// PersistExchange appends the user turn and the assistant reply to durable
// history. Both are written even when the reply is empty so consolidation
// always sees symmetric turns.
func (m *Manager) PersistExchange(session string, userMsg, reply interfaces.Message) error {
	if err := m.store.AppendMessage(session, userMsg); err != nil {
		return fmt.Errorf("persist user turn: %w", err)
	}
	if err := m.store.AppendMessage(session, reply); err != nil {
		return fmt.Errorf("persist assistant turn: %w", err)
	}
	return nil
}
