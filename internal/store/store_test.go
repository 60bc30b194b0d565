package store

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kestrel-agent/kestrel/internal/interfaces"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return s
}

func userMsg(content string) interfaces.Message {
	return interfaces.Message{
		Role:      interfaces.RoleUser,
		Content:   content,
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Channel:   "cli",
		SenderID:  "local",
	}
}

func TestAppendAndLoadHistory(t *testing.T) {
	s := openTestStore(t)
	session := "cli:local"

	if err := s.AppendMessage(session, userMsg("hello")); err != nil {
		t.Fatalf("append: %v", err)
	}
	reply := interfaces.Message{Role: interfaces.RoleAssistant, Content: "hi there", Timestamp: time.Now()}
	if err := s.AppendMessage(session, reply); err != nil {
		t.Fatalf("append: %v", err)
	}

	got, err := s.LoadHistory(session)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d messages, want 2", len(got))
	}
	if got[0].Role != interfaces.RoleUser || got[0].Content != "hello" {
		t.Errorf("first record = %+v, want user hello", got[0])
	}
	if got[1].Role != interfaces.RoleAssistant || got[1].Content != "hi there" {
		t.Errorf("second record = %+v, want assistant hi there", got[1])
	}
}

func TestLoadHistoryMissingSession(t *testing.T) {
	s := openTestStore(t)
	got, err := s.LoadHistory("cli:nobody")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("got %d messages, want 0", len(got))
	}
}

func TestLoadHistorySkipsMalformedLines(t *testing.T) {
	s := openTestStore(t)
	session := "cli:local"

	if err := s.AppendMessage(session, userMsg("one")); err != nil {
		t.Fatalf("append: %v", err)
	}
	f, err := os.OpenFile(s.historyPath(session), os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := f.WriteString("{this is not json\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	f.Close()
	if err := s.AppendMessage(session, userMsg("two")); err != nil {
		t.Fatalf("append: %v", err)
	}

	got, err := s.LoadHistory(session)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d messages, want 2 (malformed line skipped)", len(got))
	}
	if got[0].Content != "one" || got[1].Content != "two" {
		t.Errorf("records = %q, %q; want one, two", got[0].Content, got[1].Content)
	}

	recent, err := s.LoadRecentHistory(session, 2)
	if err != nil {
		t.Fatalf("load recent: %v", err)
	}
	if len(recent) != 2 || recent[0].Content != "one" || recent[1].Content != "two" {
		t.Errorf("recent = %+v, want one then two", recent)
	}
}

func TestLoadRecentHistory(t *testing.T) {
	s := openTestStore(t)
	session := "cli:local"
	for i := 0; i < 50; i++ {
		if err := s.AppendMessage(session, userMsg(fmt.Sprintf("msg-%02d", i))); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	got, err := s.LoadRecentHistory(session, 5)
	if err != nil {
		t.Fatalf("load recent: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("got %d messages, want 5", len(got))
	}
	for i, msg := range got {
		want := fmt.Sprintf("msg-%02d", 45+i)
		if msg.Content != want {
			t.Errorf("recent[%d] = %q, want %q", i, msg.Content, want)
		}
	}
}

func TestLoadRecentHistoryNonPositive(t *testing.T) {
	s := openTestStore(t)
	session := "cli:local"
	if err := s.AppendMessage(session, userMsg("hello")); err != nil {
		t.Fatalf("append: %v", err)
	}
	for _, n := range []int{0, -1} {
		got, err := s.LoadRecentHistory(session, n)
		if err != nil {
			t.Fatalf("load recent n=%d: %v", n, err)
		}
		if len(got) != 0 {
			t.Errorf("n=%d returned %d messages, want 0", n, len(got))
		}
	}
}

func TestLoadRecentHistoryMoreThanAvailable(t *testing.T) {
	s := openTestStore(t)
	session := "cli:local"
	for i := 0; i < 3; i++ {
		if err := s.AppendMessage(session, userMsg(fmt.Sprintf("m%d", i))); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	got, err := s.LoadRecentHistory(session, 10)
	if err != nil {
		t.Fatalf("load recent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d messages, want all 3", len(got))
	}
}

func TestCountHistory(t *testing.T) {
	s := openTestStore(t)
	session := "cli:local"

	if got, err := s.CountHistory("cli:nobody"); err != nil || got != 0 {
		t.Errorf("missing session count = %d, %v; want 0", got, err)
	}

	for i := 0; i < 7; i++ {
		if err := s.AppendMessage(session, userMsg(fmt.Sprintf("m%d", i))); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if got, err := s.CountHistory(session); err != nil || got != 7 {
		t.Errorf("count = %d, %v; want 7", got, err)
	}

	// An unterminated final record still counts.
	f, err := os.OpenFile(s.historyPath(session), os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := f.WriteString(`{"role":"user","content":"torn`); err != nil {
		t.Fatalf("write: %v", err)
	}
	f.Close()
	if got, err := s.CountHistory(session); err != nil || got != 8 {
		t.Errorf("count with torn tail = %d, %v; want 8", got, err)
	}
}

// countingReaderAt records how many bytes the tail scan actually touches.
type countingReaderAt struct {
	f     *os.File
	bytes int64
}

func (c *countingReaderAt) ReadAt(p []byte, off int64) (int, error) {
	n, err := c.f.ReadAt(p, off)
	c.bytes += int64(n)
	return n, err
}

func TestTailScanBoundedIO(t *testing.T) {
	s := openTestStore(t)
	session := "cli:local"
	padding := strings.Repeat("x", 100)
	for i := 0; i < 5000; i++ {
		if err := s.AppendMessage(session, userMsg(fmt.Sprintf("%s-%04d", padding, i))); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	f, err := os.Open(s.historyPath(session))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		t.Fatalf("stat: %v", err)
	}

	counter := &countingReaderAt{f: f}
	got, bad, _, err := tailScan(counter, info.Size(), 10)
	if err != nil {
		t.Fatalf("tail scan: %v", err)
	}
	if bad != 0 {
		t.Fatalf("bad = %d, want 0", bad)
	}
	if len(got) != 10 {
		t.Fatalf("got %d messages, want 10", len(got))
	}
	if got[9].Content != padding+"-4999" {
		t.Errorf("last record = %q, want %q", got[9].Content, padding+"-4999")
	}
	// Ten ~250 byte records fit in a single block; reading more than a
	// couple of blocks would mean the scan is not bounded.
	if counter.bytes > 3*tailBlockSize {
		t.Errorf("tail scan read %d bytes for 10 records, want <= %d", counter.bytes, 3*tailBlockSize)
	}
	if counter.bytes >= info.Size() {
		t.Errorf("tail scan read the whole %d byte file", info.Size())
	}
}

func TestTailScanRecordSpanningBlocks(t *testing.T) {
	s := openTestStore(t)
	session := "cli:local"
	big := strings.Repeat("y", tailBlockSize+500)
	if err := s.AppendMessage(session, userMsg("before")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.AppendMessage(session, userMsg(big)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.AppendMessage(session, userMsg("after")); err != nil {
		t.Fatalf("append: %v", err)
	}

	got, err := s.LoadRecentHistory(session, 3)
	if err != nil {
		t.Fatalf("load recent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d messages, want 3", len(got))
	}
	if got[1].Content != big {
		t.Errorf("middle record truncated: got %d bytes, want %d", len(got[1].Content), len(big))
	}
}

func TestMemoryRoundtrip(t *testing.T) {
	s := openTestStore(t)

	got, err := s.LoadMemory()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != "" {
		t.Fatalf("fresh store memory = %q, want empty", got)
	}

	doc := "# Notes\n\nUser prefers short replies.\n"
	if err := s.SaveMemory(doc); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err = s.LoadMemory()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != doc {
		t.Errorf("memory = %q, want %q", got, doc)
	}

	// Overwriting with the empty string clears the document.
	if err := s.SaveMemory(""); err != nil {
		t.Fatalf("save empty: %v", err)
	}
	got, err = s.LoadMemory()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != "" {
		t.Errorf("memory after clear = %q, want empty", got)
	}
}

func TestSummaryAndCursorRoundtrip(t *testing.T) {
	s := openTestStore(t)
	session := "ws:alice@example"

	if sum, err := s.LoadSummary(session); err != nil || sum != "" {
		t.Fatalf("fresh summary = %q, %v; want empty, nil", sum, err)
	}
	if cur, err := s.LoadCursor(session); err != nil || cur != 0 {
		t.Fatalf("fresh cursor = %d, %v; want 0, nil", cur, err)
	}

	if err := s.SaveSummary(session, "they discussed birds"); err != nil {
		t.Fatalf("save summary: %v", err)
	}
	if err := s.SaveCursor(session, 42); err != nil {
		t.Fatalf("save cursor: %v", err)
	}

	sum, err := s.LoadSummary(session)
	if err != nil || sum != "they discussed birds" {
		t.Errorf("summary = %q, %v", sum, err)
	}
	cur, err := s.LoadCursor(session)
	if err != nil || cur != 42 {
		t.Errorf("cursor = %d, %v; want 42", cur, err)
	}
}

func TestCursorUnparseableResetsToZero(t *testing.T) {
	s := openTestStore(t)
	session := "cli:local"
	if err := os.WriteFile(s.cursorPath(session), []byte("not a number"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cur, err := s.LoadCursor(session)
	if err != nil {
		t.Fatalf("load cursor: %v", err)
	}
	if cur != 0 {
		t.Errorf("cursor = %d, want 0", cur)
	}
}

func TestJobsRoundtrip(t *testing.T) {
	s := openTestStore(t)

	jobs, err := s.LoadJobs()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(jobs) != 0 {
		t.Fatalf("fresh store jobs = %d, want 0", len(jobs))
	}

	in := []interfaces.Job{{
		ID:       "j1",
		Name:     "morning briefing",
		Message:  "summarize my day",
		Schedule: "0 8 * * *",
		Channel:  "cli",
		Enabled:  true,
	}}
	if err := s.SaveJobs(in); err != nil {
		t.Fatalf("save: %v", err)
	}
	jobs, err = s.LoadJobs()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(jobs) != 1 || jobs[0].Name != "morning briefing" || !jobs[0].Enabled {
		t.Errorf("jobs = %+v", jobs)
	}
}

func TestJobsCorruptFileIsEmptyList(t *testing.T) {
	s := openTestStore(t)
	if err := os.WriteFile(s.jobsPath(), []byte("{{{"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	jobs, err := s.LoadJobs()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(jobs) != 0 {
		t.Errorf("jobs = %d, want 0", len(jobs))
	}
}

func TestSafeKeyStripsSeparators(t *testing.T) {
	s := openTestStore(t)
	session := "ws:user/with:odd chars"
	if err := s.AppendMessage(session, userMsg("hello")); err != nil {
		t.Fatalf("append: %v", err)
	}
	path := s.historyPath(session)
	if base := filepath.Base(path); strings.ContainsAny(base, ":/ ") {
		t.Errorf("history filename %q contains separator characters", base)
	}
	got, err := s.LoadHistory(session)
	if err != nil || len(got) != 1 {
		t.Errorf("roundtrip through safe key failed: %d messages, %v", len(got), err)
	}
}
