package store

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Store persists conversation history, the global memory document,
// per-session consolidation state, and the scheduled-job list under one
// root directory. It is safe for concurrent use across processes: history
// appends hold an exclusive flock and whole-document writes go through an
// atomic rename, so readers never observe a partial write.
type Store struct {
	root string
	log  *slog.Logger
}

// New opens (creating if needed) a store rooted at dir.
func New(dir string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	for _, d := range []string{dir, filepath.Join(dir, "sessions")} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	return &Store{root: dir, log: log}, nil
}

// Root returns the store's base directory.
func (s *Store) Root() string {
	return s.root
}

// Session ids contain channel separators and arbitrary sender ids; map
// them onto filesystem-safe names.
var sessionKeyReplacer = strings.NewReplacer(
	":", "_", "/", "_", "\\", "_", " ", "_",
	"*", "_", "?", "_", "\"", "_", "<", "_", ">", "_", "|", "_",
)

func safeKey(session string) string {
	return sessionKeyReplacer.Replace(session)
}

func (s *Store) historyPath(session string) string {
	return filepath.Join(s.root, "sessions", safeKey(session)+".jsonl")
}

func (s *Store) summaryPath(session string) string {
	return filepath.Join(s.root, "sessions", safeKey(session)+".summary")
}

func (s *Store) cursorPath(session string) string {
	return filepath.Join(s.root, "sessions", safeKey(session)+".cursor")
}

func (s *Store) memoryPath() string {
	return filepath.Join(s.root, "MEMORY.md")
}

func (s *Store) jobsPath() string {
	return filepath.Join(s.root, "jobs.json")
}

// Sessions lists the session ids with a history log, in directory order.
func (s *Store) Sessions() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, "sessions"))
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	var out []string
	for _, e := range entries {
		if name, ok := strings.CutSuffix(e.Name(), ".jsonl"); ok {
			out = append(out, name)
		}
	}
	return out, nil
}
