package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// writeFileAtomic writes data through a temp file in the target's directory,
// fsyncs it, then renames over the target. Concurrent readers see either the
// old or the new document, never a torn one.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}
	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

// LoadMemory reads the global memory document. Missing means empty.
func (s *Store) LoadMemory() (string, error) {
	data, err := os.ReadFile(s.memoryPath())
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read memory: %w", err)
	}
	return string(data), nil
}

// SaveMemory replaces the global memory document in full.
func (s *Store) SaveMemory(text string) error {
	if err := writeFileAtomic(s.memoryPath(), []byte(text)); err != nil {
		return fmt.Errorf("save memory: %w", err)
	}
	return nil
}

// LoadSummary reads the session's rolling summary. Missing means empty.
func (s *Store) LoadSummary(session string) (string, error) {
	data, err := os.ReadFile(s.summaryPath(session))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read summary: %w", err)
	}
	return string(data), nil
}

// SaveSummary replaces the session's rolling summary.
func (s *Store) SaveSummary(session, text string) error {
	if err := writeFileAtomic(s.summaryPath(session), []byte(text)); err != nil {
		return fmt.Errorf("save summary: %w", err)
	}
	return nil
}

// LoadCursor reads the session's consolidation cursor. Missing or
// unparseable means zero.
func (s *Store) LoadCursor(session string) (int, error) {
	data, err := os.ReadFile(s.cursorPath(session))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read cursor: %w", err)
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || n < 0 {
		s.log.Warn("cursor file is unparseable, resetting to zero",
			"session", session, "raw", preview(data))
		return 0, nil
	}
	return n, nil
}

// SaveCursor replaces the session's consolidation cursor.
func (s *Store) SaveCursor(session string, cursor int) error {
	if cursor < 0 {
		return fmt.Errorf("save cursor: negative cursor %d", cursor)
	}
	if err := writeFileAtomic(s.cursorPath(session), []byte(strconv.Itoa(cursor))); err != nil {
		return fmt.Errorf("save cursor: %w", err)
	}
	return nil
}
