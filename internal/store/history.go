package store

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"

	"golang.org/x/sys/unix"

	"github.com/kestrel-agent/kestrel/internal/interfaces"
)

// tailBlockSize is the read granularity of the backward scan. Reads for the
// last n records touch O(n) blocks regardless of total log size.
const tailBlockSize = 32 * 1024

// AppendMessage appends one JSON line to the session's history log. The
// write happens under an exclusive flock so appends from other processes
// never interleave partial records.
func (s *Store) AppendMessage(session string, msg interfaces.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	f, err := os.OpenFile(s.historyPath(session), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer f.Close()

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		return fmt.Errorf("lock history: %w", err)
	}
	defer unix.Flock(int(f.Fd()), unix.LOCK_UN)

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

// LoadHistory reads the session's full history in chronological order.
// Undecodable lines are skipped, counted, and reported once as a warning;
// a missing log means an empty session.
func (s *Store) LoadHistory(session string) ([]interfaces.Message, error) {
	f, err := os.Open(s.historyPath(session))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open history: %w", err)
	}
	defer f.Close()
	s.sharedLock(f)

	var (
		out      []interfaces.Message
		bad      int
		badFirst string
	)
	r := bufio.NewReaderSize(f, tailBlockSize)
	for {
		line, err := r.ReadBytes('\n')
		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
			var msg interfaces.Message
			if jerr := json.Unmarshal(trimmed, &msg); jerr != nil {
				bad++
				if badFirst == "" {
					badFirst = preview(trimmed)
				}
			} else {
				out = append(out, msg)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read history: %w", err)
		}
	}
	if bad > 0 {
		s.log.Warn("skipped undecodable history records",
			"session", session, "count", bad, "preview", badFirst)
	}
	return out, nil
}

// CountHistory returns the number of records in the session's log without
// decoding any of them. The count is a newline scan, so undecodable lines
// are included; callers treating it as a history index get at worst an
// early consolidation on a corrupted log.
func (s *Store) CountHistory(session string) (int, error) {
	f, err := os.Open(s.historyPath(session))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("open history: %w", err)
	}
	defer f.Close()
	s.sharedLock(f)

	var (
		count int
		last  byte = '\n'
		buf        = make([]byte, tailBlockSize)
	)
	for {
		n, err := f.Read(buf)
		count += bytes.Count(buf[:n], []byte{'\n'})
		if n > 0 {
			last = buf[n-1]
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("count history: %w", err)
		}
	}
	if last != '\n' {
		// A torn final write still counts as a record; the tail scan decides
		// whether it decodes.
		count++
	}
	return count, nil
}

// LoadRecentHistory reads the last n decodable records in chronological
// order without scanning the whole log. n <= 0 returns an empty slice.
func (s *Store) LoadRecentHistory(session string, n int) ([]interfaces.Message, error) {
	if n <= 0 {
		return nil, nil
	}
	f, err := os.Open(s.historyPath(session))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open history: %w", err)
	}
	defer f.Close()
	s.sharedLock(f)

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat history: %w", err)
	}

	out, bad, badPreview, err := tailScan(f, info.Size(), n)
	if err != nil {
		return nil, err
	}
	if bad > 0 {
		s.log.Warn("skipped undecodable history records",
			"session", session, "count", bad, "preview", badPreview)
	}
	return out, nil
}

// tailScan walks backward from size in fixed blocks, decoding newline-split
// records until n are found or the start is reached. Returned messages are
// chronological.
func tailScan(r io.ReaderAt, size int64, n int) ([]interfaces.Message, int, string, error) {
	var (
		out        []interfaces.Message // newest first while scanning
		carry      []byte               // start of a record whose head lies in an unread block
		bad        int
		badPreview string
		pos        = size
		buf        = make([]byte, tailBlockSize)
	)
	for pos > 0 && len(out) < n {
		readLen := int64(len(buf))
		if pos < readLen {
			readLen = pos
		}
		start := pos - readLen
		if _, err := r.ReadAt(buf[:readLen], start); err != nil && err != io.EOF {
			return nil, 0, "", fmt.Errorf("read history block: %w", err)
		}

		chunk := make([]byte, 0, readLen+int64(len(carry)))
		chunk = append(chunk, buf[:readLen]...)
		chunk = append(chunk, carry...)
		lines := bytes.Split(chunk, []byte{'\n'})

		// The first piece may be a record tail; complete it on the next pass
		// unless this block starts the file.
		first := 0
		if start > 0 {
			carry = append(carry[:0:0], lines[0]...)
			first = 1
		} else {
			carry = nil
		}

		for i := len(lines) - 1; i >= first && len(out) < n; i-- {
			line := bytes.TrimSpace(lines[i])
			if len(line) == 0 {
				continue
			}
			var msg interfaces.Message
			if err := json.Unmarshal(line, &msg); err != nil {
				bad++
				badPreview = preview(line)
				continue
			}
			out = append(out, msg)
		}
		pos = start
	}
	slices.Reverse(out)
	return out, bad, badPreview, nil
}

// sharedLock takes a best-effort non-blocking read lock. Readers must keep
// working when another process holds the write lock or the filesystem does
// not support flock.
func (s *Store) sharedLock(f *os.File) {
	_ = unix.Flock(int(f.Fd()), unix.LOCK_SH|unix.LOCK_NB)
}

func preview(line []byte) string {
	const max = 80
	if len(line) > max {
		line = line[:max]
	}
	return string(line)
}
