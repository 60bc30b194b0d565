// Package skill loads markdown capability descriptions that get merged into
// the agent's system prompt. A skill file is YAML frontmatter followed by a
// markdown body; always_on skills are injected in full, the rest appear as
// one-line summaries the model can ask about.
package skill

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Skill is one parsed skill file.
type Skill struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	AlwaysOn    bool   `yaml:"always_on"`
	Body        string `yaml:"-"`
}

// Parse splits frontmatter from body and decodes it.
func Parse(data []byte) (*Skill, error) {
	front, body, err := splitFrontmatter(string(data))
	if err != nil {
		return nil, err
	}
	var s Skill
	if err := yaml.Unmarshal([]byte(front), &s); err != nil {
		return nil, fmt.Errorf("decode frontmatter: %w", err)
	}
	if s.Name == "" {
		return nil, fmt.Errorf("skill has no name")
	}
	s.Body = strings.TrimSpace(body)
	return &s, nil
}

func splitFrontmatter(text string) (front, body string, err error) {
	const marker = "---"
	trimmed := strings.TrimLeft(text, "\n")
	if !strings.HasPrefix(trimmed, marker) {
		return "", "", fmt.Errorf("missing frontmatter")
	}
	rest := trimmed[len(marker):]
	idx := strings.Index(rest, "\n"+marker)
	if idx < 0 {
		return "", "", fmt.Errorf("unterminated frontmatter")
	}
	front = rest[:idx]
	body = rest[idx+len(marker)+1:]
	if nl := strings.Index(body, "\n"); nl >= 0 {
		body = body[nl+1:]
	} else {
		body = ""
	}
	return front, body, nil
}

// Library holds the skills loaded from a directory.
type Library struct {
	dir string
	log *slog.Logger

	mu     sync.RWMutex
	skills map[string]*Skill
}

// NewLibrary builds a library over dir and performs the initial load. A
// missing directory is an empty library.
func NewLibrary(dir string, log *slog.Logger) (*Library, error) {
	if log == nil {
		log = slog.Default()
	}
	l := &Library{dir: dir, log: log, skills: make(map[string]*Skill)}
	if err := l.Reload(); err != nil {
		return nil, err
	}
	return l, nil
}

// Reload re-reads every *.md file in the directory. One bad file is logged
// and skipped; it never hides the rest.
func (l *Library) Reload() error {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			l.mu.Lock()
			l.skills = make(map[string]*Skill)
			l.mu.Unlock()
			return nil
		}
		return fmt.Errorf("read skills dir: %w", err)
	}

	loaded := make(map[string]*Skill)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		path := filepath.Join(l.dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			l.log.Warn("skill unreadable", "file", entry.Name(), "error", err)
			continue
		}
		s, err := Parse(data)
		if err != nil {
			l.log.Warn("skill skipped", "file", entry.Name(), "error", err)
			continue
		}
		loaded[s.Name] = s
	}

	l.mu.Lock()
	l.skills = loaded
	l.mu.Unlock()
	l.log.Debug("skills loaded", "count", len(loaded))
	return nil
}

func (l *Library) sorted() []*Skill {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*Skill, 0, len(l.skills))
	for _, s := range l.skills {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// AlwaysOn returns the bodies of always-on skills, sorted by name.
func (l *Library) AlwaysOn() []string {
	var out []string
	for _, s := range l.sorted() {
		if s.AlwaysOn && s.Body != "" {
			out = append(out, s.Body)
		}
	}
	return out
}

// Summaries returns "name: description" lines for discoverable skills.
func (l *Library) Summaries() []string {
	var out []string
	for _, s := range l.sorted() {
		if s.AlwaysOn {
			continue
		}
		out = append(out, s.Name+": "+s.Description)
	}
	return out
}
