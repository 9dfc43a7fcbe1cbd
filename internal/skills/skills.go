// Package skills loads SKILL.md instruction files from the workspace so they
// can be preloaded into an agent's system prompt.
package skills

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const fileName = "SKILL.md"

type Skill struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	Instructions string `yaml:"-"`
	Path         string `yaml:"-"`
}

// Loader resolves skills from <workspace>/skills/<name>/SKILL.md.
type Loader struct {
	dir string
}

func NewLoader(workspace string) *Loader {
	return &Loader{dir: filepath.Join(workspace, "skills")}
}

func (l *Loader) Dir() string { return l.dir }

// Load reads one skill by name.
func (l *Loader) Load(name string) (*Skill, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return nil, fmt.Errorf("invalid skill name %q", name)
	}
	path := filepath.Join(l.dir, name, fileName)
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	skill, err := Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("skill %q: %w", name, err)
	}
	if skill.Name == "" {
		skill.Name = name
	}
	skill.Path = path
	return skill, nil
}

// List returns every skill that parses, sorted by name.
func (l *Loader) List() []Skill {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("skills: cannot read directory", "dir", l.dir, "error", err)
		}
		return nil
	}

	var out []Skill
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		s, err := l.Load(e.Name())
		if err != nil {
			slog.Debug("skills: skipping", "name", e.Name(), "error", err)
			continue
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// LoadForContext renders the named skills for inclusion in a system prompt.
// Skills that cannot be loaded are logged and left out.
func (l *Loader) LoadForContext(names []string) string {
	var parts []string
	for _, name := range names {
		s, err := l.Load(name)
		if err != nil {
			slog.Warn("skills: cannot preload", "name", name, "error", err)
			continue
		}
		parts = append(parts, fmt.Sprintf("### Skill: %s\n\n%s", s.Name, s.Instructions))
	}
	return strings.Join(parts, "\n\n---\n\n")
}

// Parse splits optional YAML frontmatter from the markdown body.
func Parse(content string) (*Skill, error) {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	skill := &Skill{}

	if !strings.HasPrefix(content, "---\n") {
		skill.Instructions = strings.TrimSpace(content)
		return skill, nil
	}

	rest := content[len("---\n"):]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return nil, errors.New("unclosed frontmatter")
	}
	if err := yaml.Unmarshal([]byte(rest[:end]), skill); err != nil {
		return nil, fmt.Errorf("invalid frontmatter: %w", err)
	}

	body := rest[end+len("\n---"):]
	skill.Instructions = strings.TrimSpace(body)
	return skill, nil
}
