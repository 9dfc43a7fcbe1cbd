package bundled

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"sidekick/internal/agent"
	"sidekick/internal/plugin"
)

var noteNameRe = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// Notes stores plain-text notes under <workspace>/notes.
func Notes() plugin.Source {
	dir := func(pctx *plugin.Context) (string, error) {
		if pctx == nil || pctx.Workspace == "" {
			return "", errors.New("notes requires a workspace")
		}
		return filepath.Join(pctx.Workspace, "notes"), nil
	}
	return plugin.Static("notes",
		plugin.Constructor{
			Name: "save_note",
			WithContext: func(pctx *plugin.Context) (agent.Tool, error) {
				d, err := dir(pctx)
				if err != nil {
					return nil, err
				}
				return &saveNote{dir: d}, nil
			},
		},
		plugin.Constructor{
			Name: "list_notes",
			WithContext: func(pctx *plugin.Context) (agent.Tool, error) {
				d, err := dir(pctx)
				if err != nil {
					return nil, err
				}
				return &listNotes{dir: d}, nil
			},
		},
	)
}

type saveNote struct{ dir string }

func (s *saveNote) Name() string        { return "save_note" }
func (s *saveNote) Description() string { return "Save a short note under a title." }

func (s *saveNote) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"title":   map[string]any{"type": "string", "description": "Note title"},
			"content": map[string]any{"type": "string", "description": "Note body"},
		},
		"required": []string{"title", "content"},
	}
}

func (s *saveNote) Execute(ctx context.Context, args map[string]any) (string, error) {
	title, _ := args["title"].(string)
	content, _ := args["content"].(string)
	slug := strings.Trim(noteNameRe.ReplaceAllString(strings.ToLower(title), "-"), "-")
	if slug == "" {
		return "", errors.New("title must contain letters or digits")
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating notes dir: %w", err)
	}
	path := filepath.Join(s.dir, slug+".md")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("writing note: %w", err)
	}
	return fmt.Sprintf("Saved note '%s'", slug), nil
}

type listNotes struct{ dir string }

func (l *listNotes) Name() string        { return "list_notes" }
func (l *listNotes) Description() string { return "List saved notes." }

func (l *listNotes) Parameters() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}, "required": []string{}}
}

func (l *listNotes) Execute(ctx context.Context, args map[string]any) (string, error) {
	entries, err := os.ReadDir(l.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return "No notes found.", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading notes: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".md") {
			names = append(names, strings.TrimSuffix(e.Name(), ".md"))
		}
	}
	if len(names) == 0 {
		return "No notes found.", nil
	}
	sort.Strings(names)
	return "Notes:\n- " + strings.Join(names, "\n- "), nil
}
