package tools

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const maxReadBytes = 128_000

// fsBase carries the directories every filesystem tool resolves paths
// against. An empty allowedDir disables confinement.
type fsBase struct {
	workspace  string
	allowedDir string
}

func (b fsBase) resolve(path string) (string, error) {
	return resolvePath(path, b.workspace, b.allowedDir)
}

type ReadFile struct{ fsBase }

func NewReadFile(workspace, allowedDir string) *ReadFile {
	return &ReadFile{fsBase{workspace: workspace, allowedDir: allowedDir}}
}

func (f *ReadFile) Name() string        { return "read_file" }
func (f *ReadFile) Description() string { return "Read the contents of a file at the given path." }

func (f *ReadFile) Parameters() map[string]any {
	return schema(map[string]any{
		"path": prop("string", "The file path to read"),
	}, "path")
}

func (f *ReadFile) Execute(ctx context.Context, args map[string]any) (string, error) {
	path, err := f.resolve(stringArg(args, "path"))
	if err != nil {
		return "", err
	}

	slog.Debug("read_file", "path", path)
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("file not found: %s", path)
	}
	if err != nil {
		return "", fmt.Errorf("stat file: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("not a file: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading file: %w", err)
	}
	return truncateTo(data, maxReadBytes), nil
}

type WriteFile struct{ fsBase }

func NewWriteFile(workspace, allowedDir string) *WriteFile {
	return &WriteFile{fsBase{workspace: workspace, allowedDir: allowedDir}}
}

func (f *WriteFile) Name() string { return "write_file" }
func (f *WriteFile) Description() string {
	return "Write content to a file at the given path. Creates parent directories if needed."
}

func (f *WriteFile) Parameters() map[string]any {
	return schema(map[string]any{
		"path":    prop("string", "The file path to write to"),
		"content": prop("string", "The content to write"),
	}, "path", "content")
}

func (f *WriteFile) Execute(ctx context.Context, args map[string]any) (string, error) {
	path, err := f.resolve(stringArg(args, "path"))
	if err != nil {
		return "", err
	}
	content := []byte(stringArg(args, "content"))

	slog.Debug("write_file", "path", path, "bytes", len(content))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating parent dirs: %w", err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", fmt.Errorf("writing file: %w", err)
	}
	return fmt.Sprintf("Successfully wrote %d bytes to %s", len(content), path), nil
}

type EditFile struct{ fsBase }

func NewEditFile(workspace, allowedDir string) *EditFile {
	return &EditFile{fsBase{workspace: workspace, allowedDir: allowedDir}}
}

func (f *EditFile) Name() string { return "edit_file" }
func (f *EditFile) Description() string {
	return "Edit a file by replacing old_text with new_text. The old_text must appear exactly once in the file."
}

func (f *EditFile) Parameters() map[string]any {
	return schema(map[string]any{
		"path":     prop("string", "The file path to edit"),
		"old_text": prop("string", "The exact text to find and replace"),
		"new_text": prop("string", "The text to replace with"),
	}, "path", "old_text", "new_text")
}

func (f *EditFile) Execute(ctx context.Context, args map[string]any) (string, error) {
	path, err := f.resolve(stringArg(args, "path"))
	if err != nil {
		return "", err
	}
	oldText := stringArg(args, "old_text")
	newText := stringArg(args, "new_text")
	if oldText == "" {
		return "", errors.New("old_text must not be empty")
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("file not found: %s", path)
	}
	if err != nil {
		return "", fmt.Errorf("reading file: %w", err)
	}

	content := string(data)
	switch n := strings.Count(content, oldText); n {
	case 0:
		return "", errors.New("old_text not found in file, make sure it matches exactly")
	case 1:
	default:
		return "", fmt.Errorf("old_text appears %d times, provide more context to make it unique", n)
	}

	updated := strings.Replace(content, oldText, newText, 1)
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		return "", fmt.Errorf("writing file: %w", err)
	}
	slog.Debug("edit_file", "path", path)
	return "Successfully edited " + path, nil
}

type ListDir struct{ fsBase }

func NewListDir(workspace, allowedDir string) *ListDir {
	return &ListDir{fsBase{workspace: workspace, allowedDir: allowedDir}}
}

func (f *ListDir) Name() string        { return "list_dir" }
func (f *ListDir) Description() string { return "List the contents of a directory." }

func (f *ListDir) Parameters() map[string]any {
	return schema(map[string]any{
		"path": prop("string", "The directory path to list"),
	}, "path")
}

func (f *ListDir) Execute(ctx context.Context, args map[string]any) (string, error) {
	path, err := f.resolve(stringArg(args, "path"))
	if err != nil {
		return "", err
	}

	entries, err := os.ReadDir(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("directory not found: %s", path)
	}
	if err != nil {
		return "", fmt.Errorf("reading directory: %w", err)
	}
	if len(entries) == 0 {
		return fmt.Sprintf("Directory %s is empty", path), nil
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, "\n"), nil
}
