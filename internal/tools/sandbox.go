package tools

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var ErrOutsideWorkspace = errors.New("path is outside the allowed directory")

// resolvePath makes path absolute against workspace and, when allowedDir is
// set, rejects anything that resolves (following symlinks) outside it.
func resolvePath(path, workspace, allowedDir string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("path is required")
	}
	path = expandHome(path)
	if !filepath.IsAbs(path) && workspace != "" {
		path = filepath.Join(workspace, path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}
	if allowedDir == "" {
		return abs, nil
	}

	root, err := realPath(allowedDir)
	if err != nil {
		return "", fmt.Errorf("resolving allowed dir: %w", err)
	}
	target, err := realPath(abs)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}
	if !within(root, target) {
		return "", fmt.Errorf("%s: %w", path, ErrOutsideWorkspace)
	}
	return abs, nil
}

// realPath evaluates symlinks on the longest existing prefix of p so paths
// that do not exist yet (write targets) can still be checked.
func realPath(p string) (string, error) {
	p, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	var rest []string
	cur := p
	for {
		resolved, err := filepath.EvalSymlinks(cur)
		if err == nil {
			parts := append([]string{resolved}, rest...)
			return filepath.Join(parts...), nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return p, nil
		}
		rest = append([]string{filepath.Base(cur)}, rest...)
		cur = parent
	}
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
