package plugin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"sidekick/internal/agent"
)

const (
	defaultDescribeTimeout = 10 * time.Second
	defaultCallTimeout     = 60 * time.Second
)

// Spec is one tool advertised by a command plugin's describe output.
type Spec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
	Context     bool           `json:"context"`
}

// DiscoverDir returns one source per executable file in dir. Hidden files and
// names starting with "_" are helpers and are never run directly. A missing
// directory is not an error.
func DiscoverDir(dir string, describeTimeout time.Duration) ([]Source, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if describeTimeout <= 0 {
		describeTimeout = defaultDescribeTimeout
	}

	var out []Source
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".") {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		if info.Mode().Perm()&0o111 == 0 {
			slog.Debug("plugin: skipping non-executable file", "file", name)
			continue
		}
		out = append(out, &commandSource{
			dir:     dir,
			path:    filepath.Join(dir, name),
			name:    name,
			timeout: describeTimeout,
		})
	}
	return out, nil
}

type commandSource struct {
	dir     string
	path    string
	name    string
	timeout time.Duration
}

func (s *commandSource) Name() string { return s.name }

func (s *commandSource) Constructors() ([]Constructor, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	stdout, err := runPlugin(ctx, s.dir, s.path, nil, nil, "describe")
	if err != nil {
		return nil, fmt.Errorf("describe: %w", err)
	}

	specs, err := parseSpecs(stdout)
	if err != nil {
		return nil, fmt.Errorf("describe output: %w", err)
	}

	ctors := make([]Constructor, 0, len(specs))
	for _, spec := range specs {
		base := commandTool{spec: spec, dir: s.dir, path: s.path}
		c := Constructor{Name: s.name + ":" + spec.Name}
		if spec.Context {
			c.WithContext = func(pctx *Context) (agent.Tool, error) {
				if pctx == nil {
					return nil, errors.New("tool requires a plugin context")
				}
				t := base
				t.pctx = pctx
				return &t, nil
			}
		} else {
			c.Plain = func() (agent.Tool, error) {
				t := base
				return &t, nil
			}
		}
		ctors = append(ctors, c)
	}
	return ctors, nil
}

func parseSpecs(data []byte) ([]Spec, error) {
	data = bytes.TrimSpace(data)
	var specs []Spec
	if len(data) > 0 && data[0] == '{' {
		var wrapped struct {
			Tools []Spec `json:"tools"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return nil, err
		}
		specs = wrapped.Tools
	} else if err := json.Unmarshal(data, &specs); err != nil {
		return nil, err
	}

	for i, s := range specs {
		if strings.TrimSpace(s.Name) == "" {
			return nil, fmt.Errorf("tool %d has no name", i)
		}
		if s.Parameters == nil {
			specs[i].Parameters = map[string]any{"type": "object", "properties": map[string]any{}}
		}
	}
	return specs, nil
}

// commandTool executes "<file> call <name>" with the arguments as JSON on
// stdin. Tools that asked for a context receive it as SIDEKICK_* variables.
type commandTool struct {
	spec Spec
	dir  string
	path string
	pctx *Context
}

func (t *commandTool) Name() string               { return t.spec.Name }
func (t *commandTool) Description() string        { return t.spec.Description }
func (t *commandTool) Parameters() map[string]any { return t.spec.Parameters }

func (t *commandTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	input, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("encoding arguments: %w", err)
	}

	timeout := defaultCallTimeout
	if t.pctx != nil && t.pctx.ExecTimeout > 0 {
		timeout = t.pctx.ExecTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := runPlugin(ctx, t.dir, t.path, t.env(), input, "call", t.spec.Name)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(out), "\n"), nil
}

func (t *commandTool) env() []string {
	if t.pctx == nil {
		return nil
	}
	c := t.pctx
	return []string{
		"SIDEKICK_WORKSPACE=" + c.Workspace,
		"SIDEKICK_ALLOWED_DIR=" + c.AllowedDir,
		"SIDEKICK_WORKING_DIR=" + c.WorkingDir,
		"SIDEKICK_EXEC_TIMEOUT=" + strconv.Itoa(int(c.ExecTimeout.Seconds())),
		"SIDEKICK_RESTRICT_TO_WORKSPACE=" + strconv.FormatBool(c.RestrictToWorkspace),
		"SIDEKICK_BRAVE_API_KEY=" + c.BraveAPIKey,
	}
}

// runPlugin runs a plugin executable from its directory with that directory
// first on PATH, so "_"-prefixed helpers next to it are reachable.
func runPlugin(ctx context.Context, dir, path string, env []string, stdin []byte, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Dir = dir
	cmd.WaitDelay = time.Second
	cmd.Env = append(os.Environ(), "PATH="+dir+string(os.PathListSeparator)+os.Getenv("PATH"))
	cmd.Env = append(cmd.Env, env...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s timed out: %w", filepath.Base(path), ctx.Err())
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		return nil, fmt.Errorf("%s: %w: %s", filepath.Base(path), err, msg)
	}
	return stdout.Bytes(), nil
}
