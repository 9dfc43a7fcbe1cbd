package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

const defaultExecTimeout = 60 * time.Second

var denyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\brm\s+-[a-z]*r[a-z]*f|\brm\s+-[a-z]*f[a-z]*r`),
	regexp.MustCompile(`\b(mkfs|diskpart)\b`),
	regexp.MustCompile(`\bformat\s+[a-z]:`),
	regexp.MustCompile(`\bdd\s+if=`),
	regexp.MustCompile(`>\s*/dev/sd`),
	regexp.MustCompile(`\b(shutdown|reboot|poweroff)\b`),
	regexp.MustCompile(`:\(\)\s*\{.*\};\s*:`),
}

var absPathRe = regexp.MustCompile(`(?:^|[\s=|;&<>"'])(/[^\s"'|;&<>]+)`)

// Exec runs shell commands. With restrict set, commands may not leave the
// workspace: the working directory and any absolute path in the command must
// be inside it.
type Exec struct {
	workspace string
	timeout   time.Duration
	restrict  bool
}

func NewExec(workspace string, timeout time.Duration, restrict bool) *Exec {
	if timeout <= 0 {
		timeout = defaultExecTimeout
	}
	return &Exec{workspace: workspace, timeout: timeout, restrict: restrict}
}

func (s *Exec) Name() string { return "exec" }
func (s *Exec) Description() string {
	return "Execute a shell command and return its output. Use with caution."
}

func (s *Exec) Parameters() map[string]any {
	return schema(map[string]any{
		"command":     prop("string", "The shell command to execute"),
		"working_dir": prop("string", "Optional working directory for the command"),
	}, "command")
}

func (s *Exec) Execute(ctx context.Context, args map[string]any) (string, error) {
	command := strings.TrimSpace(stringArg(args, "command"))
	if command == "" {
		return "", errors.New("command is required")
	}

	dir := s.workspace
	if wd := stringArg(args, "working_dir"); wd != "" {
		dir = wd
	}
	if err := s.guard(command, dir); err != nil {
		return "", err
	}
	if dir != "" {
		abs, err := resolvePath(dir, s.workspace, "")
		if err != nil {
			return "", err
		}
		dir = abs
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	slog.Debug("exec: running", "command", command, "dir", dir)
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = dir
	cmd.WaitDelay = time.Second
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return "", fmt.Errorf("command timed out after %s", s.timeout)
	}

	var out bytes.Buffer
	out.Write(stdout.Bytes())
	if stderr.Len() > 0 {
		if out.Len() > 0 {
			out.WriteString("\n")
		}
		out.WriteString("STDERR:\n")
		out.Write(stderr.Bytes())
	}

	var exitErr *exec.ExitError
	switch {
	case errors.As(err, &exitErr):
		fmt.Fprintf(&out, "\nExit code: %d", exitErr.ExitCode())
	case err != nil:
		return "", fmt.Errorf("running command: %w", err)
	}

	if out.Len() == 0 {
		return "(no output)", nil
	}
	return truncate(out.Bytes()), nil
}

func (s *Exec) guard(command, dir string) error {
	lower := strings.ToLower(command)
	for _, re := range denyPatterns {
		if re.MatchString(lower) {
			return errors.New("command blocked by safety guard (dangerous pattern detected)")
		}
	}
	if !s.restrict || s.workspace == "" {
		return nil
	}

	if strings.Contains(command, "../") || strings.Contains(command, `..\`) {
		return errors.New("command blocked by safety guard (path traversal detected)")
	}
	if _, err := resolvePath(dir, s.workspace, s.workspace); err != nil {
		return fmt.Errorf("command blocked by safety guard: working dir %w", err)
	}
	for _, m := range absPathRe.FindAllStringSubmatch(command, -1) {
		p := filepath.Clean(m[1])
		if _, err := resolvePath(p, s.workspace, s.workspace); err != nil {
			return fmt.Errorf("command blocked by safety guard: %w", err)
		}
	}
	return nil
}
