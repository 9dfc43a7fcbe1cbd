// Package heartbeat periodically wakes the agent to check HEARTBEAT.md in
// the workspace for pending work.
package heartbeat

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	FileName = "HEARTBEAT.md"
	OKToken  = "HEARTBEAT_OK"

	DefaultInterval = 30 * time.Minute
)

// Prompt is sent to the agent on every tick that finds work.
const Prompt = "Read " + FileName + " in your workspace (if it exists).\n" +
	"Follow any instructions or tasks listed there.\n" +
	"If nothing needs attention, reply with just: " + OKToken

// Handler runs one heartbeat turn and returns the agent's reply.
type Handler func(ctx context.Context, prompt string) (string, error)

type Service struct {
	workspace   string
	interval    time.Duration
	enabled     bool
	onHeartbeat Handler

	mu     sync.Mutex
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
}

func New(workspace string, interval time.Duration, enabled bool, onHeartbeat Handler) *Service {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Service{
		workspace:   workspace,
		interval:    interval,
		enabled:     enabled,
		onHeartbeat: onHeartbeat,
	}
}

// Start schedules the heartbeat. Calling it again while running is a no-op.
func (s *Service) Start(ctx context.Context) error {
	if !s.enabled {
		slog.Info("heartbeat disabled")
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc("@every "+s.interval.String(), s.run); err != nil {
		return fmt.Errorf("scheduling heartbeat: %w", err)
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron = c
	c.Start()

	slog.Info("heartbeat started", "interval", s.interval)
	return nil
}

// Stop cancels an in-flight tick and stops the scheduler.
func (s *Service) Stop() {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.cron, s.cancel, s.ctx = nil, nil, nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	cancel()
	<-c.Stop().Done()
}

func (s *Service) running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cron != nil
}

func (s *Service) run() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		return
	}
	if _, err := s.Tick(ctx); err != nil {
		slog.Warn("heartbeat failed", "error", err)
	}
}

// Tick performs one heartbeat check. It reports whether the agent was
// invoked.
func (s *Service) Tick(ctx context.Context) (bool, error) {
	content, err := os.ReadFile(filepath.Join(s.workspace, FileName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("reading %s: %w", FileName, err)
	}
	if IsEmpty(string(content)) {
		slog.Debug("heartbeat: nothing to do")
		return false, nil
	}

	slog.Info("heartbeat: checking for tasks")
	reply, err := s.onHeartbeat(ctx, Prompt)
	if err != nil {
		return true, err
	}
	if IsOK(reply) {
		slog.Info("heartbeat: OK (no action needed)")
	} else {
		slog.Info("heartbeat: completed task")
	}
	return true, nil
}

// IsEmpty reports whether content holds nothing actionable: only blank
// lines, headings, HTML comments or checkbox stubs.
func IsEmpty(content string) bool {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "",
			strings.HasPrefix(line, "#"),
			strings.HasPrefix(line, "<!--"),
			line == "- [ ]", line == "* [ ]", line == "- [x]", line == "* [x]":
			continue
		}
		return false
	}
	return true
}

// IsOK reports whether reply is exactly the OK token, optionally wrapped in
// backticks or bold markers.
func IsOK(reply string) bool {
	r := strings.TrimSpace(reply)
	for _, wrap := range []string{"**", "`"} {
		if len(r) >= 2*len(wrap) && strings.HasPrefix(r, wrap) && strings.HasSuffix(r, wrap) {
			r = strings.TrimSpace(r[len(wrap) : len(r)-len(wrap)])
		}
	}
	return r == OKToken
}
