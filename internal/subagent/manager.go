// Package subagent runs background tasks on behalf of the main agent. Each
// task gets its own tool registry, assembled from a profile under the global
// capability policy, and reports back by publishing a system message on the
// bus when it finishes.
package subagent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"sidekick/internal/agent"
	"sidekick/internal/bus"
	"sidekick/internal/llm"
	"sidekick/internal/runlog"
	"sidekick/internal/skills"
	"sidekick/internal/trace"
)

var (
	ErrUnknownProfile = errors.New("unknown profile")
	ErrShutdown       = errors.New("subagent manager is shut down")
)

const noFinalResponse = "Task completed but no final response was generated."

type Status string

const (
	StatusCompleted Status = "completed"
	StatusExhausted Status = "exhausted"
	StatusErrored   Status = "errored"
)

// Recorder receives every finished run. runlog.Store implements it.
type Recorder interface {
	Record(ctx context.Context, r runlog.Run) error
}

type SpawnRequest struct {
	Task    string
	Label   string
	Origin  agent.Origin
	Profile string
}

// TaskInfo is a snapshot of a running task.
type TaskInfo struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	Task      string    `json:"task"`
	Profile   string    `json:"profile,omitempty"`
	Channel   string    `json:"channel"`
	ChatID    string    `json:"chat_id"`
	StartedAt time.Time `json:"started_at"`
}

type task struct {
	info          TaskInfo
	profile       *Profile
	model         string
	maxIterations int
	cancel        context.CancelFunc
}

type result struct {
	status     Status
	text       string
	iterations int
}

type Option func(*Manager)

func WithProfiles(p map[string]*Profile) Option {
	return func(m *Manager) { m.profiles = p }
}

func WithSkills(l *skills.Loader) Option {
	return func(m *Manager) { m.skills = l }
}

func WithModel(model string) Option {
	return func(m *Manager) { m.model = model }
}

func WithTemperature(t float64) Option {
	return func(m *Manager) { m.temperature = t }
}

func WithMaxTokens(n int) Option {
	return func(m *Manager) { m.maxTokens = n }
}

func WithMaxIterations(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxIterations = n
		}
	}
}

func WithParallelTools(on bool) Option {
	return func(m *Manager) { m.parallel = on }
}

// WithRunTimeout bounds the wall-clock time of each run. Zero disables it.
func WithRunTimeout(d time.Duration) Option {
	return func(m *Manager) { m.runTimeout = d }
}

func WithRecorder(r Recorder) Option {
	return func(m *Manager) { m.recorder = r }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

type Manager struct {
	provider      llm.Provider
	bus           *bus.MessageBus
	caps          *Capabilities
	profiles      map[string]*Profile
	skills        *skills.Loader
	model         string
	temperature   float64
	maxTokens     int
	maxIterations int
	parallel      bool
	runTimeout    time.Duration
	recorder      Recorder
	now           func() time.Time

	base   context.Context
	stop   context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	tasks  map[string]*task
	closed bool
}

func NewManager(provider llm.Provider, b *bus.MessageBus, caps *Capabilities, opts ...Option) *Manager {
	base, stop := context.WithCancel(context.Background())
	m := &Manager{
		provider:      provider,
		bus:           b,
		caps:          caps,
		temperature:   agent.DefaultTemperature,
		maxTokens:     agent.DefaultMaxTokens,
		maxIterations: agent.DefaultMaxIterations,
		now:           time.Now,
		base:          base,
		stop:          stop,
		tasks:         make(map[string]*task),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Spawn starts a background task and returns the acknowledgement for the
// caller. It does not wait for the task; the result arrives later as a
// system message addressed to req.Origin.
//
// For an unknown profile the returned text is the user-facing error and err
// wraps ErrUnknownProfile.
func (m *Manager) Spawn(ctx context.Context, req SpawnRequest) (string, error) {
	var profile *Profile
	if req.Profile != "" {
		p, ok := m.profiles[req.Profile]
		if !ok {
			available := "(none)"
			if names := profileNames(m.profiles); len(names) > 0 {
				available = strings.Join(names, ", ")
			}
			msg := fmt.Sprintf("Error: Unknown profile '%s'. Available profiles: %s", req.Profile, available)
			return msg, fmt.Errorf("%w: %s", ErrUnknownProfile, req.Profile)
		}
		profile = p
	}

	origin := req.Origin
	if origin.Channel == "" {
		origin.Channel = "cli"
	}
	if origin.ChatID == "" {
		origin.ChatID = "direct"
	}

	id := uuid.NewString()[:8]
	label := req.Label
	if label == "" {
		label = req.Task
		if r := []rune(label); len(r) > 30 {
			label = string(r[:30]) + "..."
		}
	}

	t := &task{
		info: TaskInfo{
			ID:        id,
			Label:     label,
			Task:      req.Task,
			Profile:   req.Profile,
			Channel:   origin.Channel,
			ChatID:    origin.ChatID,
			StartedAt: m.now(),
		},
		profile:       profile,
		model:         m.model,
		maxIterations: m.maxIterations,
	}
	if profile != nil {
		if profile.Model != "" {
			t.model = profile.Model
		}
		if profile.MaxIterations > 0 {
			t.maxIterations = profile.MaxIterations
		}
	}

	var runCtx context.Context
	if m.runTimeout > 0 {
		runCtx, t.cancel = context.WithTimeout(m.base, m.runTimeout)
	} else {
		runCtx, t.cancel = context.WithCancel(m.base)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		t.cancel()
		return "", ErrShutdown
	}
	m.tasks[id] = t
	m.wg.Add(1)
	m.mu.Unlock()

	go m.run(runCtx, t)

	slog.InfoContext(ctx, "subagent spawned", "task_id", id, "label", label, "profile", req.Profile)
	return fmt.Sprintf("Subagent [%s] started (id: %s). I'll notify you when it completes.", label, id), nil
}

func (m *Manager) run(ctx context.Context, t *task) {
	defer m.wg.Done()
	defer m.remove(t.info.ID)
	defer t.cancel()

	ctx = agent.ContextWithTaskID(ctx, t.info.ID)
	ctx, span := trace.Tracer().Start(ctx, "subagent.run",
		oteltrace.WithAttributes(
			attribute.String("subagent.task_id", t.info.ID),
			attribute.String("subagent.label", t.info.Label),
			attribute.String("subagent.profile", t.info.Profile),
			attribute.Int("subagent.max_iterations", t.maxIterations),
		),
	)
	defer span.End()

	res := m.execute(ctx, t)
	span.SetAttributes(
		attribute.String("subagent.status", string(res.status)),
		attribute.Int("subagent.iterations", res.iterations),
	)
	if res.status != StatusCompleted {
		trace.Fail(span, errors.New(res.text))
	}

	m.announce(t, res)
	m.record(ctx, t, res)
}

// execute runs the tool loop for t. It never panics; every failure is turned
// into an errored result.
func (m *Manager) execute(ctx context.Context, t *task) (res result) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("subagent panicked", "task_id", t.info.ID, "panic", p)
			res = result{status: StatusErrored, text: fmt.Sprintf("Error: %v", p)}
		}
	}()

	slog.Info("subagent starting", "task_id", t.info.ID, "label", t.info.Label)

	reg := m.caps.Assemble(t.profile)

	skillsDir := filepath.Join(m.caps.Workspace, "skills")
	var preloaded string
	if m.skills != nil {
		skillsDir = m.skills.Dir()
		if t.profile != nil && len(t.profile.Skills) > 0 {
			preloaded = m.skills.LoadForContext(t.profile.Skills)
		}
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: BuildPrompt(reg, m.caps.Workspace, skillsDir, preloaded, m.now())},
		{Role: llm.RoleUser, Content: t.info.Task},
	}

	opts := []agent.ReactOption{
		agent.WithMaxIterations(t.maxIterations),
		agent.WithTemperature(m.temperature),
		agent.WithMaxTokens(m.maxTokens),
		agent.WithParallelTools(m.parallel),
	}
	if t.model != "" {
		opts = append(opts, agent.WithModel(t.model))
	}
	runner := agent.NewReactRunner(m.provider, reg, opts...)

	out, err := runner.Run(ctx, messages)
	if err != nil {
		slog.Error("subagent failed", "task_id", t.info.ID, "error", err)
		iterations := 0
		if out != nil {
			iterations = out.Iterations
		}
		return result{status: StatusErrored, text: "Error: " + err.Error(), iterations: iterations}
	}

	if out.Exhausted {
		slog.Warn("subagent ran out of iterations", "task_id", t.info.ID, "max_iterations", runner.MaxIterations())
		return result{
			status: StatusExhausted,
			text: fmt.Sprintf("Task did NOT complete: the subagent ran out of iterations (max %d). "+
				"The task may need to be broken into smaller pieces, or the iteration limit needs to be increased.",
				runner.MaxIterations()),
			iterations: out.Iterations,
		}
	}

	content := out.Content
	if content == "" {
		content = noFinalResponse
	}
	slog.Info("subagent completed", "task_id", t.info.ID, "iterations", out.Iterations)
	return result{status: StatusCompleted, text: content, iterations: out.Iterations}
}

func (m *Manager) announce(t *task, res result) {
	outcome, status := "completed successfully", "ok"
	if res.status != StatusCompleted {
		outcome, status = "failed", "error"
	}

	content := fmt.Sprintf("[Subagent '%s' %s]\n\nTask: %s\n\nResult:\n%s\n\n"+
		"Summarize this naturally for the user. Keep it brief (1-2 sentences). "+
		"Do not mention technical details like \"subagent\" or task IDs.",
		t.info.Label, outcome, t.info.Task, res.text)

	m.bus.PublishInbound(bus.InboundMessage{
		Channel:   bus.SystemChannel,
		SenderID:  "subagent",
		ChatID:    bus.JoinOrigin(t.info.Channel, t.info.ChatID),
		Content:   content,
		Timestamp: m.now(),
		Metadata: map[string]string{
			"task_id": t.info.ID,
			"status":  status,
			"outcome": string(res.status),
		},
	})
	slog.Debug("subagent announced result", "task_id", t.info.ID, "origin", bus.JoinOrigin(t.info.Channel, t.info.ChatID))
}

func (m *Manager) record(ctx context.Context, t *task, res result) {
	if m.recorder == nil {
		return
	}
	run := runlog.Run{
		ID:         t.info.ID,
		Label:      t.info.Label,
		Task:       t.info.Task,
		Profile:    t.info.Profile,
		Model:      t.model,
		Status:     string(res.status),
		Result:     res.text,
		Iterations: res.iterations,
		Channel:    t.info.Channel,
		ChatID:     t.info.ChatID,
		StartedAt:  t.info.StartedAt,
		FinishedAt: m.now(),
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := m.recorder.Record(ctx, run); err != nil {
		slog.Warn("failed to record subagent run", "task_id", t.info.ID, "error", err)
	}
}

func (m *Manager) remove(id string) {
	m.mu.Lock()
	delete(m.tasks, id)
	m.mu.Unlock()
}

func (m *Manager) RunningCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

// Running returns the running tasks, oldest first.
func (m *Manager) Running() []TaskInfo {
	m.mu.Lock()
	out := make([]TaskInfo, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, t.info)
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Cancel stops the task with the given id. The task still announces its
// (errored) result before it is removed.
func (m *Manager) Cancel(id string) bool {
	m.mu.Lock()
	t, ok := m.tasks[id]
	m.mu.Unlock()
	if !ok {
		return false
	}
	t.cancel()
	return true
}

// Shutdown cancels every running task and waits until they have announced
// and been removed, or ctx is done. Spawn fails afterwards.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.stop()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
