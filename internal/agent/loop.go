package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"sidekick/internal/bus"
	"sidekick/internal/llm"
	"sidekick/internal/trace"
)

// History persists the visible part of each conversation: user messages and
// final assistant replies.
type History interface {
	Load(ctx context.Context, sessionKey string, limit int) ([]llm.Message, error)
	Append(ctx context.Context, sessionKey string, msgs ...llm.Message) error
}

type LoopOption func(*Loop)

func WithLoopHistory(h History) LoopOption {
	return func(l *Loop) { l.history = h }
}

func WithLoopHistoryLimit(n int) LoopOption {
	return func(l *Loop) { l.historyLimit = n }
}

func WithLoopSystemPrompt(build func(now time.Time) string) LoopOption {
	return func(l *Loop) { l.systemPrompt = build }
}

// WithLoopRunnerOptions forwards options to the per-turn ReactRunner.
func WithLoopRunnerOptions(opts ...ReactOption) LoopOption {
	return func(l *Loop) { l.runnerOpts = append(l.runnerOpts, opts...) }
}

// Loop is the main conversational agent. It consumes inbound events from the
// bus one at a time and publishes its replies as outbound events.
type Loop struct {
	bus          *bus.MessageBus
	provider     llm.Provider
	registry     *Registry
	history      History
	historyLimit int
	systemPrompt func(now time.Time) string
	runnerOpts   []ReactOption
}

func NewLoop(b *bus.MessageBus, provider llm.Provider, registry *Registry, opts ...LoopOption) *Loop {
	l := &Loop{
		bus:          b,
		provider:     provider,
		registry:     registry,
		history:      NewMemoryHistory(),
		historyLimit: 50,
		systemPrompt: func(time.Time) string { return "You are a helpful assistant." },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run consumes inbound messages until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	slog.Info("agent loop started", "tools", l.registry.Names())
	for {
		msg, err := l.bus.ConsumeInbound(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				slog.Info("agent loop stopped")
				return nil
			}
			return err
		}
		l.Handle(ctx, msg)
	}
}

// Handle processes one inbound message and publishes the reply, if any, to
// the message's origin.
func (l *Loop) Handle(ctx context.Context, msg bus.InboundMessage) {
	channel, chatID := msg.Origin()
	origin := Origin{Channel: channel, ChatID: chatID}

	content := msg.Content
	if msg.Channel == bus.SystemChannel {
		content = fmt.Sprintf("[System: %s] %s", msg.SenderID, msg.Content)
	}

	slog.Info("agent: processing message",
		"channel", msg.Channel,
		"sender_id", msg.SenderID,
		"origin", bus.JoinOrigin(channel, chatID),
	)

	reply, replied, err := l.process(ctx, origin, content)
	if err != nil {
		slog.Error("agent: turn failed", "origin", bus.JoinOrigin(channel, chatID), "error", err)
		reply = "Sorry, I ran into an error: " + err.Error()
		replied = false
	}
	if replied || strings.TrimSpace(reply) == "" {
		return
	}

	if err := l.bus.PublishOutbound(ctx, bus.OutboundMessage{
		Channel: channel,
		ChatID:  chatID,
		Content: reply,
	}); err != nil {
		slog.Warn("agent: dropping reply", "origin", bus.JoinOrigin(channel, chatID), "error", err)
	}
}

// ProcessDirect runs one turn synchronously and returns the reply instead of
// publishing it.
func (l *Loop) ProcessDirect(ctx context.Context, content, channel, chatID string) (string, error) {
	reply, _, err := l.process(ctx, Origin{Channel: channel, ChatID: chatID}, content)
	return reply, err
}

// ProcessStream is ProcessDirect with progress events delivered to emit.
func (l *Loop) ProcessStream(ctx context.Context, content, channel, chatID string, emit func(Event)) (string, error) {
	reply, _, err := l.process(ctx, Origin{Channel: channel, ChatID: chatID}, content, WithEmit(emit))
	return reply, err
}

func (l *Loop) process(ctx context.Context, origin Origin, content string, extra ...ReactOption) (string, bool, error) {
	sessionKey := bus.JoinOrigin(origin.Channel, origin.ChatID)
	ctx = ContextWithSessionID(ctx, sessionKey)
	ctx = ContextWithOrigin(ctx, origin)
	ctx, turn := contextWithTurn(ctx)

	ctx, span := trace.Tracer().Start(ctx, "agent.turn",
		oteltrace.WithAttributes(attribute.String("session.id", sessionKey)),
	)
	defer span.End()

	past, err := l.history.Load(ctx, sessionKey, l.historyLimit)
	if err != nil {
		slog.Warn("agent: failed to load history", "session", sessionKey, "error", err)
		past = nil
	}

	msgs := make([]llm.Message, 0, len(past)+2)
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: l.systemPrompt(time.Now())})
	msgs = append(msgs, past...)
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: content})

	runner := NewReactRunner(l.provider, l.registry, slices.Concat(l.runnerOpts, extra)...)
	out, err := runner.Run(ctx, msgs)
	if err != nil {
		trace.Fail(span, err)
		return "", false, err
	}

	reply := out.Content
	if out.Exhausted {
		reply = fmt.Sprintf("I stopped after %d steps without finishing. Try breaking the request into smaller pieces.", out.Iterations)
	}

	if err := l.history.Append(ctx, sessionKey,
		llm.Message{Role: llm.RoleUser, Content: content},
		llm.Message{Role: llm.RoleAssistant, Content: reply},
	); err != nil {
		slog.Warn("agent: failed to save history", "session", sessionKey, "error", err)
	}

	return reply, turn.replied.Load(), nil
}
