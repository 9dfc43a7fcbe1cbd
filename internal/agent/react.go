package agent

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"sidekick/internal/llm"
	"sidekick/internal/trace"
)

const (
	DefaultMaxIterations = 15
	DefaultTemperature   = 0.7
	DefaultMaxTokens     = 4096
)

type ReactOption func(*ReactRunner)

func WithModel(model string) ReactOption {
	return func(r *ReactRunner) { r.model = model }
}

func WithTemperature(t float64) ReactOption {
	return func(r *ReactRunner) { r.temperature = t }
}

func WithMaxTokens(n int) ReactOption {
	return func(r *ReactRunner) { r.maxTokens = n }
}

func WithMaxIterations(n int) ReactOption {
	return func(r *ReactRunner) {
		if n > 0 {
			r.maxIterations = n
		}
	}
}

// WithParallelTools runs the tool calls of one iteration concurrently.
// Results are still appended in the order the model requested them.
func WithParallelTools(on bool) ReactOption {
	return func(r *ReactRunner) { r.parallel = on }
}

func WithEmit(emit func(Event)) ReactOption {
	return func(r *ReactRunner) { r.emit = emit }
}

// ReactRunner drives a bounded Reason + Act loop: each iteration is one model
// call, and any tool calls it requests are executed and fed back before the
// next one. The loop ends when the model answers without tool calls or the
// iteration budget is spent.
type ReactRunner struct {
	provider      llm.Provider
	registry      *Registry
	model         string
	temperature   float64
	maxTokens     int
	maxIterations int
	parallel      bool
	emit          func(Event)
}

// Outcome describes how a run ended. Exhausted is set when the budget ran out
// before the model produced a final answer; Content is empty in that case.
type Outcome struct {
	Content    string
	Iterations int
	Exhausted  bool
	Messages   []llm.Message
}

func NewReactRunner(provider llm.Provider, registry *Registry, opts ...ReactOption) *ReactRunner {
	r := &ReactRunner{
		provider:      provider,
		registry:      registry,
		temperature:   DefaultTemperature,
		maxTokens:     DefaultMaxTokens,
		maxIterations: DefaultMaxIterations,
		emit:          func(Event) {},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.model == "" {
		r.model = provider.DefaultModel()
	}
	return r
}

func (r *ReactRunner) MaxIterations() int { return r.maxIterations }

// Run executes the loop starting from messages. A provider error ends the run
// and is returned together with the partial outcome.
func (r *ReactRunner) Run(ctx context.Context, messages []llm.Message) (*Outcome, error) {
	out := &Outcome{Messages: append([]llm.Message(nil), messages...)}
	defs := r.registry.Definitions()

	for out.Iterations < r.maxIterations {
		if err := ctx.Err(); err != nil {
			r.emit(Event{Type: EventError, Data: "cancelled"})
			return out, err
		}

		llmCtx, span := trace.Tracer().Start(ctx, "llm.react",
			oteltrace.WithAttributes(
				attribute.Int("llm.iteration", out.Iterations),
				attribute.String("llm.model", r.model),
			),
		)
		resp, err := r.provider.Chat(llmCtx, llm.Request{
			Messages:    out.Messages,
			Tools:       defs,
			Model:       r.model,
			Temperature: r.temperature,
			MaxTokens:   r.maxTokens,
		})
		if err == nil && resp == nil {
			err = errors.New("provider returned no response")
		}
		if err != nil {
			trace.Fail(span, err)
			span.End()
			r.emit(Event{Type: EventError, Data: err.Error()})
			return out, err
		}
		span.SetAttributes(
			attribute.Int64("llm.input_tokens", resp.Usage.InputTokens),
			attribute.Int64("llm.output_tokens", resp.Usage.OutputTokens),
			attribute.Int("llm.tool_calls", len(resp.ToolCalls)),
		)
		span.End()
		out.Iterations++

		if !resp.HasToolCalls() {
			out.Content = resp.Content
			r.emit(Event{Type: EventDone, Data: resp.Content})
			return out, nil
		}

		out.Messages = append(out.Messages, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		out.Messages = append(out.Messages, r.act(ctx, resp.ToolCalls)...)
	}

	out.Exhausted = true
	return out, nil
}

// act executes tool calls and returns one tool message per call, in call
// order regardless of completion order.
func (r *ReactRunner) act(ctx context.Context, calls []llm.ToolCall) []llm.Message {
	results := make([]llm.Message, len(calls))

	run := func(i int, call llm.ToolCall) {
		r.emit(Event{Type: EventToolCall, Data: map[string]any{
			"name":      call.Name,
			"arguments": call.Arguments,
		}})
		slog.Debug("tool call", "name", call.Name, "task_id", TaskIDFromContext(ctx))

		content := r.registry.Execute(ctx, call.Name, call.Arguments)
		results[i] = llm.Message{
			Role:       llm.RoleTool,
			ToolCallID: call.ID,
			Name:       call.Name,
			Content:    content,
		}
		r.emit(Event{Type: EventToolResult, Data: map[string]string{
			"name":    call.Name,
			"content": content,
		}})
	}

	if !r.parallel || len(calls) == 1 {
		for i, call := range calls {
			run(i, call)
		}
		return results
	}

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call llm.ToolCall) {
			defer wg.Done()
			run(i, call)
		}(i, call)
	}
	wg.Wait()
	return results
}
