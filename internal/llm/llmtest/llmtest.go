// Package llmtest provides scripted providers for tests.
package llmtest

import (
	"context"
	"fmt"
	"sync"

	"sidekick/internal/llm"
)

// Scripted replays a fixed list of responses, one per Chat call, and records
// every request it receives. Once the script is exhausted it keeps returning
// the last entry.
type Scripted struct {
	mu        sync.Mutex
	steps     []Step
	requests  []llm.Request
	model     string
	callCount int
}

// Step is one scripted reply. Gate, when set, blocks the call until it is
// closed or the context is done. A Step with neither Response nor Err
// replies (nil, nil).
type Step struct {
	Response *llm.Response
	Err      error
	Panic    any
	Gate     <-chan struct{}
}

func New(steps ...Step) *Scripted {
	return &Scripted{steps: steps, model: "test-model"}
}

// Text is a terminal reply with no tool calls.
func Text(content string) Step {
	return Step{Response: &llm.Response{Content: content, FinishReason: "stop"}}
}

// Calls is a reply requesting the given tool calls.
func Calls(calls ...llm.ToolCall) Step {
	return Step{Response: &llm.Response{ToolCalls: calls, FinishReason: "tool_calls"}}
}

// Call builds a tool call with a deterministic id.
func Call(id, name string, args map[string]any) llm.ToolCall {
	if args == nil {
		args = map[string]any{}
	}
	return llm.ToolCall{ID: id, Name: name, Arguments: args}
}

func (s *Scripted) DefaultModel() string { return s.model }

func (s *Scripted) Chat(ctx context.Context, req llm.Request) (*llm.Response, error) {
	s.mu.Lock()
	s.requests = append(s.requests, cloneRequest(req))
	if len(s.steps) == 0 {
		s.mu.Unlock()
		return nil, fmt.Errorf("llmtest: no scripted steps")
	}
	i := s.callCount
	if i >= len(s.steps) {
		i = len(s.steps) - 1
	}
	s.callCount++
	step := s.steps[i]
	s.mu.Unlock()

	if step.Gate != nil {
		select {
		case <-step.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if step.Panic != nil {
		panic(step.Panic)
	}
	if step.Err != nil {
		return nil, step.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if step.Response == nil {
		return nil, nil
	}
	resp := *step.Response
	return &resp, nil
}

// CallCount returns how many Chat calls were made.
func (s *Scripted) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callCount
}

// Requests returns a copy of the recorded requests.
func (s *Scripted) Requests() []llm.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]llm.Request, len(s.requests))
	copy(out, s.requests)
	return out
}

func cloneRequest(req llm.Request) llm.Request {
	msgs := make([]llm.Message, len(req.Messages))
	copy(msgs, req.Messages)
	req.Messages = msgs
	tools := make([]llm.ToolDefinition, len(req.Tools))
	copy(tools, req.Tools)
	req.Tools = tools
	return req
}
