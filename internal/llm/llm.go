package llm

import (
	"context"
	"fmt"

	"sidekick/internal/config"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one provider-neutral conversation entry. Assistant entries may
// carry ToolCalls; tool entries answer one call through ToolCallID.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

type Request struct {
	Messages    []Message
	Tools       []ToolDefinition
	Model       string
	Temperature float64
	MaxTokens   int
}

type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

type Response struct {
	Content      string
	ToolCalls    []ToolCall
	FinishReason string
	Model        string
	Usage        Usage
}

func (r *Response) HasToolCalls() bool {
	return r != nil && len(r.ToolCalls) > 0
}

type Provider interface {
	Chat(ctx context.Context, req Request) (*Response, error)
	DefaultModel() string
}

// New builds the provider described by cfg, wrapped in a circuit breaker.
func New(name string, cfg *config.LLMConfig) (Provider, error) {
	var p Provider
	switch cfg.Type {
	case "openai", "":
		p = NewOpenAI(cfg.BaseURL, cfg.APIKey, cfg.Model)
	case "anthropic":
		p = NewAnthropic(cfg.BaseURL, cfg.APIKey, cfg.Model)
	default:
		return nil, fmt.Errorf("llm %q: unsupported type %q", name, cfg.Type)
	}
	return NewBreaker(name, p, cfg.Breaker.MaxFailures, cfg.Breaker.Timeout.Duration), nil
}
