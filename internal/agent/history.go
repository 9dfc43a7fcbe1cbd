package agent

import (
	"context"
	"sync"

	"sidekick/internal/llm"
)

// MemoryHistory keeps conversations in process memory.
type MemoryHistory struct {
	mu       sync.Mutex
	sessions map[string][]llm.Message
}

func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{sessions: make(map[string][]llm.Message)}
}

func (h *MemoryHistory) Load(ctx context.Context, key string, limit int) ([]llm.Message, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	msgs := h.sessions[key]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]llm.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (h *MemoryHistory) Append(ctx context.Context, key string, msgs ...llm.Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[key] = append(h.sessions[key], msgs...)
	return nil
}
