package history

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sidekick/internal/agent"
	"sidekick/internal/db"
	"sidekick/internal/llm"
)

var _ agent.History = (*Store)(nil)

func newStore(t *testing.T) *Store {
	t.Helper()
	d, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	require.NoError(t, d.Migrate())
	return NewStore(d)
}

func TestAppendAndLoad(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, "cli:direct",
		llm.Message{Role: llm.RoleUser, Content: "hi"},
		llm.Message{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{ID: "c1", Name: "list_dir", Arguments: map[string]any{"path": "."}}}},
		llm.Message{Role: llm.RoleTool, Content: "a.txt", ToolCallID: "c1", Name: "list_dir"},
		llm.Message{Role: llm.RoleAssistant, Content: "one file"},
	))
	require.NoError(t, s.Append(ctx, "telegram:1", llm.Message{Role: llm.RoleUser, Content: "other"}))

	msgs, err := s.Load(ctx, "cli:direct", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	assert.Equal(t, "hi", msgs[0].Content)
	require.Len(t, msgs[1].ToolCalls, 1)
	assert.Equal(t, "list_dir", msgs[1].ToolCalls[0].Name)
	assert.Equal(t, ".", msgs[1].ToolCalls[0].Arguments["path"])
	assert.Equal(t, "c1", msgs[2].ToolCallID)
	assert.Equal(t, "one file", msgs[3].Content)
}

func TestLoadLimitKeepsNewest(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	for _, c := range []string{"1", "2", "3", "4"} {
		require.NoError(t, s.Append(ctx, "k", llm.Message{Role: llm.RoleUser, Content: c}))
	}

	msgs, err := s.Load(ctx, "k", 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "3", msgs[0].Content)
	assert.Equal(t, "4", msgs[1].Content)
}

func TestClear(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.Append(ctx, "k", llm.Message{Role: llm.RoleUser, Content: "x"}))
	require.NoError(t, s.Clear(ctx, "k"))

	msgs, err := s.Load(ctx, "k", 0)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}
