package agent

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sidekick/internal/bus"
	"sidekick/internal/llm"
	"sidekick/internal/llm/llmtest"
)

func TestLoopRoutesSystemMessagesToOrigin(t *testing.T) {
	b := bus.New(8)
	provider := llmtest.New(llmtest.Text("The research is done."))
	loop := NewLoop(b, provider, NewRegistry())

	loop.Handle(context.Background(), bus.InboundMessage{
		Channel:  bus.SystemChannel,
		SenderID: "subagent",
		ChatID:   bus.JoinOrigin("telegram", "42"),
		Content:  "[Subagent 'research' completed successfully]",
	})

	out, err := b.ConsumeOutbound(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "telegram", out.Channel)
	assert.Equal(t, "42", out.ChatID)
	assert.Equal(t, "The research is done.", out.Content)

	req := provider.Requests()[0]
	user := req.Messages[len(req.Messages)-1]
	assert.True(t, strings.HasPrefix(user.Content, "[System: subagent] "))
}

func TestLoopSkipsFinalReplyWhenToolReplied(t *testing.T) {
	b := bus.New(8)
	reg := NewRegistry()
	reg.Register(&fakeTool{name: "message", fn: func(ctx context.Context, args map[string]any) (string, error) {
		MarkReplied(ctx)
		return "sent", nil
	}})
	provider := llmtest.New(
		llmtest.Calls(llmtest.Call("m1", "message", nil)),
		llmtest.Text("already told them"),
	)
	loop := NewLoop(b, provider, reg)

	loop.Handle(context.Background(), bus.InboundMessage{Channel: "cli", ChatID: "direct", Content: "hi"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := b.ConsumeOutbound(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLoopReportsProviderFailureToUser(t *testing.T) {
	b := bus.New(8)
	provider := llmtest.New(llmtest.Step{Err: assert.AnError})
	loop := NewLoop(b, provider, NewRegistry())

	loop.Handle(context.Background(), bus.InboundMessage{Channel: "cli", ChatID: "direct", Content: "hi"})

	out, err := b.ConsumeOutbound(context.Background())
	require.NoError(t, err)
	assert.Contains(t, out.Content, "Sorry, I ran into an error")
}

func TestProcessDirectKeepsHistory(t *testing.T) {
	provider := llmtest.New(llmtest.Text("first"), llmtest.Text("second"))
	loop := NewLoop(bus.New(1), provider, NewRegistry(), WithLoopHistoryLimit(10))

	ctx := context.Background()
	reply, err := loop.ProcessDirect(ctx, "one", "cli", "direct")
	require.NoError(t, err)
	assert.Equal(t, "first", reply)

	_, err = loop.ProcessDirect(ctx, "two", "cli", "direct")
	require.NoError(t, err)

	msgs := provider.Requests()[1].Messages
	require.Len(t, msgs, 4)
	assert.Equal(t, llm.Message{Role: llm.RoleUser, Content: "one"}, msgs[1])
	assert.Equal(t, llm.Message{Role: llm.RoleAssistant, Content: "first"}, msgs[2])
	assert.Equal(t, "two", msgs[3].Content)
}

func TestLoopRunStopsOnCancel(t *testing.T) {
	loop := NewLoop(bus.New(1), llmtest.New(llmtest.Text("x")), NewRegistry())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, loop.Run(ctx))
}

func TestMemoryHistoryLimit(t *testing.T) {
	h := NewMemoryHistory()
	ctx := context.Background()
	for _, c := range []string{"a", "b", "c"} {
		require.NoError(t, h.Append(ctx, "k", llm.Message{Role: llm.RoleUser, Content: c}))
	}
	msgs, err := h.Load(ctx, "k", 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "b", msgs[0].Content)
}

func TestProcessStreamEmitsEvents(t *testing.T) {
	reg := NewRegistry()
	reg.Register(echoTool("echo"))
	provider := llmtest.New(
		llmtest.Calls(llmtest.Call("c1", "echo", map[string]any{"text": "ping"})),
		llmtest.Text("pong"),
	)
	loop := NewLoop(bus.New(1), provider, reg)

	var types []EventType
	reply, err := loop.ProcessStream(context.Background(), "go", "api", "s1", func(ev Event) {
		types = append(types, ev.Type)
	})
	require.NoError(t, err)
	assert.Equal(t, "pong", reply)
	assert.Equal(t, []EventType{EventToolCall, EventToolResult, EventDone}, types)
}
