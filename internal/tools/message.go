package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"sidekick/internal/agent"
	"sidekick/internal/bus"
)

// Message lets the main agent reply to the user mid-turn. It is never
// granted to subagents.
type Message struct {
	bus *bus.MessageBus
}

func NewMessage(b *bus.MessageBus) *Message {
	return &Message{bus: b}
}

func (m *Message) Name() string        { return "message" }
func (m *Message) Description() string { return "Send a message to the user on the current channel." }

func (m *Message) Parameters() map[string]any {
	return schema(map[string]any{
		"content": prop("string", "The message to send"),
		"channel": prop("string", "Optional target channel, defaults to the current one"),
		"chat_id": prop("string", "Optional target chat, defaults to the current one"),
	}, "content")
}

func (m *Message) Execute(ctx context.Context, args map[string]any) (string, error) {
	origin, _ := agent.OriginFromContext(ctx)
	channel := origin.Channel
	if v := stringArg(args, "channel"); v != "" {
		channel = v
	}
	chatID := origin.ChatID
	if v := stringArg(args, "chat_id"); v != "" {
		chatID = v
	}
	if channel == "" || chatID == "" {
		return "", errors.New("no target channel/chat for message")
	}

	content := stringArg(args, "content")
	slog.Debug("message: sending", "channel", channel, "chat_id", chatID, "len", len(content))
	if err := m.bus.PublishOutbound(ctx, bus.OutboundMessage{
		Channel: channel,
		ChatID:  chatID,
		Content: content,
	}); err != nil {
		return "", fmt.Errorf("publishing message: %w", err)
	}

	if channel == origin.Channel && chatID == origin.ChatID {
		agent.MarkReplied(ctx)
	}
	return fmt.Sprintf("Message sent to %s:%s", channel, chatID), nil
}
