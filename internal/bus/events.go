package bus

import (
	"strings"
	"time"
)

// SystemChannel marks inbound events produced inside the process (subagent
// announcements, webhook notifications) rather than by a user.
const SystemChannel = "system"

type InboundMessage struct {
	Channel   string            `json:"channel"`
	SenderID  string            `json:"sender_id"`
	ChatID    string            `json:"chat_id"`
	Content   string            `json:"content"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func (m InboundMessage) SessionKey() string {
	return m.Channel + ":" + m.ChatID
}

// Origin returns where replies to m should go. System messages carry the
// origin encoded in ChatID as "channel:chat_id".
func (m InboundMessage) Origin() (channel, chatID string) {
	if m.Channel != SystemChannel {
		return m.Channel, m.ChatID
	}
	return SplitOrigin(m.ChatID)
}

// JoinOrigin encodes an origin for a system message's ChatID.
func JoinOrigin(channel, chatID string) string {
	return channel + ":" + chatID
}

// SplitOrigin is the inverse of JoinOrigin. Values without a separator are
// treated as a chat on the cli channel.
func SplitOrigin(s string) (channel, chatID string) {
	ch, chat, ok := strings.Cut(s, ":")
	if !ok {
		return "cli", s
	}
	return ch, chat
}

type OutboundMessage struct {
	Channel string `json:"channel"`
	ChatID  string `json:"chat_id"`
	Content string `json:"content"`
}
