package bus

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const DefaultCapacity = 100

// MessageBus decouples producers of events (channels, the webhook, finished
// subagents) from the agent loop that consumes them. Inbound publication never
// blocks: when the queue is full the oldest pending message is dropped.
type MessageBus struct {
	inbound  chan InboundMessage
	outbound chan OutboundMessage

	mu      sync.Mutex // serializes the drop-oldest path
	dropped atomic.Int64
}

func New(capacity int) *MessageBus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MessageBus{
		inbound:  make(chan InboundMessage, capacity),
		outbound: make(chan OutboundMessage, capacity),
	}
}

func (b *MessageBus) PublishInbound(msg InboundMessage) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	select {
	case b.inbound <- msg:
		return
	default:
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for {
		select {
		case b.inbound <- msg:
			return
		default:
		}
		select {
		case old := <-b.inbound:
			b.dropped.Add(1)
			slog.Warn("bus: inbound queue full, dropped oldest message",
				"channel", old.Channel,
				"sender_id", old.SenderID,
				"chat_id", old.ChatID,
			)
		default:
		}
	}
}

func (b *MessageBus) ConsumeInbound(ctx context.Context) (InboundMessage, error) {
	select {
	case msg := <-b.inbound:
		return msg, nil
	case <-ctx.Done():
		return InboundMessage{}, ctx.Err()
	}
}

// PublishOutbound blocks until the message is queued or ctx is done. Replies
// to users are never dropped.
func (b *MessageBus) PublishOutbound(ctx context.Context, msg OutboundMessage) error {
	select {
	case b.outbound <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *MessageBus) ConsumeOutbound(ctx context.Context) (OutboundMessage, error) {
	select {
	case msg := <-b.outbound:
		return msg, nil
	case <-ctx.Done():
		return OutboundMessage{}, ctx.Err()
	}
}

// Dropped reports how many inbound messages were discarded for backpressure.
func (b *MessageBus) Dropped() int64 {
	return b.dropped.Load()
}

func (b *MessageBus) InboundLen() int {
	return len(b.inbound)
}
