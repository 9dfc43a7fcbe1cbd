// Package channels connects chat surfaces to the message bus. Inbound user
// messages are published on the bus; the Dispatcher delivers the agent's
// outbound replies back to the channel they name.
package channels

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"

	"sidekick/internal/bus"
	"sidekick/internal/config"
)

type Channel interface {
	Name() string
	// Start runs the channel until ctx is done.
	Start(ctx context.Context) error
	Send(ctx context.Context, msg bus.OutboundMessage) error
}

// RouteRegistrar is implemented by channels that receive webhooks through
// the gateway.
type RouteRegistrar interface {
	RegisterRoutes(mux *http.ServeMux)
}

// FromConfig builds the enabled channels described by cfg.
func FromConfig(cfg map[string]*config.ChannelConfig, b *bus.MessageBus) ([]Channel, error) {
	names := make([]string, 0, len(cfg))
	for name := range cfg {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []Channel
	for _, name := range names {
		c := cfg[name]
		if c == nil || !c.Enabled {
			continue
		}
		typ := c.Type
		if typ == "" {
			typ = name
		}
		switch typ {
		case "telegram":
			tg, err := NewTelegram(TelegramConfigFromSettings(c.Settings), b)
			if err != nil {
				return nil, fmt.Errorf("channel %s: %w", name, err)
			}
			out = append(out, tg)
		default:
			return nil, fmt.Errorf("channel %s: unsupported type %q", name, typ)
		}
	}
	return out, nil
}

// Dispatcher runs channels and routes outbound messages to them by name.
type Dispatcher struct {
	bus      *bus.MessageBus
	channels map[string]Channel
}

func NewDispatcher(b *bus.MessageBus, chs ...Channel) *Dispatcher {
	d := &Dispatcher{bus: b, channels: make(map[string]Channel, len(chs))}
	for _, ch := range chs {
		d.channels[ch.Name()] = ch
	}
	return d
}

func (d *Dispatcher) Names() []string {
	names := make([]string, 0, len(d.channels))
	for name := range d.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run starts every channel and delivers outbound messages until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, ch := range d.channels {
		wg.Add(1)
		go func(ch Channel) {
			defer wg.Done()
			if err := ch.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("channel stopped", "channel", ch.Name(), "error", err)
			}
		}(ch)
	}
	defer wg.Wait()

	for {
		msg, err := d.bus.ConsumeOutbound(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		d.Deliver(ctx, msg)
	}
}

// Deliver sends one message. Failures are logged.
func (d *Dispatcher) Deliver(ctx context.Context, msg bus.OutboundMessage) {
	ch, ok := d.channels[msg.Channel]
	if !ok {
		slog.Warn("outbound message for unknown channel", "channel", msg.Channel, "chat_id", msg.ChatID)
		return
	}
	if err := ch.Send(ctx, msg); err != nil {
		slog.Error("failed to deliver message", "channel", msg.Channel, "chat_id", msg.ChatID, "error", err)
	}
}
