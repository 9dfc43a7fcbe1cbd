package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
)

const (
	defaultBreakerMaxFailures uint32 = 5
	defaultBreakerTimeout            = 30 * time.Second
	defaultBreakerInterval           = 60 * time.Second
)

// Breaker fails fast once the wrapped provider has failed repeatedly, so a
// dead upstream does not burn every running subagent's iteration budget.
type Breaker struct {
	name    string
	inner   Provider
	breaker *gobreaker.CircuitBreaker[*Response]
}

func NewBreaker(name string, inner Provider, maxFailures uint32, timeout time.Duration) *Breaker {
	if maxFailures == 0 {
		maxFailures = defaultBreakerMaxFailures
	}
	if timeout == 0 {
		timeout = defaultBreakerTimeout
	}

	cb := gobreaker.NewCircuitBreaker[*Response](gobreaker.Settings{
		Name:        "llm:" + name,
		MaxRequests: 1,
		Interval:    defaultBreakerInterval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			// Caller cancellation says nothing about provider health.
			return err == nil || errors.Is(err, context.Canceled)
		},
	})

	return &Breaker{name: name, inner: inner, breaker: cb}
}

func (b *Breaker) DefaultModel() string { return b.inner.DefaultModel() }

func (b *Breaker) Chat(ctx context.Context, req Request) (*Response, error) {
	resp, err := b.breaker.Execute(func() (*Response, error) {
		return b.inner.Chat(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("provider %q circuit open: %w", b.name, err)
		}
		return nil, err
	}
	return resp, nil
}

func (b *Breaker) State() gobreaker.State {
	return b.breaker.State()
}
