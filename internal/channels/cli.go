package channels

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"sidekick/internal/bus"
)

const (
	CLIChannel = "cli"
	CLIChatID  = "direct"
)

// CLI reads user lines from in and prints replies to out.
type CLI struct {
	bus    *bus.MessageBus
	in     io.Reader
	out    io.Writer
	prompt string
	mu     sync.Mutex
	done   chan struct{}
	once   sync.Once
}

func NewCLI(b *bus.MessageBus, in io.Reader, out io.Writer) *CLI {
	return &CLI{bus: b, in: in, out: out, prompt: "> ", done: make(chan struct{})}
}

// Done is closed once Start has returned, e.g. at end of input.
func (c *CLI) Done() <-chan struct{} { return c.done }

func (c *CLI) Name() string { return CLIChannel }

// Start publishes each non-empty input line until EOF or ctx is done.
func (c *CLI) Start(ctx context.Context) error {
	defer c.once.Do(func() { close(c.done) })

	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- scanner.Err()
	}()

	c.printPrompt()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errc:
			return err
		case line := <-lines:
			line = strings.TrimSpace(line)
			if line == "" {
				c.printPrompt()
				continue
			}
			c.bus.PublishInbound(bus.InboundMessage{
				Channel:   CLIChannel,
				SenderID:  "user",
				ChatID:    CLIChatID,
				Content:   line,
				Timestamp: time.Now(),
			})
		}
	}
}

func (c *CLI) Send(_ context.Context, msg bus.OutboundMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := fmt.Fprintf(c.out, "\n%s\n\n", msg.Content); err != nil {
		return err
	}
	_, err := io.WriteString(c.out, c.prompt)
	return err
}

func (c *CLI) printPrompt() {
	c.mu.Lock()
	defer c.mu.Unlock()
	io.WriteString(c.out, c.prompt)
}
