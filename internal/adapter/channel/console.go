// Package channel holds the user-facing I/O adapters. The console channel
// is a line-oriented REPL on stdin/stdout: one line in, one result out.
package channel

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"ledbutler/internal/domain"
)

// Styles. NO_COLOR and non-TTY output are handled by lipgloss itself.
var (
	styleTitle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#1565c0", Dark: "#64b5f6"})
	styleHint   = lipgloss.NewStyle().Faint(true)
	styleError  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#c62828", Dark: "#ef5350"})
	stylePrompt = lipgloss.NewStyle().Bold(true)
)

// BannerInfo is what the welcome banner tells the user about this run.
type BannerInfo struct {
	LEDPin    int
	ButtonPin int // 0 = not wired
	Simulated bool
	ModelName string // empty = model disabled
}

// ConsoleOption configures a ConsoleChannel.
type ConsoleOption func(*ConsoleChannel)

// WithInput replaces stdin, for tests.
func WithInput(r io.Reader) ConsoleOption {
	return func(c *ConsoleChannel) { c.in = r }
}

// WithOutput replaces stdout, for tests.
func WithOutput(w io.Writer) ConsoleOption {
	return func(c *ConsoleChannel) { c.out = w }
}

// WithBanner sets the welcome banner contents.
func WithBanner(info BannerInfo) ConsoleOption {
	return func(c *ConsoleChannel) { c.banner = info }
}

// ConsoleChannel implements domain.Channel on stdin/stdout.
type ConsoleChannel struct {
	in     io.Reader
	out    io.Writer
	banner BannerInfo

	handler domain.MessageHandler
	logger  *slog.Logger
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
}

var _ domain.Channel = (*ConsoleChannel)(nil)

// NewConsoleChannel creates a console channel on stdin/stdout.
func NewConsoleChannel(logger *slog.Logger, opts ...ConsoleOption) *ConsoleChannel {
	c := &ConsoleChannel{
		in:     os.Stdin,
		out:    os.Stdout,
		logger: logger,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Name implements domain.Channel.
func (c *ConsoleChannel) Name() string { return "console" }

// Start implements domain.Channel: it prints the welcome banner and spawns
// the read loop. Blank lines are skipped; every other line goes to the
// handler. Handler errors are reported to the user and reading continues.
func (c *ConsoleChannel) Start(ctx context.Context, handler domain.MessageHandler) error {
	c.handler = handler

	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.printBanner()

	// The scan goroutine stays detached: a read blocked on stdin cannot be
	// interrupted, and the process is exiting whenever it would matter.
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-loopCtx.Done():
				return
			}
		}
	}()

	c.wg.Add(1)
	go c.readLoop(loopCtx, lines)

	c.logger.Info("console channel started")
	return nil
}

func (c *ConsoleChannel) readLoop(ctx context.Context, lines <-chan string) {
	defer c.wg.Done()
	c.prompt()
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				c.logger.Debug("console input closed")
				return
			}
			if strings.TrimSpace(line) == "" {
				c.prompt()
				continue
			}
			if err := c.handler(ctx, domain.InboundMessage{Content: line, ChannelName: c.Name()}); err != nil {
				c.Send(ctx, domain.OutboundMessage{Content: err.Error(), IsError: true})
			}
			c.prompt()
		}
	}
}

// Stop implements domain.Channel.
func (c *ConsoleChannel) Stop(_ context.Context) error {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	return nil
}

// Send implements domain.Channel.
func (c *ConsoleChannel) Send(_ context.Context, msg domain.OutboundMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if msg.IsError {
		_, err := fmt.Fprintln(c.out, styleError.Render(msg.Content))
		return err
	}
	_, err := fmt.Fprintln(c.out, msg.Content)
	return err
}

func (c *ConsoleChannel) prompt() {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprint(c.out, stylePrompt.Render("> "))
}

func (c *ConsoleChannel) printBanner() {
	c.mu.Lock()
	defer c.mu.Unlock()

	var b strings.Builder
	b.WriteString(styleTitle.Render("ledbutler") + " — talk to your LED\n")

	pins := fmt.Sprintf("LED on GPIO%d", c.banner.LEDPin)
	if c.banner.ButtonPin > 0 {
		pins += fmt.Sprintf(", button on GPIO%d", c.banner.ButtonPin)
	}
	if c.banner.Simulated {
		pins += "  [simulation mode, no hardware is driven]"
	}
	b.WriteString(pins + "\n")

	if c.banner.ModelName != "" {
		b.WriteString(fmt.Sprintf("Free-form commands go to %s when the rules don't match.\n", c.banner.ModelName))
	} else {
		b.WriteString("Model disabled: rule-based commands only.\n")
	}

	b.WriteString(styleHint.Render(
		`Try: "turn on the led", "blink for 10 seconds", "stop blinking",
     "what time is it", "status". Type "quit" to exit.`) + "\n")

	fmt.Fprint(c.out, b.String())
}
