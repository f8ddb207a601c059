package channel

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"ledbutler/internal/domain"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// syncBuffer guards a bytes.Buffer against the read loop goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestConsoleDeliversLinesToHandler(t *testing.T) {
	in := strings.NewReader("turn on the led\n\n   \nstatus\n")
	out := &syncBuffer{}

	var mu sync.Mutex
	var got []string
	handler := func(_ context.Context, msg domain.InboundMessage) error {
		mu.Lock()
		defer mu.Unlock()
		if msg.ChannelName != "console" {
			t.Errorf("ChannelName = %q, want console", msg.ChannelName)
		}
		got = append(got, msg.Content)
		return nil
	}

	c := NewConsoleChannel(newTestLogger(), WithInput(in), WithOutput(out))
	if err := c.Start(context.Background(), handler); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop(context.Background())

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n >= 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("handler saw %d lines, want 2", n)
		case <-time.After(5 * time.Millisecond):
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if got[0] != "turn on the led" || got[1] != "status" {
		t.Errorf("lines = %v", got)
	}
}

func TestConsoleHandlerErrorReportedAndLoopContinues(t *testing.T) {
	in := strings.NewReader("bad\ngood\n")
	out := &syncBuffer{}

	var mu sync.Mutex
	var seen []string
	handler := func(_ context.Context, msg domain.InboundMessage) error {
		mu.Lock()
		seen = append(seen, msg.Content)
		mu.Unlock()
		if msg.Content == "bad" {
			return fmt.Errorf("hardware access failed")
		}
		return nil
	}

	c := NewConsoleChannel(newTestLogger(), WithInput(in), WithOutput(out))
	if err := c.Start(context.Background(), handler); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop(context.Background())

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := len(seen)
		mu.Unlock()
		if n == 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("handler saw %d lines, want 2 (loop stopped on error?)", n)
		case <-time.After(5 * time.Millisecond):
		}
	}

	if !strings.Contains(out.String(), "hardware access failed") {
		t.Error("handler error was not reported to the user")
	}
}

func TestConsoleBanner(t *testing.T) {
	out := &syncBuffer{}
	c := NewConsoleChannel(newTestLogger(),
		WithInput(strings.NewReader("")),
		WithOutput(out),
		WithBanner(BannerInfo{LEDPin: 17, ButtonPin: 27, Simulated: true, ModelName: "smollm2:360m"}),
	)
	if err := c.Start(context.Background(), func(context.Context, domain.InboundMessage) error { return nil }); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop(context.Background())

	banner := out.String()
	for _, want := range []string{"GPIO17", "GPIO27", "simulation mode", "smollm2:360m", "quit"} {
		if !strings.Contains(banner, want) {
			t.Errorf("banner missing %q:\n%s", want, banner)
		}
	}
}

func TestConsoleSendStylesErrors(t *testing.T) {
	out := &syncBuffer{}
	c := NewConsoleChannel(newTestLogger(), WithInput(strings.NewReader("")), WithOutput(out))

	if err := c.Send(context.Background(), domain.OutboundMessage{Content: "LED is now on."}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := c.Send(context.Background(), domain.OutboundMessage{Content: "could not reach pin", IsError: true}); err != nil {
		t.Fatalf("Send error: %v", err)
	}

	got := out.String()
	if !strings.Contains(got, "LED is now on.") || !strings.Contains(got, "could not reach pin") {
		t.Errorf("output = %q", got)
	}
}

func TestConsoleStopEndsLoop(t *testing.T) {
	// A reader that never produces input; Stop must still return.
	pr, pw := io.Pipe()
	defer pw.Close()

	c := NewConsoleChannel(newTestLogger(), WithInput(pr), WithOutput(&syncBuffer{}))
	if err := c.Start(context.Background(), func(context.Context, domain.InboundMessage) error { return nil }); err != nil {
		t.Fatalf("Start: %v", err)
	}

	done := make(chan struct{})
	go func() {
		c.Stop(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}
