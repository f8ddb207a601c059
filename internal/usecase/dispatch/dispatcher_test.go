package dispatch

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledbutler/internal/adapter/gpio"
	"ledbutler/internal/domain"
	"ledbutler/internal/infra/config"
	"ledbutler/internal/usecase/eventbus"
	"ledbutler/internal/usecase/led"
	"ledbutler/internal/usecase/rules"
)

// countingResolver records how often the model path is consulted.
type countingResolver struct {
	calls  atomic.Int64
	action domain.Action
	ok     bool
}

func (r *countingResolver) Resolve(_ context.Context, _ string) (domain.Action, bool) {
	r.calls.Add(1)
	return r.action, r.ok
}

type fixture struct {
	dispatcher *Dispatcher
	backend    *gpio.MockBackend
	resolver   *countingResolver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	backend := gpio.NewMockBackend()
	bus := eventbus.New(logger)
	t.Cleanup(bus.Close)

	controller, err := led.New(backend, bus, logger, config.GPIOConfig{LEDPin: 17})
	require.NoError(t, err)
	t.Cleanup(func() { _ = controller.Close() })

	matcher := rules.New(config.BlinkConfig{DefaultIntervalMs: 500, DefaultDurationSeconds: 5})
	resolver := &countingResolver{}
	status := NewStatusReporter(controller, nil, 17, "mock")

	return &fixture{
		dispatcher: New(matcher, resolver, controller, NewTimeService(), status, bus, logger),
		backend:    backend,
		resolver:   resolver,
	}
}

func TestHandleTurnOn(t *testing.T) {
	f := newFixture(t)

	res := f.dispatcher.Handle(context.Background(), "turn on the LED")
	assert.True(t, res.Success)
	assert.Equal(t, domain.ActionLedOn, res.Action.Kind)
	assert.Equal(t, domain.SourceRules, res.Source)
	assert.Contains(t, res.Message, "on")
	assert.Equal(t, domain.High, f.backend.Level(17))
}

func TestHandleRuleMatchNeverConsultsModel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, input := range []string{
		"turn on the led",
		"turn off the light",
		"toggle the led",
		"blink for 3 seconds",
		"stop blinking",
		"what time is it",
		"status",
		"quit",
	} {
		f.dispatcher.Handle(ctx, input)
	}
	assert.Zero(t, f.resolver.calls.Load(), "model consulted on rule-matched input")
}

func TestHandleGarbageWithModelAbsent(t *testing.T) {
	f := newFixture(t)

	res := f.dispatcher.Handle(context.Background(), "asdkjalksd")
	assert.False(t, res.Success)
	assert.Equal(t, domain.ActionNoop, res.Action.Kind)
	assert.Equal(t, domain.SourceNone, res.Source)
	assert.Equal(t, int64(1), f.resolver.calls.Load())
	assert.Zero(t, f.backend.Writes(17), "failed command touched hardware")
}

func TestHandleModelResolvedAction(t *testing.T) {
	f := newFixture(t)
	f.resolver.action = domain.Action{Kind: domain.ActionLedOn}
	f.resolver.ok = true

	res := f.dispatcher.Handle(context.Background(), "please illuminate the diode")
	assert.True(t, res.Success)
	assert.Equal(t, domain.SourceModel, res.Source)
	assert.Equal(t, domain.High, f.backend.Level(17))
}

func TestHandleConversationalReply(t *testing.T) {
	f := newFixture(t)
	f.resolver.action = domain.Action{Kind: domain.ActionNoop, Reply: "I mind this board's LED."}
	f.resolver.ok = true

	res := f.dispatcher.Handle(context.Background(), "who are you")
	assert.True(t, res.Success)
	assert.Equal(t, "I mind this board's LED.", res.Message)
	assert.Zero(t, f.backend.Writes(17))
}

func TestHandleTimeQueryTouchesNoGPIO(t *testing.T) {
	f := newFixture(t)

	res := f.dispatcher.Handle(context.Background(), "what time is it")
	assert.True(t, res.Success)
	assert.Equal(t, domain.ActionQueryTime, res.Action.Kind)
	assert.Contains(t, res.Message, "It is ")
	assert.Zero(t, f.backend.Writes(17), "time query wrote to GPIO")
}

func TestHandleStatusQuery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.True(t, f.dispatcher.Handle(ctx, "turn on the led").Success)
	writesBefore := f.backend.Writes(17)

	res := f.dispatcher.Handle(ctx, "status")
	assert.True(t, res.Success)
	assert.Contains(t, res.Message, "GPIO17")
	assert.Contains(t, res.Message, "on")
	assert.Contains(t, res.Message, "disabled")
	assert.Equal(t, writesBefore, f.backend.Writes(17), "status query mutated GPIO")
}

func TestHandleBlinkThenStop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res := f.dispatcher.Handle(ctx, "blink for 10 seconds")
	require.True(t, res.Success)
	assert.Equal(t, domain.ActionBlinkStart, res.Action.Kind)
	assert.Equal(t, 10, res.Action.DurationSeconds)
	assert.Equal(t, 500, res.Action.IntervalMs)
	assert.Contains(t, res.Message, "10 seconds")

	res = f.dispatcher.Handle(ctx, "stop blinking")
	require.True(t, res.Success)
	assert.Equal(t, "Blinking stopped.", res.Message)

	res = f.dispatcher.Handle(ctx, "stop blinking")
	require.True(t, res.Success)
	assert.Equal(t, "The LED was not blinking.", res.Message)
}

func TestHandleQuit(t *testing.T) {
	f := newFixture(t)

	res := f.dispatcher.Handle(context.Background(), "quit")
	assert.True(t, res.Success)
	assert.True(t, res.Quit)
	assert.Equal(t, domain.ActionQuit, res.Action.Kind)
}

func TestHandleEmptyInput(t *testing.T) {
	f := newFixture(t)

	res := f.dispatcher.Handle(context.Background(), "   \t  ")
	assert.True(t, res.Success)
	assert.Equal(t, domain.ActionNoop, res.Action.Kind)
	assert.Empty(t, res.Message)
	assert.Zero(t, f.resolver.calls.Load(), "empty input consulted the resolver")
}

func TestHandleHardwareFailure(t *testing.T) {
	f := newFixture(t)
	f.backend.FailWrites(domain.NewDomainError("gpio.write", domain.ErrHardwareAccess, "pin claim lost"))

	res := f.dispatcher.Handle(context.Background(), "turn on the led")
	assert.False(t, res.Success)
	assert.Contains(t, strings.ToLower(res.Message), "could not turn the led on")
}

func TestTimeServiceReport(t *testing.T) {
	ts := &TimeService{now: func() time.Time {
		return time.Date(2026, time.March, 9, 14, 30, 0, 0, time.UTC)
	}}
	assert.Equal(t, "It is 2:30 PM on Monday, March 9, 2026.", ts.Report())
}
