package led

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledbutler/internal/adapter/gpio"
	"ledbutler/internal/domain"
	"ledbutler/internal/infra/config"
	"ledbutler/internal/usecase/eventbus"
)

func newTestController(t *testing.T) (*Controller, *gpio.MockBackend, *eventbus.Bus) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	backend := gpio.NewMockBackend()
	bus := eventbus.New(logger)
	t.Cleanup(bus.Close)

	c, err := New(backend, bus, logger, config.GPIOConfig{LEDPin: 17, ButtonPin: 27})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, backend, bus
}

func TestNewClaimsPins(t *testing.T) {
	c, backend, _ := newTestController(t)

	assert.Equal(t, StateIdle, c.State())
	assert.Equal(t, domain.Low, c.Level())
	assert.Equal(t, domain.ModeOutput, backend.Mode(17))
	assert.Equal(t, domain.ModeInput, backend.Mode(27))
}

func TestTurnOnDrivesHigh(t *testing.T) {
	c, backend, _ := newTestController(t)

	require.NoError(t, c.TurnOn(context.Background()))
	assert.Equal(t, StateSteadyOn, c.State())
	assert.Equal(t, domain.High, c.Level())
	assert.Equal(t, domain.High, backend.Level(17))
}

func TestTurnOffDrivesLow(t *testing.T) {
	c, backend, _ := newTestController(t)
	ctx := context.Background()

	require.NoError(t, c.TurnOn(ctx))
	require.NoError(t, c.TurnOff(ctx))
	assert.Equal(t, StateSteadyOff, c.State())
	assert.Equal(t, domain.Low, backend.Level(17))
}

func TestTogglePairReturnsToSteadyOff(t *testing.T) {
	c, backend, _ := newTestController(t)
	ctx := context.Background()
	require.NoError(t, c.TurnOff(ctx))

	level, err := c.Toggle(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.High, level)
	assert.Equal(t, StateSteadyOn, c.State())

	level, err = c.Toggle(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Low, level)
	assert.Equal(t, StateSteadyOff, c.State())
	assert.Equal(t, domain.Low, backend.Level(17))
}

func TestBlinkTogglesPin(t *testing.T) {
	c, backend, _ := newTestController(t)

	require.NoError(t, c.StartBlink(context.Background(), 10*time.Millisecond, 0))
	assert.Equal(t, StateBlinking, c.State())

	require.Eventually(t, func() bool {
		return backend.Writes(17) >= 4
	}, 2*time.Second, 5*time.Millisecond, "blink loop should keep toggling")
}

func TestTurnOffDuringBlinkSettlesWithNoFurtherToggles(t *testing.T) {
	c, backend, _ := newTestController(t)
	ctx := context.Background()

	require.NoError(t, c.StartBlink(ctx, 10*time.Millisecond, 0))
	time.Sleep(35 * time.Millisecond)

	require.NoError(t, c.TurnOff(ctx))
	writes := backend.Writes(17)

	assert.Equal(t, StateSteadyOff, c.State())
	assert.Equal(t, domain.Low, backend.Level(17))

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, writes, backend.Writes(17), "superseded blink loop must not write again")
}

func TestSecondBlinkSupersedesFirst(t *testing.T) {
	c, backend, _ := newTestController(t)
	ctx := context.Background()

	require.NoError(t, c.StartBlink(ctx, 10*time.Millisecond, 0))
	require.Eventually(t, func() bool {
		return backend.Writes(17) >= 2
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, c.StartBlink(ctx, 500*time.Millisecond, 0))
	writes := backend.Writes(17)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, writes, backend.Writes(17), "only the newest session may toggle")
	assert.Equal(t, StateBlinking, c.State())
	assert.Equal(t, 500*time.Millisecond, c.Status().Interval)
}

func TestToggleCancelsBlink(t *testing.T) {
	c, backend, _ := newTestController(t)
	ctx := context.Background()

	require.NoError(t, c.StartBlink(ctx, 10*time.Millisecond, 0))
	time.Sleep(25 * time.Millisecond)

	_, err := c.Toggle(ctx)
	require.NoError(t, err)
	writes := backend.Writes(17)

	assert.NotEqual(t, StateBlinking, c.State())
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, writes, backend.Writes(17))
}

func TestBlinkDurationExpiresToSteadyOff(t *testing.T) {
	c, backend, _ := newTestController(t)

	require.NoError(t, c.StartBlink(context.Background(), 10*time.Millisecond, 80*time.Millisecond))

	require.Eventually(t, func() bool {
		return c.State() == StateSteadyOff
	}, 2*time.Second, 5*time.Millisecond, "timed blink should settle off")
	assert.Equal(t, domain.Low, backend.Level(17))

	writes := backend.Writes(17)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, writes, backend.Writes(17), "expired session must not write again")
}

func TestUntimedBlinkRunsUntilStopped(t *testing.T) {
	c, _, _ := newTestController(t)

	require.NoError(t, c.StartBlink(context.Background(), 10*time.Millisecond, 0))
	time.Sleep(100 * time.Millisecond)

	st := c.Status()
	assert.Equal(t, StateBlinking, st.State)
	assert.True(t, st.Deadline.IsZero())
}

func TestStopBlinkRestoresLastSteadyLevel(t *testing.T) {
	c, backend, _ := newTestController(t)
	ctx := context.Background()

	require.NoError(t, c.TurnOn(ctx))
	require.NoError(t, c.StartBlink(ctx, 10*time.Millisecond, 0))
	time.Sleep(35 * time.Millisecond)

	stopped, err := c.StopBlink(ctx)
	require.NoError(t, err)
	assert.True(t, stopped)
	assert.Equal(t, StateSteadyOn, c.State())
	assert.Equal(t, domain.High, backend.Level(17))
}

func TestStopBlinkNoopWhenNotBlinking(t *testing.T) {
	c, _, _ := newTestController(t)

	stopped, err := c.StopBlink(context.Background())
	require.NoError(t, err)
	assert.False(t, stopped)
	assert.Equal(t, StateIdle, c.State())
}

func TestHardwareErrorLeavesLastKnownGoodState(t *testing.T) {
	c, backend, _ := newTestController(t)
	ctx := context.Background()
	require.NoError(t, c.TurnOn(ctx))

	backend.FailWrites(domain.NewDomainError("gpio.write", domain.ErrHardwareAccess, "bus fault"))
	err := c.TurnOff(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrHardwareAccess)
	assert.Equal(t, StateSteadyOn, c.State())
	assert.Equal(t, domain.High, c.Level())

	backend.FailWrites(nil)
	require.NoError(t, c.TurnOff(ctx))
	assert.Equal(t, StateSteadyOff, c.State())
}

func TestBlinkWriteFailureSettles(t *testing.T) {
	c, backend, _ := newTestController(t)

	require.NoError(t, c.StartBlink(context.Background(), 10*time.Millisecond, 0))
	backend.FailWrites(domain.NewDomainError("gpio.write", domain.ErrHardwareAccess, "bus fault"))

	require.Eventually(t, func() bool {
		return c.State() != StateBlinking
	}, 2*time.Second, 5*time.Millisecond, "failed blink should settle to a steady state")

	backend.FailWrites(nil)
	require.NoError(t, c.TurnOn(context.Background()))
}

func TestCloseForcesLowAndStopsBlink(t *testing.T) {
	c, backend, _ := newTestController(t)

	require.NoError(t, c.StartBlink(context.Background(), 10*time.Millisecond, 0))
	time.Sleep(25 * time.Millisecond)

	require.NoError(t, c.Close())
	assert.Equal(t, domain.Low, backend.Level(17))

	writes := backend.Writes(17)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, writes, backend.Writes(17))

	err := c.TurnOn(context.Background())
	assert.ErrorIs(t, err, domain.ErrHardwareAccess)
}

func TestCloseIdempotent(t *testing.T) {
	c, _, _ := newTestController(t)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}

func TestReadButton(t *testing.T) {
	c, backend, _ := newTestController(t)

	pressed, err := c.ReadButton()
	require.NoError(t, err)
	assert.False(t, pressed, "pull-up input should rest unpressed")

	backend.SetLevel(27, domain.Low)
	pressed, err = c.ReadButton()
	require.NoError(t, err)
	assert.True(t, pressed)
}

func TestReadButtonWithoutPin(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	backend := gpio.NewMockBackend()
	bus := eventbus.New(logger)
	t.Cleanup(bus.Close)

	c, err := New(backend, bus, logger, config.GPIOConfig{LEDPin: 17})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	assert.False(t, c.HasButton())
	_, err = c.ReadButton()
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestBlinkLifecycleEvents(t *testing.T) {
	c, _, bus := newTestController(t)
	ctx := context.Background()

	started := make(chan domain.Event, 4)
	stopped := make(chan domain.Event, 4)
	bus.Subscribe(domain.EventBlinkStarted, func(_ context.Context, e domain.Event) { started <- e })
	bus.Subscribe(domain.EventBlinkStopped, func(_ context.Context, e domain.Event) { stopped <- e })

	require.NoError(t, c.StartBlink(ctx, 20*time.Millisecond, 0))
	select {
	case e := <-started:
		assert.Equal(t, domain.EventBlinkStarted, e.Type)
		assert.Contains(t, string(e.Payload), `"interval_ms":20`)
	case <-time.After(2 * time.Second):
		t.Fatal("no blink.started event")
	}

	_, err := c.StopBlink(ctx)
	require.NoError(t, err)
	select {
	case e := <-stopped:
		assert.Contains(t, string(e.Payload), ReasonStopped)
	case <-time.After(2 * time.Second):
		t.Fatal("no blink.stopped event")
	}
}

func TestStartBlinkRejectsNonPositiveInterval(t *testing.T) {
	c, _, _ := newTestController(t)

	err := c.StartBlink(context.Background(), 0, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Equal(t, StateIdle, c.State())
}
