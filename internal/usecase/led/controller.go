// Package led owns the LED pin state machine: steady levels, toggling, and
// the cancellable background blink session.
package led

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"ledbutler/internal/domain"
	"ledbutler/internal/infra/config"
)

// State describes what the controller is currently doing with the LED pin.
type State string

const (
	StateIdle      State = "idle"
	StateSteadyOn  State = "steady_on"
	StateSteadyOff State = "steady_off"
	StateBlinking  State = "blinking"
)

// Blink stop reasons carried on blink.stopped events.
const (
	ReasonStopped       = "stopped"
	ReasonSuperseded    = "superseded"
	ReasonExpired       = "expired"
	ReasonHardwareError = "hardware_error"
	ReasonShutdown      = "shutdown"
)

// blinkSession tags one background blink loop. The generation is the
// cancellation mechanism: any superseding operation bumps the controller's
// generation and the loop exits on the first mismatch it observes. The
// cancel channel only wakes a sleeping loop early so shutdown stays prompt.
type blinkSession struct {
	generation uint64
	interval   time.Duration
	deadline   time.Time     // zero when blinking until stopped
	cancel     chan struct{} // closed on supersession
}

// nextWait returns how long the loop should sleep before its next tick,
// clamped so a timed session wakes exactly at its deadline.
func (s *blinkSession) nextWait() time.Duration {
	wait := s.interval
	if !s.deadline.IsZero() {
		if until := time.Until(s.deadline); until < wait {
			wait = until
			if wait < 0 {
				wait = 0
			}
		}
	}
	return wait
}

// Controller serializes every mutation of the LED pin. Manual commands and
// blink ticks all pass through one mutex, so a tick can never interleave
// with an override into an inconsistent physical level. Cancellation is
// advisory: a tick already inside its critical section lands at most one
// more toggle before the superseding operation proceeds, and the terminal
// steady write always happens after the generation bump.
type Controller struct {
	backend   domain.GPIOBackend
	bus       domain.EventBus
	logger    *slog.Logger
	ledPin    int
	buttonPin int // 0 when no button is wired

	mu         sync.Mutex
	state      State
	level      domain.Level
	lastSteady domain.Level
	generation uint64
	session    *blinkSession
	wg         sync.WaitGroup
	closed     bool
}

// Status is a point-in-time snapshot for status reporting.
type Status struct {
	State    State
	Level    domain.Level
	Interval time.Duration // zero unless blinking
	Deadline time.Time     // zero unless a timed blink is active
}

type stateChangePayload struct {
	Pin   int    `json:"pin"`
	State State  `json:"state"`
	Level string `json:"level"`
}

type blinkStartedPayload struct {
	Pin        int    `json:"pin"`
	IntervalMs int64  `json:"interval_ms"`
	DurationS  int64  `json:"duration_seconds,omitempty"`
	Generation uint64 `json:"generation"`
}

type blinkStoppedPayload struct {
	Pin    int    `json:"pin"`
	Reason string `json:"reason"`
}

// New claims the configured pins and returns a controller in the Idle state.
// The LED pin is driven as an output starting low; the button pin, when set,
// becomes an input with the internal pull-up. The backend stays owned by the
// caller and is closed separately, after the controller.
func New(backend domain.GPIOBackend, bus domain.EventBus, logger *slog.Logger, cfg config.GPIOConfig) (*Controller, error) {
	if err := backend.SetMode(cfg.LEDPin, domain.ModeOutput); err != nil {
		return nil, err
	}
	if cfg.ButtonPin > 0 {
		if err := backend.SetMode(cfg.ButtonPin, domain.ModeInput); err != nil {
			return nil, err
		}
	}
	return &Controller{
		backend:    backend,
		bus:        bus,
		logger:     logger,
		ledPin:     cfg.LEDPin,
		buttonPin:  cfg.ButtonPin,
		state:      StateIdle,
		level:      domain.Low,
		lastSteady: domain.Low,
	}, nil
}

// TurnOn cancels any active blink and drives the LED high.
func (c *Controller) TurnOn(ctx context.Context) error {
	return c.setSteady(ctx, domain.High)
}

// TurnOff cancels any active blink and drives the LED low.
func (c *Controller) TurnOff(ctx context.Context) error {
	return c.setSteady(ctx, domain.Low)
}

func (c *Controller) setSteady(ctx context.Context, level domain.Level) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errClosed("led.set")
	}
	c.invalidateLocked(ctx, ReasonSuperseded)
	if err := c.backend.Write(c.ledPin, level); err != nil {
		c.settleLocked()
		return err
	}
	c.level = level
	c.lastSteady = level
	c.state = steadyFor(level)
	c.publishStateLocked(ctx)
	return nil
}

// Toggle cancels any active blink, then flips the LED from its last physical
// level. It returns the level the LED ended up at.
func (c *Controller) Toggle(ctx context.Context) (domain.Level, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return c.level, errClosed("led.toggle")
	}
	c.invalidateLocked(ctx, ReasonSuperseded)
	next := !c.level
	if err := c.backend.Write(c.ledPin, next); err != nil {
		c.settleLocked()
		return c.level, err
	}
	c.level = next
	c.lastSteady = next
	c.state = steadyFor(next)
	c.publishStateLocked(ctx)
	return next, nil
}

// StartBlink supersedes any active session and starts a new blink loop with
// a generation strictly greater than every prior one. The LED lights
// immediately and then flips every interval. A positive duration settles the
// pin to SteadyOff once it elapses; zero means blink until stopped.
func (c *Controller) StartBlink(ctx context.Context, interval, duration time.Duration) error {
	if interval <= 0 {
		return domain.NewDomainError("led.blink", domain.ErrInvalidInput, "interval must be positive")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errClosed("led.blink")
	}
	c.invalidateLocked(ctx, ReasonSuperseded)
	if err := c.backend.Write(c.ledPin, domain.High); err != nil {
		c.settleLocked()
		return err
	}
	c.level = domain.High

	s := &blinkSession{
		generation: c.generation,
		interval:   interval,
		cancel:     make(chan struct{}),
	}
	if duration > 0 {
		s.deadline = time.Now().Add(duration)
	}
	c.session = s
	c.state = StateBlinking

	c.wg.Add(1)
	go c.blink(s)

	c.bus.PublishJSON(ctx, domain.EventBlinkStarted, blinkStartedPayload{
		Pin:        c.ledPin,
		IntervalMs: interval.Milliseconds(),
		DurationS:  int64(duration.Seconds()),
		Generation: s.generation,
	})
	return nil
}

// StopBlink cancels the active session and restores the last steady level
// the pin held before blinking. It reports whether a session was stopped;
// calling it while not blinking is a no-op.
func (c *Controller) StopBlink(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false, errClosed("led.stop_blink")
	}
	if c.state != StateBlinking {
		return false, nil
	}
	c.invalidateLocked(ctx, ReasonStopped)
	if err := c.backend.Write(c.ledPin, c.lastSteady); err != nil {
		c.settleLocked()
		return true, err
	}
	c.level = c.lastSteady
	c.state = steadyFor(c.lastSteady)
	c.publishStateLocked(ctx)
	return true, nil
}

// blink is the background loop for one session. All pin mutations happen
// under the controller mutex; the generation check and the toggle share one
// critical section, so a stale loop can never write after a superseding
// operation's terminal steady write.
func (c *Controller) blink(s *blinkSession) {
	defer c.wg.Done()
	timer := time.NewTimer(s.nextWait())
	defer timer.Stop()
	for {
		select {
		case <-s.cancel:
			return
		case <-timer.C:
		}

		c.mu.Lock()
		if c.generation != s.generation {
			c.mu.Unlock()
			return
		}
		if !s.deadline.IsZero() && !time.Now().Before(s.deadline) {
			c.expireLocked()
			c.mu.Unlock()
			return
		}
		next := !c.level
		if err := c.backend.Write(c.ledPin, next); err != nil {
			c.logger.Warn("blink toggle failed, settling",
				"pin", c.ledPin,
				"error", err,
			)
			c.session = nil
			c.generation++
			c.settleLocked()
			c.bus.PublishJSON(context.Background(), domain.EventBlinkStopped, blinkStoppedPayload{
				Pin:    c.ledPin,
				Reason: ReasonHardwareError,
			})
			c.mu.Unlock()
			return
		}
		c.level = next
		c.mu.Unlock()

		timer.Reset(s.nextWait())
	}
}

// expireLocked ends a timed session at its deadline and settles the pin to
// SteadyOff. Called by the loop itself while its generation is still valid.
func (c *Controller) expireLocked() {
	c.session = nil
	c.generation++
	if err := c.backend.Write(c.ledPin, domain.Low); err != nil {
		c.logger.Warn("settle after blink failed",
			"pin", c.ledPin,
			"error", err,
		)
		c.settleLocked()
		return
	}
	c.level = domain.Low
	c.lastSteady = domain.Low
	c.state = StateSteadyOff
	ctx := context.Background()
	c.bus.PublishJSON(ctx, domain.EventBlinkStopped, blinkStoppedPayload{
		Pin:    c.ledPin,
		Reason: ReasonExpired,
	})
	c.publishStateLocked(ctx)
}

// invalidateLocked bumps the generation and wakes any active session. The
// bump happens on every state-changing operation, so a new session's
// generation is always strictly greater than any prior one.
func (c *Controller) invalidateLocked(ctx context.Context, reason string) {
	c.generation++
	if c.session != nil {
		close(c.session.cancel)
		c.session = nil
		c.bus.PublishJSON(ctx, domain.EventBlinkStopped, blinkStoppedPayload{
			Pin:    c.ledPin,
			Reason: reason,
		})
	}
}

// settleLocked records the state matching the pin's last known level after a
// failed write. The physical pin keeps whatever level it already had.
func (c *Controller) settleLocked() {
	if c.state == StateBlinking {
		c.state = steadyFor(c.level)
	}
}

// Level reports the LED's last written level.
func (c *Controller) Level() domain.Level {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.level
}

// State reports the controller's current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Status returns a snapshot of the controller for status reporting.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := Status{State: c.state, Level: c.level}
	if c.session != nil {
		st.Interval = c.session.interval
		st.Deadline = c.session.deadline
	}
	return st
}

// HasButton reports whether a button pin is configured.
func (c *Controller) HasButton() bool {
	return c.buttonPin > 0
}

// ReadButton reports whether the button is pressed. The input uses a
// pull-up, so a pressed button pulls the pin low.
func (c *Controller) ReadButton() (bool, error) {
	if c.buttonPin <= 0 {
		return false, domain.NewDomainError("led.read_button", domain.ErrInvalidInput, "no button pin configured")
	}
	level, err := c.backend.Read(c.buttonPin)
	if err != nil {
		return false, err
	}
	return level == domain.Low, nil
}

// Close cancels any blink, forces the LED low, and waits for the loop to
// exit. The first error encountered is returned, but the shutdown sequence
// always runs to completion. Safe to call more than once.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.invalidateLocked(context.Background(), ReasonShutdown)
	err := c.backend.Write(c.ledPin, domain.Low)
	if err == nil {
		c.level = domain.Low
		c.lastSteady = domain.Low
	}
	c.state = StateSteadyOff
	c.mu.Unlock()

	c.wg.Wait()
	return err
}

func (c *Controller) publishStateLocked(ctx context.Context) {
	c.bus.PublishJSON(ctx, domain.EventLEDStateChanged, stateChangePayload{
		Pin:   c.ledPin,
		State: c.state,
		Level: c.level.String(),
	})
}

func steadyFor(level domain.Level) State {
	if level == domain.High {
		return StateSteadyOn
	}
	return StateSteadyOff
}

func errClosed(op string) error {
	return domain.NewDomainError(op, domain.ErrHardwareAccess, "controller closed")
}
