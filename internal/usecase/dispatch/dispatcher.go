// Package dispatch orchestrates one line of input end to end: normalize,
// try the rule matcher, fall back to the intent resolver, apply the
// resolved action to the LED controller or the query services, and render
// a human-readable result.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ledbutler/internal/domain"
	"ledbutler/internal/usecase/led"
	"ledbutler/internal/usecase/rules"
)

// Matcher is the deterministic fast path.
type Matcher interface {
	Match(text string) (domain.Action, bool)
}

// Resolver is the model-backed slow path, consulted only on a rule miss.
type Resolver interface {
	Resolve(ctx context.Context, text string) (domain.Action, bool)
}

// Dispatcher routes resolved actions to their executors. Handle is
// serialized with a mutex so console input and scheduled commands never
// interleave; the blink loop is the only concurrent writer and it
// synchronizes inside the controller.
type Dispatcher struct {
	mu         sync.Mutex
	rules      Matcher
	intent     Resolver
	controller *led.Controller
	clock      *TimeService
	status     *StatusReporter
	bus        domain.EventBus
	logger     *slog.Logger
}

// New creates a dispatcher.
func New(matcher Matcher, resolver Resolver, controller *led.Controller, clock *TimeService, status *StatusReporter, bus domain.EventBus, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		rules:      matcher,
		intent:     resolver,
		controller: controller,
		clock:      clock,
		status:     status,
		bus:        bus,
		logger:     logger,
	}
}

type commandEventPayload struct {
	Input   string                  `json:"input"`
	Action  domain.ActionKind       `json:"action"`
	Message string                  `json:"message"`
	Success bool                    `json:"success"`
	Source  domain.ResolutionSource `json:"source"`
	Quit    bool                    `json:"quit,omitempty"`
}

// Handle processes one line of input and returns the outcome. It never
// exits the process: a quit request is reported through the result and
// the caller decides.
func (d *Dispatcher) Handle(ctx context.Context, text string) domain.CommandResult {
	d.mu.Lock()
	defer d.mu.Unlock()

	normalized := rules.Normalize(text)
	if normalized == "" {
		return domain.CommandResult{
			Action:  domain.Action{Kind: domain.ActionNoop},
			Success: true,
			Source:  domain.SourceNone,
		}
	}

	d.bus.PublishJSON(ctx, domain.EventCommandReceived, map[string]string{"input": normalized})

	action, source := d.resolve(ctx, normalized)

	var result domain.CommandResult
	if source == domain.SourceNone {
		result = domain.CommandResult{
			Action:  domain.Action{Kind: domain.ActionNoop},
			Message: "command not understood, try 'help' phrases like 'turn on the led' or 'what time is it'",
			Success: false,
			Source:  domain.SourceNone,
		}
		d.logger.Debug("command not understood", "input", normalized)
	} else {
		result = d.apply(ctx, action)
		result.Source = source
	}

	d.bus.PublishJSON(ctx, domain.EventCommandDispatched, commandEventPayload{
		Input:   normalized,
		Action:  result.Action.Kind,
		Message: result.Message,
		Success: result.Success,
		Source:  result.Source,
		Quit:    result.Quit,
	})
	return result
}

// resolve runs the two-stage resolution. The rule matcher is exclusive:
// the model is consulted only when it misses.
func (d *Dispatcher) resolve(ctx context.Context, normalized string) (domain.Action, domain.ResolutionSource) {
	if action, ok := d.rules.Match(normalized); ok {
		return action, domain.SourceRules
	}

	d.bus.PublishJSON(ctx, domain.EventModelFallback, map[string]string{"input": normalized})
	if action, ok := d.intent.Resolve(ctx, normalized); ok {
		return action, domain.SourceModel
	}
	return domain.Action{}, domain.SourceNone
}

// apply executes a resolved action. Hardware failures come back as failed
// results carrying the error text; they never propagate as errors.
func (d *Dispatcher) apply(ctx context.Context, action domain.Action) domain.CommandResult {
	res := domain.CommandResult{Action: action, Success: true}

	switch action.Kind {
	case domain.ActionQueryTime:
		res.Message = d.clock.Report()

	case domain.ActionQueryStatus:
		res.Message = d.status.Report(ctx)

	case domain.ActionLedOn:
		if err := d.controller.TurnOn(ctx); err != nil {
			return d.hardwareFailure(action, "turn the LED on", err)
		}
		res.Message = "LED is now on."

	case domain.ActionLedOff:
		if err := d.controller.TurnOff(ctx); err != nil {
			return d.hardwareFailure(action, "turn the LED off", err)
		}
		res.Message = "LED is now off."

	case domain.ActionLedToggle:
		level, err := d.controller.Toggle(ctx)
		if err != nil {
			return d.hardwareFailure(action, "toggle the LED", err)
		}
		if level == domain.High {
			res.Message = "LED toggled on."
		} else {
			res.Message = "LED toggled off."
		}

	case domain.ActionBlinkStart:
		interval := time.Duration(action.IntervalMs) * time.Millisecond
		duration := time.Duration(action.DurationSeconds) * time.Second
		if err := d.controller.StartBlink(ctx, interval, duration); err != nil {
			return d.hardwareFailure(action, "start blinking", err)
		}
		if duration > 0 {
			res.Message = fmt.Sprintf("Blinking every %dms for %d seconds.", action.IntervalMs, action.DurationSeconds)
		} else {
			res.Message = fmt.Sprintf("Blinking every %dms until stopped.", action.IntervalMs)
		}

	case domain.ActionBlinkStop:
		stopped, err := d.controller.StopBlink(ctx)
		if err != nil {
			return d.hardwareFailure(action, "stop blinking", err)
		}
		if stopped {
			res.Message = "Blinking stopped."
		} else {
			res.Message = "The LED was not blinking."
		}

	case domain.ActionQuit:
		res.Message = "Goodbye."
		res.Quit = true

	case domain.ActionNoop:
		res.Message = action.Reply

	default:
		res.Message = "command not understood"
		res.Success = false
	}

	return res
}

func (d *Dispatcher) hardwareFailure(action domain.Action, what string, err error) domain.CommandResult {
	d.logger.Error("hardware action failed",
		"action", string(action.Kind),
		"code", string(domain.ErrorCodeOf(err)),
		"error", err,
	)
	return domain.CommandResult{
		Action:  action,
		Message: fmt.Sprintf("Could not %s: %v", what, err),
		Success: false,
	}
}
