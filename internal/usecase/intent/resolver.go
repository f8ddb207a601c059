// Package intent is the slow path of command resolution: when the rule
// matcher has no answer, the local model is asked to classify the input
// against the fixed action vocabulary. The model's output is parsed with a
// strict allow-list; anything it invents outside the vocabulary is
// unrepresentable and resolves to nothing.
package intent

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"ledbutler/internal/domain"
	"ledbutler/internal/infra/config"
)

// Model-facing action labels. These are what the prompt teaches the model
// to emit; they map one-to-one onto the action vocabulary. There is no
// quit label: only a typed exit word ends the session.
const (
	labelPrintTime = "print_time"
	labelLedOn     = "led_on"
	labelLedOff    = "led_off"
	labelToggle    = "toggle_led"
	labelBlink     = "blink_led"
	labelStopBlink = "stop_blink"
	labelGetStatus = "get_status"
)

var labelKinds = map[string]domain.ActionKind{
	labelPrintTime: domain.ActionQueryTime,
	labelLedOn:     domain.ActionLedOn,
	labelLedOff:    domain.ActionLedOff,
	labelToggle:    domain.ActionLedToggle,
	labelBlink:     domain.ActionBlinkStart,
	labelStopBlink: domain.ActionBlinkStop,
	labelGetStatus: domain.ActionQueryStatus,
}

// defaultSystemPrompt is the built-in classification prompt. A config
// override replaces it wholesale; "{{input}}" marks where the user text
// goes, and templates without the marker get the input appended.
const defaultSystemPrompt = `You are the command interpreter for a small board with one LED.
Respond with a single JSON object and nothing else:
{"text": "<short reply to the user>", "action": <action>}

<action> must be one of: "print_time", "led_on", "led_off", "toggle_led",
"blink_led", "stop_blink", "get_status", or null when the user is not
asking for any of these. For "blink_led" you may add "duration": <seconds>.
Never invent other actions.

Examples:
Input: please illuminate the diode
Output: {"text": "Turning the LED on.", "action": "led_on"}
Input: make it flash for eight seconds
Output: {"text": "Blinking for 8 seconds.", "action": "blink_led", "duration": 8}
Input: who are you?
Output: {"text": "I run this board's LED and clock.", "action": null}

Input: {{input}}
Output:`

const inputMarker = "{{input}}"

// Resolver consults the model provider and parses its output into an
// action. A nil provider is a valid permanent state (model disabled or
// failed to start) and makes every Resolve return false, collapsing the
// system to rule-based commands only.
type Resolver struct {
	provider domain.ModelProvider
	logger   *slog.Logger

	timeout      time.Duration
	maxTokens    int
	temperature  float64
	systemPrompt string

	defaultIntervalMs      int
	defaultDurationSeconds int
}

// New creates a resolver. provider may be nil.
func New(provider domain.ModelProvider, cfg config.ModelConfig, blink config.BlinkConfig, logger *slog.Logger) *Resolver {
	prompt := cfg.SystemPrompt
	if prompt == "" {
		prompt = defaultSystemPrompt
	}
	return &Resolver{
		provider:               provider,
		logger:                 logger,
		timeout:                cfg.Timeout(),
		maxTokens:              cfg.MaxTokens,
		temperature:            cfg.Temperature,
		systemPrompt:           prompt,
		defaultIntervalMs:      blink.DefaultIntervalMs,
		defaultDurationSeconds: blink.DefaultDurationSeconds,
	}
}

// Enabled reports whether a model provider is wired in.
func (r *Resolver) Enabled() bool { return r.provider != nil }

// Resolve asks the model to classify text. The boolean is false when the
// input stays unresolved: provider absent, call timed out or failed, or
// the output did not parse cleanly against the vocabulary. All of those
// degrade identically; none is an error in the command path.
func (r *Resolver) Resolve(ctx context.Context, text string) (domain.Action, bool) {
	if r.provider == nil {
		return domain.Action{}, false
	}

	callCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	resp, err := r.provider.Complete(callCtx, domain.CompletionRequest{
		Prompt:      r.buildPrompt(text),
		MaxTokens:   r.maxTokens,
		Temperature: r.temperature,
	})
	if err != nil {
		if domain.IsModelDegraded(err) {
			r.logger.Debug("model degraded, command unresolved", "error", err)
		} else {
			r.logger.Warn("model call failed, command unresolved", "error", err)
		}
		return domain.Action{}, false
	}

	action, ok := r.parse(resp.Text)
	if !ok {
		r.logger.Debug("model output rejected by vocabulary parse",
			"output", truncate(resp.Text, 200),
		)
		return domain.Action{}, false
	}
	return action, true
}

func (r *Resolver) buildPrompt(text string) string {
	if strings.Contains(r.systemPrompt, inputMarker) {
		return strings.ReplaceAll(r.systemPrompt, inputMarker, text)
	}
	return r.systemPrompt + "\n\nInput: " + text + "\nOutput:"
}

// actionFor maps a validated label (and optional duration) to an action.
func (r *Resolver) actionFor(label string, durationSeconds int) domain.Action {
	kind := labelKinds[label]
	a := domain.Action{Kind: kind}
	if kind == domain.ActionBlinkStart {
		a.IntervalMs = r.defaultIntervalMs
		a.DurationSeconds = r.defaultDurationSeconds
		if durationSeconds > 0 {
			a.DurationSeconds = durationSeconds
		}
	}
	return a
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
