package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ledbutler/internal/domain"
	"ledbutler/internal/usecase/led"
)

// healthProbeTimeout bounds the model reachability check inside a status
// query so a hung server cannot stall the command path.
const healthProbeTimeout = 2 * time.Second

// StatusReporter aggregates a point-in-time view of the system: LED state,
// button state, model health, and uptime. It only reads; a status query
// never mutates GPIO.
type StatusReporter struct {
	controller *led.Controller
	provider   domain.ModelProvider // nil when the model is disabled
	ledPin     int
	backend    string
	startedAt  time.Time
}

// NewStatusReporter creates a reporter. provider may be nil.
func NewStatusReporter(controller *led.Controller, provider domain.ModelProvider, ledPin int, backend string) *StatusReporter {
	return &StatusReporter{
		controller: controller,
		provider:   provider,
		ledPin:     ledPin,
		backend:    backend,
		startedAt:  time.Now(),
	}
}

// Report renders the status snapshot as user-facing text.
func (r *StatusReporter) Report(ctx context.Context) string {
	var b strings.Builder

	st := r.controller.Status()
	fmt.Fprintf(&b, "LED (GPIO%d, %s backend): %s", r.ledPin, r.backend, describeLED(st))

	if r.controller.HasButton() {
		if pressed, err := r.controller.ReadButton(); err != nil {
			b.WriteString("\nButton: read failed")
		} else if pressed {
			b.WriteString("\nButton: pressed")
		} else {
			b.WriteString("\nButton: released")
		}
	}

	b.WriteString("\nModel: " + r.describeModel(ctx))
	fmt.Fprintf(&b, "\nUptime: %s", time.Since(r.startedAt).Round(time.Second))
	return b.String()
}

func describeLED(st led.Status) string {
	switch st.State {
	case led.StateBlinking:
		if !st.Deadline.IsZero() {
			remaining := time.Until(st.Deadline).Round(time.Second)
			if remaining < 0 {
				remaining = 0
			}
			return fmt.Sprintf("blinking every %s, %s remaining", st.Interval, remaining)
		}
		return fmt.Sprintf("blinking every %s until stopped", st.Interval)
	case led.StateSteadyOn:
		return "on"
	case led.StateSteadyOff:
		return "off"
	default:
		return "idle (never driven)"
	}
}

func (r *StatusReporter) describeModel(ctx context.Context) string {
	if r.provider == nil {
		return "disabled (rule-based commands only)"
	}
	hc, ok := r.provider.(domain.HealthChecker)
	if !ok {
		return r.provider.Name()
	}

	probeCtx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
	defer cancel()
	if hc.IsHealthy(probeCtx) {
		return r.provider.Name() + " (healthy)"
	}
	return r.provider.Name() + " (unreachable, rule-based commands only)"
}
