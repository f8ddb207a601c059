package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Usable BCM pin range on the 40-pin header. GPIO0 and GPIO1 are
// reserved for the HAT ID EEPROM.
const (
	minPin = 2
	maxPin = 27
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
// Any error here is fatal at startup; the process must not run half-configured
// against real hardware.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateGPIO(cfg, ve)
	validateBlink(cfg, ve)
	validateModel(cfg, ve)
	validateSchedules(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

var validBackends = map[string]bool{
	"periph": true,
	"mock":   true,
}

func validateGPIO(cfg *Config, ve *ValidationError) {
	if !validBackends[cfg.GPIO.Backend] {
		ve.Add("gpio.backend %q is invalid (want: periph, mock)", cfg.GPIO.Backend)
	}
	if cfg.GPIO.LEDPin < minPin || cfg.GPIO.LEDPin > maxPin {
		ve.Add("gpio.led_pin %d is outside the usable BCM range %d-%d", cfg.GPIO.LEDPin, minPin, maxPin)
	}
	if cfg.GPIO.ButtonPin != 0 && (cfg.GPIO.ButtonPin < minPin || cfg.GPIO.ButtonPin > maxPin) {
		ve.Add("gpio.button_pin %d is outside the usable BCM range %d-%d (0 disables)", cfg.GPIO.ButtonPin, minPin, maxPin)
	}
	if cfg.GPIO.ButtonPin != 0 && cfg.GPIO.ButtonPin == cfg.GPIO.LEDPin {
		ve.Add("gpio.button_pin and gpio.led_pin must differ (both %d)", cfg.GPIO.LEDPin)
	}
}

func validateBlink(cfg *Config, ve *ValidationError) {
	if cfg.Blink.DefaultIntervalMs < 10 {
		ve.Add("blink.default_interval_ms must be >= 10 (got %d)", cfg.Blink.DefaultIntervalMs)
	}
	if cfg.Blink.DefaultDurationSeconds < 0 {
		ve.Add("blink.default_duration_seconds must be >= 0 (got %d)", cfg.Blink.DefaultDurationSeconds)
	}
}

func validateModel(cfg *Config, ve *ValidationError) {
	if !cfg.Model.Enabled {
		return
	}
	if cfg.Model.Provider != "ollama" {
		ve.Add("model.provider %q is invalid (only ollama is supported)", cfg.Model.Provider)
	}
	if cfg.Model.BaseURL == "" {
		ve.Add("model.base_url must not be empty when the model is enabled")
	} else if u, err := url.Parse(cfg.Model.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		ve.Add("model.base_url %q is not a valid URL", cfg.Model.BaseURL)
	}
	if cfg.Model.Name == "" {
		ve.Add("model.name must not be empty when the model is enabled")
	}
	if cfg.Model.TimeoutMs <= 0 {
		ve.Add("model.timeout_ms must be > 0 (got %d)", cfg.Model.TimeoutMs)
	}
	if cfg.Model.MaxTokens <= 0 {
		ve.Add("model.max_tokens must be > 0 (got %d)", cfg.Model.MaxTokens)
	}
	if cfg.Model.Temperature < 0 || cfg.Model.Temperature > 2 {
		ve.Add("model.temperature must be in [0, 2] (got %g)", cfg.Model.Temperature)
	}
	if cfg.Model.MaxFailures <= 0 {
		ve.Add("model.max_failures must be > 0 (got %d)", cfg.Model.MaxFailures)
	}
	if cfg.Model.RateLimitPerMinute < 0 {
		ve.Add("model.rate_limit_per_minute must be >= 0 (got %d)", cfg.Model.RateLimitPerMinute)
	}
}

func validateSchedules(cfg *Config, ve *ValidationError) {
	for i, s := range cfg.Schedules {
		if strings.TrimSpace(s.Schedule) == "" {
			ve.Add("schedules[%d].schedule must not be empty", i)
		}
		if strings.TrimSpace(s.Command) == "" {
			ve.Add("schedules[%d].command must not be empty", i)
		}
	}
}
