package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Includes  []string         `yaml:"includes,omitempty"` // extra YAML files or globs merged in
	Logger    LoggerConfig     `yaml:"logger"`
	GPIO      GPIOConfig       `yaml:"gpio"`
	Blink     BlinkConfig      `yaml:"blink"`
	Model     ModelConfig      `yaml:"model"`
	History   HistoryConfig    `yaml:"history"`
	Schedules []ScheduleConfig `yaml:"schedules,omitempty"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
	Output string `yaml:"output"` // stdout | stderr | file path
}

// GPIOConfig holds pin assignments and backend selection.
// Pins use BCM numbering (GPIO numbers, not physical header positions).
type GPIOConfig struct {
	Backend   string `yaml:"backend"`    // periph | mock
	LEDPin    int    `yaml:"led_pin"`    // output
	ButtonPin int    `yaml:"button_pin"` // input with pull-up; 0 disables
}

// BlinkConfig holds defaults applied when a blink command omits parameters.
type BlinkConfig struct {
	DefaultIntervalMs      int `yaml:"default_interval_ms"`
	DefaultDurationSeconds int `yaml:"default_duration_seconds"` // 0 = blink until stopped
}

// ModelConfig holds the local language-model settings.
type ModelConfig struct {
	Enabled            bool    `yaml:"enabled"`
	Provider           string  `yaml:"provider"` // only "ollama" is supported
	BaseURL            string  `yaml:"base_url"`
	Name               string  `yaml:"name"`
	TimeoutMs          int     `yaml:"timeout_ms"`
	MaxTokens          int     `yaml:"max_tokens"`
	Temperature        float64 `yaml:"temperature"`
	MaxFailures        int     `yaml:"max_failures"`           // circuit breaker threshold
	RateLimitPerMinute int     `yaml:"rate_limit_per_minute"`  // 0 = unlimited
	SystemPrompt       string  `yaml:"system_prompt"`          // empty = built-in template
}

// Timeout returns the model call deadline as a duration.
func (m ModelConfig) Timeout() time.Duration {
	return time.Duration(m.TimeoutMs) * time.Millisecond
}

// HistoryConfig holds the command transcript settings.
type HistoryConfig struct {
	Path string `yaml:"path"` // SQLite file; empty disables history
}

// ScheduleConfig is one scheduled command. Schedule accepts a cron
// expression ("0 8 * * *") or a plain duration ("1h" = every hour).
type ScheduleConfig struct {
	Schedule string `yaml:"schedule"`
	Command  string `yaml:"command"`
}

// Defaults returns a Config populated with defaults for a Raspberry Pi
// Zero 2W: LED on GPIO17, button on GPIO27, a local Ollama model.
func Defaults() *Config {
	return &Config{
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		GPIO: GPIOConfig{
			Backend:   "periph",
			LEDPin:    17,
			ButtonPin: 27,
		},
		Blink: BlinkConfig{
			DefaultIntervalMs:      500,
			DefaultDurationSeconds: 5,
		},
		Model: ModelConfig{
			Enabled:            true,
			Provider:           "ollama",
			BaseURL:            "http://localhost:11434",
			Name:               "smollm2:360m",
			TimeoutMs:          15000,
			MaxTokens:          150,
			Temperature:        0.2,
			MaxFailures:        5,
			RateLimitPerMinute: 30,
		},
		History: HistoryConfig{
			Path: "ledbutler.db",
		},
	}
}

// Load reads a YAML config file and applies env var overrides.
// A missing file is not an error; defaults plus env overrides apply.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ApplyEnvOverrides(cfg)
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Merge any included files, then re-apply the main file so its own
	// values win over anything an include set.
	if len(cfg.Includes) > 0 {
		if err := processIncludes(cfg, filepath.Dir(path), nil, 0); err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
		cfg.Includes = nil
	}

	ApplyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnvOverrides maps LEDBUTLER_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LEDBUTLER_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("LEDBUTLER_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("LEDBUTLER_LOGGER_OUTPUT"); v != "" {
		cfg.Logger.Output = v
	}
	if v := os.Getenv("LEDBUTLER_GPIO_BACKEND"); v != "" {
		cfg.GPIO.Backend = v
	}
	if v := os.Getenv("LEDBUTLER_GPIO_LED_PIN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.GPIO.LEDPin = n
		}
	}
	if v := os.Getenv("LEDBUTLER_GPIO_BUTTON_PIN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.GPIO.ButtonPin = n
		}
	}
	if v := os.Getenv("LEDBUTLER_BLINK_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Blink.DefaultIntervalMs = n
		}
	}
	if v := os.Getenv("LEDBUTLER_BLINK_DURATION_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Blink.DefaultDurationSeconds = n
		}
	}
	if v := os.Getenv("LEDBUTLER_MODEL_ENABLED"); v == "false" {
		cfg.Model.Enabled = false
	}
	if v := os.Getenv("LEDBUTLER_MODEL_BASE_URL"); v != "" {
		cfg.Model.BaseURL = v
	}
	if v := os.Getenv("LEDBUTLER_MODEL_NAME"); v != "" {
		cfg.Model.Name = v
	}
	if v := os.Getenv("LEDBUTLER_MODEL_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Model.TimeoutMs = n
		}
	}
	if v := os.Getenv("LEDBUTLER_MODEL_SYSTEM_PROMPT"); v != "" {
		cfg.Model.SystemPrompt = v
	}
	if v := os.Getenv("LEDBUTLER_HISTORY_PATH"); v != "" {
		cfg.History.Path = v
	}
}
