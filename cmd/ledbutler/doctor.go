package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"ledbutler/internal/adapter/gpio"
	"ledbutler/internal/adapter/model"
	"ledbutler/internal/infra/config"
	"ledbutler/internal/usecase/scheduling"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// CheckStatus is the outcome class of one health check.
type CheckStatus string

const (
	StatusPass CheckStatus = "PASS"
	StatusWarn CheckStatus = "WARN"
	StatusFail CheckStatus = "FAIL"
)

// CheckResult holds the outcome of a single health check.
type CheckResult struct {
	Name    string
	Status  CheckStatus
	Message string
	Fix     string // optional fix suggestion
}

// Check is a named health check function.
type Check struct {
	Name string
	Fn   func(cfg *config.Config) CheckResult
}

// runDoctor executes all health checks and reports results.
func runDoctor() error {
	cfgPath := configPath()
	cfg, cfgErr := config.Load(cfgPath)

	checks := []Check{
		{Name: "Config", Fn: checkConfigFile(cfgPath, cfgErr)},
		{Name: "GPIO backend", Fn: checkGPIO},
		{Name: "Model server", Fn: checkModelServer},
		{Name: "Model present", Fn: checkModelPresent},
		{Name: "History storage", Fn: checkHistory},
		{Name: "Schedules", Fn: checkSchedules},
		{Name: "Disk space", Fn: checkDiskSpace},
	}

	fmt.Println("ledbutler doctor")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Println()

	var pass, warn, fail int
	for _, check := range checks {
		result := check.Fn(cfg)
		result.Name = check.Name

		fmt.Printf("  [%s] %s: %s\n", result.Status, result.Name, result.Message)
		if result.Fix != "" {
			fmt.Printf("         Fix: %s\n", result.Fix)
		}

		switch result.Status {
		case StatusPass:
			pass++
		case StatusWarn:
			warn++
		case StatusFail:
			fail++
		}
	}

	fmt.Println()
	fmt.Println(strings.Repeat("-", 50))
	fmt.Printf("Results: %d passed, %d warnings, %d failed\n", pass, warn, fail)

	if fail > 0 {
		fmt.Println("\nFix the FAIL issues above before running ledbutler.")
		return fmt.Errorf("%d check(s) failed", fail)
	}
	if warn > 0 {
		fmt.Println("\nledbutler should work, but consider addressing the warnings.")
	} else {
		fmt.Println("\nAll checks passed.")
	}
	return nil
}

func checkConfigFile(cfgPath string, cfgErr error) func(*config.Config) CheckResult {
	return func(_ *config.Config) CheckResult {
		if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
			if cfgErr != nil {
				return CheckResult{
					Status:  StatusFail,
					Message: fmt.Sprintf("no config file and defaults rejected: %v", cfgErr),
				}
			}
			return CheckResult{
				Status:  StatusWarn,
				Message: fmt.Sprintf("no config file at %s, running on defaults", cfgPath),
				Fix:     "Create config.yaml to pin down pins, model, and schedules",
			}
		}
		if cfgErr != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("config invalid: %v", cfgErr),
				Fix:     "Fix the listed fields in " + cfgPath,
			}
		}
		return CheckResult{Status: StatusPass, Message: "config loaded from " + cfgPath}
	}
}

func checkGPIO(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: "cannot check, config not loaded"}
	}
	if cfg.GPIO.Backend == gpio.BackendMock {
		return CheckResult{Status: StatusPass, Message: "mock backend (simulation mode), no hardware needed"}
	}

	backend, err := gpio.NewPeriphBackend()
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("periph host init failed: %v", err),
			Fix:     "Run on the target board, or set gpio.backend: mock for simulation",
		}
	}
	defer backend.Close()

	if _, err := backend.Read(cfg.GPIO.LEDPin); err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("GPIO%d not accessible: %v", cfg.GPIO.LEDPin, err),
			Fix:     "Check the pin number and /dev/gpiochip permissions (gpio group)",
		}
	}
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("GPIO%d accessible via periph.io", cfg.GPIO.LEDPin)}
}

func checkModelServer(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: "cannot check, config not loaded"}
	}
	if !cfg.Model.Enabled {
		return CheckResult{Status: StatusWarn, Message: "model disabled, rule-based commands only"}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	provider := model.NewOllamaProvider(cfg.Model, quietLogger())
	start := time.Now()
	if !provider.IsHealthy(ctx) {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("Ollama not reachable at %s", cfg.Model.BaseURL),
			Fix:     "Start the server (ollama serve) or set model.enabled: false",
		}
	}
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("Ollama reachable (latency: %dms)", time.Since(start).Milliseconds()),
	}
}

func checkModelPresent(cfg *config.Config) CheckResult {
	if cfg == nil || !cfg.Model.Enabled {
		return CheckResult{Status: StatusWarn, Message: "skipped, model disabled"}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	provider := model.NewOllamaProvider(cfg.Model, quietLogger())
	models, err := provider.ListModels(ctx)
	if err != nil {
		return CheckResult{Status: StatusWarn, Message: fmt.Sprintf("could not list models: %v", err)}
	}
	for _, m := range models {
		if m.Name == cfg.Model.Name {
			return CheckResult{
				Status:  StatusPass,
				Message: fmt.Sprintf("%s available (%.0f MB)", m.Name, float64(m.Size)/1e6),
			}
		}
	}
	return CheckResult{
		Status:  StatusFail,
		Message: fmt.Sprintf("model %q not pulled", cfg.Model.Name),
		Fix:     "Run: ollama pull " + cfg.Model.Name,
	}
}

func checkHistory(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: "cannot check, config not loaded"}
	}
	if cfg.History.Path == "" {
		return CheckResult{Status: StatusWarn, Message: "history disabled (history.path empty)"}
	}

	dir := filepath.Dir(cfg.History.Path)
	probe, err := os.CreateTemp(dir, ".ledbutler-doctor-*")
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("history directory %s not writable: %v", dir, err),
			Fix:     "Change history.path or fix directory permissions",
		}
	}
	probe.Close()
	os.Remove(probe.Name())
	return CheckResult{Status: StatusPass, Message: "history path writable: " + cfg.History.Path}
}

func checkSchedules(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: "cannot check, config not loaded"}
	}
	if len(cfg.Schedules) == 0 {
		return CheckResult{Status: StatusPass, Message: "no schedules configured"}
	}

	sched := scheduling.New(func(context.Context, string) error { return nil }, quietLogger())
	for _, entry := range cfg.Schedules {
		if err := sched.Add(entry); err != nil {
			return CheckResult{Status: StatusFail, Message: err.Error()}
		}
	}
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("%d schedule(s) parse", len(cfg.Schedules))}
}

func checkDiskSpace(cfg *config.Config) CheckResult {
	dir := "."
	if cfg != nil && cfg.History.Path != "" {
		dir = filepath.Dir(cfg.History.Path)
	}
	absDir, _ := filepath.Abs(dir)

	out, err := exec.Command("df", "-h", absDir).Output()
	if err != nil {
		return CheckResult{Status: StatusWarn, Message: "could not determine disk space (df failed)"}
	}

	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) < 2 {
		return CheckResult{Status: StatusWarn, Message: "unexpected df output format"}
	}
	fields := strings.Fields(lines[len(lines)-1])
	if len(fields) < 5 {
		return CheckResult{Status: StatusWarn, Message: "unexpected df output format"}
	}

	available := fields[3]
	usePercent := fields[4]
	var pct int
	fmt.Sscanf(strings.TrimSuffix(usePercent, "%"), "%d", &pct)

	if pct >= 95 {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("SD card almost full: %s used, %s available", usePercent, available),
			Fix:     "Free up space; a full card corrupts the history database",
		}
	}
	if pct >= 85 {
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("disk usage high: %s used, %s available", usePercent, available),
		}
	}
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("disk usage: %s used, %s available", usePercent, available)}
}
