package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"ledbutler/cmd/ledbutler/daemon"
	"ledbutler/internal/adapter/channel"
	"ledbutler/internal/adapter/gpio"
	"ledbutler/internal/adapter/model"
	"ledbutler/internal/domain"
	"ledbutler/internal/infra/config"
	"ledbutler/internal/infra/logger"
	"ledbutler/internal/usecase/dispatch"
	"ledbutler/internal/usecase/eventbus"
	"ledbutler/internal/usecase/history"
	"ledbutler/internal/usecase/intent"
	"ledbutler/internal/usecase/led"
	"ledbutler/internal/usecase/rules"
	"ledbutler/internal/usecase/scheduling"
)

var version = "dev"

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "--help", "-h", "help":
			showUsage()
			return
		case "version", "--version":
			fmt.Println("ledbutler " + version)
			return
		}
	}

	if len(os.Args) < 2 || strings.HasPrefix(os.Args[1], "-") {
		if err := run(); err != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
		return
	}

	switch os.Args[1] {
	case "doctor":
		if err := runDoctor(); err != nil {
			fmt.Fprintf(os.Stderr, "doctor: %v\n", err)
			os.Exit(1)
		}
	case "daemon":
		if err := runDaemon(); err != nil {
			fmt.Fprintf(os.Stderr, "daemon: %v\n", err)
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\nRun 'ledbutler --help' for usage.\n", os.Args[1])
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`ledbutler - natural-language LED control for single-board computers

USAGE:
    ledbutler [COMMAND] [FLAGS]

COMMANDS:
    doctor      Run health checks on the setup
    daemon      Manage ledbutler as a system service
                Subcommands: install, uninstall, status
    version     Print the version

    (no command) - Run the interactive console

FLAGS:
    -h, --help         Show this help message
    --config PATH      Config file path (default: ./config.yaml)

CONFIGURATION:
    Config file: ./config.yaml
    Environment: LEDBUTLER_* variables override config

EXAMPLES:
    ledbutler                          # run with config.yaml (or defaults)
    ledbutler --config /etc/ledbutler/config.yaml
    LEDBUTLER_GPIO_BACKEND=mock ledbutler   # simulation mode, no hardware
    ledbutler doctor                   # check pins, model server, storage`)
}

func configPath() string {
	for i, arg := range os.Args {
		if arg == "--config" && i+1 < len(os.Args) {
			return os.Args[i+1]
		}
		if strings.HasPrefix(arg, "--config=") {
			return strings.TrimPrefix(arg, "--config=")
		}
	}
	if p := os.Getenv("LEDBUTLER_CONFIG"); p != "" {
		return p
	}
	return "config.yaml"
}

func run() error {
	// 1. Config. A missing file runs on defaults; an invalid one is fatal.
	cfg, err := config.Load(configPath())
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// 2. Logger
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Event bus
	bus := eventbus.New(log)
	defer bus.Close()

	// 4. GPIO backend and LED controller
	backend, err := gpio.New(cfg.GPIO.Backend, log)
	if err != nil {
		return fmt.Errorf("gpio: %w", err)
	}
	defer backend.Close()

	controller, err := led.New(backend, bus, log.With("component", "led"), cfg.GPIO)
	if err != nil {
		return fmt.Errorf("led controller: %w", err)
	}
	// Close forces the LED low; it must run before the backend closes,
	// on every exit path including signal-initiated ones.
	defer controller.Close()

	// 5. Model provider chain: ollama -> throttle -> breaker. A disabled
	// or unreachable model leaves provider nil and the system rule-based.
	provider, modelName := buildProvider(ctx, cfg.Model, log)

	// 6. History
	var store *history.Store
	if cfg.History.Path != "" {
		store, err = history.New(cfg.History.Path, log.With("component", "history"))
		if err != nil {
			return fmt.Errorf("history: %w", err)
		}
		defer store.Close()
		unsub := store.Subscribe(bus)
		defer unsub()
	}

	// 7. Resolution and dispatch
	matcher := rules.New(cfg.Blink)
	resolver := intent.New(provider, cfg.Model, cfg.Blink, log.With("component", "intent"))
	status := dispatch.NewStatusReporter(controller, provider, cfg.GPIO.LEDPin, cfg.GPIO.Backend)
	dispatcher := dispatch.New(matcher, resolver, controller, dispatch.NewTimeService(), status, bus, log.With("component", "dispatch"))

	// 8. Scheduler
	scheduler := scheduling.New(func(ctx context.Context, command string) error {
		result := dispatcher.Handle(ctx, command)
		if !result.Success {
			return fmt.Errorf("%s", result.Message)
		}
		return nil
	}, log.With("component", "scheduler"))
	for _, entry := range cfg.Schedules {
		if err := scheduler.Add(entry); err != nil {
			return fmt.Errorf("schedule: %w", err)
		}
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	// 9. Console channel
	runCtx, quit := context.WithCancel(ctx)
	defer quit()

	console := channel.NewConsoleChannel(log.With("component", "console"),
		channel.WithBanner(channel.BannerInfo{
			LEDPin:    cfg.GPIO.LEDPin,
			ButtonPin: cfg.GPIO.ButtonPin,
			Simulated: cfg.GPIO.Backend == gpio.BackendMock,
			ModelName: modelName,
		}),
	)

	handler := func(ctx context.Context, msg domain.InboundMessage) error {
		result := dispatcher.Handle(ctx, msg.Content)
		if result.Message != "" {
			if err := console.Send(ctx, domain.OutboundMessage{Content: result.Message, IsError: !result.Success}); err != nil {
				return err
			}
		}
		if result.Quit {
			quit()
		}
		return nil
	}

	if err := console.Start(runCtx, handler); err != nil {
		return fmt.Errorf("console: %w", err)
	}

	log.Info("ledbutler running",
		"led_pin", cfg.GPIO.LEDPin,
		"backend", cfg.GPIO.Backend,
		"model", modelName,
	)

	// 10. Wait for quit or signal, then unwind the defers in order.
	<-runCtx.Done()
	console.Stop(context.Background())
	log.Info("shutting down")
	return nil
}

// buildProvider assembles the model provider chain and warms the model up.
// Any failure degrades to a nil provider rather than aborting startup: the
// board still takes rule-based commands with no model at all.
func buildProvider(ctx context.Context, cfg config.ModelConfig, log *slog.Logger) (domain.ModelProvider, string) {
	if !cfg.Enabled {
		log.Info("model disabled, rule-based commands only")
		return nil, ""
	}

	ollama := model.NewOllamaProvider(cfg, log.With("component", "model"))

	warmCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := ollama.Warmup(warmCtx); err != nil {
		log.Warn("model warmup failed, first command may be slow", "error", err)
	}

	var provider domain.ModelProvider = ollama
	provider = model.NewThrottledProvider(provider, cfg.RateLimitPerMinute)
	provider = model.NewBreakerProvider(provider, cfg.MaxFailures, log.With("component", "model"))
	return provider, cfg.Name
}

func runDaemon() error {
	if len(os.Args) < 3 {
		return fmt.Errorf("usage: ledbutler daemon install|uninstall|status")
	}

	switch os.Args[2] {
	case "install":
		cfg := daemon.DefaultConfig()
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := daemon.Install(cfg); err != nil {
			return err
		}
		fmt.Printf("installed and started %s.service\n", cfg.Name)
		return nil
	case "uninstall":
		if err := daemon.Uninstall("ledbutler"); err != nil {
			return err
		}
		fmt.Println("uninstalled ledbutler.service")
		return nil
	case "status":
		st, err := daemon.Status("ledbutler")
		if err != nil {
			return err
		}
		if st.Running {
			fmt.Printf("ledbutler is running (pid %d)\n", st.PID)
		} else {
			fmt.Println("ledbutler is not running")
		}
		return nil
	default:
		return fmt.Errorf("unknown daemon subcommand: %s", os.Args[2])
	}
}
