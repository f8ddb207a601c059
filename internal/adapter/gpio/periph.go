// Package gpio provides the hardware backends behind domain.GPIOBackend.
//
// Two implementations exist: PeriphBackend drives real Broadcom pins through
// periph.io, MockBackend simulates them in memory. Selection happens at
// runtime through the gpio.backend config key so the same binary runs on a
// Pi and on a development machine.
package gpio

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"ledbutler/internal/domain"
)

// PeriphBackend implements domain.GPIOBackend on real hardware via periph.io.
type PeriphBackend struct {
	mu   sync.Mutex
	pins map[int]gpio.PinIO // cached pin handles
}

var _ domain.GPIOBackend = (*PeriphBackend)(nil)

// NewPeriphBackend initializes the periph.io host drivers and returns a
// backend bound to the Broadcom GPIO registry.
func NewPeriphBackend() (*PeriphBackend, error) {
	if _, err := host.Init(); err != nil {
		return nil, domain.NewDomainError("gpio.init", domain.ErrHardwareAccess, err.Error())
	}
	return &PeriphBackend{pins: make(map[int]gpio.PinIO)}, nil
}

// resolvePin looks up a pin by Broadcom number, caching the handle.
func (b *PeriphBackend) resolvePin(pin int) (gpio.PinIO, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if p, ok := b.pins[pin]; ok {
		return p, nil
	}
	name := fmt.Sprintf("GPIO%d", pin)
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, domain.NewDomainError("gpio.resolve", domain.ErrHardwareAccess,
			fmt.Sprintf("pin %d (%s) not present", pin, name))
	}
	b.pins[pin] = p
	return p, nil
}

// SetMode configures a pin's direction. Output pins start low. Input pins get
// the internal pull-up so a button wired to ground reads low when pressed.
func (b *PeriphBackend) SetMode(pin int, mode domain.PinMode) error {
	p, err := b.resolvePin(pin)
	if err != nil {
		return err
	}
	switch mode {
	case domain.ModeOutput:
		if err := p.Out(gpio.Low); err != nil {
			return domain.NewDomainError("gpio.set_mode", domain.ErrHardwareAccess,
				fmt.Sprintf("pin %d output: %v", pin, err))
		}
	case domain.ModeInput:
		if err := p.In(gpio.PullUp, gpio.NoEdge); err != nil {
			return domain.NewDomainError("gpio.set_mode", domain.ErrHardwareAccess,
				fmt.Sprintf("pin %d input: %v", pin, err))
		}
	default:
		return domain.NewDomainError("gpio.set_mode", domain.ErrInvalidInput,
			fmt.Sprintf("unknown mode %q", mode))
	}
	return nil
}

func (b *PeriphBackend) Write(pin int, level domain.Level) error {
	p, err := b.resolvePin(pin)
	if err != nil {
		return err
	}
	out := gpio.Low
	if level == domain.High {
		out = gpio.High
	}
	if err := p.Out(out); err != nil {
		return domain.NewDomainError("gpio.write", domain.ErrHardwareAccess,
			fmt.Sprintf("pin %d: %v", pin, err))
	}
	return nil
}

func (b *PeriphBackend) Read(pin int) (domain.Level, error) {
	p, err := b.resolvePin(pin)
	if err != nil {
		return domain.Low, err
	}
	return domain.Level(p.Read() == gpio.High), nil
}

// Close halts every cached pin and drops the handles. Callers drive outputs
// low before closing; Halt only clears residual edge or PWM state.
func (b *PeriphBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var firstErr error
	for pin, p := range b.pins {
		if err := p.Halt(); err != nil && firstErr == nil {
			firstErr = domain.NewDomainError("gpio.close", domain.ErrHardwareAccess,
				fmt.Sprintf("halt pin %d: %v", pin, err))
		}
	}
	b.pins = make(map[int]gpio.PinIO)
	return firstErr
}
