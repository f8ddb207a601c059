package domain

// Level is the logical state of a digital GPIO pin.
type Level bool

const (
	Low  Level = false
	High Level = true
)

func (l Level) String() string {
	if l {
		return "high"
	}
	return "low"
}

// PinMode configures the direction of a GPIO pin.
type PinMode string

const (
	ModeInput  PinMode = "input"
	ModeOutput PinMode = "output"
)

// PinState is the tracked state of one GPIO pin. It is owned exclusively
// by the LED controller; no other component mutates pin state directly.
type PinState struct {
	ID    int
	Mode  PinMode
	Level Level
}

// GPIOBackend abstracts raw pin access so the controller can run against
// real hardware or an in-memory simulation. Implementations must be safe
// for concurrent use.
type GPIOBackend interface {
	// SetMode claims the pin and configures its direction. Input pins are
	// configured with an internal pull-up (buttons wire to ground).
	SetMode(pin int, mode PinMode) error
	// Write drives an output pin to the given level.
	Write(pin int, level Level) error
	// Read returns the current level of the pin without mutating it.
	Read(pin int) (Level, error)
	// Close releases claimed pins. Callers drive outputs low before Close.
	Close() error
}
