package gpio

import (
	"fmt"
	"log/slog"

	"ledbutler/internal/domain"
)

// Backend names accepted by New.
const (
	BackendPeriph = "periph"
	BackendMock   = "mock"
)

// New builds the backend named by the gpio.backend config key.
func New(name string, logger *slog.Logger) (domain.GPIOBackend, error) {
	switch name {
	case BackendPeriph:
		return NewPeriphBackend()
	case BackendMock:
		logger.Info("gpio running in mock mode, pin writes are simulated")
		return NewMockBackend(), nil
	default:
		return nil, domain.NewDomainError("gpio.new", domain.ErrInvalidConfig,
			fmt.Sprintf("unknown backend %q", name))
	}
}
