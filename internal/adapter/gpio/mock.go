package gpio

import (
	"fmt"
	"sort"
	"sync"

	"ledbutler/internal/domain"
)

// MockBackend is an in-memory domain.GPIOBackend for tests and for running
// without hardware. Input pins rest high, mirroring the pull-up behavior of
// the real backend.
type MockBackend struct {
	mu       sync.Mutex
	pins     map[int]*mockPin
	writeErr error
	readErr  error
}

type mockPin struct {
	mode   domain.PinMode
	level  domain.Level
	writes int
}

var _ domain.GPIOBackend = (*MockBackend)(nil)

// NewMockBackend creates an empty mock backend. Pins come into existence on
// first SetMode or Write.
func NewMockBackend() *MockBackend {
	return &MockBackend{pins: make(map[int]*mockPin)}
}

func (m *MockBackend) SetMode(pin int, mode domain.PinMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.pins[pin]
	if !ok {
		p = &mockPin{}
		m.pins[pin] = p
	}
	p.mode = mode
	if mode == domain.ModeInput {
		p.level = domain.High // pull-up
	} else {
		p.level = domain.Low
	}
	return nil
}

func (m *MockBackend) Write(pin int, level domain.Level) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.writeErr != nil {
		return m.writeErr
	}
	p, ok := m.pins[pin]
	if !ok {
		p = &mockPin{mode: domain.ModeOutput}
		m.pins[pin] = p
	}
	p.level = level
	p.writes++
	return nil
}

func (m *MockBackend) Read(pin int) (domain.Level, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.readErr != nil {
		return domain.Low, m.readErr
	}
	p, ok := m.pins[pin]
	if !ok {
		return domain.Low, domain.NewDomainError("gpio.read", domain.ErrHardwareAccess,
			fmt.Sprintf("pin %d not configured", pin))
	}
	return p.level, nil
}

func (m *MockBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pins = make(map[int]*mockPin)
	return nil
}

// SetLevel forces a pin's level, e.g. to simulate a button press.
func (m *MockBackend) SetLevel(pin int, level domain.Level) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pins[pin]
	if !ok {
		p = &mockPin{mode: domain.ModeInput}
		m.pins[pin] = p
	}
	p.level = level
}

// Level reports the current level of a pin. Unknown pins read low.
func (m *MockBackend) Level(pin int) domain.Level {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.pins[pin]; ok {
		return p.level
	}
	return domain.Low
}

// Writes reports how many times a pin has been written to.
func (m *MockBackend) Writes(pin int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.pins[pin]; ok {
		return p.writes
	}
	return 0
}

// Mode reports the configured direction of a pin.
func (m *MockBackend) Mode(pin int) domain.PinMode {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.pins[pin]; ok {
		return p.mode
	}
	return ""
}

// FailWrites makes subsequent writes return err. Pass nil to restore.
func (m *MockBackend) FailWrites(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErr = err
}

// FailReads makes subsequent reads return err. Pass nil to restore.
func (m *MockBackend) FailReads(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readErr = err
}

// Snapshot returns the state of every known pin, ordered by pin number.
func (m *MockBackend) Snapshot() []domain.PinState {
	m.mu.Lock()
	defer m.mu.Unlock()

	states := make([]domain.PinState, 0, len(m.pins))
	for id, p := range m.pins {
		states = append(states, domain.PinState{ID: id, Mode: p.mode, Level: p.level})
	}
	sort.Slice(states, func(i, j int) bool { return states[i].ID < states[j].ID })
	return states
}
