package agent

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/nidhogg/curia/internal/event"
)

// Manager holds the live agent set and drives action generation each
// tick. Registering an agent binds its subscriptions to the bus.
type Manager struct {
	agents []Agent // registration order, drives deterministic ticks
	byID   map[string]Agent
	bus    *event.Bus
	logger *zap.Logger
}

// NewManager creates an agent registry wired to the given bus. A nil bus
// skips subscription binding (useful in tests).
func NewManager(bus *event.Bus, logger *zap.Logger) *Manager {
	return &Manager{
		byID:   make(map[string]Agent),
		bus:    bus,
		logger: logger,
	}
}

// Register adds an agent and subscribes its ProcessEvent to every kind
// it declares. Duplicate IDs are a configuration error.
func (m *Manager) Register(a Agent) error {
	if a == nil || a.ID() == "" {
		return fmt.Errorf("invalid agent registration")
	}
	if _, exists := m.byID[a.ID()]; exists {
		return fmt.Errorf("agent %q: %w", a.ID(), ErrDuplicateRegistration)
	}
	m.agents = append(m.agents, a)
	m.byID[a.ID()] = a

	if m.bus != nil {
		handler := event.HandlerFunc{
			ID: "agent:" + a.ID(),
			Fn: a.ProcessEvent,
		}
		for _, kind := range a.Subscriptions() {
			m.bus.Subscribe(kind, handler, 0)
		}
	}
	m.logger.Info("agent registered",
		zap.String("id", a.ID()),
		zap.String("name", a.Name()),
		zap.Strings("subscriptions", a.Subscriptions()))
	return nil
}

// Remove drops an agent and its bus subscriptions. Absent IDs are a
// no-op returning false.
func (m *Manager) Remove(id string) bool {
	a, ok := m.byID[id]
	if !ok {
		return false
	}
	delete(m.byID, id)
	for i, existing := range m.agents {
		if existing.ID() == id {
			m.agents = append(m.agents[:i:i], m.agents[i+1:]...)
			break
		}
	}
	if m.bus != nil {
		handler := event.HandlerFunc{ID: "agent:" + id}
		for _, kind := range a.Subscriptions() {
			m.bus.Unsubscribe(kind, handler)
		}
	}
	return true
}

// Get returns an agent by ID, or nil when absent.
func (m *Manager) Get(id string) Agent { return m.byID[id] }

// List returns all agents in registration order.
func (m *Manager) List() []Agent {
	return append([]Agent(nil), m.agents...)
}

// Len returns the number of registered agents.
func (m *Manager) Len() int { return len(m.agents) }

// UpdateAll polls every agent for an action, in registration order, and
// returns the produced events. A panicking agent is logged and skipped;
// one misbehaving agent must not halt the tick.
func (m *Manager) UpdateAll() []event.Event {
	var out []event.Event
	for _, a := range m.agents {
		if e := m.generate(a); e != nil {
			out = append(out, *e)
		}
	}
	return out
}

func (m *Manager) generate(a Agent) (e *event.Event) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("agent action generation panicked",
				zap.String("agent", a.ID()),
				zap.Any("panic", r))
			e = nil
		}
	}()
	return a.GenerateAction()
}
