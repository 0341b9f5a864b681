package relation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/curia/internal/event"
)

// ErrDuplicateRelationship is returned when a relationship for an
// existing (pair, type) is created again. One edge per pair per type.
var ErrDuplicateRelationship = errors.New("relationship already exists for pair and type")

// Persister is a pluggable snapshot backend for the full edge set.
type Persister interface {
	SaveRelationships(ctx context.Context, rels []*Relationship) error
	LoadRelationships(ctx context.Context) ([]*Relationship, error)
}

type pairKey struct {
	a, b, relType string
}

// Manager is the registry of relationships. It maintains a canonical
// pair index, a per-agent reverse index, and a per-type index so lookups
// never linear-scan the edge set.
type Manager struct {
	byPair  map[pairKey]*Relationship
	byAgent map[string][]*Relationship
	byType  map[string][]*Relationship
	logger  *zap.Logger
}

// NewManager creates an empty relationship registry.
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		byPair:  make(map[pairKey]*Relationship),
		byAgent: make(map[string][]*Relationship),
		byType:  make(map[string][]*Relationship),
		logger:  logger,
	}
}

// Len returns the number of edges.
func (m *Manager) Len() int { return len(m.byPair) }

// Create registers a new relationship. Fails with
// ErrDuplicateRelationship when the (pair, type) edge already exists.
func (m *Manager) Create(a, b, relType string, strength float64, attrs map[string]any) (*Relationship, error) {
	if a == "" || b == "" || a == b {
		return nil, fmt.Errorf("invalid agent pair (%q, %q)", a, b)
	}
	ca, cb := CanonicalPair(a, b)
	key := pairKey{ca, cb, relType}
	if _, exists := m.byPair[key]; exists {
		return nil, fmt.Errorf("%w: (%s, %s, %s)", ErrDuplicateRelationship, ca, cb, relType)
	}
	r := New(a, b, relType, strength, attrs)
	m.insert(r)
	m.logger.Debug("relationship created",
		zap.String("agent_a", r.AgentA),
		zap.String("agent_b", r.AgentB),
		zap.String("type", relType),
		zap.Float64("strength", r.Strength))
	return r, nil
}

func (m *Manager) insert(r *Relationship) {
	key := pairKey{r.AgentA, r.AgentB, r.Type}
	m.byPair[key] = r
	m.byAgent[r.AgentA] = append(m.byAgent[r.AgentA], r)
	m.byAgent[r.AgentB] = append(m.byAgent[r.AgentB], r)
	m.byType[r.Type] = append(m.byType[r.Type], r)
}

// Get returns the edge for a pair and type, or nil when absent. Argument
// order does not matter.
func (m *Manager) Get(a, b, relType string) *Relationship {
	ca, cb := CanonicalPair(a, b)
	return m.byPair[pairKey{ca, cb, relType}]
}

// Between returns every edge between two agents regardless of type.
func (m *Manager) Between(a, b string) []*Relationship {
	var out []*Relationship
	for _, r := range m.byAgent[a] {
		if r.Involves(b) {
			out = append(out, r)
		}
	}
	return out
}

// ByAgent returns every edge touching the agent.
func (m *Manager) ByAgent(agentID string) []*Relationship {
	return append([]*Relationship(nil), m.byAgent[agentID]...)
}

// ByType returns every edge of the given type.
func (m *Manager) ByType(relType string) []*Relationship {
	return append([]*Relationship(nil), m.byType[relType]...)
}

// All returns the full edge set.
func (m *Manager) All() []*Relationship {
	out := make([]*Relationship, 0, len(m.byPair))
	for _, r := range m.byPair {
		out = append(out, r)
	}
	return out
}

// Remove deletes the edge for a pair and type; absent edges are a no-op.
func (m *Manager) Remove(a, b, relType string) bool {
	ca, cb := CanonicalPair(a, b)
	key := pairKey{ca, cb, relType}
	r, ok := m.byPair[key]
	if !ok {
		return false
	}
	delete(m.byPair, key)
	m.byAgent[ca] = without(m.byAgent[ca], r)
	m.byAgent[cb] = without(m.byAgent[cb], r)
	m.byType[relType] = without(m.byType[relType], r)
	return true
}

// Clear drops every edge.
func (m *Manager) Clear() {
	m.byPair = make(map[pairKey]*Relationship)
	m.byAgent = make(map[string][]*Relationship)
	m.byType = make(map[string][]*Relationship)
}

// RouteEvent updates every existing relationship among the agents the
// event involves, and returns how many actually changed. Events touching
// fewer than two agents are a fast no-op.
func (m *Manager) RouteEvent(e event.Event) int {
	involved := e.Participants()
	if len(involved) < 2 {
		return 0
	}
	changed := 0
	for i := 0; i < len(involved); i++ {
		for j := i + 1; j < len(involved); j++ {
			for _, r := range m.Between(involved[i], involved[j]) {
				if r.Update(e) {
					changed++
				}
			}
		}
	}
	return changed
}

// DecayAll applies time decay to every edge and returns how many moved.
func (m *Manager) DecayAll(elapsed time.Duration, ratePerDay float64) int {
	changed := 0
	for _, r := range m.byPair {
		if r.Decay(elapsed, ratePerDay) {
			changed++
		}
	}
	return changed
}

// BindBus subscribes the manager to every event so relationship
// maintenance becomes a side effect of normal event flow.
func (m *Manager) BindBus(bus *event.Bus) {
	bus.SubscribeAll(event.HandlerFunc{
		ID: "relation-manager",
		Fn: func(e event.Event) { m.RouteEvent(e) },
	}, 0)
}

// Save snapshots the full edge set through the persister.
func (m *Manager) Save(ctx context.Context, p Persister) error {
	if err := p.SaveRelationships(ctx, m.All()); err != nil {
		return fmt.Errorf("save relationships: %w", err)
	}
	return nil
}

// Load replaces the in-memory edge set with the persisted one. Indices
// are rebuilt from scratch; there is no incremental merge.
func (m *Manager) Load(ctx context.Context, p Persister) error {
	rels, err := p.LoadRelationships(ctx)
	if err != nil {
		return fmt.Errorf("load relationships: %w", err)
	}
	m.Clear()
	for _, r := range rels {
		key := pairKey{r.AgentA, r.AgentB, r.Type}
		if _, exists := m.byPair[key]; exists {
			m.logger.Warn("duplicate edge in snapshot skipped",
				zap.String("agent_a", r.AgentA),
				zap.String("agent_b", r.AgentB),
				zap.String("type", r.Type))
			continue
		}
		m.insert(r)
	}
	m.logger.Info("relationships restored", zap.Int("count", m.Len()))
	return nil
}

func without(list []*Relationship, target *Relationship) []*Relationship {
	for i, r := range list {
		if r == target {
			return append(list[:i:i], list[i+1:]...)
		}
	}
	return list
}
