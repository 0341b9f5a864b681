package agent

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nidhogg/curia/internal/event"
	"github.com/nidhogg/curia/internal/memory"
)

// Agent is the capability set every simulation participant implements.
// ProcessEvent reacts to a dispatched event; GenerateAction is polled
// once per tick and may return one new event, or nil. Implementations
// must self-rate-limit action generation since the tick driver imposes
// no pacing.
type Agent interface {
	ID() string
	Name() string
	Subscriptions() []string
	ProcessEvent(e event.Event)
	GenerateAction() *event.Event
}

// Core is the embeddable base for concrete agent types: identity, static
// attributes, mutable runtime state, subscribed event kinds, a per-agent
// memory store, and a cooldown helper for action pacing.
type Core struct {
	AgentID    string
	AgentName  string
	Attributes map[string]any
	State      map[string]any
	Subs       []string
	Memory     *memory.Store
	Logger     *zap.Logger

	nextAction time.Time
}

// NewCore builds an agent core. A nil attrs map is allocated; an ID is
// generated when empty.
func NewCore(id, name string, attrs map[string]any, subs []string, logger *zap.Logger) Core {
	if id == "" {
		id = uuid.New().String()
	}
	if attrs == nil {
		attrs = make(map[string]any)
	}
	return Core{
		AgentID:    id,
		AgentName:  name,
		Attributes: attrs,
		State:      make(map[string]any),
		Subs:       subs,
		Memory:     memory.NewStore(id, logger),
		Logger:     logger,
	}
}

func (c *Core) ID() string              { return c.AgentID }
func (c *Core) Name() string            { return c.AgentName }
func (c *Core) Subscriptions() []string { return c.Subs }

// MemoryStore exposes the agent's memory for drivers that run
// maintenance (pruning, snapshots) across all agents.
func (c *Core) MemoryStore() *memory.Store { return c.Memory }

// Attr reads a static attribute, returning def when absent.
func (c *Core) Attr(key string, def any) any {
	if v, ok := c.Attributes[key]; ok {
		return v
	}
	return def
}

// AttrFloat reads a numeric attribute with a default.
func (c *Core) AttrFloat(key string, def float64) float64 {
	switch v := c.Attributes[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	}
	return def
}

// AttrString reads a string attribute with a default.
func (c *Core) AttrString(key, def string) string {
	if v, ok := c.Attributes[key].(string); ok {
		return v
	}
	return def
}

// Ready reports whether the action cooldown has elapsed. When it has,
// the cooldown restarts; callers produce at most one action per window.
func (c *Core) Ready(cooldown time.Duration) bool {
	now := time.Now()
	if now.Before(c.nextAction) {
		return false
	}
	c.nextAction = now.Add(cooldown)
	return true
}

// Remember records an event observation as a memory, deriving free-text
// content and associations from the event.
func (c *Core) Remember(e event.Event, importance, decayRate float64) *memory.Item {
	assoc := map[string]any{"event_kind": e.Kind}
	if e.Source != "" {
		assoc["source"] = e.Source
	}
	if e.Target != "" {
		assoc["target"] = e.Target
	}
	content := e.String("text")
	if content == "" {
		content = e.Kind
	}
	return c.Memory.Record(content, importance, decayRate, assoc)
}
