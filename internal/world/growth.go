package world

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/curia/internal/event"
)

// Milestone records a participation achievement for an agent.
type Milestone struct {
	Title      string    `json:"title"`
	AchievedAt time.Time `json:"achieved_at"`
}

// Profile tallies an agent's participation in the simulation.
type Profile struct {
	AgentID    string         `json:"agent_id"`
	Produced   int            `json:"produced"`
	ByKind     map[string]int `json:"by_kind"`
	Milestones []Milestone    `json:"milestones"`
}

// milestoneEvery awards a milestone each time an agent's produced-event
// count crosses another multiple of this.
const milestoneEvery = 25

// GrowthTracker tallies per-agent event production from the bus.
type GrowthTracker struct {
	mu       sync.RWMutex
	profiles map[string]*Profile
	logger   *zap.Logger
}

// NewGrowthTracker creates an empty tracker.
func NewGrowthTracker(logger *zap.Logger) *GrowthTracker {
	return &GrowthTracker{
		profiles: make(map[string]*Profile),
		logger:   logger,
	}
}

// Bind subscribes the tracker to every event on the bus.
func (t *GrowthTracker) Bind(bus *event.Bus) {
	bus.SubscribeAll(event.HandlerFunc{
		ID: "growth-tracker",
		Fn: t.Observe,
	}, 0)
}

// Observe tallies one event against its source agent.
func (t *GrowthTracker) Observe(e event.Event) {
	if e.Source == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	p := t.getOrCreate(e.Source)
	p.Produced++
	p.ByKind[e.Kind]++

	if p.Produced%milestoneEvery == 0 {
		m := Milestone{
			Title:      fmt.Sprintf("%d actions", p.Produced),
			AchievedAt: e.Timestamp,
		}
		p.Milestones = append(p.Milestones, m)
		t.logger.Info("milestone reached",
			zap.String("agent", e.Source),
			zap.String("title", m.Title))
	}
}

// ProfileFor returns a copy of an agent's profile; an empty profile for
// agents never observed.
func (t *GrowthTracker) ProfileFor(agentID string) Profile {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.profiles[agentID]
	if !ok {
		return Profile{AgentID: agentID, ByKind: map[string]int{}}
	}
	out := Profile{
		AgentID:    p.AgentID,
		Produced:   p.Produced,
		ByKind:     make(map[string]int, len(p.ByKind)),
		Milestones: append([]Milestone(nil), p.Milestones...),
	}
	for k, v := range p.ByKind {
		out.ByKind[k] = v
	}
	return out
}

func (t *GrowthTracker) getOrCreate(agentID string) *Profile {
	p, ok := t.profiles[agentID]
	if !ok {
		p = &Profile{AgentID: agentID, ByKind: make(map[string]int)}
		t.profiles[agentID] = p
	}
	return p
}
