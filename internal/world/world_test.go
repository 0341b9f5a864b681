package world

import (
	"math"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/curia/internal/agent"
	"github.com/nidhogg/curia/internal/event"
	"github.com/nidhogg/curia/internal/relation"
)

// talker produces one "speech" event per tick, no cooldown.
type talker struct {
	agent.Core
	counterpart string
}

func (a *talker) ProcessEvent(event.Event) {}

func (a *talker) GenerateAction() *event.Event {
	e := event.New("speech", a.ID(), a.counterpart, map[string]any{
		event.KeyRelationshipImpact: 0.1,
		"text":                      "friends romans countrymen",
	})
	return &e
}

func newTestSim(t *testing.T, opts Options) (*Simulation, *agent.Manager, *relation.Manager, *event.Bus) {
	t.Helper()
	logger := zap.NewNop()
	bus := event.NewBus(logger)
	agents := agent.NewManager(bus, logger)
	relations := relation.NewManager(logger)
	relations.BindBus(bus)
	return NewSimulation(agents, bus, relations, opts, logger), agents, relations, bus
}

func TestStepPublishesActionsAndRoutesRelationships(t *testing.T) {
	sim, agents, relations, _ := newTestSim(t, Options{})

	a := &talker{Core: agent.NewCore("cato", "Cato", nil, nil, zap.NewNop()), counterpart: "caesar"}
	b := &talker{Core: agent.NewCore("caesar", "Caesar", nil, nil, zap.NewNop()), counterpart: "cato"}
	agents.Register(a)
	agents.Register(b)
	relations.Create("cato", "caesar", relation.TypePolitical, 0, nil)

	if published := sim.Step(time.Now()); published != 2 {
		t.Fatalf("published %d events, want 2", published)
	}

	got := relations.Get("cato", "caesar", relation.TypePolitical).Strength
	if math.Abs(got-0.2) > 1e-9 {
		t.Errorf("strength after tick = %v, want 0.2", got)
	}
	if sim.Ticks() != 1 {
		t.Errorf("tick count = %d, want 1", sim.Ticks())
	}
}

func TestMaintenanceCadence(t *testing.T) {
	sim, agents, relations, _ := newTestSim(t, Options{
		RelationDecayPerDay: 0.5,
		DecayEveryTicks:     2,
	})
	_ = agents
	relations.Create("a", "b", relation.TypePersonal, 0.8, nil)

	start := time.Now()
	sim.Step(start) // tick 1: no decay yet
	if got := relations.Get("a", "b", relation.TypePersonal).Strength; got != 0.8 {
		t.Fatalf("strength moved before decay tick: %v", got)
	}
	sim.Step(start.Add(24 * time.Hour)) // tick 2: decay over one day
	got := relations.Get("a", "b", relation.TypePersonal).Strength
	if got >= 0.8 || got <= 0 {
		t.Errorf("strength after decay pass = %v", got)
	}
}

func TestPruneMemoriesAcrossAgents(t *testing.T) {
	sim, agents, _, _ := newTestSim(t, Options{PruneThreshold: 0.1})

	a := &talker{Core: agent.NewCore("cato", "Cato", nil, nil, zap.NewNop())}
	agents.Register(a)

	m := a.Memory.Record("a weak rumor", 0.3, 0.5, nil)
	m.Timestamp = time.Now().Add(-10 * 24 * time.Hour)
	a.Memory.Record("a lasting oath", 0.95, 0, nil)

	if pruned := sim.PruneMemories(time.Now()); pruned != 1 {
		t.Fatalf("pruned %d memories, want 1", pruned)
	}
	if a.Memory.Len() != 1 {
		t.Errorf("agent retains %d memories, want 1", a.Memory.Len())
	}
}

func TestClockAdvanceFiresListeners(t *testing.T) {
	clock := NewClock(time.Second, 1.0, zap.NewNop())

	var fired []time.Time
	clock.AddListener(listenerFunc(func(wt time.Time) { fired = append(fired, wt) }))

	before := clock.WorldTime()
	clock.Advance(time.Hour)
	clock.Advance(time.Hour)

	if len(fired) != 2 {
		t.Fatalf("listener fired %d times, want 2", len(fired))
	}
	if got := clock.WorldTime().Sub(before); got != 2*time.Hour {
		t.Errorf("world time advanced %v, want 2h", got)
	}
}

type listenerFunc func(time.Time)

func (f listenerFunc) OnTick(wt time.Time) { f(wt) }

func TestActivityTracker(t *testing.T) {
	tracker := NewActivityTracker(time.Minute, zap.NewNop())
	bus := event.NewBus(zap.NewNop())
	tracker.Bind(bus)

	now := time.Now()
	bus.Publish(event.New("speech", "cato", "", nil))
	bus.Publish(event.New("trade", "marcus", "", nil))

	if got := tracker.State("cato", now); got != ActivitySpeaking {
		t.Errorf("cato activity = %s, want speaking", got)
	}
	if got := tracker.State("marcus", now); got != ActivityTrading {
		t.Errorf("marcus activity = %s, want trading", got)
	}
	if got := tracker.State("cato", now.Add(2*time.Minute)); got != ActivityIdle {
		t.Errorf("stale activity = %s, want idle", got)
	}
	if got := tracker.State("unknown", now); got != ActivityIdle {
		t.Errorf("unknown agent activity = %s, want idle", got)
	}
}

func TestGrowthTrackerMilestones(t *testing.T) {
	tracker := NewGrowthTracker(zap.NewNop())
	bus := event.NewBus(zap.NewNop())
	tracker.Bind(bus)

	for i := 0; i < milestoneEvery; i++ {
		bus.Publish(event.New("speech", "cato", "", nil))
	}

	p := tracker.ProfileFor("cato")
	if p.Produced != milestoneEvery {
		t.Errorf("produced = %d, want %d", p.Produced, milestoneEvery)
	}
	if p.ByKind["speech"] != milestoneEvery {
		t.Errorf("by-kind tally = %d, want %d", p.ByKind["speech"], milestoneEvery)
	}
	if len(p.Milestones) != 1 {
		t.Errorf("milestones = %d, want 1", len(p.Milestones))
	}

	empty := tracker.ProfileFor("nobody")
	if empty.Produced != 0 || empty.ByKind == nil {
		t.Error("unknown agent profile not empty")
	}
}
