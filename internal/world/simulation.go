package world

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/curia/internal/agent"
	"github.com/nidhogg/curia/internal/event"
	"github.com/nidhogg/curia/internal/memory"
	"github.com/nidhogg/curia/internal/relation"
)

// memoryHolder is implemented by agents that expose their memory store
// for driver-run maintenance.
type memoryHolder interface {
	MemoryStore() *memory.Store
}

// Options tunes simulation maintenance.
type Options struct {
	RelationDecayPerDay float64 // per-day pull toward zero, 0 disables
	DecayEveryTicks     int     // how often decay runs (default 10)
	PruneThreshold      float64 // memory strength floor, 0 disables pruning
	PruneEveryTicks     int     // how often pruning runs (default 50)
}

// Simulation is the tick driver. On every tick it polls all agents for
// actions and publishes them; relationship and memory maintenance run on
// their configured cadences. It implements Listener so a Clock can drive
// it, and Advance-style manual stepping works through Step.
type Simulation struct {
	agents    *agent.Manager
	bus       *event.Bus
	relations *relation.Manager
	opts      Options

	mu        sync.Mutex
	ticks     int
	lastDecay time.Time
	logger    *zap.Logger
}

// NewSimulation wires the tick driver. Zero cadence options get
// defaults; zero thresholds disable their maintenance pass.
func NewSimulation(agents *agent.Manager, bus *event.Bus, relations *relation.Manager, opts Options, logger *zap.Logger) *Simulation {
	if opts.DecayEveryTicks <= 0 {
		opts.DecayEveryTicks = 10
	}
	if opts.PruneEveryTicks <= 0 {
		opts.PruneEveryTicks = 50
	}
	return &Simulation{
		agents:    agents,
		bus:       bus,
		relations: relations,
		opts:      opts,
		logger:    logger,
	}
}

// Ticks returns how many ticks have run.
func (s *Simulation) Ticks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticks
}

// OnTick implements Listener.
func (s *Simulation) OnTick(worldTime time.Time) {
	s.Step(worldTime)
}

// Step runs one simulation tick at the given world time: generate
// actions, publish them, then run any due maintenance. Within a tick
// everything is sequential, so with a synchronous bus each published
// action's side effects complete before the next agent is polled.
func (s *Simulation) Step(worldTime time.Time) int {
	s.mu.Lock()
	s.ticks++
	tick := s.ticks
	if s.lastDecay.IsZero() {
		s.lastDecay = worldTime
	}
	s.mu.Unlock()

	published := 0
	for _, a := range s.agents.List() {
		e := s.generate(a)
		if e == nil {
			continue
		}
		if s.bus.Publish(*e) {
			published++
		}
	}

	if s.opts.RelationDecayPerDay > 0 && tick%s.opts.DecayEveryTicks == 0 {
		s.mu.Lock()
		elapsed := worldTime.Sub(s.lastDecay)
		s.lastDecay = worldTime
		s.mu.Unlock()
		if changed := s.relations.DecayAll(elapsed, s.opts.RelationDecayPerDay); changed > 0 {
			s.logger.Debug("relationship decay pass",
				zap.Int("tick", tick),
				zap.Int("changed", changed))
		}
	}

	if s.opts.PruneThreshold > 0 && tick%s.opts.PruneEveryTicks == 0 {
		pruned := s.PruneMemories(worldTime)
		if pruned > 0 {
			s.logger.Debug("memory prune pass",
				zap.Int("tick", tick),
				zap.Int("pruned", pruned))
		}
	}
	return published
}

// PruneMemories evicts weak memories across every agent that exposes a
// store, and returns the total removed.
func (s *Simulation) PruneMemories(now time.Time) int {
	total := 0
	for _, a := range s.agents.List() {
		holder, ok := a.(memoryHolder)
		if !ok {
			continue
		}
		total += holder.MemoryStore().PruneWeak(s.opts.PruneThreshold, now)
	}
	return total
}

// generate polls one agent with panic isolation; one misbehaving agent
// must not halt the tick.
func (s *Simulation) generate(a agent.Agent) (e *event.Event) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("action generation panicked",
				zap.String("agent", a.ID()),
				zap.Any("panic", r))
			e = nil
		}
	}()
	return a.GenerateAction()
}
