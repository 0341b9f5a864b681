package world

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/curia/internal/event"
)

// Activity describes what an agent is currently doing, derived from the
// event stream.
type Activity string

const (
	ActivityIdle     Activity = "idle"
	ActivitySpeaking Activity = "speaking"
	ActivityDebating Activity = "debating"
	ActivityVoting   Activity = "voting"
	ActivityTrading  Activity = "trading"
	ActivityReacting Activity = "reacting"
)

// kindToActivity maps event kinds to the source agent's activity.
var kindToActivity = map[string]Activity{
	"speech":       ActivitySpeaking,
	"interjection": ActivitySpeaking,
	"debate_start": ActivityDebating,
	"vote":         ActivityVoting,
	"offer":        ActivityTrading,
	"haggle":       ActivityTrading,
	"trade":        ActivityTrading,
	"reaction":     ActivityReacting,
}

// ActivityTracker derives per-agent activity from events on the bus.
// Agents revert to idle after the TTL elapses without further events.
type ActivityTracker struct {
	mu     sync.RWMutex
	last   map[string]observed
	ttl    time.Duration
	logger *zap.Logger
}

type observed struct {
	activity Activity
	at       time.Time
}

// NewActivityTracker creates a tracker; ttl <= 0 defaults to a minute.
func NewActivityTracker(ttl time.Duration, logger *zap.Logger) *ActivityTracker {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &ActivityTracker{
		last:   make(map[string]observed),
		ttl:    ttl,
		logger: logger,
	}
}

// Bind subscribes the tracker to every event on the bus.
func (t *ActivityTracker) Bind(bus *event.Bus) {
	bus.SubscribeAll(event.HandlerFunc{
		ID: "activity-tracker",
		Fn: t.Observe,
	}, 0)
}

// Observe records the activity implied by one event.
func (t *ActivityTracker) Observe(e event.Event) {
	if e.Source == "" {
		return
	}
	activity, ok := kindToActivity[e.Kind]
	if !ok {
		activity = ActivityReacting
	}
	t.mu.Lock()
	prev := t.last[e.Source].activity
	t.last[e.Source] = observed{activity: activity, at: e.Timestamp}
	t.mu.Unlock()

	if prev != activity {
		t.logger.Debug("agent activity changed",
			zap.String("agent", e.Source),
			zap.String("from", string(prev)),
			zap.String("to", string(activity)))
	}
}

// State returns the agent's current activity, reverting to idle once the
// TTL has passed since its last event.
func (t *ActivityTracker) State(agentID string, now time.Time) Activity {
	t.mu.RLock()
	defer t.mu.RUnlock()
	obs, ok := t.last[agentID]
	if !ok || now.Sub(obs.at) > t.ttl {
		return ActivityIdle
	}
	return obs.activity
}
