package event

import (
	"time"

	"github.com/google/uuid"
)

// Well-known payload keys consumed by the core. Producers may add any
// other keys; consumers read them through the typed accessors below.
const (
	KeyParticipants       = "participants"
	KeyRelationshipImpact = "relationship_impact"
)

// Event is an immutable typed message flowing through the bus.
// Source and Target are agent IDs and may be empty.
type Event struct {
	ID        string         `json:"id"`
	Kind      string         `json:"kind"`
	Timestamp time.Time      `json:"timestamp"`
	Source    string         `json:"source,omitempty"`
	Target    string         `json:"target,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// New creates an event with a fresh ID and the current timestamp.
func New(kind, source, target string, payload map[string]any) Event {
	return Event{
		ID:        uuid.New().String(),
		Kind:      kind,
		Timestamp: time.Now(),
		Source:    source,
		Target:    target,
		Payload:   payload,
	}
}

// Float reads a numeric payload field, tolerating the types JSON
// round-trips produce. Returns def when absent or non-numeric.
func (e Event) Float(key string, def float64) float64 {
	v, ok := e.Payload[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return def
}

// String reads a string payload field, returning "" when absent.
func (e Event) String(key string) string {
	if s, ok := e.Payload[key].(string); ok {
		return s
	}
	return ""
}

// Strings reads a string-list payload field. Both []string and
// []any-of-string (the shape JSON decoding yields) are accepted.
func (e Event) Strings(key string) []string {
	switch v := e.Payload[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Participants returns the deduplicated set of agent IDs involved in the
// event: source, target, and any payload participants list.
func (e Event) Participants() []string {
	seen := make(map[string]struct{}, 4)
	var ids []string
	add := func(id string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	add(e.Source)
	add(e.Target)
	for _, id := range e.Strings(KeyParticipants) {
		add(id)
	}
	return ids
}

// Involves reports whether the given agent ID is a participant.
func (e Event) Involves(agentID string) bool {
	if agentID == "" {
		return false
	}
	if e.Source == agentID || e.Target == agentID {
		return true
	}
	for _, id := range e.Strings(KeyParticipants) {
		if id == agentID {
			return true
		}
	}
	return false
}
