package relation

import (
	"time"

	"github.com/google/uuid"

	"github.com/nidhogg/curia/internal/event"
)

// Common relationship types. Domain layers may introduce their own.
const (
	TypePolitical = "political"
	TypePersonal  = "personal"
	TypeBusiness  = "business"
)

// HistoryEntry records one strength change for auditability.
type HistoryEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Old       float64   `json:"old"`
	New       float64   `json:"new"`
	Delta     float64   `json:"delta"`
	Reason    string    `json:"reason"`
}

// Normalizer is a domain-supplied strategy that pulls strength toward a
// baseline every Period updates (a periodic regression to the mean).
type Normalizer struct {
	Baseline float64
	Factor   float64 // fraction of the gap closed per application, (0,1]
	Period   int     // apply every Period-th update
}

// Relationship is a bounded scalar edge between two agent identities.
// The pair is canonically sorted so (A,B) and (B,A) name the same edge.
// Strength stays within [-1,1]; history is append-only.
type Relationship struct {
	ID         string         `json:"id"`
	AgentA     string         `json:"agent_a_id"`
	AgentB     string         `json:"agent_b_id"`
	Type       string         `json:"relationship_type"`
	Strength   float64        `json:"strength"`
	Attributes map[string]any `json:"attributes,omitempty"`
	History    []HistoryEntry `json:"history,omitempty"`

	normalizer  *Normalizer
	updateCount int
}

// New creates a relationship with the pair in canonical order.
func New(a, b, relType string, strength float64, attrs map[string]any) *Relationship {
	a, b = CanonicalPair(a, b)
	if attrs == nil {
		attrs = make(map[string]any)
	}
	return &Relationship{
		ID:         uuid.New().String(),
		AgentA:     a,
		AgentB:     b,
		Type:       relType,
		Strength:   clampStrength(strength),
		Attributes: attrs,
	}
}

// CanonicalPair returns the two IDs in sorted order.
func CanonicalPair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

// SetNormalizer installs a baseline-regression strategy.
func (r *Relationship) SetNormalizer(n *Normalizer) {
	r.normalizer = n
}

// Involves reports whether the given agent is one of the pair.
func (r *Relationship) Involves(agentID string) bool {
	return r.AgentA == agentID || r.AgentB == agentID
}

// Other returns the counterpart of the given agent, or "" if the agent
// is not part of this relationship.
func (r *Relationship) Other(agentID string) string {
	switch agentID {
	case r.AgentA:
		return r.AgentB
	case r.AgentB:
		return r.AgentA
	}
	return ""
}

// Sentiment buckets the current strength into a human-readable label.
func (r *Relationship) Sentiment() string {
	switch {
	case r.Strength <= -0.6:
		return "hostile"
	case r.Strength <= -0.2:
		return "cold"
	case r.Strength < 0.2:
		return "neutral"
	case r.Strength < 0.6:
		return "warm"
	default:
		return "allied"
	}
}

// Update reacts to an event. The relationship only changes when both of
// its agents are involved; the payload's relationship_impact (default 0)
// is then applied through UpdateStrength. Returns whether the strength
// changed.
func (r *Relationship) Update(e event.Event) bool {
	if !e.Involves(r.AgentA) || !e.Involves(r.AgentB) {
		return false
	}
	r.updateCount++

	changed := false
	if impact := e.Float(event.KeyRelationshipImpact, 0); impact != 0 {
		changed = r.UpdateStrength(impact, e.Kind)
	}

	if n := r.normalizer; n != nil && n.Period > 0 && r.updateCount%n.Period == 0 {
		delta := (n.Baseline - r.Strength) * n.Factor
		if delta != 0 {
			r.UpdateStrength(delta, "baseline normalization")
			changed = true
		}
	}
	return changed
}

// UpdateStrength applies a clamped delta and appends a history record.
// This is the only strength-mutating primitive; all update logic funnels
// through it. Returns whether the strength actually moved.
func (r *Relationship) UpdateStrength(delta float64, reason string) bool {
	old := r.Strength
	r.Strength = clampStrength(r.Strength + delta)
	r.History = append(r.History, HistoryEntry{
		Timestamp: time.Now(),
		Old:       old,
		New:       r.Strength,
		Delta:     delta,
		Reason:    reason,
	})
	return r.Strength != old
}

// Decay pulls strength toward zero at rate-per-day over the elapsed
// duration. A zero rate or elapsed time is a no-op.
func (r *Relationship) Decay(elapsed time.Duration, ratePerDay float64) bool {
	if ratePerDay <= 0 || elapsed <= 0 || r.Strength == 0 {
		return false
	}
	days := elapsed.Hours() / 24
	delta := -r.Strength * ratePerDay * days
	// Never overshoot past zero.
	if r.Strength > 0 && r.Strength+delta < 0 {
		delta = -r.Strength
	} else if r.Strength < 0 && r.Strength+delta > 0 {
		delta = -r.Strength
	}
	return r.UpdateStrength(delta, "time decay")
}

// ToMap serializes the relationship for snapshot backends.
func (r *Relationship) ToMap() map[string]any {
	hist := make([]map[string]any, len(r.History))
	for i, h := range r.History {
		hist[i] = map[string]any{
			"timestamp": h.Timestamp.Format(time.RFC3339Nano),
			"old":       h.Old,
			"new":       h.New,
			"delta":     h.Delta,
			"reason":    h.Reason,
		}
	}
	return map[string]any{
		"id":                r.ID,
		"agent_a_id":        r.AgentA,
		"agent_b_id":        r.AgentB,
		"relationship_type": r.Type,
		"strength":          r.Strength,
		"attributes":        r.Attributes,
		"history":           hist,
	}
}

// FromMap rebuilds a relationship from its ToMap shape.
func FromMap(data map[string]any) *Relationship {
	r := &Relationship{Attributes: make(map[string]any)}
	if v, ok := data["id"].(string); ok {
		r.ID = v
	}
	a, _ := data["agent_a_id"].(string)
	b, _ := data["agent_b_id"].(string)
	r.AgentA, r.AgentB = CanonicalPair(a, b)
	if v, ok := data["relationship_type"].(string); ok {
		r.Type = v
	}
	r.Strength = clampStrength(toFloat(data["strength"]))
	if v, ok := data["attributes"].(map[string]any); ok {
		r.Attributes = v
	}
	switch hist := data["history"].(type) {
	case []map[string]any:
		for _, h := range hist {
			r.History = append(r.History, historyFromMap(h))
		}
	case []any:
		for _, raw := range hist {
			if h, ok := raw.(map[string]any); ok {
				r.History = append(r.History, historyFromMap(h))
			}
		}
	}
	return r
}

func historyFromMap(h map[string]any) HistoryEntry {
	entry := HistoryEntry{
		Old:   toFloat(h["old"]),
		New:   toFloat(h["new"]),
		Delta: toFloat(h["delta"]),
	}
	if v, ok := h["timestamp"].(string); ok {
		if ts, err := time.Parse(time.RFC3339Nano, v); err == nil {
			entry.Timestamp = ts
		}
	}
	if v, ok := h["reason"].(string); ok {
		entry.Reason = v
	}
	return entry
}

func toFloat(v any) float64 {
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
	return 0
}

func clampStrength(v float64) float64 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}
