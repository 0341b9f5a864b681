package memory

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// Category buckets an item by retention class. Used only to route items
// into secondary indices; decay math is unaffected.
type Category string

const (
	CategoryCore       Category = "core"
	CategoryLongTerm   Category = "long_term"
	CategoryMediumTerm Category = "medium_term"
	CategoryShortTerm  Category = "short_term"
)

// Item is a timestamped, importance-weighted fact an agent retains.
// Importance and decay rate are clamped to [0,1] on construction and on
// every update; emotional impact to [-1,1].
type Item struct {
	ID              string         `json:"id"`
	Timestamp       time.Time      `json:"timestamp"`
	Content         any            `json:"content"`
	Importance      float64        `json:"importance"`
	DecayRate       float64        `json:"decay_rate"`
	EmotionalImpact float64        `json:"emotional_impact,omitempty"`
	Associations    map[string]any `json:"associations,omitempty"`
	AccessCount     int            `json:"access_count,omitempty"`
	LastAccessed    time.Time      `json:"last_accessed,omitempty"`
}

// NewItem creates a memory item with a fresh ID and the current time.
func NewItem(content any, importance, decayRate float64, associations map[string]any) *Item {
	if associations == nil {
		associations = make(map[string]any)
	}
	return &Item{
		ID:           uuid.New().String(),
		Timestamp:    time.Now(),
		Content:      content,
		Importance:   clamp01(importance),
		DecayRate:    clamp01(decayRate),
		Associations: associations,
	}
}

// SetImportance updates importance, clamped to [0,1].
func (m *Item) SetImportance(v float64) {
	m.Importance = clamp01(v)
}

// SetEmotionalImpact updates emotional impact, clamped to [-1,1].
func (m *Item) SetEmotionalImpact(v float64) {
	m.EmotionalImpact = clampSym(v)
}

// Touch records an access for recency/usage accounting.
func (m *Item) Touch(now time.Time) {
	m.AccessCount++
	m.LastAccessed = now
}

// Strength returns the current recall weight:
//
//	importance * exp(-decay_rate * days_elapsed) * (1 + 0.5*|emotional_impact|)
//
// clamped to [0,1]. With a zero decay rate the value is constant over time.
func (m *Item) Strength(now time.Time) float64 {
	days := now.Sub(m.Timestamp).Hours() / 24
	if days < 0 {
		days = 0
	}
	s := m.Importance * math.Exp(-m.DecayRate*days) * (1 + 0.5*math.Abs(m.EmotionalImpact))
	return clamp01(s)
}

// Category returns the retention class of this item. Core memories have
// zero decay and importance >= 0.9 and are never pruned.
func (m *Item) Category() Category {
	switch {
	case m.DecayRate == 0 && m.Importance >= 0.9:
		return CategoryCore
	case m.Importance >= 0.7:
		return CategoryLongTerm
	case m.Importance >= 0.4:
		return CategoryMediumTerm
	default:
		return CategoryShortTerm
	}
}

// ToMap serializes the item to a flat map for snapshot backends.
func (m *Item) ToMap() map[string]any {
	out := map[string]any{
		"id":         m.ID,
		"timestamp":  m.Timestamp.Format(time.RFC3339Nano),
		"content":    m.Content,
		"importance": m.Importance,
		"decay_rate": m.DecayRate,
	}
	if m.EmotionalImpact != 0 {
		out["emotional_impact"] = m.EmotionalImpact
	}
	if len(m.Associations) > 0 {
		out["associations"] = m.Associations
	}
	if m.AccessCount > 0 {
		out["access_count"] = m.AccessCount
	}
	if !m.LastAccessed.IsZero() {
		out["last_accessed"] = m.LastAccessed.Format(time.RFC3339Nano)
	}
	return out
}

// ItemFromMap rebuilds an item from its ToMap shape. Unknown fields are
// ignored; clamps are re-applied.
func ItemFromMap(data map[string]any) *Item {
	m := &Item{Associations: make(map[string]any)}
	if v, ok := data["id"].(string); ok {
		m.ID = v
	}
	if v, ok := data["timestamp"].(string); ok {
		if ts, err := time.Parse(time.RFC3339Nano, v); err == nil {
			m.Timestamp = ts
		}
	}
	m.Content = data["content"]
	m.Importance = clamp01(toFloat(data["importance"]))
	m.DecayRate = clamp01(toFloat(data["decay_rate"]))
	m.EmotionalImpact = clampSym(toFloat(data["emotional_impact"]))
	if v, ok := data["associations"].(map[string]any); ok {
		m.Associations = v
	}
	if v, ok := data["access_count"]; ok {
		m.AccessCount = int(toFloat(v))
	}
	if v, ok := data["last_accessed"].(string); ok {
		if ts, err := time.Parse(time.RFC3339Nano, v); err == nil {
			m.LastAccessed = ts
		}
	}
	return m
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

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampSym(v float64) float64 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}
