package memory

import (
	"math"
	"testing"
	"time"
)

func TestClampOnConstruction(t *testing.T) {
	m := NewItem("fact", 4.2, -0.5, nil)
	if m.Importance != 1 {
		t.Errorf("importance = %v, want 1", m.Importance)
	}
	if m.DecayRate != 0 {
		t.Errorf("decay rate = %v, want 0", m.DecayRate)
	}

	m.SetImportance(-3)
	if m.Importance != 0 {
		t.Errorf("importance after update = %v, want 0", m.Importance)
	}
	m.SetEmotionalImpact(9)
	if m.EmotionalImpact != 1 {
		t.Errorf("emotional impact = %v, want 1", m.EmotionalImpact)
	}
}

func TestStrengthFormula(t *testing.T) {
	m := NewItem("the senate voted", 0.8, 0.1, nil)
	at := m.Timestamp.Add(10 * 24 * time.Hour)

	got := m.Strength(at)
	want := 0.8 * math.Exp(-1.0)
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("strength at 10 days = %v, want %v", got, want)
	}
}

func TestStrengthEmotionalBoost(t *testing.T) {
	m := NewItem("betrayal", 0.5, 0, nil)
	m.SetEmotionalImpact(-0.8)

	got := m.Strength(m.Timestamp.Add(24 * time.Hour))
	want := 0.5 * (1 + 0.5*0.8)
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("strength = %v, want %v", got, want)
	}
}

func TestDecayMonotonicity(t *testing.T) {
	m := NewItem("speech", 0.9, 0.2, nil)
	prev := m.Strength(m.Timestamp)
	for days := 1; days <= 30; days++ {
		cur := m.Strength(m.Timestamp.Add(time.Duration(days) * 24 * time.Hour))
		if cur > prev {
			t.Fatalf("strength rose from %v to %v at day %d", prev, cur, days)
		}
		prev = cur
	}

	stable := NewItem("core fact", 0.95, 0, nil)
	s1 := stable.Strength(stable.Timestamp)
	s2 := stable.Strength(stable.Timestamp.Add(365 * 24 * time.Hour))
	if s1 != s2 {
		t.Errorf("zero-decay strength changed from %v to %v", s1, s2)
	}
}

func TestCategory(t *testing.T) {
	cases := []struct {
		importance, decay float64
		want              Category
	}{
		{0.95, 0, CategoryCore},
		{0.95, 0.1, CategoryLongTerm},
		{0.7, 0, CategoryLongTerm},
		{0.5, 0.1, CategoryMediumTerm},
		{0.2, 0.1, CategoryShortTerm},
	}
	for _, c := range cases {
		m := NewItem("x", c.importance, c.decay, nil)
		if got := m.Category(); got != c.want {
			t.Errorf("category(imp=%v, decay=%v) = %s, want %s",
				c.importance, c.decay, got, c.want)
		}
	}
}

func TestItemRoundTrip(t *testing.T) {
	m := NewItem("Cato spoke against the proposal", 0.8, 0.05, map[string]any{
		"speaker": "cato",
		"faction": "optimates",
	})
	m.SetEmotionalImpact(0.4)
	m.Touch(time.Now())

	back := ItemFromMap(m.ToMap())

	if back.ID != m.ID {
		t.Errorf("id = %s, want %s", back.ID, m.ID)
	}
	if !back.Timestamp.Equal(m.Timestamp) {
		t.Errorf("timestamp = %v, want %v", back.Timestamp, m.Timestamp)
	}
	if back.Content != m.Content {
		t.Errorf("content = %v, want %v", back.Content, m.Content)
	}
	if back.Importance != m.Importance || back.DecayRate != m.DecayRate {
		t.Errorf("importance/decay = %v/%v, want %v/%v",
			back.Importance, back.DecayRate, m.Importance, m.DecayRate)
	}
	if back.EmotionalImpact != m.EmotionalImpact {
		t.Errorf("emotional impact = %v, want %v", back.EmotionalImpact, m.EmotionalImpact)
	}
	if back.AccessCount != m.AccessCount {
		t.Errorf("access count = %d, want %d", back.AccessCount, m.AccessCount)
	}
	if len(back.Associations) != 2 || back.Associations["speaker"] != "cato" {
		t.Errorf("associations = %v, want %v", back.Associations, m.Associations)
	}
}
