package relation

import (
	"math"
	"testing"
	"time"

	"github.com/nidhogg/curia/internal/event"
)

func TestStrengthClampInvariant(t *testing.T) {
	r := New("cato", "caesar", TypePolitical, 0, nil)

	deltas := []float64{0.5, 0.9, 3.0, -0.2, -10, 0.01, 100}
	for _, d := range deltas {
		r.UpdateStrength(d, "test")
		if r.Strength < -1 || r.Strength > 1 {
			t.Fatalf("strength %v escaped [-1,1] after delta %v", r.Strength, d)
		}
	}
	if len(r.History) != len(deltas) {
		t.Errorf("history has %d entries, want %d", len(r.History), len(deltas))
	}
	// History is append-only and internally consistent.
	for i, h := range r.History {
		if h.New != clampStrength(h.Old+h.Delta) {
			t.Errorf("history entry %d inconsistent: %+v", i, h)
		}
	}
}

func TestSentimentBands(t *testing.T) {
	cases := []struct {
		strength float64
		want     string
	}{
		{-1, "hostile"},
		{-0.6, "hostile"},
		{-0.3, "cold"},
		{0, "neutral"},
		{0.3, "warm"},
		{0.6, "allied"},
		{1, "allied"},
	}
	for _, tc := range cases {
		r := New("cato", "caesar", TypePolitical, tc.strength, nil)
		if got := r.Sentiment(); got != tc.want {
			t.Errorf("Sentiment() at %v = %q, want %q", tc.strength, got, tc.want)
		}
	}
}

func TestPairCanonicalization(t *testing.T) {
	r := New("zeno", "appius", TypePersonal, 0.2, nil)
	if r.AgentA != "appius" || r.AgentB != "zeno" {
		t.Errorf("pair not canonical: (%s, %s)", r.AgentA, r.AgentB)
	}
}

func TestUpdateRequiresBothInvolved(t *testing.T) {
	r := New("cato", "caesar", TypePolitical, 0, nil)

	partial := event.New("speech", "cato", "", map[string]any{
		event.KeyRelationshipImpact: 0.5,
	})
	if r.Update(partial) {
		t.Error("relationship reacted to an event involving only one agent")
	}
	if r.Strength != 0 {
		t.Errorf("strength moved to %v without both agents involved", r.Strength)
	}

	full := event.New("debate", "cato", "caesar", map[string]any{
		event.KeyRelationshipImpact: -0.3,
	})
	if !r.Update(full) {
		t.Error("relationship ignored a relevant event")
	}
	if math.Abs(r.Strength - -0.3) > 1e-9 {
		t.Errorf("strength = %v, want -0.3", r.Strength)
	}
}

func TestUpdateViaParticipantsList(t *testing.T) {
	r := New("buyer-1", "seller-1", TypeBusiness, 0.3, nil)

	e := event.New("trade", "", "", map[string]any{
		event.KeyParticipants:       []string{"buyer-1", "seller-1"},
		event.KeyRelationshipImpact: 0.05,
	})
	if !r.Update(e) {
		t.Fatal("participants-only event not routed")
	}
	if math.Abs(r.Strength-0.35) > 1e-9 {
		t.Errorf("strength = %v, want 0.35", r.Strength)
	}
}

func TestZeroImpactDoesNotChange(t *testing.T) {
	r := New("a", "b", TypePersonal, 0.1, nil)
	e := event.New("greeting", "a", "b", nil)
	if r.Update(e) {
		t.Error("zero-impact event reported a change")
	}
	if len(r.History) != 0 {
		t.Error("zero-impact event appended history")
	}
}

func TestNormalizerRegressesToBaseline(t *testing.T) {
	r := New("a", "b", TypePolitical, 0, nil)
	r.SetNormalizer(&Normalizer{Baseline: 0, Factor: 0.5, Period: 2})

	boost := func() {
		e := event.New("speech", "a", "b", map[string]any{
			event.KeyRelationshipImpact: 0.4,
		})
		r.Update(e)
	}

	boost() // update 1: 0.4, no normalization
	if math.Abs(r.Strength-0.4) > 1e-9 {
		t.Fatalf("strength after first update = %v, want 0.4", r.Strength)
	}
	boost() // update 2: 0.8, then pulled halfway toward 0 -> 0.4
	if math.Abs(r.Strength-0.4) > 1e-9 {
		t.Errorf("strength after normalization = %v, want 0.4", r.Strength)
	}
}

func TestDecayTowardZero(t *testing.T) {
	pos := New("a", "b", TypePersonal, 0.6, nil)
	if !pos.Decay(24*time.Hour, 0.1) {
		t.Fatal("decay reported no change")
	}
	if pos.Strength >= 0.6 || pos.Strength < 0 {
		t.Errorf("positive strength decayed to %v", pos.Strength)
	}

	neg := New("a", "b", TypePolitical, -0.6, nil)
	neg.Decay(24*time.Hour, 0.1)
	if neg.Strength <= -0.6 || neg.Strength > 0 {
		t.Errorf("negative strength decayed to %v", neg.Strength)
	}

	// Massive elapsed time must stop at zero, not overshoot.
	over := New("a", "b", TypePersonal, 0.5, nil)
	over.Decay(1000*24*time.Hour, 0.5)
	if over.Strength != 0 {
		t.Errorf("decay overshot zero: %v", over.Strength)
	}
}

func TestRelationshipRoundTrip(t *testing.T) {
	r := New("cato", "caesar", TypePolitical, 0.25, map[string]any{
		"origin": "senate floor",
	})
	r.UpdateStrength(0.1, "supported motion")
	r.UpdateStrength(-0.4, "public insult")

	back := FromMap(r.ToMap())

	if back.ID != r.ID || back.AgentA != r.AgentA || back.AgentB != r.AgentB || back.Type != r.Type {
		t.Errorf("identity fields differ: %+v vs %+v", back, r)
	}
	if back.Strength != r.Strength {
		t.Errorf("strength = %v, want %v", back.Strength, r.Strength)
	}
	if back.Attributes["origin"] != "senate floor" {
		t.Errorf("attributes = %v", back.Attributes)
	}
	if len(back.History) != len(r.History) {
		t.Fatalf("history length = %d, want %d", len(back.History), len(r.History))
	}
	for i := range r.History {
		h, g := r.History[i], back.History[i]
		if g.Old != h.Old || g.New != h.New || g.Delta != h.Delta || g.Reason != h.Reason {
			t.Errorf("history entry %d = %+v, want %+v", i, g, h)
		}
		if !g.Timestamp.Equal(h.Timestamp) {
			t.Errorf("history timestamp %d = %v, want %v", i, g.Timestamp, h.Timestamp)
		}
	}
}
