package senate

import (
	"testing"

	"go.uber.org/zap"

	"github.com/nidhogg/curia/internal/agent"
	"github.com/nidhogg/curia/internal/event"
)

func newSenator(t *testing.T, id, faction string) *Senator {
	t.Helper()
	a, err := NewSenator(agent.Config{
		ID:   id,
		Name: id,
		Attributes: map[string]any{
			"faction":            faction,
			"influence":          0.7,
			"speech_cooldown_ms": 0,
		},
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewSenator: %v", err)
	}
	return a.(*Senator)
}

func TestSenatorSpeaksOncePerDebate(t *testing.T) {
	s := newSenator(t, "cicero", FactionOptimates)

	s.ProcessEvent(event.New(KindDebateStart, "consul", "", map[string]any{"topic": "grain"}))
	e := s.GenerateAction()
	if e == nil || e.Kind != KindSpeech {
		t.Fatalf("expected speech, got %+v", e)
	}
	if e.String("topic") != "grain" || e.String("faction") != FactionOptimates {
		t.Errorf("speech payload = %+v", e.Payload)
	}
	if again := s.GenerateAction(); again != nil {
		t.Errorf("spoke twice on one topic: %+v", again)
	}

	// A new debate resets the floor.
	s.ProcessEvent(event.New(KindDebateStart, "consul", "", map[string]any{"topic": "land"}))
	if e := s.GenerateAction(); e == nil {
		t.Error("expected a speech on the new topic")
	}
}

func TestSenatorReactsAlongFactionLines(t *testing.T) {
	cases := []struct {
		name          string
		ownFaction    string
		speechFaction string
		wantImpact    float64
		wantReaction  bool
	}{
		{"same faction approves", FactionOptimates, FactionOptimates, reactionImpact, true},
		{"opposed faction objects", FactionOptimates, FactionPopulares, -reactionImpact, true},
		{"unaligned speaker ignored", FactionOptimates, "", 0, false},
		{"unaligned listener ignored", "", FactionPopulares, 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newSenator(t, "listener", tc.ownFaction)
			s.ProcessEvent(event.New(KindSpeech, "speaker", "", map[string]any{
				"text":    "a fine oration",
				"faction": tc.speechFaction,
			}))
			e := s.GenerateAction()
			if !tc.wantReaction {
				if e != nil {
					t.Fatalf("unexpected reaction: %+v", e)
				}
				return
			}
			if e == nil || e.Kind != KindReaction {
				t.Fatalf("expected reaction, got %+v", e)
			}
			if got := e.Float(event.KeyRelationshipImpact, 0); got != tc.wantImpact {
				t.Errorf("impact = %v, want %v", got, tc.wantImpact)
			}
			parts := e.Strings(event.KeyParticipants)
			if len(parts) != 2 || parts[0] != "listener" || parts[1] != "speaker" {
				t.Errorf("participants = %v", parts)
			}
		})
	}
}

func TestSenatorIgnoresOwnSpeech(t *testing.T) {
	s := newSenator(t, "cicero", FactionOptimates)
	s.ProcessEvent(event.New(KindSpeech, "cicero", "", map[string]any{
		"faction": FactionOptimates,
	}))
	if e := s.GenerateAction(); e != nil {
		t.Errorf("reacted to own speech: %+v", e)
	}
}

func TestSenatorRemembersSpeeches(t *testing.T) {
	s := newSenator(t, "cicero", FactionOptimates)
	s.ProcessEvent(event.New(KindSpeech, "cato", "", map[string]any{
		"text":    "Carthage must be destroyed",
		"faction": FactionOptimates,
	}))
	items := s.Memory.All()
	if len(items) != 1 {
		t.Fatalf("memories = %d, want 1", len(items))
	}
	if items[0].Content != "Carthage must be destroyed" {
		t.Errorf("content = %v", items[0].Content)
	}
	if items[0].Associations["source"] != "cato" {
		t.Errorf("associations = %v", items[0].Associations)
	}
}

func TestConsulRunsDocket(t *testing.T) {
	a, err := NewConsul(agent.Config{
		ID:   "consul",
		Name: "consul",
		Attributes: map[string]any{
			"docket": []any{"grain", "land"},
			"quorum": 2,
		},
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewConsul: %v", err)
	}
	c := a.(*Consul)

	open := c.GenerateAction()
	if open == nil || open.Kind != KindDebateStart || open.String("topic") != "grain" {
		t.Fatalf("expected debate_start on grain, got %+v", open)
	}
	if e := c.GenerateAction(); e != nil {
		t.Fatalf("opened a second debate while one is active: %+v", e)
	}

	c.ProcessEvent(event.New(KindSpeech, "cicero", "", map[string]any{"topic": "grain"}))
	c.ProcessEvent(event.New(KindSpeech, "cato", "", map[string]any{"topic": "grain"}))

	vote := c.GenerateAction()
	if vote == nil || vote.Kind != KindVote || vote.String("topic") != "grain" {
		t.Fatalf("expected vote, got %+v", vote)
	}
	end := c.GenerateAction()
	if end == nil || end.Kind != KindDebateEnd {
		t.Fatalf("expected debate_end, got %+v", end)
	}
	next := c.GenerateAction()
	if next == nil || next.Kind != KindDebateStart || next.String("topic") != "land" {
		t.Fatalf("expected debate_start on land, got %+v", next)
	}
}

func TestConsulIgnoresOffTopicSpeech(t *testing.T) {
	a, _ := NewConsul(agent.Config{
		ID:         "consul",
		Attributes: map[string]any{"docket": []any{"grain"}, "quorum": 1},
	}, zap.NewNop())
	c := a.(*Consul)
	c.GenerateAction() // open grain

	c.ProcessEvent(event.New(KindSpeech, "cicero", "", map[string]any{"topic": "weather"}))
	if e := c.GenerateAction(); e != nil {
		t.Errorf("off-topic speech closed the debate: %+v", e)
	}
}

func TestRegisterTypes(t *testing.T) {
	f := agent.NewFactory(zap.NewNop())
	if err := RegisterTypes(f); err != nil {
		t.Fatalf("RegisterTypes: %v", err)
	}
	a, err := f.Create("senator", agent.Config{ID: "cicero"}, "optimate")
	if err != nil {
		t.Fatalf("Create senator: %v", err)
	}
	if a.(*Senator).Faction() != FactionOptimates {
		t.Errorf("template did not set faction")
	}
}
