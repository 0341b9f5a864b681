// Package senate implements the deliberative-assembly agents: senators
// who debate, react, and vote, and a consul who presides over the
// docket. Reactions carry relationship impact so the social graph
// shifts with every exchange.
package senate

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/curia/internal/agent"
	"github.com/nidhogg/curia/internal/event"
	"github.com/nidhogg/curia/internal/relation"
)

// Event kinds used on the senate floor.
const (
	KindDebateStart  = "debate_start"
	KindDebateEnd    = "debate_end"
	KindSpeech       = "speech"
	KindInterjection = "interjection"
	KindVote         = "vote"
	KindReaction     = "reaction"
)

// Well-known factions. Agents with other faction strings are treated as
// unaligned.
const (
	FactionOptimates = "optimates"
	FactionPopulares = "populares"
)

const (
	speechCooldown   = 2 * time.Second
	reactionImpact   = 0.05
	speechImportance = 0.6
	voteImportance   = 0.8
)

// NewPoliticalNormalizer returns the baseline-regression strategy for
// political edges: grudges and alliances drift back toward neutral
// every ten updates.
func NewPoliticalNormalizer() *relation.Normalizer {
	return &relation.Normalizer{Baseline: 0, Factor: 0.1, Period: 10}
}

// factionAlignment scores how two factions sit relative to each other:
// +1 same bench, -1 opposed, 0 when either is unaligned.
func factionAlignment(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	aligned := func(f string) bool { return f == FactionOptimates || f == FactionPopulares }
	if aligned(a) && aligned(b) {
		return -1
	}
	return 0
}

// Senator debates the active topic, reacts to colleagues' speeches along
// faction lines, and records what it hears.
type Senator struct {
	agent.Core

	cooldown time.Duration
	topic    string
	spoke    bool
	pending  []event.Event
}

// NewSenator builds a senator from factory config. Recognized attributes:
// "faction" (string), "influence" (0-1, scales memory importance of the
// senator's own speeches), and "speech_cooldown_ms".
func NewSenator(cfg agent.Config, logger *zap.Logger) (agent.Agent, error) {
	subs := cfg.Subscriptions
	if len(subs) == 0 {
		subs = []string{KindDebateStart, KindDebateEnd, KindSpeech, KindInterjection, KindVote}
	}
	s := &Senator{
		Core:     agent.NewCore(cfg.ID, cfg.Name, cfg.Attributes, subs, logger),
		cooldown: speechCooldown,
	}
	if ms := s.AttrFloat("speech_cooldown_ms", -1); ms >= 0 {
		s.cooldown = time.Duration(ms) * time.Millisecond
	}
	return s, nil
}

// Faction returns the senator's declared faction, if any.
func (s *Senator) Faction() string { return s.AttrString("faction", "") }

// ProcessEvent reacts to floor activity. Speeches from other senators
// queue a reaction event carrying relationship impact.
func (s *Senator) ProcessEvent(e event.Event) {
	switch e.Kind {
	case KindDebateStart:
		s.topic = e.String("topic")
		s.spoke = false
		s.Remember(e, 0.5, 0.1)

	case KindDebateEnd:
		s.topic = ""

	case KindSpeech, KindInterjection:
		if e.Source == s.ID() {
			return
		}
		s.Remember(e, speechImportance, 0.1)
		s.queueReaction(e)

	case KindVote:
		s.Remember(e, voteImportance, 0.05)
	}
}

func (s *Senator) queueReaction(speech event.Event) {
	align := factionAlignment(s.Faction(), speech.String("faction"))
	if align == 0 {
		return
	}
	verdict := "approves"
	if align < 0 {
		verdict = "objects"
	}
	s.pending = append(s.pending, event.New(KindReaction, s.ID(), speech.Source, map[string]any{
		"text":                      fmt.Sprintf("%s %s of the speech by %s", s.Name(), verdict, speech.Source),
		event.KeyParticipants:       []string{s.ID(), speech.Source},
		event.KeyRelationshipImpact: align * reactionImpact,
	}))
}

// GenerateAction drains queued reactions first, then speaks once per
// active debate when the cooldown allows.
func (s *Senator) GenerateAction() *event.Event {
	if len(s.pending) > 0 {
		e := s.pending[0]
		s.pending = s.pending[1:]
		return &e
	}
	if s.topic == "" || s.spoke || !s.Ready(s.cooldown) {
		return nil
	}
	s.spoke = true
	e := event.New(KindSpeech, s.ID(), "", map[string]any{
		"text":    fmt.Sprintf("%s addresses the house on %s", s.Name(), s.topic),
		"topic":   s.topic,
		"faction": s.Faction(),
	})
	s.Memory.Record(e.String("text"), s.AttrFloat("influence", 0.5), 0.1,
		map[string]any{"event_kind": KindSpeech, "topic": s.topic})
	return &e
}

// Consul presides: it opens debates from its docket, waits for the house
// to speak, then calls the vote and closes the floor.
type Consul struct {
	agent.Core

	docket   []string
	active   string
	speeches int
	quorum   int
	pending  []event.Event
}

// NewConsul builds a consul. The "docket" attribute ([]string or []any)
// lists topics in order; "quorum" (int) is the number of speeches that
// closes a debate, default 3.
func NewConsul(cfg agent.Config, logger *zap.Logger) (agent.Agent, error) {
	c := &Consul{
		Core:   agent.NewCore(cfg.ID, cfg.Name, cfg.Attributes, []string{KindSpeech}, logger),
		quorum: 3,
	}
	if q := c.AttrFloat("quorum", 0); q > 0 {
		c.quorum = int(q)
	}
	switch d := c.Attributes["docket"].(type) {
	case []string:
		c.docket = d
	case []any:
		for _, v := range d {
			if t, ok := v.(string); ok {
				c.docket = append(c.docket, t)
			}
		}
	}
	return c, nil
}

// ProcessEvent counts speeches on the active topic.
func (c *Consul) ProcessEvent(e event.Event) {
	if e.Kind != KindSpeech || c.active == "" {
		return
	}
	if e.String("topic") != c.active {
		return
	}
	c.speeches++
	if c.speeches >= c.quorum {
		c.pending = append(c.pending,
			event.New(KindVote, c.ID(), "", map[string]any{
				"text":  fmt.Sprintf("the house divides on %s", c.active),
				"topic": c.active,
			}),
			event.New(KindDebateEnd, c.ID(), "", map[string]any{
				"topic": c.active,
			}),
		)
		c.active = ""
		c.speeches = 0
	}
}

// GenerateAction emits queued vote/close events, then opens the next
// docket item when the floor is clear.
func (c *Consul) GenerateAction() *event.Event {
	if len(c.pending) > 0 {
		e := c.pending[0]
		c.pending = c.pending[1:]
		return &e
	}
	if c.active != "" || len(c.docket) == 0 {
		return nil
	}
	c.active = c.docket[0]
	c.docket = c.docket[1:]
	e := event.New(KindDebateStart, c.ID(), "", map[string]any{
		"text":  fmt.Sprintf("%s opens the debate on %s", c.Name(), c.active),
		"topic": c.active,
	})
	return &e
}

// RegisterTypes wires the senate agent constructors and faction
// templates into a factory.
func RegisterTypes(f *agent.Factory) error {
	if err := f.RegisterType("senator", NewSenator); err != nil {
		return err
	}
	if err := f.RegisterType("consul", NewConsul); err != nil {
		return err
	}
	if err := f.RegisterTemplate("optimate", func(cfg agent.Config) agent.Config {
		if cfg.Attributes == nil {
			cfg.Attributes = make(map[string]any)
		}
		cfg.Attributes["faction"] = FactionOptimates
		return cfg
	}); err != nil {
		return err
	}
	return f.RegisterTemplate("populare", func(cfg agent.Config) agent.Config {
		if cfg.Attributes == nil {
			cfg.Attributes = make(map[string]any)
		}
		cfg.Attributes["faction"] = FactionPopulares
		return cfg
	})
}
