// Package scenario loads declarative world setups from YAML: the agent
// roster, pre-seeded relationships, and scripted opening events.
package scenario

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/nidhogg/curia/internal/agent"
	"github.com/nidhogg/curia/internal/event"
	"github.com/nidhogg/curia/internal/relation"
)

// Scenario is a declarative description of a world's starting state.
type Scenario struct {
	Name          string             `yaml:"name"`
	Description   string             `yaml:"description"`
	Agents        []AgentSpec        `yaml:"agents"`
	Relationships []RelationshipSpec `yaml:"relationships"`
	Events        []EventSpec        `yaml:"events"`
}

// AgentSpec names a factory type plus its configuration.
type AgentSpec struct {
	Type          string         `yaml:"type"`
	ID            string         `yaml:"id"`
	Name          string         `yaml:"name"`
	Templates     []string       `yaml:"templates"`
	Attributes    map[string]any `yaml:"attributes"`
	Subscriptions []string       `yaml:"subscriptions"`
}

// RelationshipSpec seeds one edge between two roster agents.
type RelationshipSpec struct {
	A        string         `yaml:"a"`
	B        string         `yaml:"b"`
	Type     string         `yaml:"type"`
	Strength float64        `yaml:"strength"`
	Attrs    map[string]any `yaml:"attributes"`
}

// EventSpec is a scripted event published once the world is assembled.
type EventSpec struct {
	Kind    string         `yaml:"kind"`
	Source  string         `yaml:"source"`
	Target  string         `yaml:"target"`
	Payload map[string]any `yaml:"payload"`
}

// Load reads and validates a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario %s: %w", path, err)
	}
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return &s, nil
}

// Validate checks internal consistency: unique agent IDs and
// relationships/events that reference roster members.
func (s *Scenario) Validate() error {
	if len(s.Agents) == 0 {
		return fmt.Errorf("no agents defined")
	}
	ids := make(map[string]bool, len(s.Agents))
	for i, a := range s.Agents {
		if a.Type == "" {
			return fmt.Errorf("agent %d: missing type", i)
		}
		if a.ID == "" {
			return fmt.Errorf("agent %d: missing id", i)
		}
		if ids[a.ID] {
			return fmt.Errorf("duplicate agent id %q", a.ID)
		}
		ids[a.ID] = true
	}
	for i, r := range s.Relationships {
		if !ids[r.A] || !ids[r.B] {
			return fmt.Errorf("relationship %d: %q-%q references unknown agent", i, r.A, r.B)
		}
		if r.Type == "" {
			return fmt.Errorf("relationship %d: missing type", i)
		}
	}
	for i, e := range s.Events {
		if e.Kind == "" {
			return fmt.Errorf("event %d: missing kind", i)
		}
	}
	return nil
}

// Apply builds the scenario into a live world: agents through the
// factory into the manager, seed relationships, then scripted events
// onto the bus in file order.
func (s *Scenario) Apply(factory *agent.Factory, agents *agent.Manager, relations *relation.Manager, bus *event.Bus, logger *zap.Logger) error {
	for _, spec := range s.Agents {
		a, err := factory.Create(spec.Type, agent.Config{
			ID:            spec.ID,
			Name:          spec.Name,
			Attributes:    spec.Attributes,
			Subscriptions: spec.Subscriptions,
		}, spec.Templates...)
		if err != nil {
			return fmt.Errorf("create agent %s: %w", spec.ID, err)
		}
		if err := agents.Register(a); err != nil {
			return fmt.Errorf("register agent %s: %w", spec.ID, err)
		}
	}
	logger.Info("scenario roster created",
		zap.String("scenario", s.Name),
		zap.Int("agents", agents.Len()))

	for _, spec := range s.Relationships {
		if _, err := relations.Create(spec.A, spec.B, spec.Type, spec.Strength, spec.Attrs); err != nil {
			return fmt.Errorf("seed relationship %s-%s: %w", spec.A, spec.B, err)
		}
	}

	for _, spec := range s.Events {
		source := spec.Source
		if source == "" {
			source = "scenario"
		}
		bus.Publish(event.New(spec.Kind, source, spec.Target, spec.Payload))
	}
	return nil
}
