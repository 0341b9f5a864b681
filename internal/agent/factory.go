package agent

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

var (
	// ErrUnknownAgentType is returned when creating an unregistered type.
	ErrUnknownAgentType = errors.New("unknown agent type")
	// ErrDuplicateRegistration is returned on re-registering a type or
	// template name.
	ErrDuplicateRegistration = errors.New("already registered")
	// ErrUnknownTemplate is returned when applying an unregistered template.
	ErrUnknownTemplate = errors.New("unknown template")
)

// Config is the construction input for an agent.
type Config struct {
	ID            string
	Name          string
	Attributes    map[string]any
	Subscriptions []string
}

// Constructor builds a concrete agent from a config.
type Constructor func(cfg Config, logger *zap.Logger) (Agent, error)

// Template transforms a config before construction (preset attribute
// bundles, subscription sets).
type Template func(cfg Config) Config

// Factory maps string type names to constructors and named templates.
// Registration conflicts and unknown names are configuration errors and
// fail fast.
type Factory struct {
	constructors map[string]Constructor
	templates    map[string]Template
	logger       *zap.Logger
}

// NewFactory creates an empty factory.
func NewFactory(logger *zap.Logger) *Factory {
	return &Factory{
		constructors: make(map[string]Constructor),
		templates:    make(map[string]Template),
		logger:       logger,
	}
}

// RegisterType adds a constructor under a type name.
func (f *Factory) RegisterType(typeName string, ctor Constructor) error {
	if typeName == "" || ctor == nil {
		return fmt.Errorf("invalid registration for type %q", typeName)
	}
	if _, exists := f.constructors[typeName]; exists {
		return fmt.Errorf("agent type %q: %w", typeName, ErrDuplicateRegistration)
	}
	f.constructors[typeName] = ctor
	return nil
}

// RegisterTemplate adds a named config transform.
func (f *Factory) RegisterTemplate(name string, tmpl Template) error {
	if name == "" || tmpl == nil {
		return fmt.Errorf("invalid template registration %q", name)
	}
	if _, exists := f.templates[name]; exists {
		return fmt.Errorf("template %q: %w", name, ErrDuplicateRegistration)
	}
	f.templates[name] = tmpl
	return nil
}

// Types returns the registered type names.
func (f *Factory) Types() []string {
	names := make([]string, 0, len(f.constructors))
	for name := range f.constructors {
		names = append(names, name)
	}
	return names
}

// Create builds an agent of the named type, applying the given templates
// to the config first, in order.
func (f *Factory) Create(typeName string, cfg Config, templates ...string) (Agent, error) {
	ctor, ok := f.constructors[typeName]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAgentType, typeName)
	}
	for _, name := range templates {
		tmpl, ok := f.templates[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownTemplate, name)
		}
		cfg = tmpl(cfg)
	}
	a, err := ctor(cfg, f.logger)
	if err != nil {
		return nil, fmt.Errorf("construct %s agent: %w", typeName, err)
	}
	f.logger.Debug("agent created",
		zap.String("type", typeName),
		zap.String("id", a.ID()),
		zap.String("name", a.Name()))
	return a, nil
}
