package mapping

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aretw0/formbridge/pkg/domain"
	"github.com/aretw0/formbridge/pkg/schema"
	"github.com/aretw0/formbridge/pkg/transform"
)

// Compiler turns declarative mapping definitions into executable plans.
type Compiler struct {
	registry   *transform.Registry
	serializer domain.Serializer
	now        func() time.Time
	newID      func() string
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithRegistry sets the transform registry used to resolve transform names.
func WithRegistry(r *transform.Registry) Option {
	return func(c *Compiler) {
		c.registry = r
	}
}

// WithSerializer sets the value serialization policy of compiled plans.
func WithSerializer(s domain.Serializer) Option {
	return func(c *Compiler) {
		c.serializer = s
	}
}

// WithClock sets the time source for timestamp hidden parameters.
func WithClock(now func() time.Time) Option {
	return func(c *Compiler) {
		c.now = now
	}
}

// WithIDGenerator sets the submission ID generator.
func WithIDGenerator(fn func() string) Option {
	return func(c *Compiler) {
		c.newID = fn
	}
}

// NewCompiler creates a compiler using the built-in transforms,
// the default serializer, the wall clock and random UUIDs.
func NewCompiler(opts ...Option) *Compiler {
	c := &Compiler{
		registry:   transform.Default(),
		serializer: domain.DefaultSerializer,
		now:        time.Now,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile validates def and resolves its transforms and schema.
// Every failure wraps domain.ErrInvalidMapping.
func (c *Compiler) Compile(def domain.MappingDefinition) (*Plan, error) {
	if def.Name == "" {
		return nil, invalid(def.Name, "name is required")
	}
	if def.Event == "" {
		return nil, invalid(def.Name, "event is required")
	}

	mode := def.Mode
	if mode == "" {
		mode = domain.ModeSelected
	}
	switch mode {
	case domain.ModeSelected:
	case domain.ModeAll:
		if len(def.Fields) > 0 {
			return nil, invalid(def.Name, "fields cannot be declared in mode %q", domain.ModeAll)
		}
	default:
		return nil, invalid(def.Name, "unknown mode %q", def.Mode)
	}

	plan := &Plan{
		def:        def,
		mode:       mode,
		serializer: c.serializer,
		now:        c.now,
		newID:      c.newID,
	}
	plan.def.Mode = mode

	seen := make(map[string]bool, len(def.Fields))
	for i, f := range def.Fields {
		if f.Field == "" || f.Parameter == "" {
			return nil, invalid(def.Name, "fields[%d]: field and parameter are required", i)
		}
		if seen[f.Parameter] {
			return nil, invalid(def.Name, "fields[%d]: parameter %q declared twice", i, f.Parameter)
		}
		seen[f.Parameter] = true

		fn, err := c.registry.Build(f.Transform)
		if err != nil {
			return nil, invalid(def.Name, "fields[%d] (%s): %v", i, f.Field, err)
		}
		plan.visible = append(plan.visible, domain.FieldRule{
			Field:         f.Field,
			ParameterName: f.Parameter,
			Transform:     fn,
			IsVariable:    f.Variable,
		})
	}

	hiddenSeen := make(map[string]bool, len(def.Hidden))
	for i, h := range def.Hidden {
		if h.Parameter == "" {
			return nil, invalid(def.Name, "hidden[%d]: parameter is required", i)
		}
		if hiddenSeen[h.Parameter] {
			return nil, invalid(def.Name, "hidden[%d]: parameter %q declared twice", i, h.Parameter)
		}
		hiddenSeen[h.Parameter] = true

		if !knownSource(h.Source) {
			return nil, invalid(def.Name, "hidden[%d]: unknown source %q", i, h.Source)
		}
		fn, err := c.registry.Build(h.Transform)
		if err != nil {
			return nil, invalid(def.Name, "hidden[%d] (%s): %v", i, h.Parameter, err)
		}
		plan.hidden = append(plan.hidden, domain.FieldRule{
			Field:         h.Parameter,
			ParameterName: h.Parameter,
			Transform:     fn,
			IsVariable:    h.Variable,
		})
		plan.sources = append(plan.sources, h)
	}

	if len(def.Schema) > 0 {
		s, err := schema.ParseTypeMap(def.Schema)
		if err != nil {
			return nil, invalid(def.Name, "schema: %v", err)
		}
		plan.schema = s
	}

	return plan, nil
}

func knownSource(s string) bool {
	switch s {
	case domain.SourceStatic, domain.SourceTimestamp, domain.SourceUser,
		domain.SourceDevice, domain.SourceSubmissionID:
		return true
	}
	return false
}

func invalid(name, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", domain.ErrInvalidMapping, name, fmt.Sprintf(format, args...))
}
