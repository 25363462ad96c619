package domain

// Mapping modes.
const (
	ModeSelected = "selected" // Only mapped fields are sent (default)
	ModeAll      = "all"      // Every form field is sent as an Input parameter
)

// Hidden parameter sources.
const (
	SourceStatic       = "static"
	SourceTimestamp    = "timestamp"
	SourceUser         = "user"
	SourceDevice       = "device"
	SourceSubmissionID = "submission_id"
)

// MappingDefinition is the declarative description of how one form is sent to the engine.
// It is usually loaded from a YAML, JSON or Markdown front matter file.
type MappingDefinition struct {
	Name        string `json:"name" yaml:"name" mapstructure:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty" mapstructure:"description"`

	// Event is the engine event raised for new instances.
	Event string `json:"event" yaml:"event" mapstructure:"event"`

	// Mode is ModeSelected or ModeAll.
	Mode string `json:"mode,omitempty" yaml:"mode,omitempty" mapstructure:"mode"`

	Fields []FieldDefinition  `json:"fields,omitempty" yaml:"fields,omitempty" mapstructure:"fields"`
	Hidden []HiddenDefinition `json:"hidden,omitempty" yaml:"hidden,omitempty" mapstructure:"hidden"`

	// Schema maps field names to type names (see pkg/schema) and is checked before mapping.
	Schema map[string]string `json:"schema,omitempty" yaml:"schema,omitempty" mapstructure:"schema"`
}

// FieldDefinition declares one visible field rule.
type FieldDefinition struct {
	Field     string `json:"field" yaml:"field" mapstructure:"field"`
	Parameter string `json:"parameter" yaml:"parameter" mapstructure:"parameter"`
	Variable  bool   `json:"variable,omitempty" yaml:"variable,omitempty" mapstructure:"variable"`

	// Transform is a transform name, a {name, args} object, or a list of either.
	Transform any `json:"transform,omitempty" yaml:"transform,omitempty" mapstructure:"transform"`
}

// HiddenDefinition declares one computed parameter appended after the visible batch.
type HiddenDefinition struct {
	Parameter string `json:"parameter" yaml:"parameter" mapstructure:"parameter"`
	Source    string `json:"source" yaml:"source" mapstructure:"source"`
	// Value is the literal for SourceStatic.
	Value     string `json:"value,omitempty" yaml:"value,omitempty" mapstructure:"value"`
	Variable  bool   `json:"variable,omitempty" yaml:"variable,omitempty" mapstructure:"variable"`
	Transform any    `json:"transform,omitempty" yaml:"transform,omitempty" mapstructure:"transform"`
}
