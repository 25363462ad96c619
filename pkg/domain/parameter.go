package domain

// Direction tags a Parameter for the receiving engine.
type Direction string

const (
	DirectionInput    Direction = "Input"    // Ordinary process parameter
	DirectionVariable Direction = "Variable" // Process-scoped variable
)

// Parameter is the unit sent to the BPM engine.
// Values are always serialized to string before transmission.
type Parameter struct {
	Name      string    `json:"name" yaml:"name" mapstructure:"name"`
	Value     string    `json:"value" yaml:"value" mapstructure:"value"`
	Direction Direction `json:"direction" yaml:"direction" mapstructure:"direction"`
}

// FormData maps a form field name to its current value.
// It is produced by form state and never transmitted directly.
type FormData map[string]any

// Clone returns a shallow copy of the form data.
func (d FormData) Clone() FormData {
	if d == nil {
		return nil
	}
	out := make(FormData, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Transform converts a field value before serialization.
// Implementations must be deterministic and free of side effects.
type Transform func(value any) (any, error)

// FieldRule maps a single form field to an outgoing parameter.
type FieldRule struct {
	// Field is the FormData key to read.
	Field string
	// ParameterName is the outgoing Parameter.Name.
	ParameterName string
	// Transform is applied before serialization. Nil means identity.
	Transform Transform
	// IsVariable selects DirectionVariable instead of DirectionInput.
	IsVariable bool
}

// Direction returns the direction emitted for this rule.
func (r FieldRule) Direction() Direction {
	if r.IsVariable {
		return DirectionVariable
	}
	return DirectionInput
}

// FieldMapping is the ordered set of rules used in selective mode.
// Output order follows slice order.
type FieldMapping []FieldRule

// File describes an uploaded file held in form state.
// Only its name travels to the engine.
type File struct {
	Name        string `json:"name"`
	Size        int64  `json:"size,omitempty"`
	ContentType string `json:"content_type,omitempty"`
}

type undefined struct{}

func (undefined) String() string { return "undefined" }

// Undefined is the value seen by transforms and the serializer when a mapped
// field is absent from the form data.
var Undefined any = undefined{}

// IsUndefined reports whether v is the Undefined sentinel.
func IsUndefined(v any) bool {
	_, ok := v.(undefined)
	return ok
}
