package transform

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Spec names a transform and its arguments.
type Spec struct {
	Name string         `json:"name" yaml:"name" mapstructure:"name"`
	Args map[string]any `json:"args,omitempty" yaml:"args,omitempty" mapstructure:"args"`
}

// ParseSpecs normalizes the transform declarations accepted in mapping files:
//
//	transform: upper
//	transform: {name: fixed, args: {digits: 2}}
//	transform: {fixed: {digits: 2}}
//	transform: [trim, upper]
func ParseSpecs(raw any) ([]Spec, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case string:
		if v == "" {
			return nil, nil
		}
		return []Spec{{Name: v}}, nil
	case Spec:
		return []Spec{v}, nil
	case []Spec:
		return v, nil
	case []string:
		out := make([]Spec, 0, len(v))
		for _, name := range v {
			out = append(out, Spec{Name: name})
		}
		return out, nil
	case []any:
		var out []Spec
		for i, item := range v {
			specs, err := ParseSpecs(item)
			if err != nil {
				return nil, fmt.Errorf("item %d: %w", i, err)
			}
			out = append(out, specs...)
		}
		return out, nil
	case map[string]any:
		s, err := parseMap(v)
		if err != nil {
			return nil, err
		}
		return []Spec{s}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported declaration %T", ErrInvalidSpec, raw)
	}
}

func parseMap(m map[string]any) (Spec, error) {
	if _, ok := m["name"]; ok {
		var s Spec
		if err := mapstructure.Decode(m, &s); err != nil {
			return Spec{}, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
		}
		if s.Name == "" {
			return Spec{}, fmt.Errorf("%w: empty name", ErrInvalidSpec)
		}
		return s, nil
	}

	// Shorthand: a single key naming the transform, holding its args.
	if len(m) != 1 {
		return Spec{}, fmt.Errorf("%w: expected a name key or a single transform key", ErrInvalidSpec)
	}
	for name, args := range m {
		s := Spec{Name: name}
		switch a := args.(type) {
		case nil:
		case map[string]any:
			s.Args = a
		default:
			return Spec{}, fmt.Errorf("%w: args for %s must be a map, got %T", ErrInvalidSpec, name, args)
		}
		return s, nil
	}
	return Spec{}, nil
}

// decodeArgs fills out from a transform's args, converting "2" to 2 and the like.
func decodeArgs(args map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(args)
}
