package domain

import (
	"errors"
	"fmt"
	"sort"
)

// ToAllParameters emits one Input parameter per form field using the default serializer.
// Use it for the "send everything" strategy.
func ToAllParameters(data FormData) ([]Parameter, error) {
	return DefaultSerializer.ToAllParameters(data)
}

// ToSelectedParameters emits one parameter per mapping rule using the default serializer.
func ToSelectedParameters(mapping FieldMapping, data FormData) ([]Parameter, error) {
	return DefaultSerializer.ToSelectedParameters(mapping, data)
}

// ToAllParameters emits one Input parameter per form field, ordered by field name.
// Neither argument is modified.
func (s Serializer) ToAllParameters(data FormData) ([]Parameter, error) {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	params := make([]Parameter, 0, len(keys))
	for _, k := range keys {
		value, err := s.stringify(data[k])
		if errors.Is(err, errOmit) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		params = append(params, Parameter{Name: k, Value: value, Direction: DirectionInput})
	}
	return params, nil
}

// ToSelectedParameters walks the mapping (not the form data) in order.
// Form fields absent from the mapping never reach the output; mapped fields
// missing from the form data are read as Undefined.
// The first transform or serialization failure is returned as a *TransformError.
func (s Serializer) ToSelectedParameters(mapping FieldMapping, data FormData) ([]Parameter, error) {
	params := make([]Parameter, 0, len(mapping))
	for _, rule := range mapping {
		raw, ok := data[rule.Field]
		if !ok {
			raw = Undefined
		}

		value := raw
		if rule.Transform != nil {
			var err error
			value, err = rule.Transform(raw)
			if err != nil {
				return nil, &TransformError{Field: rule.Field, Parameter: rule.ParameterName, Err: err}
			}
		}

		str, err := s.stringify(value)
		if errors.Is(err, errOmit) {
			continue
		}
		if err != nil {
			return nil, &TransformError{Field: rule.Field, Parameter: rule.ParameterName, Err: err}
		}

		params = append(params, Parameter{
			Name:      rule.ParameterName,
			Value:     str,
			Direction: rule.Direction(),
		})
	}
	return params, nil
}

// MergeParameterBatches concatenates batches in argument order.
// Conventionally the visible batch comes first, followed by hidden batches.
// Duplicate names are kept.
func MergeParameterBatches(batches ...[]Parameter) []Parameter {
	n := 0
	for _, b := range batches {
		n += len(b)
	}
	out := make([]Parameter, 0, n)
	for _, b := range batches {
		out = append(out, b...)
	}
	return out
}

// DuplicateNames returns the parameter names that occur more than once,
// in order of their second occurrence.
func DuplicateNames(params []Parameter) []string {
	seen := make(map[string]int, len(params))
	var dups []string
	for _, p := range params {
		seen[p.Name]++
		if seen[p.Name] == 2 {
			dups = append(dups, p.Name)
		}
	}
	return dups
}
