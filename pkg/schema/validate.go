package schema

import "sort"

// Schema is a map of form field names to their expected types.
// Example: {"empleado": String(), "monto": Float(), "notas": Optional(String())}
type Schema map[string]Type

// Fields returns the schema field names in sorted order.
func (s Schema) Fields() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Validate checks if data conforms to the schema.
// Fields are checked in sorted order so the aggregated error is stable.
// Fields not declared in the schema are ignored.
func Validate(schema Schema, data map[string]any) error {
	if len(schema) == 0 {
		return nil
	}

	var errs []error
	for _, fieldName := range schema.Fields() {
		if err := validateField(fieldName, schema[fieldName], data); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return &AggregateError{Errors: errs}
	}
	return nil
}

// ValidateFields validates only specific fields from data against the schema.
// A field missing from the schema is an error.
func ValidateFields(schema Schema, data map[string]any, fields ...string) error {
	if len(fields) == 0 {
		return nil
	}

	var errs []error
	for _, fieldName := range fields {
		fieldType, exists := schema[fieldName]
		if !exists {
			errs = append(errs, &ValidationError{
				Key:    fieldName,
				Reason: "not defined in schema",
			})
			continue
		}
		if err := validateField(fieldName, fieldType, data); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return &AggregateError{Errors: errs}
	}
	return nil
}

func validateField(name string, t Type, data map[string]any) error {
	value, exists := data[name]
	if !exists {
		if IsOptional(t) {
			return nil
		}
		return &ValidationError{Key: name, Reason: "required"}
	}

	if err := t.Validate(value); err != nil {
		return &ValidationError{
			Key:    name,
			Reason: err.Error(),
			Value:  value,
		}
	}
	return nil
}
