// Package schema validates form data before it is mapped to engine parameters.
//
// A Schema maps field names to types. The built-in types are string, int, float,
// bool, date (time.Time or ISO-8601 text), any, and slices of those. Numeric types
// accept numeric strings because browsers submit form inputs as text.
// A trailing "?" marks a field optional: it may be absent or null.
//
//	s, err := schema.ParseTypeMap(map[string]string{
//	    "empleado": "string",
//	    "monto":    "float",
//	    "fecha":    "date?",
//	})
//
//	if err := schema.Validate(s, data); err != nil {
//	    msgs := schema.FieldMessages(err) // {"monto": "expected float, got \"abc\""}
//	}
//
// Custom validators can be registered for domain-specific checks with Custom.
package schema
