package domain

import (
	"errors"
	"fmt"
)

// ErrUnsupportedValue is returned when a value has no string representation.
var ErrUnsupportedValue = errors.New("unsupported value")

// ErrDraftNotFound is returned when a draft ID cannot be found in the store.
var ErrDraftNotFound = errors.New("draft not found")

// ErrMappingNotFound is returned when a mapping definition does not exist.
var ErrMappingNotFound = errors.New("mapping not found")

// ErrInvalidMapping is returned when a mapping definition cannot be compiled.
var ErrInvalidMapping = errors.New("invalid mapping")

// TransformError reports a failure while producing the value of one parameter,
// either from a transform or from serializing its result.
type TransformError struct {
	Field     string
	Parameter string
	Err       error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("field %q (parameter %q): %v", e.Field, e.Parameter, e.Err)
}

func (e *TransformError) Unwrap() error {
	return e.Err
}
