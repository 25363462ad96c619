package domain

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"time"
)

// NullPolicy decides how nil and Undefined values are serialized.
type NullPolicy int

const (
	// NullLiteral serializes nil as "null" and Undefined as "undefined".
	NullLiteral NullPolicy = iota
	// NullEmpty serializes both as the empty string.
	NullEmpty
	// NullOmit drops the parameter entirely.
	// In selective mode this relaxes the one-parameter-per-rule guarantee.
	NullOmit
)

// ParseNullPolicy converts a configuration string to a NullPolicy.
func ParseNullPolicy(s string) (NullPolicy, error) {
	switch s {
	case "", "literal":
		return NullLiteral, nil
	case "empty":
		return NullEmpty, nil
	case "omit":
		return NullOmit, nil
	default:
		return NullLiteral, fmt.Errorf("unknown null policy %q (want literal, empty or omit)", s)
	}
}

func (p NullPolicy) String() string {
	switch p {
	case NullEmpty:
		return "empty"
	case NullOmit:
		return "omit"
	default:
		return "literal"
	}
}

// Serializer turns arbitrary form values into parameter strings.
// The zero value is ready to use.
type Serializer struct {
	Nulls NullPolicy
	// TimeLayout formats time.Time values. Defaults to time.RFC3339Nano.
	TimeLayout string
}

// DefaultSerializer is used by the package-level exchange functions.
var DefaultSerializer = Serializer{}

// errOmit is returned internally when NullOmit asks to drop a value.
var errOmit = errors.New("omit")

// Stringify serializes v with the DefaultSerializer.
func Stringify(v any) (string, error) {
	return DefaultSerializer.Stringify(v)
}

// Stringify serializes v. Under NullOmit, nil and Undefined yield "" with no error;
// use the exchange functions to get the omission behaviour.
func (s Serializer) Stringify(v any) (string, error) {
	out, err := s.stringify(v)
	if err == errOmit {
		return "", nil
	}
	return out, err
}

func (s Serializer) stringify(v any) (string, error) {
	if v == nil || IsUndefined(v) {
		switch s.Nulls {
		case NullEmpty:
			return "", nil
		case NullOmit:
			return "", errOmit
		}
		if v == nil {
			return "null", nil
		}
		return "undefined", nil
	}

	switch t := v.(type) {
	case string:
		return t, nil
	case json.Number:
		return t.String(), nil
	case bool:
		return strconv.FormatBool(t), nil
	case int:
		return strconv.Itoa(t), nil
	case int8:
		return strconv.FormatInt(int64(t), 10), nil
	case int16:
		return strconv.FormatInt(int64(t), 10), nil
	case int32:
		return strconv.FormatInt(int64(t), 10), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case uint:
		return strconv.FormatUint(uint64(t), 10), nil
	case uint8:
		return strconv.FormatUint(uint64(t), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(t), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(t), 10), nil
	case uint64:
		return strconv.FormatUint(t, 10), nil
	case float32:
		return formatFloat(float64(t), 32), nil
	case float64:
		return formatFloat(t, 64), nil
	case time.Time:
		layout := s.TimeLayout
		if layout == "" {
			layout = time.RFC3339Nano
		}
		return t.Format(layout), nil
	case File:
		return t.Name, nil
	case *File:
		if t == nil {
			return s.stringify(nil)
		}
		return t.Name, nil
	case []byte:
		return base64.StdEncoding.EncodeToString(t), nil
	case fmt.Stringer:
		return t.String(), nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			return s.stringify(nil)
		}
		return s.stringify(rv.Elem().Interface())
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		b, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("%w: %T: %v", ErrUnsupportedValue, v, err)
		}
		return string(b), nil
	case reflect.String:
		return rv.String(), nil
	case reflect.Bool:
		return strconv.FormatBool(rv.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), nil
	case reflect.Float32, reflect.Float64:
		return formatFloat(rv.Float(), 64), nil
	}

	return "", fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
}

func formatFloat(f float64, bits int) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return strconv.FormatFloat(f, 'f', -1, bits)
}
