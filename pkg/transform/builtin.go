package transform

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/antonmedv/expr"
	"github.com/antonmedv/expr/vm"
	"github.com/relvacode/iso8601"

	"github.com/aretw0/formbridge/pkg/domain"
)

// RegisterBuiltins adds the standard transforms to r.
func RegisterBuiltins(r *Registry) {
	r.Register("upper", stringFunc(strings.ToUpper))
	r.Register("lower", stringFunc(strings.ToLower))
	r.Register("trim", stringFunc(strings.TrimSpace))
	r.Register("fixed", newFixed)
	r.Register("number", noArgs(toNumber))
	r.Register("integer", noArgs(toInteger))
	r.Register("bool", newBool)
	r.Register("date", newDate)
	r.Register("default", newDefault)
	r.Register("join", newJoin)
	r.Register("expr", newExpr)
}

// isMissing reports values that most transforms hand through untouched,
// leaving the serializer to apply its null policy.
func isMissing(v any) bool {
	return v == nil || domain.IsUndefined(v)
}

func noArgs(fn domain.Transform) Factory {
	return func(args map[string]any) (domain.Transform, error) {
		if len(args) > 0 {
			return nil, fmt.Errorf("takes no arguments")
		}
		return func(v any) (any, error) {
			if isMissing(v) {
				return v, nil
			}
			return fn(v)
		}, nil
	}
}

func stringFunc(fn func(string) string) Factory {
	return noArgs(func(v any) (any, error) {
		s, err := domain.Stringify(v)
		if err != nil {
			return nil, err
		}
		return fn(s), nil
	})
}

// toFloat parses the numeric representations a form can produce.
func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		return strconv.ParseFloat(strings.TrimSpace(n), 64)
	case bool:
		return 0, fmt.Errorf("expected a number, got bool")
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.String:
		return strconv.ParseFloat(strings.TrimSpace(rv.String()), 64)
	}
	return 0, fmt.Errorf("expected a number, got %T", v)
}

// toFinite is toFloat restricted to finite values; "Inf" and "NaN" parse as
// floats but have no engine representation.
func toFinite(v any) (float64, error) {
	f, err := toFloat(v)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("expected a finite number, got %v", f)
	}
	return f, nil
}

func toNumber(v any) (any, error) {
	return toFinite(v)
}

// Bounds of int64 as floats; 1<<63 itself does not fit.
const (
	minInt64Float = -(1 << 63)
	maxInt64Float = 1 << 63
)

func toInteger(v any) (any, error) {
	var digits string
	switch n := v.(type) {
	case string:
		digits = strings.TrimSpace(n)
	case json.Number:
		digits = n.String()
	}
	if digits != "" {
		i, err := strconv.ParseInt(digits, 10, 64)
		if err == nil {
			return i, nil
		}
		if errors.Is(err, strconv.ErrRange) {
			return nil, fmt.Errorf("%s overflows a 64-bit integer", digits)
		}
	}

	f, err := toFinite(v)
	if err != nil {
		return nil, err
	}
	f = math.Trunc(f)
	if f < minInt64Float || f >= maxInt64Float {
		return nil, fmt.Errorf("%v overflows a 64-bit integer", v)
	}
	return int64(f), nil
}

type fixedArgs struct {
	Digits int `mapstructure:"digits"`
}

// newFixed formats numbers with a fixed number of decimals: "1500" -> "1500.00".
func newFixed(args map[string]any) (domain.Transform, error) {
	a := fixedArgs{Digits: 2}
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Digits < 0 {
		return nil, fmt.Errorf("digits must be >= 0, got %d", a.Digits)
	}
	return func(v any) (any, error) {
		if isMissing(v) {
			return v, nil
		}
		f, err := toFinite(v)
		if err != nil {
			return nil, err
		}
		return strconv.FormatFloat(f, 'f', a.Digits, 64), nil
	}, nil
}

type boolArgs struct {
	True  string `mapstructure:"true"`
	False string `mapstructure:"false"`
}

// newBool maps truthy input to the "true" label and everything else to "false".
// Checkbox values ("on", "yes") count as truthy.
func newBool(args map[string]any) (domain.Transform, error) {
	a := boolArgs{True: "true", False: "false"}
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	return func(v any) (any, error) {
		if truthy(v) {
			return a.True, nil
		}
		return a.False, nil
	}, nil
}

func truthy(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "1", "t", "true", "on", "yes", "y", "si", "sí":
			return true
		}
		return false
	}
	if isMissing(v) {
		return false
	}
	if f, err := toFloat(v); err == nil {
		return f != 0
	}
	return false
}

type dateArgs struct {
	Layout string `mapstructure:"layout"`
	UTC    bool   `mapstructure:"utc"`
}

// newDate reformats time.Time values or ISO-8601 strings with a Go layout.
func newDate(args map[string]any) (domain.Transform, error) {
	a := dateArgs{Layout: time.DateOnly}
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	return func(v any) (any, error) {
		if isMissing(v) {
			return v, nil
		}
		var t time.Time
		switch d := v.(type) {
		case time.Time:
			t = d
		case string:
			parsed, err := iso8601.ParseString(strings.TrimSpace(d))
			if err != nil {
				return nil, err
			}
			t = parsed
		default:
			return nil, fmt.Errorf("expected a date, got %T", v)
		}
		if a.UTC {
			t = t.UTC()
		}
		return t.Format(a.Layout), nil
	}, nil
}

type defaultArgs struct {
	Value any `mapstructure:"value"`
}

// newDefault substitutes a value for absent, null or empty fields.
func newDefault(args map[string]any) (domain.Transform, error) {
	var a defaultArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	return func(v any) (any, error) {
		if isMissing(v) {
			return a.Value, nil
		}
		if s, ok := v.(string); ok && s == "" {
			return a.Value, nil
		}
		return v, nil
	}, nil
}

type joinArgs struct {
	Separator string `mapstructure:"separator"`
}

// newJoin flattens multi-select values into one delimited string.
func newJoin(args map[string]any) (domain.Transform, error) {
	a := joinArgs{Separator: ","}
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	return func(v any) (any, error) {
		if isMissing(v) {
			return v, nil
		}
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			return v, nil
		}
		parts := make([]string, rv.Len())
		for i := range parts {
			s, err := domain.Stringify(rv.Index(i).Interface())
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			parts[i] = s
		}
		return strings.Join(parts, a.Separator), nil
	}, nil
}

type exprArgs struct {
	Expression string `mapstructure:"expression"`
}

// newExpr evaluates an expression with the field value bound to "value".
// Absent fields are bound as nil.
func newExpr(args map[string]any) (domain.Transform, error) {
	var a exprArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if strings.TrimSpace(a.Expression) == "" {
		return nil, fmt.Errorf("expression is required")
	}

	program, err := expr.Compile(a.Expression)
	if err != nil {
		return nil, fmt.Errorf("compile expression: %w", err)
	}
	return exprTransform(program), nil
}

func exprTransform(program *vm.Program) domain.Transform {
	return func(v any) (any, error) {
		if domain.IsUndefined(v) {
			v = nil
		}
		out, err := expr.Run(program, map[string]any{"value": v})
		if err != nil {
			return nil, fmt.Errorf("evaluate expression: %w", err)
		}
		return out, nil
	}
}
