package flatten

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Type is the declared type of a column.
type Type int

const (
	TypeNull Type = iota
	TypeString
	TypeInt
	TypeFloat
	TypeDate
	TypeBool
)

func (t Type) String() string {
	switch t {
	case TypeNull:
		return "null"
	case TypeString:
		return "string"
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	case TypeDate:
		return "date"
	case TypeBool:
		return "bool"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// DateLayouts are the accepted date encodings, tried in order.
var DateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

// Value is a typed cell. The zero Value is null.
type Value struct {
	typ Type
	s   string
	i   int64
	f   float64
	t   time.Time
	b   bool
}

// Null is the null value.
var Null = Value{}

// Constructors and accessors.
func String(s string) Value { return Value{typ: TypeString, s: s} }
func Int(i int64) Value { return Value{typ: TypeInt, i: i} }
func Float(f float64) Value { return Value{typ: TypeFloat, f: f} }
func Date(t time.Time) Value { return Value{typ: TypeDate, t: t} }
func Bool(b bool) Value { return Value{typ: TypeBool, b: b} }
func (v Value) Type() Type { return v.typ }
func (v Value) IsNull() bool { return v.typ == TypeNull }
func (v Value) Str() string { return v.s }
func (v Value) Int() int64 { return v.i }
func (v Value) Float() float64 { return v.f }
func (v Value) Time() time.Time { return v.t }
func (v Value) Bool() bool { return v.b }

// Interface returns the Go value for drivers and encoders, nil for null.
func (v Value) Interface() any {
	switch v.typ {
	case TypeString:
		return v.s
	case TypeInt:
		return v.i
	case TypeFloat:
		return v.f
	case TypeDate:
		return v.t
	case TypeBool:
		return v.b
	default:
		return nil
	}
}

// String renders the value as text. Null renders as "".
func (v Value) String() string {
	switch v.typ {
	case TypeString:
		return v.s
	case TypeInt:
		return strconv.FormatInt(v.i, 10)
	case TypeFloat:
		return strconv.FormatFloat(v.f, 'f', -1, 64)
	case TypeDate:
		if v.t.Hour() == 0 && v.t.Minute() == 0 && v.t.Second() == 0 {
			return v.t.Format("2006-01-02")
		}
		return v.t.Format("2006-01-02 15:04:05")
	case TypeBool:
		return strconv.FormatBool(v.b)
	default:
		return ""
	}
}

// Equal reports whether both values have the same type and content.
func (v Value) Equal(o Value) bool {
	if v.typ != o.typ {
		return false
	}
	switch v.typ {
	case TypeString:
		return v.s == o.s
	case TypeInt:
		return v.i == o.i
	case TypeFloat:
		return v.f == o.f || (math.IsNaN(v.f) && math.IsNaN(o.f))
	case TypeDate:
		return v.t.Equal(o.t)
	case TypeBool:
		return v.b == o.b
	default:
		return true
	}
}

// Key is a type-tagged rendering usable as a map key for deduplication.
func (v Value) Key() string {
	if v.typ == TypeDate {
		return "date:" + v.t.UTC().Format(time.RFC3339Nano)
	}
	return v.typ.String() + ":" + v.String()
}

// Coerce converts a decoded JSON value to typ. JSON null becomes Null;
// anything else that does not fit typ is an error.
func Coerce(raw any, typ Type) (Value, error) {
	if raw == nil {
		return Null, nil
	}

	switch typ {
	case TypeString:
		switch x := raw.(type) {
		case string:
			return String(x), nil
		case json.Number:
			return String(x.String()), nil
		case float64:
			return String(strconv.FormatFloat(x, 'f', -1, 64)), nil
		case bool:
			return String(strconv.FormatBool(x)), nil
		}

	case TypeInt:
		switch x := raw.(type) {
		case json.Number:
			return parseInt(x.String())
		case string:
			return parseInt(strings.TrimSpace(x))
		case float64:
			if i, ok := floatToInt(x); ok {
				return Int(i), nil
			}
		case int:
			return Int(int64(x)), nil
		case int64:
			return Int(x), nil
		}

	case TypeFloat:
		switch x := raw.(type) {
		case json.Number:
			if f, err := x.Float64(); err == nil && finite(f) {
				return Float(f), nil
			}
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(x), 64); err == nil && finite(f) {
				return Float(f), nil
			}
		case float64:
			if finite(x) {
				return Float(x), nil
			}
		case int:
			return Float(float64(x)), nil
		case int64:
			return Float(float64(x)), nil
		}

	case TypeDate:
		switch x := raw.(type) {
		case string:
			if t, ok := parseDate(strings.TrimSpace(x)); ok {
				return Date(calendarDay(t)), nil
			}
		case time.Time:
			return Date(calendarDay(x)), nil
		}

	case TypeBool:
		switch x := raw.(type) {
		case bool:
			return Bool(x), nil
		case string:
			if b, err := strconv.ParseBool(strings.TrimSpace(x)); err == nil {
				return Bool(b), nil
			}
		case json.Number:
			if b, err := strconv.ParseBool(x.String()); err == nil {
				return Bool(b), nil
			}
		}
	}

	return Null, fmt.Errorf("cannot use %T %v as %s", raw, raw, typ)
}

func parseInt(s string) (Value, error) {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Int(i), nil
	}
	// "3.0" style integers
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		if i, ok := floatToInt(f); ok {
			return Int(i), nil
		}
	}
	return Null, fmt.Errorf("cannot use %q as int", s)
}

// floatToInt converts f when it is a whole number inside the int64 range.
// 2^63 itself is excluded: float64(math.MaxInt64) rounds up to it.
func floatToInt(f float64) (int64, bool) {
	if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// calendarDay drops the time of day, keeping the date as written.
func calendarDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range DateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
