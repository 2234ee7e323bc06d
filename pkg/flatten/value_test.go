package flatten

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoerce(t *testing.T) {
	tests := []struct {
		name    string
		raw     any
		typ     Type
		want    Value
		wantErr bool
	}{
		{"null stays null", nil, TypeInt, Null, false},
		{"string", "abc", TypeString, String("abc"), false},
		{"number as string", json.Number("42"), TypeString, String("42"), false},
		{"int from number", json.Number("42"), TypeInt, Int(42), false},
		{"int from string", " 7 ", TypeInt, Int(7), false},
		{"int from integral float text", "3.0", TypeInt, Int(3), false},
		{"int from fraction", "3.5", TypeInt, Null, true},
		{"int from word", "N/A", TypeInt, Null, true},
		{"int from empty", "", TypeInt, Null, true},
		{"float from string", "12.4", TypeFloat, Float(12.4), false},
		{"float from number", json.Number("90500"), TypeFloat, Float(90500), false},
		{"float from word", "high", TypeFloat, Null, true},
		{"int beyond int64 from number", json.Number("99999999999999999999"), TypeInt, Null, true},
		{"int beyond int64 from exponent", "1e20", TypeInt, Null, true},
		{"int below int64", "-1e20", TypeInt, Null, true},
		{"int at 2^63", json.Number("9223372036854775808"), TypeInt, Null, true},
		{"int max", json.Number("9223372036854775807"), TypeInt, Int(9223372036854775807), false},
		{"int from large whole exponent", "1e18", TypeInt, Int(1000000000000000000), false},
		{"int from float64 out of range", 1e20, TypeInt, Null, true},
		{"int from float64 whole", 12.0, TypeInt, Int(12), false},
		{"int from NaN text", "NaN", TypeInt, Null, true},
		{"float NaN text", "NaN", TypeFloat, Null, true},
		{"float Inf text", "Inf", TypeFloat, Null, true},
		{"float negative infinity text", "-Infinity", TypeFloat, Null, true},
		{"float NaN number", json.Number("NaN"), TypeFloat, Null, true},
		{"float NaN float64", math.NaN(), TypeFloat, Null, true},
		{"float Inf float64", math.Inf(1), TypeFloat, Null, true},
		{"date", "2024-03-30", TypeDate, Date(time.Date(2024, 3, 30, 0, 0, 0, 0, time.UTC)), false},
		{"datetime truncated", "2024-03-30 10:11:12", TypeDate, Date(time.Date(2024, 3, 30, 0, 0, 0, 0, time.UTC)), false},
		{"rfc3339 truncated", "2024-03-30T10:11:12Z", TypeDate, Date(time.Date(2024, 3, 30, 0, 0, 0, 0, time.UTC)), false},
		{"rfc3339 offset keeps written day", "2024-03-30T23:30:00-05:00", TypeDate, Date(time.Date(2024, 3, 30, 0, 0, 0, 0, time.UTC)), false},
		{"bad date", "30/03/2024", TypeDate, Null, true},
		{"bool", true, TypeBool, Bool(true), false},
		{"bool from string", "false", TypeBool, Bool(false), false},
		{"object as string", map[string]any{"a": 1}, TypeString, Null, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Coerce(tt.raw, tt.typ)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %v (%s), want %v (%s)", got, got.Type(), tt.want, tt.want.Type())
		})
	}
}

func TestValue_String(t *testing.T) {
	assert.Equal(t, "", Null.String())
	assert.Equal(t, "12.4", Float(12.4).String())
	assert.Equal(t, "-3", Int(-3).String())
	assert.Equal(t, "2024-03-30", Date(time.Date(2024, 3, 30, 0, 0, 0, 0, time.UTC)).String())
	assert.Equal(t, "2024-03-30 08:00:00", Date(time.Date(2024, 3, 30, 8, 0, 0, 0, time.UTC)).String())
}

func TestValue_EqualAndKey(t *testing.T) {
	assert.True(t, Null.Equal(Value{}))
	assert.False(t, Int(1).Equal(Float(1)))
	assert.NotEqual(t, Int(1).Key(), String("1").Key())
	assert.Equal(t, String("x").Key(), String("x").Key())
}

func TestValue_Interface(t *testing.T) {
	assert.Nil(t, Null.Interface())
	assert.Equal(t, int64(5), Int(5).Interface())
	assert.Equal(t, "s", String("s").Interface())
}

func TestCoercionError_Is(t *testing.T) {
	err := error(&CoercionError{Kind: KindSERP, Column: "Rank", Value: "x", Type: "int"})
	assert.True(t, errors.Is(err, ErrTypeCoercion))
	assert.Contains(t, err.Error(), "Rank")
}
