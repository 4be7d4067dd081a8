package fusion

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoerce(t *testing.T) {
	cases := []struct {
		name      string
		raw       any
		kind      Kind
		text      string
		malformed bool
	}{
		{"nil", nil, KindAbsent, "", false},
		{"empty string", "  ", KindAbsent, "", false},
		{"numeric string", "42.5", KindNumber, "42.5", false},
		{"numeric string with spaces", " 7 ", KindNumber, "7", false},
		{"negative exponent", "1e-2", KindNumber, "0.01", false},
		{"true string", "TRUE", KindBool, "true", false},
		{"false string", "False", KindBool, "false", false},
		{"plain string", "Gold", KindString, "Gold", false},
		{"version-like string", "1.2.3", KindString, "1.2.3", false},
		{"inf string is not numeric", "Inf", KindString, "Inf", false},
		{"nan string", "NaN", KindAbsent, "", false},
		{"bool", true, KindBool, "true", false},
		{"int", 12, KindNumber, "12", false},
		{"int64", int64(-3), KindNumber, "-3", false},
		{"float", 0.0, KindNumber, "0", false},
		{"json number", json.Number("19.99"), KindNumber, "19.99", false},
		{"nan float", math.NaN(), KindAbsent, "", true},
		{"inf float", math.Inf(1), KindAbsent, "", true},
		{"out of range", "1e400", KindAbsent, "", true},
		{"slice", []any{1, 2}, KindAbsent, "", true},
		{"map", map[string]any{"a": 1}, KindAbsent, "", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v, err := Coerce(tc.raw)
			if tc.malformed {
				assert.ErrorIs(t, err, ErrMalformedMetadata)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tc.kind, v.Kind())
			assert.Equal(t, tc.text, v.Text())
		})
	}
}

func TestZeroIsNotAbsent(t *testing.T) {
	v, err := Coerce("0")
	require.NoError(t, err)
	assert.False(t, v.IsAbsent())
	n, ok := v.Float()
	assert.True(t, ok)
	assert.Zero(t, n)

	assert.True(t, Absent().IsAbsent())
	assert.True(t, Value{}.IsAbsent())
}

func TestNumberRejectsNonFinite(t *testing.T) {
	assert.True(t, Number(math.NaN()).IsAbsent())
	assert.True(t, Number(math.Inf(-1)).IsAbsent())
}

func TestValueJSON(t *testing.T) {
	fields := map[string]Value{
		"total_spent":    Number(120.5),
		"loyalty_member": Bool(true),
		"segment":        String("VIP"),
	}
	data, err := json.Marshal(fields)
	require.NoError(t, err)
	assert.JSONEq(t, `{"total_spent":120.5,"loyalty_member":true,"segment":"VIP"}`, string(data))

	var back map[string]Value
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, fields, back)
}
