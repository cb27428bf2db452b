package dataset

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNumber(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		in        any
		wantFloat float64
		wantInt   int64
		status    ParseStatus
		overflow  bool
	}{
		{"thousands separators", "12,345.50", 12345.50, 12345, Parsed, false},
		{"surrounding whitespace", "  42 ", 42, 42, Parsed, false},
		{"json number", json.Number("1500.25"), 1500.25, 1500, Parsed, false},
		{"float64", 7.5, 7.5, 7, Parsed, false},
		{"int", 9, 9, 9, Parsed, false},
		{"negative truncates toward zero", "-3.9", -3.9, -3, Parsed, false},
		{"garbage", "abc", 0, 0, Defaulted, false},
		{"bool", true, 0, 0, Defaulted, false},
		{"nil", nil, 0, 0, Missing, false},
		{"blank", "   ", 0, 0, Missing, false},
		{"only commas", ",,", 0, 0, Missing, false},
		{"beyond int64 with separators", "99,999,999,999,999,999,999", 99999999999999999999999, 0, Parsed, true},
		{"exponent beyond int64", "1e30", 1e30, 0, Parsed, true},
		{"float beyond int64", 1e30, 1e30, 0, Parsed, true},
		{"negative beyond int64", "-1e19", -1e19, 0, Parsed, true},
		{"max int64", "9223372036854775807", 9223372036854775807, 9223372036854775807, Parsed, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := ParseNumber(tt.in)
			assert.Equal(t, tt.status, got.Status)
			assert.InEpsilon(t, 1+tt.wantFloat, 1+got.Float(), 1e-12)
			n, ok := got.Int()
			assert.Equal(t, tt.wantInt, n)
			assert.Equal(t, !tt.overflow, ok)
		})
	}
}

func TestParseNumberKeepsExactDecimal(t *testing.T) {
	t.Parallel()

	got := ParseNumber("12,345.50")
	require.Equal(t, Parsed, got.Status)
	require.True(t, got.Value.Equal(decimal.RequireFromString("12345.5")), "got %s", got.Value)
}

func TestRawRecordGetString(t *testing.T) {
	t.Parallel()

	rec := RawRecord{
		"name":   "  Pune ",
		"blank":  "  ",
		"number": json.Number("12"),
		"nil":    nil,
	}

	v, ok := rec.GetString("name")
	require.True(t, ok)
	require.Equal(t, "Pune", v)

	v, ok = rec.GetString("number")
	require.True(t, ok)
	require.Equal(t, "12", v)

	for _, key := range []string{"blank", "nil", "absent"} {
		_, ok := rec.GetString(key)
		require.False(t, ok, key)
	}
}

func TestRawRecordGetNumber(t *testing.T) {
	t.Parallel()

	rec := RawRecord{"wages": "1,000", "bad": "n/a"}
	n, ok := rec.GetNumber("wages").Int()
	require.True(t, ok)
	require.Equal(t, int64(1000), n)
	require.Equal(t, Defaulted, rec.GetNumber("bad").Status)
	require.Equal(t, Missing, rec.GetNumber("absent").Status)
}

func TestParseStatusString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "parsed", Parsed.String())
	require.Equal(t, "defaulted", Defaulted.String())
	require.Equal(t, "missing", Missing.String())
}
