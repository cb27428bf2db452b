package dataset

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
)

// ParseStatus reports how a numeric value was obtained.
type ParseStatus int

const (
	// Missing means the value was absent, nil, or blank. The number is zero.
	Missing ParseStatus = iota
	// Parsed means the value was read successfully.
	Parsed
	// Defaulted means a value was present but unparseable and was replaced by zero.
	Defaulted
)

func (s ParseStatus) String() string {
	switch s {
	case Parsed:
		return "parsed"
	case Defaulted:
		return "defaulted"
	default:
		return "missing"
	}
}

// Number is the result of a tolerant numeric parse.
type Number struct {
	Value  decimal.Decimal
	Status ParseStatus
}

var (
	minInt64 = decimal.NewFromInt(math.MinInt64)
	maxInt64 = decimal.NewFromInt(math.MaxInt64)
)

// Int truncates toward zero. It returns 0, false when the integer part does not fit in an int64.
func (n Number) Int() (int64, bool) {
	t := n.Value.Truncate(0)
	if t.LessThan(minInt64) || t.GreaterThan(maxInt64) {
		return 0, false
	}
	return t.IntPart(), true
}

// Float returns the nearest float64.
func (n Number) Float() float64 {
	f, _ := n.Value.Float64()
	return f
}

// ParseNumber coerces a loosely-typed value. Thousands separators and surrounding whitespace are
// stripped before parsing; anything still unparseable yields zero with status Defaulted.
func ParseNumber(v any) Number {
	s, ok := scalarText(v)
	if !ok {
		if v == nil {
			return Number{Status: Missing}
		}
		return Number{Status: Defaulted}
	}
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return Number{Status: Missing}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Number{Status: Defaulted}
	}
	return Number{Value: d, Status: Parsed}
}

// GetString returns the trimmed string form of a field. Absent, nil, and blank values report false.
func (r RawRecord) GetString(key string) (string, bool) {
	s, ok := scalarText(r[key])
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	return s, true
}

// GetNumber parses a single field with ParseNumber.
func (r RawRecord) GetNumber(key string) Number {
	return ParseNumber(r[key])
}

// populated reports whether a field holds something an alias lookup should stop at.
func (r RawRecord) populated(key string) bool {
	v, ok := r[key]
	if !ok || v == nil {
		return false
	}
	if s, isString := v.(string); isString {
		return strings.TrimSpace(s) != ""
	}
	return true
}

func scalarText(v any) (string, bool) {
	if v == nil {
		return "", false
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return "", false
	}
	return s, true
}
