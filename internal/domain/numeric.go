package domain

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// Numeric is a decimal value that may have arrived malformed from an
// upstream source. A value parsed successfully carries Value with Valid set;
// otherwise the original text is preserved in Raw so downstream stages can
// decide how to coerce it.
type Numeric struct {
	Value float64
	Raw   string
	Valid bool
}

// Num builds a valid Numeric from a float.
func Num(v float64) Numeric {
	return Numeric{Value: v, Valid: true}
}

// ParseNumeric parses s into a Numeric, keeping the raw text when s is not a
// valid decimal.
func ParseNumeric(s string) Numeric {
	s = strings.TrimSpace(s)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Numeric{Raw: s}
	}
	return Numeric{Value: v, Valid: true}
}

// Float64 coerces the value to a number. Invalid values get one more parse
// attempt on the raw text and fall back to zero.
func (n Numeric) Float64() float64 {
	if n.Valid {
		return n.Value
	}
	if v, err := strconv.ParseFloat(strings.TrimSpace(n.Raw), 64); err == nil {
		return v
	}
	return 0
}

// String returns the raw text for invalid values and the formatted number
// otherwise.
func (n Numeric) String() string {
	if !n.Valid {
		return n.Raw
	}
	return strconv.FormatFloat(n.Value, 'f', -1, 64)
}

// MarshalJSON emits a JSON number when the value is valid and the raw text
// as a JSON string otherwise.
func (n Numeric) MarshalJSON() ([]byte, error) {
	if n.Valid {
		return []byte(strconv.FormatFloat(n.Value, 'f', -1, 64)), nil
	}
	return json.Marshal(n.Raw)
}

// UnmarshalJSON accepts either a JSON number or a string holding one.
func (n *Numeric) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("numeric: %w", err)
	}
	switch t := v.(type) {
	case float64:
		*n = Numeric{Value: t, Valid: true}
	case string:
		*n = ParseNumeric(t)
	case nil:
		*n = Numeric{}
	default:
		return fmt.Errorf("numeric: unsupported JSON type %T", v)
	}
	return nil
}
