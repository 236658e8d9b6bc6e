package query

import (
	"fmt"
	"math"
	"strconv"
)

// Keyword is an attribute keyword constant such as :person/name.
type Keyword string

func (k Keyword) String() string { return string(k) }

// Ident is a bare non-variable symbol used as a constant (e.g. Driver).
type Ident string

func (i Ident) String() string { return string(i) }

// FormatValue renders a constant in canonical textual form. Distinct values
// always render differently: strings are quoted, keywords keep their colon,
// floats always carry a decimal point or exponent.
func FormatValue(v interface{}) (string, error) {
	switch val := v.(type) {
	case Keyword:
		if len(val) < 2 || val[0] != ':' {
			return "", fmt.Errorf("invalid keyword %q", string(val))
		}
		return string(val), nil
	case Ident:
		if val == "" || val == "_" || val[0] == '?' || val[0] == ':' || val[0] == '"' {
			return "", fmt.Errorf("invalid identifier %q", string(val))
		}
		return string(val), nil
	case string:
		return strconv.Quote(val), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case int:
		return strconv.FormatInt(int64(val), 10), nil
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return "", fmt.Errorf("unsupported float %v", val)
		}
		s := strconv.FormatFloat(val, 'g', -1, 64)
		if _, err := strconv.ParseInt(s, 10, 64); err == nil {
			s += ".0"
		}
		return s, nil
	case bool:
		if val {
			return "true", nil
		}
		return "false", nil
	case nil:
		return "", fmt.Errorf("nil constant")
	default:
		return "", fmt.Errorf("unsupported constant type %T", v)
	}
}

// ValuesEqual compares two runtime values by their canonical form, so that
// int and int64 holding the same number are equal.
func ValuesEqual(a, b interface{}) bool {
	as, err := FormatValue(a)
	if err != nil {
		return false
	}
	bs, err := FormatValue(b)
	if err != nil {
		return false
	}
	return as == bs
}
