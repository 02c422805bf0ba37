package querystring

import (
	"math"
	"strings"

	"github.com/spf13/cast"

	"github.com/pitabwire/flagconsole/model"
)

// String returns the option as a string, or "" when absent.
func String(o model.SearchOptions, key string) string {
	v, ok := o[key]
	if !ok || v == nil {
		return ""
	}
	return cast.ToString(v)
}

// Number coerces the option to a float64. It reports false when the option
// is absent, empty or not numeric.
func Number(o model.SearchOptions, key string) (float64, bool) {
	v, ok := o[key]
	if !ok || v == nil {
		return 0, false
	}
	if s, isString := v.(string); isString {
		s = strings.TrimSpace(s)
		if s == "" {
			return 0, false
		}
		v = s
	}
	f, err := cast.ToFloat64E(v)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Int coerces the option to an integer. Fractional values are rejected.
func Int(o model.SearchOptions, key string) (int64, bool) {
	f, ok := Number(o, key)
	if !ok || f != math.Trunc(f) {
		return 0, false
	}
	return int64(f), true
}

// PositiveInt returns the option as an integer >= 1, or def when the option
// is absent or not a positive integer.
func PositiveInt(o model.SearchOptions, key string, def int) int {
	n, ok := Int(o, key)
	if !ok || n < 1 {
		return def
	}
	return int(n)
}

// Tristate reports whether a present, non-empty option is "true". Any other
// value, "maybe" included, filters for false. Absence yields nil.
func Tristate(o model.SearchOptions, key string) *bool {
	return matches(o, key, "true")
}

// Negated reports whether a present, non-empty option is "false". It reads
// options named for the opposite of the request field, as "enabled" is for
// "disabled": anything but "false" asks for enabled items.
func Negated(o model.SearchOptions, key string) *bool {
	return matches(o, key, "false")
}

func matches(o model.SearchOptions, key, want string) *bool {
	v, ok := o[key]
	if !ok || v == nil {
		return nil
	}
	s := cast.ToString(v)
	if s == "" {
		return nil
	}
	b := s == want
	return &b
}

// Page returns the 1-based page number from the "page" option.
func Page(o model.SearchOptions) int {
	return PositiveInt(o, model.OptionPage, 1)
}
