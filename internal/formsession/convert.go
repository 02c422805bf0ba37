package formsession

import (
	"math"
	"strings"

	"github.com/spf13/cast"

	"github.com/pitabwire/flagconsole/model"
)

// PercentToRatio converts a 0-100 form input into the 0-1 ratio the API
// stores.
func PercentToRatio(percent float64) float64 {
	return percent / 100
}

// RatioToPercent converts a stored ratio back into the 0-100 form value,
// rounding away binary floating point noise (0.29 -> 29, not 28.999...).
func RatioToPercent(ratio float64) float64 {
	return math.Round(ratio*100*1e6) / 1e6
}

// String returns v as a trimmed string.
func String(v any) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(cast.ToString(v))
}

// Int32 returns v as an int32. Enum values arrive from the browser as
// strings ("1") and are mapped to their numeric value here.
func Int32(v any) int32 {
	f, ok := toNumber(v)
	if !ok {
		return 0
	}
	return int32(f)
}

// Int64 returns v as an int64.
func Int64(v any) int64 {
	f, ok := toNumber(v)
	if !ok {
		return 0
	}
	return int64(f)
}

// Float returns v as a float64.
func Float(v any) float64 {
	f, _ := toNumber(v)
	return f
}

// Bool returns v as a bool; "true" and true are true.
func Bool(v any) bool {
	return cast.ToBool(v)
}

// Strings returns v as a string slice. A single string becomes a one-element
// slice.
func Strings(v any) []string {
	if v == nil {
		return nil
	}
	if s, ok := v.(string); ok {
		if strings.TrimSpace(s) == "" {
			return nil
		}
		return []string{s}
	}
	return cast.ToStringSlice(v)
}

// Int32s returns v as an int32 slice.
func Int32s(v any) []int32 {
	nums := numbers(v)
	out := make([]int32, len(nums))
	for i, n := range nums {
		out[i] = int32(n)
	}
	return out
}

// Float64s returns v as a float64 slice, dropping non-numeric entries.
func Float64s(v any) []float64 {
	return numbers(v)
}

// DirtyString returns the field as a string and true when it is dirty.
// Update builders use it to send only changed fields.
func DirtyString(state model.FormState, name string) (string, bool) {
	if !state.IsFieldDirty(name) {
		return "", false
	}
	return String(state.Values[name]), true
}

// DirtyInt32 returns the field as an int32 and true when it is dirty.
func DirtyInt32(state model.FormState, name string) (int32, bool) {
	if !state.IsFieldDirty(name) {
		return 0, false
	}
	return Int32(state.Values[name]), true
}
