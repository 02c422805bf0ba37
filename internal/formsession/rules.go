// Package formsession holds the state of an open resource form: values,
// per-field validation, dirty tracking and guarded submission.
package formsession

import (
	"math"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cast"

	"github.com/pitabwire/flagconsole/model"
)

var validate = validator.New()

// identifierPattern matches console identifiers: lowercase letters, digits
// and hyphens, starting with a letter or digit.
var identifierPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// Rule is one field constraint. Rules other than Required accept empty
// values, so optional fields are only checked when filled in.
type Rule struct {
	// Code is the validation code reported on failure.
	Code string
	// MessageID selects the catalog message; it defaults to Code.
	MessageID string
	// Params is passed to the message template.
	Params map[string]any

	check    func(v any) bool
	required bool
}

func (r Rule) passes(v any) bool {
	if !r.required && isEmpty(v) {
		return true
	}
	return r.check(v)
}

func (r Rule) messageID() string {
	if r.MessageID != "" {
		return r.MessageID
	}
	return r.Code
}

// Required rejects nil, blank strings and empty selections.
func Required() Rule {
	return Rule{Code: model.CodeRequired, required: true, check: func(v any) bool { return !isEmpty(v) }}
}

// MaxLength rejects strings longer than n characters.
func MaxLength(n int) Rule {
	return Rule{
		Code:   model.CodeTooLong,
		Params: map[string]any{"max": n},
		check:  func(v any) bool { return len([]rune(cast.ToString(v))) <= n },
	}
}

// MinLength rejects strings shorter than n characters.
func MinLength(n int) Rule {
	return Rule{
		Code:   model.CodeTooShort,
		Params: map[string]any{"min": n},
		check:  func(v any) bool { return len([]rune(cast.ToString(v))) >= n },
	}
}

// Pattern rejects strings that do not match re. messageID may be empty.
func Pattern(re *regexp.Regexp, messageID string) Rule {
	return Rule{
		Code:      model.CodeInvalidFormat,
		MessageID: messageID,
		check:     func(v any) bool { return re.MatchString(cast.ToString(v)) },
	}
}

// Identifier accepts lowercase letters, digits and hyphens, starting with a
// letter or digit.
func Identifier() Rule {
	return Pattern(identifierPattern, "INVALID_ID")
}

// Email rejects malformed email addresses.
func Email() Rule {
	return Rule{
		Code: model.CodeInvalidEmail,
		check: func(v any) bool {
			return validate.Var(cast.ToString(v), "email") == nil
		},
	}
}

// URL rejects values that are not absolute URLs.
func URL() Rule {
	return Rule{
		Code: model.CodeInvalidFormat,
		check: func(v any) bool {
			return validate.Var(cast.ToString(v), "url") == nil
		},
	}
}

// Integer rejects values that are not whole numbers.
func Integer() Rule {
	return Rule{
		Code: model.CodeNotAnInteger,
		check: func(v any) bool {
			f, ok := toNumber(v)
			return ok && f == math.Trunc(f)
		},
	}
}

// Number rejects values that are not numeric.
func Number() Rule {
	return Rule{
		Code: model.CodeNotANumber,
		check: func(v any) bool {
			_, ok := toNumber(v)
			return ok
		},
	}
}

// Range rejects numbers outside [min, max]. Non-numeric values fail too.
func Range(min, max float64) Rule {
	return Rule{
		Code:   model.CodeOutOfRange,
		Params: map[string]any{"min": min, "max": max},
		check: func(v any) bool {
			f, ok := toNumber(v)
			return ok && f >= min && f <= max
		},
	}
}

// AboveUpTo rejects numbers outside (min, max].
func AboveUpTo(min, max float64) Rule {
	return Rule{
		Code:   model.CodeOutOfRange,
		Params: map[string]any{"min": min, "max": max},
		check: func(v any) bool {
			f, ok := toNumber(v)
			return ok && f > min && f <= max
		},
	}
}

// MinSelected rejects multi-selects with fewer than n entries.
func MinSelected(n int) Rule {
	return Rule{
		Code:     model.CodeMinSelected,
		Params:   map[string]any{"min": n},
		required: true,
		check:    func(v any) bool { return length(v) >= n },
	}
}

// CrossRule is a constraint over several fields. A failure is reported on
// Target.
type CrossRule struct {
	Target string
	Fields []string
	Code   string
	Params map[string]any

	check func(values map[string]any) bool
}

// involves reports whether a change to field may change the rule's outcome.
func (c CrossRule) involves(field string) bool {
	if c.Target == field {
		return true
	}
	for _, f := range c.Fields {
		if f == field {
			return true
		}
	}
	return false
}

// SumTo100 requires the numeric fields to add up to exactly 100. A single
// field holding a list of numbers is summed element-wise.
func SumTo100(target string, fields ...string) CrossRule {
	return CrossRule{
		Target: target,
		Fields: fields,
		Code:   model.CodeMustSumTo100,
		check: func(values map[string]any) bool {
			var sum float64
			for _, f := range fields {
				for _, n := range numbers(values[f]) {
					sum += n
				}
			}
			return math.Abs(sum-100) < 1e-9
		},
	}
}

// Equal requires two fields to hold the same value.
func Equal(target, other string) CrossRule {
	return CrossRule{
		Target: target,
		Fields: []string{other},
		Code:   model.CodeMismatch,
		check: func(values map[string]any) bool {
			return reflect.DeepEqual(values[target], values[other])
		},
	}
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case []string:
		return len(t) == 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map:
		return rv.Len() == 0
	case reflect.Pointer:
		return rv.IsNil()
	}
	return false
}

func length(v any) int {
	if v == nil {
		return 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len()
	}
	return 0
}

func toNumber(v any) (float64, bool) {
	if s, ok := v.(string); ok {
		v = strings.TrimSpace(s)
	}
	if _, isBool := v.(bool); isBool {
		return 0, false
	}
	f, err := cast.ToFloat64E(v)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func numbers(v any) []float64 {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		out := make([]float64, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			if n, ok := toNumber(rv.Index(i).Interface()); ok {
				out = append(out, n)
			}
		}
		return out
	}
	if n, ok := toNumber(v); ok {
		return []float64{n}
	}
	return nil
}
