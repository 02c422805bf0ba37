package formsession

import (
	"maps"

	"github.com/pitabwire/flagconsole/internal/i18n"
	"github.com/pitabwire/flagconsole/model"
)

// Field declares one form field and its rules, checked in order.
type Field struct {
	Name    string
	Rules   []Rule
	Default any
	// Unique marks fields the server enforces uniqueness on. A conflict on
	// submit is reported on these fields as NOT_UNIQUE.
	Unique bool
}

// Schema is the set of fields of one form variant.
type Schema struct {
	Fields []Field
	Cross  []CrossRule
}

// Field returns the named field.
func (s *Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Defaults returns the add-mode default values.
func (s *Schema) Defaults() map[string]any {
	out := make(map[string]any, len(s.Fields))
	for _, f := range s.Fields {
		out[f.Name] = f.Default
	}
	return out
}

// UniqueFields returns the names of fields marked Unique.
func (s *Schema) UniqueFields() []string {
	var out []string
	for _, f := range s.Fields {
		if f.Unique {
			out = append(out, f.Name)
		}
	}
	return out
}

// ValidateField checks the named field's rules against values and returns the
// first failure.
func (s *Schema) ValidateField(name string, values map[string]any, f i18n.Formatter) (model.FieldError, bool) {
	field, ok := s.Field(name)
	if !ok {
		return model.FieldError{}, false
	}
	v := values[name]
	for _, r := range field.Rules {
		if !r.passes(v) {
			return model.FieldError{
				Field:   name,
				Code:    r.Code,
				Message: f.Message(r.messageID(), r.Params),
			}, true
		}
	}
	return model.FieldError{}, false
}

// Validate checks every field and cross-field rule. Field rule failures take
// precedence over cross-field failures on the same field.
func (s *Schema) Validate(values map[string]any, f i18n.Formatter) map[string]model.FieldError {
	errs := make(map[string]model.FieldError)
	for _, field := range s.Fields {
		if fe, failed := s.ValidateField(field.Name, values, f); failed {
			errs[field.Name] = fe
		}
	}
	for _, c := range s.Cross {
		if _, taken := errs[c.Target]; taken {
			continue
		}
		if !c.check(values) {
			errs[c.Target] = model.FieldError{
				Field:   c.Target,
				Code:    c.Code,
				Message: f.Message(c.Code, c.Params),
			}
		}
	}
	return errs
}

// affected returns the field plus every cross-rule target the field feeds.
func (s *Schema) affected(name string) []string {
	out := []string{name}
	for _, c := range s.Cross {
		if c.involves(name) && c.Target != name {
			out = append(out, c.Target)
		}
	}
	return out
}

func cloneValues(v map[string]any) map[string]any {
	if v == nil {
		return map[string]any{}
	}
	return maps.Clone(v)
}
