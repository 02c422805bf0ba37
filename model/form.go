package model

// FormMode selects between the create and update variants of a resource form.
type FormMode string

// Form modes.
const (
	FormAdd    FormMode = "add"
	FormUpdate FormMode = "update"
)

// FormState is a snapshot of one open form.
type FormState struct {
	Mode         FormMode              `json:"mode"`
	EntityID     string                `json:"entity_id,omitempty"`
	Values       map[string]any        `json:"values"`
	Errors       map[string]FieldError `json:"errors,omitempty"`
	Dirty        map[string]bool       `json:"dirty,omitempty"`
	IsDirty      bool                  `json:"is_dirty"`
	IsValid      bool                  `json:"is_valid"`
	IsSubmitting bool                  `json:"is_submitting"`
	SubmitError  *ErrorEnvelope        `json:"submit_error,omitempty"`
}

// DirtyValues returns the subset of values whose fields were changed since
// the form was opened.
func (s FormState) DirtyValues() map[string]any {
	out := make(map[string]any, len(s.Dirty))
	for name, dirty := range s.Dirty {
		if dirty {
			out[name] = s.Values[name]
		}
	}
	return out
}

// IsFieldDirty reports whether the named field was changed.
func (s FormState) IsFieldDirty(name string) bool {
	return s.Dirty[name]
}
