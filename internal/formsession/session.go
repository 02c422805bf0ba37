package formsession

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pitabwire/flagconsole/internal/i18n"
	"github.com/pitabwire/flagconsole/model"
)

// Submitter sends the form's command to the platform API.
type Submitter func(ctx context.Context, state model.FormState) error

// ErrUnknownField is returned by SetField for a field the schema does not
// declare.
var ErrUnknownField = errors.New("formsession: unknown field")

// ErrNotOpen is returned when a closed session is edited.
var ErrNotOpen = errors.New("formsession: form is not open")

// Session is one open form. Create it with New and start editing with Open.
// Methods are safe for concurrent use; Submit releases the lock while the
// submitter runs and rejects re-entry through the submitting flag.
type Session struct {
	add    *Schema
	update *Schema
	format i18n.Formatter

	mu         sync.Mutex
	generation uint64
	open       bool
	mode       model.FormMode
	entityID   string
	values     map[string]any
	dirty      map[string]bool
	touched    map[string]bool
	errors     map[string]model.FieldError
	submitting bool
	submitErr  *model.ErrorEnvelope
}

// New creates a closed session for a resource's add and update schemas.
// update may be nil when the resource cannot be edited.
func New(add, update *Schema, f i18n.Formatter) *Session {
	return &Session{add: add, update: update, format: f}
}

// SetFormatter replaces the message formatter, e.g. when the request locale
// changes.
func (s *Session) SetFormatter(f i18n.Formatter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.format = f
	if s.open {
		s.revalidateLocked()
	}
}

// Open starts editing. In add mode values start from the schema defaults
// overlaid with seed; in update mode from seed. Errors and dirty flags reset.
func (s *Session) Open(mode model.FormMode, entityID string, seed map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	schema := s.schemaFor(mode)
	if schema == nil {
		return fmt.Errorf("formsession: no %s form", mode)
	}

	values := map[string]any{}
	if mode == model.FormAdd {
		values = schema.Defaults()
	}
	for k, v := range seed {
		values[k] = v
	}

	s.generation++
	s.open = true
	s.mode = mode
	s.entityID = entityID
	s.values = values
	s.dirty = map[string]bool{}
	s.touched = map[string]bool{}
	s.submitting = false
	s.submitErr = nil
	s.revalidateLocked()
	return nil
}

// Restore reopens a session with previously saved values and dirty flags.
func (s *Session) Restore(mode model.FormMode, entityID string, values map[string]any, dirty map[string]bool) error {
	if err := s.Open(mode, entityID, nil); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = cloneValues(values)
	for k, v := range dirty {
		if v {
			s.dirty[k] = true
			s.touched[k] = true
		}
	}
	s.revalidateLocked()
	return nil
}

// SetField changes one value, marks it dirty and re-validates it together
// with the cross-field rules it takes part in.
func (s *Session) SetField(name string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return ErrNotOpen
	}
	schema := s.schemaFor(s.mode)
	if _, ok := schema.Field(name); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownField, name)
	}

	s.values[name] = value
	s.dirty[name] = true
	s.touched[name] = true
	s.submitErr = nil

	for _, f := range schema.affected(name) {
		delete(s.errors, f)
	}
	full := schema.Validate(s.values, s.format)
	for _, f := range schema.affected(name) {
		if fe, ok := full[f]; ok {
			s.errors[f] = fe
		}
	}
	return nil
}

// Submit sends the form if it is valid, dirty and not already submitting;
// otherwise it does nothing and reports false. On success the session closes.
// On failure the values stay, the session stays open, and a uniqueness
// conflict is reported on the schema's unique fields. When the form is
// closed or reopened while the submitter runs, the result is reported but
// not applied.
func (s *Session) Submit(ctx context.Context, submit Submitter) (bool, error) {
	s.mu.Lock()
	if !s.open || s.submitting {
		s.mu.Unlock()
		return false, nil
	}
	if !s.isValidLocked() {
		for name := range s.errors {
			s.touched[name] = true
		}
		s.mu.Unlock()
		return false, nil
	}
	if !s.isDirtyLocked() {
		s.mu.Unlock()
		return false, nil
	}
	s.submitting = true
	s.submitErr = nil
	state := s.stateLocked()
	generation := s.generation
	s.mu.Unlock()

	err := submit(ctx, state)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open || s.generation != generation {
		return true, err
	}
	s.submitting = false
	if err == nil {
		s.resetLocked()
		return true, nil
	}
	s.applySubmitErrorLocked(err)
	return true, err
}

// Close discards the form.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

// IsOpen reports whether a form is being edited.
func (s *Session) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

// State returns a snapshot of the form. Errors include only fields the user
// has touched, plus server-reported errors.
func (s *Session) State() model.FormState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Session) stateLocked() model.FormState {
	if !s.open {
		return model.FormState{}
	}
	visible := make(map[string]model.FieldError)
	for name, fe := range s.errors {
		if s.touched[name] || fe.Code == model.CodeNotUnique {
			visible[name] = fe
		}
	}
	dirty := make(map[string]bool, len(s.dirty))
	for k, v := range s.dirty {
		dirty[k] = v
	}
	return model.FormState{
		Mode:         s.mode,
		EntityID:     s.entityID,
		Values:       cloneValues(s.values),
		Errors:       visible,
		Dirty:        dirty,
		IsDirty:      s.isDirtyLocked(),
		IsValid:      s.isValidLocked(),
		IsSubmitting: s.submitting,
		SubmitError:  s.submitErr,
	}
}

func (s *Session) applySubmitErrorLocked(err error) {
	var reqErr *model.RequestError
	if !errors.As(err, &reqErr) {
		s.submitErr = model.NewInternalError()
		return
	}
	s.submitErr = reqErr.Envelope()

	schema := s.schemaFor(s.mode)
	for _, d := range reqErr.Details {
		if _, ok := schema.Field(d.Field); ok {
			s.errors[d.Field] = d
			s.touched[d.Field] = true
		}
	}
	if !reqErr.IsConflict() {
		return
	}
	for _, name := range schema.UniqueFields() {
		s.errors[name] = model.FieldError{
			Field:   name,
			Code:    model.CodeNotUnique,
			Message: s.format.Message(model.CodeNotUnique, nil),
		}
		s.touched[name] = true
	}
}

func (s *Session) revalidateLocked() {
	s.errors = s.schemaFor(s.mode).Validate(s.values, s.format)
}

func (s *Session) isValidLocked() bool {
	return len(s.errors) == 0
}

func (s *Session) isDirtyLocked() bool {
	for _, d := range s.dirty {
		if d {
			return true
		}
	}
	return false
}

func (s *Session) resetLocked() {
	s.generation++
	s.open = false
	s.mode = ""
	s.entityID = ""
	s.values = nil
	s.dirty = nil
	s.touched = nil
	s.errors = nil
	s.submitting = false
	s.submitErr = nil
}

func (s *Session) schemaFor(mode model.FormMode) *Schema {
	if mode == model.FormUpdate {
		return s.update
	}
	return s.add
}
