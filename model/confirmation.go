package model

// ConfirmationKind names a state-changing action that needs explicit
// confirmation before it is sent.
type ConfirmationKind string

// Confirmation kinds.
const (
	ConfirmEnable  ConfirmationKind = "enable"
	ConfirmDisable ConfirmationKind = "disable"
	ConfirmDelete  ConfirmationKind = "delete"
	ConfirmConvert ConfirmationKind = "convert"
	ConfirmArchive ConfirmationKind = "archive"
)

// Valid reports whether k is a known kind.
func (k ConfirmationKind) Valid() bool {
	switch k {
	case ConfirmEnable, ConfirmDisable, ConfirmDelete, ConfirmConvert, ConfirmArchive:
		return true
	}
	return false
}

// EntityRef identifies one entity of a resource.
type EntityRef struct {
	Resource string `json:"resource"`
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
}

// ConfirmationIntent is a pending action awaiting the user's confirmation.
type ConfirmationIntent struct {
	Kind    ConfirmationKind `json:"kind"`
	Target  EntityRef        `json:"target"`
	Title   string           `json:"title"`
	Message string           `json:"message"`
}
