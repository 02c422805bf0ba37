// Package page composes one resource's list, form and confirmation dialog
// into a console page driven by route changes and user events.
package page

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/pitabwire/flagconsole/internal/i18n"
	"github.com/pitabwire/flagconsole/internal/resource"
	"github.com/pitabwire/flagconsole/model"
)

// Outcomes reported to an Observer.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Observer receives page events for metrics.
type Observer interface {
	ObserveListFetch(resource, outcome string, duration time.Duration)
	ObserveFormSubmit(resource, mode, outcome string)
	ObserveAction(resource, kind, outcome string)
}

// Invalidator drops cached data derived from a resource, such as the option
// lists of select fields.
type Invalidator interface {
	Invalidate(resource string)
}

// Deps are the collaborators of one page.
type Deps struct {
	History     History
	Formatter   i18n.Formatter
	Observer    Observer
	Invalidator Invalidator
	Logger      *zap.Logger
}

// Page is a resource page with its element type erased.
type Page interface {
	Resource() string

	// Navigate shows the route's list with the query's search options and
	// opens the overlay the route names.
	Navigate(ctx context.Context, caps model.CapabilitySet, path, query string) error
	// Back handles a history pop: any open overlay is closed.
	Back()
	ChangeSearch(ctx context.Context, options model.SearchOptions) error
	ChangePage(ctx context.Context, page int) error

	OpenAdd(ctx context.Context, caps model.CapabilitySet) error
	OpenUpdate(ctx context.Context, caps model.CapabilitySet, id string) error
	CloseForm()
	SetField(name string, value any) error
	Submit(ctx context.Context) (bool, error)

	RequestAction(caps model.CapabilitySet, kind model.ConfirmationKind, target model.EntityRef) (model.ConfirmationIntent, error)
	Confirm(ctx context.Context) error
	Cancel()

	SetFormatter(f i18n.Formatter)
	View(caps model.CapabilitySet) View
	State() State
	Restore(ctx context.Context, st State) error
}

// View is what the browser renders.
type View struct {
	Resource string                    `json:"resource"`
	Path     string                    `json:"path"`
	URL      string                    `json:"url"`
	Overlay  Overlay                   `json:"overlay,omitempty"`
	List     ListView                  `json:"list"`
	Form     *model.FormState          `json:"form,omitempty"`
	Intent   *model.ConfirmationIntent `json:"intent,omitempty"`
	CanAdd   bool                      `json:"can_add"`
	CanEdit  bool                      `json:"can_edit"`
}

// ListView is the list part of a View.
type ListView struct {
	State      model.ListState     `json:"state"`
	Rows       []Row               `json:"rows"`
	TotalCount int                 `json:"total_count"`
	Loading    bool                `json:"loading"`
	Options    model.SearchOptions `json:"options"`
	Page       int                 `json:"page"`
	PageSize   int                 `json:"page_size"`
	Sort       model.SortSpec      `json:"sort"`
	Error      string              `json:"error,omitempty"`
}

// Row is one list item with the actions the caller may take on it.
type Row struct {
	Item    any                      `json:"item"`
	Ref     model.EntityRef          `json:"ref"`
	Actions []model.ConfirmationKind `json:"actions"`
	Links   []resource.Link          `json:"links,omitempty"`
}

// State is the persisted part of a page, enough to rebuild it after a
// restart.
type State struct {
	Route   Route                     `json:"route"`
	Options model.SearchOptions       `json:"options"`
	Page    int                       `json:"page"`
	Form    *FormState                `json:"form,omitempty"`
	Intent  *model.ConfirmationIntent `json:"intent,omitempty"`
}

// FormState is the persisted part of an open form.
type FormState struct {
	Mode     model.FormMode  `json:"mode"`
	EntityID string          `json:"entity_id,omitempty"`
	Values   map[string]any  `json:"values"`
	Dirty    map[string]bool `json:"dirty,omitempty"`
}
