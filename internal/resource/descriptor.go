// Package resource declares the console's resources: how each one is listed,
// sorted, filtered, edited and acted on, and which platform API operations
// back it. A page is built once from a Descriptor instead of per resource.
package resource

import (
	"context"
	"fmt"
	"slices"

	"github.com/pitabwire/flagconsole/internal/formsession"
	"github.com/pitabwire/flagconsole/internal/listing"
	"github.com/pitabwire/flagconsole/internal/querystring"
	"github.com/pitabwire/flagconsole/model"
)

// IDNew is the path segment that opens the add form instead of an entity.
const IDNew = "new"

// API is the platform API surface of one resource. Implementations read the
// caller from the context's model.RequestContext.
type API[T any] interface {
	List(ctx context.Context, req listing.ListRequest) (listing.ListResult[T], error)
	Get(ctx context.Context, id string) (T, error)
	Create(ctx context.Context, cmd any) error
	Update(ctx context.Context, id string, cmd any) error
	Act(ctx context.Context, kind model.ConfirmationKind, id string) error
}

// Methods names the gateway operations backing a resource. Empty names mark
// unsupported operations.
type Methods struct {
	List   string
	Get    string
	Create string
	Update string
	// Actions maps each supported confirmation kind to its operation.
	Actions map[model.ConfirmationKind]string

	// ItemsKey and ItemKey name the response fields holding the list items
	// and the single item.
	ItemsKey string
	ItemKey  string
	// IDParam is the request field carrying the entity id; "id" when empty.
	IDParam string
}

// Action is a confirmable action offered on list rows.
type Action[T any] struct {
	Kind model.ConfirmationKind
	// Applies reports whether the action is offered for an item, e.g. enable
	// only on disabled items. Nil offers it on every item.
	Applies func(T) bool
}

// Drill links list rows to the list of another resource filtered to the
// row, e.g. from a feature to its event-rate rules.
type Drill[T any] struct {
	Resource string
	// Query returns a struct whose `url` tags name the target list's search
	// options.
	Query func(T) any
}

// Link is a row's link to a related list.
type Link struct {
	Resource string `json:"resource"`
	URL      string `json:"url"`
}

// Descriptor is everything the console needs to show one resource.
type Descriptor[T any] struct {
	// Name is the route segment and capability namespace ("accounts").
	Name string
	List listing.Descriptor

	// Add and Update are the form schemas; nil disables the form.
	Add    *formsession.Schema
	Update *formsession.Schema

	// AddSeed derives add-form values from the list's search options, e.g.
	// the parent feature of an event-rate rule. Optional.
	AddSeed func(options model.SearchOptions) map[string]any
	// Seed copies an item into update-form values.
	Seed func(T) map[string]any
	// BuildCreate turns a submitted add form into the create command.
	BuildCreate func(model.FormState) any
	// BuildUpdate turns a submitted update form into the update command,
	// carrying only dirty fields.
	BuildUpdate func(model.FormState) any

	Actions []Action[T]
	Drills  []Drill[T]

	ID    func(T) string
	Label func(T) string

	Methods Methods
}

// Capability returns the capability guarding op on this resource.
func (d *Descriptor[T]) Capability(op string) string {
	return d.Name + ":" + op
}

// ListCapability guards reading the list.
func (d *Descriptor[T]) ListCapability() string { return d.Capability("list") }

// CreateCapability guards the add form.
func (d *Descriptor[T]) CreateCapability() string { return d.Capability("create") }

// UpdateCapability guards the update form.
func (d *Descriptor[T]) UpdateCapability() string { return d.Capability("update") }

// ActionCapability guards a confirmable action.
func (d *Descriptor[T]) ActionCapability(kind model.ConfirmationKind) string {
	return d.Capability(string(kind))
}

// Supports reports whether the resource offers the action kind.
func (d *Descriptor[T]) Supports(kind model.ConfirmationKind) bool {
	return slices.ContainsFunc(d.Actions, func(a Action[T]) bool { return a.Kind == kind })
}

// ActionsFor returns the kinds offered for item, in declaration order.
func (d *Descriptor[T]) ActionsFor(item T) []model.ConfirmationKind {
	var out []model.ConfirmationKind
	for _, a := range d.Actions {
		if a.Applies == nil || a.Applies(item) {
			out = append(out, a.Kind)
		}
	}
	return out
}

// LinksFor returns the related-list links of item, in declaration order.
func (d *Descriptor[T]) LinksFor(item T) ([]Link, error) {
	if len(d.Drills) == 0 {
		return nil, nil
	}
	links := make([]Link, 0, len(d.Drills))
	for _, drill := range d.Drills {
		q, err := querystring.EncodeStruct(drill.Query(item))
		if err != nil {
			return nil, fmt.Errorf("%s: link to %s: %w", d.Name, drill.Resource, err)
		}
		u := "/" + drill.Resource
		if q != "" {
			u += "?" + q
		}
		links = append(links, Link{Resource: drill.Resource, URL: u})
	}
	return links, nil
}

// Ref returns the entity reference of item.
func (d *Descriptor[T]) Ref(item T) model.EntityRef {
	ref := model.EntityRef{Resource: d.Name, ID: d.ID(item)}
	if d.Label != nil {
		ref.Name = d.Label(item)
	}
	return ref
}

// Editable reports whether the update form exists.
func (d *Descriptor[T]) Editable() bool { return d.Update != nil && d.BuildUpdate != nil }

// Creatable reports whether the add form exists.
func (d *Descriptor[T]) Creatable() bool { return d.Add != nil && d.BuildCreate != nil }
