package page

import (
	"context"
	"fmt"

	"github.com/pitabwire/flagconsole/internal/i18n"
	"github.com/pitabwire/flagconsole/internal/resource"
	"github.com/pitabwire/flagconsole/model"
)

// Factory creates a fresh page.
type Factory func(deps Deps) Page

// Registry holds the page factories of the console's resources, in
// navigation order.
type Registry struct {
	factories map[string]Factory
	listCaps  map[string]string
	order     []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		listCaps:  make(map[string]string),
	}
}

// Register adds the page of a resource backed by api.
func Register[T any](r *Registry, d *resource.Descriptor[T], api resource.API[T]) {
	if _, ok := r.factories[d.Name]; !ok {
		r.order = append(r.order, d.Name)
	}
	r.factories[d.Name] = func(deps Deps) Page {
		return New(d, api, deps)
	}
	r.listCaps[d.Name] = d.ListCapability()
}

// Names returns the registered resources in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of registered resources.
func (r *Registry) Len() int {
	return len(r.order)
}

// New creates the page of a resource.
func (r *Registry) New(name string, deps Deps) (Page, error) {
	f, ok := r.factories[name]
	if !ok {
		return nil, &model.ErrorEnvelope{
			Code:    model.ErrUnsupportedRoute,
			Message: fmt.Sprintf("unknown resource %q", name),
		}
	}
	return f(deps), nil
}

// Open creates the page named by path and navigates it.
func (r *Registry) Open(ctx context.Context, caps model.CapabilitySet, path, query string, deps Deps) (Page, error) {
	route, err := ParseRoute(path)
	if err != nil {
		return nil, err
	}
	p, err := r.New(route.Resource, deps)
	if err != nil {
		return nil, err
	}
	if err := p.Navigate(ctx, caps, path, query); err != nil {
		return nil, err
	}
	return p, nil
}

// NavigationItem is one entry of the console menu.
type NavigationItem struct {
	Resource string `json:"resource"`
	Label    string `json:"label"`
	Route    string `json:"route"`
}

// Navigation returns the resources whose list caps grants, labelled in the
// formatter's language.
func (r *Registry) Navigation(caps model.CapabilitySet, f i18n.Formatter) []NavigationItem {
	items := []NavigationItem{}
	for _, name := range r.order {
		if !caps.Has(r.listCaps[name]) {
			continue
		}
		items = append(items, NavigationItem{
			Resource: name,
			Label:    f.Message("resource."+name, nil),
			Route:    "/" + name,
		})
	}
	return items
}
