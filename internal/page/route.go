package page

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/pitabwire/flagconsole/internal/querystring"
	"github.com/pitabwire/flagconsole/internal/resource"
	"github.com/pitabwire/flagconsole/model"
)

// Overlay is the editing overlay a route shows over the list.
type Overlay string

// Overlays.
const (
	OverlayNone   Overlay = ""
	OverlayAdd    Overlay = "add"
	OverlayUpdate Overlay = "update"
)

// Route is a parsed console path: "/{resource}" shows the list,
// "/{resource}/new" the add form and "/{resource}/{id}" the update form of
// one entity.
type Route struct {
	Resource string `json:"resource"`
	ID       string `json:"id,omitempty"`
}

// ParseRoute parses a console path. Paths with more than two segments are
// rejected.
func ParseRoute(path string) (Route, error) {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return Route{}, unsupportedRoute(path)
	}
	parts := strings.Split(trimmed, "/")
	if len(parts) > 2 {
		return Route{}, unsupportedRoute(path)
	}

	r := Route{Resource: parts[0]}
	if len(parts) == 2 {
		id, err := url.PathUnescape(parts[1])
		if err != nil || id == "" {
			return Route{}, unsupportedRoute(path)
		}
		r.ID = id
	}
	return r, nil
}

// Overlay returns the overlay the route opens.
func (r Route) Overlay() Overlay {
	switch r.ID {
	case "":
		return OverlayNone
	case resource.IDNew:
		return OverlayAdd
	default:
		return OverlayUpdate
	}
}

// List returns the route of the list under the overlay.
func (r Route) List() Route {
	return Route{Resource: r.Resource}
}

// Path returns the route as a console path.
func (r Route) Path() string {
	if r.ID == "" {
		return "/" + r.Resource
	}
	return "/" + r.Resource + "/" + url.PathEscape(r.ID)
}

// URL returns the route's path with the list's search options and page in
// the query string. Page 1 is left implicit.
func (r Route) URL(options model.SearchOptions, page int) string {
	q := options.Without(model.OptionPage)
	if page > 1 {
		q = q.With(model.OptionPage, page)
	}
	encoded := querystring.Encode(q)
	if encoded == "" {
		return r.Path()
	}
	return r.Path() + "?" + encoded
}

func unsupportedRoute(path string) *model.ErrorEnvelope {
	return &model.ErrorEnvelope{
		Code:    model.ErrUnsupportedRoute,
		Message: fmt.Sprintf("unsupported console route %q", path),
	}
}
