// Package listing fetches pages of a resource list from the platform API and
// keeps the page a list view is showing.
package listing

import (
	"github.com/pitabwire/flagconsole/internal/querystring"
	"github.com/pitabwire/flagconsole/internal/sorting"
	"github.com/pitabwire/flagconsole/model"
)

// DefaultPageSize is the page size of every console list unless a resource
// overrides it.
const DefaultPageSize = 50

// FilterKind selects how a query option becomes a request filter.
type FilterKind int

// Filter kinds.
const (
	// FilterString passes a non-empty option through unchanged.
	FilterString FilterKind = iota
	// FilterNumber coerces the option to an integer. Non-numeric input is
	// dropped.
	FilterNumber
	// FilterTristate sends true for "true", false for any other non-empty
	// value and nothing when the option is absent.
	FilterTristate
	// FilterInverted sends true only for "false", as in enabled=false meaning
	// disabled=true. Other non-empty values send false.
	FilterInverted
	// FilterBool is always sent: true only when the option is "true".
	FilterBool
)

// Filter declares one resource-specific filter.
type Filter struct {
	Option string
	Param  string
	Kind   FilterKind
}

// Descriptor describes how one resource's list is fetched.
type Descriptor struct {
	Resource string
	PageSize int
	Sort     *sorting.Table
	Filters  []Filter
}

// ListRequest is the list call sent to the platform API.
type ListRequest struct {
	PageSize       int                 `json:"pageSize"`
	Cursor         int                 `json:"cursor"`
	OrderBy        string              `json:"orderBy"`
	OrderDirection model.SortDirection `json:"orderDirection"`
	SearchKeyword  string              `json:"searchKeyword,omitempty"`
	Filters        map[string]any      `json:"filters,omitempty"`
}

// ListResult is one page returned by the platform API.
type ListResult[T any] struct {
	Items      []T
	Cursor     string
	TotalCount int
}

// Cursor returns the offset of the first item of a 1-based page. Pages below
// one are treated as the first page.
func Cursor(page, pageSize int) int {
	if page < 1 {
		page = 1
	}
	return (page - 1) * pageSize
}

// BuildRequest turns search options and a page number into a list request.
func (d Descriptor) BuildRequest(options model.SearchOptions, page int) ListRequest {
	size := d.pageSize()
	sort := d.Sort.ResolveAny(options[model.OptionSort])

	req := ListRequest{
		PageSize:       size,
		Cursor:         Cursor(page, size),
		OrderBy:        sort.OrderBy,
		OrderDirection: sort.Direction,
		SearchKeyword:  querystring.String(options, model.OptionQuery),
	}

	for _, f := range d.Filters {
		v, ok := f.resolve(options)
		if !ok {
			continue
		}
		if req.Filters == nil {
			req.Filters = make(map[string]any, len(d.Filters))
		}
		req.Filters[f.Param] = v
	}
	return req
}

func (d Descriptor) pageSize() int {
	if d.PageSize > 0 {
		return d.PageSize
	}
	return DefaultPageSize
}

func (f Filter) resolve(options model.SearchOptions) (any, bool) {
	switch f.Kind {
	case FilterString:
		s := querystring.String(options, f.Option)
		return s, s != ""
	case FilterNumber:
		return querystring.Int(options, f.Option)
	case FilterTristate:
		if b := querystring.Tristate(options, f.Option); b != nil {
			return *b, true
		}
	case FilterInverted:
		if b := querystring.Negated(options, f.Option); b != nil {
			return *b, true
		}
	case FilterBool:
		b := querystring.Tristate(options, f.Option)
		return b != nil && *b, true
	}
	return nil, false
}
