package model

// Well-known search option keys shared by every list page.
const (
	OptionQuery = "q"
	OptionSort  = "sort"
	OptionPage  = "page"
)

// SearchOptions is the set of list search options a list page is showing,
// keyed by option name. Values are strings, numbers, booleans or nil. A
// SearchOptions value is never mutated in place: every change produces a new
// map.
type SearchOptions map[string]any

// Clone returns a shallow copy of the options. Cloning nil yields an empty,
// non-nil map.
func (o SearchOptions) Clone() SearchOptions {
	out := make(SearchOptions, len(o))
	for k, v := range o {
		out[k] = v
	}
	return out
}

// With returns a copy of the options with key set to value. A nil value
// removes the key.
func (o SearchOptions) With(key string, value any) SearchOptions {
	out := o.Clone()
	if value == nil {
		delete(out, key)
		return out
	}
	out[key] = value
	return out
}

// Merge returns a copy of the options overlaid with other. Nil values in
// other remove the key.
func (o SearchOptions) Merge(other SearchOptions) SearchOptions {
	out := o.Clone()
	for k, v := range other {
		if v == nil {
			delete(out, k)
			continue
		}
		out[k] = v
	}
	return out
}

// Without returns a copy of the options with the given keys removed.
func (o SearchOptions) Without(keys ...string) SearchOptions {
	out := o.Clone()
	for _, k := range keys {
		delete(out, k)
	}
	return out
}

// Has reports whether key is present with a non-nil value.
func (o SearchOptions) Has(key string) bool {
	v, ok := o[key]
	return ok && v != nil
}

// SortDirection is the ordering direction understood by the platform API.
type SortDirection string

// Sort directions.
const (
	SortASC  SortDirection = "ASC"
	SortDESC SortDirection = "DESC"
)

// SortSpec is a concrete ordering: the field the backend orders by and the
// direction.
type SortSpec struct {
	OrderBy   string        `json:"order_by"`
	Direction SortDirection `json:"order_direction"`
}

// ListPage is one page of list results as shown to the user.
type ListPage[T any] struct {
	Items      []T  `json:"items"`
	TotalCount int  `json:"total_count"`
	Loading    bool `json:"loading"`
}

// ListState is the state of a list view.
type ListState string

// List view states.
const (
	ListIdle    ListState = "idle"
	ListLoading ListState = "loading"
	ListLoaded  ListState = "loaded"
	ListFailed  ListState = "failed"
)
