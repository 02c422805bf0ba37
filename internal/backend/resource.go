package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cast"

	"github.com/pitabwire/flagconsole/internal/listing"
	"github.com/pitabwire/flagconsole/internal/resource"
	"github.com/pitabwire/flagconsole/model"
)

// Caller sends one named gateway operation.
type Caller interface {
	Call(ctx context.Context, method string, req, resp any) error
}

// Resource implements resource.API[T] on top of a Caller using the
// operation names and response keys of a resource.Methods.
type Resource[T any] struct {
	caller  Caller
	methods resource.Methods
}

var _ resource.API[model.Account] = (*Resource[model.Account])(nil)

// NewResource creates a resource adapter.
func NewResource[T any](caller Caller, methods resource.Methods) *Resource[T] {
	return &Resource[T]{caller: caller, methods: methods}
}

// For creates the adapter for a descriptor.
func For[T any](caller Caller, d *resource.Descriptor[T]) *Resource[T] {
	return NewResource[T](caller, d.Methods)
}

// List fetches one page. Filters are sent as top-level request fields.
func (r *Resource[T]) List(ctx context.Context, req listing.ListRequest) (listing.ListResult[T], error) {
	if r.methods.List == "" {
		return listing.ListResult[T]{}, unsupported("list")
	}

	body := map[string]any{
		"pageSize":       req.PageSize,
		"cursor":         strconv.Itoa(req.Cursor),
		"orderBy":        req.OrderBy,
		"orderDirection": req.OrderDirection,
	}
	if req.SearchKeyword != "" {
		body["searchKeyword"] = req.SearchKeyword
	}
	for k, v := range req.Filters {
		body[k] = v
	}
	withEnvironment(ctx, body)

	var raw map[string]json.RawMessage
	if err := r.caller.Call(ctx, r.methods.List, body, &raw); err != nil {
		return listing.ListResult[T]{}, err
	}

	var out listing.ListResult[T]
	if data, ok := raw[r.methods.ItemsKey]; ok {
		if err := json.Unmarshal(data, &out.Items); err != nil {
			return listing.ListResult[T]{}, decodeFailure(r.methods.List, body, err)
		}
	}
	if data, ok := raw["cursor"]; ok {
		cursor, err := decodeScalar(data, cast.ToStringE)
		if err != nil {
			return listing.ListResult[T]{}, decodeFailure(r.methods.List, body, fmt.Errorf("cursor: %w", err))
		}
		out.Cursor = cursor
	}
	if data, ok := raw["totalCount"]; ok {
		total, err := decodeScalar(data, cast.ToIntE)
		if err != nil {
			return listing.ListResult[T]{}, decodeFailure(r.methods.List, body, fmt.Errorf("totalCount: %w", err))
		}
		out.TotalCount = total
	}
	return out, nil
}

// decodeScalar reads a JSON scalar the gateway may send as a number or a
// decimal string.
func decodeScalar[V any](data json.RawMessage, conv func(any) (V, error)) (V, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		var zero V
		return zero, err
	}
	return conv(v)
}

// Get fetches one item by id.
func (r *Resource[T]) Get(ctx context.Context, id string) (T, error) {
	var zero T
	if r.methods.Get == "" {
		return zero, unsupported("get")
	}

	body := map[string]any{r.idParam(): id}
	withEnvironment(ctx, body)

	var raw map[string]json.RawMessage
	if err := r.caller.Call(ctx, r.methods.Get, body, &raw); err != nil {
		return zero, err
	}
	data, ok := raw[r.methods.ItemKey]
	if !ok {
		return zero, decodeFailure(r.methods.Get, body, fmt.Errorf("response has no %q field", r.methods.ItemKey))
	}
	var item T
	if err := json.Unmarshal(data, &item); err != nil {
		return zero, decodeFailure(r.methods.Get, body, err)
	}
	return item, nil
}

// Create sends a create command.
func (r *Resource[T]) Create(ctx context.Context, cmd any) error {
	if r.methods.Create == "" {
		return unsupported("create")
	}
	body := map[string]any{"command": cmd}
	withEnvironment(ctx, body)
	return r.caller.Call(ctx, r.methods.Create, body, nil)
}

// Update sends an update command for id.
func (r *Resource[T]) Update(ctx context.Context, id string, cmd any) error {
	if r.methods.Update == "" {
		return unsupported("update")
	}
	body := map[string]any{r.idParam(): id, "command": cmd}
	withEnvironment(ctx, body)
	return r.caller.Call(ctx, r.methods.Update, body, nil)
}

// Act sends the operation bound to a confirmation kind.
func (r *Resource[T]) Act(ctx context.Context, kind model.ConfirmationKind, id string) error {
	method, ok := r.methods.Actions[kind]
	if !ok || method == "" {
		return unsupported(string(kind))
	}
	body := map[string]any{r.idParam(): id, "command": map[string]any{}}
	withEnvironment(ctx, body)
	return r.caller.Call(ctx, method, body, nil)
}

func (r *Resource[T]) idParam() string {
	if r.methods.IDParam != "" {
		return r.methods.IDParam
	}
	return "id"
}

func withEnvironment(ctx context.Context, body map[string]any) {
	if rctx := model.RequestContextFrom(ctx); rctx != nil && rctx.EnvironmentID != "" {
		body["environmentId"] = rctx.EnvironmentID
	}
}

func unsupported(op string) error {
	return fmt.Errorf("backend: %s is not supported by this resource", op)
}

func decodeFailure(method string, req any, err error) error {
	return &model.RequestError{
		Method:  method,
		Request: req,
		Err:     fmt.Errorf("backend: decode response: %w", err),
	}
}
