// Package openapi loads the platform gateway's OpenAPI document and indexes
// its operations by operationId.
package openapi

import (
	"context"
	_ "embed"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/pitabwire/flagconsole/model"
)

// DefaultGateway is the built-in description of the platform gateway.
//
//go:embed gateway.yaml
var DefaultGateway []byte

// idempotentExtension marks POST operations that only read and may be
// retried.
const idempotentExtension = "x-idempotent"

// Operation is one gateway operation.
type Operation struct {
	ID         string
	Method     string
	Path       string
	BaseURL    string
	Required   []string
	Idempotent bool
}

// URL returns the operation's absolute URL.
func (o Operation) URL() string {
	return strings.TrimRight(o.BaseURL, "/") + o.Path
}

// Index is an in-memory index of gateway operations.
type Index struct {
	operations map[string]Operation
}

// LoadFile parses the document at path. An empty path loads DefaultGateway.
// baseURL overrides the document's first server URL when set.
func LoadFile(ctx context.Context, path, baseURL string) (*Index, error) {
	if path == "" {
		return Load(ctx, DefaultGateway, baseURL)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("openapi: reading %s: %w", path, err)
	}
	return Load(ctx, data, baseURL)
}

// Load parses and validates an OpenAPI document and indexes every operation
// that has an operationId.
func Load(ctx context.Context, data []byte, baseURL string) (*Index, error) {
	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = false

	doc, err := loader.LoadFromData(data)
	if err != nil {
		return nil, fmt.Errorf("openapi: parsing gateway document: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("openapi: validating gateway document: %w", err)
	}

	if baseURL == "" && len(doc.Servers) > 0 {
		baseURL = doc.Servers[0].URL
	}

	idx := &Index{operations: make(map[string]Operation)}
	for path, item := range doc.Paths.Map() {
		for method, op := range item.Operations() {
			if op.OperationID == "" {
				continue
			}
			if _, dup := idx.operations[op.OperationID]; dup {
				return nil, fmt.Errorf("openapi: duplicate operationId %q", op.OperationID)
			}
			idx.operations[op.OperationID] = Operation{
				ID:         op.OperationID,
				Method:     method,
				Path:       path,
				BaseURL:    baseURL,
				Required:   requiredFields(op),
				Idempotent: method == http.MethodGet || op.Extensions[idempotentExtension] == true,
			}
		}
	}
	return idx, nil
}

func requiredFields(op *openapi3.Operation) []string {
	if op.RequestBody == nil || op.RequestBody.Value == nil {
		return nil
	}
	ct := op.RequestBody.Value.Content.Get("application/json")
	if ct == nil || ct.Schema == nil || ct.Schema.Value == nil {
		return nil
	}
	return append([]string(nil), ct.Schema.Value.Required...)
}

// Operation returns the named operation.
func (idx *Index) Operation(id string) (Operation, bool) {
	op, ok := idx.operations[id]
	return op, ok
}

// OperationIDs returns every indexed operation id, sorted.
func (idx *Index) OperationIDs() []string {
	ids := make([]string, 0, len(idx.operations))
	for id := range idx.operations {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ValidateRequest checks a request body against the operation's required
// fields. It returns nil when the body is acceptable.
func (idx *Index) ValidateRequest(id string, body map[string]any) []model.FieldError {
	op, ok := idx.operations[id]
	if !ok {
		return []model.FieldError{{Code: model.ErrNotFound, Message: fmt.Sprintf("operation %s not found", id)}}
	}
	var errs []model.FieldError
	for _, name := range op.Required {
		if _, exists := body[name]; !exists {
			errs = append(errs, model.FieldError{
				Field:   name,
				Code:    model.CodeRequired,
				Message: fmt.Sprintf("%s is required", name),
			})
		}
	}
	return errs
}
