// Package sorting declares the sort tokens a list page accepts and resolves
// them into the ordering the platform API understands.
package sorting

import (
	"fmt"
	"slices"

	"github.com/pitabwire/flagconsole/model"
)

// Sort tokens shared by the console list pages. A leading "-" means
// descending.
const (
	CreatedAtDesc = "-createdAt"
	CreatedAtAsc  = "createdAt"
	NameAsc       = "name"
	NameDesc      = "-name"
)

// DefaultToken is the token a list page shows when the URL carries none.
const DefaultToken = CreatedAtDesc

// Entry maps one sort token to its ordering.
type Entry struct {
	Token string
	Spec  model.SortSpec
}

// Table is the sort vocabulary of one resource: an ordered set of declared
// tokens, the ordering for each mapped token, the token used when the input
// is not declared, and the ordering used for declared tokens that have no
// mapping of their own.
type Table struct {
	tokens       []string
	specs        map[string]model.SortSpec
	defaultToken string
	fallback     model.SortSpec
}

// NewTable builds a table. Every entry's token is declared in entry order.
// Extra tokens can be declared without a mapping; they resolve to fallback.
// It panics if defaultToken is not declared, since that is a programming
// error in a resource descriptor.
func NewTable(defaultToken string, fallback model.SortSpec, entries []Entry, extra ...string) *Table {
	t := &Table{
		specs:        make(map[string]model.SortSpec, len(entries)),
		defaultToken: defaultToken,
		fallback:     fallback,
	}
	for _, e := range entries {
		if _, dup := t.specs[e.Token]; dup {
			continue
		}
		t.tokens = append(t.tokens, e.Token)
		t.specs[e.Token] = e.Spec
	}
	for _, tok := range extra {
		if !slices.Contains(t.tokens, tok) {
			t.tokens = append(t.tokens, tok)
		}
	}
	if !slices.Contains(t.tokens, defaultToken) {
		panic(fmt.Sprintf("sorting: default token %q is not declared", defaultToken))
	}
	return t
}

// Tokens returns the declared tokens in declaration order.
func (t *Table) Tokens() []string {
	return slices.Clone(t.tokens)
}

// IsValid reports whether token is one of the declared tokens.
func (t *Table) IsValid(token string) bool {
	return slices.Contains(t.tokens, token)
}

// DefaultToken returns the token used for undeclared input.
func (t *Table) DefaultToken() string {
	return t.defaultToken
}

// Default returns the ordering a list shows when no valid token is given.
func (t *Table) Default() model.SortSpec {
	return t.Resolve(t.defaultToken)
}

// Resolve maps a token to its ordering. It is total: undeclared tokens,
// including "", resolve as the default token.
func (t *Table) Resolve(token string) model.SortSpec {
	if !t.IsValid(token) {
		token = t.defaultToken
	}
	if spec, ok := t.specs[token]; ok {
		return spec
	}
	return t.fallback
}

// ResolveAny resolves an untyped option value. Non-string values resolve to
// the default.
func (t *Table) ResolveAny(v any) model.SortSpec {
	s, _ := v.(string)
	return t.Resolve(s)
}

// Normalize returns a copy of options whose "sort" is a declared token,
// replacing a missing or undeclared one with the default token.
func (t *Table) Normalize(options model.SearchOptions) model.SearchOptions {
	s, _ := options[model.OptionSort].(string)
	if t.IsValid(s) {
		return options.Clone()
	}
	return options.With(model.OptionSort, t.defaultToken)
}

// Standard builds the table most console resources use: created-at in both
// directions, name ascending and descending, "-createdAt" as the default
// token, and fallback for declared tokens without a mapping.
func Standard(createdField, nameField string, fallback model.SortSpec, withNameDesc bool) *Table {
	entries := []Entry{
		{Token: CreatedAtAsc, Spec: model.SortSpec{OrderBy: createdField, Direction: model.SortASC}},
		{Token: CreatedAtDesc, Spec: model.SortSpec{OrderBy: createdField, Direction: model.SortDESC}},
		{Token: NameAsc, Spec: model.SortSpec{OrderBy: nameField, Direction: model.SortASC}},
	}
	if withNameDesc {
		entries = append(entries, Entry{Token: NameDesc, Spec: model.SortSpec{OrderBy: nameField, Direction: model.SortDESC}})
	}
	return NewTable(DefaultToken, fallback, entries, NameDesc)
}
