// Package console binds the console's resources to the platform API: one
// page per resource and the option lists their forms select from.
package console

import (
	"github.com/pitabwire/flagconsole/internal/backend"
	"github.com/pitabwire/flagconsole/internal/lookup"
	"github.com/pitabwire/flagconsole/internal/page"
	"github.com/pitabwire/flagconsole/internal/resource"
	"github.com/pitabwire/flagconsole/model"
)

// Register adds every console resource to pages, in navigation order, and
// the lookups of select fields to lookups.
func Register(pages *page.Registry, lookups *lookup.Provider, caller backend.Caller) {
	features := bind(pages, caller, resource.Features())
	bind(pages, caller, resource.Experiments())
	goals := bind(pages, caller, resource.Goals())
	bind(pages, caller, resource.EventRates())
	bind(pages, caller, resource.Pushes())
	bind(pages, caller, resource.Notifications())
	bind(pages, caller, resource.Webhooks())
	bind(pages, caller, resource.APIKeys())
	bind(pages, caller, resource.Accounts())
	environments := bind(pages, caller, resource.Environments())
	projects := bind(pages, caller, resource.Projects())
	bind(pages, caller, resource.AuditLogs())

	lookups.Register("features", lookup.FromResource(features, resource.Features(),
		func(f model.Feature) bool { return !f.Archived }))
	lookups.Register("goals", lookup.FromResource(goals, resource.Goals(),
		func(g model.Goal) bool { return !g.Archived }))
	lookups.Register("environments", lookup.FromResource(environments, resource.Environments(),
		func(e model.Environment) bool { return !e.Archived }))
	lookups.Register("projects", lookup.FromResource(projects, resource.Projects(),
		func(p model.Project) bool { return !p.Disabled }))
}

func bind[T any](pages *page.Registry, caller backend.Caller, d *resource.Descriptor[T]) resource.API[T] {
	api := backend.For(caller, d)
	page.Register[T](pages, d, api)
	return api
}
