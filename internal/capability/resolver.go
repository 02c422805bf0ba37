// Package capability resolves and caches the console capabilities granted to a
// user, and maps console roles to capabilities from static configuration.
package capability

import (
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/pitabwire/flagconsole/model"
)

const defaultCacheSize = 4096

// CacheObserver receives cache hit/miss notifications.
type CacheObserver interface {
	RecordCapabilityCacheHit()
	RecordCapabilityCacheMiss()
}

// Resolver implements model.CapabilityResolver with an expiring LRU cache
// keyed by subject, organization and environment.
type Resolver struct {
	evaluator model.PolicyEvaluator
	cache     *expirable.LRU[string, model.CapabilitySet]
	observer  CacheObserver
}

// NewResolver creates a new Resolver with the given evaluator and cache TTL.
func NewResolver(evaluator model.PolicyEvaluator, ttl time.Duration) *Resolver {
	return &Resolver{
		evaluator: evaluator,
		cache:     expirable.NewLRU[string, model.CapabilitySet](defaultCacheSize, nil, ttl),
	}
}

// SetObserver installs a cache observer. Passing nil disables observation.
func (r *Resolver) SetObserver(o CacheObserver) {
	r.observer = o
}

func cacheKey(rctx *model.RequestContext) string {
	return rctx.SubjectID + ":" + rctx.OrganizationID + ":" + rctx.EnvironmentID
}

// Resolve returns the full capability set for the given context. Results are
// cached for the configured TTL.
func (r *Resolver) Resolve(rctx *model.RequestContext) (model.CapabilitySet, error) {
	key := cacheKey(rctx)

	if caps, ok := r.cache.Get(key); ok {
		if r.observer != nil {
			r.observer.RecordCapabilityCacheHit()
		}
		return caps, nil
	}
	if r.observer != nil {
		r.observer.RecordCapabilityCacheMiss()
	}

	caps, err := r.evaluator.ResolveCapabilities(rctx)
	if err != nil {
		return nil, err
	}
	r.cache.Add(key, caps)
	return caps, nil
}

// Invalidate clears cached capabilities for the given user in every
// environment of the organization.
func (r *Resolver) Invalidate(subjectID, organizationID string) {
	prefix := subjectID + ":" + organizationID + ":"
	for _, key := range r.cache.Keys() {
		if strings.HasPrefix(key, prefix) {
			r.cache.Remove(key)
		}
	}
}
