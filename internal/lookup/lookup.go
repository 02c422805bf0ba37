// Package lookup serves the option lists of select fields, such as the
// projects offered by the environment form or the goals offered by the
// event-rate form. Lists are fetched through the platform API and cached per
// organization and environment.
package lookup

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/cases"

	"github.com/pitabwire/flagconsole/internal/config"
	"github.com/pitabwire/flagconsole/internal/observability"
	"github.com/pitabwire/flagconsole/internal/resource"
	"github.com/pitabwire/flagconsole/model"
)

// MaxOptions bounds the number of items fetched for one option list.
const MaxOptions = 1000

// Option is one selectable value.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Response is a resolved option list.
type Response struct {
	Options []Option `json:"options"`
	Cached  bool     `json:"cached"`
}

// Source fetches the complete option list of one lookup.
type Source interface {
	Options(ctx context.Context) ([]Option, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) ([]Option, error)

// Options calls f.
func (f SourceFunc) Options(ctx context.Context) ([]Option, error) {
	return f(ctx)
}

// FromResource lists the first MaxOptions items of a resource and turns each
// accepted item into an option labelled by the descriptor. A nil accept keeps
// every item.
func FromResource[T any](api resource.API[T], d *resource.Descriptor[T], accept func(T) bool) Source {
	return SourceFunc(func(ctx context.Context) ([]Option, error) {
		req := d.List.BuildRequest(model.SearchOptions{}, 1)
		req.PageSize = MaxOptions
		res, err := api.List(ctx, req)
		if err != nil {
			return nil, err
		}
		out := make([]Option, 0, len(res.Items))
		for _, item := range res.Items {
			if accept != nil && !accept(item) {
				continue
			}
			opt := Option{Value: d.ID(item)}
			if d.Label != nil {
				opt.Label = d.Label(item)
			}
			if opt.Label == "" {
				opt.Label = opt.Value
			}
			out = append(out, opt)
		}
		return out, nil
	})
}

// CacheObserver receives cache hit/miss notifications.
type CacheObserver interface {
	RecordLookupCacheHit(lookup string)
	RecordLookupCacheMiss(lookup string)
}

// Provider resolves named lookups with caching. Concurrent misses for the
// same key share one fetch.
type Provider struct {
	sources  map[string]Source
	cache    *expirable.LRU[string, []Option]
	group    singleflight.Group
	observer CacheObserver
	logger   *zap.Logger
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithObserver reports cache hits and misses to o.
func WithObserver(o CacheObserver) ProviderOption {
	return func(p *Provider) { p.observer = o }
}

// WithLogger sets the provider's logger.
func WithLogger(l *zap.Logger) ProviderOption {
	return func(p *Provider) { p.logger = l }
}

// NewProvider creates a provider. Non-positive cache settings select 1000
// entries and a five minute TTL.
func NewProvider(cfg config.CacheConfig, opts ...ProviderOption) *Provider {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	size := cfg.MaxEntries
	if size <= 0 {
		size = 1000
	}
	p := &Provider{
		sources: make(map[string]Source),
		cache:   expirable.NewLRU[string, []Option](size, nil, ttl),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Register adds a named lookup. Registering a name twice replaces the source.
func (p *Provider) Register(name string, src Source) {
	p.sources[name] = src
}

// Names returns the registered lookup names, sorted.
func (p *Provider) Names() []string {
	names := make([]string, 0, len(p.sources))
	for name := range p.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the options of the named lookup whose label contains query,
// ignoring case. An empty query returns every option.
func (p *Provider) Lookup(ctx context.Context, name, query string) (Response, error) {
	src, ok := p.sources[name]
	if !ok {
		return Response{}, model.NewNotFoundError(fmt.Sprintf("lookup %q not found", name))
	}

	ctx, span := observability.StartSpan(ctx, "console.lookup", observability.AttrLookup.String(name))
	defer span.End()

	key := cacheKey(name, model.RequestContextFrom(ctx))
	options, hit := p.cache.Get(key)
	span.SetAttributes(observability.AttrCacheHit.Bool(hit))
	if hit {
		p.recordHit(name)
		return Response{Options: p.filter(options, query), Cached: true}, nil
	}
	p.recordMiss(name)

	v, err, shared := p.group.Do(key, func() (any, error) {
		options, err := src.Options(ctx)
		if err != nil {
			return nil, err
		}
		p.cache.Add(key, options)
		return options, nil
	})
	if err != nil {
		p.logger.Warn("lookup fetch failed", zap.String("lookup", name), zap.Error(err))
		return Response{}, fmt.Errorf("lookup %q: %w", name, err)
	}
	if shared {
		p.logger.Debug("lookup fetch shared", zap.String("lookup", name))
	}
	return Response{Options: p.filter(v.([]Option), query)}, nil
}

// Invalidate drops every cached list of the named lookup.
func (p *Provider) Invalidate(name string) {
	prefix := name + "|"
	for _, key := range p.cache.Keys() {
		if strings.HasPrefix(key, prefix) {
			p.cache.Remove(key)
		}
	}
}

// CacheLen returns the number of cached lists.
func (p *Provider) CacheLen() int {
	return p.cache.Len()
}

func cacheKey(name string, rctx *model.RequestContext) string {
	if rctx == nil {
		return name + "|"
	}
	return name + "|" + rctx.OrganizationID + "|" + rctx.EnvironmentID
}

func (p *Provider) filter(options []Option, query string) []Option {
	if query == "" {
		return options
	}
	fold := cases.Fold()
	q := fold.String(query)
	var out []Option
	for _, opt := range options {
		if strings.Contains(fold.String(opt.Label), q) {
			out = append(out, opt)
		}
	}
	return out
}

func (p *Provider) recordHit(name string) {
	if p.observer != nil {
		p.observer.RecordLookupCacheHit(name)
	}
}

func (p *Provider) recordMiss(name string) {
	if p.observer != nil {
		p.observer.RecordLookupCacheMiss(name)
	}
}
