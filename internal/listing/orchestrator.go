package listing

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pitabwire/flagconsole/model"
)

// Fetcher lists one page of a resource.
type Fetcher[T any] interface {
	List(ctx context.Context, req ListRequest) (ListResult[T], error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc[T any] func(ctx context.Context, req ListRequest) (ListResult[T], error)

// List calls f.
func (f FetcherFunc[T]) List(ctx context.Context, req ListRequest) (ListResult[T], error) {
	return f(ctx, req)
}

// Fetch outcomes reported to an Observer.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeStale   = "stale"
)

// Observer is notified when a fetch completes.
type Observer interface {
	ObserveListFetch(resource, outcome string, duration time.Duration)
}

// Snapshot is a copy of what a list view is showing.
type Snapshot[T any] struct {
	Page    model.ListPage[T]   `json:"page"`
	State   model.ListState     `json:"state"`
	Options model.SearchOptions `json:"options"`
	PageNum int                 `json:"page_number"`
	Error   string              `json:"error,omitempty"`
}

// Orchestrator owns the list state of one list view. Every fetch is tagged
// with a sequence number; a response is applied only if no later fetch has
// been issued, so the view always reflects the most recently requested page
// regardless of completion order.
type Orchestrator[T any] struct {
	desc     Descriptor
	fetcher  Fetcher[T]
	observer Observer
	logger   *zap.Logger

	mu      sync.Mutex
	seq     uint64
	state   model.ListState
	page    model.ListPage[T]
	options model.SearchOptions
	pageNum int
	lastErr error
}

// Option configures an Orchestrator.
type Option func(*options)

type options struct {
	observer Observer
	logger   *zap.Logger
}

// WithObserver reports fetch outcomes to o.
func WithObserver(o Observer) Option {
	return func(opts *options) { opts.observer = o }
}

// WithLogger sets the logger used for fetch failures.
func WithLogger(l *zap.Logger) Option {
	return func(opts *options) { opts.logger = l }
}

// New creates an idle orchestrator.
func New[T any](desc Descriptor, fetcher Fetcher[T], opts ...Option) *Orchestrator[T] {
	cfg := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Orchestrator[T]{
		desc:     desc,
		fetcher:  fetcher,
		observer: cfg.observer,
		logger:   cfg.logger.With(zap.String("resource", desc.Resource)),
		state:    model.ListIdle,
		options:  model.SearchOptions{},
		pageNum:  1,
	}
}

// Descriptor returns the list descriptor.
func (o *Orchestrator[T]) Descriptor() Descriptor {
	return o.desc
}

// FetchPage fetches one page for the given options and records them as the
// current options. It reports whether the response was applied; a response
// superseded by a later fetch is dropped and reported as not applied with a
// nil error. On failure the previous items stay in place.
func (o *Orchestrator[T]) FetchPage(ctx context.Context, opts model.SearchOptions, page int) (bool, error) {
	if page < 1 {
		page = 1
	}
	req := o.desc.BuildRequest(opts, page)

	o.mu.Lock()
	o.seq++
	id := o.seq
	o.options = opts.Clone()
	o.pageNum = page
	o.state = model.ListLoading
	o.page.Loading = true
	o.mu.Unlock()

	start := time.Now()
	result, err := o.fetcher.List(ctx, req)
	elapsed := time.Since(start)

	o.mu.Lock()
	defer o.mu.Unlock()

	if id != o.seq {
		o.logger.Debug("dropping superseded list response",
			zap.Uint64("request_id", id),
			zap.Uint64("latest_id", o.seq),
		)
		o.observe(OutcomeStale, elapsed)
		return false, nil
	}

	o.page.Loading = false
	if err != nil {
		o.state = model.ListFailed
		o.lastErr = err
		o.logger.Warn("list fetch failed",
			zap.Int("page", page),
			zap.Int("cursor", req.Cursor),
			zap.Error(err),
		)
		o.observe(OutcomeFailure, elapsed)
		return true, err
	}

	items := result.Items
	if items == nil {
		items = []T{}
	}
	o.page.Items = items
	o.page.TotalCount = result.TotalCount
	o.state = model.ListLoaded
	o.lastErr = nil
	o.observe(OutcomeSuccess, elapsed)
	return true, nil
}

// Refresh re-fetches the current options and page.
func (o *Orchestrator[T]) Refresh(ctx context.Context) (bool, error) {
	o.mu.Lock()
	opts, page := o.options.Clone(), o.pageNum
	o.mu.Unlock()
	return o.FetchPage(ctx, opts, page)
}

// Current returns the options and page of the most recent fetch.
func (o *Orchestrator[T]) Current() (model.SearchOptions, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.options.Clone(), o.pageNum
}

// Items returns a copy of the items currently shown.
func (o *Orchestrator[T]) Items() []T {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.copyItems()
}

// LastError returns the error of the most recent applied fetch, if it failed.
func (o *Orchestrator[T]) LastError() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastErr
}

// Snapshot returns a copy of the list state.
func (o *Orchestrator[T]) Snapshot() Snapshot[T] {
	o.mu.Lock()
	defer o.mu.Unlock()

	s := Snapshot[T]{
		Page: model.ListPage[T]{
			Items:      o.copyItems(),
			TotalCount: o.page.TotalCount,
			Loading:    o.page.Loading,
		},
		State:   o.state,
		Options: o.options.Clone(),
		PageNum: o.pageNum,
	}
	if o.lastErr != nil {
		s.Error = o.lastErr.Error()
	}
	return s
}

func (o *Orchestrator[T]) copyItems() []T {
	items := make([]T, len(o.page.Items))
	copy(items, o.page.Items)
	return items
}

func (o *Orchestrator[T]) observe(outcome string, d time.Duration) {
	if o.observer != nil {
		o.observer.ObserveListFetch(o.desc.Resource, outcome, d)
	}
}
