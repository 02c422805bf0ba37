package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/pitabwire/flagconsole/internal/i18n"
	"github.com/pitabwire/flagconsole/internal/observability"
	"github.com/pitabwire/flagconsole/internal/page"
	"github.com/pitabwire/flagconsole/model"
)

// DefaultTTL is the idle lifetime of a session when none is configured.
const DefaultTTL = 12 * time.Hour

// ActiveObserver is told how many sessions are live in this process.
type ActiveObserver interface {
	SetSessionsActive(count float64)
}

// Result is what a session operation reports to the browser.
type Result struct {
	SessionID string              `json:"session_id"`
	View      *page.View          `json:"view,omitempty"`
	History   []page.HistoryEntry `json:"history,omitempty"`
	ExpiresAt time.Time           `json:"expires_at"`
}

// Session is one live console session. Operations on a session are
// serialized.
type Session struct {
	ID             string
	SubjectID      string
	OrganizationID string

	mu            sync.Mutex
	environmentID string
	page          page.Page
	history       *page.Recorder
	version       int
	createdAt     time.Time
	expiresAt     time.Time
}

// Manager creates, restores and runs console sessions.
type Manager struct {
	store       Store
	pages       *page.Registry
	catalog     *i18n.Catalog
	ttl         time.Duration
	observer    page.Observer
	invalidator page.Invalidator
	active      ActiveObserver
	logger      *zap.Logger
	now         func() time.Time

	mu   sync.Mutex
	live map[string]*Session
}

// Option configures a Manager.
type Option func(*Manager)

// WithTTL sets the idle lifetime of a session.
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithCatalog renders messages in each request's language.
func WithCatalog(c *i18n.Catalog) Option {
	return func(m *Manager) { m.catalog = c }
}

// WithPageObserver reports page events.
func WithPageObserver(o page.Observer) Option {
	return func(m *Manager) { m.observer = o }
}

// WithInvalidator drops cached lookups after mutations.
func WithInvalidator(inv page.Invalidator) Option {
	return func(m *Manager) { m.invalidator = inv }
}

// WithActiveObserver reports the number of live sessions.
func WithActiveObserver(o ActiveObserver) Option {
	return func(m *Manager) { m.active = o }
}

// WithLogger sets the manager's logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates a manager persisting to store.
func NewManager(store Store, pages *page.Registry, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		pages:  pages,
		ttl:    DefaultTTL,
		logger: zap.NewNop(),
		now:    func() time.Time { return time.Now().UTC() },
		live:   make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create starts a session for the caller. When path is set the session
// navigates there.
func (m *Manager) Create(ctx context.Context, caps model.CapabilitySet, path, query string) (Result, error) {
	rctx := model.RequestContextFrom(ctx)
	if rctx == nil {
		return Result{}, model.NewUnauthorizedError("authentication required")
	}

	now := m.now()
	s := &Session{
		ID:             ulid.Make().String(),
		SubjectID:      rctx.SubjectID,
		OrganizationID: rctx.OrganizationID,
		environmentID:  rctx.EnvironmentID,
		history:        &page.Recorder{},
		createdAt:      now,
		expiresAt:      now.Add(m.ttl),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var navErr error
	if path != "" {
		navErr = m.navigate(ctx, caps, s, path, query)
	}

	if err := m.store.Create(ctx, m.record(s)); err != nil {
		return Result{}, fmt.Errorf("persist console session: %w", err)
	}
	m.mu.Lock()
	m.live[s.ID] = s
	m.mu.Unlock()
	m.reportActive()

	m.logger.Info("console session created",
		zap.String("session_id", s.ID),
		zap.String("subject_id", s.SubjectID),
	)
	return m.result(s, caps), navErr
}

// View returns the session's current view.
func (m *Manager) View(ctx context.Context, caps model.CapabilitySet, id string) (Result, error) {
	return m.do(ctx, caps, id, func(*Session) error { return nil })
}

// Navigate moves the session to path, switching pages when the resource
// changes.
func (m *Manager) Navigate(ctx context.Context, caps model.CapabilitySet, id, path, query string) (Result, error) {
	return m.do(ctx, caps, id, func(s *Session) error {
		return m.navigate(ctx, caps, s, path, query)
	})
}

// Back handles a history pop.
func (m *Manager) Back(ctx context.Context, caps model.CapabilitySet, id string) (Result, error) {
	return m.withPage(ctx, caps, id, func(p page.Page) error {
		p.Back()
		return nil
	})
}

// Search changes the list's search options.
func (m *Manager) Search(ctx context.Context, caps model.CapabilitySet, id string, options model.SearchOptions) (Result, error) {
	return m.withPage(ctx, caps, id, func(p page.Page) error {
		return p.ChangeSearch(ctx, options)
	})
}

// ChangePage moves the list to another page.
func (m *Manager) ChangePage(ctx context.Context, caps model.CapabilitySet, id string, pageNum int) (Result, error) {
	return m.withPage(ctx, caps, id, func(p page.Page) error {
		return p.ChangePage(ctx, pageNum)
	})
}

// OpenForm opens the update form of entityID, or the add form when entityID
// is empty.
func (m *Manager) OpenForm(ctx context.Context, caps model.CapabilitySet, id, entityID string) (Result, error) {
	return m.withPage(ctx, caps, id, func(p page.Page) error {
		if entityID == "" {
			return p.OpenAdd(ctx, caps)
		}
		return p.OpenUpdate(ctx, caps, entityID)
	})
}

// SetField edits one field of the open form.
func (m *Manager) SetField(ctx context.Context, caps model.CapabilitySet, id, name string, value any) (Result, error) {
	return m.withPage(ctx, caps, id, func(p page.Page) error {
		return p.SetField(name, value)
	})
}

// Submit sends the open form.
func (m *Manager) Submit(ctx context.Context, caps model.CapabilitySet, id string) (Result, error) {
	return m.withPage(ctx, caps, id, func(p page.Page) error {
		_, err := p.Submit(ctx)
		return err
	})
}

// CloseForm discards the open form.
func (m *Manager) CloseForm(ctx context.Context, caps model.CapabilitySet, id string) (Result, error) {
	return m.withPage(ctx, caps, id, func(p page.Page) error {
		p.CloseForm()
		return nil
	})
}

// RequestAction records a pending confirmation.
func (m *Manager) RequestAction(ctx context.Context, caps model.CapabilitySet, id string, kind model.ConfirmationKind, target model.EntityRef) (Result, error) {
	return m.withPage(ctx, caps, id, func(p page.Page) error {
		_, err := p.RequestAction(caps, kind, target)
		return err
	})
}

// Confirm sends the pending action.
func (m *Manager) Confirm(ctx context.Context, caps model.CapabilitySet, id string) (Result, error) {
	return m.withPage(ctx, caps, id, func(p page.Page) error {
		return p.Confirm(ctx)
	})
}

// Cancel discards the pending confirmation.
func (m *Manager) Cancel(ctx context.Context, caps model.CapabilitySet, id string) (Result, error) {
	return m.withPage(ctx, caps, id, func(p page.Page) error {
		p.Cancel()
		return nil
	})
}

// Delete ends a session.
func (m *Manager) Delete(ctx context.Context, id string) error {
	rctx := model.RequestContextFrom(ctx)
	if rctx == nil {
		return model.NewUnauthorizedError("authentication required")
	}
	if err := m.store.Delete(ctx, rctx.SubjectID, id); err != nil {
		return sessionError(id, err)
	}
	m.drop(id)
	return nil
}

// Sweep deletes sessions whose idle lifetime has passed and reports how many
// were removed.
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	now := m.now()
	expired, err := m.store.FindExpired(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("find expired sessions: %w", err)
	}

	removed := 0
	for _, rec := range expired {
		if err := m.store.Delete(ctx, rec.SubjectID, rec.ID); err != nil {
			m.logger.Warn("deleting expired session failed",
				zap.String("session_id", rec.ID),
				zap.Error(err),
			)
			continue
		}
		m.drop(rec.ID)
		removed++
	}

	// Live sessions whose record is already gone.
	m.mu.Lock()
	live := make([]*Session, 0, len(m.live))
	for _, s := range m.live {
		live = append(live, s)
	}
	m.mu.Unlock()
	for _, s := range live {
		s.mu.Lock()
		expired := s.expiresAt.Before(now)
		s.mu.Unlock()
		if expired {
			m.drop(s.ID)
		}
	}
	m.reportActive()

	if removed > 0 {
		m.logger.Info("expired console sessions removed", zap.Int("count", removed))
	}
	return removed, nil
}

// Run sweeps expired sessions every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("session: sweep interval must be positive, got %s", interval)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := m.Sweep(ctx); err != nil {
				m.logger.Error("session sweep failed", zap.Error(err))
			}
		}
	}
}

// Live returns the number of sessions held in memory.
func (m *Manager) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}

// HealthCheck reports whether the session store is reachable.
func (m *Manager) HealthCheck(ctx context.Context) error {
	return m.store.HealthCheck(ctx)
}

func (m *Manager) withPage(ctx context.Context, caps model.CapabilitySet, id string, op func(page.Page) error) (Result, error) {
	return m.do(ctx, caps, id, func(s *Session) error {
		if s.page == nil {
			return &model.ErrorEnvelope{
				Code:    model.ErrUnsupportedRoute,
				Message: "the session has not navigated to a resource",
			}
		}
		return op(s.page)
	})
}

// do runs op on a session while holding its lock and persists the result.
// The view is returned together with op's error so the caller can show both.
func (m *Manager) do(ctx context.Context, caps model.CapabilitySet, id string, op func(*Session) error) (res Result, err error) {
	ctx, span := observability.StartSpan(ctx, "console.session", observability.AttrSessionID.String(id))
	defer func() { observability.EndSpanWithError(span, err) }()

	s, err := m.load(ctx, id)
	if err != nil {
		return Result{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	span.SetAttributes(observability.AttrSubjectID.String(s.SubjectID))
	if s.page != nil {
		span.SetAttributes(observability.AttrResource.String(s.page.Resource()))
	}

	now := m.now()
	if s.expiresAt.Before(now) {
		m.drop(id)
		if err := m.store.Delete(ctx, s.SubjectID, id); err != nil {
			m.logger.Debug("deleting expired session failed", zap.String("session_id", id), zap.Error(err))
		}
		return Result{}, model.NewSessionExpiredError(id)
	}

	if s.page != nil {
		s.page.SetFormatter(m.formatter(ctx))
	}
	opErr := op(s)

	s.expiresAt = now.Add(m.ttl)
	if rctx := model.RequestContextFrom(ctx); rctx != nil && rctx.EnvironmentID != "" {
		s.environmentID = rctx.EnvironmentID
	}
	span.SetAttributes(observability.AttrEnvironmentID.String(s.environmentID))
	if err := m.save(ctx, s); err != nil {
		return Result{}, err
	}
	return m.result(s, caps), opErr
}

// load returns the live session, restoring it from the store when this
// process does not hold it.
func (m *Manager) load(ctx context.Context, id string) (*Session, error) {
	rctx := model.RequestContextFrom(ctx)
	if rctx == nil {
		return nil, model.NewUnauthorizedError("authentication required")
	}

	m.mu.Lock()
	s, ok := m.live[id]
	m.mu.Unlock()
	if ok {
		if s.SubjectID != rctx.SubjectID {
			return nil, model.NewSessionNotFoundError(id)
		}
		return s, nil
	}

	rec, err := m.store.Get(ctx, rctx.SubjectID, id)
	if err != nil {
		return nil, sessionError(id, err)
	}

	s = &Session{
		ID:             rec.ID,
		SubjectID:      rec.SubjectID,
		OrganizationID: rec.OrganizationID,
		environmentID:  rec.EnvironmentID,
		history:        &page.Recorder{},
		version:        rec.Version,
		createdAt:      rec.CreatedAt,
		expiresAt:      rec.ExpiresAt,
	}
	if rec.Page != nil {
		p, err := m.pages.New(rec.Page.Route.Resource, m.deps(ctx, s))
		if err != nil {
			return nil, err
		}
		if err := p.Restore(ctx, *rec.Page); err != nil {
			return nil, err
		}
		s.page = p
	}
	m.logger.Debug("console session restored", zap.String("session_id", id))

	m.mu.Lock()
	if existing, ok := m.live[id]; ok {
		s = existing
	} else {
		m.live[id] = s
	}
	m.mu.Unlock()
	m.reportActive()
	return s, nil
}

func (m *Manager) navigate(ctx context.Context, caps model.CapabilitySet, s *Session, path, query string) error {
	route, err := page.ParseRoute(path)
	if err != nil {
		return err
	}
	if s.page != nil && s.page.Resource() == route.Resource {
		s.page.SetFormatter(m.formatter(ctx))
		return s.page.Navigate(ctx, caps, path, query)
	}
	p, err := m.pages.New(route.Resource, m.deps(ctx, s))
	if err != nil {
		return err
	}
	err = p.Navigate(ctx, caps, path, query)
	if rejected(err) {
		return err
	}
	// The new list is showing even when its overlay failed to open.
	s.page = p
	return err
}

// rejected reports whether navigation was refused before the page showed
// anything.
func rejected(err error) bool {
	var env *model.ErrorEnvelope
	if !errors.As(err, &env) {
		return false
	}
	switch env.Code {
	case model.ErrForbidden, model.ErrUnsupportedRoute:
		return true
	}
	return false
}

func (m *Manager) save(ctx context.Context, s *Session) error {
	rec := m.record(s)
	if err := m.store.Update(ctx, rec); err != nil {
		var env *model.ErrorEnvelope
		if errors.As(err, &env) && env.Code == model.ErrConflict {
			// Another process changed the session; our copy is stale.
			m.drop(s.ID)
		}
		return fmt.Errorf("persist console session %s: %w", s.ID, err)
	}
	s.version++
	return nil
}

func (m *Manager) record(s *Session) Record {
	rec := Record{
		ID:             s.ID,
		SubjectID:      s.SubjectID,
		OrganizationID: s.OrganizationID,
		EnvironmentID:  s.environmentID,
		Version:        s.version,
		CreatedAt:      s.createdAt,
		UpdatedAt:      m.now(),
		ExpiresAt:      s.expiresAt,
	}
	if s.page != nil {
		st := s.page.State()
		rec.Page = &st
	}
	return rec
}

func (m *Manager) result(s *Session, caps model.CapabilitySet) Result {
	res := Result{
		SessionID: s.ID,
		History:   s.history.Drain(),
		ExpiresAt: s.expiresAt,
	}
	if s.page != nil {
		v := s.page.View(caps)
		res.View = &v
	}
	return res
}

func (m *Manager) deps(ctx context.Context, s *Session) page.Deps {
	return page.Deps{
		History:     s.history,
		Formatter:   m.formatter(ctx),
		Observer:    m.observer,
		Invalidator: m.invalidator,
		Logger:      m.logger.With(zap.String("session_id", s.ID)),
	}
}

func (m *Manager) formatter(ctx context.Context) i18n.Formatter {
	if m.catalog == nil {
		return i18n.Static{}
	}
	if rctx := model.RequestContextFrom(ctx); rctx != nil {
		return m.catalog.Formatter(rctx.Locale)
	}
	return m.catalog.Formatter()
}

func (m *Manager) drop(id string) {
	m.mu.Lock()
	delete(m.live, id)
	m.mu.Unlock()
	m.reportActive()
}

func (m *Manager) reportActive() {
	if m.active == nil {
		return
	}
	m.mu.Lock()
	n := len(m.live)
	m.mu.Unlock()
	m.active.SetSessionsActive(float64(n))
}

func sessionError(id string, err error) error {
	var env *model.ErrorEnvelope
	if errors.As(err, &env) && env.Code == model.ErrNotFound {
		return model.NewSessionNotFoundError(id)
	}
	return err
}
