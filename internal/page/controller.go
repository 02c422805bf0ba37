package page

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/pitabwire/flagconsole/internal/formsession"
	"github.com/pitabwire/flagconsole/internal/i18n"
	"github.com/pitabwire/flagconsole/internal/listing"
	"github.com/pitabwire/flagconsole/internal/querystring"
	"github.com/pitabwire/flagconsole/internal/resource"
	"github.com/pitabwire/flagconsole/model"
)

// Controller is the page of one resource. It owns the list orchestrator, the
// form session and the pending confirmation of that page.
//
// List fetch failures are not returned by the event methods; they are kept in
// the list state and reported by View, with the previous items still shown.
type Controller[T any] struct {
	desc     *resource.Descriptor[T]
	api      resource.API[T]
	list     *listing.Orchestrator[T]
	form     *formsession.Session
	history  History
	observer Observer
	invalid  Invalidator
	logger   *zap.Logger

	mu     sync.Mutex
	route  Route
	intent *model.ConfirmationIntent
	format i18n.Formatter
}

var _ Page = (*Controller[model.Account])(nil)

// New creates the page of a resource showing its empty list.
func New[T any](d *resource.Descriptor[T], api resource.API[T], deps Deps) *Controller[T] {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("resource", d.Name))
	format := deps.Formatter
	if format == nil {
		format = i18n.Static{}
	}
	history := deps.History
	if history == nil {
		history = &Recorder{}
	}

	listOpts := []listing.Option{listing.WithLogger(logger)}
	if deps.Observer != nil {
		listOpts = append(listOpts, listing.WithObserver(deps.Observer))
	}

	return &Controller[T]{
		desc:     d,
		api:      api,
		list:     listing.New[T](d.List, api, listOpts...),
		form:     formsession.New(d.Add, d.Update, format),
		history:  history,
		observer: deps.Observer,
		invalid:  deps.Invalidator,
		logger:   logger,
		route:    Route{Resource: d.Name},
		format:   format,
	}
}

// Resource returns the resource name.
func (c *Controller[T]) Resource() string {
	return c.desc.Name
}

// Navigate shows the list of the route with the search options of query,
// normalizing an unknown sort token to the resource's default, and opens the
// add or update overlay when the route names one. The canonical URL replaces
// the current history entry.
func (c *Controller[T]) Navigate(ctx context.Context, caps model.CapabilitySet, path, query string) error {
	r, err := ParseRoute(path)
	if err != nil {
		return err
	}
	if r.Resource != c.desc.Name {
		return unsupportedRoute(path)
	}
	if !caps.Has(c.desc.ListCapability()) {
		return model.NewForbiddenError(fmt.Sprintf("listing %s is not permitted", c.desc.Name))
	}
	switch r.Overlay() {
	case OverlayAdd:
		if err := c.checkAdd(caps); err != nil {
			return err
		}
	case OverlayUpdate:
		if err := c.checkUpdate(caps); err != nil {
			return err
		}
	}

	options := c.desc.List.Sort.Normalize(querystring.Decode(query))
	pageNum := querystring.Page(options)
	options = options.Without(model.OptionPage)

	c.form.Close()
	c.mu.Lock()
	c.route = r.List()
	c.intent = nil
	c.mu.Unlock()

	c.list.FetchPage(ctx, options, pageNum)

	switch r.Overlay() {
	case OverlayAdd:
		if err := c.openAdd(options); err != nil {
			return err
		}
	case OverlayUpdate:
		if err := c.openUpdate(ctx, r.ID); err != nil {
			c.history.Replace(r.List().URL(options, pageNum))
			return err
		}
	}
	c.history.Replace(r.URL(options, pageNum))
	return nil
}

// Back closes any open overlay and discards a pending confirmation. The
// browser has already moved back, so no history entry is recorded.
func (c *Controller[T]) Back() {
	c.form.Close()
	c.mu.Lock()
	c.route = c.route.List()
	c.intent = nil
	c.mu.Unlock()
}

// ChangeSearch fetches the first page for new search options.
func (c *Controller[T]) ChangeSearch(ctx context.Context, options model.SearchOptions) error {
	options = c.desc.List.Sort.Normalize(options.Without(model.OptionPage))
	c.history.Replace(c.currentRoute().URL(options, 1))
	c.list.FetchPage(ctx, options, 1)
	return nil
}

// ChangePage fetches another page for the current search options.
func (c *Controller[T]) ChangePage(ctx context.Context, pageNum int) error {
	if pageNum < 1 {
		pageNum = 1
	}
	options, _ := c.list.Current()
	c.history.Replace(c.currentRoute().URL(options, pageNum))
	c.list.FetchPage(ctx, options, pageNum)
	return nil
}

// OpenAdd opens the add form, seeded from the current search options.
func (c *Controller[T]) OpenAdd(_ context.Context, caps model.CapabilitySet) error {
	if err := c.checkAdd(caps); err != nil {
		return err
	}
	options, pageNum := c.list.Current()
	if err := c.openAdd(options); err != nil {
		return err
	}
	c.history.Push(c.currentRoute().URL(options, pageNum))
	return nil
}

// OpenUpdate fetches an entity and opens the update form with its values.
func (c *Controller[T]) OpenUpdate(ctx context.Context, caps model.CapabilitySet, id string) error {
	if err := c.checkUpdate(caps); err != nil {
		return err
	}
	if id == "" || id == resource.IDNew {
		return model.NewBadRequestError("an entity id is required")
	}
	if err := c.openUpdate(ctx, id); err != nil {
		return err
	}
	options, pageNum := c.list.Current()
	c.history.Push(c.currentRoute().URL(options, pageNum))
	return nil
}

// CloseForm discards the open form and returns to the list.
func (c *Controller[T]) CloseForm() {
	c.form.Close()
	c.mu.Lock()
	c.route = c.route.List()
	route := c.route
	c.mu.Unlock()

	options, pageNum := c.list.Current()
	c.history.Replace(route.URL(options, pageNum))
}

// SetField edits one field of the open form.
func (c *Controller[T]) SetField(name string, value any) error {
	err := c.form.SetField(name, value)
	switch {
	case errors.Is(err, formsession.ErrNotOpen):
		return formNotOpen()
	case errors.Is(err, formsession.ErrUnknownField):
		return model.NewBadRequestError(fmt.Sprintf("unknown field %q", name))
	}
	return err
}

// Submit sends the open form. It reports false without calling the platform
// API when the form is invalid, unchanged or already submitting. After a
// successful submission the overlay closes and the list is fetched again
// with the search options and page shown before the submission.
func (c *Controller[T]) Submit(ctx context.Context) (bool, error) {
	if !c.form.IsOpen() {
		return false, formNotOpen()
	}
	mode := c.form.State().Mode
	options, pageNum := c.list.Current()

	submitted, err := c.form.Submit(ctx, c.send)
	if !submitted {
		return false, nil
	}
	if err != nil {
		c.logger.Info("form submission failed",
			zap.String("mode", string(mode)),
			zap.Error(err),
		)
		c.observeSubmit(mode, OutcomeFailure)
		return true, err
	}
	c.observeSubmit(mode, OutcomeSuccess)

	c.mu.Lock()
	c.route = c.route.List()
	route := c.route
	c.mu.Unlock()
	c.history.Replace(route.URL(options, pageNum))

	c.afterMutation(ctx, options, pageNum)
	return true, nil
}

// RequestAction records a pending confirmation for an action on one entity.
// Nothing is sent until Confirm.
func (c *Controller[T]) RequestAction(caps model.CapabilitySet, kind model.ConfirmationKind, target model.EntityRef) (model.ConfirmationIntent, error) {
	if !kind.Valid() || !c.desc.Supports(kind) {
		return model.ConfirmationIntent{}, model.NewBadRequestError(fmt.Sprintf("%s does not support %s", c.desc.Name, kind))
	}
	if !caps.Has(c.desc.ActionCapability(kind)) {
		return model.ConfirmationIntent{}, model.NewForbiddenError(fmt.Sprintf("%s %s is not permitted", kind, c.desc.Name))
	}
	if target.ID == "" {
		return model.ConfirmationIntent{}, model.NewBadRequestError("a target id is required")
	}

	ref := model.EntityRef{Resource: c.desc.Name, ID: target.ID, Name: target.Name}
	if item, ok := c.find(target.ID); ok {
		if !slices.Contains(c.desc.ActionsFor(item), kind) {
			return model.ConfirmationIntent{}, model.NewBadRequestError(fmt.Sprintf("%s is not available for %s", kind, target.ID))
		}
		ref = c.desc.Ref(item)
	}
	if ref.Name == "" {
		ref.Name = ref.ID
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	intent := model.ConfirmationIntent{
		Kind:   kind,
		Target: ref,
		Title: c.format.Message("confirm."+string(kind)+".title", map[string]any{
			"resource": c.format.Message("resource."+c.desc.Name, nil),
		}),
		Message: c.format.Message("confirm."+string(kind)+".message", map[string]any{
			"name": ref.Name,
		}),
	}
	c.intent = &intent
	return intent, nil
}

// Confirm sends the pending action. On success the confirmation clears and
// the list is fetched again with the search options and page it showed; on
// failure the confirmation stays pending.
func (c *Controller[T]) Confirm(ctx context.Context) error {
	c.mu.Lock()
	intent := c.intent
	c.mu.Unlock()
	if intent == nil {
		return &model.ErrorEnvelope{Code: model.ErrNoPendingAction, Message: "there is no action to confirm"}
	}

	options, pageNum := c.list.Current()
	if err := c.api.Act(ctx, intent.Kind, intent.Target.ID); err != nil {
		c.logger.Info("action failed",
			zap.String("kind", string(intent.Kind)),
			zap.String("entity_id", intent.Target.ID),
			zap.Error(err),
		)
		c.observeAction(intent.Kind, OutcomeFailure)
		return err
	}
	c.observeAction(intent.Kind, OutcomeSuccess)

	c.mu.Lock()
	if c.intent == intent {
		c.intent = nil
	}
	c.mu.Unlock()

	c.afterMutation(ctx, options, pageNum)
	return nil
}

// Cancel discards the pending confirmation.
func (c *Controller[T]) Cancel() {
	c.mu.Lock()
	c.intent = nil
	c.mu.Unlock()
}

// SetFormatter switches the language of messages.
func (c *Controller[T]) SetFormatter(f i18n.Formatter) {
	c.form.SetFormatter(f)
	c.mu.Lock()
	c.format = f
	c.mu.Unlock()
}

// View returns what the page shows. Row actions are limited to those the
// item offers and caps grants.
func (c *Controller[T]) View(caps model.CapabilitySet) View {
	snap := c.list.Snapshot()
	req := c.desc.List.BuildRequest(snap.Options, snap.PageNum)

	rows := make([]Row, 0, len(snap.Page.Items))
	for _, item := range snap.Page.Items {
		actions := []model.ConfirmationKind{}
		for _, kind := range c.desc.ActionsFor(item) {
			if caps.Has(c.desc.ActionCapability(kind)) {
				actions = append(actions, kind)
			}
		}
		links, err := c.desc.LinksFor(item)
		if err != nil {
			c.logger.Error("row links failed", zap.Error(err))
		}
		rows = append(rows, Row{Item: item, Ref: c.desc.Ref(item), Actions: actions, Links: links})
	}

	c.mu.Lock()
	route := c.route
	var intent *model.ConfirmationIntent
	if c.intent != nil {
		cp := *c.intent
		intent = &cp
	}
	c.mu.Unlock()

	v := View{
		Resource: c.desc.Name,
		Path:     route.Path(),
		URL:      route.URL(snap.Options, snap.PageNum),
		Overlay:  route.Overlay(),
		List: ListView{
			State:      snap.State,
			Rows:       rows,
			TotalCount: snap.Page.TotalCount,
			Loading:    snap.Page.Loading,
			Options:    snap.Options,
			Page:       snap.PageNum,
			PageSize:   req.PageSize,
			Sort:       model.SortSpec{OrderBy: req.OrderBy, Direction: req.OrderDirection},
			Error:      snap.Error,
		},
		Intent:  intent,
		CanAdd:  c.desc.Creatable() && caps.Has(c.desc.CreateCapability()),
		CanEdit: c.desc.Editable() && caps.Has(c.desc.UpdateCapability()),
	}
	if c.form.IsOpen() {
		st := c.form.State()
		v.Form = &st
	}
	return v
}

// State returns the page's persisted state.
func (c *Controller[T]) State() State {
	options, pageNum := c.list.Current()
	c.mu.Lock()
	st := State{Route: c.route, Options: options, Page: pageNum}
	if c.intent != nil {
		cp := *c.intent
		st.Intent = &cp
	}
	c.mu.Unlock()

	if c.form.IsOpen() {
		fs := c.form.State()
		st.Form = &FormState{Mode: fs.Mode, EntityID: fs.EntityID, Values: fs.Values, Dirty: fs.Dirty}
	}
	return st
}

// Restore rebuilds the page from a persisted state: the list is fetched
// again and an open form is reopened with its edited values.
func (c *Controller[T]) Restore(ctx context.Context, st State) error {
	if st.Route.Resource != c.desc.Name {
		return unsupportedRoute(st.Route.Path())
	}
	options := c.desc.List.Sort.Normalize(st.Options.Without(model.OptionPage))
	pageNum := st.Page
	if pageNum < 1 {
		pageNum = 1
	}
	c.list.FetchPage(ctx, options, pageNum)

	route := st.Route.List()
	if st.Form != nil && st.Route.Overlay() != OverlayNone {
		err := c.form.Restore(st.Form.Mode, st.Form.EntityID, st.Form.Values, st.Form.Dirty)
		if err != nil {
			c.logger.Warn("dropping unrestorable form", zap.Error(err))
		} else {
			route = st.Route
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.route = route
	c.intent = nil
	if st.Intent != nil {
		cp := *st.Intent
		c.intent = &cp
	}
	return nil
}

func (c *Controller[T]) openAdd(options model.SearchOptions) error {
	var seed map[string]any
	if c.desc.AddSeed != nil {
		seed = c.desc.AddSeed(options)
	}
	if err := c.form.Open(model.FormAdd, "", seed); err != nil {
		return model.NewBadRequestError(err.Error())
	}
	c.mu.Lock()
	c.route = Route{Resource: c.desc.Name, ID: resource.IDNew}
	c.mu.Unlock()
	return nil
}

func (c *Controller[T]) openUpdate(ctx context.Context, id string) error {
	item, err := c.api.Get(ctx, id)
	if err != nil {
		c.logger.Warn("loading entity failed", zap.String("entity_id", id), zap.Error(err))
		return err
	}
	if err := c.form.Open(model.FormUpdate, id, c.desc.Seed(item)); err != nil {
		return model.NewBadRequestError(err.Error())
	}
	c.mu.Lock()
	c.route = Route{Resource: c.desc.Name, ID: id}
	c.mu.Unlock()
	return nil
}

func (c *Controller[T]) checkAdd(caps model.CapabilitySet) error {
	if !c.desc.Creatable() {
		return model.NewBadRequestError(fmt.Sprintf("%s cannot be created", c.desc.Name))
	}
	if !caps.Has(c.desc.CreateCapability()) {
		return model.NewForbiddenError(fmt.Sprintf("creating %s is not permitted", c.desc.Name))
	}
	return nil
}

func (c *Controller[T]) checkUpdate(caps model.CapabilitySet) error {
	if !c.desc.Editable() {
		return model.NewBadRequestError(fmt.Sprintf("%s cannot be edited", c.desc.Name))
	}
	if !caps.Has(c.desc.UpdateCapability()) {
		return model.NewForbiddenError(fmt.Sprintf("editing %s is not permitted", c.desc.Name))
	}
	return nil
}

func (c *Controller[T]) send(ctx context.Context, st model.FormState) error {
	if st.Mode == model.FormUpdate {
		return c.api.Update(ctx, st.EntityID, c.desc.BuildUpdate(st))
	}
	return c.api.Create(ctx, c.desc.BuildCreate(st))
}

func (c *Controller[T]) afterMutation(ctx context.Context, options model.SearchOptions, pageNum int) {
	if c.invalid != nil {
		c.invalid.Invalidate(c.desc.Name)
	}
	c.list.FetchPage(ctx, options, pageNum)
}

func (c *Controller[T]) find(id string) (T, bool) {
	for _, item := range c.list.Items() {
		if c.desc.ID(item) == id {
			return item, true
		}
	}
	var zero T
	return zero, false
}

func (c *Controller[T]) currentRoute() Route {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.route
}

func (c *Controller[T]) observeSubmit(mode model.FormMode, outcome string) {
	if c.observer != nil {
		c.observer.ObserveFormSubmit(c.desc.Name, string(mode), outcome)
	}
}

func (c *Controller[T]) observeAction(kind model.ConfirmationKind, outcome string) {
	if c.observer != nil {
		c.observer.ObserveAction(c.desc.Name, string(kind), outcome)
	}
}

func formNotOpen() *model.ErrorEnvelope {
	return &model.ErrorEnvelope{Code: model.ErrFormNotOpen, Message: "no form is open"}
}
