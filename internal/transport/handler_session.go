package transport

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pitabwire/flagconsole/internal/observability"
	"github.com/pitabwire/flagconsole/internal/session"
	"github.com/pitabwire/flagconsole/model"
)

// sessionResponse is a session result, with the error of the operation when
// it failed after the session was reached.
type sessionResponse struct {
	session.Result
	Error *model.ErrorEnvelope `json:"error,omitempty"`
}

type navigateRequest struct {
	Path  string `json:"path"`
	Query string `json:"query"`
}

type searchRequest struct {
	Options model.SearchOptions `json:"options"`
}

type pageRequest struct {
	Page int `json:"page"`
}

type openFormRequest struct {
	ID string `json:"id"`
}

type setFieldRequest struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

type actionRequest struct {
	Kind   model.ConfirmationKind `json:"kind"`
	Target model.EntityRef        `json:"target"`
}

// sessionOp runs one operation against the session named in the URL.
type sessionOp func(ctx context.Context, caps model.CapabilitySet, id string, r *http.Request) (session.Result, error)

func handleSession(op sessionOp) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		caps := CapabilitiesFrom(r.Context())
		id := chi.URLParam(r, "sessionId")

		res, err := op(r.Context(), caps, id, r)
		writeSessionResult(w, r, http.StatusOK, res, err)
	}
}

func handleCreateSession(sessions *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		var body navigateRequest
		if err := DecodeJSON(r, &body); err != nil {
			WriteError(w, err)
			return
		}

		res, err := sessions.Create(r.Context(), CapabilitiesFrom(r.Context()), body.Path, body.Query)
		writeSessionResult(w, r, http.StatusCreated, res, err)
	}
}

func handleDeleteSession(sessions *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if model.RequestContextFrom(r.Context()) == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		if err := sessions.Delete(r.Context(), chi.URLParam(r, "sessionId")); err != nil {
			writeRequestError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func viewSession(sessions *session.Manager) sessionOp {
	return func(ctx context.Context, caps model.CapabilitySet, id string, _ *http.Request) (session.Result, error) {
		return sessions.View(ctx, caps, id)
	}
}

func navigateSession(sessions *session.Manager) sessionOp {
	return func(ctx context.Context, caps model.CapabilitySet, id string, r *http.Request) (session.Result, error) {
		var body navigateRequest
		if err := DecodeJSON(r, &body); err != nil {
			return session.Result{}, err
		}
		if body.Path == "" {
			return session.Result{}, model.NewBadRequestError("path is required")
		}
		return sessions.Navigate(ctx, caps, id, body.Path, body.Query)
	}
}

func backSession(sessions *session.Manager) sessionOp {
	return func(ctx context.Context, caps model.CapabilitySet, id string, _ *http.Request) (session.Result, error) {
		return sessions.Back(ctx, caps, id)
	}
}

func searchSession(sessions *session.Manager) sessionOp {
	return func(ctx context.Context, caps model.CapabilitySet, id string, r *http.Request) (session.Result, error) {
		var body searchRequest
		if err := DecodeJSON(r, &body); err != nil {
			return session.Result{}, err
		}
		if body.Options == nil {
			body.Options = model.SearchOptions{}
		}
		return sessions.Search(ctx, caps, id, body.Options)
	}
}

func pageSession(sessions *session.Manager) sessionOp {
	return func(ctx context.Context, caps model.CapabilitySet, id string, r *http.Request) (session.Result, error) {
		var body pageRequest
		if err := DecodeJSON(r, &body); err != nil {
			return session.Result{}, err
		}
		return sessions.ChangePage(ctx, caps, id, body.Page)
	}
}

func openFormSession(sessions *session.Manager) sessionOp {
	return func(ctx context.Context, caps model.CapabilitySet, id string, r *http.Request) (session.Result, error) {
		var body openFormRequest
		if err := DecodeJSON(r, &body); err != nil {
			return session.Result{}, err
		}
		return sessions.OpenForm(ctx, caps, id, body.ID)
	}
}

func setFieldSession(sessions *session.Manager) sessionOp {
	return func(ctx context.Context, caps model.CapabilitySet, id string, r *http.Request) (session.Result, error) {
		var body setFieldRequest
		if err := DecodeJSON(r, &body); err != nil {
			return session.Result{}, err
		}
		if body.Name == "" {
			return session.Result{}, model.NewBadRequestError("name is required")
		}
		return sessions.SetField(ctx, caps, id, body.Name, body.Value)
	}
}

func submitSession(sessions *session.Manager) sessionOp {
	return func(ctx context.Context, caps model.CapabilitySet, id string, _ *http.Request) (session.Result, error) {
		return sessions.Submit(ctx, caps, id)
	}
}

func closeFormSession(sessions *session.Manager) sessionOp {
	return func(ctx context.Context, caps model.CapabilitySet, id string, _ *http.Request) (session.Result, error) {
		return sessions.CloseForm(ctx, caps, id)
	}
}

func requestActionSession(sessions *session.Manager) sessionOp {
	return func(ctx context.Context, caps model.CapabilitySet, id string, r *http.Request) (session.Result, error) {
		var body actionRequest
		if err := DecodeJSON(r, &body); err != nil {
			return session.Result{}, err
		}
		return sessions.RequestAction(ctx, caps, id, body.Kind, body.Target)
	}
}

func confirmSession(sessions *session.Manager) sessionOp {
	return func(ctx context.Context, caps model.CapabilitySet, id string, _ *http.Request) (session.Result, error) {
		return sessions.Confirm(ctx, caps, id)
	}
}

func cancelSession(sessions *session.Manager) sessionOp {
	return func(ctx context.Context, caps model.CapabilitySet, id string, _ *http.Request) (session.Result, error) {
		return sessions.Cancel(ctx, caps, id)
	}
}

// writeSessionResult writes res. When the operation failed but the session
// was reached, the error is sent together with the session's view.
func writeSessionResult(w http.ResponseWriter, r *http.Request, status int, res session.Result, err error) {
	if err == nil {
		WriteJSON(w, status, sessionResponse{Result: res})
		return
	}
	if res.SessionID == "" {
		writeRequestError(w, r, err)
		return
	}
	env, errStatus := requestEnvelope(r, err)
	WriteJSON(w, errStatus, sessionResponse{Result: res, Error: env})
}

func writeRequestError(w http.ResponseWriter, r *http.Request, err error) {
	env, status := requestEnvelope(r, err)
	WriteJSON(w, status, errorResponse{Error: env})
}

// requestEnvelope converts err and stamps it with the request's trace id.
func requestEnvelope(r *http.Request, err error) (*model.ErrorEnvelope, int) {
	ee, status := ToEnvelope(err)
	env := *ee
	if rctx := model.RequestContextFrom(r.Context()); rctx != nil {
		env.TraceID = rctx.TraceID
	}

	logger := observability.LoggerFrom(r.Context(), nil)
	if logger != nil && status >= http.StatusInternalServerError {
		logger.Error("console request failed", zap.Error(err))
	}
	return &env, status
}
