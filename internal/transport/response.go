// Package transport contains the HTTP router, middleware chain, and all
// request handlers for the console API.
package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/pitabwire/flagconsole/model"
)

// maxBodyBytes bounds request bodies read by DecodeJSON.
const maxBodyBytes = 1 << 20

// statusForCode maps ErrorEnvelope codes to HTTP status codes.
var statusForCode = map[string]int{
	model.ErrBadRequest:         http.StatusBadRequest,
	model.ErrUnauthorized:       http.StatusUnauthorized,
	model.ErrForbidden:          http.StatusForbidden,
	model.ErrNotFound:           http.StatusNotFound,
	model.ErrConflict:           http.StatusConflict,
	model.ErrValidationError:    http.StatusUnprocessableEntity,
	model.ErrRateLimited:        http.StatusTooManyRequests,
	model.ErrInternalError:      http.StatusInternalServerError,
	model.ErrBackendUnavailable: http.StatusBadGateway,
	model.ErrBackendTimeout:     http.StatusGatewayTimeout,
	model.ErrRequestFailed:      http.StatusBadGateway,
	model.ErrSessionNotFound:    http.StatusNotFound,
	model.ErrSessionExpired:     http.StatusGone,
	model.ErrNoPendingAction:    http.StatusConflict,
	model.ErrFormNotOpen:        http.StatusConflict,
	model.ErrUnsupportedRoute:   http.StatusNotFound,
}

type errorResponse struct {
	Error *model.ErrorEnvelope `json:"error"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// ToEnvelope converts err into a client-facing envelope and its HTTP status.
// Gateway failures keep the server's message; anything unrecognised becomes
// a generic 500.
func ToEnvelope(err error) (*model.ErrorEnvelope, int) {
	var ee *model.ErrorEnvelope
	var re *model.RequestError
	switch {
	case errors.As(err, &ee):
	case errors.As(err, &re):
		ee = re.Envelope()
	default:
		ee = model.NewInternalError()
	}

	status := statusForCode[ee.Code]
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return ee, status
}

// WriteError writes err as an ErrorEnvelope JSON response with the matching
// HTTP status code.
func WriteError(w http.ResponseWriter, err error) {
	ee, status := ToEnvelope(err)
	WriteJSON(w, status, errorResponse{Error: ee})
}

// WriteNotFound writes a 404 error response.
func WriteNotFound(w http.ResponseWriter, msg string) {
	WriteError(w, model.NewNotFoundError(msg))
}

// WriteForbidden writes a 403 error response.
func WriteForbidden(w http.ResponseWriter, msg string) {
	WriteError(w, model.NewForbiddenError(msg))
}

// WriteValidationError writes a 422 error response with field-level details.
func WriteValidationError(w http.ResponseWriter, details []model.FieldError) {
	WriteError(w, model.NewValidationError(details))
}

// DecodeJSON reads a JSON request body into dst. An empty body leaves dst
// unchanged.
func DecodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return model.NewBadRequestError(fmt.Sprintf("invalid request body: %v", err))
	}
	return nil
}
