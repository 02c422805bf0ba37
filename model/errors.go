package model

import (
	"fmt"
	"net/http"
)

// Standard error codes.
const (
	ErrBadRequest         = "BAD_REQUEST"
	ErrUnauthorized       = "UNAUTHORIZED"
	ErrForbidden          = "FORBIDDEN"
	ErrNotFound           = "NOT_FOUND"
	ErrConflict           = "CONFLICT"
	ErrValidationError    = "VALIDATION_ERROR"
	ErrRateLimited        = "RATE_LIMITED"
	ErrInternalError      = "INTERNAL_ERROR"
	ErrBackendUnavailable = "BACKEND_UNAVAILABLE"
	ErrBackendTimeout     = "BACKEND_TIMEOUT"
	ErrRequestFailed      = "REQUEST_FAILED"
)

// Console session error codes.
const (
	ErrSessionNotFound  = "SESSION_NOT_FOUND"
	ErrSessionExpired   = "SESSION_EXPIRED"
	ErrNoPendingAction  = "NO_PENDING_ACTION"
	ErrFormNotOpen      = "FORM_NOT_OPEN"
	ErrUnsupportedRoute = "UNSUPPORTED_ROUTE"
)

// Field validation codes. Each maps to one message in the message catalog.
const (
	CodeRequired      = "REQUIRED"
	CodeTooLong       = "TOO_LONG"
	CodeTooShort      = "TOO_SHORT"
	CodeInvalidFormat = "INVALID_FORMAT"
	CodeInvalidEmail  = "INVALID_EMAIL"
	CodeNotUnique     = "NOT_UNIQUE"
	CodeMustSumTo100  = "MUST_SUM_TO_100"
	CodeNotAnInteger  = "NOT_AN_INTEGER"
	CodeNotANumber    = "NOT_A_NUMBER"
	CodeOutOfRange    = "OUT_OF_RANGE"
	CodeMinSelected   = "MIN_SELECTED"
	CodeMismatch      = "MISMATCH"
)

// ErrorEnvelope is the standard error response envelope returned by the
// console. It implements the error interface.
type ErrorEnvelope struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
	TraceID string       `json:"trace_id"`
}

// Error implements the error interface.
func (e *ErrorEnvelope) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FieldError describes a field-level validation error.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RequestError is a failed call to the platform gateway. It keeps the method
// name and the request that was sent so the caller can report or retry it.
type RequestError struct {
	Method     string       `json:"method"`
	Request    any          `json:"-"`
	StatusCode int          `json:"status"`
	Code       string       `json:"code,omitempty"`
	Message    string       `json:"message,omitempty"`
	Details    []FieldError `json:"details,omitempty"`
	Err        error        `json:"-"`
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	switch {
	case e.Message != "":
		return fmt.Sprintf("%s failed (%d): %s", e.Method, e.StatusCode, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s failed: %v", e.Method, e.Err)
	default:
		return fmt.Sprintf("%s failed (%d)", e.Method, e.StatusCode)
	}
}

// Unwrap returns the transport error, if any.
func (e *RequestError) Unwrap() error {
	return e.Err
}

// IsConflict reports whether the server rejected the request because the
// entity already exists.
func (e *RequestError) IsConflict() bool {
	return e.StatusCode == http.StatusConflict || e.Code == "ALREADY_EXISTS"
}

// Envelope converts the request error into a client-facing envelope.
func (e *RequestError) Envelope() *ErrorEnvelope {
	switch {
	case e.StatusCode == http.StatusNotFound:
		return NewNotFoundError(e.messageOr("The requested entity was not found"))
	case e.IsConflict():
		env := NewConflictError(e.messageOr("The entity already exists"))
		env.Details = e.Details
		return env
	case e.StatusCode == http.StatusForbidden:
		return NewForbiddenError(e.messageOr("The request was denied"))
	case e.StatusCode == http.StatusBadRequest && len(e.Details) > 0:
		return NewValidationError(e.Details)
	case e.StatusCode == http.StatusGatewayTimeout:
		return NewBackendTimeoutError()
	case e.StatusCode == 0 || e.StatusCode == http.StatusServiceUnavailable:
		return NewBackendUnavailableError()
	}
	return &ErrorEnvelope{
		Code:    ErrRequestFailed,
		Message: e.messageOr(e.Method + " failed"),
		Details: e.Details,
	}
}

func (e *RequestError) messageOr(fallback string) string {
	if e.Message != "" {
		return e.Message
	}
	return fallback
}

// NewBadRequestError returns a BAD_REQUEST error.
func NewBadRequestError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrBadRequest, Message: msg}
}

// NewUnauthorizedError returns an UNAUTHORIZED error.
func NewUnauthorizedError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrUnauthorized, Message: msg}
}

// NewForbiddenError returns a FORBIDDEN error.
func NewForbiddenError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrForbidden, Message: msg}
}

// NewNotFoundError returns a NOT_FOUND error.
func NewNotFoundError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrNotFound, Message: msg}
}

// NewConflictError returns a CONFLICT error.
func NewConflictError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrConflict, Message: msg}
}

// NewValidationError returns a VALIDATION_ERROR with field-level details.
func NewValidationError(details []FieldError) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrValidationError,
		Message: "One or more fields are invalid",
		Details: details,
	}
}

// NewInternalError returns an INTERNAL_ERROR.
func NewInternalError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrInternalError,
		Message: "An unexpected error occurred",
	}
}

// NewBackendUnavailableError returns a BACKEND_UNAVAILABLE error.
func NewBackendUnavailableError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrBackendUnavailable,
		Message: "The platform API is temporarily unavailable",
	}
}

// NewBackendTimeoutError returns a BACKEND_TIMEOUT error.
func NewBackendTimeoutError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrBackendTimeout,
		Message: "The platform API did not respond in time",
	}
}

// NewRateLimitedError returns a RATE_LIMITED error.
func NewRateLimitedError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrRateLimited,
		Message: "Rate limit exceeded. Please try again later.",
	}
}

// NewSessionNotFoundError returns a SESSION_NOT_FOUND error.
func NewSessionNotFoundError(id string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrSessionNotFound,
		Message: fmt.Sprintf("console session %q not found", id),
	}
}

// NewSessionExpiredError returns a SESSION_EXPIRED error.
func NewSessionExpiredError(id string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrSessionExpired,
		Message: fmt.Sprintf("console session %q has expired", id),
	}
}
