// Package backend calls the feature-flag platform's API gateway. Operations
// are resolved by name through the gateway's OpenAPI index, sent as JSON, and
// guarded by a circuit breaker. Read operations are retried with exponential
// backoff.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/spf13/cast"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/pitabwire/flagconsole/internal/config"
	"github.com/pitabwire/flagconsole/internal/observability"
	"github.com/pitabwire/flagconsole/internal/openapi"
	"github.com/pitabwire/flagconsole/model"
)

const maxResponseBytes = 10 << 20

// Observer receives gateway call metrics.
type Observer interface {
	ObserveGatewayRequest(method string, status int, duration time.Duration)
	ObserveGatewayRetry(method string)
	ObserveBreakerState(state float64)
}

// Client sends named operations to the platform gateway.
type Client struct {
	index    *openapi.Index
	http     *http.Client
	breaker  *Breaker
	retry    config.RetryConfig
	observer Observer
	logger   *zap.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithObserver reports request metrics and breaker transitions to o.
func WithObserver(o Observer) ClientOption {
	return func(c *Client) { c.observer = o }
}

// WithLogger sets the client's logger.
func WithLogger(l *zap.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// NewClient creates a gateway client for the operations in idx.
func NewClient(idx *openapi.Index, cfg config.GatewayConfig, opts ...ClientOption) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := &Client{
		index: idx,
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxConnsPerHost:     50,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		breaker: NewBreaker(
			cfg.CircuitBreaker.FailureThreshold,
			cfg.CircuitBreaker.SuccessThreshold,
			cfg.CircuitBreaker.Timeout,
		),
		retry:  cfg.Retry,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("gateway")
	c.breaker.OnStateChange(func(s BreakerState) {
		c.logger.Warn("gateway circuit breaker changed state", zap.Stringer("state", s))
		if c.observer != nil {
			c.observer.ObserveBreakerState(float64(s))
		}
	})
	return c
}

// Breaker returns the client's circuit breaker.
func (c *Client) Breaker() *Breaker {
	return c.breaker
}

// HealthCheck fails while the circuit breaker is open.
func (c *Client) HealthCheck(context.Context) error {
	if c.breaker.State() == BreakerOpen {
		return ErrBreakerOpen
	}
	return nil
}

// OperationCount returns the number of indexed gateway operations.
func (c *Client) OperationCount() int {
	return len(c.index.OperationIDs())
}

// Call sends req to the named operation and decodes the response into resp,
// which may be nil. Failures are returned as *model.RequestError.
func (c *Client) Call(ctx context.Context, method string, req, resp any) error {
	op, ok := c.index.Operation(method)
	if !ok {
		return &model.RequestError{
			Method:  method,
			Request: req,
			Err:     fmt.Errorf("backend: operation %s not found", method),
		}
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return &model.RequestError{Method: method, Request: req, Err: fmt.Errorf("backend: marshal request: %w", err)}
	}
	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err == nil {
		if errs := c.index.ValidateRequest(method, fields); len(errs) > 0 {
			return &model.RequestError{
				Method:     method,
				Request:    req,
				StatusCode: http.StatusBadRequest,
				Message:    "request is missing required fields",
				Details:    errs,
			}
		}
	}

	ctx, span := observability.StartSpan(ctx, "gateway."+method,
		observability.AttrOperation.String(method),
		attribute.Bool("gateway.idempotent", op.Idempotent),
	)
	headers := c.headers(ctx)
	observability.InjectTraceHeaders(ctx, headers)

	start := time.Now()
	status, body, err := c.execute(ctx, op, headers, payload)
	if c.observer != nil {
		c.observer.ObserveGatewayRequest(method, status, time.Since(start))
	}
	if err != nil {
		err = asRequestError(ctx, method, req, err)
		observability.EndSpanWithError(span, err)
		c.logger.Debug("gateway call failed",
			zap.String("method", method),
			zap.Int("status", status),
			zap.Any("request", observability.RedactBody(fields, nil)),
			zap.Error(err),
		)
		return err
	}
	observability.EndSpanWithError(span, nil)

	if resp == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, resp); err != nil {
		return &model.RequestError{
			Method:     method,
			Request:    req,
			StatusCode: status,
			Err:        fmt.Errorf("backend: decode response: %w", err),
		}
	}
	return nil
}

func (c *Client) execute(ctx context.Context, op openapi.Operation, headers http.Header, payload []byte) (int, []byte, error) {
	var (
		status int
		body   []byte
	)
	attempt := func() error {
		var err error
		status, body, err = c.executeOnce(ctx, op, headers, payload)
		return err
	}

	maxAttempts := c.retry.MaxAttempts
	if !op.Idempotent || maxAttempts <= 1 {
		err := attempt()
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Err
		}
		return status, body, err
	}

	notify := func(err error, wait time.Duration) {
		if c.observer != nil {
			c.observer.ObserveGatewayRetry(op.ID)
		}
		c.logger.Debug("retrying gateway call",
			zap.String("method", op.ID),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}
	err := backoff.RetryNotify(attempt, c.backOff(ctx, maxAttempts), notify)
	return status, body, err
}

func (c *Client) backOff(ctx context.Context, maxAttempts int) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retry.BackoffInitial
	if b.InitialInterval <= 0 {
		b.InitialInterval = 100 * time.Millisecond
	}
	b.Multiplier = c.retry.BackoffMultiplier
	if b.Multiplier <= 0 {
		b.Multiplier = 2
	}
	b.MaxInterval = c.retry.BackoffMax
	if b.MaxInterval <= 0 {
		b.MaxInterval = 2 * time.Second
	}
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(maxAttempts-1)), ctx)
}

// executeOnce performs one HTTP exchange. Errors that must not be retried
// are wrapped with backoff.Permanent.
func (c *Client) executeOnce(ctx context.Context, op openapi.Operation, headers http.Header, payload []byte) (int, []byte, error) {
	if err := c.breaker.Allow(); err != nil {
		return http.StatusServiceUnavailable, nil, backoff.Permanent(&model.RequestError{
			Method:     op.ID,
			StatusCode: http.StatusServiceUnavailable,
			Err:        err,
		})
	}

	httpReq, err := http.NewRequestWithContext(ctx, op.Method, op.URL(), bytes.NewReader(payload))
	if err != nil {
		return 0, nil, backoff.Permanent(fmt.Errorf("backend: build request: %w", err))
	}
	httpReq.Header = headers.Clone()

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		c.breaker.RecordFailure()
		if ctx.Err() != nil {
			return http.StatusGatewayTimeout, nil, backoff.Permanent(&model.RequestError{
				Method:     op.ID,
				StatusCode: http.StatusGatewayTimeout,
				Err:        ctx.Err(),
			})
		}
		if isTimeout(err) {
			return http.StatusGatewayTimeout, nil, &model.RequestError{
				Method:     op.ID,
				StatusCode: http.StatusGatewayTimeout,
				Err:        err,
			}
		}
		return 0, nil, &model.RequestError{Method: op.ID, Err: err}
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		c.breaker.RecordFailure()
		return httpResp.StatusCode, nil, &model.RequestError{
			Method:     op.ID,
			StatusCode: httpResp.StatusCode,
			Err:        fmt.Errorf("backend: read response: %w", err),
		}
	}

	code := httpResp.StatusCode
	switch {
	case code >= 500:
		c.breaker.RecordFailure()
		rerr := decodeError(op.ID, code, body)
		if isRetryableStatus(code) {
			return code, body, rerr
		}
		return code, body, backoff.Permanent(rerr)
	case code >= 400:
		// Client errors say nothing about the gateway's health.
		return code, body, backoff.Permanent(decodeError(op.ID, code, body))
	}
	c.breaker.RecordSuccess()
	return code, body, nil
}

func (c *Client) headers(ctx context.Context) http.Header {
	h := make(http.Header)
	h.Set("Accept", "application/json")
	h.Set("Content-Type", "application/json")

	correlationID := ""
	if rctx := model.RequestContextFrom(ctx); rctx != nil {
		if rctx.Token != "" {
			h.Set("Authorization", "Bearer "+sanitizeHeader(rctx.Token))
		}
		if rctx.EnvironmentID != "" {
			h.Set("X-Environment-Id", sanitizeHeader(rctx.EnvironmentID))
		}
		if rctx.OrganizationID != "" {
			h.Set("X-Organization-Id", sanitizeHeader(rctx.OrganizationID))
		}
		if rctx.Locale != "" {
			h.Set("Accept-Language", sanitizeHeader(rctx.Locale))
		}
		correlationID = rctx.CorrelationID
	}
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	h.Set("X-Correlation-Id", sanitizeHeader(correlationID))
	return h
}

// gatewayError is the error body returned by the gateway. Code is either a
// symbolic name or a numeric RPC status.
type gatewayError struct {
	Code    any                `json:"code"`
	Message string             `json:"message"`
	Details []model.FieldError `json:"details"`
}

var rpcCodes = map[int]string{
	3: "INVALID_ARGUMENT",
	5: "NOT_FOUND",
	6: "ALREADY_EXISTS",
	7: "PERMISSION_DENIED",
	9: "FAILED_PRECONDITION",
}

func decodeError(method string, status int, body []byte) *model.RequestError {
	rerr := &model.RequestError{Method: method, StatusCode: status}
	var ge gatewayError
	if len(body) == 0 || json.Unmarshal(body, &ge) != nil {
		rerr.Message = strings.TrimSpace(string(body))
		return rerr
	}
	rerr.Message = ge.Message
	rerr.Details = ge.Details
	switch code := ge.Code.(type) {
	case string:
		rerr.Code = code
	case float64:
		rerr.Code = rpcCodes[cast.ToInt(code)]
	}
	return rerr
}

// asRequestError normalizes whatever the retry loop returned.
func asRequestError(ctx context.Context, method string, req any, err error) *model.RequestError {
	var rerr *model.RequestError
	if errors.As(err, &rerr) {
		out := *rerr
		out.Method = method
		out.Request = req
		return &out
	}
	status := 0
	if ctx.Err() != nil {
		status = http.StatusGatewayTimeout
	}
	return &model.RequestError{Method: method, Request: req, StatusCode: status, Err: err}
}

func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// sanitizeHeader strips newlines and carriage returns to prevent header injection.
func sanitizeHeader(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", "")
	return s
}
