package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Build-time variables injected via ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
)

// HealthResponse is the JSON response for the liveness endpoint.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

// ReadinessResponse is the JSON response for the readiness endpoint.
// LiveSessions is informational and never fails readiness.
type ReadinessResponse struct {
	Status       string                 `json:"status"`
	Checks       map[string]CheckResult `json:"checks"`
	LiveSessions int                    `json:"live_sessions"`
}

// CheckResult is the outcome of one readiness check. Count is set by the
// counting checks and State by the gateway check.
type CheckResult struct {
	Status    string `json:"status"`
	LatencyMs int64  `json:"latency_ms"`
	Count     int    `json:"count,omitempty"`
	State     string `json:"state,omitempty"`
	Error     string `json:"error,omitempty"`
}

// HealthChecker can verify its own health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ReadinessChecks describes what the console needs before it serves users.
type ReadinessChecks struct {
	// Resources counts the registered console resources and
	// GatewayOperations the indexed gateway operations. Zero, or a nil
	// func, fails the check.
	Resources         func() int
	GatewayOperations func() int

	// SessionStore and Gateway are checked only when set. GatewayState
	// names the gateway circuit breaker state in the gateway result.
	SessionStore HealthChecker
	Gateway      HealthChecker
	GatewayState func() string

	LiveSessions func() int
}

const checkTimeout = 2 * time.Second

type namedCheck struct {
	name string
	run  func(ctx context.Context) CheckResult
}

func (c ReadinessChecks) checks() []namedCheck {
	list := []namedCheck{
		{"resources", countCheck(c.Resources, "no resources registered")},
		{"gateway_index", countCheck(c.GatewayOperations, "gateway operations not indexed")},
	}
	if c.SessionStore != nil {
		list = append(list, namedCheck{"session_store", dependencyCheck(c.SessionStore, nil)})
	}
	if c.Gateway != nil {
		list = append(list, namedCheck{"gateway", dependencyCheck(c.Gateway, c.GatewayState)})
	}
	return list
}

// HandleHealth returns an HTTP handler for the liveness endpoint.
func HandleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: Version,
			Commit:  Commit,
		})
	}
}

// HandleReady returns an HTTP handler for the readiness endpoint. Checks run
// concurrently, each bounded by its own timeout.
func HandleReady(rc ReadinessChecks) http.HandlerFunc {
	checks := rc.checks()
	return func(w http.ResponseWriter, r *http.Request) {
		results := make([]CheckResult, len(checks))
		var wg sync.WaitGroup
		for i, c := range checks {
			wg.Go(func() { results[i] = c.run(r.Context()) })
		}
		wg.Wait()

		resp := ReadinessResponse{Status: "ready", Checks: make(map[string]CheckResult, len(checks))}
		status := http.StatusOK
		for i, c := range checks {
			resp.Checks[c.name] = results[i]
			if results[i].Status != "ok" {
				resp.Status = "not_ready"
				status = http.StatusServiceUnavailable
			}
		}
		if rc.LiveSessions != nil {
			resp.LiveSessions = rc.LiveSessions()
		}
		writeJSON(w, status, resp)
	}
}

func countCheck(count func() int, failure string) func(context.Context) CheckResult {
	return func(context.Context) CheckResult {
		n := 0
		if count != nil {
			n = count()
		}
		if n <= 0 {
			return CheckResult{Status: "error", Error: failure}
		}
		return CheckResult{Status: "ok", Count: n}
	}
}

func dependencyCheck(checker HealthChecker, state func() string) func(context.Context) CheckResult {
	return func(parent context.Context) CheckResult {
		ctx, cancel := context.WithTimeout(parent, checkTimeout)
		defer cancel()

		start := time.Now()
		err := checker.HealthCheck(ctx)
		res := CheckResult{Status: "ok", LatencyMs: time.Since(start).Milliseconds()}
		if err != nil {
			res.Status = "error"
			res.Error = err.Error()
		}
		if state != nil {
			res.State = state()
		}
		return res
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
