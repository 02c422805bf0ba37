package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHandleHealth_returnsOK(t *testing.T) {
	// Set build-time variables for test.
	origVersion, origCommit := Version, Commit
	Version = "1.2.3"
	Commit = "abc1234"
	t.Cleanup(func() {
		Version = origVersion
		Commit = origCommit
	})

	handler := HandleHealth()
	req := httptest.NewRequest(http.MethodGet, "/ui/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("status = %q, want ok", resp.Status)
	}
	if resp.Version != "1.2.3" {
		t.Errorf("version = %q, want 1.2.3", resp.Version)
	}
	if resp.Commit != "abc1234" {
		t.Errorf("commit = %q, want abc1234", resp.Commit)
	}
}

func TestHandleHealth_defaultValues(t *testing.T) {
	handler := HandleHealth()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ui/health", nil))

	var resp HealthResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Version == "" {
		t.Error("version should have a default value")
	}
}

func serveReady(t *testing.T, checks ReadinessChecks) (int, ReadinessResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	HandleReady(checks).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ui/ready", nil))

	var resp ReadinessResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	return rec.Code, resp
}

func counted(n int) func() int { return func() int { return n } }

type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) HealthCheck(_ context.Context) error {
	return m.err
}

func TestHandleReady_allHealthy(t *testing.T) {
	code, resp := serveReady(t, ReadinessChecks{
		Resources:         counted(12),
		GatewayOperations: counted(80),
	})

	if code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}
	if resp.Status != "ready" {
		t.Errorf("status = %q, want ready", resp.Status)
	}
	if got := resp.Checks["resources"]; got.Status != "ok" || got.Count != 12 {
		t.Errorf("resources = %+v, want ok with count 12", got)
	}
	if got := resp.Checks["gateway_index"]; got.Status != "ok" || got.Count != 80 {
		t.Errorf("gateway_index = %+v, want ok with count 80", got)
	}
}

func TestHandleReady_emptyCounts(t *testing.T) {
	tests := []struct {
		name   string
		checks ReadinessChecks
		failed string
	}{
		{"no resources", ReadinessChecks{Resources: counted(0), GatewayOperations: counted(1)}, "resources"},
		{"no operations", ReadinessChecks{Resources: counted(1), GatewayOperations: counted(0)}, "gateway_index"},
		{"nil counters", ReadinessChecks{}, "resources"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, resp := serveReady(t, tt.checks)
			if code != http.StatusServiceUnavailable {
				t.Fatalf("status = %d, want 503", code)
			}
			if resp.Status != "not_ready" {
				t.Errorf("status = %q, want not_ready", resp.Status)
			}
			if got := resp.Checks[tt.failed]; got.Status != "error" || got.Error == "" {
				t.Errorf("%s = %+v, want error with message", tt.failed, got)
			}
		})
	}
}

func TestHandleReady_dependencies(t *testing.T) {
	code, resp := serveReady(t, ReadinessChecks{
		Resources:         counted(1),
		GatewayOperations: counted(1),
		SessionStore:      &mockHealthChecker{},
		Gateway:           &mockHealthChecker{},
		GatewayState:      func() string { return "closed" },
	})

	if code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}
	if len(resp.Checks) != 4 {
		t.Errorf("checks count = %d, want 4", len(resp.Checks))
	}
	if got := resp.Checks["gateway"]; got.Status != "ok" || got.State != "closed" {
		t.Errorf("gateway = %+v, want ok and closed", got)
	}
	if got := resp.Checks["session_store"]; got.State != "" {
		t.Errorf("session_store state = %q, want empty", got.State)
	}
}

func TestHandleReady_sessionStoreDown(t *testing.T) {
	code, resp := serveReady(t, ReadinessChecks{
		Resources:         counted(1),
		GatewayOperations: counted(1),
		SessionStore:      &mockHealthChecker{err: errors.New("connection refused")},
	})

	if code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", code)
	}
	if resp.Checks["session_store"].Error != "connection refused" {
		t.Errorf("session_store error = %q, want 'connection refused'", resp.Checks["session_store"].Error)
	}
}

func TestHandleReady_gatewayBreakerOpen(t *testing.T) {
	code, resp := serveReady(t, ReadinessChecks{
		Resources:         counted(1),
		GatewayOperations: counted(1),
		Gateway:           &mockHealthChecker{err: errors.New("circuit breaker is open")},
		GatewayState:      func() string { return "open" },
	})

	if code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", code)
	}
	got := resp.Checks["gateway"]
	if got.Status != "error" || got.State != "open" {
		t.Errorf("gateway = %+v, want error and open", got)
	}
}

func TestHandleReady_withoutOptionalChecks(t *testing.T) {
	_, resp := serveReady(t, ReadinessChecks{
		Resources:         counted(1),
		GatewayOperations: counted(1),
	})

	if len(resp.Checks) != 2 {
		t.Errorf("checks count = %d, want 2", len(resp.Checks))
	}
	for _, name := range []string{"session_store", "gateway"} {
		if _, ok := resp.Checks[name]; ok {
			t.Errorf("%s should not be in checks when nil", name)
		}
	}
}

func TestHandleReady_liveSessionsAreInformational(t *testing.T) {
	code, resp := serveReady(t, ReadinessChecks{
		Resources:         counted(1),
		GatewayOperations: counted(1),
		LiveSessions:      counted(0),
	})
	if code != http.StatusOK {
		t.Fatalf("status = %d, want 200 with no live sessions", code)
	}

	_, resp = serveReady(t, ReadinessChecks{
		Resources:         counted(0),
		GatewayOperations: counted(1),
		LiveSessions:      counted(7),
	})
	if resp.LiveSessions != 7 {
		t.Errorf("live_sessions = %d, want 7", resp.LiveSessions)
	}
	if _, ok := resp.Checks["live_sessions"]; ok {
		t.Error("live sessions should not be a check")
	}
}

func TestHandleReady_multipleFailures(t *testing.T) {
	_, resp := serveReady(t, ReadinessChecks{
		SessionStore: &mockHealthChecker{err: errors.New("pg down")},
	})

	failCount := 0
	for _, check := range resp.Checks {
		if check.Status == "error" {
			failCount++
		}
	}
	if failCount != 3 {
		t.Errorf("failed checks = %d, want 3", failCount)
	}
}
