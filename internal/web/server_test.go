package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/casewise/migrator/internal/config"
	"github.com/casewise/migrator/internal/engine"
	"github.com/casewise/migrator/internal/job"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{RequestTimeout: 10 * time.Second},
		Upload: config.UploadConfig{MaxFileSize: 1 << 20},
		Rate:   config.RateLimitConfig{Enabled: false},
	}
}

// newTestServer builds a server with a nil engine; only routes that never
// touch the service are exercised here. Engine behavior is covered by the
// engine package's own tests.
func newTestServer() *Server {
	return NewServer(nil, testConfig())
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer()
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestAPIMissingTenantHeader(t *testing.T) {
	srv := newTestServer()
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/connectors", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestAPIInvalidTenantHeader(t *testing.T) {
	srv := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/api/connectors", nil)
	req.Header.Set(TenantHeader, "not-a-uuid")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestListConnectors(t *testing.T) {
	srv := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/api/connectors", nil)
	req.Header.Set(TenantHeader, uuid.NewString())
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	var out []struct {
		ID    string `json:"id"`
		Label string `json:"label"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	ids := make(map[string]bool)
	for _, c := range out {
		ids[c.ID] = true
	}
	for _, want := range []string{"navex", "eqs", "generic"} {
		if !ids[want] {
			t.Errorf("connector %s missing from %v", want, out)
		}
	}
}

func TestSecurityHeaders(t *testing.T) {
	srv := newTestServer()
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q", got)
	}
}

func TestRateLimiter(t *testing.T) {
	rl := newRateLimiter(2, time.Minute)

	if !rl.allow("1.2.3.4") || !rl.allow("1.2.3.4") {
		t.Fatal("first two requests should pass")
	}
	if rl.allow("1.2.3.4") {
		t.Fatal("third request should be limited")
	}
	// Another IP has its own bucket.
	if !rl.allow("5.6.7.8") {
		t.Fatal("other IP should pass")
	}
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{engine.ErrJobNotFound, http.StatusNotFound},
		{job.ErrIllegalTransition, http.StatusConflict},
		{engine.ErrConfirmationRequired, http.StatusUnprocessableEntity},
		{engine.ErrMappingIncomplete, http.StatusUnprocessableEntity},
		{engine.ErrRollbackWindowExpired, http.StatusConflict},
		{engine.ErrTooManyImports, http.StatusTooManyRequests},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusForError(tt.err); got != tt.status {
			t.Errorf("statusForError(%v) = %d, want %d", tt.err, got, tt.status)
		}
	}
}
