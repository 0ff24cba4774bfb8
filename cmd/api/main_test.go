package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/waqedi/platform/engine/domain"
	"github.com/waqedi/platform/pkg/authclaims"
)

func TestEnvOr(t *testing.T) {
	os.Unsetenv("WAQEDI_TEST_KEY")
	if got := envOr("WAQEDI_TEST_KEY", "fallback"); got != "fallback" {
		t.Fatalf("expected fallback, got %q", got)
	}
	os.Setenv("WAQEDI_TEST_KEY", "set")
	defer os.Unsetenv("WAQEDI_TEST_KEY")
	if got := envOr("WAQEDI_TEST_KEY", "fallback"); got != "set" {
		t.Fatalf("expected set value, got %q", got)
	}
}

func TestEnvOrInt(t *testing.T) {
	os.Unsetenv("WAQEDI_TEST_INT")
	if got := envOrInt("WAQEDI_TEST_INT", 42); got != 42 {
		t.Fatalf("expected fallback 42, got %d", got)
	}
	os.Setenv("WAQEDI_TEST_INT", "7")
	defer os.Unsetenv("WAQEDI_TEST_INT")
	if got := envOrInt("WAQEDI_TEST_INT", 42); got != 7 {
		t.Fatalf("expected 7, got %d", got)
	}
	os.Setenv("WAQEDI_TEST_INT", "not-a-number")
	if got := envOrInt("WAQEDI_TEST_INT", 42); got != 42 {
		t.Fatalf("expected fallback on malformed int, got %d", got)
	}
}

func TestEnvOrDuration(t *testing.T) {
	os.Unsetenv("WAQEDI_TEST_DURATION")
	if got := envOrDuration("WAQEDI_TEST_DURATION", 5*time.Second); got != 5*time.Second {
		t.Fatalf("expected fallback, got %v", got)
	}
	os.Setenv("WAQEDI_TEST_DURATION", "2h")
	defer os.Unsetenv("WAQEDI_TEST_DURATION")
	if got := envOrDuration("WAQEDI_TEST_DURATION", 5*time.Second); got != 2*time.Hour {
		t.Fatalf("expected 2h, got %v", got)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "NATS_URL", "MAX_UPLOAD_BYTES", "QDRANT_COLLECTION"} {
		os.Unsetenv(key)
	}
	cfg := loadConfig()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.Port)
	}
	if cfg.Collection != "waqedi_vectors" {
		t.Fatalf("expected default collection, got %q", cfg.Collection)
	}
	if cfg.MaxUploadBytes != 200<<20 {
		t.Fatalf("expected default max upload bytes, got %d", cfg.MaxUploadBytes)
	}
}

func TestHandleHealth(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handleHealth(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid json body: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("expected status ok, got %+v", body)
	}
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if tok := bearerToken(req); tok != "" {
		t.Fatalf("expected empty token for missing header, got %q", tok)
	}
	req.Header.Set("Authorization", "Bearer abc123")
	if tok := bearerToken(req); tok != "abc123" {
		t.Fatalf("expected abc123, got %q", tok)
	}
	req.Header.Set("Authorization", "Basic abc123")
	if tok := bearerToken(req); tok != "" {
		t.Fatalf("expected empty token for non-bearer scheme, got %q", tok)
	}
}

func TestWriteProblemMapsUnauthorized(t *testing.T) {
	rec := httptest.NewRecorder()
	writeProblem(rec, domain.New(domain.KindAuthorization, domain.TypeUnauthorized, "missing bearer token"))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Fatalf("expected problem+json content type, got %q", ct)
	}
	var problem domain.Problem
	if err := json.Unmarshal(rec.Body.Bytes(), &problem); err != nil {
		t.Fatalf("invalid problem json: %v", err)
	}
	if problem.Status != http.StatusUnauthorized {
		t.Fatalf("expected problem status 401, got %d", problem.Status)
	}
}

func TestRequireAuthRejectsMissingToken(t *testing.T) {
	s := &server{}
	called := false
	handler := s.requireAuth(func(w http.ResponseWriter, r *http.Request, claims authclaims.Claims) {
		called = true
	})
	req := httptest.NewRequest(http.MethodPost, "/documents", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if called {
		t.Fatal("handler must not run without a token")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}
