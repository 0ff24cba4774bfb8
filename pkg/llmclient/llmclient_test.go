package llmclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGenerateRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(req.Messages) != 1 || req.Messages[0].Content != "what is a relay?" {
			t.Fatalf("unexpected messages: %+v", req.Messages)
		}
		json.NewEncoder(w).Encode(generateResponse{Text: "a relay is...", TokensUsed: 42})
	}))
	defer srv.Close()

	c := New(srv.URL, "test-model")
	result, err := c.Generate(context.Background(), []Message{{Role: "user", Content: "what is a relay?"}}, GenerateOpts{Temperature: 0.2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Text != "a relay is..." || result.TokensUsed != 42 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestGenerateSurfacesNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, "test-model")
	_, err := c.Generate(context.Background(), nil, GenerateOpts{})
	if err == nil {
		t.Fatal("expected error for non-200 response")
	}
}

func TestModelAccessor(t *testing.T) {
	c := New("http://unused", "llama-70b")
	if c.Model() != "llama-70b" {
		t.Fatalf("unexpected model: %q", c.Model())
	}
}
