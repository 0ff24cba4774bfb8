// Package embedclient calls the tenant-agnostic embedding model over
// HTTP/JSON. There is no generated protobuf stub for this capability in
// this codebase, so the client speaks the model's native HTTP API
// directly, following the pattern the teacher uses for its own
// Ollama-backed embedding client.
package embedclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/waqedi/platform/pkg/fn"
	"github.com/waqedi/platform/pkg/resilience"
)

// Client embeds text through a remote HTTP embedding service.
type Client struct {
	baseURL string
	model   string
	version string
	http    *http.Client
	breaker *resilience.Breaker
}

// New builds an embedding client. model/version are stamped onto every
// Vector this client's output feeds into (§4.5: embedding_model,
// embedding_version travel with every vector for compatibility checks).
func New(baseURL, model, version string) *Client {
	return &Client{
		baseURL: baseURL,
		model:   model,
		version: version,
		http:    &http.Client{Timeout: 30 * time.Second},
		breaker: resilience.NewBreaker(resilience.DefaultBreakerOpts),
	}
}

// Model returns the embedding model identifier this client speaks for.
func (c *Client) Model() string { return c.model }

// Version returns the embedding model version this client speaks for.
func (c *Client) Version() string { return c.version }

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// embedStage is the raw HTTP round trip as an fn.Stage, the same shape the
// ingest pipeline's NewEmbed builds its embedding step in.
func (c *Client) embedStage(texts []string) fn.Stage[struct{}, [][]float32] {
	return func(ctx context.Context, _ struct{}) fn.Result[[][]float32] {
		body, err := json.Marshal(embedRequest{Model: c.model, Input: texts})
		if err != nil {
			return fn.Err[[][]float32](fmt.Errorf("embedclient: marshal request: %w", err))
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embed", bytes.NewReader(body))
		if err != nil {
			return fn.Err[[][]float32](fmt.Errorf("embedclient: build request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return fn.Err[[][]float32](fmt.Errorf("embedclient: request failed: %w", err))
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fn.Err[[][]float32](fmt.Errorf("embedclient: status %d", resp.StatusCode))
		}

		var decoded embedResponse
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			return fn.Err[[][]float32](fmt.Errorf("embedclient: decode response: %w", err))
		}
		if len(decoded.Embeddings) != len(texts) {
			return fn.Err[[][]float32](fmt.Errorf("embedclient: expected %d embeddings, got %d", len(texts), len(decoded.Embeddings)))
		}
		return fn.Ok(decoded.Embeddings)
	}
}

// EmbedBatch embeds up to len(texts) strings in one round trip, matching
// §5's batched indexing requirement (groups of up to 100 chunks). The round
// trip runs as a circuit-breaker-wrapped fn.Stage so a string of failures
// trips the same breaker state Call would, without hand-rolling the
// bookkeeping CallResult already does for a fn.Result-shaped call.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	stage := resilience.BreakerStage(c.breaker, c.embedStage(texts))
	out, err := stage(ctx, struct{}{}).Unwrap()
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Embed embeds a single string.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}
