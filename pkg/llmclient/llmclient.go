// Package llmclient calls the tenant-agnostic generation model over
// HTTP/JSON for the answer-synthesis step of engine/answering (§7a). As
// with embedclient and ocrclient, there is no generated protobuf stub for
// this capability in this codebase, so the client speaks the model's
// native HTTP API directly, following the pattern the teacher uses for
// its own Ollama-backed clients.
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/waqedi/platform/pkg/resilience"
)

// Message is one turn of chat history passed to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client generates chat completions through a remote HTTP LLM service.
type Client struct {
	baseURL string
	model   string
	http    *http.Client
	breaker *resilience.Breaker
}

// New builds a generation client.
func New(baseURL, model string) *Client {
	return &Client{
		baseURL: baseURL,
		model:   model,
		http:    &http.Client{Timeout: 2 * time.Minute},
		breaker: resilience.NewBreaker(resilience.DefaultBreakerOpts),
	}
}

// Model returns the generation model identifier this client speaks for.
func (c *Client) Model() string { return c.model }

// GenerateOpts configures a single generation call.
type GenerateOpts struct {
	SystemPrompt string
	Temperature  float32
	MaxTokens    int32
}

type generateRequest struct {
	Model        string    `json:"model"`
	Messages     []Message `json:"messages"`
	SystemPrompt string    `json:"system_prompt,omitempty"`
	Temperature  float32   `json:"temperature"`
	MaxTokens    int32     `json:"max_tokens,omitempty"`
}

type generateResponse struct {
	Text       string `json:"text"`
	TokensUsed int32  `json:"tokens_used"`
}

// Result is a generated answer and the tokens it consumed.
type Result struct {
	Text       string
	TokensUsed int32
}

// Generate builds a chat completion from the given history and prompt
// options. history holds prior turns in oldest-first order (§7a: the
// bounded conversation cache feeds this as advisory context only).
func (c *Client) Generate(ctx context.Context, history []Message, opts GenerateOpts) (Result, error) {
	var result Result
	err := c.breaker.Call(ctx, func(ctx context.Context) error {
		body, err := json.Marshal(generateRequest{
			Model:        c.model,
			Messages:     history,
			SystemPrompt: opts.SystemPrompt,
			Temperature:  opts.Temperature,
			MaxTokens:    opts.MaxTokens,
		})
		if err != nil {
			return fmt.Errorf("llmclient: marshal request: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generate", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("llmclient: build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("llmclient: request failed: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("llmclient: status %d", resp.StatusCode)
		}

		var decoded generateResponse
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			return fmt.Errorf("llmclient: decode response: %w", err)
		}
		result = Result{Text: decoded.Text, TokensUsed: decoded.TokensUsed}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return result, nil
}
