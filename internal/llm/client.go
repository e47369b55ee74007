// Package llm calls an OpenAI-compatible chat-completions endpoint and
// decodes a JSON object reply.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/imperfectform/predictbot/internal/domain"
)

// Config selects the endpoint and model.
type Config struct {
	BaseURL     string // e.g. https://api.openai.com/v1
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
	// Limiter, when set, throttles outbound calls under the model's key.
	Limiter domain.RateLimiter
}

// Client is a minimal chat-completions client.
type Client struct {
	cfg  Config
	http *http.Client
}

// New validates cfg and returns a client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" || cfg.Model == "" {
		return nil, fmt.Errorf("llm: %w: base url and model are required", domain.ErrValidation)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}}, nil
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.cfg.Model }

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model          string            `json:"model"`
	Messages       []message         `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format"`
}

type completionResponse struct {
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// CompleteJSON sends a system and a user message and decodes the model's
// JSON object reply into out. Transport failures and unusable replies wrap
// domain.ErrExternalDependency.
func (c *Client) CompleteJSON(ctx context.Context, system, user string, out any) error {
	if c.cfg.Limiter != nil {
		if err := c.cfg.Limiter.Wait(ctx, "llm:"+c.cfg.Model); err != nil {
			return fmt.Errorf("llm: rate limit wait: %w", err)
		}
	}
	body, err := json.Marshal(completionRequest{
		Model: c.cfg.Model,
		Messages: []message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature:    c.cfg.Temperature,
		ResponseFormat: map[string]string{"type": "json_object"},
	})
	if err != nil {
		return fmt.Errorf("llm: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("llm: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("llm: %w: %v", domain.ErrExternalDependency, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("llm: %w: read body: %v", domain.ErrExternalDependency, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("llm: %w: status %d: %s", domain.ErrExternalDependency, resp.StatusCode, truncate(string(raw), 256))
	}

	var cr completionResponse
	if err := json.Unmarshal(raw, &cr); err != nil {
		return fmt.Errorf("llm: %w: decode response: %v", domain.ErrExternalDependency, err)
	}
	if cr.Error != nil {
		return fmt.Errorf("llm: %w: %s", domain.ErrExternalDependency, cr.Error.Message)
	}
	if len(cr.Choices) == 0 {
		return fmt.Errorf("llm: %w: no choices", domain.ErrExternalDependency)
	}
	content := stripFence(cr.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(content), out); err != nil {
		return fmt.Errorf("llm: %w: reply is not the expected JSON: %v", domain.ErrExternalDependency, err)
	}
	return nil
}

// stripFence removes a ```json fence some models wrap replies in.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
