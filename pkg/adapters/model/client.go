// Package model implements the language-model boundary over the Messages
// wire protocol: typed content blocks (text, tool_use, tool_result) and a
// stop_reason, matching the domain conversation model one-to-one.
package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/switchyard-dev/switchyard/pkg/domain"
)

const (
	defaultBaseURL   = "https://api.anthropic.com"
	defaultModel     = "claude-sonnet-4-5"
	defaultMaxTokens = 4096
	apiVersion       = "2023-06-01"
)

// Client is a ports.ModelClient over HTTP.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	maxTokens  int
	httpClient *http.Client
	logger     *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL overrides the API endpoint, e.g. for a proxy or a test server.
func WithBaseURL(url string) ClientOption {
	return func(c *Client) { c.baseURL = url }
}

// WithModel sets the default model id.
func WithModel(model string) ClientOption {
	return func(c *Client) { c.model = model }
}

// WithMaxTokens sets the per-call output budget.
func WithMaxTokens(n int) ClientOption {
	return func(c *Client) { c.maxTokens = n }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithClientLogger sets the structured logger.
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// NewClient builds a model client.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		apiKey:     apiKey,
		model:      defaultModel,
		maxTokens:  defaultMaxTokens,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type wireRequest struct {
	Model     string                  `json:"model"`
	MaxTokens int                     `json:"max_tokens"`
	System    string                  `json:"system,omitempty"`
	Messages  []domain.Message        `json:"messages"`
	Tools     []domain.ToolDefinition `json:"tools,omitempty"`
}

type wireResponse struct {
	Content    []domain.ContentBlock `json:"content"`
	StopReason string                `json:"stop_reason"`
	Error      *wireError            `json:"error,omitempty"`
}

type wireError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// InvokeModel performs a single plain-text completion.
func (c *Client) InvokeModel(ctx context.Context, prompt string) (string, error) {
	resp, err := c.InvokeWithTools(ctx, domain.ModelRequest{
		Messages: []domain.Message{domain.TextMessage(domain.RoleUser, prompt)},
	})
	if err != nil {
		return "", err
	}
	return resp.TextContent(), nil
}

// InvokeWithTools performs one tool-use round trip.
func (c *Client) InvokeWithTools(ctx context.Context, req domain.ModelRequest) (*domain.ModelResponse, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	body, err := json.Marshal(wireRequest{
		Model:     model,
		MaxTokens: c.maxTokens,
		System:    req.SystemPrompt,
		Messages:  req.Messages,
		Tools:     req.Tools,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding model request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)

	started := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("model request failed: %w", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("reading model response: %w", err)
	}

	var wire wireResponse
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("decoding model response (status %d): %w", httpResp.StatusCode, err)
	}
	if httpResp.StatusCode != http.StatusOK {
		if wire.Error != nil {
			return nil, fmt.Errorf("model API error (status %d, %s): %s", httpResp.StatusCode, wire.Error.Type, wire.Error.Message)
		}
		return nil, fmt.Errorf("model API error: status %d", httpResp.StatusCode)
	}

	c.logger.Debug("model call completed",
		"model", model, "stop_reason", wire.StopReason,
		"blocks", len(wire.Content), "elapsed", time.Since(started))
	return &domain.ModelResponse{Content: wire.Content, StopReason: wire.StopReason}, nil
}
