// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Configuration constants for the gateway API.
const (
	// DefaultBaseURL is the base URL of the OpenRouter API.
	DefaultBaseURL = "https://openrouter.ai/api/v1"

	// DefaultTimeout bounds a single request when the context has no deadline.
	DefaultTimeout = 120 * time.Second

	// MaxResponseSize caps how much of a response body is read.
	// SECURITY: Response size limit prevents memory exhaustion.
	MaxResponseSize = 10 * 1024 * 1024
)

// Error variables for common gateway failures.
var (
	// ErrNotConfigured indicates no API key was supplied.
	ErrNotConfigured = errors.New("gateway API key not configured")

	// ErrAuthFailed indicates the key was rejected (invalid or expired).
	ErrAuthFailed = errors.New("authentication failed")

	// ErrRateLimited indicates too many requests were made.
	ErrRateLimited = errors.New("rate limited")

	// ErrModelNotFound indicates the gateway does not know the model.
	ErrModelNotFound = errors.New("model not found")

	// ErrInsufficientCredits indicates the account is out of credits.
	ErrInsufficientCredits = errors.New("insufficient credits")
)

// APIError is a non-2xx gateway response. It wraps one of the sentinels above
// when the status maps to one.
type APIError struct {
	Status  int
	Code    string
	Message string
	Body    string

	kind error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("gateway error [%s] (HTTP %d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("gateway error (HTTP %d): %s", e.Status, e.Message)
}

// Unwrap returns the sentinel matching the status, if any.
func (e *APIError) Unwrap() error { return e.kind }

// ChatMessage is a single message in a conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) ChatMessage {
	return ChatMessage{Role: "user", Content: content}
}

// NewSystemMessage creates a system message.
func NewSystemMessage(content string) ChatMessage {
	return ChatMessage{Role: "system", Content: content}
}

// UsageOption asks the gateway to report usage accounting (including cost).
type UsageOption struct {
	Include bool `json:"include"`
}

// ChatRequest is the chat completions payload.
type ChatRequest struct {
	Model       string        `json:"model"`
	Models      []string      `json:"models,omitempty"` // gateway-side fallback order
	Messages    []ChatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
	Usage       *UsageOption  `json:"usage,omitempty"`
}

// Usage is the token accounting block of a response.
type Usage struct {
	PromptTokens     int      `json:"prompt_tokens"`
	CompletionTokens int      `json:"completion_tokens"`
	TotalTokens      int      `json:"total_tokens"`
	Cost             *float64 `json:"cost,omitempty"`
}

// ChatResponse is the chat completions response envelope.
type ChatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message      ChatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
}

// GetContent returns the content of the first choice, or "".
func (r *ChatResponse) GetContent() string {
	if len(r.Choices) > 0 {
		return r.Choices[0].Message.Content
	}
	return ""
}

type apiErrorResponse struct {
	Error struct {
		Code    json.RawMessage `json:"code"`
		Message string          `json:"message"`
	} `json:"error"`
}

// Client talks to the gateway.
type Client struct {
	baseURL    string
	httpClient *http.Client
	siteURL    string
	siteName   string
	userAgent  string
	logger     *zap.Logger
}

// NewClient creates a gateway client for baseURL ("" means DefaultBaseURL).
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		// PERFORMANCE: pooled connections, shared across users.
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
				TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
			},
		},
		siteURL:   "https://rigrun.local",
		siteName:  "rigrun-router",
		userAgent: "rigrun-router/1.0",
		logger:    zap.NewNop(),
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// WithTimeout sets the per-request timeout.
func (c *Client) WithTimeout(d time.Duration) *Client {
	c.httpClient.Timeout = d
	return c
}

// WithSite sets the attribution headers sent to the gateway.
func (c *Client) WithSite(url, name string) *Client {
	c.siteURL = url
	c.siteName = name
	return c
}

// WithLogger sets the logger used for request/response lines.
func (c *Client) WithLogger(l *zap.Logger) *Client {
	if l != nil {
		c.logger = l
	}
	return c
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Chat sends one chat completion request with apiKey.
func (c *Client) Chat(ctx context.Context, apiKey string, req ChatRequest) (*ChatResponse, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, ErrNotConfigured
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(httpReq, apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	// SECURITY: drop the key from the request before anything can log it.
	httpReq.Header.Del("Authorization")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	c.logger.Debug("GATEWAY",
		zap.String("model", req.Model),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
		zap.String("key", Fingerprint(apiKey)),
	)

	data, err := readResponse(resp)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, handleErrorResponse(resp.StatusCode, data)
	}

	var chatResp ChatResponse
	if err := json.Unmarshal(data, &chatResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &chatResp, nil
}

func (c *Client) setHeaders(req *http.Request, apiKey string) {
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if c.siteURL != "" {
		req.Header.Set("HTTP-Referer", c.siteURL)
	}
	if c.siteName != "" {
		req.Header.Set("X-Title", c.siteName)
	}
}

// readResponse reads the body with a size cap.
// SECURITY: Response size limit prevents memory exhaustion.
func readResponse(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if len(body) > MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return body, nil
}

// handleErrorResponse converts a non-2xx response into an *APIError.
func handleErrorResponse(status int, body []byte) error {
	e := &APIError{Status: status, Body: string(body), Message: strings.TrimSpace(string(body))}

	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		e.Message = apiErr.Error.Message
		e.Code = strings.Trim(string(apiErr.Error.Code), `"`)
	}
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}

	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		e.kind = ErrAuthFailed
	case http.StatusPaymentRequired:
		e.kind = ErrInsufficientCredits
	case http.StatusNotFound:
		e.kind = ErrModelNotFound
	case http.StatusTooManyRequests:
		e.kind = ErrRateLimited
	}
	return e
}

// Fingerprint returns the first 8 hex chars of the key's SHA-256.
// SECURITY: never log key fragments, only this.
func Fingerprint(apiKey string) string {
	if apiKey == "" {
		return "none"
	}
	h := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(h[:4])
}
