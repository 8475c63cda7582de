// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/rigrun-router/internal/catalog"
)

// Default provider API endpoints.
const (
	DefaultOpenAIURL    = "https://api.openai.com/v1"
	DefaultAnthropicURL = "https://api.anthropic.com/v1"
	DefaultGeminiURL    = "https://generativelanguage.googleapis.com/v1beta"

	anthropicVersion = "2023-06-01"

	// maxDirectResponse caps provider response bodies.
	maxDirectResponse = 10 * 1024 * 1024
)

// Endpoints are the provider base URLs used by Direct.
type Endpoints struct {
	OpenAI    string
	Anthropic string
	Gemini    string
}

// DefaultEndpoints returns the public provider URLs.
func DefaultEndpoints() Endpoints {
	return Endpoints{OpenAI: DefaultOpenAIURL, Anthropic: DefaultAnthropicURL, Gemini: DefaultGeminiURL}
}

// Direct calls each provider's native completions API with the user's key.
type Direct struct {
	endpoints  Endpoints
	httpClient *http.Client
	logger     *zap.Logger
}

// NewDirect creates a direct-API adapter. A nil client uses a pooled default.
func NewDirect(endpoints Endpoints, hc *http.Client, logger *zap.Logger) *Direct {
	if hc == nil {
		hc = &http.Client{
			Timeout: 120 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultEndpoints()
	if endpoints.OpenAI == "" {
		endpoints.OpenAI = def.OpenAI
	}
	if endpoints.Anthropic == "" {
		endpoints.Anthropic = def.Anthropic
	}
	if endpoints.Gemini == "" {
		endpoints.Gemini = def.Gemini
	}
	return &Direct{endpoints: endpoints, httpClient: hc, logger: logger}
}

// Transport implements Adapter.
func (d *Direct) Transport() catalog.Transport { return catalog.TransportDirect }

// Execute implements Adapter.
func (d *Direct) Execute(ctx context.Context, req Request) (*Result, error) {
	key, ok := d.credential(req)
	if !ok {
		f := newFailure(ErrNoCredential, req.Model.Adapter, req.Model.ID)
		f.Message = fmt.Sprintf("no %s API key configured", req.Model.Provider)
		return nil, f
	}

	var call func(context.Context, Request, string) (*Result, error)
	switch req.Model.Provider {
	case catalog.ProviderOpenAI:
		call = d.openAI
	case catalog.ProviderAnthropic:
		call = d.anthropic
	case catalog.ProviderGoogle:
		call = d.gemini
	default:
		f := newFailure(ErrAdapterFailure, req.Model.Adapter, req.Model.ID)
		f.Message = fmt.Sprintf("unsupported provider %q", req.Model.Provider)
		return nil, f
	}

	start := time.Now()
	res, err := call(ctx, req, key)
	if err != nil {
		return nil, err
	}
	res.Model = req.Model.ID
	res.Latency = time.Since(start)
	if res.TotalTokens == 0 {
		res.TotalTokens = res.InputTokens + res.OutputTokens
	}
	return res, nil
}

// credential prefers the provider key and falls back to one stored under the adapter name.
func (d *Direct) credential(req Request) (string, bool) {
	if key, ok := req.User.Credential(string(req.Model.Provider)); ok {
		return key, true
	}
	return req.User.Credential(req.Model.Adapter)
}

// ============================================================================
// OPENAI
// ============================================================================

type openAIRequest struct {
	Model     string          `json:"model"`
	Messages  []openAIMessage `json:"messages"`
	MaxTokens int             `json:"max_tokens,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func (d *Direct) openAI(ctx context.Context, req Request, key string) (*Result, error) {
	body := openAIRequest{Model: req.Model.UpstreamName(), MaxTokens: req.maxTokens()}
	if req.Query.SystemPrompt != "" {
		body.Messages = append(body.Messages, openAIMessage{Role: "system", Content: req.Query.SystemPrompt})
	}
	body.Messages = append(body.Messages, openAIMessage{Role: "user", Content: req.Query.Message})

	headers := map[string]string{"Authorization": "Bearer " + key}
	var resp openAIResponse
	if err := d.post(ctx, req.Model, d.endpoints.OpenAI+"/chat/completions", headers, body, &resp); err != nil {
		return nil, err
	}

	res := &Result{
		UpstreamModel: resp.Model,
		InputTokens:   resp.Usage.PromptTokens,
		OutputTokens:  resp.Usage.CompletionTokens,
		TotalTokens:   resp.Usage.TotalTokens,
	}
	if len(resp.Choices) > 0 {
		res.Response = resp.Choices[0].Message.Content
	}
	return res, nil
}

// ============================================================================
// ANTHROPIC
// ============================================================================

type anthropicRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	System    string          `json:"system,omitempty"`
	Messages  []openAIMessage `json:"messages"`
}

type anthropicResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (d *Direct) anthropic(ctx context.Context, req Request, key string) (*Result, error) {
	body := anthropicRequest{
		Model:     req.Model.UpstreamName(),
		MaxTokens: req.maxTokens(),
		System:    req.Query.SystemPrompt,
		Messages:  []openAIMessage{{Role: "user", Content: req.Query.Message}},
	}
	headers := map[string]string{
		"x-api-key":         key,
		"anthropic-version": anthropicVersion,
	}
	var resp anthropicResponse
	if err := d.post(ctx, req.Model, d.endpoints.Anthropic+"/messages", headers, body, &resp); err != nil {
		return nil, err
	}

	var text strings.Builder
	for _, c := range resp.Content {
		if c.Type == "text" {
			text.WriteString(c.Text)
		}
	}
	return &Result{
		Response:      text.String(),
		UpstreamModel: resp.Model,
		InputTokens:   resp.Usage.InputTokens,
		OutputTokens:  resp.Usage.OutputTokens,
	}, nil
}

// ============================================================================
// GEMINI
// ============================================================================

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig struct {
		MaxOutputTokens int `json:"maxOutputTokens"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
	ModelVersion string `json:"modelVersion"`
}

func (d *Direct) gemini(ctx context.Context, req Request, key string) (*Result, error) {
	var body geminiRequest
	body.Contents = []geminiContent{{Parts: []geminiPart{{Text: req.prompt()}}}}
	body.GenerationConfig.MaxOutputTokens = req.maxTokens()

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		d.endpoints.Gemini, url.PathEscape(req.Model.UpstreamName()), url.QueryEscape(key))

	var resp geminiResponse
	if err := d.post(ctx, req.Model, endpoint, nil, body, &resp); err != nil {
		return nil, err
	}

	res := &Result{
		UpstreamModel: resp.ModelVersion,
		InputTokens:   resp.UsageMetadata.PromptTokenCount,
		OutputTokens:  resp.UsageMetadata.CandidatesTokenCount,
		TotalTokens:   resp.UsageMetadata.TotalTokenCount,
	}
	if len(resp.Candidates) > 0 {
		var text strings.Builder
		for _, p := range resp.Candidates[0].Content.Parts {
			text.WriteString(p.Text)
		}
		res.Response = text.String()
	}
	return res, nil
}

// ============================================================================
// TRANSPORT
// ============================================================================

// post sends body as JSON and decodes a 2xx response into out. Non-2xx
// responses become a Failure carrying the status and raw body.
func (d *Direct) post(ctx context.Context, m catalog.Model, endpoint string, headers map[string]string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		if f := fromContext(ctx, m.Adapter, m.ID); f != nil {
			return f
		}
		f := newFailure(ErrAdapterFailure, m.Adapter, m.ID)
		f.Message = redact(err.Error())
		return f
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxDirectResponse))
	if err != nil {
		f := newFailure(ErrAdapterFailure, m.Adapter, m.ID)
		f.Message = "failed to read response: " + err.Error()
		return f
	}

	d.logger.Debug("DIRECT",
		zap.String("model", m.ID),
		zap.String("provider", string(m.Provider)),
		zap.Int("status", resp.StatusCode),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		kind := ErrAdapterFailure
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			kind = ErrAuthExpired
		}
		f := newFailure(kind, m.Adapter, m.ID)
		f.Status = resp.StatusCode
		f.Message = strings.TrimSpace(string(raw))
		return f
	}

	if err := json.Unmarshal(raw, out); err != nil {
		f := newFailure(ErrAdapterFailure, m.Adapter, m.ID)
		f.Status = resp.StatusCode
		f.Message = "failed to parse response: " + err.Error()
		return f
	}
	return nil
}

// redact strips query strings from URLs in transport errors; the Gemini key
// travels in the query string.
func redact(msg string) string {
	if i := strings.Index(msg, "?key="); i >= 0 {
		end := strings.IndexAny(msg[i:], "\" ")
		if end < 0 {
			return msg[:i] + "?key=REDACTED"
		}
		return msg[:i] + "?key=REDACTED" + msg[i+end:]
	}
	return msg
}
