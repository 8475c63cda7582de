// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package adapter

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jeranaias/rigrun-router/internal/catalog"
	"github.com/jeranaias/rigrun-router/internal/cloud"
	"github.com/jeranaias/rigrun-router/internal/router"
)

// DefaultTemperature is the sampling temperature sent to the gateway.
const DefaultTemperature = 0.7

// Gateway sends requests through the unified multi-provider endpoint.
type Gateway struct {
	client      *cloud.Client
	catalog     *catalog.Catalog
	temperature float64
	fallbacks   []string
	logger      *zap.Logger
}

// NewGateway creates a gateway adapter. Urgent queries ask the gateway to fall
// back to fallbacks (in order) when the routed model cannot answer.
func NewGateway(client *cloud.Client, cat *catalog.Catalog, fallbacks []string, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		client:      client,
		catalog:     cat,
		temperature: DefaultTemperature,
		fallbacks:   fallbacks,
		logger:      logger,
	}
}

// WithTemperature overrides the sampling temperature.
func (g *Gateway) WithTemperature(t float64) *Gateway {
	g.temperature = t
	return g
}

// Transport implements Adapter.
func (g *Gateway) Transport() catalog.Transport { return catalog.TransportGateway }

// Execute implements Adapter.
func (g *Gateway) Execute(ctx context.Context, req Request) (*Result, error) {
	key, ok := req.User.Credential(catalog.GatewayAdapter)
	if !ok {
		f := newFailure(ErrNoCredential, catalog.GatewayAdapter, req.Model.ID)
		f.Message = "no gateway API key configured"
		return nil, f
	}

	chatReq := cloud.ChatRequest{
		Model:       req.Model.ID,
		Messages:    g.messages(req),
		MaxTokens:   req.maxTokens(),
		Temperature: g.temperature,
		Usage:       &cloud.UsageOption{Include: true},
	}
	if req.Query.Priority == router.PriorityUrgent {
		chatReq.Models = fallbackChain(req.Model.ID, g.fallbacks)
	}

	start := time.Now()
	resp, err := g.client.Chat(ctx, key, chatReq)
	latency := time.Since(start)
	if err != nil {
		return nil, g.failure(ctx, req.Model.ID, err)
	}

	res := &Result{
		Response:      resp.GetContent(),
		Model:         req.Model.ID,
		UpstreamModel: resp.Model,
		InputTokens:   resp.Usage.PromptTokens,
		OutputTokens:  resp.Usage.CompletionTokens,
		TotalTokens:   resp.Usage.TotalTokens,
		Latency:       latency,
	}
	if res.TotalTokens == 0 {
		res.TotalTokens = res.InputTokens + res.OutputTokens
	}
	// The gateway may have answered with a fallback; keep the catalog id of
	// whichever model actually served when it is one of ours.
	if resp.Model != "" && resp.Model != req.Model.ID && g.catalog.Has(resp.Model) {
		res.Model = resp.Model
		g.logger.Info("GATEWAY_FALLBACK", zap.String("requested", req.Model.ID), zap.String("served", resp.Model))
	}
	if resp.Usage.Cost != nil {
		c := decimal.NewFromFloat(*resp.Usage.Cost)
		res.ReportedCost = &c
	}
	return res, nil
}

func (g *Gateway) messages(req Request) []cloud.ChatMessage {
	var msgs []cloud.ChatMessage
	if req.Query.SystemPrompt != "" {
		msgs = append(msgs, cloud.NewSystemMessage(req.Query.SystemPrompt))
	}
	return append(msgs, cloud.NewUserMessage(req.Query.Message))
}

func (g *Gateway) failure(ctx context.Context, model string, err error) error {
	if f := fromContext(ctx, catalog.GatewayAdapter, model); f != nil {
		return f
	}

	kind := ErrAdapterFailure
	if errors.Is(err, cloud.ErrAuthFailed) || errors.Is(err, cloud.ErrNotConfigured) {
		kind = ErrAuthExpired
	}
	f := newFailure(kind, catalog.GatewayAdapter, model)
	f.cause = err

	var apiErr *cloud.APIError
	if errors.As(err, &apiErr) {
		f.Status = apiErr.Status
		f.Message = apiErr.Message
	} else {
		f.Message = err.Error()
	}
	return f
}

// fallbackChain returns model followed by fallbacks, without duplicates.
func fallbackChain(model string, fallbacks []string) []string {
	chain := []string{model}
	seen := map[string]bool{model: true}
	for _, id := range fallbacks {
		if !seen[id] {
			seen[id] = true
			chain = append(chain, id)
		}
	}
	return chain
}
