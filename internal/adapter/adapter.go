// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jeranaias/rigrun-router/internal/catalog"
	"github.com/jeranaias/rigrun-router/internal/profile"
	"github.com/jeranaias/rigrun-router/internal/router"
)

// DefaultMaxTokens is used when a query carries no max-token override.
const DefaultMaxTokens = 4000

// Request is one adapter call.
type Request struct {
	Query router.Query
	Model catalog.Model
	User  *profile.Profile
}

// maxTokens returns the effective output token limit.
func (r Request) maxTokens() int {
	if r.Query.MaxTokens > 0 {
		return r.Query.MaxTokens
	}
	return DefaultMaxTokens
}

// prompt joins the system prompt and the message the way CLI tools expect.
func (r Request) prompt() string {
	if r.Query.SystemPrompt == "" {
		return r.Query.Message
	}
	return r.Query.SystemPrompt + "\n\n" + r.Query.Message
}

// Result is a normalized adapter response.
type Result struct {
	Response string

	// Model is the catalog id that served the request. For the gateway it may
	// differ from the routed id when a fallback model answered.
	Model string

	// UpstreamModel is the name the backend reported, verbatim.
	UpstreamModel string

	InputTokens  int
	OutputTokens int
	TotalTokens  int

	// ReportedCost is the backend's own cost figure, when it sends one.
	ReportedCost *decimal.Decimal

	Latency time.Duration
}

// Adapter executes requests over one transport.
type Adapter interface {
	Transport() catalog.Transport
	Execute(ctx context.Context, req Request) (*Result, error)
}

// Set holds one adapter per transport.
type Set struct {
	Subprocess Adapter
	Direct     Adapter
	Gateway    Adapter
}

// For returns the adapter serving m's transport.
func (s *Set) For(m catalog.Model) (Adapter, error) {
	var a Adapter
	switch m.Transport {
	case catalog.TransportSubprocess:
		a = s.Subprocess
	case catalog.TransportDirect:
		a = s.Direct
	case catalog.TransportGateway:
		a = s.Gateway
	default:
		return nil, fmt.Errorf("model %s: unsupported transport %d", m.ID, int(m.Transport))
	}
	if a == nil {
		return nil, fmt.Errorf("model %s: no %s adapter configured", m.ID, m.Transport)
	}
	return a, nil
}
