// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package catalog

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Provider identifies the vendor behind a model.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGoogle    Provider = "google"
)

// Providers lists every provider in display order.
var Providers = []Provider{ProviderOpenAI, ProviderAnthropic, ProviderGoogle}

// ParseProvider converts a string to a Provider.
func ParseProvider(s string) (Provider, error) {
	switch p := Provider(strings.ToLower(strings.TrimSpace(s))); p {
	case ProviderOpenAI, ProviderAnthropic, ProviderGoogle:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, s)
	}
}

// Transport is how a model is reached.
type Transport int

const (
	// TransportGateway sends the request through the unified multi-provider endpoint.
	TransportGateway Transport = iota

	// TransportDirect calls the provider's native completions API.
	TransportDirect

	// TransportSubprocess runs an authenticated command-line tool.
	TransportSubprocess
)

// String returns the config/wire name of the transport.
func (t Transport) String() string {
	switch t {
	case TransportGateway:
		return "gateway-api"
	case TransportDirect:
		return "direct-api"
	case TransportSubprocess:
		return "subprocess-cli"
	default:
		return "unknown"
	}
}

// ParseTransport converts a config/wire name to a Transport.
func ParseTransport(s string) (Transport, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "gateway-api", "gateway":
		return TransportGateway, nil
	case "direct-api", "direct":
		return TransportDirect, nil
	case "subprocess-cli", "subprocess", "cli":
		return TransportSubprocess, nil
	default:
		return 0, fmt.Errorf("unknown transport %q", s)
	}
}

// GatewayAdapter is the adapter name shared by every gateway model. It is also the
// credential key the Availability Checker consults for gateway access.
const GatewayAdapter = "openrouter"

// Model describes one selectable model.
type Model struct {
	ID            string
	Provider      Provider
	Name          string
	ContextLength int

	// Per-token prices.
	InputCost  decimal.Decimal
	OutputCost decimal.Decimal

	Tags      []string
	Transport Transport

	// Adapter names the backing tool or API family ("openrouter", "codex",
	// "claude", "gemini", "openai", "anthropic", "gemini-api"). CLI availability
	// flags are keyed by it.
	Adapter string

	// Upstream is the vendor model name used by direct and CLI transports.
	// Gateway requests always carry the catalog id.
	Upstream string

	Description string
}

// HasTag reports whether the model carries the given capability tag.
func (m Model) HasTag(tag string) bool {
	for _, t := range m.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// UpstreamName returns the vendor model name, falling back to the catalog id.
func (m Model) UpstreamName() string {
	if m.Upstream != "" {
		return m.Upstream
	}
	return m.ID
}

// PricePerMillion returns input and output prices per million tokens.
func (m Model) PricePerMillion() (in, out decimal.Decimal) {
	million := decimal.NewFromInt(1_000_000)
	return m.InputCost.Mul(million), m.OutputCost.Mul(million)
}

// DefaultAdapter returns the adapter name used when a model is moved onto a transport.
func DefaultAdapter(p Provider, t Transport) string {
	switch t {
	case TransportGateway:
		return GatewayAdapter
	case TransportSubprocess:
		switch p {
		case ProviderOpenAI:
			return "codex"
		case ProviderAnthropic:
			return "claude"
		}
		return "gemini"
	default:
		if p == ProviderGoogle {
			return "gemini-api"
		}
		return string(p)
	}
}
