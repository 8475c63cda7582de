// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package catalog

// Published prices already include the platform markup.
func builtinModels() []Model {
	return []Model{
		// OpenAI
		{
			ID: "openai/o3", Provider: ProviderOpenAI, Name: "OpenAI o3", ContextLength: 200000,
			InputCost: price("0.000017"), OutputCost: price("0.000068"),
			Tags:      []string{"advanced_reasoning", "problem_solving", "mathematical", "premium"},
			Transport: TransportGateway, Adapter: GatewayAdapter,
			Description: "Premium reasoning model for the hardest problems",
		},
		{
			ID: "openai/gpt-5", Provider: ProviderOpenAI, Name: "GPT-5", ContextLength: 128000,
			InputCost: price("0.00000138"), OutputCost: price("0.000011"),
			Tags:      []string{"advanced_reasoning", "complex_analysis", "multimodal"},
			Transport: TransportGateway, Adapter: GatewayAdapter,
			Description: "Flagship general model with strong reasoning",
		},
		{
			ID: "openai/gpt-5-chat", Provider: ProviderOpenAI, Name: "GPT-5 Chat", ContextLength: 128000,
			InputCost: price("0.00000138"), OutputCost: price("0.000011"),
			Tags:      []string{"conversation", "general_purpose", "instruction_following"},
			Transport: TransportGateway, Adapter: GatewayAdapter,
			Description: "GPT-5 tuned for conversation",
		},
		{
			ID: "openai/gpt-4o", Provider: ProviderOpenAI, Name: "GPT-4o", ContextLength: 128000,
			InputCost: price("0.0000055"), OutputCost: price("0.000017"),
			Tags:      []string{"multimodal", "general_purpose"},
			Transport: TransportGateway, Adapter: GatewayAdapter,
			Description: "Previous-generation multimodal model",
		},
		{
			ID: "openai/o3-mini", Provider: ProviderOpenAI, Name: "OpenAI o3-mini", ContextLength: 128000,
			InputCost: price("0.0000035"), OutputCost: price("0.000014"),
			Tags:      []string{"reasoning", "cost_effective", "problem_solving"},
			Transport: TransportGateway, Adapter: GatewayAdapter,
			Description: "Smaller reasoning model",
		},
		{
			ID: "openai/gpt-5-mini", Provider: ProviderOpenAI, Name: "GPT-5 Mini", ContextLength: 128000,
			InputCost: price("0.000000275"), OutputCost: price("0.0000022"),
			Tags:      []string{"fast_reasoning", "cost_effective", "lightweight"},
			Transport: TransportGateway, Adapter: GatewayAdapter,
			Description: "Fast, inexpensive GPT-5 variant",
		},
		{
			ID: "openai/gpt-5-nano", Provider: ProviderOpenAI, Name: "GPT-5 Nano", ContextLength: 64000,
			InputCost: price("0.000000055"), OutputCost: price("0.00000044"),
			Tags:      []string{"ultra_fast", "ultra_cost_effective", "simple_tasks"},
			Transport: TransportGateway, Adapter: GatewayAdapter,
			Description: "Smallest and fastest GPT-5 variant",
		},
		{
			ID: "openai/codex", Provider: ProviderOpenAI, Name: "Codex CLI", ContextLength: 128000,
			InputCost: price("0.00002"), OutputCost: price("0.00002"),
			Tags:      []string{"coding", "cli"},
			Transport: TransportSubprocess, Adapter: "codex",
			Description: "Local Codex CLI session",
		},

		// Anthropic
		{
			ID: "anthropic/claude-4.1-opus", Provider: ProviderAnthropic, Name: "Claude Opus 4.1", ContextLength: 200000,
			InputCost: price("0.0000165"), OutputCost: price("0.0000825"),
			Tags:      []string{"advanced_reasoning", "complex_analysis", "coding"},
			Transport: TransportDirect, Adapter: "anthropic", Upstream: "claude-opus-4-1",
			Description: "Most capable Claude model",
		},
		{
			ID: "anthropic/claude-4-sonnet", Provider: ProviderAnthropic, Name: "Claude Sonnet 4", ContextLength: 200000,
			InputCost: price("0.0000033"), OutputCost: price("0.0000165"),
			Tags:      []string{"general_purpose", "coding", "analysis"},
			Transport: TransportDirect, Adapter: "anthropic", Upstream: "claude-sonnet-4-0",
			Description: "Balanced intelligence and speed",
		},
		{
			ID: "anthropic/claude-3.5-sonnet", Provider: ProviderAnthropic, Name: "Claude 3.5 Sonnet", ContextLength: 200000,
			InputCost: price("0.0000033"), OutputCost: price("0.0000165"),
			Tags:      []string{"general_purpose", "writing"},
			Transport: TransportDirect, Adapter: "anthropic", Upstream: "claude-3-5-sonnet-latest",
			Description: "Previous-generation Sonnet",
		},
		{
			ID: "anthropic/claude-3.5-haiku", Provider: ProviderAnthropic, Name: "Claude 3.5 Haiku", ContextLength: 200000,
			InputCost: price("0.00000088"), OutputCost: price("0.0000044"),
			Tags:      []string{"fast", "cost_effective"},
			Transport: TransportDirect, Adapter: "anthropic", Upstream: "claude-3-5-haiku-latest",
			Description: "Fast, inexpensive Claude model",
		},
		{
			ID: "anthropic/claude-code", Provider: ProviderAnthropic, Name: "Claude CLI", ContextLength: 200000,
			InputCost: price("0.00003"), OutputCost: price("0.00003"),
			Tags:      []string{"coding", "cli"},
			Transport: TransportSubprocess, Adapter: "claude",
			Description: "Local Claude CLI session",
		},

		// Google
		{
			ID: "google/gemini-2.5-pro", Provider: ProviderGoogle, Name: "Gemini 2.5 Pro", ContextLength: 2000000,
			InputCost: price("0.00000138"), OutputCost: price("0.000011"),
			Tags:      []string{"advanced_reasoning", "long_context", "multimodal"},
			Transport: TransportGateway, Adapter: GatewayAdapter,
			Description: "Long-context reasoning model",
		},
		{
			ID: "google/gemini-2.5-flash", Provider: ProviderGoogle, Name: "Gemini 2.5 Flash", ContextLength: 1000000,
			InputCost: price("0.00000033"), OutputCost: price("0.00000275"),
			Tags:      []string{"fast_reasoning", "coding", "cost_effective"},
			Transport: TransportGateway, Adapter: GatewayAdapter,
			Description: "Fast general model",
		},
		{
			ID: "google/gemini-2.5-flash-lite", Provider: ProviderGoogle, Name: "Gemini 2.5 Flash-Lite", ContextLength: 1000000,
			InputCost: price("0.00000022"), OutputCost: price("0.0000011"),
			Tags:      []string{"lightweight_reasoning", "ultra_fast", "ultra_cost_effective"},
			Transport: TransportGateway, Adapter: GatewayAdapter,
			Description: "Lowest-latency Gemini model",
		},
		{
			ID: "google/gemini-pro", Provider: ProviderGoogle, Name: "Gemini Pro (API)", ContextLength: 32000,
			InputCost: price("0.00003"), OutputCost: price("0.00003"),
			Tags:      []string{"general_purpose"},
			Transport: TransportDirect, Adapter: "gemini-api", Upstream: "gemini-pro",
			Description: "Gemini Pro through the Generative Language API",
		},
		{
			ID: "google/gemini-cli", Provider: ProviderGoogle, Name: "Gemini CLI", ContextLength: 32000,
			InputCost: price("0.00003"), OutputCost: price("0.00003"),
			Tags:      []string{"general_purpose", "cli"},
			Transport: TransportSubprocess, Adapter: "gemini", Upstream: "gemini-pro",
			Description: "Local Google AI CLI session",
		},
	}
}

// Preference lists walked by the Router, best candidate first.
var (
	FastestModels = []string{
		"openai/gpt-5-nano",
		"google/gemini-2.5-flash-lite",
		"google/gemini-2.5-flash",
		"openai/gpt-5-mini",
		"anthropic/claude-3.5-haiku",
	}
	CheapestModels = []string{
		"openai/gpt-5-nano",
		"google/gemini-2.5-flash-lite",
		"openai/gpt-5-mini",
		"google/gemini-2.5-flash",
		"anthropic/claude-3.5-haiku",
	}
	ReasoningModels = []string{
		"openai/o3",
		"anthropic/claude-4.1-opus",
		"openai/gpt-5",
		"google/gemini-2.5-pro",
		"anthropic/claude-4-sonnet",
	}
	GeneralModels = []string{
		"anthropic/claude-4-sonnet",
		"openai/gpt-5-chat",
		"google/gemini-2.5-pro",
		"anthropic/claude-3.5-sonnet",
	}
)

// Fallback ids returned when nothing on the matching list is available.
const (
	DefaultFastest   = "google/gemini-2.5-flash-lite"
	DefaultCheapest  = "google/gemini-2.5-flash-lite"
	DefaultReasoning = "anthropic/claude-4.1-opus"
	DefaultGeneral   = "anthropic/claude-4-sonnet"
)

// UrgentFallbacks are appended to gateway requests for urgent queries.
var UrgentFallbacks = []string{"openai/gpt-5-nano", "google/gemini-2.5-flash-lite"}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := New(builtinModels())
	if err != nil {
		panic(err)
	}
	return c
}
