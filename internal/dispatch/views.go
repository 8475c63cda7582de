// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package dispatch

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/jeranaias/rigrun-router/internal/catalog"
	"github.com/jeranaias/rigrun-router/internal/profile"
	"github.com/jeranaias/rigrun-router/internal/telemetry"
)

// =============================================================================
// MODELS
// =============================================================================

// ModelInfo is the public projection of a catalog entry.
type ModelInfo struct {
	ID               string          `json:"id"`
	Provider         string          `json:"provider"`
	Name             string          `json:"name"`
	Description      string          `json:"description,omitempty"`
	ContextLength    int             `json:"context_length"`
	InputCost        decimal.Decimal `json:"input_cost"`
	OutputCost       decimal.Decimal `json:"output_cost"`
	InputPerMillion  decimal.Decimal `json:"input_cost_per_million"`
	OutputPerMillion decimal.Decimal `json:"output_cost_per_million"`
	Tags             []string        `json:"capabilities"`
	Transport        string          `json:"transport"`
	Available        bool            `json:"available"`
}

// ProviderInfo summarizes one provider.
type ProviderInfo struct {
	Name      string `json:"name"`
	Models    int    `json:"model_count"`
	Available int    `json:"available_count"`
}

// PricingInfo describes how costs are quoted.
type PricingInfo struct {
	Markup   string `json:"markup"`
	Currency string `json:"currency"`
	Unit     string `json:"unit"`
}

// Listing is the model list as seen by one user.
type Listing struct {
	ModelsByProvider   map[string][]ModelInfo  `json:"models_by_provider"`
	AvailableProviders []string                `json:"available_providers"`
	AllModels          []ModelInfo             `json:"all_models"`
	ProviderInfo       map[string]ProviderInfo `json:"provider_info"`
	PricingInfo        PricingInfo             `json:"pricing_info"`
}

var providerNames = map[catalog.Provider]string{
	catalog.ProviderOpenAI:    "OpenAI",
	catalog.ProviderAnthropic: "Anthropic",
	catalog.ProviderGoogle:    "Google",
}

func (d *Dispatcher) modelInfo(m catalog.Model, user *profile.Profile) ModelInfo {
	in, out := m.PricePerMillion()
	return ModelInfo{
		ID:               m.ID,
		Provider:         string(m.Provider),
		Name:             m.Name,
		Description:      m.Description,
		ContextLength:    m.ContextLength,
		InputCost:        m.InputCost,
		OutputCost:       m.OutputCost,
		InputPerMillion:  in,
		OutputPerMillion: out,
		Tags:             m.Tags,
		Transport:        m.Transport.String(),
		Available:        d.deps.Router.Availability().IsAvailable(m.ID, user),
	}
}

// Models lists the catalog for userID. ModelsByProvider holds available
// models only; AllModels holds every model with its availability.
func (d *Dispatcher) Models(ctx context.Context, userID string) (*Listing, error) {
	user, err := d.deps.Store.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}

	l := &Listing{
		ModelsByProvider:   make(map[string][]ModelInfo),
		AvailableProviders: make([]string, 0),
		AllModels:          make([]ModelInfo, 0, len(d.deps.Catalog.All())),
		ProviderInfo:       make(map[string]ProviderInfo),
		PricingInfo: PricingInfo{
			Markup:   d.deps.Costs.MarkupPercent() + "%",
			Currency: "USD",
			Unit:     "per token",
		},
	}
	for _, p := range catalog.Providers {
		info := ProviderInfo{Name: providerNames[p]}
		for _, m := range d.deps.Catalog.ListByProvider(p) {
			mi := d.modelInfo(m, user)
			l.AllModels = append(l.AllModels, mi)
			info.Models++
			if mi.Available {
				info.Available++
				l.ModelsByProvider[string(p)] = append(l.ModelsByProvider[string(p)], mi)
			}
		}
		if info.Available > 0 {
			l.AvailableProviders = append(l.AvailableProviders, string(p))
		}
		l.ProviderInfo[string(p)] = info
	}
	return l, nil
}

// =============================================================================
// USER CONFIG
// =============================================================================

// UserConfig is the readable view of a profile. Secrets are never included.
type UserConfig struct {
	UserID             string            `json:"user_id"`
	Tier               profile.Tier      `json:"tier"`
	Quota              int               `json:"quota"`
	Usage              int               `json:"usage"`
	Remaining          int               `json:"remaining"`
	EnabledProviders   []string          `json:"enabled_providers"`
	CLIConfigs         map[string]bool   `json:"cli_configs"`
	Features           []string          `json:"features"`
	Preferences        map[string]string `json:"preferences"`
	AvailableProviders []string          `json:"available_providers"`
}

func (d *Dispatcher) userConfig(p *profile.Profile) *UserConfig {
	uc := &UserConfig{
		UserID:             p.ID,
		Tier:               p.Tier,
		Quota:              p.Quota(),
		Usage:              p.Usage,
		Remaining:          p.Remaining(),
		EnabledProviders:   p.EnabledCredentials(),
		CLIConfigs:         p.CLI,
		Features:           p.Tier.Features(),
		Preferences:        p.Preferences,
		AvailableProviders: make([]string, 0),
	}
	if uc.EnabledProviders == nil {
		uc.EnabledProviders = []string{}
	}
	for _, prov := range d.deps.Router.Availability().AvailableProviders(p) {
		uc.AvailableProviders = append(uc.AvailableProviders, string(prov))
	}
	return uc
}

// UserConfig returns the config view for userID, creating the profile if needed.
func (d *Dispatcher) UserConfig(ctx context.Context, userID string) (*UserConfig, error) {
	p, err := d.deps.Store.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	return d.userConfig(p), nil
}

// UpdateUserConfig merges u into userID's profile.
func (d *Dispatcher) UpdateUserConfig(ctx context.Context, userID string, u profile.Update) (*UserConfig, error) {
	if u.Tier != nil {
		if _, err := profile.ParseTier(string(*u.Tier)); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidQuery, err)
		}
	}
	p, err := d.deps.Store.Update(ctx, userID, u)
	if err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	return d.userConfig(p), nil
}

// =============================================================================
// ANALYTICS
// =============================================================================

// Analytics summarizes userID's history. With all set the whole history is
// summarized; that view is for operators and skips the tier check.
func (d *Dispatcher) Analytics(ctx context.Context, userID string, all bool) (*telemetry.Analytics, error) {
	if d.deps.History == nil {
		a := telemetry.Summarize(nil, telemetry.DefaultRecent)
		return &a, nil
	}
	f := telemetry.Filter{}
	if !all {
		p, err := d.deps.Store.GetOrCreate(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to load profile: %w", err)
		}
		if !p.Tier.HasFeature("analytics") {
			return nil, fmt.Errorf("%w: analytics requires the pro or enterprise tier", ErrFeatureDisabled)
		}
		f.UserID = p.ID
	}
	entries, err := d.deps.History.Entries(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	a := telemetry.Summarize(entries, telemetry.DefaultRecent)
	return &a, nil
}
