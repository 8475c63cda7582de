// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package router

import (
	"github.com/jeranaias/rigrun-router/internal/catalog"
	"github.com/jeranaias/rigrun-router/internal/profile"
)

// Availability decides whether a user can reach a model.
type Availability struct {
	catalog *catalog.Catalog
}

// NewAvailability creates a checker over cat.
func NewAvailability(cat *catalog.Catalog) *Availability {
	return &Availability{catalog: cat}
}

// IsAvailable applies, in order:
//
//  1. gateway models need a non-empty gateway credential, nothing else counts
//  2. a set CLI flag for the model's adapter name
//  3. a non-empty credential for the model's provider
//
// Unknown ids and nil users are never available.
func (a *Availability) IsAvailable(modelID string, user *profile.Profile) bool {
	if user == nil {
		return false
	}
	m, err := a.catalog.Get(modelID)
	if err != nil {
		return false
	}
	if m.Transport == catalog.TransportGateway {
		_, ok := user.Credential(catalog.GatewayAdapter)
		return ok
	}
	if user.CLIEnabled(m.Adapter) {
		return true
	}
	_, ok := user.Credential(string(m.Provider))
	return ok
}

// AvailableModels returns every model the user can reach, in catalog order.
func (a *Availability) AvailableModels(user *profile.Profile) []catalog.Model {
	var out []catalog.Model
	for _, m := range a.catalog.All() {
		if a.IsAvailable(m.ID, user) {
			out = append(out, m)
		}
	}
	return out
}

// AvailableProviders returns the providers with at least one reachable model.
func (a *Availability) AvailableProviders(user *profile.Profile) []catalog.Provider {
	var out []catalog.Provider
	for _, p := range catalog.Providers {
		for _, m := range a.catalog.ListByProvider(p) {
			if a.IsAvailable(m.ID, user) {
				out = append(out, p)
				break
			}
		}
	}
	return out
}
