// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package profile

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Tier is a subscription level.
type Tier string

const (
	TierFree       Tier = "free"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

// ParseTier converts a string to a Tier.
func ParseTier(s string) (Tier, error) {
	switch t := Tier(strings.ToLower(strings.TrimSpace(s))); t {
	case TierFree, TierPro, TierEnterprise:
		return t, nil
	default:
		return "", fmt.Errorf("unknown tier %q", s)
	}
}

// Quota returns the tier's monthly query quota.
func (t Tier) Quota() int {
	switch t {
	case TierPro:
		return 1000
	case TierEnterprise:
		return 10000
	default:
		return 50
	}
}

// Features returns the feature flags enabled for the tier.
func (t Tier) Features() []string {
	switch t {
	case TierPro:
		return []string{"advanced_routing", "analytics", "cli_integration"}
	case TierEnterprise:
		return []string{"all", "priority_routing", "team_management"}
	default:
		return []string{"basic_routing"}
	}
}

// HasFeature reports whether the tier enables feature. "all" enables everything.
func (t Tier) HasFeature(feature string) bool {
	for _, f := range t.Features() {
		if f == feature || f == "all" {
			return true
		}
	}
	return false
}

// DefaultCLIFlags is the CLI availability map given to new profiles.
func DefaultCLIFlags() map[string]bool {
	return map[string]bool{
		"codex":      true,
		"claude":     false,
		"gemini":     false,
		"openrouter": false,
	}
}

// Profile is one caller's state.
type Profile struct {
	ID          string
	Tier        Tier
	Credentials map[string]string // provider or gateway key -> opaque secret
	CLI         map[string]bool   // adapter name -> CLI tool installed and logged in
	Preferences map[string]string
	Usage       int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// New returns a free-tier profile with default CLI flags.
func New(id string, now time.Time) *Profile {
	return &Profile{
		ID:          id,
		Tier:        TierFree,
		Credentials: map[string]string{},
		CLI:         DefaultCLIFlags(),
		Preferences: map[string]string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Clone returns a deep copy.
func (p *Profile) Clone() *Profile {
	c := *p
	c.Credentials = make(map[string]string, len(p.Credentials))
	for k, v := range p.Credentials {
		c.Credentials[k] = v
	}
	c.CLI = make(map[string]bool, len(p.CLI))
	for k, v := range p.CLI {
		c.CLI[k] = v
	}
	c.Preferences = make(map[string]string, len(p.Preferences))
	for k, v := range p.Preferences {
		c.Preferences[k] = v
	}
	return &c
}

// Credential returns the non-empty credential for key.
func (p *Profile) Credential(key string) (string, bool) {
	v := strings.TrimSpace(p.Credentials[key])
	return v, v != ""
}

// CLIEnabled reports whether the CLI flag for adapter is set.
func (p *Profile) CLIEnabled(adapter string) bool {
	return p.CLI[adapter]
}

// Quota returns the tier quota.
func (p *Profile) Quota() int {
	return p.Tier.Quota()
}

// Remaining returns the queries left before the quota is hit.
func (p *Profile) Remaining() int {
	if r := p.Quota() - p.Usage; r > 0 {
		return r
	}
	return 0
}

// OverQuota reports whether another query would exceed the quota.
func (p *Profile) OverQuota() bool {
	return p.Usage >= p.Quota()
}

// EnabledCredentials returns the sorted keys holding a non-empty credential.
func (p *Profile) EnabledCredentials() []string {
	var keys []string
	for k := range p.Credentials {
		if _, ok := p.Credential(k); ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// EnabledCLIs returns the sorted adapter names whose CLI flag is set.
func (p *Profile) EnabledCLIs() []string {
	var names []string
	for k, v := range p.CLI {
		if v {
			names = append(names, k)
		}
	}
	sort.Strings(names)
	return names
}
