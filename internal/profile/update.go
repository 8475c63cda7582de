// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package profile

import "time"

// Update is a partial change to a profile. Nil maps and a nil Tier leave
// the corresponding fields untouched. Tier never comes from JSON; only local
// operator paths set it.
type Update struct {
	Tier        *Tier             `json:"-"`
	Credentials map[string]string `json:"api_keys,omitempty"`
	CLI         map[string]bool   `json:"cli_configs,omitempty"`
	Preferences map[string]string `json:"preferences,omitempty"`
}

// Apply merges u into p. An empty credential or preference value deletes the key.
func (u Update) Apply(p *Profile, now time.Time) {
	if u.Tier != nil {
		p.Tier = *u.Tier
	}
	for k, v := range u.Credentials {
		if v == "" {
			delete(p.Credentials, k)
			continue
		}
		p.Credentials[k] = v
	}
	for k, v := range u.CLI {
		p.CLI[k] = v
	}
	for k, v := range u.Preferences {
		if v == "" {
			delete(p.Preferences, k)
			continue
		}
		p.Preferences[k] = v
	}
	p.UpdatedAt = now
}
