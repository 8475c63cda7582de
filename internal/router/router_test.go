// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package router

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigrun-router/internal/catalog"
	"github.com/jeranaias/rigrun-router/internal/profile"
)

func newTestRouter() *Router {
	return New(catalog.Default(), NewKeywordClassifier(DefaultKeywords()), nil)
}

// user builds a profile with the given credentials and every CLI flag off.
func user(creds map[string]string, cli map[string]bool) *profile.Profile {
	p := profile.New("u", time.Now())
	p.CLI = map[string]bool{}
	for k, v := range creds {
		p.Credentials[k] = v
	}
	for k, v := range cli {
		p.CLI[k] = v
	}
	return p
}

var gatewayUser = map[string]string{"openrouter": "sk-or-test"}

func TestAvailability(t *testing.T) {
	a := NewAvailability(catalog.Default())

	tests := []struct {
		name  string
		model string
		user  *profile.Profile
		want  bool
	}{
		{"gateway with key", "openai/gpt-5", user(gatewayUser, nil), true},
		{"gateway needs gateway key", "openai/gpt-5", user(map[string]string{"openai": "sk"}, nil), false},
		{"gateway ignores cli flag", "openai/gpt-5", user(nil, map[string]bool{"openrouter": true}), false},
		{"gateway empty key", "openai/gpt-5", user(map[string]string{"openrouter": ""}, nil), false},
		{"cli flag", "anthropic/claude-code", user(nil, map[string]bool{"claude": true}), true},
		{"provider key for direct", "anthropic/claude-4-sonnet", user(map[string]string{"anthropic": "sk-ant"}, nil), true},
		{"provider key for cli model", "openai/codex", user(map[string]string{"openai": "sk"}, nil), true},
		{"nothing", "anthropic/claude-4-sonnet", user(nil, nil), false},
		{"unknown model", "foo/bar", user(gatewayUser, nil), false},
		{"nil user", "openai/gpt-5", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, a.IsAvailable(tt.model, tt.user))
		})
	}
}

func TestAvailability_Providers(t *testing.T) {
	a := NewAvailability(catalog.Default())
	got := a.AvailableProviders(user(map[string]string{"anthropic": "k"}, nil))
	assert.Equal(t, []catalog.Provider{catalog.ProviderAnthropic}, got)

	all := a.AvailableModels(user(gatewayUser, nil))
	for _, m := range all {
		assert.Equal(t, catalog.TransportGateway, m.Transport)
	}
	assert.NotEmpty(t, all)
}

func TestRoute_ManualModelIgnoresComplexity(t *testing.T) {
	r := newTestRouter()
	u := user(nil, nil)
	for _, msg := range []string{"analyze everything", "what is go", "hi"} {
		d := r.Route(Query{Message: msg, Model: "openai/o3", Priority: PriorityManual}, u)
		assert.Equal(t, "openai/o3", d.Model)
		assert.Equal(t, RuleManualModel, d.Rule)
		assert.False(t, d.Available)
	}
}

func TestRoute_Scenarios(t *testing.T) {
	r := newTestRouter()

	t.Run("anthropic only, explain", func(t *testing.T) {
		d := r.Route(Query{Message: "explain recursion", Priority: PriorityNormal},
			user(map[string]string{"anthropic": "sk-ant"}, nil))
		assert.Equal(t, ComplexityMedium, d.Complexity)
		assert.Equal(t, "anthropic/claude-4-sonnet", d.Model)
		assert.True(t, d.Available)
	})

	t.Run("gateway manual gpt-5", func(t *testing.T) {
		d := r.Route(Query{Model: "openai/gpt-5", Priority: PriorityManual}, user(gatewayUser, nil))
		assert.Equal(t, "openai/gpt-5", d.Model)
		assert.True(t, d.Available)
	})
}

func TestRoute_Automatic(t *testing.T) {
	r := newTestRouter()
	gw := user(gatewayUser, nil)

	tests := []struct {
		name     string
		query    Query
		user     *profile.Profile
		want     string
		wantRule Rule
	}{
		{"high to reasoning", Query{Message: "analyze this system"}, gw, "openai/o3", RuleAutomatic},
		{"medium to general", Query{Message: "compare go and rust"}, gw, "openai/gpt-5-chat", RuleAutomatic},
		{"low to fastest", Query{Message: "what is tcp"}, gw, "openai/gpt-5-nano", RuleAutomatic},
		{"urgent", Query{Message: "analyze now", Priority: PriorityUrgent}, gw, "openai/gpt-5-nano", RuleAutomatic},
		{"cost optimized", Query{Message: "analyze", Priority: PriorityCostOptimized}, gw, "openai/gpt-5-nano", RuleAutomatic},
		{"nothing available falls back", Query{Message: "analyze"}, user(nil, nil), catalog.DefaultReasoning, RuleAutomatic},
		{"urgent fallback", Query{Message: "x", Priority: PriorityUrgent}, user(nil, nil), catalog.DefaultFastest, RuleAutomatic},
		{"explicit model any priority", Query{Message: "analyze", Model: "google/gemini-2.5-flash"}, gw, "google/gemini-2.5-flash", RuleExplicitModel},
		{"unknown explicit model ignored", Query{Message: "what is x", Model: "foo/bar"}, gw, "openai/gpt-5-nano", RuleAutomatic},
		{"anthropic only low", Query{Message: "define x"}, user(map[string]string{"anthropic": "k"}, nil), "anthropic/claude-3.5-haiku", RuleAutomatic},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := r.Route(tt.query, tt.user)
			assert.Equal(t, tt.want, d.Model)
			assert.Equal(t, tt.wantRule, d.Rule)
		})
	}
}

func TestRoute_Provider(t *testing.T) {
	r := newTestRouter()
	gw := user(gatewayUser, nil)

	tests := []struct {
		name  string
		query Query
		user  *profile.Profile
		want  string
	}{
		{"high picks first", Query{Message: "analyze", Provider: "openai"}, gw, "openai/o3"},
		{"balanced picks middle", Query{Message: "explain", Provider: "openai"}, gw, "openai/o3-mini"},
		{"balanced walks past unavailable", Query{Message: "explain", Provider: "anthropic"},
			user(nil, map[string]bool{"claude": true}), "anthropic/claude-code"},
		{"high walks to available", Query{Message: "analyze", Provider: "google"},
			user(map[string]string{"google": "k"}, nil), "google/gemini-pro"},
		{"nothing available keeps preferred", Query{Message: "analyze", Provider: "google"},
			user(nil, nil), "google/gemini-2.5-pro"},
		{"manual provider best available", Query{Priority: PriorityManual, Provider: "anthropic"},
			user(map[string]string{"anthropic": "k"}, nil), "anthropic/claude-4.1-opus"},
		{"provider case insensitive", Query{Message: "analyze", Provider: "OpenAI"}, gw, "openai/o3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Route(tt.query, tt.user).Model)
		})
	}
}

// TestRoute_CostOptimizedProviderIsCheapest checks the provider branch against
// a brute-force minimum over output price, for several credential mixes and
// every classifier bucket.
func TestRoute_CostOptimizedProviderIsCheapest(t *testing.T) {
	cat := catalog.Default()
	r := newTestRouter()
	a := r.Availability()

	users := []*profile.Profile{
		user(gatewayUser, nil),
		user(gatewayUser, map[string]bool{"codex": true, "claude": true}),
		user(map[string]string{"anthropic": "k", "google": "k", "openai": "k"}, nil),
		user(map[string]string{"openrouter": "k", "anthropic": "k"}, nil),
		user(nil, map[string]bool{"gemini": true}),
	}
	messages := []string{"analyze this", "explain this", "what is this"}

	for _, p := range catalog.Providers {
		for ui, u := range users {
			var want string
			for _, m := range cat.ListByProvider(p) {
				if !a.IsAvailable(m.ID, u) {
					continue
				}
				if want == "" {
					want = m.ID
					continue
				}
				cur, _ := cat.Get(want)
				if m.OutputCost.LessThan(cur.OutputCost) {
					want = m.ID
				}
			}
			if want == "" {
				continue
			}
			for _, msg := range messages {
				d := r.Route(Query{Message: msg, Provider: string(p), Priority: PriorityCostOptimized}, u)
				assert.Equalf(t, want, d.Model, "provider=%s user=%d msg=%q", p, ui, msg)
			}
		}
	}
}

func TestRoute_AlwaysReturnsCatalogModel(t *testing.T) {
	cat := catalog.Default()
	r := newTestRouter()

	users := []*profile.Profile{
		user(nil, nil),
		user(gatewayUser, nil),
		user(map[string]string{"anthropic": "k"}, map[string]bool{"codex": true}),
	}
	priorities := []Priority{PriorityNormal, PriorityUrgent, PriorityCostOptimized, PriorityManual}
	providers := []string{"", "openai", "anthropic", "google", "mistral"}
	models := []string{"", "openai/gpt-5", "foo/bar"}

	for _, u := range users {
		for _, prio := range priorities {
			for _, prov := range providers {
				for _, model := range models {
					for _, msg := range []string{"analyze", "explain", "list", "hey"} {
						d := r.Route(Query{Message: msg, Priority: prio, Provider: prov, Model: model}, u)
						_, err := cat.Get(d.Model)
						require.NoErrorf(t, err, "route returned %q for prio=%s prov=%s model=%s", d.Model, prio, prov, model)
					}
				}
			}
		}
	}
}

func TestValidateQuery(t *testing.T) {
	assert.NoError(t, ValidateQuery(Query{Message: "hi"}))
	assert.ErrorIs(t, ValidateQuery(Query{Message: string(make([]byte, MaxQueryLength+1))}), ErrQueryTooLong)
	assert.Error(t, ValidateQuery(Query{Message: "hi", MaxTokens: -1}))
}
