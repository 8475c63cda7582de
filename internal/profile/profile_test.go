// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package profile

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTierQuotasAndFeatures(t *testing.T) {
	tests := []struct {
		tier    Tier
		quota   int
		feature string
	}{
		{TierFree, 50, "basic_routing"},
		{TierPro, 1000, "analytics"},
		{TierEnterprise, 10000, "team_management"},
	}
	for _, tt := range tests {
		t.Run(string(tt.tier), func(t *testing.T) {
			assert.Equal(t, tt.quota, tt.tier.Quota())
			assert.True(t, tt.tier.HasFeature(tt.feature))
		})
	}
	assert.False(t, TierFree.HasFeature("analytics"))
	assert.True(t, TierEnterprise.HasFeature("analytics"), "all grants every feature")
}

func TestNewProfileDefaults(t *testing.T) {
	p := New("u1", time.Now())
	assert.Equal(t, TierFree, p.Tier)
	assert.True(t, p.CLIEnabled("codex"))
	assert.False(t, p.CLIEnabled("claude"))
	assert.Equal(t, 0, p.Usage)
	assert.Equal(t, 50, p.Remaining())
	assert.Empty(t, p.EnabledCredentials())
}

func TestUpdateApply(t *testing.T) {
	p := New("u1", time.Now())
	p.Credentials["openai"] = "sk-old"
	p.Preferences["theme"] = "dark"

	pro := TierPro
	Update{
		Tier:        &pro,
		Credentials: map[string]string{"openai": "", "openrouter": "sk-or-1"},
		CLI:         map[string]bool{"claude": true},
		Preferences: map[string]string{"theme": "", "lang": "en"},
	}.Apply(p, time.Now())

	assert.Equal(t, TierPro, p.Tier)
	assert.Equal(t, []string{"openrouter"}, p.EnabledCredentials())
	assert.True(t, p.CLIEnabled("claude"))
	assert.Equal(t, map[string]string{"lang": "en"}, p.Preferences)
}

func TestCredentialIgnoresWhitespace(t *testing.T) {
	p := New("u1", time.Now())
	p.Credentials["anthropic"] = "   "
	_, ok := p.Credential("anthropic")
	assert.False(t, ok)
}

func TestMemoryStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.Get(ctx, "u1")
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = s.IncrementUsage(ctx, "u1")
	assert.True(t, errors.Is(err, ErrNotFound))

	p, err := s.GetOrCreate(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", p.ID)

	// Returned profiles are copies.
	p.Credentials["openai"] = "leak"
	again, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, again.Credentials)

	n, err := s.IncrementUsage(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMemoryStore_ConcurrentIncrement(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_, err := s.GetOrCreate(ctx, "u1")
	require.NoError(t, err)

	const n = 200
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.IncrementUsage(ctx, "u1")
		}()
	}
	wg.Wait()

	p, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, n, p.Usage)
}

func TestMemoryStore_ReserveUsageBound(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.ReserveUsage(ctx, "u1")
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = s.GetOrCreate(ctx, "u1")
	require.NoError(t, err)
	quota := TierFree.Quota()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	for i := 0; i < quota+20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.ReserveUsage(ctx, "u1"); err == nil {
				mu.Lock()
				granted++
				mu.Unlock()
			} else {
				assert.True(t, errors.Is(err, ErrQuotaReached))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, quota, granted)
	p, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, quota, p.Usage)

	n, err := s.ReleaseUsage(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, quota-1, n)
	n, err = s.ReserveUsage(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, quota, n)
}

func TestMemoryStore_ReleaseUsageFloor(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_, err := s.GetOrCreate(ctx, "u1")
	require.NoError(t, err)

	n, err := s.ReleaseUsage(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestUpdate_TierNotDecodedFromJSON(t *testing.T) {
	var u Update
	require.NoError(t, json.Unmarshal([]byte(`{"tier":"enterprise","preferences":{"k":"v"}}`), &u))
	assert.Nil(t, u.Tier)
	assert.Equal(t, "v", u.Preferences["k"])
}
