// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigrun-router/internal/profile"
	"github.com/jeranaias/rigrun-router/internal/telemetry"
)

func openTest(t *testing.T, opts Options) *SQLiteStore {
	t.Helper()
	if opts.Path == "" {
		opts.Path = filepath.Join(t.TempDir(), "nested", "router.db")
	}
	if opts.KDFIterations == 0 {
		opts.KDFIterations = 1000
	}
	st, err := Open(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(context.Background(), Options{})
	assert.Error(t, err)
}

func TestSQLiteStore_Profiles(t *testing.T) {
	ctx := context.Background()
	st := openTest(t, Options{})

	_, err := st.Get(ctx, "alice")
	assert.True(t, errors.Is(err, profile.ErrNotFound))

	p, err := st.GetOrCreate(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", p.ID)
	assert.Equal(t, profile.TierFree, p.Tier)
	assert.Equal(t, profile.DefaultCLIFlags(), p.CLI)
	assert.Empty(t, p.Credentials)
	assert.WithinDuration(t, time.Now(), p.CreatedAt, time.Minute)

	pro := profile.TierPro
	p, err = st.Update(ctx, "alice", profile.Update{
		Tier:        &pro,
		Credentials: map[string]string{"anthropic": "sk-ant", "openrouter": "sk-or"},
		CLI:         map[string]bool{"claude": true},
		Preferences: map[string]string{"theme": "dark"},
	})
	require.NoError(t, err)
	assert.Equal(t, profile.TierPro, p.Tier)

	p, err = st.Update(ctx, "alice", profile.Update{Credentials: map[string]string{"openrouter": ""}})
	require.NoError(t, err)

	got, err := st.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"anthropic": "sk-ant"}, got.Credentials)
	assert.True(t, got.CLI["claude"])
	assert.True(t, got.CLI["codex"])
	assert.Equal(t, "dark", got.Preferences["theme"])
	assert.Equal(t, profile.TierPro, got.Tier)
}

func TestSQLiteStore_IncrementUsage(t *testing.T) {
	ctx := context.Background()
	st := openTest(t, Options{})

	_, err := st.IncrementUsage(ctx, "nobody")
	assert.True(t, errors.Is(err, profile.ErrNotFound))

	_, err = st.GetOrCreate(ctx, "bob")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := st.IncrementUsage(ctx, "bob")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	p, err := st.Get(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 25, p.Usage)

	// Profile updates never reset the counter.
	_, err = st.Update(ctx, "bob", profile.Update{Preferences: map[string]string{"k": "v"}})
	require.NoError(t, err)
	p, _ = st.Get(ctx, "bob")
	assert.Equal(t, 25, p.Usage)
}

func TestSQLiteStore_ReserveUsage(t *testing.T) {
	ctx := context.Background()
	st := openTest(t, Options{})

	_, err := st.ReserveUsage(ctx, "nobody")
	assert.True(t, errors.Is(err, profile.ErrNotFound))

	_, err = st.GetOrCreate(ctx, "dora")
	require.NoError(t, err)
	quota := profile.TierFree.Quota()
	for i := 0; i < quota-3; i++ {
		_, err := st.IncrementUsage(ctx, "dora")
		require.NoError(t, err)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
		refused int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := st.ReserveUsage(ctx, "dora")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				granted++
			case errors.Is(err, profile.ErrQuotaReached):
				refused++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, granted)
	assert.Equal(t, 7, refused)
	p, err := st.Get(ctx, "dora")
	require.NoError(t, err)
	assert.Equal(t, quota, p.Usage)

	n, err := st.ReleaseUsage(ctx, "dora")
	require.NoError(t, err)
	assert.Equal(t, quota-1, n)

	// A higher tier raises the bound.
	pro := profile.TierPro
	_, err = st.Update(ctx, "dora", profile.Update{Tier: &pro})
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		_, err = st.ReserveUsage(ctx, "dora")
		require.NoError(t, err)
	}
}

func TestSQLiteStore_ReleaseUsageFloor(t *testing.T) {
	ctx := context.Background()
	st := openTest(t, Options{})
	_, err := st.GetOrCreate(ctx, "eve")
	require.NoError(t, err)

	n, err := st.ReleaseUsage(ctx, "eve")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSQLiteStore_SealedCredentials(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "router.db")

	st := openTest(t, Options{Path: path, SealKey: "correct horse"})
	_, err := st.Update(ctx, "carol", profile.Update{Credentials: map[string]string{"openrouter": "sk-or-secret"}})
	require.NoError(t, err)

	var raw string
	require.NoError(t, st.db.QueryRowContext(ctx, `SELECT credentials FROM profiles WHERE id = 'carol'`).Scan(&raw))
	assert.True(t, strings.HasPrefix(raw, SealedPrefix))
	assert.NotContains(t, raw, "sk-or-secret")
	require.NoError(t, st.Close())

	again := openTest(t, Options{Path: path, SealKey: "correct horse"})
	p, err := again.Get(ctx, "carol")
	require.NoError(t, err)
	assert.Equal(t, "sk-or-secret", p.Credentials["openrouter"])
	require.NoError(t, again.Close())

	wrong := openTest(t, Options{Path: path, SealKey: "battery staple"})
	_, err = wrong.Get(ctx, "carol")
	assert.True(t, errors.Is(err, ErrDecryptionFailed))
	require.NoError(t, wrong.Close())

	none := openTest(t, Options{Path: path})
	_, err = none.Get(ctx, "carol")
	assert.True(t, errors.Is(err, ErrSealed))
}

func TestSealer_RejectsGarbage(t *testing.T) {
	s, err := newSealer("k", []byte("salt"), 10)
	require.NoError(t, err)

	_, err = s.open(SealedPrefix + "!!!")
	assert.True(t, errors.Is(err, ErrInvalidCiphertext))

	_, err = s.open(SealedPrefix + "AAAA")
	assert.True(t, errors.Is(err, ErrInvalidCiphertext))

	plain, err := s.open(`{"a":"b"}`)
	require.NoError(t, err)
	assert.Equal(t, `{"a":"b"}`, string(plain))

	sealed, err := s.seal([]byte("x"))
	require.NoError(t, err)
	other, err := s.seal([]byte("x"))
	require.NoError(t, err)
	assert.NotEqual(t, sealed, other, "nonces differ")
}

func TestSQLiteStore_History(t *testing.T) {
	ctx := context.Background()
	st := openTest(t, Options{MaxHistory: 5})
	base := time.Date(2025, 8, 1, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 8; i++ {
		user := "alice"
		if i%2 == 1 {
			user = "bob"
		}
		require.NoError(t, st.Record(ctx, telemetry.Entry{
			QueryID:           fmt.Sprintf("q-%d", i),
			UserID:            user,
			Message:           strings.Repeat("m", 300),
			Model:             "openai/gpt-5",
			TotalTokens:       i,
			ProcessingSeconds: 0.5,
			Cost:              decimal.RequireFromString("0.0003025"),
			Timestamp:         base.Add(time.Duration(i) * time.Minute),
		}))
	}

	all, err := st.Entries(ctx, telemetry.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 5, "pruned to MaxHistory")
	assert.Equal(t, "q-3", all[0].QueryID)
	assert.Equal(t, "q-7", all[4].QueryID)
	assert.Equal(t, "0.0003025", all[0].Cost.String())
	assert.Equal(t, telemetry.MaxMessageRunes, len([]rune(all[0].Message)))
	assert.True(t, all[0].Timestamp.Equal(base.Add(3*time.Minute)))

	bob, err := st.Entries(ctx, telemetry.Filter{UserID: "bob", Limit: 2})
	require.NoError(t, err)
	require.Len(t, bob, 2)
	assert.Equal(t, "q-5", bob[0].QueryID)
	assert.Equal(t, "q-7", bob[1].QueryID)

	recent, err := st.Entries(ctx, telemetry.Filter{Since: base.Add(6 * time.Minute)})
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	a := telemetry.Summarize(all, 3)
	assert.Equal(t, 5, a.TotalQueries)
	assert.Equal(t, 3+4+5+6+7, a.TotalTokens)
	assert.Len(t, a.RecentQueries, 3)
}
