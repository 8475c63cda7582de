// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigrun-router/internal/adapter"
	"github.com/jeranaias/rigrun-router/internal/catalog"
	"github.com/jeranaias/rigrun-router/internal/dispatch"
	"github.com/jeranaias/rigrun-router/internal/profile"
	"github.com/jeranaias/rigrun-router/internal/router"
	"github.com/jeranaias/rigrun-router/internal/telemetry"
)

// =============================================================================
// FIXTURES
// =============================================================================

// scriptedAdapter answers according to the message text.
type scriptedAdapter struct {
	transport catalog.Transport
}

func (a scriptedAdapter) Transport() catalog.Transport { return a.transport }

func (a scriptedAdapter) Execute(ctx context.Context, req adapter.Request) (*adapter.Result, error) {
	switch req.Query.Message {
	case "fail":
		return nil, fmt.Errorf("%w: upstream said no", adapter.ErrAdapterFailure)
	case "login":
		return nil, fmt.Errorf("%w: please login again", adapter.ErrAuthExpired)
	case "slow":
		return nil, fmt.Errorf("%w: took too long", adapter.ErrTimeout)
	case "panic":
		panic("adapter exploded")
	}
	return &adapter.Result{
		Response:     "echo: " + req.Query.Message,
		Model:        req.Model.ID,
		InputTokens:  10,
		OutputTokens: 20,
		TotalTokens:  30,
	}, nil
}

type fixture struct {
	store *profile.MemoryStore
	srv   *Server
	h     http.Handler
}

func newFixture(t *testing.T, opts Options, auth Authenticator) *fixture {
	t.Helper()
	cat := catalog.Default()
	store := profile.NewMemoryStore()
	d := dispatch.New(dispatch.Deps{
		Catalog: cat,
		Router:  router.New(cat, router.NewKeywordClassifier(router.DefaultKeywords()), nil),
		Adapters: &adapter.Set{
			Subprocess: scriptedAdapter{catalog.TransportSubprocess},
			Direct:     scriptedAdapter{catalog.TransportDirect},
			Gateway:    scriptedAdapter{catalog.TransportGateway},
		},
		Costs:   router.NewCostCalculator(cat, router.DefaultMarkup),
		Store:   store,
		History: telemetry.NewRing(100),
	}, dispatch.DefaultOptions(), nil)

	srv := New(opts, d, auth, nil)
	return &fixture{store: store, srv: srv, h: srv.Handler()}
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "203.0.113.9:5555"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func noLimit() Options {
	o := DefaultOptions()
	o.RateLimitPerMinute = 0
	return o
}

// =============================================================================
// QUERY
// =============================================================================

func TestQuery_Success(t *testing.T) {
	f := newFixture(t, noLimit(), nil)

	rec := f.do(t, http.MethodPost, "/api/query", "alice", QueryRequest{
		Message: "hello",
		Model:   "openai/codex",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	body := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "echo: hello", body["response"])
	assert.Equal(t, "openai/codex", body["model_used"])
	assert.Equal(t, float64(30), body["tokens_used"])
	assert.NotEmpty(t, body["query_id"])
	assert.Contains(t, body, "cost_estimate")
	assert.Contains(t, body, "processing_time")

	p, err := f.store.Get(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, p.Usage)
}

func TestQuery_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		req    any
		status int
		kind   string
	}{
		{"unknown model", QueryRequest{Message: "hi", Model: "openai/gpt-9"}, http.StatusNotFound, "unknown_model"},
		{"bad priority", QueryRequest{Message: "hi", Priority: "whenever"}, http.StatusBadRequest, "invalid_request_error"},
		{"bad provider", QueryRequest{Message: "hi", Provider: "mistral"}, http.StatusBadRequest, "invalid_request_error"},
		{"empty message", QueryRequest{Message: "  "}, http.StatusBadRequest, "invalid_request_error"},
		{"unknown field", `{"message":"hi","stream":true}`, http.StatusBadRequest, "invalid_request_error"},
		{"malformed", `{"message":`, http.StatusBadRequest, "invalid_request_error"},
		{"no credential", QueryRequest{Message: "hi", Model: "anthropic/claude-4-sonnet"}, http.StatusForbidden, "no_credential"},
		{"adapter failure", QueryRequest{Message: "fail", Model: "openai/codex"}, http.StatusBadGateway, "adapter_failure"},
		{"auth expired", QueryRequest{Message: "login", Model: "openai/codex"}, http.StatusUnauthorized, "auth_expired"},
		{"timeout", QueryRequest{Message: "slow", Model: "openai/codex"}, http.StatusGatewayTimeout, "timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, noLimit(), nil)
			rec := f.do(t, http.MethodPost, "/api/query", "bob", tt.req)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())

			body := decodeBody[ErrorBody](t, rec)
			assert.Equal(t, tt.kind, body.Error.Type)
			assert.Equal(t, tt.status, body.Error.Code)
			assert.NotEmpty(t, body.Error.Message)
		})
	}
}

func TestQuery_QuotaExceeded(t *testing.T) {
	f := newFixture(t, noLimit(), nil)
	ctx := context.Background()
	_, err := f.store.GetOrCreate(ctx, "carol")
	require.NoError(t, err)
	for i := 0; i < profile.TierFree.Quota(); i++ {
		_, err := f.store.IncrementUsage(ctx, "carol")
		require.NoError(t, err)
	}

	rec := f.do(t, http.MethodPost, "/api/query", "carol", QueryRequest{Message: "hi", Model: "openai/codex"})
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "quota_exceeded", decodeBody[ErrorBody](t, rec).Error.Type)
}

func TestQuery_PanicRecovered(t *testing.T) {
	f := newFixture(t, noLimit(), nil)
	rec := f.do(t, http.MethodPost, "/api/query", "dave", QueryRequest{Message: "panic", Model: "openai/codex"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal", decodeBody[ErrorBody](t, rec).Error.Type)
}

// =============================================================================
// AUTH
// =============================================================================

func TestAuth_Required(t *testing.T) {
	f := newFixture(t, noLimit(), nil)

	rec := f.do(t, http.MethodGet, "/api/models", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	health := decodeBody[HealthResponse](t, rec)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, len(catalog.Default().All()), health.Models)
}

func TestAuth_JWTMode(t *testing.T) {
	auth := NewJWTAuth(strings.Repeat("k", 32), "rigrun-router")
	f := newFixture(t, noLimit(), auth)

	token, err := auth.Issue("erin", time.Hour)
	require.NoError(t, err)

	rec := f.do(t, http.MethodGet, "/api/user/config", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "erin", decodeBody[dispatch.UserConfig](t, rec).UserID)

	rec = f.do(t, http.MethodGet, "/api/user/config", "erin", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "plain ids are not tokens in jwt mode")
}

func TestJWTAuth_Rejects(t *testing.T) {
	auth := NewJWTAuth(strings.Repeat("k", 32), "rigrun-router")

	expired, err := auth.Issue("erin", -time.Minute)
	require.NoError(t, err)
	_, err = auth.Authenticate(expired)
	assert.True(t, errors.Is(err, ErrTokenExpired))

	other, err := NewJWTAuth(strings.Repeat("x", 32), "rigrun-router").Issue("erin", time.Hour)
	require.NoError(t, err)
	_, err = auth.Authenticate(other)
	assert.True(t, errors.Is(err, ErrUnauthenticated))

	foreign, err := NewJWTAuth(strings.Repeat("k", 32), "someone-else").Issue("erin", time.Hour)
	require.NoError(t, err)
	_, err = auth.Authenticate(foreign)
	assert.True(t, errors.Is(err, ErrUnauthenticated))

	// {"alg":"none"} with subject erin
	_, err = auth.Authenticate("eyJhbGciOiJub25lIiwidHlwIjoiSldUIn0.eyJzdWIiOiJlcmluIn0.")
	assert.True(t, errors.Is(err, ErrUnauthenticated))

	_, err = auth.Issue("", time.Hour)
	assert.Error(t, err)
}

func TestTokenAuth(t *testing.T) {
	tests := []struct {
		token string
		ok    bool
	}{
		{"alice", true},
		{"user@example.com", true},
		{"", false},
		{"has space", false},
		{"tab\there", false},
		{strings.Repeat("a", MaxUserIDLength+1), false},
	}
	for _, tt := range tests {
		id, err := TokenAuth{}.Authenticate(tt.token)
		if tt.ok {
			assert.NoError(t, err, tt.token)
			assert.Equal(t, tt.token, id)
		} else {
			assert.Error(t, err, tt.token)
		}
	}
}

// =============================================================================
// USER CONFIG / MODELS / ANALYTICS
// =============================================================================

func TestUserConfig_RoundTrip(t *testing.T) {
	f := newFixture(t, noLimit(), nil)

	rec := f.do(t, http.MethodGet, "/api/user/config", "frank", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	uc := decodeBody[dispatch.UserConfig](t, rec)
	assert.Equal(t, profile.TierFree, uc.Tier)
	assert.Equal(t, 50, uc.Quota)
	assert.True(t, uc.CLIConfigs["codex"])

	rec = f.do(t, http.MethodPost, "/api/user/config", "frank", map[string]any{
		"api_keys":    map[string]string{"anthropic": "sk-ant-secret"},
		"cli_configs": map[string]bool{"claude": true},
		"preferences": map[string]string{"theme": "dark"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "sk-ant-secret")

	uc = decodeBody[dispatch.UserConfig](t, rec)
	assert.Equal(t, profile.TierFree, uc.Tier)
	assert.Equal(t, []string{"anthropic"}, uc.EnabledProviders)
	assert.Contains(t, uc.AvailableProviders, "anthropic")
	assert.True(t, uc.CLIConfigs["claude"])
	assert.Equal(t, "dark", uc.Preferences["theme"])
}

func TestUserConfig_TierNotSelfService(t *testing.T) {
	f := newFixture(t, noLimit(), nil)
	ctx := context.Background()

	_, err := f.store.GetOrCreate(ctx, "ivan")
	require.NoError(t, err)
	for i := 0; i < profile.TierFree.Quota(); i++ {
		_, err := f.store.IncrementUsage(ctx, "ivan")
		require.NoError(t, err)
	}

	query := QueryRequest{Message: "hello", Model: "openai/codex"}
	rec := f.do(t, http.MethodPost, "/api/query", "ivan", query)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/user/config", "ivan", map[string]any{"tier": "enterprise"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	p, err := f.store.Get(ctx, "ivan")
	require.NoError(t, err)
	assert.Equal(t, profile.TierFree, p.Tier)

	rec = f.do(t, http.MethodPost, "/api/query", "ivan", query)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestModels(t *testing.T) {
	f := newFixture(t, noLimit(), nil)

	rec := f.do(t, http.MethodGet, "/api/models", "gina", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	listing := decodeBody[dispatch.Listing](t, rec)
	assert.Len(t, listing.AllModels, len(catalog.Default().All()))
	assert.Equal(t, "10%", listing.PricingInfo.Markup)
	// Only the codex CLI is enabled for a new user.
	assert.Equal(t, []string{"openai"}, listing.AvailableProviders)
	require.Len(t, listing.ModelsByProvider["openai"], 1)
	assert.Equal(t, "openai/codex", listing.ModelsByProvider["openai"][0].ID)
}

func TestAnalytics(t *testing.T) {
	opts := noLimit()
	opts.Operators = []string{"root"}
	f := newFixture(t, opts, nil)

	rec := f.do(t, http.MethodGet, "/api/analytics", "hank", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "feature_disabled", decodeBody[ErrorBody](t, rec).Error.Type)

	pro := profile.TierPro
	_, err := f.store.Update(context.Background(), "hank", profile.Update{Tier: &pro})
	require.NoError(t, err)
	rec = f.do(t, http.MethodPost, "/api/query", "hank", QueryRequest{Message: "hello", Model: "openai/codex"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/analytics", "hank", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	a := decodeBody[telemetry.Analytics](t, rec)
	assert.Equal(t, 1, a.TotalQueries)
	assert.Equal(t, 30, a.TotalTokens)
	assert.Equal(t, map[string]int{"openai/codex": 1}, a.ModelUsage)

	rec = f.do(t, http.MethodGet, "/api/analytics?scope=all", "hank", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/analytics?scope=all", "root", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decodeBody[telemetry.Analytics](t, rec).TotalQueries)
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

func TestRateLimit_PerUser(t *testing.T) {
	opts := DefaultOptions()
	opts.RateLimitPerMinute = 1
	opts.RateBurst = 2
	f := newFixture(t, opts, nil)

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/user/config", "ivy", nil).Code)
	}
	rec := f.do(t, http.MethodGet, "/api/user/config", "ivy", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate_limited", decodeBody[ErrorBody](t, rec).Error.Type)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	// Another user has their own bucket.
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/user/config", "jack", nil).Code)
}

func TestRateLimiter_Prune(t *testing.T) {
	rl := NewRateLimiter(60, 1)
	rl.idle = 0
	rl.Allow("a")
	rl.Allow("b")
	require.Equal(t, 2, rl.Len())
	time.Sleep(time.Millisecond)
	rl.Prune()
	assert.Equal(t, 0, rl.Len())
}

func TestBodyLimit(t *testing.T) {
	opts := noLimit()
	opts.MaxBodyBytes = 1024
	f := newFixture(t, opts, nil)

	big := QueryRequest{Message: strings.Repeat("x", 4096), Model: "openai/codex"}
	rec := f.do(t, http.MethodPost, "/api/query", "kim", big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestCORS(t *testing.T) {
	opts := noLimit()
	opts.CORSOrigins = []string{"https://app.example.com", "*.internal.example"}
	f := newFixture(t, opts, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/query", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/query", nil)
	req.Header.Set("Origin", "https://ops.internal.example")
	rec = httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)
	assert.Equal(t, "https://ops.internal.example", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/query", nil)
	req.Header.Set("Origin", "https://evil.example.org")
	rec = httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		xri        string
		want       string
	}{
		{"direct", "203.0.113.5:1234", "", "", "203.0.113.5"},
		{"untrusted xff ignored", "203.0.113.5:1234", "1.2.3.4", "", "203.0.113.5"},
		{"trusted xff", "127.0.0.1:1234", "198.51.100.7, 10.0.0.1", "", "198.51.100.7"},
		{"trusted invalid xff", "10.1.2.3:1234", "not-an-ip", "198.51.100.8", "198.51.100.8"},
		{"trusted no headers", "192.168.1.2:1234", "", "", "192.168.1.2"},
		{"no port", "203.0.113.5", "", "", "203.0.113.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				r.Header.Set("X-Real-IP", tt.xri)
			}
			assert.Equal(t, tt.want, GetClientIP(r))
		})
	}
}

func TestChain_Order(t *testing.T) {
	var order []string
	mark := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Chain(mark("a"), mark("b"), mark("c"))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"a", "b", "c", "handler"}, order)
}

func TestStatusFor(t *testing.T) {
	status, kind := StatusFor(errors.New("disk on fire"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "internal", kind)

	status, _ = StatusFor(fmt.Errorf("wrapped: %w", dispatch.ErrFeatureDisabled))
	assert.Equal(t, http.StatusForbidden, status)
}

// =============================================================================
// LIFECYCLE
// =============================================================================

func TestServe_GracefulShutdown(t *testing.T) {
	f := newFixture(t, noLimit(), nil)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.srv.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/api/health"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
