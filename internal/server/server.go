// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/rigrun-router/internal/adapter"
	"github.com/jeranaias/rigrun-router/internal/catalog"
	"github.com/jeranaias/rigrun-router/internal/dispatch"
	"github.com/jeranaias/rigrun-router/internal/profile"
	"github.com/jeranaias/rigrun-router/internal/router"
)

// Version is reported by /api/health.
var Version = "dev"

// ============================================================================
// OPTIONS
// ============================================================================

// Options configure the HTTP server.
type Options struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MaxBodyBytes int64

	// RateLimitPerMinute of 0 disables rate limiting.
	RateLimitPerMinute int
	RateBurst          int
	CORSOrigins        []string

	// Operators may read the all-users analytics view.
	Operators []string
}

// DefaultOptions returns the defaults used when a field is zero.
func DefaultOptions() Options {
	return Options{
		Addr:               "127.0.0.1:8080",
		ReadTimeout:        15 * time.Second,
		WriteTimeout:       150 * time.Second,
		MaxBodyBytes:       1 << 20,
		RateLimitPerMinute: 60,
		RateBurst:          10,
	}
}

// ============================================================================
// SERVER
// ============================================================================

// Stats are process-lifetime request counters.
type Stats struct {
	Requests  atomic.Int64
	Failures  atomic.Int64
	StartTime time.Time
}

// Server exposes a Dispatcher over JSON/HTTP.
type Server struct {
	opts      Options
	dispatch  *dispatch.Dispatcher
	auth      Authenticator
	logger    *zap.Logger
	mux       *http.ServeMux
	limiter   *RateLimiter
	operators map[string]bool
	stats     Stats

	server *http.Server
}

// New builds a server. A nil Authenticator means TokenAuth.
func New(opts Options, d *dispatch.Dispatcher, auth Authenticator, logger *zap.Logger) *Server {
	def := DefaultOptions()
	if opts.Addr == "" {
		opts.Addr = def.Addr
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = def.ReadTimeout
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = def.WriteTimeout
	}
	if opts.MaxBodyBytes == 0 {
		opts.MaxBodyBytes = def.MaxBodyBytes
	}
	if auth == nil {
		auth = TokenAuth{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		opts:      opts,
		dispatch:  d,
		auth:      auth,
		logger:    logger,
		mux:       http.NewServeMux(),
		operators: make(map[string]bool, len(opts.Operators)),
	}
	for _, op := range opts.Operators {
		s.operators[op] = true
	}
	if opts.RateLimitPerMinute > 0 {
		s.limiter = NewRateLimiter(opts.RateLimitPerMinute, opts.RateBurst)
	}
	s.stats.StartTime = time.Now()
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("POST /api/query", s.handleQuery)
	s.mux.HandleFunc("GET /api/user/config", s.handleGetUserConfig)
	s.mux.HandleFunc("POST /api/user/config", s.handleUpdateUserConfig)
	s.mux.HandleFunc("GET /api/models", s.handleModels)
	s.mux.HandleFunc("GET /api/analytics", s.handleAnalytics)
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
}

// Handler returns the full middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	mw := []func(http.Handler) http.Handler{
		RecoveryMiddleware(s.logger),
		SecurityHeadersMiddleware(),
		LoggingMiddleware(s.logger),
		CORSMiddleware(s.opts.CORSOrigins),
		BodyLimitMiddleware(s.opts.MaxBodyBytes),
		AuthMiddleware(s.auth, s.logger, "/api/health"),
	}
	if s.limiter != nil {
		mw = append(mw, RateLimitMiddleware(s.limiter, s.logger))
	}
	return Chain(mw...)(s.mux)
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadTimeout:       s.opts.ReadTimeout,
		ReadHeaderTimeout: s.opts.ReadTimeout,
		WriteTimeout:      s.opts.WriteTimeout,
		IdleTimeout:       2 * time.Minute,
	}

	if s.limiter != nil {
		go s.pruneLimiter(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("SERVER_START", zap.String("addr", ln.Addr().String()), zap.String("version", Version))
		errCh <- s.server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("SERVER_SHUTDOWN")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.WriteTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe listens on the configured address and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.opts.Addr, err)
	}
	return s.Serve(ctx, ln)
}

func (s *Server) pruneLimiter(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.limiter.Prune()
		}
	}
}

// ============================================================================
// QUERY
// ============================================================================

// QueryRequest is the body of POST /api/query.
type QueryRequest struct {
	Message      string `json:"message"`
	SystemPrompt string `json:"system_prompt,omitempty"`
	Model        string `json:"model,omitempty"`
	Provider     string `json:"provider,omitempty"`
	Priority     string `json:"priority,omitempty"`
	MaxTokens    int    `json:"max_tokens,omitempty"`
}

// Query converts the request body to a router query.
func (q QueryRequest) Query() router.Query {
	return router.Query{
		Message:      q.Message,
		SystemPrompt: q.SystemPrompt,
		Model:        q.Model,
		Provider:     q.Provider,
		Priority:     router.Priority(q.Priority),
		MaxTokens:    q.MaxTokens,
	}
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if !s.decode(w, r, &req) {
		return
	}

	s.stats.Requests.Add(1)
	res, err := s.dispatch.Dispatch(r.Context(), UserFrom(r.Context()), req.Query())
	if err != nil {
		s.stats.Failures.Add(1)
		s.writeDispatchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ============================================================================
// USER CONFIG
// ============================================================================

func (s *Server) handleGetUserConfig(w http.ResponseWriter, r *http.Request) {
	uc, err := s.dispatch.UserConfig(r.Context(), UserFrom(r.Context()))
	if err != nil {
		s.writeDispatchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, uc)
}

func (s *Server) handleUpdateUserConfig(w http.ResponseWriter, r *http.Request) {
	var u profile.Update
	if !s.decode(w, r, &u) {
		return
	}
	uc, err := s.dispatch.UpdateUserConfig(r.Context(), UserFrom(r.Context()), u)
	if err != nil {
		s.writeDispatchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, uc)
}

// ============================================================================
// MODELS / ANALYTICS / HEALTH
// ============================================================================

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	listing, err := s.dispatch.Models(r.Context(), UserFrom(r.Context()))
	if err != nil {
		s.writeDispatchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	user := UserFrom(r.Context())
	all := r.URL.Query().Get("scope") == "all"
	if all && !s.operators[user] {
		writeError(w, http.StatusForbidden, "feature_disabled", "the all-users view is restricted to operators")
		return
	}
	a, err := s.dispatch.Analytics(r.Context(), user, all)
	if err != nil {
		s.writeDispatchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// HealthResponse is the body of GET /api/health.
type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Models        int    `json:"models"`
	Requests      int64  `json:"requests"`
	Failures      int64  `json:"failures"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:        "ok",
		Version:       Version,
		Models:        len(s.dispatch.Catalog().All()),
		Requests:      s.stats.Requests.Load(),
		Failures:      s.stats.Failures.Load(),
		UptimeSeconds: int64(time.Since(s.stats.StartTime).Seconds()),
	})
}

// ============================================================================
// HELPERS
// ============================================================================

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "invalid_request_error", "request body too large")
			return false
		}
		s.logger.Debug("BAD_REQUEST", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: "+err.Error())
		return false
	}
	return true
}

// StatusFor maps a dispatch error to an HTTP status and error type.
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, dispatch.ErrInvalidQuery), errors.Is(err, catalog.ErrUnknownProvider):
		return http.StatusBadRequest, "invalid_request_error"
	case errors.Is(err, dispatch.ErrFeatureDisabled):
		return http.StatusForbidden, "feature_disabled"
	}
	switch kind := dispatch.KindName(err); kind {
	case "unknown_model":
		return http.StatusNotFound, kind
	case "no_credential":
		return http.StatusForbidden, kind
	case "quota_exceeded":
		return http.StatusTooManyRequests, kind
	case "auth_expired":
		return http.StatusUnauthorized, kind
	case "adapter_failure":
		return http.StatusBadGateway, kind
	case "timeout":
		return http.StatusGatewayTimeout, kind
	}
	return http.StatusInternalServerError, "internal"
}

func (s *Server) writeDispatchError(w http.ResponseWriter, err error) {
	status, kind := StatusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("REQUEST_ERROR", zap.Error(err))
		msg = "internal server error"
	}
	var f *adapter.Failure
	if errors.As(err, &f) && f.Status != 0 {
		w.Header().Set("X-Upstream-Status", fmt.Sprint(f.Status))
	}
	writeError(w, status, kind, msg)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ErrorBody is the JSON error envelope.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes one error.
type ErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    int    `json:"code"`
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, ErrorBody{Error: ErrorDetail{Message: message, Type: kind, Code: status}})
}
