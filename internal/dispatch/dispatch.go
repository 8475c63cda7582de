// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/jeranaias/rigrun-router/internal/adapter"
	"github.com/jeranaias/rigrun-router/internal/catalog"
	"github.com/jeranaias/rigrun-router/internal/profile"
	"github.com/jeranaias/rigrun-router/internal/router"
	"github.com/jeranaias/rigrun-router/internal/telemetry"
)

var (
	// ErrQuotaExceeded is returned before routing when the user has no queries left.
	ErrQuotaExceeded = profile.ErrQuotaReached

	// ErrNoCredential is returned when the routed model is not reachable with
	// anything the user holds.
	ErrNoCredential = adapter.ErrNoCredential

	// ErrInvalidQuery covers malformed queries.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrFeatureDisabled is returned when the user's tier lacks a feature.
	ErrFeatureDisabled = errors.New("feature not available on this tier")
)

// Options tune the pipeline.
type Options struct {
	// Timeout bounds each adapter call. Zero leaves only the caller's deadline.
	Timeout time.Duration

	// MaxConcurrentPerUser caps in-flight adapter calls per user. Zero is unlimited.
	MaxConcurrentPerUser int64

	// CountFailedAttempts charges adapter failures against the quota.
	CountFailedAttempts bool
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		Timeout:              120 * time.Second,
		MaxConcurrentPerUser: 4,
		CountFailedAttempts:  true,
	}
}

// Deps are the collaborators a Dispatcher needs.
type Deps struct {
	Catalog  *catalog.Catalog
	Router   *router.Router
	Adapters *adapter.Set
	Costs    *router.CostCalculator
	Store    profile.Store
	History  telemetry.History
}

// Result is the response envelope for one query.
type Result struct {
	Response       string           `json:"response"`
	Model          string           `json:"model_used"`
	TokensUsed     int              `json:"tokens_used"`
	ProcessingTime float64          `json:"processing_time"`
	QueryID        string           `json:"query_id"`
	Cost           *decimal.Decimal `json:"cost_estimate,omitempty"`

	// ReportedCost is the gateway's own figure, when it sent one.
	ReportedCost *decimal.Decimal `json:"reported_cost,omitempty"`

	Decision router.Decision `json:"-"`
	Usage    int             `json:"-"`
}

// Dispatcher executes queries.
type Dispatcher struct {
	deps   Deps
	opts   Options
	logger *zap.Logger

	now   func() time.Time
	newID func() string

	mu    sync.Mutex
	slots map[string]*userSlots
}

// userSlots is one user's semaphore and the number of callers holding or
// waiting on it.
type userSlots struct {
	sem  *semaphore.Weighted
	refs int
}

// New creates a dispatcher. A nil History disables recording.
func New(deps Deps, opts Options, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		deps:   deps,
		opts:   opts,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
		slots:  make(map[string]*userSlots),
	}
}

// Catalog returns the model catalog in use.
func (d *Dispatcher) Catalog() *catalog.Catalog { return d.deps.Catalog }

// Router returns the router in use.
func (d *Dispatcher) Router() *router.Router { return d.deps.Router }

// Store returns the profile store.
func (d *Dispatcher) Store() profile.Store { return d.deps.Store }

// Costs returns the cost calculator.
func (d *Dispatcher) Costs() *router.CostCalculator { return d.deps.Costs }

// prepare validates q and normalizes its priority and provider.
func (d *Dispatcher) prepare(q router.Query) (router.Query, error) {
	if strings.TrimSpace(q.Message) == "" {
		return q, fmt.Errorf("%w: message is required", ErrInvalidQuery)
	}
	if err := router.ValidateQuery(q); err != nil {
		return q, fmt.Errorf("%w: %w", ErrInvalidQuery, err)
	}
	if q.Priority == "" {
		q.Priority = router.PriorityNormal
	}
	if _, err := router.ParsePriority(string(q.Priority)); err != nil {
		return q, fmt.Errorf("%w: %w", ErrInvalidQuery, err)
	}
	if q.Model != "" && !d.deps.Catalog.Has(q.Model) {
		return q, fmt.Errorf("%w: %q", catalog.ErrUnknownModel, q.Model)
	}
	if q.Provider != "" {
		p, err := catalog.ParseProvider(q.Provider)
		if err != nil {
			return q, err
		}
		q.Provider = string(p)
	}
	return q, nil
}

// Plan routes q for userID without executing it.
func (d *Dispatcher) Plan(ctx context.Context, userID string, q router.Query) (router.Decision, error) {
	q, err := d.prepare(q)
	if err != nil {
		return router.Decision{}, err
	}
	user, err := d.deps.Store.GetOrCreate(ctx, userID)
	if err != nil {
		return router.Decision{}, fmt.Errorf("failed to load profile: %w", err)
	}
	return d.deps.Router.Route(q, user), nil
}

// Dispatch runs q for userID.
func (d *Dispatcher) Dispatch(ctx context.Context, userID string, q router.Query) (*Result, error) {
	start := d.now()

	q, err := d.prepare(q)
	if err != nil {
		return nil, err
	}

	user, err := d.deps.Store.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	if user.OverQuota() {
		return nil, d.quotaError(user, user.Usage)
	}

	decision := d.deps.Router.Route(q, user)
	if !decision.Available {
		return nil, fmt.Errorf("%w: %s needs %s", ErrNoCredential, decision.Model, d.requirement(decision.Model))
	}
	model, err := d.deps.Catalog.Get(decision.Model)
	if err != nil {
		return nil, err
	}
	a, err := d.deps.Adapters.For(model)
	if err != nil {
		return nil, err
	}

	release, err := d.acquire(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	// Usage is reserved before the call; concurrent requests never push it
	// past the quota.
	usage, err := d.deps.Store.ReserveUsage(ctx, user.ID)
	if err != nil {
		release()
		if errors.Is(err, profile.ErrQuotaReached) {
			return nil, d.quotaError(user, usage)
		}
		return nil, fmt.Errorf("failed to reserve usage: %w", err)
	}

	res, callErr := d.execute(ctx, a, adapter.Request{Query: q, Model: model, User: user})
	release()

	// The attempt is complete from here on; finish the bookkeeping even if
	// the caller has gone away.
	bookCtx := context.WithoutCancel(ctx)
	out := &Result{QueryID: d.newID(), Model: model.ID, Decision: decision, Usage: usage}

	if callErr != nil && !d.opts.CountFailedAttempts {
		usage, err := d.deps.Store.ReleaseUsage(bookCtx, user.ID)
		if err != nil {
			d.logger.Error("USAGE_RELEASE_FAILED", zap.String("user", user.ID), zap.Error(err))
		}
		out.Usage = usage
	}

	entry := telemetry.Entry{
		QueryID:   out.QueryID,
		UserID:    user.ID,
		Message:   q.Message,
		Model:     model.ID,
		Rule:      decision.Rule.String(),
		Cost:      decimal.Zero,
		Timestamp: start,
	}

	if callErr == nil {
		out.Response = res.Response
		out.Model = res.Model
		out.TokensUsed = res.TotalTokens
		out.ReportedCost = res.ReportedCost
		cost, err := d.deps.Costs.Cost(res.Model, res.InputTokens, res.OutputTokens)
		if err == nil {
			out.Cost = &cost
			entry.Cost = cost
		}
		entry.Model = res.Model
		entry.TotalTokens = res.TotalTokens
	} else {
		entry.ErrorKind = KindName(callErr)
	}

	out.ProcessingTime = d.now().Sub(start).Seconds()
	entry.ProcessingSeconds = out.ProcessingTime
	if d.deps.History != nil {
		if err := d.deps.History.Record(bookCtx, entry); err != nil {
			d.logger.Warn("HISTORY_RECORD_FAILED", zap.String("query_id", out.QueryID), zap.Error(err))
		}
	}

	fields := []zap.Field{
		zap.String("query_id", out.QueryID),
		zap.String("user", user.ID),
		zap.String("rule", decision.Rule.String()),
		zap.String("complexity", decision.Complexity.String()),
		zap.String("model", out.Model),
		zap.String("transport", model.Transport.String()),
		zap.Int("tokens", out.TokensUsed),
		zap.Float64("seconds", out.ProcessingTime),
	}
	if callErr != nil {
		d.logger.Warn("DISPATCH_FAILED", append(fields, zap.String("kind", entry.ErrorKind), zap.Error(callErr))...)
		return nil, callErr
	}
	d.logger.Info("DISPATCH", fields...)
	return out, nil
}

// quotaError logs and builds the quota-exceeded error for user at usage.
func (d *Dispatcher) quotaError(user *profile.Profile, usage int) error {
	d.logger.Warn("QUOTA_EXCEEDED",
		zap.String("user", user.ID),
		zap.Int("usage", usage),
		zap.Int("quota", user.Quota()),
	)
	return fmt.Errorf("%w: %d of %d queries used on the %s tier",
		ErrQuotaExceeded, usage, user.Quota(), user.Tier)
}

// execute runs one adapter call under the configured timeout.
func (d *Dispatcher) execute(ctx context.Context, a adapter.Adapter, req adapter.Request) (*adapter.Result, error) {
	if d.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.opts.Timeout)
		defer cancel()
	}
	return a.Execute(ctx, req)
}

// acquire takes one of the user's adapter-call slots. A user's semaphore is
// dropped once nobody holds or waits on it.
func (d *Dispatcher) acquire(ctx context.Context, userID string) (func(), error) {
	if d.opts.MaxConcurrentPerUser <= 0 {
		return func() {}, nil
	}
	d.mu.Lock()
	us, ok := d.slots[userID]
	if !ok {
		us = &userSlots{sem: semaphore.NewWeighted(d.opts.MaxConcurrentPerUser)}
		d.slots[userID] = us
	}
	us.refs++
	d.mu.Unlock()

	if err := us.sem.Acquire(ctx, 1); err != nil {
		d.unref(userID, us)
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: waiting for a free request slot", adapter.ErrTimeout)
		}
		return nil, err
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			us.sem.Release(1)
			d.unref(userID, us)
		})
	}, nil
}

func (d *Dispatcher) unref(userID string, us *userSlots) {
	d.mu.Lock()
	defer d.mu.Unlock()
	us.refs--
	if us.refs == 0 && d.slots[userID] == us {
		delete(d.slots, userID)
	}
}

// trackedUsers returns how many users currently hold slot state.
func (d *Dispatcher) trackedUsers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.slots)
}

// requirement describes what unlocks modelID.
func (d *Dispatcher) requirement(modelID string) string {
	m, err := d.deps.Catalog.Get(modelID)
	if err != nil {
		return "a credential"
	}
	switch m.Transport {
	case catalog.TransportGateway:
		return fmt.Sprintf("a gateway API key (api_keys.%s)", catalog.GatewayAdapter)
	case catalog.TransportSubprocess:
		return fmt.Sprintf("the %s CLI enabled (cli_configs.%s) or a %s API key", m.Adapter, m.Adapter, m.Provider)
	default:
		return fmt.Sprintf("a %s API key (api_keys.%s)", m.Provider, m.Provider)
	}
}

// KindName returns a stable name for err's taxonomy kind.
func KindName(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, catalog.ErrUnknownModel):
		return "unknown_model"
	case errors.Is(err, ErrQuotaExceeded):
		return "quota_exceeded"
	}
	switch adapter.Kind(err) {
	case adapter.ErrTimeout:
		return "timeout"
	case adapter.ErrNoCredential:
		return "no_credential"
	case adapter.ErrAuthExpired:
		return "auth_expired"
	case adapter.ErrAdapterFailure:
		return "adapter_failure"
	}
	return "internal"
}
