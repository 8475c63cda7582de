// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/rigrun-router/internal/adapter"
	"github.com/jeranaias/rigrun-router/internal/catalog"
	"github.com/jeranaias/rigrun-router/internal/cloud"
	"github.com/jeranaias/rigrun-router/internal/config"
	"github.com/jeranaias/rigrun-router/internal/dispatch"
	"github.com/jeranaias/rigrun-router/internal/profile"
	"github.com/jeranaias/rigrun-router/internal/router"
	"github.com/jeranaias/rigrun-router/internal/storage"
	"github.com/jeranaias/rigrun-router/internal/telemetry"
)

// =============================================================================
// APPLICATION WIRING
// =============================================================================

// App is every long-lived component built from one config.
type App struct {
	Config     *config.Config
	Logger     *zap.Logger
	Catalog    *catalog.Catalog
	Classifier *router.KeywordClassifier
	Router     *router.Router
	Store      profile.Store
	History    telemetry.History
	Dispatcher *dispatch.Dispatcher
}

// Build wires cfg into a ready dispatcher. Close releases the store.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	cat, err := catalog.Default().WithTransportOverrides(cfg.Overrides())
	if err != nil {
		return nil, err
	}

	classifier := router.NewKeywordClassifier(cfg.Routing.Keywords)
	rt := router.New(cat, classifier, logger.Named("router"))

	store, history, err := openStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}

	d := dispatch.New(dispatch.Deps{
		Catalog:  cat,
		Router:   rt,
		Adapters: buildAdapters(cfg, cat, logger),
		Costs:    router.NewCostCalculator(cat, cfg.MarkupDecimal()),
		Store:    store,
		History:  history,
	}, dispatch.Options{
		Timeout:              cfg.DispatchTimeout(),
		MaxConcurrentPerUser: int64(cfg.Dispatch.MaxConcurrentPerUser),
		CountFailedAttempts:  cfg.Dispatch.CountFailedAttempts,
	}, logger.Named("dispatch"))

	return &App{
		Config:     cfg,
		Logger:     logger,
		Catalog:    cat,
		Classifier: classifier,
		Router:     rt,
		Store:      store,
		History:    history,
		Dispatcher: d,
	}, nil
}

// Close releases the store.
func (a *App) Close() error {
	if a.Store == nil {
		return nil
	}
	return a.Store.Close()
}

func openStorage(ctx context.Context, cfg *config.Config) (profile.Store, telemetry.History, error) {
	switch cfg.Storage.Driver {
	case "memory":
		return profile.NewMemoryStore(), telemetry.NewRing(cfg.Storage.HistorySize), nil
	case "sqlite":
		db, err := storage.Open(ctx, storage.Options{
			Path:       cfg.Storage.Path,
			SealKey:    cfg.Storage.SealKey,
			MaxHistory: cfg.Storage.HistorySize,
		})
		if err != nil {
			return nil, nil, err
		}
		return db, db, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

func buildAdapters(cfg *config.Config, cat *catalog.Catalog, logger *zap.Logger) *adapter.Set {
	tools := adapter.DefaultTools()
	for name, cmd := range map[string]string{
		"codex":  cfg.CLI.Codex,
		"claude": cfg.CLI.Claude,
		"gemini": cfg.CLI.Gemini,
	} {
		if cmd == "" {
			continue
		}
		t := tools[name]
		t.Command = cmd
		tools[name] = t
	}

	client := cloud.NewClient(cfg.Gateway.BaseURL).
		WithTimeout(time.Duration(cfg.Gateway.TimeoutSecs) * time.Second).
		WithSite(cfg.Gateway.SiteURL, cfg.Gateway.SiteName).
		WithLogger(logger.Named("gateway"))

	direct := adapter.NewDirect(adapter.Endpoints{
		OpenAI:    cfg.Direct.OpenAIURL,
		Anthropic: cfg.Direct.AnthropicURL,
		Gemini:    cfg.Direct.GeminiURL,
	}, &http.Client{Timeout: time.Duration(cfg.Direct.TimeoutSecs) * time.Second}, logger.Named("direct"))

	return &adapter.Set{
		Subprocess: adapter.NewSubprocess(tools, logger.Named("subprocess")),
		Direct:     direct,
		Gateway: adapter.NewGateway(client, cat, cfg.Routing.UrgentFallbacks, logger.Named("gateway")).
			WithTemperature(cfg.Routing.Temperature),
	}
}
