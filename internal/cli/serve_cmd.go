// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jeranaias/rigrun-router/internal/config"
	"github.com/jeranaias/rigrun-router/internal/server"
)

// ErrAlreadyRunning is returned when another server holds the data directory lock.
var ErrAlreadyRunning = errors.New("another rigrun-router server is using this data directory")

func newServeCommand(e *env) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Serves the JSON API until interrupted. Edits to the config file's
routing.keywords take effect without a restart; other settings are read
once at startup.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := e.config()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			lock, err := lockDataDir(cfg)
			if err != nil {
				return err
			}
			defer lock.Unlock()

			app, err := e.build(cmd, true)
			if err != nil {
				return err
			}
			defer e.close()
			logger := app.Logger

			var auth server.Authenticator = server.TokenAuth{}
			if cfg.Auth.Mode == "jwt" {
				auth = server.NewJWTAuth(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer)
			}

			if w := watchConfig(e, app, logger); w != nil {
				defer w.Close()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			server.Version = Version
			srv := server.New(server.Options{
				Addr:               cfg.Server.Addr,
				ReadTimeout:        time.Duration(cfg.Server.ReadTimeoutSecs) * time.Second,
				WriteTimeout:       time.Duration(cfg.Server.WriteTimeoutSecs) * time.Second,
				MaxBodyBytes:       cfg.Server.MaxBodyBytes,
				RateLimitPerMinute: cfg.Server.RateLimitPerMinute,
				RateBurst:          cfg.Server.RateBurst,
				CORSOrigins:        cfg.Server.CORSOrigins,
				Operators:          cfg.Auth.Operators,
			}, app.Dispatcher, auth, logger)

			logger.Info("SERVE",
				zap.String("addr", cfg.Server.Addr),
				zap.String("auth", cfg.Auth.Mode),
				zap.String("storage", cfg.Storage.Driver),
				zap.Int("models", len(app.Catalog.All())))
			return srv.ListenAndServe(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}

// lockDataDir takes an exclusive lock next to the data so two servers never
// share one store.
func lockDataDir(cfg *config.Config) (*flock.Flock, error) {
	dir, err := config.ConfigDir()
	if err != nil {
		return nil, err
	}
	if cfg.Storage.Driver == "sqlite" && cfg.Storage.Path != "" {
		dir = filepath.Dir(cfg.Storage.Path)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	lock := flock.New(filepath.Join(dir, "rigrun-router.lock"))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock data directory: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w (%s)", ErrAlreadyRunning, lock.Path())
	}
	return lock, nil
}

// watchConfig reloads classifier keywords when the config file changes.
// It returns nil when there is no file to watch.
func watchConfig(e *env, app *App, logger *zap.Logger) *config.Watcher {
	path, err := e.configFile()
	if err != nil {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		logger.Debug("CONFIG_WATCH_SKIPPED", zap.String("path", path), zap.Error(err))
		return nil
	}

	w, err := config.Watch(path, config.DefaultDebounce,
		func(cfg *config.Config) {
			app.Classifier.SetKeywords(cfg.Routing.Keywords)
			logger.Info("CONFIG_RELOAD",
				zap.String("path", path),
				zap.Int("high", len(cfg.Routing.Keywords.High)),
				zap.Int("medium", len(cfg.Routing.Keywords.Medium)),
				zap.Int("low", len(cfg.Routing.Keywords.Low)))
		},
		func(err error) {
			logger.Warn("CONFIG_RELOAD_FAILED", zap.String("path", path), zap.Error(err))
		})
	if err != nil {
		logger.Warn("CONFIG_WATCH_FAILED", zap.String("path", path), zap.Error(err))
		return nil
	}
	return w
}
