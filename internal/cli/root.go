// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jeranaias/rigrun-router/internal/config"
	"github.com/jeranaias/rigrun-router/internal/logging"
)

// Version information (set at build time).
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// DefaultUser is the profile the CLI acts as when --user and RIGRUN_USER are unset.
const DefaultUser = "local"

// env carries the persistent flags and lazily built state for one invocation.
type env struct {
	configPath string
	userID     string
	jsonOut    bool
	verbose    bool

	cfg *config.Config
	app *App
}

func (e *env) user() string {
	if e.userID != "" {
		return e.userID
	}
	if v := os.Getenv("RIGRUN_USER"); v != "" {
		return v
	}
	return DefaultUser
}

func (e *env) config() (*config.Config, error) {
	if e.cfg != nil {
		return e.cfg, nil
	}
	cfg, err := config.Load(e.configPath)
	if err != nil {
		return nil, err
	}
	e.cfg = cfg
	return cfg, nil
}

// configFile is the path config commands read and write.
func (e *env) configFile() (string, error) {
	if e.configPath != "" {
		return e.configPath, nil
	}
	return config.ConfigPath()
}

// logger builds the CLI logger. One-shot commands only log warnings unless
// --verbose is given; serve uses the configured level.
func (e *env) logger(w io.Writer, serving bool) (*zap.Logger, error) {
	cfg, err := e.config()
	if err != nil {
		return nil, err
	}
	level, format := cfg.Logging.Level, cfg.Logging.Format
	if !serving {
		level, format = "warn", "console"
	}
	if e.verbose {
		level = "debug"
	}
	return logging.NewWithWriter(level, format, w)
}

// build wires the application for commands that need the dispatcher.
// Callers defer e.close().
func (e *env) build(cmd *cobra.Command, serving bool) (*App, error) {
	if e.app != nil {
		return e.app, nil
	}
	cfg, err := e.config()
	if err != nil {
		return nil, err
	}
	logger, err := e.logger(cmd.ErrOrStderr(), serving)
	if err != nil {
		return nil, err
	}
	app, err := Build(cmd.Context(), cfg, logger)
	if err != nil {
		return nil, err
	}
	e.app = app
	return app, nil
}

func (e *env) close() {
	if e.app != nil {
		_ = e.app.Logger.Sync()
		_ = e.app.Close()
		e.app = nil
	}
}

// NewRootCommand builds the full command tree.
func NewRootCommand() *cobra.Command {
	e := &env{}

	root := &cobra.Command{
		Use:   "rigrun-router",
		Short: "Route LLM queries across providers, gateways and local CLIs",
		Long: `rigrun-router picks a model for each query from its complexity, priority
and the credentials a user holds, then runs it through the provider API,
a unified gateway, or an authenticated command-line tool.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&e.configPath, "config", "", "config file (default ~/.rigrun-router/config.toml)")
	pf.StringVarP(&e.userID, "user", "u", "", "act as this user id (default $RIGRUN_USER or \""+DefaultUser+"\")")
	pf.BoolVar(&e.jsonOut, "json", false, "print JSON instead of text")
	pf.BoolVarP(&e.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		newServeCommand(e),
		newAskCommand(e),
		newChatCommand(e),
		newModelsCommand(e),
		newRouteCommand(e),
		newClassifyCommand(e),
		newUserCommand(e),
		newAnalyticsCommand(e),
		newConfigCommand(e),
		newTokenCommand(e),
		newVersionCommand(),
	)
	return root
}

// Execute runs the CLI and returns the process exit code.
func Execute(ctx context.Context) int {
	root := NewRootCommand()
	if err := root.ExecuteContext(ctx); err != nil {
		printError(root.ErrOrStderr(), err)
		return exitCode(err)
	}
	return 0
}

func writeJSONTo(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}
