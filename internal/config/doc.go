// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads and validates the router configuration.
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (RIGRUN_*)
//   - The file given with --config, or ~/.rigrun-router/config.toml
//   - Built-in defaults
//
// A missing file is not an error; the defaults are a complete working
// configuration that serves from memory on localhost.
//
// # Usage
//
//	cfg, err := config.Load("")
//	if err != nil {
//	    return err
//	}
//
// Watch the file and react to edits:
//
//	w, err := config.Watch(path, 0, func(c *config.Config) { ... }, logErr)
//	defer w.Close()
package config
