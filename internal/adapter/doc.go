// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package adapter executes a routed query against the model's transport and
// normalizes the result.
//
// There is one adapter per catalog.Transport:
//
//   - Subprocess: runs an authenticated CLI tool (codex, claude, gemini)
//   - Direct: calls the provider's own completions API
//   - Gateway: calls the unified multi-provider endpoint
//
// Set.For picks the adapter from the model's transport. Adapters make exactly
// one attempt per call. Errors are *Failure values that match ErrAdapterFailure,
// ErrAuthExpired or ErrTimeout with errors.Is.
package adapter
