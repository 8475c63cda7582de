// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util holds small helpers shared across packages: crash-safe file
// writes and rune/width-aware truncation for logs, history and tables.
package util
