// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package catalog holds the fixed table of selectable models.
//
// Each model is identified as "provider/model" and declares the transport used to
// reach it (gateway, direct provider API, or a local CLI tool). The table is built
// once at start-up and never mutated; per-provider order is most-capable first and
// doubles as the Router's fallback search order.
package catalog
