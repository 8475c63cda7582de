// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package telemetry records completed query attempts and summarizes them.
//
// # Key Types
//
//   - Entry: one completed attempt (success or adapter failure)
//   - History: append-only log of entries
//   - Ring: bounded in-memory History
//   - Analytics: aggregate view over a set of entries
//
// # Usage
//
//	h := telemetry.NewRing(1000)
//	h.Record(ctx, telemetry.Entry{QueryID: id, UserID: "alice", Model: "openai/gpt-5", TotalTokens: 420})
//
//	entries, _ := h.Entries(ctx, telemetry.Filter{UserID: "alice"})
//	stats := telemetry.Summarize(entries, 10)
//
// # Privacy
//
// Only the first 200 characters of a message are kept. Responses are never stored.
package telemetry
