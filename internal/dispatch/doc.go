// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package dispatch runs one query end to end.
//
// The pipeline is: validate, reject unknown explicit models, load the
// profile, check the quota, route, confirm the routed model is reachable,
// execute exactly one adapter call, price it, count it and record it.
// Adapter errors are returned unchanged; nothing is retried and no other
// model is tried after a failure.
//
// Rejections before the adapter call (unknown model, quota, missing
// credential) do not touch the usage counter. Completed attempts always
// count on success; failed attempts count unless CountFailedAttempts is off.
// The counter has no billing-period reset.
package dispatch
