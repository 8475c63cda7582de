// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server exposes the query router over JSON/HTTP.
//
// # Endpoints
//
//   - POST /api/query        - route and run one query
//   - GET  /api/user/config  - the caller's profile (secrets omitted)
//   - POST /api/user/config  - merge keys, CLI flags, preferences, tier
//   - GET  /api/models       - catalog with per-user availability
//   - GET  /api/analytics    - the caller's history summary (?scope=all for operators)
//   - GET  /api/health       - liveness, no auth
//
// Every request except /api/health carries "Authorization: Bearer <token>".
// In token mode the token is the user id; in jwt mode it is an HS256 JWT
// whose subject is the user id.
//
// Errors are returned as {"error":{"message","type","code"}} where type is
// one of invalid_request_error, unknown_model, no_credential,
// feature_disabled, quota_exceeded, rate_limited, auth_expired,
// adapter_failure, timeout, unauthorized or internal.
//
// # Usage
//
//	srv := server.New(opts, dispatcher, server.TokenAuth{}, logger)
//	if err := srv.ListenAndServe(ctx); err != nil {
//		return err
//	}
package server
