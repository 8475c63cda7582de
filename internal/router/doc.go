// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package router picks exactly one catalog model for each query.
//
// # Key Types
//
//   - Classifier: buckets message text into low/medium/high complexity
//   - Availability: decides whether a user can reach a model
//   - Router: combines priority, explicit overrides and complexity into a Decision
//   - CostCalculator: billed cost with the platform markup, in decimal
//
// # Resolution order
//
// First match wins:
//
//  1. manual priority with a known explicit model
//  2. manual priority with an explicit provider (best available in that provider)
//  3. any known explicit model
//  4. explicit provider (cheapest for cost-optimized, else most capable for high
//     complexity, else the middle of the list), skipping unavailable models
//  5. no override: urgent -> fastest, cost-optimized -> cheapest, otherwise
//     high -> reasoning, medium -> general, low -> fastest
//
// Route never fails. When nothing is available the documented default id for
// the branch is returned and the dispatcher reports the missing credential.
//
// # Usage
//
//	r := router.New(catalog.Default(), router.NewKeywordClassifier(router.DefaultKeywords()), nil)
//	d := r.Route(router.Query{Message: "explain recursion"}, user)
//	fmt.Println(d.Model, d.Reason)
package router
