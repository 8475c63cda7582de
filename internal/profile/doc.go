// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package profile holds per-caller state: subscription tier, credentials,
// CLI availability flags, preferences and the usage counter.
//
// The usage counter never resets on its own. There is no billing-period
// rollover; operators that need one must reset counters out of band.
package profile
