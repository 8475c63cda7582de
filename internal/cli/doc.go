// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the rigrun-router command line.
//
// The command tree is built with cobra. Every command that routes or runs a
// query goes through Build, which wires the config into a catalog, router,
// store, adapters and dispatcher; the HTTP server (serve) and the local
// commands (ask, chat, route, models, user, analytics) share that wiring.
//
// # Commands
//
//	serve               run the HTTP API
//	ask <message>       route and run one query
//	chat                interactive session, one query per line
//	route <message>     show the routing decision without running it
//	classify <message>  show the complexity bucket
//	models [--all]      list models and their availability
//	user ...            show the profile, store keys, toggle CLIs, change tier
//	analytics [--all]   summarize query history
//	config ...          read or change the config file
//	token issue         sign a bearer token for jwt auth mode
//	version             print version information
//
// Global flags are --config, --user, --json and --verbose. Commands exit
// with the Exit* codes so scripts can tell usage errors from quota and
// backend failures.
package cli
