// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides SQLite persistence for profiles and query history.
//
// SQLiteStore implements both profile.Store and telemetry.History on one
// database file. The usage counter is incremented with a single UPDATE so
// concurrent dispatches never lose a count.
//
// # Credentials at rest
//
// When a sealing passphrase is configured, credential maps are encrypted
// with AES-256-GCM under a PBKDF2-SHA-256 key. Sealed values carry the
// "ENC:" prefix; plain values are still readable so a passphrase can be
// introduced on an existing database.
//
// # Usage
//
//	st, err := storage.Open(ctx, storage.Options{Path: "~/.rigrun-router/router.db"})
//	if err != nil {
//	    return err
//	}
//	defer st.Close()
package storage
