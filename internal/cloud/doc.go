// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cloud is the HTTP client for the unified gateway (an
// OpenRouter-compatible chat completions endpoint).
//
// The client is shared by all users; the API key travels with each call so
// one process can serve many accounts. Calls are single-shot: there is no
// retry loop, failures are returned as typed errors for the caller to judge.
//
// # Usage
//
//	c := cloud.NewClient(cloud.DefaultBaseURL)
//	resp, err := c.Chat(ctx, apiKey, cloud.ChatRequest{
//	    Model:    "openai/gpt-5",
//	    Models:   []string{"openai/gpt-5", "openai/gpt-5-nano"},
//	    Messages: []cloud.ChatMessage{cloud.NewUserMessage("Hello")},
//	})
//
// # Security
//
// API keys are never logged; use Fingerprint for correlation.
package cloud
