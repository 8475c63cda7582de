// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/jeranaias/rigrun-router/internal/catalog"
	"github.com/jeranaias/rigrun-router/internal/config"
	"github.com/jeranaias/rigrun-router/internal/dispatch"
)

// Exit codes.
const (
	ExitOK      = 0
	ExitError   = 1
	ExitUsage   = 2
	ExitConfig  = 3
	ExitQuota   = 4
	ExitBackend = 5
)

// usageError marks bad command-line input.
type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

func exitCode(err error) int {
	var ue *usageError
	var ve config.ValidationErrors
	switch {
	case err == nil:
		return ExitOK
	case errors.As(err, &ue), errors.Is(err, dispatch.ErrInvalidQuery),
		errors.Is(err, catalog.ErrUnknownModel), errors.Is(err, catalog.ErrUnknownProvider):
		return ExitUsage
	case errors.As(err, &ve):
		return ExitConfig
	case errors.Is(err, dispatch.ErrQuotaExceeded):
		return ExitQuota
	}
	switch dispatch.KindName(err) {
	case "timeout", "no_credential", "auth_expired", "adapter_failure":
		return ExitBackend
	}
	return ExitError
}

// hint suggests the next step for err, or "".
func hint(err error) string {
	if errors.Is(err, dispatch.ErrFeatureDisabled) {
		return "upgrade with: rigrun-router user set-tier pro"
	}
	switch dispatch.KindName(err) {
	case "unknown_model":
		return "list models with: rigrun-router models --all"
	case "quota_exceeded":
		return "upgrade with: rigrun-router user set-tier pro"
	case "no_credential":
		return "add a key with: rigrun-router user set-key <provider>, or enable a CLI with: rigrun-router user set-cli <name> on"
	case "auth_expired":
		return "log in to the provider again (or refresh the API key), then retry"
	case "timeout":
		return "raise dispatch.timeout_secs or retry with --priority urgent"
	}
	return ""
}

func printError(w io.Writer, err error) {
	s := NewStyles(w)
	fmt.Fprintln(w, s.Error.Render("Error:"), err)
	if h := hint(err); h != "" {
		fmt.Fprintln(w, s.Dim.Render("  "+h))
	}
}
