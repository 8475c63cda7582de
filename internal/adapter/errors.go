// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package adapter

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrAdapterFailure covers non-2xx responses, non-zero exits and transport errors.
	ErrAdapterFailure = errors.New("adapter failure")

	// ErrAuthExpired is an ErrAdapterFailure the caller should answer by
	// re-authenticating instead of retrying.
	ErrAuthExpired = fmt.Errorf("%w: authentication expired", ErrAdapterFailure)

	// ErrTimeout means the call ran past the caller's deadline.
	ErrTimeout = errors.New("adapter timeout")

	// ErrNoCredential means the user holds nothing that unlocks the model.
	ErrNoCredential = errors.New("no credential")
)

// Failure describes a failed adapter call. Status is the HTTP status for API
// transports; ExitCode is set for CLI tools. Message carries the backend's text verbatim.
type Failure struct {
	Adapter  string
	Model    string
	Status   int
	ExitCode int
	Message  string

	kind  error
	cause error
}

// Error implements the error interface.
func (f *Failure) Error() string {
	var b strings.Builder
	b.WriteString(f.Adapter)
	b.WriteString(" ")
	switch {
	case errors.Is(f.kind, ErrTimeout):
		b.WriteString("timed out")
	case errors.Is(f.kind, ErrAuthExpired):
		b.WriteString("authentication expired")
	case errors.Is(f.kind, ErrNoCredential):
		b.WriteString("has no credential")
	default:
		b.WriteString("failed")
	}
	if f.Model != "" {
		fmt.Fprintf(&b, " (model %s)", f.Model)
	}
	if f.Status != 0 {
		fmt.Fprintf(&b, " [HTTP %d]", f.Status)
	}
	if f.ExitCode != 0 {
		fmt.Fprintf(&b, " [exit %d]", f.ExitCode)
	}
	if f.Message != "" {
		b.WriteString(": ")
		b.WriteString(f.Message)
	}
	return b.String()
}

// Unwrap exposes both the taxonomy sentinel and the underlying cause.
func (f *Failure) Unwrap() []error {
	errs := []error{f.kind}
	if f.cause != nil {
		errs = append(errs, f.cause)
	}
	return errs
}

// Kind returns the taxonomy sentinel (ErrAdapterFailure, ErrAuthExpired,
// ErrTimeout or ErrNoCredential).
func (f *Failure) Kind() error { return f.kind }

func newFailure(kind error, adapter, model string) *Failure {
	return &Failure{Adapter: adapter, Model: model, kind: kind}
}

// fromContext turns a context error into a Failure, or returns nil when ctx is live.
func fromContext(ctx context.Context, adapter, model string) *Failure {
	switch err := ctx.Err(); {
	case errors.Is(err, context.DeadlineExceeded):
		f := newFailure(ErrTimeout, adapter, model)
		f.cause = err
		return f
	case err != nil:
		f := newFailure(ErrAdapterFailure, adapter, model)
		f.Message = "request canceled"
		f.cause = err
		return f
	}
	return nil
}

// isAuthMessage reports whether backend text signals an expired or missing login.
func isAuthMessage(s string) bool {
	s = strings.ToLower(s)
	return strings.Contains(s, "authentication") || strings.Contains(s, "login")
}

// Kind classifies err into one of the taxonomy sentinels, or nil.
func Kind(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrTimeout):
		return ErrTimeout
	case errors.Is(err, ErrNoCredential):
		return ErrNoCredential
	case errors.Is(err, ErrAuthExpired):
		return ErrAuthExpired
	case errors.Is(err, ErrAdapterFailure):
		return ErrAdapterFailure
	}
	return nil
}
