// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// =============================================================================
// TERMINAL DETECTION
// =============================================================================

// IsTTY reports whether stdin is a terminal.
func IsTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// isTerminal reports whether w is a terminal file.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// terminalWidth returns w's width, or 80.
func terminalWidth(w io.Writer) int {
	if f, ok := w.(*os.File); ok {
		if width, _, err := term.GetSize(int(f.Fd())); err == nil && width > 0 {
			return width
		}
	}
	return 80
}

// ColorProfile honours NO_COLOR and FORCE_COLOR, then asks termenv about w.
func ColorProfile(w io.Writer) termenv.Profile {
	if os.Getenv("NO_COLOR") != "" {
		return termenv.Ascii
	}
	if os.Getenv("FORCE_COLOR") != "" {
		return termenv.ANSI256
	}
	if !isTerminal(w) {
		return termenv.Ascii
	}
	return termenv.NewOutput(w).Profile
}

// =============================================================================
// SHARED STYLES
// =============================================================================

// Styles are rendered through a per-output renderer so piped output stays plain.
type Styles struct {
	Title   lipgloss.Style
	Header  lipgloss.Style
	Label   lipgloss.Style
	Value   lipgloss.Style
	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Dim     lipgloss.Style
	Cost    lipgloss.Style
	Tokens  lipgloss.Style
}

// NewStyles builds the palette for w.
func NewStyles(w io.Writer) Styles {
	r := lipgloss.NewRenderer(w)
	r.SetColorProfile(ColorProfile(w))

	return Styles{
		Title:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		Header:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("255")),
		Label:   r.NewStyle().Foreground(lipgloss.Color("245")).Width(20),
		Value:   r.NewStyle().Foreground(lipgloss.Color("252")),
		Success: r.NewStyle().Bold(true).Foreground(lipgloss.Color("42")),
		Error:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
		Warning: r.NewStyle().Foreground(lipgloss.Color("214")),
		Dim:     r.NewStyle().Foreground(lipgloss.Color("242")),
		Cost:    r.NewStyle().Foreground(lipgloss.Color("42")),
		Tokens:  r.NewStyle().Foreground(lipgloss.Color("75")),
	}
}
