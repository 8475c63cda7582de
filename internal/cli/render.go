// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"
	"github.com/shopspring/decimal"

	"github.com/jeranaias/rigrun-router/internal/util"
)

// =============================================================================
// TABLES
// =============================================================================

// Table is a plain column table.
type Table struct {
	Headers []string
	Rows    [][]string
	// MaxWidth caps each column; wider cells are truncated. 0 means no cap.
	MaxWidth int
}

// Render lays the table out with display-width aware padding.
func (t Table) Render(s Styles) string {
	widths := make([]int, len(t.Headers))
	cell := func(v string) string {
		if t.MaxWidth > 0 {
			return util.TruncateWidth(v, t.MaxWidth)
		}
		return v
	}
	for i, h := range t.Headers {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, row := range t.Rows {
		for i := 0; i < len(row) && i < len(widths); i++ {
			if w := runewidth.StringWidth(cell(row[i])); w > widths[i] {
				widths[i] = w
			}
		}
	}

	var b strings.Builder
	for i, h := range t.Headers {
		if i > 0 {
			b.WriteString("  ")
		}
		b.WriteString(s.Header.Render(util.PadWidth(h, widths[i])))
	}
	b.WriteString("\n")
	for i, w := range widths {
		if i > 0 {
			b.WriteString("  ")
		}
		b.WriteString(s.Dim.Render(strings.Repeat("-", w)))
	}
	b.WriteString("\n")
	for _, row := range t.Rows {
		for i := range widths {
			if i > 0 {
				b.WriteString("  ")
			}
			v := ""
			if i < len(row) {
				v = cell(row[i])
			}
			if i == len(widths)-1 {
				b.WriteString(v)
			} else {
				b.WriteString(util.PadWidth(v, widths[i]))
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

// =============================================================================
// FORMATTING
// =============================================================================

// formatTokens renders 1234567 as "1,234,567".
func formatTokens(n int) string {
	return humanize.Comma(int64(n))
}

// formatCost renders a dollar amount with enough precision for sub-cent costs.
func formatCost(d decimal.Decimal) string {
	if d.IsZero() {
		return "$0"
	}
	if d.Abs().LessThan(decimal.NewFromFloat(0.01)) {
		return "$" + d.StringFixed(6)
	}
	return "$" + d.StringFixed(4)
}

// formatPerMillion renders a per-million-token price.
func formatPerMillion(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}

// formatSeconds renders processing time.
func formatSeconds(s float64) string {
	return fmt.Sprintf("%.2fs", s)
}
