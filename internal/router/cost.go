// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package router

import (
	"fmt"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/jeranaias/rigrun-router/internal/catalog"
)

// DefaultMarkup is the platform markup applied on top of token prices (10%).
var DefaultMarkup = decimal.RequireFromString("0.10")

// ============================================================================
// TOKEN ESTIMATION
// ============================================================================

// EstimateTokens approximates a token count at ~4 characters per token. Used
// when a backend reports no usage.
func EstimateTokens(text string) int {
	return utf8.RuneCountInString(text) / 4
}

// ============================================================================
// COST CALCULATOR
// ============================================================================

// CostCalculator prices token usage with a fixed markup in exact decimal.
type CostCalculator struct {
	catalog *catalog.Catalog
	markup  decimal.Decimal
}

// NewCostCalculator creates a calculator. A negative markup is treated as zero.
func NewCostCalculator(cat *catalog.Catalog, markup decimal.Decimal) *CostCalculator {
	if markup.IsNegative() {
		markup = decimal.Zero
	}
	return &CostCalculator{catalog: cat, markup: markup}
}

// Markup returns the configured markup fraction.
func (c *CostCalculator) Markup() decimal.Decimal {
	return c.markup
}

// Cost returns (in*inputCost + out*outputCost) * (1 + markup).
func (c *CostCalculator) Cost(modelID string, inputTokens, outputTokens int) (decimal.Decimal, error) {
	m, err := c.catalog.Get(modelID)
	if err != nil {
		return decimal.Zero, err
	}
	if inputTokens < 0 || outputTokens < 0 {
		return decimal.Zero, fmt.Errorf("negative token count: in=%d out=%d", inputTokens, outputTokens)
	}
	base := m.InputCost.Mul(decimal.NewFromInt(int64(inputTokens))).
		Add(m.OutputCost.Mul(decimal.NewFromInt(int64(outputTokens))))
	return base.Mul(decimal.NewFromInt(1).Add(c.markup)), nil
}

// MarkupPercent returns the markup as a whole-number percentage string ("10").
func (c *CostCalculator) MarkupPercent() string {
	return c.markup.Mul(decimal.NewFromInt(100)).String()
}
