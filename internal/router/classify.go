// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package router

import (
	"strings"
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Classifier buckets message text into a complexity level.
type Classifier interface {
	Classify(message string) Complexity
}

// Keywords are the phrase lists checked by KeywordClassifier, one per tier.
type Keywords struct {
	High   []string `toml:"high" json:"high"`
	Medium []string `toml:"medium" json:"medium"`
	Low    []string `toml:"low" json:"low"`
}

// DefaultKeywords returns the stock phrase lists.
func DefaultKeywords() Keywords {
	return Keywords{
		High:   []string{"analyze", "comprehensive", "detailed analysis", "architecture", "implementation", "strategy"},
		Medium: []string{"explain", "compare", "describe", "how to"},
		Low:    []string{"what is", "define", "list", "simple"},
	}
}

// KeywordClassifier is a substring heuristic, not a language model. The text is
// lower-cased and the tiers are checked high, then medium, then low; the first
// tier with any hit wins and no hit means medium. Bucket boundaries are relied
// on by routing, so changing the lists changes which models get picked.
type KeywordClassifier struct {
	mu       sync.RWMutex
	keywords Keywords
}

// NewKeywordClassifier creates a classifier over the given lists.
func NewKeywordClassifier(k Keywords) *KeywordClassifier {
	c := &KeywordClassifier{}
	c.SetKeywords(k)
	return c
}

// SetKeywords swaps the phrase lists. Safe to call while classifying.
func (c *KeywordClassifier) SetKeywords(k Keywords) {
	norm := Keywords{
		High:   normalizeKeywords(k.High),
		Medium: normalizeKeywords(k.Medium),
		Low:    normalizeKeywords(k.Low),
	}
	c.mu.Lock()
	c.keywords = norm
	c.mu.Unlock()
}

// Keywords returns a copy of the current lists.
func (c *KeywordClassifier) Keywords() Keywords {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Keywords{
		High:   append([]string(nil), c.keywords.High...),
		Medium: append([]string(nil), c.keywords.Medium...),
		Low:    append([]string(nil), c.keywords.Low...),
	}
}

// Classify implements Classifier.
func (c *KeywordClassifier) Classify(message string) Complexity {
	text := lower(message)

	c.mu.RLock()
	defer c.mu.RUnlock()

	switch {
	case containsAny(text, c.keywords.High):
		return ComplexityHigh
	case containsAny(text, c.keywords.Medium):
		return ComplexityMedium
	case containsAny(text, c.keywords.Low):
		return ComplexityLow
	default:
		return ComplexityMedium
	}
}

func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}

// lower uses a fresh Caser per call; Casers are not safe for concurrent use.
func lower(s string) string {
	return cases.Lower(language.Und).String(s)
}

func normalizeKeywords(in []string) []string {
	out := make([]string, 0, len(in))
	for _, k := range in {
		if k = strings.TrimSpace(lower(k)); k != "" {
			out = append(out, k)
		}
	}
	return out
}
