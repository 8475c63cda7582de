// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package router

import (
	"fmt"
	"strings"
)

// ============================================================================
// PRIORITY
// ============================================================================

// Priority is the caller's routing intent.
type Priority string

const (
	PriorityNormal        Priority = "normal"
	PriorityUrgent        Priority = "urgent"
	PriorityCostOptimized Priority = "cost-optimized"
	PriorityManual        Priority = "manual"
)

// ParsePriority converts a string to a Priority. Empty means normal.
func ParsePriority(s string) (Priority, error) {
	switch p := Priority(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PriorityNormal, nil
	case PriorityNormal, PriorityUrgent, PriorityCostOptimized, PriorityManual:
		return p, nil
	default:
		return "", fmt.Errorf("unknown priority %q (want normal, urgent, cost-optimized or manual)", s)
	}
}

// ============================================================================
// COMPLEXITY
// ============================================================================

// Complexity is the coarse bucket produced by a Classifier.
type Complexity int

const (
	ComplexityLow Complexity = iota
	ComplexityMedium
	ComplexityHigh
)

// String returns the lower-case name of the bucket.
func (c Complexity) String() string {
	switch c {
	case ComplexityLow:
		return "low"
	case ComplexityMedium:
		return "medium"
	case ComplexityHigh:
		return "high"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (c Complexity) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// ============================================================================
// QUERY / DECISION
// ============================================================================

// Query is the routing-relevant part of an inbound request.
type Query struct {
	Message      string
	SystemPrompt string
	Model        string // explicit model id, optional
	Provider     string // explicit provider, optional
	Priority     Priority
	MaxTokens    int // 0 means the adapter default
}

// Rule identifies which resolution step produced a decision.
type Rule int

const (
	RuleManualModel Rule = iota + 1
	RuleManualProvider
	RuleExplicitModel
	RuleProvider
	RuleAutomatic
)

// String returns a short name for logs and CLI output.
func (r Rule) String() string {
	switch r {
	case RuleManualModel:
		return "manual-model"
	case RuleManualProvider:
		return "manual-provider"
	case RuleExplicitModel:
		return "explicit-model"
	case RuleProvider:
		return "provider"
	case RuleAutomatic:
		return "automatic"
	default:
		return "unknown"
	}
}

// Decision is the outcome of Route.
type Decision struct {
	Model      string
	Rule       Rule
	Complexity Complexity
	Classified bool // whether Complexity came from the classifier
	Available  bool // whether the chosen model passed the Availability Checker
	Reason     string
}
