// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jeranaias/rigrun-router/internal/util"
)

// MaxMessageRunes is how much of a query message an Entry keeps.
const MaxMessageRunes = 200

// DefaultHistorySize is the Ring capacity used when none is configured.
const DefaultHistorySize = 1000

// Entry is one completed query attempt.
type Entry struct {
	QueryID           string          `json:"query_id"`
	UserID            string          `json:"user_id"`
	Message           string          `json:"message"`
	Model             string          `json:"model"`
	Rule              string          `json:"rule,omitempty"`
	TotalTokens       int             `json:"tokens_used"`
	ProcessingSeconds float64         `json:"processing_time"`
	Cost              decimal.Decimal `json:"cost"`
	ErrorKind         string          `json:"error,omitempty"`
	Timestamp         time.Time       `json:"timestamp"`
}

// Failed reports whether the attempt ended in an adapter error.
func (e Entry) Failed() bool { return e.ErrorKind != "" }

// Filter narrows Entries. Zero values match everything.
type Filter struct {
	UserID string
	Since  time.Time
	Limit  int // newest Limit entries
}

func (f Filter) match(e Entry) bool {
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	return true
}

// History is an append-only log of query attempts.
type History interface {
	Record(ctx context.Context, e Entry) error
	// Entries returns matching entries oldest first.
	Entries(ctx context.Context, f Filter) ([]Entry, error)
}

// Truncate prepares e for storage.
func Truncate(e Entry) Entry {
	e.Message = util.TruncateRunes(e.Message, MaxMessageRunes)
	return e
}

// =============================================================================
// RING
// =============================================================================

// Ring is a fixed-capacity History that overwrites its oldest entry when full.
type Ring struct {
	mu    sync.RWMutex
	buf   []Entry
	next  int
	count int
}

// NewRing creates a ring holding up to size entries.
func NewRing(size int) *Ring {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &Ring{buf: make([]Entry, size)}
}

// Record implements History.
func (r *Ring) Record(_ context.Context, e Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buf[r.next] = Truncate(e)
	r.next = (r.next + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
	return nil
}

// Entries implements History.
func (r *Ring) Entries(_ context.Context, f Filter) ([]Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	start := (r.next - r.count + len(r.buf)) % len(r.buf)
	out := make([]Entry, 0, r.count)
	for i := 0; i < r.count; i++ {
		e := r.buf[(start+i)%len(r.buf)]
		if f.match(e) {
			out = append(out, e)
		}
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[len(out)-f.Limit:]
	}
	return out, nil
}

// Len returns the number of retained entries.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

// Cap returns the ring capacity.
func (r *Ring) Cap() int { return len(r.buf) }
