// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Analytics aggregates a set of entries.
type Analytics struct {
	TotalQueries          int             `json:"total_queries"`
	FailedQueries         int             `json:"failed_queries"`
	TotalTokens           int             `json:"total_tokens"`
	TotalCost             decimal.Decimal `json:"total_cost"`
	AverageProcessingTime float64         `json:"average_processing_time"`
	ModelUsage            map[string]int  `json:"model_usage"`
	Daily                 []DailyUsage    `json:"daily"`
	RecentQueries         []Entry         `json:"recent_queries"`
}

// DailyUsage is one calendar day (UTC) of activity.
type DailyUsage struct {
	Date    string          `json:"date"`
	Queries int             `json:"queries"`
	Tokens  int             `json:"tokens"`
	Cost    decimal.Decimal `json:"cost"`
}

// DefaultRecent is how many recent entries Summarize keeps.
const DefaultRecent = 10

// Summarize aggregates entries (oldest first) and keeps the newest recent of them.
func Summarize(entries []Entry, recent int) Analytics {
	a := Analytics{
		TotalCost:     decimal.Zero,
		ModelUsage:    make(map[string]int),
		Daily:         make([]DailyUsage, 0),
		RecentQueries: make([]Entry, 0),
	}
	if len(entries) == 0 {
		return a
	}

	var seconds float64
	days := make(map[string]*DailyUsage)
	for _, e := range entries {
		a.TotalQueries++
		if e.Failed() {
			a.FailedQueries++
		}
		a.TotalTokens += e.TotalTokens
		a.TotalCost = a.TotalCost.Add(e.Cost)
		a.ModelUsage[e.Model]++
		seconds += e.ProcessingSeconds

		key := e.Timestamp.UTC().Format(time.DateOnly)
		d, ok := days[key]
		if !ok {
			d = &DailyUsage{Date: key, Cost: decimal.Zero}
			days[key] = d
		}
		d.Queries++
		d.Tokens += e.TotalTokens
		d.Cost = d.Cost.Add(e.Cost)
	}
	a.AverageProcessingTime = seconds / float64(a.TotalQueries)

	for _, d := range days {
		a.Daily = append(a.Daily, *d)
	}
	sort.Slice(a.Daily, func(i, j int) bool { return a.Daily[i].Date < a.Daily[j].Date })

	if recent <= 0 {
		recent = DefaultRecent
	}
	from := max(len(entries)-recent, 0)
	// Newest first.
	for i := len(entries) - 1; i >= from; i-- {
		a.RecentQueries = append(a.RecentQueries, entries[i])
	}
	return a
}
