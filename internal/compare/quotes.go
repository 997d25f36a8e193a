// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package compare

import (
	"sort"

	"policyscan/internal/analysis"
)

// Quote is a research quote attributed to its source document.
type Quote struct {
	AppName      string `json:"app_name"`
	Finding      string `json:"finding"`
	Quote        string `json:"quote"`
	Significance string `json:"significance"`
}

// DefaultQuotesPerTheme caps each theme's quote list.
const DefaultQuotesPerTheme = 5

var significanceRank = map[string]int{
	"high":   0,
	"medium": 1,
	"low":    2,
}

// extractQuotes gathers quotable findings across the batch, groups them
// by category theme, orders each theme by significance (high first, app
// name breaking ties), and caps each theme at perTheme entries.
func extractQuotes(records []*analysis.Record, perTheme int) map[string][]Quote {
	if perTheme <= 0 {
		perTheme = DefaultQuotesPerTheme
	}

	byTheme := make(map[string][]Quote)
	for _, rec := range records {
		for _, f := range rec.QuotableFindings {
			theme := f.Category
			if theme == "" {
				theme = "general"
			}
			byTheme[theme] = append(byTheme[theme], Quote{
				AppName:      rec.AppName,
				Finding:      f.Finding,
				Quote:        f.Quote,
				Significance: f.Significance,
			})
		}
	}

	for theme, quotes := range byTheme {
		sort.Slice(quotes, func(a, b int) bool {
			ra, rb := rankOf(quotes[a].Significance), rankOf(quotes[b].Significance)
			if ra != rb {
				return ra < rb
			}
			if quotes[a].AppName != quotes[b].AppName {
				return quotes[a].AppName < quotes[b].AppName
			}
			return quotes[a].Quote < quotes[b].Quote
		})
		if len(quotes) > perTheme {
			quotes = quotes[:perTheme]
		}
		byTheme[theme] = quotes
	}
	return byTheme
}

// rankOf treats an unknown significance as less notable than "low".
func rankOf(significance string) int {
	if r, ok := significanceRank[significance]; ok {
		return r
	}
	return len(significanceRank)
}
