// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package compare

import (
	"sort"

	"github.com/montanaflynn/stats"
)

// MetricStats are the descriptive statistics for one metric across the
// batch. Std is the population standard deviation; percentiles use the
// stats package's fixed interpolation rule so re-runs are reproducible.
type MetricStats struct {
	Count       int                `json:"count"`
	Mean        float64            `json:"mean"`
	Median      float64            `json:"median"`
	Std         float64            `json:"std"`
	Min         float64            `json:"min"`
	Max         float64            `json:"max"`
	Percentiles map[string]float64 `json:"percentiles"`
}

// describe computes MetricStats for a value set. Empty input yields a
// zero-count result rather than NaNs.
func describe(values []float64) MetricStats {
	if len(values) == 0 {
		return MetricStats{}
	}
	mean, _ := stats.Mean(values)
	median, _ := stats.Median(values)
	std, _ := stats.StandardDeviationPopulation(values)
	min, _ := stats.Min(values)
	max, _ := stats.Max(values)

	pct := make(map[string]float64, 4)
	for _, p := range []float64{25, 50, 75, 90} {
		v, err := stats.Percentile(values, p)
		if err != nil {
			v = median
		}
		pct[key(p)] = v
	}
	return MetricStats{
		Count:       len(values),
		Mean:        mean,
		Median:      median,
		Std:         std,
		Min:         min,
		Max:         max,
		Percentiles: pct,
	}
}

func key(p float64) string {
	switch p {
	case 25:
		return "25"
	case 50:
		return "50"
	case 75:
		return "75"
	default:
		return "90"
	}
}

// RankedEntry is one row of a ranking table.
type RankedEntry struct {
	Rank       int     `json:"rank"`
	AppName    string  `json:"app_name"`
	Value      float64 `json:"value"`
	Percentile float64 `json:"percentile"`
}

// rankByMetric sorts descending by value, breaking ties by app name so
// the table is identical across re-runs on the same batch.
func rankByMetric(names []string, values []float64) []RankedEntry {
	if len(values) == 0 || len(names) != len(values) {
		return nil
	}
	entries := make([]RankedEntry, len(values))
	for i := range values {
		entries[i] = RankedEntry{AppName: names[i], Value: values[i]}
	}
	sort.Slice(entries, func(a, b int) bool {
		if entries[a].Value != entries[b].Value {
			return entries[a].Value > entries[b].Value
		}
		return entries[a].AppName < entries[b].AppName
	})
	for i := range entries {
		entries[i].Rank = i + 1
		entries[i].Percentile = percentileOfScore(values, entries[i].Value)
	}
	return entries
}

// percentileOfScore reports the share of batch values at or below v.
func percentileOfScore(values []float64, v float64) float64 {
	atOrBelow := 0
	for _, x := range values {
		if x <= v {
			atOrBelow++
		}
	}
	return float64(atOrBelow) / float64(len(values)) * 100
}

// Performer is one document in a best- or worst-quartile list.
type Performer struct {
	AppName  string   `json:"app_name"`
	Score    float64  `json:"score"`
	Findings []string `json:"findings,omitempty"`
}

// quartiles partitions one category's scores into the top and bottom
// quarter of the batch. Ties are broken by app name; the two lists never
// overlap, and together they cover at most half the batch.
func quartiles(entries []Performer) (best, worst []Performer) {
	n := len(entries)
	if n < 2 {
		return nil, nil
	}
	sorted := make([]Performer, n)
	copy(sorted, entries)
	sort.Slice(sorted, func(a, b int) bool {
		if sorted[a].Score != sorted[b].Score {
			return sorted[a].Score > sorted[b].Score
		}
		return sorted[a].AppName < sorted[b].AppName
	})

	k := n / 4
	if k < 1 {
		k = 1
	}
	best = append(best, sorted[:k]...)
	worst = append(worst, sorted[n-k:]...)
	// Reverse worst so the lowest score leads its list.
	for i, j := 0, len(worst)-1; i < j; i, j = i+1, j-1 {
		worst[i], worst[j] = worst[j], worst[i]
	}
	return best, worst
}
