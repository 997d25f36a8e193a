// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package validate

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/montanaflynn/stats"

	"policyscan/internal/analysis"
)

const (
	// DefaultAnomalyThreshold is the z-score magnitude past which a
	// value is flagged as an outlier. With population z-scores a lone
	// outlier among n records reaches at most sqrt(n-1), so a single
	// extreme value cannot clear 3.0 until the batch has at least 11
	// records.
	DefaultAnomalyThreshold = 3.0
	// MinAnomalySample is the smallest batch for which anomaly
	// detection runs; below it the metric is skipped and reported.
	MinAnomalySample = 3
)

// Anomaly marks one record as a statistical outlier on one metric.
type Anomaly struct {
	SubjectID string  `json:"subject_id"`
	Value     float64 `json:"value"`
	ZScore    float64 `json:"z_score"`
	Deviation string  `json:"deviation"` // "high" or "low"
}

// BatchResult aggregates per-record validation with batch-level anomaly
// detection. Anomalies are keyed by metric name.
type BatchResult struct {
	Results        []Result             `json:"results"`
	TotalRecords   int                  `json:"total_records"`
	ValidRecords   int                  `json:"valid_records"`
	InvalidRecords int                  `json:"invalid_records"`
	WarningCount   int                  `json:"warning_count"`
	Anomalies      map[string][]Anomaly `json:"anomalies,omitempty"`
	Skipped        []Issue              `json:"skipped,omitempty"`
}

// BatchOptions extends Options with anomaly tuning.
type BatchOptions struct {
	Options
	// AnomalyThreshold is the z-score cutoff. Zero means
	// DefaultAnomalyThreshold.
	AnomalyThreshold float64
	// MinSample is the smallest batch scanned for anomalies. Zero
	// means MinAnomalySample.
	MinSample int
}

func (o BatchOptions) threshold() float64 {
	if o.AnomalyThreshold <= 0 {
		return DefaultAnomalyThreshold
	}
	return o.AnomalyThreshold
}

func (o BatchOptions) minSample() int {
	if o.MinSample <= 0 {
		return MinAnomalySample
	}
	return o.MinSample
}

// ValidateBatch validates every record, then scans each numeric metric
// across the batch for z-score outliers. Detection uses the population
// standard deviation and is skipped for metrics with fewer observations
// than the minimum sample or with zero spread.
func ValidateBatch(records []*analysis.Record, opts BatchOptions) BatchResult {
	batch := BatchResult{
		TotalRecords: len(records),
		Anomalies:    make(map[string][]Anomaly),
	}

	for _, rec := range records {
		res := ValidateRecord(rec, opts.Options)
		batch.Results = append(batch.Results, res)
		if res.IsValid {
			batch.ValidRecords++
		} else {
			batch.InvalidRecords++
		}
		batch.WarningCount += len(res.Warnings)
	}

	for _, metric := range metricNames() {
		var ids []string
		var values []float64
		for _, rec := range records {
			if rec == nil {
				continue
			}
			if v, ok := metricValue(rec, metric); ok {
				ids = append(ids, rec.AppName)
				values = append(values, v)
			}
		}
		if len(values) < opts.minSample() {
			batch.Skipped = append(batch.Skipped, Issue{
				Code:    CodeInsufficientSample,
				Field:   metric,
				Message: fmt.Sprintf("anomaly detection skipped: %d samples, need %d", len(values), opts.minSample()),
			})
			continue
		}

		mean, _ := stats.Mean(values)
		std, _ := stats.StandardDeviationPopulation(values)
		if std == 0 || math.IsNaN(std) {
			continue
		}

		for i, v := range values {
			z := (v - mean) / std
			if math.Abs(z) <= opts.threshold() {
				continue
			}
			deviation := "high"
			if z < 0 {
				deviation = "low"
			}
			batch.Anomalies[metric] = append(batch.Anomalies[metric], Anomaly{
				SubjectID: ids[i],
				Value:     v,
				ZScore:    z,
				Deviation: deviation,
			})
		}
	}
	if len(batch.Anomalies) == 0 {
		batch.Anomalies = nil
	}
	return batch
}

// metricNames returns the scanned metrics in a stable order.
func metricNames() []string {
	names := []string{
		"overall_risk_score",
		"overall_transparency_score",
		"confidence_score",
		"red_flag_count",
	}
	cats := make([]string, len(analysis.CategoryNames))
	copy(cats, analysis.CategoryNames)
	sort.Strings(cats)
	for _, c := range cats {
		names = append(names, "category:"+c)
	}
	return names
}

func metricValue(rec *analysis.Record, metric string) (float64, bool) {
	switch metric {
	case "overall_risk_score":
		return rec.OverallRiskScore, true
	case "overall_transparency_score":
		return rec.OverallTransparencyScore, true
	case "confidence_score":
		return rec.ConfidenceScore, true
	case "red_flag_count":
		return float64(len(rec.RedFlags)), true
	}
	if name, ok := strings.CutPrefix(metric, "category:"); ok {
		if cat, present := rec.Categories[name]; present {
			return cat.Score, true
		}
	}
	return 0, false
}
