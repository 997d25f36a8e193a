// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package score derives a weighted risk score and risk level from an
// analysis record. Category scores arrive on the 0-100 transparency
// scale and are inverted into 0-1 risk before weighting.
package score

import (
	"github.com/fatih/color"

	"policyscan/internal/analysis"
)

// Weights maps category names to their share of the overall risk score.
type Weights map[string]float64

// DefaultWeights spreads the weight evenly across the fixed categories.
func DefaultWeights() Weights {
	w := make(Weights, len(analysis.CategoryNames))
	for _, c := range analysis.CategoryNames {
		w[c] = 1.0 / float64(len(analysis.CategoryNames))
	}
	return w
}

// Thresholds are the risk-level cut points on the 0-1 scale.
type Thresholds struct {
	Low    float64 `yaml:"low"`
	Medium float64 `yaml:"medium"`
	High   float64 `yaml:"high"`
}

// DefaultThresholds match the standard reporting bands.
func DefaultThresholds() Thresholds {
	return Thresholds{Low: 0.3, Medium: 0.6, High: 0.8}
}

// Result is the scored view of one record.
type Result struct {
	OverallScore   float64            `json:"overall_score"`
	RiskLevel      string             `json:"risk_level"`
	CategoryScores map[string]float64 `json:"category_scores"`
	FlagAdjustment float64            `json:"red_flag_adjustment"`
}

// Scorer computes weighted risk scores.
type Scorer struct {
	weights    Weights
	thresholds Thresholds
}

// NewScorer builds a scorer; nil weights or zero thresholds fall back to
// the defaults.
func NewScorer(weights Weights, thresholds Thresholds) *Scorer {
	if len(weights) == 0 {
		weights = DefaultWeights()
	}
	if thresholds == (Thresholds{}) {
		thresholds = DefaultThresholds()
	}
	return &Scorer{weights: weights, thresholds: thresholds}
}

// Score computes the weighted risk for a record: per-category risk is
// the inverted category score, the weighted mean is adjusted upward by
// 5% per red flag capped at 30%, and the total stays within [0,1].
func (s *Scorer) Score(rec *analysis.Record) Result {
	res := Result{CategoryScores: make(map[string]float64, len(rec.Categories))}

	var total, totalWeight float64
	for name, cat := range rec.Categories {
		risk := (100 - cat.Score) / 100
		if risk < 0 {
			risk = 0
		} else if risk > 1 {
			risk = 1
		}
		res.CategoryScores[name] = risk

		weight, ok := s.weights[name]
		if !ok {
			weight = 1.0 / float64(len(analysis.CategoryNames))
		}
		total += risk * weight
		totalWeight += weight
	}

	base := 0.5
	if totalWeight > 0 {
		base = total / totalWeight
	}

	res.FlagAdjustment = float64(len(rec.RedFlags)) * 0.05
	if res.FlagAdjustment > 0.30 {
		res.FlagAdjustment = 0.30
	}
	res.OverallScore = base + res.FlagAdjustment
	if res.OverallScore > 1 {
		res.OverallScore = 1
	}
	res.RiskLevel = s.Level(res.OverallScore)
	return res
}

// Level maps a 0-1 risk score onto its label.
func (s *Scorer) Level(score float64) string {
	switch {
	case score < s.thresholds.Low:
		return "LOW"
	case score < s.thresholds.Medium:
		return "MEDIUM"
	case score < s.thresholds.High:
		return "HIGH"
	default:
		return "CRITICAL"
	}
}

// LevelHex returns the hex color used in rendered reports.
func LevelHex(level string) string {
	switch level {
	case "LOW":
		return "#4CAF50"
	case "MEDIUM":
		return "#FFC107"
	case "HIGH":
		return "#FF9800"
	case "CRITICAL":
		return "#F44336"
	default:
		return "#9E9E9E"
	}
}

// LevelColor returns the terminal color for a risk level.
func LevelColor(level string) *color.Color {
	switch level {
	case "LOW":
		return color.New(color.FgGreen)
	case "MEDIUM":
		return color.New(color.FgYellow)
	case "HIGH":
		return color.New(color.FgHiYellow)
	case "CRITICAL":
		return color.New(color.FgRed, color.Bold)
	default:
		return color.New(color.FgWhite)
	}
}
