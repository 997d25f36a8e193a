// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package score

import (
	"math"
	"testing"

	"policyscan/internal/analysis"
)

func scoredRecord(catScore float64, flags int) *analysis.Record {
	cats := make(map[string]analysis.Category, len(analysis.CategoryNames))
	for _, c := range analysis.CategoryNames {
		cats[c] = analysis.Category{Score: catScore}
	}
	rec := &analysis.Record{AppName: "app", Categories: cats}
	for i := 0; i < flags; i++ {
		rec.RedFlags = append(rec.RedFlags, analysis.RedFlag{
			Finding:  "flag",
			Severity: analysis.SeverityMedium,
			Category: "data_usage",
		})
	}
	return rec
}

func TestScoreInvertsCategoryScale(t *testing.T) {
	s := NewScorer(nil, Thresholds{})

	res := s.Score(scoredRecord(80, 0))
	if math.Abs(res.OverallScore-0.2) > 1e-9 {
		t.Errorf("category score 80 should yield risk 0.2, got %.3f", res.OverallScore)
	}
	if res.RiskLevel != "LOW" {
		t.Errorf("expected LOW, got %s", res.RiskLevel)
	}
}

func TestRedFlagAdjustmentIsCapped(t *testing.T) {
	s := NewScorer(nil, Thresholds{})

	res := s.Score(scoredRecord(80, 10))
	if math.Abs(res.FlagAdjustment-0.30) > 1e-9 {
		t.Errorf("adjustment should cap at 0.30, got %.2f", res.FlagAdjustment)
	}
	if math.Abs(res.OverallScore-0.5) > 1e-9 {
		t.Errorf("expected 0.5, got %.3f", res.OverallScore)
	}
}

func TestScoreNeverExceedsOne(t *testing.T) {
	s := NewScorer(nil, Thresholds{})

	res := s.Score(scoredRecord(0, 10))
	if res.OverallScore > 1 {
		t.Errorf("score escaped [0,1]: %.3f", res.OverallScore)
	}
	if res.RiskLevel != "CRITICAL" {
		t.Errorf("expected CRITICAL, got %s", res.RiskLevel)
	}
}

func TestLevelBands(t *testing.T) {
	s := NewScorer(nil, Thresholds{})
	cases := []struct {
		score float64
		want  string
	}{
		{0.1, "LOW"},
		{0.3, "MEDIUM"},
		{0.6, "HIGH"},
		{0.8, "CRITICAL"},
		{0.95, "CRITICAL"},
	}
	for _, c := range cases {
		if got := s.Level(c.score); got != c.want {
			t.Errorf("Level(%.2f) = %s, want %s", c.score, got, c.want)
		}
	}
}

func TestWeightedScoreRespectsWeights(t *testing.T) {
	weights := DefaultWeights()
	weights["third_party_sharing"] = 0.5

	rec := scoredRecord(80, 0)
	cat := rec.Categories["third_party_sharing"]
	cat.Score = 20 // risk 0.8 on the heavy category
	rec.Categories["third_party_sharing"] = cat

	res := NewScorer(weights, Thresholds{}).Score(rec)
	if res.OverallScore <= 0.2 {
		t.Errorf("heavy weight on risky category should raise the score, got %.3f", res.OverallScore)
	}
}

func TestLevelHexFallback(t *testing.T) {
	if LevelHex("UNKNOWN") != "#9E9E9E" {
		t.Error("unknown level should map to the neutral color")
	}
}
