// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package compare

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"policyscan/internal/analysis"
)

func batchRecord(name string, base float64) *analysis.Record {
	cats := make(map[string]analysis.Category, len(analysis.CategoryNames))
	for i, c := range analysis.CategoryNames {
		cats[c] = analysis.Category{
			Score:       base + float64(i),
			KeyFindings: []string{"finding for " + c},
		}
	}
	return &analysis.Record{
		AppName:                  name,
		Summary:                  "mentions HIPAA and data retention periods",
		Categories:               cats,
		OverallRiskScore:         100 - base,
		OverallTransparencyScore: base,
		ConfidenceScore:          75,
		RedFlags: []analysis.RedFlag{
			{Finding: "vague sharing terms", Severity: analysis.SeverityMedium, Category: "third_party_sharing", Quote: "we may share data"},
		},
		QuotableFindings: []analysis.QuotableFinding{
			{Category: "data_usage", Finding: "broad usage clause", Quote: "any purpose we deem fit", Significance: "high"},
		},
	}
}

func TestQuartilesNonOverlappingOnEight(t *testing.T) {
	var records []*analysis.Record
	for i := 0; i < 8; i++ {
		records = append(records, batchRecord(fmt.Sprintf("app-%d", i), float64(30+5*i)))
	}

	report := BuildReport(records, DefaultConfig())
	best := report.BestPractices["data_collection"]
	worst := report.WorstPractices["data_collection"]

	require.NotEmpty(t, best)
	require.NotEmpty(t, worst)
	assert.LessOrEqual(t, len(best)+len(worst), 4, "union must cover at most half the batch")

	seen := make(map[string]bool)
	for _, p := range best {
		seen[p.AppName] = true
	}
	for _, p := range worst {
		assert.False(t, seen[p.AppName], "best and worst quartiles overlap on %s", p.AppName)
	}
	// Highest scorer leads best, lowest leads worst.
	assert.Equal(t, "app-7", best[0].AppName)
	assert.Equal(t, "app-0", worst[0].AppName)
}

func TestClusteringDegradesGracefully(t *testing.T) {
	records := []*analysis.Record{
		batchRecord("a", 30),
		batchRecord("b", 50),
		batchRecord("c", 80),
	}

	report := BuildReport(records, Config{ClusterCount: 5})
	assert.Equal(t, 5, report.Clusters.Requested)
	assert.LessOrEqual(t, report.Clusters.Effective, 3)

	total := 0
	for _, c := range report.Clusters.Clusters {
		total += c.Size
	}
	assert.Equal(t, 3, total, "every document must land in a cluster")
}

func TestReportIsOrderIndependent(t *testing.T) {
	forward := []*analysis.Record{batchRecord("a", 30), batchRecord("b", 50), batchRecord("c", 70), batchRecord("d", 90)}
	reversed := []*analysis.Record{forward[3], forward[1], forward[2], forward[0]}

	r1 := BuildReport(forward, DefaultConfig())
	r2 := BuildReport(reversed, DefaultConfig())

	assert.Equal(t, r1.AppNames, r2.AppNames)
	assert.Equal(t, r1.Rankings, r2.Rankings)
	assert.Equal(t, r1.OverallRisk, r2.OverallRisk)
	assert.Equal(t, r1.Clusters, r2.Clusters)
	assert.Equal(t, r1.BestPractices, r2.BestPractices)
}

func TestPearsonInsufficientSample(t *testing.T) {
	c := pearson([]float64{1, 2}, []float64{2, 4}, MinCorrelationSample)
	assert.True(t, c.InsufficientSample)
	assert.Zero(t, c.Coefficient)
}

func TestPearsonPerfectCorrelation(t *testing.T) {
	c := pearson([]float64{1, 2, 3, 4}, []float64{2, 4, 6, 8}, MinCorrelationSample)
	require.False(t, c.InsufficientSample)
	assert.InDelta(t, 1.0, c.Coefficient, 1e-9)
	assert.Equal(t, 4, c.SampleSize)
}

func TestPointBiserialKnownValue(t *testing.T) {
	c := pointBiserial([]bool{true, true, false, false}, []float64{10, 10, 0, 0}, MinCorrelationSample)
	require.False(t, c.InsufficientSample)
	assert.InDelta(t, 1.0, c.Coefficient, 1e-9)
}

func TestPointBiserialOneSidedIndicator(t *testing.T) {
	c := pointBiserial([]bool{true, true, true}, []float64{1, 2, 3}, MinCorrelationSample)
	assert.True(t, c.InsufficientSample)
}

func TestMinCorrelationSampleConfigurable(t *testing.T) {
	records := []*analysis.Record{
		batchRecord("a", 30), batchRecord("b", 45),
		batchRecord("c", 60), batchRecord("d", 75),
	}

	loose := BuildReport(records, DefaultConfig())
	require.False(t, loose.Correlations["transparency_vs_risk"].InsufficientSample)

	tight := BuildReport(records, Config{ClusterCount: 2, MinCorrelationSample: 5})
	c := tight.Correlations["transparency_vs_risk"]
	assert.True(t, c.InsufficientSample, "raised minimum should suppress the coefficient for n=4")
	assert.Equal(t, 4, c.SampleSize)
}

func TestGapAnalysisPercentages(t *testing.T) {
	with := batchRecord("with-hipaa", 60)
	without := batchRecord("no-mention", 60)
	without.Summary = "says nothing relevant"
	for _, c := range analysis.CategoryNames {
		cat := without.Categories[c]
		cat.KeyFindings = []string{"generic"}
		without.Categories[c] = cat
	}
	without.RedFlags = nil
	without.PositivePractices = nil

	report := BuildReport([]*analysis.Record{with, without}, DefaultConfig())
	var hipaa *GapResult
	for i := range report.GapAnalysis {
		if report.GapAnalysis[i].Name == "hipaa_mentioned" {
			hipaa = &report.GapAnalysis[i]
		}
	}
	require.NotNil(t, hipaa)
	assert.Equal(t, 1, hipaa.Count)
	assert.InDelta(t, 50.0, hipaa.Percentage, 1e-9)
}

func TestQuoteExtractionCapsAndOrders(t *testing.T) {
	rec := batchRecord("quoter", 50)
	rec.QuotableFindings = []analysis.QuotableFinding{
		{Category: "data_usage", Finding: "low one", Quote: "q1", Significance: "low"},
		{Category: "data_usage", Finding: "high one", Quote: "q2", Significance: "high"},
		{Category: "data_usage", Finding: "medium one", Quote: "q3", Significance: "medium"},
	}

	quotes := extractQuotes([]*analysis.Record{rec}, 2)
	got := quotes["data_usage"]
	require.Len(t, got, 2)
	assert.Equal(t, "high", got[0].Significance)
	assert.Equal(t, "medium", got[1].Significance)
}

func TestRankingsUseNameTieBreak(t *testing.T) {
	a := batchRecord("alpha", 50)
	b := batchRecord("beta", 50)
	ranked := rankByMetric([]string{b.AppName, a.AppName}, []float64{50, 50})
	require.Len(t, ranked, 2)
	assert.Equal(t, "alpha", ranked[0].AppName)
	assert.Equal(t, 1, ranked[0].Rank)
}

func TestRedFlagPatternCounts(t *testing.T) {
	records := []*analysis.Record{batchRecord("a", 40), batchRecord("b", 60), batchRecord("c", 80)}
	report := BuildReport(records, DefaultConfig())

	assert.Equal(t, 3, report.RedFlags.TotalFlags)
	assert.Equal(t, 1, report.RedFlags.UniqueFlags)
	assert.Equal(t, 3, report.RedFlags.BySeverity[analysis.SeverityMedium])
	require.NotEmpty(t, report.RedFlags.MostCommon)
	assert.Equal(t, 3, report.RedFlags.MostCommon[0].Count)
}
