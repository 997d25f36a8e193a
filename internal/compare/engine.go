// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package compare turns a batch of validated analysis records into the
// comparative report: descriptive statistics, correlations, clusters,
// gap analysis, red-flag patterns, quartile performer lists, research
// quotes, and recommendations. Everything here is a pure function of the
// input batch; the same records and config always produce the same
// report, regardless of the order the documents were analyzed in.
package compare

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"policyscan/internal/analysis"
)

// Config tunes the comparative engine.
type Config struct {
	// ClusterCount is the requested number of k-means groups.
	ClusterCount int
	// QuotesPerTheme caps each theme's research-quote list.
	QuotesPerTheme int
	// MinCorrelationSample overrides the smallest batch for which
	// correlation coefficients are reported. Zero means the package
	// default.
	MinCorrelationSample int
}

// DefaultConfig mirrors the batch defaults used by the workflow.
func DefaultConfig() Config {
	return Config{ClusterCount: 3, QuotesPerTheme: DefaultQuotesPerTheme}
}

// GapResult reports how much of the batch satisfies one named predicate.
type GapResult struct {
	Name       string  `json:"name"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// FlagFrequency is one red-flag finding with its batch frequency.
type FlagFrequency struct {
	Finding    string  `json:"finding"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// RedFlagPatterns is the frequency view over the batch's red flags.
type RedFlagPatterns struct {
	TotalFlags  int             `json:"total_flags"`
	UniqueFlags int             `json:"unique_flags"`
	AvgPerApp   float64         `json:"avg_per_app"`
	BySeverity  map[string]int  `json:"by_severity"`
	ByCategory  map[string]int  `json:"by_category"`
	MostCommon  []FlagFrequency `json:"most_common,omitempty"`
}

// Rankings are the ordered tables for the overall metrics and each
// category.
type Rankings struct {
	OverallRisk  []RankedEntry            `json:"overall_risk"`
	Transparency []RankedEntry            `json:"transparency"`
	ByCategory   map[string][]RankedEntry `json:"by_category"`
}

// Report is the complete comparative output. It is serializable data;
// rendering belongs to the formatters.
type Report struct {
	GeneratedAt time.Time `json:"generated_at"`
	NumRecords  int       `json:"num_records"`
	AppNames    []string  `json:"app_names"`

	OverallRisk   MetricStats            `json:"overall_risk"`
	Transparency  MetricStats            `json:"transparency"`
	Confidence    MetricStats            `json:"confidence"`
	CategoryStats map[string]MetricStats `json:"category_stats"`

	RedFlags     RedFlagPatterns        `json:"red_flag_patterns"`
	GapAnalysis  []GapResult            `json:"gap_analysis"`
	Correlations map[string]Correlation `json:"correlations"`
	Rankings     Rankings               `json:"rankings"`
	Clusters     ClusterReport          `json:"clusters"`

	BestPractices  map[string][]Performer `json:"best_practices"`
	WorstPractices map[string][]Performer `json:"worst_practices"`
	ResearchQuotes map[string][]Quote     `json:"research_quotes"`

	Recommendations []string `json:"recommendations,omitempty"`
}

// BuildReport computes the comparative report for a batch. The batch is
// snapshotted and name-sorted up front so output is order-independent.
func BuildReport(records []*analysis.Record, cfg Config) *Report {
	if cfg.ClusterCount <= 0 {
		cfg.ClusterCount = 3
	}
	if cfg.MinCorrelationSample <= 0 {
		cfg.MinCorrelationSample = MinCorrelationSample
	}

	batch := make([]*analysis.Record, 0, len(records))
	for _, rec := range records {
		if rec != nil {
			batch = append(batch, rec)
		}
	}
	sort.Slice(batch, func(a, b int) bool { return batch[a].AppName < batch[b].AppName })

	names := make([]string, len(batch))
	risk := make([]float64, len(batch))
	transparency := make([]float64, len(batch))
	confidence := make([]float64, len(batch))
	vectors := make([][]float64, len(batch))
	catScores := make(map[string][]float64, len(analysis.CategoryNames))

	for i, rec := range batch {
		names[i] = rec.AppName
		risk[i] = rec.OverallRiskScore
		transparency[i] = rec.OverallTransparencyScore
		confidence[i] = rec.ConfidenceScore

		vec := make([]float64, 0, len(analysis.CategoryNames))
		for _, cat := range analysis.CategoryNames {
			score := rec.Categories[cat].Score
			catScores[cat] = append(catScores[cat], score)
			vec = append(vec, score)
		}
		vectors[i] = vec
	}

	report := &Report{
		GeneratedAt:   time.Now().UTC(),
		NumRecords:    len(batch),
		AppNames:      names,
		OverallRisk:   describe(risk),
		Transparency:  describe(transparency),
		Confidence:    describe(confidence),
		CategoryStats: make(map[string]MetricStats, len(catScores)),
		RedFlags:      flagPatterns(batch),
		GapAnalysis:   gapAnalysis(batch, DefaultPredicates()),
		Correlations:  correlations(batch, risk, transparency, catScores, cfg.MinCorrelationSample),
		Rankings: Rankings{
			OverallRisk:  rankByMetric(names, risk),
			Transparency: rankByMetric(names, transparency),
			ByCategory:   make(map[string][]RankedEntry, len(catScores)),
		},
		BestPractices:  make(map[string][]Performer, len(catScores)),
		WorstPractices: make(map[string][]Performer, len(catScores)),
		ResearchQuotes: extractQuotes(batch, cfg.QuotesPerTheme),
	}

	for cat, scores := range catScores {
		report.CategoryStats[cat] = describe(scores)
		report.Rankings.ByCategory[cat] = rankByMetric(names, scores)

		performers := make([]Performer, len(batch))
		for i, rec := range batch {
			performers[i] = Performer{
				AppName:  rec.AppName,
				Score:    scores[i],
				Findings: rec.Categories[cat].KeyFindings,
			}
		}
		best, worst := quartiles(performers)
		if best != nil {
			report.BestPractices[cat] = best
		}
		if worst != nil {
			report.WorstPractices[cat] = worst
		}
	}

	if len(batch) > 0 {
		report.Clusters = clusterize(names, risk, vectors, cfg.ClusterCount)
	} else {
		report.Clusters = ClusterReport{Requested: cfg.ClusterCount, Note: "no documents to cluster"}
	}

	report.Recommendations = recommendations(report)
	return report
}

// Predicate is a named boolean test over one record, used by gap
// analysis.
type Predicate struct {
	Name string
	Test func(*analysis.Record) bool
}

// DefaultPredicates are the compliance and user-rights checks reported
// for every batch.
func DefaultPredicates() []Predicate {
	return []Predicate{
		{"hipaa_mentioned", mentions("hipaa")},
		{"gdpr_mentioned", mentions("gdpr")},
		{"retention_period_specified", mentions("retention")},
		{"deletion_rights_mentioned", mentions("delet")},
		{"data_export_mentioned", mentions("export", "portability")},
		{"opt_out_mentioned", mentions("opt out", "opt-out")},
	}
}

// mentions matches any of the terms in the record's searchable text.
func mentions(terms ...string) func(*analysis.Record) bool {
	return func(rec *analysis.Record) bool {
		text := searchableText(rec)
		for _, term := range terms {
			if strings.Contains(text, term) {
				return true
			}
		}
		return false
	}
}

// searchableText flattens a record's prose fields into one lowercase
// string for predicate matching.
func searchableText(rec *analysis.Record) string {
	var b strings.Builder
	b.WriteString(rec.Summary)
	for _, cat := range rec.Categories {
		b.WriteString(" " + cat.Explanation)
		for _, f := range cat.KeyFindings {
			b.WriteString(" " + f)
		}
	}
	for _, flag := range rec.RedFlags {
		b.WriteString(" " + flag.Finding + " " + flag.Quote)
	}
	for _, p := range rec.PositivePractices {
		b.WriteString(" " + p.Description + " " + p.Quote)
	}
	return strings.ToLower(b.String())
}

// gapAnalysis reports the share of the batch satisfying each predicate.
func gapAnalysis(batch []*analysis.Record, predicates []Predicate) []GapResult {
	if len(batch) == 0 {
		return nil
	}
	results := make([]GapResult, 0, len(predicates))
	for _, p := range predicates {
		count := 0
		for _, rec := range batch {
			if p.Test(rec) {
				count++
			}
		}
		results = append(results, GapResult{
			Name:       p.Name,
			Count:      count,
			Percentage: float64(count) / float64(len(batch)) * 100,
		})
	}
	return results
}

// flagPatterns builds the red-flag frequency tables.
func flagPatterns(batch []*analysis.Record) RedFlagPatterns {
	patterns := RedFlagPatterns{
		BySeverity: make(map[string]int),
		ByCategory: make(map[string]int),
	}
	counts := make(map[string]int)
	for _, rec := range batch {
		for _, flag := range rec.RedFlags {
			patterns.TotalFlags++
			patterns.BySeverity[flag.Severity]++
			patterns.ByCategory[flag.Category]++
			counts[analysis.NormalizeQuote(flag.Finding)]++
		}
	}
	patterns.UniqueFlags = len(counts)
	if n := len(batch); n > 0 {
		patterns.AvgPerApp = float64(patterns.TotalFlags) / float64(n)
	}

	for finding, count := range counts {
		if count < 2 {
			continue
		}
		patterns.MostCommon = append(patterns.MostCommon, FlagFrequency{
			Finding:    finding,
			Count:      count,
			Percentage: float64(count) / float64(len(batch)) * 100,
		})
	}
	sort.Slice(patterns.MostCommon, func(a, b int) bool {
		if patterns.MostCommon[a].Count != patterns.MostCommon[b].Count {
			return patterns.MostCommon[a].Count > patterns.MostCommon[b].Count
		}
		return patterns.MostCommon[a].Finding < patterns.MostCommon[b].Finding
	})
	if len(patterns.MostCommon) > 10 {
		patterns.MostCommon = patterns.MostCommon[:10]
	}
	return patterns
}

// correlations computes the standard pairwise relationships.
func correlations(batch []*analysis.Record, risk, transparency []float64, catScores map[string][]float64, minSample int) map[string]Correlation {
	out := map[string]Correlation{
		"transparency_vs_risk": pearson(transparency, risk, minSample),
	}

	hipaa := make([]bool, len(batch))
	test := mentions("hipaa")
	for i, rec := range batch {
		hipaa[i] = test(rec)
	}
	if security, ok := catScores["security_measures"]; ok {
		out["hipaa_vs_security"] = pointBiserial(hipaa, security, minSample)
	}
	return out
}

// recommendations derives batch-level guidance from the computed report.
func recommendations(report *Report) []string {
	if report.NumRecords == 0 {
		return nil
	}
	var recs []string

	for _, gap := range report.GapAnalysis {
		switch {
		case gap.Name == "hipaa_mentioned" && gap.Percentage < 50:
			recs = append(recs, fmt.Sprintf(
				"Only %.1f%% of policies explicitly mention HIPAA compliance. Healthcare apps should clearly state HIPAA compliance status.",
				gap.Percentage))
		case gap.Name == "retention_period_specified" && gap.Percentage < 70:
			recs = append(recs, fmt.Sprintf(
				"Only %.1f%% of policies specify data retention periods. Clear retention policies should be mandatory for healthcare data.",
				gap.Percentage))
		}
	}

	if report.Transparency.Mean < 60 {
		recs = append(recs, fmt.Sprintf(
			"Average transparency score is %.1f/100. Policies need clearer and more specific language.",
			report.Transparency.Mean))
	}
	if critical := report.RedFlags.BySeverity[analysis.SeverityCritical]; critical > report.NumRecords {
		recs = append(recs, fmt.Sprintf(
			"%d critical red flags across %d policies. Critical findings warrant individual review.",
			critical, report.NumRecords))
	}
	return recs
}
