// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package analysis

import (
	"time"
)

// CategoryNames is the fixed set of analysis categories. Every record
// carries exactly these eight; the validator rejects records that add or
// drop any of them.
var CategoryNames = []string{
	"data_collection",
	"data_usage",
	"third_party_sharing",
	"data_retention",
	"user_rights",
	"security_measures",
	"compliance",
	"older_adult_considerations",
}

// Severity levels for red flags, ordered from most to least severe.
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
)

// ValidSeverities maps severity names to validity for O(1) lookup.
var ValidSeverities = map[string]bool{
	SeverityCritical: true,
	SeverityHigh:     true,
	SeverityMedium:   true,
	SeverityLow:      true,
}

// Category holds the per-category findings of one analysis.
type Category struct {
	Score       float64  `json:"score"`
	Explanation string   `json:"explanation"`
	KeyFindings []string `json:"key_findings"`
}

// RedFlag is a concerning practice identified in the policy text.
type RedFlag struct {
	Finding  string `json:"finding"`
	Severity string `json:"severity"`
	Quote    string `json:"quote"`
	Category string `json:"category"`
	Location string `json:"location,omitempty"`
	Impact   string `json:"impact,omitempty"`
}

// PositivePractice is a user-protective practice worth highlighting.
type PositivePractice struct {
	Category    string `json:"category"`
	Description string `json:"description"`
	Quote       string `json:"quote"`
	Impact      string `json:"impact,omitempty"`
}

// QuotableFinding is a research-worthy quote with a significance rating
// (high, medium, low) used when selecting quotes for comparative reports.
type QuotableFinding struct {
	Category     string `json:"category"`
	Finding      string `json:"finding"`
	Quote        string `json:"quote"`
	Significance string `json:"significance"`
}

// Metadata records provenance and cost accounting for one analysis.
type Metadata struct {
	Model          string  `json:"model_used"`
	Provider       string  `json:"provider"`
	AnalysisDepth  string  `json:"analysis_depth"`
	PolicyLength   int     `json:"policy_length"`
	TokensUsed     int     `json:"tokens_used,omitempty"`
	EstimatedCost  float64 `json:"estimated_cost_usd,omitempty"`
	ChunkCount     int     `json:"chunks_analyzed,omitempty"`
	ChunksFailed   int     `json:"chunks_failed,omitempty"`
	AnalysisTimeMs int64   `json:"analysis_time_ms,omitempty"`
}

// Record is the unit of per-document output: one validated, immutable
// analysis of one privacy policy. Records are never mutated after being
// written to the cache; a forced re-analysis produces a new record.
type Record struct {
	AppName      string    `json:"app_name"`
	URL          string    `json:"url,omitempty"`
	AnalysisDate time.Time `json:"analysis_date"`

	Summary    string              `json:"summary,omitempty"`
	Categories map[string]Category `json:"categories"`

	RedFlags           []RedFlag          `json:"red_flags"`
	PositivePractices  []PositivePractice `json:"positive_practices"`
	MissingInformation []string           `json:"missing_information,omitempty"`
	QuotableFindings   []QuotableFinding  `json:"quotable_findings,omitempty"`

	OverallRiskScore         float64 `json:"overall_risk_score"`
	OverallTransparencyScore float64 `json:"overall_transparency_score"`
	ConfidenceScore          float64 `json:"confidence_score"`

	// Partial marks a record assembled while one or more chunks
	// permanently failed. Partial records are excluded from strict-mode
	// aggregation but retained for lenient reporting.
	Partial bool `json:"partial,omitempty"`

	Metadata Metadata `json:"metadata"`
}

// CategoryMean returns the mean of the category scores, or 0 when the
// record carries no categories.
func (r *Record) CategoryMean() float64 {
	if len(r.Categories) == 0 {
		return 0
	}
	var sum float64
	for _, c := range r.Categories {
		sum += c.Score
	}
	return sum / float64(len(r.Categories))
}

// RedFlagCount returns the number of red flags with the given severity,
// or the total when severity is empty.
func (r *Record) RedFlagCount(severity string) int {
	if severity == "" {
		return len(r.RedFlags)
	}
	n := 0
	for _, f := range r.RedFlags {
		if f.Severity == severity {
			n++
		}
	}
	return n
}

// DraftCategory mirrors Category for chunk-level drafts. The score is a
// pointer so a chunk that saw no material for a category can report "no
// score" rather than a misleading zero.
type DraftCategory struct {
	Score       *float64 `json:"score"`
	Explanation string   `json:"explanation"`
	KeyFindings []string `json:"key_findings"`
}

// Draft is the raw, unvalidated output of analyzing one chunk. Drafts are
// merged into a Record and never stored.
type Draft struct {
	Summary            string                   `json:"summary"`
	Categories         map[string]DraftCategory `json:"categories"`
	RedFlags           []RedFlag                `json:"red_flags"`
	PositivePractices  []PositivePractice       `json:"positive_practices"`
	MissingInformation []string                 `json:"missing_information"`
	QuotableFindings   []QuotableFinding        `json:"quotable_findings"`
	ConfidenceScore    float64                  `json:"confidence_score"`
	TokensUsed         int                      `json:"-"`
}

// clamp bounds a score into [0,100] to guard against model noise.
func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
