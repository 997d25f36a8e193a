// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package validate checks analysis records before they enter aggregation.
// Single-record validation enforces schema, range, and cross-field
// consistency; batch validation adds z-score anomaly detection across the
// batch. Anomalies are always advisory and never invalidate a record.
package validate

import (
	"fmt"
	"math"

	"policyscan/internal/analysis"
)

// Code identifies the class of a validation issue.
type Code string

const (
	CodeSchemaError        Code = "schema_error"
	CodeRangeError         Code = "range_error"
	CodeStructureError     Code = "structure_error"
	CodeConsistencyWarning Code = "consistency_warning"
	CodeAnomalyFlag        Code = "anomaly_flag"
	CodeInsufficientSample Code = "insufficient_sample"
)

// DefaultTolerance is the allowed gap between an overall score and the
// mean of the category scores before a consistency warning fires.
const DefaultTolerance = 15.0

// Issue is one validation finding on a record.
type Issue struct {
	Code    Code   `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	if i.Field != "" {
		return fmt.Sprintf("[%s] %s: %s", i.Code, i.Field, i.Message)
	}
	return fmt.Sprintf("[%s] %s", i.Code, i.Message)
}

// Result holds the outcome of validating one record. Errors make the
// record unusable for strict aggregation; warnings and info never do.
type Result struct {
	SubjectID string  `json:"subject_id"`
	IsValid   bool    `json:"is_valid"`
	Errors    []Issue `json:"errors,omitempty"`
	Warnings  []Issue `json:"warnings,omitempty"`
	Info      []Issue `json:"info,omitempty"`
}

// Options configures validation behavior.
type Options struct {
	// Tolerance for overall-vs-category consistency. Zero means
	// DefaultTolerance.
	Tolerance float64
	// Strict promotes every advisory finding to fatal, for
	// publication-grade batches.
	Strict bool
}

func (o Options) tolerance() float64 {
	if o.Tolerance <= 0 {
		return DefaultTolerance
	}
	return o.Tolerance
}

// ValidateRecord runs the single-record checks. Fatal issues land in
// Errors, advisories in Warnings; with Strict set, advisories are
// promoted to Errors instead.
func ValidateRecord(rec *analysis.Record, opts Options) Result {
	res := Result{IsValid: true}
	if rec == nil {
		res.IsValid = false
		res.Errors = append(res.Errors, Issue{Code: CodeSchemaError, Message: "record is nil"})
		return res
	}
	res.SubjectID = rec.AppName

	fatal := func(code Code, field, format string, args ...interface{}) {
		res.Errors = append(res.Errors, Issue{Code: code, Field: field, Message: fmt.Sprintf(format, args...)})
	}
	advisory := func(code Code, field, format string, args ...interface{}) {
		issue := Issue{Code: code, Field: field, Message: fmt.Sprintf(format, args...)}
		if opts.Strict {
			res.Errors = append(res.Errors, issue)
		} else {
			res.Warnings = append(res.Warnings, issue)
		}
	}

	if rec.AppName == "" {
		fatal(CodeSchemaError, "app_name", "required field is empty")
	}
	if rec.Summary == "" {
		fatal(CodeSchemaError, "summary", "required field is empty")
	}
	if rec.Categories == nil {
		fatal(CodeSchemaError, "categories", "required field is missing")
	}

	for _, name := range analysis.CategoryNames {
		cat, ok := rec.Categories[name]
		if !ok {
			fatal(CodeSchemaError, "categories."+name, "category missing from record")
			continue
		}
		if cat.Score < 0 || cat.Score > 100 || math.IsNaN(cat.Score) {
			fatal(CodeRangeError, "categories."+name, "score %.1f outside [0,100]", cat.Score)
		}
		if len(cat.KeyFindings) == 0 {
			advisory(CodeStructureError, "categories."+name, "no key findings recorded")
		}
	}
	for name := range rec.Categories {
		if !knownCategory(name) {
			advisory(CodeStructureError, "categories."+name, "unknown category")
		}
	}

	for _, score := range []struct {
		field string
		value float64
	}{
		{"overall_risk_score", rec.OverallRiskScore},
		{"overall_transparency_score", rec.OverallTransparencyScore},
		{"confidence_score", rec.ConfidenceScore},
	} {
		if score.value < 0 || score.value > 100 || math.IsNaN(score.value) {
			fatal(CodeRangeError, score.field, "score %.1f outside [0,100]", score.value)
		}
	}

	for i, flag := range rec.RedFlags {
		field := fmt.Sprintf("red_flags[%d]", i)
		if flag.Finding == "" {
			fatal(CodeStructureError, field, "finding is empty")
		}
		if flag.Category == "" {
			fatal(CodeStructureError, field, "category is empty")
		} else if !knownCategory(flag.Category) {
			advisory(CodeStructureError, field, "unknown category %q", flag.Category)
		}
		if !analysis.ValidSeverities[flag.Severity] {
			fatal(CodeStructureError, field, "invalid severity %q", flag.Severity)
		}
		if flag.Quote == "" {
			advisory(CodeStructureError, field, "no supporting quote")
		}
	}

	// Both overall scores are checked against the category mean
	// independently; risk is expected near the complement of the mean.
	if len(rec.Categories) > 0 {
		mean := rec.CategoryMean()
		tol := opts.tolerance()
		if gap := math.Abs(rec.OverallTransparencyScore - mean); gap > tol {
			advisory(CodeConsistencyWarning, "overall_transparency_score",
				"differs from category mean %.1f by %.1f (tolerance %.0f)", mean, gap, tol)
		}
		if gap := math.Abs(rec.OverallRiskScore - (100 - mean)); gap > tol {
			advisory(CodeConsistencyWarning, "overall_risk_score",
				"differs from complement of category mean %.1f by %.1f (tolerance %.0f)", 100-mean, gap, tol)
		}
	}

	if rec.ConfidenceScore < 50 {
		advisory(CodeStructureError, "confidence_score", "low confidence %.1f", rec.ConfidenceScore)
	}
	if n := rec.RedFlagCount(analysis.SeverityCritical); n > 5 {
		advisory(CodeStructureError, "red_flags", "%d critical red flags looks unusually punitive", n)
	}
	if rec.Partial {
		advisory(CodeStructureError, "partial", "record was merged from a partially failed analysis")
	}

	res.IsValid = len(res.Errors) == 0
	return res
}

func knownCategory(name string) bool {
	for _, c := range analysis.CategoryNames {
		if c == name {
			return true
		}
	}
	return false
}
