// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package csv

import (
	"encoding/csv"
	"fmt"
	"sort"
	"strings"

	"policyscan/internal/analysis"
	"policyscan/internal/formatters"
)

// Formatter implements CSV output formatting
type Formatter struct{}

// NewFormatter creates a new CSV formatter
func NewFormatter() *Formatter {
	return &Formatter{}
}

func init() {
	formatters.Register(NewFormatter())
}

func (f *Formatter) Name() string {
	return "csv"
}

func (f *Formatter) Description() string {
	return "Comma-separated values for spreadsheet import"
}

func (f *Formatter) FileExtension() string {
	return ".csv"
}

// Format renders the most tabular section of the payload: the report's
// rankings when present, otherwise the single record's category scores.
func (f *Formatter) Format(payload formatters.Payload, options formatters.FormatterOptions) (string, error) {
	var b strings.Builder
	w := csv.NewWriter(&b)

	switch {
	case payload.Report != nil:
		w.Write([]string{"rank", "app_name", "overall_risk", "risk_percentile", "transparency"})
		transparency := make(map[string]float64, len(payload.Report.Rankings.Transparency))
		for _, e := range payload.Report.Rankings.Transparency {
			transparency[e.AppName] = e.Value
		}
		for _, e := range payload.Report.Rankings.OverallRisk {
			w.Write([]string{
				fmt.Sprintf("%d", e.Rank),
				e.AppName,
				fmt.Sprintf("%.1f", e.Value),
				fmt.Sprintf("%.1f", e.Percentile),
				fmt.Sprintf("%.1f", transparency[e.AppName]),
			})
		}

	case payload.Record != nil:
		w.Write([]string{"app_name", "category", "score", "key_findings"})
		rec := payload.Record
		for _, cat := range sortedCategories(rec) {
			w.Write([]string{
				rec.AppName,
				cat,
				fmt.Sprintf("%.1f", rec.Categories[cat].Score),
				strings.Join(rec.Categories[cat].KeyFindings, "; "),
			})
		}

	case payload.Validation != nil:
		w.Write([]string{"subject_id", "is_valid", "errors", "warnings"})
		for _, res := range payload.Validation.Results {
			w.Write([]string{
				res.SubjectID,
				fmt.Sprintf("%t", res.IsValid),
				fmt.Sprintf("%d", len(res.Errors)),
				fmt.Sprintf("%d", len(res.Warnings)),
			})
		}

	default:
		return "", fmt.Errorf("nothing to format")
	}

	w.Flush()
	return b.String(), w.Error()
}

func sortedCategories(rec *analysis.Record) []string {
	names := make([]string, 0, len(rec.Categories))
	for name := range rec.Categories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
