// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package text

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fatih/color"

	"policyscan/internal/analysis"
	"policyscan/internal/compare"
	"policyscan/internal/formatters"
	"policyscan/internal/score"
	"policyscan/internal/validate"
)

// Formatter implements text-based output formatting
type Formatter struct {
	colors map[string]*color.Color
}

// NewFormatter creates a new text formatter
func NewFormatter() *Formatter {
	return &Formatter{
		colors: map[string]*color.Color{
			analysis.SeverityCritical: color.New(color.FgRed, color.Bold),
			analysis.SeverityHigh:     color.New(color.FgRed),
			analysis.SeverityMedium:   color.New(color.FgYellow),
			analysis.SeverityLow:      color.New(color.FgCyan),
		},
	}
}

func init() {
	formatters.Register(NewFormatter())
}

func (f *Formatter) Name() string {
	return "text"
}

func (f *Formatter) Description() string {
	return "Human-readable text output with colors"
}

func (f *Formatter) FileExtension() string {
	return ".txt"
}

func (f *Formatter) Format(payload formatters.Payload, options formatters.FormatterOptions) (string, error) {
	if options.NoColor {
		color.NoColor = true
	}

	var b strings.Builder
	if payload.Record != nil {
		f.appendRecord(&b, payload.Record, payload.Risk, options)
	}
	if payload.Validation != nil {
		b.WriteString(validate.RenderReport(*payload.Validation))
	}
	if payload.Report != nil {
		f.appendReport(&b, payload.Report, options)
	}
	if b.Len() == 0 {
		return "Nothing to report.", nil
	}
	return b.String(), nil
}

func (f *Formatter) appendRecord(b *strings.Builder, rec *analysis.Record, risk *score.Result, options formatters.FormatterOptions) {
	fmt.Fprintf(b, "%s\n", color.New(color.Bold).Sprint(rec.AppName))
	if rec.URL != "" {
		fmt.Fprintf(b, "%s\n", rec.URL)
	}
	fmt.Fprintf(b, "%s\n\n", strings.Repeat("=", 50))

	fmt.Fprintf(b, "Summary: %s\n\n", rec.Summary)
	fmt.Fprintf(b, "Risk score:         %.1f/100\n", rec.OverallRiskScore)
	fmt.Fprintf(b, "Transparency score: %.1f/100\n", rec.OverallTransparencyScore)
	fmt.Fprintf(b, "Confidence:         %.1f/100\n", rec.ConfidenceScore)
	if risk != nil {
		level := score.LevelColor(risk.RiskLevel).Sprint(risk.RiskLevel)
		fmt.Fprintf(b, "Risk level:         %s (%.2f)\n", level, risk.OverallScore)
	}
	if rec.Partial {
		fmt.Fprintf(b, "%s\n", color.New(color.FgYellow).Sprint("NOTE: partial analysis - some sections could not be processed"))
	}

	b.WriteString("\nCategory scores\n")
	names := make([]string, 0, len(rec.Categories))
	for name := range rec.Categories {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		cat := rec.Categories[name]
		fmt.Fprintf(b, "  %-28s %5.1f\n", name, cat.Score)
		if options.Verbose {
			for _, finding := range cat.KeyFindings {
				fmt.Fprintf(b, "      - %s\n", finding)
			}
		}
	}

	if len(rec.RedFlags) > 0 {
		fmt.Fprintf(b, "\nRed flags (%d)\n", len(rec.RedFlags))
		for _, flag := range rec.RedFlags {
			severity := flag.Severity
			if c, ok := f.colors[flag.Severity]; ok {
				severity = c.Sprint(strings.ToUpper(flag.Severity))
			}
			fmt.Fprintf(b, "  [%s] %s (%s)\n", severity, flag.Finding, flag.Category)
			if options.Verbose && flag.Quote != "" {
				fmt.Fprintf(b, "      %q\n", flag.Quote)
			}
		}
	}

	if len(rec.PositivePractices) > 0 {
		fmt.Fprintf(b, "\nPositive practices (%d)\n", len(rec.PositivePractices))
		for _, p := range rec.PositivePractices {
			fmt.Fprintf(b, "  + %s (%s)\n", p.Description, p.Category)
		}
	}

	if len(rec.MissingInformation) > 0 && options.Verbose {
		b.WriteString("\nMissing information\n")
		for _, m := range rec.MissingInformation {
			fmt.Fprintf(b, "  ? %s\n", m)
		}
	}
	b.WriteString("\n")
}

func (f *Formatter) appendReport(b *strings.Builder, report *compare.Report, options formatters.FormatterOptions) {
	fmt.Fprintf(b, "COMPARATIVE REPORT (%d policies)\n", report.NumRecords)
	fmt.Fprintf(b, "%s\n\n", strings.Repeat("=", 50))

	fmt.Fprintf(b, "Overall risk:  mean %.1f, median %.1f, std %.1f\n",
		report.OverallRisk.Mean, report.OverallRisk.Median, report.OverallRisk.Std)
	fmt.Fprintf(b, "Transparency:  mean %.1f, median %.1f, std %.1f\n\n",
		report.Transparency.Mean, report.Transparency.Median, report.Transparency.Std)

	if len(report.Rankings.OverallRisk) > 0 {
		b.WriteString("Risk ranking\n")
		for _, e := range report.Rankings.OverallRisk {
			fmt.Fprintf(b, "  %2d. %-24s %5.1f (p%.0f)\n", e.Rank, e.AppName, e.Value, e.Percentile)
		}
		b.WriteString("\n")
	}

	if len(report.GapAnalysis) > 0 {
		b.WriteString("Gap analysis\n")
		for _, gap := range report.GapAnalysis {
			fmt.Fprintf(b, "  %-28s %3d/%d (%.0f%%)\n", gap.Name, gap.Count, report.NumRecords, gap.Percentage)
		}
		b.WriteString("\n")
	}

	if report.RedFlags.TotalFlags > 0 {
		fmt.Fprintf(b, "Red flags: %d total, %.1f per policy\n", report.RedFlags.TotalFlags, report.RedFlags.AvgPerApp)
		severities := []string{analysis.SeverityCritical, analysis.SeverityHigh, analysis.SeverityMedium, analysis.SeverityLow}
		for _, sev := range severities {
			if n := report.RedFlags.BySeverity[sev]; n > 0 {
				label := sev
				if c, ok := f.colors[sev]; ok {
					label = c.Sprint(sev)
				}
				fmt.Fprintf(b, "  %s: %d\n", label, n)
			}
		}
		b.WriteString("\n")
	}

	if len(report.Clusters.Clusters) > 0 {
		fmt.Fprintf(b, "Clusters (%d)\n", report.Clusters.Effective)
		for _, cluster := range report.Clusters.Clusters {
			names := make([]string, len(cluster.Members))
			for i, m := range cluster.Members {
				names[i] = m.AppName
			}
			fmt.Fprintf(b, "  #%d (avg %.1f): %s\n", cluster.ID, cluster.AvgScore, strings.Join(names, ", "))
		}
		b.WriteString("\n")
	}

	if len(report.Recommendations) > 0 {
		b.WriteString("Recommendations\n")
		for _, rec := range report.Recommendations {
			fmt.Fprintf(b, "  * %s\n", rec)
		}
		b.WriteString("\n")
	}
}
