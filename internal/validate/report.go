// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package validate

import (
	"fmt"
	"sort"
	"strings"
)

// RenderReport produces the human-readable validation summary used by the
// CLI and the batch workflow log.
func RenderReport(batch BatchResult) string {
	var b strings.Builder

	b.WriteString("VALIDATION REPORT\n")
	b.WriteString(strings.Repeat("=", 50) + "\n")
	fmt.Fprintf(&b, "Total records:   %d\n", batch.TotalRecords)
	fmt.Fprintf(&b, "Valid records:   %d\n", batch.ValidRecords)
	fmt.Fprintf(&b, "Invalid records: %d\n", batch.InvalidRecords)
	fmt.Fprintf(&b, "Warnings:        %d\n", batch.WarningCount)

	for _, res := range batch.Results {
		if len(res.Errors) == 0 && len(res.Warnings) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n%s\n", res.SubjectID)
		for _, issue := range res.Errors {
			fmt.Fprintf(&b, "  ERROR   %s\n", issue)
		}
		for _, issue := range res.Warnings {
			fmt.Fprintf(&b, "  WARNING %s\n", issue)
		}
	}

	if len(batch.Anomalies) > 0 {
		b.WriteString("\nSTATISTICAL ANOMALIES\n")
		metrics := make([]string, 0, len(batch.Anomalies))
		for m := range batch.Anomalies {
			metrics = append(metrics, m)
		}
		sort.Strings(metrics)
		for _, m := range metrics {
			for _, a := range batch.Anomalies[m] {
				fmt.Fprintf(&b, "  %s: %s is %s (value %.1f, z=%.2f)\n",
					m, a.SubjectID, a.Deviation, a.Value, a.ZScore)
			}
		}
	}

	for _, issue := range batch.Skipped {
		fmt.Fprintf(&b, "\nINFO %s\n", issue)
	}
	return b.String()
}
