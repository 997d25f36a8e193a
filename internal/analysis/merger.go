// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package analysis

import (
	"strings"
	"time"
)

// ChunkDraft pairs a chunk's draft with its merge weight. Weight is the
// chunk's token count; chunks that failed permanently have a nil Draft.
type ChunkDraft struct {
	Index  int
	Weight int
	Draft  *Draft
}

// MergeDrafts combines per-chunk drafts into one unified record.
//
// Numeric category scores are token-weighted averages over the chunks that
// produced a score for that category, clamped into [0,100]. List-valued
// fields concatenate in chunk order and deduplicate on normalized quote
// text so a sentence straddling a chunk boundary is not counted twice.
// The confidence score is the minimum across chunks. Overall scores are
// recomputed from the merged category scores rather than averaged from
// chunk-level overalls, which are only locally valid.
func MergeDrafts(drafts []ChunkDraft) *Record {
	rec := &Record{
		AnalysisDate: time.Now().UTC(),
		Categories:   make(map[string]Category),
	}

	var ok []ChunkDraft
	failed := 0
	for _, cd := range drafts {
		if cd.Draft == nil {
			failed++
			continue
		}
		ok = append(ok, cd)
	}
	rec.Metadata.ChunkCount = len(drafts)
	rec.Metadata.ChunksFailed = failed
	rec.Partial = failed > 0

	if len(ok) == 0 {
		return rec
	}

	// Summaries read in chunk order.
	var summaries []string
	for _, cd := range ok {
		if s := strings.TrimSpace(cd.Draft.Summary); s != "" {
			summaries = append(summaries, s)
		}
	}
	rec.Summary = strings.Join(summaries, " ")

	for _, name := range CategoryNames {
		rec.Categories[name] = mergeCategory(name, ok)
	}

	rec.RedFlags = mergeRedFlags(ok)
	rec.PositivePractices = mergePositives(ok)
	rec.MissingInformation = mergeStrings(ok, func(d *Draft) []string { return d.MissingInformation })
	rec.QuotableFindings = mergeQuotes(ok)

	// A single low-confidence chunk should not be masked by the others.
	rec.ConfidenceScore = ok[0].Draft.ConfidenceScore
	for _, cd := range ok[1:] {
		if cd.Draft.ConfidenceScore < rec.ConfidenceScore {
			rec.ConfidenceScore = cd.Draft.ConfidenceScore
		}
	}

	for _, cd := range ok {
		rec.Metadata.TokensUsed += cd.Draft.TokensUsed
	}

	mean := rec.CategoryMean()
	rec.OverallTransparencyScore = clamp(mean)
	rec.OverallRiskScore = clamp(100 - mean)

	return rec
}

func mergeCategory(name string, drafts []ChunkDraft) Category {
	var weighted, totalWeight float64
	var explanation string
	var findings []string
	seen := make(map[string]bool)

	for _, cd := range drafts {
		dc, present := cd.Draft.Categories[name]
		if !present {
			continue
		}
		if dc.Score != nil {
			w := float64(cd.Weight)
			if w <= 0 {
				w = 1
			}
			weighted += *dc.Score * w
			totalWeight += w
		}
		if explanation == "" {
			explanation = strings.TrimSpace(dc.Explanation)
		}
		for _, kf := range dc.KeyFindings {
			key := NormalizeQuote(kf)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			findings = append(findings, kf)
		}
	}

	score := 50.0 // neutral when no chunk scored the category
	if totalWeight > 0 {
		score = clamp(weighted / totalWeight)
	}
	return Category{Score: score, Explanation: explanation, KeyFindings: findings}
}

func mergeRedFlags(drafts []ChunkDraft) []RedFlag {
	var out []RedFlag
	seen := make(map[string]bool)
	for _, cd := range drafts {
		for _, f := range cd.Draft.RedFlags {
			key := NormalizeQuote(f.Quote)
			if key == "" {
				key = NormalizeQuote(f.Finding)
			}
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, f)
		}
	}
	return out
}

func mergePositives(drafts []ChunkDraft) []PositivePractice {
	var out []PositivePractice
	seen := make(map[string]bool)
	for _, cd := range drafts {
		for _, p := range cd.Draft.PositivePractices {
			key := NormalizeQuote(p.Quote)
			if key == "" {
				key = NormalizeQuote(p.Description)
			}
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, p)
		}
	}
	return out
}

func mergeQuotes(drafts []ChunkDraft) []QuotableFinding {
	var out []QuotableFinding
	seen := make(map[string]bool)
	for _, cd := range drafts {
		for _, q := range cd.Draft.QuotableFindings {
			key := NormalizeQuote(q.Quote)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, q)
		}
	}
	return out
}

func mergeStrings(drafts []ChunkDraft, get func(*Draft) []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, cd := range drafts {
		for _, s := range get(cd.Draft) {
			key := NormalizeQuote(s)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, s)
		}
	}
	return out
}

// NormalizeQuote lowercases and collapses whitespace so near-identical
// quotes from adjacent chunks deduplicate.
func NormalizeQuote(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
