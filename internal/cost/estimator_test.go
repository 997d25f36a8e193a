// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package cost

import (
	"strings"
	"testing"

	"policyscan/internal/analysis"
)

func TestEstimateDocumentSingleChunk(t *testing.T) {
	e := NewEstimator(nil)
	text := strings.Repeat("policy text ", 100) // ~300 tokens

	est := e.EstimateDocument(text, "gpt-4o", analysis.DepthStandard, 0)
	if est.EstimatedChunks != 1 {
		t.Errorf("small document should be one chunk, got %d", est.EstimatedChunks)
	}
	if est.OutputTokens != 4000 {
		t.Errorf("standard depth should project 4000 output tokens, got %d", est.OutputTokens)
	}
	if est.TotalCost <= 0 {
		t.Error("expected a positive cost")
	}
}

func TestEstimateDocumentMultiChunk(t *testing.T) {
	e := NewEstimator(nil)
	// ~15000 tokens at 4 chars/token forces three chunks of 6000.
	text := strings.Repeat("abcd", 15000)

	est := e.EstimateDocument(text, "gpt-4o", analysis.DepthDeep, 6000)
	if est.EstimatedChunks != 3 {
		t.Errorf("expected 3 chunks, got %d", est.EstimatedChunks)
	}
	if est.OutputTokens != 3*8000 {
		t.Errorf("deep depth should project 8000 tokens per chunk, got %d", est.OutputTokens)
	}
}

func TestPricingPrefersLongestPrefix(t *testing.T) {
	e := NewEstimator(nil)

	mini := e.Pricing("gpt-4o-mini-2024-07-18")
	if mini != defaultPricing["gpt-4o-mini"] {
		t.Errorf("dated mini snapshot should price as gpt-4o-mini, got %+v", mini)
	}
	base := e.Pricing("gpt-4o-2024-08-06")
	if base != defaultPricing["gpt-4o"] {
		t.Errorf("dated snapshot should price as gpt-4o, got %+v", base)
	}
}

func TestPricingUnknownModelFallsBack(t *testing.T) {
	e := NewEstimator(nil)
	if e.Pricing("claude-unknown") != defaultPricing["gpt-4o"] {
		t.Error("unknown model should fall back to the gpt-4o rate")
	}
}

func TestEstimateBatchSums(t *testing.T) {
	e := NewEstimator(nil)
	texts := []string{strings.Repeat("a", 4000), strings.Repeat("b", 4000)}

	batch := e.EstimateBatch(texts, "gpt-4o-mini", analysis.DepthQuick, 0)
	if batch.DocumentCount != 2 {
		t.Errorf("expected 2 documents, got %d", batch.DocumentCount)
	}
	single := e.EstimateDocument(texts[0], "gpt-4o-mini", analysis.DepthQuick, 0)
	if batch.TotalCost <= single.TotalCost {
		t.Error("batch cost should exceed a single document's cost")
	}
}

func TestFormatSummary(t *testing.T) {
	est := Estimate{TotalCost: 0.1234, InputCost: 0.09, OutputCost: 0.0334, DocumentCount: 2, EstimatedChunks: 3}
	s := est.FormatSummary()
	if !strings.Contains(s, "$0.1234") || !strings.Contains(s, "2 documents") {
		t.Errorf("summary missing fields: %q", s)
	}
}
