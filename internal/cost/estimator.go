// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package cost estimates inference spend before a batch run, so a
// researcher can see the bill for a document set up front.
package cost

import (
	"fmt"
	"strings"

	"policyscan/internal/analysis"
)

// ModelPricing is the per-1K-token price pair for one model.
type ModelPricing struct {
	InputPer1K  float64 `yaml:"input_per_1k"`
	OutputPer1K float64 `yaml:"output_per_1k"`
}

// Estimate is the projected cost for one document or a batch.
type Estimate struct {
	TotalCost       float64 `json:"total_cost"`
	InputCost       float64 `json:"input_cost"`
	OutputCost      float64 `json:"output_cost"`
	DocumentCount   int     `json:"document_count"`
	EstimatedChunks int     `json:"estimated_chunks"`
	InputTokens     int     `json:"input_tokens"`
	OutputTokens    int     `json:"output_tokens"`
}

// FormatSummary returns a human-readable cost breakdown.
func (e *Estimate) FormatSummary() string {
	summary := fmt.Sprintf("Estimated cost: $%.4f", e.TotalCost)
	breakdown := []string{
		fmt.Sprintf("input: $%.4f (%d tokens)", e.InputCost, e.InputTokens),
		fmt.Sprintf("output: $%.4f (%d tokens)", e.OutputCost, e.OutputTokens),
		fmt.Sprintf("%d documents, %d chunks", e.DocumentCount, e.EstimatedChunks),
	}
	return summary + " (" + strings.Join(breakdown, ", ") + ")"
}

// Estimator projects token usage and spend for a model.
type Estimator struct {
	pricing map[string]ModelPricing
}

// defaultPricing covers the commonly used models; unknown models fall
// back to the gpt-4o rate as a conservative guess.
var defaultPricing = map[string]ModelPricing{
	"gpt-4o":        {InputPer1K: 0.0025, OutputPer1K: 0.01},
	"gpt-4o-mini":   {InputPer1K: 0.00015, OutputPer1K: 0.0006},
	"gpt-4-turbo":   {InputPer1K: 0.01, OutputPer1K: 0.03},
	"gpt-3.5-turbo": {InputPer1K: 0.0005, OutputPer1K: 0.0015},
	"o3-mini":       {InputPer1K: 0.0011, OutputPer1K: 0.0044},
}

// promptOverheadTokens approximates the instructions and schema sent
// with every chunk on top of the document text.
const promptOverheadTokens = 1200

// NewEstimator builds an estimator; extra pricing entries override or
// extend the defaults.
func NewEstimator(extra map[string]ModelPricing) *Estimator {
	pricing := make(map[string]ModelPricing, len(defaultPricing)+len(extra))
	for model, p := range defaultPricing {
		pricing[model] = p
	}
	for model, p := range extra {
		pricing[model] = p
	}
	return &Estimator{pricing: pricing}
}

// Pricing resolves the rate for a model. Longest prefix wins, so dated
// snapshots like gpt-4o-2024-08-06 price as their base model while
// gpt-4o-mini keeps its own cheaper rate.
func (e *Estimator) Pricing(model string) ModelPricing {
	if p, ok := e.pricing[model]; ok {
		return p
	}
	var best string
	for name := range e.pricing {
		if strings.HasPrefix(model, name) && len(name) > len(best) {
			best = name
		}
	}
	if best != "" {
		return e.pricing[best]
	}
	return e.pricing["gpt-4o"]
}

// EstimateDocument projects the cost of analyzing one document at the
// given depth: one inference call per chunk, with the depth deciding the
// expected output size.
func (e *Estimator) EstimateDocument(text, model, depth string, maxChunkTokens int) Estimate {
	if maxChunkTokens <= 0 {
		maxChunkTokens = analysis.DefaultMaxChunkTokens
	}

	docTokens := analysis.EstimateTokens(text)
	chunks := (docTokens + maxChunkTokens - 1) / maxChunkTokens
	if chunks < 1 {
		chunks = 1
	}

	inputTokens := docTokens + chunks*promptOverheadTokens
	outputTokens := chunks * outputEstimate(depth)

	p := e.Pricing(model)
	est := Estimate{
		DocumentCount:   1,
		EstimatedChunks: chunks,
		InputTokens:     inputTokens,
		OutputTokens:    outputTokens,
		InputCost:       float64(inputTokens) / 1000 * p.InputPer1K,
		OutputCost:      float64(outputTokens) / 1000 * p.OutputPer1K,
	}
	est.TotalCost = est.InputCost + est.OutputCost
	return est
}

// EstimateBatch sums per-document estimates.
func (e *Estimator) EstimateBatch(texts []string, model, depth string, maxChunkTokens int) Estimate {
	var total Estimate
	for _, text := range texts {
		doc := e.EstimateDocument(text, model, depth, maxChunkTokens)
		total.TotalCost += doc.TotalCost
		total.InputCost += doc.InputCost
		total.OutputCost += doc.OutputCost
		total.EstimatedChunks += doc.EstimatedChunks
		total.InputTokens += doc.InputTokens
		total.OutputTokens += doc.OutputTokens
	}
	total.DocumentCount = len(texts)
	return total
}

// outputEstimate is the expected completion size per chunk by depth.
func outputEstimate(depth string) int {
	switch depth {
	case analysis.DepthQuick:
		return 2000
	case analysis.DepthDeep:
		return 8000
	default:
		return 4000
	}
}
