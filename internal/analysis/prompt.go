// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package analysis

import (
	"fmt"
	"strings"
)

// Analysis depths. Depth drives prompt selection, output token budget and
// the cache key.
const (
	DepthQuick    = "quick"
	DepthStandard = "standard"
	DepthDeep     = "deep"
)

// ValidDepth reports whether depth names a supported analysis depth.
func ValidDepth(depth string) bool {
	switch depth {
	case DepthQuick, DepthStandard, DepthDeep:
		return true
	}
	return false
}

const outputSchema = `{
  "summary": "2-3 sentence overview",
  "categories": {
    "data_collection": {"score": 0, "explanation": "", "key_findings": []},
    "data_usage": {"score": 0, "explanation": "", "key_findings": []},
    "third_party_sharing": {"score": 0, "explanation": "", "key_findings": []},
    "data_retention": {"score": 0, "explanation": "", "key_findings": []},
    "user_rights": {"score": 0, "explanation": "", "key_findings": []},
    "security_measures": {"score": 0, "explanation": "", "key_findings": []},
    "compliance": {"score": 0, "explanation": "", "key_findings": []},
    "older_adult_considerations": {"score": 0, "explanation": "", "key_findings": []}
  },
  "red_flags": [
    {"finding": "", "severity": "critical|high|medium|low", "quote": "", "category": "", "location": "", "impact": ""}
  ],
  "positive_practices": [
    {"category": "", "description": "", "quote": "", "impact": ""}
  ],
  "missing_information": [],
  "quotable_findings": [
    {"category": "", "finding": "", "quote": "", "significance": "high|medium|low"}
  ],
  "confidence_score": 0
}`

const scoringGuidance = `SCORING GUIDANCE:
- 90-100: Excellent practices, very protective of user privacy
- 70-89: Good practices with minor concerns
- 50-69: Average with notable concerns
- 30-49: Poor practices, significant concerns
- 0-29: Severe privacy issues, highly concerning
Set "score" to null for any category this text gives no basis to judge.`

// BuildPrompt renders the analysis prompt for one text segment at the
// given depth, including detected document structure when available.
func BuildPrompt(segment string, structure Structure, depth string) string {
	var b strings.Builder

	switch depth {
	case DepthQuick:
		b.WriteString("You are a privacy expert. Quickly analyze this healthcare privacy policy, focusing on the most critical issues.\n\n")
	case DepthDeep:
		b.WriteString("You are a privacy and security expert specializing in healthcare applications and HIPAA compliance. Analyze the following privacy policy using chain-of-thought reasoning: identify stakeholders, map data flows, examine consent mechanisms, flag euphemistic or vague language, detect missing information, assess HIPAA compliance claims, and evaluate readability for older adults before synthesizing scores.\n\n")
	default:
		b.WriteString("You are a privacy and security expert specializing in healthcare applications. Analyze the following privacy policy comprehensively across all categories: stakeholders, data flows, consent mechanisms, vague language, missing information, HIPAA compliance, and readability for older adults.\n\n")
	}

	b.WriteString("PRIVACY POLICY TEXT:\n")
	b.WriteString(segment)
	b.WriteString("\n")

	if len(structure.Headers) > 0 {
		b.WriteString("\nDOCUMENT STRUCTURE:\n")
		fmt.Fprintf(&b, "Total sections identified: %d\nMain sections:\n", len(structure.Headers))
		for i, h := range structure.Headers {
			if i >= 10 {
				break
			}
			fmt.Fprintf(&b, "  - %s\n", h.Text)
		}
	}

	b.WriteString("\nProvide your analysis in this EXACT JSON format:\n")
	b.WriteString(outputSchema)
	b.WriteString("\n\n")
	b.WriteString(scoringGuidance)
	b.WriteString("\n\nBe specific and cite exact quotes. Identify at least 3-5 red flags if present, and 2-3 positive practices. Ensure ALL JSON fields are present and properly formatted.")

	return b.String()
}

// MaxOutputTokens returns the completion token budget for a depth, capped
// at the model's completion limit.
func MaxOutputTokens(depth, model string) int {
	desired := map[string]int{
		DepthQuick:    3000,
		DepthStandard: 6000,
		DepthDeep:     12000,
	}[depth]
	if desired == 0 {
		desired = 6000
	}

	limit := 4096
	if strings.Contains(model, "claude") || strings.Contains(model, "gpt-4o") {
		limit = 8192
	}
	if desired > limit {
		return limit
	}
	return desired
}
