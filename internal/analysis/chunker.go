// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package analysis

import (
	"strings"
	"unicode"
)

// DefaultMaxChunkTokens is the per-chunk token budget used when the
// configuration does not override it.
const DefaultMaxChunkTokens = 6000

// boundaryLookback is how many lines the chunker walks back from a hard
// token limit looking for a section boundary to split at instead.
const boundaryLookback = 20

// sectionKeywords mark heading-like lines even when they carry no other
// structural hint.
var sectionKeywords = []string{
	"introduction", "collection", "usage", "sharing", "retention",
	"rights", "security", "contact", "changes", "compliance",
}

// Chunk is a contiguous slice of the source document. Chunks exist only
// for the duration of one document's processing; the Tokens field weights
// the chunk's contribution during merge.
type Chunk struct {
	Index  int
	Text   string
	Tokens int
}

// Header is a detected section heading.
type Header struct {
	Line  int
	Text  string
	Level int
}

// Structure summarizes the document's sectioning, used for prompt
// construction and boundary-aware chunking.
type Structure struct {
	TotalLines        int
	Headers           []Header
	EstimatedSections int
}

// EstimateTokens approximates the token count of text. There is no Go
// tokenizer for the target models; four characters per token is close
// enough for split sizing.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + 3) / 4
}

// ExtractStructure detects heading-like lines: short lines that are
// all-caps, numbered, end in a colon, or contain a known section keyword.
func ExtractStructure(text string) Structure {
	lines := strings.Split(text, "\n")
	var headers []Header

	for i, line := range lines {
		clean := strings.TrimSpace(line)
		if clean == "" || len(clean) >= 100 {
			continue
		}
		if isHeaderLine(clean) {
			headers = append(headers, Header{
				Line:  i,
				Text:  clean,
				Level: headerLevel(clean),
			})
		}
	}

	return Structure{
		TotalLines:        len(lines),
		Headers:           headers,
		EstimatedSections: len(headers),
	}
}

func isHeaderLine(clean string) bool {
	if isAllUpper(clean) {
		return true
	}
	if r := rune(clean[0]); unicode.IsDigit(r) {
		return true
	}
	if strings.HasSuffix(clean, ":") {
		return true
	}
	lower := strings.ToLower(clean)
	for _, kw := range sectionKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func headerLevel(clean string) int {
	switch {
	case isAllUpper(clean):
		return 1
	case unicode.IsDigit(rune(clean[0])):
		return 2
	default:
		return 3
	}
}

// isAllUpper reports whether the line contains at least one letter and no
// lowercase letters.
func isAllUpper(s string) bool {
	hasLetter := false
	for _, r := range s {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsLetter(r) {
			hasLetter = true
		}
	}
	return hasLetter
}

// SplitChunks splits a document into ordered, non-overlapping chunks of at
// most maxTokens each. Documents under the budget come back as a single
// chunk. Splits land on line boundaries, preferring a detected section
// heading within the lookback window; when none is found the split falls
// back to the hard token limit, which guarantees termination.
func SplitChunks(text string, maxTokens int) []Chunk {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxChunkTokens
	}
	if EstimateTokens(text) <= maxTokens {
		return []Chunk{{Index: 0, Text: text, Tokens: EstimateTokens(text)}}
	}

	lines := strings.Split(text, "\n")
	var chunks []Chunk
	var current []string
	currentTokens := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		chunkText := strings.Join(current, "\n")
		chunks = append(chunks, Chunk{
			Index:  len(chunks),
			Text:   chunkText,
			Tokens: EstimateTokens(chunkText),
		})
		current = nil
		currentTokens = 0
	}

	for i := 0; i < len(lines); i++ {
		lineTokens := EstimateTokens(lines[i]) + 1

		if currentTokens+lineTokens > maxTokens && len(current) > 0 {
			// Walk back through the pending lines for a section
			// boundary so the split stays topically coherent.
			if cut := boundaryCut(current); cut > 0 {
				carry := append([]string(nil), current[cut:]...)
				current = current[:cut]
				flush()
				current = carry
				for _, l := range carry {
					currentTokens += EstimateTokens(l) + 1
				}
			} else {
				flush()
			}
		}

		current = append(current, lines[i])
		currentTokens += lineTokens
	}
	flush()

	return chunks
}

// boundaryCut returns the index in pending at which to cut so that a
// header line starts the next chunk, or 0 when no boundary exists within
// the lookback window.
func boundaryCut(pending []string) int {
	start := len(pending) - boundaryLookback
	if start < 1 {
		start = 1
	}
	for i := len(pending) - 1; i >= start; i-- {
		clean := strings.TrimSpace(pending[i])
		if clean == "" || len(clean) >= 100 {
			continue
		}
		if isHeaderLine(clean) {
			return i
		}
	}
	return 0
}
