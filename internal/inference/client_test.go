// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package inference

import (
	"errors"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"policyscan/internal/resilience"
)

func TestParseDraftPlainJSON(t *testing.T) {
	draft, err := parseDraft(`{"summary":"collects data","confidence_score":85,"categories":{"data_collection":{"score":70,"explanation":"clear"}}}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if draft.Summary != "collects data" || draft.ConfidenceScore != 85 {
		t.Errorf("draft = %+v", draft)
	}
	dc, ok := draft.Categories["data_collection"]
	if !ok || dc.Score == nil || *dc.Score != 70 {
		t.Errorf("category = %+v", dc)
	}
}

func TestParseDraftToleratesSurroundingProse(t *testing.T) {
	content := "Here is the analysis you asked for:\n```json\n" +
		`{"summary":"wrapped","categories":{}}` + "\n```\nLet me know if you need more."
	draft, err := parseDraft(content)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if draft.Summary != "wrapped" {
		t.Errorf("summary = %q", draft.Summary)
	}
}

func TestParseDraftMissingCategoriesInitialized(t *testing.T) {
	draft, err := parseDraft(`{"summary":"no categories"}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if draft.Categories == nil {
		t.Error("categories map should be initialized")
	}
}

func TestParseDraftNoJSON(t *testing.T) {
	if _, err := parseDraft("I cannot analyze this document."); err == nil {
		t.Error("expected error when no JSON object is present")
	}
}

func TestClassifyAPIError(t *testing.T) {
	cases := []struct {
		name      string
		status    int
		retryable bool
	}{
		{"rate limit", 429, true},
		{"server error", 503, true},
		{"unauthorized", 401, false},
		{"bad request", 400, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := classifyAPIError(&openai.APIError{HTTPStatusCode: tc.status, Message: tc.name})
			if got := resilience.IsRetryable(err); got != tc.retryable {
				t.Errorf("status %d retryable = %t, want %t", tc.status, got, tc.retryable)
			}
		})
	}
}

func TestClassifyAPIErrorFallsBackToTaxonomy(t *testing.T) {
	err := classifyAPIError(errors.New("connection refused"))
	var classified *resilience.ClassifiedError
	if !errors.As(err, &classified) {
		t.Fatal("plain errors should come back classified")
	}
}
