// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package inference wraps the external text-understanding service. The
// rest of the pipeline consumes it as an opaque function from a text
// segment to a draft record; prompt construction and transport live here.
package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"policyscan/internal/analysis"
	"policyscan/internal/resilience"

	openai "github.com/sashabaranov/go-openai"
)

// Client analyzes one text segment at a given depth and returns the raw
// draft record for that segment.
type Client interface {
	Analyze(ctx context.Context, segment string, structure analysis.Structure, depth string) (*analysis.Draft, error)
	Model() string
	Provider() string
}

// systemPrompt frames every request; the per-segment instructions come
// from analysis.BuildPrompt.
const systemPrompt = "You are a privacy and security expert specializing in healthcare applications and HIPAA compliance. Provide comprehensive analysis in valid JSON format."

// requestTimeout bounds a single completion call. Retries are handled by
// the caller through the resilience package.
const requestTimeout = 3 * time.Minute

// OpenAIClient implements Client against any OpenAI-compatible endpoint.
type OpenAIClient struct {
	api         *openai.Client
	model       string
	provider    string
	temperature float32
	breaker     *resilience.CircuitBreaker
}

// NewOpenAIClient builds a client for the given API key and model. An
// empty baseURL targets the public OpenAI endpoint; setting it allows any
// compatible provider to serve as primary or fallback.
func NewOpenAIClient(apiKey, model, baseURL string, temperature float32) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	provider := "openai"
	if baseURL != "" {
		cfg.BaseURL = baseURL
		provider = "openai-compatible"
	}
	return &OpenAIClient{
		api:         openai.NewClientWithConfig(cfg),
		model:       model,
		provider:    provider,
		temperature: temperature,
		breaker:     resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig("inference:" + model)),
	}
}

// Model returns the model identifier used in cache keys and metadata.
func (c *OpenAIClient) Model() string { return c.model }

// Provider returns the provider tag recorded in metadata.
func (c *OpenAIClient) Provider() string { return c.provider }

// BreakerStats snapshots the provider circuit breaker for health
// reporting.
func (c *OpenAIClient) BreakerStats() resilience.CircuitBreakerStats {
	return c.breaker.GetStats()
}

// Analyze runs one completion for a segment and parses the JSON draft.
// Transport failures are classified for the retry layer; a response that
// is not valid JSON is permanent, since retrying the same prompt against
// a broken parser wastes the call budget.
func (c *OpenAIClient) Analyze(ctx context.Context, segment string, structure analysis.Structure, depth string) (*analysis.Draft, error) {
	callCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: analysis.BuildPrompt(segment, structure, depth)},
		},
	}
	maxOut := analysis.MaxOutputTokens(depth, c.model)
	// Reasoning models take MaxCompletionTokens instead of MaxTokens.
	if strings.HasPrefix(c.model, "o1") || strings.HasPrefix(c.model, "o3") ||
		strings.HasPrefix(c.model, "o4") || strings.HasPrefix(c.model, "gpt-5") {
		req.MaxCompletionTokens = maxOut
	} else {
		req.MaxTokens = maxOut
	}

	var resp openai.ChatCompletionResponse
	err := c.breaker.Execute(callCtx, func(ctx context.Context) error {
		var apiErr error
		resp, apiErr = c.api.CreateChatCompletion(ctx, req)
		return apiErr
	})
	if err != nil {
		return nil, classifyAPIError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, resilience.NewTransientError("inference returned no choices", nil)
	}

	draft, err := parseDraft(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, resilience.NewPermanentError(fmt.Sprintf("malformed inference response: %v", err), err)
	}
	draft.TokensUsed = resp.Usage.TotalTokens
	return draft, nil
}

// parseDraft decodes a draft from model output, tolerating prose around
// the JSON object the way chat models sometimes wrap it.
func parseDraft(content string) (*analysis.Draft, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end <= start {
		return nil, errors.New("no JSON object in response")
	}

	var draft analysis.Draft
	if err := json.Unmarshal([]byte(content[start:end+1]), &draft); err != nil {
		return nil, err
	}
	if draft.Categories == nil {
		draft.Categories = make(map[string]analysis.DraftCategory)
	}
	return &draft, nil
}

// classifyAPIError maps provider errors onto the retry taxonomy: rate
// limits and server-side failures are transient, auth and request errors
// permanent.
func classifyAPIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == 429:
			return resilience.NewTransientError(fmt.Sprintf("rate limit: %v", apiErr.Message), err)
		case apiErr.HTTPStatusCode >= 500:
			return resilience.NewTransientError(fmt.Sprintf("service unavailable: %v", apiErr.Message), err)
		case apiErr.HTTPStatusCode == 401 || apiErr.HTTPStatusCode == 403:
			return resilience.NewPermanentError(fmt.Sprintf("unauthorized: %v", apiErr.Message), err)
		case apiErr.HTTPStatusCode == 400:
			return resilience.NewPermanentError(fmt.Sprintf("bad request: %v", apiErr.Message), err)
		}
	}
	return resilience.ClassifyError(err)
}
