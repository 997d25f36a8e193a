// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package core runs the single-document analysis pipeline shared by the
// CLI, the batch workflow, and the web server: chunk, analyze each chunk
// through the inference service, merge the drafts, and cache the result.
package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"policyscan/internal/analysis"
	"policyscan/internal/cache"
	"policyscan/internal/inference"
	"policyscan/internal/observability"
	"policyscan/internal/resilience"
)

// MinPolicyLength is the shortest document worth sending for analysis.
const MinPolicyLength = 100

// Options configures one pipeline instance.
type Options struct {
	Depth          string
	MaxChunkTokens int
	// ChunkFanOut caps how many chunk analyses of one document run
	// concurrently. Zero means sequential.
	ChunkFanOut int
	Retry       resilience.RetryConfig
}

// Pipeline analyzes documents. It is safe for concurrent use; the cache
// provides the only cross-document synchronization.
type Pipeline struct {
	primary  inference.Client
	fallback inference.Client
	cache    *cache.Cache
	observer *observability.StandardObserver
	opts     Options
}

// NewPipeline wires a pipeline. fallback and store may be nil; a nil
// store disables caching entirely.
func NewPipeline(primary, fallback inference.Client, store *cache.Cache, observer *observability.StandardObserver, opts Options) *Pipeline {
	if opts.Depth == "" {
		opts.Depth = analysis.DepthStandard
	}
	if opts.MaxChunkTokens <= 0 {
		opts.MaxChunkTokens = analysis.DefaultMaxChunkTokens
	}
	if opts.Retry.MaxRetries == 0 && opts.Retry.InitialInterval == 0 {
		opts.Retry = resilience.InferenceRetryConfig()
	}
	return &Pipeline{
		primary:  primary,
		fallback: fallback,
		cache:    store,
		observer: observer,
		opts:     opts,
	}
}

// CacheKey returns the content-addressable key this pipeline would use
// for the given document text.
func (p *Pipeline) CacheKey(text string) string {
	return cache.Key(text, p.opts.Depth, p.primary.Model())
}

// breakerReporter is satisfied by clients that guard their transport
// with a circuit breaker.
type breakerReporter interface {
	BreakerStats() resilience.CircuitBreakerStats
}

// BreakerStats snapshots the circuit breakers of the wired inference
// clients, primary first. Clients without a breaker are skipped.
func (p *Pipeline) BreakerStats() []resilience.CircuitBreakerStats {
	var out []resilience.CircuitBreakerStats
	for _, client := range []inference.Client{p.primary, p.fallback} {
		if reporter, ok := client.(breakerReporter); ok {
			out = append(out, reporter.BreakerStats())
		}
	}
	return out
}

// AnalyzeDocument produces the analysis record for one document. With a
// cache attached, a repeat of the same (text, depth, model) is a hit with
// no inference calls; force bypasses lookup but still publishes the fresh
// result.
func (p *Pipeline) AnalyzeDocument(ctx context.Context, appName, url, text string, force bool) (*analysis.Record, error) {
	if len(strings.TrimSpace(text)) < MinPolicyLength {
		return nil, resilience.NewPermanentError(
			fmt.Sprintf("policy text too short to analyze (%d chars)", len(strings.TrimSpace(text))), nil)
	}

	var finish func(bool, map[string]interface{})
	if p.observer != nil {
		finish = p.observer.StartTiming("pipeline", "analyze_document", appName)
	}

	compute := func(ctx context.Context) (*analysis.Record, error) {
		return p.analyze(ctx, appName, url, text)
	}

	var rec *analysis.Record
	var err error
	switch {
	case p.cache == nil:
		rec, err = compute(ctx)
	case force:
		rec, err = p.cache.Force(ctx, p.CacheKey(text), compute)
	default:
		rec, err = p.cache.GetOrCompute(ctx, p.CacheKey(text), compute)
	}

	if finish != nil {
		finish(err == nil, map[string]interface{}{"force": force})
	}
	return rec, err
}

// analyze is the uncached path: chunk, fan out, merge.
func (p *Pipeline) analyze(ctx context.Context, appName, url, text string) (*analysis.Record, error) {
	start := time.Now()
	structure := analysis.ExtractStructure(text)
	chunks := analysis.SplitChunks(text, p.opts.MaxChunkTokens)
	if p.observer != nil && p.observer.DebugObserver != nil {
		p.observer.DebugObserver.LogMetric("pipeline", "chunks", len(chunks))
		p.observer.DebugObserver.LogMetric("pipeline", "sections", structure.EstimatedSections)
	}

	drafts := make([]analysis.ChunkDraft, len(chunks))

	fanOut := p.opts.ChunkFanOut
	if fanOut <= 0 {
		fanOut = 1
	}
	sem := make(chan struct{}, fanOut)
	var wg sync.WaitGroup

	for i, chunk := range chunks {
		wg.Add(1)
		go func(i int, chunk analysis.Chunk) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			draft, err := p.analyzeChunk(ctx, chunk, structure)
			if err != nil {
				// Permanently failed chunk: merged record will be
				// marked partial rather than dropped silently.
				draft = nil
			}
			drafts[i] = analysis.ChunkDraft{Index: chunk.Index, Weight: chunk.Tokens, Draft: draft}
		}(i, chunk)
	}
	// Fan-in barrier: merge only starts once every chunk completed or
	// exhausted its retry budget.
	wg.Wait()

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	rec := analysis.MergeDrafts(drafts)
	if rec.Metadata.ChunksFailed == len(chunks) {
		return nil, resilience.NewPermanentError("all chunks failed to analyze", nil)
	}

	rec.AppName = appName
	rec.URL = url
	rec.Metadata.Model = p.primary.Model()
	rec.Metadata.Provider = p.primary.Provider()
	rec.Metadata.AnalysisDepth = p.opts.Depth
	rec.Metadata.PolicyLength = len(text)
	rec.Metadata.AnalysisTimeMs = time.Since(start).Milliseconds()
	return rec, nil
}

// analyzeChunk retries the primary client with backoff, then falls back
// to the secondary provider before giving up on the chunk.
func (p *Pipeline) analyzeChunk(ctx context.Context, chunk analysis.Chunk, structure analysis.Structure) (*analysis.Draft, error) {
	draft, err := resilience.RetryWithResult(ctx, p.opts.Retry, func(ctx context.Context) (*analysis.Draft, error) {
		return p.primary.Analyze(ctx, chunk.Text, structure, p.opts.Depth)
	})
	if err == nil || p.fallback == nil {
		return draft, err
	}

	draft, fbErr := resilience.RetryWithResult(ctx, p.opts.Retry, func(ctx context.Context) (*analysis.Draft, error) {
		return p.fallback.Analyze(ctx, chunk.Text, structure, p.opts.Depth)
	})
	if fbErr != nil {
		return nil, fmt.Errorf("primary failed (%v); fallback failed: %w", err, fbErr)
	}
	return draft, nil
}
