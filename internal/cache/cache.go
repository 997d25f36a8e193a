// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package cache is the content-addressable store for finished analysis
// records. Keys are deterministic digests of (normalized document text,
// analysis depth, model), so a repeat request for the same inputs is a
// hit with zero calls to the inference service. The cache is the only
// mutable shared resource in the pipeline; all synchronization is
// key-scoped.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"policyscan/internal/analysis"
)

// Entry wraps a stored record with its key and storage timestamp.
type Entry struct {
	Key      string           `json:"key"`
	Record   *analysis.Record `json:"record"`
	StoredAt time.Time        `json:"stored_at"`
}

// Store is a backend holding at most one entry per key. Writes are
// idempotent: putting an existing key again must not fail.
type Store interface {
	Get(ctx context.Context, key string) (*Entry, bool, error)
	Put(ctx context.Context, entry *Entry) error
	Keys(ctx context.Context) ([]string, error)
}

// Key derives the deterministic cache key for a document. Text is
// whitespace-normalized first so incidental formatting differences in a
// re-fetched document do not defeat the cache.
func Key(text, depth, model string) string {
	normalized := strings.Join(strings.Fields(text), " ")
	sum := sha256.Sum256([]byte(normalized + "\x00" + depth + "\x00" + model))
	return hex.EncodeToString(sum[:])
}

// ComputeFunc produces a record on a cache miss. It wraps chunking, the
// external inference calls, and merging.
type ComputeFunc func(ctx context.Context) (*analysis.Record, error)

// call tracks one in-flight computation so concurrent misses for the same
// key wait for the first caller's result instead of duplicating the
// expensive external calls.
type call struct {
	done chan struct{}
	rec  *analysis.Record
	err  error
}

// Cache fronts a Store with per-key dogpile prevention and hit/miss
// accounting.
type Cache struct {
	store Store

	mu       sync.Mutex
	inflight map[string]*call

	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a cache over the given backend.
func New(store Store) *Cache {
	return &Cache{
		store:    store,
		inflight: make(map[string]*call),
	}
}

// GetOrCompute returns the record for key, computing and storing it on a
// miss. Only one computation runs per key at a time; concurrent callers
// for the same key block until the first publishes its result. A failed
// computation is not stored and never disturbs an existing entry.
func (c *Cache) GetOrCompute(ctx context.Context, key string, compute ComputeFunc) (*analysis.Record, error) {
	if entry, found, err := c.store.Get(ctx, key); err == nil && found {
		c.hits.Add(1)
		return entry.Record, nil
	}

	c.mu.Lock()
	if inflight, ok := c.inflight[key]; ok {
		c.mu.Unlock()
		select {
		case <-inflight.done:
			return inflight.rec, inflight.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	cl := &call{done: make(chan struct{})}
	c.inflight[key] = cl
	c.mu.Unlock()

	// Re-check under the in-flight guard: another caller may have
	// published between our miss and registration.
	if entry, found, err := c.store.Get(ctx, key); err == nil && found {
		cl.rec = entry.Record
		c.finish(key, cl)
		c.hits.Add(1)
		return entry.Record, nil
	}

	c.misses.Add(1)
	cl.rec, cl.err = compute(ctx)
	if cl.err == nil {
		cl.err = c.store.Put(ctx, &Entry{Key: key, Record: cl.rec, StoredAt: time.Now().UTC()})
		if cl.err != nil {
			// The record itself is good; surface it even if the
			// backend write failed.
			cl.err = nil
		}
	}
	c.finish(key, cl)
	return cl.rec, cl.err
}

// Force recomputes the record for key, bypassing lookup, and overwrites
// the prior entry only when the computation succeeds.
func (c *Cache) Force(ctx context.Context, key string, compute ComputeFunc) (*analysis.Record, error) {
	c.misses.Add(1)
	rec, err := compute(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.store.Put(ctx, &Entry{Key: key, Record: rec, StoredAt: time.Now().UTC()}); err != nil {
		return rec, nil
	}
	return rec, nil
}

// Get returns a cached record without computing.
func (c *Cache) Get(ctx context.Context, key string) (*analysis.Record, bool, error) {
	entry, found, err := c.store.Get(ctx, key)
	if err != nil || !found {
		return nil, false, err
	}
	return entry.Record, true, nil
}

// Keys lists the keys present in the backend.
func (c *Cache) Keys(ctx context.Context) ([]string, error) {
	return c.store.Keys(ctx)
}

func (c *Cache) finish(key string, cl *call) {
	c.mu.Lock()
	delete(c.inflight, key)
	c.mu.Unlock()
	close(cl.done)
}

// Stats reports hit/miss counters for this process.
type Stats struct {
	Hits          int64   `json:"cache_hits"`
	Misses        int64   `json:"cache_misses"`
	TotalRequests int64   `json:"total_requests"`
	HitRate       float64 `json:"hit_rate_percent"`
}

// Stats returns the current counters.
func (c *Cache) Stats() Stats {
	hits, misses := c.hits.Load(), c.misses.Load()
	s := Stats{Hits: hits, Misses: misses, TotalRequests: hits + misses}
	if s.TotalRequests > 0 {
		s.HitRate = float64(hits) / float64(s.TotalRequests) * 100
	}
	return s
}
