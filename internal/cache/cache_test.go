// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"

	"policyscan/internal/analysis"
)

type memoryStore struct {
	mu      sync.Mutex
	entries map[string]*Entry
	puts    int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{entries: make(map[string]*Entry)}
}

func (m *memoryStore) Get(ctx context.Context, key string) (*Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[key]
	return entry, ok, nil
}

func (m *memoryStore) Put(ctx context.Context, entry *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entry.Key] = entry
	m.puts++
	return nil
}

func (m *memoryStore) Keys(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.entries))
	for key := range m.entries {
		keys = append(keys, key)
	}
	return keys, nil
}

func record(name string) *analysis.Record {
	return &analysis.Record{AppName: name, Categories: make(map[string]analysis.Category)}
}

func TestKeyNormalizesWhitespace(t *testing.T) {
	a := Key("We collect   data.\n\nAlways.", "standard", "gpt-4o")
	b := Key("We collect data. Always.", "standard", "gpt-4o")
	if a != b {
		t.Error("incidental whitespace must not change the key")
	}

	if Key("We collect data. Always.", "deep", "gpt-4o") == a {
		t.Error("depth must change the key")
	}
	if Key("We collect data. Always.", "standard", "gpt-4o-mini") == a {
		t.Error("model must change the key")
	}
}

func TestGetOrComputeHitSkipsCompute(t *testing.T) {
	c := New(newMemoryStore())
	ctx := context.Background()
	computes := 0
	compute := func(context.Context) (*analysis.Record, error) {
		computes++
		return record("App"), nil
	}

	for i := 0; i < 3; i++ {
		rec, err := c.GetOrCompute(ctx, "k1", compute)
		if err != nil {
			t.Fatalf("get or compute: %v", err)
		}
		if rec.AppName != "App" {
			t.Fatalf("unexpected record %q", rec.AppName)
		}
	}
	if computes != 1 {
		t.Errorf("computes = %d, want 1", computes)
	}

	stats := c.Stats()
	if stats.Hits != 2 || stats.Misses != 1 {
		t.Errorf("stats = %d hits / %d misses, want 2/1", stats.Hits, stats.Misses)
	}
}

func TestGetOrComputeSingleFlight(t *testing.T) {
	c := New(newMemoryStore())
	ctx := context.Background()

	var computes atomic.Int32
	gate := make(chan struct{})
	compute := func(context.Context) (*analysis.Record, error) {
		computes.Add(1)
		<-gate
		return record("App"), nil
	}

	const callers = 8
	var wg sync.WaitGroup
	results := make([]*analysis.Record, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec, err := c.GetOrCompute(ctx, "shared", compute)
			if err != nil {
				t.Errorf("caller %d: %v", i, err)
				return
			}
			results[i] = rec
		}(i)
	}

	// Let the callers pile up behind the single in-flight computation.
	for computes.Load() == 0 {
		runtime.Gosched()
	}
	close(gate)
	wg.Wait()

	if got := computes.Load(); got != 1 {
		t.Errorf("computes = %d, want 1 for concurrent misses", got)
	}
	for i, rec := range results {
		if rec == nil || rec.AppName != "App" {
			t.Errorf("caller %d got %+v", i, rec)
		}
	}
}

func TestGetOrComputeFailureNotStored(t *testing.T) {
	store := newMemoryStore()
	c := New(store)
	ctx := context.Background()

	_, err := c.GetOrCompute(ctx, "bad", func(context.Context) (*analysis.Record, error) {
		return nil, errors.New("inference down")
	})
	if err == nil {
		t.Fatal("expected compute error to surface")
	}
	if store.puts != 0 {
		t.Error("failed computation must not be stored")
	}

	// A later successful compute for the same key works.
	rec, err := c.GetOrCompute(ctx, "bad", func(context.Context) (*analysis.Record, error) {
		return record("Recovered"), nil
	})
	if err != nil || rec.AppName != "Recovered" {
		t.Errorf("recovery failed: %v %+v", err, rec)
	}
}

func TestForceOverwrites(t *testing.T) {
	store := newMemoryStore()
	c := New(store)
	ctx := context.Background()

	if _, err := c.GetOrCompute(ctx, "k", func(context.Context) (*analysis.Record, error) {
		return record("Old"), nil
	}); err != nil {
		t.Fatal(err)
	}

	rec, err := c.Force(ctx, "k", func(context.Context) (*analysis.Record, error) {
		return record("New"), nil
	})
	if err != nil || rec.AppName != "New" {
		t.Fatalf("force: %v %+v", err, rec)
	}

	cached, found, err := c.Get(ctx, "k")
	if err != nil || !found {
		t.Fatalf("get after force: %v found=%t", err, found)
	}
	if cached.AppName != "New" {
		t.Errorf("cached = %q, want the forced record", cached.AppName)
	}
}

func TestForceKeepsOldEntryOnFailure(t *testing.T) {
	c := New(newMemoryStore())
	ctx := context.Background()

	if _, err := c.GetOrCompute(ctx, "k", func(context.Context) (*analysis.Record, error) {
		return record("Old"), nil
	}); err != nil {
		t.Fatal(err)
	}

	if _, err := c.Force(ctx, "k", func(context.Context) (*analysis.Record, error) {
		return nil, errors.New("boom")
	}); err == nil {
		t.Fatal("expected force failure to surface")
	}

	cached, found, _ := c.Get(ctx, "k")
	if !found || cached.AppName != "Old" {
		t.Error("failed force must not disturb the existing entry")
	}
}

func TestDiskStoreRoundTrip(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatalf("new disk store: %v", err)
	}
	ctx := context.Background()

	key := Key("policy text", "standard", "gpt-4o")
	rec := record("DiskApp")
	rec.OverallRiskScore = 42

	if err := store.Put(ctx, &Entry{Key: key, Record: rec}); err != nil {
		t.Fatalf("put: %v", err)
	}

	entry, found, err := store.Get(ctx, key)
	if err != nil || !found {
		t.Fatalf("get: %v found=%t", err, found)
	}
	if entry.Record.AppName != "DiskApp" || entry.Record.OverallRiskScore != 42 {
		t.Errorf("round trip lost data: %+v", entry.Record)
	}

	keys, err := store.Keys(ctx)
	if err != nil || len(keys) != 1 || keys[0] != key {
		t.Errorf("keys = %v, %v", keys, err)
	}

	if _, found, err := store.Get(ctx, Key("other", "standard", "gpt-4o")); err != nil || found {
		t.Errorf("missing key: found=%t err=%v", found, err)
	}
}
