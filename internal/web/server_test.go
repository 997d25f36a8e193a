// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"policyscan/internal/analysis"
	"policyscan/internal/cache"
	"policyscan/internal/compare"
	"policyscan/internal/resilience"
	"policyscan/internal/validate"
)

type memoryStore struct {
	mu      sync.Mutex
	entries map[string]*cache.Entry
}

func newMemoryStore() *memoryStore {
	return &memoryStore{entries: make(map[string]*cache.Entry)}
}

func (m *memoryStore) Get(ctx context.Context, key string) (*cache.Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[key]
	return entry, ok, nil
}

func (m *memoryStore) Put(ctx context.Context, entry *cache.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entry.Key] = entry
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

type stubAnalyzer struct{}

func (stubAnalyzer) AnalyzeDocument(ctx context.Context, appName, url, text string, force bool) (*analysis.Record, error) {
	return testRecord(appName, 40), nil
}

func testRecord(name string, risk float64) *analysis.Record {
	rec := &analysis.Record{
		AppName:                  name,
		AnalysisDate:             time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		Summary:                  "summary for " + name,
		Categories:               make(map[string]analysis.Category),
		RedFlags:                 []analysis.RedFlag{},
		PositivePractices:        []analysis.PositivePractice{},
		OverallRiskScore:         risk,
		OverallTransparencyScore: 100 - risk,
		ConfidenceScore:          80,
	}
	for _, cat := range analysis.CategoryNames {
		rec.Categories[cat] = analysis.Category{Score: 100 - risk, KeyFindings: []string{"finding"}}
	}
	return rec
}

func newTestServer(t *testing.T, records ...*analysis.Record) (*Server, *cache.Cache) {
	t.Helper()
	store := cache.New(newMemoryStore())
	for _, rec := range records {
		key := cache.Key(rec.Summary, "standard", "gpt-4o")
		if _, err := store.Force(context.Background(), key, func(context.Context) (*analysis.Record, error) {
			return rec, nil
		}); err != nil {
			t.Fatalf("seeding cache: %v", err)
		}
	}
	cfg := Config{
		Addr:            ":0",
		ValidateOptions: validate.BatchOptions{},
		CompareConfig:   compare.DefaultConfig(),
	}
	return NewServer(cfg, store, stubAnalyzer{}, nil), store
}

func doRequest(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	s.routes().ServeHTTP(rr, req)
	return rr
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	rr := doRequest(t, s, http.MethodGet, "/api/health", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %v", body["status"])
	}
}

// guardedAnalyzer is a stub whose inference calls run behind a circuit
// breaker, like the real pipeline.
type guardedAnalyzer struct {
	stubAnalyzer
	breaker *resilience.CircuitBreaker
}

func (g *guardedAnalyzer) BreakerStats() []resilience.CircuitBreakerStats {
	return []resilience.CircuitBreakerStats{g.breaker.GetStats()}
}

func TestHealthEndpointReportsBreakerStats(t *testing.T) {
	analyzer := &guardedAnalyzer{
		breaker: resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig("inference:gpt-4o")),
	}
	s := NewServer(Config{Addr: ":0"}, cache.New(newMemoryStore()), analyzer, nil)

	rr := doRequest(t, s, http.MethodGet, "/api/health", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var body struct {
		Breakers []resilience.CircuitBreakerStats `json:"inference_breakers"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(body.Breakers) != 1 || body.Breakers[0].Name != "inference:gpt-4o" {
		t.Fatalf("breaker stats missing: %+v", body.Breakers)
	}
	if body.Breakers[0].State != resilience.StateClosed {
		t.Errorf("expected a closed breaker, got %v", body.Breakers[0].State)
	}
}

func TestListRecordsSorted(t *testing.T) {
	s, _ := newTestServer(t, testRecord("Zeta", 30), testRecord("Alpha", 50))
	rr := doRequest(t, s, http.MethodGet, "/api/records", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var body struct {
		Count   int             `json:"count"`
		Records []recordSummary `json:"records"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body.Count != 2 {
		t.Fatalf("count = %d", body.Count)
	}
	if body.Records[0].AppName != "Alpha" || body.Records[1].AppName != "Zeta" {
		t.Errorf("records not name-sorted: %+v", body.Records)
	}
}

func TestGetRecordNotFound(t *testing.T) {
	s, _ := newTestServer(t)
	rr := doRequest(t, s, http.MethodGet, "/api/records/deadbeef", "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rr.Code)
	}
}

func TestValidationEndpoint(t *testing.T) {
	s, _ := newTestServer(t, testRecord("Alpha", 30), testRecord("Beta", 40))
	rr := doRequest(t, s, http.MethodGet, "/api/validation", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var result validate.BatchResult
	if err := json.Unmarshal(rr.Body.Bytes(), &result); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if result.TotalRecords != 2 {
		t.Errorf("total = %d, want 2", result.TotalRecords)
	}
}

func TestReportEndpoint(t *testing.T) {
	s, _ := newTestServer(t, testRecord("Alpha", 30), testRecord("Beta", 40), testRecord("Gamma", 60))
	rr := doRequest(t, s, http.MethodGet, "/api/report", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var report compare.Report
	if err := json.Unmarshal(rr.Body.Bytes(), &report); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if report.NumRecords != 3 {
		t.Errorf("num records = %d, want 3", report.NumRecords)
	}
}

func TestReportEndpointEmptyCache(t *testing.T) {
	s, _ := newTestServer(t)
	rr := doRequest(t, s, http.MethodGet, "/api/report", "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rr.Code)
	}
}

func TestAnalyzeEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	body := `{"app_name":"NewApp","text":"some policy text"}`
	rr := doRequest(t, s, http.MethodPost, "/api/analyze", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}
	var rec analysis.Record
	if err := json.Unmarshal(rr.Body.Bytes(), &rec); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if rec.AppName != "NewApp" {
		t.Errorf("app name = %q", rec.AppName)
	}
}

func TestAnalyzeEndpointRejectsMissingFields(t *testing.T) {
	s, _ := newTestServer(t)
	rr := doRequest(t, s, http.MethodPost, "/api/analyze", `{"app_name":"NoText"}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}
