// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package web exposes analysis results over HTTP. The server reads the
// same cache the CLI writes and serves records, validation results, and
// comparative reports as JSON. Rendering stays in the formatters; the
// API only serializes structures.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"policyscan/internal/analysis"
	"policyscan/internal/cache"
	"policyscan/internal/compare"
	"policyscan/internal/observability"
	"policyscan/internal/resilience"
	"policyscan/internal/validate"
	"policyscan/internal/version"
)

const shutdownTimeout = 10 * time.Second

// Analyzer runs a full document analysis. Satisfied by core.Pipeline.
type Analyzer interface {
	AnalyzeDocument(ctx context.Context, appName, url, text string, force bool) (*analysis.Record, error)
}

// Config carries the server's tunables.
type Config struct {
	Addr            string
	ValidateOptions validate.BatchOptions
	CompareConfig   compare.Config
}

// Server serves cached analysis records and derived reports.
type Server struct {
	cfg      Config
	store    *cache.Cache
	analyzer Analyzer
	observer *observability.StandardObserver
	http     *http.Server
}

// NewServer builds a server over the given cache. The analyzer may be
// nil; the analyze endpoint then returns 503.
func NewServer(cfg Config, store *cache.Cache, analyzer Analyzer, observer *observability.StandardObserver) *Server {
	s := &Server{cfg: cfg, store: store, analyzer: analyzer, observer: observer}
	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// ListenAndServe blocks until the listener fails or Shutdown is called.
func (s *Server) ListenAndServe() error {
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests then closes the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	return s.http.Shutdown(ctx)
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/records", s.handleListRecords)
	r.Get("/api/records/{key}", s.handleGetRecord)
	r.Get("/api/validation", s.handleValidation)
	r.Get("/api/report", s.handleReport)
	r.Post("/api/analyze", s.handleAnalyze)
	return r
}

// breakerReporter is satisfied by analyzers that expose inference
// circuit breaker stats, such as the core pipeline.
type breakerReporter interface {
	BreakerStats() []resilience.CircuitBreakerStats
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	payload := map[string]interface{}{
		"status":  "ok",
		"version": version.Short(),
		"cache":   s.store.Stats(),
	}
	if reporter, ok := s.analyzer.(breakerReporter); ok {
		payload["inference_breakers"] = reporter.BreakerStats()
	}
	writeJSON(w, http.StatusOK, payload)
}

// recordSummary is the listing view of a cached record.
type recordSummary struct {
	Key          string    `json:"key"`
	AppName      string    `json:"app_name"`
	URL          string    `json:"url,omitempty"`
	AnalysisDate time.Time `json:"analysis_date"`
	RiskScore    float64   `json:"overall_risk_score"`
	Transparency float64   `json:"overall_transparency_score"`
	Partial      bool      `json:"partial,omitempty"`
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	records, keys, err := s.loadRecords(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	summaries := make([]recordSummary, len(records))
	for i, rec := range records {
		summaries[i] = recordSummary{
			Key:          keys[i],
			AppName:      rec.AppName,
			URL:          rec.URL,
			AnalysisDate: rec.AnalysisDate,
			RiskScore:    rec.OverallRiskScore,
			Transparency: rec.OverallTransparencyScore,
			Partial:      rec.Partial,
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(summaries),
		"records": summaries,
	})
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	rec, found, err := s.store.Get(r.Context(), key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, fmt.Errorf("no record for key %s", key))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleValidation(w http.ResponseWriter, r *http.Request) {
	records, _, err := s.loadRecords(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	opts := s.cfg.ValidateOptions
	if r.URL.Query().Get("strict") == "true" {
		opts.Strict = true
	}
	result := validate.ValidateBatch(records, opts)
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	records, _, err := s.loadRecords(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if len(records) == 0 {
		writeError(w, http.StatusNotFound, errors.New("no cached records to compare"))
		return
	}
	writeJSON(w, http.StatusOK, compare.BuildReport(records, s.cfg.CompareConfig))
}

// analyzeRequest is the POST body for on-demand analysis.
type analyzeRequest struct {
	AppName string `json:"app_name"`
	URL     string `json:"url,omitempty"`
	Text    string `json:"text"`
	Force   bool   `json:"force,omitempty"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if s.analyzer == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("analysis is not configured on this server"))
		return
	}
	var req analyzeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 25<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if req.AppName == "" || req.Text == "" {
		writeError(w, http.StatusBadRequest, errors.New("app_name and text are required"))
		return
	}

	finish := s.timing("analyze", req.AppName)
	rec, err := s.analyzer.AnalyzeDocument(r.Context(), req.AppName, req.URL, req.Text, req.Force)
	finish(err == nil, nil)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// loadRecords reads every cached record, name-sorted for stable output.
func (s *Server) loadRecords(ctx context.Context) ([]*analysis.Record, []string, error) {
	keys, err := s.store.Keys(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("listing cache: %w", err)
	}
	type keyed struct {
		key string
		rec *analysis.Record
	}
	loaded := make([]keyed, 0, len(keys))
	for _, key := range keys {
		rec, found, err := s.store.Get(ctx, key)
		if err != nil {
			return nil, nil, fmt.Errorf("reading cache entry %s: %w", key, err)
		}
		if found && rec != nil {
			loaded = append(loaded, keyed{key: key, rec: rec})
		}
	}
	sort.Slice(loaded, func(i, j int) bool {
		if loaded[i].rec.AppName != loaded[j].rec.AppName {
			return loaded[i].rec.AppName < loaded[j].rec.AppName
		}
		return loaded[i].key < loaded[j].key
	})

	records := make([]*analysis.Record, len(loaded))
	outKeys := make([]string, len(loaded))
	for i, l := range loaded {
		records[i] = l.rec
		outKeys[i] = l.key
	}
	return records, outKeys, nil
}

func (s *Server) timing(operation, subject string) func(bool, map[string]interface{}) {
	if s.observer == nil {
		return func(bool, map[string]interface{}) {}
	}
	return s.observer.StartTiming("web", operation, subject)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
