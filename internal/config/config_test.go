// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigOrDefault_NoFile(t *testing.T) {
	// With no config file, should return defaults without error
	cfg := LoadConfigOrDefault("")
	if cfg == nil {
		t.Fatal("expected non-nil config")
	}
	if cfg.Defaults.Format == "" {
		t.Error("expected default format to be set")
	}
}

func TestLoadConfigOrDefault_NonexistentFile(t *testing.T) {
	// A path that doesn't exist should fall back to defaults
	cfg := LoadConfigOrDefault("/nonexistent/path/config.yaml")
	if cfg == nil {
		t.Fatal("expected non-nil config (fallback to defaults)")
	}
}

func TestLoadConfigOrDefault_ValidFile(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")

	content := `
defaults:
  format: json
llm:
  model: gpt-4o-mini
analysis:
  depth: deep
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg := LoadConfigOrDefault(configPath)
	if cfg == nil {
		t.Fatal("expected non-nil config")
	}
	if cfg.Defaults.Format != "json" {
		t.Errorf("expected format=json, got %q", cfg.Defaults.Format)
	}
	if cfg.LLM.Model != "gpt-4o-mini" {
		t.Errorf("expected model=gpt-4o-mini, got %q", cfg.LLM.Model)
	}
	if cfg.Analysis.Depth != "deep" {
		t.Errorf("expected depth=deep, got %q", cfg.Analysis.Depth)
	}
	// Unset sections keep their defaults.
	if cfg.Cache.Backend != "disk" {
		t.Errorf("expected default cache backend, got %q", cfg.Cache.Backend)
	}
	if cfg.Validation.Tolerance != 15 {
		t.Errorf("expected default tolerance 15, got %v", cfg.Validation.Tolerance)
	}
}

func TestLoadConfigOrDefault_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "bad.yaml")

	if err := os.WriteFile(configPath, []byte(":::invalid yaml:::"), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	// Should fall back to defaults, not panic
	cfg := LoadConfigOrDefault(configPath)
	if cfg == nil {
		t.Fatal("expected non-nil config (fallback to defaults on parse error)")
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Defaults.Format != "text" {
		t.Errorf("expected default format=text, got %q", cfg.Defaults.Format)
	}
	if cfg.Analysis.MaxChunkTokens != 6000 {
		t.Errorf("expected default max_chunk_tokens=6000, got %d", cfg.Analysis.MaxChunkTokens)
	}
	if cfg.Workflow.Workers != 3 {
		t.Errorf("expected default workers=3, got %d", cfg.Workflow.Workers)
	}
	if cfg.Comparison.Clusters != 3 {
		t.Errorf("expected default clusters=3, got %d", cfg.Comparison.Clusters)
	}
	if cfg.Workflow.MaxRetries != 4 || cfg.Workflow.RetryInitialSeconds != 2 || cfg.Workflow.RetryMaxSeconds != 60 {
		t.Errorf("unexpected retry defaults: %+v", cfg.Workflow)
	}
	if cfg.Validation.MinAnomalySample != 3 {
		t.Errorf("expected default min_anomaly_sample=3, got %d", cfg.Validation.MinAnomalySample)
	}
	if cfg.Comparison.MinCorrelationSample != 3 {
		t.Errorf("expected default min_correlation_sample=3, got %d", cfg.Comparison.MinCorrelationSample)
	}
}

func TestRetryConfigFollowsWorkflowSettings(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
workflow:
  max_retries: 2
  retry_initial_seconds: 5
  retry_max_seconds: 20
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	retry := cfg.RetryConfig()
	if retry.MaxRetries != 2 {
		t.Errorf("expected 2 retries, got %d", retry.MaxRetries)
	}
	if retry.InitialInterval != 5*time.Second || retry.MaxInterval != 20*time.Second {
		t.Errorf("backoff intervals wrong: %v / %v", retry.InitialInterval, retry.MaxInterval)
	}
	if !retry.Jitter {
		t.Error("jitter should stay enabled from the inference defaults")
	}
}

func TestLoadConfig_RejectsBadRetryBackoff(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
workflow:
  retry_initial_seconds: 30
  retry_max_seconds: 10
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadConfig(configPath); err == nil {
		t.Error("expected an error for a max interval below the initial interval")
	}
}

func TestLoadConfig_RejectsBadDepth(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("analysis:\n  depth: exhaustive\n"), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadConfig(configPath); err == nil {
		t.Error("expected an error for an unknown depth")
	}
}

func TestLoadConfig_RejectsBadThresholds(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
scoring:
  risk_thresholds:
    low: 0.8
    medium: 0.6
    high: 0.3
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadConfig(configPath); err == nil {
		t.Error("expected an error for non-increasing thresholds")
	}
}

func TestAPIKeyReadsConfiguredEnv(t *testing.T) {
	cfg, _ := LoadConfig("")
	cfg.LLM.APIKeyEnv = "POLICYSCAN_TEST_KEY"
	t.Setenv("POLICYSCAN_TEST_KEY", "secret-value")

	if cfg.APIKey() != "secret-value" {
		t.Error("APIKey should read the configured environment variable")
	}
}
