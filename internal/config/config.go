// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"policyscan/internal/cost"
	"policyscan/internal/resilience"
)

// Config represents the application configuration
type Config struct {
	// Default settings
	Defaults struct {
		Format  string `yaml:"format"`
		Verbose bool   `yaml:"verbose"`
		Debug   bool   `yaml:"debug"`
		NoColor bool   `yaml:"no_color"`
	} `yaml:"defaults"`

	// LLM provider settings
	LLM struct {
		Model           string  `yaml:"model"`
		APIKeyEnv       string  `yaml:"api_key_env"`
		BaseURL         string  `yaml:"base_url"`
		Temperature     float32 `yaml:"temperature"`
		FallbackModel   string  `yaml:"fallback_model"`
		FallbackBaseURL string  `yaml:"fallback_base_url"`
	} `yaml:"llm"`

	// Analysis pipeline settings
	Analysis struct {
		Depth          string `yaml:"depth"`
		MaxChunkTokens int    `yaml:"max_chunk_tokens"`
		ChunkFanOut    int    `yaml:"chunk_fanout"`
	} `yaml:"analysis"`

	// Cache settings
	Cache struct {
		Backend string `yaml:"backend"` // "disk" or "redis"
		Dir     string `yaml:"dir"`
		Redis   struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			TTLHours int    `yaml:"ttl_hours"`
		} `yaml:"redis"`
	} `yaml:"cache"`

	// Validation settings
	Validation struct {
		Tolerance        float64 `yaml:"consistency_tolerance"`
		AnomalyThreshold float64 `yaml:"anomaly_threshold"`
		MinAnomalySample int     `yaml:"min_anomaly_sample"`
		Strict           bool    `yaml:"strict"`
	} `yaml:"validation"`

	// Comparative engine settings
	Comparison struct {
		Clusters             int `yaml:"clusters"`
		QuotesPerTheme       int `yaml:"quotes_per_theme"`
		MinCorrelationSample int `yaml:"min_correlation_sample"`
	} `yaml:"comparison"`

	// Scoring settings
	Scoring struct {
		Weights    map[string]float64 `yaml:"weights"`
		Thresholds struct {
			Low    float64 `yaml:"low"`
			Medium float64 `yaml:"medium"`
			High   float64 `yaml:"high"`
		} `yaml:"risk_thresholds"`
	} `yaml:"scoring"`

	// Batch workflow settings
	Workflow struct {
		Workers             int    `yaml:"workers"`
		OutputDir           string `yaml:"output_dir"`
		CheckpointDir       string `yaml:"checkpoint_dir"`
		CheckpointInterval  int    `yaml:"checkpoint_interval"`
		MaxRetries          int    `yaml:"max_retries"`
		RetryInitialSeconds int    `yaml:"retry_initial_seconds"`
		RetryMaxSeconds     int    `yaml:"retry_max_seconds"`
	} `yaml:"workflow"`

	// Document fetch settings
	Fetch struct {
		TimeoutSeconds int `yaml:"timeout_seconds"`
	} `yaml:"fetch"`

	// Per-model pricing overrides for cost estimation
	Pricing map[string]cost.ModelPricing `yaml:"pricing"`

	// Web server settings
	Web struct {
		Addr string `yaml:"addr"`
	} `yaml:"web"`
}

// LoadConfig loads configuration from a YAML file. Defaults are applied
// first so a sparse file only overrides what it names; an empty path
// returns the defaults.
func LoadConfig(configPath string) (*Config, error) {
	config := &Config{}

	// Set default values
	config.Defaults.Format = "text"
	config.LLM.Model = "gpt-4o"
	config.LLM.APIKeyEnv = "OPENAI_API_KEY"
	config.LLM.Temperature = 0.2
	config.Analysis.Depth = "standard"
	config.Analysis.MaxChunkTokens = 6000
	config.Analysis.ChunkFanOut = 2
	config.Cache.Backend = "disk"
	config.Cache.Dir = ".policyscan/cache"
	config.Cache.Redis.Addr = "localhost:6379"
	config.Validation.Tolerance = 15
	config.Validation.AnomalyThreshold = 3.0
	config.Validation.MinAnomalySample = 3
	config.Comparison.Clusters = 3
	config.Comparison.QuotesPerTheme = 5
	config.Comparison.MinCorrelationSample = 3
	config.Scoring.Thresholds.Low = 0.3
	config.Scoring.Thresholds.Medium = 0.6
	config.Scoring.Thresholds.High = 0.8
	config.Workflow.Workers = 3
	config.Workflow.OutputDir = "output"
	config.Workflow.CheckpointDir = "output/checkpoints"
	config.Workflow.CheckpointInterval = 5
	config.Workflow.MaxRetries = 4
	config.Workflow.RetryInitialSeconds = 2
	config.Workflow.RetryMaxSeconds = 60
	config.Fetch.TimeoutSeconds = 30
	config.Web.Addr = ":8080"

	if configPath == "" {
		return config, nil
	}

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	if err := ValidateConfig(config); err != nil {
		return nil, err
	}
	return config, nil
}

// FindConfigFile searches the standard locations for a config file and
// returns the first that exists, or an empty string.
func FindConfigFile() string {
	candidates := []string{
		"config.yaml",
		"policyscan.yaml",
		"policyscan.yml",
		".policyscan.yaml",
		".policyscan.yml",
	}
	for _, c := range candidates {
		if fileExists(c) {
			return c
		}
	}

	if home, err := os.UserHomeDir(); err == nil {
		standard := filepath.Join(home, ".policyscan", "config.yaml")
		if fileExists(standard) {
			return standard
		}
	}
	return ""
}

func fileExists(filename string) bool {
	info, err := os.Stat(filename)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// ValidateConfig checks the loaded values for obvious mistakes.
func ValidateConfig(config *Config) error {
	switch config.Analysis.Depth {
	case "quick", "standard", "deep":
	default:
		return fmt.Errorf("invalid analysis depth %q (want quick, standard, or deep)", config.Analysis.Depth)
	}

	switch config.Cache.Backend {
	case "disk", "redis", "none":
	default:
		return fmt.Errorf("invalid cache backend %q (want disk, redis, or none)", config.Cache.Backend)
	}

	if config.Validation.Tolerance < 0 {
		return fmt.Errorf("consistency tolerance must be non-negative")
	}
	if config.Validation.AnomalyThreshold < 0 {
		return fmt.Errorf("anomaly threshold must be non-negative")
	}
	if config.Validation.MinAnomalySample < 1 {
		return fmt.Errorf("min anomaly sample must be at least 1")
	}
	if config.Comparison.Clusters < 1 {
		return fmt.Errorf("cluster count must be at least 1")
	}
	if config.Comparison.MinCorrelationSample < 1 {
		return fmt.Errorf("min correlation sample must be at least 1")
	}
	if config.Workflow.Workers < 1 {
		return fmt.Errorf("worker count must be at least 1")
	}
	if config.Workflow.MaxRetries < 0 {
		return fmt.Errorf("max retries must be non-negative")
	}
	if config.Workflow.RetryInitialSeconds < 1 || config.Workflow.RetryMaxSeconds < config.Workflow.RetryInitialSeconds {
		return fmt.Errorf("retry backoff must satisfy 1 <= retry_initial_seconds <= retry_max_seconds")
	}

	if len(config.Scoring.Weights) > 0 {
		var total float64
		for name, w := range config.Scoring.Weights {
			if w < 0 {
				return fmt.Errorf("scoring weight for %s must be non-negative", name)
			}
			total += w
		}
		if total == 0 {
			return fmt.Errorf("scoring weights must not all be zero")
		}
	}

	t := config.Scoring.Thresholds
	if !(t.Low < t.Medium && t.Medium < t.High) {
		return fmt.Errorf("risk thresholds must be strictly increasing (low < medium < high)")
	}
	return nil
}

// APIKey resolves the provider key from the configured environment
// variable.
func (c *Config) APIKey() string {
	return os.Getenv(c.LLM.APIKeyEnv)
}

// FetchTimeout returns the fetch timeout as a duration.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// RetryConfig converts the workflow retry settings into the resilience
// package's shape, keeping the inference defaults for the knobs the
// config file does not expose.
func (c *Config) RetryConfig() resilience.RetryConfig {
	retry := resilience.InferenceRetryConfig()
	retry.MaxRetries = c.Workflow.MaxRetries
	retry.InitialInterval = time.Duration(c.Workflow.RetryInitialSeconds) * time.Second
	retry.MaxInterval = time.Duration(c.Workflow.RetryMaxSeconds) * time.Second
	return retry
}

// RedisTTL returns the configured cache entry lifetime; zero means
// entries never expire.
func (c *Config) RedisTTL() time.Duration {
	return time.Duration(c.Cache.Redis.TTLHours) * time.Hour
}

// LoadConfigOrDefault loads configuration from configFile (or searches standard locations
// when configFile is empty). If loading fails, it returns a default configuration.
// This is the shared helper used by both the CLI and the web server.
func LoadConfigOrDefault(configFile string) *Config {
	configPath := configFile
	if configPath == "" {
		configPath = FindConfigFile()
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		// Fall back to defaults; callers should not crash on a bad config file.
		cfg, _ = LoadConfig("")
	}
	return cfg
}
