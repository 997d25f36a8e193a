// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package workflow

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Checkpoint records which documents have finished each pipeline stage,
// so an aborted batch resumes without recomputing cached work.
type Checkpoint struct {
	RunID     string    `json:"run_id"`
	Timestamp time.Time `json:"timestamp"`
	Completed []string  `json:"completed"`
	Failed    []string  `json:"failed"`
	Total     int       `json:"total"`
	Progress  float64   `json:"progress_percent"`
}

// SaveCheckpoint writes the checkpoint atomically under dir.
func SaveCheckpoint(dir string, cp *Checkpoint) (string, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("creating checkpoint directory: %w", err)
	}
	cp.Timestamp = time.Now().UTC()
	if cp.Total > 0 {
		cp.Progress = float64(len(cp.Completed)) / float64(cp.Total) * 100
	}

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, fmt.Sprintf("checkpoint_%s.json", cp.Timestamp.Format("20060102_150405")))
	tmp, err := os.CreateTemp(dir, ".checkpoint-*")
	if err != nil {
		return "", err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return "", err
	}
	return path, nil
}

// LoadCheckpoint reads a checkpoint file.
func LoadCheckpoint(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading checkpoint %s: %w", path, err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("decoding checkpoint %s: %w", path, err)
	}
	return &cp, nil
}

// LatestCheckpoint returns the newest checkpoint in dir, or nil when
// none exist.
func LatestCheckpoint(dir string) (*Checkpoint, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var newest string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != ".json" {
			continue
		}
		if name > newest {
			newest = name
		}
	}
	if newest == "" {
		return nil, nil
	}
	return LoadCheckpoint(filepath.Join(dir, newest))
}
