// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package workflow

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// App is one row of the research input: a named document source.
type App struct {
	AppName  string `json:"app_name"`
	URL      string `json:"url"`
	Category string `json:"category,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

// LoadAppsCSV reads the research input file. The header must include
// app_name and url; category and notes are optional. Rows missing
// either required value are skipped.
func LoadAppsCSV(path string) ([]App, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening input csv: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading csv header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	if _, ok := cols["app_name"]; !ok {
		return nil, fmt.Errorf("input csv missing app_name column")
	}
	if _, ok := cols["url"]; !ok {
		return nil, fmt.Errorf("input csv missing url column")
	}

	var apps []App
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading csv row: %w", err)
		}

		app := App{
			AppName:  field(row, cols, "app_name"),
			URL:      field(row, cols, "url"),
			Category: field(row, cols, "category"),
			Notes:    field(row, cols, "notes"),
		}
		if app.AppName == "" || app.URL == "" {
			continue
		}
		apps = append(apps, app)
	}
	return apps, nil
}

func field(row []string, cols map[string]int, name string) string {
	i, ok := cols[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
