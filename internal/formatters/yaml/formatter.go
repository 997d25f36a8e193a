// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package yaml

import (
	"encoding/json"
	"fmt"

	goyaml "gopkg.in/yaml.v3"

	"policyscan/internal/formatters"
)

// Formatter implements YAML output formatting
type Formatter struct{}

// NewFormatter creates a new YAML formatter
func NewFormatter() *Formatter {
	return &Formatter{}
}

func init() {
	formatters.Register(NewFormatter())
}

func (f *Formatter) Name() string {
	return "yaml"
}

func (f *Formatter) Description() string {
	return "YAML output for configuration-friendly consumption"
}

func (f *Formatter) FileExtension() string {
	return ".yaml"
}

// Format encodes through JSON first so the YAML keys match the JSON
// field names the rest of the toolchain uses.
func (f *Formatter) Format(payload formatters.Payload, options formatters.FormatterOptions) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encoding payload: %w", err)
	}
	var generic map[string]interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return "", fmt.Errorf("decoding payload: %w", err)
	}
	data, err := goyaml.Marshal(generic)
	if err != nil {
		return "", fmt.Errorf("encoding payload: %w", err)
	}
	return string(data), nil
}
