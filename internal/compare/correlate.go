// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package compare

import (
	"math"

	"github.com/montanaflynn/stats"
)

// MinCorrelationSample is the smallest batch for which a coefficient is
// reported; below it the result says so instead of carrying a misleading
// number.
const MinCorrelationSample = 3

// Correlation reports one pairwise relationship across the batch.
type Correlation struct {
	Coefficient        float64 `json:"coefficient"`
	SampleSize         int     `json:"sample_size"`
	InsufficientSample bool    `json:"insufficient_sample,omitempty"`
	// Stable is set once the sample reaches a size where the
	// coefficient is worth quoting.
	Stable bool `json:"stable"`
}

const stableSample = 10

// pearson correlates two continuous metrics.
func pearson(x, y []float64, minSample int) Correlation {
	n := len(x)
	if n < minSample || n != len(y) {
		return Correlation{SampleSize: n, InsufficientSample: true}
	}
	r, err := stats.Pearson(x, y)
	if err != nil || math.IsNaN(r) {
		return Correlation{SampleSize: n, InsufficientSample: true}
	}
	return Correlation{Coefficient: r, SampleSize: n, Stable: n >= stableSample}
}

// pointBiserial correlates a continuous metric with a binary indicator:
// r = (mean1 − mean0) / std * sqrt(p * q), with the population standard
// deviation over all values.
func pointBiserial(indicator []bool, values []float64, minSample int) Correlation {
	n := len(values)
	if n < minSample || n != len(indicator) {
		return Correlation{SampleSize: n, InsufficientSample: true}
	}

	var sum1, sum0 float64
	var n1, n0 int
	for i, v := range values {
		if indicator[i] {
			sum1 += v
			n1++
		} else {
			sum0 += v
			n0++
		}
	}
	std, _ := stats.StandardDeviationPopulation(values)
	// A constant metric or a one-sided indicator has no defined
	// correlation.
	if n1 == 0 || n0 == 0 || std == 0 {
		return Correlation{SampleSize: n, InsufficientSample: true}
	}

	mean1 := sum1 / float64(n1)
	mean0 := sum0 / float64(n0)
	p := float64(n1) / float64(n)
	q := float64(n0) / float64(n)
	r := (mean1 - mean0) / std * math.Sqrt(p*q)
	return Correlation{Coefficient: r, SampleSize: n, Stable: n >= stableSample}
}
