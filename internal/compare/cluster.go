// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package compare

import (
	"math"
	"sort"

	"github.com/montanaflynn/stats"
)

// ClusterMember is one document inside a cluster.
type ClusterMember struct {
	AppName      string  `json:"app_name"`
	OverallScore float64 `json:"overall_score"`
}

// Cluster groups documents with similar category-score vectors.
type Cluster struct {
	ID       int             `json:"cluster_id"`
	Size     int             `json:"size"`
	AvgScore float64         `json:"avg_score"`
	Members  []ClusterMember `json:"members"`
}

// ClusterReport is the clustering section of a comparative report.
type ClusterReport struct {
	Requested int       `json:"requested_clusters"`
	Effective int       `json:"effective_clusters"`
	Clusters  []Cluster `json:"clusters,omitempty"`
	Note      string    `json:"note,omitempty"`
}

const kmeansMaxIterations = 100

// clusterize runs a deterministic k-means over standardized score
// vectors. When the batch is smaller than the requested cluster count it
// degrades to one cluster per document rather than failing. Initial
// centroids are picked by spreading evenly over the name-sorted batch,
// so the same input always produces the same partition.
func clusterize(names []string, overall []float64, vectors [][]float64, requested int) ClusterReport {
	n := len(vectors)
	if requested < 1 {
		requested = 1
	}
	report := ClusterReport{Requested: requested}
	if n == 0 {
		report.Note = "no documents to cluster"
		return report
	}

	k := requested
	if k > n {
		k = n
	}
	report.Effective = k

	// Sort by name so initialization does not depend on arrival order.
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return names[order[a]] < names[order[b]] })

	scaled := standardize(vectors)
	dims := len(scaled[0])

	centroids := make([][]float64, k)
	for c := 0; c < k; c++ {
		src := scaled[order[c*n/k]]
		centroids[c] = append([]float64(nil), src...)
	}

	assign := make([]int, n)
	for iter := 0; iter < kmeansMaxIterations; iter++ {
		changed := false
		for _, i := range order {
			best, bestDist := 0, math.Inf(1)
			for c := range centroids {
				if d := sqDist(scaled[i], centroids[c]); d < bestDist {
					best, bestDist = c, d
				}
			}
			if assign[i] != best {
				assign[i] = best
				changed = true
			}
		}
		if !changed && iter > 0 {
			break
		}

		counts := make([]int, k)
		sums := make([][]float64, k)
		for c := range sums {
			sums[c] = make([]float64, dims)
		}
		for i, c := range assign {
			counts[c]++
			for d := range scaled[i] {
				sums[c][d] += scaled[i][d]
			}
		}
		for c := range centroids {
			if counts[c] == 0 {
				continue // empty cluster keeps its centroid
			}
			for d := range centroids[c] {
				centroids[c][d] = sums[c][d] / float64(counts[c])
			}
		}
	}

	grouped := make(map[int][]ClusterMember, k)
	for _, i := range order {
		grouped[assign[i]] = append(grouped[assign[i]], ClusterMember{
			AppName:      names[i],
			OverallScore: overall[i],
		})
	}

	ids := make([]int, 0, len(grouped))
	for id := range grouped {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		members := grouped[id]
		scores := make([]float64, len(members))
		for i, m := range members {
			scores[i] = m.OverallScore
		}
		avg, _ := stats.Mean(scores)
		report.Clusters = append(report.Clusters, Cluster{
			ID:       id,
			Size:     len(members),
			AvgScore: avg,
			Members:  members,
		})
	}
	return report
}

// standardize centers each dimension and scales it to unit population
// variance; a constant dimension stays zero.
func standardize(vectors [][]float64) [][]float64 {
	n := len(vectors)
	dims := len(vectors[0])
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, dims)
	}
	col := make([]float64, n)
	for d := 0; d < dims; d++ {
		for i := range vectors {
			col[i] = vectors[i][d]
		}
		mean, _ := stats.Mean(col)
		std, _ := stats.StandardDeviationPopulation(col)
		for i := range vectors {
			if std > 0 {
				out[i][d] = (vectors[i][d] - mean) / std
			}
		}
	}
	return out
}

func sqDist(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
