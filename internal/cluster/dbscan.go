package cluster

import (
	"sort"

	"gonum.org/v1/gonum/mat"

	"MindMapService/internal/domain"
	"MindMapService/internal/similarity"
)

// DBSCAN groups density-connected points under cosine distance. Eps <= 0 uses the median
// positive pairwise distance. Points reachable from no core point are labelled noise.
type DBSCAN struct {
	Eps        float64
	MinSamples int
}

var _ Strategy = DBSCAN{}

func (d DBSCAN) Name() string { return "dbscan" }

func (d DBSCAN) Validate() error {
	if d.MinSamples < 1 {
		return &domain.ClusteringError{Reason: "dbscan min_samples must be at least 1"}
	}
	if d.Eps < 0 {
		return &domain.ClusteringError{Reason: "dbscan eps must not be negative"}
	}
	return nil
}

func (d DBSCAN) FitPredict(vectors [][]float64) ([]int, error) {
	return d.fitSimilarity(vectors, similarity.Matrix(vectors))
}

func (d DBSCAN) fitSimilarity(vectors [][]float64, sims *mat.SymDense) ([]int, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	n := len(vectors)
	dist := cosineDistances(sims)
	eps := d.Eps
	if eps == 0 {
		eps = medianPositive(dist)
	}

	neighbours := func(p int) []int {
		var out []int
		for q := 0; q < n; q++ {
			if dist[p][q] <= eps {
				out = append(out, q)
			}
		}
		return out
	}

	const unvisited = -2
	labels := make([]int, n)
	for i := range labels {
		labels[i] = unvisited
	}

	next := 0
	for p := 0; p < n; p++ {
		if labels[p] != unvisited {
			continue
		}
		seeds := neighbours(p)
		if len(seeds) < d.MinSamples {
			labels[p] = domain.NoiseClusterID
			continue
		}
		id := next
		next++
		labels[p] = id

		queue := append([]int(nil), seeds...)
		for len(queue) > 0 {
			q := queue[0]
			queue = queue[1:]
			if labels[q] == domain.NoiseClusterID {
				labels[q] = id
			}
			if labels[q] != unvisited {
				continue
			}
			labels[q] = id
			if more := neighbours(q); len(more) >= d.MinSamples {
				queue = append(queue, more...)
			}
		}
	}
	return labels, nil
}

func medianPositive(dist [][]float64) float64 {
	var vals []float64
	for i := range dist {
		for j := i + 1; j < len(dist); j++ {
			if dist[i][j] > 0 {
				vals = append(vals, dist[i][j])
			}
		}
	}
	if len(vals) == 0 {
		return 0
	}
	sort.Float64s(vals)
	mid := len(vals) / 2
	if len(vals)%2 == 1 {
		return vals[mid]
	}
	return (vals[mid-1] + vals[mid]) / 2
}
