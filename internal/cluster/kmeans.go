package cluster

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"

	"MindMapService/internal/domain"
)

// KMeans is Lloyd's algorithm with k-means++ seeding, restarted Restarts times; the run with
// the lowest inertia wins. K above the point count is clamped.
type KMeans struct {
	K             int
	Restarts      int
	MaxIterations int
	Seed          uint64
}

var _ Strategy = KMeans{}

func (k KMeans) Name() string { return "kmeans" }

func (k KMeans) Validate() error {
	if k.K < 1 {
		return &domain.ClusteringError{Reason: "kmeans requires at least one cluster"}
	}
	if k.Restarts < 0 || k.MaxIterations < 0 {
		return &domain.ClusteringError{Reason: "kmeans restarts and iterations must not be negative"}
	}
	return nil
}

func (k KMeans) FitPredict(vectors [][]float64) ([]int, error) {
	if err := k.Validate(); err != nil {
		return nil, err
	}
	n := len(vectors)
	clusters := min(k.K, max(1, n))
	restarts := k.Restarts
	if restarts == 0 {
		restarts = defaultRestarts
	}
	maxIter := k.MaxIterations
	if maxIter == 0 {
		maxIter = defaultMaxIter
	}

	rng := rand.New(rand.NewPCG(k.Seed, k.Seed^0x9e3779b97f4a7c15))

	var best []int
	bestInertia := math.Inf(1)
	for r := 0; r < restarts; r++ {
		centers := seedCenters(vectors, clusters, rng)
		labels, inertia := lloyd(vectors, centers, maxIter)
		if inertia < bestInertia {
			best, bestInertia = labels, inertia
		}
	}
	return best, nil
}

// seedCenters picks k initial centers with probability proportional to the squared distance
// from the nearest center already chosen.
func seedCenters(vectors [][]float64, k int, rng *rand.Rand) [][]float64 {
	n := len(vectors)
	centers := make([][]float64, 0, k)
	centers = append(centers, clone(vectors[rng.IntN(n)]))

	nearest := make([]float64, n)
	for i, v := range vectors {
		nearest[i] = squaredDistance(v, centers[0])
	}

	for len(centers) < k {
		total := floats.Sum(nearest)
		pick := rng.IntN(n)
		if total > 0 {
			target := rng.Float64() * total
			acc := 0.0
			for i, d := range nearest {
				acc += d
				if acc >= target && d > 0 {
					pick = i
					break
				}
			}
		}
		c := clone(vectors[pick])
		centers = append(centers, c)
		for i, v := range vectors {
			nearest[i] = math.Min(nearest[i], squaredDistance(v, c))
		}
	}
	return centers
}

func lloyd(vectors [][]float64, centers [][]float64, maxIter int) ([]int, float64) {
	n, k := len(vectors), len(centers)
	dim := len(vectors[0])
	labels := make([]int, n)
	for i := range labels {
		labels[i] = -1
	}

	for iter := 0; iter < maxIter; iter++ {
		changed := false
		for i, v := range vectors {
			if l := closest(v, centers); l != labels[i] {
				labels[i] = l
				changed = true
			}
		}
		if !changed {
			break
		}

		sums := make([][]float64, k)
		counts := make([]int, k)
		for c := range sums {
			sums[c] = make([]float64, dim)
		}
		for i, v := range vectors {
			floats.Add(sums[labels[i]], v)
			counts[labels[i]]++
		}
		for c := range centers {
			// An emptied cluster keeps its previous center.
			if counts[c] > 0 {
				floats.Scale(1/float64(counts[c]), sums[c])
				centers[c] = sums[c]
			}
		}
	}

	inertia := 0.0
	for i, v := range vectors {
		inertia += squaredDistance(v, centers[labels[i]])
	}
	return labels, inertia
}

func closest(v []float64, centers [][]float64) int {
	best, bestDist := 0, math.Inf(1)
	for c, center := range centers {
		if d := squaredDistance(v, center); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

func clone(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	return out
}
