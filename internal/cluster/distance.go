package cluster

import (
	"gonum.org/v1/gonum/mat"
)

// similarityStrategy is implemented by strategies that work from pairwise cosine similarity
// and can reuse a matrix computed elsewhere.
type similarityStrategy interface {
	fitSimilarity(vectors [][]float64, sims *mat.SymDense) ([]int, error)
}

// cosineDistances turns a cosine similarity matrix into a dense n×n table of 1 - similarity.
func cosineDistances(sims *mat.SymDense) [][]float64 {
	if sims == nil {
		return [][]float64{}
	}
	n := sims.SymmetricDim()
	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, n)
		for j := range dist[i] {
			if i == j {
				continue
			}
			d := 1 - sims.At(i, j)
			if d < 0 {
				d = 0
			}
			dist[i][j] = d
		}
	}
	return dist
}

func squaredDistance(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
