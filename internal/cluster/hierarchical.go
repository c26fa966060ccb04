package cluster

import (
	"gonum.org/v1/gonum/mat"

	"MindMapService/internal/domain"
	"MindMapService/internal/similarity"
)

// Hierarchical merges the closest pair of groups under average linkage over cosine distance
// until K groups remain. Equal distances merge the lowest-indexed pair first.
type Hierarchical struct {
	K int
}

var _ Strategy = Hierarchical{}

func (h Hierarchical) Name() string { return "hierarchical" }

func (h Hierarchical) Validate() error {
	if h.K < 1 {
		return &domain.ClusteringError{Reason: "hierarchical requires at least one cluster"}
	}
	return nil
}

func (h Hierarchical) FitPredict(vectors [][]float64) ([]int, error) {
	return h.fitSimilarity(vectors, similarity.Matrix(vectors))
}

func (h Hierarchical) fitSimilarity(vectors [][]float64, sims *mat.SymDense) ([]int, error) {
	if err := h.Validate(); err != nil {
		return nil, err
	}
	n := len(vectors)
	target := min(h.K, max(1, n))

	dist := cosineDistances(sims)
	size := make([]int, n)
	active := make([]bool, n)
	owner := make([]int, n)
	for i := range size {
		size[i] = 1
		active[i] = true
		owner[i] = i
	}

	for groups := n; groups > target; groups-- {
		a, b := -1, -1
		var best float64
		for i := 0; i < n; i++ {
			if !active[i] {
				continue
			}
			for j := i + 1; j < n; j++ {
				if !active[j] {
					continue
				}
				if a < 0 || dist[i][j] < best {
					a, b, best = i, j, dist[i][j]
				}
			}
		}

		// Lance-Williams update for average linkage: b is folded into a.
		for k := 0; k < n; k++ {
			if !active[k] || k == a || k == b {
				continue
			}
			d := (float64(size[a])*dist[a][k] + float64(size[b])*dist[b][k]) / float64(size[a]+size[b])
			dist[a][k], dist[k][a] = d, d
		}
		size[a] += size[b]
		active[b] = false
		for p := range owner {
			if owner[p] == b {
				owner[p] = a
			}
		}
	}
	return owner, nil
}
