// Package similarity builds the sparse similarity graph between embedded documents.
package similarity

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// DefaultTopK is the neighbour count retained per node when none is configured.
const DefaultTopK = 5

// Options gate which pairs become edges.
type Options struct {
	Threshold float64
	TopK      int
	MaxEdges  int
}

// Pair is an undirected link between two vector indices with I < J.
type Pair struct {
	I, J   int
	Weight float64
}

// Matrix computes the full cosine similarity matrix in one product of the row-normalised
// input with its transpose. Zero vectors have similarity 0 with everything, including themselves.
func Matrix(vectors [][]float64) *mat.SymDense {
	n := len(vectors)
	if n == 0 {
		return nil
	}
	d := len(vectors[0])

	normed := mat.NewDense(n, d, nil)
	for i, vec := range vectors {
		row := make([]float64, d)
		copy(row, vec)
		if norm := floats.Norm(row, 2); norm > 0 {
			floats.Scale(1/norm, row)
		} else {
			for k := range row {
				row[k] = 0
			}
		}
		normed.SetRow(i, row)
	}

	var gram mat.Dense
	gram.Mul(normed, normed.T())

	sims := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sims.SetSym(i, j, clamp(gram.At(i, j), -1, 1))
		}
	}
	return sims
}

// BuildEdges keeps, for every node, its TopK most similar neighbours above Threshold and
// returns the de-duplicated pairs ordered by descending weight (ties by index), capped at
// MaxEdges. Weights are clamped into [0, 1].
func BuildEdges(vectors [][]float64, opts Options) []Pair {
	if len(vectors) < 2 {
		return []Pair{}
	}
	return EdgesFromMatrix(Matrix(vectors), opts)
}

// EdgesFromMatrix is BuildEdges over a precomputed similarity matrix.
func EdgesFromMatrix(sims *mat.SymDense, opts Options) []Pair {
	if sims == nil || opts.MaxEdges <= 0 {
		return []Pair{}
	}
	n := sims.SymmetricDim()
	if n < 2 {
		return []Pair{}
	}
	k := opts.TopK
	if k <= 0 {
		k = DefaultTopK
	}

	type key struct{ i, j int }
	selected := map[key]float64{}

	candidates := make([]Pair, 0, n-1)
	for i := 0; i < n; i++ {
		candidates = candidates[:0]
		for j := 0; j < n; j++ {
			if j == i {
				continue
			}
			if s := sims.At(i, j); s > opts.Threshold {
				candidates = append(candidates, Pair{I: i, J: j, Weight: s})
			}
		}
		sort.Slice(candidates, func(a, b int) bool {
			if candidates[a].Weight != candidates[b].Weight {
				return candidates[a].Weight > candidates[b].Weight
			}
			return candidates[a].J < candidates[b].J
		})
		if len(candidates) > k {
			candidates = candidates[:k]
		}
		for _, c := range candidates {
			lo, hi := min(c.I, c.J), max(c.I, c.J)
			selected[key{lo, hi}] = c.Weight
		}
	}

	pairs := make([]Pair, 0, len(selected))
	for pk, w := range selected {
		pairs = append(pairs, Pair{I: pk.i, J: pk.j, Weight: clamp(w, 0, 1)})
	}
	sort.Slice(pairs, func(a, b int) bool {
		if pairs[a].Weight != pairs[b].Weight {
			return pairs[a].Weight > pairs[b].Weight
		}
		if pairs[a].I != pairs[b].I {
			return pairs[a].I < pairs[b].I
		}
		return pairs[a].J < pairs[b].J
	})

	if len(pairs) > opts.MaxEdges {
		pairs = pairs[:opts.MaxEdges]
	}
	return pairs
}

func clamp(x, lo, hi float64) float64 {
	if math.IsNaN(x) {
		return lo
	}
	return math.Max(lo, math.Min(hi, x))
}
