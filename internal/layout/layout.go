// Package layout projects embedding vectors onto the plane for display.
package layout

import (
	"math"

	"MindMapService/internal/domain"
)

// Projection methods recorded in snapshot metadata.
const (
	MethodOrigin = "origin"
	MethodPCA    = "pca"
	MethodTSNE   = "tsne"
)

const (
	defaultCutoff       = 500
	defaultPerplexity   = 30
	defaultIterations   = 1000
	defaultLearningRate = 200

	// t-SNE needs at least this many points for a perplexity in [1, n-2].
	minTSNEPoints = 4
	maxPreDims    = 50
)

// Options tune the projection. Zero values fall back to defaults.
type Options struct {
	Cutoff       int
	Perplexity   float64
	Iterations   int
	LearningRate float64
	Seed         uint64
}

func (o Options) withDefaults() Options {
	if o.Cutoff <= 0 {
		o.Cutoff = defaultCutoff
	}
	if o.Perplexity <= 0 {
		o.Perplexity = defaultPerplexity
	}
	if o.Iterations <= 0 {
		o.Iterations = defaultIterations
	}
	if o.LearningRate <= 0 {
		o.LearningRate = defaultLearningRate
	}
	return o
}

// Result holds one position per input vector and the method that produced them.
type Result struct {
	Positions []domain.Position
	Method    string
}

// Project places every vector on the plane. Identical input and seed give identical output.
func Project(vectors [][]float64, opts Options) Result {
	opts = opts.withDefaults()
	n := len(vectors)
	if n <= 1 {
		return Result{Positions: make([]domain.Position, n), Method: MethodOrigin}
	}

	if n > opts.Cutoff || n < minTSNEPoints {
		return Result{Positions: toPositions(pca(vectors, 2)), Method: MethodPCA}
	}

	dims := min(maxPreDims, len(vectors[0]), n-1)
	reduced := pca(vectors, dims)
	coords := tsne(reduced, tsneParams{
		perplexity:   clampPerplexity(opts.Perplexity, n),
		iterations:   opts.Iterations,
		learningRate: opts.LearningRate,
		seed:         opts.Seed,
	})
	if !finite(coords) {
		return Result{Positions: toPositions(pca(vectors, 2)), Method: MethodPCA}
	}
	return Result{Positions: toPositions(coords), Method: MethodTSNE}
}

// clampPerplexity keeps perplexity within [1, n-2], strictly below n-1.
func clampPerplexity(p float64, n int) float64 {
	return math.Max(1, math.Min(p, float64(n-2)))
}

func toPositions(coords [][]float64) []domain.Position {
	out := make([]domain.Position, len(coords))
	for i, c := range coords {
		out[i] = domain.Position{X: c[0], Y: c[1]}
	}
	return out
}

func finite(coords [][]float64) bool {
	for _, c := range coords {
		for _, x := range c {
			if math.IsNaN(x) || math.IsInf(x, 0) {
				return false
			}
		}
	}
	return true
}
