package layout

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MindMapService/internal/domain"
)

func twoBlobs(perBlob, dims int) [][]float64 {
	rng := rand.New(rand.NewPCG(1, 2))
	var vectors [][]float64
	for b := 0; b < 2; b++ {
		for i := 0; i < perBlob; i++ {
			v := make([]float64, dims)
			for k := range v {
				v[k] = rng.NormFloat64() * 0.05
			}
			v[b] += 5
			vectors = append(vectors, v)
		}
	}
	return vectors
}

func TestProjectDegenerate(t *testing.T) {
	t.Parallel()

	res := Project(nil, Options{})
	assert.Equal(t, MethodOrigin, res.Method)
	assert.Empty(t, res.Positions)

	res = Project([][]float64{{3, 4, 5}}, Options{})
	assert.Equal(t, MethodOrigin, res.Method)
	assert.Equal(t, []domain.Position{{X: 0, Y: 0}}, res.Positions)
}

func TestProjectSmallInputUsesPCA(t *testing.T) {
	t.Parallel()

	res := Project([][]float64{{0, 0}, {1, 0}, {2, 0}}, Options{})
	assert.Equal(t, MethodPCA, res.Method)
	require.Len(t, res.Positions, 3)
	assert.Less(t, res.Positions[0].X, res.Positions[1].X)
	assert.Less(t, res.Positions[1].X, res.Positions[2].X)
	assert.InDelta(t, 0, res.Positions[1].X, 1e-9)
	for _, p := range res.Positions {
		assert.InDelta(t, 0, p.Y, 1e-9)
	}
}

func TestProjectAboveCutoffUsesPCA(t *testing.T) {
	t.Parallel()

	vectors := twoBlobs(10, 6)
	res := Project(vectors, Options{Cutoff: 5})
	assert.Equal(t, MethodPCA, res.Method)
	require.Len(t, res.Positions, len(vectors))
}

func TestPCASignIsNormalised(t *testing.T) {
	t.Parallel()

	vectors := [][]float64{{-2, 0.1}, {-1, -0.1}, {0, 0}, {1, 0.1}, {2, -0.1}}
	mirrored := make([][]float64, len(vectors))
	for i, v := range vectors {
		mirrored[i] = []float64{-v[0], -v[1]}
	}

	a := pca(vectors, 1)
	b := pca(mirrored, 1)
	assert.Greater(t, a[4][0], a[0][0])
	for i := range a {
		assert.InDelta(t, -a[i][0], b[i][0], 1e-9)
	}
}

func TestProjectTSNEIsDeterministic(t *testing.T) {
	t.Parallel()

	vectors := twoBlobs(6, 8)
	opts := Options{Perplexity: 3, Iterations: 300, Seed: 42}

	first := Project(vectors, opts)
	second := Project(vectors, opts)
	assert.Equal(t, MethodTSNE, first.Method)
	assert.Equal(t, first.Positions, second.Positions)

	other := Project(vectors, Options{Perplexity: 3, Iterations: 300, Seed: 7})
	assert.NotEqual(t, first.Positions, other.Positions)
}

func TestProjectTSNEKeepsGroupsApart(t *testing.T) {
	t.Parallel()

	vectors := twoBlobs(6, 8)
	res := Project(vectors, Options{Perplexity: 3, Seed: 42})
	require.Equal(t, MethodTSNE, res.Method)

	dist := func(a, b domain.Position) float64 { return math.Hypot(a.X-b.X, a.Y-b.Y) }
	var intra, inter float64
	var nIntra, nInter int
	for i := range res.Positions {
		for j := i + 1; j < len(res.Positions); j++ {
			d := dist(res.Positions[i], res.Positions[j])
			if (i < 6) == (j < 6) {
				intra += d
				nIntra++
			} else {
				inter += d
				nInter++
			}
		}
	}
	assert.Less(t, intra/float64(nIntra), inter/float64(nInter))
}

func TestPerplexityClamp(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 2.0, clampPerplexity(30, 4))
	assert.Equal(t, 1.0, clampPerplexity(0.2, 10))
	assert.Equal(t, 5.0, clampPerplexity(5, 10))

	// Four points with the default perplexity still produce a finite layout.
	res := Project([][]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}, {1, 1, 1}}, Options{Iterations: 200})
	assert.Equal(t, MethodTSNE, res.Method)
	assert.True(t, finite([][]float64{{res.Positions[0].X, res.Positions[3].Y}}))
}
