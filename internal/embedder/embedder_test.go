package embedder

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MindMapService/internal/domain"
)

type stubBackend struct {
	name    string
	encode  func(texts []string) ([][]float64, error)
	batches [][]string
}

func (s *stubBackend) Name() string { return s.name }
func (s *stubBackend) Info() Info   { return Info{Name: s.name, Model: "stub"} }
func (s *stubBackend) Encode(_ context.Context, texts []string) ([][]float64, error) {
	s.batches = append(s.batches, texts)
	return s.encode(texts)
}

func constant(vec ...float64) func([]string) ([][]float64, error) {
	return func(texts []string) ([][]float64, error) {
		out := make([][]float64, len(texts))
		for i := range texts {
			out[i] = append([]float64(nil), vec...)
		}
		return out, nil
	}
}

func TestEmbedBatchesAndNormalizes(t *testing.T) {
	t.Parallel()

	backend := &stubBackend{name: "stub", encode: constant(3, 4)}
	vectors, err := Embed(context.Background(), backend, []string{"a", "b", "c"}, Options{BatchSize: 2, Normalize: true})
	require.NoError(t, err)

	require.Len(t, vectors, 3)
	assert.Len(t, backend.batches, 2)
	assert.Equal(t, []string{"c"}, backend.batches[1])
	assert.InDelta(t, 0.6, vectors[0][0], 1e-12)
	assert.InDelta(t, 0.8, vectors[2][1], 1e-12)
}

func TestEmbedKeepsRawVectorsWithoutNormalize(t *testing.T) {
	t.Parallel()

	vectors, err := Embed(context.Background(), &stubBackend{name: "stub", encode: constant(3, 4)}, []string{"a"}, Options{})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{3, 4}}, vectors)
}

func TestEmbedZeroVectorStaysZero(t *testing.T) {
	t.Parallel()

	vectors, err := Embed(context.Background(), &stubBackend{name: "stub", encode: constant(0, 0)}, []string{"a"}, Options{Normalize: true})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{0, 0}}, vectors)
}

func TestEmbedEmptyInput(t *testing.T) {
	t.Parallel()

	backend := &stubBackend{name: "stub", encode: constant(1)}
	vectors, err := Embed(context.Background(), backend, nil, Options{})
	require.NoError(t, err)
	assert.Empty(t, vectors)
	assert.Empty(t, backend.batches)
}

func TestEmbedRejectsMalformedOutput(t *testing.T) {
	t.Parallel()

	cases := map[string]func([]string) ([][]float64, error){
		"count": func([]string) ([][]float64, error) { return [][]float64{{1}}, nil },
		"empty": func(texts []string) ([][]float64, error) { return make([][]float64, len(texts)), nil },
		"dimension": func([]string) ([][]float64, error) {
			return [][]float64{{1, 0}, {1}}, nil
		},
		"nan": func(texts []string) ([][]float64, error) {
			return [][]float64{{math.NaN()}, {1}}, nil
		},
		"error": func([]string) ([][]float64, error) { return nil, errors.New("connection reset") },
	}
	for name, encode := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			vectors, err := Embed(context.Background(), &stubBackend{name: "stub", encode: encode}, []string{"a", "b"}, Options{})
			require.Error(t, err)
			assert.Nil(t, vectors)

			var backendErr *domain.EmbeddingBackendError
			require.ErrorAs(t, err, &backendErr)
			assert.Equal(t, "stub", backendErr.Backend)
		})
	}
}

func TestEmbedWithoutBackend(t *testing.T) {
	t.Parallel()

	_, err := Embed(context.Background(), nil, []string{"a"}, Options{})
	var backendErr *domain.EmbeddingBackendError
	require.ErrorAs(t, err, &backendErr)
	assert.Equal(t, "none", backendErr.Backend)
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	registry.Register(&stubBackend{name: "zeta", encode: constant(1)})
	registry.Register(&stubBackend{name: "alpha", encode: constant(1)})

	backend, err := registry.Resolve("zeta")
	require.NoError(t, err)
	assert.Equal(t, "zeta", backend.Name())

	_, err = registry.Resolve("missing")
	var backendErr *domain.EmbeddingBackendError
	require.ErrorAs(t, err, &backendErr)

	available := registry.Available()
	require.Len(t, available, 2)
	assert.Equal(t, "alpha", available[0].Name)
	assert.Equal(t, "zeta", available[1].Name)
}
