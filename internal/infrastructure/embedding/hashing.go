package embedding

import (
	"context"
	"math"
	"sort"

	"github.com/cespare/xxhash/v2"

	"MindMapService/internal/embedder"
	"MindMapService/internal/keywords"
)

const hashingBackendName = "hashing"

// HashingBackend is an in-process fixed model: signed feature hashing of word unigrams and
// bigrams with sublinear term frequency. It needs no network and is fully deterministic.
type HashingBackend struct {
	dimensions int
}

var _ embedder.Backend = (*HashingBackend)(nil)

// NewHashingBackend returns a backend producing vectors of the given dimension.
func NewHashingBackend(dimensions int) *HashingBackend {
	if dimensions <= 0 {
		dimensions = 512
	}
	return &HashingBackend{dimensions: dimensions}
}

// Name identifies the backend inside the registry.
func (h *HashingBackend) Name() string {
	return hashingBackendName
}

// Info reports the fixed dimension.
func (h *HashingBackend) Info() embedder.Info {
	return embedder.Info{Name: hashingBackendName, Model: "feature-hashing-v1", Dimensions: h.dimensions}
}

// Encode hashes each text independently.
func (h *HashingBackend) Encode(ctx context.Context, texts []string) ([][]float64, error) {
	vectors := make([][]float64, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vectors[i] = h.encode(text)
	}
	return vectors, nil
}

func (h *HashingBackend) encode(text string) []float64 {
	counts := map[string]int{}
	tokens := keywords.Terms(text)
	for i, tok := range tokens {
		counts[tok]++
		if i > 0 {
			counts[tokens[i-1]+" "+tok]++
		}
	}

	features := make([]string, 0, len(counts))
	for feature := range counts {
		features = append(features, feature)
	}
	sort.Strings(features)

	vec := make([]float64, h.dimensions)
	for _, feature := range features {
		n := counts[feature]
		sum := xxhash.Sum64String(feature)
		idx := int(sum % uint64(h.dimensions))
		weight := 1 + math.Log(float64(n))
		if sum&(1<<63) != 0 {
			weight = -weight
		}
		vec[idx] += weight
	}
	return vec
}
