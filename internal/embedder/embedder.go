package embedder

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"MindMapService/internal/domain"
)

// Info describes the model behind a backend.
type Info struct {
	Name       string `json:"name"`
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
}

// Backend maps texts to fixed-length vectors.
type Backend interface {
	Name() string
	Encode(ctx context.Context, texts []string) ([][]float64, error)
	Info() Info
}

// Options controls batching and post-processing.
type Options struct {
	BatchSize int
	Normalize bool
}

// Embed encodes texts in batches and validates the result. Any failure is returned as a
// *domain.EmbeddingBackendError and no partial output is produced.
func Embed(ctx context.Context, backend Backend, texts []string, opts Options) ([][]float64, error) {
	if backend == nil {
		return nil, &domain.EmbeddingBackendError{Backend: "none", Reason: "no backend configured"}
	}
	if len(texts) == 0 {
		return [][]float64{}, nil
	}

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = len(texts)
	}

	vectors := make([][]float64, 0, len(texts))
	dim := 0
	for start := 0; start < len(texts); start += batchSize {
		end := min(start+batchSize, len(texts))
		batch, err := backend.Encode(ctx, texts[start:end])
		if err != nil {
			return nil, asBackendError(backend.Name(), "encode batch", err)
		}
		if len(batch) != end-start {
			return nil, &domain.EmbeddingBackendError{
				Backend: backend.Name(),
				Reason:  fmt.Sprintf("malformed response: expected %d vectors, got %d", end-start, len(batch)),
			}
		}
		for i, vec := range batch {
			if len(vec) == 0 {
				return nil, &domain.EmbeddingBackendError{
					Backend: backend.Name(),
					Reason:  fmt.Sprintf("malformed response: empty vector for text %d", start+i),
				}
			}
			if dim == 0 {
				dim = len(vec)
			}
			if len(vec) != dim {
				return nil, &domain.EmbeddingBackendError{
					Backend: backend.Name(),
					Reason:  fmt.Sprintf("malformed response: dimension %d differs from %d", len(vec), dim),
				}
			}
			for _, x := range vec {
				if math.IsNaN(x) || math.IsInf(x, 0) {
					return nil, &domain.EmbeddingBackendError{
						Backend: backend.Name(),
						Reason:  fmt.Sprintf("malformed response: non-finite value for text %d", start+i),
					}
				}
			}
			if opts.Normalize {
				vec = normalize(vec)
			}
			vectors = append(vectors, vec)
		}
	}

	return vectors, nil
}

func normalize(vec []float64) []float64 {
	var sum float64
	for _, x := range vec {
		sum += x * x
	}
	out := make([]float64, len(vec))
	if sum == 0 {
		return out
	}
	norm := math.Sqrt(sum)
	for i, x := range vec {
		out[i] = x / norm
	}
	return out
}

func asBackendError(name, reason string, err error) error {
	var be *domain.EmbeddingBackendError
	if errors.As(err, &be) {
		return be
	}
	return &domain.EmbeddingBackendError{Backend: name, Reason: reason, Err: err}
}

// Registry keeps a mapping from backend names to their implementations.
type Registry struct {
	backends map[string]Backend
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{backends: map[string]Backend{}}
}

// Register adds or replaces a backend implementation.
func (r *Registry) Register(backend Backend) {
	if r.backends == nil {
		r.backends = map[string]Backend{}
	}
	r.backends[backend.Name()] = backend
}

// Resolve returns a backend by name or an error if it is absent.
func (r *Registry) Resolve(name string) (Backend, error) {
	if backend, ok := r.backends[name]; ok {
		return backend, nil
	}
	return nil, &domain.EmbeddingBackendError{Backend: name, Reason: "backend is not registered"}
}

// ResolveModel finds a backend by its name or by the model it serves.
func (r *Registry) ResolveModel(model string) (Backend, error) {
	if backend, ok := r.backends[model]; ok {
		return backend, nil
	}
	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if r.backends[name].Info().Model == model {
			return r.backends[name], nil
		}
	}
	return nil, &domain.EmbeddingBackendError{Backend: model, Reason: "backend is not registered"}
}

// Available lists registered backends sorted by name.
func (r *Registry) Available() []Info {
	infos := make([]Info, 0, len(r.backends))
	for _, b := range r.backends {
		infos = append(infos, b.Info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}
