package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MindMapService/internal/config"
	"MindMapService/internal/domain"
)

func TestOpenAIBackendRequiresKey(t *testing.T) {
	t.Parallel()

	_, err := NewOpenAIBackend(config.OpenAIConfig{Endpoint: "https://api.openai.com/v1", Model: "m"}, nil)
	var backendErr *domain.EmbeddingBackendError
	require.ErrorAs(t, err, &backendErr)
	assert.Equal(t, "openai", backendErr.Backend)
}

func TestOpenAIBackendEncode(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req openAIRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "text-embedding-3-small", req.Model)
		assert.Equal(t, []string{"first", "second"}, req.Input)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"index":1,"embedding":[0,1]},{"index":0,"embedding":[1,0]}],"model":"text-embedding-3-small"}`))
	}))
	defer srv.Close()

	backend, err := NewOpenAIBackend(config.OpenAIConfig{Endpoint: srv.URL + "/", Model: "text-embedding-3-small", APIKey: "secret"}, nil)
	require.NoError(t, err)

	vectors, err := backend.Encode(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1, 0}, {0, 1}}, vectors)
}

func TestOpenAIBackendReportsAPIError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	backend, err := NewOpenAIBackend(config.OpenAIConfig{Endpoint: srv.URL, Model: "m", APIKey: "bad"}, nil)
	require.NoError(t, err)

	_, err = backend.Encode(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Incorrect API key provided")
}

func TestLocalBackendEncode(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embed", r.URL.Path)
		var req localRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		resp := localResponse{Model: req.Model}
		for range req.Texts {
			resp.Embeddings = append(resp.Embeddings, []float64{0.1, 0.2, 0.3})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	backend, err := NewLocalBackend(config.LocalModelConfig{Endpoint: srv.URL, Model: "all-MiniLM-L6-v2"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, backend.Info().Dimensions)

	vectors, err := backend.Encode(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, vectors, 2)
	assert.Equal(t, 3, backend.Info().Dimensions)
	assert.Equal(t, "all-MiniLM-L6-v2", backend.Info().Model)
}

func TestLocalBackendRequiresEndpoint(t *testing.T) {
	t.Parallel()

	_, err := NewLocalBackend(config.LocalModelConfig{}, nil)
	var backendErr *domain.EmbeddingBackendError
	require.ErrorAs(t, err, &backendErr)
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	breaker := NewBreaker("local", config.BreakerConfig{
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          time.Minute,
		FailureThreshold: 0.5,
		MinRequests:      2,
	}, nil)
	backend, err := NewLocalBackend(config.LocalModelConfig{Endpoint: srv.URL}, breaker)
	require.NoError(t, err)

	for range 2 {
		_, err := backend.Encode(context.Background(), []string{"a"})
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrBackendUnavailable)
	}

	_, err = backend.Encode(context.Background(), []string{"a"})
	require.ErrorIs(t, err, ErrBackendUnavailable)
	assert.Equal(t, int32(2), calls.Load())
}

func TestNilBreakerRunsDirectly(t *testing.T) {
	t.Parallel()

	var b *Breaker
	out, err := b.Execute(func() ([][]float64, error) { return [][]float64{{1}}, nil })
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1}}, out)
}

func TestHashingBackendIsDeterministic(t *testing.T) {
	t.Parallel()

	backend := NewHashingBackend(64)
	assert.Equal(t, 64, backend.Info().Dimensions)
	assert.Equal(t, "hashing", backend.Name())

	first, err := backend.Encode(context.Background(), []string{"raft consensus log", "sourdough bread"})
	require.NoError(t, err)
	second, err := backend.Encode(context.Background(), []string{"raft consensus log", "sourdough bread"})
	require.NoError(t, err)

	require.Len(t, first, 2)
	assert.Len(t, first[0], 64)
	assert.Equal(t, first, second)
	assert.NotEqual(t, first[0], first[1])
}

func TestHashingBackendDefaultsDimension(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 512, NewHashingBackend(0).Info().Dimensions)
}

func TestHashingBackendHonoursCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewHashingBackend(8).Encode(ctx, []string{"a"})
	require.ErrorIs(t, err, context.Canceled)
}
