package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"MindMapService/internal/config"
	"MindMapService/internal/domain"
	"MindMapService/internal/embedder"
)

const localBackendName = "local"

// LocalBackend talks to a locally hosted fixed-model inference server
// (for example a sentence-transformers sidecar) exposing POST /embed.
type LocalBackend struct {
	endpoint string
	model    string
	http     *http.Client
	breaker  *Breaker
	dim      atomic.Int64
}

var _ embedder.Backend = (*LocalBackend)(nil)

type localRequest struct {
	Model string   `json:"model"`
	Texts []string `json:"texts"`
}

type localResponse struct {
	Model      string      `json:"model"`
	Dimensions int         `json:"dimensions"`
	Embeddings [][]float64 `json:"embeddings"`
}

// NewLocalBackend creates a reusable HTTP client.
func NewLocalBackend(cfg config.LocalModelConfig, breaker *Breaker) (*LocalBackend, error) {
	if cfg.Endpoint == "" {
		return nil, &domain.EmbeddingBackendError{Backend: localBackendName, Reason: "endpoint not configured"}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &LocalBackend{
		endpoint: strings.TrimSuffix(cfg.Endpoint, "/"),
		model:    cfg.Model,
		http:     &http.Client{Timeout: timeout},
		breaker:  breaker,
	}, nil
}

// Name identifies the backend inside the registry.
func (c *LocalBackend) Name() string {
	return localBackendName
}

// Info reports the model; dimensions are learnt from the first response.
func (c *LocalBackend) Info() embedder.Info {
	return embedder.Info{Name: localBackendName, Model: c.model, Dimensions: int(c.dim.Load())}
}

// Encode sends one batch to the inference server.
func (c *LocalBackend) Encode(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return [][]float64{}, nil
	}

	return c.breaker.Execute(func() ([][]float64, error) {
		var resp localResponse
		if err := c.post(ctx, "/embed", localRequest{Model: c.model, Texts: texts}, &resp); err != nil {
			return nil, err
		}
		if resp.Dimensions > 0 {
			c.dim.Store(int64(resp.Dimensions))
		} else if len(resp.Embeddings) > 0 {
			c.dim.Store(int64(len(resp.Embeddings[0])))
		}
		return resp.Embeddings, nil
	})
}

func (c *LocalBackend) post(ctx context.Context, path string, payload any, v any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		closeErr := resp.Body.Close()
		if closeErr != nil {
			return fmt.Errorf("unexpected status %s, close body: %v", resp.Status, closeErr)
		}
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		_ = resp.Body.Close()
		return fmt.Errorf("decode response: %w", err)
	}

	if err := resp.Body.Close(); err != nil {
		return fmt.Errorf("close response body: %w", err)
	}

	return nil
}
