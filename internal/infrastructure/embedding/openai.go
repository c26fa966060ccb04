package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"MindMapService/internal/config"
	"MindMapService/internal/domain"
	"MindMapService/internal/embedder"
)

const openAIBackendName = "openai"

// OpenAIBackend implements embedder.Backend backed by OpenAI-compatible embeddings APIs.
type OpenAIBackend struct {
	endpoint   string
	model      string
	apiKey     string
	dimensions int
	httpClient *http.Client
	breaker    *Breaker
}

var _ embedder.Backend = (*OpenAIBackend)(nil)

type openAIRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type openAIResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
	Model string `json:"model"`
}

type openAIErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// NewOpenAIBackend builds a client from configuration. A missing credential is a
// configuration error reported before any text is sent.
func NewOpenAIBackend(cfg config.OpenAIConfig, breaker *Breaker) (*OpenAIBackend, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, &domain.EmbeddingBackendError{Backend: openAIBackendName, Reason: "API key not configured"}
	}
	if cfg.Endpoint == "" || cfg.Model == "" {
		return nil, &domain.EmbeddingBackendError{Backend: openAIBackendName, Reason: "endpoint and model are required"}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OpenAIBackend{
		endpoint:   strings.TrimSuffix(cfg.Endpoint, "/"),
		model:      cfg.Model,
		apiKey:     cfg.APIKey,
		dimensions: cfg.Dimensions,
		httpClient: &http.Client{Timeout: timeout},
		breaker:    breaker,
	}, nil
}

// Name identifies the backend inside the registry.
func (c *OpenAIBackend) Name() string {
	return openAIBackendName
}

// Info reports the configured model; dimensions are 0 when the model default is used.
func (c *OpenAIBackend) Info() embedder.Info {
	return embedder.Info{Name: openAIBackendName, Model: c.model, Dimensions: c.dimensions}
}

// Encode posts one batch to the embeddings endpoint.
func (c *OpenAIBackend) Encode(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return [][]float64{}, nil
	}
	return c.breaker.Execute(func() ([][]float64, error) {
		return c.encode(ctx, texts)
	})
}

func (c *OpenAIBackend) encode(ctx context.Context, texts []string) ([][]float64, error) {
	body, err := json.Marshal(openAIRequest{Input: texts, Model: c.model, Dimensions: c.dimensions})
	if err != nil {
		return nil, fmt.Errorf("marshal embeddings payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send embeddings request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var apiErr openAIErrorResponse
		if json.Unmarshal(payload, &apiErr) == nil && apiErr.Error.Message != "" {
			return nil, fmt.Errorf("openai error %s: %s", resp.Status, apiErr.Error.Message)
		}
		return nil, fmt.Errorf("openai error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var decoded openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode embeddings response: %w", err)
	}

	vectors := make([][]float64, len(texts))
	for _, item := range decoded.Data {
		if item.Index < 0 || item.Index >= len(vectors) {
			return nil, fmt.Errorf("embedding index %d out of range", item.Index)
		}
		vectors[item.Index] = item.Embedding
	}
	for i, vec := range vectors {
		if vec == nil {
			return nil, fmt.Errorf("missing embedding for input %d", i)
		}
	}
	return vectors, nil
}
