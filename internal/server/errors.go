package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"

	"github.com/go-playground/validator/v10"

	"MindMapService/internal/domain"
)

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
	// ProcessingSummary is set when a run fetched nothing usable.
	ProcessingSummary *domain.ProcessingSummary `json:"processing_summary,omitempty"`
}

// badRequest marks malformed or invalid request bodies.
type badRequest struct {
	err error
}

func (b badRequest) Error() string { return b.err.Error() }
func (b badRequest) Unwrap() error { return b.err }

// statusFor maps a failure to its status code and short error label.
func statusFor(err error) (int, string) {
	var (
		backendErr *domain.EmbeddingBackendError
		clusterErr *domain.ClusteringError
		invalid    validator.ValidationErrors
		bad        badRequest
	)
	switch {
	case errors.Is(err, domain.ErrSnapshotNotFound):
		return http.StatusNotFound, "mind map not found"
	case errors.Is(err, domain.ErrNoSnapshots):
		return http.StatusNotFound, "no mind maps found"
	case errors.Is(err, domain.ErrSnapshotExists):
		return http.StatusConflict, "mind map already exists"
	case errors.Is(err, domain.ErrNoContent):
		return http.StatusUnprocessableEntity, "no content"
	case errors.As(err, &backendErr):
		return http.StatusBadGateway, "embedding backend error"
	case errors.As(err, &clusterErr):
		return http.StatusBadRequest, "invalid clustering configuration"
	case errors.Is(err, domain.ErrInvalidInput), errors.As(err, &invalid), errors.As(err, &bad):
		return http.StatusBadRequest, "invalid request"
	case errors.Is(err, os.ErrNotExist):
		return http.StatusNotFound, "reading list not found"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "request timed out"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, label := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, errorResponse{Error: label, Detail: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
