package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrSnapshotNotFound is returned when an id is unknown to the store.
	ErrSnapshotNotFound = errors.New("mind map not found")
	// ErrNoSnapshots is returned by Latest on an empty store.
	ErrNoSnapshots = errors.New("no mind maps found")
	// ErrSnapshotExists is returned when a snapshot id is stored twice.
	ErrSnapshotExists = errors.New("mind map already exists")
	// ErrNoContent is returned when no record produced usable text.
	ErrNoContent = errors.New("no content could be scraped from any URL")
	// ErrInvalidInput is returned for caller-supplied data that cannot be processed.
	ErrInvalidInput = errors.New("invalid input")
)

// FetchError describes why a single URL produced no content.
type FetchError struct {
	URL    string
	Reason string
	Err    error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Reason, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Reason)
}

func (e *FetchError) Unwrap() error { return e.Err }

// EmbeddingBackendError fails a whole pipeline run.
type EmbeddingBackendError struct {
	Backend string
	Reason  string
	Err     error
}

func (e *EmbeddingBackendError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("embedding backend %s: %s: %v", e.Backend, e.Reason, e.Err)
	}
	return fmt.Sprintf("embedding backend %s: %s", e.Backend, e.Reason)
}

func (e *EmbeddingBackendError) Unwrap() error { return e.Err }

// ClusteringError reports an invalid clustering configuration.
type ClusteringError struct {
	Reason string
}

func (e *ClusteringError) Error() string {
	return "clustering: " + e.Reason
}
