package ports

import (
	"context"
	"time"

	"MindMapService/internal/domain"
)

// RecordSource supplies reading-list records from an upstream exporter.
type RecordSource interface {
	Records(ctx context.Context) ([]domain.SourceRecord, error)
}

// ContentFetcher downloads records and extracts their readable text.
type ContentFetcher interface {
	FetchAll(ctx context.Context, records []domain.SourceRecord) (domain.AcquisitionResult, error)
}

// FetchLimits overrides acquisition limits for one batch. Zero fields keep the configured
// value; a nil Delay keeps the configured politeness delay.
type FetchLimits struct {
	Timeout          time.Duration
	MaxContentLength int
	Delay            *time.Duration
}

// LimitedFetcher is a ContentFetcher that can run a batch under per-request limits.
type LimitedFetcher interface {
	ContentFetcher
	FetchAllWithin(ctx context.Context, records []domain.SourceRecord, limits FetchLimits) (domain.AcquisitionResult, error)
}

// SnapshotStore holds assembled mind maps. Implementations must be safe for concurrent use.
type SnapshotStore interface {
	Put(ctx context.Context, snapshot domain.Snapshot) (string, error)
	Get(ctx context.Context, id string) (domain.Snapshot, error)
	Latest(ctx context.Context) (domain.Snapshot, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

// FetchObserver receives one call per fetched record.
type FetchObserver interface {
	FetchCompleted(ok bool)
}

// RunObserver receives one call per pipeline run.
type RunObserver interface {
	RunCompleted(status string, elapsed time.Duration)
	SnapshotStored()
}

// Scheduler controls when pipelines execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
