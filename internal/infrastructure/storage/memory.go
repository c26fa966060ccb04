package storage

import (
	"context"
	"sync"
	"time"

	"MindMapService/internal/domain"
	"MindMapService/internal/ports"
)

type memoryEntry struct {
	seq       int64
	payload   []byte
	createdAt time.Time
}

// newer orders by creation time, then by insertion for equal times.
func (e memoryEntry) newer(other memoryEntry) bool {
	if c := e.createdAt.Compare(other.createdAt); c != 0 {
		return c > 0
	}
	return e.seq > other.seq
}

// MemoryStore keeps snapshots in process. Stored snapshots are copied in and out so callers
// cannot mutate them.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	seq     int64
}

var _ ports.SnapshotStore = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: map[string]memoryEntry{}}
}

func (s *MemoryStore) Put(ctx context.Context, snapshot domain.Snapshot) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := validID(snapshot.ID); err != nil {
		return "", err
	}
	payload, err := encode(snapshot)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[snapshot.ID]; ok {
		return "", domain.ErrSnapshotExists
	}
	s.seq++
	s.entries[snapshot.ID] = memoryEntry{seq: s.seq, payload: payload, createdAt: snapshot.CreatedAt}
	return snapshot.ID, nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (domain.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return domain.Snapshot{}, err
	}
	s.mu.RLock()
	entry, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return domain.Snapshot{}, domain.ErrSnapshotNotFound
	}
	return decode(entry.payload)
}

func (s *MemoryStore) Latest(ctx context.Context) (domain.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return domain.Snapshot{}, err
	}
	s.mu.RLock()
	var latest *memoryEntry
	for _, entry := range s.entries {
		if latest == nil || entry.newer(*latest) {
			e := entry
			latest = &e
		}
	}
	s.mu.RUnlock()
	if latest == nil {
		return domain.Snapshot{}, domain.ErrNoSnapshots
	}
	return decode(latest.payload)
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[id]; !ok {
		return domain.ErrSnapshotNotFound
	}
	delete(s.entries, id)
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}
