package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"MindMapService/internal/domain"
	"MindMapService/internal/ports"
)

const (
	badgerPrefix   = "snap/"
	badgerSeqKey   = "meta/seq"
	badgerSeqBatch = 64
)

// badgerRecord is the value stored under snap/<id>.
type badgerRecord struct {
	Seq         uint64          `json:"seq"`
	CreatedUnix int64           `json:"created_unix"`
	Payload     json.RawMessage `json:"payload"`
}

// BadgerStore keeps snapshots in an embedded badger database.
type BadgerStore struct {
	db  *badger.DB
	seq *badger.Sequence
}

var _ ports.SnapshotStore = (*BadgerStore)(nil)

// OpenBadger opens the database directory at path. An empty path keeps data in memory.
func OpenBadger(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	seq, err := db.GetSequence([]byte(badgerSeqKey), badgerSeqBatch)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("badger sequence: %w", err)
	}
	return &BadgerStore{db: db, seq: seq}, nil
}

func snapshotKey(id string) []byte {
	return []byte(badgerPrefix + id)
}

func (s *BadgerStore) Put(ctx context.Context, snapshot domain.Snapshot) (string, error) {
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
	n, err := s.seq.Next()
	if err != nil {
		return "", fmt.Errorf("next sequence: %w", err)
	}
	value, err := json.Marshal(badgerRecord{Seq: n, CreatedUnix: snapshot.CreatedAt.UnixNano(), Payload: payload})
	if err != nil {
		return "", fmt.Errorf("encode record: %w", err)
	}

	key := snapshotKey(snapshot.ID)
	err = s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err == nil {
			return domain.ErrSnapshotExists
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(key, value)
	})
	if err != nil {
		if errors.Is(err, domain.ErrSnapshotExists) {
			return "", err
		}
		return "", fmt.Errorf("put mind map: %w", err)
	}
	return snapshot.ID, nil
}

func (s *BadgerStore) Get(ctx context.Context, id string) (domain.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return domain.Snapshot{}, err
	}
	var rec badgerRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(snapshotKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Snapshot{}, domain.ErrSnapshotNotFound
	}
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("get mind map: %w", err)
	}
	return decode(rec.Payload)
}

func (s *BadgerStore) Latest(ctx context.Context) (domain.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return domain.Snapshot{}, err
	}
	var latest *badgerRecord
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(badgerPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec badgerRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			if latest == nil || rec.CreatedUnix > latest.CreatedUnix ||
				(rec.CreatedUnix == latest.CreatedUnix && rec.Seq > latest.Seq) {
				r := rec
				latest = &r
			}
		}
		return nil
	})
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("scan mind maps: %w", err)
	}
	if latest == nil {
		return domain.Snapshot{}, domain.ErrNoSnapshots
	}
	return decode(latest.Payload)
}

func (s *BadgerStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := snapshotKey(id)
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err != nil {
			return err
		}
		return txn.Delete(key)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.ErrSnapshotNotFound
	}
	if err != nil {
		return fmt.Errorf("delete mind map: %w", err)
	}
	return nil
}

// Close releases the sequence lease and the database.
func (s *BadgerStore) Close() error {
	return errors.Join(s.seq.Release(), s.db.Close())
}
