// Package storage holds the snapshot store backends.
package storage

import (
	"encoding/json"
	"fmt"

	"MindMapService/internal/domain"
)

// encode serialises a snapshot to the payload every backend stores.
func encode(snapshot domain.Snapshot) ([]byte, error) {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot %s: %w", snapshot.ID, err)
	}
	return payload, nil
}

func decode(payload []byte) (domain.Snapshot, error) {
	var snapshot domain.Snapshot
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		return domain.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snapshot, nil
}

func validID(id string) error {
	if id == "" {
		return fmt.Errorf("snapshot id is empty")
	}
	return nil
}
