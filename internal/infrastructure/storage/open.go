package storage

import (
	"context"
	"fmt"

	"MindMapService/internal/config"
	"MindMapService/internal/ports"
)

// Open builds the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StorageConfig) (ports.SnapshotStore, error) {
	switch cfg.Driver {
	case "memory", "":
		return NewMemoryStore(), nil
	case "postgres":
		return OpenPostgres(ctx, cfg.PostgresDSN)
	case "sqlite":
		return OpenSQLite(cfg.SQLitePath)
	case "badger":
		return OpenBadger(cfg.BadgerPath)
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
	}
}
