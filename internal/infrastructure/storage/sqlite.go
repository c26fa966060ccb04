package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"MindMapService/internal/domain"
	"MindMapService/internal/ports"
)

// snapshotRow is the sqlite table layout. CreatedUnix is nanoseconds so ordering never
// depends on the driver's time text format.
type snapshotRow struct {
	Seq         int64  `gorm:"primaryKey;autoIncrement"`
	SnapshotID  string `gorm:"uniqueIndex;not null"`
	CreatedUnix int64  `gorm:"index;not null"`
	Payload     []byte `gorm:"not null"`
}

func (snapshotRow) TableName() string { return "mind_maps" }

// SQLiteStore persists snapshots in a single sqlite file through gorm.
type SQLiteStore struct {
	db *gorm.DB
}

var _ ports.SnapshotStore = (*SQLiteStore)(nil)

// OpenSQLite opens (creating if needed) the database at path and migrates the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
		}
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to sqlite: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	// A single connection serialises writers and keeps :memory: databases shared.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&snapshotRow{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate mind_maps: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Put(ctx context.Context, snapshot domain.Snapshot) (string, error) {
	if err := validID(snapshot.ID); err != nil {
		return "", err
	}
	payload, err := encode(snapshot)
	if err != nil {
		return "", err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&snapshotRow{}).Where("snapshot_id = ?", snapshot.ID).Count(&count).Error; err != nil {
			return fmt.Errorf("check mind map: %w", err)
		}
		if count > 0 {
			return domain.ErrSnapshotExists
		}
		row := snapshotRow{SnapshotID: snapshot.ID, CreatedUnix: snapshot.CreatedAt.UnixNano(), Payload: payload}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("insert mind map: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return snapshot.ID, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (domain.Snapshot, error) {
	var row snapshotRow
	err := s.db.WithContext(ctx).Where("snapshot_id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Snapshot{}, domain.ErrSnapshotNotFound
	}
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("get mind map: %w", err)
	}
	return decode(row.Payload)
}

func (s *SQLiteStore) Latest(ctx context.Context) (domain.Snapshot, error) {
	var row snapshotRow
	err := s.db.WithContext(ctx).Order("created_unix DESC").Order("seq DESC").Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Snapshot{}, domain.ErrNoSnapshots
	}
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("latest mind map: %w", err)
	}
	return decode(row.Payload)
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("snapshot_id = ?", id).Delete(&snapshotRow{})
	if res.Error != nil {
		return fmt.Errorf("delete mind map: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrSnapshotNotFound
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}
