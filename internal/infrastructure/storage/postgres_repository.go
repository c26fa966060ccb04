package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"MindMapService/internal/domain"
	"MindMapService/internal/ports"
)

const postgresSchema = `CREATE TABLE IF NOT EXISTS mind_maps (
    seq        BIGSERIAL PRIMARY KEY,
    id         TEXT NOT NULL UNIQUE,
    created_at TIMESTAMPTZ NOT NULL,
    payload    JSONB NOT NULL
)`

const uniqueViolation = "23505"

// PostgresRepository persists snapshots as JSONB documents.
type PostgresRepository struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

var _ ports.SnapshotStore = (*PostgresRepository)(nil)

// OpenPostgres connects with lib/pq and ensures the schema exists.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	repo := NewPostgresRepository(db)
	if err := repo.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// NewPostgresRepository wires a sql.DB implementation.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar).RunWith(db),
	}
}

// Migrate creates the snapshot table when missing.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, postgresSchema); err != nil {
		return fmt.Errorf("migrate mind_maps: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Put(ctx context.Context, snapshot domain.Snapshot) (string, error) {
	if err := validID(snapshot.ID); err != nil {
		return "", err
	}
	payload, err := encode(snapshot)
	if err != nil {
		return "", err
	}

	_, err = r.sb.Insert("mind_maps").
		Columns("id", "created_at", "payload").
		Values(snapshot.ID, snapshot.CreatedAt.UTC(), string(payload)).
		ExecContext(ctx)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return "", domain.ErrSnapshotExists
		}
		return "", fmt.Errorf("insert mind map: %w", err)
	}
	return snapshot.ID, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (domain.Snapshot, error) {
	row := r.sb.Select("payload").
		From("mind_maps").
		Where(sq.Eq{"id": id}).
		QueryRowContext(ctx)
	return scanPayload(row, domain.ErrSnapshotNotFound)
}

func (r *PostgresRepository) Latest(ctx context.Context) (domain.Snapshot, error) {
	row := r.sb.Select("payload").
		From("mind_maps").
		OrderBy("created_at DESC", "seq DESC").
		Limit(1).
		QueryRowContext(ctx)
	return scanPayload(row, domain.ErrNoSnapshots)
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	res, err := r.sb.Delete("mind_maps").Where(sq.Eq{"id": id}).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("delete mind map: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete mind map rows: %w", err)
	}
	if affected == 0 {
		return domain.ErrSnapshotNotFound
	}
	return nil
}

// Close releases the connection pool.
func (r *PostgresRepository) Close() error {
	return r.db.Close()
}

func scanPayload(row sq.RowScanner, missing error) (domain.Snapshot, error) {
	var payload []byte
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Snapshot{}, missing
		}
		return domain.Snapshot{}, fmt.Errorf("scan mind map: %w", err)
	}
	return decode(payload)
}
