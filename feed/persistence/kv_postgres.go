package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dfryer1193/cropfeed/feed/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ domain.KVStore = (*PostgresKVStore)(nil)

// PostgresKVStore implements domain.KVStore on a Postgres kv_entries table
type PostgresKVStore struct {
	pool *pgxpool.Pool
}

func NewPostgresKVStore(pool *pgxpool.Pool) *PostgresKVStore {
	return &PostgresKVStore{pool: pool}
}

func (s *PostgresKVStore) Get(ctx context.Context, key string) ([]byte, int64, error) {
	if key == "" {
		return nil, 0, fmt.Errorf("key cannot be empty")
	}

	var value []byte
	var version int64
	err := s.pool.QueryRow(ctx, `SELECT value, version FROM kv_entries WHERE key = $1`, key).Scan(&value, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, 0, domain.ErrNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get entry %s: %w", key, err)
	}
	return value, version, nil
}

func (s *PostgresKVStore) Put(ctx context.Context, key string, value []byte, expectedVersion int64) (int64, error) {
	if key == "" {
		return 0, fmt.Errorf("key cannot be empty")
	}
	if expectedVersion < 0 {
		return 0, fmt.Errorf("expected version cannot be negative")
	}

	now := time.Now().UTC()

	var query string
	var args []any
	if expectedVersion == 0 {
		query = `INSERT INTO kv_entries (key, value, version, updated_at) VALUES ($1, $2, 1, $3) ON CONFLICT (key) DO NOTHING`
		args = []any{key, value, now}
	} else {
		query = `UPDATE kv_entries SET value = $1, version = version + 1, updated_at = $2 WHERE key = $3 AND version = $4`
		args = []any{value, now, key, expectedVersion}
	}

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to write entry %s: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return 0, domain.ErrVersionConflict
	}
	return expectedVersion + 1, nil
}

func (s *PostgresKVStore) Delete(ctx context.Context, key string) error {
	if key == "" {
		return fmt.Errorf("key cannot be empty")
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM kv_entries WHERE key = $1`, key); err != nil {
		return fmt.Errorf("failed to delete entry %s: %w", key, err)
	}
	return nil
}
