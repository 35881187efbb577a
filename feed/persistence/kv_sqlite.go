package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dfryer1193/cropfeed/feed/domain"
	"github.com/dfryer1193/cropfeed/shared/db"
)

var _ domain.KVStore = (*SQLiteKVStore)(nil)

// SQLiteKVStore implements domain.KVStore on the kv_entries table
type SQLiteKVStore struct {
	db *sql.DB
}

// NewSQLiteKVStore creates a SQLiteKVStore from a standard sql.DB
func NewSQLiteKVStore(sqlDB *sql.DB) *SQLiteKVStore {
	return &SQLiteKVStore{
		db: sqlDB,
	}
}

const getEntryQuery = `
	SELECT value, version
	FROM kv_entries
	WHERE key = ?
`

// Get returns the stored value and version for key
func (s *SQLiteKVStore) Get(ctx context.Context, key string) ([]byte, int64, error) {
	if key == "" {
		return nil, 0, fmt.Errorf("key cannot be empty")
	}

	var value []byte
	var version int64
	err := db.GetExecutor(ctx, s.db).QueryRowContext(ctx, getEntryQuery, key).Scan(&value, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, domain.ErrNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get entry %s: %w", key, err)
	}

	return value, version, nil
}

const insertEntryQuery = `
	INSERT INTO kv_entries (key, value, version, updated_at)
	VALUES (?, ?, 1, ?)
	ON CONFLICT(key) DO NOTHING
`

const updateEntryQuery = `
	UPDATE kv_entries
	SET value = ?, version = version + 1, updated_at = ?
	WHERE key = ? AND version = ?
`

// Put writes value if the stored version still matches expectedVersion.
// The check and the write are a single statement, so concurrent writers
// from other processes cannot interleave between them.
func (s *SQLiteKVStore) Put(ctx context.Context, key string, value []byte, expectedVersion int64) (int64, error) {
	if key == "" {
		return 0, fmt.Errorf("key cannot be empty")
	}
	if expectedVersion < 0 {
		return 0, fmt.Errorf("expected version cannot be negative")
	}

	now := time.Now().UTC()
	executor := db.GetExecutor(ctx, s.db)

	var res sql.Result
	var err error
	if expectedVersion == 0 {
		res, err = executor.ExecContext(ctx, insertEntryQuery, key, value, now)
	} else {
		res, err = executor.ExecContext(ctx, updateEntryQuery, value, now, key, expectedVersion)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to write entry %s: %w", key, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return 0, domain.ErrVersionConflict
	}

	return expectedVersion + 1, nil
}

const deleteEntryQuery = `
	DELETE FROM kv_entries WHERE key = ?
`

// Delete removes key
func (s *SQLiteKVStore) Delete(ctx context.Context, key string) error {
	if key == "" {
		return fmt.Errorf("key cannot be empty")
	}

	if _, err := db.GetExecutor(ctx, s.db).ExecContext(ctx, deleteEntryQuery, key); err != nil {
		return fmt.Errorf("failed to delete entry %s: %w", key, err)
	}
	return nil
}
