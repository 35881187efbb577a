package domain

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by a KVStore when the key holds no value.
	ErrNotFound = errors.New("not found")

	// ErrVersionConflict is returned when another writer saved since the
	// version the caller read.
	ErrVersionConflict = errors.New("version conflict: collection was modified by another writer")

	// ErrQuotaExceeded is returned when the serialized collection does not
	// fit in the configured storage quota.
	ErrQuotaExceeded = errors.New("storage quota exceeded")
)

// KVStore is a versioned key/value store. Versions start at 1 for the first
// write; an absent key has version 0.
type KVStore interface {
	// Get returns the value and its version, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, int64, error)

	// Put replaces the value if the stored version still equals expectedVersion
	// and returns the new version. Otherwise it returns ErrVersionConflict.
	Put(ctx context.Context, key string, value []byte, expectedVersion int64) (int64, error)

	// Delete removes the key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}

// Snapshot is the post collection as read from storage, newest first,
// together with the version it was read at.
type Snapshot struct {
	Posts   []Post
	Version int64
}

// PostStore persists the whole post collection under one logical key.
type PostStore interface {
	// Load returns the stored collection. Unparseable data yields an empty
	// collection rather than an error.
	Load(ctx context.Context) (Snapshot, error)

	// Save overwrites the collection if it is still at expectedVersion.
	Save(ctx context.Context, posts []Post, expectedVersion int64) (int64, error)

	// Clear removes the collection.
	Clear(ctx context.Context) error
}
