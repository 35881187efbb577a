package persistence

import (
	"context"
	"fmt"
	"sync"

	"github.com/dfryer1193/cropfeed/feed/domain"
)

var _ domain.KVStore = (*MemoryKVStore)(nil)

type memoryEntry struct {
	value   []byte
	version int64
}

// MemoryKVStore keeps entries in process memory. Values are copied in and out.
type MemoryKVStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

func NewMemoryKVStore() *MemoryKVStore {
	return &MemoryKVStore{entries: make(map[string]memoryEntry)}
}

func (s *MemoryKVStore) Get(_ context.Context, key string) ([]byte, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, 0, domain.ErrNotFound
	}
	return append([]byte(nil), e.value...), e.version, nil
}

func (s *MemoryKVStore) Put(_ context.Context, key string, value []byte, expectedVersion int64) (int64, error) {
	if key == "" {
		return 0, fmt.Errorf("key cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entries[key].version != expectedVersion {
		return 0, domain.ErrVersionConflict
	}
	next := expectedVersion + 1
	s.entries[key] = memoryEntry{value: append([]byte(nil), value...), version: next}
	return next, nil
}

func (s *MemoryKVStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}
