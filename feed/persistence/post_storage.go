package persistence

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dfryer1193/cropfeed/feed/domain"
	"github.com/rs/zerolog/log"
)

// DefaultQuotaBytes matches the per-origin budget browsers give local storage.
const DefaultQuotaBytes = 5 * 1024 * 1024

var _ domain.PostStore = (*PostStorage)(nil)

// PostStorage persists the whole post collection as one JSON array under a
// single key of a KVStore.
type PostStorage struct {
	kv         domain.KVStore
	key        string
	quotaBytes int
}

type PostStorageOption func(*PostStorage)

// WithKey overrides the storage key (default domain.StorageKey).
func WithKey(key string) PostStorageOption {
	return func(s *PostStorage) {
		s.key = key
	}
}

// WithQuota sets the maximum encoded size of the collection. Zero or less
// disables the check.
func WithQuota(bytes int) PostStorageOption {
	return func(s *PostStorage) {
		s.quotaBytes = bytes
	}
}

func NewPostStorage(kv domain.KVStore, opts ...PostStorageOption) *PostStorage {
	s := &PostStorage{
		kv:         kv,
		key:        domain.StorageKey,
		quotaBytes: DefaultQuotaBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load reads the collection. A missing key or a value that is not a JSON
// array yields an empty collection; only backend failures return an error.
func (s *PostStorage) Load(ctx context.Context) (domain.Snapshot, error) {
	data, version, err := s.kv.Get(ctx, s.key)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Snapshot{Posts: []domain.Post{}}, nil
	}
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("failed to load posts: %w", err)
	}

	var records []json.RawMessage
	if err := json.Unmarshal(data, &records); err != nil {
		log.Warn().Err(err).Str("key", s.key).Msg("Stored posts are not a JSON array, treating as empty")
		return domain.Snapshot{Posts: []domain.Post{}, Version: version}, nil
	}

	posts := make([]domain.Post, 0, len(records))
	for i, raw := range records {
		post, ok := decodeRecord(raw)
		if !ok {
			log.Warn().Str("key", s.key).Int("index", i).Msg("Skipping stored post that is not an object")
			continue
		}
		posts = append(posts, post)
	}

	return domain.Snapshot{Posts: posts, Version: version}, nil
}

// Save overwrites the collection if nobody else wrote since expectedVersion.
func (s *PostStorage) Save(ctx context.Context, posts []domain.Post, expectedVersion int64) (int64, error) {
	data, err := encodePosts(posts)
	if err != nil {
		return 0, fmt.Errorf("failed to encode posts: %w", err)
	}

	if s.quotaBytes > 0 && len(data) > s.quotaBytes {
		return 0, fmt.Errorf("%w: %d bytes exceeds %d", domain.ErrQuotaExceeded, len(data), s.quotaBytes)
	}

	version, err := s.kv.Put(ctx, s.key, data, expectedVersion)
	if err != nil {
		return 0, fmt.Errorf("failed to save posts: %w", err)
	}
	return version, nil
}

// Clear removes the whole collection.
func (s *PostStorage) Clear(ctx context.Context) error {
	if err := s.kv.Delete(ctx, s.key); err != nil {
		return fmt.Errorf("failed to clear posts: %w", err)
	}
	return nil
}

func encodePosts(posts []domain.Post) ([]byte, error) {
	if posts == nil {
		posts = []domain.Post{}
	}
	return json.Marshal(posts)
}

// decodeRecord converts one stored record into a Post. Fields holding the
// wrong JSON type degrade to zero values instead of failing the record.
func decodeRecord(raw json.RawMessage) (domain.Post, bool) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var fields map[string]any
	if err := dec.Decode(&fields); err != nil || fields == nil {
		return domain.Post{}, false
	}

	return domain.Post{
		ID:          intField(fields["id"]),
		UserID:      stringField(fields["userId"]),
		Title:       stringField(fields["title"]),
		Category:    stringField(fields["category"]),
		Location:    stringField(fields["location"]),
		Image:       stringField(fields["image"]),
		Description: stringField(fields["description"]),
		Price:       stringField(fields["price"]),
		Available:   stringField(fields["available"]),
		Timestamp:   timeField(fields["timestamp"]),
	}, true
}

func stringField(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

func intField(v any) int64 {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		if f, err := val.Float64(); err == nil {
			return int64(f)
		}
	case string:
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			return i
		}
	}
	return 0
}

func timeField(v any) time.Time {
	s, ok := v.(string)
	if !ok {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
