package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tastream/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

var _ model.SnapshotStore = (*SnapshotStore)(nil)

const (
	// DefaultSnapshotKey holds the latest indicator engine snapshot.
	DefaultSnapshotKey = "indengine:snapshot"

	// Redis copies expire; SQLite keeps the durable history.
	snapshotTTL     = 24 * time.Hour
	snapshotTimeout = 5 * time.Second
)

// SnapshotStore keeps the latest indicator engine snapshot in a Redis key.
type SnapshotStore struct {
	client *goredis.Client
	key    string
}

// NewSnapshotStore returns a store writing to key (DefaultSnapshotKey if empty).
func NewSnapshotStore(client *goredis.Client, key string) *SnapshotStore {
	if key == "" {
		key = DefaultSnapshotKey
	}
	return &SnapshotStore{client: client, key: key}
}

// SaveSnapshotJSON stores an encoded snapshot.
func (s *SnapshotStore) SaveSnapshotJSON(data []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
	defer cancel()
	if err := s.client.Set(ctx, s.key, string(data), snapshotTTL).Err(); err != nil {
		return fmt.Errorf("redis set snapshot %s: %w", s.key, err)
	}
	return nil
}

// ReadLatestSnapshotJSON returns the stored snapshot, or nil if none exists.
func (s *SnapshotStore) ReadLatestSnapshotJSON() ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
	defer cancel()
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get snapshot %s: %w", s.key, err)
	}
	return data, nil
}
