package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKey is the redis key holding the shared snapshot.
const DefaultKey = "nook:catalog:snapshot"

// RedisCache stores snapshots as JSON in a single redis key.
type RedisCache struct {
	client *redis.Client
	key    string
}

// NewRedisCache creates a cache on client. An empty key uses DefaultKey.
func NewRedisCache(client *redis.Client, key string) *RedisCache {
	if key == "" {
		key = DefaultKey
	}
	return &RedisCache{client: client, key: key}
}

func (r *RedisCache) Get(ctx context.Context) (*Snapshot, error) {
	val, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(val, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

// Set stores snap. A ttl <= 0 stores it without expiry.
func (r *RedisCache) Set(ctx context.Context, snap *Snapshot, ttl time.Duration) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if ttl < 0 {
		ttl = 0
	}
	return r.client.Set(ctx, r.key, data, ttl).Err()
}

func (r *RedisCache) Delete(ctx context.Context) error {
	return r.client.Del(ctx, r.key).Err()
}

// Ping checks the connection for readiness probes.
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
