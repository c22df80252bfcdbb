package session

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
)

const redisScanBatch = 256

// RedisBackend stores items as plain Redis strings.
type RedisBackend struct {
	client *redis.Client
	ctx    context.Context
}

// NewRedisBackend connects to the Redis server described by redisURL
// (redis://[:password@]host:port/db) and verifies it answers PING.
func NewRedisBackend(ctx context.Context, redisURL string) (*RedisBackend, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("session.backend.redis.parse_url: %w", err)
	}
	client := redis.NewClient(options)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("session.backend.redis.ping: %w", err)
	}
	return &RedisBackend{client: client, ctx: ctx}, nil
}

// GetItem returns the raw value stored at key.
func (backend *RedisBackend) GetItem(key string) (string, bool, error) {
	value, err := backend.client.Get(backend.ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("session.backend.redis.get: %w", err)
	}
	return value, true, nil
}

// SetItem stores value at key without a server-side TTL; expiry is handled by the store.
func (backend *RedisBackend) SetItem(key string, value string) error {
	if err := backend.client.Set(backend.ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("session.backend.redis.set: %w", err)
	}
	return nil
}

// RemoveItem deletes key if present.
func (backend *RedisBackend) RemoveItem(key string) error {
	if err := backend.client.Del(backend.ctx, key).Err(); err != nil {
		return fmt.Errorf("session.backend.redis.remove: %w", err)
	}
	return nil
}

// Keys lists the keys in the store namespace, sorted. Other keys in the same database are ignored.
func (backend *RedisBackend) Keys() ([]string, error) {
	var keys []string
	iterator := backend.client.Scan(backend.ctx, 0, KeyPrefix+"-*", redisScanBatch).Iterator()
	for iterator.Next(backend.ctx) {
		keys = append(keys, iterator.Val())
	}
	if err := iterator.Err(); err != nil {
		return nil, fmt.Errorf("session.backend.redis.keys: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

// Close closes the Redis connection pool.
func (backend *RedisBackend) Close() error {
	return backend.client.Close()
}
