package data

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/target/mmk-inference/internal/core"
)

// DefaultResultKeyPrefix namespaces cached results in Redis.
const DefaultResultKeyPrefix = "inference:result:"

const clearScanCount = 500

// RedisCacheRepo implements the CacheRepository interface using Redis.
// Redis expires entries natively, so the repository needs no sweep.
type RedisCacheRepo struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisCacheRepo creates a new RedisCacheRepo with the given Redis client.
// An empty prefix uses DefaultResultKeyPrefix.
func NewRedisCacheRepo(client redis.UniversalClient, prefix string) *RedisCacheRepo {
	if prefix == "" {
		prefix = DefaultResultKeyPrefix
	}
	return &RedisCacheRepo{client: client, prefix: prefix}
}

// Set stores a value in Redis with the given key and TTL.
func (r *RedisCacheRepo) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return errors.New("key cannot be empty")
	}
	if ttl < 0 {
		ttl = 0
	}
	if err := r.client.Set(ctx, r.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Get retrieves a value from Redis by key.
func (r *RedisCacheRepo) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, errors.New("key cannot be empty")
	}

	result, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // Key doesn't exist
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return result, nil
}

// Delete removes a key from Redis.
func (r *RedisCacheRepo) Delete(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, errors.New("key cannot be empty")
	}

	result, err := r.client.Del(ctx, r.prefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("redis del: %w", err)
	}
	return result > 0, nil
}

// Clear deletes every key under the repository prefix. Cluster clients are
// scanned master by master.
func (r *RedisCacheRepo) Clear(ctx context.Context) (int, error) {
	if cc, ok := r.client.(*redis.ClusterClient); ok {
		var total atomic.Int64
		err := cc.ForEachMaster(ctx, func(ctx context.Context, node *redis.Client) error {
			n, err := r.clearNode(ctx, node)
			total.Add(int64(n))
			return err
		})
		return int(total.Load()), err
	}
	return r.clearNode(ctx, r.client)
}

func (r *RedisCacheRepo) clearNode(ctx context.Context, client redis.Cmdable) (int, error) {
	removed := 0
	batch := make([]string, 0, clearScanCount)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		// One DEL per key so keys in different cluster slots never share a command.
		cmds, err := client.Pipelined(ctx, func(p redis.Pipeliner) error {
			for _, key := range batch {
				p.Del(ctx, key)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("redis del: %w", err)
		}
		for _, cmd := range cmds {
			if del, ok := cmd.(*redis.IntCmd); ok {
				removed += int(del.Val())
			}
		}
		batch = batch[:0]
		return nil
	}

	iter := client.Scan(ctx, 0, r.prefix+"*", clearScanCount).Iterator()
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			if err := flush(); err != nil {
				return removed, err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("redis scan: %w", err)
	}
	return removed, flush()
}

// Health checks the health of the Redis connection.
func (r *RedisCacheRepo) Health(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

var _ core.CacheRepository = (*RedisCacheRepo)(nil)
