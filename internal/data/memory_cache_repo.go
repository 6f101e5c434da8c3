package data

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/target/mmk-inference/internal/core"
)

const defaultMemoryCacheShards = 32

type memoryEntry struct {
	value     []byte
	createdAt time.Time
	expiresAt time.Time // zero means no expiry
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

type memoryShard struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

// MemoryCacheRepo is an in-process CacheRepository. Keys are spread across
// independently locked shards so a write never blocks reads of keys in other
// shards. Entries are checked for expiry on every read and removed by Sweep.
type MemoryCacheRepo struct {
	shards []*memoryShard
	clock  TimeProvider
}

// MemoryCacheRepoOptions configure NewMemoryCacheRepo.
type MemoryCacheRepoOptions struct {
	Shards int
	Clock  TimeProvider
}

// NewMemoryCacheRepo creates an empty in-memory cache.
func NewMemoryCacheRepo(opts MemoryCacheRepoOptions) *MemoryCacheRepo {
	n := opts.Shards
	if n <= 0 {
		n = defaultMemoryCacheShards
	}
	clock := opts.Clock
	if clock == nil {
		clock = RealTimeProvider{}
	}
	shards := make([]*memoryShard, n)
	for i := range shards {
		shards[i] = &memoryShard{entries: make(map[string]memoryEntry)}
	}
	return &MemoryCacheRepo{shards: shards, clock: clock}
}

func (r *MemoryCacheRepo) shard(key string) *memoryShard {
	return r.shards[xxhash.Sum64String(key)%uint64(len(r.shards))]
}

// Set stores a copy of value under key. A TTL of 0 never expires.
func (r *MemoryCacheRepo) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return errors.New("key cannot be empty")
	}
	now := r.clock.Now()
	e := memoryEntry{value: append([]byte(nil), value...), createdAt: now}
	if ttl > 0 {
		e.expiresAt = now.Add(ttl)
	}
	s := r.shard(key)
	s.mu.Lock()
	s.entries[key] = e
	s.mu.Unlock()
	return nil
}

// Get returns a copy of the stored value, or nil when the key is absent or expired.
func (r *MemoryCacheRepo) Get(_ context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, errors.New("key cannot be empty")
	}
	s := r.shard(key)
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok || e.expired(r.clock.Now()) {
		return nil, nil
	}
	return append([]byte(nil), e.value...), nil
}

// Delete removes key and reports whether a live entry was removed.
func (r *MemoryCacheRepo) Delete(_ context.Context, key string) (bool, error) {
	if key == "" {
		return false, errors.New("key cannot be empty")
	}
	s := r.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return false, nil
	}
	delete(s.entries, key)
	return !e.expired(r.clock.Now()), nil
}

// Clear drops every entry.
func (r *MemoryCacheRepo) Clear(_ context.Context) (int, error) {
	total := 0
	for _, s := range r.shards {
		s.mu.Lock()
		total += len(s.entries)
		s.entries = make(map[string]memoryEntry)
		s.mu.Unlock()
	}
	return total, nil
}

// Sweep removes expired entries one shard at a time.
func (r *MemoryCacheRepo) Sweep(ctx context.Context) (int, error) {
	removed := 0
	for _, s := range r.shards {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		now := r.clock.Now()
		s.mu.Lock()
		for k, e := range s.entries {
			if e.expired(now) {
				delete(s.entries, k)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed, nil
}

// Len returns the number of stored entries, including expired ones not yet swept.
func (r *MemoryCacheRepo) Len() int {
	n := 0
	for _, s := range r.shards {
		s.mu.RLock()
		n += len(s.entries)
		s.mu.RUnlock()
	}
	return n
}

// Health always succeeds for the in-process cache.
func (r *MemoryCacheRepo) Health(context.Context) error { return nil }

var (
	_ core.CacheRepository = (*MemoryCacheRepo)(nil)
	_ core.CacheSweeper    = (*MemoryCacheRepo)(nil)
)
