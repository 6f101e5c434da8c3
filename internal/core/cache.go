// Package core defines the ports between the inference pipeline and the
// adapters that store results, execute models and persist history.
package core

import (
	"context"
	"time"
)

// CacheRepository defines the interface for result caching operations.
// This follows the hexagonal architecture pattern where the core defines interfaces
// and the data layer provides implementations.
type CacheRepository interface {
	// Set stores a value with the given key and TTL, replacing any previous value.
	// If TTL is 0, the key will not expire.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get retrieves a value from the cache by key.
	// Returns nil if the key doesn't exist or has expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes a key from the cache.
	// Returns true if the key was deleted, false if it didn't exist.
	Delete(ctx context.Context, key string) (bool, error)

	// Clear removes every entry owned by the repository and returns how many were removed.
	Clear(ctx context.Context) (int, error)

	// Health checks the health of the cache backend.
	Health(ctx context.Context) error
}

// CacheSweeper is implemented by cache backends that do not expire entries on
// their own and need a periodic sweep.
type CacheSweeper interface {
	// Sweep removes expired entries and returns how many were removed.
	Sweep(ctx context.Context) (int, error)
}
