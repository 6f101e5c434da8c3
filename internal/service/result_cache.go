package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/mmk-inference/internal/core"
	"github.com/target/mmk-inference/internal/observability/metrics"
	"github.com/target/mmk-inference/internal/observability/statsd"
)

// ResultCacheOptions groups dependencies for ResultCache.
type ResultCacheOptions struct {
	Repo       core.CacheRepository // Required: storage backend
	DefaultTTL time.Duration        // Required: TTL used when Put is given zero
	Logger     *slog.Logger         // Optional: structured logger
	Metrics    statsd.Sink          // Optional: hit/miss counters
}

// ResultCache maps request fingerprints to computed results.
//
// Backend failures never fail a request: a failed read is a miss and a
// failed write leaves the result uncached.
type ResultCache struct {
	repo       core.CacheRepository
	sweeper    core.CacheSweeper
	defaultTTL time.Duration
	logger     *slog.Logger
	metrics    statsd.Sink
}

// NewResultCache constructs a ResultCache.
func NewResultCache(opts ResultCacheOptions) (*ResultCache, error) {
	if opts.Repo == nil {
		return nil, errors.New("CacheRepository is required")
	}
	if opts.DefaultTTL <= 0 {
		return nil, errors.New("DefaultTTL must be positive")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "result_cache")
	}

	c := &ResultCache{
		repo:       opts.Repo,
		defaultTTL: opts.DefaultTTL,
		logger:     logger,
		metrics:    opts.Metrics,
	}
	if sw, ok := opts.Repo.(core.CacheSweeper); ok {
		c.sweeper = sw
	}
	return c, nil
}

// Get returns the cached result for fingerprint. Entries at or past their
// expiry are never returned.
func (c *ResultCache) Get(ctx context.Context, fingerprint string) (json.RawMessage, bool) {
	raw, err := c.repo.Get(ctx, fingerprint)
	if err != nil {
		if c.logger != nil {
			c.logger.WarnContext(ctx, "result cache read failed", "fingerprint", fingerprint, "error", err)
		}
		metrics.EmitCacheLookup(c.metrics, false)
		return nil, false
	}
	hit := raw != nil
	metrics.EmitCacheLookup(c.metrics, hit)
	if !hit {
		return nil, false
	}
	return json.RawMessage(raw), true
}

// Put stores result under fingerprint, replacing any previous entry.
// A ttl of zero uses the default TTL.
func (c *ResultCache) Put(ctx context.Context, fingerprint string, result json.RawMessage, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	if err := c.repo.Set(ctx, fingerprint, result, ttl); err != nil && c.logger != nil {
		c.logger.WarnContext(ctx, "result cache write failed", "fingerprint", fingerprint, "error", err)
	}
}

// Invalidate removes the entry for fingerprint.
func (c *ResultCache) Invalidate(ctx context.Context, fingerprint string) (bool, error) {
	ok, err := c.repo.Delete(ctx, fingerprint)
	if err != nil {
		return false, fmt.Errorf("invalidate %s: %w", fingerprint, err)
	}
	return ok, nil
}

// Clear removes every cached result.
func (c *ResultCache) Clear(ctx context.Context) (int, error) {
	n, err := c.repo.Clear(ctx)
	if err != nil {
		return n, fmt.Errorf("clear result cache: %w", err)
	}
	return n, nil
}

// NeedsSweep reports whether the backend relies on Sweep to reclaim memory.
func (c *ResultCache) NeedsSweep() bool { return c.sweeper != nil }

// Sweep removes expired entries from backends that do not expire them natively.
func (c *ResultCache) Sweep(ctx context.Context) (int, error) {
	if c.sweeper == nil {
		return 0, nil
	}
	n, err := c.sweeper.Sweep(ctx)
	if err != nil {
		return n, fmt.Errorf("sweep result cache: %w", err)
	}
	metrics.EmitCacheSweep(c.metrics, n)
	return n, nil
}

// Health checks the cache backend.
func (c *ResultCache) Health(ctx context.Context) error {
	return c.repo.Health(ctx)
}
