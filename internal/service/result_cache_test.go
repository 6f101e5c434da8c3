package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/mmk-inference/internal/data"
	"github.com/target/mmk-inference/internal/mocks"
)

func newMemoryResultCache(t *testing.T, clock data.TimeProvider, sink *countingSink) (*ResultCache, *data.MemoryCacheRepo) {
	t.Helper()
	repo := data.NewMemoryCacheRepo(data.MemoryCacheRepoOptions{Clock: clock})
	opts := ResultCacheOptions{Repo: repo, DefaultTTL: 10 * time.Second}
	if sink != nil {
		opts.Metrics = sink
	}
	cache, err := NewResultCache(opts)
	require.NoError(t, err)
	return cache, repo
}

func TestNewResultCache_Validation(t *testing.T) {
	_, err := NewResultCache(ResultCacheOptions{DefaultTTL: time.Second})
	require.Error(t, err)

	_, err = NewResultCache(ResultCacheOptions{Repo: data.NewMemoryCacheRepo(data.MemoryCacheRepoOptions{})})
	require.Error(t, err)
}

func TestResultCache_TTL(t *testing.T) {
	ctx := context.Background()
	clock := data.NewFixedTimeProvider(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	sink := newCountingSink()
	cache, _ := newMemoryResultCache(t, clock, sink)

	cache.Put(ctx, "fp", json.RawMessage(`{"v":1}`), 0)

	clock.AddTime(9 * time.Second)
	got, hit := cache.Get(ctx, "fp")
	require.True(t, hit)
	assert.JSONEq(t, `{"v":1}`, string(got))

	// An entry exactly at its expiry is never served.
	clock.AddTime(time.Second)
	_, hit = cache.Get(ctx, "fp")
	assert.False(t, hit)

	assert.Equal(t, int64(2), sink.count("cache.lookup"))
	assert.Equal(t, "miss", sink.lastTags("cache.lookup")["result"])
}

func TestResultCache_PutReplacesAndExplicitTTL(t *testing.T) {
	ctx := context.Background()
	clock := data.NewFixedTimeProvider(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	cache, _ := newMemoryResultCache(t, clock, nil)

	cache.Put(ctx, "fp", json.RawMessage(`{"v":1}`), time.Minute)
	cache.Put(ctx, "fp", json.RawMessage(`{"v":2}`), time.Minute)

	clock.AddTime(30 * time.Second)
	got, hit := cache.Get(ctx, "fp")
	require.True(t, hit)
	assert.JSONEq(t, `{"v":2}`, string(got))
}

func TestResultCache_SweepInvalidateClear(t *testing.T) {
	ctx := context.Background()
	clock := data.NewFixedTimeProvider(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	sink := newCountingSink()
	cache, repo := newMemoryResultCache(t, clock, sink)
	assert.True(t, cache.NeedsSweep())

	cache.Put(ctx, "short", json.RawMessage(`1`), time.Second)
	cache.Put(ctx, "long", json.RawMessage(`2`), time.Hour)
	cache.Put(ctx, "other", json.RawMessage(`3`), time.Hour)

	clock.AddTime(2 * time.Second)
	removed, err := cache.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 2, repo.Len())
	assert.Equal(t, int64(1), sink.count("cache.swept"))

	ok, err := cache.Invalidate(ctx, "long")
	require.NoError(t, err)
	assert.True(t, ok)

	n, err := cache.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, repo.Len())
	require.NoError(t, cache.Health(ctx))
}

func TestResultCache_BackendFailuresAreMisses(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockCacheRepository(ctrl)
	ctx := context.Background()
	boom := errors.New("redis down")

	repo.EXPECT().Get(gomock.Any(), "fp").Return(nil, boom)
	repo.EXPECT().Set(gomock.Any(), "fp", gomock.Any(), 5*time.Second).Return(boom)
	repo.EXPECT().Delete(gomock.Any(), "fp").Return(false, boom)
	repo.EXPECT().Clear(gomock.Any()).Return(0, boom)

	cache, err := NewResultCache(ResultCacheOptions{Repo: repo, DefaultTTL: 5 * time.Second})
	require.NoError(t, err)
	assert.False(t, cache.NeedsSweep())

	_, hit := cache.Get(ctx, "fp")
	assert.False(t, hit)

	cache.Put(ctx, "fp", json.RawMessage(`{}`), 0)

	_, err = cache.Invalidate(ctx, "fp")
	require.ErrorIs(t, err, boom)
	_, err = cache.Clear(ctx)
	require.ErrorIs(t, err, boom)

	n, err := cache.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
