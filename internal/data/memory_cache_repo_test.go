package data

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheRepo_SetGetDelete(t *testing.T) {
	clock := NewFixedTimeProvider(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	repo := NewMemoryCacheRepo(MemoryCacheRepoOptions{Shards: 4, Clock: clock})
	ctx := context.Background()

	t.Run("set and get", func(t *testing.T) {
		require.NoError(t, repo.Set(ctx, "fp1", []byte("v1"), time.Minute))
		got, err := repo.Get(ctx, "fp1")
		require.NoError(t, err)
		assert.Equal(t, []byte("v1"), got)
	})

	t.Run("returned value is a copy", func(t *testing.T) {
		got, err := repo.Get(ctx, "fp1")
		require.NoError(t, err)
		got[0] = 'x'
		again, err := repo.Get(ctx, "fp1")
		require.NoError(t, err)
		assert.Equal(t, []byte("v1"), again)
	})

	t.Run("last writer wins", func(t *testing.T) {
		require.NoError(t, repo.Set(ctx, "fp1", []byte("v2"), time.Minute))
		got, err := repo.Get(ctx, "fp1")
		require.NoError(t, err)
		assert.Equal(t, []byte("v2"), got)
	})

	t.Run("missing key", func(t *testing.T) {
		got, err := repo.Get(ctx, "missing")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("delete", func(t *testing.T) {
		deleted, err := repo.Delete(ctx, "fp1")
		require.NoError(t, err)
		assert.True(t, deleted)
		deleted, err = repo.Delete(ctx, "fp1")
		require.NoError(t, err)
		assert.False(t, deleted)
	})

	t.Run("empty key", func(t *testing.T) {
		require.Error(t, repo.Set(ctx, "", nil, 0))
		_, err := repo.Get(ctx, "")
		require.Error(t, err)
		_, err = repo.Delete(ctx, "")
		require.Error(t, err)
	})
}

func TestMemoryCacheRepo_ExpiryAtRead(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewFixedTimeProvider(start)
	repo := NewMemoryCacheRepo(MemoryCacheRepoOptions{Clock: clock})
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, "fp", []byte("r"), time.Second))

	clock.SetTime(start.Add(500 * time.Millisecond))
	got, err := repo.Get(ctx, "fp")
	require.NoError(t, err)
	assert.Equal(t, []byte("r"), got, "entry should be live before its TTL")

	clock.SetTime(start.Add(time.Second))
	got, err = repo.Get(ctx, "fp")
	require.NoError(t, err)
	assert.Nil(t, got, "entry must not be returned at its expiry instant")

	clock.SetTime(start.Add(1500 * time.Millisecond))
	got, err = repo.Get(ctx, "fp")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryCacheRepo_Sweep(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewFixedTimeProvider(start)
	repo := NewMemoryCacheRepo(MemoryCacheRepoOptions{Shards: 8, Clock: clock})
	ctx := context.Background()

	for i := range 10 {
		require.NoError(t, repo.Set(ctx, fmt.Sprintf("short-%d", i), []byte("x"), time.Second))
	}
	require.NoError(t, repo.Set(ctx, "long", []byte("x"), time.Hour))
	require.NoError(t, repo.Set(ctx, "forever", []byte("x"), 0))

	clock.AddTime(2 * time.Second)
	removed, err := repo.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, removed)
	assert.Equal(t, 2, repo.Len())

	cleared, err := repo.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, cleared)
	assert.Zero(t, repo.Len())
}

func TestMemoryCacheRepo_SweepHonoursContext(t *testing.T) {
	repo := NewMemoryCacheRepo(MemoryCacheRepoOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := repo.Sweep(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestMemoryCacheRepo_Concurrent(t *testing.T) {
	repo := NewMemoryCacheRepo(MemoryCacheRepoOptions{})
	ctx := context.Background()

	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := range 200 {
				key := fmt.Sprintf("k%d", i%20)
				if w%2 == 0 {
					_ = repo.Set(ctx, key, []byte(key), time.Minute)
					continue
				}
				if v, err := repo.Get(ctx, key); err == nil && v != nil {
					assert.Equal(t, key, string(v))
				}
			}
		}(w)
	}
	wg.Wait()
	assert.Equal(t, 20, repo.Len())
	assert.NoError(t, repo.Health(ctx))
}
