package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_IncrRespectsLimit(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	windowStart := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	// 前 limit 次递增全部放行，计数单调上升。
	for i := int64(1); i <= 5; i++ {
		count, allowed, err := store.Incr(ctx, "user:basic", windowStart, 5)
		require.NoError(t, err)
		assert.True(t, allowed)
		assert.Equal(t, i, count)
	}

	// 超出配额后不再放行，计数停留在 limit。
	count, allowed, err := store.Incr(ctx, "user:basic", windowStart, 5)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, int64(5), count)
}

func TestMemoryStore_WindowRolloverResetsCount(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	window1 := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	window2 := window1.Add(time.Hour)

	for i := 0; i < 3; i++ {
		_, _, err := store.Incr(ctx, "user:basic", window1, 3)
		require.NoError(t, err)
	}
	_, allowed, err := store.Incr(ctx, "user:basic", window1, 3)
	require.NoError(t, err)
	require.False(t, allowed, "旧窗口的配额应已用尽")

	// 进入新窗口后计数从零重新开始。
	count, allowed, err := store.Incr(ctx, "user:basic", window2, 3)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, int64(1), count)
}

func TestMemoryStore_KeysAreIndependent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	windowStart := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	_, allowed, err := store.Incr(ctx, "alice:basic", windowStart, 1)
	require.NoError(t, err)
	require.True(t, allowed)
	_, allowed, err = store.Incr(ctx, "alice:basic", windowStart, 1)
	require.NoError(t, err)
	require.False(t, allowed)

	// alice 用尽配额不影响 bob。
	_, allowed, err = store.Incr(ctx, "bob:basic", windowStart, 1)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestMemoryStore_ConcurrentIncrNeverExceedsLimit(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	windowStart := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	const limit = 100
	const attempts = 500

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowedCount := 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, allowed, _ := store.Incr(ctx, "hot:pro", windowStart, limit)
			if allowed {
				mu.Lock()
				allowedCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// 恰好放行 limit 次，检查并递增必须是原子的。
	assert.Equal(t, limit, allowedCount)
}

func TestMemoryStore_CleanupRemovesStaleEntries(t *testing.T) {
	store := NewMemoryStore(WithStaleAfter(2 * time.Hour))
	ctx := context.Background()

	staleWindow := time.Date(2025, 6, 1, 6, 0, 0, 0, time.UTC)
	freshWindow := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	_, _, err := store.Incr(ctx, "stale-key", staleWindow, 5)
	require.NoError(t, err)
	_, _, err = store.Incr(ctx, "fresh-key", freshWindow, 5)
	require.NoError(t, err)

	store.Cleanup(time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC))

	// 过期条目被移除后，同 Key 的下一次调用重新从零计数。
	count, allowed, err := store.Incr(ctx, "stale-key", freshWindow, 5)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, int64(1), count)

	// 未过期的条目保留原计数。
	count, _, err = store.Incr(ctx, "fresh-key", freshWindow, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}
