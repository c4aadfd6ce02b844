package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	commonconfig "github.com/Xushengqwer/go-common/config"
	"github.com/Xushengqwer/go-common/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T) *core.ZapLogger {
	t.Helper()
	logger, err := core.NewZapLogger(commonconfig.ZapConfig{})
	require.NoError(t, err)
	return logger
}

// failingStore 模拟计数后端故障，用于验证降级放行。
type failingStore struct{}

func (f *failingStore) Incr(_ context.Context, _ string, _ time.Time, _ int64) (int64, bool, error) {
	return 0, false, errors.New("计数后端连接中断")
}

func TestWindowStart(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 59, 59, 999999999, time.UTC)
	assert.Equal(t, time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC), WindowStart(now))

	// 非 UTC 时间先归一化再对齐。
	loc := time.FixedZone("UTC+8", 8*3600)
	local := time.Date(2025, 6, 1, 18, 30, 0, 0, loc)
	assert.Equal(t, time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC), WindowStart(local))
}

func TestTryAcquire_QuotaExhaustion(t *testing.T) {
	limiter := NewLimiter(NewMemoryStore(), newTestLogger(t))
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 10, 15, 0, 0, time.UTC)

	const quota = 3
	for i := int64(1); i <= quota; i++ {
		decision := limiter.TryAcquire(ctx, "user:basic", quota, now)
		require.True(t, decision.Allowed)
		assert.Equal(t, int64(quota), decision.Limit)
		assert.Equal(t, quota-i, decision.Remaining)
	}

	// 配额用尽后拒绝，剩余额度保持为 0 而不是变成负数。
	decision := limiter.TryAcquire(ctx, "user:basic", quota, now)
	assert.False(t, decision.Allowed)
	assert.Equal(t, int64(0), decision.Remaining)
}

func TestTryAcquire_ResetAtIsNextTopOfHour(t *testing.T) {
	limiter := NewLimiter(NewMemoryStore(), newTestLogger(t))
	now := time.Date(2025, 6, 1, 10, 42, 17, 0, time.UTC)

	decision := limiter.TryAcquire(context.Background(), "user:basic", 5, now)
	assert.Equal(t, time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC), decision.ResetAt)
}

func TestTryAcquire_WindowBoundaryResetsQuota(t *testing.T) {
	limiter := NewLimiter(NewMemoryStore(), newTestLogger(t))
	ctx := context.Background()

	before := time.Date(2025, 6, 1, 10, 59, 59, 0, time.UTC)
	decision := limiter.TryAcquire(ctx, "user:basic", 1, before)
	require.True(t, decision.Allowed)
	decision = limiter.TryAcquire(ctx, "user:basic", 1, before)
	require.False(t, decision.Allowed, "10 点窗口的配额应已用尽")

	// 跨过整点边界后同一 Key 重新获得完整配额。
	after := time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC)
	decision = limiter.TryAcquire(ctx, "user:basic", 1, after)
	assert.True(t, decision.Allowed)
	assert.Equal(t, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), decision.ResetAt)
}

func TestTryAcquire_FailsOpenOnStoreError(t *testing.T) {
	limiter := NewLimiter(&failingStore{}, newTestLogger(t))
	now := time.Date(2025, 6, 1, 10, 15, 0, 0, time.UTC)

	// 存储故障时放行请求，剩余额度按未知报告为 0。
	decision := limiter.TryAcquire(context.Background(), "user:basic", 5, now)
	assert.True(t, decision.Allowed)
	assert.Equal(t, int64(5), decision.Limit)
	assert.Equal(t, int64(0), decision.Remaining)
}

func TestTryAcquire_KeysAreIndependent(t *testing.T) {
	limiter := NewLimiter(NewMemoryStore(), newTestLogger(t))
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 10, 15, 0, 0, time.UTC)

	decision := limiter.TryAcquire(ctx, "alice:basic", 1, now)
	require.True(t, decision.Allowed)
	decision = limiter.TryAcquire(ctx, "alice:basic", 1, now)
	require.False(t, decision.Allowed)

	// 同一用户升级等级后落到新的计数键，立即享受新配额。
	decision = limiter.TryAcquire(ctx, "alice:pro", 100, now)
	assert.True(t, decision.Allowed)
	assert.Equal(t, int64(99), decision.Remaining)
}

func TestTryAcquire_ConcurrentAllowsExactlyQuota(t *testing.T) {
	limiter := NewLimiter(NewMemoryStore(), newTestLogger(t))
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 10, 15, 0, 0, time.UTC)

	const quota = 50
	const attempts = 200

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowedCount := 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if limiter.TryAcquire(ctx, "hot:ultra", quota, now).Allowed {
				mu.Lock()
				allowedCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, quota, allowedCount)
}
