package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisKeyPrefix 隔离限流计数键与其他业务键。
const redisKeyPrefix = "news_gateway:ratelimit"

// redisExpirySlack 是窗口结束后计数键继续存活的余量，
// 保证跨节点时钟轻微偏差时键不会在窗口内被提前淘汰。
const redisExpirySlack = 5 * time.Minute

// RedisStore 是 Store 的 Redis 实现，供多实例部署共享计数。
// 键按 (Key, 窗口起点) 组合命名，窗口切换即自然落到新键上，
// 旧键依赖过期时间回收，无需显式清理。
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore 创建 Redis 计数存储。
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func windowKey(key string, windowStart time.Time) string {
	return fmt.Sprintf("%s:{%s}:%d", redisKeyPrefix, key, windowStart.Unix())
}

// Incr 实现 Store。Redis 的 INCR 本身是原子的，因此这里采用
// "先递增后判定" 的策略：计数越过配额的请求被拒绝，但键值会继续增长；
// Limiter 需要的是准入判定而不是精确计数，所以返回值封顶到 limit，
// 保证 Remaining 不会出现负数语义。
func (s *RedisStore) Incr(ctx context.Context, key string, windowStart time.Time, limit int64) (int64, bool, error) {
	rk := windowKey(key, windowStart)
	expireAt := windowStart.Add(time.Hour).Add(redisExpirySlack)

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, rk)
	pipe.ExpireAt(ctx, rk, expireAt)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, false, fmt.Errorf("限流计数键 '%s' 递增失败: %w", rk, err)
	}

	count := incr.Val()
	allowed := count <= limit
	if count > limit {
		count = limit
	}
	return count, allowed, nil
}
