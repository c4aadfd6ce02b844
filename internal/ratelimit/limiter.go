// Package ratelimit 实现固定窗口限流：每个 Key 在当前整点小时窗口
// [HH:00, HH+1:00) 内的请求计数不得超过其订阅等级的每小时配额。
//
// 固定窗口（而不是滑动窗口或令牌桶）是明确的产品选择：
// "配额在每个整点重置" 的语义简单可预期，跨窗口边界最多 2 倍配额的
// 突发被视为可接受。计数状态通过 Store 接口注入，进程内分片表和
// Redis 后端都满足该接口，切换后端无需改动任何调用点。
package ratelimit

import (
	"context"
	"time"

	"github.com/Xushengqwer/go-common/core"
	"go.uber.org/zap"
)

// Store 是固定窗口计数状态的存储接口。
// Incr 必须对 (key, windowStart) 执行原子的 "检查并递增"：
// 计数小于 limit 时递增并放行，否则不递增并拒绝。
// 同一 Key 的并发调用必须线性化；不同 Key 之间不得相互阻塞。
type Store interface {
	Incr(ctx context.Context, key string, windowStart time.Time, limit int64) (count int64, allowed bool, err error)
}

// Decision 是一次准入检查的结果。
type Decision struct {
	Allowed   bool      // 本次请求是否被放行。
	Limit     int64     // 该等级的每小时配额。
	Remaining int64     // 当前窗口内剩余的配额单位，下限为 0。
	ResetAt   time.Time // 当前窗口结束、计数重置的时刻（下一个整点，UTC）。
}

// Limiter 在 Store 之上实现窗口对齐和决策组装。
type Limiter struct {
	store  Store
	logger *core.ZapLogger
}

// NewLimiter 创建 Limiter 实例。
func NewLimiter(store Store, logger *core.ZapLogger) *Limiter {
	if logger == nil {
		panic("创建 Limiter 失败：Logger 实例不能为 nil")
	}
	if store == nil {
		logger.Fatal("创建 Limiter 失败：计数存储 (store) 不能为 nil")
	}
	return &Limiter{store: store, logger: logger}
}

// WindowStart 返回 now 所在小时窗口的起点（UTC 整点）。
func WindowStart(now time.Time) time.Time {
	return now.UTC().Truncate(time.Hour)
}

// TryAcquire 对给定 Key 执行一次准入检查并（在放行时）消耗一个配额单位。
//
// 此操作没有内部失败模式：存储后端出错时向放行方向降级
// （网关不应因计数后端抖动而整体拒绝服务），只记录告警日志。
// 调用方将 Allowed == false 翻译为配额超限响应。
// 注意：配额在下游取数之前扣除，下游失败不退还（计费的是被准入的请求本身）。
func (l *Limiter) TryAcquire(ctx context.Context, key string, quota int64, now time.Time) Decision {
	windowStart := WindowStart(now)
	resetAt := windowStart.Add(time.Hour)

	count, allowed, err := l.store.Incr(ctx, key, windowStart, quota)
	if err != nil {
		// 降级放行：剩余额度按未知处理，报告为 0 以提示调用方谨慎。
		l.logger.Warn("限流计数存储操作失败，本次请求降级放行",
			zap.String("key", key),
			zap.Time("window_start", windowStart),
			zap.Error(err),
		)
		return Decision{Allowed: true, Limit: quota, Remaining: 0, ResetAt: resetAt}
	}

	remaining := quota - count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: allowed, Limit: quota, Remaining: remaining, ResetAt: resetAt}
}
