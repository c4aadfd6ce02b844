package ratelimit

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

// shardCount 决定内存存储的分片数量。分片按 Key 的 FNV 哈希划分，
// 使不同 Key 的计数操作几乎不会在同一把锁上竞争；
// 同一 Key 的检查并递增则由窗口自身的互斥锁线性化。
const shardCount = 64

// rateWindow 是单个 Key 的窗口状态。start 对齐到整点；
// 当前时间跨入新窗口时整体替换（count 归零、start 前移），
// 旧窗口的计数绝不跨边界参与判定。
type rateWindow struct {
	mu    sync.Mutex
	start time.Time
	count int64
}

type shard struct {
	mu      sync.RWMutex
	entries map[string]*rateWindow
}

// MemoryStore 是 Store 的进程内实现：按 Key 分片的窗口表。
// 过期窗口由 Cleanup 惰性回收；未被回收的过期窗口在下次 Incr 时
// 被就地替换，不影响正确性。
type MemoryStore struct {
	shards       [shardCount]*shard
	staleAfter   time.Duration
	cleanupEvery time.Duration
}

// MemoryStoreOption 定制 MemoryStore 的回收行为。
type MemoryStoreOption func(*MemoryStore)

// WithStaleAfter 设置窗口起点距今多久后条目可被回收。
func WithStaleAfter(d time.Duration) MemoryStoreOption {
	return func(s *MemoryStore) { s.staleAfter = d }
}

// WithCleanupEvery 设置后台回收的周期；非正值禁用后台回收。
func WithCleanupEvery(d time.Duration) MemoryStoreOption {
	return func(s *MemoryStore) { s.cleanupEvery = d }
}

// NewMemoryStore 创建内存计数存储。
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		// 窗口最长存活 1 小时，再保留 1 小时余量后即可回收。
		staleAfter:   2 * time.Hour,
		cleanupEvery: 10 * time.Minute,
	}
	for i := range s.shards {
		s.shards[i] = &shard{entries: make(map[string]*rateWindow)}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return s.shards[h.Sum32()%shardCount]
}

// Incr 实现 Store。对同一 Key 的调用由窗口互斥锁线性化；
// 分片锁只保护条目的查找和创建，持有时间极短。
func (s *MemoryStore) Incr(_ context.Context, key string, windowStart time.Time, limit int64) (int64, bool, error) {
	sh := s.shardFor(key)

	sh.mu.RLock()
	w, ok := sh.entries[key]
	sh.mu.RUnlock()

	if !ok {
		sh.mu.Lock()
		// 双重检查：并发的首次调用可能已经创建了条目。
		if w, ok = sh.entries[key]; !ok {
			w = &rateWindow{start: windowStart}
			sh.entries[key] = w
		}
		sh.mu.Unlock()
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.start.Before(windowStart) {
		// 跨入新窗口，就地替换。
		w.start = windowStart
		w.count = 0
	}
	if w.count < limit {
		w.count++
		return w.count, true, nil
	}
	return w.count, false, nil
}

// Cleanup 移除窗口起点早于 now-staleAfter 的条目。
func (s *MemoryStore) Cleanup(now time.Time) {
	cutoff := now.UTC().Add(-s.staleAfter)
	for _, sh := range s.shards {
		sh.mu.Lock()
		for key, w := range sh.entries {
			w.mu.Lock()
			stale := w.start.Before(cutoff)
			w.mu.Unlock()
			if stale {
				delete(sh.entries, key)
			}
		}
		sh.mu.Unlock()
	}
}

// StartJanitor 启动一个周期性回收过期窗口的 goroutine，
// 通过取消传入的上下文停止。
func (s *MemoryStore) StartJanitor(ctx context.Context) {
	if s.cleanupEvery <= 0 {
		return
	}
	ticker := time.NewTicker(s.cleanupEvery)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				s.Cleanup(now)
			}
		}
	}()
}
