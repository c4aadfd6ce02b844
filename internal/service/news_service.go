package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Xushengqwer/go-common/core"

	"github.com/Xushengqwer/news_gateway/internal/gate"
	"github.com/Xushengqwer/news_gateway/internal/models"
	"github.com/Xushengqwer/news_gateway/internal/repositories"
	"github.com/Xushengqwer/news_gateway/internal/tier"

	"go.uber.org/zap"
)

// trendingCacheTTL 是趋势快照的缓存有效期。
// 趋势聚合扫描整个窗口内的文档，代价相对高，而快照对短时间内的
// 重复请求返回相同结果是可接受的产品语义。
const trendingCacheTTL = time.Minute

// trendingCacheEntry 缓存一次趋势计算的结果及其生成时刻。
type trendingCacheEntry struct {
	items      []models.TrendingItem
	computedAt time.Time
}

// trendingCacheKey 区分不同参数组合的趋势快照。
type trendingCacheKey struct {
	window time.Duration
	limit  int
}

// NewsService 封装了新闻网关的业务逻辑。
// 它作为 API 处理层和数据仓库层之间的中介，负责协调搜索请求的处理、
// 按订阅等级收紧分页参数并对出站内容应用门控。
type NewsService struct {
	newsRepo repositories.NewsRepository // NewsRepository 接口的实例，用于与 Elasticsearch 交互文章数据。
	registry *tier.Registry              // 等级策略表，用于分页上限收紧。
	gate     *gate.Gate                  // 内容门控，按等级裁剪出站文章。
	logger   *core.ZapLogger             // ZapLogger 实例，用于结构化日志记录。

	trendingMu    sync.Mutex
	trendingCache map[trendingCacheKey]trendingCacheEntry
}

// NewNewsService 创建 NewsService 的一个新实例。
// 关键依赖缺失时快速失败。
func NewNewsService(
	newsRepo repositories.NewsRepository,
	registry *tier.Registry,
	contentGate *gate.Gate,
	logger *core.ZapLogger,
) *NewsService {
	if logger == nil {
		panic("创建 NewsService 失败：Logger 实例不能为 nil")
	}
	if newsRepo == nil {
		logger.Fatal("创建 NewsService 失败：NewsRepository 实例不能为 nil")
	}
	if registry == nil {
		logger.Fatal("创建 NewsService 失败：等级策略表 (registry) 不能为 nil")
	}
	if contentGate == nil {
		logger.Fatal("创建 NewsService 失败：内容门控 (gate) 不能为 nil")
	}

	logger.Info("NewsService 初始化成功")
	return &NewsService{
		newsRepo:      newsRepo,
		registry:      registry,
		gate:          contentGate,
		logger:        logger,
		trendingCache: make(map[trendingCacheKey]trendingCacheEntry),
	}
}

// Search 根据查询条件执行新闻搜索，并按调用方的订阅等级裁剪结果。
// 超出等级上限的 size 被静默收紧到上限（而不是报错），
// 响应中的 Size 字段反映实际生效的值。
func (s *NewsService) Search(ctx context.Context, req models.NewsQuery, t tier.Tier) (*models.SearchResult, error) {
	policy := s.registry.Policy(t)
	if req.Size > policy.MaxPageSize {
		s.logger.Debug("请求的每页数量超过等级上限，已收紧",
			zap.Int("requested_size", req.Size),
			zap.Int("effective_size", policy.MaxPageSize),
			zap.String("tier", t.String()),
		)
		req.Size = policy.MaxPageSize
	}

	s.logger.Info("正在处理新闻搜索请求",
		zap.String("搜索关键词", req.Query),
		zap.Int("请求页码", req.Page),
		zap.Int("每页数量", req.Size),
		zap.String("排序方式", req.Sort),
		zap.String("tier", t.String()),
	)

	searchResult, err := s.newsRepo.SearchArticles(ctx, req)
	if err != nil {
		s.logger.Error("调用 NewsRepository 执行搜索操作时发生错误",
			zap.Error(err),
			zap.String("搜索关键词_OnError", req.Query),
		)
		return nil, fmt.Errorf("执行搜索操作失败: %w", err)
	}

	searchResult.Hits = s.gate.ApplyToArticles(searchResult.Hits, t)

	s.logger.Info("新闻搜索成功完成",
		zap.Int64("总命中数", searchResult.Total),
		zap.Int("返回结果数", len(searchResult.Hits)),
		zap.Int64("查询耗时_ms", searchResult.Took),
	)
	return searchResult, nil
}

// GetArticleByID 按 ID 检索单篇文章并应用内容门控。
// 文章不存在时返回 repositories.ErrArticleNotFound，由处理层翻译为 404。
func (s *NewsService) GetArticleByID(ctx context.Context, articleID string, t tier.Tier) (*models.NewsArticleDocument, error) {
	doc, err := s.newsRepo.GetArticleByID(ctx, articleID)
	if err != nil {
		// 未找到属于正常业务分支，错误日志留给真正的存储故障。
		return nil, err
	}

	gated := s.gate.ApplyToArticle(*doc, t)
	return &gated, nil
}

// ListSources 返回索引中的全部来源及各来源的文档计数。
// 来源元数据不属于文章内容，不做门控。
func (s *NewsService) ListSources(ctx context.Context) ([]models.SourceInfo, error) {
	sources, err := s.newsRepo.AggregateSources(ctx)
	if err != nil {
		s.logger.Error("调用 NewsRepository 获取来源聚合失败", zap.Error(err))
		return nil, fmt.Errorf("获取来源列表失败: %w", err)
	}
	return sources, nil
}

// Stats 返回数据集级统计信息。
func (s *NewsService) Stats(ctx context.Context) (*models.StatsData, error) {
	stats, err := s.newsRepo.AggregateStats(ctx)
	if err != nil {
		s.logger.Error("调用 NewsRepository 获取数据集统计失败", zap.Error(err))
		return nil, fmt.Errorf("获取数据集统计失败: %w", err)
	}
	return stats, nil
}

// Trending 返回窗口内的趋势快照：出现频率最高的命名实体和标签。
// 合并后的条目按计数降序排列，计数相同时按关键词升序保证结果确定；
// 最终截断到 limit 条。结果按参数组合缓存一分钟。
func (s *NewsService) Trending(ctx context.Context, window time.Duration, limit int) ([]models.TrendingItem, error) {
	key := trendingCacheKey{window: window, limit: limit}
	now := time.Now()

	s.trendingMu.Lock()
	if entry, ok := s.trendingCache[key]; ok && now.Sub(entry.computedAt) < trendingCacheTTL {
		s.trendingMu.Unlock()
		s.logger.Debug("趋势快照命中缓存",
			zap.Duration("window", window),
			zap.Int("limit", limit),
		)
		return entry.items, nil
	}
	s.trendingMu.Unlock()

	// 每个维度多取一些桶，合并排序后再截断，避免某一维度被整体挤出。
	items, err := s.newsRepo.TrendingTerms(ctx, window, limit)
	if err != nil {
		s.logger.Error("调用 NewsRepository 获取趋势词聚合失败",
			zap.Duration("window", window),
			zap.Error(err),
		)
		return nil, fmt.Errorf("获取趋势快照失败: %w", err)
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Count != items[j].Count {
			return items[i].Count > items[j].Count
		}
		return items[i].Keyword < items[j].Keyword
	})
	if len(items) > limit {
		items = items[:limit]
	}

	s.trendingMu.Lock()
	s.trendingCache[key] = trendingCacheEntry{items: items, computedAt: now}
	s.trendingMu.Unlock()

	s.logger.Info("趋势快照计算完成",
		zap.Duration("window", window),
		zap.Int("returned_count", len(items)),
	)
	return items, nil
}
