package service

import (
	"context"
	"strings"
	"testing"
	"time"

	commonconfig "github.com/Xushengqwer/go-common/config"
	"github.com/Xushengqwer/go-common/core"
	"github.com/Xushengqwer/news_gateway/config"
	"github.com/Xushengqwer/news_gateway/internal/gate"
	"github.com/Xushengqwer/news_gateway/internal/models"
	"github.com/Xushengqwer/news_gateway/internal/repositories"
	"github.com/Xushengqwer/news_gateway/internal/tier"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T) *core.ZapLogger {
	t.Helper()
	logger, err := core.NewZapLogger(commonconfig.ZapConfig{})
	require.NoError(t, err)
	return logger
}

// fakeNewsRepository 是 NewsRepository 的内存桩实现，
// 记录调用参数并返回预置的结果。
type fakeNewsRepository struct {
	lastSearchQuery    models.NewsQuery
	searchResult       *models.SearchResult
	searchErr          error
	article            *models.NewsArticleDocument
	getErr             error
	trendingItems      []models.TrendingItem
	trendingErr        error
	trendingCallCount  int
	lastTrendingWindow time.Duration
}

func (f *fakeNewsRepository) IndexArticle(_ context.Context, _ models.NewsArticleDocument) error {
	return nil
}

func (f *fakeNewsRepository) DeleteArticle(_ context.Context, _ string) error {
	return nil
}

func (f *fakeNewsRepository) SearchArticles(_ context.Context, req models.NewsQuery) (*models.SearchResult, error) {
	f.lastSearchQuery = req
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if f.searchResult != nil {
		return f.searchResult, nil
	}
	return &models.SearchResult{Hits: []models.NewsArticleDocument{}, Page: req.Page, Size: req.Size}, nil
}

func (f *fakeNewsRepository) GetArticleByID(_ context.Context, _ string) (*models.NewsArticleDocument, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.article, nil
}

func (f *fakeNewsRepository) AggregateSources(_ context.Context) ([]models.SourceInfo, error) {
	return []models.SourceInfo{{Name: "reuters", Count: 10}}, nil
}

func (f *fakeNewsRepository) AggregateStats(_ context.Context) (*models.StatsData, error) {
	return &models.StatsData{TotalArticles: 10}, nil
}

func (f *fakeNewsRepository) TrendingTerms(_ context.Context, window time.Duration, _ int) ([]models.TrendingItem, error) {
	f.trendingCallCount++
	f.lastTrendingWindow = window
	if f.trendingErr != nil {
		return nil, f.trendingErr
	}
	// 返回副本，模拟每次聚合独立产出结果。
	items := make([]models.TrendingItem, len(f.trendingItems))
	copy(items, f.trendingItems)
	return items, nil
}

func newTestService(t *testing.T, repo repositories.NewsRepository) *NewsService {
	t.Helper()
	registry := tier.NewRegistry(config.RateLimitConfig{})
	return NewNewsService(repo, registry, gate.NewGate(registry), newTestLogger(t))
}

func TestSearch_SizeClampedToTierMax(t *testing.T) {
	repo := &fakeNewsRepository{}
	svc := newTestService(t, repo)

	req := models.NewsQuery{Query: "news", Page: 1, Size: 100}
	_, err := svc.Search(context.Background(), req, tier.Basic)
	require.NoError(t, err)

	// BASIC 的上限是 10，超出部分静默收紧后才进入仓库层。
	assert.Equal(t, 10, repo.lastSearchQuery.Size)

	_, err = svc.Search(context.Background(), req, tier.Mega)
	require.NoError(t, err)
	assert.Equal(t, 100, repo.lastSearchQuery.Size)
}

func TestSearch_AppliesContentGateToHits(t *testing.T) {
	repo := &fakeNewsRepository{
		searchResult: &models.SearchResult{
			Hits: []models.NewsArticleDocument{
				{
					ID:      "a1",
					Content: strings.Repeat("x", 500),
					Annotate: &models.ArticleAnnotation{
						Entities: []models.EntityAnnotation{{Word: "Tokyo", EntityGroup: "LOC", Score: 0.9}},
					},
				},
			},
			Total: 1,
		},
	}
	svc := newTestService(t, repo)

	result, err := svc.Search(context.Background(), models.NewsQuery{Page: 1, Size: 10}, tier.Basic)
	require.NoError(t, err)
	require.Len(t, result.Hits, 1)

	assert.True(t, strings.HasSuffix(result.Hits[0].Content, "..."))
	assert.Empty(t, result.Hits[0].Annotate.Entities)
}

func TestGetArticleByID_NotFoundPassesThrough(t *testing.T) {
	repo := &fakeNewsRepository{getErr: repositories.ErrArticleNotFound}
	svc := newTestService(t, repo)

	_, err := svc.GetArticleByID(context.Background(), "missing", tier.Basic)
	// 未找到的哨兵错误必须原样透传，处理层依赖它翻译 404。
	assert.ErrorIs(t, err, repositories.ErrArticleNotFound)
}

func TestGetArticleByID_GatesResult(t *testing.T) {
	repo := &fakeNewsRepository{
		article: &models.NewsArticleDocument{
			ID:      "a1",
			Content: strings.Repeat("x", 500),
		},
	}
	svc := newTestService(t, repo)

	doc, err := svc.GetArticleByID(context.Background(), "a1", tier.Basic)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(doc.Content, "..."))

	// 仓库返回的原始文档不被修改。
	assert.Equal(t, 500, len(repo.article.Content))
}

func TestTrending_RanksAndTruncates(t *testing.T) {
	repo := &fakeNewsRepository{
		trendingItems: []models.TrendingItem{
			{Keyword: "economy", Category: "tag", Count: 3},
			{Keyword: "berlin", Category: "entity", Count: 7},
			{Keyword: "apple", Category: "entity", Count: 3},
			{Keyword: "sports", Category: "tag", Count: 1},
		},
	}
	svc := newTestService(t, repo)

	items, err := svc.Trending(context.Background(), 24*time.Hour, 3)
	require.NoError(t, err)

	// 计数降序，计数相同时按关键词升序，最终截断到 limit。
	require.Len(t, items, 3)
	assert.Equal(t, "berlin", items[0].Keyword)
	assert.Equal(t, "apple", items[1].Keyword)
	assert.Equal(t, "economy", items[2].Keyword)
}

func TestTrending_CachesResult(t *testing.T) {
	repo := &fakeNewsRepository{
		trendingItems: []models.TrendingItem{{Keyword: "economy", Category: "tag", Count: 3}},
	}
	svc := newTestService(t, repo)
	ctx := context.Background()

	first, err := svc.Trending(ctx, 24*time.Hour, 10)
	require.NoError(t, err)
	second, err := svc.Trending(ctx, 24*time.Hour, 10)
	require.NoError(t, err)

	// 相同参数的第二次调用命中缓存，不再触发聚合。
	assert.Equal(t, 1, repo.trendingCallCount)
	assert.Equal(t, first, second)

	// 不同参数组合各自独立缓存。
	_, err = svc.Trending(ctx, 48*time.Hour, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, repo.trendingCallCount)
	assert.Equal(t, 48*time.Hour, repo.lastTrendingWindow)
}
