package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	commonconfig "github.com/Xushengqwer/go-common/config"
	"github.com/Xushengqwer/go-common/core"
	"github.com/Xushengqwer/news_gateway/config"
	"github.com/Xushengqwer/news_gateway/constants"
	"github.com/Xushengqwer/news_gateway/internal/gate"
	"github.com/Xushengqwer/news_gateway/internal/models"
	"github.com/Xushengqwer/news_gateway/internal/ratelimit"
	"github.com/Xushengqwer/news_gateway/internal/repositories"
	"github.com/Xushengqwer/news_gateway/internal/service"
	"github.com/Xushengqwer/news_gateway/internal/tier"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T) *core.ZapLogger {
	t.Helper()
	logger, err := core.NewZapLogger(commonconfig.ZapConfig{})
	require.NoError(t, err)
	return logger
}

// stubRepository 是 NewsRepository 的最小桩实现，处理层测试只关心
// 准入和错误翻译，仓库行为固定即可。
type stubRepository struct {
	article *models.NewsArticleDocument
}

func (s *stubRepository) IndexArticle(_ context.Context, _ models.NewsArticleDocument) error {
	return nil
}

func (s *stubRepository) DeleteArticle(_ context.Context, _ string) error { return nil }

func (s *stubRepository) SearchArticles(_ context.Context, req models.NewsQuery) (*models.SearchResult, error) {
	return &models.SearchResult{Hits: []models.NewsArticleDocument{}, Page: req.Page, Size: req.Size}, nil
}

func (s *stubRepository) GetArticleByID(_ context.Context, _ string) (*models.NewsArticleDocument, error) {
	if s.article == nil {
		return nil, repositories.ErrArticleNotFound
	}
	return s.article, nil
}

func (s *stubRepository) AggregateSources(_ context.Context) ([]models.SourceInfo, error) {
	return []models.SourceInfo{}, nil
}

func (s *stubRepository) AggregateStats(_ context.Context) (*models.StatsData, error) {
	return &models.StatsData{}, nil
}

func (s *stubRepository) TrendingTerms(_ context.Context, _ time.Duration, _ int) ([]models.TrendingItem, error) {
	return []models.TrendingItem{}, nil
}

func newTestRouter(t *testing.T, repo repositories.NewsRepository, rlCfg config.RateLimitConfig) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := newTestLogger(t)
	registry := tier.NewRegistry(rlCfg)
	newsSvc := service.NewNewsService(repo, registry, gate.NewGate(registry), logger)
	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryStore(), logger)
	handler := NewNewsHandler(newsSvc, registry, limiter, logger)

	router := gin.New()
	handler.RegisterRoutes(router.Group("/api/v1"))
	return router
}

func doRequest(router *gin.Engine, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestSearchNews_SetsRateLimitAndTierHeaders(t *testing.T) {
	router := newTestRouter(t, &stubRepository{}, config.RateLimitConfig{})

	rec := doRequest(router, "/api/v1/news?q=economy", map[string]string{
		constants.HeaderSubscriptionTier: "PRO",
		constants.HeaderAPIUser:          "alice",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pro", rec.Header().Get("X-Subscription-Tier"))
	assert.Equal(t, "100", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "99", rec.Header().Get("X-RateLimit-Remaining"))

	// Reset 头是下一个整点的 Unix 时间戳。
	reset, err := strconv.ParseInt(rec.Header().Get("X-RateLimit-Reset"), 10, 64)
	require.NoError(t, err)
	assert.Equal(t, time.Now().UTC().Truncate(time.Hour).Add(time.Hour).Unix(), reset)
}

func TestSearchNews_UnknownTierFallsBackToBasic(t *testing.T) {
	router := newTestRouter(t, &stubRepository{}, config.RateLimitConfig{})

	rec := doRequest(router, "/api/v1/news", map[string]string{
		constants.HeaderSubscriptionTier: "enterprise",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "basic", rec.Header().Get("X-Subscription-Tier"))
	assert.Equal(t, "5", rec.Header().Get("X-RateLimit-Limit"))
}

func TestSearchNews_QuotaExhaustionReturns429(t *testing.T) {
	router := newTestRouter(t, &stubRepository{}, config.RateLimitConfig{BasicHourly: 2})
	headers := map[string]string{constants.HeaderAPIUser: "bob"}

	for i := 0; i < 2; i++ {
		rec := doRequest(router, "/api/v1/news", headers)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := doRequest(router, "/api/v1/news", headers)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	// Retry-After 给出到窗口重置为止的秒数，至少为 1。
	retryAfter, err := strconv.ParseInt(rec.Header().Get("Retry-After"), 10, 64)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, retryAfter, int64(1))
	assert.LessOrEqual(t, retryAfter, int64(3600))

	var body APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, ErrCodeClientQuotaLimit, body.Code)
	assert.Equal(t, KindQuotaExceeded, body.Kind)
}

func TestSearchNews_InvalidDateDoesNotConsumeQuota(t *testing.T) {
	router := newTestRouter(t, &stubRepository{}, config.RateLimitConfig{BasicHourly: 5})
	headers := map[string]string{constants.HeaderAPIUser: "carol"}

	// 无效的日期参数在准入之前被拒绝。
	rec := doRequest(router, "/api/v1/news?date_from=not-a-date", headers)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, rec.Header().Get("X-RateLimit-Remaining"))

	var body APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, KindInvalidFilter, body.Kind)

	// 之后的合法请求仍拥有完整配额。
	rec = doRequest(router, "/api/v1/news", headers)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "4", rec.Header().Get("X-RateLimit-Remaining"))
}

func TestSearchNews_InvalidSortRejected(t *testing.T) {
	router := newTestRouter(t, &stubRepository{}, config.RateLimitConfig{})

	rec := doRequest(router, "/api/v1/news?sort=alphabetical", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetArticle_NotFoundReturns404(t *testing.T) {
	router := newTestRouter(t, &stubRepository{}, config.RateLimitConfig{})

	rec := doRequest(router, "/api/v1/news/missing-id", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	var body APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, ErrCodeClientNotFound, body.Code)
	assert.Equal(t, KindNotFound, body.Kind)
}

func TestGetArticle_Found(t *testing.T) {
	repo := &stubRepository{article: &models.NewsArticleDocument{ID: "a1", Title: "标题"}}
	router := newTestRouter(t, repo, config.RateLimitConfig{})

	rec := doRequest(router, "/api/v1/news/a1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, CodeSuccess, body.Code)
}

func TestStaticRoutesNotSwallowedByIDParam(t *testing.T) {
	router := newTestRouter(t, &stubRepository{}, config.RateLimitConfig{})

	// trending/sources/stats 是具体路径，不得被 :id 路由捕获成文章查询。
	for _, path := range []string{"/api/v1/news/trending", "/api/v1/news/sources", "/api/v1/news/stats"} {
		rec := doRequest(router, path, nil)
		assert.Equal(t, http.StatusOK, rec.Code, "path %s", path)
	}
}

func TestHealthCheck_NotQuotaGated(t *testing.T) {
	router := newTestRouter(t, &stubRepository{}, config.RateLimitConfig{BasicHourly: 1})
	headers := map[string]string{constants.HeaderAPIUser: "probe"}

	// 用尽配额后健康检查仍然可用，监控探针不受限流影响。
	rec := doRequest(router, "/api/v1/news", headers)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = doRequest(router, "/api/v1/news", headers)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	for i := 0; i < 3; i++ {
		rec = doRequest(router, "/api/v1/news/_health", headers)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
	}
}
