package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/Xushengqwer/go-common/core"
	"github.com/Xushengqwer/news_gateway/constants"
	"github.com/Xushengqwer/news_gateway/internal/models"
	"github.com/Xushengqwer/news_gateway/internal/ratelimit"
	"github.com/Xushengqwer/news_gateway/internal/repositories"
	"github.com/Xushengqwer/news_gateway/internal/service"
	"github.com/Xushengqwer/news_gateway/internal/tier"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// 趋势端点查询参数的取值边界。
const (
	defaultTrendingWindowHours = 24
	maxTrendingWindowHours     = 168 // 最长回看一周。
	defaultTrendingLimit       = 10
	maxTrendingLimit           = 50
)

// NewsHandler 封装新闻网关的 API 请求处理逻辑：
// 订阅等级解析、配额准入和到服务层的分发都在这里完成。
type NewsHandler struct {
	newsService *service.NewsService
	registry    *tier.Registry
	limiter     *ratelimit.Limiter
	logger      *core.ZapLogger
}

// NewNewsHandler 创建 NewsHandler 实例。
func NewNewsHandler(
	newsSvc *service.NewsService,
	registry *tier.Registry,
	limiter *ratelimit.Limiter,
	logger *core.ZapLogger,
) *NewsHandler {
	if logger == nil {
		panic("NewNewsHandler: logger cannot be nil")
	}
	if newsSvc == nil {
		logger.Fatal("NewNewsHandler: NewsService 不能为 nil")
	}
	if registry == nil {
		logger.Fatal("NewNewsHandler: 等级策略表 (registry) 不能为 nil")
	}
	if limiter == nil {
		logger.Fatal("NewNewsHandler: 限流器 (limiter) 不能为 nil")
	}

	return &NewsHandler{
		newsService: newsSvc,
		registry:    registry,
		limiter:     limiter,
		logger:      logger,
	}
}

// resolveTier 从订阅请求头解析调用方的等级，并回写到响应头，
// 方便调用方确认自己被识别成了哪个等级。
func (h *NewsHandler) resolveTier(c *gin.Context) tier.Tier {
	t := h.registry.Resolve(c.GetHeader(constants.HeaderSubscriptionTier))
	c.Header("X-Subscription-Tier", t.String())
	return t
}

// admit 对当前请求执行配额准入检查。
//
// 配额键由调用方标识和等级共同组成：同一调用方升级订阅后落到
// 新的计数键上，立即享受新配额，不受旧等级窗口计数的影响。
// 无论放行还是拒绝，都设置 X-RateLimit-* 响应头；拒绝时额外写出
// 429 响应和 Retry-After 头，并返回 false。
//
// 注意调用顺序：参数校验必须发生在 admit 之前，
// 无效请求不应消耗调用方的配额单位。
func (h *NewsHandler) admit(c *gin.Context, t tier.Tier) bool {
	policy := h.registry.Policy(t)
	user := c.GetHeader(constants.HeaderAPIUser)
	if user == "" {
		user = constants.AnonymousUser
	}
	key := user + ":" + t.String()

	now := time.Now()
	decision := h.limiter.TryAcquire(c.Request.Context(), key, policy.HourlyQuota, now)

	c.Header("X-RateLimit-Limit", strconv.FormatInt(decision.Limit, 10))
	c.Header("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))

	if !decision.Allowed {
		retryAfter := int64(decision.ResetAt.Sub(now).Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}
		c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))

		h.logger.Warn("请求因配额超限被拒绝",
			zap.String("rate_key", key),
			zap.Int64("limit", decision.Limit),
			zap.Time("reset_at", decision.ResetAt),
		)
		RespondError(c, http.StatusTooManyRequests, ErrCodeClientQuotaLimit, KindQuotaExceeded,
			"当前小时的请求配额已用尽，请在窗口重置后重试")
		return false
	}
	return true
}

// respondServiceError 将服务层错误翻译为统一的错误响应。
// 已知的业务错误（文章不存在）映射为 404，其余一律视为上游故障。
func (h *NewsHandler) respondServiceError(c *gin.Context, err error) {
	if errors.Is(err, repositories.ErrArticleNotFound) {
		RespondError(c, http.StatusNotFound, ErrCodeClientNotFound, KindNotFound, "文章不存在")
		return
	}
	RespondError(c, http.StatusServiceUnavailable, ErrCodeServerUpstream, KindUpstreamUnavailable,
		"搜索后端暂时不可用，请稍后重试")
}

// SearchNews 处理新闻搜索请求
// @Summary      搜索新闻
// @Description  根据关键词、来源、标签、情感/情绪标注、作者和日期范围搜索新闻文章。结果按订阅等级做内容门控。
// @Tags         News
// @Produce      json
// @Param        q          query     string  false  "全文搜索关键词（标题和正文）"
// @Param        source     query     string  false  "按来源精确过滤"
// @Param        tag        query     string  false  "按标签精确过滤"
// @Param        sentiment  query     string  false  "按情感标注过滤 (例如 positive)"
// @Param        emotion    query     string  false  "按情绪标注过滤 (例如 joy)"
// @Param        author     query     string  false  "按作者精确过滤"
// @Param        date_from  query     string  false  "发布时间下界 (YYYY-MM-DD 或 RFC3339)"
// @Param        date_to    query     string  false  "发布时间上界 (YYYY-MM-DD 或 RFC3339)"
// @Param        sort       query     string  false  "排序方式" default(newest) Enums(newest, oldest, relevance)
// @Param        page       query     int     false  "页码 (从1开始)" default(1) minimum(1)
// @Param        size       query     int     false  "每页数量（不超过订阅等级上限）" default(10) minimum(1) maximum(100)
// @Success      200        {object}  models.SwaggerSearchResultResponse "搜索成功，返回匹配的文章列表及分页信息。"
// @Failure      400        {object}  models.SwaggerErrorResponse "请求参数无效，例如日期格式错误。"
// @Failure      429        {object}  models.SwaggerErrorResponse "当前小时的请求配额已用尽。"
// @Failure      503        {object}  models.SwaggerErrorResponse "搜索后端暂时不可用。"
// @Router       /api/v1/news [get]
func (h *NewsHandler) SearchNews(c *gin.Context) {
	t := h.resolveTier(c)

	var req models.NewsQuery
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Warn("请求参数绑定或验证失败", zap.Error(err))
		RespondError(c, http.StatusBadRequest, ErrCodeClientInvalidInput, KindInvalidFilter, "请求参数无效")
		return
	}
	if err := req.Validate(); err != nil {
		h.logger.Warn("过滤参数语义校验失败", zap.Error(err))
		RespondError(c, http.StatusBadRequest, ErrCodeClientInvalidInput, KindInvalidFilter, err.Error())
		return
	}

	if !h.admit(c, t) {
		return
	}

	results, err := h.newsService.Search(c.Request.Context(), req, t)
	if err != nil {
		h.logger.Error("服务层搜索失败", zap.Error(err))
		h.respondServiceError(c, err)
		return
	}

	RespondSuccess(c, results, "搜索成功")
}

// GetArticle 处理按 ID 获取单篇文章的请求
// @Summary      获取单篇文章
// @Description  按 ID 返回单篇文章。正文和标注按订阅等级做内容门控。
// @Tags         News
// @Produce      json
// @Param        id   path      string  true  "文章 ID"
// @Success      200  {object}  models.SwaggerArticleResponse "成功，返回文章详情。"
// @Failure      404  {object}  models.SwaggerErrorResponse "文章不存在。"
// @Failure      429  {object}  models.SwaggerErrorResponse "当前小时的请求配额已用尽。"
// @Failure      503  {object}  models.SwaggerErrorResponse "搜索后端暂时不可用。"
// @Router       /api/v1/news/{id} [get]
func (h *NewsHandler) GetArticle(c *gin.Context) {
	t := h.resolveTier(c)

	articleID := c.Param("id")
	if articleID == "" {
		RespondError(c, http.StatusBadRequest, ErrCodeClientInvalidInput, KindInvalidFilter, "文章 ID 不能为空")
		return
	}

	if !h.admit(c, t) {
		return
	}

	doc, err := h.newsService.GetArticleByID(c.Request.Context(), articleID, t)
	if err != nil {
		if !errors.Is(err, repositories.ErrArticleNotFound) {
			h.logger.Error("服务层获取文章失败", zap.String("article_id", articleID), zap.Error(err))
		}
		h.respondServiceError(c, err)
		return
	}

	RespondSuccess(c, doc, "文章获取成功")
}

// ListSources 处理获取来源列表的请求
// @Summary      获取来源列表
// @Description  返回索引中的全部新闻来源及各来源的文章数量，按数量降序。
// @Tags         News
// @Produce      json
// @Success      200  {object}  models.SwaggerSourcesResponse "成功，返回来源列表。"
// @Failure      429  {object}  models.SwaggerErrorResponse "当前小时的请求配额已用尽。"
// @Failure      503  {object}  models.SwaggerErrorResponse "搜索后端暂时不可用。"
// @Router       /api/v1/news/sources [get]
func (h *NewsHandler) ListSources(c *gin.Context) {
	t := h.resolveTier(c)
	if !h.admit(c, t) {
		return
	}

	sources, err := h.newsService.ListSources(c.Request.Context())
	if err != nil {
		h.logger.Error("服务层获取来源列表失败", zap.Error(err))
		h.respondServiceError(c, err)
		return
	}

	if sources == nil {
		sources = make([]models.SourceInfo, 0)
	}
	RespondSuccess(c, sources, "来源列表获取成功")
}

// GetStats 处理获取数据集统计的请求
// @Summary      获取数据集统计
// @Description  返回索引中的文章总数、来源分布和发布时间覆盖范围。
// @Tags         News
// @Produce      json
// @Success      200  {object}  models.SwaggerStatsResponse "成功，返回数据集统计。"
// @Failure      429  {object}  models.SwaggerErrorResponse "当前小时的请求配额已用尽。"
// @Failure      503  {object}  models.SwaggerErrorResponse "搜索后端暂时不可用。"
// @Router       /api/v1/news/stats [get]
func (h *NewsHandler) GetStats(c *gin.Context) {
	t := h.resolveTier(c)
	if !h.admit(c, t) {
		return
	}

	stats, err := h.newsService.Stats(c.Request.Context())
	if err != nil {
		h.logger.Error("服务层获取数据集统计失败", zap.Error(err))
		h.respondServiceError(c, err)
		return
	}

	RespondSuccess(c, stats, "数据集统计获取成功")
}

// GetTrending 处理获取趋势快照的请求
// @Summary      获取趋势快照
// @Description  返回近期窗口内出现频率最高的命名实体和标签，按出现次数降序。
// @Tags         News
// @Produce      json
// @Param        window  query     int  false  "回看窗口（小时）" default(24) minimum(1) maximum(168)
// @Param        limit   query     int  false  "返回的条目数量" default(10) minimum(1) maximum(50)
// @Success      200     {object}  models.SwaggerTrendingResponse "成功，返回趋势条目列表。"
// @Failure      429     {object}  models.SwaggerErrorResponse "当前小时的请求配额已用尽。"
// @Failure      503     {object}  models.SwaggerErrorResponse "搜索后端暂时不可用。"
// @Router       /api/v1/news/trending [get]
func (h *NewsHandler) GetTrending(c *gin.Context) {
	t := h.resolveTier(c)

	// 非法的窗口/数量参数回落到默认值而不是报错，与热门词接口的宽松语义一致。
	windowHours, err := strconv.Atoi(c.DefaultQuery("window", strconv.Itoa(defaultTrendingWindowHours)))
	if err != nil || windowHours <= 0 {
		windowHours = defaultTrendingWindowHours
	} else if windowHours > maxTrendingWindowHours {
		windowHours = maxTrendingWindowHours
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultTrendingLimit)))
	if err != nil || limit <= 0 {
		limit = defaultTrendingLimit
	} else if limit > maxTrendingLimit {
		limit = maxTrendingLimit
	}

	if !h.admit(c, t) {
		return
	}

	items, err := h.newsService.Trending(c.Request.Context(), time.Duration(windowHours)*time.Hour, limit)
	if err != nil {
		h.logger.Error("服务层获取趋势快照失败", zap.Error(err))
		h.respondServiceError(c, err)
		return
	}

	if items == nil {
		items = make([]models.TrendingItem, 0)
	}
	RespondSuccess(c, items, "趋势快照获取成功")
}

// HealthCheck 健康检查处理函数。不经过配额准入，监控探针不消耗配额。
func (h *NewsHandler) HealthCheck(c *gin.Context) {
	h.logger.Debug("执行存活度健康检查")
	RespondSuccess(c, gin.H{"status": "ok"}, "服务存活")
}

// RegisterRoutes 将新闻网关的路由注册到提供的 Gin 路由组上。
func (h *NewsHandler) RegisterRoutes(rg *gin.RouterGroup) {
	h.logger.Info("开始注册 NewsHandler 的路由...")

	// 注意顺序：具体路径必须先于参数路径注册，
	// 否则 "trending" 等会被 :id 吞掉。
	rg.GET("/news", h.SearchNews)
	rg.GET("/news/trending", h.GetTrending)
	rg.GET("/news/sources", h.ListSources)
	rg.GET("/news/stats", h.GetStats)
	rg.GET("/news/_health", h.HealthCheck)
	rg.GET("/news/:id", h.GetArticle)

	h.logger.Info("NewsHandler 的所有路由已注册完成")
}
