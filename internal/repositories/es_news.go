package repositories

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Xushengqwer/go-common/core"
	"github.com/Xushengqwer/news_gateway/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"go.uber.org/zap"
)

// ErrArticleNotFound 表示按 ID 查询的文章在索引中不存在。
// 服务层将此错误翻译为对外的 404 响应。
var ErrArticleNotFound = errors.New("文章不存在")

// NewsRepository 定义了与新闻文章数据在 Elasticsearch 中持久化和检索相关的操作接口。
// 这种接口化设计使得业务逻辑层可以解耦具体的存储实现。
type NewsRepository interface {
	// IndexArticle 索引（创建或更新）一篇文章文档到 Elasticsearch。
	// 如果具有相同 ID 的文档已存在，则会覆盖它；否则，创建新文档。
	IndexArticle(ctx context.Context, doc models.NewsArticleDocument) error

	// DeleteArticle 根据文章 ID 从 Elasticsearch 中删除一篇文章文档。
	// 如果文档不存在，此操作视为幂等成功。
	DeleteArticle(ctx context.Context, articleID string) error

	// SearchArticles 根据提供的查询参数在 Elasticsearch 中执行搜索。
	// 返回的命中结果未做内容门控，由服务层按订阅等级裁剪。
	SearchArticles(ctx context.Context, req models.NewsQuery) (*models.SearchResult, error)

	// GetArticleByID 按 ID 检索单篇文章；文档不存在时返回 ErrArticleNotFound。
	GetArticleByID(ctx context.Context, articleID string) (*models.NewsArticleDocument, error)

	// AggregateSources 返回索引中全部来源及各来源的文档计数，按计数降序。
	AggregateSources(ctx context.Context) ([]models.SourceInfo, error)

	// AggregateStats 返回数据集级统计：文档总数、来源分布和发布时间覆盖范围。
	AggregateStats(ctx context.Context) (*models.StatsData, error)

	// TrendingTerms 统计发布时间落在 [now-window, now] 内的文章中
	// 出现频率最高的命名实体和标签，每个维度最多返回 perBucketSize 个桶。
	// 两个维度的桶合并在一起返回，排名和截断由服务层完成。
	TrendingTerms(ctx context.Context, window time.Duration, perBucketSize int) ([]models.TrendingItem, error)
}

// esNewsRepository 是 NewsRepository 接口针对 Elasticsearch 的具体实现。
type esNewsRepository struct {
	client    *elasticsearch.Client // 注入的 Elasticsearch Go 客户端实例。
	indexName string                // 此仓库操作的目标索引名称。
	logger    *core.ZapLogger       // 注入的 Logger 实例，用于结构化日志记录。
}

// NewESNewsRepository 创建一个新的 esNewsRepository 实例。
// 关键依赖缺失时快速失败，确保服务不会以不完整状态启动。
func NewESNewsRepository(client *elasticsearch.Client, indexName string, logger *core.ZapLogger) NewsRepository {
	if logger == nil {
		panic("创建 esNewsRepository 失败：Logger 实例不能为 nil")
	}
	if client == nil {
		logger.Fatal("创建 esNewsRepository 失败：Elasticsearch 客户端实例 (client) 不能为 nil")
	}
	if indexName == "" {
		logger.Fatal("创建 esNewsRepository 失败：Elasticsearch 索引名称 (indexName) 不能为空")
	}

	logger.Info("Elasticsearch NewsRepository 初始化成功",
		zap.String("index_name", indexName),
	)
	return &esNewsRepository{
		client:    client,
		indexName: indexName,
		logger:    logger,
	}
}

// logAndWrapESError 处理并记录 Elasticsearch API 响应中的错误。
// 它会尝试读取响应体，记录详细的错误信息（包括状态码和响应体），
// 并返回一个包装后的统一格式错误。
func (repo *esNewsRepository) logAndWrapESError(res *esapi.Response, operationDesc string, contextIdentifier interface{}) error {
	var errBody strings.Builder
	var readErr error
	if res.Body != nil {
		_, readErr = io.Copy(&errBody, res.Body)
	}

	logFields := []zap.Field{
		zap.Any("context_identifier", contextIdentifier),
		zap.String("es_status", res.Status()),
	}

	responseBodyStr := errBody.String()
	if readErr != nil {
		logFields = append(logFields, zap.Error(fmt.Errorf("读取 Elasticsearch 错误响应体失败: %w", readErr)))
	} else if responseBodyStr != "" {
		logFields = append(logFields, zap.String("es_error_response_body", responseBodyStr))
	}

	repo.logger.Error(fmt.Sprintf("Elasticsearch 操作 '%s' 失败", operationDesc), logFields...)

	if responseBodyStr != "" {
		return fmt.Errorf("Elasticsearch 操作 '%s' 失败，状态码: %s，响应: %s", operationDesc, res.Status(), responseBodyStr)
	}
	return fmt.Errorf("Elasticsearch 操作 '%s' 失败，状态码: %s", operationDesc, res.Status())
}

// IndexArticle 在 Elasticsearch 中索引（创建或更新）一篇文章文档。
// 使用文章 ID 作为 Elasticsearch 文档的 _id，实现幂等的 upsert 行为：
// 管道对同一文章的重复摄入（例如标注补全后重发）会覆盖旧文档。
func (repo *esNewsRepository) IndexArticle(ctx context.Context, doc models.NewsArticleDocument) error {
	// 每次索引操作都刷新摄入时间戳，便于追踪文档的最新状态。使用 UTC 避免时区问题。
	doc.IngestedAt = time.Now().UTC()

	payload, err := json.Marshal(doc)
	if err != nil {
		repo.logger.Error("序列化 NewsArticleDocument 为 JSON 失败",
			zap.String("article_id", doc.ID),
			zap.Error(err),
		)
		return fmt.Errorf("序列化文章文档 (ID: %s) 失败: %w", doc.ID, err)
	}
	repo.logger.Debug("准备索引的文档JSON体", zap.String("document_id", doc.ID), zap.ByteString("payload", payload))

	req := esapi.IndexRequest{
		Index:      repo.indexName,
		DocumentID: doc.ID,
		Body:       bytes.NewReader(payload),
		// 异步刷新：写入先进入内存缓冲区，短时间内对搜索不可见。
		// Kafka 消费这类高吞吐写入场景下 "false" 是首选。
		Refresh: "false",
	}

	res, err := req.Do(ctx, repo.client)
	if err != nil {
		repo.logger.Error("执行 Elasticsearch 索引请求时发生连接或客户端错误",
			zap.String("article_id", doc.ID),
			zap.Error(err),
		)
		return fmt.Errorf("Elasticsearch 索引请求 (ID: %s) 失败: %w", doc.ID, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return repo.logAndWrapESError(res, "索引文档", doc.ID)
	}

	repo.logger.Info("成功发送索引/更新请求到 Elasticsearch",
		zap.String("article_id", doc.ID),
		zap.String("es_status", res.Status()),
	)
	return nil
}

// DeleteArticle 根据文档 ID 从 Elasticsearch 中删除一篇文章。
// 此操作是幂等的：目标文档本就不存在 (404) 时视为成功，
// 因为 "文档不存在" 这个目标状态已经达成。
func (repo *esNewsRepository) DeleteArticle(ctx context.Context, articleID string) error {
	repo.logger.Info("准备从 Elasticsearch 删除文档", zap.String("document_id", articleID))

	req := esapi.DeleteRequest{
		Index:      repo.indexName,
		DocumentID: articleID,
		Refresh:    "false",
	}

	res, err := req.Do(ctx, repo.client)
	if err != nil {
		repo.logger.Error("执行 Elasticsearch 删除请求时发生连接或客户端错误",
			zap.String("article_id", articleID),
			zap.Error(err),
		)
		return fmt.Errorf("Elasticsearch 删除请求 (ID: %s) 失败: %w", articleID, err)
	}
	defer res.Body.Close()

	if res.StatusCode == 404 {
		repo.logger.Warn("尝试删除的文档在 Elasticsearch 中未找到，视为操作成功 (幂等性)",
			zap.String("article_id", articleID),
			zap.String("es_status", res.Status()),
		)
		return nil
	}

	if res.IsError() {
		return repo.logAndWrapESError(res, "删除文档", articleID)
	}

	repo.logger.Info("成功发送删除请求到 Elasticsearch",
		zap.String("article_id", articleID),
		zap.String("es_status", res.Status()),
	)
	return nil
}

// SearchArticles 根据查询参数在 Elasticsearch 索引中执行搜索。
func (repo *esNewsRepository) SearchArticles(ctx context.Context, req models.NewsQuery) (*models.SearchResult, error) {
	repo.logger.Info("开始执行 Elasticsearch 新闻搜索",
		zap.String("query_keywords", req.Query),
		zap.Int("page", req.Page),
		zap.Int("size", req.Size),
		zap.String("sort", req.Sort),
		zap.String("filter_source", req.Source),
		zap.String("filter_tag", req.Tag),
	)

	queryJSON, err := buildSearchQuery(req)
	if err != nil {
		repo.logger.Error("构建 Elasticsearch 搜索查询 DSL 失败", zap.Any("search_request_params", req), zap.Error(err))
		return nil, fmt.Errorf("构建搜索查询失败: %w", err)
	}
	repo.logger.Debug("构建的 Elasticsearch 查询 DSL", zap.String("dsl_query", string(queryJSON)))

	searchReq := esapi.SearchRequest{
		Index:          []string{repo.indexName},
		Body:           bytes.NewReader(queryJSON),
		TrackTotalHits: true,
	}

	res, err := searchReq.Do(ctx, repo.client)
	if err != nil {
		repo.logger.Error("执行 Elasticsearch 搜索请求时发生连接或客户端错误", zap.String("query_keywords", req.Query), zap.Error(err))
		return nil, fmt.Errorf("Elasticsearch 搜索请求失败: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, repo.logAndWrapESError(res, "搜索文档", req.Query)
	}

	var esResponse struct {
		Took int `json:"took"`
		Hits struct {
			Total struct {
				Value    int64  `json:"value"`
				Relation string `json:"relation"`
			} `json:"total"`
			Hits []struct {
				Source models.NewsArticleDocument `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}

	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		repo.logger.Error("解码 Elasticsearch 搜索响应体失败", zap.String("query_keywords", req.Query), zap.Error(err))
		return nil, fmt.Errorf("解码 Elasticsearch 搜索响应失败: %w", err)
	}

	searchResult := &models.SearchResult{
		Hits:  make([]models.NewsArticleDocument, 0, len(esResponse.Hits.Hits)),
		Total: esResponse.Hits.Total.Value,
		Page:  req.Page,
		Size:  req.Size,
		Took:  int64(esResponse.Took),
	}
	if req.Size > 0 {
		searchResult.TotalPages = (searchResult.Total + int64(req.Size) - 1) / int64(req.Size)
	}

	for _, hit := range esResponse.Hits.Hits {
		searchResult.Hits = append(searchResult.Hits, hit.Source)
	}

	repo.logger.Info("Elasticsearch 新闻搜索成功完成",
		zap.Int64("query_took_ms", searchResult.Took),
		zap.Int64("total_hits_found", searchResult.Total),
		zap.Int("returned_hits_count", len(searchResult.Hits)),
		zap.String("total_hits_relation", esResponse.Hits.Total.Relation),
	)

	return searchResult, nil
}

// GetArticleByID 按 ID 从 Elasticsearch 中检索单篇文章文档。
func (repo *esNewsRepository) GetArticleByID(ctx context.Context, articleID string) (*models.NewsArticleDocument, error) {
	req := esapi.GetRequest{
		Index:      repo.indexName,
		DocumentID: articleID,
	}

	res, err := req.Do(ctx, repo.client)
	if err != nil {
		repo.logger.Error("执行 Elasticsearch 文档获取请求时发生连接或客户端错误",
			zap.String("article_id", articleID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("Elasticsearch 文档获取请求 (ID: %s) 失败: %w", articleID, err)
	}
	defer res.Body.Close()

	if res.StatusCode == 404 {
		repo.logger.Debug("按 ID 查询的文档不存在", zap.String("article_id", articleID))
		return nil, ErrArticleNotFound
	}

	if res.IsError() {
		return nil, repo.logAndWrapESError(res, "获取文档", articleID)
	}

	var esResponse struct {
		Found  bool                       `json:"found"`
		Source models.NewsArticleDocument `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		repo.logger.Error("解码 Elasticsearch 文档获取响应体失败", zap.String("article_id", articleID), zap.Error(err))
		return nil, fmt.Errorf("解码 Elasticsearch 文档获取响应失败: %w", err)
	}
	if !esResponse.Found {
		return nil, ErrArticleNotFound
	}

	return &esResponse.Source, nil
}

// AggregateSources 通过 terms 聚合返回索引中的全部来源及各自的文档计数。
func (repo *esNewsRepository) AggregateSources(ctx context.Context) ([]models.SourceInfo, error) {
	query := map[string]interface{}{
		// size 为 0：只要聚合结果，不要命中文档本身。
		"size": 0,
		"aggs": map[string]interface{}{
			"sources": map[string]interface{}{
				"terms": map[string]interface{}{
					"field": "source",
					"size":  1000,
					"order": map[string]string{"_count": "desc"},
				},
			},
		},
	}

	esResponse, err := repo.runAggregation(ctx, query, "来源聚合")
	if err != nil {
		return nil, err
	}

	var sourcesAgg struct {
		Buckets []struct {
			Key      string `json:"key"`
			DocCount int64  `json:"doc_count"`
		} `json:"buckets"`
	}
	if err := json.Unmarshal(esResponse.Aggregations["sources"], &sourcesAgg); err != nil {
		repo.logger.Error("解析来源聚合桶失败", zap.Error(err))
		return nil, fmt.Errorf("解析来源聚合结果失败: %w", err)
	}

	sources := make([]models.SourceInfo, 0, len(sourcesAgg.Buckets))
	for _, bucket := range sourcesAgg.Buckets {
		sources = append(sources, models.SourceInfo{Name: bucket.Key, Count: bucket.DocCount})
	}

	repo.logger.Info("成功检索来源聚合", zap.Int("source_count", len(sources)))
	return sources, nil
}

// AggregateStats 返回数据集级统计信息：文档总数、来源分布和发布时间范围。
func (repo *esNewsRepository) AggregateStats(ctx context.Context) (*models.StatsData, error) {
	query := map[string]interface{}{
		"size":             0,
		"track_total_hits": true,
		"aggs": map[string]interface{}{
			"sources": map[string]interface{}{
				"terms": map[string]interface{}{
					"field": "source",
					"size":  1000,
					"order": map[string]string{"_count": "desc"},
				},
			},
			"earliest": map[string]interface{}{
				"min": map[string]interface{}{"field": "published_at"},
			},
			"latest": map[string]interface{}{
				"max": map[string]interface{}{"field": "published_at"},
			},
		},
	}

	esResponse, err := repo.runAggregation(ctx, query, "数据集统计聚合")
	if err != nil {
		return nil, err
	}

	stats := &models.StatsData{
		TotalArticles: esResponse.Hits.Total.Value,
		Sources:       make([]models.SourceInfo, 0),
	}

	var sourcesAgg struct {
		Buckets []struct {
			Key      string `json:"key"`
			DocCount int64  `json:"doc_count"`
		} `json:"buckets"`
	}
	if err := json.Unmarshal(esResponse.Aggregations["sources"], &sourcesAgg); err != nil {
		repo.logger.Error("解析统计来源聚合桶失败", zap.Error(err))
		return nil, fmt.Errorf("解析统计来源聚合结果失败: %w", err)
	}
	for _, bucket := range sourcesAgg.Buckets {
		stats.Sources = append(stats.Sources, models.SourceInfo{Name: bucket.Key, Count: bucket.DocCount})
	}

	// min/max 聚合在空索引上返回 null 值，value_as_string 缺失时保持空字符串。
	var bound struct {
		ValueAsString string `json:"value_as_string"`
	}
	if raw, ok := esResponse.Aggregations["earliest"]; ok {
		if err := json.Unmarshal(raw, &bound); err == nil {
			stats.DateRange.Earliest = bound.ValueAsString
		}
	}
	bound.ValueAsString = ""
	if raw, ok := esResponse.Aggregations["latest"]; ok {
		if err := json.Unmarshal(raw, &bound); err == nil {
			stats.DateRange.Latest = bound.ValueAsString
		}
	}

	repo.logger.Info("成功检索数据集统计",
		zap.Int64("total_articles", stats.TotalArticles),
		zap.Int("source_count", len(stats.Sources)),
	)
	return stats, nil
}

// TrendingTerms 统计窗口内文章的高频命名实体和标签。
// 实体桶的 Category 为 "entity"，标签桶的 Category 为 "tag"。
func (repo *esNewsRepository) TrendingTerms(ctx context.Context, window time.Duration, perBucketSize int) ([]models.TrendingItem, error) {
	if perBucketSize <= 0 {
		perBucketSize = 10
	}

	query := map[string]interface{}{
		"size": 0,
		"query": map[string]interface{}{
			"range": map[string]interface{}{
				"published_at": map[string]interface{}{
					"gte": fmt.Sprintf("now-%ds/s", int64(window.Seconds())),
				},
			},
		},
		"aggs": map[string]interface{}{
			"entities": map[string]interface{}{
				"terms": map[string]interface{}{
					"field": "annotate.entities.word",
					"size":  perBucketSize,
				},
			},
			"tags": map[string]interface{}{
				"terms": map[string]interface{}{
					"field": "tags",
					"size":  perBucketSize,
				},
			},
		},
	}

	esResponse, err := repo.runAggregation(ctx, query, "趋势词聚合")
	if err != nil {
		return nil, err
	}

	var bucketList struct {
		Buckets []struct {
			Key      string `json:"key"`
			DocCount int64  `json:"doc_count"`
		} `json:"buckets"`
	}

	items := make([]models.TrendingItem, 0, 2*perBucketSize)
	for aggName, category := range map[string]string{"entities": "entity", "tags": "tag"} {
		raw, ok := esResponse.Aggregations[aggName]
		if !ok {
			continue
		}
		bucketList.Buckets = nil
		if err := json.Unmarshal(raw, &bucketList); err != nil {
			repo.logger.Error("解析趋势聚合桶失败", zap.String("agg_name", aggName), zap.Error(err))
			return nil, fmt.Errorf("解析趋势聚合结果 (%s) 失败: %w", aggName, err)
		}
		for _, bucket := range bucketList.Buckets {
			items = append(items, models.TrendingItem{
				Keyword:  bucket.Key,
				Category: category,
				Count:    bucket.DocCount,
			})
		}
	}

	repo.logger.Info("成功检索趋势词聚合",
		zap.Duration("window", window),
		zap.Int("bucket_count", len(items)),
	)
	return items, nil
}

// aggregationResponse 是聚合类查询共用的响应结构。
// Aggregations 保留原始 JSON，由各调用方按自身的桶结构解析。
type aggregationResponse struct {
	Hits struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
	} `json:"hits"`
	Aggregations map[string]json.RawMessage `json:"aggregations"`
}

// runAggregation 执行一个聚合查询并返回解码后的响应骨架。
func (repo *esNewsRepository) runAggregation(ctx context.Context, query map[string]interface{}, operationDesc string) (*aggregationResponse, error) {
	queryJSON, err := json.Marshal(query)
	if err != nil {
		repo.logger.Error("序列化聚合查询 DSL 失败", zap.String("operation", operationDesc), zap.Error(err))
		return nil, fmt.Errorf("序列化聚合查询 DSL 失败: %w", err)
	}
	repo.logger.Debug("构建的聚合查询 DSL", zap.String("operation", operationDesc), zap.String("dsl_query", string(queryJSON)))

	searchReq := esapi.SearchRequest{
		Index: []string{repo.indexName},
		Body:  bytes.NewReader(queryJSON),
	}

	res, err := searchReq.Do(ctx, repo.client)
	if err != nil {
		repo.logger.Error("执行 Elasticsearch 聚合请求时发生连接或客户端错误", zap.String("operation", operationDesc), zap.Error(err))
		return nil, fmt.Errorf("Elasticsearch 聚合请求 (%s) 失败: %w", operationDesc, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, repo.logAndWrapESError(res, operationDesc, repo.indexName)
	}

	var esResponse aggregationResponse
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		repo.logger.Error("解码 Elasticsearch 聚合响应体失败", zap.String("operation", operationDesc), zap.Error(err))
		return nil, fmt.Errorf("解码 Elasticsearch 聚合响应 (%s) 失败: %w", operationDesc, err)
	}
	return &esResponse, nil
}
