package repositories

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Xushengqwer/news_gateway/internal/models"
)

// buildSearchQuery 根据新闻查询参数构建 Elasticsearch 查询的 JSON 体。
// 这个函数封装了分页、排序、主查询逻辑（match_all 或 multi_match）以及过滤逻辑。
//
// 调用方传入的 req 已完成校验和等级裁剪（Size 不超过等级上限），
// 此处只负责把参数忠实翻译为 DSL。
func buildSearchQuery(req models.NewsQuery) ([]byte, error) {
	// --- 1. 分页 ---
	// 'from' 是基于 0 的偏移，第一页 from=0，第二页 from=size，依此类推。
	from := (req.Page - 1) * req.Size
	if from < 0 {
		from = 0
	}

	// --- 2. 排序 ---
	// "newest" / "oldest" 按发布时间排序，"relevance" 按相关性评分排序。
	var sortClause []map[string]map[string]string
	switch req.Sort {
	case models.SortOldest:
		sortClause = []map[string]map[string]string{
			{"published_at": {"order": "asc"}},
		}
	case models.SortRelevance:
		sortClause = []map[string]map[string]string{
			{"_score": {"order": "desc"}},
		}
	default:
		sortClause = []map[string]map[string]string{
			{"published_at": {"order": "desc"}},
		}
	}
	// 主排序字段值相同时（同一秒发布的多篇文章很常见），用文档 ID 升序
	// 作为辅助排序，保证翻页顺序稳定。_score 排序本身自带 ID 级决胜，无需追加。
	if req.Sort != models.SortRelevance {
		sortClause = append(sortClause, map[string]map[string]string{"_id": {"order": "asc"}})
	}

	// --- 3. 主查询 ---
	var mainQueryDSL map[string]interface{}
	if strings.TrimSpace(req.Query) == "" {
		// 无关键词时匹配全部文档，配合过滤器实现 "浏览某来源/某标签" 的用法。
		mainQueryDSL = map[string]interface{}{
			"match_all": map[string]interface{}{},
		}
	} else {
		// multi_match 在标题和正文上执行全文搜索，标题权重是正文的 3 倍。
		// fuzziness 为 AUTO，容忍少量拼写偏差。
		mainQueryDSL = map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":     req.Query,
				"fields":    []string{"title^3", "content"},
				"type":      "best_fields",
				"fuzziness": "AUTO",
			},
		}
	}

	// --- 4. 过滤 ---
	// 过滤器用于精确匹配，不影响评分且可被 Elasticsearch 缓存。
	var filters []map[string]interface{}

	term := func(field, value string) map[string]interface{} {
		return map[string]interface{}{
			"term": map[string]interface{}{field: value},
		}
	}

	if req.Source != "" {
		filters = append(filters, term("source", req.Source))
	}
	if req.Tag != "" {
		filters = append(filters, term("tags", req.Tag))
	}
	if req.Sentiment != "" {
		filters = append(filters, term("annotate.sentiment.label", req.Sentiment))
	}
	if req.Emotion != "" {
		filters = append(filters, term("annotate.emotion.label", req.Emotion))
	}
	if req.Author != "" {
		filters = append(filters, term("author", req.Author))
	}

	// 日期范围过滤，两端均为闭区间。值已在绑定层校验过格式。
	if req.DateFrom != "" || req.DateTo != "" {
		rangeBody := map[string]interface{}{}
		if req.DateFrom != "" {
			rangeBody["gte"] = req.DateFrom
		}
		if req.DateTo != "" {
			rangeBody["lte"] = req.DateTo
		}
		filters = append(filters, map[string]interface{}{
			"range": map[string]interface{}{"published_at": rangeBody},
		})
	}

	// --- 5. 组合主查询和过滤器 ---
	var finalQueryDSL map[string]interface{}
	if len(filters) > 0 {
		finalQueryDSL = map[string]interface{}{
			"bool": map[string]interface{}{
				"must":   mainQueryDSL,
				"filter": filters,
			},
		}
	} else {
		finalQueryDSL = mainQueryDSL
	}

	// --- 6. 组装最终请求体 ---
	esQueryRequest := map[string]interface{}{
		"from":  from,
		"size":  req.Size,
		"sort":  sortClause,
		"query": finalQueryDSL,
		// 保证返回精确的总命中数，即使超过默认的 10000 条。
		"track_total_hits": true,
	}

	queryJSON, err := json.Marshal(esQueryRequest)
	if err != nil {
		return nil, fmt.Errorf("序列化 Elasticsearch 查询对象为 JSON 失败: %w", err)
	}
	return queryJSON, nil
}
