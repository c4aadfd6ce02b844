package models

import (
	"fmt"
	"time"
)

// 排序方式的合法取值。relevance 仅在提供了关键词 q 时有意义，
// 否则所有文档的 _score 相同，退化为 newest。
const (
	SortNewest    = "newest"
	SortOldest    = "oldest"
	SortRelevance = "relevance"
)

// NewsQuery 定义新闻搜索 API 请求的参数及验证规则。
// 所有过滤字段相互独立，缺省表示该维度不做约束。
type NewsQuery struct {
	Query     string `form:"q"`                                                                 // 全文搜索关键词，作用于标题和正文，非必需。
	Source    string `form:"source"`                                                            // 按来源精确过滤。
	Tag       string `form:"tag"`                                                               // 按标签精确过滤，匹配标签集合中的任一元素。
	Sentiment string `form:"sentiment"`                                                         // 按情感标注过滤，例如 "positive"。
	Emotion   string `form:"emotion"`                                                           // 按情绪标注过滤，例如 "joy"。
	Author    string `form:"author"`                                                            // 按作者精确过滤。
	DateFrom  string `form:"date_from"`                                                         // 发布时间下界（含），格式见 ParseFilterDate。
	DateTo    string `form:"date_to"`                                                           // 发布时间上界（含）。
	Sort      string `form:"sort,default=newest" binding:"omitempty,oneof=newest oldest relevance"` // 排序方式。
	Page      int    `form:"page,default=1" binding:"omitempty,min=1"`                          // 页码，从 1 开始。
	Size      int    `form:"size,default=10" binding:"omitempty,min=1,max=100"`                 // 每页数量；服务层会再按订阅等级上限收紧。
}

// 过滤日期允许的两种格式：纯日期或带时区的 RFC3339 时间。
// 两种格式 Elasticsearch 的默认 date 映射都能直接解析，
// 因此校验通过后原始字符串可以原样进入查询 DSL。
var filterDateLayouts = []string{"2006-01-02", time.RFC3339}

// ParseFilterDate 校验一个过滤日期字符串。
// 返回解析出的时间，或在两种格式都不匹配时返回错误。
func ParseFilterDate(value string) (time.Time, error) {
	var lastErr error
	for _, layout := range filterDateLayouts {
		t, err := time.Parse(layout, value)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, fmt.Errorf("无法解析的日期 %q (期望 YYYY-MM-DD 或 RFC3339): %w", value, lastErr)
}

// Validate 在计入配额之前执行过滤参数的语义校验。
// gin 的 binding 标签负责类型和枚举校验，这里补充日期格式检查，
// 保证无效请求不会消耗调用方的配额单位。
func (q *NewsQuery) Validate() error {
	if q.DateFrom != "" {
		if _, err := ParseFilterDate(q.DateFrom); err != nil {
			return fmt.Errorf("date_from 无效: %w", err)
		}
	}
	if q.DateTo != "" {
		if _, err := ParseFilterDate(q.DateTo); err != nil {
			return fmt.Errorf("date_to 无效: %w", err)
		}
	}
	return nil
}

// SearchResult 定义搜索 API 的响应数据结构。
type SearchResult struct {
	Hits       []NewsArticleDocument `json:"hits"`                           // 命中的文章列表（已按订阅等级做内容门控）。
	Total      int64                 `json:"total"`                          // 总命中数。
	Page       int                   `json:"page"`                           // 当前页码。
	Size       int                   `json:"size"`                           // 当前页大小（可能已被等级上限收紧）。
	TotalPages int64                 `json:"total_pages"`                    // 总页数。
	Took       int64                 `json:"took_ms,omitempty" example:"50"` // 查询耗时（毫秒）。
}
