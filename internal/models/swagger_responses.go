package models

// SwaggerSearchResultResponse 是一个专门为 Swagger 文档生成的辅助结构体。
// 它解决了 swag 工具无法解析 interface{} 数据负载的问题。
// 实际的 API 响应仍然使用 internal/api 包中的统一 APIResponse 信封。
type SwaggerSearchResultResponse struct {
	Code    int          `json:"code"`           // 业务自定义状态码，0 代表成功。
	Message string       `json:"message"`        // 操作结果的文字描述。
	Data    SearchResult `json:"data,omitempty"` // 具体的搜索结果数据负载。
}

// SwaggerArticleResponse 是单篇文章查询响应的 Swagger 辅助结构体。
type SwaggerArticleResponse struct {
	Code    int                 `json:"code"`
	Message string              `json:"message"`
	Data    NewsArticleDocument `json:"data,omitempty"`
}

// SwaggerSourcesResponse 是来源列表响应的 Swagger 辅助结构体。
type SwaggerSourcesResponse struct {
	Code    int          `json:"code"`
	Message string       `json:"message"`
	Data    []SourceInfo `json:"data,omitempty"`
}

// SwaggerStatsResponse 是数据集统计响应的 Swagger 辅助结构体。
type SwaggerStatsResponse struct {
	Code    int       `json:"code"`
	Message string    `json:"message"`
	Data    StatsData `json:"data,omitempty"`
}

// SwaggerTrendingResponse 是趋势快照响应的 Swagger 辅助结构体。
type SwaggerTrendingResponse struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    []TrendingItem `json:"data,omitempty"`
}

// SwaggerErrorResponse 是错误响应的 Swagger 辅助结构体。
// kind 字段是机器可读的错误类别（例如 QUOTA_EXCEEDED），message 面向人类。
type SwaggerErrorResponse struct {
	Code    int         `json:"code"`
	Kind    string      `json:"kind"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}
