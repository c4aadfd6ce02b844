package models

import "time"

// LabelScore 表示一条 NLP 标注结果（情感或情绪），包含标签和置信度。
type LabelScore struct {
	Label string  `json:"label"` // 标注标签，例如 "positive" / "joy"。
	Score float64 `json:"score"` // 模型置信度，范围 [0,1]。
}

// EntityAnnotation 表示从文章正文中抽取出的一个命名实体。
type EntityAnnotation struct {
	Word        string  `json:"word"`         // 实体文本本身。
	EntityGroup string  `json:"entity_group"` // 实体类别，例如 PER / ORG / LOC。
	Score       float64 `json:"score"`        // 模型置信度。
}

// ArticleAnnotation 聚合一篇文章的全部 NLP 标注。
// 摄入管道可能尚未对文章做标注，因此整个结构体在文档中是可选的。
type ArticleAnnotation struct {
	Sentiment *LabelScore        `json:"sentiment,omitempty"` // 整篇文章的情感标注。
	Emotion   *LabelScore        `json:"emotion,omitempty"`   // 整篇文章的情绪标注。
	Entities  []EntityAnnotation `json:"entities"`            // 命名实体列表；内容门控可能将其置为空序列。
}

// NewsArticleDocument 表示存储在 Elasticsearch 中的新闻文章文档结构。
// 文档 ID 与 ID 字段保持一致（摄入时写入），保证幂等的创建/更新语义。
type NewsArticleDocument struct {
	ID            string             `json:"id"`                       // 文章唯一标识符（同时作为 ES 文档 _id）。
	Title         string             `json:"title"`                    // 文章标题。
	Content       string             `json:"content"`                  // 文章正文。内容门控可能按等级截断。
	Author        string             `json:"author"`                   // 作者名。
	Source        string             `json:"source"`                   // 来源站点标识。
	URL           string             `json:"url"`                      // 原文链接。
	HeadlineImage string             `json:"headline_image,omitempty"` // 头图 URL。
	Tags          []string           `json:"tags"`                     // 文章标签集合。
	PublishedAt   time.Time          `json:"published_at"`             // 文章发布时间，UTC。
	IngestedAt    time.Time          `json:"ingested_at"`              // 文档进入索引的时间戳，UTC，摄入时刷新。
	Annotate      *ArticleAnnotation `json:"annotate,omitempty"`       // NLP 标注，可选。
}

// SourceInfo 表示来源聚合中的一个桶：来源名及其文档数。
type SourceInfo struct {
	Name  string `json:"name"`      // 来源名称。
	Count int64  `json:"doc_count"` // 该来源下的文章数量。
}

// DateRange 表示数据集覆盖的发布时间范围。
type DateRange struct {
	Earliest string `json:"earliest,omitempty"` // 最早发布时间（ES 返回的字符串形式）。
	Latest   string `json:"latest,omitempty"`   // 最晚发布时间。
}

// StatsData 表示数据集级的统计信息，由 stats 端点返回，不做内容门控。
type StatsData struct {
	TotalArticles int64        `json:"total_articles"` // 索引中的文章总数。
	Sources       []SourceInfo `json:"sources"`        // 按来源的文档计数。
	DateRange     DateRange    `json:"date_range"`     // 发布时间覆盖范围。
}

// TrendingItem 表示趋势快照中的一个条目：近期出现频率最高的实体或标签。
type TrendingItem struct {
	Keyword  string `json:"keyword"`  // 实体文本或标签本身。
	Category string `json:"category"` // "entity" 或 "tag"。
	Count    int64  `json:"count"`    // 窗口内的出现次数。
}
