package models

import "time"

// KafkaArticleIngestEvent 镜像了采集/标注管道发送的文章摄入事件的结构。
// 同一文章多次摄入（例如标注补全后重发）会覆盖索引中的旧文档。
type KafkaArticleIngestEvent struct {
	ID            string             `json:"id"`                       // 文章唯一标识符。
	Title         string             `json:"title"`                    // 文章标题。
	Content       string             `json:"content"`                  // 文章正文。
	Author        string             `json:"author"`                   // 作者名。
	Source        string             `json:"source"`                   // 来源站点标识。
	URL           string             `json:"url"`                      // 原文链接。
	HeadlineImage string             `json:"headline_image,omitempty"` // 头图 URL。
	Tags          []string           `json:"tags"`                     // 文章标签集合。
	PublishedAt   time.Time          `json:"published_at"`             // 文章发布时间。
	Annotate      *ArticleAnnotation `json:"annotate,omitempty"`       // NLP 标注，管道可能延迟补全。
}

// KafkaArticleDeleteEvent 镜像了管道发送的文章删除事件的结构。
type KafkaArticleDeleteEvent struct {
	Operation string `json:"operation"`  // 操作类型，期望值为 "delete"。
	ArticleID string `json:"article_id"` // 需要删除的文章的唯一标识符。
}
