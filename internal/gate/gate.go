// Package gate 按订阅等级对出站文章执行内容门控。
// 门控是纯转换：不访问存储、不修改输入文档，只产出调整后的副本。
package gate

import (
	"strings"

	"github.com/Xushengqwer/news_gateway/internal/models"
	"github.com/Xushengqwer/news_gateway/internal/tier"
)

// previewRunes 是低等级订阅可见的正文预览长度（按 Unicode 字符计，不按字节）。
const previewRunes = 280

// truncationMarker 附加在被截断的正文末尾。
const truncationMarker = "..."

// Gate 持有等级策略表并据此裁剪文章内容。
type Gate struct {
	registry *tier.Registry
}

// NewGate 创建内容门控实例。
func NewGate(registry *tier.Registry) *Gate {
	return &Gate{registry: registry}
}

// ApplyToArticle 返回按等级策略裁剪后的文章副本，输入文档保持不变。
//   - 不含完整正文权限的等级：正文截断到预览长度并附加截断标记。
//   - 不含实体标注权限的等级：实体列表置空，情感和情绪标注保留。
func (g *Gate) ApplyToArticle(doc models.NewsArticleDocument, t tier.Tier) models.NewsArticleDocument {
	policy := g.registry.Policy(t)

	if !policy.FullContent {
		doc.Content = truncateRunes(doc.Content, previewRunes)
	}
	if doc.Annotate != nil {
		// 标注结构被多个返回文档共享时不可原地修改，统一复制一份。
		annotate := *doc.Annotate
		if !policy.NLPEntities {
			annotate.Entities = []models.EntityAnnotation{}
		}
		doc.Annotate = &annotate
	}
	return doc
}

// ApplyToArticles 对一批文章逐条应用门控，返回新切片。
func (g *Gate) ApplyToArticles(docs []models.NewsArticleDocument, t tier.Tier) []models.NewsArticleDocument {
	out := make([]models.NewsArticleDocument, len(docs))
	for i, doc := range docs {
		out[i] = g.ApplyToArticle(doc, t)
	}
	return out
}

// truncateRunes 按字符数截断字符串；未超限时原样返回，不附加标记。
func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	var b strings.Builder
	b.Grow(limit + len(truncationMarker))
	b.WriteString(string(runes[:limit]))
	b.WriteString(truncationMarker)
	return b.String()
}
