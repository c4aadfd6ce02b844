package gate

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/Xushengqwer/news_gateway/config"
	"github.com/Xushengqwer/news_gateway/internal/models"
	"github.com/Xushengqwer/news_gateway/internal/tier"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGate() *Gate {
	return NewGate(tier.NewRegistry(config.RateLimitConfig{}))
}

func sampleArticle() models.NewsArticleDocument {
	return models.NewsArticleDocument{
		ID:      "article-1",
		Title:   "测试文章",
		Content: strings.Repeat("a", 500),
		Annotate: &models.ArticleAnnotation{
			Sentiment: &models.LabelScore{Label: "positive", Score: 0.9},
			Emotion:   &models.LabelScore{Label: "joy", Score: 0.8},
			Entities: []models.EntityAnnotation{
				{Word: "Berlin", EntityGroup: "LOC", Score: 0.95},
			},
		},
	}
}

func TestApplyToArticle_BasicTruncatesContent(t *testing.T) {
	g := newTestGate()

	gated := g.ApplyToArticle(sampleArticle(), tier.Basic)

	assert.True(t, strings.HasSuffix(gated.Content, "..."))
	// 截断按字符数计：280 个预览字符加 3 个标记字符。
	assert.Equal(t, 283, utf8.RuneCountInString(gated.Content))
}

func TestApplyToArticle_TruncationCountsRunesNotBytes(t *testing.T) {
	g := newTestGate()
	doc := sampleArticle()
	// 多字节字符正文，按字节截断会撕裂字符。
	doc.Content = strings.Repeat("新", 300)

	gated := g.ApplyToArticle(doc, tier.Basic)

	require.True(t, utf8.ValidString(gated.Content))
	assert.Equal(t, strings.Repeat("新", 280)+"...", gated.Content)
}

func TestApplyToArticle_ShortContentUntouched(t *testing.T) {
	g := newTestGate()
	doc := sampleArticle()
	doc.Content = "短正文"

	gated := g.ApplyToArticle(doc, tier.Basic)

	// 未超过预览长度的正文原样返回，不附加截断标记。
	assert.Equal(t, "短正文", gated.Content)
}

func TestApplyToArticle_EntitiesGatedByTier(t *testing.T) {
	g := newTestGate()

	for _, tr := range []tier.Tier{tier.Basic, tier.Pro} {
		gated := g.ApplyToArticle(sampleArticle(), tr)
		require.NotNil(t, gated.Annotate, "等级 %s", tr)
		// 实体列表置空但保持非 nil，JSON 序列化为 [] 而不是 null。
		assert.NotNil(t, gated.Annotate.Entities)
		assert.Empty(t, gated.Annotate.Entities)
		// 情感和情绪标注不受实体门控影响。
		assert.Equal(t, "positive", gated.Annotate.Sentiment.Label)
		assert.Equal(t, "joy", gated.Annotate.Emotion.Label)
	}

	for _, tr := range []tier.Tier{tier.Ultra, tier.Mega} {
		gated := g.ApplyToArticle(sampleArticle(), tr)
		require.NotNil(t, gated.Annotate, "等级 %s", tr)
		assert.Len(t, gated.Annotate.Entities, 1)
	}
}

func TestApplyToArticle_MegaIsIdentity(t *testing.T) {
	g := newTestGate()
	doc := sampleArticle()

	gated := g.ApplyToArticle(doc, tier.Mega)

	assert.Equal(t, doc.Content, gated.Content)
	assert.Equal(t, doc.Annotate.Entities, gated.Annotate.Entities)
}

func TestApplyToArticle_DoesNotMutateInput(t *testing.T) {
	g := newTestGate()
	doc := sampleArticle()

	_ = g.ApplyToArticle(doc, tier.Basic)

	// 门控是纯转换，输入文档（包括共享的标注结构）必须保持原样。
	assert.Equal(t, 500, len(doc.Content))
	require.NotNil(t, doc.Annotate)
	assert.Len(t, doc.Annotate.Entities, 1)
}

func TestApplyToArticle_NilAnnotateIsSafe(t *testing.T) {
	g := newTestGate()
	doc := sampleArticle()
	doc.Annotate = nil

	gated := g.ApplyToArticle(doc, tier.Basic)
	assert.Nil(t, gated.Annotate)
}

func TestApplyToArticles(t *testing.T) {
	g := newTestGate()
	docs := []models.NewsArticleDocument{sampleArticle(), sampleArticle()}

	gated := g.ApplyToArticles(docs, tier.Basic)

	require.Len(t, gated, 2)
	for _, doc := range gated {
		assert.True(t, strings.HasSuffix(doc.Content, "..."))
		assert.Empty(t, doc.Annotate.Entities)
	}
	// 原切片不受影响。
	assert.Equal(t, 500, len(docs[0].Content))
}
