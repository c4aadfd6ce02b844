package repositories

import (
	"encoding/json"
	"testing"

	"github.com/Xushengqwer/news_gateway/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mustBuild 构建查询并反序列化为通用结构，方便对 DSL 做断言。
func mustBuild(t *testing.T, req models.NewsQuery) map[string]interface{} {
	t.Helper()
	raw, err := buildSearchQuery(req)
	require.NoError(t, err)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &body))
	return body
}

func TestBuildSearchQuery_EmptyQueryUsesMatchAll(t *testing.T) {
	body := mustBuild(t, models.NewsQuery{Page: 1, Size: 10, Sort: models.SortNewest})

	query := body["query"].(map[string]interface{})
	assert.Contains(t, query, "match_all")
	assert.True(t, body["track_total_hits"].(bool))
}

func TestBuildSearchQuery_KeywordUsesMultiMatch(t *testing.T) {
	body := mustBuild(t, models.NewsQuery{Query: "climate summit", Page: 1, Size: 10})

	multiMatch := body["query"].(map[string]interface{})["multi_match"].(map[string]interface{})
	assert.Equal(t, "climate summit", multiMatch["query"])
	assert.Equal(t, []interface{}{"title^3", "content"}, multiMatch["fields"])
	assert.Equal(t, "best_fields", multiMatch["type"])
	assert.Equal(t, "AUTO", multiMatch["fuzziness"])
}

func TestBuildSearchQuery_FiltersAreTermClauses(t *testing.T) {
	body := mustBuild(t, models.NewsQuery{
		Source:    "reuters",
		Tag:       "economy",
		Sentiment: "positive",
		Emotion:   "joy",
		Author:    "Jane Doe",
		Page:      1,
		Size:      10,
	})

	boolQuery := body["query"].(map[string]interface{})["bool"].(map[string]interface{})
	// 无关键词时主查询仍是 match_all，过滤器挂在 bool.filter 下。
	assert.Contains(t, boolQuery["must"], "match_all")

	filters := boolQuery["filter"].([]interface{})
	require.Len(t, filters, 5)

	wantFields := map[string]string{
		"source":                   "reuters",
		"tags":                     "economy",
		"annotate.sentiment.label": "positive",
		"annotate.emotion.label":   "joy",
		"author":                   "Jane Doe",
	}
	seen := map[string]string{}
	for _, f := range filters {
		term := f.(map[string]interface{})["term"].(map[string]interface{})
		for field, value := range term {
			seen[field] = value.(string)
		}
	}
	assert.Equal(t, wantFields, seen)
}

func TestBuildSearchQuery_DateRangeIsInclusive(t *testing.T) {
	body := mustBuild(t, models.NewsQuery{
		DateFrom: "2025-01-01",
		DateTo:   "2025-06-30",
		Page:     1,
		Size:     10,
	})

	filters := body["query"].(map[string]interface{})["bool"].(map[string]interface{})["filter"].([]interface{})
	require.Len(t, filters, 1)

	rangeBody := filters[0].(map[string]interface{})["range"].(map[string]interface{})["published_at"].(map[string]interface{})
	// 两端均为闭区间，原始字符串原样进入 DSL。
	assert.Equal(t, "2025-01-01", rangeBody["gte"])
	assert.Equal(t, "2025-06-30", rangeBody["lte"])
}

func TestBuildSearchQuery_DateRangeSingleBound(t *testing.T) {
	body := mustBuild(t, models.NewsQuery{DateFrom: "2025-01-01", Page: 1, Size: 10})

	filters := body["query"].(map[string]interface{})["bool"].(map[string]interface{})["filter"].([]interface{})
	rangeBody := filters[0].(map[string]interface{})["range"].(map[string]interface{})["published_at"].(map[string]interface{})
	assert.Equal(t, "2025-01-01", rangeBody["gte"])
	assert.NotContains(t, rangeBody, "lte")
}

func TestBuildSearchQuery_SortClauses(t *testing.T) {
	testCases := []struct {
		name       string
		sort       string
		firstField string
		firstOrder string
		wantIDTie  bool
	}{
		{"默认按最新", "", "published_at", "desc", true},
		{"newest", models.SortNewest, "published_at", "desc", true},
		{"oldest", models.SortOldest, "published_at", "asc", true},
		{"relevance", models.SortRelevance, "_score", "desc", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			body := mustBuild(t, models.NewsQuery{Query: "news", Sort: tc.sort, Page: 1, Size: 10})

			sortClause := body["sort"].([]interface{})
			first := sortClause[0].(map[string]interface{})[tc.firstField].(map[string]interface{})
			assert.Equal(t, tc.firstOrder, first["order"])

			if tc.wantIDTie {
				// 时间排序附带 _id 升序决胜，保证翻页顺序稳定。
				require.Len(t, sortClause, 2)
				tie := sortClause[1].(map[string]interface{})["_id"].(map[string]interface{})
				assert.Equal(t, "asc", tie["order"])
			} else {
				assert.Len(t, sortClause, 1)
			}
		})
	}
}

func TestBuildSearchQuery_Pagination(t *testing.T) {
	body := mustBuild(t, models.NewsQuery{Page: 3, Size: 25})
	assert.Equal(t, float64(50), body["from"])
	assert.Equal(t, float64(25), body["size"])

	// 异常页码不产生负偏移。
	body = mustBuild(t, models.NewsQuery{Page: 0, Size: 10})
	assert.Equal(t, float64(0), body["from"])
}
