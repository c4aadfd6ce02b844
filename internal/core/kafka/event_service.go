package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/Xushengqwer/go-common/core"
	"github.com/Xushengqwer/news_gateway/internal/models"
	"github.com/Xushengqwer/news_gateway/internal/repositories"

	"go.uber.org/zap"
)

// 包级别定义的哨兵错误，表示特定的、可预期的错误条件。
// 上层的 Kafka 消息处理器使用 errors.Is() 检查这些错误，
// 并据此把永久性错误直接送入 DLQ 而不是重试。
var (
	ErrInvalidArticleID   = errors.New("无效的文章ID")
	ErrEmptyTitle         = errors.New("文章标题不能为空")
	ErrInvalidEventFormat = errors.New("无效的事件格式或缺少关键数据")
)

// EventService 封装了处理文章摄入管道 Kafka 事件的业务逻辑。
// 它依赖于 NewsRepository 与 Elasticsearch 进行交互。
type EventService struct {
	newsRepo repositories.NewsRepository
	logger   *core.ZapLogger
}

// NewEventService 创建 EventService 的新实例。
// 关键依赖缺失时 panic，防止服务以损坏状态启动。
func NewEventService(newsRepo repositories.NewsRepository, logger *core.ZapLogger) *EventService {
	if newsRepo == nil {
		panic("致命错误 [事件服务]: NewsRepository 依赖注入失败，实例不能为 nil")
	}
	if logger == nil {
		panic("致命错误 [事件服务]: ZapLogger 依赖注入失败，实例不能为 nil")
	}
	return &EventService{
		newsRepo: newsRepo,
		logger:   logger,
	}
}

// HandleArticleIngestEvent 处理文章摄入事件：验证事件数据，
// 转换为 Elasticsearch 文档模型，然后调用仓库层索引。
// 同一文章的重复摄入（标注补全后重发）是正常路径，覆盖旧文档。
func (s *EventService) HandleArticleIngestEvent(ctx context.Context, event models.KafkaArticleIngestEvent) error {
	s.logger.Info("开始处理文章摄入事件",
		zap.String("article_id", event.ID),
		zap.String("source", event.Source))

	// 来自外部管道的数据必须先做基础验证，避免无效数据污染索引。
	// 验证失败是永久性错误，重试不会让同一条消息变得合法。
	if event.ID == "" {
		s.logger.Error("处理文章摄入事件失败：事件中缺少文章 ID",
			zap.String("source", event.Source),
			zap.String("title", event.Title),
		)
		return fmt.Errorf("处理文章摄入事件失败，文章 ID 为空: %w", ErrInvalidArticleID)
	}
	if event.Title == "" {
		s.logger.Error("处理文章摄入事件失败：事件中的文章标题为空",
			zap.String("article_id", event.ID),
		)
		return fmt.Errorf("处理文章摄入事件失败，文章 ID '%s' 的标题为空: %w", event.ID, ErrEmptyTitle)
	}

	// 事件模型到存储模型的映射，解耦事件格式和索引格式。
	// IngestedAt 由仓库层在索引时刷新。
	doc := models.NewsArticleDocument{
		ID:            event.ID,
		Title:         event.Title,
		Content:       event.Content,
		Author:        event.Author,
		Source:        event.Source,
		URL:           event.URL,
		HeadlineImage: event.HeadlineImage,
		Tags:          event.Tags,
		PublishedAt:   event.PublishedAt,
		Annotate:      event.Annotate,
	}
	s.logger.Debug("已将摄入事件数据映射到 NewsArticleDocument 模型",
		zap.String("article_id", event.ID))

	if err := s.newsRepo.IndexArticle(ctx, doc); err != nil {
		s.logger.Error("调用 NewsRepository 的 IndexArticle 操作失败",
			zap.String("article_id", event.ID),
			zap.Error(err),
		)
		return fmt.Errorf("索引文章 ID '%s' 到 Elasticsearch 失败: %w", event.ID, err)
	}

	s.logger.Info("成功处理并索引文章摄入事件",
		zap.String("article_id", event.ID))
	return nil
}

// HandleArticleDeleteEvent 处理文章删除事件：验证事件数据，
// 然后调用仓库层从 Elasticsearch 中删除相应的文档。
func (s *EventService) HandleArticleDeleteEvent(ctx context.Context, event models.KafkaArticleDeleteEvent) error {
	s.logger.Info("开始处理文章删除事件",
		zap.String("article_id", event.ArticleID))

	if event.ArticleID == "" {
		s.logger.Error("处理文章删除事件失败：事件中缺少文章 ID")
		return fmt.Errorf("处理文章删除事件失败，文章 ID 为空: %w", ErrInvalidArticleID)
	}

	// DeleteArticle 对 404 幂等，文档本就不存在不会返回错误。
	if err := s.newsRepo.DeleteArticle(ctx, event.ArticleID); err != nil {
		s.logger.Error("调用 NewsRepository 的 DeleteArticle 操作失败",
			zap.String("article_id", event.ArticleID),
			zap.Error(err),
		)
		return fmt.Errorf("从 Elasticsearch 删除文章 ID '%s' 失败: %w", event.ArticleID, err)
	}

	s.logger.Info("成功处理文章删除事件",
		zap.String("article_id", event.ArticleID))
	return nil
}
