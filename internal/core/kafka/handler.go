package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Xushengqwer/go-common/core"
	"github.com/Xushengqwer/news_gateway/internal/models"
	"go.uber.org/zap"

	"github.com/IBM/sarama"
	"github.com/cenkalti/backoff/v4"
)

// Handler 实现了 sarama.ConsumerGroupHandler 接口，负责处理从 Kafka 接收到的消息。
// 主要职责：
// 1. 消息路由：根据消息的主题将其分发给特定的处理函数。
// 2. 业务逻辑调用：通过注入的 EventService 执行实际的业务处理。
// 3. 错误处理与重试：对可重试的错误执行指数退避重试策略。
// 4. 死信队列 (DLQ) 处理：在最终处理失败后，将消息发送到 DLQ。
// 5. 生命周期管理：通过 Setup/Cleanup 管理会话生命周期，并通过 Ready 通道发出就绪信号。
type Handler struct {
	eventService   *EventService                 // 业务服务层实例，处理消息的实际业务逻辑。
	dlqProducer    sarama.SyncProducer           // 发送消息到 DLQ 的同步生产者。
	dlqTopic       string                        // DLQ 的主题名称。
	maxRetry       uint64                        // 消息处理的最大重试次数。
	topicToHandler map[string]MessageHandlerFunc // 主题名称到具体处理函数的映射。
	ready          chan bool                     // handler 就绪信号通道，由 Setup 方法关闭。
	logger         *core.ZapLogger
}

// MessageHandlerFunc 定义了处理特定 Kafka 消息的函数的签名。
type MessageHandlerFunc func(ctx context.Context, message *sarama.ConsumerMessage) error

// NewHandler 创建并初始化一个新的 Kafka 消息处理程序实例。
// ingestTopic 上的消息被解释为文章摄入事件，deleteTopic 上的消息被解释为文章删除事件。
func NewHandler(
	eventSvc *EventService,
	producer sarama.SyncProducer,
	dlqTopic string,
	ingestTopic string,
	deleteTopic string,
	logger *core.ZapLogger,
	maxRetries uint64,
) *Handler {
	if logger == nil {
		panic("致命错误 [Kafka Handler]: Logger 实例不能为 nil")
	}
	if eventSvc == nil {
		logger.Error("创建 Kafka Handler 失败: EventService 实例不能为 nil")
		panic("致命错误 [Kafka Handler]: EventService 实例不能为 nil")
	}
	// DLQ 是可选功能，但生产者和主题必须成对配置才能生效。
	if producer == nil && dlqTopic != "" {
		logger.Warn("DLQ 主题已配置，但 DLQ 生产者未提供。DLQ 功能可能无法正常工作。", zap.String("dlq_topic", dlqTopic))
	}
	if producer != nil && dlqTopic == "" {
		logger.Warn("DLQ 生产者已提供，但 DLQ 主题未配置。DLQ 功能可能无法正常工作。")
	}

	h := &Handler{
		eventService: eventSvc,
		dlqProducer:  producer,
		dlqTopic:     dlqTopic,
		maxRetry:     maxRetries,
		ready:        make(chan bool),
		logger:       logger,
	}

	// 按主题路由，方便未来扩展新的主题和对应的处理器。
	h.topicToHandler = map[string]MessageHandlerFunc{
		ingestTopic: h.handleArticleIngestEvent,
		deleteTopic: h.handleArticleDeleteEvent,
	}
	logger.Info("Kafka Handler 初始化完成",
		zap.Strings("subscribed_topics_for_handler", []string{ingestTopic, deleteTopic}),
		zap.Uint64("max_processing_retries", maxRetries),
		zap.Bool("dlq_producer_configured", producer != nil),
		zap.String("dlq_topic_configured", dlqTopic),
	)
	return h
}

// Ready 返回一个只读通道，供外部（例如 ConsumerGroup）等待此 Handler 准备就绪。
// Setup 成功完成时此通道被关闭。
func (h *Handler) Ready() <-chan bool {
	return h.ready
}

// Setup 在新的消费者组会话开始时由 Sarama 调用。
// 重平衡时 Sarama 可能在同一个实例上多次调用 Setup，
// 用 select 安全地尝试关闭，避免重复关闭已关闭的通道导致 panic。
func (h *Handler) Setup(session sarama.ConsumerGroupSession) error {
	h.logger.Info("Kafka Handler 开始执行 Setup...", zap.String("member_id", session.MemberID()))
	select {
	case <-h.ready:
		h.logger.Info("Kafka Handler 的 ready 通道已被关闭，Setup 跳过关闭操作。", zap.String("member_id", session.MemberID()))
	default:
		close(h.ready)
	}
	h.logger.Info("Kafka Handler Setup 完成，已准备好消费消息。", zap.String("member_id", session.MemberID()))
	return nil
}

// Cleanup 在消费者组会话结束时调用。当前没有会话级资源需要释放。
func (h *Handler) Cleanup(session sarama.ConsumerGroupSession) error {
	h.logger.Info("Kafka Handler Cleanup 完成。", zap.String("member_id", session.MemberID()))
	return nil
}

// ConsumeClaim 是消息处理的核心循环，由 Sarama 为每个分配的分区声明调用。
// 持续从 claim.Messages() 拉取消息处理，直到通道关闭或会话上下文被取消。
func (h *Handler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	topic := claim.Topic()
	partition := claim.Partition()

	h.logger.Info("开始消费来自特定分区的消息",
		zap.String("topic", topic),
		zap.Int32("partition", partition),
		zap.Int64("initial_offset", claim.InitialOffset()),
	)

	for message := range claim.Messages() {
		offset := message.Offset
		h.logger.Debug("收到 Kafka 消息",
			zap.String("topic", message.Topic),
			zap.Int32("partition", message.Partition),
			zap.Int64("offset", offset),
			zap.ByteString("key", message.Key),
			zap.Int("value_length", len(message.Value)),
			zap.Time("kafka_timestamp", message.Timestamp),
		)

		handlerFunc, ok := h.topicToHandler[message.Topic]
		if !ok {
			// 没有为该主题注册处理函数，通常表示配置错误。
			// 必须标记，否则 Sarama 会认为此消息未处理。
			h.logger.Warn("未找到针对该主题注册的消息处理函数，将跳过此消息",
				zap.String("topic", message.Topic),
				zap.Int64("offset", offset),
				zap.Int32("partition", message.Partition),
			)
			session.MarkMessage(message, "")
			continue
		}

		processErr := h.processWithRetry(session.Context(), message, handlerFunc)

		if processErr != nil {
			h.logger.Error("消息在所有重试尝试后处理失败，准备发送到死信队列 (DLQ)",
				zap.String("topic", message.Topic),
				zap.Int64("offset", offset),
				zap.Int32("partition", message.Partition),
				zap.Error(processErr),
			)

			// DLQ 发送使用独立的带超时上下文，
			// 避免 DLQ 生产者阻塞导致整个消费者卡住。
			dlqCtx, dlqCancel := context.WithTimeout(context.Background(), 10*time.Second)
			dlqErr := SendToDLQ(dlqCtx, h.dlqProducer, h.dlqTopic, message, processErr, h.logger)
			dlqCancel()

			if dlqErr != nil {
				// 即使 DLQ 发送失败也标记原消息，保证消费流继续前进；
				// 丢失的消息依赖监控和告警处理。
				h.logger.Error("发送消息到死信队列 (DLQ) 失败，可能导致消息丢失，需要人工关注！",
					zap.String("topic", message.Topic),
					zap.Int64("offset", offset),
					zap.Int32("partition", message.Partition),
					zap.NamedError("original_processing_error", processErr),
					zap.NamedError("dlq_send_error", dlqErr),
				)
				session.MarkMessage(message, "")
			} else {
				h.logger.Info("消息已成功发送到死信队列 (DLQ)",
					zap.String("original_topic", message.Topic),
					zap.Int64("original_offset", offset),
					zap.String("dlq_topic", h.dlqTopic),
				)
				session.MarkMessage(message, "")
			}
		} else {
			session.MarkMessage(message, "")
			h.logger.Debug("消息处理成功",
				zap.String("topic", message.Topic),
				zap.Int64("offset", offset),
				zap.Int32("partition", message.Partition),
			)
		}

		// 每条消息处理后检查会话上下文，及时响应外部的关闭信号。
		if session.Context().Err() != nil {
			h.logger.Info("会话上下文在消息处理后被取消，准备停止消费此分区",
				zap.String("topic", topic),
				zap.Int32("partition", partition),
				zap.Int64("last_processed_offset", offset),
				zap.Error(session.Context().Err()),
			)
			return session.Context().Err()
		}
	}

	h.logger.Info("已完成消费分区中的所有消息（或会话结束）",
		zap.String("topic", topic),
		zap.Int32("partition", partition),
	)
	return nil
}

// processWithRetry 使用指数退避策略执行消息处理函数，并在发生可重试错误时重试。
// 所有重试都失败时返回最后一次的错误；某次尝试成功时返回 nil。
func (h *Handler) processWithRetry(ctx context.Context, message *sarama.ConsumerMessage, handlerFunc MessageHandlerFunc) error {
	bo := backoff.NewExponentialBackOff()
	// 重试次数由 backoff.WithMaxRetries 控制，不设置总时间上限。
	bo.MaxElapsedTime = 0

	retryableOperation := func() error {
		err := handlerFunc(ctx, message)
		if err != nil {
			// 永久性错误（数据验证失败、反序列化失败）重试不会成功，立即停止。
			if isPermanentError(err) {
				h.logger.Error("消息处理遇到永久性错误，将停止重试并标记为最终失败",
					zap.String("topic", message.Topic),
					zap.Int64("offset", message.Offset),
					zap.Int32("partition", message.Partition),
					zap.Error(err),
				)
				return backoff.Permanent(err)
			}
			h.logger.Warn("消息处理失败，将基于退避策略尝试重试",
				zap.String("topic", message.Topic),
				zap.Int64("offset", message.Offset),
				zap.Int32("partition", message.Partition),
				zap.Error(err),
			)
			return err
		}
		return nil
	}

	notifyFunc := func(err error, nextRetryDuration time.Duration) {
		h.logger.Warn("准备重试消息处理操作",
			zap.String("topic", message.Topic),
			zap.Int64("offset", message.Offset),
			zap.Int32("partition", message.Partition),
			zap.Duration("next_retry_in", nextRetryDuration),
			zap.Error(err),
		)
	}

	return backoff.RetryNotify(retryableOperation, backoff.WithMaxRetries(bo, h.maxRetry), notifyFunc)
}

// --- 特定主题的消息处理函数实现 ---

// handleArticleIngestEvent 处理文章摄入主题的消息：
// 反序列化为 models.KafkaArticleIngestEvent，交由 EventService 处理。
func (h *Handler) handleArticleIngestEvent(ctx context.Context, message *sarama.ConsumerMessage) error {
	var event models.KafkaArticleIngestEvent

	if err := json.Unmarshal(message.Value, &event); err != nil {
		// 反序列化失败是永久性的，消息内容不会在重试时发生变化。
		h.logger.Error("反序列化文章摄入事件消息失败，数据格式可能不正确或与模型不匹配",
			zap.String("topic", message.Topic),
			zap.Int64("offset", message.Offset),
			zap.Int32("partition", message.Partition),
			zap.ByteString("raw_value_snippet", message.Value[:min(1024, len(message.Value))]),
			zap.Error(err),
		)
		return backoff.Permanent(fmt.Errorf("反序列化文章摄入事件失败 (主题: %s, 偏移量: %d): %w", message.Topic, message.Offset, err))
	}

	h.logger.Debug("成功反序列化文章摄入事件，准备交由 EventService 处理",
		zap.String("event_article_id", event.ID),
		zap.String("topic", message.Topic),
		zap.Int64("offset", message.Offset),
	)

	return h.eventService.HandleArticleIngestEvent(ctx, event)
}

// handleArticleDeleteEvent 处理文章删除主题的消息：
// 反序列化为 models.KafkaArticleDeleteEvent，验证操作类型后交由 EventService 处理。
func (h *Handler) handleArticleDeleteEvent(ctx context.Context, message *sarama.ConsumerMessage) error {
	var event models.KafkaArticleDeleteEvent

	if err := json.Unmarshal(message.Value, &event); err != nil {
		h.logger.Error("反序列化文章删除事件消息失败，数据格式可能不正确或与模型不匹配",
			zap.String("topic", message.Topic),
			zap.Int64("offset", message.Offset),
			zap.Int32("partition", message.Partition),
			zap.ByteString("raw_value_snippet", message.Value[:min(1024, len(message.Value))]),
			zap.Error(err),
		)
		return backoff.Permanent(fmt.Errorf("反序列化文章删除事件失败 (主题: %s, 偏移量: %d): %w", message.Topic, message.Offset, err))
	}

	// 业务层面的验证：只处理期望的 "delete" 操作。
	// 操作类型不符的消息被视为不适用，跳过而不重试、不送 DLQ。
	expectedOperation := "delete"
	if event.Operation != expectedOperation {
		h.logger.Warn("收到的文章删除事件操作类型与预期不符，将跳过处理此消息",
			zap.String("topic", message.Topic),
			zap.Int64("offset", message.Offset),
			zap.String("event_article_id", event.ArticleID),
			zap.String("received_operation", event.Operation),
			zap.String("expected_operation", expectedOperation),
		)
		return nil
	}

	h.logger.Debug("成功反序列化文章删除事件并验证通过，准备交由 EventService 处理",
		zap.String("event_article_id", event.ArticleID),
		zap.String("topic", message.Topic),
		zap.Int64("offset", message.Offset),
	)

	return h.eventService.HandleArticleDeleteEvent(ctx, event)
}

// isPermanentError 判断给定的错误是否为不应重试的永久性错误：
// 上下文取消/超时、已知的验证类哨兵错误，以及 JSON 反序列化错误。
// 其余错误假定是暂时的（网络波动、ES 临时过载），允许重试。
func isPermanentError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	if errors.Is(err, ErrInvalidArticleID) ||
		errors.Is(err, ErrEmptyTitle) ||
		errors.Is(err, ErrInvalidEventFormat) {
		return true
	}

	var syntaxError *json.SyntaxError
	var unmarshalTypeError *json.UnmarshalTypeError
	if errors.As(err, &syntaxError) || errors.As(err, &unmarshalTypeError) {
		return true
	}

	return false
}

// min 返回两个整数中较小的一个，用于截断日志中的原始消息体。
func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
