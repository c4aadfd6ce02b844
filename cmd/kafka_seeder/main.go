package main

import (
	"encoding/json"
	"flag"
	"log" // 标准日志库，用于早期错误输出
	"path/filepath"
	"time"

	"github.com/IBM/sarama"
	"github.com/Xushengqwer/go-common/core"
	"github.com/Xushengqwer/news_gateway/config"
	internalKafka "github.com/Xushengqwer/news_gateway/internal/core/kafka" // 为内部 kafka 包使用别名
	"github.com/Xushengqwer/news_gateway/internal/models"
	"go.uber.org/zap"
)

func main() {
	// --- 0. 配置和基础设置 ---
	var configFile string
	defaultConfigPath := filepath.Join("..", "..", "config", "config.development.yaml")

	flag.StringVar(&configFile, "config", defaultConfigPath, "指定配置文件的路径 (相对于当前工作目录或绝对路径)")
	flag.Parse()

	if !filepath.IsAbs(configFile) {
		absPath, err := filepath.Abs(configFile)
		if err != nil {
			log.Fatalf("无法将配置文件路径 '%s' 转换为绝对路径: %v", configFile, err)
		}
		configFile = absPath
	}
	log.Printf("使用的配置文件: %s", configFile)

	// --- 1. 加载配置 ---
	var cfg config.NewsGatewayConfig
	if err := core.LoadConfig(configFile, &cfg); err != nil {
		log.Fatalf("致命错误: 加载配置文件 '%s' 失败: %v", configFile, err)
	}
	log.Println("配置文件加载成功。")

	// --- 2. 初始化 Logger ---
	logger, loggerErr := core.NewZapLogger(cfg.ZapConfig)
	if loggerErr != nil {
		log.Fatalf("致命错误: 初始化 ZapLogger 失败: %v", loggerErr)
	}
	defer func() {
		logger.Info("正在同步所有日志条目...")
		if err := logger.Logger().Sync(); err != nil {
			log.Printf("警告: ZapLogger Sync 操作失败: %v\n", err)
		}
	}()
	logger.Info("Kafka Seeder 的 Zap Logger 初始化成功。")

	// --- 3. 准备 Kafka 生产者 ---
	kafkaCfg := cfg.KafkaConfig
	if len(kafkaCfg.SubscribedTopics) < 2 {
		logger.Fatal("Kafka 配置错误：subscribedTopics 至少需要包含两个主题 (一个用于文章摄入，一个用于删除)。")
	}

	ingestTopic := kafkaCfg.SubscribedTopics[0] // 第一个主题用于文章摄入事件
	deleteTopic := kafkaCfg.SubscribedTopics[1] // 第二个主题用于文章删除事件

	logger.Info("Kafka Seeder 将使用以下主题",
		zap.String("摄入事件主题", ingestTopic),
		zap.String("删除事件主题", deleteTopic),
	)

	saramaConfig, err := internalKafka.ConfigureSarama(kafkaCfg, logger)
	if err != nil {
		logger.Fatal("配置 Sarama (Kafka 客户端库) 失败", zap.Error(err))
	}

	producer, err := sarama.NewSyncProducer(kafkaCfg.Brokers, saramaConfig)
	if err != nil {
		logger.Fatal("创建 Kafka 同步生产者 (SyncProducer) 失败", zap.Error(err))
	}
	defer func() {
		logger.Info("正在关闭 Kafka 同步生产者...")
		if err := producer.Close(); err != nil {
			logger.Error("关闭 Kafka 同步生产者时发生错误", zap.Error(err))
		} else {
			logger.Info("Kafka 同步生产者已成功关闭。")
		}
	}()
	logger.Info("Kafka 同步生产者 (SyncProducer) 初始化成功并已连接。", zap.Strings("Brokers地址", kafkaCfg.Brokers))

	// --- 4. 定义文章摄入的测试数据 ---
	now := time.Now().UTC()
	testIngestEvents := []models.KafkaArticleIngestEvent{
		{
			ID:            "seed-article-001",
			Title:         "Central Bank Holds Interest Rates Steady Amid Inflation Concerns",
			Content:       "The central bank announced on Tuesday that it would keep its benchmark interest rate unchanged, citing persistent inflation pressures and a resilient labor market. Economists had been divided on whether policymakers would opt for a cut this quarter. In a statement following the two-day meeting, the committee noted that while headline inflation has cooled from its peak, core prices remain sticky in the services sector.",
			Author:        "Maria Keller",
			Source:        "global-finance-daily",
			URL:           "https://example.com/news/central-bank-holds-rates",
			HeadlineImage: "https://example.com/img/central-bank.jpg",
			Tags:          []string{"economy", "interest-rates", "inflation"},
			PublishedAt:   now.Add(-2 * time.Hour),
			Annotate: &models.ArticleAnnotation{
				Sentiment: &models.LabelScore{Label: "neutral", Score: 0.81},
				Emotion:   &models.LabelScore{Label: "anticipation", Score: 0.64},
				Entities: []models.EntityAnnotation{
					{Word: "Central Bank", EntityGroup: "ORG", Score: 0.97},
					{Word: "Maria Keller", EntityGroup: "PER", Score: 0.92},
				},
			},
		},
		{
			ID:            "seed-article-002",
			Title:         "Breakthrough Solar Cell Design Promises Cheaper Renewable Power",
			Content:       "Researchers unveiled a perovskite-silicon tandem solar cell with a record conversion efficiency, a development that could significantly lower the cost of utility-scale solar installations within the decade.",
			Author:        "Tom Iwata",
			Source:        "tech-horizon",
			URL:           "https://example.com/news/solar-cell-breakthrough",
			Tags:          []string{"energy", "science", "climate"},
			PublishedAt:   now.Add(-26 * time.Hour),
			Annotate: &models.ArticleAnnotation{
				Sentiment: &models.LabelScore{Label: "positive", Score: 0.93},
				Emotion:   &models.LabelScore{Label: "joy", Score: 0.71},
				Entities: []models.EntityAnnotation{
					{Word: "perovskite", EntityGroup: "MISC", Score: 0.88},
				},
			},
		},
		{
			ID:          "seed-article-003",
			Title:       "Coastal City Braces for Third Storm Surge This Month",
			Content:     "Emergency services issued evacuation advisories for low-lying districts as forecasters warned of another powerful storm system approaching the coastline over the weekend.",
			Author:      "Priya Nair",
			Source:      "metro-wire",
			URL:         "https://example.com/news/coastal-storm-surge",
			Tags:        []string{"weather", "climate"},
			PublishedAt: now.Add(-5 * time.Hour),
			// 标注管道尚未处理这篇文章，Annotate 缺失属于正常情况。
		},
		{
			ID:            "seed-article-004",
			Title:         "Midfield Maestro Signs Record Contract Extension",
			Content:       "The club confirmed a five-year contract extension for its star midfielder, ending months of transfer speculation and making him the highest-paid player in the league's history.",
			Author:        "Diego Fuentes",
			Source:        "sportsline",
			URL:           "https://example.com/news/midfielder-contract",
			HeadlineImage: "https://example.com/img/midfielder.jpg",
			Tags:          []string{"sports", "football"},
			PublishedAt:   now.Add(-49 * time.Hour),
			Annotate: &models.ArticleAnnotation{
				Sentiment: &models.LabelScore{Label: "positive", Score: 0.87},
				Emotion:   &models.LabelScore{Label: "joy", Score: 0.79},
				Entities: []models.EntityAnnotation{
					{Word: "Diego Fuentes", EntityGroup: "PER", Score: 0.95},
				},
			},
		},
	}

	// --- 5. 发送文章摄入事件到 Kafka ---
	logger.Info("开始发送文章摄入事件到 Kafka...", zap.Int("消息数量", len(testIngestEvents)))
	for _, ingestEvent := range testIngestEvents {
		payloadBytes, err := json.Marshal(ingestEvent)
		if err != nil {
			logger.Error("序列化 KafkaArticleIngestEvent 为 JSON 时发生错误",
				zap.String("文章ID", ingestEvent.ID),
				zap.Error(err))
			continue
		}
		// 以文章 ID 作为消息键，保证同一文章的事件落在同一分区、保持顺序。
		msg := &sarama.ProducerMessage{
			Topic: ingestTopic,
			Key:   sarama.StringEncoder(ingestEvent.ID),
			Value: sarama.ByteEncoder(payloadBytes),
		}
		logger.Debug("准备发送的消息详情 (文章摄入)",
			zap.String("消息键(Key)", ingestEvent.ID),
			zap.ByteString("消息体片段(Value snippet)", payloadBytes[:min(100, len(payloadBytes))]))
		partition, offset, err := producer.SendMessage(msg)
		if err != nil {
			logger.Error("发送文章摄入事件到 Kafka 失败",
				zap.String("目标主题", ingestTopic),
				zap.String("文章ID", ingestEvent.ID),
				zap.Error(err),
			)
		} else {
			logger.Info("文章摄入事件成功发送到 Kafka",
				zap.String("目标主题", ingestTopic),
				zap.String("文章ID", ingestEvent.ID),
				zap.Int32("分区(Partition)", partition),
				zap.Int64("偏移量(Offset)", offset),
			)
		}
		time.Sleep(100 * time.Millisecond)
	}
	logger.Info("所有文章摄入事件已发送（或已尝试发送）到 Kafka。")

	// --- 6. 定义文章删除的测试数据 ---
	// 删除上面刚摄入的一篇文章，以及一个并不存在的 ID，用于验证删除的幂等性。
	testDeleteEvents := []models.KafkaArticleDeleteEvent{
		{
			Operation: "delete",
			ArticleID: "seed-article-004",
		},
		{
			Operation: "delete",
			ArticleID: "seed-article-missing",
		},
	}

	// --- 7. 发送文章删除事件到 Kafka ---
	logger.Info("开始发送文章删除事件到 Kafka...", zap.Int("消息数量", len(testDeleteEvents)))
	for _, deleteEvent := range testDeleteEvents {
		payloadBytes, err := json.Marshal(deleteEvent)
		if err != nil {
			logger.Error("序列化 KafkaArticleDeleteEvent 为 JSON 时发生错误",
				zap.String("文章ID", deleteEvent.ArticleID),
				zap.Error(err))
			continue
		}
		msg := &sarama.ProducerMessage{
			Topic: deleteTopic,
			Key:   sarama.StringEncoder(deleteEvent.ArticleID),
			Value: sarama.ByteEncoder(payloadBytes),
		}
		partition, offset, err := producer.SendMessage(msg)
		if err != nil {
			logger.Error("发送文章删除事件到 Kafka 失败",
				zap.String("目标主题", deleteTopic),
				zap.String("文章ID", deleteEvent.ArticleID),
				zap.Error(err),
			)
		} else {
			logger.Info("文章删除事件成功发送到 Kafka",
				zap.String("目标主题", deleteTopic),
				zap.String("文章ID", deleteEvent.ArticleID),
				zap.Int32("分区(Partition)", partition),
				zap.Int64("偏移量(Offset)", offset),
			)
		}
		time.Sleep(100 * time.Millisecond)
	}
	logger.Info("所有文章删除事件已发送（或已尝试发送）到 Kafka。")

	logger.Info("所有测试数据均已处理完毕。")
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
