package router

import (
	"time"

	"github.com/Xushengqwer/go-common/core"
	commonMiddleware "github.com/Xushengqwer/go-common/middleware"
	"github.com/Xushengqwer/news_gateway/config"
	"github.com/Xushengqwer/news_gateway/constants"
	"github.com/Xushengqwer/news_gateway/internal/api"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	otelgin "go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

// SetupRouter 初始化并配置 Gin 引擎，为新闻网关服务注册所有中间件和路由。
// 作为应用路由配置的统一入口点：应用全局中间件（日志、错误恢复、超时、追踪），
// 创建 /api/v1 分组，并把已实例化的 NewsHandler 的路由注册到分组下。
func SetupRouter(
	logger *core.ZapLogger,
	cfg *config.NewsGatewayConfig,
	newsHandler *api.NewsHandler,
) *gin.Engine {
	logger.Info("开始为新闻网关服务设置 Gin 路由...")

	// gin.Default() 默认启用 Logger 和 Recovery 中间件。
	router := gin.Default()

	// 中间件的注册顺序有意义，追踪中间件放在最前面。
	router.Use(otelgin.Middleware(constants.ServiceName))
	logger.Info("OpenTelemetry (OTel) 中间件已注册。", zap.String("service_name", constants.ServiceName))

	router.Use(commonMiddleware.ErrorHandlingMiddleware(logger))
	logger.Info("全局错误处理 (Panic Recovery) 中间件已注册。")

	if baseLogger := logger.Logger(); baseLogger != nil {
		router.Use(commonMiddleware.RequestLoggerMiddleware(baseLogger))
		logger.Info("请求日志中间件已注册。")
	} else {
		logger.Warn("无法获取底层的 *zap.Logger 实例，跳过请求日志中间件的注册。")
	}

	// 请求超时：配置缺失或非法时使用 10 秒默认值。
	var requestTimeout time.Duration
	if cfg.Server.RequestTimeout > 0 {
		requestTimeout = cfg.Server.RequestTimeout
		logger.Info("从配置文件中加载请求超时设置。", zap.Duration("configured_timeout", requestTimeout))
	} else {
		logger.Warn("配置文件中的请求超时 (server.requestTimeout) 无效或未设置，将使用默认超时10秒。",
			zap.Duration("parsed_duration_from_config", cfg.Server.RequestTimeout),
		)
		requestTimeout = 10 * time.Second
	}
	router.Use(commonMiddleware.RequestTimeoutMiddleware(logger, requestTimeout))
	logger.Info("请求超时中间件已注册。", zap.Duration("timeout_duration", requestTimeout))

	apiV1Group := router.Group("/api/v1")
	logger.Info("API 路由将统一注册到基础路径 /api/v1 分组下。")

	if newsHandler != nil {
		newsHandler.RegisterRoutes(apiV1Group)
		logger.Info("NewsHandler 的相关路由已成功注册到 /api/v1 分组。")
	} else {
		logger.Error("NewsHandler 实例为 nil，其 API 路由无法注册！")
		panic("致命错误：NewsHandler 未初始化，无法注册 API 路由。")
	}

	// Swagger UI，通过 /swagger/index.html 访问 API 文档。
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	logger.Info("Swagger UI 路由已注册。")

	logger.Info("新闻网关服务的 Gin 路由设置已全部完成。")
	return router
}
