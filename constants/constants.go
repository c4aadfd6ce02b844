package constants

// 服务级常量，供 main、router 和追踪组件引用。
const (
	// ServiceName 是注册到分布式追踪和日志系统的服务名称。
	ServiceName = "news-gateway"

	// ServiceVersion 是当前服务版本号，与 API 文档保持一致。
	ServiceVersion = "1.1.0"
)

// HTTP 请求头常量。
// 网关信任代理层注入的订阅头与用户头（见配置中的代理密钥校验），
// 不在此之外做任何鉴权。
const (
	// HeaderSubscriptionTier 携带调用方的订阅等级 (BASIC|PRO|ULTRA|MEGA)。
	HeaderSubscriptionTier = "X-RapidAPI-Subscription"

	// HeaderAPIUser 携带调用方的用户标识，作为限流计数的 Key。
	HeaderAPIUser = "X-RapidAPI-User"

	// AnonymousUser 是用户头缺失时使用的默认限流 Key。
	AnonymousUser = "anonymous"
)
