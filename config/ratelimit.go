package config

// RedisConfig 定义了 Redis 限流计数后端的连接配置。
// 仅当 rateLimitConfig.store 为 "redis" 时生效。
type RedisConfig struct {
	Addr     string `mapstructure:"addr" json:"addr" yaml:"addr"`             // Redis 地址，例如 "localhost:6379"。
	Password string `mapstructure:"password" json:"password" yaml:"password"` // Redis 密码，可为空。
	DB       int    `mapstructure:"db" json:"db" yaml:"db"`                   // Redis 逻辑库编号。
}

// RateLimitConfig 定义了各订阅等级的每小时请求配额，以及限流计数状态的存储后端。
// 配额在进程启动时注入一次，运行期间不变（见 tier 包的策略表）。
type RateLimitConfig struct {
	// 各等级每小时配额。零值或负值会在 tier.NewRegistry 中回落到默认值。
	BasicHourly int64 `mapstructure:"basicHourly" default:"5"`     // BASIC（免费）等级
	ProHourly   int64 `mapstructure:"proHourly" default:"100"`     // PRO 等级
	UltraHourly int64 `mapstructure:"ultraHourly" default:"1000"`  // ULTRA 等级
	MegaHourly  int64 `mapstructure:"megaHourly" default:"10000"`  // MEGA 等级

	// Store 选择限流窗口计数的存储实现："memory"（默认，进程内分片表）
	// 或 "redis"（多实例部署时共享计数）。两种实现满足同一接口，
	// 调用方无需感知差异。
	Store string `mapstructure:"store" default:"memory"`

	// Redis 后端连接配置，仅 Store == "redis" 时使用。
	Redis RedisConfig `mapstructure:"redis" json:"redis" yaml:"redis"`
}
