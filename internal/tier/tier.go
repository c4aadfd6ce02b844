// Package tier 将订阅等级建模为封闭枚举，并为每个等级关联一份策略记录
// （每小时配额、内容可见性）。等级在每个请求开始时解析一次，
// 之后显式传递给限流器和内容门控，避免散落的字符串比较。
package tier

import (
	"strings"

	"github.com/Xushengqwer/news_gateway/config"
)

// Tier 是订阅等级的封闭枚举。新增等级只需扩展此处和策略表。
type Tier int

const (
	Basic Tier = iota // 免费等级。
	Pro
	Ultra
	Mega
)

// String 返回等级的对外名称（小写），用于响应头和日志。
func (t Tier) String() string {
	switch t {
	case Pro:
		return "pro"
	case Ultra:
		return "ultra"
	case Mega:
		return "mega"
	default:
		return "basic"
	}
}

// Policy 是与单个等级关联的策略记录。进程启动时构建，运行期间不变。
type Policy struct {
	HourlyQuota int64 // 每小时请求配额，> 0。
	FullContent bool  // 是否返回完整正文；false 时正文被截断。
	NLPEntities bool  // 是否返回 NLP 实体标注；false 时实体被置空。
	MaxPageSize int   // 单页最大返回条数。
}

// 各等级的默认每小时配额，在配置缺失或非法时使用。
const (
	defaultBasicQuota = 5
	defaultProQuota   = 100
	defaultUltraQuota = 1000
	defaultMegaQuota  = 10000
)

// Registry 持有完整的等级→策略映射表。只读，可被任意多个 goroutine 并发使用。
type Registry struct {
	policies [4]Policy
}

// NewRegistry 根据配置中注入的配额构建策略表。
// 非正配额回落到该等级的默认值，保证 HourlyQuota > 0 的不变式始终成立。
func NewRegistry(cfg config.RateLimitConfig) *Registry {
	quota := func(configured, fallback int64) int64 {
		if configured > 0 {
			return configured
		}
		return fallback
	}

	return &Registry{
		policies: [4]Policy{
			Basic: {
				HourlyQuota: quota(cfg.BasicHourly, defaultBasicQuota),
				FullContent: false,
				NLPEntities: false,
				MaxPageSize: 10,
			},
			Pro: {
				HourlyQuota: quota(cfg.ProHourly, defaultProQuota),
				FullContent: true,
				NLPEntities: false,
				MaxPageSize: 25,
			},
			Ultra: {
				HourlyQuota: quota(cfg.UltraHourly, defaultUltraQuota),
				FullContent: true,
				NLPEntities: true,
				MaxPageSize: 50,
			},
			Mega: {
				HourlyQuota: quota(cfg.MegaHourly, defaultMegaQuota),
				FullContent: true,
				NLPEntities: true,
				MaxPageSize: 100,
			},
		},
	}
}

// Resolve 将订阅请求头的值解析为等级。
// 大小写不敏感；"CUSTOM" 是产品合同中 MEGA 的别名；
// 未知值或缺失的请求头一律回落到 BASIC（向最低权限开放，而不是报错拒绝，
// 保证无 Key 的评估调用可用）。
func (r *Registry) Resolve(headerValue string) Tier {
	switch strings.ToUpper(strings.TrimSpace(headerValue)) {
	case "PRO":
		return Pro
	case "ULTRA":
		return Ultra
	case "MEGA", "CUSTOM":
		return Mega
	default:
		return Basic
	}
}

// Policy 返回指定等级的策略记录。
func (r *Registry) Policy(t Tier) Policy {
	if t < Basic || t > Mega {
		t = Basic
	}
	return r.policies[t]
}
