package tier

import (
	"testing"

	"github.com/Xushengqwer/news_gateway/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	registry := NewRegistry(config.RateLimitConfig{})

	testCases := []struct {
		name        string
		headerValue string
		expected    Tier
	}{
		{"小写 pro", "pro", Pro},
		{"大写 PRO", "PRO", Pro},
		{"混合大小写 Ultra", "UlTrA", Ultra},
		{"mega", "mega", Mega},
		{"CUSTOM 是 MEGA 的别名", "CUSTOM", Mega},
		{"小写 custom 同样生效", "custom", Mega},
		{"basic", "BASIC", Basic},
		{"带空白字符", "  pro  ", Pro},
		{"未知值回落到 basic", "enterprise", Basic},
		{"空请求头回落到 basic", "", Basic},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, registry.Resolve(tc.headerValue))
		})
	}
}

func TestNewRegistry_DefaultQuotas(t *testing.T) {
	// 零值配置时各等级使用默认配额。
	registry := NewRegistry(config.RateLimitConfig{})

	assert.Equal(t, int64(5), registry.Policy(Basic).HourlyQuota)
	assert.Equal(t, int64(100), registry.Policy(Pro).HourlyQuota)
	assert.Equal(t, int64(1000), registry.Policy(Ultra).HourlyQuota)
	assert.Equal(t, int64(10000), registry.Policy(Mega).HourlyQuota)
}

func TestNewRegistry_ConfiguredQuotas(t *testing.T) {
	registry := NewRegistry(config.RateLimitConfig{
		BasicHourly: 7,
		ProHourly:   70,
		UltraHourly: 700,
		MegaHourly:  7000,
	})

	assert.Equal(t, int64(7), registry.Policy(Basic).HourlyQuota)
	assert.Equal(t, int64(70), registry.Policy(Pro).HourlyQuota)
	assert.Equal(t, int64(700), registry.Policy(Ultra).HourlyQuota)
	assert.Equal(t, int64(7000), registry.Policy(Mega).HourlyQuota)
}

func TestNewRegistry_NonPositiveQuotaFallsBack(t *testing.T) {
	// 非正配额不得进入策略表，否则限流器会把所有请求拒之门外。
	registry := NewRegistry(config.RateLimitConfig{
		BasicHourly: -1,
		ProHourly:   0,
	})

	assert.Equal(t, int64(5), registry.Policy(Basic).HourlyQuota)
	assert.Equal(t, int64(100), registry.Policy(Pro).HourlyQuota)
}

func TestPolicy_ContentVisibility(t *testing.T) {
	registry := NewRegistry(config.RateLimitConfig{})

	basic := registry.Policy(Basic)
	require.False(t, basic.FullContent)
	require.False(t, basic.NLPEntities)
	assert.Equal(t, 10, basic.MaxPageSize)

	pro := registry.Policy(Pro)
	require.True(t, pro.FullContent)
	require.False(t, pro.NLPEntities)
	assert.Equal(t, 25, pro.MaxPageSize)

	ultra := registry.Policy(Ultra)
	require.True(t, ultra.FullContent)
	require.True(t, ultra.NLPEntities)
	assert.Equal(t, 50, ultra.MaxPageSize)

	mega := registry.Policy(Mega)
	require.True(t, mega.FullContent)
	require.True(t, mega.NLPEntities)
	assert.Equal(t, 100, mega.MaxPageSize)
}

func TestPolicy_OutOfRangeTierClampsToBasic(t *testing.T) {
	registry := NewRegistry(config.RateLimitConfig{})

	assert.Equal(t, registry.Policy(Basic), registry.Policy(Tier(-1)))
	assert.Equal(t, registry.Policy(Basic), registry.Policy(Tier(99)))
}

func TestTierString(t *testing.T) {
	assert.Equal(t, "basic", Basic.String())
	assert.Equal(t, "pro", Pro.String())
	assert.Equal(t, "ultra", Ultra.String())
	assert.Equal(t, "mega", Mega.String())
	assert.Equal(t, "basic", Tier(42).String())
}
