// 版权所有 2024 FrameSense Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

// 包 access 校验 (问题类型, 用户画像) 的配额/预算/层级准入。
package access

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/framesense/framesense/vision"
)

// =============================================================================
// 🔐 层级准入控制
// =============================================================================

// TierLimits 每层级的配额表
type TierLimits struct {
	// DailyRequests 每日请求上限，0 表示不限
	DailyRequests int `yaml:"daily_requests" json:"daily_requests"`
	// MonthlyRequests 每月请求上限，0 表示不限
	MonthlyRequests int `yaml:"monthly_requests" json:"monthly_requests"`
	// MaxImageBytes 单张图像字节上限
	MaxImageBytes int `yaml:"max_image_bytes" json:"max_image_bytes"`
	// MaxConcurrent 并发请求上限
	MaxConcurrent int `yaml:"max_concurrent" json:"max_concurrent"`
	// RequestsPerSecond 突发限速
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`
}

// DefaultTierLimits 返回内置配额表
func DefaultTierLimits() map[vision.Tier]TierLimits {
	return map[vision.Tier]TierLimits{
		vision.TierFree: {
			DailyRequests:     50,
			MonthlyRequests:   1000,
			MaxImageBytes:     2 << 20, // 2MiB
			MaxConcurrent:     2,
			RequestsPerSecond: 1,
		},
		vision.TierPro: {
			DailyRequests:     1000,
			MonthlyRequests:   20000,
			MaxImageBytes:     8 << 20,
			MaxConcurrent:     5,
			RequestsPerSecond: 5,
		},
		vision.TierPremium: {
			DailyRequests:     5000,
			MonthlyRequests:   100000,
			MaxImageBytes:     16 << 20,
			MaxConcurrent:     10,
			RequestsPerSecond: 20,
		},
		vision.TierEnterprise: {
			DailyRequests:     0,
			MonthlyRequests:   0,
			MaxImageBytes:     64 << 20,
			MaxConcurrent:     50,
			RequestsPerSecond: 100,
		},
	}
}

// normalizeMonotone 把配额表沿层级升序钳制为单调不减
// 各字段 0 表示不限，视为最大值；低层级不限时高层级同样不限
func normalizeMonotone(limits map[vision.Tier]TierLimits) map[vision.Tier]TierLimits {
	tiers := make([]vision.Tier, 0, len(limits))
	for t := range limits {
		tiers = append(tiers, t)
	}
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].Level() < tiers[j].Level() })

	out := make(map[vision.Tier]TierLimits, len(limits))
	var floor TierLimits
	for i, t := range tiers {
		cur := limits[t]
		if i > 0 {
			cur.DailyRequests = monotoneInt(floor.DailyRequests, cur.DailyRequests)
			cur.MonthlyRequests = monotoneInt(floor.MonthlyRequests, cur.MonthlyRequests)
			cur.MaxImageBytes = monotoneInt(floor.MaxImageBytes, cur.MaxImageBytes)
			cur.MaxConcurrent = monotoneInt(floor.MaxConcurrent, cur.MaxConcurrent)
			cur.RequestsPerSecond = monotoneFloat(floor.RequestsPerSecond, cur.RequestsPerSecond)
		}
		out[t] = cur
		floor = cur
	}
	return out
}

func monotoneInt(lower, cur int) int {
	if lower == 0 || cur == 0 {
		return 0
	}
	if cur < lower {
		return lower
	}
	return cur
}

func monotoneFloat(lower, cur float64) float64 {
	if lower == 0 || cur == 0 {
		return 0
	}
	if cur < lower {
		return lower
	}
	return cur
}

// Decision 准入结果：拒绝时带结构化原因与建议层级，从不是裸布尔
type Decision struct {
	Allowed       bool              `json:"allowed"`
	Reason        vision.DenyReason `json:"reason,omitempty"`
	SuggestedTier vision.Tier       `json:"suggested_tier,omitempty"`
	Detail        string            `json:"detail,omitempty"`
}

// Controller 层级准入控制器
type Controller struct {
	limits map[vision.Tier]TierLimits
	users  vision.UserStore
	logger *zap.Logger

	// 每用户并发计数与限速器
	mu       sync.Mutex
	active   map[string]int
	limiters map[string]*rate.Limiter
}

// New 创建准入控制器；users 允许为 nil（跳过使用量追踪）
// 配额表沿层级梯度钳制为单调不减，升级层级不会反而缩水配额
func New(limits map[vision.Tier]TierLimits, users vision.UserStore, logger *zap.Logger) *Controller {
	if limits == nil {
		limits = DefaultTierLimits()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		limits:   normalizeMonotone(limits),
		users:    users,
		logger:   logger.With(zap.String("component", "tier_access")),
		active:   make(map[string]int),
		limiters: make(map[string]*rate.Limiter),
	}
}

// ValidateAccess 校验准入，按序检查：层级 → 日配额 → 月配额 → 图像大小 → 并发
func (c *Controller) ValidateAccess(qt vision.QuestionType, profile *vision.UserTierProfile, imageBytes int) Decision {
	tier := profile.Tier
	if !tier.Valid() {
		tier = vision.TierFree
	}
	limits := c.limits[tier]

	if !tier.AtLeast(qt.MinimumTier) {
		return Decision{
			Allowed:       false,
			Reason:        vision.DenyTierInsufficient,
			SuggestedTier: qt.MinimumTier,
			Detail:        "question type requires tier " + string(qt.MinimumTier),
		}
	}

	if limits.DailyRequests > 0 && profile.DailyRequestCount >= limits.DailyRequests {
		return Decision{
			Allowed:       false,
			Reason:        vision.DenyDailyLimit,
			SuggestedTier: c.tierForDailyCount(profile.DailyRequestCount),
			Detail:        "daily request limit reached",
		}
	}

	if limits.MonthlyRequests > 0 && profile.MonthlyRequestCount >= limits.MonthlyRequests {
		return Decision{
			Allowed:       false,
			Reason:        vision.DenyMonthlyLimit,
			SuggestedTier: c.tierForMonthlyCount(profile.MonthlyRequestCount),
			Detail:        "monthly request limit reached",
		}
	}

	if limits.MaxImageBytes > 0 && imageBytes > limits.MaxImageBytes {
		return Decision{
			Allowed:       false,
			Reason:        vision.DenySizeLimit,
			SuggestedTier: c.tierForImageSize(imageBytes),
			Detail:        "image exceeds tier size limit",
		}
	}

	if !c.admitConcurrent(profile.UserID, limits) {
		return Decision{
			Allowed:       false,
			Reason:        vision.DenyConcurrencyLimit,
			SuggestedTier: nextTier(tier),
			Detail:        "too many concurrent requests",
		}
	}

	return Decision{Allowed: true}
}

// Release 在请求结束时释放并发槽位
func (c *Controller) Release(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active[userID] > 0 {
		c.active[userID]--
	}
	if c.active[userID] == 0 {
		delete(c.active, userID)
	}
}

// TrackAccess 异步记录一次成功访问；追踪失败只记日志，不影响请求
func (c *Controller) TrackAccess(userID, questionType, serviceID string, cost float64) {
	if c.users == nil {
		return
	}
	go func() {
		if err := c.users.RecordUsage(context.Background(), userID, questionType, serviceID, cost); err != nil {
			c.logger.Warn("Usage tracking failed",
				zap.String("user_id", userID),
				zap.String("question_type", questionType),
				zap.Error(err))
		}
	}()
}

// admitConcurrent 并发与限速检查，通过时占用一个槽位
func (c *Controller) admitConcurrent(userID string, limits TierLimits) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if limits.MaxConcurrent > 0 && c.active[userID] >= limits.MaxConcurrent {
		return false
	}

	if limits.RequestsPerSecond > 0 {
		limiter, ok := c.limiters[userID]
		if !ok {
			burst := int(limits.RequestsPerSecond)
			if burst < 1 {
				burst = 1
			}
			limiter = rate.NewLimiter(rate.Limit(limits.RequestsPerSecond), burst)
			c.limiters[userID] = limiter
		}
		if !limiter.Allow() {
			return false
		}
	}

	c.active[userID]++
	return true
}

// tierForDailyCount 返回日配额能容纳 count 的最低层级
func (c *Controller) tierForDailyCount(count int) vision.Tier {
	return c.lowestTier(func(l TierLimits) bool {
		return l.DailyRequests == 0 || count < l.DailyRequests
	})
}

func (c *Controller) tierForMonthlyCount(count int) vision.Tier {
	return c.lowestTier(func(l TierLimits) bool {
		return l.MonthlyRequests == 0 || count < l.MonthlyRequests
	})
}

func (c *Controller) tierForImageSize(size int) vision.Tier {
	return c.lowestTier(func(l TierLimits) bool {
		return l.MaxImageBytes == 0 || size <= l.MaxImageBytes
	})
}

// lowestTier 按层级升序找到第一个满足条件的层级，无解时返回 enterprise
func (c *Controller) lowestTier(fits func(TierLimits) bool) vision.Tier {
	tiers := make([]vision.Tier, 0, len(c.limits))
	for t := range c.limits {
		tiers = append(tiers, t)
	}
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].Level() < tiers[j].Level() })

	for _, t := range tiers {
		if fits(c.limits[t]) {
			return t
		}
	}
	return vision.TierEnterprise
}

func nextTier(t vision.Tier) vision.Tier {
	switch t {
	case vision.TierFree:
		return vision.TierPro
	case vision.TierPro:
		return vision.TierPremium
	default:
		return vision.TierEnterprise
	}
}
