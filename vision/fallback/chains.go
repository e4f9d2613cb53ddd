package fallback

import (
	"sort"
	"time"

	"github.com/framesense/framesense/vision"
)

// =============================================================================
// ⛓️ 降级链模板
// =============================================================================

// StepCondition 链步骤类型
type StepCondition string

const (
	// StepPrimary 首选服务
	StepPrimary StepCondition = "primary"
	// StepFallback 备选服务
	StepFallback StepCondition = "fallback"
	// StepCache 感知哈希相似度缓存查找
	StepCache StepCondition = "cache"
	// StepError 终态：必然"成功"的结构化降级响应
	StepError StepCondition = "error"
)

// RetryPolicy 单个服务的重试策略，固定间隔
type RetryPolicy struct {
	MaxRetries int           `yaml:"max_retries" json:"max_retries"`
	Backoff    time.Duration `yaml:"backoff" json:"backoff"`
}

// ChainEntry 降级链步骤，按请求构建后即用即弃
type ChainEntry struct {
	ServiceID   string        `yaml:"service_id" json:"service_id"`
	Priority    int           `yaml:"priority" json:"priority"`
	Reliability float64       `yaml:"reliability" json:"reliability"`
	Retry       RetryPolicy   `yaml:"retry" json:"retry"`
	Condition   StepCondition `yaml:"condition" json:"condition"`
}

// serviceMinTiers 各服务的最低可用层级
var serviceMinTiers = map[string]vision.Tier{
	"OCR_RESULTS":     vision.TierFree,
	"VISION_ANALYSIS": vision.TierFree,
	"QUICK_ANSWERS":   vision.TierFree,
	"FACE_DETECTION":  vision.TierPro,
	"LLM_VISION":      vision.TierFree,
}

// DefaultChains 返回按问题类型组织的链模板
// 每条模板以服务步骤开始，以 cache 与 error 步骤结束
func DefaultChains() map[string][]ChainEntry {
	quickRetry := RetryPolicy{MaxRetries: 1, Backoff: 200 * time.Millisecond}
	stdRetry := RetryPolicy{MaxRetries: 2, Backoff: 500 * time.Millisecond}

	return map[string][]ChainEntry{
		"READ_TEXT": {
			{ServiceID: "OCR_RESULTS", Priority: 1, Reliability: 0.95, Retry: quickRetry, Condition: StepPrimary},
			{ServiceID: "VISION_ANALYSIS", Priority: 2, Reliability: 0.9, Retry: stdRetry, Condition: StepFallback},
			{ServiceID: "LLM_VISION", Priority: 3, Reliability: 0.85, Retry: stdRetry, Condition: StepFallback},
			{Priority: 4, Condition: StepCache},
			{Priority: 5, Condition: StepError},
		},
		"DESCRIBE_SCENE": {
			{ServiceID: "VISION_ANALYSIS", Priority: 1, Reliability: 0.9, Retry: stdRetry, Condition: StepPrimary},
			{ServiceID: "LLM_VISION", Priority: 2, Reliability: 0.85, Retry: stdRetry, Condition: StepFallback},
			{Priority: 3, Condition: StepCache},
			{Priority: 4, Condition: StepError},
		},
		"QUICK_ANSWER": {
			{ServiceID: "QUICK_ANSWERS", Priority: 1, Reliability: 0.95, Retry: quickRetry, Condition: StepPrimary},
			{ServiceID: "VISION_ANALYSIS", Priority: 2, Reliability: 0.9, Retry: stdRetry, Condition: StepFallback},
			{Priority: 3, Condition: StepCache},
			{Priority: 4, Condition: StepError},
		},
		"IDENTIFY_FACES": {
			{ServiceID: "FACE_DETECTION", Priority: 1, Reliability: 0.9, Retry: stdRetry, Condition: StepPrimary},
			{ServiceID: "VISION_ANALYSIS", Priority: 2, Reliability: 0.85, Retry: stdRetry, Condition: StepFallback},
			{Priority: 3, Condition: StepCache},
			{Priority: 4, Condition: StepError},
		},
		"EXPLAIN_TOPIC": {
			{ServiceID: "LLM_VISION", Priority: 1, Reliability: 0.85, Retry: stdRetry, Condition: StepPrimary},
			{ServiceID: "VISION_ANALYSIS", Priority: 2, Reliability: 0.9, Retry: stdRetry, Condition: StepFallback},
			{Priority: 3, Condition: StepCache},
			{Priority: 4, Condition: StepError},
		},
		"TRANSLATE_TEXT": {
			{ServiceID: "LLM_VISION", Priority: 1, Reliability: 0.85, Retry: stdRetry, Condition: StepPrimary},
			{ServiceID: "OCR_RESULTS", Priority: 2, Reliability: 0.95, Retry: quickRetry, Condition: StepFallback},
			{Priority: 3, Condition: StepCache},
			{Priority: 4, Condition: StepError},
		},
	}
}

// genericChain 未注册问题类型的兜底链
func genericChain() []ChainEntry {
	return []ChainEntry{
		{ServiceID: "VISION_ANALYSIS", Priority: 1, Reliability: 0.9,
			Retry: RetryPolicy{MaxRetries: 2, Backoff: 500 * time.Millisecond}, Condition: StepPrimary},
		{Priority: 2, Condition: StepCache},
		{Priority: 3, Condition: StepError},
	}
}

// BuildChain 为 (问题类型, 首选服务, 用户层级) 构建可执行降级链
// 模板先按层级过滤服务步骤，再把已尝试的首选服务排到最前
func (m *Manager) BuildChain(questionTypeID, primaryServiceID string, userTier vision.Tier) []ChainEntry {
	template, ok := m.chains[questionTypeID]
	if !ok {
		template = genericChain()
	}

	chain := make([]ChainEntry, 0, len(template))
	for _, entry := range template {
		if entry.Condition == StepPrimary || entry.Condition == StepFallback {
			if minTier, known := serviceMinTiers[entry.ServiceID]; known && !userTier.AtLeast(minTier) {
				continue
			}
		}
		chain = append(chain, entry)
	}

	sort.SliceStable(chain, func(i, j int) bool {
		// 首选服务优先，其余按模板优先级
		iPrimary := chain[i].ServiceID == primaryServiceID && chain[i].ServiceID != ""
		jPrimary := chain[j].ServiceID == primaryServiceID && chain[j].ServiceID != ""
		if iPrimary != jPrimary {
			return iPrimary
		}
		return chain[i].Priority < chain[j].Priority
	})
	return chain
}
