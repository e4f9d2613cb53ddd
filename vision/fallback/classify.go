package fallback

import (
	"strings"

	"github.com/framesense/framesense/vision"
)

// =============================================================================
// 🏷️ 上游错误分类
// =============================================================================

// Classification 错误分类结果：驱动重试策略与用户可见消息
type Classification struct {
	Kind      vision.FailureKind
	Retryable bool
	Message   string
	Actions   []string
}

// classificationRule 消息模式到分类的映射
type classificationRule struct {
	patterns  []string
	kind      vision.FailureKind
	retryable bool
	message   string
	actions   []string
}

// 分类规则按序匹配，第一条命中生效
var classificationRules = []classificationRule{
	{
		patterns:  []string{"timeout", "timed out", "deadline exceeded", "context canceled"},
		kind:      vision.FailureTimeout,
		retryable: true,
		message:   "The analysis service took too long to respond.",
		actions:   []string{"retry", "try_smaller_image"},
	},
	{
		patterns:  []string{"rate limit", "too many requests", "429"},
		kind:      vision.FailureRateLimit,
		retryable: true,
		message:   "The analysis service is receiving too many requests.",
		actions:   []string{"wait_and_retry"},
	},
	{
		patterns:  []string{"unauthorized", "invalid api key", "api key", "401", "403", "forbidden"},
		kind:      vision.FailureAuthError,
		retryable: false,
		message:   "The analysis service rejected our credentials.",
		actions:   []string{"contact_support"},
	},
	{
		patterns:  []string{"quota", "insufficient_quota", "billing", "payment required"},
		kind:      vision.FailureQuotaExceeded,
		retryable: false,
		message:   "The analysis service quota has been exhausted.",
		actions:   []string{"upgrade_tier", "wait_for_quota_reset"},
	},
	{
		patterns:  []string{"connection refused", "no such host", "unavailable", "bad gateway", "502", "503", "service down"},
		kind:      vision.FailureServiceDown,
		retryable: true,
		message:   "The analysis service is temporarily unavailable.",
		actions:   []string{"retry_later"},
	},
}

// unknownClassification 兜底分类
var unknownClassification = Classification{
	Kind:      vision.FailureUnknown,
	Retryable: true,
	Message:   "The analysis service returned an unexpected error.",
	Actions:   []string{"retry", "contact_support"},
}

// ClassifyError 按错误消息模式分类上游失败
// 核心把上游视为不透明协作者，只检视其错误文本
func ClassifyError(err error) Classification {
	if err == nil {
		return unknownClassification
	}

	msg := strings.ToLower(err.Error())
	for _, rule := range classificationRules {
		for _, p := range rule.patterns {
			if strings.Contains(msg, p) {
				return Classification{
					Kind:      rule.kind,
					Retryable: rule.retryable,
					Message:   rule.message,
					Actions:   rule.actions,
				}
			}
		}
	}
	return unknownClassification
}
