package vision

import (
	"errors"
	"fmt"
)

// 管线共享的哨兵错误
var (
	// ErrUnknownServiceType 未注册的服务类型
	ErrUnknownServiceType = errors.New("unknown service type")

	// ErrNoEligibleModel 过滤后无可用模型（终态，需要层级升级）
	ErrNoEligibleModel = errors.New("no eligible model")

	// ErrCacheUnavailable 缓存不可用（非致命，降级为直通）
	ErrCacheUnavailable = errors.New("cache unavailable")

	// ErrCompressionFailure 压缩失败（非致命，改存未压缩）
	ErrCompressionFailure = errors.New("compression failure")

	// ErrFallbackExhausted 降级链耗尽（终态，产生结构化降级响应）
	ErrFallbackExhausted = errors.New("fallback exhausted")

	// ErrDuplicateTypeID 问题类型重复注册
	ErrDuplicateTypeID = errors.New("duplicate question type id")
)

// DenyReason 访问拒绝原因
type DenyReason string

const (
	DenyTierInsufficient DenyReason = "tier_insufficient"
	DenyDailyLimit       DenyReason = "daily_limit"
	DenyMonthlyLimit     DenyReason = "monthly_limit"
	DenySizeLimit        DenyReason = "size_limit"
	DenyConcurrencyLimit DenyReason = "concurrency_limit"
)

// AccessDeniedError 结构化访问拒绝（终态，用户可自行处理）
type AccessDeniedError struct {
	Reason        DenyReason
	SuggestedTier Tier
	Detail        string
}

func (e *AccessDeniedError) Error() string {
	return fmt.Sprintf("access denied: %s (suggested tier: %s)", e.Reason, e.SuggestedTier)
}

// FailureKind 上游失败分类
type FailureKind string

const (
	FailureTimeout       FailureKind = "timeout"
	FailureRateLimit     FailureKind = "rate_limit"
	FailureAuthError     FailureKind = "auth_error"
	FailureServiceDown   FailureKind = "service_down"
	FailureQuotaExceeded FailureKind = "quota_exceeded"
	FailureUnknown       FailureKind = "unknown_error"
)

// UpstreamError 上游服务失败，驱动降级链
type UpstreamError struct {
	ServiceID string
	Kind      FailureKind
	Err       error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s failed (%s): %v", e.ServiceID, e.Kind, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// IsAccessDenied 判断是否为访问拒绝错误
func IsAccessDenied(err error) bool {
	var denied *AccessDeniedError
	return errors.As(err, &denied)
}
