package vision

import "context"

// Service 上游分析服务协作者接口
// 以能力标签的策略对象代替子类继承：实现注册在 providers.Registry 中，
// 由表查找选中，核心只通过本接口与其交互
type Service interface {
	// Analyze 执行分析，失败时错误消息会被降级管理器分类
	Analyze(ctx context.Context, req *AnalyzeRequest) (*AnalysisResult, error)

	// Capabilities 返回服务能力标签
	Capabilities() []string

	// CostPerRequest 返回单次请求的估算成本（美元）
	CostPerRequest() float64

	// Health 探活
	Health(ctx context.Context) error
}

// UserStore 用户/账单协作者接口
// 全部为尽力而为语义：失败不得中断请求
type UserStore interface {
	GetUserTierProfile(ctx context.Context, userID string) (*UserTierProfile, error)
	GetDailySpend(ctx context.Context, userID string) (float64, error)
	GetMonthlySpend(ctx context.Context, userID string) (float64, error)

	// RecordUsage 记录一次成功访问（fire-and-forget 由调用方保证）
	RecordUsage(ctx context.Context, userID, questionType, serviceID string, cost float64) error
}
