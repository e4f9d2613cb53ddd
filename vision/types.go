package vision

import (
	"time"
)

// Tier 用户订阅层级
type Tier string

const (
	TierFree       Tier = "free"
	TierPro        Tier = "pro"
	TierPremium    Tier = "premium"
	TierEnterprise Tier = "enterprise"
)

// tierLevels 层级顺序表，数值越大权限越高
var tierLevels = map[Tier]int{
	TierFree:       0,
	TierPro:        1,
	TierPremium:    2,
	TierEnterprise: 3,
}

// Level 返回层级序号，未知层级按 free 处理
func (t Tier) Level() int {
	if lvl, ok := tierLevels[t]; ok {
		return lvl
	}
	return 0
}

// AtLeast 判断当前层级是否不低于 other
func (t Tier) AtLeast(other Tier) bool {
	return t.Level() >= other.Level()
}

// Valid 判断层级是否为已知值
func (t Tier) Valid() bool {
	_, ok := tierLevels[t]
	return ok
}

// BoundingBox 图像子区域，用于 faceHash 的裁剪计算
type BoundingBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Image 待分析图像的原始字节
type Image struct {
	// Data 原始图像字节（PNG/JPEG 等）
	Data []byte `json:"data"`
	// Format 可选的格式提示，空值由解码器自行探测
	Format string `json:"format,omitempty"`
}

// Params 键生成与调度的类型化参数
// 取代自由格式的 option 包：每个字段有文档化的默认值
type Params struct {
	// Language OCR/识别语言，默认 "en"
	Language string `json:"language,omitempty"`
	// Model 目标模型标识，默认 "default"
	Model string `json:"model,omitempty"`
	// Method 分析方法提示，默认 "auto"
	Method string `json:"method,omitempty"`
	// Provider 服务提供方，默认 "unknown"
	Provider string `json:"provider,omitempty"`
	// FaceBox 可选的人脸/子区域边界框，供 faceHash 使用
	FaceBox *BoundingBox `json:"face_box,omitempty"`
}

// 参数默认值
const (
	DefaultLanguage = "en"
	DefaultModel    = "default"
	DefaultMethod   = "auto"
	DefaultProvider = "unknown"
)

// Normalized 返回填充了默认值的参数副本
func (p Params) Normalized() Params {
	if p.Language == "" {
		p.Language = DefaultLanguage
	}
	if p.Model == "" {
		p.Model = DefaultModel
	}
	if p.Method == "" {
		p.Method = DefaultMethod
	}
	if p.Provider == "" {
		p.Provider = DefaultProvider
	}
	return p
}

// AnalyzeRequest 一次图像分析请求
type AnalyzeRequest struct {
	RequestID string `json:"request_id,omitempty"`
	UserID    string `json:"user_id"`
	Question  string `json:"question"`
	Image     Image  `json:"image"`
	Params    Params `json:"params"`
	// PreferredModel 用户显式指定的模型（可选）
	PreferredModel string `json:"preferred_model,omitempty"`
}

// ResultSource 结果来源标签
type ResultSource string

const (
	SourceFast    ResultSource = "fast"
	SourceDurable ResultSource = "durable"
	SourceService ResultSource = "service"
	SourceMiss    ResultSource = "miss"
	SourceError   ResultSource = "error"
)

// AnalysisResult 分析结果
// 成功与降级响应共用同一结构：降级时 Error 为 true 并携带分类与建议
type AnalysisResult struct {
	ServiceType string       `json:"service_type"`
	ModelID     string       `json:"model_id,omitempty"`
	Text        string       `json:"text"`
	Confidence  float64      `json:"confidence"`
	HasText     bool         `json:"has_text"`
	Source      ResultSource `json:"source"`
	Cost        float64      `json:"cost"`

	// 降级响应字段
	Error            bool     `json:"error,omitempty"`
	ErrorKind        string   `json:"error_kind,omitempty"`
	Message          string   `json:"message,omitempty"`
	SuggestedActions []string `json:"suggested_actions,omitempty"`
	Retryable        bool     `json:"retryable,omitempty"`
}

// UserTierProfile 用户层级画像，由外部账单系统拥有
type UserTierProfile struct {
	UserID              string  `json:"user_id"`
	Tier                Tier    `json:"tier"`
	DailySpend          float64 `json:"daily_spend"`
	MonthlySpend        float64 `json:"monthly_spend"`
	DailyRequestCount   int     `json:"daily_request_count"`
	MonthlyRequestCount int     `json:"monthly_request_count"`
	// DailyBudget/MonthlyBudget 为 0 表示未配置预算
	DailyBudget   float64 `json:"daily_budget"`
	MonthlyBudget float64 `json:"monthly_budget"`
}

// QuestionType 问题类型注册表条目
type QuestionType struct {
	ID                string   `json:"id"`
	CapabilityTags    []string `json:"capability_tags"`
	MinimumTier       Tier     `json:"minimum_tier"`
	EstimatedCost     float64  `json:"estimated_cost"`
	DefaultServiceID  string   `json:"default_service_id"`
	FallbackServiceID string   `json:"fallback_service_id"`
	// Patterns 分类器使用的正则模式
	Patterns []string `json:"patterns,omitempty"`
}

// Scores 路由候选的各维度评分（0-1）
type Scores struct {
	Quality       float64 `json:"quality"`
	Cost          float64 `json:"cost"`
	Speed         float64 `json:"speed"`
	BudgetFit     float64 `json:"budget_fit"`
	Effectiveness float64 `json:"effectiveness"`
}

// RouteCandidate 按请求生成的路由候选，从不持久化
type RouteCandidate struct {
	ServiceID     string  `json:"service_id"`
	ModelID       string  `json:"model_id"`
	EstimatedCost float64 `json:"estimated_cost"`
	Scores        Scores  `json:"scores"`
	// OptimizeFailed 成本优化内部失败时置位，候选原样返回
	OptimizeFailed bool `json:"optimize_failed,omitempty"`
}

// ModelDescriptor 模型注册表条目
type ModelDescriptor struct {
	ID              string        `json:"id"`
	Provider        string        `json:"provider"`
	Tier            Tier          `json:"tier"`
	Capabilities    []string      `json:"capabilities"`
	CostPerRequest  float64       `json:"cost_per_request"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
	// QualityScore 0-100
	QualityScore int  `json:"quality_score"`
	Enabled      bool `json:"enabled"`
}

// HasCapabilities 判断模型能力是否覆盖所需能力集
func (m *ModelDescriptor) HasCapabilities(required []string) bool {
	if len(required) == 0 {
		return true
	}
	have := make(map[string]bool, len(m.Capabilities))
	for _, c := range m.Capabilities {
		have[c] = true
	}
	for _, c := range required {
		if !have[c] {
			return false
		}
	}
	return true
}
