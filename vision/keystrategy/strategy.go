package keystrategy

import (
	"strings"
	"time"
)

// StorageTier 缓存存储层级
type StorageTier string

const (
	// TierFast 仅写入内存速度的 TTL 缓存
	TierFast StorageTier = "fast"
	// TierDurable 写入持久层，同时镜像到快速层
	TierDurable StorageTier = "durable"
)

// CostClass 粗粒度成本桶，用于估算缓存命中节省的费用
type CostClass string

const (
	CostLow    CostClass = "low"
	CostMedium CostClass = "medium"
	CostHigh   CostClass = "high"
)

// costClassValue 各成本桶的估算单价（美元）
var costClassValue = map[CostClass]float64{
	CostLow:    0.001,
	CostMedium: 0.01,
	CostHigh:   0.05,
}

// Value 返回成本桶的估算单价
func (c CostClass) Value() float64 {
	return costClassValue[c]
}

// ServiceStrategy 每服务的键模板与存储策略
// 静态配置，运行时不可变，按 ServiceID 查找
type ServiceStrategy struct {
	ServiceID  string        `yaml:"service_id" json:"service_id"`
	KeyPattern string        `yaml:"key_pattern" json:"key_pattern"`
	TTL        time.Duration `yaml:"ttl" json:"ttl"`
	Compress   bool          `yaml:"compress" json:"compress"`
	Storage    StorageTier   `yaml:"storage" json:"storage"`
	Cost       CostClass     `yaml:"cost" json:"cost"`
}

// 键模板占位符
const (
	phImageHash    = "{imageHash}"
	phQuestionHash = "{questionHash}"
	phFaceHash     = "{faceHash}"
	phLang         = "{lang}"
	phModel        = "{model}"
	phMethod       = "{method}"
	phProvider     = "{provider}"
)

// KeyGlob 返回用于失效/扫描的 glob 模式：占位符全部替换为 *
func (s ServiceStrategy) KeyGlob() string {
	pattern := s.KeyPattern
	for _, ph := range []string{
		phImageHash, phQuestionHash, phFaceHash,
		phLang, phModel, phMethod, phProvider,
	} {
		pattern = strings.ReplaceAll(pattern, ph, "*")
	}
	return pattern
}

// ImageHashSegment 返回 {imageHash} 在冒号分段中的下标，不存在时为 -1
// 降级管理器用它从已存储的键中提取感知哈希做相似度比较
func (s ServiceStrategy) ImageHashSegment() int {
	for i, seg := range strings.Split(s.KeyPattern, ":") {
		if seg == phImageHash || seg == phFaceHash {
			return i
		}
	}
	return -1
}

// DefaultStrategies 返回内置服务策略表
// 具体 TTL/压缩阈值属于配置数据，这里是经过调优的出厂值
func DefaultStrategies() map[string]ServiceStrategy {
	strategies := []ServiceStrategy{
		{
			ServiceID:  "OCR_RESULTS",
			KeyPattern: "ocr:{imageHash}:{lang}",
			TTL:        7 * 24 * time.Hour,
			Compress:   true,
			Storage:    TierDurable,
			Cost:       CostLow,
		},
		{
			ServiceID:  "VISION_ANALYSIS",
			KeyPattern: "vision:{imageHash}:{method}",
			TTL:        24 * time.Hour,
			Compress:   true,
			Storage:    TierDurable,
			Cost:       CostMedium,
		},
		{
			ServiceID:  "FACE_DETECTION",
			KeyPattern: "face:{faceHash}:{provider}",
			TTL:        24 * time.Hour,
			Compress:   false,
			Storage:    TierDurable,
			Cost:       CostMedium,
		},
		{
			ServiceID:  "LLM_VISION",
			KeyPattern: "llm:{imageHash}:{questionHash}:{model}",
			TTL:        time.Hour,
			Compress:   true,
			Storage:    TierFast,
			Cost:       CostHigh,
		},
		{
			ServiceID:  "QUICK_ANSWERS",
			KeyPattern: "qa:{imageHash}:{questionHash}",
			TTL:        30 * time.Minute,
			Compress:   false,
			Storage:    TierFast,
			Cost:       CostLow,
		},
	}

	table := make(map[string]ServiceStrategy, len(strategies))
	for _, s := range strategies {
		table[s.ServiceID] = s
	}
	return table
}
