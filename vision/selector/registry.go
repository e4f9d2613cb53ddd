// 版权所有 2024 FrameSense Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

// 包 selector 维护模型注册表并按问题类型/用户层级选择具体模型。
package selector

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/framesense/framesense/vision"
)

// =============================================================================
// 📋 模型注册表
// =============================================================================

// Registry 模型注册表，Enabled 可在运行时切换
type Registry struct {
	mu     sync.RWMutex
	models map[string]vision.ModelDescriptor
}

// NewRegistry 创建空注册表
func NewRegistry() *Registry {
	return &Registry{models: make(map[string]vision.ModelDescriptor)}
}

// NewDefaultRegistry 创建带内置模型表的注册表
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	for _, m := range DefaultModels() {
		r.Put(m)
	}
	return r
}

// Put 写入或覆盖模型描述
func (r *Registry) Put(m vision.ModelDescriptor) {
	r.mu.Lock()
	r.models[m.ID] = m
	r.mu.Unlock()
}

// Get 按 ID 查询模型
func (r *Registry) Get(id string) (vision.ModelDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[id]
	return m, ok
}

// SetEnabled 切换模型可用状态
func (r *Registry) SetEnabled(id string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.models[id]
	if !ok {
		return fmt.Errorf("model %s not registered", id)
	}
	m.Enabled = enabled
	r.models[id] = m
	return nil
}

// All 返回模型列表快照，按 ID 排序
func (r *Registry) All() []vision.ModelDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]vision.ModelDescriptor, 0, len(r.models))
	for _, m := range r.models {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// =============================================================================
// 🏷️ 层级策略
// =============================================================================

// TierPolicy 每层级的选型约束
type TierPolicy struct {
	// CostCeiling 单次请求的成本上限（美元）
	CostCeiling float64 `yaml:"cost_ceiling" json:"cost_ceiling"`
	// AllowedProviders 允许的提供方列表，含 "all" 表示不限
	AllowedProviders []string `yaml:"allowed_providers" json:"allowed_providers"`
}

// ProviderAllowed 判断提供方是否在允许列表内
func (p TierPolicy) ProviderAllowed(provider string) bool {
	for _, allowed := range p.AllowedProviders {
		if allowed == "all" || allowed == provider {
			return true
		}
	}
	return false
}

// DefaultTierPolicies 返回内置层级策略表
func DefaultTierPolicies() map[vision.Tier]TierPolicy {
	return map[vision.Tier]TierPolicy{
		vision.TierFree: {
			CostCeiling:      0.005,
			AllowedProviders: []string{"local", "google", "openai"},
		},
		vision.TierPro: {
			CostCeiling:      0.05,
			AllowedProviders: []string{"all"},
		},
		vision.TierPremium: {
			CostCeiling:      0.10,
			AllowedProviders: []string{"all"},
		},
		vision.TierEnterprise: {
			CostCeiling:      math.MaxFloat64,
			AllowedProviders: []string{"all"},
		},
	}
}

// DefaultModels 返回内置模型表
func DefaultModels() []vision.ModelDescriptor {
	return []vision.ModelDescriptor{
		{
			ID:              "local-ocr",
			Provider:        "local",
			Tier:            vision.TierFree,
			Capabilities:    []string{"ocr"},
			CostPerRequest:  0.0,
			AvgResponseTime: 500 * time.Millisecond,
			QualityScore:    60,
			Enabled:         true,
		},
		{
			ID:              "vision-api-basic",
			Provider:        "google",
			Tier:            vision.TierFree,
			Capabilities:    []string{"vision", "ocr"},
			CostPerRequest:  0.0,
			AvgResponseTime: time.Second,
			QualityScore:    65,
			Enabled:         true,
		},
		{
			ID:              "gpt-4o-mini",
			Provider:        "openai",
			Tier:            vision.TierFree,
			Capabilities:    []string{"vision", "ocr"},
			CostPerRequest:  0.002,
			AvgResponseTime: 2 * time.Second,
			QualityScore:    72,
			Enabled:         true,
		},
		{
			ID:              "face-detect-api",
			Provider:        "aws",
			Tier:            vision.TierPro,
			Capabilities:    []string{"face_detection", "vision"},
			CostPerRequest:  0.01,
			AvgResponseTime: time.Second,
			QualityScore:    80,
			Enabled:         true,
		},
		{
			ID:              "claude-sonnet",
			Provider:        "anthropic",
			Tier:            vision.TierPro,
			Capabilities:    []string{"vision", "ocr", "reasoning", "translation"},
			CostPerRequest:  0.02,
			AvgResponseTime: 3 * time.Second,
			QualityScore:    88,
			Enabled:         true,
		},
		{
			ID:              "gpt-4o",
			Provider:        "openai",
			Tier:            vision.TierPremium,
			Capabilities:    []string{"vision", "ocr", "reasoning", "translation"},
			CostPerRequest:  0.04,
			AvgResponseTime: 3 * time.Second,
			QualityScore:    92,
			Enabled:         true,
		},
	}
}
