package selector

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/framesense/framesense/vision"
)

// =============================================================================
// 🎯 模型选择器
// =============================================================================

// Heuristic 无显式偏好时的排序策略
type Heuristic string

const (
	HeuristicCheapest Heuristic = "cheapest"
	HeuristicFastest  Heuristic = "fastest"
	HeuristicQuality  Heuristic = "quality"
	// HeuristicBalanced 质量/成本均衡：quality / (cost*100 + 1) 降序
	HeuristicBalanced Heuristic = "balanced"
)

// Options 选型可选项
type Options struct {
	// Preference 用户显式指定的模型 ID，符合约束时直接采用
	Preference string
	// Heuristic 无偏好且默认模型不可用时的排序策略，空值按均衡
	Heuristic Heuristic
}

// Selection 选型结果
type Selection struct {
	Candidate vision.RouteCandidate
	Model     vision.ModelDescriptor
	// FallbackModelID 供降级链使用的备选模型，可能为空
	FallbackModelID string
}

// Selector 按问题类型与用户层级筛选模型
type Selector struct {
	registry *Registry
	policies map[vision.Tier]TierPolicy
	logger   *zap.Logger
}

// New 创建选择器
func New(registry *Registry, policies map[vision.Tier]TierPolicy, logger *zap.Logger) *Selector {
	if policies == nil {
		policies = DefaultTierPolicies()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Selector{
		registry: registry,
		policies: policies,
		logger:   logger.With(zap.String("component", "model_selector")),
	}
}

// SelectModel 为问题类型与用户层级选出一个模型
// 过滤：enabled、层级可达、提供方允许、成本不超层级上限、能力覆盖；
// 排序：显式偏好 → 类型默认模型 → 启发式；空集返回 ErrNoEligibleModel
func (s *Selector) SelectModel(qt vision.QuestionType, userTier vision.Tier, opts Options) (Selection, error) {
	policy, ok := s.policies[userTier]
	if !ok {
		policy = s.policies[vision.TierFree]
	}

	eligible := s.eligibleModels(qt, userTier, policy)
	if len(eligible) == 0 {
		return Selection{}, fmt.Errorf("question type %s at tier %s: %w",
			qt.ID, userTier, vision.ErrNoEligibleModel)
	}

	chosen := s.pick(eligible, qt, opts)
	fallback := s.fallbackModel(eligible, chosen)

	s.logger.Debug("Model selected",
		zap.String("question_type", qt.ID),
		zap.String("tier", string(userTier)),
		zap.String("model", chosen.ID),
		zap.String("fallback", fallback),
		zap.Int("eligible", len(eligible)))

	return Selection{
		Candidate: vision.RouteCandidate{
			ServiceID:     qt.DefaultServiceID,
			ModelID:       chosen.ID,
			EstimatedCost: chosen.CostPerRequest,
			Scores: vision.Scores{
				Quality: float64(chosen.QualityScore) / 100.0,
			},
		},
		Model:           chosen,
		FallbackModelID: fallback,
	}, nil
}

// eligibleModels 应用全部过滤条件，结果按 ID 排序保证确定性
func (s *Selector) eligibleModels(qt vision.QuestionType, userTier vision.Tier, policy TierPolicy) []vision.ModelDescriptor {
	var out []vision.ModelDescriptor
	for _, m := range s.registry.All() {
		m := m
		if !m.Enabled {
			continue
		}
		if !userTier.AtLeast(m.Tier) {
			continue
		}
		if !policy.ProviderAllowed(m.Provider) {
			continue
		}
		if m.CostPerRequest > policy.CostCeiling {
			continue
		}
		if !m.HasCapabilities(qt.CapabilityTags) {
			continue
		}
		out = append(out, m)
	}
	return out
}

// pick 按偏好 → 默认模型 → 启发式的顺序选出一个
func (s *Selector) pick(eligible []vision.ModelDescriptor, qt vision.QuestionType, opts Options) vision.ModelDescriptor {
	if opts.Preference != "" {
		for _, m := range eligible {
			if m.ID == opts.Preference {
				return m
			}
		}
	}

	if def, ok := s.defaultModelFor(qt); ok {
		for _, m := range eligible {
			if m.ID == def {
				return m
			}
		}
	}

	ranked := make([]vision.ModelDescriptor, len(eligible))
	copy(ranked, eligible)

	switch opts.Heuristic {
	case HeuristicCheapest:
		sort.SliceStable(ranked, func(i, j int) bool {
			return ranked[i].CostPerRequest < ranked[j].CostPerRequest
		})
	case HeuristicFastest:
		sort.SliceStable(ranked, func(i, j int) bool {
			return ranked[i].AvgResponseTime < ranked[j].AvgResponseTime
		})
	case HeuristicQuality:
		sort.SliceStable(ranked, func(i, j int) bool {
			return ranked[i].QualityScore > ranked[j].QualityScore
		})
	default:
		sort.SliceStable(ranked, func(i, j int) bool {
			return balancedRatio(ranked[i]) > balancedRatio(ranked[j])
		})
	}
	return ranked[0]
}

// defaultModelFor 把问题类型的默认服务映射到注册表内的模型 ID
// 服务表以服务 ID 组织，模型注册表以模型 ID 组织；当问题类型直接
// 声明了注册表内存在的 ID 时优先采用
func (s *Selector) defaultModelFor(qt vision.QuestionType) (string, bool) {
	if _, ok := s.registry.Get(qt.DefaultServiceID); ok {
		return qt.DefaultServiceID, true
	}
	return "", false
}

// fallbackModel 在与选中模型能力重叠的其余候选中取质量最高者
func (s *Selector) fallbackModel(eligible []vision.ModelDescriptor, chosen vision.ModelDescriptor) string {
	best := ""
	bestQuality := -1
	for _, m := range eligible {
		if m.ID == chosen.ID {
			continue
		}
		if !capabilityOverlap(m.Capabilities, chosen.Capabilities) {
			continue
		}
		if m.QualityScore > bestQuality {
			bestQuality = m.QualityScore
			best = m.ID
		}
	}
	return best
}

func balancedRatio(m vision.ModelDescriptor) float64 {
	return float64(m.QualityScore) / (m.CostPerRequest*100 + 1)
}

func capabilityOverlap(a, b []string) bool {
	set := make(map[string]bool, len(a))
	for _, c := range a {
		set[c] = true
	}
	for _, c := range b {
		if set[c] {
			return true
		}
	}
	return false
}
