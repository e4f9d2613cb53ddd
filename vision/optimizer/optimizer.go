// 版权所有 2024 FrameSense Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

// 包 optimizer 在预算约束下对路由候选做成本/质量/速度重排。
package optimizer

import (
	"sort"

	"go.uber.org/zap"

	"github.com/framesense/framesense/vision"
)

// =============================================================================
// 💰 成本优化器
// =============================================================================

// 评分权重
const (
	// referencePrice 成本归一的参考价：cost = 1 - min(1, price/0.10)
	referencePrice = 0.10

	// 有预算用户的均衡权重
	weightQuality   = 0.4
	weightCost      = 0.3
	weightSpeed     = 0.2
	weightBudgetFit = 0.1

	// 无预算（免费层）用户：成本主导，零成本候选再加平坦奖励
	unbudgetedWeightCost    = 0.7
	unbudgetedWeightQuality = 0.2
	unbudgetedWeightSpeed   = 0.1
	zeroCostBonus           = 0.3
	paidPenalty             = 0.2

	// 预算过滤阈值
	dailyBudgetShare   = 0.10
	monthlyBudgetShare = 0.01
)

// AlternativeRoute 同一问题类型的替代路由
type AlternativeRoute struct {
	ServiceID     string  `yaml:"service_id" json:"service_id"`
	ModelID       string  `yaml:"model_id" json:"model_id"`
	EstimatedCost float64 `yaml:"estimated_cost" json:"estimated_cost"`
	// Quality 0-1
	Quality float64 `yaml:"quality" json:"quality"`
	// Speed 0-1，按服务静态给定
	Speed float64 `yaml:"speed" json:"speed"`
}

// Budget 用户剩余预算视图
type Budget struct {
	// DailyRemaining/MonthlyRemaining 剩余额度，未配置时为 0
	DailyRemaining   float64
	MonthlyRemaining float64
	// Unbudgeted 免费层或未配置预算
	Unbudgeted bool
}

// BudgetFromProfile 由用户画像推导预算视图
func BudgetFromProfile(profile *vision.UserTierProfile) Budget {
	if profile == nil || profile.Tier == vision.TierFree ||
		(profile.DailyBudget == 0 && profile.MonthlyBudget == 0) {
		return Budget{Unbudgeted: true}
	}

	b := Budget{}
	if profile.DailyBudget > 0 {
		b.DailyRemaining = profile.DailyBudget - profile.DailySpend
		if b.DailyRemaining < 0 {
			b.DailyRemaining = 0
		}
	}
	if profile.MonthlyBudget > 0 {
		b.MonthlyRemaining = profile.MonthlyBudget - profile.MonthlySpend
		if b.MonthlyRemaining < 0 {
			b.MonthlyRemaining = 0
		}
	}
	return b
}

// Optimizer 成本优化器
type Optimizer struct {
	routes    map[string][]AlternativeRoute
	estimator *CostEstimator
	logger    *zap.Logger
}

// New 创建优化器；routes 为 nil 时使用内置替代路由表
func New(routes map[string][]AlternativeRoute, logger *zap.Logger) *Optimizer {
	if routes == nil {
		routes = DefaultRoutes()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Optimizer{
		routes:    routes,
		estimator: NewCostEstimator(),
		logger:    logger.With(zap.String("component", "cost_optimizer")),
	}
}

// OptimizeRoute 在替代路由中选出得分最高者
// LLM 类路由的提示词成本按问题文本折入 EstimatedCost 后参与评分；
// 内部任何失败都被捕获：原候选带 OptimizeFailed 标记返回，从不中断请求
func (o *Optimizer) OptimizeRoute(questionTypeID, question string, candidate vision.RouteCandidate, budget Budget) (result vision.RouteCandidate) {
	result = candidate

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("Route optimization panicked",
				zap.String("question_type", questionTypeID),
				zap.Any("panic", r))
			result = candidate
			result.OptimizeFailed = true
		}
	}()

	alternatives := o.routes[questionTypeID]
	candidates := o.scoreAll(question, candidate, alternatives, budget)

	survivors := filterByBudget(candidates, budget)
	if len(survivors) == 0 {
		// 预算过滤清空候选集时原样返回，从不产生零结果
		return candidate
	}

	sort.SliceStable(survivors, func(i, j int) bool {
		return survivors[i].Scores.Effectiveness > survivors[j].Scores.Effectiveness
	})

	best := survivors[0]
	if best.ServiceID != candidate.ServiceID || best.ModelID != candidate.ModelID {
		o.logger.Info("Route optimized",
			zap.String("question_type", questionTypeID),
			zap.String("from", candidate.ServiceID),
			zap.String("to", best.ServiceID),
			zap.Float64("cost_delta", candidate.EstimatedCost-best.EstimatedCost))
	}
	return best
}

// EstimatePromptCost 估算 LLM 类路由的提示词成本，供上层修正 EstimatedCost
func (o *Optimizer) EstimatePromptCost(question string, costPerKiloToken float64) float64 {
	return o.estimator.PromptCost(question, costPerKiloToken)
}

// scoreAll 把原候选与替代路由统一折算提示词成本后评分
func (o *Optimizer) scoreAll(question string, candidate vision.RouteCandidate, alternatives []AlternativeRoute, budget Budget) []vision.RouteCandidate {
	all := make([]vision.RouteCandidate, 0, len(alternatives)+1)

	selfAlt := o.withPromptCost(selfRoute(candidate), question)
	self := candidate
	self.EstimatedCost = selfAlt.EstimatedCost
	self.Scores = o.score(selfAlt, budget)
	all = append(all, self)

	for _, alt := range alternatives {
		if alt.ServiceID == candidate.ServiceID && alt.ModelID == candidate.ModelID {
			continue
		}
		alt = o.withPromptCost(alt, question)
		all = append(all, vision.RouteCandidate{
			ServiceID:     alt.ServiceID,
			ModelID:       alt.ModelID,
			EstimatedCost: alt.EstimatedCost,
			Scores:        o.score(alt, budget),
		})
	}
	return all
}

// withPromptCost 把提示词成本折入 LLM 类路由的估价
// 非 LLM 路由（模型无千 token 单价）原样返回
func (o *Optimizer) withPromptCost(route AlternativeRoute, question string) AlternativeRoute {
	rate, ok := modelPromptRates[route.ModelID]
	if !ok {
		return route
	}
	route.EstimatedCost += o.EstimatePromptCost(question, rate)
	return route
}

// selfRoute 把原候选视作一条替代路由参与评分
func selfRoute(candidate vision.RouteCandidate) AlternativeRoute {
	return AlternativeRoute{
		ServiceID:     candidate.ServiceID,
		ModelID:       candidate.ModelID,
		EstimatedCost: candidate.EstimatedCost,
		Quality:       candidate.Scores.Quality,
		Speed:         defaultServiceSpeed(candidate.ServiceID),
	}
}

// score 计算单条路由的各维度得分与综合分
func (o *Optimizer) score(route AlternativeRoute, budget Budget) vision.Scores {
	s := vision.Scores{
		Quality:   clamp01(route.Quality),
		Cost:      costScore(route.EstimatedCost),
		Speed:     clamp01(route.Speed),
		BudgetFit: budgetFit(route.EstimatedCost, budget),
	}

	if budget.Unbudgeted {
		// 无预算时成本主导；预算贴合度对无预算用户无意义，权重为零
		s.Effectiveness = s.Cost*unbudgetedWeightCost +
			s.Quality*unbudgetedWeightQuality +
			s.Speed*unbudgetedWeightSpeed
		if route.EstimatedCost == 0 {
			s.Effectiveness += zeroCostBonus
		} else {
			s.Effectiveness -= paidPenalty
		}
	} else {
		s.Effectiveness = s.Quality*weightQuality +
			s.Cost*weightCost +
			s.Speed*weightSpeed +
			s.BudgetFit*weightBudgetFit
	}
	return s
}

// costScore 零成本得 1.0，参考价及以上得 0
func costScore(price float64) float64 {
	ratio := price / referencePrice
	if ratio > 1 {
		ratio = 1
	}
	return 1 - ratio
}

// budgetFit 1 减去本次成本对剩余预算的占比，下限 0
func budgetFit(price float64, budget Budget) float64 {
	if budget.Unbudgeted {
		return 0
	}

	fit := 1.0
	if budget.DailyRemaining > 0 {
		fit -= price / budget.DailyRemaining
	}
	if budget.MonthlyRemaining > 0 {
		fit -= price / budget.MonthlyRemaining
	}
	return clamp01(fit)
}

// filterByBudget 剔除超出剩余预算占比阈值的候选
func filterByBudget(candidates []vision.RouteCandidate, budget Budget) []vision.RouteCandidate {
	if budget.Unbudgeted {
		return candidates
	}

	var out []vision.RouteCandidate
	for _, c := range candidates {
		if budget.DailyRemaining > 0 && c.EstimatedCost > budget.DailyRemaining*dailyBudgetShare {
			continue
		}
		if budget.MonthlyRemaining > 0 && c.EstimatedCost > budget.MonthlyRemaining*monthlyBudgetShare {
			continue
		}
		out = append(out, c)
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
