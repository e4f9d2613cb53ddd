// 版权所有 2024 FrameSense Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

// 包 router 按请求编排分析管线：
// 分类 → 准入 → 选型 → 成本优化 → 缓存查询 → 调度/降级 → 回写。
// 阶段在单请求内严格串行，请求之间互不阻塞。
package router

import (
	"context"
	"encoding/json"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/framesense/framesense/internal/metrics"
	"github.com/framesense/framesense/vision"
	"github.com/framesense/framesense/vision/access"
	"github.com/framesense/framesense/vision/cachestore"
	"github.com/framesense/framesense/vision/classifier"
	"github.com/framesense/framesense/vision/fallback"
	"github.com/framesense/framesense/vision/keystrategy"
	"github.com/framesense/framesense/vision/optimizer"
	"github.com/framesense/framesense/vision/providers"
	"github.com/framesense/framesense/vision/selector"
)

// =============================================================================
// 🚦 请求路由器
// =============================================================================

// Config 路由器配置
type Config struct {
	// CoalesceRequests 相同缓存键的并发未命中合并为一次上游调用
	CoalesceRequests bool `yaml:"coalesce_requests" json:"coalesce_requests"`
}

// Router 分析管线编排器
// 所有协作者显式注入，测试可替换任意一环
type Router struct {
	classifier *classifier.Classifier
	access     *access.Controller
	selector   *selector.Selector
	optimizer  *optimizer.Optimizer
	fallback   *fallback.Manager
	store      *cachestore.TieredStore
	keys       *keystrategy.Builder
	services   *providers.Registry
	users      vision.UserStore
	metrics    *metrics.Collector
	logger     *zap.Logger
	tracer     trace.Tracer
	config     Config

	inflight singleflight.Group
}

// Deps 路由器依赖集合
type Deps struct {
	Classifier *classifier.Classifier
	Access     *access.Controller
	Selector   *selector.Selector
	Optimizer  *optimizer.Optimizer
	Fallback   *fallback.Manager
	Store      *cachestore.TieredStore
	Keys       *keystrategy.Builder
	Services   *providers.Registry
	Users      vision.UserStore
	Metrics    *metrics.Collector
	Logger     *zap.Logger
}

// New 创建路由器
func New(deps Deps, config Config) *Router {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		classifier: deps.Classifier,
		access:     deps.Access,
		selector:   deps.Selector,
		optimizer:  deps.Optimizer,
		fallback:   deps.Fallback,
		store:      deps.Store,
		keys:       deps.Keys,
		services:   deps.Services,
		users:      deps.Users,
		metrics:    deps.Metrics,
		logger:     logger.With(zap.String("component", "router")),
		tracer:     otel.Tracer("framesense/router"),
		config:     config,
	}
}

// Analyze 处理一次分析请求
// 返回的 error 只会是结构化的早期拒绝（准入/选型）；上游失败走降级链，
// 最终都折叠为结构化结果
func (r *Router) Analyze(ctx context.Context, req *vision.AnalyzeRequest) (*vision.AnalysisResult, error) {
	start := time.Now()
	req.Params = req.Params.Normalized()

	ctx, span := r.tracer.Start(ctx, "router.analyze",
		trace.WithAttributes(attribute.String("user_id", req.UserID)))
	defer span.End()

	// 阶段 1：分类
	cls := r.classify(ctx, req.Question)
	qt := cls.Type

	// 阶段 2：准入（先于任何上游成本发生）
	profile := r.profileFor(ctx, req.UserID)
	decision := r.access.ValidateAccess(qt, profile, len(req.Image.Data))
	if !decision.Allowed {
		r.recordOutcome(qt.ID, "denied", start, 0)
		return nil, &vision.AccessDeniedError{
			Reason:        decision.Reason,
			SuggestedTier: decision.SuggestedTier,
			Detail:        decision.Detail,
		}
	}
	defer r.access.Release(req.UserID)

	// 阶段 3：选型（终态失败，需层级升级）
	sel, err := r.selector.SelectModel(qt, profile.Tier, selector.Options{
		Preference: req.PreferredModel,
	})
	if err != nil {
		r.recordOutcome(qt.ID, "no_model", start, 0)
		return nil, err
	}

	// 阶段 4：成本优化（从不失败）
	candidate := r.optimizer.OptimizeRoute(qt.ID, req.Question, sel.Candidate, optimizer.BudgetFromProfile(profile))

	// 阶段 5：缓存查询
	key, strategy, keyErr := r.keys.BuildKey(ctx, candidate.ServiceID, req.Image, req.Question, req.Params)
	if keyErr != nil {
		// 未注册服务类型的候选仍可调度，只是无法缓存
		r.logger.Warn("Cache key unavailable, proceeding uncached",
			zap.String("service", candidate.ServiceID), zap.Error(keyErr))
	} else if payload, source, ok := r.store.Get(ctx, key, strategy); ok {
		if result, ok := decodeResult(payload); ok {
			result.Source = vision.ResultSource(source)
			r.access.TrackAccess(req.UserID, qt.ID, candidate.ServiceID, 0)
			r.recordOutcome(qt.ID, "cache_hit", start, 0)
			span.SetAttributes(attribute.String("cache.source", source))
			return result, nil
		}
	}

	// 阶段 6：调度 + 降级；相同键的并发未命中可合并
	result := r.dispatch(ctx, req, qt, candidate, key, strategy, keyErr == nil)

	if !result.Error {
		r.access.TrackAccess(req.UserID, qt.ID, result.ServiceType, result.Cost)
	}
	r.recordOutcome(qt.ID, outcomeLabel(result), start, result.Cost)
	return result, nil
}

// classify 阶段封装，带 span
func (r *Router) classify(ctx context.Context, question string) classifier.Classification {
	_, span := r.tracer.Start(ctx, "router.classify")
	defer span.End()

	cls := r.classifier.Classify(question)
	span.SetAttributes(
		attribute.String("question_type", cls.Type.ID),
		attribute.Float64("confidence", cls.Confidence))
	return cls
}

// profileFor 读取用户画像；账单协作者失败时降级为免费层画像
func (r *Router) profileFor(ctx context.Context, userID string) *vision.UserTierProfile {
	if r.users == nil {
		return &vision.UserTierProfile{UserID: userID, Tier: vision.TierFree}
	}
	profile, err := r.users.GetUserTierProfile(ctx, userID)
	if err != nil || profile == nil {
		r.logger.Warn("Profile lookup failed, assuming free tier",
			zap.String("user_id", userID), zap.Error(err))
		return &vision.UserTierProfile{UserID: userID, Tier: vision.TierFree}
	}
	return profile
}

// dispatch 执行上游调度与降级链，成功时回写缓存
func (r *Router) dispatch(ctx context.Context, req *vision.AnalyzeRequest, qt vision.QuestionType, candidate vision.RouteCandidate, key string, strategy keystrategy.ServiceStrategy, cacheable bool) *vision.AnalysisResult {
	run := func() *vision.AnalysisResult {
		return r.dispatchOnce(ctx, req, qt, candidate, key, strategy, cacheable)
	}

	if !r.config.CoalesceRequests || !cacheable {
		return run()
	}

	// 并发去重：相同键的第二个调用者等待第一个的结果
	v, err, shared := r.inflight.Do(key, func() (any, error) {
		return run(), nil
	})
	if err != nil || v == nil {
		return run()
	}
	if shared {
		r.logger.Debug("Coalesced duplicate in-flight request", zap.String("key", key))
	}
	return v.(*vision.AnalysisResult)
}

func (r *Router) dispatchOnce(ctx context.Context, req *vision.AnalyzeRequest, qt vision.QuestionType, candidate vision.RouteCandidate, key string, strategy keystrategy.ServiceStrategy, cacheable bool) *vision.AnalysisResult {
	ctx, span := r.tracer.Start(ctx, "router.dispatch",
		trace.WithAttributes(attribute.String("service", candidate.ServiceID)))
	defer span.End()

	result, err := r.services.Dispatch(ctx, candidate.ServiceID, req)
	if err != nil {
		span.SetAttributes(attribute.Bool("fallback", true))
		r.logger.Warn("Primary dispatch failed, entering fallback chain",
			zap.String("service", candidate.ServiceID), zap.Error(err))

		chain := r.fallback.BuildChain(qt.ID, candidate.ServiceID, r.tierOf(ctx, req.UserID))
		exec := r.fallback.Execute(ctx, req, chain, r.services.Dispatch)
		result = exec.Result
		if !exec.Success {
			return result
		}
	}

	if result.ModelID == "" {
		result.ModelID = candidate.ModelID
	}
	if result.Source == "" {
		result.Source = vision.SourceService
	}

	// 取消后不再回写：半完成的调度不得进入缓存
	if cacheable && ctx.Err() == nil && !result.Error {
		if ok := r.store.Set(ctx, key, result, strategy); !ok {
			r.logger.Debug("Cache write-through failed", zap.String("key", key))
		}
	}
	return result
}

// tierOf 降级链构建所需的层级视图
func (r *Router) tierOf(ctx context.Context, userID string) vision.Tier {
	return r.profileFor(ctx, userID).Tier
}

func (r *Router) recordOutcome(questionType, status string, start time.Time, cost float64) {
	r.metrics.RecordAnalyzeRequest(questionType, "", status, time.Since(start), cost)
}

func decodeResult(payload json.RawMessage) (*vision.AnalysisResult, bool) {
	var result vision.AnalysisResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, false
	}
	return &result, true
}

func outcomeLabel(result *vision.AnalysisResult) string {
	if result.Error {
		return "degraded"
	}
	return "success"
}
