// 版权所有 2024 FrameSense Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

// 包 fallback 构建并执行按问题类型/层级定制的降级链。
//
// 状态机：primary → fallback… → cache-similar → error（终态）。
// 终态步骤必然"成功"：产生结构化降级响应而非异常，调用方永远
// 不会从本组件收到未处理的错误。
package fallback

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/framesense/framesense/internal/metrics"
	"github.com/framesense/framesense/vision"
	"github.com/framesense/framesense/vision/cachestore"
	"github.com/framesense/framesense/vision/keystrategy"
)

// =============================================================================
// 🪂 降级管理器
// =============================================================================

// defaultSimilarityThreshold 感知哈希相似度的命中阈值（百分比）
const defaultSimilarityThreshold = 90.0

// maxSimilarityScan 相似度查找最多检视的候选键数
const maxSimilarityScan = 256

// DispatchFunc 上游服务调度回调，由路由器注入
type DispatchFunc func(ctx context.Context, serviceID string, req *vision.AnalyzeRequest) (*vision.AnalysisResult, error)

// Attempt 单次链步骤的执行记录
type Attempt struct {
	ServiceID string        `json:"service_id"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// ExecuteResult 降级链执行结果
// Success 为 false 时 Result 仍非空：终态步骤产生的结构化降级响应
type ExecuteResult struct {
	Success  bool                   `json:"success"`
	Result   *vision.AnalysisResult `json:"result"`
	Attempts []Attempt              `json:"attempts"`
	Elapsed  time.Duration          `json:"elapsed"`
}

// Manager 降级管理器
type Manager struct {
	chains    map[string][]ChainEntry
	store     *cachestore.TieredStore
	keys      *keystrategy.Builder
	metrics   *metrics.Collector
	logger    *zap.Logger
	threshold float64
}

// ManagerOption 管理器可选项
type ManagerOption func(*Manager)

// WithChains 覆盖内置链模板
func WithChains(chains map[string][]ChainEntry) ManagerOption {
	return func(m *Manager) { m.chains = chains }
}

// WithSimilarityThreshold 覆盖相似度命中阈值
func WithSimilarityThreshold(threshold float64) ManagerOption {
	return func(m *Manager) { m.threshold = threshold }
}

// NewManager 创建降级管理器
// store/keys 允许为 nil：cache 步骤直接跳过
func NewManager(store *cachestore.TieredStore, keys *keystrategy.Builder, collector *metrics.Collector, logger *zap.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		chains:    DefaultChains(),
		store:     store,
		keys:      keys,
		metrics:   collector,
		logger:    logger.With(zap.String("component", "fallback_manager")),
		threshold: defaultSimilarityThreshold,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Execute 按序执行降级链
// 服务步骤在各自的重试策略下调度；cache 步骤做相似度查找并短路；
// error 步骤永远成功，产出结构化降级响应
func (m *Manager) Execute(ctx context.Context, req *vision.AnalyzeRequest, chain []ChainEntry, dispatch DispatchFunc) ExecuteResult {
	start := time.Now()
	var attempts []Attempt
	var lastErr error

	for _, entry := range chain {
		switch entry.Condition {
		case StepPrimary, StepFallback:
			result, attempt, err := m.runService(ctx, entry, req, dispatch)
			attempts = append(attempts, attempt)
			if err == nil {
				m.metrics.RecordFallback(entry.ServiceID, true)
				return ExecuteResult{
					Success:  true,
					Result:   result,
					Attempts: attempts,
					Elapsed:  time.Since(start),
				}
			}
			lastErr = err
			m.metrics.RecordFallback(entry.ServiceID, false)

		case StepCache:
			stepStart := time.Now()
			result, ok := m.trySimilarCache(ctx, req, chain)
			attempt := Attempt{ServiceID: "cache_similar", Duration: time.Since(stepStart)}
			if ok {
				attempts = append(attempts, attempt)
				m.metrics.RecordFallback("cache_similar", true)
				return ExecuteResult{
					Success:  true,
					Result:   result,
					Attempts: attempts,
					Elapsed:  time.Since(start),
				}
			}
			attempt.Error = "no similar cached result"
			attempts = append(attempts, attempt)
			m.metrics.RecordFallback("cache_similar", false)

		case StepError:
			// 终态：必然成功的降级响应
			return ExecuteResult{
				Success:  false,
				Result:   m.degradedResult(lastErr),
				Attempts: attempts,
				Elapsed:  time.Since(start),
			}
		}

		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}
	}

	// 模板缺失 error 步骤时同样给出结构化降级响应
	return ExecuteResult{
		Success:  false,
		Result:   m.degradedResult(lastErr),
		Attempts: attempts,
		Elapsed:  time.Since(start),
	}
}

// runService 在步骤自带的重试策略下调度单个服务
func (m *Manager) runService(ctx context.Context, entry ChainEntry, req *vision.AnalyzeRequest, dispatch DispatchFunc) (*vision.AnalysisResult, Attempt, error) {
	stepStart := time.Now()
	var lastErr error

	for try := 0; try <= entry.Retry.MaxRetries; try++ {
		if try > 0 {
			if !sleepCtx(ctx, entry.Retry.Backoff) {
				lastErr = ctx.Err()
				break
			}
		}

		result, err := dispatch(ctx, entry.ServiceID, req)
		if err == nil {
			return result, Attempt{
				ServiceID: entry.ServiceID,
				Duration:  time.Since(stepStart),
			}, nil
		}
		lastErr = err

		cls := ClassifyError(err)
		m.logger.Warn("Service dispatch failed",
			zap.String("service", entry.ServiceID),
			zap.String("kind", string(cls.Kind)),
			zap.Int("attempt", try+1),
			zap.Error(err))
		if !cls.Retryable {
			break
		}
	}

	return nil, Attempt{
		ServiceID: entry.ServiceID,
		Error:     lastErr.Error(),
		Duration:  time.Since(stepStart),
	}, lastErr
}

// trySimilarCache 在链内各服务的键空间里做感知哈希相似度查找
func (m *Manager) trySimilarCache(ctx context.Context, req *vision.AnalyzeRequest, chain []ChainEntry) (*vision.AnalysisResult, bool) {
	if m.store == nil || m.keys == nil {
		return nil, false
	}

	wantHash := m.keys.ImageHash(req.Image)

	for _, entry := range chain {
		if entry.Condition != StepPrimary && entry.Condition != StepFallback {
			continue
		}
		strategy, ok := m.keys.Strategy(entry.ServiceID)
		if !ok {
			continue
		}
		segment := strategy.ImageHashSegment()
		if segment < 0 {
			continue
		}

		keys := m.store.KeysByPattern(ctx, strategy.KeyGlob())
		if len(keys) > maxSimilarityScan {
			keys = keys[:maxSimilarityScan]
		}

		for _, key := range keys {
			hash, ok := keySegment(key, segment)
			if !ok {
				continue
			}
			similarity := keystrategy.Similarity(wantHash, hash)
			if similarity < m.threshold {
				continue
			}

			payload, source, ok := m.store.GetRaw(ctx, key)
			if !ok {
				continue
			}
			var result vision.AnalysisResult
			if err := json.Unmarshal(payload, &result); err != nil {
				continue
			}

			m.logger.Info("Similar cached result reused",
				zap.String("key", key),
				zap.String("source", source),
				zap.Float64("similarity", similarity))
			result.Source = vision.ResultSource(source)
			return &result, true
		}
	}
	return nil, false
}

// degradedResult 终态降级响应：分类、消息、建议动作、可重试性
func (m *Manager) degradedResult(lastErr error) *vision.AnalysisResult {
	cls := ClassifyError(lastErr)
	return &vision.AnalysisResult{
		Source:           vision.SourceError,
		Error:            true,
		ErrorKind:        string(cls.Kind),
		Message:          cls.Message,
		SuggestedActions: cls.Actions,
		Retryable:        cls.Retryable,
	}
}

// keySegment 取冒号分段键的第 idx 段
func keySegment(key string, idx int) (string, bool) {
	start := 0
	seg := 0
	for i := 0; i <= len(key); i++ {
		if i == len(key) || key[i] == ':' {
			if seg == idx {
				return key[start:i], true
			}
			seg++
			start = i + 1
		}
	}
	return "", false
}

// sleepCtx 可取消的固定退避，返回 false 表示上下文已取消
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
