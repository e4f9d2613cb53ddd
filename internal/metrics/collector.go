// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 分析请求指标
	analyzeRequestsTotal   *prometheus.CounterVec
	analyzeRequestDuration *prometheus.HistogramVec
	analyzeCost            *prometheus.CounterVec

	// 缓存指标
	cacheLookups          *prometheus.CounterVec
	compressionBytesSaved prometheus.Counter
	costSavings           prometheus.Counter

	// 降级指标
	fallbackInvocations *prometheus.CounterVec

	// 原子镜像，供 Snapshot 导出
	hitsFast        atomic.Int64
	hitsDurable     atomic.Int64
	misses          atomic.Int64
	lookupErrors    atomic.Int64
	bytesSaved      atomic.Int64
	fallbackTotal   atomic.Int64
	fallbackSuccess atomic.Int64
	costSavedMicros atomic.Int64
	costSpentMicros atomic.Int64
	analyzeTotal    atomic.Int64

	logger *zap.Logger
}

// 缓存查询来源标签
const (
	SourceFast    = "fast"
	SourceDurable = "durable"
	SourceMiss    = "miss"
	SourceError   = "error"
)

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// 分析请求指标
	c.analyzeRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyze_requests_total",
			Help:      "Total number of analysis requests",
		},
		[]string{"question_type", "service", "status"},
	)

	c.analyzeRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analyze_request_duration_seconds",
			Help:      "Analysis request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"question_type", "service"},
	)

	c.analyzeCost = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyze_cost_total",
			Help:      "Total upstream cost in USD",
		},
		[]string{"service", "model"},
	)

	// 缓存指标
	c.cacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Total number of cache lookups by source",
		},
		[]string{"source"},
	)

	c.compressionBytesSaved = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_compression_bytes_saved_total",
			Help:      "Total bytes saved by cache payload compression",
		},
	)

	c.costSavings = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_cost_savings_total",
			Help:      "Total estimated USD saved by cache hits",
		},
	)

	// 降级指标
	c.fallbackInvocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallback_invocations_total",
			Help:      "Total number of fallback chain step invocations",
		},
		[]string{"service", "outcome"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if c == nil {
		return
	}
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// =============================================================================
// 🔍 分析请求指标记录
// =============================================================================

// RecordAnalyzeRequest 记录一次分析请求
func (c *Collector) RecordAnalyzeRequest(questionType, service, status string, duration time.Duration, cost float64) {
	if c == nil {
		return
	}
	c.analyzeRequestsTotal.WithLabelValues(questionType, service, status).Inc()
	c.analyzeRequestDuration.WithLabelValues(questionType, service).Observe(duration.Seconds())
	c.analyzeTotal.Add(1)
	c.costSpentMicros.Add(int64(cost * 1e6))
}

// RecordUpstreamCost 记录上游花费
func (c *Collector) RecordUpstreamCost(service, model string, cost float64) {
	if c == nil {
		return
	}
	c.analyzeCost.WithLabelValues(service, model).Add(cost)
}

// =============================================================================
// 💾 缓存指标记录
// =============================================================================

// RecordCacheLookup 按来源记录一次缓存查询
func (c *Collector) RecordCacheLookup(source string) {
	if c == nil {
		return
	}
	c.cacheLookups.WithLabelValues(source).Inc()

	switch source {
	case SourceFast:
		c.hitsFast.Add(1)
	case SourceDurable:
		c.hitsDurable.Add(1)
	case SourceMiss:
		c.misses.Add(1)
	case SourceError:
		c.lookupErrors.Add(1)
	}
}

// RecordCompressionSaved 记录压缩节省的字节数
func (c *Collector) RecordCompressionSaved(bytes int64) {
	if c == nil || bytes <= 0 {
		return
	}
	c.compressionBytesSaved.Add(float64(bytes))
	c.bytesSaved.Add(bytes)
}

// RecordCostSaving 记录缓存命中节省的费用
func (c *Collector) RecordCostSaving(amount float64) {
	if c == nil || amount <= 0 {
		return
	}
	c.costSavings.Add(amount)
	c.costSavedMicros.Add(int64(amount * 1e6))
}

// =============================================================================
// 🪂 降级指标记录
// =============================================================================

// RecordFallback 记录降级链的一次步骤执行
func (c *Collector) RecordFallback(service string, success bool) {
	if c == nil {
		return
	}
	outcome := "failure"
	if success {
		outcome = "success"
	}
	c.fallbackInvocations.WithLabelValues(service, outcome).Inc()

	c.fallbackTotal.Add(1)
	if success {
		c.fallbackSuccess.Add(1)
	}
}

// =============================================================================
// 📸 只读快照
// =============================================================================

// Snapshot 指标只读快照
type Snapshot struct {
	CacheHitsFast        int64   `json:"cache_hits_fast"`
	CacheHitsDurable     int64   `json:"cache_hits_durable"`
	CacheMisses          int64   `json:"cache_misses"`
	CacheLookupErrors    int64   `json:"cache_lookup_errors"`
	CompressionSavedByte int64   `json:"compression_bytes_saved"`
	FallbackInvocations  int64   `json:"fallback_invocations"`
	FallbackSuccesses    int64   `json:"fallback_successes"`
	FallbackSuccessRate  float64 `json:"fallback_success_rate"`
	CostSaved            float64 `json:"cost_saved"`
	CostSpent            float64 `json:"cost_spent"`
	AnalyzeRequests      int64   `json:"analyze_requests"`
}

// Snapshot 导出当前指标快照
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}

	s := Snapshot{
		CacheHitsFast:        c.hitsFast.Load(),
		CacheHitsDurable:     c.hitsDurable.Load(),
		CacheMisses:          c.misses.Load(),
		CacheLookupErrors:    c.lookupErrors.Load(),
		CompressionSavedByte: c.bytesSaved.Load(),
		FallbackInvocations:  c.fallbackTotal.Load(),
		FallbackSuccesses:    c.fallbackSuccess.Load(),
		CostSaved:            float64(c.costSavedMicros.Load()) / 1e6,
		CostSpent:            float64(c.costSpentMicros.Load()) / 1e6,
		AnalyzeRequests:      c.analyzeTotal.Load(),
	}
	if s.FallbackInvocations > 0 {
		s.FallbackSuccessRate = float64(s.FallbackSuccesses) / float64(s.FallbackInvocations)
	}
	return s
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
