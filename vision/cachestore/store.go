package cachestore

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/framesense/framesense/internal/cache"
	"github.com/framesense/framesense/internal/metrics"
	"github.com/framesense/framesense/vision/keystrategy"
)

// =============================================================================
// 💾 两级缓存存储
// =============================================================================

// Config 两级存储配置
type Config struct {
	// PromotionTTLCap 持久层命中提升到快速层时的 TTL 上限
	PromotionTTLCap time.Duration `yaml:"promotion_ttl_cap" json:"promotion_ttl_cap"`

	// CompressionThreshold 小于该字节数不压缩
	CompressionThreshold int `yaml:"compression_threshold" json:"compression_threshold"`

	// CleanupInterval 过期持久层行的清理周期
	CleanupInterval time.Duration `yaml:"cleanup_interval" json:"cleanup_interval"`

	// WarmingInterval 预热候选扫描周期
	WarmingInterval time.Duration `yaml:"warming_interval" json:"warming_interval"`

	// WarmingLimit 每个服务类型的预热候选上限
	WarmingLimit int `yaml:"warming_limit" json:"warming_limit"`

	// TrackerResetInterval 热门查询追踪表的清空周期
	TrackerResetInterval time.Duration `yaml:"tracker_reset_interval" json:"tracker_reset_interval"`
}

// DefaultConfig 返回默认两级存储配置
func DefaultConfig() Config {
	return Config{
		PromotionTTLCap:      time.Hour,
		CompressionThreshold: compressThreshold,
		CleanupInterval:      10 * time.Minute,
		WarmingInterval:      30 * time.Minute,
		WarmingLimit:         20,
		TrackerResetInterval: 24 * time.Hour,
	}
}

// TieredStore 两级缓存存储：Redis 快速层 + GORM 持久层
// 任一层不可达时降级为未命中，从不向调用方传播存储错误
type TieredStore struct {
	fast    *cache.Manager
	db      *gorm.DB
	metrics *metrics.Collector
	logger  *zap.Logger
	config  Config
	tracker *popularTracker

	stopCh chan struct{}
}

// StoreOption 存储可选项
type StoreOption func(*TieredStore)

// WithConfig 覆盖默认配置
func WithConfig(cfg Config) StoreOption {
	return func(s *TieredStore) {
		if cfg.PromotionTTLCap > 0 {
			s.config.PromotionTTLCap = cfg.PromotionTTLCap
		}
		if cfg.CompressionThreshold > 0 {
			s.config.CompressionThreshold = cfg.CompressionThreshold
		}
		if cfg.CleanupInterval > 0 {
			s.config.CleanupInterval = cfg.CleanupInterval
		}
		if cfg.WarmingInterval > 0 {
			s.config.WarmingInterval = cfg.WarmingInterval
		}
		if cfg.WarmingLimit > 0 {
			s.config.WarmingLimit = cfg.WarmingLimit
		}
		if cfg.TrackerResetInterval > 0 {
			s.config.TrackerResetInterval = cfg.TrackerResetInterval
		}
	}
}

// NewTieredStore 创建两级存储
// fast 或 db 允许为 nil：对应层自动降级为不可用
func NewTieredStore(fast *cache.Manager, db *gorm.DB, collector *metrics.Collector, logger *zap.Logger, opts ...StoreOption) *TieredStore {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &TieredStore{
		fast:    fast,
		db:      db,
		metrics: collector,
		logger:  logger.With(zap.String("component", "tiered_store")),
		config:  DefaultConfig(),
		tracker: newPopularTracker(),
		stopCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get 按策略查询缓存
// 返回值 source 取 fast/durable/miss/error 之一；ok 为 false 时 payload 为 nil
func (s *TieredStore) Get(ctx context.Context, key string, strategy keystrategy.ServiceStrategy) (json.RawMessage, string, bool) {
	// 快速层优先
	if payload, ok := s.getFast(ctx, key); ok {
		s.recordHit(key, metrics.SourceFast, strategy)
		return payload, metrics.SourceFast, true
	}

	// 仅持久类策略查第二层
	if strategy.Storage != keystrategy.TierDurable || s.db == nil {
		s.metrics.RecordCacheLookup(metrics.SourceMiss)
		return nil, metrics.SourceMiss, false
	}

	payload, ok := s.getDurable(ctx, key)
	if !ok {
		s.metrics.RecordCacheLookup(metrics.SourceMiss)
		return nil, metrics.SourceMiss, false
	}

	// 持久层命中：提升到快速层，TTL 取策略值与上限的较小者
	s.promote(ctx, key, payload, strategy)
	s.recordHit(key, metrics.SourceDurable, strategy)
	return payload, metrics.SourceDurable, true
}

// Set 按策略写入缓存，返回是否至少写成功一层
func (s *TieredStore) Set(ctx context.Context, key string, value any, strategy keystrategy.ServiceStrategy) bool {
	raw, err := json.Marshal(value)
	if err != nil {
		s.logger.Warn("Failed to marshal cache value", zap.String("key", key), zap.Error(err))
		return false
	}

	env := envelope{Data: raw}
	if strategy.Compress && len(raw) > s.config.CompressionThreshold {
		compressed, saved, cerr := compressPayload(raw)
		if cerr != nil {
			// 压缩失败降级为明文
			s.logger.Debug("Compression failed, storing uncompressed",
				zap.String("key", key), zap.Error(cerr))
		} else {
			env = envelope{Compressed: true, Algorithm: algorithmGzip, Data: compressed}
			s.metrics.RecordCompressionSaved(saved)
		}
	}

	encoded, err := json.Marshal(env)
	if err != nil {
		s.logger.Warn("Failed to encode cache envelope", zap.String("key", key), zap.Error(err))
		return false
	}

	stored := false

	if strategy.Storage == keystrategy.TierDurable && s.db != nil {
		if s.setDurable(ctx, key, env, strategy) {
			stored = true
		}
	}

	// 快速层镜像：持久类策略的 TTL 也受提升上限约束
	ttl := strategy.TTL
	if strategy.Storage == keystrategy.TierDurable && ttl > s.config.PromotionTTLCap {
		ttl = s.config.PromotionTTLCap
	}
	if s.fast != nil {
		if err := s.fast.Set(ctx, key, encoded, ttl); err != nil {
			s.logger.Debug("Fast tier set failed", zap.String("key", key), zap.Error(err))
		} else {
			stored = true
		}
	}

	return stored
}

// Invalidate 按 glob 模式删除两层中的匹配键，返回删除总数
func (s *TieredStore) Invalidate(ctx context.Context, pattern string) (int64, error) {
	var total int64

	if s.fast != nil {
		keys, err := s.fast.ScanPattern(ctx, pattern)
		if err != nil {
			s.logger.Warn("Fast tier scan failed during invalidation",
				zap.String("pattern", pattern), zap.Error(err))
		} else if len(keys) > 0 {
			deleted, derr := s.fast.Delete(ctx, keys...)
			if derr != nil {
				s.logger.Warn("Fast tier delete failed during invalidation",
					zap.String("pattern", pattern), zap.Error(derr))
			}
			total += deleted
		}
	}

	if s.db != nil {
		result := s.db.WithContext(ctx).
			Where("cache_key LIKE ?", globToLike(pattern)).
			Delete(&CacheEntry{})
		if result.Error != nil {
			return total, result.Error
		}
		total += result.RowsAffected
	}

	s.logger.Info("Cache invalidated",
		zap.String("pattern", pattern),
		zap.Int64("deleted", total))
	return total, nil
}

// KeysByPattern 返回两层中匹配 glob 的键并集，降级管理器用它做相似度查找
// 持久类策略的快速层镜像可能早于持久行过期，所以两层都要扫
func (s *TieredStore) KeysByPattern(ctx context.Context, pattern string) []string {
	seen := make(map[string]struct{})
	var keys []string

	if s.fast != nil {
		fastKeys, err := s.fast.ScanPattern(ctx, pattern)
		if err != nil {
			s.logger.Debug("Fast tier pattern scan failed", zap.String("pattern", pattern), zap.Error(err))
		} else {
			for _, k := range fastKeys {
				if _, dup := seen[k]; !dup {
					seen[k] = struct{}{}
					keys = append(keys, k)
				}
			}
		}
	}

	if s.db != nil {
		var durableKeys []string
		err := s.db.WithContext(ctx).Model(&CacheEntry{}).
			Where("cache_key LIKE ? AND expires_at > ?", globToLike(pattern), time.Now()).
			Pluck("cache_key", &durableKeys).Error
		if err != nil {
			s.logger.Debug("Durable tier pattern scan failed", zap.String("pattern", pattern), zap.Error(err))
		} else {
			for _, k := range durableKeys {
				if _, dup := seen[k]; !dup {
					seen[k] = struct{}{}
					keys = append(keys, k)
				}
			}
		}
	}

	return keys
}

// GetRaw 按键直接读取：快速层优先，未命中回落到持久层，不触发提升
// 相似度命中路径使用；source 取 fast/durable/miss 之一
func (s *TieredStore) GetRaw(ctx context.Context, key string) (json.RawMessage, string, bool) {
	if payload, ok := s.getFast(ctx, key); ok {
		return payload, metrics.SourceFast, true
	}
	if s.db != nil {
		if payload, ok := s.getDurable(ctx, key); ok {
			return payload, metrics.SourceDurable, true
		}
	}
	return nil, metrics.SourceMiss, false
}

// HealthCheck 返回各层健康状态
func (s *TieredStore) HealthCheck(ctx context.Context) map[string]error {
	status := make(map[string]error, 2)

	if s.fast != nil {
		status["fast_tier"] = s.fast.Ping(ctx)
	}
	if s.db != nil {
		sqlDB, err := s.db.DB()
		if err != nil {
			status["durable_tier"] = err
		} else {
			status["durable_tier"] = sqlDB.PingContext(ctx)
		}
	}
	return status
}

// Close 停止后台任务
func (s *TieredStore) Close() {
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
}

// =============================================================================
// 🔧 内部辅助
// =============================================================================

func (s *TieredStore) getFast(ctx context.Context, key string) (json.RawMessage, bool) {
	if s.fast == nil {
		return nil, false
	}

	data, err := s.fast.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Debug("Fast tier get failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}

	return s.openEnvelope(key, data)
}

func (s *TieredStore) getDurable(ctx context.Context, key string) (json.RawMessage, bool) {
	var entry CacheEntry
	err := s.db.WithContext(ctx).
		Where("cache_key = ? AND expires_at > ?", key, time.Now()).
		First(&entry).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Debug("Durable tier get failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}

	payload := json.RawMessage(entry.Payload)
	if entry.Compressed {
		decompressed, derr := decompressPayload(entry.Payload, entry.Algorithm)
		if derr != nil {
			// 解压失败按未命中处理，顺手删掉坏行
			s.logger.Warn("Failed to decompress durable entry, dropping",
				zap.String("key", key), zap.Error(derr))
			s.db.WithContext(ctx).Delete(&CacheEntry{}, "cache_key = ?", key)
			return nil, false
		}
		payload = decompressed
	}

	// 访问统计异步化会引入窗口丢失，这里直接单行更新
	s.db.WithContext(ctx).Model(&CacheEntry{}).
		Where("cache_key = ?", key).
		UpdateColumns(map[string]any{
			"access_count":     gorm.Expr("access_count + 1"),
			"last_accessed_at": time.Now(),
		})

	return payload, true
}

func (s *TieredStore) setDurable(ctx context.Context, key string, env envelope, strategy keystrategy.ServiceStrategy) bool {
	now := time.Now()
	entry := CacheEntry{
		Key:            key,
		Payload:        env.Data,
		Compressed:     env.Compressed,
		Algorithm:      env.Algorithm,
		ServiceType:    strategy.ServiceID,
		CreatedAt:      now,
		ExpiresAt:      now.Add(strategy.TTL),
		AccessCount:    0,
		LastAccessedAt: now,
		SizeBytes:      int64(len(env.Data)),
		CostSaved:      0,
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "cache_key"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"payload", "compressed", "algorithm",
				"expires_at", "size_bytes", "last_accessed_at",
			}),
		}).
		Create(&entry).Error
	if err != nil {
		s.logger.Warn("Durable tier set failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

// promote 把持久层命中写回快速层
func (s *TieredStore) promote(ctx context.Context, key string, payload json.RawMessage, strategy keystrategy.ServiceStrategy) {
	if s.fast == nil {
		return
	}

	ttl := strategy.TTL
	if ttl > s.config.PromotionTTLCap {
		ttl = s.config.PromotionTTLCap
	}

	encoded, err := json.Marshal(envelope{Data: payload})
	if err != nil {
		return
	}
	if err := s.fast.Set(ctx, key, encoded, ttl); err != nil {
		s.logger.Debug("Promotion to fast tier failed", zap.String("key", key), zap.Error(err))
	}
}

func (s *TieredStore) recordHit(key, source string, strategy keystrategy.ServiceStrategy) {
	s.metrics.RecordCacheLookup(source)
	s.metrics.RecordCostSaving(strategy.Cost.Value())
	s.tracker.Record(key)
}

func (s *TieredStore) openEnvelope(key string, data []byte) (json.RawMessage, bool) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.logger.Debug("Invalid cache envelope", zap.String("key", key), zap.Error(err))
		return nil, false
	}

	if !env.Compressed {
		return env.Data, true
	}

	payload, err := decompressPayload(env.Data, env.Algorithm)
	if err != nil {
		s.logger.Warn("Failed to decompress fast entry", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return payload, true
}

// globToLike 把 Redis 风格 glob 转成 SQL LIKE 模式
func globToLike(pattern string) string {
	var b strings.Builder
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteByte('%')
		case '?':
			b.WriteByte('_')
		case '%':
			b.WriteString(`\%`)
		case '_':
			b.WriteString(`\_`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
