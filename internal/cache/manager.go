// Package cache provides internal fast-tier cache management.
// This package is internal and should not be imported by external projects.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// =============================================================================
// 💾 快速层缓存管理器
// =============================================================================

// Manager 快速层缓存管理器
type Manager struct {
	redis  *redis.Client
	config Config
	logger *zap.Logger
	mu     sync.RWMutex
	closed bool
}

// Config 快速层配置
type Config struct {
	// Redis 地址
	Addr string `yaml:"addr" json:"addr"`

	// 密码
	Password string `yaml:"password" json:"password"`

	// 数据库编号
	DB int `yaml:"db" json:"db"`

	// 默认过期时间
	DefaultTTL time.Duration `yaml:"default_ttl" json:"default_ttl"`

	// 单次操作超时：快速层不可达时的阻塞上界
	OpTimeout time.Duration `yaml:"op_timeout" json:"op_timeout"`

	// 最大重试次数
	MaxRetries int `yaml:"max_retries" json:"max_retries"`

	// 连接池大小
	PoolSize int `yaml:"pool_size" json:"pool_size"`

	// 最小空闲连接数
	MinIdleConns int `yaml:"min_idle_conns" json:"min_idle_conns"`

	// 健康检查间隔
	HealthCheckInterval time.Duration `yaml:"health_check_interval" json:"health_check_interval"`
}

// DefaultConfig 返回默认快速层配置
func DefaultConfig() Config {
	return Config{
		Addr:                "localhost:6379",
		Password:            "",
		DB:                  0,
		DefaultTTL:          5 * time.Minute,
		OpTimeout:           2 * time.Second,
		MaxRetries:          3,
		PoolSize:            10,
		MinIdleConns:        2,
		HealthCheckInterval: 30 * time.Second,
	}
}

// NewManager 创建快速层管理器
func NewManager(config Config, logger *zap.Logger) (*Manager, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		MaxRetries:   config.MaxRetries,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	m := &Manager{
		redis:  client,
		config: config,
		logger: logger.With(zap.String("component", "fast_tier")),
	}

	// 启动健康检查
	if config.HealthCheckInterval > 0 {
		go m.healthCheckLoop()
	}

	logger.Info("fast tier initialized",
		zap.String("addr", config.Addr),
		zap.Int("pool_size", config.PoolSize),
	)

	return m, nil
}

// =============================================================================
// 🎯 核心方法
// =============================================================================

// opContext 为单次操作加上超时上界
func (m *Manager) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.config.OpTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, m.config.OpTimeout)
}

// Get 获取缓存值
func (m *Manager) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("fast tier is closed")
	}

	ctx, cancel := m.opContext(ctx)
	defer cancel()

	val, err := m.redis.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ErrCacheMiss
	}
	if err != nil {
		m.logger.Warn("fast tier get failed", zap.String("key", key), zap.Error(err))
		return nil, fmt.Errorf("fast tier get failed: %w", err)
	}

	return val, nil
}

// Set 设置缓存值
func (m *Manager) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return fmt.Errorf("fast tier is closed")
	}

	if ttl <= 0 {
		ttl = m.config.DefaultTTL
	}

	ctx, cancel := m.opContext(ctx)
	defer cancel()

	if err := m.redis.Set(ctx, key, value, ttl).Err(); err != nil {
		m.logger.Warn("fast tier set failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("fast tier set failed: %w", err)
	}

	return nil
}

// Delete 删除缓存值，返回删除数量
func (m *Manager) Delete(ctx context.Context, keys ...string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return 0, fmt.Errorf("fast tier is closed")
	}

	if len(keys) == 0 {
		return 0, nil
	}

	ctx, cancel := m.opContext(ctx)
	defer cancel()

	removed, err := m.redis.Del(ctx, keys...).Result()
	if err != nil {
		m.logger.Warn("fast tier delete failed", zap.Strings("keys", keys), zap.Error(err))
		return 0, fmt.Errorf("fast tier delete failed: %w", err)
	}

	return removed, nil
}

// Exists 检查键是否存在
func (m *Manager) Exists(ctx context.Context, keys ...string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return 0, fmt.Errorf("fast tier is closed")
	}

	ctx, cancel := m.opContext(ctx)
	defer cancel()

	count, err := m.redis.Exists(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("fast tier exists check failed: %w", err)
	}

	return count, nil
}

// Expire 设置键的过期时间
func (m *Manager) Expire(ctx context.Context, key string, ttl time.Duration) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return fmt.Errorf("fast tier is closed")
	}

	ctx, cancel := m.opContext(ctx)
	defer cancel()

	if err := m.redis.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("fast tier expire failed: %w", err)
	}

	return nil
}

// ScanPattern 按 glob 模式扫描键，分批迭代不阻塞 Redis
func (m *Manager) ScanPattern(ctx context.Context, pattern string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("fast tier is closed")
	}

	ctx, cancel := m.opContext(ctx)
	defer cancel()

	var keys []string
	iter := m.redis.Scan(ctx, 0, pattern, 200).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("fast tier scan failed: %w", err)
	}

	return keys, nil
}

// Ping 检查 Redis 连接
func (m *Manager) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return fmt.Errorf("fast tier is closed")
	}

	return m.redis.Ping(ctx).Err()
}

// Close 关闭快速层管理器
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}

	m.closed = true
	m.logger.Info("closing fast tier")

	return m.redis.Close()
}

// =============================================================================
// 🏥 健康检查
// =============================================================================

// healthCheckLoop 健康检查循环
func (m *Manager) healthCheckLoop() {
	ticker := time.NewTicker(m.config.HealthCheckInterval)
	defer ticker.Stop()

	for range ticker.C {
		m.mu.RLock()
		if m.closed {
			m.mu.RUnlock()
			return
		}
		m.mu.RUnlock()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := m.Ping(ctx); err != nil {
			m.logger.Error("fast tier health check failed", zap.Error(err))
		} else {
			m.logger.Debug("fast tier health check passed")
		}
		cancel()
	}
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// ErrCacheMiss 缓存未命中错误
var ErrCacheMiss = fmt.Errorf("cache miss")

// IsCacheMiss 判断是否为缓存未命中错误
func IsCacheMiss(err error) bool {
	return err == ErrCacheMiss
}
