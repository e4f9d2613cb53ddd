// =============================================================================
// 📦 FrameSense 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("FRAMESENSE").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 FrameSense 分析核心的完整配置结构
type Config struct {
	// Server 服务器配置
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Redis 快速层缓存配置
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Database 持久层数据库配置
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// Cache 两级缓存行为配置
	Cache CacheConfig `yaml:"cache" env:"CACHE"`

	// Router 请求路由配置
	Router RouterConfig `yaml:"router" env:"ROUTER"`

	// Auth 会话鉴权配置
	Auth AuthConfig `yaml:"auth" env:"AUTH"`

	// Access 层级配额配置
	Access AccessConfig `yaml:"access" env:"ACCESS"`

	// Services 上游视觉服务端点配置（仅 YAML）
	Services []ServiceEndpoint `yaml:"services" env:"-"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// HTTP 端口
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// Metrics 端口
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// 全局限速 RPS
	RateLimitRPS float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	// 全局限速突发额度
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	// 请求体大小上限（字节）
	MaxBodyBytes int64 `yaml:"max_body_bytes" env:"MAX_BODY_BYTES"`
	// 允许的跨域来源；为空时拒绝跨域请求
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
}

// RedisConfig 快速层配置
type RedisConfig struct {
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// 最小空闲连接
	MinIdleConns int `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	// 单次操作超时
	OpTimeout time.Duration `yaml:"op_timeout" env:"OP_TIMEOUT"`
}

// DatabaseConfig 持久层配置
type DatabaseConfig struct {
	// 驱动类型: postgres, mysql, sqlite
	Driver string `yaml:"driver" env:"DRIVER"`
	// 数据源名称；sqlite 时为文件路径
	DSN string `yaml:"dsn" env:"DSN"`
	// 最大连接数
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// 最大空闲连接
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// CacheConfig 两级缓存行为配置
type CacheConfig struct {
	// 持久层命中提升到快速层的 TTL 上限
	PromotionTTLCap time.Duration `yaml:"promotion_ttl_cap" env:"PROMOTION_TTL_CAP"`
	// 压缩阈值（字节）
	CompressionThreshold int `yaml:"compression_threshold" env:"COMPRESSION_THRESHOLD"`
	// 过期清理周期
	CleanupInterval time.Duration `yaml:"cleanup_interval" env:"CLEANUP_INTERVAL"`
	// 预热扫描周期
	WarmingInterval time.Duration `yaml:"warming_interval" env:"WARMING_INTERVAL"`
	// 每服务类型预热候选上限
	WarmingLimit int `yaml:"warming_limit" env:"WARMING_LIMIT"`
	// 热门查询追踪表清空周期
	TrackerResetInterval time.Duration `yaml:"tracker_reset_interval" env:"TRACKER_RESET_INTERVAL"`
}

// RouterConfig 请求路由配置
type RouterConfig struct {
	// 相同缓存键的并发未命中合并为一次上游调用
	CoalesceRequests bool `yaml:"coalesce_requests" env:"COALESCE_REQUESTS"`
	// 感知哈希相似度命中阈值（百分比）
	SimilarityThreshold float64 `yaml:"similarity_threshold" env:"SIMILARITY_THRESHOLD"`
}

// AuthConfig 会话鉴权配置
type AuthConfig struct {
	// JWT 签名密钥；为空时仅允许匿名免费层
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET"`
	// 会话有效期
	SessionTTL time.Duration `yaml:"session_ttl" env:"SESSION_TTL"`
}

// AccessConfig 按层级的配额覆盖
// 零值字段沿用内置默认；配额表在装配时沿层级梯度钳制为单调不减
type AccessConfig struct {
	Free       TierLimitsConfig `yaml:"free" env:"FREE"`
	Pro        TierLimitsConfig `yaml:"pro" env:"PRO"`
	Premium    TierLimitsConfig `yaml:"premium" env:"PREMIUM"`
	Enterprise TierLimitsConfig `yaml:"enterprise" env:"ENTERPRISE"`
}

// TierLimitsConfig 单层级的配额覆盖项
type TierLimitsConfig struct {
	// 每日请求上限
	DailyRequests int `yaml:"daily_requests" env:"DAILY_REQUESTS"`
	// 每月请求上限
	MonthlyRequests int `yaml:"monthly_requests" env:"MONTHLY_REQUESTS"`
	// 单张图像字节上限
	MaxImageBytes int `yaml:"max_image_bytes" env:"MAX_IMAGE_BYTES"`
	// 并发请求上限
	MaxConcurrent int `yaml:"max_concurrent" env:"MAX_CONCURRENT"`
	// 突发限速
	RequestsPerSecond float64 `yaml:"requests_per_second" env:"REQUESTS_PER_SECOND"`
}

// ServiceEndpoint 单个上游视觉服务的接入配置
type ServiceEndpoint struct {
	// 服务标识，如 OCR_RESULTS
	ID string `yaml:"id"`
	// 基础 URL
	BaseURL string `yaml:"base_url"`
	// API 密钥
	APIKey string `yaml:"api_key"`
	// 调用超时
	Timeout time.Duration `yaml:"timeout"`
	// 单次调用成本（美元）
	CostPerRequest float64 `yaml:"cost_per_request"`
	// 服务能力标签
	Capabilities []string `yaml:"capabilities"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 部署环境，如 development、staging、production
	Environment string `yaml:"environment" env:"ENVIRONMENT"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "FRAMESENSE",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	// 1. 从默认值开始
	cfg := DefaultConfig()

	// 2. 如果指定了配置文件，从文件加载
	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// 3. 从环境变量覆盖
	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	// 4. 运行验证器
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		// 获取 env tag
		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		// 如果是结构体，递归处理
		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		// 获取环境变量值
		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		// 设置字段值
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv 仅从环境变量加载配置
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Database.Driver != "postgres" && c.Database.Driver != "mysql" &&
		c.Database.Driver != "sqlite" && c.Database.Driver != "" {
		errs = append(errs, "unsupported database driver: "+c.Database.Driver)
	}
	if c.Cache.CompressionThreshold < 0 {
		errs = append(errs, "compression_threshold must be non-negative")
	}
	if c.Router.SimilarityThreshold < 0 || c.Router.SimilarityThreshold > 100 {
		errs = append(errs, "similarity_threshold must be within [0, 100]")
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, "sample_rate must be within [0, 1]")
	}
	for _, tier := range []struct {
		name   string
		limits TierLimitsConfig
	}{
		{"free", c.Access.Free},
		{"pro", c.Access.Pro},
		{"premium", c.Access.Premium},
		{"enterprise", c.Access.Enterprise},
	} {
		if tier.limits.DailyRequests < 0 || tier.limits.MonthlyRequests < 0 ||
			tier.limits.MaxImageBytes < 0 || tier.limits.MaxConcurrent < 0 ||
			tier.limits.RequestsPerSecond < 0 {
			errs = append(errs, "negative access limit for tier "+tier.name)
		}
	}
	seen := make(map[string]struct{}, len(c.Services))
	for _, svc := range c.Services {
		if svc.ID == "" {
			errs = append(errs, "service endpoint with empty id")
			continue
		}
		if _, dup := seen[svc.ID]; dup {
			errs = append(errs, "duplicate service endpoint: "+svc.ID)
		}
		seen[svc.ID] = struct{}{}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(errs, "; "))
	}
	return nil
}
