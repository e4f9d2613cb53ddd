package config

import "time"

// =============================================================================
// 🎁 默认配置
// =============================================================================

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Redis:     DefaultRedisConfig(),
		Database:  DefaultDatabaseConfig(),
		Cache:     DefaultCacheConfig(),
		Router:    DefaultRouterConfig(),
		Auth:      DefaultAuthConfig(),
		Services:  DefaultServicesConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9090,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    60 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    200,
		RateLimitBurst:  400,
		MaxBodyBytes:    96 << 20,
	}
}

// DefaultRedisConfig 默认快速层配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     20,
		MinIdleConns: 5,
		OpTimeout:    3 * time.Second,
	}
}

// DefaultDatabaseConfig 默认持久层配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "sqlite",
		DSN:             "framesense.db",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
	}
}

// DefaultCacheConfig 默认缓存行为配置
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		PromotionTTLCap:      time.Hour,
		CompressionThreshold: 1024,
		CleanupInterval:      10 * time.Minute,
		WarmingInterval:      30 * time.Minute,
		WarmingLimit:         20,
		TrackerResetInterval: 24 * time.Hour,
	}
}

// DefaultRouterConfig 默认路由配置
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		CoalesceRequests:    true,
		SimilarityThreshold: 90.0,
	}
}

// DefaultAuthConfig 默认鉴权配置
func DefaultAuthConfig() AuthConfig {
	return AuthConfig{
		JWTSecret:  "",
		SessionTTL: 24 * time.Hour,
	}
}

// DefaultServicesConfig 默认上游服务端点配置
//
// 基础 URL 留空，部署方通过 YAML 提供真实端点；
// 留空的端点会在启动时被跳过并记录警告。
func DefaultServicesConfig() []ServiceEndpoint {
	return []ServiceEndpoint{
		{ID: "OCR_RESULTS", Timeout: 15 * time.Second, CostPerRequest: 0,
			Capabilities: []string{"ocr", "text"}},
		{ID: "VISION_ANALYSIS", Timeout: 20 * time.Second, CostPerRequest: 0.002,
			Capabilities: []string{"scene", "labels", "ocr"}},
		{ID: "QUICK_ANSWERS", Timeout: 10 * time.Second, CostPerRequest: 0.001,
			Capabilities: []string{"qa"}},
		{ID: "FACE_DETECTION", Timeout: 15 * time.Second, CostPerRequest: 0.004,
			Capabilities: []string{"faces"}},
		{ID: "LLM_VISION", Timeout: 45 * time.Second, CostPerRequest: 0.01,
			Capabilities: []string{"ocr", "scene", "qa", "reasoning"}},
	}
}

// DefaultLogConfig 默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "framesense",
		Environment:  "development",
		SampleRate:   0.1,
	}
}
