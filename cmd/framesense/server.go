package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/framesense/framesense/api/handlers"
	"github.com/framesense/framesense/config"
	"github.com/framesense/framesense/internal/cache"
	"github.com/framesense/framesense/internal/database"
	"github.com/framesense/framesense/internal/metrics"
	"github.com/framesense/framesense/internal/server"
	"github.com/framesense/framesense/internal/telemetry"
	"github.com/framesense/framesense/vision"
	"github.com/framesense/framesense/vision/access"
	"github.com/framesense/framesense/vision/billing"
	"github.com/framesense/framesense/vision/cachestore"
	"github.com/framesense/framesense/vision/classifier"
	"github.com/framesense/framesense/vision/fallback"
	"github.com/framesense/framesense/vision/keystrategy"
	"github.com/framesense/framesense/vision/optimizer"
	"github.com/framesense/framesense/vision/providers"
	"github.com/framesense/framesense/vision/router"
	"github.com/framesense/framesense/vision/selector"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 FrameSense 的主服务器
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	// 服务器管理器
	httpManager    *server.Manager
	metricsManager *server.Manager

	// 分析管线
	cacheManager *cache.Manager
	store        *cachestore.TieredStore
	router       *router.Router
	pool         *database.PoolManager

	// Handlers
	healthHandler  *handlers.HealthHandler
	analyzeHandler *handlers.AnalyzeHandler

	// 指标收集器
	metricsCollector *metrics.Collector

	// 遥测
	otelProviders *telemetry.Providers

	// 后台任务与限流器生命周期管理
	backgroundCancel  context.CancelFunc
	rateLimiterCancel context.CancelFunc

	wg sync.WaitGroup
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, logger *zap.Logger, otelProviders *telemetry.Providers, pool *database.PoolManager) *Server {
	return &Server{
		cfg:           cfg,
		logger:        logger,
		otelProviders: otelProviders,
		pool:          pool,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动所有服务
func (s *Server) Start() error {
	// 1. 初始化指标收集器
	s.metricsCollector = metrics.NewCollector("framesense", s.logger)

	// 2. 持久层表结构
	if s.pool != nil {
		if err := s.pool.DB().AutoMigrate(&cachestore.CacheEntry{}, &billing.User{}, &billing.UsageRecord{}); err != nil {
			s.logger.Error("Database auto-migrate failed", zap.Error(err))
		}
	}

	// 3. 组装分析管线
	if err := s.initPipeline(); err != nil {
		return fmt.Errorf("failed to init pipeline: %w", err)
	}

	// 4. 初始化 Handlers
	s.initHandlers()

	// 5. 启动缓存后台任务
	bgCtx, bgCancel := context.WithCancel(context.Background())
	s.backgroundCancel = bgCancel
	s.store.StartBackgroundTasks(bgCtx, nil)

	// 6. 启动 HTTP 服务器
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	// 7. 启动 Metrics 服务器
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
	)

	return nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

// initPipeline 组装分类 → 访问控制 → 选择 → 优化 → 降级的完整分析管线
func (s *Server) initPipeline() error {
	// 快速层缓存：连接失败时降级为仅持久层
	cacheCfg := cache.DefaultConfig()
	cacheCfg.Addr = s.cfg.Redis.Addr
	cacheCfg.Password = s.cfg.Redis.Password
	cacheCfg.DB = s.cfg.Redis.DB
	cacheCfg.PoolSize = s.cfg.Redis.PoolSize
	cacheCfg.MinIdleConns = s.cfg.Redis.MinIdleConns
	if s.cfg.Redis.OpTimeout > 0 {
		cacheCfg.OpTimeout = s.cfg.Redis.OpTimeout
	}

	cacheManager, err := cache.NewManager(cacheCfg, s.logger)
	if err != nil {
		s.logger.Warn("Fast cache layer not available, degrading to persistent layer only",
			zap.String("addr", s.cfg.Redis.Addr), zap.Error(err))
		cacheManager = nil
	}
	s.cacheManager = cacheManager

	// 两级缓存存储
	var gdb *gorm.DB
	if s.pool != nil {
		gdb = s.pool.DB()
	}
	s.store = cachestore.NewTieredStore(cacheManager, gdb, s.metricsCollector, s.logger,
		cachestore.WithConfig(cachestore.Config{
			PromotionTTLCap:      s.cfg.Cache.PromotionTTLCap,
			CompressionThreshold: s.cfg.Cache.CompressionThreshold,
			CleanupInterval:      s.cfg.Cache.CleanupInterval,
			WarmingInterval:      s.cfg.Cache.WarmingInterval,
			WarmingLimit:         s.cfg.Cache.WarmingLimit,
			TrackerResetInterval: s.cfg.Cache.TrackerResetInterval,
		}))

	// 用户/账单存储：无持久层时降级为匿名免费层
	var users vision.UserStore
	if s.pool != nil {
		users = billing.NewGormUserStore(s.pool.DB(), s.logger)
	}

	// 上游服务注册表
	registry := buildServiceRegistry(s.cfg.Services, s.logger)

	keys := keystrategy.NewBuilder(s.logger)
	fb := fallback.NewManager(s.store, keys, s.metricsCollector, s.logger,
		fallback.WithSimilarityThreshold(s.cfg.Router.SimilarityThreshold))

	s.router = router.New(router.Deps{
		Classifier: classifier.New(),
		Access:     access.New(tierLimitsFromConfig(s.cfg.Access), users, s.logger),
		Selector:   selector.New(selector.NewDefaultRegistry(), selector.DefaultTierPolicies(), s.logger),
		Optimizer:  optimizer.New(optimizer.DefaultRoutes(), s.logger),
		Fallback:   fb,
		Store:      s.store,
		Keys:       keys,
		Services:   registry,
		Users:      users,
		Metrics:    s.metricsCollector,
		Logger:     s.logger,
	}, router.Config{
		CoalesceRequests: s.cfg.Router.CoalesceRequests,
	})

	return nil
}

// buildServiceRegistry 按端点配置装配上游服务注册表
// 未配置 BaseURL 的端点跳过并记录警告
func buildServiceRegistry(endpoints []config.ServiceEndpoint, logger *zap.Logger) *providers.Registry {
	registry := providers.NewRegistry()
	for _, ep := range endpoints {
		if ep.BaseURL == "" {
			logger.Warn("Upstream service endpoint not configured, skipping",
				zap.String("service", ep.ID))
			continue
		}
		registry.Register(ep.ID, providers.NewHTTPService(ep.ID, providers.HTTPConfig{
			BaseURL:        ep.BaseURL,
			APIKey:         ep.APIKey,
			Timeout:        ep.Timeout,
			CostPerRequest: ep.CostPerRequest,
			Capabilities:   ep.Capabilities,
		}, logger))
		logger.Info("Upstream service registered", zap.String("service", ep.ID))
	}
	return registry
}

// tierLimitsFromConfig 用配置覆盖内置配额表，零值字段沿用默认
// 单调性钳制由 access.New 在装配时完成
func tierLimitsFromConfig(cfg config.AccessConfig) map[vision.Tier]access.TierLimits {
	limits := access.DefaultTierLimits()
	for tier, override := range map[vision.Tier]config.TierLimitsConfig{
		vision.TierFree:       cfg.Free,
		vision.TierPro:        cfg.Pro,
		vision.TierPremium:    cfg.Premium,
		vision.TierEnterprise: cfg.Enterprise,
	} {
		tl := limits[tier]
		if override.DailyRequests > 0 {
			tl.DailyRequests = override.DailyRequests
		}
		if override.MonthlyRequests > 0 {
			tl.MonthlyRequests = override.MonthlyRequests
		}
		if override.MaxImageBytes > 0 {
			tl.MaxImageBytes = override.MaxImageBytes
		}
		if override.MaxConcurrent > 0 {
			tl.MaxConcurrent = override.MaxConcurrent
		}
		if override.RequestsPerSecond > 0 {
			tl.RequestsPerSecond = override.RequestsPerSecond
		}
		limits[tier] = tl
	}
	return limits
}

// initHandlers 初始化所有 handlers
func (s *Server) initHandlers() {
	s.healthHandler = handlers.NewHealthHandler(s.logger)

	if s.cacheManager != nil {
		s.healthHandler.RegisterCheck(handlers.NewPingHealthCheck("redis", s.cacheManager.Ping))
	}
	if s.pool != nil {
		s.healthHandler.RegisterCheck(handlers.NewPingHealthCheck("database", s.pool.Ping))
	}

	s.analyzeHandler = handlers.NewAnalyzeHandler(s.router, s.logger)

	s.logger.Info("Handlers initialized")
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// startHTTPServer 启动 HTTP 服务器
func (s *Server) startHTTPServer() error {
	mux := http.NewServeMux()

	// 健康检查与版本端点
	mux.HandleFunc("/healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("/ready", s.healthHandler.HandleReady)
	mux.HandleFunc("/readyz", s.healthHandler.HandleReady)
	mux.HandleFunc("/version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	// 分析 API
	mux.HandleFunc("/v1/analyze", s.analyzeHandler.HandleAnalyze)
	mux.HandleFunc("/v1/analyze/stream", s.analyzeHandler.HandleStream)

	// 构建中间件链
	skipAuthPaths := []string{"/healthz", "/ready", "/readyz", "/version", "/metrics"}
	rateLimiterCtx, rateLimiterCancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = rateLimiterCancel
	handler := Chain(mux,
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		BodyLimit(s.cfg.Server.MaxBodyBytes),
		RequestLogger(s.logger),
		MetricsMiddleware(s.metricsCollector),
		OTelTracing(),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		RateLimiter(rateLimiterCtx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger),
		JWTAuth(s.cfg.Auth, skipAuthPaths, s.logger),
	)

	serverConfig := server.FromServerConfig(s.cfg.Server)
	s.httpManager = server.NewManager(handler, serverConfig, s.logger)

	if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("HTTP server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

// startMetricsServer 启动 Metrics 服务器
func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)

	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("Metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 等待关闭信号并优雅关闭
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}
	s.Shutdown()
}

// Shutdown 优雅关闭所有服务
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	ctx := context.Background()

	// 1. 停止限流器清理和缓存后台任务
	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}
	if s.backgroundCancel != nil {
		s.backgroundCancel()
	}

	// 2. 关闭 HTTP 服务器
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	// 3. 关闭 Metrics 服务器
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	// 4. 关闭存储层
	if s.store != nil {
		s.store.Close()
	}
	if s.cacheManager != nil {
		if err := s.cacheManager.Close(); err != nil {
			s.logger.Error("Cache shutdown error", zap.Error(err))
		}
	}
	if s.pool != nil {
		if err := s.pool.Close(); err != nil {
			s.logger.Error("Database shutdown error", zap.Error(err))
		}
	}

	// 5. 关闭遥测
	if s.otelProviders != nil {
		if err := s.otelProviders.Shutdown(ctx); err != nil {
			s.logger.Error("Telemetry shutdown error", zap.Error(err))
		}
	}

	// 6. 等待所有 goroutine 完成
	s.wg.Wait()

	s.logger.Info("Graceful shutdown completed")
}
