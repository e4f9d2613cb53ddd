package router

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/framesense/framesense/internal/cache"
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
// 🧪 路由器管线测试
// =============================================================================

type countingService struct {
	serviceID string
	calls     int32
	fail      atomic.Bool
}

func (c *countingService) Analyze(_ context.Context, _ *vision.AnalyzeRequest) (*vision.AnalysisResult, error) {
	atomic.AddInt32(&c.calls, 1)
	if c.fail.Load() {
		return nil, errors.New("503 service unavailable")
	}
	return &vision.AnalysisResult{
		ServiceType: c.serviceID,
		Text:        "answer from " + c.serviceID,
		Confidence:  0.9,
		HasText:     true,
		Source:      vision.SourceService,
	}, nil
}

func (c *countingService) Capabilities() []string       { return []string{"vision"} }
func (c *countingService) CostPerRequest() float64      { return 0 }
func (c *countingService) Health(context.Context) error { return nil }

func (c *countingService) count() int32 { return atomic.LoadInt32(&c.calls) }

type routerFixture struct {
	router   *Router
	mr       *miniredis.Miniredis
	services map[string]*countingService
}

func setupRouter(t *testing.T, config Config) *routerFixture {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	cfg := cache.DefaultConfig()
	cfg.Addr = mr.Addr()
	cfg.HealthCheckInterval = 0
	fast, err := cache.NewManager(cfg, zap.NewNop())
	require.NoError(t, err)

	store := cachestore.NewTieredStore(fast, nil, nil, zap.NewNop())
	keys := keystrategy.NewBuilder(zap.NewNop())
	registry := providers.NewRegistry()

	services := make(map[string]*countingService)
	for _, id := range []string{"OCR_RESULTS", "VISION_ANALYSIS", "QUICK_ANSWERS", "LLM_VISION", "FACE_DETECTION"} {
		svc := &countingService{serviceID: id}
		services[id] = svc
		registry.Register(id, svc)
	}

	// 放宽突发限速，测试连续请求不受干扰
	limits := access.DefaultTierLimits()
	freeLimits := limits[vision.TierFree]
	freeLimits.RequestsPerSecond = 1000
	freeLimits.MaxConcurrent = 100
	limits[vision.TierFree] = freeLimits

	r := New(Deps{
		Classifier: classifier.New(),
		Access:     access.New(limits, nil, zap.NewNop()),
		Selector:   selector.New(selector.NewDefaultRegistry(), nil, zap.NewNop()),
		Optimizer:  optimizer.New(nil, zap.NewNop()),
		Fallback:   fallback.NewManager(store, keys, nil, zap.NewNop()),
		Store:      store,
		Keys:       keys,
		Services:   registry,
		Users:      nil,
		Metrics:    nil,
		Logger:     zap.NewNop(),
	}, config)

	t.Cleanup(func() {
		store.Close()
		fast.Close()
		mr.Close()
	})

	return &routerFixture{router: r, mr: mr, services: services}
}

func describeRequest(userID string) *vision.AnalyzeRequest {
	return &vision.AnalyzeRequest{
		UserID:   userID,
		Question: "Describe what is in this image",
		Image:    vision.Image{Data: []byte("image bytes for routing tests")},
	}
}

func TestRouter_MissDispatchThenCacheHit(t *testing.T) {
	f := setupRouter(t, Config{})
	ctx := context.Background()

	// 首次请求未命中缓存，调度到零成本的视觉服务
	first, err := f.router.Analyze(ctx, describeRequest("u1"))
	require.NoError(t, err)
	assert.Equal(t, "VISION_ANALYSIS", first.ServiceType)
	assert.Equal(t, vision.SourceService, first.Source)
	assert.Equal(t, int32(1), f.services["VISION_ANALYSIS"].count())

	// 相同请求第二次直接命中快速层，不再调度上游
	second, err := f.router.Analyze(ctx, describeRequest("u1"))
	require.NoError(t, err)
	assert.Equal(t, vision.SourceFast, second.Source)
	assert.Equal(t, first.Text, second.Text)
	assert.Equal(t, int32(1), f.services["VISION_ANALYSIS"].count())
}

func TestRouter_AccessDenied(t *testing.T) {
	f := setupRouter(t, Config{})

	// 免费用户问推理类问题：EXPLAIN_TOPIC 要求 premium
	req := &vision.AnalyzeRequest{
		UserID:   "u1",
		Question: "Why is this happening? Please explain",
		Image:    vision.Image{Data: []byte("img")},
	}
	_, err := f.router.Analyze(context.Background(), req)
	require.Error(t, err)
	require.True(t, vision.IsAccessDenied(err))

	var denied *vision.AccessDeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, vision.DenyTierInsufficient, denied.Reason)
	assert.Equal(t, vision.TierPremium, denied.SuggestedTier)
}

func TestRouter_FallbackOnPrimaryFailure(t *testing.T) {
	f := setupRouter(t, Config{})

	f.services["VISION_ANALYSIS"].fail.Store(true)

	result, err := f.router.Analyze(context.Background(), describeRequest("u1"))
	require.NoError(t, err)
	assert.False(t, result.Error)
	// 降级链把请求转给了链上的下一个服务
	assert.Equal(t, "LLM_VISION", result.ServiceType)
}

func TestRouter_AllServicesDownYieldsDegraded(t *testing.T) {
	f := setupRouter(t, Config{})

	for _, svc := range f.services {
		svc.fail.Store(true)
	}

	result, err := f.router.Analyze(context.Background(), describeRequest("u1"))
	require.NoError(t, err)
	assert.True(t, result.Error)
	assert.Equal(t, string(vision.FailureServiceDown), result.ErrorKind)
	assert.NotEmpty(t, result.SuggestedActions)
}

func TestRouter_DegradedResultNotCached(t *testing.T) {
	f := setupRouter(t, Config{})

	for _, svc := range f.services {
		svc.fail.Store(true)
	}
	_, err := f.router.Analyze(context.Background(), describeRequest("u1"))
	require.NoError(t, err)

	// 恢复后同一请求必须重新调度，而不是命中降级响应
	for _, svc := range f.services {
		svc.fail.Store(false)
	}
	result, err := f.router.Analyze(context.Background(), describeRequest("u1"))
	require.NoError(t, err)
	assert.False(t, result.Error)
	assert.Equal(t, vision.SourceService, result.Source)
}

func TestRouter_CanceledContextSkipsWriteThrough(t *testing.T) {
	f := setupRouter(t, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// 取消的请求即便走完也不得回写缓存
	_, _ = f.router.Analyze(ctx, describeRequest("u1"))
	assert.Empty(t, f.mr.Keys())
}

func TestRouter_CoalescingSharesResult(t *testing.T) {
	f := setupRouter(t, Config{CoalesceRequests: true})
	ctx := context.Background()

	result, err := f.router.Analyze(ctx, describeRequest("u1"))
	require.NoError(t, err)
	assert.False(t, result.Error)
}

func TestRouter_FreeTierRoutedToZeroCost(t *testing.T) {
	f := setupRouter(t, Config{})

	// 免费无预算用户的场景描述请求应落在零成本路由上
	result, err := f.router.Analyze(context.Background(), describeRequest("u1"))
	require.NoError(t, err)
	assert.Equal(t, "VISION_ANALYSIS", result.ServiceType)
	assert.Zero(t, result.Cost)
}
