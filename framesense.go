// Package framesense provides a top-level convenience entry point for
// embedding the vision analysis pipeline with minimal boilerplate.
//
// Usage:
//
//	import "github.com/framesense/framesense"
//
//	core, err := framesense.New(framesense.WithService("OCR_RESULTS", myOCR))
//	result, err := core.Analyze(ctx, req)
//
// This is a thin wrapper around the vision/router package; both produce
// identical results. Use this package when you prefer the shorter import
// path and default collaborators. The resulting pipeline runs without Redis
// or a database: both cache tiers degrade to misses until stores are
// injected via [WithStore].
package framesense

import (
	"go.uber.org/zap"

	"github.com/framesense/framesense/vision"
	"github.com/framesense/framesense/vision/access"
	"github.com/framesense/framesense/vision/cachestore"
	"github.com/framesense/framesense/vision/classifier"
	"github.com/framesense/framesense/vision/fallback"
	"github.com/framesense/framesense/vision/keystrategy"
	"github.com/framesense/framesense/vision/optimizer"
	"github.com/framesense/framesense/vision/providers"
	"github.com/framesense/framesense/vision/router"
	"github.com/framesense/framesense/vision/selector"
)

// Core is the assembled analysis pipeline.
type Core = router.Router

// Option configures the pipeline created by [New].
type Option func(*builder)

type builder struct {
	logger    *zap.Logger
	store     *cachestore.TieredStore
	users     vision.UserStore
	services  map[string]vision.Service
	limits    map[vision.Tier]access.TierLimits
	coalesce  bool
	threshold float64
}

// WithLogger sets a custom zap logger.
func WithLogger(logger *zap.Logger) Option {
	return func(b *builder) { b.logger = logger }
}

// WithStore injects a pre-built tiered cache store. Without it the pipeline
// runs cache-less: every request dispatches upstream.
func WithStore(store *cachestore.TieredStore) Option {
	return func(b *builder) { b.store = store }
}

// WithUserStore injects a user/billing store for tier resolution. Without it
// every caller is treated as an anonymous free-tier user.
func WithUserStore(users vision.UserStore) Option {
	return func(b *builder) { b.users = users }
}

// WithService registers an upstream analysis service under the given ID.
func WithService(serviceID string, svc vision.Service) Option {
	return func(b *builder) { b.services[serviceID] = svc }
}

// WithTierLimits overrides the default per-tier access limits.
func WithTierLimits(limits map[vision.Tier]access.TierLimits) Option {
	return func(b *builder) { b.limits = limits }
}

// WithCoalescing controls whether concurrent misses on the same cache key
// collapse into a single upstream call.
func WithCoalescing(enabled bool) Option {
	return func(b *builder) { b.coalesce = enabled }
}

// WithSimilarityThreshold sets the perceptual-hash similarity percentage
// required for a near-match cache hit during fallback.
func WithSimilarityThreshold(threshold float64) Option {
	return func(b *builder) { b.threshold = threshold }
}

// New assembles a [Core] from default collaborators and the given options.
func New(opts ...Option) (*Core, error) {
	b := &builder{
		services: make(map[string]vision.Service),
		coalesce: true,
	}
	for _, opt := range opts {
		opt(b)
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	store := b.store
	if store == nil {
		store = cachestore.NewTieredStore(nil, nil, nil, logger)
	}

	limits := b.limits
	if limits == nil {
		limits = access.DefaultTierLimits()
	}

	registry := providers.NewRegistry()
	for id, svc := range b.services {
		registry.Register(id, svc)
	}

	keys := keystrategy.NewBuilder(logger)

	fbOpts := []fallback.ManagerOption{}
	if b.threshold > 0 {
		fbOpts = append(fbOpts, fallback.WithSimilarityThreshold(b.threshold))
	}

	core := router.New(router.Deps{
		Classifier: classifier.New(),
		Access:     access.New(limits, b.users, logger),
		Selector:   selector.New(selector.NewDefaultRegistry(), selector.DefaultTierPolicies(), logger),
		Optimizer:  optimizer.New(optimizer.DefaultRoutes(), logger),
		Fallback:   fallback.NewManager(store, keys, nil, logger, fbOpts...),
		Store:      store,
		Keys:       keys,
		Services:   registry,
		Users:      b.users,
		Logger:     logger,
	}, router.Config{CoalesceRequests: b.coalesce})

	return core, nil
}
