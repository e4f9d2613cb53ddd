package keystrategy

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/framesense/framesense/vision"
)

// Builder 缓存键构建器
// 显式构造、可注入，测试可以替换策略表并多实例并存
type Builder struct {
	strategies map[string]ServiceStrategy
	logger     *zap.Logger

	// 记忆化表：内容摘要 → 感知哈希 / 问题文本 → 问题摘要
	// 并发读写，容量有上界
	imageHashes    sync.Map
	questionHashes sync.Map
	imageCount     atomic.Int64
	questionCount  atomic.Int64
	maxEntries     int64
}

// BuilderOption 构建器选项
type BuilderOption func(*Builder)

// WithStrategies 覆盖默认策略表
func WithStrategies(strategies map[string]ServiceStrategy) BuilderOption {
	return func(b *Builder) {
		b.strategies = strategies
	}
}

// WithMaxMemoEntries 覆盖记忆化表容量上界
func WithMaxMemoEntries(n int64) BuilderOption {
	return func(b *Builder) {
		b.maxEntries = n
	}
}

// NewBuilder 创建键构建器
func NewBuilder(logger *zap.Logger, opts ...BuilderOption) *Builder {
	b := &Builder{
		strategies: DefaultStrategies(),
		logger:     logger.With(zap.String("component", "key_strategy")),
		maxEntries: 10000,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Strategy 按服务类型查找策略
func (b *Builder) Strategy(serviceType string) (ServiceStrategy, bool) {
	s, ok := b.strategies[serviceType]
	return s, ok
}

// BuildKey 为 (serviceType, image, params) 生成确定性的缓存键
// 同时返回命中的策略，调用方无需二次查表即可得到 TTL/压缩/存储层级
func (b *Builder) BuildKey(ctx context.Context, serviceType string, img vision.Image, question string, params vision.Params) (string, ServiceStrategy, error) {
	strategy, ok := b.strategies[serviceType]
	if !ok {
		return "", ServiceStrategy{}, vision.ErrUnknownServiceType
	}

	params = params.Normalized()
	key := strategy.KeyPattern

	if strings.Contains(key, phImageHash) {
		key = strings.ReplaceAll(key, phImageHash, b.imageHash(img.Data))
	}
	if strings.Contains(key, phFaceHash) {
		key = strings.ReplaceAll(key, phFaceHash, b.faceHash(img.Data, params.FaceBox))
	}
	if strings.Contains(key, phQuestionHash) {
		key = strings.ReplaceAll(key, phQuestionHash, b.questionHash(question))
	}
	key = strings.ReplaceAll(key, phLang, params.Language)
	key = strings.ReplaceAll(key, phModel, params.Model)
	key = strings.ReplaceAll(key, phMethod, params.Method)
	key = strings.ReplaceAll(key, phProvider, params.Provider)

	return key, strategy, nil
}

// imageHash 计算感知哈希，用内容摘要记忆化相同字节
// 感知哈希失败时降级为内容摘要本身
func (b *Builder) imageHash(data []byte) string {
	digest := contentDigest(data)

	if cached, ok := b.imageHashes.Load(digest); ok {
		return cached.(string)
	}

	hash, err := perceptualHash(data)
	if err != nil {
		b.logger.Debug("perceptual hash failed, falling back to content digest",
			zap.Error(err))
		hash = digest
	}

	b.memoizeImage(digest, hash)
	return hash
}

// ImageHash 返回图像的感知哈希（或降级摘要）
// 降级管理器用它与已缓存键中的哈希段做相似度比较
func (b *Builder) ImageHash(img vision.Image) string {
	return b.imageHash(img.Data)
}

// faceHash 对边界框子图计算感知哈希；无边界框时等于 imageHash
func (b *Builder) faceHash(data []byte, box *vision.BoundingBox) string {
	if box == nil {
		return b.imageHash(data)
	}

	hash, err := croppedHash(data, *box)
	if err != nil {
		b.logger.Debug("cropped hash failed, falling back to image hash",
			zap.Error(err))
		return b.imageHash(data)
	}
	return hash
}

// questionHash 规范化后的问题摘要，记忆化原始文本
func (b *Builder) questionHash(question string) string {
	if cached, ok := b.questionHashes.Load(question); ok {
		return cached.(string)
	}

	digest := questionDigest(question)

	if b.questionCount.Add(1) > b.maxEntries {
		b.questionHashes.Range(func(k, _ any) bool {
			b.questionHashes.Delete(k)
			return true
		})
		b.questionCount.Store(1)
	}
	b.questionHashes.Store(question, digest)

	return digest
}

func (b *Builder) memoizeImage(digest, hash string) {
	if b.imageCount.Add(1) > b.maxEntries {
		b.imageHashes.Range(func(k, _ any) bool {
			b.imageHashes.Delete(k)
			return true
		})
		b.imageCount.Store(1)
	}
	b.imageHashes.Store(digest, hash)
}

// ClearCaches 显式清空两张记忆化表
func (b *Builder) ClearCaches() {
	b.imageHashes.Range(func(k, _ any) bool {
		b.imageHashes.Delete(k)
		return true
	})
	b.questionHashes.Range(func(k, _ any) bool {
		b.questionHashes.Delete(k)
		return true
	})
	b.imageCount.Store(0)
	b.questionCount.Store(0)

	b.logger.Debug("memoization caches cleared")
}

// MemoSizes 返回两张记忆化表的当前条目数（用于观测）
func (b *Builder) MemoSizes() (images, questions int) {
	b.imageHashes.Range(func(_, _ any) bool {
		images++
		return true
	})
	b.questionHashes.Range(func(_, _ any) bool {
		questions++
		return true
	})
	return images, questions
}
