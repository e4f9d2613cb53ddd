package cachestore

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/framesense/framesense/internal/cache"
	"github.com/framesense/framesense/internal/metrics"
	"github.com/framesense/framesense/vision/keystrategy"
)

// =============================================================================
// 🧪 TieredStore 测试
// =============================================================================

func setupTestStore(t *testing.T) (*miniredis.Miniredis, *gorm.DB, *TieredStore) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	cfg := cache.DefaultConfig()
	cfg.Addr = mr.Addr()
	cfg.HealthCheckInterval = 0

	fast, err := cache.NewManager(cfg, zap.NewNop())
	require.NoError(t, err)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&CacheEntry{}))

	store := NewTieredStore(fast, db, nil, zap.NewNop())

	t.Cleanup(func() {
		store.Close()
		fast.Close()
		mr.Close()
	})

	return mr, db, store
}

func durableStrategy() keystrategy.ServiceStrategy {
	return keystrategy.DefaultStrategies()["OCR_RESULTS"]
}

func fastStrategy() keystrategy.ServiceStrategy {
	return keystrategy.DefaultStrategies()["QUICK_ANSWERS"]
}

type ocrResult struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

func TestTieredStore_SetAndGet_FastTier(t *testing.T) {
	_, _, store := setupTestStore(t)
	ctx := context.Background()

	value := ocrResult{Text: "hello world", Confidence: 0.97}
	ok := store.Set(ctx, "qa:abc123:def456", value, fastStrategy())
	require.True(t, ok)

	payload, source, hit := store.Get(ctx, "qa:abc123:def456", fastStrategy())
	require.True(t, hit)
	assert.Equal(t, metrics.SourceFast, source)

	var got ocrResult
	require.NoError(t, json.Unmarshal(payload, &got))
	assert.Equal(t, value, got)
}

func TestTieredStore_GetMiss(t *testing.T) {
	_, _, store := setupTestStore(t)

	payload, source, hit := store.Get(context.Background(), "qa:missing:key", fastStrategy())
	assert.False(t, hit)
	assert.Nil(t, payload)
	assert.Equal(t, metrics.SourceMiss, source)
}

func TestTieredStore_DurableFallbackAndPromotion(t *testing.T) {
	mr, _, store := setupTestStore(t)
	ctx := context.Background()

	value := ocrResult{Text: "durable text", Confidence: 0.88}
	require.True(t, store.Set(ctx, "ocr:feed0000deadbeef:en", value, durableStrategy()))

	// 清掉快速层模拟驱逐，命中应落到持久层
	mr.FlushAll()

	payload, source, hit := store.Get(ctx, "ocr:feed0000deadbeef:en", durableStrategy())
	require.True(t, hit)
	assert.Equal(t, metrics.SourceDurable, source)

	var got ocrResult
	require.NoError(t, json.Unmarshal(payload, &got))
	assert.Equal(t, value, got)

	// 提升后第二次读取直接命中快速层
	_, source, hit = store.Get(ctx, "ocr:feed0000deadbeef:en", durableStrategy())
	require.True(t, hit)
	assert.Equal(t, metrics.SourceFast, source)
}

func TestTieredStore_FastOnlyStrategySkipsDurable(t *testing.T) {
	mr, db, store := setupTestStore(t)
	ctx := context.Background()

	require.True(t, store.Set(ctx, "qa:aaa:bbb", ocrResult{Text: "x"}, fastStrategy()))

	// 快速类策略不落持久层
	var count int64
	db.Model(&CacheEntry{}).Count(&count)
	assert.Zero(t, count)

	// 快速层被清空后即为未命中
	mr.FlushAll()
	_, source, hit := store.Get(ctx, "qa:aaa:bbb", fastStrategy())
	assert.False(t, hit)
	assert.Equal(t, metrics.SourceMiss, source)
}

func TestTieredStore_CompressionRoundTrip(t *testing.T) {
	mr, db, store := setupTestStore(t)
	ctx := context.Background()

	// 超过阈值的可压缩负载
	value := ocrResult{Text: strings.Repeat("compress me ", 400)}
	require.True(t, store.Set(ctx, "ocr:1111222233334444:en", value, durableStrategy()))

	var entry CacheEntry
	require.NoError(t, db.First(&entry, "cache_key = ?", "ocr:1111222233334444:en").Error)
	assert.True(t, entry.Compressed)
	assert.Equal(t, "gzip", entry.Algorithm)
	raw, _ := json.Marshal(value)
	assert.Less(t, entry.SizeBytes, int64(len(raw)))

	// 快速层与持久层都能解压回原值
	for _, reset := range []bool{false, true} {
		if reset {
			mr.FlushAll()
		}
		payload, _, hit := store.Get(ctx, "ocr:1111222233334444:en", durableStrategy())
		require.True(t, hit)

		var got ocrResult
		require.NoError(t, json.Unmarshal(payload, &got))
		assert.Equal(t, value, got)
	}
}

func TestTieredStore_SmallPayloadNotCompressed(t *testing.T) {
	_, db, store := setupTestStore(t)
	ctx := context.Background()

	require.True(t, store.Set(ctx, "ocr:aaaa:en", ocrResult{Text: "short"}, durableStrategy()))

	var entry CacheEntry
	require.NoError(t, db.First(&entry, "cache_key = ?", "ocr:aaaa:en").Error)
	assert.False(t, entry.Compressed)
}

func TestTieredStore_ExpiredDurableRowIsMiss(t *testing.T) {
	mr, db, store := setupTestStore(t)
	ctx := context.Background()

	require.True(t, store.Set(ctx, "ocr:bbbb:en", ocrResult{Text: "stale"}, durableStrategy()))
	mr.FlushAll()

	// 把行改成已过期
	db.Model(&CacheEntry{}).
		Where("cache_key = ?", "ocr:bbbb:en").
		UpdateColumn("expires_at", time.Now().Add(-time.Minute))

	_, source, hit := store.Get(ctx, "ocr:bbbb:en", durableStrategy())
	assert.False(t, hit)
	assert.Equal(t, metrics.SourceMiss, source)
}

func TestTieredStore_AccessCountIncrements(t *testing.T) {
	mr, db, store := setupTestStore(t)
	ctx := context.Background()

	require.True(t, store.Set(ctx, "ocr:cccc:en", ocrResult{Text: "popular"}, durableStrategy()))

	for i := 0; i < 3; i++ {
		mr.FlushAll()
		_, _, hit := store.Get(ctx, "ocr:cccc:en", durableStrategy())
		require.True(t, hit)
	}

	var entry CacheEntry
	require.NoError(t, db.First(&entry, "cache_key = ?", "ocr:cccc:en").Error)
	assert.Equal(t, int64(3), entry.AccessCount)
}

func TestTieredStore_Invalidate(t *testing.T) {
	_, db, store := setupTestStore(t)
	ctx := context.Background()

	require.True(t, store.Set(ctx, "ocr:k1:en", ocrResult{Text: "a"}, durableStrategy()))
	require.True(t, store.Set(ctx, "ocr:k2:zh", ocrResult{Text: "b"}, durableStrategy()))
	require.True(t, store.Set(ctx, "qa:k3:q1", ocrResult{Text: "c"}, fastStrategy()))

	// 两层各删两条 ocr:* 的键
	deleted, err := store.Invalidate(ctx, "ocr:*")
	require.NoError(t, err)
	assert.Equal(t, int64(4), deleted)

	var count int64
	db.Model(&CacheEntry{}).Count(&count)
	assert.Zero(t, count)

	// qa 键不受影响
	_, _, hit := store.Get(ctx, "qa:k3:q1", fastStrategy())
	assert.True(t, hit)
}

func TestTieredStore_FastTierDownDegradesToMiss(t *testing.T) {
	mr, _, store := setupTestStore(t)
	ctx := context.Background()

	require.True(t, store.Set(ctx, "qa:deg:1", ocrResult{Text: "x"}, fastStrategy()))
	mr.Close()

	start := time.Now()
	_, source, hit := store.Get(ctx, "qa:deg:1", fastStrategy())
	assert.False(t, hit)
	assert.Equal(t, metrics.SourceMiss, source)
	assert.Less(t, time.Since(start), 5*time.Second)

	// 写入同样降级：持久类策略仍能写成功一层
	ok := store.Set(ctx, "ocr:deg:en", ocrResult{Text: "y"}, durableStrategy())
	assert.True(t, ok)
}

func TestTieredStore_KeysByPattern(t *testing.T) {
	_, _, store := setupTestStore(t)
	ctx := context.Background()

	require.True(t, store.Set(ctx, "llm:h1:q1:gpt-4o", ocrResult{Text: "a"}, fastStrategy()))
	require.True(t, store.Set(ctx, "llm:h2:q2:gpt-4o", ocrResult{Text: "b"}, fastStrategy()))

	keys := store.KeysByPattern(ctx, "llm:*")
	assert.ElementsMatch(t, []string{"llm:h1:q1:gpt-4o", "llm:h2:q2:gpt-4o"}, keys)
}

func TestTieredStore_KeysByPattern_DurableSurvivesMirrorExpiry(t *testing.T) {
	mr, db, store := setupTestStore(t)
	ctx := context.Background()

	require.True(t, store.Set(ctx, "ocr:h1:en", ocrResult{Text: "a"}, durableStrategy()))
	require.True(t, store.Set(ctx, "ocr:h2:en", ocrResult{Text: "b"}, durableStrategy()))

	// 快速层镜像过期后，持久层仍在有效期内的键必须可见
	mr.FlushAll()

	keys := store.KeysByPattern(ctx, "ocr:*")
	assert.ElementsMatch(t, []string{"ocr:h1:en", "ocr:h2:en"}, keys)

	// 持久行过期后不再出现
	db.Model(&CacheEntry{}).
		Where("cache_key = ?", "ocr:h2:en").
		UpdateColumn("expires_at", time.Now().Add(-time.Minute))
	keys = store.KeysByPattern(ctx, "ocr:*")
	assert.ElementsMatch(t, []string{"ocr:h1:en"}, keys)
}

func TestTieredStore_GetRaw_FallsBackToDurable(t *testing.T) {
	mr, _, store := setupTestStore(t)
	ctx := context.Background()

	require.True(t, store.Set(ctx, "ocr:raw:en", ocrResult{Text: "durable"}, durableStrategy()))
	mr.FlushAll()

	payload, source, ok := store.GetRaw(ctx, "ocr:raw:en")
	require.True(t, ok)
	assert.Equal(t, metrics.SourceDurable, source)

	var got ocrResult
	require.NoError(t, json.Unmarshal(payload, &got))
	assert.Equal(t, "durable", got.Text)

	// 不触发提升：快速层仍为空
	assert.Empty(t, mr.Keys())
}

func TestTieredStore_CleanupExpired(t *testing.T) {
	_, db, store := setupTestStore(t)
	ctx := context.Background()

	require.True(t, store.Set(ctx, "ocr:live:en", ocrResult{Text: "live"}, durableStrategy()))
	require.True(t, store.Set(ctx, "ocr:dead:en", ocrResult{Text: "dead"}, durableStrategy()))
	db.Model(&CacheEntry{}).
		Where("cache_key = ?", "ocr:dead:en").
		UpdateColumn("expires_at", time.Now().Add(-time.Hour))

	deleted, err := store.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	var count int64
	db.Model(&CacheEntry{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestTieredStore_WarmingCandidates(t *testing.T) {
	mr, db, store := setupTestStore(t)
	ctx := context.Background()

	// 热门条目：先累计访问计数再置为过期
	require.True(t, store.Set(ctx, "ocr:hot:en", ocrResult{Text: "hot"}, durableStrategy()))
	for i := 0; i < 5; i++ {
		mr.FlushAll()
		_, _, hit := store.Get(ctx, "ocr:hot:en", durableStrategy())
		require.True(t, hit)
	}

	// 冷门条目：过期且零访问，不应入选
	require.True(t, store.Set(ctx, "ocr:cold:en", ocrResult{Text: "cold"}, durableStrategy()))

	db.Model(&CacheEntry{}).
		Where("cache_key IN ?", []string{"ocr:hot:en", "ocr:cold:en"}).
		UpdateColumn("expires_at", time.Now().Add(-time.Minute))

	candidates, err := store.WarmingCandidates(ctx)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "ocr:hot:en", candidates[0].Key)
	assert.Equal(t, "OCR_RESULTS", candidates[0].ServiceType)
	assert.Equal(t, int64(5), candidates[0].AccessCount)
}

func TestTieredStore_PopularKeys(t *testing.T) {
	_, _, store := setupTestStore(t)
	ctx := context.Background()

	require.True(t, store.Set(ctx, "qa:p1:q", ocrResult{Text: "a"}, fastStrategy()))
	require.True(t, store.Set(ctx, "qa:p2:q", ocrResult{Text: "b"}, fastStrategy()))

	for i := 0; i < 3; i++ {
		store.Get(ctx, "qa:p1:q", fastStrategy())
	}
	store.Get(ctx, "qa:p2:q", fastStrategy())

	top := store.PopularKeys(1)
	require.Len(t, top, 1)
	assert.Equal(t, "qa:p1:q", top[0])
}

func TestGlobToLike(t *testing.T) {
	tests := []struct {
		pattern string
		want    string
	}{
		{"ocr:*", "ocr:%"},
		{"qa:?:x", "qa:_:x"},
		{"plain", "plain"},
		{"has_underscore*", `has\_underscore%`},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, globToLike(tt.pattern), tt.pattern)
	}
}
