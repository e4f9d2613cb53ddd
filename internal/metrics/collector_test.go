package metrics

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

var collectorNamespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return fmt.Sprintf("test_%d", seq)
}

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.cacheLookups)
	assert.NotNil(t, collector.fallbackInvocations)
	assert.NotNil(t, collector.compressionBytesSaved)
}

func TestCollector_RecordCacheLookup(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordCacheLookup(SourceFast)
	collector.RecordCacheLookup(SourceDurable)
	collector.RecordCacheLookup(SourceMiss)
	collector.RecordCacheLookup(SourceMiss)

	snap := collector.Snapshot()
	assert.Equal(t, int64(1), snap.CacheHitsFast)
	assert.Equal(t, int64(1), snap.CacheHitsDurable)
	assert.Equal(t, int64(2), snap.CacheMisses)

	count := testutil.CollectAndCount(collector.cacheLookups)
	assert.Equal(t, 3, count) // fast / durable / miss 三个标签序列
}

func TestCollector_RecordFallback(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordFallback("OCR_RESULTS", false)
	collector.RecordFallback("VISION_ANALYSIS", true)
	collector.RecordFallback("LLM_VISION", true)

	snap := collector.Snapshot()
	assert.Equal(t, int64(3), snap.FallbackInvocations)
	assert.Equal(t, int64(2), snap.FallbackSuccesses)
	assert.InDelta(t, 2.0/3.0, snap.FallbackSuccessRate, 0.001)
}

func TestCollector_RecordCompressionSaved(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordCompressionSaved(1500)
	collector.RecordCompressionSaved(-10) // 负值忽略
	collector.RecordCompressionSaved(500)

	snap := collector.Snapshot()
	assert.Equal(t, int64(2000), snap.CompressionSavedByte)
}

func TestCollector_RecordCostSaving(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordCostSaving(0.05)
	collector.RecordCostSaving(0.01)

	snap := collector.Snapshot()
	assert.InDelta(t, 0.06, snap.CostSaved, 0.0001)
}

func TestCollector_NilReceiverSafe(t *testing.T) {
	var collector *Collector

	// 未注入 Collector 时所有记录方法不得 panic
	assert.NotPanics(t, func() {
		collector.RecordCacheLookup(SourceFast)
		collector.RecordCompressionSaved(100)
		collector.RecordCostSaving(0.1)
		collector.RecordFallback("x", true)
		collector.RecordHTTPRequest("GET", "/", 200, time.Millisecond)
		collector.RecordAnalyzeRequest("OCR", "s", "ok", time.Millisecond, 0)
		_ = collector.Snapshot()
	})
}
