package cachestore

import (
	"sort"
	"sync"
)

// popularTracker 记录热门查询的命中次数，供缓存预热使用
type popularTracker struct {
	mu     sync.RWMutex
	counts map[string]int64
}

func newPopularTracker() *popularTracker {
	return &popularTracker{counts: make(map[string]int64)}
}

// Record 记录一次键访问
func (t *popularTracker) Record(key string) {
	t.mu.Lock()
	t.counts[key]++
	t.mu.Unlock()
}

// Count 返回某个键的累计访问次数
func (t *popularTracker) Count(key string) int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.counts[key]
}

// TopKeys 返回访问次数最高的 n 个键（降序）
func (t *popularTracker) TopKeys(n int) []string {
	t.mu.RLock()
	keys := make([]string, 0, len(t.counts))
	for k := range t.counts {
		keys = append(keys, k)
	}
	counts := make(map[string]int64, len(keys))
	for _, k := range keys {
		counts[k] = t.counts[k]
	}
	t.mu.RUnlock()

	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})

	if n > 0 && len(keys) > n {
		keys = keys[:n]
	}
	return keys
}

// Reset 清空统计并返回被清空的条目数
func (t *popularTracker) Reset() int {
	t.mu.Lock()
	n := len(t.counts)
	t.counts = make(map[string]int64)
	t.mu.Unlock()
	return n
}
