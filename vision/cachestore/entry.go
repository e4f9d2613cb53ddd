package cachestore

import (
	"time"
)

// CacheEntry 持久层缓存行
type CacheEntry struct {
	// 列名避开 SQL 保留字，方言间通用
	Key            string    `gorm:"column:cache_key;primaryKey;size:512" json:"key"`
	Payload        []byte    `gorm:"type:blob" json:"payload"`
	Compressed     bool      `json:"compressed"`
	Algorithm      string    `gorm:"size:16" json:"algorithm,omitempty"`
	ServiceType    string    `gorm:"index;size:64" json:"service_type"`
	CreatedAt      time.Time `json:"created_at"`
	ExpiresAt      time.Time `gorm:"index" json:"expires_at"`
	AccessCount    int64     `json:"access_count"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
	SizeBytes      int64     `json:"size_bytes"`
	CostSaved      float64   `json:"cost_saved"`
}

// TableName GORM 表名
func (CacheEntry) TableName() string {
	return "cache_entries"
}

// Expired 判断行是否已过期
func (e *CacheEntry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// envelope 快速层存储的包装结构
// 压缩与否都走同一包装，读取端按标记解压
type envelope struct {
	Compressed bool   `json:"compressed"`
	Algorithm  string `json:"algorithm,omitempty"`
	Data       []byte `json:"data"`
}

// WarmingCandidate 预热候选：已过期但历史热门的持久层行
type WarmingCandidate struct {
	Key         string    `json:"key"`
	ServiceType string    `json:"service_type"`
	AccessCount int64     `json:"access_count"`
	ExpiredAt   time.Time `json:"expired_at"`
}
