package cachestore

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// =============================================================================
// 🔥 缓存预热与清理
// =============================================================================

// WarmFunc 预热回调：收到候选列表后由上层决定如何重新填充
type WarmFunc func(ctx context.Context, candidates []WarmingCandidate)

// StartBackgroundTasks 启动清理/预热/追踪表重置三个定时任务
// warmFn 允许为 nil：仅记录候选数量不做回填
func (s *TieredStore) StartBackgroundTasks(ctx context.Context, warmFn WarmFunc) {
	go s.cleanupLoop(ctx)
	go s.warmingLoop(ctx, warmFn)
	go s.trackerResetLoop(ctx)
}

// cleanupLoop 定期删除过期持久层行
func (s *TieredStore) cleanupLoop(ctx context.Context) {
	if s.db == nil {
		return
	}

	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			deleted, err := s.CleanupExpired(ctx)
			if err != nil {
				s.logger.Warn("Expired entry cleanup failed", zap.Error(err))
				continue
			}
			if deleted > 0 {
				s.logger.Info("Expired cache entries cleaned",
					zap.Int64("deleted", deleted))
			}
		}
	}
}

// CleanupExpired 删除所有已过期的持久层行，返回删除数
func (s *TieredStore) CleanupExpired(ctx context.Context) (int64, error) {
	if s.db == nil {
		return 0, nil
	}

	result := s.db.WithContext(ctx).
		Where("expires_at <= ?", time.Now()).
		Delete(&CacheEntry{})
	return result.RowsAffected, result.Error
}

// warmingLoop 定期扫描预热候选并交给回调
func (s *TieredStore) warmingLoop(ctx context.Context, warmFn WarmFunc) {
	if s.db == nil {
		return
	}

	ticker := time.NewTicker(s.config.WarmingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			candidates, err := s.WarmingCandidates(ctx)
			if err != nil {
				s.logger.Warn("Warming candidate scan failed", zap.Error(err))
				continue
			}
			if len(candidates) == 0 {
				continue
			}

			s.logger.Info("Warming candidates collected",
				zap.Int("count", len(candidates)))
			if warmFn != nil {
				warmFn(ctx, candidates)
			}
		}
	}
}

// WarmingCandidates 扫描"已过期但历史热门"的持久层行
// 各服务类型并行查询，按访问计数降序各取 WarmingLimit 条
func (s *TieredStore) WarmingCandidates(ctx context.Context) ([]WarmingCandidate, error) {
	if s.db == nil {
		return nil, nil
	}

	var serviceTypes []string
	err := s.db.WithContext(ctx).Model(&CacheEntry{}).
		Where("expires_at <= ?", time.Now()).
		Distinct("service_type").
		Pluck("service_type", &serviceTypes).Error
	if err != nil {
		return nil, err
	}
	if len(serviceTypes) == 0 {
		return nil, nil
	}

	var mu sync.Mutex
	var all []WarmingCandidate

	g, gctx := errgroup.WithContext(ctx)
	for _, serviceType := range serviceTypes {
		serviceType := serviceType
		g.Go(func() error {
			var rows []CacheEntry
			err := s.db.WithContext(gctx).
				Where("service_type = ? AND expires_at <= ? AND access_count > 0",
					serviceType, time.Now()).
				Order("access_count DESC").
				Limit(s.config.WarmingLimit).
				Find(&rows).Error
			if err != nil {
				return err
			}

			candidates := make([]WarmingCandidate, 0, len(rows))
			for _, row := range rows {
				candidates = append(candidates, WarmingCandidate{
					Key:         row.Key,
					ServiceType: row.ServiceType,
					AccessCount: row.AccessCount,
					ExpiredAt:   row.ExpiresAt,
				})
			}

			mu.Lock()
			all = append(all, candidates...)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return all, nil
}

// trackerResetLoop 定期清空热门查询追踪表，约束内存占用
func (s *TieredStore) trackerResetLoop(ctx context.Context) {
	ticker := time.NewTicker(s.config.TrackerResetInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			n := s.tracker.Reset()
			s.logger.Debug("Popular query tracker reset", zap.Int("entries", n))
		}
	}
}

// PopularKeys 返回当前追踪窗口内访问最多的 n 个键
func (s *TieredStore) PopularKeys(n int) []string {
	return s.tracker.TopKeys(n)
}
