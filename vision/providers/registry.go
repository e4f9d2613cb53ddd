// 版权所有 2024 FrameSense Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

// 包 providers 维护上游分析服务的注册表。
// 能力标签的策略对象按服务 ID 查表选中，没有子类分发。
package providers

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/framesense/framesense/vision"
)

// =============================================================================
// 🔌 服务注册表
// =============================================================================

// Registry 上游服务注册表
type Registry struct {
	mu       sync.RWMutex
	services map[string]vision.Service
}

// NewRegistry 创建空注册表
func NewRegistry() *Registry {
	return &Registry{services: make(map[string]vision.Service)}
}

// Register 注册服务实现，同 ID 覆盖
func (r *Registry) Register(serviceID string, svc vision.Service) {
	r.mu.Lock()
	r.services[serviceID] = svc
	r.mu.Unlock()
}

// Get 按服务 ID 查找
func (r *Registry) Get(serviceID string) (vision.Service, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	svc, ok := r.services[serviceID]
	return svc, ok
}

// Dispatch 调度到指定服务，未注册时返回 ErrUnknownServiceType
func (r *Registry) Dispatch(ctx context.Context, serviceID string, req *vision.AnalyzeRequest) (*vision.AnalysisResult, error) {
	svc, ok := r.Get(serviceID)
	if !ok {
		return nil, fmt.Errorf("service %s: %w", serviceID, vision.ErrUnknownServiceType)
	}
	return svc.Analyze(ctx, req)
}

// ServiceIDs 返回已注册服务 ID，按字典序
func (r *Registry) ServiceIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.services))
	for id := range r.services {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// HealthCheck 对全部注册服务探活
func (r *Registry) HealthCheck(ctx context.Context) map[string]error {
	r.mu.RLock()
	snapshot := make(map[string]vision.Service, len(r.services))
	for id, svc := range r.services {
		snapshot[id] = svc
	}
	r.mu.RUnlock()

	out := make(map[string]error, len(snapshot))
	for id, svc := range snapshot {
		out[id] = svc.Health(ctx)
	}
	return out
}
