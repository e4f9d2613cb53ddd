package access

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/framesense/framesense/vision"
)

// =============================================================================
// 🧪 准入控制测试
// =============================================================================

type fakeUserStore struct {
	mu       sync.Mutex
	recorded []string
	fail     bool
}

func (f *fakeUserStore) GetUserTierProfile(context.Context, string) (*vision.UserTierProfile, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeUserStore) GetDailySpend(context.Context, string) (float64, error)   { return 0, nil }
func (f *fakeUserStore) GetMonthlySpend(context.Context, string) (float64, error) { return 0, nil }

func (f *fakeUserStore) RecordUsage(_ context.Context, userID, questionType, serviceID string, _ float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("tracking backend down")
	}
	f.recorded = append(f.recorded, userID+"/"+questionType+"/"+serviceID)
	return nil
}

func (f *fakeUserStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.recorded)
}

func premiumType() vision.QuestionType {
	return vision.QuestionType{ID: "EXPLAIN_TOPIC", MinimumTier: vision.TierPremium}
}

func freeType() vision.QuestionType {
	return vision.QuestionType{ID: "READ_TEXT", MinimumTier: vision.TierFree}
}

func freeProfile(userID string) *vision.UserTierProfile {
	return &vision.UserTierProfile{UserID: userID, Tier: vision.TierFree}
}

func TestNew_ClampsLimitsMonotone(t *testing.T) {
	limits := DefaultTierLimits()
	// 配置失误：pro 的日配额低于 free
	limits[vision.TierPro] = TierLimits{
		DailyRequests:     10,
		MonthlyRequests:   500,
		MaxImageBytes:     1 << 20,
		MaxConcurrent:     1,
		RequestsPerSecond: 0.5,
	}
	c := New(limits, nil, zap.NewNop())

	free := c.limits[vision.TierFree]
	pro := c.limits[vision.TierPro]
	assert.Equal(t, free.DailyRequests, pro.DailyRequests)
	assert.Equal(t, free.MonthlyRequests, pro.MonthlyRequests)
	assert.Equal(t, free.MaxImageBytes, pro.MaxImageBytes)
	assert.Equal(t, free.MaxConcurrent, pro.MaxConcurrent)
	assert.Equal(t, free.RequestsPerSecond, pro.RequestsPerSecond)

	// 升级后的用户不会被更低的配额拒绝
	profile := &vision.UserTierProfile{UserID: "u1", Tier: vision.TierPro, DailyRequestCount: 20}
	decision := c.ValidateAccess(freeType(), profile, 1024)
	assert.True(t, decision.Allowed)
}

func TestNew_UnlimitedPropagatesUpward(t *testing.T) {
	limits := DefaultTierLimits()
	free := limits[vision.TierFree]
	free.DailyRequests = 0 // 不限
	limits[vision.TierFree] = free
	c := New(limits, nil, zap.NewNop())

	// 低层级不限时，高层级的有限配额同样被提为不限
	assert.Zero(t, c.limits[vision.TierPro].DailyRequests)
	assert.Zero(t, c.limits[vision.TierPremium].DailyRequests)
}

func TestController_TierInsufficient(t *testing.T) {
	c := New(nil, nil, zap.NewNop())

	decision := c.ValidateAccess(premiumType(), freeProfile("u1"), 1024)
	assert.False(t, decision.Allowed)
	assert.Equal(t, vision.DenyTierInsufficient, decision.Reason)
	assert.True(t, decision.SuggestedTier.AtLeast(vision.TierPremium))
}

func TestController_Allowed(t *testing.T) {
	c := New(nil, nil, zap.NewNop())

	decision := c.ValidateAccess(freeType(), freeProfile("u1"), 1024)
	assert.True(t, decision.Allowed)
	assert.Empty(t, decision.Reason)
}

func TestController_DailyLimit(t *testing.T) {
	c := New(nil, nil, zap.NewNop())

	profile := freeProfile("u1")
	profile.DailyRequestCount = 50

	decision := c.ValidateAccess(freeType(), profile, 1024)
	assert.False(t, decision.Allowed)
	assert.Equal(t, vision.DenyDailyLimit, decision.Reason)
	// 50 次在 pro 层的 1000 次配额内
	assert.Equal(t, vision.TierPro, decision.SuggestedTier)
}

func TestController_MonthlyLimit(t *testing.T) {
	c := New(nil, nil, zap.NewNop())

	profile := freeProfile("u1")
	profile.MonthlyRequestCount = 1500

	decision := c.ValidateAccess(freeType(), profile, 1024)
	assert.False(t, decision.Allowed)
	assert.Equal(t, vision.DenyMonthlyLimit, decision.Reason)
	assert.Equal(t, vision.TierPro, decision.SuggestedTier)
}

func TestController_SizeLimit(t *testing.T) {
	c := New(nil, nil, zap.NewNop())

	decision := c.ValidateAccess(freeType(), freeProfile("u1"), 3<<20)
	assert.False(t, decision.Allowed)
	assert.Equal(t, vision.DenySizeLimit, decision.Reason)
	assert.Equal(t, vision.TierPro, decision.SuggestedTier)
}

func TestController_ConcurrencyLimit(t *testing.T) {
	limits := DefaultTierLimits()
	limits[vision.TierFree] = TierLimits{
		MaxImageBytes: 2 << 20,
		MaxConcurrent: 2,
	}
	c := New(limits, nil, zap.NewNop())

	first := c.ValidateAccess(freeType(), freeProfile("u1"), 1024)
	second := c.ValidateAccess(freeType(), freeProfile("u1"), 1024)
	require.True(t, first.Allowed)
	require.True(t, second.Allowed)

	third := c.ValidateAccess(freeType(), freeProfile("u1"), 1024)
	assert.False(t, third.Allowed)
	assert.Equal(t, vision.DenyConcurrencyLimit, third.Reason)

	// 其他用户不受影响
	other := c.ValidateAccess(freeType(), freeProfile("u2"), 1024)
	assert.True(t, other.Allowed)

	// 释放后恢复
	c.Release("u1")
	again := c.ValidateAccess(freeType(), freeProfile("u1"), 1024)
	assert.True(t, again.Allowed)
}

func TestController_RateLimit(t *testing.T) {
	limits := DefaultTierLimits()
	limits[vision.TierFree] = TierLimits{
		MaxImageBytes:     2 << 20,
		MaxConcurrent:     100,
		RequestsPerSecond: 1,
	}
	c := New(limits, nil, zap.NewNop())

	first := c.ValidateAccess(freeType(), freeProfile("u1"), 1024)
	require.True(t, first.Allowed)

	// 突发额度用尽
	second := c.ValidateAccess(freeType(), freeProfile("u1"), 1024)
	assert.False(t, second.Allowed)
	assert.Equal(t, vision.DenyConcurrencyLimit, second.Reason)
}

func TestController_UnknownTierTreatedAsFree(t *testing.T) {
	c := New(nil, nil, zap.NewNop())

	profile := &vision.UserTierProfile{UserID: "u1", Tier: "gold"}
	decision := c.ValidateAccess(premiumType(), profile, 1024)
	assert.False(t, decision.Allowed)
	assert.Equal(t, vision.DenyTierInsufficient, decision.Reason)
}

func TestController_TrackAccess(t *testing.T) {
	store := &fakeUserStore{}
	c := New(nil, store, zap.NewNop())

	c.TrackAccess("u1", "READ_TEXT", "OCR_RESULTS", 0.001)

	assert.Eventually(t, func() bool { return store.count() == 1 },
		time.Second, 10*time.Millisecond)
}

func TestController_TrackAccessFailureIsSilent(t *testing.T) {
	store := &fakeUserStore{fail: true}
	c := New(nil, store, zap.NewNop())

	// 不 panic、不阻塞即视为通过
	c.TrackAccess("u1", "READ_TEXT", "OCR_RESULTS", 0.001)
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, store.count())
}
