package billing

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/framesense/framesense/vision"
)

// =============================================================================
// 🧪 用户存储测试
// =============================================================================

func setupStore(t *testing.T) (*gorm.DB, *GormUserStore) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&User{}, &UsageRecord{}))

	return db, NewGormUserStore(db, zap.NewNop())
}

func TestGormUserStore_UnknownUserIsFreeTier(t *testing.T) {
	_, store := setupStore(t)

	profile, err := store.GetUserTierProfile(context.Background(), "anon-1")
	require.NoError(t, err)
	assert.Equal(t, vision.TierFree, profile.Tier)
	assert.Zero(t, profile.DailyRequestCount)
}

func TestGormUserStore_KnownUserProfile(t *testing.T) {
	db, store := setupStore(t)

	now := time.Now()
	require.NoError(t, db.Create(&User{
		ID:              "u1",
		Tier:            "premium",
		UsageDaily:      7,
		UsageMonthly:    42,
		DailySpend:      0.5,
		MonthlySpend:    3.2,
		DailyBudget:     10,
		MonthlyBudget:   200,
		UsageDayStart:   dayStart(now),
		UsageMonthStart: monthStart(now),
	}).Error)

	profile, err := store.GetUserTierProfile(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, vision.TierPremium, profile.Tier)
	assert.Equal(t, 7, profile.DailyRequestCount)
	assert.Equal(t, 42, profile.MonthlyRequestCount)
	assert.Equal(t, 0.5, profile.DailySpend)
	assert.Equal(t, 10.0, profile.DailyBudget)
}

func TestGormUserStore_InvalidTierFallsToFree(t *testing.T) {
	db, store := setupStore(t)

	now := time.Now()
	require.NoError(t, db.Create(&User{
		ID: "u1", Tier: "gold",
		UsageDayStart: dayStart(now), UsageMonthStart: monthStart(now),
	}).Error)

	profile, err := store.GetUserTierProfile(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, vision.TierFree, profile.Tier)
}

func TestGormUserStore_RecordUsage(t *testing.T) {
	db, store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.RecordUsage(ctx, "u1", "READ_TEXT", "OCR_RESULTS", 0.001))
	require.NoError(t, store.RecordUsage(ctx, "u1", "READ_TEXT", "OCR_RESULTS", 0.002))

	profile, err := store.GetUserTierProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, profile.DailyRequestCount)
	assert.InDelta(t, 0.003, profile.DailySpend, 1e-9)

	var records int64
	db.Model(&UsageRecord{}).Where("user_id = ?", "u1").Count(&records)
	assert.Equal(t, int64(2), records)
}

func TestGormUserStore_DailyRollover(t *testing.T) {
	db, store := setupStore(t)

	yesterday := time.Now().Add(-24 * time.Hour)
	require.NoError(t, db.Create(&User{
		ID:              "u1",
		Tier:            "pro",
		UsageDaily:      49,
		UsageMonthly:    100,
		DailySpend:      4.9,
		MonthlySpend:    20,
		UsageDayStart:   dayStart(yesterday),
		UsageMonthStart: monthStart(time.Now()),
	}).Error)

	profile, err := store.GetUserTierProfile(context.Background(), "u1")
	require.NoError(t, err)
	// 跨日后日计数清零，月计数保留
	assert.Zero(t, profile.DailyRequestCount)
	assert.Zero(t, profile.DailySpend)
	assert.Equal(t, 100, profile.MonthlyRequestCount)
}

func TestGormUserStore_SpendAccessors(t *testing.T) {
	_, store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.RecordUsage(ctx, "u1", "EXPLAIN_TOPIC", "LLM_VISION", 0.04))

	daily, err := store.GetDailySpend(ctx, "u1")
	require.NoError(t, err)
	assert.InDelta(t, 0.04, daily, 1e-9)

	monthly, err := store.GetMonthlySpend(ctx, "u1")
	require.NoError(t, err)
	assert.InDelta(t, 0.04, monthly, 1e-9)
}
