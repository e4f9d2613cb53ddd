// 版权所有 2024 FrameSense Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

// 包 billing 提供基于持久层的用户层级与用量存取。
// 路由器把这里的所有调用都视为尽力而为：失败降级，不中断请求。
package billing

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/framesense/framesense/vision"
)

// =============================================================================
// 👤 用户存储
// =============================================================================

// User 用户行
type User struct {
	ID                 string    `gorm:"primaryKey;size:64" json:"id"`
	Email              string    `gorm:"size:255;index" json:"email"`
	Tier               string    `gorm:"size:16;default:free" json:"tier"`
	SubscriptionStatus string    `gorm:"size:32;default:none" json:"subscription_status"`
	UsageDaily         int       `json:"usage_daily"`
	UsageMonthly       int       `json:"usage_monthly"`
	UsageTotal         int64     `json:"usage_total"`
	DailySpend         float64   `json:"daily_spend"`
	MonthlySpend       float64   `json:"monthly_spend"`
	DailyBudget        float64   `json:"daily_budget"`
	MonthlyBudget      float64   `json:"monthly_budget"`
	UsageDayStart      time.Time `json:"usage_day_start"`
	UsageMonthStart    time.Time `json:"usage_month_start"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// TableName GORM 表名
func (User) TableName() string {
	return "users"
}

// UsageRecord 单次访问的用量明细行
type UsageRecord struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID       string    `gorm:"index;size:64" json:"user_id"`
	QuestionType string    `gorm:"size:64" json:"question_type"`
	ServiceID    string    `gorm:"size:64" json:"service_id"`
	Cost         float64   `json:"cost"`
	CreatedAt    time.Time `json:"created_at"`
}

// TableName GORM 表名
func (UsageRecord) TableName() string {
	return "usage_records"
}

// GormUserStore vision.UserStore 的持久层实现
type GormUserStore struct {
	db     *gorm.DB
	logger *zap.Logger
	now    func() time.Time
}

// NewGormUserStore 创建用户存储
func NewGormUserStore(db *gorm.DB, logger *zap.Logger) *GormUserStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GormUserStore{
		db:     db,
		logger: logger.With(zap.String("component", "user_store")),
		now:    time.Now,
	}
}

// GetUserTierProfile 读取用户层级画像
// 未知用户返回匿名免费层画像：免费层允许未注册使用
func (s *GormUserStore) GetUserTierProfile(ctx context.Context, userID string) (*vision.UserTierProfile, error) {
	var user User
	err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &vision.UserTierProfile{UserID: userID, Tier: vision.TierFree}, nil
		}
		return nil, err
	}

	user = s.rolledOver(user)

	tier := vision.Tier(user.Tier)
	if !tier.Valid() {
		tier = vision.TierFree
	}

	return &vision.UserTierProfile{
		UserID:              user.ID,
		Tier:                tier,
		DailySpend:          user.DailySpend,
		MonthlySpend:        user.MonthlySpend,
		DailyRequestCount:   user.UsageDaily,
		MonthlyRequestCount: user.UsageMonthly,
		DailyBudget:         user.DailyBudget,
		MonthlyBudget:       user.MonthlyBudget,
	}, nil
}

// GetDailySpend 当日累计花费
func (s *GormUserStore) GetDailySpend(ctx context.Context, userID string) (float64, error) {
	profile, err := s.GetUserTierProfile(ctx, userID)
	if err != nil {
		return 0, err
	}
	return profile.DailySpend, nil
}

// GetMonthlySpend 当月累计花费
func (s *GormUserStore) GetMonthlySpend(ctx context.Context, userID string) (float64, error) {
	profile, err := s.GetUserTierProfile(ctx, userID)
	if err != nil {
		return 0, err
	}
	return profile.MonthlySpend, nil
}

// RecordUsage 记录一次成功访问：计数器、花费与明细行
func (s *GormUserStore) RecordUsage(ctx context.Context, userID, questionType, serviceID string, cost float64) error {
	now := s.now()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user User
		err := tx.First(&user, "id = ?", userID).Error
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			// 匿名免费层用户首次使用时落库
			user = User{
				ID:              userID,
				Tier:            string(vision.TierFree),
				UsageDayStart:   dayStart(now),
				UsageMonthStart: monthStart(now),
			}
			if err := tx.Create(&user).Error; err != nil {
				return err
			}
		}

		user = s.rolledOver(user)
		user.UsageDaily++
		user.UsageMonthly++
		user.UsageTotal++
		user.DailySpend += cost
		user.MonthlySpend += cost
		user.UpdatedAt = now

		if err := tx.Save(&user).Error; err != nil {
			return err
		}

		return tx.Create(&UsageRecord{
			UserID:       userID,
			QuestionType: questionType,
			ServiceID:    serviceID,
			Cost:         cost,
			CreatedAt:    now,
		}).Error
	})
}

// rolledOver 日/月窗口滚动后清零对应计数
func (s *GormUserStore) rolledOver(user User) User {
	now := s.now()

	if day := dayStart(now); user.UsageDayStart.Before(day) {
		user.UsageDayStart = day
		user.UsageDaily = 0
		user.DailySpend = 0
	}
	if month := monthStart(now); user.UsageMonthStart.Before(month) {
		user.UsageMonthStart = month
		user.UsageMonthly = 0
		user.MonthlySpend = 0
	}
	return user
}

func dayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}
