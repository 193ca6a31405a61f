package service

import (
	"errors"
	"fmt"
	"math"

	"github.com/lifeloop/internal/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	// highSpendingThreshold 日均消费超过该值视为高消费。
	highSpendingThreshold = 1000
	// highScreenTimeThreshold 日均屏幕分钟数超过该值视为超时。
	highScreenTimeThreshold = 180
	// lowStepThreshold 所有步数记录低于该值视为活动量不足。
	lowStepThreshold = 5000
)

// BehaviorService 负责从原始日志推导行为画像。
// 作为生成流程的副作用运行：失败只记录日志，不影响主请求。
type BehaviorService struct {
	db *gorm.DB
}

// NewBehaviorService 构造 BehaviorService。
func NewBehaviorService(gdb *gorm.DB) *BehaviorService {
	return &BehaviorService{db: gdb}
}

// UpdateProfile 重新计算并整体覆盖用户的行为画像。
func (s *BehaviorService) UpdateProfile(userID uint, scores []db.LifeScore, logs []db.ActivityLog) error {
	if userID == 0 {
		return fmt.Errorf("user id is required")
	}

	var spendingLogs, screenLogs, stepLogs []db.ActivityLog
	for _, entry := range logs {
		switch entry.LogType {
		case db.LogTypeSpending:
			spendingLogs = append(spendingLogs, entry)
		case db.LogTypeScreenTime:
			screenLogs = append(screenLogs, entry)
		case db.LogTypeSteps:
			stepLogs = append(stepLogs, entry)
		}
	}

	avgSpending := meanValue(spendingLogs)
	avgScreen := meanValue(screenLogs)

	patterns := []string{}
	if avgSpending > highSpendingThreshold {
		patterns = append(patterns, "High daily spending detected")
	}
	if avgScreen > highScreenTimeThreshold {
		patterns = append(patterns, "Screen time exceeds 3 hours average")
	}
	if len(stepLogs) > 0 && allBelow(stepLogs, lowStepThreshold) {
		patterns = append(patterns, "Consistently low step count")
	}

	profile := db.UserBehaviorProfile{
		UserID: userID,
		SpendingHabits: db.SpendingHabits{
			AvgDaily:  math.Round(avgSpending),
			TotalLogs: len(spendingLogs),
		},
		DetectedPatterns: patterns,
	}

	if err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"spending_habits", "detected_patterns", "updated_at"}),
	}).Create(&profile).Error; err != nil {
		return fmt.Errorf("upsert behavior profile: %w", err)
	}

	return nil
}

// Profile 返回用户画像，不存在时返回 nil。
func (s *BehaviorService) Profile(userID uint) (*db.UserBehaviorProfile, error) {
	var profile db.UserBehaviorProfile
	if err := s.db.Where("user_id = ?", userID).First(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load behavior profile: %w", err)
	}
	return &profile, nil
}

func meanValue(logs []db.ActivityLog) float64 {
	if len(logs) == 0 {
		return 0
	}
	var sum float64
	for _, entry := range logs {
		sum += entry.Value
	}
	return sum / float64(len(logs))
}

func allBelow(logs []db.ActivityLog, threshold float64) bool {
	for _, entry := range logs {
		if entry.Value >= threshold {
			return false
		}
	}
	return true
}
