package db

import "time"

// SpendingHabits 汇总消费相关的行为摘要。
type SpendingHabits struct {
	AvgDaily  float64 `json:"avg_daily"`
	TotalLogs int     `json:"total_logs"`
}

// UserBehaviorProfile 每个用户一行，由行为聚合器在每次成功生成后整体覆盖。
// 非追加式存储：始终反映最近一次计算结果。
type UserBehaviorProfile struct {
	ID               uint           `gorm:"primaryKey"`
	UserID           uint           `gorm:"uniqueIndex;not null"`
	SpendingHabits   SpendingHabits `gorm:"serializer:json"`
	DetectedPatterns []string       `gorm:"serializer:json"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// TableName 自定义表名以保持命名一致。
func (UserBehaviorProfile) TableName() string {
	return "user_behavior_profiles"
}
