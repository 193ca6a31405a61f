package db

import (
	"time"

	"gorm.io/gorm"
)

const (
	// LogTypeScreenTime 表示屏幕使用时长（分钟）。
	LogTypeScreenTime = "screen_time"
	// LogTypeSteps 表示步数。
	LogTypeSteps = "steps"
	// LogTypeSpending 表示消费金额。
	LogTypeSpending = "spending"
)

// ActivityLog 记录用户的原始行为数据，只追加不修改。
// Category 为可选的细分标签（如消费类目），LoggedAt 是用户侧的发生时间。
type ActivityLog struct {
	gorm.Model
	UserID   uint    `gorm:"index;not null"`
	LogType  string  `gorm:"size:32;index;not null"`
	Value    float64 `gorm:"not null"`
	Category string  `gorm:"size:64"`
	LoggedAt time.Time `gorm:"index"`
}

// TableName 自定义表名以保持命名一致。
func (ActivityLog) TableName() string {
	return "activity_logs"
}

// LifeScore 存储每日主观生活评分，各维度 0-100。
// UserID + Date 采用唯一索引，同一天重复提交按 upsert 处理。
type LifeScore struct {
	gorm.Model
	UserID       uint      `gorm:"index;index:idx_life_score_unique,unique"`
	Date         time.Time `gorm:"index:idx_life_score_unique,unique"`
	Overall      int
	Productivity int
	Wellbeing    int
	Financial    int
	Physical     int
	Digital      int
}

// TableName 重写确保唯一索引作用到 user_id + date
func (LifeScore) TableName() string {
	return "life_scores"
}

const (
	// GoalStatusActive 表示目标进行中。
	GoalStatusActive = "active"
	// GoalStatusArchived 表示目标已归档或完成。
	GoalStatusArchived = "archived"
)

// Goal 定义了用户目标模型，作为预测生成的只读上下文。
type Goal struct {
	gorm.Model
	UserID       uint   `gorm:"index;not null"`
	Title        string `gorm:"size:200;not null"`
	Category     string `gorm:"size:64"`
	Progress     int
	CurrentValue float64
	TargetValue  float64
	Status       string `gorm:"size:16;index;default:active"`
}
