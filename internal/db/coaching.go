package db

import "gorm.io/gorm"

const (
	// PlanStatusActive 表示计划进行中。
	PlanStatusActive = "active"
	// PlanStatusArchived 表示计划被新计划取代。
	PlanStatusArchived = "archived"
)

// CoachingPlan 是 AI 生成的 10 天改进计划。
// 同一用户最多一个 active 计划，生成新计划时旧计划整体归档。
type CoachingPlan struct {
	gorm.Model
	UserID      uint   `gorm:"index;not null"`
	Title       string `gorm:"size:200;not null"`
	Description string `gorm:"type:text"`
	Status      string `gorm:"size:16;index;default:active"`
}

// DailyTask 是计划内的单日任务。
type DailyTask struct {
	gorm.Model
	UserID    uint         `gorm:"index;not null"`
	PlanID    uint         `gorm:"index;not null"`
	Plan      CoachingPlan `gorm:"foreignKey:PlanID;constraint:OnDelete:CASCADE"`
	DayNumber int          `gorm:"not null"`
	Task      string       `gorm:"size:200;not null"`
	Category  string       `gorm:"size:32"`
	Completed bool         `gorm:"default:false"`
}

const (
	// NudgeTypeSuccess 表示正向提醒。
	NudgeTypeSuccess = "success"
	// NudgeTypeWarning 表示风险提醒。
	NudgeTypeWarning = "warning"
)

// Nudge 是推送给用户的轻量提醒。
type Nudge struct {
	gorm.Model
	UserID    uint   `gorm:"index;not null"`
	Message   string `gorm:"size:300;not null"`
	NudgeType string `gorm:"size:16;default:success"`
	Read      bool   `gorm:"default:false"`
}
