package db

import (
	"time"

	"gorm.io/gorm"
)

const (
	// PredictionStatusPending 表示预测等待用户反馈或过期。
	PredictionStatusPending = "pending"
	// PredictionStatusConfirmed 表示用户确认预测有帮助。
	PredictionStatusConfirmed = "confirmed"
	// PredictionStatusIncorrect 表示用户标记预测错误。
	PredictionStatusIncorrect = "incorrect"
	// PredictionStatusExpired 表示预测被新一批生成结果取代。
	PredictionStatusExpired = "expired"
)

const (
	// TrendRising 表示风险趋势上升。
	TrendRising = "rising"
	// TrendFalling 表示风险趋势下降。
	TrendFalling = "falling"
	// TrendStable 表示风险趋势平稳。
	TrendStable = "stable"
)

const (
	// DomainSpending 消费领域。
	DomainSpending = "spending"
	// DomainScreenTime 屏幕时间领域。
	DomainScreenTime = "screen_time"
	// DomainSleep 睡眠领域。
	DomainSleep = "sleep"
	// DomainExercise 运动领域。
	DomainExercise = "exercise"
	// DomainStudy 学习领域。
	DomainStudy = "study"
	// DomainTasks 任务领域。
	DomainTasks = "tasks"
	// DomainGeneral 兜底领域，用于数据不足时的保守预测。
	DomainGeneral = "general"
)

// PredictionDomains 列出所有合法的预测领域。
var PredictionDomains = []string{
	DomainSpending,
	DomainScreenTime,
	DomainSleep,
	DomainExercise,
	DomainStudy,
	DomainTasks,
	DomainGeneral,
}

// Prediction 是预测生命周期的核心实体。
// 状态机：pending → confirmed/incorrect（反馈驱动）或 expired（被新批次取代），
// 三种终态均保留历史记录，不做物理删除。
type Prediction struct {
	gorm.Model
	UserID             uint    `gorm:"index;not null"`
	Domain             string  `gorm:"size:32;index;not null"`
	PredictionText     string  `gorm:"size:200;not null"`
	RiskScore          float64 `gorm:"not null"`
	ConfidenceScore    float64 `gorm:"not null"`
	TrendDirection     string  `gorm:"size:16;not null"`
	PatternExplanation string  `gorm:"type:text"`
	Status             string  `gorm:"size:16;index;default:pending"`
	ExpiresAt          time.Time
	ResolvedAt         *time.Time
	AccuracyScore      *float64
}

const (
	// FeedbackHelpful 表示预测有帮助。
	FeedbackHelpful = "helpful"
	// FeedbackWrong 表示预测错误。
	FeedbackWrong = "wrong"
	// FeedbackTooFrequent 表示预测推送过于频繁。
	FeedbackTooFrequent = "too_frequent"
	// FeedbackNotRelevant 表示预测与用户无关。
	FeedbackNotRelevant = "not_relevant"
)

// FeedbackTypes 列出所有合法的反馈类型。
var FeedbackTypes = []string{
	FeedbackHelpful,
	FeedbackWrong,
	FeedbackTooFrequent,
	FeedbackNotRelevant,
}

// PredictionFeedback 是只追加的反馈事件日志。
// 同一预测允许多条反馈，状态转移按最后一次生效，但全部事件都计入指标。
type PredictionFeedback struct {
	gorm.Model
	PredictionID uint       `gorm:"index;not null"`
	Prediction   Prediction `gorm:"constraint:OnDelete:CASCADE"`
	UserID       uint       `gorm:"index;not null"`
	FeedbackType string     `gorm:"size:32;not null"`
	Comment      string     `gorm:"type:text"`
}

// TableName 自定义表名以保持命名一致。
func (PredictionFeedback) TableName() string {
	return "prediction_feedback"
}
