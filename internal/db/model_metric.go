package db

import "time"

// ModelMetric 按 用户+领域+自然月 维护滚动的预测质量计数器。
// accuracy 与 usefulness_rate 永远由权威计数器重新算出，不做增量漂移。
type ModelMetric struct {
	ID                 uint      `gorm:"primaryKey"`
	UserID             uint      `gorm:"index;index:idx_model_metric_unique,unique"`
	Domain             string    `gorm:"size:32;index:idx_model_metric_unique,unique"`
	PeriodStart        time.Time `gorm:"index:idx_model_metric_unique,unique"`
	PeriodEnd          time.Time
	TotalPredictions   int `gorm:"default:0"`
	CorrectPredictions int `gorm:"default:0"`
	FeedbackTotal      int `gorm:"default:0"`
	FeedbackHelpful    int `gorm:"default:0"`
	FeedbackWrong      int `gorm:"default:0"`
	Accuracy           float64 `gorm:"default:0"`
	UsefulnessRate     float64 `gorm:"default:0"`
	AvgConfidence      float64 `gorm:"default:0"`
	DriftScore         float64 `gorm:"default:0"`
	Version            int     `gorm:"default:1"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// TableName 自定义表名以保持命名一致。
func (ModelMetric) TableName() string {
	return "model_metrics"
}
