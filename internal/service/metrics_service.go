package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/lifeloop/internal/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const metricsReportRowLimit = 30

// MetricsService 维护按 用户+领域+自然月 滚动的模型质量计数器。
// 所有比率都由权威计数器在同一事务内重新计算，避免增量漂移。
type MetricsService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewMetricsService 构造 MetricsService。
func NewMetricsService(gdb *gorm.DB) *MetricsService {
	return &MetricsService{db: gdb, now: time.Now}
}

// WithClock 覆盖时间源，便于测试固定周期边界。
func (s *MetricsService) WithClock(now func() time.Time) *MetricsService {
	if now != nil {
		s.now = now
	}
	return s
}

// monthPeriod 返回 UTC 自然月的首日与末日。
func monthPeriod(now time.Time) (time.Time, time.Time) {
	utc := now.UTC()
	start := time.Date(utc.Year(), utc.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(utc.Year(), utc.Month()+1, 0, 0, 0, 0, 0, time.UTC)
	return start, end
}

// RecordFeedback 在独立事务中登记一次反馈事件对应的指标变更。
func (s *MetricsService) RecordFeedback(userID uint, domain, feedbackType string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return s.recordFeedbackTx(tx, userID, domain, feedbackType, s.now())
	})
}

// recordFeedbackTx 供上层事务复用：首次反馈懒创建行，否则增量更新。
// total_predictions 不在此路径递增，只在生成时递增。
func (s *MetricsService) recordFeedbackTx(tx *gorm.DB, userID uint, domain, feedbackType string, now time.Time) error {
	periodStart, periodEnd := monthPeriod(now)

	var metric db.ModelMetric
	result := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND domain = ? AND period_start = ?", userID, domain, periodStart).
		First(&metric)

	switch {
	case errors.Is(result.Error, gorm.ErrRecordNotFound):
		metric = db.ModelMetric{
			UserID:        userID,
			Domain:        domain,
			PeriodStart:   periodStart,
			PeriodEnd:     periodEnd,
			FeedbackTotal: 1,
		}
		// 懒创建时以本条反馈作为唯一样本播种计数器。
		metric.TotalPredictions = 1
		if feedbackType == db.FeedbackHelpful {
			metric.FeedbackHelpful = 1
			metric.CorrectPredictions = 1
			metric.Accuracy = 100
			metric.UsefulnessRate = 1
		}
		if feedbackType == db.FeedbackWrong {
			metric.FeedbackWrong = 1
		}
		if err := tx.Create(&metric).Error; err != nil {
			return fmt.Errorf("create model metric: %w", err)
		}
		return nil
	case result.Error != nil:
		return fmt.Errorf("load model metric: %w", result.Error)
	}

	metric.FeedbackTotal++
	if feedbackType == db.FeedbackHelpful {
		metric.FeedbackHelpful++
		metric.CorrectPredictions++
	}
	if feedbackType == db.FeedbackWrong {
		metric.FeedbackWrong++
	}

	metric.UsefulnessRate = float64(metric.FeedbackHelpful) / float64(metric.FeedbackTotal)
	if metric.TotalPredictions > 0 {
		metric.Accuracy = float64(metric.CorrectPredictions) / float64(metric.TotalPredictions) * 100
	} else {
		metric.Accuracy = 0
	}

	if err := tx.Save(&metric).Error; err != nil {
		return fmt.Errorf("update model metric: %w", err)
	}
	return nil
}

// bumpGeneratedTx 在生成事务内登记一条新预测：递增 total_predictions，
// 滚动更新平均置信度并按新分母重算 accuracy。
func (s *MetricsService) bumpGeneratedTx(tx *gorm.DB, userID uint, domain string, confidence float64, now time.Time) error {
	periodStart, periodEnd := monthPeriod(now)

	var metric db.ModelMetric
	result := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND domain = ? AND period_start = ?", userID, domain, periodStart).
		First(&metric)

	switch {
	case errors.Is(result.Error, gorm.ErrRecordNotFound):
		metric = db.ModelMetric{
			UserID:           userID,
			Domain:           domain,
			PeriodStart:      periodStart,
			PeriodEnd:        periodEnd,
			TotalPredictions: 1,
			AvgConfidence:    confidence,
		}
		if err := tx.Create(&metric).Error; err != nil {
			return fmt.Errorf("create model metric: %w", err)
		}
		return nil
	case result.Error != nil:
		return fmt.Errorf("load model metric: %w", result.Error)
	}

	total := float64(metric.TotalPredictions)
	metric.AvgConfidence = (metric.AvgConfidence*total + confidence) / (total + 1)
	metric.TotalPredictions++
	metric.Accuracy = float64(metric.CorrectPredictions) / float64(metric.TotalPredictions) * 100

	if err := tx.Save(&metric).Error; err != nil {
		return fmt.Errorf("update model metric: %w", err)
	}
	return nil
}

// DomainMetricSummary 是单个领域跨周期的聚合视图。
type DomainMetricSummary struct {
	Domain           string  `json:"domain"`
	Accuracy         float64 `json:"accuracy"`
	UsefulnessRate   float64 `json:"usefulness_rate"`
	TotalPredictions int     `json:"total_predictions"`
	FeedbackHelpful  int     `json:"feedback_helpful"`
	FeedbackWrong    int     `json:"feedback_wrong"`
}

// MetricsReport 汇总用户的指标行、按领域聚合与总体准确率。
type MetricsReport struct {
	Metrics         []db.ModelMetric      `json:"metrics"`
	Summary         []DomainMetricSummary `json:"summary"`
	OverallAccuracy float64               `json:"overall_accuracy"`
}

// Report 生成只读的准确率报表，不产生任何写入。
func (s *MetricsService) Report(userID uint) (*MetricsReport, error) {
	var rows []db.ModelMetric
	if err := s.db.Where("user_id = ?", userID).
		Order("period_start DESC, domain ASC").
		Limit(metricsReportRowLimit).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list model metrics: %w", err)
	}

	type bucket struct {
		accuracySum   float64
		usefulnessSum float64
		count         int
		summary       DomainMetricSummary
	}

	buckets := map[string]*bucket{}
	order := []string{}
	totalPredictions := 0
	totalHelpful := 0

	for _, row := range rows {
		b, ok := buckets[row.Domain]
		if !ok {
			b = &bucket{summary: DomainMetricSummary{Domain: row.Domain}}
			buckets[row.Domain] = b
			order = append(order, row.Domain)
		}
		b.accuracySum += row.Accuracy
		b.usefulnessSum += row.UsefulnessRate
		b.count++
		b.summary.TotalPredictions += row.TotalPredictions
		b.summary.FeedbackHelpful += row.FeedbackHelpful
		b.summary.FeedbackWrong += row.FeedbackWrong
		totalPredictions += row.TotalPredictions
		totalHelpful += row.FeedbackHelpful
	}

	summaries := make([]DomainMetricSummary, 0, len(order))
	for _, domain := range order {
		b := buckets[domain]
		b.summary.Accuracy = b.accuracySum / float64(b.count)
		b.summary.UsefulnessRate = b.usefulnessSum / float64(b.count)
		summaries = append(summaries, b.summary)
	}

	report := &MetricsReport{Metrics: rows, Summary: summaries}
	if totalPredictions > 0 {
		report.OverallAccuracy = float64(totalHelpful) / float64(totalPredictions) * 100
	}

	return report, nil
}
