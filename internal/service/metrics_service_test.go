package service

import (
	"testing"
	"time"

	"github.com/lifeloop/internal/db"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupMetricsTestDB(t *testing.T) func() {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	if err := gdb.AutoMigrate(&db.ModelMetric{}); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	db.DB = gdb

	return func() {
		sqlDB, err := db.DB.DB()
		if err == nil {
			sqlDB.Close()
		}
	}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestMonthPeriodBoundaries(t *testing.T) {
	start, end := monthPeriod(time.Date(2026, 2, 14, 22, 30, 0, 0, time.UTC))

	if !start.Equal(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected period start: %v", start)
	}
	if !end.Equal(time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected period end: %v", end)
	}
}

func TestRecordFeedbackSeedsFirstRow(t *testing.T) {
	cleanup := setupMetricsTestDB(t)
	defer cleanup()

	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	svc := NewMetricsService(db.DB).WithClock(fixedClock(now))

	if err := svc.RecordFeedback(1, db.DomainSpending, db.FeedbackHelpful); err != nil {
		t.Fatalf("RecordFeedback returned error: %v", err)
	}

	var metric db.ModelMetric
	if err := db.DB.Where("user_id = ? AND domain = ?", 1, db.DomainSpending).First(&metric).Error; err != nil {
		t.Fatalf("failed to load metric: %v", err)
	}

	if metric.TotalPredictions != 1 || metric.FeedbackTotal != 1 {
		t.Fatalf("unexpected seeded counters: %+v", metric)
	}
	if metric.FeedbackHelpful != 1 || metric.CorrectPredictions != 1 {
		t.Fatalf("helpful feedback should seed correct counters: %+v", metric)
	}
	if metric.Accuracy != 100 || metric.UsefulnessRate != 1 {
		t.Fatalf("unexpected seeded rates: accuracy=%v usefulness=%v", metric.Accuracy, metric.UsefulnessRate)
	}
	if !metric.PeriodStart.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected period start: %v", metric.PeriodStart)
	}
}

func TestRecordFeedbackWrongSeedsZeroAccuracy(t *testing.T) {
	cleanup := setupMetricsTestDB(t)
	defer cleanup()

	svc := NewMetricsService(db.DB).WithClock(fixedClock(time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)))

	if err := svc.RecordFeedback(1, db.DomainSleep, db.FeedbackWrong); err != nil {
		t.Fatalf("RecordFeedback returned error: %v", err)
	}

	var metric db.ModelMetric
	if err := db.DB.Where("user_id = ? AND domain = ?", 1, db.DomainSleep).First(&metric).Error; err != nil {
		t.Fatalf("failed to load metric: %v", err)
	}

	if metric.FeedbackWrong != 1 || metric.CorrectPredictions != 0 {
		t.Fatalf("unexpected counters: %+v", metric)
	}
	if metric.Accuracy != 0 || metric.UsefulnessRate != 0 {
		t.Fatalf("wrong feedback should not raise rates: %+v", metric)
	}
}

func TestRecordFeedbackIncrementsExistingRow(t *testing.T) {
	cleanup := setupMetricsTestDB(t)
	defer cleanup()

	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	svc := NewMetricsService(db.DB).WithClock(fixedClock(now))

	// 先由生成路径播种 4 条预测。
	err := db.DB.Transaction(func(tx *gorm.DB) error {
		for i := 0; i < 4; i++ {
			if err := svc.bumpGeneratedTx(tx, 1, db.DomainScreenTime, 60, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("failed to seed generated predictions: %v", err)
	}

	if err := svc.RecordFeedback(1, db.DomainScreenTime, db.FeedbackHelpful); err != nil {
		t.Fatalf("helpful feedback returned error: %v", err)
	}
	if err := svc.RecordFeedback(1, db.DomainScreenTime, db.FeedbackWrong); err != nil {
		t.Fatalf("wrong feedback returned error: %v", err)
	}

	var metric db.ModelMetric
	if err := db.DB.Where("user_id = ? AND domain = ?", 1, db.DomainScreenTime).First(&metric).Error; err != nil {
		t.Fatalf("failed to load metric: %v", err)
	}

	// 反馈不改变 total_predictions，只更新反馈计数与比率。
	if metric.TotalPredictions != 4 {
		t.Fatalf("feedback must not bump total predictions, got %d", metric.TotalPredictions)
	}
	if metric.FeedbackTotal != 2 || metric.FeedbackHelpful != 1 || metric.FeedbackWrong != 1 {
		t.Fatalf("unexpected feedback counters: %+v", metric)
	}
	if metric.UsefulnessRate != 0.5 {
		t.Fatalf("expected usefulness 0.5, got %v", metric.UsefulnessRate)
	}
	if metric.Accuracy != 25 {
		t.Fatalf("expected accuracy 25, got %v", metric.Accuracy)
	}
}

func TestBumpGeneratedRollsAverageConfidence(t *testing.T) {
	cleanup := setupMetricsTestDB(t)
	defer cleanup()

	now := time.Date(2026, 4, 2, 12, 0, 0, 0, time.UTC)
	svc := NewMetricsService(db.DB).WithClock(fixedClock(now))

	err := db.DB.Transaction(func(tx *gorm.DB) error {
		if err := svc.bumpGeneratedTx(tx, 7, db.DomainExercise, 80, now); err != nil {
			return err
		}
		return svc.bumpGeneratedTx(tx, 7, db.DomainExercise, 40, now)
	})
	if err != nil {
		t.Fatalf("bumpGeneratedTx returned error: %v", err)
	}

	var metric db.ModelMetric
	if err := db.DB.Where("user_id = ? AND domain = ?", 7, db.DomainExercise).First(&metric).Error; err != nil {
		t.Fatalf("failed to load metric: %v", err)
	}

	if metric.TotalPredictions != 2 {
		t.Fatalf("expected 2 predictions, got %d", metric.TotalPredictions)
	}
	if metric.AvgConfidence != 60 {
		t.Fatalf("expected rolling average 60, got %v", metric.AvgConfidence)
	}
}

func TestBumpGeneratedDilutesAccuracy(t *testing.T) {
	cleanup := setupMetricsTestDB(t)
	defer cleanup()

	now := time.Date(2026, 4, 2, 12, 0, 0, 0, time.UTC)
	svc := NewMetricsService(db.DB).WithClock(fixedClock(now))

	if err := svc.RecordFeedback(7, db.DomainStudy, db.FeedbackHelpful); err != nil {
		t.Fatalf("RecordFeedback returned error: %v", err)
	}

	if err := db.DB.Transaction(func(tx *gorm.DB) error {
		return svc.bumpGeneratedTx(tx, 7, db.DomainStudy, 50, now)
	}); err != nil {
		t.Fatalf("bumpGeneratedTx returned error: %v", err)
	}

	var metric db.ModelMetric
	if err := db.DB.Where("user_id = ? AND domain = ?", 7, db.DomainStudy).First(&metric).Error; err != nil {
		t.Fatalf("failed to load metric: %v", err)
	}

	if metric.TotalPredictions != 2 || metric.CorrectPredictions != 1 {
		t.Fatalf("unexpected counters: %+v", metric)
	}
	if metric.Accuracy != 50 {
		t.Fatalf("new prediction should dilute accuracy to 50, got %v", metric.Accuracy)
	}
}

func TestReportAggregatesByDomain(t *testing.T) {
	cleanup := setupMetricsTestDB(t)
	defer cleanup()

	svc := NewMetricsService(db.DB)

	march := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	april := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	rows := []db.ModelMetric{
		{UserID: 1, Domain: db.DomainSpending, PeriodStart: march, TotalPredictions: 4, FeedbackHelpful: 2, FeedbackWrong: 1, Accuracy: 50, UsefulnessRate: 0.5},
		{UserID: 1, Domain: db.DomainSpending, PeriodStart: april, TotalPredictions: 6, FeedbackHelpful: 3, Accuracy: 50, UsefulnessRate: 1},
		{UserID: 1, Domain: db.DomainSleep, PeriodStart: april, TotalPredictions: 10, FeedbackHelpful: 5, Accuracy: 50, UsefulnessRate: 0.5},
		{UserID: 2, Domain: db.DomainSleep, PeriodStart: april, TotalPredictions: 99, FeedbackHelpful: 99},
	}
	if err := db.DB.Create(&rows).Error; err != nil {
		t.Fatalf("failed to seed metrics: %v", err)
	}

	report, err := svc.Report(1)
	if err != nil {
		t.Fatalf("Report returned error: %v", err)
	}

	if len(report.Metrics) != 3 {
		t.Fatalf("expected 3 metric rows for user 1, got %d", len(report.Metrics))
	}
	if len(report.Summary) != 2 {
		t.Fatalf("expected 2 domain summaries, got %d", len(report.Summary))
	}

	byDomain := map[string]DomainMetricSummary{}
	for _, summary := range report.Summary {
		byDomain[summary.Domain] = summary
	}

	spending := byDomain[db.DomainSpending]
	if spending.TotalPredictions != 10 || spending.FeedbackHelpful != 5 || spending.FeedbackWrong != 1 {
		t.Fatalf("unexpected spending summary: %+v", spending)
	}
	if spending.Accuracy != 50 || spending.UsefulnessRate != 0.75 {
		t.Fatalf("unexpected spending rates: %+v", spending)
	}

	// 总体准确率 = 全部 helpful / 全部预测。
	if report.OverallAccuracy != 50 {
		t.Fatalf("expected overall accuracy 50, got %v", report.OverallAccuracy)
	}
}

func TestReportEmptyUserHasNoRows(t *testing.T) {
	cleanup := setupMetricsTestDB(t)
	defer cleanup()

	report, err := NewMetricsService(db.DB).Report(42)
	if err != nil {
		t.Fatalf("Report returned error: %v", err)
	}
	if len(report.Metrics) != 0 || len(report.Summary) != 0 || report.OverallAccuracy != 0 {
		t.Fatalf("expected empty report, got %+v", report)
	}
}
