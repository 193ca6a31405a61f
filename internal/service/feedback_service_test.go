package service

import (
	"errors"
	"testing"
	"time"

	"github.com/lifeloop/internal/db"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupFeedbackTestDB(t *testing.T) func() {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	if err := gdb.AutoMigrate(&db.Prediction{}, &db.PredictionFeedback{}, &db.ModelMetric{}); err != nil {
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

func seedPendingPrediction(t *testing.T, userID uint, domain string) db.Prediction {
	t.Helper()
	prediction := db.Prediction{
		UserID:          userID,
		Domain:          domain,
		PredictionText:  "You may overspend on food delivery this weekend",
		RiskScore:       70,
		ConfidenceScore: 65,
		TrendDirection:  db.TrendRising,
		Status:          db.PredictionStatusPending,
		ExpiresAt:       time.Now().Add(7 * 24 * time.Hour),
	}
	if err := db.DB.Create(&prediction).Error; err != nil {
		t.Fatalf("failed to seed prediction: %v", err)
	}
	return prediction
}

func TestSubmitHelpfulConfirmsPrediction(t *testing.T) {
	cleanup := setupFeedbackTestDB(t)
	defer cleanup()

	now := time.Date(2026, 5, 20, 9, 0, 0, 0, time.UTC)
	metrics := NewMetricsService(db.DB).WithClock(fixedClock(now))
	svc := NewFeedbackService(db.DB, metrics).WithClock(fixedClock(now))

	prediction := seedPendingPrediction(t, 1, db.DomainSpending)

	if err := svc.Submit(prediction.ID, 1, db.FeedbackHelpful, "spot on"); err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}

	var updated db.Prediction
	if err := db.DB.First(&updated, prediction.ID).Error; err != nil {
		t.Fatalf("failed to reload prediction: %v", err)
	}

	if updated.Status != db.PredictionStatusConfirmed {
		t.Fatalf("expected confirmed status, got %s", updated.Status)
	}
	if updated.ResolvedAt == nil || !updated.ResolvedAt.Equal(now) {
		t.Fatalf("expected resolved_at %v, got %v", now, updated.ResolvedAt)
	}
	if updated.AccuracyScore == nil || *updated.AccuracyScore != 80 {
		t.Fatalf("expected accuracy score 80, got %v", updated.AccuracyScore)
	}

	var event db.PredictionFeedback
	if err := db.DB.Where("prediction_id = ?", prediction.ID).First(&event).Error; err != nil {
		t.Fatalf("failed to load feedback event: %v", err)
	}
	if event.FeedbackType != db.FeedbackHelpful || event.Comment != "spot on" {
		t.Fatalf("unexpected feedback event: %+v", event)
	}
}

func TestSubmitWrongMarksIncorrectWithoutScore(t *testing.T) {
	cleanup := setupFeedbackTestDB(t)
	defer cleanup()

	metrics := NewMetricsService(db.DB)
	svc := NewFeedbackService(db.DB, metrics)

	prediction := seedPendingPrediction(t, 1, db.DomainSleep)

	if err := svc.Submit(prediction.ID, 1, db.FeedbackWrong, ""); err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}

	var updated db.Prediction
	if err := db.DB.First(&updated, prediction.ID).Error; err != nil {
		t.Fatalf("failed to reload prediction: %v", err)
	}

	if updated.Status != db.PredictionStatusIncorrect {
		t.Fatalf("expected incorrect status, got %s", updated.Status)
	}
	if updated.ResolvedAt == nil {
		t.Fatal("expected resolved_at to be set")
	}
	if updated.AccuracyScore != nil {
		t.Fatalf("wrong feedback must not set accuracy score, got %v", *updated.AccuracyScore)
	}
}

func TestSubmitSoftFeedbackKeepsStatus(t *testing.T) {
	cleanup := setupFeedbackTestDB(t)
	defer cleanup()

	metrics := NewMetricsService(db.DB)
	svc := NewFeedbackService(db.DB, metrics)

	prediction := seedPendingPrediction(t, 1, db.DomainScreenTime)

	for _, feedbackType := range []string{db.FeedbackTooFrequent, db.FeedbackNotRelevant} {
		if err := svc.Submit(prediction.ID, 1, feedbackType, ""); err != nil {
			t.Fatalf("Submit(%s) returned error: %v", feedbackType, err)
		}
	}

	var updated db.Prediction
	if err := db.DB.First(&updated, prediction.ID).Error; err != nil {
		t.Fatalf("failed to reload prediction: %v", err)
	}

	// too_frequent / not_relevant 只记录事件，不驱动状态机。
	if updated.Status != db.PredictionStatusPending {
		t.Fatalf("expected pending status, got %s", updated.Status)
	}
	if updated.ResolvedAt != nil {
		t.Fatalf("soft feedback must not resolve prediction: %v", updated.ResolvedAt)
	}

	var metric db.ModelMetric
	if err := db.DB.Where("user_id = ? AND domain = ?", 1, db.DomainScreenTime).First(&metric).Error; err != nil {
		t.Fatalf("failed to load metric: %v", err)
	}
	if metric.FeedbackTotal != 2 || metric.FeedbackHelpful != 0 || metric.FeedbackWrong != 0 {
		t.Fatalf("unexpected metric counters: %+v", metric)
	}
}

func TestSubmitRejectsInvalidType(t *testing.T) {
	cleanup := setupFeedbackTestDB(t)
	defer cleanup()

	svc := NewFeedbackService(db.DB, NewMetricsService(db.DB))
	prediction := seedPendingPrediction(t, 1, db.DomainSpending)

	err := svc.Submit(prediction.ID, 1, "amazing", "")
	if !errors.Is(err, ErrInvalidFeedbackType) {
		t.Fatalf("expected ErrInvalidFeedbackType, got %v", err)
	}

	var count int64
	db.DB.Model(&db.PredictionFeedback{}).Count(&count)
	if count != 0 {
		t.Fatalf("invalid feedback must not be persisted, found %d events", count)
	}
}

func TestSubmitRejectsForeignPrediction(t *testing.T) {
	cleanup := setupFeedbackTestDB(t)
	defer cleanup()

	svc := NewFeedbackService(db.DB, NewMetricsService(db.DB))
	prediction := seedPendingPrediction(t, 1, db.DomainSpending)

	err := svc.Submit(prediction.ID, 2, db.FeedbackHelpful, "")
	if !errors.Is(err, ErrFeedbackForbidden) {
		t.Fatalf("expected ErrFeedbackForbidden, got %v", err)
	}

	var updated db.Prediction
	if err := db.DB.First(&updated, prediction.ID).Error; err != nil {
		t.Fatalf("failed to reload prediction: %v", err)
	}
	if updated.Status != db.PredictionStatusPending {
		t.Fatalf("foreign feedback must not change status, got %s", updated.Status)
	}
}

func TestSubmitMissingPrediction(t *testing.T) {
	cleanup := setupFeedbackTestDB(t)
	defer cleanup()

	svc := NewFeedbackService(db.DB, NewMetricsService(db.DB))

	if err := svc.Submit(999, 1, db.FeedbackHelpful, ""); !errors.Is(err, ErrPredictionNotFound) {
		t.Fatalf("expected ErrPredictionNotFound, got %v", err)
	}
}

func TestSubmitSanitizesComment(t *testing.T) {
	cleanup := setupFeedbackTestDB(t)
	defer cleanup()

	svc := NewFeedbackService(db.DB, NewMetricsService(db.DB))
	prediction := seedPendingPrediction(t, 1, db.DomainSpending)

	if err := svc.Submit(prediction.ID, 1, db.FeedbackHelpful, `<script>alert(1)</script>useful`); err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}

	var event db.PredictionFeedback
	if err := db.DB.Where("prediction_id = ?", prediction.ID).First(&event).Error; err != nil {
		t.Fatalf("failed to load feedback event: %v", err)
	}
	if event.Comment != "useful" {
		t.Fatalf("expected sanitized comment, got %q", event.Comment)
	}
}

func TestSubmitDuplicateFeedbackAppends(t *testing.T) {
	cleanup := setupFeedbackTestDB(t)
	defer cleanup()

	metrics := NewMetricsService(db.DB)
	svc := NewFeedbackService(db.DB, metrics)
	prediction := seedPendingPrediction(t, 1, db.DomainSpending)

	if err := svc.Submit(prediction.ID, 1, db.FeedbackHelpful, ""); err != nil {
		t.Fatalf("first Submit returned error: %v", err)
	}
	if err := svc.Submit(prediction.ID, 1, db.FeedbackWrong, "changed my mind"); err != nil {
		t.Fatalf("second Submit returned error: %v", err)
	}

	var count int64
	db.DB.Model(&db.PredictionFeedback{}).Where("prediction_id = ?", prediction.ID).Count(&count)
	if count != 2 {
		t.Fatalf("expected 2 feedback events, got %d", count)
	}

	// 状态按最后一次反馈生效。
	var updated db.Prediction
	if err := db.DB.First(&updated, prediction.ID).Error; err != nil {
		t.Fatalf("failed to reload prediction: %v", err)
	}
	if updated.Status != db.PredictionStatusIncorrect {
		t.Fatalf("expected incorrect status after second feedback, got %s", updated.Status)
	}

	var metric db.ModelMetric
	if err := db.DB.Where("user_id = ? AND domain = ?", 1, db.DomainSpending).First(&metric).Error; err != nil {
		t.Fatalf("failed to load metric: %v", err)
	}
	if metric.FeedbackTotal != 2 || metric.FeedbackHelpful != 1 || metric.FeedbackWrong != 1 {
		t.Fatalf("both feedback events should be counted: %+v", metric)
	}
}

func TestListForUserOrdersNewestFirst(t *testing.T) {
	cleanup := setupFeedbackTestDB(t)
	defer cleanup()

	svc := NewFeedbackService(db.DB, NewMetricsService(db.DB))
	prediction := seedPendingPrediction(t, 1, db.DomainSpending)

	events := []db.PredictionFeedback{
		{PredictionID: prediction.ID, UserID: 1, FeedbackType: db.FeedbackHelpful},
		{PredictionID: prediction.ID, UserID: 1, FeedbackType: db.FeedbackWrong},
		{PredictionID: prediction.ID, UserID: 2, FeedbackType: db.FeedbackHelpful},
	}
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	for i := range events {
		events[i].CreatedAt = base.Add(time.Duration(i) * time.Hour)
		if err := db.DB.Create(&events[i]).Error; err != nil {
			t.Fatalf("failed to seed feedback: %v", err)
		}
	}

	list, err := svc.ListForUser(1, 0)
	if err != nil {
		t.Fatalf("ListForUser returned error: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 events for user 1, got %d", len(list))
	}
	if list[0].FeedbackType != db.FeedbackWrong {
		t.Fatalf("expected newest event first, got %s", list[0].FeedbackType)
	}
}
