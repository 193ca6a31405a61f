package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lifeloop/internal/db"
	"github.com/microcosm-cc/bluemonday"
	"gorm.io/gorm"
)

var (
	// ErrPredictionNotFound 在引用的预测不存在时返回。
	ErrPredictionNotFound = errors.New("prediction not found")
	// ErrFeedbackForbidden 在提交人不拥有该预测时返回。
	ErrFeedbackForbidden = errors.New("prediction belongs to another user")
	// ErrInvalidFeedbackType 在反馈类型非法时返回。
	ErrInvalidFeedbackType = errors.New("invalid feedback type")
)

// confirmedAccuracyScore 是 helpful 反馈写入的固定准确分。
const confirmedAccuracyScore = 80.0

// commentSanitizer 过滤用户备注中的任何 HTML。
var commentSanitizer = bluemonday.StrictPolicy()

// FeedbackService 负责反馈事件的登记、预测状态转移与指标联动。
// 事件日志只追加：同一预测允许多条反馈，全部计入指标。
type FeedbackService struct {
	db      *gorm.DB
	metrics *MetricsService
	now     func() time.Time
}

// NewFeedbackService 构造 FeedbackService。
func NewFeedbackService(gdb *gorm.DB, metrics *MetricsService) *FeedbackService {
	return &FeedbackService{db: gdb, metrics: metrics, now: time.Now}
}

// WithClock 覆盖时间源，便于测试固定 resolved_at 与指标周期。
func (s *FeedbackService) WithClock(now func() time.Time) *FeedbackService {
	if now != nil {
		s.now = now
	}
	return s
}

// Submit 登记一条反馈并驱动预测状态机。
// 校验与归属检查失败时立即拒绝，不产生任何写入。
func (s *FeedbackService) Submit(predictionID, userID uint, feedbackType, comment string) error {
	feedbackType = strings.TrimSpace(strings.ToLower(feedbackType))
	if !isValidFeedbackType(feedbackType) {
		return fmt.Errorf("%w: %s", ErrInvalidFeedbackType, feedbackType)
	}

	var prediction db.Prediction
	if err := s.db.First(&prediction, predictionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrPredictionNotFound
		}
		return fmt.Errorf("load prediction: %w", err)
	}

	if prediction.UserID != userID {
		return ErrFeedbackForbidden
	}

	now := s.now()
	sanitizedComment := strings.TrimSpace(commentSanitizer.Sanitize(comment))

	return s.db.Transaction(func(tx *gorm.DB) error {
		event := db.PredictionFeedback{
			PredictionID: prediction.ID,
			UserID:       userID,
			FeedbackType: feedbackType,
			Comment:      sanitizedComment,
		}
		if err := tx.Create(&event).Error; err != nil {
			return fmt.Errorf("create feedback event: %w", err)
		}

		switch feedbackType {
		case db.FeedbackHelpful:
			accuracy := confirmedAccuracyScore
			prediction.Status = db.PredictionStatusConfirmed
			prediction.ResolvedAt = &now
			prediction.AccuracyScore = &accuracy
			if err := tx.Save(&prediction).Error; err != nil {
				return fmt.Errorf("confirm prediction: %w", err)
			}
		case db.FeedbackWrong:
			prediction.Status = db.PredictionStatusIncorrect
			prediction.ResolvedAt = &now
			if err := tx.Save(&prediction).Error; err != nil {
				return fmt.Errorf("mark prediction incorrect: %w", err)
			}
		}

		return s.metrics.recordFeedbackTx(tx, userID, prediction.Domain, feedbackType, now)
	})
}

// ListForUser 返回用户的反馈事件，按时间倒序。
func (s *FeedbackService) ListForUser(userID uint, limit int) ([]db.PredictionFeedback, error) {
	if limit <= 0 {
		limit = 20
	}
	var events []db.PredictionFeedback
	if err := s.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&events).Error; err != nil {
		return nil, fmt.Errorf("list feedback events: %w", err)
	}
	return events, nil
}

func isValidFeedbackType(feedbackType string) bool {
	for _, candidate := range db.FeedbackTypes {
		if feedbackType == candidate {
			return true
		}
	}
	return false
}
