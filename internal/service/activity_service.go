package service

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/lifeloop/internal/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrInvalidActivityLog 在日志输入非法时返回。
	ErrInvalidActivityLog = errors.New("invalid activity log")
	// ErrGoalNotFound 在指定目标不存在时返回。
	ErrGoalNotFound = errors.New("goal not found")
	// ErrNudgeNotFound 在指定提醒不存在时返回。
	ErrNudgeNotFound = errors.New("nudge not found")
)

// ActivityService 负责活动日志、每日评分与目标的持久化。
// 日志只追加，评分按 user_id+date 幂等 upsert。
type ActivityService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewActivityService 构造 ActivityService。
func NewActivityService(gdb *gorm.DB) *ActivityService {
	return &ActivityService{db: gdb, now: time.Now}
}

// ActivityLogInput 定义写入活动日志的字段。
type ActivityLogInput struct {
	UserID   uint
	LogType  string
	Value    float64
	Category string
	LoggedAt time.Time
}

// LogActivity 追加一条活动日志。
func (s *ActivityService) LogActivity(input ActivityLogInput) (*db.ActivityLog, error) {
	logType := strings.TrimSpace(strings.ToLower(input.LogType))
	if logType == "" {
		return nil, fmt.Errorf("%w: log type is required", ErrInvalidActivityLog)
	}
	if math.IsNaN(input.Value) || math.IsInf(input.Value, 0) || input.Value < 0 {
		return nil, fmt.Errorf("%w: value must be a non-negative number", ErrInvalidActivityLog)
	}

	loggedAt := input.LoggedAt
	if loggedAt.IsZero() {
		loggedAt = s.now()
	}

	entry := db.ActivityLog{
		UserID:   input.UserID,
		LogType:  logType,
		Value:    input.Value,
		Category: strings.TrimSpace(input.Category),
		LoggedAt: loggedAt,
	}

	if err := s.db.Create(&entry).Error; err != nil {
		return nil, fmt.Errorf("create activity log: %w", err)
	}
	return &entry, nil
}

// LifeScoreInput 定义每日评分的输入字段，各维度会被钳制到 0-100。
type LifeScoreInput struct {
	UserID       uint
	Date         time.Time
	Overall      int
	Productivity int
	Wellbeing    int
	Financial    int
	Physical     int
	Digital      int
}

// UpsertLifeScore 处理幂等评分逻辑：同一天重复提交覆盖旧值。
func (s *ActivityService) UpsertLifeScore(input LifeScoreInput) (*db.LifeScore, error) {
	date := input.Date
	if date.IsZero() {
		date = s.now()
	}
	date = normalizeToDate(date)

	record := db.LifeScore{
		UserID:       input.UserID,
		Date:         date,
		Overall:      clampSubScore(input.Overall),
		Productivity: clampSubScore(input.Productivity),
		Wellbeing:    clampSubScore(input.Wellbeing),
		Financial:    clampSubScore(input.Financial),
		Physical:     clampSubScore(input.Physical),
		Digital:      clampSubScore(input.Digital),
	}

	if err := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"overall", "productivity", "wellbeing", "financial", "physical", "digital", "updated_at",
		}),
	}).Create(&record).Error; err != nil {
		return nil, fmt.Errorf("upsert life score: %w", err)
	}

	if err := s.db.Where("user_id = ? AND date = ?", input.UserID, date).First(&record).Error; err != nil {
		return nil, fmt.Errorf("reload life score: %w", err)
	}

	return &record, nil
}

// GoalInput 定义创建/更新目标时可配置字段。
type GoalInput struct {
	Title        string
	Category     string
	Progress     int
	CurrentValue float64
	TargetValue  float64
	Status       string
}

// ListGoals 返回用户目标集合，支持按状态筛选。
func (s *ActivityService) ListGoals(userID uint, status string) ([]db.Goal, error) {
	query := s.db.Where("user_id = ?", userID)
	if trimmed := strings.TrimSpace(status); trimmed != "" {
		query = query.Where("status = ?", trimmed)
	}

	var goals []db.Goal
	if err := query.Order("created_at DESC").Find(&goals).Error; err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	return goals, nil
}

// CreateGoal 新建目标。
func (s *ActivityService) CreateGoal(userID uint, input GoalInput) (*db.Goal, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, fmt.Errorf("goal title is required")
	}

	goal := db.Goal{
		UserID:       userID,
		Title:        title,
		Category:     strings.TrimSpace(input.Category),
		Progress:     clampSubScore(input.Progress),
		CurrentValue: input.CurrentValue,
		TargetValue:  input.TargetValue,
		Status:       normalizeGoalStatus(input.Status),
	}

	if err := s.db.Create(&goal).Error; err != nil {
		return nil, fmt.Errorf("create goal: %w", err)
	}
	return &goal, nil
}

// UpdateGoal 更新目标，目标必须属于当前用户。
func (s *ActivityService) UpdateGoal(id, userID uint, input GoalInput) (*db.Goal, error) {
	var existing db.Goal
	if err := s.db.Where("id = ? AND user_id = ?", id, userID).First(&existing).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrGoalNotFound
		}
		return nil, fmt.Errorf("find goal: %w", err)
	}

	if title := strings.TrimSpace(input.Title); title != "" {
		existing.Title = title
	}
	existing.Category = strings.TrimSpace(input.Category)
	existing.Progress = clampSubScore(input.Progress)
	existing.CurrentValue = input.CurrentValue
	existing.TargetValue = input.TargetValue
	existing.Status = normalizeGoalStatus(input.Status)

	if err := s.db.Save(&existing).Error; err != nil {
		return nil, fmt.Errorf("update goal: %w", err)
	}
	return &existing, nil
}

// UnreadNudges 返回用户未读提醒，按时间倒序。
func (s *ActivityService) UnreadNudges(userID uint) ([]db.Nudge, error) {
	var nudges []db.Nudge
	if err := s.db.Where("user_id = ? AND read = ?", userID, false).
		Order("created_at DESC").
		Find(&nudges).Error; err != nil {
		return nil, fmt.Errorf("list nudges: %w", err)
	}
	return nudges, nil
}

// MarkNudgeRead 将提醒标记为已读，提醒必须属于当前用户。
func (s *ActivityService) MarkNudgeRead(id, userID uint) error {
	result := s.db.Model(&db.Nudge{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("read", true)
	if result.Error != nil {
		return fmt.Errorf("mark nudge read: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNudgeNotFound
	}
	return nil
}

func normalizeToDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func clampSubScore(value int) int {
	if value < 0 {
		return 0
	}
	if value > 100 {
		return 100
	}
	return value
}

func normalizeGoalStatus(status string) string {
	status = strings.TrimSpace(strings.ToLower(status))
	if status != db.GoalStatusArchived {
		return db.GoalStatusActive
	}
	return db.GoalStatusArchived
}
