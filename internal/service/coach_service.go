package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/lifeloop/internal/db"
	"gorm.io/gorm"
)

const (
	defaultOpenAICoachModel   = "gpt-4o-mini"
	defaultDeepSeekCoachModel = "deepseek-chat"
	defaultCoachMaxTokens     = 1536
	defaultCoachTemperature   = 0.5

	coachScoreLimit = 7
	coachLogLimit   = 20
	coachPlanDays   = 10
)

const defaultCoachSystemPrompt = "You are a life coaching AI. Always respond with valid JSON only, no markdown."

// coachToolSchema 约束模型输出恰好 10 条结构化任务。
const coachToolSchema = `{
  "type": "object",
  "properties": {
    "tasks": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "day_number": {"type": "number"},
          "task": {"type": "string"},
          "category": {"type": "string", "enum": ["Productivity", "Digital", "Physical", "Financial", "Wellbeing"]}
        },
        "required": ["day_number", "task", "category"],
        "additionalProperties": false
      }
    }
  },
  "required": ["tasks"],
  "additionalProperties": false
}`

type coachTaskCandidate struct {
	DayNumber int    `json:"day_number"`
	Task      string `json:"task"`
	Category  string `json:"category"`
}

// fallbackCoachTasks 在模型输出完全无法解析时兜底使用。
var fallbackCoachTasks = []coachTaskCandidate{
	{DayNumber: 1, Task: "Set 3 daily focus goals", Category: "Productivity"},
	{DayNumber: 2, Task: "Limit social media to 45 min", Category: "Digital"},
	{DayNumber: 3, Task: "Walk 8000 steps", Category: "Physical"},
	{DayNumber: 4, Task: "Review weekly spending", Category: "Financial"},
	{DayNumber: 5, Task: "10-minute meditation session", Category: "Wellbeing"},
	{DayNumber: 6, Task: "Complete 2 deep work sessions", Category: "Productivity"},
	{DayNumber: 7, Task: "No phone first 30 min after waking", Category: "Digital"},
	{DayNumber: 8, Task: "Prepare weekly meal plan", Category: "Wellbeing"},
	{DayNumber: 9, Task: "Set monthly savings target", Category: "Financial"},
	{DayNumber: 10, Task: "Take a 30-min walk outdoors", Category: "Physical"},
}

var jsonFencePattern = regexp.MustCompile("```json\\n?|\\n?```")

// CoachService 生成个性化的 10 天改进计划。
// 生成时归档旧计划并写入提醒，与预测生成共用模型调用设施。
type CoachService struct {
	db     *gorm.DB
	client *aiChatClient
}

// NewCoachService 构造 CoachService。
func NewCoachService(gdb *gorm.DB, settings *SystemSettingService) *CoachService {
	return &CoachService{
		db:     gdb,
		client: newAIChatClient(settings, defaultOpenAICoachModel, defaultDeepSeekCoachModel),
	}
}

// SetHTTPClient 覆盖默认 HTTP 客户端，主要用于测试。
func (s *CoachService) SetHTTPClient(client httpDoer) {
	s.client.SetHTTPClient(client)
}

// SetOpenAIBaseURL 覆盖默认的 OpenAI API 地址。
func (s *CoachService) SetOpenAIBaseURL(base string) {
	s.client.SetOpenAIBaseURL(base)
}

// PlanResult 是一次计划生成的返回值。
type PlanResult struct {
	Plan  db.CoachingPlan `json:"plan"`
	Tasks []db.DailyTask  `json:"tasks"`
}

// GeneratePlan 为用户生成新的改进计划并归档旧计划。
func (s *CoachService) GeneratePlan(ctx context.Context, userID uint) (*PlanResult, error) {
	var (
		scores []db.LifeScore
		goals  []db.Goal
		logs   []db.ActivityLog
	)

	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("date DESC").
		Limit(coachScoreLimit).
		Find(&scores).Error; err != nil {
		return nil, fmt.Errorf("load life scores: %w", err)
	}
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, db.GoalStatusActive).
		Find(&goals).Error; err != nil {
		return nil, fmt.Errorf("load goals: %w", err)
	}
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("logged_at DESC").
		Limit(coachLogLimit).
		Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("load activity logs: %w", err)
	}

	userPrompt, err := buildCoachPrompt(scores, goals, logs)
	if err != nil {
		return nil, fmt.Errorf("build coach prompt: %w", err)
	}
	logAIExchange("COACH", "prompt", userPrompt)

	settings, err := s.client.settings.GetSettings()
	if err != nil {
		return nil, fmt.Errorf("读取系统设置失败: %w", err)
	}

	systemPrompt := strings.TrimSpace(settings.CoachPrompt)
	if systemPrompt == "" {
		systemPrompt = defaultCoachSystemPrompt
	}

	tool := &chatTool{
		Type: "function",
		Function: chatToolFunction{
			Name:        "create_improvement_plan",
			Description: "Create a personalized improvement plan",
			Parameters:  json.RawMessage(coachToolSchema),
		},
	}

	resp, err := s.client.callWithSettings(ctx, settings, aiChatRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		MaxTokens:    defaultCoachMaxTokens,
		Temperature:  defaultCoachTemperature,
		Tool:         tool,
	})
	if err != nil {
		return nil, err
	}
	logAIExchange("COACH", "response", resp.ToolArguments)

	tasks := parseCoachTasks(resp)

	result := &PlanResult{}
	if err := s.db.Transaction(func(tx *gorm.DB) error {
		// 旧计划整体归档，保证同一用户最多一个 active 计划。
		if err := tx.Model(&db.CoachingPlan{}).
			Where("user_id = ? AND status = ?", userID, db.PlanStatusActive).
			Update("status", db.PlanStatusArchived).Error; err != nil {
			return fmt.Errorf("archive active plans: %w", err)
		}

		plan := db.CoachingPlan{
			UserID:      userID,
			Title:       "AI-Generated Improvement Plan",
			Description: "Personalized plan based on your activity data",
			Status:      db.PlanStatusActive,
		}
		if err := tx.Create(&plan).Error; err != nil {
			return fmt.Errorf("create coaching plan: %w", err)
		}

		rows := make([]db.DailyTask, 0, len(tasks))
		for _, task := range tasks {
			rows = append(rows, db.DailyTask{
				UserID:    userID,
				PlanID:    plan.ID,
				DayNumber: task.DayNumber,
				Task:      strings.TrimSpace(task.Task),
				Category:  strings.TrimSpace(task.Category),
			})
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("create daily tasks: %w", err)
		}

		nudge := db.Nudge{
			UserID:    userID,
			Message:   "Your new AI coaching plan is ready! Check it out.",
			NudgeType: db.NudgeTypeSuccess,
		}
		if err := tx.Create(&nudge).Error; err != nil {
			return fmt.Errorf("create nudge: %w", err)
		}

		result.Plan = plan
		result.Tasks = rows
		return nil
	}); err != nil {
		return nil, err
	}

	return result, nil
}

// ActivePlan 返回用户当前的 active 计划及其任务，不存在时返回 nil。
func (s *CoachService) ActivePlan(userID uint) (*PlanResult, error) {
	var plan db.CoachingPlan
	err := s.db.Where("user_id = ? AND status = ?", userID, db.PlanStatusActive).
		Order("created_at DESC").
		First(&plan).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load coaching plan: %w", err)
	}

	var tasks []db.DailyTask
	if err := s.db.Where("plan_id = ?", plan.ID).
		Order("day_number ASC").
		Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("load daily tasks: %w", err)
	}

	return &PlanResult{Plan: plan, Tasks: tasks}, nil
}

func buildCoachPrompt(scores []db.LifeScore, goals []db.Goal, logs []db.ActivityLog) (string, error) {
	hasData := len(scores) > 0 || len(logs) > 0
	if !hasData {
		return `You are a life improvement AI coach. The user is just getting started and has no data yet. Create a balanced 10-day onboarding plan to help them build healthy habits.

Return exactly 10 tasks. Each task should have:
- day_number (1-10)
- task (actionable description, max 60 chars)
- category (one of: Productivity, Digital, Physical, Financial, Wellbeing)

Include 2 tasks per category. Be specific and actionable for beginners.`, nil
	}

	scoreSubset := scores
	if len(scoreSubset) > 3 {
		scoreSubset = scoreSubset[:3]
	}
	logSubset := logs
	if len(logSubset) > 10 {
		logSubset = logSubset[:10]
	}

	scoresJSON, err := json.Marshal(scoreSubset)
	if err != nil {
		return "", err
	}
	goalsJSON, err := json.Marshal(goals)
	if err != nil {
		return "", err
	}
	logsJSON, err := json.Marshal(logSubset)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf(`You are a life improvement AI coach. Based on the user's real data, create a personalized 10-day improvement plan.

User's recent life scores: %s
Active goals: %s
Recent activity: %s

Return exactly 10 tasks. Each task should have:
- day_number (1-10)
- task (actionable description, max 60 chars)
- category (one of: Productivity, Digital, Physical, Financial, Wellbeing)

Focus on the weakest areas shown in the data. Be specific and actionable.`, scoresJSON, goalsJSON, logsJSON), nil
}

// parseCoachTasks 依次尝试 tool 参数、正文 JSON，最后回退到静态任务。
func parseCoachTasks(resp aiChatResponse) []coachTaskCandidate {
	if payload := strings.TrimSpace(resp.ToolArguments); payload != "" {
		var parsed struct {
			Tasks []coachTaskCandidate `json:"tasks"`
		}
		if err := json.Unmarshal([]byte(payload), &parsed); err == nil && len(parsed.Tasks) > 0 {
			return clampCoachTasks(parsed.Tasks)
		}
	}

	if content := strings.TrimSpace(resp.Content); content != "" {
		stripped := jsonFencePattern.ReplaceAllString(content, "")
		var tasks []coachTaskCandidate
		if err := json.Unmarshal([]byte(stripped), &tasks); err == nil && len(tasks) > 0 {
			return clampCoachTasks(tasks)
		}
	}

	return fallbackCoachTasks
}

// clampCoachTasks 丢弃日序号越界的任务，超过 10 条时截断。
func clampCoachTasks(tasks []coachTaskCandidate) []coachTaskCandidate {
	valid := make([]coachTaskCandidate, 0, coachPlanDays)
	for _, task := range tasks {
		if task.DayNumber < 1 || task.DayNumber > coachPlanDays {
			continue
		}
		if strings.TrimSpace(task.Task) == "" {
			continue
		}
		valid = append(valid, task)
		if len(valid) == coachPlanDays {
			break
		}
	}
	if len(valid) == 0 {
		return fallbackCoachTasks
	}
	return valid
}
