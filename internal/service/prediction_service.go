package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/lifeloop/internal/db"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const (
	defaultOpenAIPredictModel   = "gpt-4o-mini"
	defaultDeepSeekPredictModel = "deepseek-chat"
	defaultPredictMaxTokens     = 2048
	defaultPredictTemperature   = 0.4

	contextScoreLimit    = 30
	contextLogLimit      = 100
	contextFeedbackLimit = 20
	promptScoreLimit     = 10
	promptLogLimit       = 30

	predictionTTL          = 7 * 24 * time.Hour
	maxPredictionTextRunes = 120
)

// noDataMessage 在用户没有任何历史数据时返回，此时不调用模型。
const noDataMessage = "Log some data first to get predictions."

const defaultPredictSystemPrompt = "You are a behavioral prediction AI. Return structured predictions based on real data patterns."

// predictionToolSchema 约束模型通过 function call 输出 3-5 条结构化预测。
const predictionToolSchema = `{
  "type": "object",
  "properties": {
    "predictions": {
      "type": "array",
      "minItems": 3,
      "maxItems": 5,
      "items": {
        "type": "object",
        "properties": {
          "domain": {"type": "string", "enum": ["spending", "screen_time", "sleep", "exercise", "study", "tasks"]},
          "prediction_text": {"type": "string", "description": "Human-readable prediction, max 120 chars"},
          "risk_score": {"type": "number", "description": "0-100 risk level"},
          "confidence_score": {"type": "number", "description": "0-100 confidence"},
          "trend_direction": {"type": "string", "enum": ["rising", "falling", "stable"]},
          "pattern_explanation": {"type": "string", "description": "Why this prediction was made, referencing actual data patterns"}
        },
        "required": ["domain", "prediction_text", "risk_score", "confidence_score", "trend_direction", "pattern_explanation"],
        "additionalProperties": false
      }
    }
  },
  "required": ["predictions"],
  "additionalProperties": false
}`

// predictionCandidate 是模型返回的单条候选预测，所有字段按不可信输入处理。
type predictionCandidate struct {
	Domain             string  `json:"domain"`
	PredictionText     string  `json:"prediction_text"`
	RiskScore          float64 `json:"risk_score"`
	ConfidenceScore    float64 `json:"confidence_score"`
	TrendDirection     string  `json:"trend_direction"`
	PatternExplanation string  `json:"pattern_explanation"`
}

// fallbackCandidate 在模型输出无法解析时兜底持久化。
var fallbackCandidate = predictionCandidate{
	Domain:             db.DomainGeneral,
	PredictionText:     "Keep logging data to receive more accurate predictions.",
	RiskScore:          30,
	ConfidenceScore:    50,
	TrendDirection:     db.TrendStable,
	PatternExplanation: "Not enough data patterns detected yet.",
}

// GenerateResult 是一次生成调用的返回值。
// 无数据时 Predictions 为空且 Message 说明原因。
type GenerateResult struct {
	Predictions []db.Prediction `json:"predictions"`
	Message     string          `json:"message,omitempty"`
}

// PredictionService 驱动预测生命周期：拉取上下文、调用模型、
// 校验候选、原子地过期旧批次并落库新批次。
type PredictionService struct {
	db       *gorm.DB
	client   *aiChatClient
	metrics  *MetricsService
	behavior *BehaviorService
	now      func() time.Time
}

// NewPredictionService 构造 PredictionService。
func NewPredictionService(gdb *gorm.DB, settings *SystemSettingService, metrics *MetricsService, behavior *BehaviorService) *PredictionService {
	return &PredictionService{
		db:       gdb,
		client:   newAIChatClient(settings, defaultOpenAIPredictModel, defaultDeepSeekPredictModel),
		metrics:  metrics,
		behavior: behavior,
		now:      time.Now,
	}
}

// WithClock 覆盖时间源，便于测试固定 expires_at 与指标周期。
func (s *PredictionService) WithClock(now func() time.Time) *PredictionService {
	if now != nil {
		s.now = now
	}
	return s
}

// SetHTTPClient 覆盖默认 HTTP 客户端，主要用于测试。
func (s *PredictionService) SetHTTPClient(client httpDoer) {
	s.client.SetHTTPClient(client)
}

// SetOpenAIBaseURL 覆盖默认的 OpenAI API 地址。
func (s *PredictionService) SetOpenAIBaseURL(base string) {
	s.client.SetOpenAIBaseURL(base)
}

// SetDeepSeekBaseURL 覆盖默认的 DeepSeek API 地址。
func (s *PredictionService) SetDeepSeekBaseURL(base string) {
	s.client.SetDeepSeekBaseURL(base)
}

// predictionContext 汇总生成所需的全部只读上下文。
type predictionContext struct {
	Scores          []db.LifeScore
	Logs            []db.ActivityLog
	Goals           []db.Goal
	PendingIDs      []uint
	FeedbackSummary map[string]int
}

// Generate 为用户生成一批新预测。
// 模型不可用或被限流时原样返回分类错误且不修改任何状态；
// 输出无法解析时降级为单条保守预测而不是失败。
func (s *PredictionService) Generate(ctx context.Context, userID uint) (*GenerateResult, error) {
	pctx, err := s.loadContext(ctx, userID)
	if err != nil {
		return nil, err
	}

	if len(pctx.Scores) == 0 && len(pctx.Logs) == 0 {
		return &GenerateResult{Predictions: []db.Prediction{}, Message: noDataMessage}, nil
	}

	userPrompt, err := buildPredictPrompt(pctx)
	if err != nil {
		return nil, fmt.Errorf("build prediction prompt: %w", err)
	}
	logAIExchange("PREDICT", "prompt", userPrompt)

	settings, err := s.client.settings.GetSettings()
	if err != nil {
		return nil, fmt.Errorf("读取系统设置失败: %w", err)
	}

	systemPrompt := strings.TrimSpace(settings.PredictPrompt)
	if systemPrompt == "" {
		systemPrompt = defaultPredictSystemPrompt
	}

	tool := &chatTool{
		Type: "function",
		Function: chatToolFunction{
			Name:        "create_predictions",
			Description: "Generate behavioral predictions with risk scores",
			Parameters:  json.RawMessage(predictionToolSchema),
		},
	}

	resp, err := s.client.callWithSettings(ctx, settings, aiChatRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		MaxTokens:    defaultPredictMaxTokens,
		Temperature:  defaultPredictTemperature,
		Tool:         tool,
	})
	if err != nil {
		return nil, err
	}
	logAIExchange("PREDICT", "response", resp.ToolArguments)

	candidates := parseCandidates(resp)
	now := s.now()
	rows := make([]db.Prediction, 0, len(candidates))
	for _, candidate := range candidates {
		rows = append(rows, s.validateCandidate(userID, candidate, now))
	}

	if err := s.db.Transaction(func(tx *gorm.DB) error {
		// 同一用户最多保留一个 pending 批次：先整体过期再插入。
		if err := tx.Model(&db.Prediction{}).
			Where("user_id = ? AND status = ?", userID, db.PredictionStatusPending).
			Update("status", db.PredictionStatusExpired).Error; err != nil {
			return fmt.Errorf("expire pending predictions: %w", err)
		}

		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("insert prediction batch: %w", err)
		}

		for _, row := range rows {
			if err := s.metrics.bumpGeneratedTx(tx, userID, row.Domain, row.ConfidenceScore, now); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return nil, err
	}

	// 行为画像是副作用：失败只记录，不影响生成结果。
	if err := s.behavior.UpdateProfile(userID, pctx.Scores, pctx.Logs); err != nil {
		log.Printf("behavior profile update failed for user %d: %v", userID, err)
	}

	return &GenerateResult{Predictions: rows}, nil
}

// List 返回用户的预测，可按状态过滤。
func (s *PredictionService) List(userID uint, status string) ([]db.Prediction, error) {
	query := s.db.Where("user_id = ?", userID)
	if trimmed := strings.TrimSpace(status); trimmed != "" {
		query = query.Where("status = ?", trimmed)
	}

	var predictions []db.Prediction
	if err := query.Order("created_at DESC").Find(&predictions).Error; err != nil {
		return nil, fmt.Errorf("list predictions: %w", err)
	}
	return predictions, nil
}

func (s *PredictionService) loadContext(ctx context.Context, userID uint) (*predictionContext, error) {
	pctx := &predictionContext{}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return s.db.WithContext(groupCtx).
			Where("user_id = ?", userID).
			Order("date DESC").
			Limit(contextScoreLimit).
			Find(&pctx.Scores).Error
	})
	group.Go(func() error {
		return s.db.WithContext(groupCtx).
			Where("user_id = ?", userID).
			Order("logged_at DESC").
			Limit(contextLogLimit).
			Find(&pctx.Logs).Error
	})
	group.Go(func() error {
		return s.db.WithContext(groupCtx).
			Where("user_id = ? AND status = ?", userID, db.GoalStatusActive).
			Find(&pctx.Goals).Error
	})
	group.Go(func() error {
		return s.db.WithContext(groupCtx).
			Model(&db.Prediction{}).
			Where("user_id = ? AND status = ?", userID, db.PredictionStatusPending).
			Pluck("id", &pctx.PendingIDs).Error
	})

	if err := group.Wait(); err != nil {
		return nil, fmt.Errorf("load prediction context: %w", err)
	}

	var types []string
	if err := s.db.WithContext(ctx).
		Model(&db.PredictionFeedback{}).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(contextFeedbackLimit).
		Pluck("feedback_type", &types).Error; err != nil {
		return nil, fmt.Errorf("load feedback history: %w", err)
	}

	pctx.FeedbackSummary = map[string]int{}
	for _, feedbackType := range types {
		pctx.FeedbackSummary[feedbackType]++
	}

	return pctx, nil
}

type scoreContext struct {
	Date         string `json:"date"`
	Overall      int    `json:"overall"`
	Productivity int    `json:"productivity"`
	Wellbeing    int    `json:"wellbeing"`
	Financial    int    `json:"financial"`
	Physical     int    `json:"physical"`
	Digital      int    `json:"digital"`
}

type logContext struct {
	LogType  string  `json:"log_type"`
	Value    float64 `json:"value"`
	Category string  `json:"category,omitempty"`
	LoggedAt string  `json:"logged_at"`
}

type goalContext struct {
	Title        string  `json:"title"`
	Category     string  `json:"category,omitempty"`
	Progress     int     `json:"progress"`
	CurrentValue float64 `json:"current_value"`
	TargetValue  float64 `json:"target_value"`
}

func buildPredictPrompt(pctx *predictionContext) (string, error) {
	scores := make([]scoreContext, 0, promptScoreLimit)
	for i, score := range pctx.Scores {
		if i >= promptScoreLimit {
			break
		}
		scores = append(scores, scoreContext{
			Date:         score.Date.Format("2006-01-02"),
			Overall:      score.Overall,
			Productivity: score.Productivity,
			Wellbeing:    score.Wellbeing,
			Financial:    score.Financial,
			Physical:     score.Physical,
			Digital:      score.Digital,
		})
	}

	logs := make([]logContext, 0, promptLogLimit)
	for i, entry := range pctx.Logs {
		if i >= promptLogLimit {
			break
		}
		logs = append(logs, logContext{
			LogType:  entry.LogType,
			Value:    entry.Value,
			Category: entry.Category,
			LoggedAt: entry.LoggedAt.Format(time.RFC3339),
		})
	}

	goals := make([]goalContext, 0, len(pctx.Goals))
	for _, goal := range pctx.Goals {
		goals = append(goals, goalContext{
			Title:        goal.Title,
			Category:     goal.Category,
			Progress:     goal.Progress,
			CurrentValue: goal.CurrentValue,
			TargetValue:  goal.TargetValue,
		})
	}

	scoresJSON, err := json.Marshal(scores)
	if err != nil {
		return "", err
	}
	logsJSON, err := json.Marshal(logs)
	if err != nil {
		return "", err
	}
	goalsJSON, err := json.Marshal(goals)
	if err != nil {
		return "", err
	}
	feedbackJSON, err := json.Marshal(pctx.FeedbackSummary)
	if err != nil {
		return "", err
	}

	var builder strings.Builder
	builder.WriteString("You are a predictive behavioral AI for a Universal Life Assistant. Analyze the user's real data and generate predictions about potential future mistakes or risks.\n\n")
	builder.WriteString("USER DATA:\n")
	builder.WriteString(fmt.Sprintf("Life Scores (last 30 days): %s\n", scoresJSON))
	builder.WriteString(fmt.Sprintf("Activity Logs (recent): %s\n", logsJSON))
	builder.WriteString(fmt.Sprintf("Active Goals: %s\n\n", goalsJSON))
	builder.WriteString(fmt.Sprintf("USER FEEDBACK HISTORY: %s\n", feedbackJSON))

	if wrong := pctx.FeedbackSummary[db.FeedbackWrong]; wrong > 0 {
		builder.WriteString(fmt.Sprintf("Note: User marked %d predictions as wrong — be more careful and precise.\n", wrong))
	}
	if tooFrequent := pctx.FeedbackSummary[db.FeedbackTooFrequent]; tooFrequent > 0 {
		builder.WriteString("Note: User finds predictions too frequent — only generate high-confidence ones.\n")
	}

	builder.WriteString("\nGenerate 3-5 predictions across domains: spending, screen_time, sleep, exercise, study, tasks.\n")
	builder.WriteString("For each prediction, analyze real patterns in the data. Be specific with numbers and timeframes.")

	return builder.String(), nil
}

// parseCandidates 解析模型输出；任何解析失败都降级为兜底候选。
func parseCandidates(resp aiChatResponse) []predictionCandidate {
	payload := strings.TrimSpace(resp.ToolArguments)
	if payload == "" {
		payload = strings.TrimSpace(resp.Content)
	}
	if payload == "" {
		return []predictionCandidate{fallbackCandidate}
	}

	var parsed struct {
		Predictions []predictionCandidate `json:"predictions"`
	}
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil || len(parsed.Predictions) == 0 {
		return []predictionCandidate{fallbackCandidate}
	}

	return parsed.Predictions
}

// validateCandidate 把不可信候选修复为合法的持久化行。
func (s *PredictionService) validateCandidate(userID uint, candidate predictionCandidate, now time.Time) db.Prediction {
	domain := strings.TrimSpace(strings.ToLower(candidate.Domain))
	if !isValidDomain(domain) {
		domain = db.DomainGeneral
	}

	trend := strings.TrimSpace(strings.ToLower(candidate.TrendDirection))
	if trend != db.TrendRising && trend != db.TrendFalling && trend != db.TrendStable {
		trend = db.TrendStable
	}

	text := truncateRunes(strings.TrimSpace(candidate.PredictionText), maxPredictionTextRunes)
	if text == "" {
		text = fallbackCandidate.PredictionText
	}

	return db.Prediction{
		UserID:             userID,
		Domain:             domain,
		PredictionText:     text,
		RiskScore:          clampScore(candidate.RiskScore),
		ConfidenceScore:    clampScore(candidate.ConfidenceScore),
		TrendDirection:     trend,
		PatternExplanation: strings.TrimSpace(candidate.PatternExplanation),
		Status:             db.PredictionStatusPending,
		ExpiresAt:          now.Add(predictionTTL),
	}
}

func clampScore(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 100 {
		return 100
	}
	return value
}

func isValidDomain(domain string) bool {
	for _, candidate := range db.PredictionDomains {
		if domain == candidate {
			return true
		}
	}
	return false
}
