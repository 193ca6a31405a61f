package handler

import (
	"bytes"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lifeloop/internal/db"
	"github.com/lifeloop/internal/service"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var (
	markdownEngine = goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(html.WithHardWraps(), html.WithXHTML()),
	)
	explanationSanitizer = bluemonday.UGCPolicy()
)

type predictionView struct {
	ID                 uint     `json:"id"`
	Domain             string   `json:"domain"`
	PredictionText     string   `json:"prediction_text"`
	RiskScore          float64  `json:"risk_score"`
	ConfidenceScore    float64  `json:"confidence_score"`
	TrendDirection     string   `json:"trend_direction"`
	PatternExplanation string   `json:"pattern_explanation"`
	ExplanationHTML    string   `json:"explanation_html,omitempty"`
	Status             string   `json:"status"`
	CreatedAt          string   `json:"created_at"`
	ExpiresAt          string   `json:"expires_at"`
	ResolvedAt         string   `json:"resolved_at,omitempty"`
	AccuracyScore      *float64 `json:"accuracy_score,omitempty"`
}

// GeneratePredictions 触发一次预测生成。
// 模型限流/额度错误按原分类透传，便于客户端决定是否重试。
func (a *API) GeneratePredictions(c *gin.Context) {
	result, err := a.predictions.Generate(c.Request.Context(), currentUserID(c))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAIRateLimited):
			respondError(c, http.StatusTooManyRequests, "Rate limit exceeded, try again later.")
		case errors.Is(err, service.ErrAIQuotaExhausted):
			respondError(c, http.StatusPaymentRequired, "AI credits exhausted.")
		case errors.Is(err, service.ErrAIAPIKeyMissing):
			respondError(c, http.StatusServiceUnavailable, "AI service not configured")
		default:
			respondError(c, http.StatusBadGateway, "AI service error")
		}
		return
	}

	views := make([]predictionView, 0, len(result.Predictions))
	for _, prediction := range result.Predictions {
		views = append(views, toPredictionView(prediction, false))
	}

	payload := gin.H{"predictions": views}
	if result.Message != "" {
		payload["message"] = result.Message
	}
	c.JSON(http.StatusOK, payload)
}

// ListPredictions 返回用户的预测，支持 status 过滤；
// pattern_explanation 同时渲染为净化后的 HTML 方便前端展示。
func (a *API) ListPredictions(c *gin.Context) {
	predictions, err := a.predictions.List(currentUserID(c), c.Query("status"))
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to list predictions")
		return
	}

	views := make([]predictionView, 0, len(predictions))
	for _, prediction := range predictions {
		views = append(views, toPredictionView(prediction, true))
	}

	c.JSON(http.StatusOK, gin.H{"predictions": views})
}

type feedbackPayload struct {
	FeedbackType string `json:"feedback_type"`
	Comment      string `json:"comment"`
}

// SubmitFeedback 登记针对单条预测的反馈。
func (a *API) SubmitFeedback(c *gin.Context) {
	predictionID, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	var payload feedbackPayload
	if !bindJSON(c, &payload, "invalid feedback payload") {
		return
	}
	if strings.TrimSpace(payload.FeedbackType) == "" {
		respondError(c, http.StatusBadRequest, "feedback_type is required")
		return
	}

	err = a.feedback.Submit(predictionID, currentUserID(c), payload.FeedbackType, payload.Comment)
	switch {
	case errors.Is(err, service.ErrInvalidFeedbackType):
		respondError(c, http.StatusBadRequest, "invalid feedback_type")
	case errors.Is(err, service.ErrPredictionNotFound):
		respondError(c, http.StatusNotFound, "prediction not found")
	case errors.Is(err, service.ErrFeedbackForbidden):
		respondError(c, http.StatusForbidden, "forbidden")
	case err != nil:
		respondError(c, http.StatusInternalServerError, "failed to submit feedback")
	default:
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

// GetMetrics 返回指标行、按领域聚合、总体准确率与行为画像。
func (a *API) GetMetrics(c *gin.Context) {
	userID := currentUserID(c)

	report, err := a.metrics.Report(userID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to load metrics")
		return
	}

	profile, err := a.behavior.Profile(userID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to load behavior profile")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"metrics":          report.Metrics,
		"summary":          report.Summary,
		"overall_accuracy": report.OverallAccuracy,
		"profile":          profile,
	})
}

func toPredictionView(prediction db.Prediction, renderExplanation bool) predictionView {
	view := predictionView{
		ID:                 prediction.ID,
		Domain:             prediction.Domain,
		PredictionText:     prediction.PredictionText,
		RiskScore:          prediction.RiskScore,
		ConfidenceScore:    prediction.ConfidenceScore,
		TrendDirection:     prediction.TrendDirection,
		PatternExplanation: prediction.PatternExplanation,
		Status:             prediction.Status,
		CreatedAt:          prediction.CreatedAt.Format(time.RFC3339),
		ExpiresAt:          prediction.ExpiresAt.Format(time.RFC3339),
		AccuracyScore:      prediction.AccuracyScore,
	}
	if prediction.ResolvedAt != nil {
		view.ResolvedAt = prediction.ResolvedAt.Format(time.RFC3339)
	}
	if renderExplanation && strings.TrimSpace(prediction.PatternExplanation) != "" {
		if rendered, err := renderMarkdown(prediction.PatternExplanation); err == nil {
			view.ExplanationHTML = rendered
		}
	}
	return view
}

// renderMarkdown 将模型给出的解释渲染为净化后的 HTML。
func renderMarkdown(content string) (string, error) {
	var buf bytes.Buffer
	if err := markdownEngine.Convert([]byte(content), &buf); err != nil {
		return "", err
	}
	return explanationSanitizer.Sanitize(buf.String()), nil
}
