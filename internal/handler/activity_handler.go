package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lifeloop/internal/service"
)

const dateFormat = "2006-01-02"

type activityLogPayload struct {
	LogType  string  `json:"log_type"`
	Value    float64 `json:"value"`
	Category string  `json:"category"`
	LoggedAt string  `json:"logged_at"`
}

// CreateActivityLog 追加一条活动日志。
func (a *API) CreateActivityLog(c *gin.Context) {
	var payload activityLogPayload
	if !bindJSON(c, &payload, "invalid activity log payload") {
		return
	}

	input := service.ActivityLogInput{
		UserID:   currentUserID(c),
		LogType:  payload.LogType,
		Value:    payload.Value,
		Category: payload.Category,
	}
	if payload.LoggedAt != "" {
		loggedAt, err := time.Parse(time.RFC3339, payload.LoggedAt)
		if err != nil {
			respondError(c, http.StatusBadRequest, "logged_at must be RFC3339")
			return
		}
		input.LoggedAt = loggedAt
	}

	entry, err := a.activities.LogActivity(input)
	if err != nil {
		if errors.Is(err, service.ErrInvalidActivityLog) {
			respondError(c, http.StatusBadRequest, err.Error())
			return
		}
		respondError(c, http.StatusInternalServerError, "failed to create activity log")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"log": entry})
}

type lifeScorePayload struct {
	Date         string `json:"date"`
	Overall      int    `json:"overall"`
	Productivity int    `json:"productivity"`
	Wellbeing    int    `json:"wellbeing"`
	Financial    int    `json:"financial"`
	Physical     int    `json:"physical"`
	Digital      int    `json:"digital"`
}

// UpsertLifeScore 提交当日评分，同一天重复提交覆盖旧值。
func (a *API) UpsertLifeScore(c *gin.Context) {
	var payload lifeScorePayload
	if !bindJSON(c, &payload, "invalid life score payload") {
		return
	}

	input := service.LifeScoreInput{
		UserID:       currentUserID(c),
		Overall:      payload.Overall,
		Productivity: payload.Productivity,
		Wellbeing:    payload.Wellbeing,
		Financial:    payload.Financial,
		Physical:     payload.Physical,
		Digital:      payload.Digital,
	}
	if payload.Date != "" {
		date, err := time.Parse(dateFormat, payload.Date)
		if err != nil {
			respondError(c, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		input.Date = date
	}

	score, err := a.activities.UpsertLifeScore(input)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to save life score")
		return
	}

	c.JSON(http.StatusOK, gin.H{"score": score})
}

type goalPayload struct {
	Title        string  `json:"title"`
	Category     string  `json:"category"`
	Progress     int     `json:"progress"`
	CurrentValue float64 `json:"current_value"`
	TargetValue  float64 `json:"target_value"`
	Status       string  `json:"status"`
}

// ListGoals 返回用户目标，支持 status 过滤。
func (a *API) ListGoals(c *gin.Context) {
	goals, err := a.activities.ListGoals(currentUserID(c), c.Query("status"))
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to list goals")
		return
	}
	c.JSON(http.StatusOK, gin.H{"goals": goals})
}

// CreateGoal 新建目标。
func (a *API) CreateGoal(c *gin.Context) {
	var payload goalPayload
	if !bindJSON(c, &payload, "invalid goal payload") {
		return
	}

	goal, err := a.activities.CreateGoal(currentUserID(c), service.GoalInput{
		Title:        payload.Title,
		Category:     payload.Category,
		Progress:     payload.Progress,
		CurrentValue: payload.CurrentValue,
		TargetValue:  payload.TargetValue,
		Status:       payload.Status,
	})
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	c.JSON(http.StatusCreated, gin.H{"goal": goal})
}

// UpdateGoal 更新目标，目标必须属于当前用户。
func (a *API) UpdateGoal(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	var payload goalPayload
	if !bindJSON(c, &payload, "invalid goal payload") {
		return
	}

	goal, err := a.activities.UpdateGoal(id, currentUserID(c), service.GoalInput{
		Title:        payload.Title,
		Category:     payload.Category,
		Progress:     payload.Progress,
		CurrentValue: payload.CurrentValue,
		TargetValue:  payload.TargetValue,
		Status:       payload.Status,
	})
	if err != nil {
		if errors.Is(err, service.ErrGoalNotFound) {
			respondError(c, http.StatusNotFound, "goal not found")
			return
		}
		respondError(c, http.StatusInternalServerError, "failed to update goal")
		return
	}

	c.JSON(http.StatusOK, gin.H{"goal": goal})
}

// ListNudges 返回未读提醒。
func (a *API) ListNudges(c *gin.Context) {
	nudges, err := a.activities.UnreadNudges(currentUserID(c))
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to list nudges")
		return
	}
	c.JSON(http.StatusOK, gin.H{"nudges": nudges})
}

// MarkNudgeRead 将提醒标记为已读。
func (a *API) MarkNudgeRead(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := a.activities.MarkNudgeRead(id, currentUserID(c)); err != nil {
		if errors.Is(err, service.ErrNudgeNotFound) {
			respondError(c, http.StatusNotFound, "nudge not found")
			return
		}
		respondError(c, http.StatusInternalServerError, "failed to mark nudge read")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}
