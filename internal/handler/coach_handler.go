package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lifeloop/internal/service"
)

// GeneratePlan 触发一次教练计划生成，旧计划整体归档。
func (a *API) GeneratePlan(c *gin.Context) {
	result, err := a.coach.GeneratePlan(c.Request.Context(), currentUserID(c))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAIRateLimited):
			respondError(c, http.StatusTooManyRequests, "AI rate limit exceeded, try again later.")
		case errors.Is(err, service.ErrAIQuotaExhausted):
			respondError(c, http.StatusPaymentRequired, "AI credits exhausted.")
		case errors.Is(err, service.ErrAIAPIKeyMissing):
			respondError(c, http.StatusServiceUnavailable, "AI service not configured")
		default:
			respondError(c, http.StatusBadGateway, "AI service error")
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"plan": result.Plan, "tasks": result.Tasks})
}

// GetActivePlan 返回当前 active 计划，不存在时 plan 为 null。
func (a *API) GetActivePlan(c *gin.Context) {
	result, err := a.coach.ActivePlan(currentUserID(c))
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to load coaching plan")
		return
	}
	if result == nil {
		c.JSON(http.StatusOK, gin.H{"plan": nil, "tasks": []interface{}{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"plan": result.Plan, "tasks": result.Tasks})
}
