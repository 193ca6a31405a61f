package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/lifeloop/internal/service"
)

type settingsPayload struct {
	AIProvider     string `json:"ai_provider"`
	OpenAIAPIKey   string `json:"openai_api_key"`
	DeepSeekAPIKey string `json:"deepseek_api_key"`
	PredictPrompt  string `json:"predict_prompt"`
	CoachPrompt    string `json:"coach_prompt"`
}

// GetSettings 返回系统设置，API Key 做掩码处理。
func (a *API) GetSettings(c *gin.Context) {
	settings, err := a.system.GetSettings()
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to load settings")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ai_provider":      settings.AIProvider,
		"openai_api_key":   maskAPIKey(settings.OpenAIAPIKey),
		"deepseek_api_key": maskAPIKey(settings.DeepSeekAPIKey),
		"predict_prompt":   settings.PredictPrompt,
		"coach_prompt":     settings.CoachPrompt,
	})
}

// UpdateSettings 保存系统设置。
func (a *API) UpdateSettings(c *gin.Context) {
	var payload settingsPayload
	if !bindJSON(c, &payload, "invalid settings payload") {
		return
	}

	settings, err := a.system.UpdateSettings(service.SystemSettingsInput{
		AIProvider:     payload.AIProvider,
		OpenAIAPIKey:   payload.OpenAIAPIKey,
		DeepSeekAPIKey: payload.DeepSeekAPIKey,
		PredictPrompt:  payload.PredictPrompt,
		CoachPrompt:    payload.CoachPrompt,
	})
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to update settings")
		return
	}

	c.JSON(http.StatusOK, gin.H{"ai_provider": settings.AIProvider, "success": true})
}

type testAIPayload struct {
	Provider string `json:"provider"`
	APIKey   string `json:"api_key"`
}

// TestAIConnection 验证指定平台的 API Key 是否可用。
func (a *API) TestAIConnection(c *gin.Context) {
	var payload testAIPayload
	if !bindJSON(c, &payload, "invalid payload") {
		return
	}

	err := a.system.TestAIConnection(c.Request.Context(), payload.Provider, payload.APIKey)
	if err != nil {
		if errors.Is(err, service.ErrAIAPIKeyMissing) {
			respondError(c, http.StatusBadRequest, "api key is required")
			return
		}
		respondError(c, http.StatusBadGateway, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func maskAPIKey(key string) string {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return ""
	}
	if len(trimmed) <= 8 {
		return "********"
	}
	return trimmed[:4] + "****" + trimmed[len(trimmed)-4:]
}
