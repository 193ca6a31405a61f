package router

import (
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/lifeloop/internal/db"
	"github.com/lifeloop/internal/handler"
)

// SetupRouter 配置 Gin 引擎和路由
func SetupRouter(sessionSecret string) *gin.Engine {
	r := gin.Default()

	// 配置会话中间件
	store := cookie.NewStore([]byte(sessionSecret))
	r.Use(sessions.Sessions("lifeloop_session", store))

	api := handler.NewAPI(db.DB)

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})

	root := r.Group("/api")
	{
		root.POST("/auth/login", api.Login)
		root.POST("/auth/logout", api.Logout)

		// 需要认证的接口
		auth := root.Group("")
		auth.Use(api.AuthRequired())
		{
			auth.POST("/predictions/generate", api.GeneratePredictions)
			auth.GET("/predictions", api.ListPredictions)
			auth.POST("/predictions/:id/feedback", api.SubmitFeedback)
			auth.GET("/metrics", api.GetMetrics)

			auth.POST("/coach/plan", api.GeneratePlan)
			auth.GET("/coach/plan", api.GetActivePlan)

			auth.POST("/logs", api.CreateActivityLog)
			auth.POST("/scores", api.UpsertLifeScore)

			auth.GET("/goals", api.ListGoals)
			auth.POST("/goals", api.CreateGoal)
			auth.PUT("/goals/:id", api.UpdateGoal)

			auth.GET("/nudges", api.ListNudges)
			auth.POST("/nudges/:id/read", api.MarkNudgeRead)

			auth.GET("/settings", api.GetSettings)
			auth.PUT("/settings", api.UpdateSettings)
			auth.POST("/settings/test-ai", api.TestAIConnection)
		}
	}

	return r
}
