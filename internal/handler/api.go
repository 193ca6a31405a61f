package handler

import (
	"github.com/lifeloop/internal/service"
	"gorm.io/gorm"
)

// API bundles shared dependencies for HTTP handlers.
type API struct {
	db          *gorm.DB
	system      *service.SystemSettingService
	predictions *service.PredictionService
	feedback    *service.FeedbackService
	metrics     *service.MetricsService
	behavior    *service.BehaviorService
	activities  *service.ActivityService
	coach       *service.CoachService
}

// NewAPI constructs a handler set with shared services.
func NewAPI(db *gorm.DB) *API {
	systemService := service.NewSystemSettingService(db)
	metricsService := service.NewMetricsService(db)
	behaviorService := service.NewBehaviorService(db)

	return &API{
		db:          db,
		system:      systemService,
		predictions: service.NewPredictionService(db, systemService, metricsService, behaviorService),
		feedback:    service.NewFeedbackService(db, metricsService),
		metrics:     metricsService,
		behavior:    behaviorService,
		activities:  service.NewActivityService(db),
		coach:       service.NewCoachService(db, systemService),
	}
}

// DB exposes the underlying gorm instance for legacy paths.
func (a *API) DB() *gorm.DB {
	return a.db
}

// Predictions exposes the prediction service, mainly for tests.
func (a *API) Predictions() *service.PredictionService {
	return a.predictions
}

// Coach exposes the coach service, mainly for tests.
func (a *API) Coach() *service.CoachService {
	return a.coach
}

// System exposes the settings service, mainly for tests.
func (a *API) System() *service.SystemSettingService {
	return a.system
}
