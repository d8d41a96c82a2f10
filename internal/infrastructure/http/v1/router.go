// Package v1 provides HTTP API version 1.
package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"docseq/internal/infrastructure/http/v1/handlers"
	"docseq/internal/infrastructure/http/v1/middleware"
	"docseq/pkg/logger"
)

// RouterConfig holds router configuration.
type RouterConfig struct {
	// Logger for request logging
	Logger *logger.Logger

	// JWTValidator for token validation
	JWTValidator middleware.JWTValidator

	// Sequences serves the sequence API.
	Sequences handlers.SequenceService

	// History serves the audit trail; nil disables the route.
	History handlers.HistoryReader

	// Idempotency stores X-Idempotency-Key results; nil disables replay.
	Idempotency middleware.IdempotencyStore

	Health *handlers.HealthHandler

	// Metrics records HTTP metrics when set; MetricsHandler serves /metrics.
	Metrics        *middleware.MetricsBuilder
	MetricsHandler http.Handler

	// Debug switches gin to debug mode.
	Debug bool
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	if cfg.Metrics != nil {
		router.Use(cfg.Metrics.Build())
	}
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	if cfg.Health != nil {
		health := router.Group("/health")
		health.GET("/live", cfg.Health.Live)
		health.GET("/ready", cfg.Health.Ready)
		health.GET("/info", cfg.Health.Info)
	}
	if cfg.MetricsHandler != nil {
		router.GET("/metrics", gin.WrapH(cfg.MetricsHandler))
	}

	api := router.Group("/api/v1")
	api.Use(middleware.Auth(cfg.JWTValidator)) // 1. Validate JWT
	api.Use(middleware.UserContext())          // 2. Access scope for the domain layer
	api.Use(middleware.SequenceOverrides())    // 3. Date/organization/time zone overrides
	if cfg.Idempotency != nil {
		api.Use(middleware.Idempotency(cfg.Idempotency)) // 4. Replay retried requests
	}

	sequenceHandler := handlers.NewSequenceHandler(handlers.NewBaseHandler(), cfg.Sequences, cfg.History)
	RegisterSequenceRoutes(api, sequenceHandler)

	return router
}
