// Package httpserver exposes map sessions over a JSON API.
package httpserver

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/meetsmatch/ridemap/internal/middleware"
	"github.com/meetsmatch/ridemap/internal/monitoring"
	"github.com/meetsmatch/ridemap/internal/session"
)

// Config controls the router.
type Config struct {
	ServiceName string
	Logging     *middleware.LoggingConfig
	// Metrics is optional.
	Metrics *monitoring.HTTPMetrics
	Health  *monitoring.HealthChecker
	// CreateBurst session creations per client, refilled one per CreateRefill.
	CreateBurst  int
	CreateRefill time.Duration
}

// DefaultConfig returns the production router settings.
func DefaultConfig() Config {
	return Config{
		ServiceName:  "ridemap",
		Logging:      middleware.DefaultLoggingConfig(),
		CreateBurst:  10,
		CreateRefill: 6 * time.Second,
	}
}

// Server routes API requests to session operations.
type Server struct {
	manager *session.Manager
	limiter *middleware.RateLimitMiddleware
	engine  *gin.Engine
}

// New builds the router for manager.
func New(manager *session.Manager, cfg Config) *Server {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "ridemap"
	}
	if cfg.Logging == nil {
		cfg.Logging = middleware.DefaultLoggingConfig()
	}
	if cfg.Health == nil {
		cfg.Health = monitoring.NewHealthChecker(cfg.ServiceName, "dev")
	}
	if cfg.CreateBurst <= 0 {
		cfg.CreateBurst = 10
	}
	if cfg.CreateRefill <= 0 {
		cfg.CreateRefill = 6 * time.Second
	}

	s := &Server{
		manager: manager,
		limiter: middleware.NewRateLimitMiddleware(cfg.CreateBurst, cfg.CreateRefill),
		engine:  gin.New(),
	}

	r := s.engine
	r.Use(otelgin.Middleware(cfg.ServiceName))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.GinMiddleware())
	}
	r.Use(middleware.LoggingMiddleware(cfg.Logging))
	r.Use(middleware.Recovery())
	r.Use(middleware.ErrorHandler())

	r.GET("/health", cfg.Health.LivenessHandler())
	r.GET("/ready", cfg.Health.ReadinessHandler())
	r.GET("/health/details", cfg.Health.HealthHandler())

	v1 := r.Group("/api/v1")
	v1.POST("/sessions", s.limiter.Handler(), s.createSession)

	sessions := v1.Group("/sessions/:id")
	sessions.GET("", s.getSession)
	sessions.DELETE("", s.closeSession)

	sessions.POST("/picker/movestart", s.pickerMoveStart)
	sessions.POST("/picker/moveend", s.pickerMoveEnd)
	sessions.GET("/picker/address", s.pickerAddress)
	sessions.POST("/picker/confirm", s.pickerConfirm)

	sessions.POST("/ride/select", s.rideSelect)
	sessions.POST("/ride/click", s.rideClick)
	sessions.POST("/ride/clear", s.rideClear)

	sessions.GET("/maps/:map", s.getMap)

	sessions.POST("/tracking/toggle", s.trackingToggle)
	sessions.POST("/tracking/fix", s.trackingFix)
	sessions.POST("/tracking/error", s.trackingError)
	sessions.POST("/tracking/center", s.trackingCenter)

	sessions.GET("/notices", s.notices)

	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// PruneLimiters forgets rate limit state of clients idle for longer than idle.
func (s *Server) PruneLimiters(idle time.Duration) int {
	return s.limiter.Prune(idle)
}
