package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/timmy/subtitles/internal/api/handler"
	"github.com/timmy/subtitles/internal/api/middleware"
	"github.com/timmy/subtitles/internal/config"
	"github.com/timmy/subtitles/internal/logger"
)

// SetupRouter configures the Gin router with all routes
func SetupRouter(
	subtitles *handler.SubtitleHandler,
	health *handler.HealthHandler,
	cfg *config.Config,
	log *logger.Logger,
) *gin.Engine {
	// Set Gin mode
	switch cfg.Server.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	// Add middleware
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(log))
	r.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
		AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
	}))

	// Health check
	r.GET("/health", health.Health)

	if cfg.Metrics.Enabled {
		path := cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(promhttp.Handler()))
	}

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		contents := v1.Group("/contents/:contentId/subtitles")
		contents.POST("", subtitles.Start)
		contents.GET("/status", subtitles.Status)
		contents.POST("/cancel", subtitles.Cancel)
		contents.POST("/retry", subtitles.Retry)
		contents.GET("/files/:languageCode", subtitles.Download)

		v1.GET("/jobs/:jobId/events", subtitles.Events)
	}

	return r
}
