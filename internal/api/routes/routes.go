package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"jobsift/internal/api/handlers"
	"jobsift/internal/config"
	"jobsift/internal/syncer"
)

// SetupRoutes configures global middleware and all API routes
func SetupRoutes(e *echo.Echo, cfg *config.Config, orchestrator *syncer.Orchestrator, history handlers.HistoryReader) {
	e.HTTPErrorHandler = handlers.ErrorHandler

	// Global middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{echo.GET, echo.POST, echo.OPTIONS},
		AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		AllowCredentials: false,
		MaxAge:           86400, // 24 hours
	}))
	e.Use(middleware.TimeoutWithConfig(middleware.TimeoutConfig{
		Timeout: cfg.Server.ReadTimeout,
	}))

	e.GET("/health", handlers.HealthHandler(orchestrator))
	e.GET("/status", handlers.StatusHandler(orchestrator))
	e.POST("/poll", handlers.PollHandler(orchestrator))
	e.GET("/history", handlers.HistoryHandler(history))

	// Root endpoint with API information
	e.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"service": "jobsift",
			"version": "1.0.0",
			"endpoints": map[string]string{
				"health":  "/health",
				"status":  "/status",
				"poll":    "POST /poll",
				"history": "/history",
			},
		})
	})
}
