package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"jobsift/internal/logging"
	"jobsift/internal/syncer"
	"jobsift/pkg/models"
	"jobsift/pkg/utils"
)

// HealthHandler reports process liveness. It always answers 200; a running
// sync is surfaced in the body, never as an error status.
func HealthHandler(orchestrator *syncer.Orchestrator) echo.HandlerFunc {
	return func(c echo.Context) error {
		requestID := utils.GenerateRequestID()
		logger := logging.GetGlobalLogger()

		logger.Debug("Health check requested", map[string]interface{}{"request_id": requestID})

		return c.JSON(http.StatusOK, models.HealthResponse{
			OK:      true,
			Running: orchestrator.Running(),
		})
	}
}
