package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"jobsift/internal/logging"
	"jobsift/internal/syncer"
	"jobsift/pkg/models"
	"jobsift/pkg/utils"
)

// HistoryReader exposes past run snapshots for the history endpoint.
type HistoryReader interface {
	Recent(ctx context.Context, limit int) ([]models.RunStatus, error)
}

// StatusHandler returns the current run snapshot. While a run is in flight
// the counters are live values; after it finishes they describe the last run.
func StatusHandler(orchestrator *syncer.Orchestrator) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, orchestrator.Status())
	}
}

// PollHandler triggers a background sync run. It answers 202 with the reset
// snapshot when the run was accepted, 409 with the live snapshot when one is
// already in flight. The body is optional.
func PollHandler(orchestrator *syncer.Orchestrator) echo.HandlerFunc {
	return func(c echo.Context) error {
		requestID := utils.GenerateRequestID()
		logger := logging.GetGlobalLogger()

		// The body is bound whenever one is present, including chunked
		// requests with no Content-Length; an empty body reads as io.EOF and
		// keeps the defaults.
		var req models.PollRequest
		if err := c.Bind(&req); err != nil && !errors.Is(err, io.EOF) {
			logger.Warn("Rejected malformed poll request", map[string]interface{}{
				"request_id": requestID,
				"error":      err.Error(),
			})
			return utils.NewBadRequestError("request body must be JSON with an optional sync_all flag")
		}

		snapshot, err := orchestrator.Trigger(req.SyncAll)
		if errors.Is(err, syncer.ErrAlreadyRunning) {
			return c.JSON(http.StatusConflict, models.PollResponse{
				Accepted: false,
				Message:  "a sync run is already in progress",
				Status:   snapshot,
			})
		}
		if err != nil {
			return utils.NewInternalServerError("failed to start sync run")
		}

		logger.Info("Sync run started", map[string]interface{}{
			"request_id": requestID,
			"sync_all":   req.SyncAll,
		})

		return c.JSON(http.StatusAccepted, models.PollResponse{
			Accepted: true,
			Message:  "sync run started",
			Status:   snapshot,
		})
	}
}

// HistoryHandler lists recent completed runs from the history backend. When
// no backend is configured it answers 503.
func HistoryHandler(history HistoryReader) echo.HandlerFunc {
	return func(c echo.Context) error {
		if history == nil {
			return utils.NewServiceUnavailableError("run history backend is not configured")
		}

		limit := 10
		if raw := c.QueryParam("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 {
				return utils.NewBadRequestError("limit must be a positive integer")
			}
			limit = parsed
		}

		runs, err := history.Recent(c.Request().Context(), limit)
		if err != nil {
			return utils.NewInternalServerError("failed to read run history")
		}

		return c.JSON(http.StatusOK, map[string]interface{}{
			"runs": runs,
		})
	}
}
