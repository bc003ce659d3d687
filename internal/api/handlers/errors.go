package handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"jobsift/internal/logging"
	"jobsift/pkg/models"
	"jobsift/pkg/utils"
)

// ErrorHandler maps application errors to the common JSON error body. Wired
// as echo's HTTPErrorHandler so handlers can simply return errors.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	message := "internal server error"

	switch e := err.(type) {
	case *utils.CustomError:
		code = e.Code
		message = e.Error()
	case *echo.HTTPError:
		code = e.Code
		if msg, ok := e.Message.(string); ok {
			message = msg
		}
	default:
		logging.GetGlobalLogger().Error("Unhandled request error", map[string]interface{}{
			"error": err.Error(),
			"path":  c.Path(),
		})
	}

	_ = c.JSON(code, models.ErrorResponse{
		Error:     http.StatusText(code),
		Message:   message,
		RequestID: utils.GenerateRequestID(),
		Timestamp: time.Now(),
	})
}
