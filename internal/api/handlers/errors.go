package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"dcl-forecast/internal/api/models"
	"dcl-forecast/internal/data"
	"dcl-forecast/internal/efa"
	"dcl-forecast/internal/features"
	"dcl-forecast/internal/storage"
)

func writeError(c *gin.Context, status int, code, message string, details map[string]interface{}) {
	c.JSON(status, models.ErrorResponse{
		Error: models.ErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// writeBuildError maps a pipeline error onto a status code.
func writeBuildError(c *gin.Context, err error) {
	var missing *features.MissingSourceError
	if errors.As(err, &missing) {
		status := http.StatusBadGateway
		details := map[string]interface{}{
			"source": missing.Source,
			"status": string(missing.Status),
		}
		// Rate limiting upstream is passed through so clients can back off.
		var apiErr *data.APIError
		if errors.As(err, &apiErr) {
			details["upstream_status"] = apiErr.StatusCode
			if apiErr.StatusCode == http.StatusTooManyRequests {
				status = http.StatusTooManyRequests
				details["retry_after"] = apiErr.RetryAfter
			}
		}
		writeError(c, status, "SOURCE_UNAVAILABLE", err.Error(), details)
		return
	}

	switch {
	case errors.Is(err, efa.ErrInvalidRange):
		writeError(c, http.StatusBadRequest, "INVALID_RANGE", err.Error(), nil)
	case errors.Is(err, features.ErrUnknownTemporalFeature), errors.Is(err, features.ErrInvalidLag):
		writeError(c, http.StatusBadRequest, "INVALID_FEATURES", err.Error(), nil)
	case errors.Is(err, storage.ErrNotFound):
		writeError(c, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, context.DeadlineExceeded):
		writeError(c, http.StatusGatewayTimeout, "TIMEOUT", err.Error(), nil)
	default:
		writeError(c, http.StatusInternalServerError, "BUILD_ERROR", err.Error(), nil)
	}
}
