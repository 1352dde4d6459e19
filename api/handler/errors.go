package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/readtrack/models"
)

// respondError maps an error to the HTTP status of its code and writes a
// structured JSON error response.
func respondError(c *gin.Context, err error) {
	te := asTrackError(err, models.ErrCodeInternal)
	c.JSON(mapErrorToStatus(te), models.ErrorResponse{
		Success: false,
		Error:   te.ToDetail(),
	})
}

// asTrackError returns the TrackError in err's chain, or wraps err with
// code.
func asTrackError(err error, code string) *models.TrackError {
	var te *models.TrackError
	if errors.As(err, &te) {
		return te
	}
	return models.NewTrackError(code, err.Error(), err)
}

func invalidInput(c *gin.Context, err error) {
	respondError(c, models.NewTrackError(models.ErrCodeInvalidInput, err.Error(), err))
}

// mapErrorToStatus translates error codes to HTTP status codes.
func mapErrorToStatus(e *models.TrackError) int {
	switch e.Code {
	case models.ErrCodeTimeout:
		return http.StatusGatewayTimeout // 504
	case models.ErrCodeNavigation:
		return http.StatusBadGateway // 502
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest // 400
	case models.ErrCodeActionFailed, models.ErrCodeSnapshotFailed:
		return http.StatusUnprocessableEntity // 422
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	case models.ErrCodeSessionNotFound:
		return http.StatusNotFound // 404
	case models.ErrCodeSessionLimit, models.ErrCodeUnavailable:
		return http.StatusServiceUnavailable // 503
	default:
		return http.StatusInternalServerError // 500
	}
}
