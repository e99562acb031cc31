package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/umtp/assist-gateway/internal/model"
	"github.com/umtp/assist-gateway/internal/response"
	"github.com/umtp/assist-gateway/internal/service"
	"github.com/umtp/assist-gateway/internal/workflow"
)

// classify maps a service or workflow error to its HTTP status and code.
func classify(err error) (int, response.ErrCode) {
	switch {
	case errors.Is(err, service.ErrMissingSession):
		return http.StatusUnauthorized, response.ErrSessionRequired
	case errors.Is(err, service.ErrQuestionNotFound):
		return http.StatusNotFound, response.ErrNotFound
	case errors.Is(err, model.ErrUnknownBlank):
		return http.StatusBadRequest, response.ErrUnknownBlank
	case errors.Is(err, model.ErrUnknownChoice):
		return http.StatusBadRequest, response.ErrUnknownChoice
	case errors.Is(err, workflow.ErrInvalidLevel):
		return http.StatusBadRequest, response.ErrInvalidHintLevel
	case errors.Is(err, workflow.ErrInvalidRating):
		return http.StatusBadRequest, response.ErrInvalidRating
	case errors.Is(err, workflow.ErrRequestInFlight):
		return http.StatusConflict, response.ErrHintInFlight
	default:
		return http.StatusBadGateway, response.ErrBackendUnavailable
	}
}

// failFrom writes the error response for err. Upstream failures are logged.
func failFrom(c *gin.Context, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Str("path", c.FullPath()).Msg("Backend call failed")
	}
	response.Fail(c, status, code)
}

// parseQuestionID reads the :id path parameter.
func parseQuestionID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return 0, false
	}
	return id, true
}

// parseLevel reads the :level path parameter (0-based).
func parseLevel(c *gin.Context) (int, bool) {
	level, err := strconv.Atoi(c.Param("level"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidHintLevel)
		return 0, false
	}
	return level, true
}
