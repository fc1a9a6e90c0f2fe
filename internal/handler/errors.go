package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/trailscore-backend-go/internal/config"
	"github.com/jengzang/trailscore-backend-go/internal/models"
	"github.com/jengzang/trailscore-backend-go/internal/recorder"
	"github.com/jengzang/trailscore-backend-go/internal/repository"
	"github.com/jengzang/trailscore-backend-go/internal/resource"
	"github.com/jengzang/trailscore-backend-go/internal/service"
	"github.com/jengzang/trailscore-backend-go/pkg/response"
)

// respondError maps service errors onto HTTP statuses
func respondError(c *gin.Context, err error) {
	_ = c.Error(err)

	switch {
	case errors.Is(err, recorder.ErrInvalidTransition),
		errors.Is(err, recorder.ErrSessionActive),
		errors.Is(err, recorder.ErrNotRecording),
		errors.Is(err, resource.ErrResourceBusy),
		errors.Is(err, repository.ErrSlotOccupied):
		response.Conflict(c, err.Error())
	case errors.Is(err, models.ErrInvalidFix),
		errors.Is(err, models.ErrInvalidPlace),
		errors.Is(err, config.ErrInvalidScoring),
		errors.Is(err, service.ErrInvalidStatus):
		response.BadRequest(c, err.Error())
	case errors.Is(err, repository.ErrNotFound):
		response.NotFound(c, "Session not found")
	case errors.Is(err, resource.ErrLocationUnavailable),
		errors.Is(err, service.ErrSyncDisabled):
		response.ServiceUnavailable(c, err.Error())
	default:
		response.InternalError(c, err.Error())
	}
}
