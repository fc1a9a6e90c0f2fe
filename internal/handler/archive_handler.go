package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/trailscore-backend-go/internal/models"
	"github.com/jengzang/trailscore-backend-go/internal/repository"
	"github.com/jengzang/trailscore-backend-go/internal/service"
	"github.com/jengzang/trailscore-backend-go/pkg/response"
)

// ArchiveHandler handles HTTP requests for finalized sessions awaiting sync
type ArchiveHandler struct {
	recordingService *service.RecordingService
}

// NewArchiveHandler creates a new archive handler
func NewArchiveHandler(recordingService *service.RecordingService) *ArchiveHandler {
	return &ArchiveHandler{
		recordingService: recordingService,
	}
}

// List handles GET /api/v1/archive?status=pending|synced|failed
func (h *ArchiveHandler) List(c *gin.Context) {
	status := models.SyncStatus(c.Query("status"))

	entries, err := h.recordingService.ListArchived(c.Request.Context(), status)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, entries)
}

// Get handles GET /api/v1/archive/:id
func (h *ArchiveHandler) Get(c *gin.Context) {
	entry, err := h.recordingService.GetArchived(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, entry)
}

// Retry handles POST /api/v1/archive/:id/retry
func (h *ArchiveHandler) Retry(c *gin.Context) {
	id := c.Param("id")

	err := h.recordingService.RetrySync(c.Request.Context(), id)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, service.ErrSyncDisabled):
		respondError(c, err)
		return
	default:
		_ = c.Error(err)
		response.BadGateway(c, err.Error())
		return
	}

	entry, err := h.recordingService.GetArchived(c.Request.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		// Pruned after a successful upload
		response.Success(c, gin.H{"sessionId": id, "syncStatus": models.SyncStatusSynced})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, entry)
}

// Delete handles DELETE /api/v1/archive/:id
func (h *ArchiveHandler) Delete(c *gin.Context) {
	if err := h.recordingService.DeleteArchived(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, nil)
}
