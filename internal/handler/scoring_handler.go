package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/jengzang/trailscore-backend-go/internal/service"
	"github.com/jengzang/trailscore-backend-go/pkg/response"
)

// ScoringHandler handles stateless scoring requests
type ScoringHandler struct {
	recordingService *service.RecordingService
}

// NewScoringHandler creates a new scoring handler
func NewScoringHandler(recordingService *service.RecordingService) *ScoringHandler {
	return &ScoringHandler{
		recordingService: recordingService,
	}
}

// Compute handles POST /api/v1/scoring/compute
func (h *ScoringHandler) Compute(c *gin.Context) {
	var req service.ScoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid scoring request")
		return
	}

	result, err := h.recordingService.Score(req)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, result)
}

// GetConfig handles GET /api/v1/scoring/config
func (h *ScoringHandler) GetConfig(c *gin.Context) {
	rules := h.recordingService.ScoringRules()
	response.Success(c, gin.H{
		"config":        rules.Config,
		"themeKeywords": rules.ThemeKeywords,
	})
}
