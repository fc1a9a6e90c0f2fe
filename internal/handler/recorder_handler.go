package handler

import (
	"bytes"
	"encoding/json"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/trailscore-backend-go/internal/models"
	"github.com/jengzang/trailscore-backend-go/internal/resource"
	"github.com/jengzang/trailscore-backend-go/internal/service"
	"github.com/jengzang/trailscore-backend-go/pkg/response"
)

// RecorderHandler handles HTTP requests from the device shell that drive
// the recorder
type RecorderHandler struct {
	recordingService *service.RecordingService
}

// NewRecorderHandler creates a new recorder handler
func NewRecorderHandler(recordingService *service.RecordingService) *RecorderHandler {
	return &RecorderHandler{
		recordingService: recordingService,
	}
}

// Start handles POST /api/v1/recorder/start
func (h *RecorderHandler) Start(c *gin.Context) {
	var device models.DeviceInfo
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&device); err != nil {
			response.BadRequest(c, "Invalid device info")
			return
		}
	}
	if device.UserAgent == "" {
		device.UserAgent = c.Request.UserAgent()
	}

	session, err := h.recordingService.Start(c.Request.Context(), device)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, session)
}

// Pause handles POST /api/v1/recorder/pause
func (h *RecorderHandler) Pause(c *gin.Context) {
	if err := h.recordingService.Pause(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, h.recordingService.Status())
}

// Resume handles POST /api/v1/recorder/resume
func (h *RecorderHandler) Resume(c *gin.Context) {
	if err := h.recordingService.Resume(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, h.recordingService.Status())
}

// Stop handles POST /api/v1/recorder/stop
func (h *RecorderHandler) Stop(c *gin.Context) {
	var req service.StopRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "Invalid stop request")
			return
		}
	}

	result, err := h.recordingService.Stop(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, result)
}

// Discard handles POST /api/v1/recorder/discard
func (h *RecorderHandler) Discard(c *gin.Context) {
	if err := h.recordingService.Discard(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, h.recordingService.Status())
}

// GetStatus handles GET /api/v1/recorder/status
func (h *RecorderHandler) GetStatus(c *gin.Context) {
	response.Success(c, h.recordingService.Status())
}

// GetSession handles GET /api/v1/recorder/session
func (h *RecorderHandler) GetSession(c *gin.Context) {
	session := h.recordingService.Session()
	if session == nil {
		response.NotFound(c, "No session recorded yet")
		return
	}
	response.Success(c, session)
}

// IngestFixes handles POST /api/v1/recorder/fixes. The body is a single
// fix or an array of fixes.
func (h *RecorderHandler) IngestFixes(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		response.BadRequest(c, "Invalid request body")
		return
	}

	var fixes []models.GPSFix
	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '[' {
		err = json.Unmarshal(body, &fixes)
	} else {
		var fix models.GPSFix
		err = json.Unmarshal(body, &fix)
		fixes = []models.GPSFix{fix}
	}
	if err != nil {
		response.BadRequest(c, "Invalid fix payload")
		return
	}

	result, err := h.recordingService.IngestFixes(c.Request.Context(), fixes)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, result)
}

// ReportSensorError handles POST /api/v1/recorder/sensor-errors
func (h *RecorderHandler) ReportSensorError(c *gin.Context) {
	var sensorErr resource.SensorError
	if err := c.ShouldBindJSON(&sensorErr); err != nil || sensorErr.Code == 0 {
		response.BadRequest(c, "Invalid sensor error")
		return
	}

	if err := h.recordingService.ReportSensorError(&sensorErr); err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, h.recordingService.Status())
}

// TagPlace handles POST /api/v1/recorder/places
func (h *RecorderHandler) TagPlace(c *gin.Context) {
	var place models.Place
	if err := c.ShouldBindJSON(&place); err != nil {
		response.BadRequest(c, "Invalid place")
		return
	}

	tagged, err := h.recordingService.TagPlace(c.Request.Context(), place)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, tagged)
}
