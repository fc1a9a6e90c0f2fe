package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/trailscore-backend-go/internal/config"
	"github.com/jengzang/trailscore-backend-go/internal/handler"
	"github.com/jengzang/trailscore-backend-go/internal/middleware"
	"github.com/jengzang/trailscore-backend-go/internal/service"
)

// SetupRouter 设置路由
func SetupRouter(cfg *config.Config, recordingService *service.RecordingService) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.Logger())

	// CORS 中间件
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+middleware.DeviceIDHeader)

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "Track scoring API is running",
			"device":  cfg.DeviceID,
		})
	})

	recorderHandler := handler.NewRecorderHandler(recordingService)
	scoringHandler := handler.NewScoringHandler(recordingService)
	archiveHandler := handler.NewArchiveHandler(recordingService)

	// API 路由组
	api := r.Group("/api/v1")
	{
		// 记录器接口
		rec := api.Group("/recorder")
		{
			rec.POST("/start", recorderHandler.Start)
			rec.POST("/pause", recorderHandler.Pause)
			rec.POST("/resume", recorderHandler.Resume)
			rec.POST("/stop", recorderHandler.Stop)
			rec.POST("/discard", recorderHandler.Discard)
			rec.GET("/status", recorderHandler.GetStatus)
			rec.GET("/session", recorderHandler.GetSession)

			rec.POST("/fixes", middleware.RateLimit(cfg.FixRateLimit, time.Minute), recorderHandler.IngestFixes)
			rec.POST("/sensor-errors", recorderHandler.ReportSensorError)
			rec.POST("/places", recorderHandler.TagPlace)
		}

		// 评分接口
		scoring := api.Group("/scoring")
		{
			scoring.POST("/compute", scoringHandler.Compute)
			scoring.GET("/config", scoringHandler.GetConfig)
		}

		// 已完成轨迹（待同步）接口
		archive := api.Group("/archive")
		{
			archive.GET("", archiveHandler.List)
			archive.GET("/:id", archiveHandler.Get)
			archive.POST("/:id/retry", archiveHandler.Retry)
			archive.DELETE("/:id", archiveHandler.Delete)
		}
	}

	return r
}
