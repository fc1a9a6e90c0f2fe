package middleware

import (
	"log"
	"time"

	"github.com/gin-gonic/gin"
)

// DeviceIDHeader identifies the device shell on every request
const DeviceIDHeader = "X-Device-ID"

// Logger middleware logs HTTP requests
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		if raw != "" {
			path = path + "?" + raw
		}

		device := c.GetHeader(DeviceIDHeader)
		if device == "" {
			device = "-"
		}

		log.Printf("[%s] %s %s device=%s %d %v %s",
			c.Request.Method,
			path,
			c.ClientIP(),
			device,
			c.Writer.Status(),
			time.Since(start),
			c.Errors.String(),
		)
	}
}
