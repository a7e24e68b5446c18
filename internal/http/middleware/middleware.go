// Package middleware holds gin middleware that needs application context,
// as opposed to the generic handlers in platform/httpkit.
package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"estatebot_backend/platform/logger"
)

// SlowRequestLog warns about requests exceeding the threshold, so a stuck
// calendar or meeting provider call shows up in the logs without request
// tracing.
func SlowRequestLog(log *logger.Logger, threshold time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if elapsed := time.Since(start); elapsed > threshold {
			log.Warn("slow request",
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
				"status", c.Writer.Status(),
				"duration_ms", elapsed.Milliseconds(),
			)
		}
	}
}
