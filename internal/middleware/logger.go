package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Logger returns a zap-based request logging middleware. Streaming endpoints
// block for the life of the connection, so their latency is really the
// connection duration; they are logged at debug level so long-lived
// subscriptions do not dominate the request log.
func Logger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		fields := []zap.Field{
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("method", method),
			zap.String("path", path),
			zap.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		if isStreamingPath(path) {
			logger.Debug("stream closed", fields...)
			return
		}
		logger.Info("request", fields...)
	}
}

func isStreamingPath(path string) bool {
	return strings.HasSuffix(path, "/live/subscribe") || strings.HasSuffix(path, "/live/ws")
}
