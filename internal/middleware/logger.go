package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stwalsh4118/landb/internal/logger"
)

// LoggerKey is the context key for the request-scoped logger.
const LoggerKey = "logger"

// Logger creates a middleware that logs every request with its request ID.
// Successful health probes are logged at debug level.
func Logger(log *logger.Logger) gin.HandlerFunc {
	base := log.WithComponent("http")
	return func(c *gin.Context) {
		start := time.Now()

		requestLogger := base.WithRequestID(GetRequestID(c))
		c.Set(LoggerKey, requestLogger)

		c.Next()

		status := c.Writer.Status()
		fields := map[string]interface{}{
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status":      status,
			"duration_ms": time.Since(start).Milliseconds(),
			"ip":          c.ClientIP(),
		}
		if q := c.Request.URL.RawQuery; q != "" {
			fields["query"] = q
		}
		if len(c.Errors) > 0 {
			fields["errors"] = c.Errors.String()
		}

		switch {
		case status >= 500:
			requestLogger.Error("Request completed with server error", nil, fields)
		case status >= 400:
			requestLogger.Warn("Request completed with client error", fields)
		case strings.HasPrefix(c.Request.URL.Path, "/health"):
			requestLogger.Debug("Health probe", fields)
		default:
			requestLogger.Info("Request completed", fields)
		}
	}
}

// GetLogger retrieves the request logger from the Gin context.
// Returns nil if not found.
func GetLogger(c *gin.Context) *logger.Logger {
	if v, exists := c.Get(LoggerKey); exists {
		if log, ok := v.(*logger.Logger); ok {
			return log
		}
	}
	return nil
}
