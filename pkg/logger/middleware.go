package logger

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ContextKey is where Middleware stores the request-scoped logger
const ContextKey = "logger"

// Middleware assigns a request id, stores a request-scoped logger in the gin
// context and logs the request when it completes
func Middleware(logger *Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Header("X-Request-ID", requestID)
		c.Set("requestID", requestID)

		reqLogger := logger.WithRequestID(requestID)
		c.Set(ContextKey, reqLogger)

		start := time.Now()
		c.Next()

		// Auth middleware may have identified the caller during c.Next()
		if subject := c.GetString("subject"); subject != "" {
			reqLogger = reqLogger.WithActor(subject)
		}
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		reqLogger.LogRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start), c.Writer.Size())
	}
}

// FromContext returns the request-scoped logger, or the global one
func FromContext(c *gin.Context) *Logger {
	if v, ok := c.Get(ContextKey); ok {
		if l, ok := v.(*Logger); ok {
			return l
		}
	}
	return GetGlobal()
}
