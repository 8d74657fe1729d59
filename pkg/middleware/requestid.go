package middleware

import (
	"context"
	"net/http"

	"birthday-wall/backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

type contextKey string

// SubjectKey holds the authenticated admin subject
const SubjectKey contextKey = "subject"

// RequestContext copies the request id from the gin context into the
// request's context.Context so services can log it.
// It must run after logger.Middleware.
func RequestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id := c.GetString("requestID"); id != "" {
			c.Request = c.Request.WithContext(logger.ContextWithRequestID(c.Request.Context(), id))
		}
		c.Next()
	}
}

// GetRequestID extracts the request id from ctx
func GetRequestID(ctx context.Context) string {
	return logger.RequestIDFromContext(ctx)
}

// GetSubject extracts the admin subject from ctx
func GetSubject(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	subject, _ := ctx.Value(SubjectKey).(string)
	return subject
}

// MaxBodySize caps request bodies; larger bodies fail while binding
func MaxBodySize(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}
