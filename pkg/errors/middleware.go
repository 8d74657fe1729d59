package errors

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"birthday-wall/backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Envelope is the JSON body of every failed request
func Envelope(appErr *AppError) gin.H {
	return gin.H{
		"success": false,
		"error":   appErr.Message,
		"code":    appErr.Code,
		"details": appErr.Details,
	}
}

// ErrorHandler renders the first error a handler attached with c.Error
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		appErr := FromError(c.Errors[0].Err)

		log := logger.FromContext(c)
		args := []any{
			"path", c.Request.URL.Path,
			"method", c.Request.Method,
			"status_code", appErr.StatusCode,
			"error_code", appErr.Code,
		}
		if cause := appErr.Unwrap(); cause != nil {
			args = append(args, "cause", cause.Error())
		}
		if appErr.StatusCode >= http.StatusInternalServerError {
			log.Error(appErr.Message, args...)
		} else {
			log.Warn(appErr.Message, args...)
		}

		if c.Writer.Written() {
			return
		}
		c.AbortWithStatusJSON(appErr.StatusCode, Envelope(appErr))
	}
}

// RecoveryWithLogger turns panics into a 500 response and logs the stack
func RecoveryWithLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				stack := string(debug.Stack())

				logger.FromContext(c).Error("Panic recovered",
					"error", r,
					"stack", stack,
					"path", c.Request.URL.Path,
					"method", c.Request.Method,
				)

				appErr := NewInternalServerError("SERVER_ERROR", "The server encountered an unexpected error")
				if gin.Mode() == gin.DebugMode {
					appErr.Details = fmt.Sprintf("panic: %v", r)
				}
				c.AbortWithStatusJSON(http.StatusInternalServerError, Envelope(appErr))
			}
		}()

		c.Next()
	}
}

// NoRoute answers unknown paths with the error envelope
func NoRoute() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Error(NewNotFoundError("NOT_FOUND", "Route not found"))
	}
}

// NoMethod answers known paths called with the wrong method
func NoMethod() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Error(NewMethodNotAllowedError("METHOD_NOT_ALLOWED", "Method not allowed"))
	}
}
