package middleware

import (
	"context"
	stderrors "errors"
	"strings"

	"birthday-wall/backend/pkg/errors"
	"birthday-wall/backend/pkg/jwt"
	"birthday-wall/backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// RequireRole authenticates the bearer token and checks it grants role.
// On success the claims are stored under "claims" and the subject under
// "subject".
func RequireRole(tokens *jwt.Service, role jwt.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Error(errors.NewUnauthorizedError("AUTH_REQUIRED", "Authorization header is required"))
			c.Abort()
			return
		}

		token, found := strings.CutPrefix(header, "Bearer ")
		if !found || token == "" {
			c.Error(errors.NewUnauthorizedError("AUTH_REQUIRED", "Bearer token is required"))
			c.Abort()
			return
		}

		claims, err := tokens.Validate(token)
		if err != nil {
			logger.FromContext(c).Warn("Rejected admin token", "error", err.Error())
			code, msg := "INVALID_TOKEN", "Invalid token"
			if stderrors.Is(err, jwt.ErrExpiredToken) {
				code, msg = "TOKEN_EXPIRED", "Token has expired"
			}
			c.Error(errors.NewUnauthorizedError(code, msg))
			c.Abort()
			return
		}

		if !claims.HasRole(role) {
			c.Error(errors.NewForbiddenError("INSUFFICIENT_ROLE", "Your role does not allow this operation"))
			c.Abort()
			return
		}

		c.Set("claims", claims)
		c.Set("subject", claims.Subject)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), SubjectKey, claims.Subject))
		c.Next()
	}
}
