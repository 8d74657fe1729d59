package api

import (
	"crypto/subtle"
	"net/http"
	"time"

	"birthday-wall/backend/pkg/errors"
	"birthday-wall/backend/pkg/jwt"
	"birthday-wall/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

// AuthHandler exchanges the operator's credentials for an admin token
type AuthHandler struct {
	username     string
	passwordHash []byte
	jwtService   *jwt.Service
	logger       *logger.Logger
}

// NewAuthHandler creates a new auth handler. An empty passwordHash disables
// login.
func NewAuthHandler(username, passwordHash string, jwtService *jwt.Service, logger *logger.Logger) *AuthHandler {
	return &AuthHandler{
		username:     username,
		passwordHash: []byte(passwordHash),
		jwtService:   jwtService,
		logger:       logger,
	}
}

// RegisterRoutes registers the login route
func (h *AuthHandler) RegisterRoutes(r gin.IRouter) {
	r.POST("/admin/login", h.Login)
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login checks the credentials and issues an admin token
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(invalidRequest(err))
		return
	}

	if len(h.passwordHash) == 0 {
		c.Error(errors.NewServiceUnavailableError("LOGIN_DISABLED", "Admin login is not configured"))
		return
	}

	userOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(h.username)) == 1
	passErr := bcrypt.CompareHashAndPassword(h.passwordHash, []byte(req.Password))
	if !userOK || passErr != nil {
		logger.FromContext(c).Warn("Failed admin login", "username", req.Username)
		c.Error(errors.NewUnauthorizedError("INVALID_CREDENTIALS", "Invalid username or password"))
		return
	}

	token, expiresAt, err := h.jwtService.Issue(h.username, jwt.RoleAdmin)
	if err != nil {
		c.Error(errors.NewInternalServerError("TOKEN_ERROR", "Failed to issue token").Wrap(err))
		return
	}

	h.logger.Info("Admin logged in", "username", h.username)
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"token":     token,
		"expiresAt": expiresAt.UTC().Format(time.RFC3339),
	})
}
