package router

import (
	"birthday-wall/backend/internal/api"
	"birthday-wall/backend/pkg/config"
	"birthday-wall/backend/pkg/di"
	"birthday-wall/backend/pkg/errors"
	"birthday-wall/backend/pkg/jwt"
	"birthday-wall/backend/pkg/logger"
	"birthday-wall/backend/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// Router is the main router for the application
type Router struct {
	Engine    *gin.Engine
	Container *di.Container
	Logger    *logger.Logger
	Config    *config.Config
}

// New creates a new router with the given container
func New(container *di.Container) *Router {
	cfg := container.Config

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.HandleMethodNotAllowed = true
	if err := engine.SetTrustedProxies(cfg.Security.TrustedProxies); err != nil {
		container.Logger.Warn("Invalid trusted proxies, trusting none", "error", err.Error())
		_ = engine.SetTrustedProxies(nil)
	}

	// Logger first so every later middleware sees the request-scoped logger
	engine.Use(logger.Middleware(container.Logger))
	engine.Use(middleware.RequestContext())
	engine.Use(errors.ErrorHandler())
	engine.Use(errors.RecoveryWithLogger())
	engine.Use(corsMiddleware(cfg.Security.AllowedOrigins))
	engine.Use(container.RateLimiter.Middleware())
	engine.Use(middleware.MaxBodySize(cfg.Security.MaxBodySize))

	engine.NoRoute(errors.NoRoute())
	engine.NoMethod(errors.NoMethod())

	return &Router{
		Engine:    engine,
		Container: container,
		Logger:    container.Logger,
		Config:    cfg,
	}
}

// SetupRoutes registers all application routes. OpenAPI validation, when
// configured, must be added before this.
func (r *Router) SetupRoutes() {
	c := r.Container
	admin := middleware.RequireRole(c.JWTService, jwt.RoleAdmin)

	messageController := api.NewMessageController(c.MessageService)
	imageController := api.NewImageController(c.ImageService, c.MessageService)
	authHandler := api.NewAuthHandler(r.Config.Admin.Username, r.Config.Admin.PasswordHash, c.JWTService, r.Logger)

	apiGroup := r.Engine.Group("/api")
	{
		messageController.RegisterRoutes(apiGroup, admin)
		imageController.RegisterRoutes(apiGroup)
		authHandler.RegisterRoutes(apiGroup)
	}
	imageController.RegisterBlobRoutes(r.Engine)

	r.setupHealthRoutes()
	r.Engine.GET("/metrics", gin.WrapH(c.Metrics.Handler))
	r.Engine.GET("/ws", c.Hub.ServeWs(c.MessageService.Count))
}

// corsMiddleware allows the configured origins, or any origin for "*", and
// the headers the websocket upgrade needs
func corsMiddleware(allowed []string) gin.HandlerFunc {
	wildcard := false
	origins := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			wildcard = true
		}
		origins[o] = struct{}{}
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		switch {
		case origin == "" || wildcard:
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		default:
			if _, ok := origins[origin]; ok {
				c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
				c.Writer.Header().Add("Vary", "Origin")
			}
		}

		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept, Accept-Encoding, Authorization, Origin, Upgrade, Connection, Cache-Control, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Upgrade, Connection, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
