package di

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"birthday-wall/backend/internal/models"
	"birthday-wall/backend/internal/reconcile"
	"birthday-wall/backend/internal/service"
	"birthday-wall/backend/internal/ws"
	"birthday-wall/backend/pkg/blob"
	"birthday-wall/backend/pkg/cache"
	"birthday-wall/backend/pkg/config"
	"birthday-wall/backend/pkg/health"
	"birthday-wall/backend/pkg/imaging"
	"birthday-wall/backend/pkg/jwt"
	"birthday-wall/backend/pkg/logger"
	"birthday-wall/backend/pkg/middleware"
	"birthday-wall/backend/pkg/resilience"
	"birthday-wall/backend/pkg/secrets"
	"birthday-wall/backend/shared/observability"
	sharedredis "birthday-wall/backend/shared/redis"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const serviceName = "birthday-wall"

// Container holds all the dependencies for the application
type Container struct {
	Config         *config.Config
	Logger         *logger.Logger
	Store          blob.Store
	Breaker        *resilience.CircuitBreaker
	Cache          *cache.Cache[[]models.Message]
	JWTService     *jwt.Service
	ImageService   *service.ImageService
	MessageService *service.MessageService
	Hub            *ws.Hub
	Health         *health.Checker
	Metrics        *observability.Metrics
	RateLimiter    *middleware.RateLimiter

	closers []func(context.Context) error
}

// New creates a new dependency injection container. Secrets are resolved
// into cfg before any backend is opened.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Container, error) {
	c := &Container{Config: cfg, Logger: log}

	manager, err := secrets.NewManager(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create secrets manager: %w", err)
	}
	if err := secrets.Apply(ctx, manager, cfg); err != nil {
		return nil, fmt.Errorf("failed to resolve secrets: %w", err)
	}

	shutdownTracing, err := observability.SetupTracing(serviceName, cfg.Server.Version, cfg.Observability.TracingEnabled, nil)
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, shutdownTracing)

	c.Metrics, err = observability.SetupMetrics(serviceName, cfg.Server.Version)
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, c.Metrics.Shutdown)
	wallMetrics, err := observability.NewWallMetrics(c.Metrics.Provider.Meter(serviceName))
	if err != nil {
		return nil, err
	}

	raw, err := c.openStore(ctx)
	if err != nil {
		c.Close(ctx)
		return nil, err
	}
	breakerConfig := resilience.DefaultConfig("blob_store")
	breakerConfig.IsFailure = service.IsStoreFailure
	c.Breaker = resilience.NewCircuitBreaker(breakerConfig, log)
	c.Store = service.NewGuardedStore(raw, c.Breaker)

	if cfg.Cache.Enabled {
		c.Cache = cache.New[[]models.Message](cache.Options{
			TTL:             cfg.Cache.TTL,
			MaxItems:        cfg.Cache.MaxSize,
			CleanupInterval: cfg.Cache.PurgeWindow,
		})
	}

	rules := reconcile.DefaultRules()
	if cfg.Reconcile.RulesPath != "" {
		rules, err = reconcile.LoadRules(cfg.Reconcile.RulesPath)
		if err != nil {
			c.Close(ctx)
			return nil, err
		}
		log.Info("Loaded reconcile rules", "path", cfg.Reconcile.RulesPath)
	}

	secret := cfg.JWT.Secret
	if secret == "" {
		secret = uuid.NewString()
		log.Warn("JWT_SECRET is not set, using a random secret; tokens will not survive a restart")
	}
	c.JWTService, err = jwt.NewService(secret, cfg.JWT.Expiry)
	if err != nil {
		c.Close(ctx)
		return nil, err
	}

	c.Hub = ws.NewHub(log, cfg.Security.AllowedOrigins)

	c.ImageService = service.NewImageService(c.Store, service.ImageServiceConfig{
		Prefix:        cfg.Storage.ImagePrefix,
		MaxBytes:      cfg.Storage.MaxImageBytes,
		CompressAbove: cfg.Storage.CompressAbove,
		Compress:      imaging.DefaultOptions(),
	}, wallMetrics, log)
	c.MessageService = service.NewMessageService(c.Store, c.ImageService, service.MessageServiceOptions{
		Key:      cfg.Storage.MessagesKey,
		Rules:    rules,
		Cache:    c.Cache,
		Notifier: c.Hub,
		Metrics:  wallMetrics,
	}, log)

	c.Health = health.NewChecker(log, 30*time.Second, cfg.Server.Version)
	c.Health.RegisterPing("blob_store", func(ctx context.Context) error {
		if p, ok := c.Store.(blob.Pinger); ok {
			return p.Ping(ctx)
		}
		return nil
	})
	c.Health.Register("blob_breaker", false, func(context.Context) (health.Status, string, error) {
		if c.Breaker.State() == resilience.StateOpen {
			return health.StatusDegraded, "circuit open", nil
		}
		return health.StatusUp, string(c.Breaker.State()), nil
	})

	limiterOptions := middleware.DefaultRateLimiterOptions()
	limiterOptions.Limit = rate.Limit(cfg.Security.RateLimit)
	limiterOptions.Burst = cfg.Security.RateLimitBurst
	c.RateLimiter = middleware.NewRateLimiter(log, limiterOptions)

	return c, nil
}

// openStore builds the configured blob backend
func (c *Container) openStore(ctx context.Context) (blob.Store, error) {
	cfg := c.Config
	urls := blob.NewURLs(cfg.Server.PublicBaseURL)

	switch cfg.Storage.Backend {
	case config.BackendRedis:
		client, err := sharedredis.NewClient(cfg)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, func(context.Context) error { return client.Close() })
		if err := sharedredis.Ping(ctx, client); err != nil {
			c.Logger.Warn("Redis is not reachable yet", "error", err.Error())
		}
		c.Logger.Info("Using redis blob store", "namespace", cfg.Storage.RedisNamespace)
		return blob.NewRedisStore(client, cfg.Storage.RedisNamespace, urls), nil

	case config.BackendPostgres:
		db, err := config.NewDB(ctx, cfg, c.Logger)
		if err != nil {
			return nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, func(context.Context) error { return sqlDB.Close() })
		store, err := blob.NewGormStore(db, urls)
		if err != nil {
			return nil, err
		}
		c.Logger.Info("Using postgres blob store", "host", cfg.Database.Host, "database", cfg.Database.Name)
		return store, nil
	}

	c.Logger.Warn("Using in-memory blob store; data is lost on restart")
	return blob.NewMemoryStore(urls), nil
}

// Start runs the background loops until ctx is done
func (c *Container) Start(ctx context.Context) {
	go c.Hub.Run(ctx)
	go c.RateLimiter.Run(ctx)
	if c.Cache != nil {
		go c.Cache.Run(ctx)
	}
	c.Health.Start(ctx)
}

// Close releases backends and flushes telemetry in reverse order of creation
func (c *Container) Close(ctx context.Context) error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return stderrors.Join(errs...)
}
