package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage backends
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Config holds all application configuration
type Config struct {
	Server struct {
		Port           string
		Env            string
		Timeout        time.Duration
		PublicBaseURL  string
		GRPCHealthPort string
		Version        string
	}

	// Storage selects and shapes the blob store
	Storage struct {
		Backend        string
		MessagesKey    string
		ImagePrefix    string
		MaxImageBytes  int64
		CompressAbove  int64
		RedisNamespace string
	}

	Redis struct {
		URL      string
		Password string
		DB       int
	}

	Database struct {
		Host     string
		Port     string
		User     string
		Password string
		Name     string
		SSLMode  string
		MaxConns int
		Retries  int
		Timeout  time.Duration
	}

	JWT struct {
		Secret string
		Expiry time.Duration
	}

	// Admin is the single operator account allowed to run maintenance
	Admin struct {
		Username     string
		PasswordHash string
	}

	Security struct {
		RateLimit      float64
		RateLimitBurst int
		AllowedOrigins []string
		TrustedProxies []string
		MaxBodySize    int64
	}

	Logging struct {
		Level  string
		Format string
	}

	Cache struct {
		Enabled     bool
		TTL         time.Duration
		MaxSize     int
		PurgeWindow time.Duration
	}

	Reconcile struct {
		RulesPath string
	}

	Observability struct {
		TracingEnabled    bool
		OpenAPISchemaPath string
	}

	Vault struct {
		Enabled     bool
		Address     string
		Token       string
		Namespace   string
		SecretsPath string
	}
}

// Load reads .env (if present) and the environment
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.Server.Port = getEnvString("PORT", "8081")
	cfg.Server.Env = getEnvString("APP_ENV", "development")
	cfg.Server.Timeout = getEnvDuration("SERVER_TIMEOUT", 30*time.Second)
	cfg.Server.PublicBaseURL = getEnvString("PUBLIC_BASE_URL", "http://localhost:"+cfg.Server.Port)
	cfg.Server.GRPCHealthPort = getEnvString("GRPC_HEALTH_PORT", "")
	cfg.Server.Version = getEnvString("APP_VERSION", "dev")

	cfg.Storage.Backend = strings.ToLower(getEnvString("BLOB_BACKEND", BackendMemory))
	cfg.Storage.MessagesKey = getEnvString("MESSAGES_BLOB_KEY", "birthday-messages.json")
	cfg.Storage.ImagePrefix = getEnvString("IMAGE_PREFIX", "birthday-images/")
	cfg.Storage.MaxImageBytes = getEnvInt64("MAX_IMAGE_BYTES", 8<<20)
	cfg.Storage.CompressAbove = getEnvInt64("COMPRESS_ABOVE_BYTES", 500<<10)
	cfg.Storage.RedisNamespace = getEnvString("REDIS_BLOB_NAMESPACE", "blob")

	cfg.Redis.URL = getEnvString("REDIS_URL", "redis://localhost:6379/0")
	cfg.Redis.Password = getEnvString("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	cfg.Database.Host = getEnvString("DB_HOST", "localhost")
	cfg.Database.Port = getEnvString("DB_PORT", "5432")
	cfg.Database.User = getEnvString("DB_USER", "postgres")
	cfg.Database.Password = getEnvString("DB_PASSWORD", "postgres")
	cfg.Database.Name = getEnvString("DB_NAME", "birthday_wall")
	cfg.Database.SSLMode = getEnvString("DB_SSL_MODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 10)
	cfg.Database.Retries = getEnvInt("DB_RETRIES", 5)
	cfg.Database.Timeout = getEnvDuration("DB_TIMEOUT", 5*time.Second)

	cfg.JWT.Secret = getEnvString("JWT_SECRET", "")
	cfg.JWT.Expiry = getEnvDuration("JWT_EXPIRY", 12*time.Hour)

	cfg.Admin.Username = getEnvString("ADMIN_USERNAME", "admin")
	cfg.Admin.PasswordHash = getEnvString("ADMIN_PASSWORD_HASH", "")

	cfg.Security.RateLimit = getEnvFloat("RATE_LIMIT", 5)
	cfg.Security.RateLimitBurst = getEnvInt("RATE_LIMIT_BURST", 20)
	cfg.Security.AllowedOrigins = getEnvStringSlice("ALLOWED_ORIGINS", []string{"*"})
	cfg.Security.TrustedProxies = getEnvStringSlice("TRUSTED_PROXIES", []string{"127.0.0.1"})
	cfg.Security.MaxBodySize = getEnvInt64("MAX_BODY_SIZE", 50<<20)

	cfg.Logging.Level = getEnvString("LOG_LEVEL", "info")
	cfg.Logging.Format = getEnvString("LOG_FORMAT", "json")

	cfg.Cache.Enabled = getEnvBool("CACHE_ENABLED", true)
	cfg.Cache.TTL = getEnvDuration("CACHE_TTL", 30*time.Second)
	cfg.Cache.MaxSize = getEnvInt("CACHE_MAX_SIZE", 16)
	cfg.Cache.PurgeWindow = getEnvDuration("CACHE_PURGE_WINDOW", time.Minute)

	cfg.Reconcile.RulesPath = getEnvString("RECONCILE_RULES_PATH", "")

	cfg.Observability.TracingEnabled = getEnvBool("TRACING_ENABLED", false)
	cfg.Observability.OpenAPISchemaPath = getEnvString("OPENAPI_SCHEMA_PATH", "")

	cfg.Vault.Enabled = getEnvBool("VAULT_ENABLED", false)
	cfg.Vault.Address = getEnvString("VAULT_ADDR", "")
	cfg.Vault.Token = getEnvString("VAULT_TOKEN", "")
	cfg.Vault.Namespace = getEnvString("VAULT_NAMESPACE", "")
	cfg.Vault.SecretsPath = getEnvString("VAULT_SECRETS_PATH", "birthday-wall")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail later at runtime
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendMemory, BackendRedis, BackendPostgres:
	default:
		return fmt.Errorf("unknown BLOB_BACKEND %q", c.Storage.Backend)
	}
	if c.Storage.MessagesKey == "" {
		return fmt.Errorf("MESSAGES_BLOB_KEY must not be empty")
	}
	if c.IsProduction() && c.JWT.Secret == "" && !c.Vault.Enabled {
		return fmt.Errorf("JWT_SECRET is required in production")
	}
	return nil
}

// IsProduction reports whether APP_ENV is production
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

func getEnvString(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		parts := strings.Split(value, ",")
		out := parts[:0]
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultValue
}
