package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("APP_ENV", "development")
	t.Setenv("BLOB_BACKEND", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "http://localhost:9090", cfg.Server.PublicBaseURL)
	assert.Equal(t, BackendMemory, cfg.Storage.Backend)
	assert.Equal(t, "birthday-messages.json", cfg.Storage.MessagesKey)
	assert.Equal(t, "birthday-images/", cfg.Storage.ImagePrefix)
	assert.False(t, cfg.Vault.Enabled)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("BLOB_BACKEND", "Redis")
	t.Setenv("ALLOWED_ORIGINS", "https://wall.example.com, https://admin.example.com ,")
	t.Setenv("CACHE_TTL", "2m")
	t.Setenv("RATE_LIMIT", "0.5")
	t.Setenv("MAX_BODY_SIZE", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, BackendRedis, cfg.Storage.Backend)
	assert.Equal(t, []string{"https://wall.example.com", "https://admin.example.com"}, cfg.Security.AllowedOrigins)
	assert.Equal(t, 2*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 0.5, cfg.Security.RateLimit)
	assert.EqualValues(t, 50<<20, cfg.Security.MaxBodySize, "bad values fall back to the default")
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	t.Setenv("BLOB_BACKEND", "s3")

	_, err := Load()
	assert.Error(t, err)
}

func TestProductionRequiresJWTSecret(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("VAULT_ENABLED", "false")

	_, err := Load()
	assert.Error(t, err)

	t.Setenv("JWT_SECRET", "s3cret")
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
}

func TestDSN(t *testing.T) {
	cfg := &Config{}
	cfg.Database.Host = "db"
	cfg.Database.Port = "5432"
	cfg.Database.User = "wall"
	cfg.Database.Password = "pw"
	cfg.Database.Name = "birthday_wall"
	cfg.Database.SSLMode = "require"
	cfg.Database.Timeout = 5 * time.Second

	dsn := cfg.DSN()
	assert.True(t, strings.HasPrefix(dsn, "host=db port=5432 user=wall"))
	assert.Contains(t, dsn, "sslmode=require connect_timeout=5")
}
