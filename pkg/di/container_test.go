package di

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"birthday-wall/backend/internal/service"
	"birthday-wall/backend/pkg/config"
	"birthday-wall/backend/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Server.Env = "test"
	cfg.Server.Version = "test"
	cfg.Server.PublicBaseURL = "http://wall.test"
	cfg.Storage.Backend = config.BackendMemory
	cfg.Storage.MessagesKey = "birthday-messages.json"
	cfg.Storage.ImagePrefix = "birthday-images/"
	cfg.Cache.Enabled = true
	cfg.Cache.TTL = time.Minute
	cfg.Cache.MaxSize = 4
	cfg.JWT.Expiry = time.Hour
	cfg.Security.RateLimit = 5
	cfg.Security.RateLimitBurst = 10
	cfg.Security.AllowedOrigins = []string{"*"}
	return cfg
}

func TestNewWithMemoryBackend(t *testing.T) {
	ctx := context.Background()
	c, err := New(ctx, memoryConfig(), logger.Discard())
	require.NoError(t, err)
	defer c.Close(ctx)

	require.NotNil(t, c.Cache)
	require.NotNil(t, c.JWTService, "a random secret is used when none is configured")

	m, obj, err := c.MessageService.Append(ctx, service.NewMessage{Name: "Ann", Message: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "http://wall.test/blobs/birthday-messages.json", obj.URL)
	assert.NotEmpty(t, m.ID)
	assert.Equal(t, 1, c.MessageService.Count(ctx))

	c.Health.RunChecks(ctx)
	assert.True(t, c.Health.IsSystemHealthy())
	names := []string{}
	for _, comp := range c.Health.GetStatus() {
		names = append(names, comp.Name)
	}
	assert.ElementsMatch(t, []string{"blob_breaker", "blob_store", "self"}, names)
}

func TestNewLoadsRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("test_senders: [\"Test User\"]\n"), 0o600))

	cfg := memoryConfig()
	cfg.Reconcile.RulesPath = path
	c, err := New(context.Background(), cfg, logger.Discard())
	require.NoError(t, err)
	defer c.Close(context.Background())

	assert.Equal(t, []string{"Test User"}, c.MessageService.Rules().TestSenders)
}

func TestNewRejectsBadRules(t *testing.T) {
	cfg := memoryConfig()
	cfg.Reconcile.RulesPath = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := New(context.Background(), cfg, logger.Discard())
	assert.Error(t, err)
}
