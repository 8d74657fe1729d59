package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"birthday-wall/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestCriticalComponentDrivesHealth(t *testing.T) {
	c := NewChecker(logger.Discard(), 0, "test")
	var pingErr error
	c.RegisterPing("blob_store", func(context.Context) error { return pingErr })
	c.Register("optional", false, func(context.Context) (Status, string, error) {
		return StatusDown, "always down", errors.New("nope")
	})

	// unchecked critical components count as down
	assert.False(t, c.IsSystemHealthy())

	c.RunChecks(context.Background())
	assert.True(t, c.IsSystemHealthy(), "non-critical failures do not matter")

	pingErr = errors.New("connection refused")
	c.RunChecks(context.Background())
	assert.False(t, c.IsSystemHealthy())

	var blob Component
	for _, comp := range c.GetStatus() {
		if comp.Name == "blob_store" {
			blob = comp
		}
	}
	assert.Equal(t, StatusDown, blob.Status)
	assert.Equal(t, "connection refused", blob.Error)
}

func TestHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c := NewChecker(logger.Discard(), 0, "1.2.3")
	c.RegisterPing("blob_store", func(context.Context) error { return nil })
	c.RunChecks(context.Background())

	r := gin.New()
	r.GET("/health", c.Handler())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Status     string      `json:"status"`
		Version    string      `json:"version"`
		Components []Component `json:"components"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "1.2.3", body.Version)
	assert.Len(t, body.Components, 2)
}

func TestGRPCServerMirrorsChecker(t *testing.T) {
	c := NewChecker(logger.Discard(), 0, "test")
	var pingErr error
	c.RegisterPing("blob_store", func(context.Context) error { return pingErr })

	g := NewGRPCServer(c)
	status := func() healthpb.HealthCheckResponse_ServingStatus {
		resp, err := g.health.Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
		require.NoError(t, err)
		return resp.Status
	}

	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status())

	c.RunChecks(context.Background())
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status())

	pingErr = errors.New("down")
	c.RunChecks(context.Background())
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status())
}
