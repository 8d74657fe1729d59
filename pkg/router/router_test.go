package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"birthday-wall/backend/pkg/config"
	"birthday-wall/backend/pkg/di"
	"birthday-wall/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Server.Env = "test"
	cfg.Server.Version = "1.2.3"
	cfg.Server.PublicBaseURL = "http://wall.test"
	cfg.Storage.Backend = config.BackendMemory
	cfg.Storage.MessagesKey = "birthday-messages.json"
	cfg.Storage.ImagePrefix = "birthday-images/"
	cfg.JWT.Secret = "router-test"
	cfg.JWT.Expiry = time.Hour
	cfg.Admin.Username = "admin"
	cfg.Security.RateLimit = 100
	cfg.Security.RateLimitBurst = 100
	cfg.Security.AllowedOrigins = []string{"https://wall.example.com"}
	cfg.Security.MaxBodySize = 1 << 20
	return cfg
}

func newRouter(t *testing.T, schemaPath string) *Router {
	t.Helper()
	gin.SetMode(gin.TestMode)

	c, err := di.New(context.Background(), testConfig(), logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close(context.Background()) })

	r := New(c)
	if schemaPath != "" {
		r.AddOpenAPIValidation(schemaPath)
	}
	r.SetupRoutes()
	return r
}

func serve(r *Router, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.Engine.ServeHTTP(w, req)
	return w
}

func TestHealthRoutes(t *testing.T) {
	r := newRouter(t, "")
	r.Container.Health.RunChecks(context.Background())

	for _, path := range []string{"/health", "/api/health"} {
		w := serve(r, http.MethodGet, path, "", nil)
		require.Equal(t, http.StatusOK, w.Code, path)

		var body map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "ok", body["status"])
		assert.Equal(t, "1.2.3", body["version"])
	}
}

func TestMessageFlowAndMetrics(t *testing.T) {
	r := newRouter(t, "")

	w := serve(r, http.MethodPost, "/api/messages", `{"name":"Ann","message":"Happy birthday"}`, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = serve(r, http.MethodGet, "/api/messages", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Happy birthday")

	w = serve(r, http.MethodGet, "/blobs/birthday-messages.json", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))

	w = serve(r, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "wall_messages_submitted")
}

func TestAdminRouteNeedsToken(t *testing.T) {
	r := newRouter(t, "")

	w := serve(r, http.MethodPost, "/api/reset-messages", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, _, err := r.Container.JWTService.Issue("ops", "admin")
	require.NoError(t, err)
	w = serve(r, http.MethodPost, "/api/reset-messages", "", map[string]string{"Authorization": "Bearer " + token})
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestUnknownRouteAndMethod(t *testing.T) {
	r := newRouter(t, "")

	w := serve(r, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "NOT_FOUND")

	w = serve(r, http.MethodDelete, "/api/messages", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestCORS(t *testing.T) {
	r := newRouter(t, "")

	w := serve(r, http.MethodOptions, "/api/messages", "", map[string]string{"Origin": "https://wall.example.com"})
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://wall.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	w = serve(r, http.MethodGet, "/api/messages", "", map[string]string{"Origin": "https://evil.example.com"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestOpenAPIValidation(t *testing.T) {
	r := newRouter(t, "../../api/openapi.yaml")

	w := serve(r, http.MethodPost, "/api/messages", `{"name":"Ann"}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "SCHEMA_VIOLATION")

	w = serve(r, http.MethodGet, "/api/docs/openapi.yaml", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Birthday Wall API")
}

func TestMissingSchemaIsSkipped(t *testing.T) {
	r := newRouter(t, "does-not-exist.yaml")

	w := serve(r, http.MethodPost, "/api/messages", `{"name":"Ann"}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "MISSING_FIELDS")
}
