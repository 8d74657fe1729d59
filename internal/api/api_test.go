package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"birthday-wall/backend/internal/models"
	"birthday-wall/backend/internal/service"
	"birthday-wall/backend/pkg/blob"
	"birthday-wall/backend/pkg/errors"
	"birthday-wall/backend/pkg/imaging"
	"birthday-wall/backend/pkg/jwt"
	"birthday-wall/backend/pkg/logger"
	"birthday-wall/backend/pkg/middleware"
	"birthday-wall/backend/pkg/resilience"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const baseURL = "http://wall.test"

type testServer struct {
	engine *gin.Engine
	store  *blob.MemoryStore
	tokens *jwt.Service
}

func newTestServer(t *testing.T, passwordHash string) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := blob.NewMemoryStore(blob.NewURLs(baseURL))
	images := service.NewImageService(store, service.ImageServiceConfig{Prefix: "birthday-images/", MaxBytes: 1 << 20}, nil, logger.Discard())
	messages := service.NewMessageService(store, images, service.MessageServiceOptions{}, logger.Discard())

	tokens, err := jwt.NewService("test-secret", time.Hour)
	require.NoError(t, err)

	r := gin.New()
	r.Use(errors.ErrorHandler())
	group := r.Group("/api")
	NewMessageController(messages).RegisterRoutes(group, middleware.RequireRole(tokens, jwt.RoleAdmin))
	imageController := NewImageController(images, messages)
	imageController.RegisterRoutes(group)
	imageController.RegisterBlobRoutes(r)
	NewAuthHandler("admin", passwordHash, tokens, logger.Discard()).RegisterRoutes(group)

	return &testServer{engine: r, store: store, tokens: tokens}
}

func (s *testServer) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func (s *testServer) adminToken(t *testing.T) string {
	t.Helper()
	token, _, err := s.tokens.Issue("admin", jwt.RoleAdmin)
	require.NoError(t, err)
	return token
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func pngDataURL(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{255, 0, 0, 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return imaging.EncodeDataURL("image/png", buf.Bytes())
}

func TestListMessagesEmpty(t *testing.T) {
	s := newTestServer(t, "")

	w := s.do(t, http.MethodGet, "/api/messages", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
}

func TestCreateMessage(t *testing.T) {
	s := newTestServer(t, "")

	w := s.do(t, http.MethodPost, "/api/messages", gin.H{"name": "Ann", "message": "Happy birthday!"}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decodeBody(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, baseURL+"/blobs/birthday-messages.json", body["blobUrl"])
	msg := body["message"].(map[string]any)
	assert.Equal(t, "Ann", msg["name"])
	assert.NotEmpty(t, msg["id"])
	assert.NotEmpty(t, msg["timestamp"])

	w = s.do(t, http.MethodGet, "/api/messages", nil, "")
	var msgs []models.Message
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &msgs))
	require.Len(t, msgs, 1)
	assert.Equal(t, "Happy birthday!", msgs[0].Body)
}

func TestCreateMessageValidation(t *testing.T) {
	s := newTestServer(t, "")

	w := s.do(t, http.MethodPost, "/api/messages", gin.H{"name": "  ", "message": "hi"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "MISSING_FIELDS", body["code"])

	req := httptest.NewRequest(http.MethodPost, "/api/messages", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_REQUEST", decodeBody(t, rec)["code"])
}

func TestAdminRoutesRequireToken(t *testing.T) {
	s := newTestServer(t, "")

	for _, path := range []string{"/api/restore", "/api/direct-restore", "/api/batch-restore", "/api/reset-messages", "/api/reconcile"} {
		w := s.do(t, http.MethodPost, path, gin.H{"messages": []any{}}, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}

	viewer, _, err := s.tokens.Issue("someone", jwt.RoleViewer)
	require.NoError(t, err)
	w := s.do(t, http.MethodPost, "/api/reset-messages", nil, viewer)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRestoreReplacesCollection(t *testing.T) {
	s := newTestServer(t, "")
	token := s.adminToken(t)

	s.do(t, http.MethodPost, "/api/messages", gin.H{"name": "Old", "message": "gone"}, "")

	w := s.do(t, http.MethodPost, "/api/direct-restore", gin.H{"messages": []gin.H{
		{"name": "Ann", "message": "one", "id": 1718366400000},
		{"name": "Bob", "message": "two", "id": "b"},
	}}, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decodeBody(t, w)
	assert.Equal(t, float64(2), body["restoredCount"])

	w = s.do(t, http.MethodGet, "/api/messages", nil, "")
	var msgs []models.Message
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &msgs))
	require.Len(t, msgs, 2)
	assert.Equal(t, models.Identity("1718366400000"), msgs[0].ID)
	assert.Equal(t, "Bob", msgs[1].Name)
}

func TestRestoreRejectsMissingArray(t *testing.T) {
	s := newTestServer(t, "")

	w := s.do(t, http.MethodPost, "/api/restore", gin.H{"other": true}, s.adminToken(t))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_MESSAGES", decodeBody(t, w)["code"])
}

func TestBatchRestoreExternalizesImages(t *testing.T) {
	s := newTestServer(t, "")

	w := s.do(t, http.MethodPost, "/api/batch-restore", gin.H{"messages": []gin.H{
		{"name": "Ann", "message": "with picture", "image": pngDataURL(t), "originalTimestamp": "2024-06-01T10:00:00.000Z"},
		{"name": "Bob", "message": "plain"},
	}}, s.adminToken(t))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(2), decodeBody(t, w)["restoredCount"])

	w = s.do(t, http.MethodGet, "/api/messages", nil, "")
	var msgs []models.Message
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &msgs))
	require.Len(t, msgs, 2)
	assert.Empty(t, msgs[0].Image)
	assert.True(t, strings.HasPrefix(msgs[0].ImageURL, baseURL+"/blobs/image-"), msgs[0].ImageURL)
	assert.Equal(t, "2024-06-01T10:00:00.000Z", msgs[0].Timestamp)
	assert.Equal(t, 1, msgs[0].Index)
	assert.Equal(t, 2, msgs[1].Index)
}

func TestResetMessages(t *testing.T) {
	s := newTestServer(t, "")
	s.do(t, http.MethodPost, "/api/messages", gin.H{"name": "Ann", "message": "hi"}, "")

	w := s.do(t, http.MethodPost, "/api/reset-messages", nil, s.adminToken(t))
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, float64(0), body["messageCount"])

	w = s.do(t, http.MethodGet, "/api/messages", nil, "")
	assert.JSONEq(t, "[]", w.Body.String())
}

func TestReconcileDryRunAndApply(t *testing.T) {
	s := newTestServer(t, "")
	token := s.adminToken(t)
	s.do(t, http.MethodPost, "/api/messages", gin.H{"name": "Chris", "message": "Happy birthday Sam"}, "")

	req := gin.H{
		"includeLive": true,
		"sources": []gin.H{{
			"name": "backup",
			"messages": []gin.H{
				{"name": "Chris", "message": "Happy&nbsp;birthday Sam", "timestamp": "2024-06-01T10:00:00.000Z"},
				{"name": "Dana", "message": "Many happy returns", "timestamp": "2024-06-02T10:00:00.000Z"},
			},
		}},
	}

	w := s.do(t, http.MethodPost, "/api/reconcile", req, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decodeBody(t, w)
	assert.Equal(t, false, body["applied"])
	assert.NotContains(t, body, "blobUrl")
	assert.Len(t, body["messages"], 2)

	w = s.do(t, http.MethodGet, "/api/messages", nil, "")
	var live []models.Message
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &live))
	assert.Len(t, live, 1, "dry run must not write")

	req["apply"] = true
	w = s.do(t, http.MethodPost, "/api/reconcile", req, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body = decodeBody(t, w)
	assert.Equal(t, true, body["applied"])
	assert.Equal(t, baseURL+"/blobs/birthday-messages.json", body["blobUrl"])

	w = s.do(t, http.MethodGet, "/api/messages", nil, "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &live))
	assert.Len(t, live, 2)
}

func TestReconcileNeedsSources(t *testing.T) {
	s := newTestServer(t, "")

	w := s.do(t, http.MethodPost, "/api/reconcile", gin.H{}, s.adminToken(t))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "NO_SOURCES", decodeBody(t, w)["code"])
}

func TestUploadAndServeImage(t *testing.T) {
	s := newTestServer(t, "")

	w := s.do(t, http.MethodPost, "/api/upload-image", gin.H{"imageData": pngDataURL(t), "fileName": "cake.png"}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decodeBody(t, w)
	assert.Equal(t, true, body["success"])
	fileName := body["fileName"].(string)
	assert.True(t, strings.HasPrefix(fileName, "birthday-images/"), fileName)
	assert.True(t, strings.HasSuffix(fileName, "-cake.png"), fileName)

	imageURL := body["imageUrl"].(string)
	w = s.do(t, http.MethodGet, strings.TrimPrefix(imageURL, baseURL), nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, "public, max-age=60", w.Header().Get("Cache-Control"))
}

func TestUploadImageErrors(t *testing.T) {
	s := newTestServer(t, "")

	w := s.do(t, http.MethodPost, "/api/upload-image", gin.H{"fileName": "x.png"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "NO_IMAGE_DATA", decodeBody(t, w)["code"])

	w = s.do(t, http.MethodPost, "/api/upload-image", gin.H{"imageData": "not a data url"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_IMAGE", decodeBody(t, w)["code"])
}

func TestServeBlobHidesPrivateAndMissing(t *testing.T) {
	s := newTestServer(t, "")
	_, err := s.store.Put(context.Background(), "private.json", []byte("{}"), blob.PutOptions{ContentType: "application/json"})
	require.NoError(t, err)

	for _, path := range []string{"/blobs/private.json", "/blobs/missing.png"} {
		w := s.do(t, http.MethodGet, path, nil, "")
		assert.Equal(t, http.StatusNotFound, w.Code, path)
		assert.Equal(t, "BLOB_NOT_FOUND", decodeBody(t, w)["code"])
	}
}

func TestImageStats(t *testing.T) {
	s := newTestServer(t, "")
	s.do(t, http.MethodPost, "/api/messages", gin.H{"name": "Ann", "message": "hi", "image": pngDataURL(t)}, "")
	s.do(t, http.MethodPost, "/api/messages", gin.H{"name": "Bob", "message": "hey"}, "")

	for _, path := range []string{"/api/images/stats", "/api/test-images"} {
		w := s.do(t, http.MethodGet, path, nil, "")
		require.Equal(t, http.StatusOK, w.Code, path)
		body := decodeBody(t, w)
		assert.Equal(t, float64(2), body["totalMessages"])
		assert.Equal(t, float64(1), body["messagesWithImages"])
		info := body["imageInfo"].([]any)
		require.Len(t, info, 1)
		assert.Equal(t, "Ann", info[0].(map[string]any)["name"])
	}
}

func TestAdminLogin(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)
	s := newTestServer(t, string(hash))

	w := s.do(t, http.MethodPost, "/api/admin/login", gin.H{"username": "admin", "password": "hunter2"}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decodeBody(t, w)
	claims, err := s.tokens.Validate(body["token"].(string))
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Subject)
	assert.True(t, claims.HasRole(jwt.RoleAdmin))
	assert.NotEmpty(t, body["expiresAt"])

	tests := []struct {
		name string
		body gin.H
		code int
	}{
		{"wrong password", gin.H{"username": "admin", "password": "nope"}, http.StatusUnauthorized},
		{"wrong user", gin.H{"username": "root", "password": "hunter2"}, http.StatusUnauthorized},
		{"missing password", gin.H{"username": "admin"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, "/api/admin/login", tt.body, "")
			assert.Equal(t, tt.code, w.Code)
		})
	}
}

func TestAdminLoginDisabledWithoutHash(t *testing.T) {
	s := newTestServer(t, "")

	w := s.do(t, http.MethodPost, "/api/admin/login", gin.H{"username": "admin", "password": "x"}, "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "LOGIN_DISABLED", decodeBody(t, w)["code"])
}

func TestStoreErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		code string
		http int
	}{
		{fmt.Errorf("read: %w", resilience.ErrCircuitOpen), "BLOB_STORE_UNAVAILABLE", http.StatusServiceUnavailable},
		{fmt.Errorf("decode: %w", service.ErrCorruptCollection), "CORRUPT_COLLECTION", http.StatusInternalServerError},
		{fmt.Errorf("dial tcp: connection refused"), "BLOB_STORE_ERROR", http.StatusBadGateway},
	}
	for _, tt := range tests {
		appErr := storeError(tt.err, "failed")
		assert.Equal(t, tt.code, appErr.Code)
		assert.Equal(t, tt.http, appErr.StatusCode)
	}

	assert.Equal(t, http.StatusRequestEntityTooLarge, imageError(service.ErrImageTooLarge).StatusCode)
}
