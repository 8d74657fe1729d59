package api

import (
	stderrors "errors"
	"net/http"
	"strings"

	"birthday-wall/backend/internal/service"
	"birthday-wall/backend/pkg/blob"
	"birthday-wall/backend/pkg/errors"

	"github.com/gin-gonic/gin"
)

// ImageController handles picture uploads, image statistics and blob serving
type ImageController struct {
	images   *service.ImageService
	messages *service.MessageService
}

// NewImageController creates a new image controller
func NewImageController(images *service.ImageService, messages *service.MessageService) *ImageController {
	return &ImageController{images: images, messages: messages}
}

// RegisterRoutes registers the /api image routes
func (ic *ImageController) RegisterRoutes(r gin.IRouter) {
	r.POST("/upload-image", ic.Upload)
	r.GET("/images/stats", ic.Stats)
	r.GET("/test-images", ic.Stats)
}

// RegisterBlobRoutes serves public blobs under /blobs
func (ic *ImageController) RegisterBlobRoutes(r gin.IRouter) {
	r.GET("/blobs/*key", ic.ServeBlob)
}

type uploadRequest struct {
	ImageData string `json:"imageData"`
	FileName  string `json:"fileName"`
}

// Upload stores a data URL picture
func (ic *ImageController) Upload(c *gin.Context) {
	var req uploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(invalidRequest(err))
		return
	}

	up, err := ic.images.Upload(c.Request.Context(), req.ImageData, req.FileName)
	if err != nil {
		c.Error(imageError(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"imageUrl": up.URL,
		"fileName": up.Key,
	})
}

// Stats reports which messages carry pictures
func (ic *ImageController) Stats(c *gin.Context) {
	msgs, err := ic.messages.List(c.Request.Context())
	if err != nil {
		c.Error(storeError(err, "Failed to read messages"))
		return
	}

	stats := service.BuildImageStats(msgs)
	c.JSON(http.StatusOK, gin.H{
		"success":            true,
		"totalMessages":      stats.TotalMessages,
		"messagesWithImages": stats.MessagesWithImages,
		"imageInfo":          stats.ImageInfo,
	})
}

// ServeBlob writes a public blob with its stored content type
func (ic *ImageController) ServeBlob(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("key"), "/")

	data, obj, err := ic.images.FetchPublic(c.Request.Context(), key)
	if err != nil {
		if stderrors.Is(err, blob.ErrNotFound) || stderrors.Is(err, service.ErrNotPublic) {
			c.Error(errors.NewNotFoundError("BLOB_NOT_FOUND", "Blob not found"))
			return
		}
		c.Error(storeError(err, "Failed to read blob"))
		return
	}

	c.Header("Cache-Control", "public, max-age=60")
	c.Data(http.StatusOK, obj.ContentType, data)
}
