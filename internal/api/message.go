package api

import (
	stderrors "errors"
	"net/http"

	"birthday-wall/backend/internal/models"
	"birthday-wall/backend/internal/reconcile"
	"birthday-wall/backend/internal/service"
	"birthday-wall/backend/pkg/errors"

	"github.com/gin-gonic/gin"
)

// MessageController serves the message wall and its admin operations
type MessageController struct {
	messages *service.MessageService
}

// NewMessageController creates a new message controller
func NewMessageController(messages *service.MessageService) *MessageController {
	return &MessageController{messages: messages}
}

// RegisterRoutes registers the message routes. admin guards the routes that
// replace the collection.
func (mc *MessageController) RegisterRoutes(r gin.IRouter, admin gin.HandlerFunc) {
	r.GET("/messages", mc.List)
	r.POST("/messages", mc.Create)

	r.POST("/restore", admin, mc.Restore)
	r.POST("/direct-restore", admin, mc.Restore)
	r.POST("/batch-restore", admin, mc.BatchRestore)
	r.POST("/reset-messages", admin, mc.Reset)
	r.POST("/reconcile", admin, mc.Reconcile)
}

// List returns the collection as a bare array
func (mc *MessageController) List(c *gin.Context) {
	msgs, err := mc.messages.List(c.Request.Context())
	if err != nil {
		c.Error(storeError(err, "Failed to read messages"))
		return
	}
	c.JSON(http.StatusOK, msgs)
}

// Create appends a visitor's message
func (mc *MessageController) Create(c *gin.Context) {
	var req service.NewMessage
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(invalidRequest(err))
		return
	}

	msg, obj, err := mc.messages.Append(c.Request.Context(), req)
	if err != nil {
		if stderrors.Is(err, service.ErrInvalidMessage) {
			c.Error(errors.NewBadRequestError("MISSING_FIELDS", "Name and message are required"))
			return
		}
		c.Error(storeError(err, "Failed to save message"))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": msg,
		"blobUrl": obj.URL,
	})
}

type restoreRequest struct {
	Messages []models.Message `json:"messages"`
}

func bindRestore(c *gin.Context) ([]models.Message, bool) {
	var req restoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(invalidRequest(err))
		return nil, false
	}
	if req.Messages == nil {
		c.Error(errors.NewBadRequestError("INVALID_MESSAGES", "Invalid messages array"))
		return nil, false
	}
	return req.Messages, true
}

// Restore replaces the whole collection with the posted messages as they are
func (mc *MessageController) Restore(c *gin.Context) {
	msgs, ok := bindRestore(c)
	if !ok {
		return
	}

	obj, err := mc.messages.Replace(c.Request.Context(), msgs, "restore")
	if err != nil {
		c.Error(storeError(err, "Failed to restore messages"))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"restoredCount": len(msgs),
		"blobUrl":       obj.URL,
	})
}

// BatchRestore rebuilds the collection from an export, moving inline
// pictures into their own blobs
func (mc *MessageController) BatchRestore(c *gin.Context) {
	msgs, ok := bindRestore(c)
	if !ok {
		return
	}

	restored, obj, err := mc.messages.BatchRestore(c.Request.Context(), msgs)
	if err != nil {
		c.Error(storeError(err, "Failed to restore messages"))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"restoredCount": len(restored),
		"blobUrl":       obj.URL,
	})
}

// Reset empties the collection
func (mc *MessageController) Reset(c *gin.Context) {
	obj, err := mc.messages.Reset(c.Request.Context())
	if err != nil {
		c.Error(storeError(err, "Failed to reset messages"))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"message":      "Messages reset successfully",
		"messageCount": 0,
		"blobUrl":      obj.URL,
	})
}

type reconcileRequest struct {
	Sources     []reconcile.Source `json:"sources"`
	IncludeLive bool               `json:"includeLive"`
	Rules       *reconcile.Rules   `json:"rules"`
	Apply       bool               `json:"apply"`
}

// Reconcile merges the posted sources (and optionally the live collection)
// and returns the result. With apply set the result replaces the collection.
func (mc *MessageController) Reconcile(c *gin.Context) {
	var req reconcileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(invalidRequest(err))
		return
	}
	if len(req.Sources) == 0 && !req.IncludeLive {
		c.Error(errors.NewBadRequestError("NO_SOURCES", "At least one source or includeLive is required"))
		return
	}

	result, err := mc.messages.Reconcile(c.Request.Context(), service.ReconcileRequest{
		Sources:     req.Sources,
		IncludeLive: req.IncludeLive,
		Rules:       req.Rules,
		Apply:       req.Apply,
	})
	if err != nil {
		c.Error(storeError(err, "Failed to reconcile messages"))
		return
	}

	resp := gin.H{
		"success":  true,
		"messages": result.Messages,
		"report":   result.Report,
		"applied":  result.Applied,
	}
	if result.Object != nil {
		resp["blobUrl"] = result.Object.URL
	}
	c.JSON(http.StatusOK, resp)
}
