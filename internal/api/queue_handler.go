package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"fieldsync/internal/middleware"
	"fieldsync/internal/model"

	"github.com/gin-gonic/gin"
)

// QueueService is the slice of the engine the UI layer consumes.
type QueueService interface {
	Enqueue(payload model.Payload, ownerID, localAttachmentPath string) string
	GetQueue() []*model.QueueItem
	GetPendingCount() int
	GetFailedCount() int
	IsPendingSync(id string) bool
	RetryItem(id string)
	RetryAllFailed()
	RemoveItem(id string)
	TriggerSync()
}

type QueueHandler struct {
	service QueueService
}

func NewQueueHandler(service QueueService) *QueueHandler {
	return &QueueHandler{service: service}
}

type enqueueRequest struct {
	Kind           model.Kind      `json:"kind" binding:"required"`
	Payload        json.RawMessage `json:"payload" binding:"required"`
	AttachmentPath string          `json:"attachmentPath"`
}

func (h *QueueHandler) Enqueue(c *gin.Context) {
	var r enqueueRequest
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "JSON format error"})
		return
	}

	payload, err := model.DecodePayload(r.Kind, r.Payload)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if r.AttachmentPath != "" {
		if _, ok := payload.(model.AttachmentCarrier); !ok {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": fmt.Sprintf("kind %q does not accept attachments", r.Kind),
			})
			return
		}
	}

	id := h.service.Enqueue(payload, middleware.OwnerID(c), r.AttachmentPath)
	c.JSON(http.StatusAccepted, gin.H{"id": id})
}

func (h *QueueHandler) GetQueue(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.GetQueue())
}

func (h *QueueHandler) GetCounts(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"pending": h.service.GetPendingCount(),
		"failed":  h.service.GetFailedCount(),
	})
}

func (h *QueueHandler) GetSyncStatus(c *gin.Context) {
	id := c.Param("id")
	c.JSON(http.StatusOK, gin.H{"id": id, "pendingSync": h.service.IsPendingSync(id)})
}

func (h *QueueHandler) RetryItem(c *gin.Context) {
	h.service.RetryItem(c.Param("id"))
	c.Status(http.StatusNoContent)
}

func (h *QueueHandler) RetryAllFailed(c *gin.Context) {
	h.service.RetryAllFailed()
	c.Status(http.StatusNoContent)
}

func (h *QueueHandler) RemoveItem(c *gin.Context) {
	h.service.RemoveItem(c.Param("id"))
	c.Status(http.StatusNoContent)
}

func (h *QueueHandler) TriggerSync(c *gin.Context) {
	h.service.TriggerSync()
	c.Status(http.StatusAccepted)
}

func (h *QueueHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
