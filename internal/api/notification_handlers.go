package api

import (
	"net/http"

	"agromarket/internal/models"

	"github.com/gin-gonic/gin"
)

// listNotifications returns the caller's notifications, newest first
func (h *Handler) listNotifications(c *gin.Context) {
	limit, offset := pageParams(c)
	userID := c.GetInt64(ctxUserID)

	notifications, total, err := h.store.ListNotifications(c.Request.Context(), userID, limit, offset)
	if err != nil {
		h.respondError(c, err)
		return
	}

	data := make([]models.NotificationResponse, 0, len(notifications))
	for i := range notifications {
		data = append(data, models.NewNotificationResponse(&notifications[i]))
	}
	c.JSON(http.StatusOK, models.ListResponse{
		Data:       data,
		Pagination: models.Pagination{Total: total, Limit: limit, Offset: offset},
	})
}

// markNotificationRead marks one of the caller's notifications as read
func (h *Handler) markNotificationRead(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	if err := h.store.MarkNotificationRead(c.Request.Context(), id, c.GetInt64(ctxUserID)); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "notification marked read"})
}
