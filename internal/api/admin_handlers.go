package api

import (
	"net/http"

	"agromarket/internal/models"

	"github.com/gin-gonic/gin"
)

type userFlagRequest struct {
	Value *bool `json:"value" binding:"required"`
}

// verifyUser approves or revokes a user's verification (admin)
func (h *Handler) verifyUser(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	var req userFlagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	if err := h.store.SetUserVerified(c.Request.Context(), id, *req.Value); err != nil {
		h.respondError(c, err)
		return
	}

	user, err := h.store.GetUserByID(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": models.NewUserResponse(user)})
}

// activateUser enables or disables an account (admin)
func (h *Handler) activateUser(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	var req userFlagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	if err := h.store.SetUserActive(c.Request.Context(), id, *req.Value); err != nil {
		h.respondError(c, err)
		return
	}

	user, err := h.store.GetUserByID(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": models.NewUserResponse(user)})
}

// deleteUser removes an account with no order or product history (admin)
func (h *Handler) deleteUser(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	if err := h.store.DeleteUser(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "user deleted"})
}

// marketSummary returns the aggregated marketplace report (admin)
func (h *Handler) marketSummary(c *gin.Context) {
	summary, err := h.store.GetMarketSummary(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": summary})
}
