package api

import (
	"net/http"
	"strconv"

	"agromarket/internal/models"
	"agromarket/internal/order"
	"agromarket/internal/store"

	"github.com/gin-gonic/gin"
)

// createOrder handles order creation
func (h *Handler) createOrder(c *gin.Context) {
	var req order.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	o, items, err := h.orders.Create(c.Request.Context(), &req, actor(c))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": models.NewOrderResponse(o, items)})
}

// getOrder handles get order by ID
func (h *Handler) getOrder(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	o, items, err := h.orders.Get(c.Request.Context(), id, actor(c))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": models.NewOrderResponse(o, items)})
}

// listOrders returns the caller's visible orders
func (h *Handler) listOrders(c *gin.Context) {
	limit, offset := pageParams(c)
	retailerID, _ := strconv.ParseInt(c.Query("retailer_id"), 10, 64)
	farmerID, _ := strconv.ParseInt(c.Query("farmer_id"), 10, 64)

	f := store.OrderFilter{
		Status:     c.Query("status"),
		RetailerID: retailerID,
		FarmerID:   farmerID,
		Limit:      limit,
		Offset:     offset,
	}

	orders, total, err := h.orders.List(c.Request.Context(), f, actor(c))
	if err != nil {
		h.respondError(c, err)
		return
	}

	data := make([]models.OrderResponse, 0, len(orders))
	for i := range orders {
		data = append(data, models.NewOrderResponse(&orders[i], nil))
	}
	c.JSON(http.StatusOK, models.ListResponse{
		Data:       data,
		Pagination: models.Pagination{Total: total, Limit: limit, Offset: offset},
	})
}

type orderStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// updateOrderStatus applies a state machine transition on behalf of the
// caller
func (h *Handler) updateOrderStatus(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	var req orderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	o, err := h.orders.UpdateStatus(c.Request.Context(), id, req.Status, actor(c))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": models.NewOrderResponse(o, nil)})
}

type orderQuantityRequest struct {
	Quantity int `json:"quantity" binding:"required,min=1"`
}

// updateOrderQuantity changes a pending order's quantity
func (h *Handler) updateOrderQuantity(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	var req orderQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	o, items, err := h.orders.UpdateQuantity(c.Request.Context(), id, req.Quantity, actor(c))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": models.NewOrderResponse(o, items)})
}
