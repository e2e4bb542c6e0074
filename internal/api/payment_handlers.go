package api

import (
	"net/http"

	"agromarket/internal/apperr"
	"agromarket/internal/models"
	"agromarket/internal/store"

	"github.com/gin-gonic/gin"
)

type payRequest struct {
	Gateway string `json:"payment_gateway" binding:"required"`
}

// payOrder starts a payment session for a pending order
func (h *Handler) payOrder(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	var req payRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	resp, err := h.payments.Pay(c.Request.Context(), id, req.Gateway, actor(c))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// paymentWebhook receives asynchronous gateway notifications. The raw body
// is read untouched because signatures cover the exact bytes sent.
func (h *Handler) paymentWebhook(c *gin.Context) {
	gatewayName := c.Param("gateway")
	if gatewayName == "" {
		gatewayName = c.Query("gateway")
	}
	if gatewayName == "" {
		// callbacks registered without a gateway segment identify the
		// provider by their signature header
		switch {
		case c.GetHeader("Stripe-Signature") != "":
			gatewayName = models.GatewayStripe
		case c.GetHeader("X-Callback-Signature") != "":
			gatewayName = models.GatewayXendit
		default:
			gatewayName = models.GatewayMidtrans
		}
	}

	payload, err := c.GetRawData()
	if err != nil {
		h.respondError(c, apperr.Wrap(apperr.Validation, err, "unable to read webhook body"))
		return
	}

	var signature string
	switch gatewayName {
	case models.GatewayXendit:
		signature = c.GetHeader("X-Callback-Signature")
	case models.GatewayStripe:
		signature = c.GetHeader("Stripe-Signature")
	}

	if err := h.webhooks.Handle(c.Request.Context(), gatewayName, payload, signature); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "ok"})
}

// listTransactions returns a page of transactions (admin)
func (h *Handler) listTransactions(c *gin.Context) {
	limit, offset := pageParams(c)

	f := store.TransactionFilter{
		PaymentStatus: c.Query("payment_status"),
		Limit:         limit,
		Offset:        offset,
	}

	txs, total, err := h.store.ListTransactions(c.Request.Context(), f)
	if err != nil {
		h.respondError(c, err)
		return
	}

	data := make([]models.TransactionResponse, 0, len(txs))
	for i := range txs {
		data = append(data, models.NewTransactionResponse(&txs[i]))
	}
	c.JSON(http.StatusOK, models.ListResponse{
		Data:       data,
		Pagination: models.Pagination{Total: total, Limit: limit, Offset: offset},
	})
}

// getTransaction returns a single transaction (admin)
func (h *Handler) getTransaction(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	tx, err := h.store.GetTransaction(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": models.NewTransactionResponse(tx)})
}

type transactionStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// updateTransactionStatus lets an admin settle a transaction manually, for
// gateway outages or bank-transfer confirmations. It runs through the same
// guarded paths as webhooks.
func (h *Handler) updateTransactionStatus(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	var req transactionStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	var tx *models.Transaction
	switch req.Status {
	case models.PaymentStatusPaid:
		tx, err = h.payments.MarkPaid(c.Request.Context(), id, "manual")
	case models.PaymentStatusFailed:
		tx, err = h.payments.MarkFailed(c.Request.Context(), id, true)
	default:
		err = apperr.New(apperr.Validation, "status must be paid or failed")
	}
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": models.NewTransactionResponse(tx)})
}
