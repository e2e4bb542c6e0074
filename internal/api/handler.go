// Package api wires the HTTP surface: routing, auth middleware, and the
// translation of typed errors into status codes.
package api

import (
	"net/http"
	"strconv"
	"time"

	"agromarket/config"
	"agromarket/internal/apperr"
	"agromarket/internal/auth"
	"agromarket/internal/models"
	"agromarket/internal/order"
	"agromarket/internal/payment"
	"agromarket/internal/store"
	"agromarket/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Handler contains HTTP handlers
type Handler struct {
	store    *store.Store
	orders   *order.Service
	payments *payment.Manager
	webhooks *payment.Engine
	auth     *auth.Service
	authCfg  config.AuthConfig
	logger   *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	st *store.Store,
	orders *order.Service,
	payments *payment.Manager,
	webhooks *payment.Engine,
	authSvc *auth.Service,
	authCfg config.AuthConfig,
) *Handler {
	return &Handler{
		store:    st,
		orders:   orders,
		payments: payments,
		webhooks: webhooks,
		auth:     authSvc,
		authCfg:  authCfg,
		logger:   util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")

	authGroup := v1.Group("/auth")
	{
		authGroup.POST("/register", h.register)
		authGroup.POST("/login", h.login)
		authGroup.POST("/otp/request", h.requestOTP)
		authGroup.POST("/otp/verify", h.verifyOTP)
	}

	// gateways call back unauthenticated; the signature is the credential
	v1.POST("/payments/webhook", h.paymentWebhook)
	v1.POST("/payments/webhook/:gateway", h.paymentWebhook)

	secured := v1.Group("")
	secured.Use(h.authMiddleware())
	{
		secured.GET("/users/me", h.currentUser)

		secured.GET("/products", h.listProducts)
		secured.GET("/products/:id", h.getProduct)
		secured.POST("/products", requireRoles(models.RoleFarmer), h.createProduct)
		secured.PUT("/products/:id", requireRoles(models.RoleFarmer, models.RoleAdmin), h.updateProduct)
		secured.DELETE("/products/:id", requireRoles(models.RoleFarmer, models.RoleAdmin), h.deleteProduct)

		secured.POST("/orders", requireRoles(models.RoleRetailer, models.RoleAdmin), h.createOrder)
		secured.GET("/orders", h.listOrders)
		secured.GET("/orders/:id", h.getOrder)
		secured.PATCH("/orders/:id/status", h.updateOrderStatus)
		secured.PATCH("/orders/:id", h.updateOrderQuantity)
		secured.POST("/orders/:id/pay", requireRoles(models.RoleRetailer, models.RoleAdmin), h.payOrder)

		secured.GET("/notifications", h.listNotifications)
		secured.PATCH("/notifications/:id/read", h.markNotificationRead)

		admin := secured.Group("", requireRoles(models.RoleAdmin))
		{
			admin.GET("/transactions", h.listTransactions)
			admin.GET("/transactions/:id", h.getTransaction)
			admin.PATCH("/transactions/:id/status", h.updateTransactionStatus)

			admin.PATCH("/users/:id/verify", h.verifyUser)
			admin.PATCH("/users/:id/activate", h.activateUser)
			admin.DELETE("/users/:id", h.deleteUser)

			admin.GET("/reports/summary", h.marketSummary)
		}
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	if err := h.store.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"time":   time.Now().Unix(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// respondError renders a typed error; unexpected causes are logged and
// masked.
func (h *Handler) respondError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	c.JSON(status, gin.H{"error": apperr.Message(err)})
}

func pathID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.New(apperr.Validation, "invalid id in path")
	}
	return id, nil
}

// pageParams reads limit/offset query values with sane bounds.
func pageParams(c *gin.Context) (int, int) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
