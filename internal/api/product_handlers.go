package api

import (
	"net/http"
	"strconv"

	"agromarket/internal/apperr"
	"agromarket/internal/models"
	"agromarket/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type productRequest struct {
	Name        string          `json:"name" binding:"required"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity" binding:"required"`
	Unit        string          `json:"unit" binding:"required"`
	Price       decimal.Decimal `json:"price" binding:"required"`
	ImageURL    string          `json:"image_url"`
}

func (r *productRequest) validate() error {
	if r.Quantity.IsNegative() {
		return apperr.New(apperr.Validation, "quantity cannot be negative")
	}
	if !r.Price.IsPositive() {
		return apperr.New(apperr.Validation, "price must be positive")
	}
	return nil
}

// createProduct handles a farmer listing a new product
func (h *Handler) createProduct(c *gin.Context) {
	var req productRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	if err := req.validate(); err != nil {
		h.respondError(c, err)
		return
	}

	product := &models.Product{
		FarmerID:    c.GetInt64(ctxUserID),
		Name:        req.Name,
		Description: req.Description,
		Quantity:    req.Quantity,
		Unit:        req.Unit,
		Price:       req.Price,
		Status:      models.ProductStatusAvailable,
		ImageURL:    req.ImageURL,
	}
	if err := h.store.CreateProduct(c.Request.Context(), product); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": models.NewProductResponse(product)})
}

// getProduct handles get product by ID
func (h *Handler) getProduct(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	product, err := h.store.GetProduct(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": models.NewProductResponse(product)})
}

// listProducts returns a filtered page of products
func (h *Handler) listProducts(c *gin.Context) {
	limit, offset := pageParams(c)
	farmerID, _ := strconv.ParseInt(c.Query("farmer_id"), 10, 64)

	f := store.ProductFilter{
		FarmerID: farmerID,
		Status:   c.Query("status"),
		Limit:    limit,
		Offset:   offset,
	}

	products, total, err := h.store.ListProducts(c.Request.Context(), f)
	if err != nil {
		h.respondError(c, err)
		return
	}

	data := make([]models.ProductResponse, 0, len(products))
	for i := range products {
		data = append(data, models.NewProductResponse(&products[i]))
	}
	c.JSON(http.StatusOK, models.ListResponse{
		Data:       data,
		Pagination: models.Pagination{Total: total, Limit: limit, Offset: offset},
	})
}

// updateProduct handles editing a listing. Farmers can only touch their own.
func (h *Handler) updateProduct(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	var req productRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	if err := req.validate(); err != nil {
		h.respondError(c, err)
		return
	}

	product, err := h.store.GetProduct(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if err := h.requireProductOwner(c, product); err != nil {
		h.respondError(c, err)
		return
	}

	product.Name = req.Name
	product.Description = req.Description
	product.Quantity = req.Quantity
	product.Unit = req.Unit
	product.Price = req.Price
	product.ImageURL = req.ImageURL
	if product.Quantity.IsPositive() && product.Status != models.ProductStatusAvailable {
		product.Status = models.ProductStatusAvailable
	}

	if err := h.store.UpdateProduct(c.Request.Context(), product); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": models.NewProductResponse(product)})
}

// deleteProduct removes a listing
func (h *Handler) deleteProduct(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	product, err := h.store.GetProduct(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if err := h.requireProductOwner(c, product); err != nil {
		h.respondError(c, err)
		return
	}

	if err := h.store.DeleteProduct(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "product deleted"})
}

func (h *Handler) requireProductOwner(c *gin.Context, product *models.Product) error {
	a := actor(c)
	if a.Role == models.RoleAdmin {
		return nil
	}
	if product.FarmerID != a.ID {
		return apperr.New(apperr.Authorization, "not allowed to modify product %d", product.ID)
	}
	return nil
}
