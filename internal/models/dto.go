package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Response DTOs decouple the wire format from the storage rows.

type UserResponse struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Phone      string    `json:"phone"`
	Role       string    `json:"role"`
	IsVerified bool      `json:"is_verified"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
}

func NewUserResponse(u *User) UserResponse {
	return UserResponse{
		ID:         u.ID,
		Name:       u.Name,
		Email:      u.Email,
		Phone:      u.Phone,
		Role:       u.Role,
		IsVerified: u.IsVerified,
		IsActive:   u.IsActive,
		CreatedAt:  u.CreatedAt,
	}
}

type ProductResponse struct {
	ID          int64           `json:"id"`
	FarmerID    int64           `json:"farmer_id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	Unit        string          `json:"unit"`
	Price       decimal.Decimal `json:"price"`
	Status      string          `json:"status"`
	ImageURL    string          `json:"image_url,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

func NewProductResponse(p *Product) ProductResponse {
	return ProductResponse{
		ID:          p.ID,
		FarmerID:    p.FarmerID,
		Name:        p.Name,
		Description: p.Description,
		Quantity:    p.Quantity,
		Unit:        p.Unit,
		Price:       p.Price,
		Status:      p.Status,
		ImageURL:    p.ImageURL,
		CreatedAt:   p.CreatedAt,
	}
}

type OrderItemResponse struct {
	ID         int64           `json:"id"`
	ProductID  int64           `json:"product_id"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	TotalPrice decimal.Decimal `json:"total_price"`
}

type OrderResponse struct {
	ID              int64               `json:"id"`
	RetailerID      int64               `json:"retailer_id"`
	TotalAmount     decimal.Decimal     `json:"total_amount"`
	Status          string              `json:"status"`
	DeliveryAddress string              `json:"delivery_address"`
	Notes           string              `json:"notes,omitempty"`
	OrderedAt       time.Time           `json:"ordered_at"`
	ConfirmedAt     *time.Time          `json:"confirmed_at,omitempty"`
	DeliveredAt     *time.Time          `json:"delivered_at,omitempty"`
	CompletedAt     *time.Time          `json:"completed_at,omitempty"`
	Items           []OrderItemResponse `json:"items,omitempty"`
}

func NewOrderResponse(o *Order, items []OrderItem) OrderResponse {
	resp := OrderResponse{
		ID:              o.ID,
		RetailerID:      o.RetailerID,
		TotalAmount:     o.TotalAmount,
		Status:          o.Status,
		DeliveryAddress: o.DeliveryAddress,
		Notes:           o.Notes,
		OrderedAt:       o.OrderedAt,
		ConfirmedAt:     o.ConfirmedAt,
		DeliveredAt:     o.DeliveredAt,
		CompletedAt:     o.CompletedAt,
	}
	for _, item := range items {
		resp.Items = append(resp.Items, OrderItemResponse{
			ID:         item.ID,
			ProductID:  item.ProductID,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			TotalPrice: item.TotalPrice,
		})
	}
	return resp
}

type TransactionResponse struct {
	ID                   int64           `json:"id"`
	OrderID              int64           `json:"order_id"`
	Amount               decimal.Decimal `json:"amount"`
	Commission           decimal.Decimal `json:"commission"`
	PaymentStatus        string          `json:"payment_status"`
	PaymentGateway       string          `json:"payment_gateway"`
	GatewayTransactionID string          `json:"gateway_transaction_id,omitempty"`
	PaidAt               *time.Time      `json:"paid_at,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
}

func NewTransactionResponse(t *Transaction) TransactionResponse {
	return TransactionResponse{
		ID:                   t.ID,
		OrderID:              t.OrderID,
		Amount:               t.Amount,
		Commission:           t.Commission,
		PaymentStatus:        t.PaymentStatus,
		PaymentGateway:       t.PaymentGateway,
		GatewayTransactionID: t.GatewayTransactionID,
		PaidAt:               t.PaidAt,
		CreatedAt:            t.CreatedAt,
	}
}

type NotificationResponse struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Type      string    `json:"type"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

func NewNotificationResponse(n *Notification) NotificationResponse {
	return NotificationResponse{
		ID:        n.ID,
		Title:     n.Title,
		Message:   n.Message,
		Type:      n.Type,
		IsRead:    n.IsRead,
		CreatedAt: n.CreatedAt,
	}
}

// Pagination describes a limit/offset page of a list response.
type Pagination struct {
	Total  int64 `json:"total"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}

type ListResponse struct {
	Data       interface{} `json:"data"`
	Pagination Pagination  `json:"pagination"`
}
