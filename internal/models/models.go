package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// User roles
const (
	RoleFarmer   = "farmer"
	RoleRetailer = "retailer"
	RoleAdmin    = "admin"
)

// User represents a marketplace participant
type User struct {
	ID           int64     `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Email        string    `db:"email" json:"email"`
	Phone        string    `db:"phone" json:"phone"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Role         string    `db:"role" json:"role"`
	IsVerified   bool      `db:"is_verified" json:"is_verified"`
	IsActive     bool      `db:"is_active" json:"is_active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Product statuses
const (
	ProductStatusAvailable = "available"
	ProductStatusOrdered   = "ordered"
	ProductStatusSold      = "sold"
)

// Product is a farmer's listing. Quantity is the remaining available stock,
// already net of reservations.
type Product struct {
	ID          int64           `db:"id" json:"id"`
	FarmerID    int64           `db:"farmer_id" json:"farmer_id"`
	Name        string          `db:"name" json:"name"`
	Description string          `db:"description" json:"description"`
	Quantity    decimal.Decimal `db:"quantity" json:"quantity"`
	Unit        string          `db:"unit" json:"unit"`
	Price       decimal.Decimal `db:"price" json:"price"`
	Status      string          `db:"status" json:"status"`
	ImageURL    string          `db:"image_url" json:"image_url"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// Order statuses
const (
	OrderStatusPending   = "pending"
	OrderStatusConfirmed = "confirmed"
	OrderStatusDelivered = "delivered"
	OrderStatusCompleted = "completed"
	OrderStatusCancelled = "cancelled"
)

// Order represents a retailer's purchase. TotalAmount is server-computed
// from the item lines and must always equal their sum.
type Order struct {
	ID              int64           `db:"id" json:"id"`
	RetailerID      int64           `db:"retailer_id" json:"retailer_id"`
	TotalAmount     decimal.Decimal `db:"total_amount" json:"total_amount"`
	Status          string          `db:"status" json:"status"`
	DeliveryAddress string          `db:"delivery_address" json:"delivery_address"`
	Notes           string          `db:"notes" json:"notes"`
	OrderedAt       time.Time       `db:"ordered_at" json:"ordered_at"`
	ConfirmedAt     *time.Time      `db:"confirmed_at" json:"confirmed_at,omitempty"`
	DeliveredAt     *time.Time      `db:"delivered_at" json:"delivered_at,omitempty"`
	CompletedAt     *time.Time      `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// OrderItem is a product line within an order. UnitPrice is copied from the
// product at order time and immutable thereafter.
type OrderItem struct {
	ID         int64           `db:"id" json:"id"`
	OrderID    int64           `db:"order_id" json:"order_id"`
	ProductID  int64           `db:"product_id" json:"product_id"`
	Quantity   int             `db:"quantity" json:"quantity"`
	UnitPrice  decimal.Decimal `db:"unit_price" json:"unit_price"`
	TotalPrice decimal.Decimal `db:"total_price" json:"total_price"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
}

// Payment statuses
const (
	PaymentStatusPending = "pending"
	PaymentStatusPaid    = "paid"
	PaymentStatusFailed  = "failed"
)

// Payment gateways
const (
	GatewayMidtrans = "midtrans"
	GatewayXendit   = "xendit"
	GatewayStripe   = "stripe"
)

// Transaction is the payment record for an order, one-to-one by order_id.
type Transaction struct {
	ID                   int64           `db:"id" json:"id"`
	OrderID              int64           `db:"order_id" json:"order_id"`
	Amount               decimal.Decimal `db:"amount" json:"amount"`
	Commission           decimal.Decimal `db:"commission" json:"commission"`
	PaymentStatus        string          `db:"payment_status" json:"payment_status"`
	PaymentGateway       string          `db:"payment_gateway" json:"payment_gateway"`
	GatewayTransactionID string          `db:"gateway_transaction_id" json:"gateway_transaction_id"`
	PaidAt               *time.Time      `db:"paid_at" json:"paid_at,omitempty"`
	CreatedAt            time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time       `db:"updated_at" json:"updated_at"`
}

// Notification is a fire-and-forget record for a user.
type Notification struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	Title     string    `db:"title" json:"title"`
	Message   string    `db:"message" json:"message"`
	Type      string    `db:"type" json:"type"`
	IsRead    bool      `db:"is_read" json:"is_read"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
