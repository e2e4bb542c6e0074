package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeOrderCreated   = "ORDER_CREATED"
	EventTypeOrderConfirmed = "ORDER_CONFIRMED"
	EventTypeOrderDelivered = "ORDER_DELIVERED"
	EventTypeOrderCompleted = "ORDER_COMPLETED"
	EventTypeOrderCancelled = "ORDER_CANCELLED"
	EventTypePaymentPaid    = "PAYMENT_PAID"
	EventTypePaymentFailed  = "PAYMENT_FAILED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderEvent is published on order lifecycle changes. FarmerIDs carries the
// owners of the products in the order so the notification worker can fan
// out without re-querying.
type OrderEvent struct {
	BaseEvent
	OrderID     int64           `json:"order_id"`
	RetailerID  int64           `json:"retailer_id"`
	FarmerIDs   []int64         `json:"farmer_ids,omitempty"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Status      string          `json:"status"`
}

// PaymentEvent is published when a transaction reaches a terminal state.
type PaymentEvent struct {
	BaseEvent
	TransactionID int64           `json:"transaction_id"`
	OrderID       int64           `json:"order_id"`
	RetailerID    int64           `json:"retailer_id"`
	Amount        decimal.Decimal `json:"amount"`
	Gateway       string          `json:"gateway"`
	GatewayTxID   string          `json:"gateway_tx_id,omitempty"`
}
