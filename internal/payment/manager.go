// Package payment owns the transaction lifecycle and the reconciliation of
// asynchronous gateway webhooks against order state.
package payment

import (
	"context"
	"fmt"
	"time"

	"agromarket/internal/apperr"
	"agromarket/internal/models"
	"agromarket/internal/order"
	"agromarket/internal/payment/gateway"
	"agromarket/internal/store"
	"agromarket/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Store is the slice of persistence the transaction manager needs.
type Store interface {
	GetOrder(ctx context.Context, id int64) (*models.Order, error)
	GetTransaction(ctx context.Context, id int64) (*models.Transaction, error)
	GetTransactionByOrder(ctx context.Context, orderID int64) (*models.Transaction, error)
	CreateTransaction(ctx context.Context, tx *models.Transaction) error
	MarkTransactionPaid(ctx context.Context, id int64, gatewayTxID string, paidAt time.Time) (bool, error)
	MarkTransactionFailed(ctx context.Context, id int64) (bool, error)
	UpdateTransactionGateway(ctx context.Context, id int64, gatewayName string) (bool, error)
}

// OrderMachine is the order-side surface the manager drives on payment
// outcomes.
type OrderMachine interface {
	Get(ctx context.Context, orderID int64, actor order.Actor) (*models.Order, []models.OrderItem, error)
	ApplyTransition(ctx context.Context, orderID int64, newStatus string) (*models.Order, error)
}

// EventSink receives terminal payment events for the notification pipeline.
type EventSink interface {
	PublishPaymentEvent(ctx context.Context, event *models.PaymentEvent) error
}

// Manager owns transaction records, one per order.
type Manager struct {
	store          Store
	orders         OrderMachine
	gateways       *gateway.Registry
	events         EventSink
	commissionRate decimal.Decimal
	logger         *zap.Logger
}

func NewManager(store Store, orders OrderMachine, gateways *gateway.Registry, events EventSink, commissionRate decimal.Decimal) *Manager {
	return &Manager{
		store:          store,
		orders:         orders,
		gateways:       gateways,
		events:         events,
		commissionRate: commissionRate,
		logger:         util.GetLogger(),
	}
}

// GetOrCreate returns the order's transaction, creating a pending one on
// first payment attempt. The store's unique constraint on order_id resolves
// concurrent creations; the losing writer reads back the winner's row.
func (m *Manager) GetOrCreate(ctx context.Context, orderID int64, amount decimal.Decimal, gatewayName string) (*models.Transaction, error) {
	ctx, span := util.StartSpan(ctx, "TransactionManager.GetOrCreate")
	defer span.End()

	existing, err := m.store.GetTransactionByOrder(ctx, orderID)
	if err == nil {
		return existing, nil
	}
	if !apperr.IsKind(err, apperr.NotFound) {
		return nil, err
	}

	tx := &models.Transaction{
		OrderID:        orderID,
		Amount:         amount,
		Commission:     amount.Mul(m.commissionRate).Round(2),
		PaymentStatus:  models.PaymentStatusPending,
		PaymentGateway: gatewayName,
	}
	if err := m.store.CreateTransaction(ctx, tx); err != nil {
		if store.IsUniqueViolation(err) {
			return m.store.GetTransactionByOrder(ctx, orderID)
		}
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}
	return tx, nil
}

// PayResponse is returned to the client starting a payment.
type PayResponse struct {
	PaymentURL    string `json:"payment_url"`
	Token         string `json:"token"`
	TransactionID int64  `json:"transaction_id"`
}

// Pay starts a payment for a pending order: lazily creates the transaction
// and asks the gateway adapter to build a provider payment session.
func (m *Manager) Pay(ctx context.Context, orderID int64, gatewayName string, actor order.Actor) (*PayResponse, error) {
	ctx, span := util.StartSpan(ctx, "TransactionManager.Pay")
	defer span.End()

	o, _, err := m.orders.Get(ctx, orderID, actor)
	if err != nil {
		return nil, err
	}
	if o.Status != models.OrderStatusPending {
		return nil, apperr.New(apperr.InvalidTransition, "only pending orders can be paid")
	}

	adapter, ok := m.gateways.Get(gatewayName)
	if !ok {
		return nil, apperr.New(apperr.Validation, "unsupported payment gateway: %s", gatewayName)
	}

	tx, err := m.GetOrCreate(ctx, orderID, o.TotalAmount, gatewayName)
	if err != nil {
		return nil, err
	}
	if tx.PaymentStatus != models.PaymentStatusPending {
		return nil, apperr.New(apperr.Conflict, "transaction is already %s", tx.PaymentStatus)
	}

	// a retry may pick a different provider; keep the stored gateway in
	// step with the one actually charged
	if tx.PaymentGateway != gatewayName {
		applied, err := m.store.UpdateTransactionGateway(ctx, tx.ID, gatewayName)
		if err != nil {
			return nil, err
		}
		if !applied {
			return nil, apperr.New(apperr.Conflict, "transaction is no longer pending")
		}
		tx.PaymentGateway = gatewayName
	}

	session, err := adapter.CreatePayment(ctx, gateway.PaymentRequest{
		TransactionID: tx.ID,
		OrderID:       orderID,
		Amount:        tx.Amount,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.Upstream, err, "payment gateway request failed")
	}

	util.PaymentRequestsTotal.WithLabelValues(gatewayName).Inc()
	m.logger.Info("Payment session created",
		zap.Int64("order_id", orderID),
		zap.Int64("transaction_id", tx.ID),
		zap.String("gateway", gatewayName))

	return &PayResponse{
		PaymentURL:    session.PaymentURL,
		Token:         session.Token,
		TransactionID: tx.ID,
	}, nil
}

// MarkPaid applies a successful payment exactly once. The pending guard
// lives in the store's update predicate, so a repeat delivery reads back the
// current row and changes nothing. A paid transaction whose order cannot be
// confirmed is surfaced as a reconciliation conflict, never dropped.
func (m *Manager) MarkPaid(ctx context.Context, transactionID int64, gatewayTxID string) (*models.Transaction, error) {
	ctx, span := util.StartSpan(ctx, "TransactionManager.MarkPaid")
	defer span.End()

	applied, err := m.store.MarkTransactionPaid(ctx, transactionID, gatewayTxID, time.Now())
	if err != nil {
		return nil, err
	}

	tx, err := m.store.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if !applied {
		m.logger.Info("Ignoring repeat payment notification",
			zap.Int64("transaction_id", transactionID),
			zap.String("payment_status", tx.PaymentStatus))
		return tx, nil
	}

	util.PaymentsPaidTotal.Inc()

	o, err := m.orders.ApplyTransition(ctx, tx.OrderID, models.OrderStatusConfirmed)
	if err != nil {
		util.ReconciliationConflictsTotal.Inc()
		m.logger.Error("Reconciliation conflict: transaction paid but order not confirmable",
			zap.Int64("transaction_id", tx.ID),
			zap.Int64("order_id", tx.OrderID),
			zap.Error(err))
	}

	m.publishEvent(ctx, models.EventTypePaymentPaid, tx, o)
	return tx, nil
}

// MarkFailed applies a failed payment exactly once, optionally cancelling
// the linked order (which releases its stock reservation).
func (m *Manager) MarkFailed(ctx context.Context, transactionID int64, cancelOrder bool) (*models.Transaction, error) {
	ctx, span := util.StartSpan(ctx, "TransactionManager.MarkFailed")
	defer span.End()

	applied, err := m.store.MarkTransactionFailed(ctx, transactionID)
	if err != nil {
		return nil, err
	}

	tx, err := m.store.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if !applied {
		m.logger.Info("Ignoring repeat payment notification",
			zap.Int64("transaction_id", transactionID),
			zap.String("payment_status", tx.PaymentStatus))
		return tx, nil
	}

	util.PaymentsFailedTotal.Inc()

	var o *models.Order
	if cancelOrder {
		o, err = m.orders.ApplyTransition(ctx, tx.OrderID, models.OrderStatusCancelled)
		if err != nil {
			m.logger.Warn("Order not cancellable after payment failure",
				zap.Int64("transaction_id", tx.ID),
				zap.Int64("order_id", tx.OrderID),
				zap.Error(err))
		}
	}

	m.publishEvent(ctx, models.EventTypePaymentFailed, tx, o)
	return tx, nil
}

func (m *Manager) publishEvent(ctx context.Context, eventType string, tx *models.Transaction, o *models.Order) {
	if m.events == nil {
		return
	}
	event := &models.PaymentEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: eventType,
			Timestamp: time.Now(),
		},
		TransactionID: tx.ID,
		OrderID:       tx.OrderID,
		Amount:        tx.Amount,
		Gateway:       tx.PaymentGateway,
		GatewayTxID:   tx.GatewayTransactionID,
	}
	if o != nil {
		event.RetailerID = o.RetailerID
	} else if ord, err := m.store.GetOrder(ctx, tx.OrderID); err == nil {
		event.RetailerID = ord.RetailerID
	}
	if err := m.events.PublishPaymentEvent(ctx, event); err != nil {
		m.logger.Error("Failed to publish payment event",
			zap.String("event_type", eventType),
			zap.Int64("transaction_id", tx.ID),
			zap.Error(err))
	}
}
