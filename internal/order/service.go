// Package order implements order creation, the status state machine, and
// role-gated mutation on top of the data store's atomic primitives.
package order

import (
	"context"
	"fmt"
	"time"

	"agromarket/internal/apperr"
	"agromarket/internal/models"
	"agromarket/internal/store"
	"agromarket/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Store is the slice of persistence the order service needs.
type Store interface {
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	CreateOrderWithItems(ctx context.Context, order *models.Order, items []models.OrderItem) error
	GetOrder(ctx context.Context, id int64) (*models.Order, error)
	GetOrderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, from, to string) (bool, error)
	UpdateOrderItemQuantity(ctx context.Context, orderID, itemID int64, qty int, totalPrice, totalAmount decimal.Decimal) (bool, error)
	ListOrders(ctx context.Context, f store.OrderFilter) ([]models.Order, int64, error)
	OrderFarmerIDs(ctx context.Context, orderID int64) ([]int64, error)
}

// Ledger reserves and releases product stock alongside order transitions.
type Ledger interface {
	Reserve(ctx context.Context, productID int64, qty decimal.Decimal) error
	Confirm(ctx context.Context, productID int64) error
	Release(ctx context.Context, productID int64, qty decimal.Decimal) error
}

// EventSink receives lifecycle events for the notification pipeline.
type EventSink interface {
	PublishOrderEvent(ctx context.Context, event *models.OrderEvent) error
}

// Service is the order state machine.
type Service struct {
	store  Store
	ledger Ledger
	events EventSink
	logger *zap.Logger
}

func NewService(store Store, ledger Ledger, events EventSink) *Service {
	return &Service{
		store:  store,
		ledger: ledger,
		events: events,
		logger: util.GetLogger(),
	}
}

// CreateOrderRequest is the inbound shape for order creation. Prices are
// never trusted from the client.
type CreateOrderRequest struct {
	ProductID       int64  `json:"product_id" binding:"required"`
	Quantity        int    `json:"quantity" binding:"required,min=1"`
	DeliveryAddress string `json:"delivery_address" binding:"required"`
	Notes           string `json:"notes"`
}

// Create reserves stock and persists the order with its item as one logical
// unit. A failed insert compensates the reservation before surfacing the
// error so no inconsistent state survives.
func (s *Service) Create(ctx context.Context, req *CreateOrderRequest, actor Actor) (*models.Order, []models.OrderItem, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.Create")
	defer span.End()

	product, err := s.store.GetProduct(ctx, req.ProductID)
	if err != nil {
		return nil, nil, err
	}
	if product.Status != models.ProductStatusAvailable {
		util.OrdersFailedTotal.WithLabelValues("product_unavailable").Inc()
		return nil, nil, apperr.New(apperr.Validation, "product is not available for ordering")
	}

	qty := decimal.NewFromInt(int64(req.Quantity))
	if err := s.ledger.Reserve(ctx, product.ID, qty); err != nil {
		util.OrdersFailedTotal.WithLabelValues("reservation_failed").Inc()
		return nil, nil, err
	}

	unitPrice := product.Price
	totalPrice := unitPrice.Mul(qty)

	order := &models.Order{
		RetailerID:      actor.ID,
		TotalAmount:     totalPrice,
		Status:          models.OrderStatusPending,
		DeliveryAddress: req.DeliveryAddress,
		Notes:           req.Notes,
		OrderedAt:       time.Now(),
	}
	items := []models.OrderItem{{
		ProductID:  product.ID,
		Quantity:   req.Quantity,
		UnitPrice:  unitPrice,
		TotalPrice: totalPrice,
	}}

	if err := s.store.CreateOrderWithItems(ctx, order, items); err != nil {
		if relErr := s.ledger.Release(ctx, product.ID, qty); relErr != nil {
			s.logger.Error("Failed to compensate reservation after order insert failure",
				zap.Int64("product_id", product.ID),
				zap.Error(relErr))
		}
		util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
		return nil, nil, fmt.Errorf("failed to create order: %w", err)
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.Int64("order_id", order.ID),
		zap.Int64("retailer_id", order.RetailerID),
		zap.String("total_amount", order.TotalAmount.String()))

	s.publishEvent(ctx, models.EventTypeOrderCreated, order, []int64{product.FarmerID})

	return order, items, nil
}

// UpdateStatus validates and applies a transition requested by an actor.
func (s *Service) UpdateStatus(ctx context.Context, orderID int64, newStatus string, actor Actor) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.UpdateStatus")
	defer span.End()

	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if !CanTransition(o.Status, newStatus) {
		return nil, apperr.New(apperr.InvalidTransition, "cannot transition order from %s to %s",
			o.Status, newStatus)
	}

	farmerIDs, err := s.store.OrderFarmerIDs(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := authorizeTransition(actor, o, farmerIDs, newStatus); err != nil {
		return nil, err
	}

	return s.applyTransition(ctx, o, newStatus, farmerIDs)
}

// ApplyTransition performs a system-initiated transition, bypassing actor
// checks. The transaction manager uses this when reconciling payments.
func (s *Service) ApplyTransition(ctx context.Context, orderID int64, newStatus string) (*models.Order, error) {
	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(o.Status, newStatus) {
		return nil, apperr.New(apperr.InvalidTransition, "cannot transition order from %s to %s",
			o.Status, newStatus)
	}
	farmerIDs, err := s.store.OrderFarmerIDs(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return s.applyTransition(ctx, o, newStatus, farmerIDs)
}

// applyTransition runs the compare-and-set status update and its stock side
// effects. A lost race surfaces as a conflict rather than a double apply.
func (s *Service) applyTransition(ctx context.Context, o *models.Order, newStatus string, farmerIDs []int64) (*models.Order, error) {
	applied, err := s.store.UpdateOrderStatus(ctx, o.ID, o.Status, newStatus)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, apperr.New(apperr.Conflict, "order %d is no longer %s", o.ID, o.Status)
	}

	items, err := s.store.GetOrderItems(ctx, o.ID)
	if err != nil {
		return nil, err
	}

	switch newStatus {
	case models.OrderStatusConfirmed:
		for _, item := range items {
			if err := s.ledger.Confirm(ctx, item.ProductID); err != nil {
				s.logger.Error("Failed to confirm stock",
					zap.Int64("order_id", o.ID),
					zap.Int64("product_id", item.ProductID),
					zap.Error(err))
			}
		}
	case models.OrderStatusCancelled:
		for _, item := range items {
			qty := decimal.NewFromInt(int64(item.Quantity))
			if err := s.ledger.Release(ctx, item.ProductID, qty); err != nil {
				s.logger.Error("Failed to release stock on cancellation",
					zap.Int64("order_id", o.ID),
					zap.Int64("product_id", item.ProductID),
					zap.Error(err))
			}
		}
		util.OrdersCancelledTotal.Inc()
	}

	updated, err := s.store.GetOrder(ctx, o.ID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Order transitioned",
		zap.Int64("order_id", o.ID),
		zap.String("from", o.Status),
		zap.String("to", newStatus))

	eventType := map[string]string{
		models.OrderStatusConfirmed: models.EventTypeOrderConfirmed,
		models.OrderStatusDelivered: models.EventTypeOrderDelivered,
		models.OrderStatusCompleted: models.EventTypeOrderCompleted,
		models.OrderStatusCancelled: models.EventTypeOrderCancelled,
	}[newStatus]
	s.publishEvent(ctx, eventType, updated, farmerIDs)

	return updated, nil
}

// UpdateQuantity changes a pending order's item quantity, adjusting the
// stock reservation by the delta and keeping the totals consistent.
func (s *Service) UpdateQuantity(ctx context.Context, orderID int64, newQuantity int, actor Actor) (*models.Order, []models.OrderItem, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.UpdateQuantity")
	defer span.End()

	if newQuantity < 1 {
		return nil, nil, apperr.New(apperr.Validation, "quantity must be positive")
	}

	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	if o.Status != models.OrderStatusPending {
		return nil, nil, apperr.New(apperr.InvalidTransition, "quantity can only be changed while the order is pending")
	}
	if actor.Role != models.RoleAdmin && (actor.Role != models.RoleRetailer || o.RetailerID != actor.ID) {
		return nil, nil, apperr.New(apperr.Authorization, "not allowed to modify order %d", orderID)
	}

	items, err := s.store.GetOrderItems(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	if len(items) != 1 {
		return nil, nil, apperr.New(apperr.Validation, "quantity update is only supported for single-line orders")
	}
	item := items[0]

	delta := newQuantity - item.Quantity
	if delta > 0 {
		if err := s.ledger.Reserve(ctx, item.ProductID, decimal.NewFromInt(int64(delta))); err != nil {
			return nil, nil, err
		}
	} else if delta < 0 {
		if err := s.ledger.Release(ctx, item.ProductID, decimal.NewFromInt(int64(-delta))); err != nil {
			return nil, nil, err
		}
	}

	newTotalPrice := item.UnitPrice.Mul(decimal.NewFromInt(int64(newQuantity)))
	newTotalAmount := o.TotalAmount.Sub(item.TotalPrice).Add(newTotalPrice)

	applied, err := s.store.UpdateOrderItemQuantity(ctx, orderID, item.ID, newQuantity, newTotalPrice, newTotalAmount)
	if err != nil || !applied {
		// undo the reservation delta so stock stays consistent
		if delta > 0 {
			_ = s.ledger.Release(ctx, item.ProductID, decimal.NewFromInt(int64(delta)))
		} else if delta < 0 {
			_ = s.ledger.Reserve(ctx, item.ProductID, decimal.NewFromInt(int64(-delta)))
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to update order quantity: %w", err)
		}
		return nil, nil, apperr.New(apperr.Conflict, "order %d is no longer pending", orderID)
	}

	updated, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	updatedItems, err := s.store.GetOrderItems(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	return updated, updatedItems, nil
}

// Get returns an order with its items, applying read visibility rules.
func (s *Service) Get(ctx context.Context, orderID int64, actor Actor) (*models.Order, []models.OrderItem, error) {
	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}

	switch actor.Role {
	case models.RoleAdmin:
	case models.RoleRetailer:
		if o.RetailerID != actor.ID {
			return nil, nil, apperr.New(apperr.Authorization, "not allowed to view order %d", orderID)
		}
	case models.RoleFarmer:
		farmerIDs, err := s.store.OrderFarmerIDs(ctx, orderID)
		if err != nil {
			return nil, nil, err
		}
		if !containsID(farmerIDs, actor.ID) {
			return nil, nil, apperr.New(apperr.Authorization, "not allowed to view order %d", orderID)
		}
	default:
		return nil, nil, apperr.New(apperr.Authorization, "not allowed to view order %d", orderID)
	}

	items, err := s.store.GetOrderItems(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	return o, items, nil
}

// List returns the actor's visible orders: admins see everything, retailers
// their own, farmers orders containing their products.
func (s *Service) List(ctx context.Context, f store.OrderFilter, actor Actor) ([]models.Order, int64, error) {
	switch actor.Role {
	case models.RoleRetailer:
		f.RetailerID = actor.ID
	case models.RoleFarmer:
		f.FarmerID = actor.ID
	case models.RoleAdmin:
	default:
		return nil, 0, apperr.New(apperr.Authorization, "not allowed to list orders")
	}

	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	return s.store.ListOrders(ctx, f)
}

func (s *Service) publishEvent(ctx context.Context, eventType string, o *models.Order, farmerIDs []int64) {
	if s.events == nil || eventType == "" {
		return
	}
	event := &models.OrderEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: eventType,
			Timestamp: time.Now(),
		},
		OrderID:     o.ID,
		RetailerID:  o.RetailerID,
		FarmerIDs:   farmerIDs,
		TotalAmount: o.TotalAmount,
		Status:      o.Status,
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger.Error("Failed to publish order event",
			zap.String("event_type", eventType),
			zap.Int64("order_id", o.ID),
			zap.Error(err))
	}
}
